package main

import (
	"fmt"
	"net/http"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

const EnvVariableURL = "FLOTILLA_URL"

type rootOpts struct {
	URL    string
	Client *http.Client
}

func newRoot() *rootOpts {
	return &rootOpts{Client: http.DefaultClient}
}

var rootLongHelp = strings.TrimSpace(`
flotillactl deploys your services.

Workflow:
  flotillactl deploy -f manifest.yml --dry-run   # Check what a deploy would do.
  flotillactl deploy -f manifest.yml             # Deploy it.
  flotillactl events shop                        # See what happened.
`)

func (opts *rootOpts) Command() *cobra.Command {
	cmd := &cobra.Command{
		Use:               "flotillactl",
		Long:              rootLongHelp,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: opts.PersistentPreRunE,
	}
	cmd.PersistentFlags().StringVarP(&opts.URL, "url", "u", "http://localhost:3030",
		fmt.Sprintf("base URL of the flotillad API server; you can also set the environment variable %s", EnvVariableURL))

	cmd.AddCommand(
		newDeploy(opts).Command(),
		newEvents(opts).Command(),
	)

	return cmd
}

func (opts *rootOpts) PersistentPreRunE(cmd *cobra.Command, _ []string) error {
	url := os.Getenv(EnvVariableURL)
	if cmd.Flags().Changed("url") || url == "" {
		url = opts.URL
	}
	opts.URL = strings.TrimSuffix(url, "/")
	return nil
}
