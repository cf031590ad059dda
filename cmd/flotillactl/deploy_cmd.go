package main

import (
	"bytes"
	"fmt"
	"io/ioutil"
	"net/url"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

type deployOpts struct {
	*rootOpts
	file          string
	dryRun        bool
	noDeploy      bool
	newGeneration bool
	cloudConfig   string
	runtimeConfig string
}

func newDeploy(parent *rootOpts) *deployOpts {
	return &deployOpts{rootOpts: parent}
}

func (opts *deployOpts) Command() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "deploy",
		Short: "Deploy a manifest",
		RunE:  opts.RunE,
	}
	cmd.Flags().StringVarP(&opts.file, "file", "f", "", "Manifest file to deploy (required)")
	cmd.Flags().BoolVar(&opts.dryRun, "dry-run", false, "Plan and render only; do not compile or roll out")
	cmd.Flags().BoolVar(&opts.noDeploy, "no-deploy", false, "Keep existing variable set assignments")
	cmd.Flags().BoolVar(&opts.newGeneration, "new", false, "Mark this as a new deployment")
	cmd.Flags().StringVar(&opts.cloudConfig, "cloud-config", "", "Stored cloud config id")
	cmd.Flags().StringVar(&opts.runtimeConfig, "runtime-config", "", "Stored runtime config id")
	cmd.MarkFlagRequired("file")
	return cmd
}

func (opts *deployOpts) RunE(cmd *cobra.Command, args []string) error {
	if len(args) > 0 {
		return errExpectedNoArgs
	}

	manifest, err := ioutil.ReadFile(opts.file)
	if err != nil {
		return errors.Wrap(err, "reading manifest")
	}

	q := url.Values{}
	if opts.dryRun {
		q.Set("dry_run", "true")
	}
	if opts.noDeploy {
		q.Set("deploy", "false")
	}
	if opts.newGeneration {
		q.Set("new", "true")
	}
	if opts.cloudConfig != "" {
		q.Set("cloud_config", opts.cloudConfig)
	}
	if opts.runtimeConfig != "" {
		q.Set("runtime_config", opts.runtimeConfig)
	}

	resp, err := opts.Client.Post(opts.URL+"/v1/deployments?"+q.Encode(), "application/x-yaml", bytes.NewReader(manifest))
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := ioutil.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode != 200 {
		return errors.New(string(bytes.TrimSpace(body)))
	}
	fmt.Fprint(cmd.OutOrStdout(), string(body))
	return nil
}
