package main

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/flotilla-deploy/flotilla/pkg/event"
)

var errExpectedNoArgs = errors.New("expected no arguments")

type eventsOpts struct {
	*rootOpts
}

func newEvents(parent *rootOpts) *eventsOpts {
	return &eventsOpts{rootOpts: parent}
}

func (opts *eventsOpts) Command() *cobra.Command {
	return &cobra.Command{
		Use:   "events <deployment>",
		Short: "List audit events for a deployment, newest first",
		Args:  cobra.ExactArgs(1),
		RunE:  opts.RunE,
	}
}

func (opts *eventsOpts) RunE(cmd *cobra.Command, args []string) error {
	resp, err := opts.Client.Get(opts.URL + "/v1/deployments/" + args[0] + "/events")
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != 200 {
		return errors.Errorf("server returned %s", resp.Status)
	}
	var list []event.Event
	if err := json.NewDecoder(resp.Body).Decode(&list); err != nil {
		return errors.Wrap(err, "decoding events")
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 2, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tTIME\tACTOR\tACTION\tTASK\tERROR")
	for _, e := range list {
		errText := "-"
		if e.Error != "" {
			errText = e.Error
		}
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%s\n",
			e.ID, e.Timestamp.Format("2006-01-02 15:04:05"), e.Actor, e.Action, e.Task, errText)
	}
	return w.Flush()
}
