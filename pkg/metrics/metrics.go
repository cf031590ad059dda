// Package metrics provides label names shared by the instrumented
// components, so dashboards can rely on consistent labelling.
package metrics

const (
	LabelDeployment = "deployment"
	LabelDryRun     = "dry_run"
	LabelStage      = "stage"
	LabelSuccess    = "success"
	LabelAction     = "action"
	LabelMethod     = "method"
	LabelRoute      = "route"
	LabelStatusCode = "status_code"
)
