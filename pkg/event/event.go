// Package event defines the audit trail model. Every orchestrator run
// records a pair of events: one when the operation starts, and a
// terminal one chained to it carrying the before/after context and any
// error.
package event

import (
	"time"
)

type ID int64

type Action string

const (
	// ActionCreate marks runs that requested a new deployment.
	ActionCreate Action = "create"
	ActionUpdate Action = "update"
)

// Inventory is one side of a context diff. Empty lists are omitted from
// the serialized structure.
type Inventory struct {
	Releases  []string `json:"releases,omitempty"`
	Stemcells []string `json:"stemcells,omitempty"`
}

// Context is the two-key before/after structure attached to a terminal
// event: the deployment's release/stemcell inventory snapshotted before
// plan binding and after it.
type Context struct {
	Before Inventory `json:"before"`
	After  Inventory `json:"after"`
}

type Event struct {
	ID         ID        `json:"id"`
	ParentID   ID        `json:"parent_id,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
	Actor      string    `json:"actor"`
	Action     Action    `json:"action"`
	ObjectType string    `json:"object_type"`
	ObjectName string    `json:"object_name"`
	Deployment string    `json:"deployment"`
	Task       string    `json:"task"`
	Error      string    `json:"error,omitempty"`
	Context    *Context  `json:"context,omitempty"`
}

// Writer persists events; the store assigns ids.
type Writer interface {
	LogEvent(*Event) (ID, error)
}
