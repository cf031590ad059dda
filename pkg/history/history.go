// Package history persists the audit event trail and answers queries
// about a deployment's past.
package history

import (
	"github.com/flotilla-deploy/flotilla/pkg/event"
)

// EventStore is an append-only store of audit events, queryable by
// deployment name. Events are returned newest first.
type EventStore interface {
	event.Writer
	EventsForDeployment(name string) ([]event.Event, error)
}
