// Package notify publishes best-effort rollout notifications to an
// external channel keyed by deployment name. Delivery failures are a
// distinguished error kind: the orchestrator logs and discards them,
// and they never replace the error that triggered them.
package notify

import (
	"fmt"
)

// Notifier sends start/end/error signals for one deployment's rollout.
// None of the methods are invoked for dry runs.
type Notifier interface {
	SendStart() error
	SendEnd() error
	SendError(err error) error
}

// Factory builds the notifier for a named deployment.
type Factory interface {
	ForDeployment(name string) Notifier
}

// Failure wraps a delivery error. It is always logged-and-discarded by
// callers, as opposed to other error kinds which propagate.
type Failure struct {
	Err error
}

func (f *Failure) Error() string {
	return fmt.Sprintf("sending notification: %v", f.Err)
}

func (f *Failure) Unwrap() error {
	return f.Err
}

type nopNotifier struct{}

func (nopNotifier) SendStart() error        { return nil }
func (nopNotifier) SendEnd() error          { return nil }
func (nopNotifier) SendError(_ error) error { return nil }

type nopFactory struct{}

func (nopFactory) ForDeployment(string) Notifier { return nopNotifier{} }

// NewNopFactory returns a factory whose notifiers discard everything.
// Used when no notification channel is configured.
func NewNopFactory() Factory {
	return nopFactory{}
}
