package event

import (
	"time"

	"github.com/pkg/errors"
)

const objectTypeDeployment = "deployment"

// Recorder builds and persists audit events for one kind of actor and
// task. It never swallows store errors; the orchestrator decides what
// to do with them.
type Recorder struct {
	writer Writer
	actor  string
	task   string
}

func NewRecorder(writer Writer, actor, task string) *Recorder {
	return &Recorder{writer: writer, actor: actor, task: task}
}

// Record persists one event and returns its id for chaining a terminal
// event. parent is zero for the run's opening event. opErr and ctx may
// be nil; the terminal event of a failed run carries whatever context
// had been computed by the time of failure.
func (r *Recorder) Record(parent ID, action Action, deploymentName string, ctx *Context, opErr error) (ID, error) {
	e := &Event{
		ParentID:   parent,
		Timestamp:  time.Now().UTC(),
		Actor:      r.actor,
		Action:     action,
		ObjectType: objectTypeDeployment,
		ObjectName: deploymentName,
		Deployment: deploymentName,
		Task:       r.task,
		Context:    ctx,
	}
	if opErr != nil {
		e.Error = opErr.Error()
	}
	id, err := r.writer.LogEvent(e)
	if err != nil {
		return 0, errors.Wrap(err, "recording audit event")
	}
	return id, nil
}
