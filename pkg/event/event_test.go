package event

import (
	"encoding/json"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type captureWriter struct {
	events []*Event
	err    error
}

func (w *captureWriter) LogEvent(e *Event) (ID, error) {
	if w.err != nil {
		return 0, w.err
	}
	w.events = append(w.events, e)
	e.ID = ID(len(w.events))
	return e.ID, nil
}

func TestRecordChainsEvents(t *testing.T) {
	w := &captureWriter{}
	r := NewRecorder(w, "admin", "task-42")

	start, err := r.Record(0, ActionUpdate, "shop", nil, nil)
	require.NoError(t, err)

	ctx := &Context{
		Before: Inventory{},
		After:  Inventory{Releases: []string{"shop-release/1.2.3"}},
	}
	_, err = r.Record(start, ActionUpdate, "shop", ctx, errors.New("rollout failed"))
	require.NoError(t, err)

	require.Len(t, w.events, 2)
	assert.Equal(t, ID(0), w.events[0].ParentID)
	assert.Equal(t, start, w.events[1].ParentID)
	assert.Equal(t, "rollout failed", w.events[1].Error)
	assert.Equal(t, "deployment", w.events[1].ObjectType)
	assert.Equal(t, "shop", w.events[1].ObjectName)
	assert.Equal(t, "task-42", w.events[1].Task)
}

func TestRecordWrapsStoreErrors(t *testing.T) {
	w := &captureWriter{err: errors.New("db down")}
	r := NewRecorder(w, "admin", "task-1")
	_, err := r.Record(0, ActionCreate, "shop", nil, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "recording audit event")
}

func TestContextOmitsEmptyLists(t *testing.T) {
	ctx := Context{
		Before: Inventory{},
		After:  Inventory{Releases: []string{"r/1.0.0"}},
	}
	buf, err := json.Marshal(ctx)
	require.NoError(t, err)
	assert.JSONEq(t, `{"before":{},"after":{"releases":["r/1.0.0"]}}`, string(buf))
}
