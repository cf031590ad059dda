package history

import (
	"sync"

	"github.com/flotilla-deploy/flotilla/pkg/event"
)

type inmem struct {
	mtx    sync.Mutex
	events []event.Event
	nextID event.ID
}

func NewInmem() EventStore {
	return &inmem{nextID: 1}
}

func (s *inmem) LogEvent(e *event.Event) (event.ID, error) {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	e.ID = s.nextID
	s.nextID++
	s.events = append(s.events, *e)
	return e.ID, nil
}

func (s *inmem) EventsForDeployment(name string) ([]event.Event, error) {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	var out []event.Event
	for i := len(s.events) - 1; i >= 0; i-- {
		if s.events[i].Deployment == name {
			out = append(out, s.events[i])
		}
	}
	return out, nil
}
