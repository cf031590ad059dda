// Package lock provides named, exclusive, blocking locks. The
// orchestrator holds a deployment's lock from plan binding through
// rollout completion; runs for different deployments never contend.
package lock

import (
	"context"
	"sync"
)

// Service hands out per-name leases. Acquisition blocks until the
// previous holder releases or the caller's context is done; there is no
// reentrancy and no lock upgrade.
type Service struct {
	mtx  sync.Mutex
	sems map[string]chan struct{}
}

func NewService() *Service {
	return &Service{sems: map[string]chan struct{}{}}
}

func (s *Service) sem(name string) chan struct{} {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	sem, ok := s.sems[name]
	if !ok {
		sem = make(chan struct{}, 1)
		s.sems[name] = sem
	}
	return sem
}

// Acquire blocks until the named lock is free, then returns a lease.
// The lease must be released on every exit path; Release is idempotent.
func (s *Service) Acquire(ctx context.Context, name string) (*Lease, error) {
	sem := s.sem(name)
	select {
	case sem <- struct{}{}:
		return &Lease{name: name, sem: sem}, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

type Lease struct {
	name string
	sem  chan struct{}
	once sync.Once
}

func (l *Lease) Name() string {
	return l.name
}

func (l *Lease) Release() {
	l.once.Do(func() { <-l.sem })
}
