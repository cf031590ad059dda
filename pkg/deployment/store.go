package deployment

import (
	"sync"
)

// Store is the persistence boundary for deployment records. The
// orchestrator reads a record for diffing before any mutation, and only
// successful runs save changes back. Reads return snapshots; mutating a
// returned record changes nothing until it is saved.
type Store interface {
	// Find returns the deployment and whether it exists. A missing
	// deployment is not an error.
	Find(name string) (*Deployment, bool, error)
	// FindOrCreate returns the existing deployment, or a fresh record
	// with an initial variable set. The second result reports whether
	// the record already existed.
	FindOrCreate(name string) (*Deployment, bool, error)
	Save(*Deployment) error
}

type inmemStore struct {
	mtx         sync.Mutex
	deployments map[string]*Deployment
}

func NewInmemStore() Store {
	return &inmemStore{deployments: map[string]*Deployment{}}
}

func (s *inmemStore) Find(name string) (*Deployment, bool, error) {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	d, ok := s.deployments[name]
	if !ok {
		return nil, false, nil
	}
	return d.clone(), true, nil
}

func (s *inmemStore) FindOrCreate(name string) (*Deployment, bool, error) {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	if d, ok := s.deployments[name]; ok {
		return d.clone(), true, nil
	}
	d := New(name)
	s.deployments[name] = d
	return d.clone(), false, nil
}

func (s *inmemStore) Save(d *Deployment) error {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	s.deployments[d.Name] = d.clone()
	return nil
}
