package container

import "sync"

// ActiveSet tracks the containers currently owned by the schedule's
// runner Contexts, mirroring the bookkeeping in banksean-sand's
// pool.ContainerPool without the pooling (a container is owned by one
// Context at a time rather than drawn from a shared pool). Snapshot lists
// them; the signal handler does not consult the set.
type ActiveSet struct {
	mu  sync.Mutex
	ids map[string]bool
}

// NewActiveSet returns an empty ActiveSet.
func NewActiveSet() *ActiveSet {
	return &ActiveSet{ids: map[string]bool{}}
}

// Add records containerID as active.
func (s *ActiveSet) Add(containerID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ids[containerID] = true
}

// Remove stops tracking containerID.
func (s *ActiveSet) Remove(containerID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.ids, containerID)
}

// Snapshot returns the currently active container IDs.
func (s *ActiveSet) Snapshot() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0, len(s.ids))
	for id := range s.ids {
		ids = append(ids, id)
	}
	return ids
}
