package store

import "sync"

// MemoryStore is a thread-safe in-memory Store. The snapshot is lost on
// process exit; it exists for tests and ephemeral runs.
type MemoryStore struct {
	mu      sync.RWMutex
	snap    Snapshot
	present bool
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// Seed pre-populates the store, as if a previous process had saved snap.
func (s *MemoryStore) Seed(snap Snapshot) {
	s.mu.Lock()
	s.snap = snap
	s.present = true
	s.mu.Unlock()
}

func (s *MemoryStore) Load() (Snapshot, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.present {
		return Snapshot{}, false, nil
	}
	return s.snap, true, nil
}

func (s *MemoryStore) Save(snap Snapshot) error {
	s.mu.Lock()
	s.snap = snap
	s.present = true
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Clear() error {
	s.mu.Lock()
	s.snap = Snapshot{}
	s.present = false
	s.mu.Unlock()
	return nil
}
