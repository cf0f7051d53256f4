package snapshot

import (
	"sync"

	"github.com/guestbox/guestbox/wasienv"
)

type memoryStore struct {
	store map[string][]byte
	mu    sync.RWMutex
}

// NewMemoryStore creates an in-memory snapshot store.
func NewMemoryStore() Store {
	return &memoryStore{store: make(map[string][]byte)}
}

func (s *memoryStore) Add(rs wasienv.RewindState) (string, error) {
	id, data, err := encode(rs)
	if err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.store[id] = data
	return id, nil
}

func (s *memoryStore) Get(id string) (wasienv.RewindState, error) {
	s.mu.RLock()
	data, ok := s.store[id]
	s.mu.RUnlock()
	if !ok {
		return wasienv.RewindState{}, ErrNotExist
	}
	return decode(data)
}

func (s *memoryStore) Remove(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, ok := s.store[id]
	delete(s.store, id)
	return ok
}

func (s *memoryStore) List() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	b := make([]string, 0, len(s.store))
	for id := range s.store {
		b = append(b, id)
	}
	return b
}
