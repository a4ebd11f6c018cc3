package store

import (
	"context"
	"sync"

	"github.com/petasbytes/buildfile-agent/internal/session"
)

// MemoryStore keeps state in process memory.
type MemoryStore struct {
	mu   sync.RWMutex
	data map[string]session.State
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: map[string]session.State{}}
}

func (m *MemoryStore) Load(_ context.Context, id string) (session.State, error) {
	if err := ValidateID(id); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.data[id]
	if !ok {
		return nil, ErrNotFound
	}
	return s.Clone(), nil
}

func (m *MemoryStore) Save(_ context.Context, id string, s session.State) error {
	if err := ValidateID(id); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[id] = s.Clone()
	return nil
}

func (m *MemoryStore) Delete(_ context.Context, id string) error {
	if err := ValidateID(id); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, id)
	return nil
}
