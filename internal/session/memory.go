package session

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/Rutuja-07-code/pharma-agent-ai/pkg"
)

// MemoryStore keeps session state in-process, guarded by a mutex. State is
// stored as JSON so Get always hands out an independent copy; a caller
// mutating its copy cannot affect another turn before Put.
type MemoryStore struct {
	mu   sync.Mutex
	data map[string][]byte
}

// NewMemoryStore creates an empty in-memory session store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: map[string][]byte{}}
}

func (s *MemoryStore) Get(_ context.Context, key string) (*pkg.SessionState, error) {
	s.mu.Lock()
	raw, ok := s.data[key]
	s.mu.Unlock()
	if !ok {
		return &pkg.SessionState{}, nil
	}
	var state pkg.SessionState
	if err := json.Unmarshal(raw, &state); err != nil {
		return nil, err
	}
	return &state, nil
}

func (s *MemoryStore) Put(_ context.Context, key string, state *pkg.SessionState) error {
	raw, err := json.Marshal(state)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.data[key] = raw
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	delete(s.data, key)
	s.mu.Unlock()
	return nil
}
