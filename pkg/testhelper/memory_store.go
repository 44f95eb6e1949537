package testhelper

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/loretree/loretree/internal/domain/execution"
)

// MemoryExecutionStore is an in-memory implementation of execution.Store
// with the same insert-if-absent semantics as the database-backed one.
type MemoryExecutionStore struct {
	mu     sync.Mutex
	states map[string]*execution.State
}

func NewMemoryExecutionStore() *MemoryExecutionStore {
	return &MemoryExecutionStore{states: make(map[string]*execution.State)}
}

func (s *MemoryExecutionStore) Create(ctx context.Context, state *execution.State) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.states[state.EventID]; ok {
		if !existing.Expired(time.Now().UTC()) {
			return false, nil
		}
		delete(s.states, state.EventID)
	}
	clone := *state
	s.states[state.EventID] = &clone
	return true, nil
}

func (s *MemoryExecutionStore) Get(ctx context.Context, eventID string) (*execution.State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	state, ok := s.states[eventID]
	if !ok {
		return nil, nil
	}
	clone := *state
	return &clone, nil
}

func (s *MemoryExecutionStore) Update(ctx context.Context, eventID string, patch execution.Patch) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	state, ok := s.states[eventID]
	if !ok {
		return fmt.Errorf("no execution state for event %q", eventID)
	}
	state.Apply(patch)
	state.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *MemoryExecutionStore) DeleteExpired(ctx context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	var removed int64
	for eventID, state := range s.states {
		if state.Expired(now) {
			delete(s.states, eventID)
			removed++
		}
	}
	return removed, nil
}
