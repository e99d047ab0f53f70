package state

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// MemoryManager keeps states in process memory
type MemoryManager struct {
	mu     sync.RWMutex
	states map[string]*State
	locks  map[string]time.Time
	now    func() time.Time
}

// NewMemoryManager creates a new memory-based state manager
func NewMemoryManager() *MemoryManager {
	return &MemoryManager{
		states: make(map[string]*State),
		locks:  make(map[string]time.Time),
		now:    time.Now,
	}
}

func (m *MemoryManager) GetState(ctx context.Context, jobID string) (*State, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.states[jobID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, jobID)
	}
	return s.copy(), nil
}

func (m *MemoryManager) CreateState(ctx context.Context, state *State) error {
	if err := validateJobID(state.JobID); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.states[state.JobID]; ok {
		return fmt.Errorf("%w: %s", ErrExists, state.JobID)
	}
	m.states[state.JobID] = state.copy()
	return nil
}

func (m *MemoryManager) UpdateState(ctx context.Context, state *State) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.states[state.JobID]; !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, state.JobID)
	}
	s := state.copy()
	s.LastUpdated = m.now()
	m.states[state.JobID] = s
	return nil
}

func (m *MemoryManager) DeleteState(ctx context.Context, jobID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.states[jobID]; !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, jobID)
	}
	delete(m.states, jobID)
	return nil
}

func (m *MemoryManager) ListStates(ctx context.Context) ([]*State, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	states := make([]*State, 0, len(m.states))
	for _, s := range m.states {
		states = append(states, s.copy())
	}
	sort.Slice(states, func(i, j int) bool { return states[i].JobID < states[j].JobID })
	return states, nil
}

func (m *MemoryManager) LockState(ctx context.Context, jobID string, ttl time.Duration) (bool, error) {
	if err := validateJobID(jobID); err != nil {
		return false, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	if expires, ok := m.locks[jobID]; ok && expires.After(now) {
		return false, nil
	}
	m.locks[jobID] = now.Add(ttl)
	return true, nil
}

func (m *MemoryManager) RefreshLock(ctx context.Context, jobID string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.locks[jobID]; !ok {
		return fmt.Errorf("%w: %s", ErrNotLocked, jobID)
	}
	m.locks[jobID] = m.now().Add(ttl)
	return nil
}

func (m *MemoryManager) UnlockState(ctx context.Context, jobID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.locks, jobID)
	return nil
}
