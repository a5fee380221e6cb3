package chain

import (
	"context"
	"errors"
	"sync"
)

// ErrConflict is returned by a store when a concurrent writer advanced the
// same organization's state first. Under the sequencer's per-org lock this
// indicates another process instance racing on the same chain.
var ErrConflict = errors.New("chain: state version conflict")

// State is the persisted tail of one organization's invoice chain
type State struct {
	OrgID    string
	LastICV  int64
	LastHash string
	Version  int64
}

// Store persists per-organization chain state. Save must be atomic with an
// optimistic version check: it only applies when the stored version equals
// the new version minus one.
type Store interface {
	// Load returns the current state, or a zero state (Version 0) for an
	// organization with no invoices yet.
	Load(ctx context.Context, orgID string) (State, error)

	// Save applies the new state. Returns ErrConflict when the stored
	// version does not match.
	Save(ctx context.Context, state State) error
}

// MemoryStore is an in-process Store for tests and single-instance
// deployments.
type MemoryStore struct {
	mu     sync.RWMutex
	states map[string]State
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{states: make(map[string]State)}
}

// Load implements Store
func (s *MemoryStore) Load(_ context.Context, orgID string) (State, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if st, ok := s.states[orgID]; ok {
		return st, nil
	}
	return State{OrgID: orgID}, nil
}

// Save implements Store
func (s *MemoryStore) Save(_ context.Context, state State) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	current := s.states[state.OrgID]
	if current.Version != state.Version-1 {
		return ErrConflict
	}
	s.states[state.OrgID] = state
	return nil
}
