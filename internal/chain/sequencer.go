// Package chain assigns each organization's invoices a monotonically
// increasing counter (ICV) and the previous invoice's hash (PIH), and keeps
// the hash chain linear under concurrent invoice creation.
package chain

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/rezonia/zatca-engine/internal/model"
	"github.com/rezonia/zatca-engine/internal/stamp"
)

// Sequencer hands out chain slots. Within one process a per-organization
// mutex serializes issuance; across processes the store's optimistic
// version check rejects forks.
type Sequencer struct {
	store  Store
	logger *zap.Logger

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewSequencer creates a sequencer over the given store
func NewSequencer(store Store, logger *zap.Logger) *Sequencer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Sequencer{
		store:  store,
		logger: logger,
		locks:  make(map[string]*sync.Mutex),
	}
}

// Slot is one reserved chain position. The organization's chain is locked
// until the slot is committed or released; different organizations proceed
// independently.
type Slot struct {
	ICV          int64
	PreviousHash string

	seq   *Sequencer
	state State
	once  sync.Once
}

func (s *Sequencer) orgLock(orgID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[orgID]
	if !ok {
		l = &sync.Mutex{}
		s.locks[orgID] = l
	}
	return l
}

// Next reserves the next (icv, previousHash) pair for the organization and
// locks its chain. The caller must call Commit once the invoice XML has
// been hashed, or Release if the invoice was never built; an invoice whose
// position is undetermined must not let the chain advance.
func (s *Sequencer) Next(ctx context.Context, orgID string) (*Slot, error) {
	lock := s.orgLock(orgID)
	lock.Lock()

	state, err := s.store.Load(ctx, orgID)
	if err != nil {
		lock.Unlock()
		return nil, model.NewChainError(orgID, 0, "load chain state", err)
	}

	prev := state.LastHash
	if prev == "" {
		prev = stamp.InitialHash()
	}

	return &Slot{
		ICV:          state.LastICV + 1,
		PreviousHash: prev,
		seq:          s,
		state:        state,
	}, nil
}

// Commit records the hash of the invoice occupying this slot and unlocks
// the organization's chain. A voided invoice still commits its hash: the
// chain records terminated invoices, it never skips an ICV.
func (slot *Slot) Commit(ctx context.Context, invoiceHash string) error {
	var err error
	slot.once.Do(func() {
		defer slot.seq.orgLock(slot.state.OrgID).Unlock()

		next := State{
			OrgID:    slot.state.OrgID,
			LastICV:  slot.ICV,
			LastHash: invoiceHash,
			Version:  slot.state.Version + 1,
		}
		if saveErr := slot.seq.store.Save(ctx, next); saveErr != nil {
			err = model.NewChainError(slot.state.OrgID, slot.ICV, "commit chain slot", saveErr)
			return
		}
		slot.seq.logger.Debug("chain slot committed",
			zap.String("org_id", slot.state.OrgID),
			zap.Int64("icv", slot.ICV))
	})
	return err
}

// Release unlocks the organization's chain without consuming the slot.
// Only valid when no invoice was rendered for it.
func (slot *Slot) Release() {
	slot.once.Do(func() {
		slot.seq.orgLock(slot.state.OrgID).Unlock()
	})
}
