package chain

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
)

// ChainState is the GORM model backing the durable store
type ChainState struct {
	OrgID     string    `gorm:"primaryKey;column:org_id"`
	LastICV   int64     `gorm:"column:last_icv"`
	LastHash  string    `gorm:"column:last_hash"`
	Version   int64     `gorm:"column:version"`
	UpdatedAt time.Time `gorm:"column:updated_at"`
}

// TableName implements the GORM table naming convention
func (ChainState) TableName() string {
	return "chain_states"
}

// GormStore persists chain state in a relational database. The version
// column gives compare-and-swap semantics, so horizontally scaled engine
// instances cannot fork a chain even without a shared process lock.
type GormStore struct {
	db *gorm.DB
}

// NewGormStore migrates the chain_states table and returns the store
func NewGormStore(db *gorm.DB) (*GormStore, error) {
	if err := db.AutoMigrate(&ChainState{}); err != nil {
		return nil, err
	}
	return &GormStore{db: db}, nil
}

// Load implements Store
func (s *GormStore) Load(ctx context.Context, orgID string) (State, error) {
	var row ChainState
	err := s.db.WithContext(ctx).First(&row, "org_id = ?", orgID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return State{OrgID: orgID}, nil
	}
	if err != nil {
		return State{}, err
	}
	return State{
		OrgID:    row.OrgID,
		LastICV:  row.LastICV,
		LastHash: row.LastHash,
		Version:  row.Version,
	}, nil
}

// Save implements Store with an optimistic version check
func (s *GormStore) Save(ctx context.Context, state State) error {
	row := ChainState{
		OrgID:     state.OrgID,
		LastICV:   state.LastICV,
		LastHash:  state.LastHash,
		Version:   state.Version,
		UpdatedAt: time.Now().UTC(),
	}

	if state.Version == 1 {
		err := s.db.WithContext(ctx).Create(&row).Error
		if err != nil && errors.Is(err, gorm.ErrDuplicatedKey) {
			return ErrConflict
		}
		return err
	}

	res := s.db.WithContext(ctx).
		Model(&ChainState{}).
		Where("org_id = ? AND version = ?", state.OrgID, state.Version-1).
		Updates(map[string]any{
			"last_icv":   row.LastICV,
			"last_hash":  row.LastHash,
			"version":    row.Version,
			"updated_at": row.UpdatedAt,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrConflict
	}
	return nil
}
