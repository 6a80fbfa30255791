// Package store adapts gorm and redis to the interfaces of the core packages.
package store

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"gameqc/ledger"
	"gameqc/lifecycle"
	"gameqc/models"
)

// VersionStore is the lifecycle.Store backed by the game_versions table and
// the QC report ledger.
type VersionStore struct {
	db     *gorm.DB
	ledger *ledger.Ledger
}

func NewVersionStore(db *gorm.DB) *VersionStore {
	return &VersionStore{db: db, ledger: ledger.New(db)}
}

func (s *VersionStore) ReadVersionStatus(ctx context.Context, versionID string) (lifecycle.VersionState, error) {
	var v models.GameVersion
	err := s.db.WithContext(ctx).
		Select("id", "game_id", "version", "status").
		Where("id = ?", versionID).
		First(&v).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return lifecycle.VersionState{}, lifecycle.ErrVersionNotFound
	}
	if err != nil {
		return lifecycle.VersionState{}, fmt.Errorf("read version status: %w", err)
	}
	return lifecycle.VersionState{
		VersionID: v.ID,
		GameID:    v.GameID,
		Version:   v.Version,
		Status:    lifecycle.Status(v.Status),
	}, nil
}

// WriteVersionStatus is a compare-and-swap on the status column.
func (s *VersionStore) WriteVersionStatus(ctx context.Context, versionID string, expected, next lifecycle.Status) (bool, error) {
	res := s.db.WithContext(ctx).
		Model(&models.GameVersion{}).
		Where("id = ? AND status = ?", versionID, string(expected)).
		Update("status", string(next))
	if res.Error != nil {
		return false, fmt.Errorf("update version status: %w", res.Error)
	}
	return res.RowsAffected == 1, nil
}

func (s *VersionStore) AppendQCReport(ctx context.Context, report *models.QCReport) (string, error) {
	return s.ledger.Append(ctx, report)
}

func (s *VersionStore) CountQCReports(ctx context.Context, versionID string) (int64, error) {
	return s.ledger.Count(ctx, versionID)
}

func (s *VersionStore) WithinTx(ctx context.Context, fn func(tx lifecycle.Store) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&VersionStore{db: tx, ledger: s.ledger.WithDB(tx)})
	})
}
