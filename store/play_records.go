package store

import (
	"context"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"gameqc/models"
	"gameqc/qa"
)

// PlayRecords persists game-reported results. Re-sending an attempt ID within
// a session is a no-op, so the table holds one canonical row per attempt.
type PlayRecords struct {
	db *gorm.DB
}

func NewPlayRecords(db *gorm.DB) *PlayRecords {
	return &PlayRecords{db: db}
}

// RecordAttempt returns once the row is committed and readable.
func (s *PlayRecords) RecordAttempt(ctx context.Context, scope qa.Scope, attempt qa.Attempt) error {
	norm := qa.Normalize(attempt.Payload)
	rec := models.PlayRecord{
		GameID:     scope.GameID,
		VersionID:  scope.VersionID,
		SessionID:  scope.SessionID,
		AttemptID:  attempt.ID,
		Score:      norm.Score,
		MaxScore:   norm.MaxScore,
		Completed:  norm.Completed,
		IsValid:    norm.IsValid,
		Payload:    jsonOrNull(attempt.Payload),
		ObservedAt: attempt.ObservedAt,
	}
	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&rec).Error
	if err != nil {
		return fmt.Errorf("record attempt %q: %w", attempt.ID, err)
	}
	return nil
}

// CountRecords counts distinct persisted records in scope.
func (s *PlayRecords) CountRecords(ctx context.Context, scope qa.Scope) (int64, error) {
	q := s.db.WithContext(ctx).Model(&models.PlayRecord{}).
		Where("game_id = ? AND version_id = ?", scope.GameID, scope.VersionID)
	if scope.SessionID != "" {
		q = q.Where("session_id = ?", scope.SessionID)
	}
	var n int64
	if err := q.Count(&n).Error; err != nil {
		return 0, fmt.Errorf("count play records: %w", err)
	}
	return n, nil
}

func (s *PlayRecords) List(ctx context.Context, versionID string) ([]models.PlayRecord, error) {
	var records []models.PlayRecord
	err := s.db.WithContext(ctx).
		Where("version_id = ?", versionID).
		Order("created_at ASC").
		Find(&records).Error
	if err != nil {
		return nil, fmt.Errorf("list play records: %w", err)
	}
	return records, nil
}
