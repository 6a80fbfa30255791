package store

import (
	"context"
	"encoding/json"
	"fmt"

	"gorm.io/gorm"

	"gameqc/lifecycle"
	"gameqc/models"
)

// AuditLog is the lifecycle.Auditor persisting transitions to audit_entries.
type AuditLog struct {
	db *gorm.DB
}

func NewAuditLog(db *gorm.DB) *AuditLog {
	return &AuditLog{db: db}
}

func (a *AuditLog) Audit(ctx context.Context, ev lifecycle.TransitionEvent) error {
	details, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode audit details: %w", err)
	}
	entry := models.AuditEntry{
		VersionID:  ev.VersionID,
		GameID:     ev.GameID,
		ActorID:    ev.ActorID,
		Action:     string(ev.Action),
		FromStatus: string(ev.From),
		ToStatus:   string(ev.To),
		ReportID:   ev.ReportID,
		Note:       ev.Note,
		Details:    details,
		CreatedAt:  ev.At,
	}
	if err := a.db.WithContext(ctx).Create(&entry).Error; err != nil {
		return fmt.Errorf("write audit entry: %w", err)
	}
	return nil
}

func (a *AuditLog) List(ctx context.Context, versionID string) ([]models.AuditEntry, error) {
	var entries []models.AuditEntry
	err := a.db.WithContext(ctx).
		Where("version_id = ?", versionID).
		Order("created_at ASC").
		Find(&entries).Error
	if err != nil {
		return nil, fmt.Errorf("list audit entries: %w", err)
	}
	return entries, nil
}
