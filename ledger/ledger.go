// Package ledger is the append-only history of QC review rounds.
package ledger

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"gameqc/models"
)

// ErrAttemptConflict means another report already holds the attempt number.
var ErrAttemptConflict = errors.New("qc report attempt number already recorded")

var ErrNoReports = errors.New("no qc reports for version")

type Ledger struct {
	db *gorm.DB
}

func New(db *gorm.DB) *Ledger {
	return &Ledger{db: db}
}

// WithDB returns a ledger bound to db, typically a transaction handle.
func (l *Ledger) WithDB(db *gorm.DB) *Ledger {
	return &Ledger{db: db}
}

// Append inserts a new report. Existing rows are never touched.
func (l *Ledger) Append(ctx context.Context, report *models.QCReport) (string, error) {
	if report.VersionID == "" || report.AttemptNumber < 1 {
		return "", fmt.Errorf("append qc report: version id and positive attempt number required")
	}
	if err := l.db.WithContext(ctx).Create(report).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return "", ErrAttemptConflict
		}
		return "", fmt.Errorf("append qc report: %w", err)
	}
	return report.ID, nil
}

func (l *Ledger) Count(ctx context.Context, versionID string) (int64, error) {
	var n int64
	err := l.db.WithContext(ctx).Model(&models.QCReport{}).Where("version_id = ?", versionID).Count(&n).Error
	if err != nil {
		return 0, fmt.Errorf("count qc reports: %w", err)
	}
	return n, nil
}

// History returns every report of a version, oldest attempt first.
func (l *Ledger) History(ctx context.Context, versionID string) ([]models.QCReport, error) {
	var reports []models.QCReport
	err := l.db.WithContext(ctx).
		Where("version_id = ?", versionID).
		Order("attempt_number ASC").
		Find(&reports).Error
	if err != nil {
		return nil, fmt.Errorf("load qc history: %w", err)
	}
	return reports, nil
}

func (l *Ledger) Latest(ctx context.Context, versionID string) (*models.QCReport, error) {
	var report models.QCReport
	err := l.db.WithContext(ctx).
		Where("version_id = ?", versionID).
		Order("attempt_number DESC").
		First(&report).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNoReports
	}
	if err != nil {
		return nil, fmt.Errorf("load latest qc report: %w", err)
	}
	return &report, nil
}
