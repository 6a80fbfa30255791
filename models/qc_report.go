package models

import (
	"errors"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

var ErrReportImmutable = errors.New("qc reports are append-only")

// QCReport is one review round of a game version. Rows are never updated or
// deleted; a new decision appends a new report.
type QCReport struct {
	ID              string         `json:"id" gorm:"type:varchar(36);primaryKey"`
	GameID          string         `json:"game_id" gorm:"type:varchar(36);not null;index"`
	VersionID       string         `json:"version_id" gorm:"type:varchar(36);not null;uniqueIndex:idx_report_attempt"`
	ReviewerID      string         `json:"reviewer_id" gorm:"type:varchar(36);not null"`
	Decision        string         `json:"decision" gorm:"not null"` // pass, fail
	Note            string         `json:"note"`
	AttemptNumber   int            `json:"attempt_number" gorm:"not null;uniqueIndex:idx_report_attempt"`
	Evidence        datatypes.JSON `json:"evidence"`
	TestStartedAt   *time.Time     `json:"test_started_at"`
	TestCompletedAt *time.Time     `json:"test_completed_at"`
	CreatedAt       time.Time      `json:"created_at"`
}

func (r *QCReport) BeforeCreate(tx *gorm.DB) error {
	assignID(&r.ID)
	return nil
}

func (r *QCReport) BeforeUpdate(tx *gorm.DB) error {
	return ErrReportImmutable
}

func (r *QCReport) BeforeDelete(tx *gorm.DB) error {
	return ErrReportImmutable
}
