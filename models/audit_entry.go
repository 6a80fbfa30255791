package models

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// AuditEntry records one committed lifecycle transition.
type AuditEntry struct {
	ID         string         `json:"id" gorm:"type:varchar(36);primaryKey"`
	VersionID  string         `json:"version_id" gorm:"type:varchar(36);not null;index"`
	GameID     string         `json:"game_id" gorm:"type:varchar(36);not null"`
	ActorID    string         `json:"actor_id" gorm:"type:varchar(36);not null"`
	Action     string         `json:"action" gorm:"not null"`
	FromStatus string         `json:"from_status" gorm:"not null"`
	ToStatus   string         `json:"to_status" gorm:"not null"`
	ReportID   string         `json:"report_id,omitempty"`
	Note       string         `json:"note"`
	Details    datatypes.JSON `json:"details,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
}

func (a *AuditEntry) BeforeCreate(tx *gorm.DB) error {
	assignID(&a.ID)
	return nil
}
