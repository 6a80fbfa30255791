package models

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// PlayRecord is the canonical backend record of one result attempt reported
// by a running game. An attempt ID is stored at most once per session.
type PlayRecord struct {
	ID         string         `json:"id" gorm:"type:varchar(36);primaryKey"`
	GameID     string         `json:"game_id" gorm:"type:varchar(36);not null;uniqueIndex:idx_play_attempt"`
	VersionID  string         `json:"version_id" gorm:"type:varchar(36);not null;uniqueIndex:idx_play_attempt"`
	SessionID  string         `json:"session_id" gorm:"not null;uniqueIndex:idx_play_attempt"`
	AttemptID  string         `json:"attempt_id" gorm:"not null;uniqueIndex:idx_play_attempt"`
	UserID     string         `json:"user_id"`
	Score      float64        `json:"score" gorm:"not null;default:0"`
	MaxScore   float64        `json:"max_score" gorm:"not null;default:100"`
	Completed  bool           `json:"completed" gorm:"not null;default:false"`
	IsValid    bool           `json:"is_valid" gorm:"not null;default:false"`
	Payload    datatypes.JSON `json:"payload"`
	ObservedAt time.Time      `json:"observed_at"`
	CreatedAt  time.Time      `json:"created_at"`
}

func (p *PlayRecord) BeforeCreate(tx *gorm.DB) error {
	assignID(&p.ID)
	return nil
}
