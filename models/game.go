package models

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Game struct {
	ID          string         `json:"id" gorm:"type:varchar(36);primaryKey"`
	Slug        string         `json:"slug" gorm:"uniqueIndex;not null"`
	Title       string         `json:"title" gorm:"not null"`
	Description string         `json:"description"`
	OwnerID     string         `json:"owner_id" gorm:"type:varchar(36);index;not null"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
	DeletedAt   gorm.DeletedAt `json:"-" gorm:"index"`

	// Relationships
	Versions []GameVersion `json:"versions,omitempty" gorm:"foreignKey:GameID"`
}

func (g *Game) BeforeCreate(tx *gorm.DB) error {
	assignID(&g.ID)
	return nil
}

// GameVersion is one uploaded build of a game. Status is written only by the
// lifecycle state machine.
type GameVersion struct {
	ID          string         `json:"id" gorm:"type:varchar(36);primaryKey"`
	GameID      string         `json:"game_id" gorm:"type:varchar(36);not null;uniqueIndex:idx_game_version"`
	Version     string         `json:"version" gorm:"not null;uniqueIndex:idx_game_version"`
	Status      string         `json:"status" gorm:"not null;default:'draft';index"` // draft, uploaded, qc_processing, qc_passed, qc_failed, approved, published, archived
	BuildSize   int64          `json:"build_size" gorm:"not null;default:0"`
	StoragePath string         `json:"storage_path" gorm:"not null"`
	EntryFile   string         `json:"entry_file" gorm:"not null;default:'index.html'"`
	QASummary   datatypes.JSON `json:"qa_summary,omitempty"`
	SubmittedBy string         `json:"submitted_by" gorm:"type:varchar(36);not null"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
	DeletedAt   gorm.DeletedAt `json:"-" gorm:"index"`

	// Relationships
	Game    Game       `json:"game,omitempty"`
	Reports []QCReport `json:"reports,omitempty" gorm:"foreignKey:VersionID"`
}

func (v *GameVersion) BeforeCreate(tx *gorm.DB) error {
	assignID(&v.ID)
	if v.Status == "" {
		v.Status = "draft"
	}
	return nil
}
