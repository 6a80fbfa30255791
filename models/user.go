package models

import (
	"time"

	"gorm.io/gorm"
)

// Roles map to permission sets in services.AuthService.
const (
	RoleDeveloper = "developer"
	RoleQC        = "qc"
	RoleCTO       = "cto"
	RoleCEO       = "ceo"
	RoleAdmin     = "admin"
)

type User struct {
	ID        string         `json:"id" gorm:"type:varchar(36);primaryKey"`
	Email     string         `json:"email" gorm:"uniqueIndex;not null"`
	Name      string         `json:"name" gorm:"not null"`
	Password  string         `json:"-" gorm:"not null"`
	Role      string         `json:"role" gorm:"not null;default:'developer'"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `json:"-" gorm:"index"`
}

func (u *User) BeforeCreate(tx *gorm.DB) error {
	assignID(&u.ID)
	if u.Role == "" {
		u.Role = RoleDeveloper
	}
	return nil
}
