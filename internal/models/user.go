package models

import (
	"time"

	"github.com/segmentio/ksuid"
	"gorm.io/gorm"
)

// User is the persisted account record. Authentication (credential checks,
// token issuance) happens outside this service; we only read users to attach
// display metadata to connections and to stamp last_active_at when the final
// connection of a user closes.
type User struct {
	ID           string         `json:"id" gorm:"type:char(27);primaryKey"`
	Email        string         `json:"email" gorm:"type:text;uniqueIndex;not null"`
	Name         string         `json:"name" gorm:"type:text;not null"`
	AvatarURL    string         `json:"avatar_url,omitempty" gorm:"type:text"`
	Role         string         `json:"role" gorm:"type:varchar(50);not null;default:'member'"`
	LastActiveAt *time.Time     `json:"last_active_at,omitempty"`
	CreatedAt    time.Time      `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt    time.Time      `json:"updated_at" gorm:"autoUpdateTime"`
	DeletedAt    gorm.DeletedAt `json:"deleted_at,omitempty" gorm:"index"`
}

func (u *User) BeforeCreate(tx *gorm.DB) error {
	if u.ID == "" {
		u.ID = ksuid.New().String()
	}
	return nil
}
