package models

import (
	"time"

	"github.com/lib/pq"
	"github.com/segmentio/ksuid"
	"gorm.io/gorm"
)

// Workspace groups projects, documents and members. Members is the
// authoritative list consulted when a connection asks to join the
// workspace's broadcast room.
type Workspace struct {
	ID        string         `json:"id" gorm:"type:char(27);primaryKey"`
	Name      string         `json:"name" gorm:"type:text;not null"`
	OwnerID   string         `json:"owner_id" gorm:"type:char(27);index;not null"`
	Members   pq.StringArray `json:"members" gorm:"type:text[];default:'{}'"`
	CreatedAt time.Time      `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt time.Time      `json:"updated_at" gorm:"autoUpdateTime"`
	DeletedAt gorm.DeletedAt `json:"deleted_at,omitempty" gorm:"index"`
}

func (w *Workspace) BeforeCreate(tx *gorm.DB) error {
	if w.ID == "" {
		w.ID = ksuid.New().String()
	}
	return nil
}

// HasMember reports whether the user is the owner or appears in Members.
func (w *Workspace) HasMember(userID string) bool {
	if w.OwnerID == userID {
		return true
	}
	for _, m := range w.Members {
		if m == userID {
			return true
		}
	}
	return false
}

// Project is a Kanban/board container inside a workspace with its own member
// list and broadcast room.
type Project struct {
	ID          string         `json:"id" gorm:"type:char(27);primaryKey"`
	WorkspaceID string         `json:"workspace_id" gorm:"type:char(27);index;not null"`
	Name        string         `json:"name" gorm:"type:text;not null"`
	Members     pq.StringArray `json:"members" gorm:"type:text[];default:'{}'"`
	CreatedAt   time.Time      `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt   time.Time      `json:"updated_at" gorm:"autoUpdateTime"`
	DeletedAt   gorm.DeletedAt `json:"deleted_at,omitempty" gorm:"index"`
}

func (p *Project) BeforeCreate(tx *gorm.DB) error {
	if p.ID == "" {
		p.ID = ksuid.New().String()
	}
	return nil
}

// HasMember reports whether the user appears in the project's member list.
func (p *Project) HasMember(userID string) bool {
	for _, m := range p.Members {
		if m == userID {
			return true
		}
	}
	return false
}

type WorkspaceCreate struct {
	Name    string   `json:"name"`
	OwnerID string   `json:"owner_id"`
	Members []string `json:"members"`
}
