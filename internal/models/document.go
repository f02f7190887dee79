package models

import (
	"time"

	"github.com/lib/pq"
	"github.com/segmentio/ksuid"
	"gorm.io/gorm"
)

// Document is a collaboratively edited text document.
//
// The Version column is the single ordering primitive for content: it
// increases by exactly 1 on every accepted change and is compared-and-swapped
// at the storage layer, never in application memory. LockedBy/LockedAt carry
// the advisory single-writer lock.
//
// IDs are KSUIDs: time-ordered (first 32 bits are a timestamp), so sorting by
// ID sorts by creation time without a created_at index, and the sequential
// prefix keeps the primary-key B-tree compact.
type Document struct {
	ID            string         `json:"id" gorm:"type:char(27);primaryKey"`
	WorkspaceID   string         `json:"workspace_id" gorm:"type:char(27);index;not null"`
	Title         string         `json:"title" gorm:"type:text;not null"`
	Content       string         `json:"content" gorm:"type:text;not null;default:''"`
	Version       int64          `json:"version" gorm:"not null;default:1"`
	OwnerID       string         `json:"owner_id" gorm:"type:char(27);index;not null"`
	Collaborators pq.StringArray `json:"collaborators" gorm:"type:text[];default:'{}'"`
	IsPublic      bool           `json:"is_public" gorm:"not null;default:false"`
	LastEditedBy  string         `json:"last_edited_by,omitempty" gorm:"type:char(27)"`
	LastEditedAt  *time.Time     `json:"last_edited_at,omitempty"`
	LockedBy      *string        `json:"locked_by,omitempty" gorm:"type:char(27)"`
	LockedAt      *time.Time     `json:"locked_at,omitempty"`
	CreatedAt     time.Time      `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt     time.Time      `json:"updated_at" gorm:"autoUpdateTime"`
	DeletedAt     gorm.DeletedAt `json:"deleted_at,omitempty" gorm:"index"` // Soft delete support
}

// BeforeCreate hook generates a KSUID before inserting
func (d *Document) BeforeCreate(tx *gorm.DB) error {
	if d.ID == "" {
		d.ID = ksuid.New().String()
	}
	return nil
}

// CanBeEditedBy reports whether the user may open a live editing session on
// this document: the owner, any collaborator, or anyone if the document is
// public.
func (d *Document) CanBeEditedBy(userID string) bool {
	if d.IsPublic || d.OwnerID == userID {
		return true
	}
	for _, c := range d.Collaborators {
		if c == userID {
			return true
		}
	}
	return false
}

type DocumentCreate struct {
	WorkspaceID   string   `json:"workspace_id"`
	Title         string   `json:"title"`
	Content       string   `json:"content"`
	Collaborators []string `json:"collaborators"`
	IsPublic      bool     `json:"is_public"`
}

type DocumentUpdate struct {
	Title         *string   `json:"title,omitempty"`
	Collaborators *[]string `json:"collaborators,omitempty"`
	IsPublic      *bool     `json:"is_public,omitempty"`
}
