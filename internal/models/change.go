package models

import (
	"time"

	"github.com/segmentio/ksuid"
	"gorm.io/gorm"
)

// ChangeRecord is one accepted content mutation, appended after the
// version-checked save commits.
//
// Why persist changes?
// - Gives the history endpoint an audit trail of who changed what and when
// - Lets a reconnecting client fetch the deltas it missed
//
// Records are written by a background pool, off the hot path: the protocol's
// correctness rests solely on the documents.version column, never on this
// table.
type ChangeRecord struct {
	ID         string    `gorm:"type:char(27);primaryKey" json:"id"`
	DocumentID string    `gorm:"type:char(27);not null;index:idx_change_doc_time" json:"document_id"`
	UserID     string    `gorm:"type:char(27);not null" json:"user_id"`
	Version    int64     `gorm:"not null" json:"version"`
	Delta      string    `gorm:"type:text" json:"delta,omitempty"`
	CreatedAt  time.Time `gorm:"index:idx_change_doc_time" json:"created_at"`

	Document *Document `gorm:"foreignKey:DocumentID;references:ID" json:"document,omitempty"`
}

func (c *ChangeRecord) BeforeCreate(tx *gorm.DB) error {
	if c.ID == "" {
		c.ID = ksuid.New().String()
	}
	return nil
}

// TableName override
func (ChangeRecord) TableName() string {
	return "change_records"
}
