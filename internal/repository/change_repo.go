package repository

import (
	"context"
	"fmt"

	"syncspace/internal/models"

	"gorm.io/gorm"
)

// ChangeRepositoryImpl appends and queries the document change log.
//
// Query patterns:
// - Append: one row per accepted mutation (written off the hot path)
// - ListByDocument: history endpoint, newest first
// - ListSince: incremental catch-up after a reconnect
type ChangeRepositoryImpl struct {
	db *gorm.DB
}

// NewChangeRepository creates a new change-log repository
func NewChangeRepository(db *gorm.DB) *ChangeRepositoryImpl {
	return &ChangeRepositoryImpl{db: db}
}

// Append stores one accepted change.
func (r *ChangeRepositoryImpl) Append(ctx context.Context, rec *models.ChangeRecord) error {
	if err := r.db.WithContext(ctx).Create(rec).Error; err != nil {
		return fmt.Errorf("failed to append change record: %w", err)
	}
	return nil
}

// ListByDocument returns the most recent changes for a document.
func (r *ChangeRepositoryImpl) ListByDocument(ctx context.Context, documentID string, limit int) ([]*models.ChangeRecord, error) {
	var records []*models.ChangeRecord

	err := r.db.WithContext(ctx).
		Where("document_id = ?", documentID).
		Order("version DESC").
		Limit(limit).
		Find(&records).Error

	if err != nil {
		return nil, fmt.Errorf("failed to list change records: %w", err)
	}

	return records, nil
}

// ListSince returns changes newer than the given version, oldest first, so a
// stale client can replay them in order.
func (r *ChangeRepositoryImpl) ListSince(ctx context.Context, documentID string, sinceVersion int64) ([]*models.ChangeRecord, error) {
	var records []*models.ChangeRecord

	err := r.db.WithContext(ctx).
		Where("document_id = ? AND version > ?", documentID, sinceVersion).
		Order("version ASC").
		Find(&records).Error

	if err != nil {
		return nil, fmt.Errorf("failed to list change records: %w", err)
	}

	return records, nil
}
