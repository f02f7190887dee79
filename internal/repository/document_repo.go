package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"syncspace/internal/models"

	"github.com/lib/pq"
	"gorm.io/gorm"
)

// DocumentRepositoryImpl handles all database operations for documents using GORM.
// This is the IMPLEMENTATION; the packages that consume it declare the
// interfaces they need ("accept interfaces, return structs").
type DocumentRepositoryImpl struct {
	db *gorm.DB
}

// NewDocumentRepository creates a new document repository
func NewDocumentRepository(db *gorm.DB) *DocumentRepositoryImpl {
	return &DocumentRepositoryImpl{db: db}
}

// Create inserts a new document. The KSUID is generated in the BeforeCreate
// hook; the owner starts as the only collaborator-equivalent.
func (r *DocumentRepositoryImpl) Create(ctx context.Context, ownerID string, doc *models.DocumentCreate) (*models.Document, error) {
	document := &models.Document{
		WorkspaceID:   doc.WorkspaceID,
		Title:         doc.Title,
		Content:       doc.Content,
		Version:       1,
		OwnerID:       ownerID,
		Collaborators: doc.Collaborators,
		IsPublic:      doc.IsPublic,
	}

	if err := r.db.WithContext(ctx).Create(document).Error; err != nil {
		return nil, fmt.Errorf("failed to create document: %w", err)
	}

	return document, nil
}

// GetByID retrieves a document by its KSUID. Soft-deleted documents are
// excluded, so a join request against a deleted document surfaces ErrNotFound.
func (r *DocumentRepositoryImpl) GetByID(ctx context.Context, id string) (*models.Document, error) {
	var doc models.Document

	err := r.db.WithContext(ctx).First(&doc, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("document %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get document: %w", err)
	}

	return &doc, nil
}

// ListByWorkspace returns a workspace's documents with pagination, newest
// first (KSUIDs are time-ordered, so ordering by ID orders by creation time).
func (r *DocumentRepositoryImpl) ListByWorkspace(ctx context.Context, workspaceID string, limit, offset int) ([]*models.Document, error) {
	var documents []*models.Document

	err := r.db.WithContext(ctx).
		Where("workspace_id = ?", workspaceID).
		Order("id DESC").
		Limit(limit).
		Offset(offset).
		Find(&documents).Error

	if err != nil {
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}

	return documents, nil
}

// SaveContent performs the version-checked content save.
//
// The compare-and-increment runs in a single conditional UPDATE so that two
// proposers who both read version v cannot both commit: the WHERE clause is
// the authoritative check, not any value previously loaded into memory.
// Returns the new version on success, ErrVersionConflict when the expected
// version no longer matches, ErrNotFound when the document is gone.
func (r *DocumentRepositoryImpl) SaveContent(ctx context.Context, id string, expectedVersion int64, content, editorID string) (int64, error) {
	now := time.Now()

	result := r.db.WithContext(ctx).
		Model(&models.Document{}).
		Where("id = ? AND version = ?", id, expectedVersion).
		Updates(map[string]interface{}{
			"content":        content,
			"version":        gorm.Expr("version + 1"),
			"last_edited_by": editorID,
			"last_edited_at": now,
		})

	if result.Error != nil {
		return 0, fmt.Errorf("failed to save document content: %w", result.Error)
	}

	if result.RowsAffected == 0 {
		// Either the document is gone or someone committed first; reload to
		// tell the two apart.
		if _, err := r.GetByID(ctx, id); err != nil {
			return 0, err
		}
		return 0, fmt.Errorf("document %s at version %d: %w", id, expectedVersion, ErrVersionConflict)
	}

	return expectedVersion + 1, nil
}

// TryLock attempts to acquire the advisory lock for userID.
//
// The grant is a conditional UPDATE: it succeeds when the document is
// unlocked, already held by userID (idempotent re-acquire), or, when
// staleBefore is non-nil, held by a lease that predates staleBefore.
// Returns ErrLockHeld with no state change when another user holds a live
// lock.
func (r *DocumentRepositoryImpl) TryLock(ctx context.Context, id, userID string, staleBefore *time.Time) error {
	now := time.Now()

	query := r.db.WithContext(ctx).
		Model(&models.Document{}).
		Where("id = ?", id)

	if staleBefore != nil {
		query = query.Where("locked_by IS NULL OR locked_by = ? OR locked_at < ?", userID, *staleBefore)
	} else {
		query = query.Where("locked_by IS NULL OR locked_by = ?", userID)
	}

	result := query.Updates(map[string]interface{}{
		"locked_by": userID,
		"locked_at": now,
	})

	if result.Error != nil {
		return fmt.Errorf("failed to acquire lock: %w", result.Error)
	}

	if result.RowsAffected == 0 {
		if _, err := r.GetByID(ctx, id); err != nil {
			return err
		}
		return fmt.Errorf("document %s: %w", id, ErrLockHeld)
	}

	return nil
}

// Unlock releases the advisory lock. Only the current holder may release; a
// non-holder attempt returns ErrNotLockHolder and changes nothing.
func (r *DocumentRepositoryImpl) Unlock(ctx context.Context, id, userID string) error {
	result := r.db.WithContext(ctx).
		Model(&models.Document{}).
		Where("id = ? AND locked_by = ?", id, userID).
		Updates(map[string]interface{}{
			"locked_by": nil,
			"locked_at": nil,
		})

	if result.Error != nil {
		return fmt.Errorf("failed to release lock: %w", result.Error)
	}

	if result.RowsAffected == 0 {
		if _, err := r.GetByID(ctx, id); err != nil {
			return err
		}
		return fmt.Errorf("document %s: %w", id, ErrNotLockHolder)
	}

	return nil
}

// Update modifies document metadata (title, collaborators, visibility).
// Content goes through SaveContent only, so the version check can never be
// bypassed from the REST surface.
func (r *DocumentRepositoryImpl) Update(ctx context.Context, id string, update *models.DocumentUpdate) (*models.Document, error) {
	doc, err := r.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	updates := make(map[string]interface{})
	if update.Title != nil {
		updates["title"] = *update.Title
	}
	if update.Collaborators != nil {
		updates["collaborators"] = pq.StringArray(*update.Collaborators)
	}
	if update.IsPublic != nil {
		updates["is_public"] = *update.IsPublic
	}

	if len(updates) == 0 {
		return doc, nil
	}

	if err := r.db.WithContext(ctx).Model(doc).Updates(updates).Error; err != nil {
		return nil, fmt.Errorf("failed to update document: %w", err)
	}

	return doc, nil
}

// Delete performs a soft delete; GORM sets DeletedAt instead of removing the
// row, which keeps the change history queryable.
func (r *DocumentRepositoryImpl) Delete(ctx context.Context, id string) error {
	result := r.db.WithContext(ctx).Delete(&models.Document{}, "id = ?", id)

	if result.Error != nil {
		return fmt.Errorf("failed to delete document: %w", result.Error)
	}

	if result.RowsAffected == 0 {
		return fmt.Errorf("document %s: %w", id, ErrNotFound)
	}

	return nil
}
