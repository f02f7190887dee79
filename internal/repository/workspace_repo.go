package repository

import (
	"context"
	"errors"
	"fmt"

	"syncspace/internal/models"

	"gorm.io/gorm"
)

// WorkspaceRepositoryImpl answers the membership questions the realtime layer
// asks at room-join time, plus the thin workspace CRUD the REST surface needs.
type WorkspaceRepositoryImpl struct {
	db *gorm.DB
}

// NewWorkspaceRepository creates a new workspace repository
func NewWorkspaceRepository(db *gorm.DB) *WorkspaceRepositoryImpl {
	return &WorkspaceRepositoryImpl{db: db}
}

// Create inserts a workspace with the owner as its first member.
func (r *WorkspaceRepositoryImpl) Create(ctx context.Context, ws *models.WorkspaceCreate) (*models.Workspace, error) {
	members := ws.Members
	found := false
	for _, m := range members {
		if m == ws.OwnerID {
			found = true
			break
		}
	}
	if !found {
		members = append(members, ws.OwnerID)
	}

	workspace := &models.Workspace{
		Name:    ws.Name,
		OwnerID: ws.OwnerID,
		Members: members,
	}

	if err := r.db.WithContext(ctx).Create(workspace).Error; err != nil {
		return nil, fmt.Errorf("failed to create workspace: %w", err)
	}

	return workspace, nil
}

// GetByID retrieves a workspace by its KSUID.
func (r *WorkspaceRepositoryImpl) GetByID(ctx context.Context, id string) (*models.Workspace, error) {
	var ws models.Workspace

	err := r.db.WithContext(ctx).First(&ws, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("workspace %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get workspace: %w", err)
	}

	return &ws, nil
}

// AddMember appends a user to the workspace's member list (idempotent).
func (r *WorkspaceRepositoryImpl) AddMember(ctx context.Context, id, userID string) (*models.Workspace, error) {
	ws, err := r.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if ws.HasMember(userID) {
		return ws, nil
	}

	ws.Members = append(ws.Members, userID)
	if err := r.db.WithContext(ctx).Model(ws).Update("members", ws.Members).Error; err != nil {
		return nil, fmt.Errorf("failed to add workspace member: %w", err)
	}

	return ws, nil
}

// IsMember reports whether userID belongs to the workspace (owner included).
func (r *WorkspaceRepositoryImpl) IsMember(ctx context.Context, id, userID string) (bool, error) {
	ws, err := r.GetByID(ctx, id)
	if err != nil {
		return false, err
	}
	return ws.HasMember(userID), nil
}

// IsProjectMember reports whether userID belongs to the project's member list.
func (r *WorkspaceRepositoryImpl) IsProjectMember(ctx context.Context, projectID, userID string) (bool, error) {
	var project models.Project

	err := r.db.WithContext(ctx).First(&project, "id = ?", projectID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, fmt.Errorf("project %s: %w", projectID, ErrNotFound)
	}
	if err != nil {
		return false, fmt.Errorf("failed to get project: %w", err)
	}

	return project.HasMember(userID), nil
}
