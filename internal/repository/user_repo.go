package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"syncspace/internal/models"

	"gorm.io/gorm"
)

// UserRepositoryImpl reads users for display metadata at handshake time and
// stamps last_active_at when a user drops fully offline.
type UserRepositoryImpl struct {
	db *gorm.DB
}

// NewUserRepository creates a new user repository
func NewUserRepository(db *gorm.DB) *UserRepositoryImpl {
	return &UserRepositoryImpl{db: db}
}

// GetByID retrieves a user by its KSUID.
func (r *UserRepositoryImpl) GetByID(ctx context.Context, id string) (*models.User, error) {
	var user models.User

	err := r.db.WithContext(ctx).First(&user, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("user %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	return &user, nil
}

// TouchLastActive records the moment the user's last connection closed.
// Best-effort: presence bookkeeping never fails a disconnect.
func (r *UserRepositoryImpl) TouchLastActive(ctx context.Context, id string) error {
	err := r.db.WithContext(ctx).
		Model(&models.User{}).
		Where("id = ?", id).
		Update("last_active_at", time.Now()).Error
	if err != nil {
		return fmt.Errorf("failed to update last_active_at: %w", err)
	}
	return nil
}
