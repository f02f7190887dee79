package realtime

import (
	"context"
	"errors"
	"time"

	"syncspace/internal/models"
)

// ErrAccessDenied is returned by room joins when the caller is not in the
// target's membership list. The connection stays open; only the join fails.
var ErrAccessDenied = errors.New("access denied")

// Consumer-driven interfaces: this package declares exactly what it needs
// from storage, and the repository package's concrete types satisfy them.
// Tests substitute in-memory fakes.

// DocumentStore is the persistence contract the realtime core depends on.
// SaveContent, TryLock and Unlock must be atomic at the storage layer: the
// version compare-and-increment and the lock grant are conditional updates,
// never read-then-write sequences in application memory.
type DocumentStore interface {
	GetByID(ctx context.Context, id string) (*models.Document, error)
	SaveContent(ctx context.Context, id string, expectedVersion int64, content, editorID string) (int64, error)
	TryLock(ctx context.Context, id, userID string, staleBefore *time.Time) error
	Unlock(ctx context.Context, id, userID string) error
}

// MembershipStore answers room-access questions at join time.
type MembershipStore interface {
	IsMember(ctx context.Context, workspaceID, userID string) (bool, error)
	IsProjectMember(ctx context.Context, projectID, userID string) (bool, error)
}

// UserStore resolves display metadata at handshake time and records the
// moment a user drops fully offline.
type UserStore interface {
	GetByID(ctx context.Context, id string) (*models.User, error)
	TouchLastActive(ctx context.Context, id string) error
}

// ChangeLog receives one record per accepted mutation.
type ChangeLog interface {
	Append(ctx context.Context, rec *models.ChangeRecord) error
}
