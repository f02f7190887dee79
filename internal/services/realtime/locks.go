package realtime

import (
	"context"
	"errors"
	"time"

	"syncspace/internal/repository"
)

// LockResult reports the outcome of an acquire attempt. When Granted is
// false, HolderID identifies who holds the lock so the client can show
// "locked by X".
type LockResult struct {
	Granted  bool
	HolderID string
}

// LockArbitrator grants and releases the per-document advisory lock. The
// lock is cooperative: it does not prevent a non-holder from proposing
// changes, it only signals editing intent.
//
// With a non-zero TTL the lock is a lease: a holder that vanished (crashed
// tab, dead network) loses the lock to the next acquirer once the lease is
// stale. TTL zero preserves explicit-release-only semantics.
type LockArbitrator struct {
	store DocumentStore
	ttl   time.Duration
}

// NewLockArbitrator creates an arbitrator; ttl 0 disables lease expiry.
func NewLockArbitrator(store DocumentStore, ttl time.Duration) *LockArbitrator {
	return &LockArbitrator{store: store, ttl: ttl}
}

// Acquire attempts to take the lock for userID. Re-acquiring a lock already
// held by the same user succeeds and refreshes the lease timestamp. A denial
// is a normal outcome, not an error.
func (a *LockArbitrator) Acquire(ctx context.Context, documentID, userID string) (*LockResult, error) {
	var staleBefore *time.Time
	if a.ttl > 0 {
		cutoff := time.Now().Add(-a.ttl)
		staleBefore = &cutoff
	}

	err := a.store.TryLock(ctx, documentID, userID, staleBefore)
	if err == nil {
		return &LockResult{Granted: true, HolderID: userID}, nil
	}

	if errors.Is(err, repository.ErrLockHeld) {
		doc, loadErr := a.store.GetByID(ctx, documentID)
		if loadErr != nil {
			return nil, loadErr
		}
		holder := ""
		if doc.LockedBy != nil {
			holder = *doc.LockedBy
		}
		return &LockResult{Granted: false, HolderID: holder}, nil
	}

	return nil, err
}

// Release clears the lock. Only the holder may release; anyone else gets
// repository.ErrNotLockHolder and the lock is untouched.
func (a *LockArbitrator) Release(ctx context.Context, documentID, userID string) error {
	return a.store.Unlock(ctx, documentID, userID)
}
