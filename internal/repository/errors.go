package repository

import "errors"

// Sentinel errors returned by repositories. Callers branch with errors.Is so
// protocol outcomes (conflict, lock denial) stay distinguishable from plain
// storage failures.
var (
	ErrNotFound        = errors.New("record not found")
	ErrVersionConflict = errors.New("version conflict")
	ErrLockHeld        = errors.New("lock held by another user")
	ErrNotLockHolder   = errors.New("lock not held by caller")
)
