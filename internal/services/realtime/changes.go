package realtime

import (
	"context"
	"errors"
	"fmt"

	"syncspace/internal/models"
	"syncspace/internal/repository"
)

// ChangeOutcome tags the result of a change proposal. The Synced(v)/conflict
// transition is explicit here so the protocol logic is testable without the
// transport.
type ChangeOutcome int

const (
	// ChangeCommitted: the save passed the version check; Version carries the
	// new document version.
	ChangeCommitted ChangeOutcome = iota
	// ChangeConflict: the caller's version was stale; Version and Content
	// carry the authoritative state for the caller to reconcile against.
	ChangeConflict
)

// ChangeResult is the tagged outcome of ChangeEngine.Propose.
type ChangeResult struct {
	Outcome ChangeOutcome
	Version int64
	Content string
}

// ChangeEngine runs the optimistic-concurrency protocol: a proposal commits
// only when the proposer proves it last saw the current version. There is no
// merging; a stale proposer gets the authoritative state back and decides
// what to do.
type ChangeEngine struct {
	store   DocumentStore
	history *HistoryWriter // optional; nil disables the change log
}

// NewChangeEngine creates a change engine over the given store.
func NewChangeEngine(store DocumentStore, history *HistoryWriter) *ChangeEngine {
	return &ChangeEngine{store: store, history: history}
}

// Propose applies a version-tagged content mutation.
//
// A nil version is rejected outright: an unversioned write would bypass
// conflict detection entirely. Storage failures and missing documents come
// back as errors (errors.Is repository.ErrNotFound for the latter) and leave
// the document untouched; the version is never incremented unless the save
// durably succeeded.
func (e *ChangeEngine) Propose(ctx context.Context, documentID, userID string, version *int64, content, delta string) (*ChangeResult, error) {
	if version == nil {
		return nil, fmt.Errorf("change proposal for document %s has no version", documentID)
	}

	newVersion, err := e.store.SaveContent(ctx, documentID, *version, content, userID)
	if err == nil {
		if e.history != nil {
			e.history.Submit(&models.ChangeRecord{
				DocumentID: documentID,
				UserID:     userID,
				Version:    newVersion,
				Delta:      delta,
			})
		}
		return &ChangeResult{Outcome: ChangeCommitted, Version: newVersion}, nil
	}

	if errors.Is(err, repository.ErrVersionConflict) {
		// Load the authoritative state for the conflict payload. The reload
		// may race yet another commit; whatever it sees is still a version
		// the caller must catch up to.
		doc, loadErr := e.store.GetByID(ctx, documentID)
		if loadErr != nil {
			return nil, loadErr
		}
		return &ChangeResult{
			Outcome: ChangeConflict,
			Version: doc.Version,
			Content: doc.Content,
		}, nil
	}

	return nil, err
}
