package realtime

import (
	"sync"
	"time"

	"syncspace/internal/models"
)

// SessionTracker holds the ephemeral editing state of every open document:
// which users have it open and where their cursors sit. A document's entry is
// created lazily on first join and removed, not merely emptied, when the
// last editor leaves, so the map never accumulates dead documents.
type SessionTracker struct {
	mu       sync.RWMutex
	sessions map[string]map[string]*models.EditorState // documentID -> userID -> state
}

// NewSessionTracker creates an empty tracker.
func NewSessionTracker() *SessionTracker {
	return &SessionTracker{
		sessions: make(map[string]map[string]*models.EditorState),
	}
}

// Join inserts (or refreshes) the user's entry in the document's session.
// Returns true when the user was already in the session, which happens when
// a second tab of the same user joins the same document.
func (t *SessionTracker) Join(documentID string, user models.UserInfo) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	session := t.sessions[documentID]
	if session == nil {
		session = make(map[string]*models.EditorState)
		t.sessions[documentID] = session
	}

	_, already := session[user.ID]
	if !already {
		session[user.ID] = &models.EditorState{
			User:     user,
			JoinedAt: time.Now(),
		}
	}
	return already
}

// Leave removes the user's entry. Returns whether the user was present and
// whether they were the last editor (in which case the session itself is
// gone).
func (t *SessionTracker) Leave(documentID, userID string) (present, last bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	session, ok := t.sessions[documentID]
	if !ok {
		return false, false
	}
	if _, ok := session[userID]; !ok {
		return false, false
	}

	delete(session, userID)
	if len(session) == 0 {
		delete(t.sessions, documentID)
		return true, true
	}
	return true, false
}

// UpdateCursor caches the user's cursor position. Returns false when the user
// has no session entry for the document.
func (t *SessionTracker) UpdateCursor(documentID, userID string, cursor models.CursorPosition) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	state, ok := t.sessions[documentID][userID]
	if !ok {
		return false
	}
	state.Cursor = &cursor
	return true
}

// UpdateSelection caches the user's selection range. Returns false when the
// user has no session entry for the document.
func (t *SessionTracker) UpdateSelection(documentID, userID string, selection models.SelectionRange) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	state, ok := t.sessions[documentID][userID]
	if !ok {
		return false
	}
	state.Selection = &selection
	return true
}

// ActiveEditors returns a snapshot of the document's current editors.
func (t *SessionTracker) ActiveEditors(documentID string) []*models.EditorState {
	t.mu.RLock()
	defer t.mu.RUnlock()

	session := t.sessions[documentID]
	editors := make([]*models.EditorState, 0, len(session))
	for _, state := range session {
		copied := *state
		editors = append(editors, &copied)
	}
	return editors
}

// HasSession reports whether any editor currently has the document open.
func (t *SessionTracker) HasSession(documentID string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()

	_, ok := t.sessions[documentID]
	return ok
}

// DocumentsOf returns every document the user holds a session entry in. Used
// on disconnect to run the normal leave path for each, since an ungraceful
// close sends no leave events.
func (t *SessionTracker) DocumentsOf(userID string) []string {
	t.mu.RLock()
	defer t.mu.RUnlock()

	var docs []string
	for documentID, session := range t.sessions {
		if _, ok := session[userID]; ok {
			docs = append(docs, documentID)
		}
	}
	return docs
}
