package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"syncspace/internal/models"
	"syncspace/internal/repository"
)

// fakeDocumentStore mimics the repository's conditional-update semantics in
// memory: the version compare and the lock grant are checked under one lock,
// exactly like the SQL WHERE clauses they stand in for.
type fakeDocumentStore struct {
	mu   sync.Mutex
	docs map[string]*models.Document
}

func newFakeDocumentStore(docs ...*models.Document) *fakeDocumentStore {
	store := &fakeDocumentStore{docs: make(map[string]*models.Document)}
	for _, doc := range docs {
		store.docs[doc.ID] = doc
	}
	return store
}

func (f *fakeDocumentStore) GetByID(ctx context.Context, id string) (*models.Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	doc, ok := f.docs[id]
	if !ok {
		return nil, fmt.Errorf("document %s: %w", id, repository.ErrNotFound)
	}
	copied := *doc
	return &copied, nil
}

func (f *fakeDocumentStore) SaveContent(ctx context.Context, id string, expectedVersion int64, content, editorID string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	doc, ok := f.docs[id]
	if !ok {
		return 0, fmt.Errorf("document %s: %w", id, repository.ErrNotFound)
	}
	if doc.Version != expectedVersion {
		return 0, fmt.Errorf("document %s at version %d: %w", id, expectedVersion, repository.ErrVersionConflict)
	}

	now := time.Now()
	doc.Content = content
	doc.Version++
	doc.LastEditedBy = editorID
	doc.LastEditedAt = &now
	return doc.Version, nil
}

func (f *fakeDocumentStore) TryLock(ctx context.Context, id, userID string, staleBefore *time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	doc, ok := f.docs[id]
	if !ok {
		return fmt.Errorf("document %s: %w", id, repository.ErrNotFound)
	}

	free := doc.LockedBy == nil || *doc.LockedBy == userID
	if !free && staleBefore != nil && doc.LockedAt != nil && doc.LockedAt.Before(*staleBefore) {
		free = true
	}
	if !free {
		return fmt.Errorf("document %s: %w", id, repository.ErrLockHeld)
	}

	now := time.Now()
	doc.LockedBy = &userID
	doc.LockedAt = &now
	return nil
}

func (f *fakeDocumentStore) Unlock(ctx context.Context, id, userID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	doc, ok := f.docs[id]
	if !ok {
		return fmt.Errorf("document %s: %w", id, repository.ErrNotFound)
	}
	if doc.LockedBy == nil || *doc.LockedBy != userID {
		return fmt.Errorf("document %s: %w", id, repository.ErrNotLockHolder)
	}

	doc.LockedBy = nil
	doc.LockedAt = nil
	return nil
}

// setLock seeds a lock state directly, for arranging test scenarios.
func (f *fakeDocumentStore) setLock(id, userID string, at time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()

	doc := f.docs[id]
	doc.LockedBy = &userID
	doc.LockedAt = &at
}

type fakeMembershipStore struct {
	workspaces map[string][]string // workspaceID -> member ids
	projects   map[string][]string
}

func (f *fakeMembershipStore) IsMember(ctx context.Context, workspaceID, userID string) (bool, error) {
	members, ok := f.workspaces[workspaceID]
	if !ok {
		return false, fmt.Errorf("workspace %s: %w", workspaceID, repository.ErrNotFound)
	}
	for _, m := range members {
		if m == userID {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeMembershipStore) IsProjectMember(ctx context.Context, projectID, userID string) (bool, error) {
	members, ok := f.projects[projectID]
	if !ok {
		return false, fmt.Errorf("project %s: %w", projectID, repository.ErrNotFound)
	}
	for _, m := range members {
		if m == userID {
			return true, nil
		}
	}
	return false, nil
}

type fakeUserStore struct {
	mu      sync.Mutex
	users   map[string]*models.User
	touched []string
}

func newFakeUserStore(users ...*models.User) *fakeUserStore {
	store := &fakeUserStore{users: make(map[string]*models.User)}
	for _, u := range users {
		store.users[u.ID] = u
	}
	return store
}

func (f *fakeUserStore) GetByID(ctx context.Context, id string) (*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	user, ok := f.users[id]
	if !ok {
		return nil, fmt.Errorf("user %s: %w", id, repository.ErrNotFound)
	}
	return user, nil
}

func (f *fakeUserStore) TouchLastActive(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.touched = append(f.touched, id)
	return nil
}

func (f *fakeUserStore) touchedIDs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()

	return append([]string(nil), f.touched...)
}

type fakeChangeLog struct {
	mu      sync.Mutex
	records []*models.ChangeRecord
}

func (f *fakeChangeLog) Append(ctx context.Context, rec *models.ChangeRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.records = append(f.records, rec)
	return nil
}

// Test helpers

func newTestClient(connID, userID, name string, s *Service) *Client {
	return &Client{
		ID:      connID,
		User:    models.UserInfo{ID: userID, Name: name},
		Send:    make(chan []byte, 64),
		service: s,
		rooms:   make(map[string]bool),
	}
}

// waitEvent blocks until the client receives a frame and decodes it.
func waitEvent(t *testing.T, c *Client) Envelope {
	t.Helper()

	select {
	case frame := <-c.Send:
		var env Envelope
		if err := json.Unmarshal(frame, &env); err != nil {
			t.Fatalf("malformed frame: %v", err)
		}
		return env
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
		return Envelope{}
	}
}

// waitEventOfType discards frames until one of the wanted type arrives.
func waitEventOfType(t *testing.T, c *Client, want EventType) Envelope {
	t.Helper()

	deadline := time.After(time.Second)
	for {
		select {
		case frame := <-c.Send:
			var env Envelope
			if err := json.Unmarshal(frame, &env); err != nil {
				t.Fatalf("malformed frame: %v", err)
			}
			if env.Type == want {
				return env
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %s", want)
			return Envelope{}
		}
	}
}

func decodePayload(t *testing.T, env Envelope, v interface{}) {
	t.Helper()

	if err := json.Unmarshal(env.Payload, v); err != nil {
		t.Fatalf("failed to decode %s payload: %v", env.Type, err)
	}
}

func mustFrame(t *testing.T, eventType EventType, payload interface{}) []byte {
	t.Helper()

	frame, err := encodeEvent(eventType, payload)
	if err != nil {
		t.Fatalf("failed to encode %s: %v", eventType, err)
	}
	return frame
}

func int64Ptr(v int64) *int64 { return &v }

func userInfo(id string) models.UserInfo {
	return models.UserInfo{ID: id, Name: id}
}

// recvFrame returns the next raw frame on the client's send queue.
func recvFrame(t *testing.T, c *Client) []byte {
	t.Helper()

	select {
	case frame := <-c.Send:
		return frame
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for frame")
		return nil
	}
}

// expectNoFrame asserts nothing is delivered for a short window.
func expectNoFrame(t *testing.T, c *Client) {
	t.Helper()

	select {
	case frame := <-c.Send:
		t.Fatalf("unexpected frame delivered: %s", frame)
	case <-time.After(100 * time.Millisecond):
	}
}
