package realtime

import (
	"context"
	"testing"

	"syncspace/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newServiceFixture(t *testing.T, docs ...*models.Document) (*Service, *fakeDocumentStore, *fakeUserStore) {
	t.Helper()

	hub := NewHub()
	hub.Start()
	t.Cleanup(hub.Shutdown)

	store := newFakeDocumentStore(docs...)
	memberships := &fakeMembershipStore{
		workspaces: map[string][]string{"ws-1": {"u1", "u2"}},
		projects:   map[string][]string{},
	}
	users := newFakeUserStore(
		&models.User{ID: "u1", Name: "Ada", Email: "ada@example.com"},
		&models.User{ID: "u2", Name: "Grace", Email: "grace@example.com"},
	)

	engine := NewChangeEngine(store, nil)
	locks := NewLockArbitrator(store, 0)

	return NewService(hub, store, memberships, users, engine, locks), store, users
}

func connect(s *Service, connID, userID, name string) *Client {
	c := newTestClient(connID, userID, name, s)
	s.HandleConnect(c)
	return c
}

// The two-editor flow: A commits at the right version, B proposes against a
// stale one and gets the authoritative state back.
func TestServiceCollaborativeEditScenario(t *testing.T) {
	s, store, _ := newServiceFixture(t, &models.Document{
		ID:            "doc-1",
		Content:       "hello",
		Version:       1,
		OwnerID:       "u1",
		Collaborators: []string{"u2"},
	})
	ctx := context.Background()

	a := connect(s, "conn-a", "u1", "Ada")
	b := connect(s, "conn-b", "u2", "Grace")

	s.Dispatch(ctx, a, mustFrame(t, EventJoinDocument, JoinDocumentPayload{DocumentID: "doc-1"}))
	joined := waitEventOfType(t, a, EventDocumentJoined)
	var joinedPayload DocumentJoinedPayload
	decodePayload(t, joined, &joinedPayload)
	assert.Equal(t, "hello", joinedPayload.Content)
	assert.Equal(t, int64(1), joinedPayload.Version)
	assert.Len(t, joinedPayload.ActiveEditors, 1)

	s.Dispatch(ctx, b, mustFrame(t, EventJoinDocument, JoinDocumentPayload{DocumentID: "doc-1"}))
	joined = waitEventOfType(t, b, EventDocumentJoined)
	decodePayload(t, joined, &joinedPayload)
	assert.Len(t, joinedPayload.ActiveEditors, 2)
	waitEventOfType(t, a, EventUserJoined)

	// A proposes at the current version and commits.
	s.Dispatch(ctx, a, mustFrame(t, EventProposeChange, ProposeChangePayload{
		DocumentID: "doc-1",
		Content:    "hello world",
		Version:    int64Ptr(1),
	}))

	ack := waitEventOfType(t, a, EventChangeAck)
	var ackPayload ChangeAckPayload
	decodePayload(t, ack, &ackPayload)
	assert.Equal(t, int64(2), ackPayload.Version)

	changed := waitEventOfType(t, b, EventContentChanged)
	var changedPayload ContentChangedPayload
	decodePayload(t, changed, &changedPayload)
	assert.Equal(t, "hello world", changedPayload.Content)
	assert.Equal(t, int64(2), changedPayload.Version)
	assert.Equal(t, "u1", changedPayload.UserID)

	// B proposes against the version it no longer holds.
	s.Dispatch(ctx, b, mustFrame(t, EventProposeChange, ProposeChangePayload{
		DocumentID: "doc-1",
		Content:    "hello!!",
		Version:    int64Ptr(1),
	}))

	conflict := waitEventOfType(t, b, EventVersionConflict)
	var conflictPayload VersionConflictPayload
	decodePayload(t, conflict, &conflictPayload)
	assert.Equal(t, int64(2), conflictPayload.CurrentVersion)
	assert.Equal(t, "hello world", conflictPayload.ServerContent)

	// The stale proposal reached no peer and changed nothing.
	expectNoFrame(t, a)
	doc, err := store.GetByID(ctx, "doc-1")
	require.NoError(t, err)
	assert.Equal(t, "hello world", doc.Content)
	assert.Equal(t, int64(2), doc.Version)
}

func TestServiceJoinMissingDocument(t *testing.T) {
	s, _, _ := newServiceFixture(t)

	c := connect(s, "conn-a", "u1", "Ada")
	s.Dispatch(context.Background(), c, mustFrame(t, EventJoinDocument, JoinDocumentPayload{DocumentID: "doc-9"}))

	errEvent := waitEventOfType(t, c, EventDocumentError)
	var payload DocumentErrorPayload
	decodePayload(t, errEvent, &payload)
	assert.Equal(t, "document not found", payload.Message)
}

func TestServiceJoinDocumentAccessDenied(t *testing.T) {
	s, _, _ := newServiceFixture(t, &models.Document{
		ID:      "doc-1",
		OwnerID: "u1",
		Version: 1,
	})

	c := connect(s, "conn-b", "u2", "Grace")
	s.Dispatch(context.Background(), c, mustFrame(t, EventJoinDocument, JoinDocumentPayload{DocumentID: "doc-1"}))

	errEvent := waitEventOfType(t, c, EventDocumentError)
	var payload DocumentErrorPayload
	decodePayload(t, errEvent, &payload)
	assert.Equal(t, "access denied", payload.Message)
	assert.False(t, s.sessions.HasSession("doc-1"))
}

func TestServiceProposeWithoutVersion(t *testing.T) {
	s, store, _ := newServiceFixture(t, &models.Document{
		ID:      "doc-1",
		Content: "x",
		Version: 1,
		OwnerID: "u1",
	})

	c := connect(s, "conn-a", "u1", "Ada")
	s.Dispatch(context.Background(), c, mustFrame(t, EventProposeChange, ProposeChangePayload{
		DocumentID: "doc-1",
		Content:    "y",
	}))

	errEvent := waitEventOfType(t, c, EventDocumentError)
	var payload DocumentErrorPayload
	decodePayload(t, errEvent, &payload)
	assert.Equal(t, "version is required", payload.Message)

	doc, _ := store.GetByID(context.Background(), "doc-1")
	assert.Equal(t, "x", doc.Content)
	assert.Equal(t, int64(1), doc.Version)
}

func TestServiceLockFlow(t *testing.T) {
	s, _, _ := newServiceFixture(t, &models.Document{
		ID:            "doc-1",
		Version:       1,
		OwnerID:       "u1",
		Collaborators: []string{"u2"},
	})
	ctx := context.Background()

	a := connect(s, "conn-a", "u1", "Ada")
	b := connect(s, "conn-b", "u2", "Grace")
	s.Dispatch(ctx, a, mustFrame(t, EventJoinDocument, JoinDocumentPayload{DocumentID: "doc-1"}))
	s.Dispatch(ctx, b, mustFrame(t, EventJoinDocument, JoinDocumentPayload{DocumentID: "doc-1"}))
	waitEventOfType(t, a, EventDocumentJoined)
	waitEventOfType(t, b, EventDocumentJoined)

	// A takes the lock; B is notified, then denied with the holder's id.
	s.Dispatch(ctx, a, mustFrame(t, EventAcquireLock, LockPayload{DocumentID: "doc-1"}))
	waitEventOfType(t, a, EventLockGranted)
	waitEventOfType(t, b, EventLockNotify)

	s.Dispatch(ctx, b, mustFrame(t, EventAcquireLock, LockPayload{DocumentID: "doc-1"}))
	denied := waitEventOfType(t, b, EventLockDenied)
	var deniedPayload LockDeniedPayload
	decodePayload(t, denied, &deniedPayload)
	assert.Equal(t, "u1", deniedPayload.HolderID)

	// Non-holder release fails with an authorization error.
	s.Dispatch(ctx, b, mustFrame(t, EventReleaseLock, LockPayload{DocumentID: "doc-1"}))
	errEvent := waitEventOfType(t, b, EventDocumentError)
	var errPayload DocumentErrorPayload
	decodePayload(t, errEvent, &errPayload)
	assert.Equal(t, "only the lock holder may release", errPayload.Message)

	// Holder release clears it and notifies the room.
	s.Dispatch(ctx, a, mustFrame(t, EventReleaseLock, LockPayload{DocumentID: "doc-1"}))
	waitEventOfType(t, a, EventLockReleased)
	waitEventOfType(t, b, EventUnlockNotify)
}

func TestServiceCursorBroadcast(t *testing.T) {
	s, _, _ := newServiceFixture(t, &models.Document{
		ID:            "doc-1",
		Version:       1,
		OwnerID:       "u1",
		Collaborators: []string{"u2"},
	})
	ctx := context.Background()

	a := connect(s, "conn-a", "u1", "Ada")
	b := connect(s, "conn-b", "u2", "Grace")
	s.Dispatch(ctx, a, mustFrame(t, EventJoinDocument, JoinDocumentPayload{DocumentID: "doc-1"}))
	s.Dispatch(ctx, b, mustFrame(t, EventJoinDocument, JoinDocumentPayload{DocumentID: "doc-1"}))
	waitEventOfType(t, a, EventDocumentJoined)
	waitEventOfType(t, b, EventDocumentJoined)

	s.Dispatch(ctx, a, mustFrame(t, EventCursorUpdate, CursorUpdatePayload{
		DocumentID: "doc-1",
		Cursor:     models.CursorPosition{Line: 4, Column: 2},
	}))

	update := waitEventOfType(t, b, EventCursorUpdate)
	var payload CursorBroadcastPayload
	decodePayload(t, update, &payload)
	assert.Equal(t, "u1", payload.UserID)
	assert.Equal(t, 4, payload.Cursor.Line)
}

func TestServiceDisconnectCleanup(t *testing.T) {
	s, _, users := newServiceFixture(t, &models.Document{
		ID:            "doc-1",
		Version:       1,
		OwnerID:       "u1",
		Collaborators: []string{"u2"},
	})
	ctx := context.Background()

	a := connect(s, "conn-a", "u1", "Ada")
	b := connect(s, "conn-b", "u2", "Grace")
	s.Dispatch(ctx, a, mustFrame(t, EventJoinDocument, JoinDocumentPayload{DocumentID: "doc-1"}))
	s.Dispatch(ctx, b, mustFrame(t, EventJoinDocument, JoinDocumentPayload{DocumentID: "doc-1"}))
	waitEventOfType(t, a, EventDocumentJoined)
	waitEventOfType(t, b, EventDocumentJoined)

	// A drops without a leave event: B still hears user-left and the
	// presence transition, and last-active is stamped.
	s.HandleDisconnect(a)

	left := waitEventOfType(t, b, EventUserLeft)
	var leftPayload UserLeftPayload
	decodePayload(t, left, &leftPayload)
	assert.Equal(t, "u1", leftPayload.UserID)

	presence := waitEventOfType(t, b, EventPresenceChanged)
	var presencePayload PresenceChangedPayload
	decodePayload(t, presence, &presencePayload)
	assert.Equal(t, "u1", presencePayload.UserID)
	assert.False(t, presencePayload.Online)

	assert.Empty(t, s.sessions.DocumentsOf("u1"))
	assert.Contains(t, users.touchedIDs(), "u1")
}

func TestServicePresenceMultiTab(t *testing.T) {
	s, _, _ := newServiceFixture(t)

	observer := connect(s, "conn-o", "u2", "Grace")

	tab1 := connect(s, "conn-1", "u1", "Ada")
	online := waitEventOfType(t, observer, EventPresenceChanged)
	var payload PresenceChangedPayload
	decodePayload(t, online, &payload)
	assert.True(t, payload.Online)

	// The second tab is silent both on connect and on its own disconnect.
	tab2 := connect(s, "conn-2", "u1", "Ada")
	expectNoFrame(t, observer)

	s.HandleDisconnect(tab2)
	expectNoFrame(t, observer)

	// Only the last tab's close reports offline.
	s.HandleDisconnect(tab1)
	offline := waitEventOfType(t, observer, EventPresenceChanged)
	decodePayload(t, offline, &payload)
	assert.Equal(t, "u1", payload.UserID)
	assert.False(t, payload.Online)
}

func TestServiceSecondTabKeepsSessionAlive(t *testing.T) {
	s, _, _ := newServiceFixture(t, &models.Document{
		ID:            "doc-1",
		Version:       1,
		OwnerID:       "u1",
		Collaborators: []string{"u2"},
	})
	ctx := context.Background()

	tab1 := connect(s, "conn-1", "u1", "Ada")
	tab2 := connect(s, "conn-2", "u1", "Ada")
	peer := connect(s, "conn-p", "u2", "Grace")

	s.Dispatch(ctx, tab1, mustFrame(t, EventJoinDocument, JoinDocumentPayload{DocumentID: "doc-1"}))
	s.Dispatch(ctx, tab2, mustFrame(t, EventJoinDocument, JoinDocumentPayload{DocumentID: "doc-1"}))
	s.Dispatch(ctx, peer, mustFrame(t, EventJoinDocument, JoinDocumentPayload{DocumentID: "doc-1"}))
	waitEventOfType(t, tab1, EventDocumentJoined)
	waitEventOfType(t, tab2, EventDocumentJoined)
	waitEventOfType(t, peer, EventDocumentJoined)

	// Closing one of Ada's tabs must not tell peers she left.
	s.HandleDisconnect(tab1)
	expectNoFrame(t, peer)
	assert.ElementsMatch(t, []string{"doc-1"}, s.sessions.DocumentsOf("u1"))

	s.HandleDisconnect(tab2)
	left := waitEventOfType(t, peer, EventUserLeft)
	var payload UserLeftPayload
	decodePayload(t, left, &payload)
	assert.Equal(t, "u1", payload.UserID)
	assert.Empty(t, s.sessions.DocumentsOf("u1"))
}

func TestServiceUnknownEventRejected(t *testing.T) {
	s, _, _ := newServiceFixture(t)

	c := connect(s, "conn-a", "u1", "Ada")
	s.Dispatch(context.Background(), c, []byte(`{"type":"reboot-server"}`))

	errEvent := waitEventOfType(t, c, EventDocumentError)
	var payload DocumentErrorPayload
	decodePayload(t, errEvent, &payload)
	assert.Contains(t, payload.Message, "unknown event type")
}

func TestServiceJoinWorkspaceRoom(t *testing.T) {
	s, _, _ := newServiceFixture(t)
	ctx := context.Background()

	a := connect(s, "conn-a", "u1", "Ada")
	b := connect(s, "conn-b", "u2", "Grace")
	outsider := connect(s, "conn-c", "u3", "Eve")

	s.Dispatch(ctx, a, mustFrame(t, EventJoinRoom, JoinRoomPayload{RoomID: "ws-1", RoomType: RoomWorkspace}))
	waitEventOfType(t, a, EventRoomJoined)

	s.Dispatch(ctx, b, mustFrame(t, EventJoinRoom, JoinRoomPayload{RoomID: "ws-1", RoomType: RoomWorkspace}))
	waitEventOfType(t, b, EventRoomJoined)
	peerJoined := waitEventOfType(t, a, EventPeerJoined)
	var peerPayload PeerPayload
	decodePayload(t, peerJoined, &peerPayload)
	assert.Equal(t, "u2", peerPayload.User.ID)

	s.Dispatch(ctx, outsider, mustFrame(t, EventJoinRoom, JoinRoomPayload{RoomID: "ws-1", RoomType: RoomWorkspace}))
	denied := waitEventOfType(t, outsider, EventAccessDenied)
	var deniedPayload AccessDeniedPayload
	decodePayload(t, denied, &deniedPayload)
	assert.Equal(t, "ws-1", deniedPayload.RoomID)
}
