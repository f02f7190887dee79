package realtime

import (
	"context"
	"fmt"
)

// RoomKind scopes a broadcast room to the entity it mirrors.
type RoomKind string

const (
	RoomWorkspace RoomKind = "workspace"
	RoomProject   RoomKind = "project"
	RoomDocument  RoomKind = "document"
)

// RoomName builds the hub key for an entity's room, e.g. "document:abc".
func RoomName(kind RoomKind, id string) string {
	return fmt.Sprintf("%s:%s", kind, id)
}

// RoomManager gatekeeps room joins: a connection enters a room only when its
// user appears in the backing entity's membership list. The check runs once,
// at join time; events inside the room are trusted afterwards for the life
// of the connection (trust-on-join).
type RoomManager struct {
	hub         *Hub
	memberships MembershipStore
	documents   DocumentStore
}

// NewRoomManager creates a room manager over the given stores.
func NewRoomManager(hub *Hub, memberships MembershipStore, documents DocumentStore) *RoomManager {
	return &RoomManager{hub: hub, memberships: memberships, documents: documents}
}

// Join authorizes and performs a room join. Returns ErrAccessDenied when the
// user is not a member of the backing entity, repository.ErrNotFound (wrapped)
// when the entity is gone, and adds the connection to the broadcast set only
// on success.
func (m *RoomManager) Join(ctx context.Context, c *Client, kind RoomKind, id string) error {
	allowed, err := m.authorize(ctx, c.User.ID, kind, id)
	if err != nil {
		return err
	}
	if !allowed {
		return fmt.Errorf("user %s cannot join %s %s: %w", c.User.ID, kind, id, ErrAccessDenied)
	}

	m.hub.JoinRoom(c, RoomName(kind, id))
	return nil
}

// Leave removes the connection from the room. No authorization: leaving is
// always permitted.
func (m *RoomManager) Leave(c *Client, kind RoomKind, id string) {
	m.hub.LeaveRoom(c, RoomName(kind, id))
}

func (m *RoomManager) authorize(ctx context.Context, userID string, kind RoomKind, id string) (bool, error) {
	switch kind {
	case RoomWorkspace:
		return m.memberships.IsMember(ctx, id, userID)
	case RoomProject:
		return m.memberships.IsProjectMember(ctx, id, userID)
	case RoomDocument:
		doc, err := m.documents.GetByID(ctx, id)
		if err != nil {
			return false, err
		}
		return doc.CanBeEditedBy(userID), nil
	default:
		return false, fmt.Errorf("unknown room kind %q", kind)
	}
}
