package realtime

import (
	"encoding/json"
	"fmt"

	"syncspace/internal/models"
)

// EventType is the closed set of message types on the realtime channel.
// Handlers are dispatched through an EventType-keyed table, so an unknown
// type is rejected in one place instead of falling through string matching.
type EventType string

// Client → server events.
const (
	EventJoinDocument    EventType = "join-document"
	EventLeaveDocument   EventType = "leave-document"
	EventProposeChange   EventType = "propose-change"
	EventCursorUpdate    EventType = "cursor-update"
	EventSelectionUpdate EventType = "selection-update"
	EventAcquireLock     EventType = "acquire-lock"
	EventReleaseLock     EventType = "release-lock"
	EventJoinRoom        EventType = "join-room"
	EventLeaveRoom       EventType = "leave-room"
)

// Server → client events.
const (
	EventDocumentJoined  EventType = "document-joined"
	EventUserJoined      EventType = "user-joined"
	EventUserLeft        EventType = "user-left"
	EventChangeAck       EventType = "change-ack"
	EventContentChanged  EventType = "content-changed"
	EventVersionConflict EventType = "version-conflict"
	EventLockGranted     EventType = "lock-granted"
	EventLockDenied      EventType = "lock-denied"
	EventLockNotify      EventType = "lock-notify"
	EventLockReleased    EventType = "lock-released"
	EventUnlockNotify    EventType = "unlock-notify"
	EventRoomJoined      EventType = "room-joined"
	EventPeerJoined      EventType = "peer-joined"
	EventPeerLeft        EventType = "peer-left"
	EventAccessDenied    EventType = "access-denied"
	EventDocumentError   EventType = "document-error"
	EventPresenceChanged EventType = "presence-changed"
)

// Envelope is the wire frame: a type tag plus the type's payload.
type Envelope struct {
	Type    EventType       `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Client → server payloads.

type JoinDocumentPayload struct {
	DocumentID string `json:"document_id"`
}

type LeaveDocumentPayload struct {
	DocumentID string `json:"document_id"`
}

// ProposeChangePayload carries a proposed content mutation. Version is the
// version the client last saw; it is mandatory, and a proposal without it is
// rejected rather than applied unconditionally.
type ProposeChangePayload struct {
	DocumentID string `json:"document_id"`
	Content    string `json:"content"`
	Delta      string `json:"delta,omitempty"`
	Version    *int64 `json:"version"`
}

type CursorUpdatePayload struct {
	DocumentID string                `json:"document_id"`
	Cursor     models.CursorPosition `json:"cursor"`
}

type SelectionUpdatePayload struct {
	DocumentID string                `json:"document_id"`
	Selection  models.SelectionRange `json:"selection"`
}

type LockPayload struct {
	DocumentID string `json:"document_id"`
}

type JoinRoomPayload struct {
	RoomID   string   `json:"room_id"`
	RoomType RoomKind `json:"room_type"`
}

// Server → client payloads.

type DocumentJoinedPayload struct {
	DocumentID    string                `json:"document_id"`
	Content       string                `json:"content"`
	Version       int64                 `json:"version"`
	ActiveEditors []*models.EditorState `json:"active_editors"`
	LockedBy      *string               `json:"locked_by,omitempty"`
}

type UserJoinedPayload struct {
	DocumentID string          `json:"document_id"`
	User       models.UserInfo `json:"user"`
}

type UserLeftPayload struct {
	DocumentID string `json:"document_id"`
	UserID     string `json:"user_id"`
}

type ChangeAckPayload struct {
	DocumentID string `json:"document_id"`
	Version    int64  `json:"version"`
}

type ContentChangedPayload struct {
	DocumentID string `json:"document_id"`
	Content    string `json:"content"`
	Delta      string `json:"delta,omitempty"`
	Version    int64  `json:"version"`
	UserID     string `json:"user_id"`
}

// VersionConflictPayload goes to the proposer only. It carries the
// authoritative state so the client can reconcile and retry; nothing is
// silently overwritten.
type VersionConflictPayload struct {
	DocumentID     string `json:"document_id"`
	CurrentVersion int64  `json:"current_version"`
	ServerContent  string `json:"server_content"`
}

type CursorBroadcastPayload struct {
	DocumentID string                `json:"document_id"`
	UserID     string                `json:"user_id"`
	Cursor     models.CursorPosition `json:"cursor"`
}

type SelectionBroadcastPayload struct {
	DocumentID string                `json:"document_id"`
	UserID     string                `json:"user_id"`
	Selection  models.SelectionRange `json:"selection"`
}

type LockGrantedPayload struct {
	DocumentID string `json:"document_id"`
}

type LockDeniedPayload struct {
	DocumentID string `json:"document_id"`
	HolderID   string `json:"holder_id"`
}

type LockNotifyPayload struct {
	DocumentID string `json:"document_id"`
	UserID     string `json:"user_id"`
}

type UnlockNotifyPayload struct {
	DocumentID string `json:"document_id"`
}

type RoomJoinedPayload struct {
	RoomID   string   `json:"room_id"`
	RoomType RoomKind `json:"room_type"`
}

type PeerPayload struct {
	RoomID string          `json:"room_id"`
	User   models.UserInfo `json:"user"`
}

type AccessDeniedPayload struct {
	RoomID   string   `json:"room_id,omitempty"`
	RoomType RoomKind `json:"room_type,omitempty"`
	Message  string   `json:"message"`
}

type DocumentErrorPayload struct {
	DocumentID string `json:"document_id,omitempty"`
	Message    string `json:"message"`
}

type PresenceChangedPayload struct {
	UserID string `json:"user_id"`
	Online bool   `json:"online"`
}

// encodeEvent marshals a typed payload into a wire frame.
func encodeEvent(eventType EventType, payload interface{}) ([]byte, error) {
	var raw json.RawMessage
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal %s payload: %w", eventType, err)
		}
		raw = data
	}

	frame, err := json.Marshal(Envelope{Type: eventType, Payload: raw})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s envelope: %w", eventType, err)
	}

	return frame, nil
}
