package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"log"

	"syncspace/internal/middleware"
	"syncspace/internal/repository"

	"go.opentelemetry.io/otel/attribute"
)

type eventHandler func(ctx context.Context, c *Client, payload json.RawMessage)

// Service ties the realtime components together and owns the event dispatch
// table. Every client frame lands in Dispatch; every failure is converted to
// a typed error event back to the originating connection; peers never see
// failures that didn't change shared state.
type Service struct {
	hub      *Hub
	presence *PresenceRegistry
	sessions *SessionTracker
	rooms    *RoomManager
	engine   *ChangeEngine
	locks    *LockArbitrator

	documents DocumentStore
	users     UserStore

	handlers map[EventType]eventHandler
}

// NewService wires the realtime core. The stores are interfaces so tests run
// the whole protocol against in-memory fakes.
func NewService(
	hub *Hub,
	documents DocumentStore,
	memberships MembershipStore,
	users UserStore,
	engine *ChangeEngine,
	locks *LockArbitrator,
) *Service {
	s := &Service{
		hub:       hub,
		presence:  NewPresenceRegistry(),
		sessions:  NewSessionTracker(),
		rooms:     NewRoomManager(hub, memberships, documents),
		engine:    engine,
		locks:     locks,
		documents: documents,
		users:     users,
	}

	// Closed dispatch table: every event kind the protocol knows is listed
	// here, and nothing else gets through.
	s.handlers = map[EventType]eventHandler{
		EventJoinDocument:    s.handleJoinDocument,
		EventLeaveDocument:   s.handleLeaveDocument,
		EventProposeChange:   s.handleProposeChange,
		EventCursorUpdate:    s.handleCursorUpdate,
		EventSelectionUpdate: s.handleSelectionUpdate,
		EventAcquireLock:     s.handleAcquireLock,
		EventReleaseLock:     s.handleReleaseLock,
		EventJoinRoom:        s.handleJoinRoom,
		EventLeaveRoom:       s.handleLeaveRoom,
	}

	return s
}

// HandleConnect registers a freshly authenticated connection. The global
// presence-changed(online) event fires only when this is the user's first
// live connection.
func (s *Service) HandleConnect(c *Client) {
	s.hub.Register(c)

	if s.presence.Register(c.User.ID, c.ID) {
		s.publishAll(EventPresenceChanged, PresenceChangedPayload{
			UserID: c.User.ID,
			Online: true,
		}, c)
	}

	log.Printf("✓ Connection %s established (user: %s)", c.ID, c.User.Name)
}

// HandleDisconnect runs best-effort cleanup for a closed connection: leave
// every document session this connection held open, then drop the
// connection from the presence registry, stamping last_active_at and firing
// presence-changed(offline) when it was the user's last one.
func (s *Service) HandleDisconnect(c *Client) {
	openDocs := s.sessions.DocumentsOf(c.User.ID)

	s.hub.Unregister(c)

	for _, documentID := range openDocs {
		s.leaveDocumentSession(c, documentID)
	}

	if s.presence.Unregister(c.User.ID, c.ID) {
		if err := s.users.TouchLastActive(context.Background(), c.User.ID); err != nil {
			log.Printf("⚠️  Failed to record last-active for user %s: %v", c.User.ID, err)
		}
		s.publishAll(EventPresenceChanged, PresenceChangedPayload{
			UserID: c.User.ID,
			Online: false,
		}, c)
	}

	c.closeSend()
	log.Printf("  Connection %s closed (user: %s)", c.ID, c.User.Name)
}

// Dispatch decodes one frame and routes it through the handler table.
func (s *Service) Dispatch(ctx context.Context, c *Client, message []byte) {
	var env Envelope
	if err := json.Unmarshal(message, &env); err != nil {
		s.sendError(c, "", "malformed event")
		return
	}

	handler, ok := s.handlers[env.Type]
	if !ok {
		s.sendError(c, "", "unknown event type: "+string(env.Type))
		return
	}

	ctx, span := middleware.StartSpan(ctx, "Realtime.HandleEvent",
		attribute.String("event.type", string(env.Type)),
		attribute.String("connection.id", c.ID),
		attribute.String("user.id", c.User.ID),
	)
	defer span.End()

	handler(ctx, c, env.Payload)
}

// OnlineUsers returns the ids of users with at least one live connection.
// Backs the REST presence snapshot.
func (s *Service) OnlineUsers() []string {
	return s.presence.Online()
}

// Event handlers

func (s *Service) handleJoinDocument(ctx context.Context, c *Client, payload json.RawMessage) {
	var req JoinDocumentPayload
	if err := json.Unmarshal(payload, &req); err != nil || req.DocumentID == "" {
		s.sendError(c, "", "malformed join-document payload")
		return
	}

	doc, err := s.documents.GetByID(ctx, req.DocumentID)
	if err != nil {
		middleware.AddSpanError(ctx, err)
		if errors.Is(err, repository.ErrNotFound) {
			s.sendError(c, req.DocumentID, "document not found")
		} else {
			s.sendError(c, req.DocumentID, "failed to load document")
		}
		return
	}

	if !doc.CanBeEditedBy(c.User.ID) {
		s.sendError(c, req.DocumentID, "access denied")
		return
	}

	room := RoomName(RoomDocument, req.DocumentID)
	s.hub.JoinRoom(c, room)
	already := s.sessions.Join(req.DocumentID, c.User)

	s.send(c, EventDocumentJoined, DocumentJoinedPayload{
		DocumentID:    doc.ID,
		Content:       doc.Content,
		Version:       doc.Version,
		ActiveEditors: s.sessions.ActiveEditors(req.DocumentID),
		LockedBy:      doc.LockedBy,
	})

	// A second tab of the same user is not a new editor.
	if !already {
		s.publish(room, EventUserJoined, UserJoinedPayload{
			DocumentID: req.DocumentID,
			User:       c.User,
		}, c)
	}
}

func (s *Service) handleLeaveDocument(ctx context.Context, c *Client, payload json.RawMessage) {
	var req LeaveDocumentPayload
	if err := json.Unmarshal(payload, &req); err != nil || req.DocumentID == "" {
		s.sendError(c, "", "malformed leave-document payload")
		return
	}

	s.hub.LeaveRoom(c, RoomName(RoomDocument, req.DocumentID))
	s.leaveDocumentSession(c, req.DocumentID)
}

// leaveDocumentSession removes the user's session entry unless another of
// their connections still has the document open, and tells the remaining
// editors.
func (s *Service) leaveDocumentSession(c *Client, documentID string) {
	room := RoomName(RoomDocument, documentID)
	if s.hub.UserInRoom(c.User.ID, room) {
		return
	}

	if present, _ := s.sessions.Leave(documentID, c.User.ID); present {
		s.publish(room, EventUserLeft, UserLeftPayload{
			DocumentID: documentID,
			UserID:     c.User.ID,
		}, c)
	}
}

func (s *Service) handleProposeChange(ctx context.Context, c *Client, payload json.RawMessage) {
	var req ProposeChangePayload
	if err := json.Unmarshal(payload, &req); err != nil || req.DocumentID == "" {
		s.sendError(c, "", "malformed propose-change payload")
		return
	}

	if req.Version == nil {
		// An unversioned write would bypass conflict detection; refuse it.
		s.sendError(c, req.DocumentID, "version is required")
		return
	}

	result, err := s.engine.Propose(ctx, req.DocumentID, c.User.ID, req.Version, req.Content, req.Delta)
	if err != nil {
		middleware.AddSpanError(ctx, err)
		if errors.Is(err, repository.ErrNotFound) {
			s.sendError(c, req.DocumentID, "document not found")
		} else {
			s.sendError(c, req.DocumentID, "failed to save change")
		}
		return
	}

	switch result.Outcome {
	case ChangeCommitted:
		// Ack the proposer directly (it already has the content) and fan
		// the new state out to everyone else in the room.
		s.send(c, EventChangeAck, ChangeAckPayload{
			DocumentID: req.DocumentID,
			Version:    result.Version,
		})
		s.publish(RoomName(RoomDocument, req.DocumentID), EventContentChanged, ContentChangedPayload{
			DocumentID: req.DocumentID,
			Content:    req.Content,
			Delta:      req.Delta,
			Version:    result.Version,
			UserID:     c.User.ID,
		}, c)

	case ChangeConflict:
		// Sender only: a stale proposal affected no shared state, so peers
		// hear nothing.
		s.send(c, EventVersionConflict, VersionConflictPayload{
			DocumentID:     req.DocumentID,
			CurrentVersion: result.Version,
			ServerContent:  result.Content,
		})
	}
}

func (s *Service) handleCursorUpdate(ctx context.Context, c *Client, payload json.RawMessage) {
	var req CursorUpdatePayload
	if err := json.Unmarshal(payload, &req); err != nil || req.DocumentID == "" {
		return
	}

	// Purely ephemeral: no persistence, no failure event, best-effort
	// delivery.
	if s.sessions.UpdateCursor(req.DocumentID, c.User.ID, req.Cursor) {
		s.publish(RoomName(RoomDocument, req.DocumentID), EventCursorUpdate, CursorBroadcastPayload{
			DocumentID: req.DocumentID,
			UserID:     c.User.ID,
			Cursor:     req.Cursor,
		}, c)
	}
}

func (s *Service) handleSelectionUpdate(ctx context.Context, c *Client, payload json.RawMessage) {
	var req SelectionUpdatePayload
	if err := json.Unmarshal(payload, &req); err != nil || req.DocumentID == "" {
		return
	}

	if s.sessions.UpdateSelection(req.DocumentID, c.User.ID, req.Selection) {
		s.publish(RoomName(RoomDocument, req.DocumentID), EventSelectionUpdate, SelectionBroadcastPayload{
			DocumentID: req.DocumentID,
			UserID:     c.User.ID,
			Selection:  req.Selection,
		}, c)
	}
}

func (s *Service) handleAcquireLock(ctx context.Context, c *Client, payload json.RawMessage) {
	var req LockPayload
	if err := json.Unmarshal(payload, &req); err != nil || req.DocumentID == "" {
		s.sendError(c, "", "malformed acquire-lock payload")
		return
	}

	result, err := s.locks.Acquire(ctx, req.DocumentID, c.User.ID)
	if err != nil {
		middleware.AddSpanError(ctx, err)
		if errors.Is(err, repository.ErrNotFound) {
			s.sendError(c, req.DocumentID, "document not found")
		} else {
			s.sendError(c, req.DocumentID, "failed to acquire lock")
		}
		return
	}

	if !result.Granted {
		// A denial is a protocol outcome, not an error: tell the caller who
		// holds the lock.
		s.send(c, EventLockDenied, LockDeniedPayload{
			DocumentID: req.DocumentID,
			HolderID:   result.HolderID,
		})
		return
	}

	s.send(c, EventLockGranted, LockGrantedPayload{DocumentID: req.DocumentID})
	s.publish(RoomName(RoomDocument, req.DocumentID), EventLockNotify, LockNotifyPayload{
		DocumentID: req.DocumentID,
		UserID:     c.User.ID,
	}, c)
}

func (s *Service) handleReleaseLock(ctx context.Context, c *Client, payload json.RawMessage) {
	var req LockPayload
	if err := json.Unmarshal(payload, &req); err != nil || req.DocumentID == "" {
		s.sendError(c, "", "malformed release-lock payload")
		return
	}

	if err := s.locks.Release(ctx, req.DocumentID, c.User.ID); err != nil {
		middleware.AddSpanError(ctx, err)
		switch {
		case errors.Is(err, repository.ErrNotLockHolder):
			s.sendError(c, req.DocumentID, "only the lock holder may release")
		case errors.Is(err, repository.ErrNotFound):
			s.sendError(c, req.DocumentID, "document not found")
		default:
			s.sendError(c, req.DocumentID, "failed to release lock")
		}
		return
	}

	s.send(c, EventLockReleased, LockGrantedPayload{DocumentID: req.DocumentID})
	s.publish(RoomName(RoomDocument, req.DocumentID), EventUnlockNotify, UnlockNotifyPayload{
		DocumentID: req.DocumentID,
	}, c)
}

func (s *Service) handleJoinRoom(ctx context.Context, c *Client, payload json.RawMessage) {
	var req JoinRoomPayload
	if err := json.Unmarshal(payload, &req); err != nil || req.RoomID == "" {
		s.sendError(c, "", "malformed join-room payload")
		return
	}

	if err := s.rooms.Join(ctx, c, req.RoomType, req.RoomID); err != nil {
		middleware.AddSpanError(ctx, err)
		msg := "access denied"
		if errors.Is(err, repository.ErrNotFound) {
			msg = "room not found"
		}
		s.send(c, EventAccessDenied, AccessDeniedPayload{
			RoomID:   req.RoomID,
			RoomType: req.RoomType,
			Message:  msg,
		})
		return
	}

	s.send(c, EventRoomJoined, RoomJoinedPayload{
		RoomID:   req.RoomID,
		RoomType: req.RoomType,
	})
	s.publish(RoomName(req.RoomType, req.RoomID), EventPeerJoined, PeerPayload{
		RoomID: req.RoomID,
		User:   c.User,
	}, c)
}

func (s *Service) handleLeaveRoom(ctx context.Context, c *Client, payload json.RawMessage) {
	var req JoinRoomPayload
	if err := json.Unmarshal(payload, &req); err != nil || req.RoomID == "" {
		return
	}

	s.rooms.Leave(c, req.RoomType, req.RoomID)
	s.publish(RoomName(req.RoomType, req.RoomID), EventPeerLeft, PeerPayload{
		RoomID: req.RoomID,
		User:   c.User,
	}, c)
}

// Outbound helpers

// send queues an event on one connection's outbound channel.
func (s *Service) send(c *Client, eventType EventType, payload interface{}) {
	frame, err := encodeEvent(eventType, payload)
	if err != nil {
		log.Printf("⚠️  %v", err)
		return
	}

	select {
	case c.Send <- frame:
	default:
		log.Printf("⚠️  Connection %s send buffer full, dropping %s", c.ID, eventType)
	}
}

func (s *Service) sendError(c *Client, documentID, message string) {
	s.send(c, EventDocumentError, DocumentErrorPayload{
		DocumentID: documentID,
		Message:    message,
	})
}

func (s *Service) publish(room string, eventType EventType, payload interface{}, exclude *Client) {
	frame, err := encodeEvent(eventType, payload)
	if err != nil {
		log.Printf("⚠️  %v", err)
		return
	}
	s.hub.Publish(room, frame, exclude)
}

func (s *Service) publishAll(eventType EventType, payload interface{}, exclude *Client) {
	frame, err := encodeEvent(eventType, payload)
	if err != nil {
		log.Printf("⚠️  %v", err)
		return
	}
	s.hub.PublishAll(frame, exclude)
}
