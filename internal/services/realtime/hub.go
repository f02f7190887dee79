package realtime

import (
	"log"
	"sync"
)

// delivery is one fan-out instruction queued to the hub loop.
type delivery struct {
	room    string  // deliver to a room, or
	userID  string  // deliver to one user's connection set, or
	all     bool    // deliver to every registered connection
	message []byte
	exclude *Client // skip this connection (usually the originator)
}

// Hub is the broadcast dispatcher and room registry. Every component routes
// its notifications through here rather than touching the transport, so
// fan-out policy (room naming, sender exclusion, slow-client handling) lives
// in one place.
//
// Deliveries flow through a single loop goroutine: events published to the
// same room reach all members in the order they were queued. No ordering is
// promised across rooms.
type Hub struct {
	mu    sync.RWMutex
	rooms map[string]map[*Client]bool // room name -> members
	users map[string]map[*Client]bool // userID -> live connections

	broadcast chan *delivery
	done      chan struct{}
}

// NewHub creates a hub; call Start to begin delivering.
func NewHub() *Hub {
	return &Hub{
		rooms:     make(map[string]map[*Client]bool),
		users:     make(map[string]map[*Client]bool),
		broadcast: make(chan *delivery, 256),
		done:      make(chan struct{}),
	}
}

// Start begins the delivery loop.
func (h *Hub) Start() {
	go func() {
		for {
			select {
			case <-h.done:
				return
			case d := <-h.broadcast:
				h.deliver(d)
			}
		}
	}()
}

// Shutdown stops the delivery loop and closes every connection.
func (h *Hub) Shutdown() {
	close(h.done)

	h.mu.Lock()
	defer h.mu.Unlock()

	for _, conns := range h.users {
		for c := range conns {
			c.closeSend()
			if c.Conn != nil {
				c.Conn.Close()
			}
		}
	}

	h.rooms = make(map[string]map[*Client]bool)
	h.users = make(map[string]map[*Client]bool)
}

// Register adds a connection to its user's connection set.
func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.users[c.User.ID] == nil {
		h.users[c.User.ID] = make(map[*Client]bool)
	}
	h.users[c.User.ID][c] = true
}

// Unregister removes a connection from its user's set and from every room it
// joined.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for room := range c.rooms {
		h.removeFromRoom(c, room)
	}

	if conns, ok := h.users[c.User.ID]; ok {
		delete(conns, c)
		if len(conns) == 0 {
			delete(h.users, c.User.ID)
		}
	}
}

// JoinRoom adds a connection to a room's broadcast set. Access control
// happens before this call; the hub only tracks membership.
func (h *Hub) JoinRoom(c *Client, room string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.rooms[room] == nil {
		h.rooms[room] = make(map[*Client]bool)
	}
	h.rooms[room][c] = true
	c.rooms[room] = true
}

// LeaveRoom removes a connection from a room's broadcast set.
func (h *Hub) LeaveRoom(c *Client, room string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.removeFromRoom(c, room)
}

// removeFromRoom must run under h.mu.
func (h *Hub) removeFromRoom(c *Client, room string) {
	if members, ok := h.rooms[room]; ok {
		delete(members, c)
		if len(members) == 0 {
			delete(h.rooms, room)
		}
	}
	delete(c.rooms, room)
}

// InRoom reports whether the connection is in the room's broadcast set.
func (h *Hub) InRoom(c *Client, room string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()

	return h.rooms[room][c]
}

// UserInRoom reports whether any of the user's live connections is in the
// room. Used to keep a user's session entry alive while a second tab still
// has the document open.
func (h *Hub) UserInRoom(userID, room string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for c := range h.users[userID] {
		if h.rooms[room][c] {
			return true
		}
	}
	return false
}

// RoomSize returns the number of connections currently in a room.
func (h *Hub) RoomSize(room string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	return len(h.rooms[room])
}

// Publish queues an event for every member of a room, optionally excluding
// one connection.
func (h *Hub) Publish(room string, message []byte, exclude *Client) {
	h.enqueue(&delivery{room: room, message: message, exclude: exclude})
}

// PublishToUser queues an event for every live connection of one user.
func (h *Hub) PublishToUser(userID string, message []byte) {
	h.enqueue(&delivery{userID: userID, message: message})
}

// PublishAll queues an event for every registered connection. Used for
// global presence transitions.
func (h *Hub) PublishAll(message []byte, exclude *Client) {
	h.enqueue(&delivery{all: true, message: message, exclude: exclude})
}

func (h *Hub) enqueue(d *delivery) {
	select {
	case h.broadcast <- d:
	case <-h.done:
	}
}

// deliver fans one queued event out to its targets.
func (h *Hub) deliver(d *delivery) {
	h.mu.RLock()
	var targets []*Client
	switch {
	case d.all:
		for _, conns := range h.users {
			for c := range conns {
				targets = append(targets, c)
			}
		}
	case d.userID != "":
		for c := range h.users[d.userID] {
			targets = append(targets, c)
		}
	default:
		for c := range h.rooms[d.room] {
			targets = append(targets, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range targets {
		if d.exclude != nil && c == d.exclude {
			continue
		}

		select {
		case c.Send <- d.message:
		default:
			// Buffer full: the connection is slow or dead. Closing the
			// socket lets its read pump run the normal disconnect cleanup.
			log.Printf("⚠️  Connection %s send buffer full, closing", c.ID)
			if c.Conn != nil {
				c.Conn.Close()
			}
		}
	}
}
