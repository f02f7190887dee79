package realtime

import "sync"

// PresenceRegistry tracks which users have live connections. A user is online
// iff their connection set is non-empty; the empty↔non-empty transition is
// the only point at which a presence change is reported, so a second tab
// never produces a duplicate "online" and closing one of several tabs never
// produces a premature "offline".
type PresenceRegistry struct {
	mu    sync.Mutex
	conns map[string]map[string]bool // userID -> set of connection ids
}

// NewPresenceRegistry creates an empty registry.
func NewPresenceRegistry() *PresenceRegistry {
	return &PresenceRegistry{
		conns: make(map[string]map[string]bool),
	}
}

// Register adds a connection to the user's set. Returns true when this is the
// user's first live connection, i.e. the user just came online.
func (r *PresenceRegistry) Register(userID, connID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	set := r.conns[userID]
	if set == nil {
		set = make(map[string]bool)
		r.conns[userID] = set
	}

	cameOnline := len(set) == 0
	set[connID] = true
	return cameOnline
}

// Unregister removes a connection from the user's set. Returns true when the
// set became empty, i.e. the user just went offline.
func (r *PresenceRegistry) Unregister(userID, connID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	set, ok := r.conns[userID]
	if !ok || !set[connID] {
		return false
	}

	delete(set, connID)
	if len(set) == 0 {
		delete(r.conns, userID)
		return true
	}
	return false
}

// IsOnline reports whether the user has at least one live connection.
func (r *PresenceRegistry) IsOnline(userID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	return len(r.conns[userID]) > 0
}

// Online returns the ids of all users currently online.
func (r *PresenceRegistry) Online() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	users := make([]string, 0, len(r.conns))
	for userID := range r.conns {
		users = append(users, userID)
	}
	return users
}
