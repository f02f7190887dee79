package realtime

import (
	"log"
	"net/http"
	"strings"

	"syncspace/internal/auth"
	"syncspace/internal/middleware"
	"syncspace/internal/models"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel/attribute"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// TODO: restrict to the deployed front-end origins
		return true
	},
}

// WebSocketHandler authenticates handshakes and hands live connections to the
// realtime service. There are no anonymous connections: a request without a
// valid bearer token is refused before the upgrade.
type WebSocketHandler struct {
	service       *Service
	authenticator *auth.Authenticator
	users         UserStore
}

// NewWebSocketHandler creates the handshake handler.
func NewWebSocketHandler(service *Service, authenticator *auth.Authenticator, users UserStore) *WebSocketHandler {
	return &WebSocketHandler{
		service:       service,
		authenticator: authenticator,
		users:         users,
	}
}

// HandleConnection upgrades an authenticated request to a WebSocket
// connection and starts its pumps.
func (h *WebSocketHandler) HandleConnection(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	identity, err := h.authenticator.Resolve(bearerToken(r))
	if err != nil {
		http.Error(w, "authentication required", http.StatusUnauthorized)
		return
	}

	ctx, span := middleware.StartSpan(ctx, "WebSocket.Connect",
		attribute.String("user.id", identity.UserID),
	)
	defer span.End()

	// Resolve display metadata once at handshake time; it rides on the
	// connection for its lifetime.
	user := models.UserInfo{ID: identity.UserID, Name: identity.Email}
	if record, err := h.users.GetByID(ctx, identity.UserID); err == nil {
		user.Name = record.Name
		user.AvatarURL = record.AvatarURL
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("Failed to upgrade WebSocket: %v", err)
		middleware.AddSpanError(ctx, err)
		return
	}

	client := &Client{
		ID:      uuid.NewString(),
		User:    user,
		Role:    identity.Role,
		Conn:    conn,
		Send:    make(chan []byte, 256),
		service: h.service,
		rooms:   make(map[string]bool),
	}

	h.service.HandleConnect(client)

	// Separate read and write goroutines so a slow peer can never deadlock
	// the connection.
	go client.WritePump(ctx)
	go client.ReadPump(ctx)
}

// bearerToken pulls the credential from the Authorization header or, for
// browser WebSocket clients that cannot set headers, the token query
// parameter.
func bearerToken(r *http.Request) string {
	if header := r.Header.Get("Authorization"); header != "" {
		return strings.TrimPrefix(header, "Bearer ")
	}
	return r.URL.Query().Get("token")
}
