package realtime

import (
	"context"
	"log"
	"sync"
	"time"

	"syncspace/internal/models"

	"github.com/gorilla/websocket"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 54 * time.Second
)

// Client is one authenticated WebSocket connection. A user may hold several
// simultaneously (multiple tabs); each gets its own Client with its own
// send queue.
type Client struct {
	ID   string // connection id, not the user id
	User models.UserInfo
	Role string

	Conn *websocket.Conn
	Send chan []byte // buffered outbound queue

	service *Service

	// rooms this connection joined; guarded by the hub's mutex.
	rooms map[string]bool

	closeOnce sync.Once
}

// closeSend closes the outbound queue exactly once, whichever of disconnect
// cleanup or hub shutdown gets there first.
func (c *Client) closeSend() {
	c.closeOnce.Do(func() {
		close(c.Send)
	})
}

// ReadPump reads frames off the socket and dispatches them until the
// connection dies, then runs disconnect cleanup. One goroutine per
// connection.
func (c *Client) ReadPump(ctx context.Context) {
	defer func() {
		c.service.HandleDisconnect(c)
		c.Conn.Close()
	}()

	c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("WebSocket error: %v", err)
			}
			break
		}

		c.dispatch(ctx, message)
	}
}

// dispatch hands one frame to the service, converting a handler panic into a
// sender-only error event. A bad frame must never take down the pump, let
// alone the process.
func (c *Client) dispatch(ctx context.Context, message []byte) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("[conn %s] PANIC in event handler: %v", c.ID, r)
			c.service.sendError(c, "", "internal error")
		}
	}()

	c.service.Dispatch(ctx, c, message)
}

// WritePump drains the send queue onto the socket and keeps the connection
// alive with pings. Writing from a single goroutine per connection means no
// write interleaving and no blocking of the dispatcher on a slow peer.
func (c *Client) WritePump(ctx context.Context) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

			// Drain whatever else is queued; each frame stays its own
			// WebSocket message so the client's JSON parser sees one event
			// per frame.
			n := len(c.Send)
			for i := 0; i < n; i++ {
				c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
				if err := c.Conn.WriteMessage(websocket.TextMessage, <-c.Send); err != nil {
					return
				}
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
