package websocket

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"effortsync/types"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
	// Inbound frames are tiny control messages (subscribe/unsubscribe).
	maxInboundSize = 4096
)

// wsConn is the subset of *websocket.Conn the hub uses, extracted so
// tests can drive a connection without a network socket.
type wsConn interface {
	ReadMessage() (int, []byte, error)
	WriteMessage(messageType int, data []byte) error
	SetReadLimit(limit int64)
	SetReadDeadline(t time.Time) error
	SetWriteDeadline(t time.Time) error
	SetPongHandler(h func(string) error)
	Close() error
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// ServeWS upgrades the HTTP connection to a WebSocket and registers the
// client with the hub. The hub sends the init snapshot immediately
// after registration.
func ServeWS(h *Hub) gin.HandlerFunc {
	return func(c *gin.Context) {
		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			slog.Error("websocket upgrade failed", "err", err)
			return
		}
		serve(h, conn)
	}
}

func serve(h *Hub, conn wsConn) {
	client := newConnection(h, conn)
	h.register <- client

	// Reader goroutine: handles subscribe/unsubscribe and liveness.
	go func() {
		defer func() {
			h.unregister <- client
			_ = conn.Close()
		}()
		conn.SetReadLimit(maxInboundSize)
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(pongWait))
		})
		for {
			_, raw, err := conn.ReadMessage()
			if err != nil {
				return
			}
			client.handleInbound(raw)
		}
	}()

	// Writer loop (same goroutine as the HTTP handler).
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case msg, ok := <-client.send:
			if !ok {
				// Hub closed the channel (unregister or slow client).
				_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
				_ = conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// handleInbound processes one client frame. Malformed messages are
// dropped with a log line; they never close the connection.
func (c *Connection) handleInbound(raw []byte) {
	var msg types.ClientMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		slog.Warn("dropping malformed client message", "connection", c.ID, "err", err)
		return
	}
	switch msg.Type {
	case types.MessageSubscribe:
		c.hub.subscribe <- subscribeReq{client: c, repos: msg.Repos, add: true}
	case types.MessageUnsubscribe:
		c.hub.subscribe <- subscribeReq{client: c, repos: msg.Repos, add: false}
	default:
		slog.Warn("dropping client message of unknown type", "connection", c.ID, "type", msg.Type)
	}
}
