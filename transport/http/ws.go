package http

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/Sleepy9988/decent-identity/ports"
	"github.com/Sleepy9988/decent-identity/service"
)

// WebSocket close codes mirroring HTTP auth failures.
const (
	wsCloseUnauthorized = 4401
	wsCloseForbidden    = 4403
)

const (
	wsWriteWait  = 10 * time.Second
	wsPingPeriod = 30 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Browsers cannot set headers on WebSocket dials, so the token comes in
	// as a query parameter and cross-origin dials must be allowed.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// WSHandler pushes notifications to a connected client. The URL is scoped to
// a DID and carries the access token as a query parameter; the token's DID
// must match the one in the URL.
type WSHandler struct {
	authService *service.AuthService
	notifier    ports.Notifier
}

// NewWSHandler creates a new WebSocket handler.
func NewWSHandler(authService *service.AuthService, notifier ports.Notifier) *WSHandler {
	return &WSHandler{authService: authService, notifier: notifier}
}

// Notifications handles GET /ws/notifications/:did?token=...
func (h *WSHandler) Notifications(c *gin.Context) {
	did := c.Param("did")
	token := c.Query("token")

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}

	if did == "" || token == "" {
		closeWith(conn, wsCloseUnauthorized, "missing did or token")
		return
	}

	session, err := h.authService.ValidateAccessToken(c.Request.Context(), token)
	if err != nil {
		closeWith(conn, wsCloseUnauthorized, "invalid token")
		return
	}
	if session.DID != did {
		closeWith(conn, wsCloseForbidden, "did mismatch")
		return
	}

	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()

	events, err := h.notifier.Subscribe(ctx, did)
	if err != nil {
		closeWith(conn, websocket.CloseInternalServerErr, "subscription failed")
		return
	}

	// Reader exists only to surface client disconnects and pongs.
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(wsPingPeriod)
	defer ticker.Stop()
	defer conn.Close()

	for {
		select {
		case notif, ok := <-events:
			if !ok {
				return
			}
			conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteJSON(notif); err != nil {
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-ctx.Done():
			return
		}
	}
}

func closeWith(conn *websocket.Conn, code int, reason string) {
	deadline := time.Now().Add(wsWriteWait)
	msg := websocket.FormatCloseMessage(code, reason)
	if err := conn.WriteControl(websocket.CloseMessage, msg, deadline); err != nil {
		log.Printf("ws close failed: %v", err)
	}
	conn.Close()
}
