package http

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/Sleepy9988/decent-identity/core"
)

func wsURL(server *httptest.Server, path string) string {
	return "ws" + strings.TrimPrefix(server.URL, "http") + path
}

// dialExpectClose dials and returns the close code the server answers with.
func dialExpectClose(t *testing.T, url string) int {
	t.Helper()

	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, _, err = conn.ReadMessage()
	closeErr, ok := err.(*websocket.CloseError)
	require.True(t, ok, "expected a close frame, got %v", err)
	return closeErr.Code
}

func TestWSRejectsMissingToken(t *testing.T) {
	router, _ := newTestRouter(t)
	server := httptest.NewServer(router)
	defer server.Close()

	code := dialExpectClose(t, wsURL(server, "/ws/notifications/"+testDID))
	require.Equal(t, 4401, code)
}

func TestWSRejectsInvalidToken(t *testing.T) {
	router, _ := newTestRouter(t)
	server := httptest.NewServer(router)
	defer server.Close()

	code := dialExpectClose(t, wsURL(server, "/ws/notifications/"+testDID+"?token=garbage"))
	require.Equal(t, 4401, code)
}

func TestWSRejectsForeignDID(t *testing.T) {
	router, _ := newTestRouter(t)
	server := httptest.NewServer(router)
	defer server.Close()

	access, _ := login(t, router, testDID)

	otherDID := "did:ethr:0x2222222222222222222222222222222222222222"
	code := dialExpectClose(t, wsURL(server, "/ws/notifications/"+otherDID+"?token="+access))
	require.Equal(t, 4403, code)
}

func TestWSDeliversNotifications(t *testing.T) {
	router, notifier := newTestRouter(t)
	server := httptest.NewServer(router)
	defer server.Close()

	access, _ := login(t, router, testDID)

	conn, _, err := websocket.DefaultDialer.Dial(
		wsURL(server, "/ws/notifications/"+testDID+"?token="+access), nil)
	require.NoError(t, err)
	defer conn.Close()

	err = notifier.Publish(context.Background(), testDID, core.Notification{
		Event:     core.EventRequestCreated,
		Context:   "payload",
		CreatedAt: time.Now(),
	})
	require.NoError(t, err)

	var notif core.Notification
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	require.NoError(t, conn.ReadJSON(&notif))
	require.Equal(t, core.EventRequestCreated, notif.Event)
	require.Equal(t, "payload", notif.Context)
}
