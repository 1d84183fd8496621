package websocket

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	gorilla "github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ripple/middleware"
)

const testSecret = "ws-test-secret"

func newTestManager(resolve ConversationResolver) *Manager {
	m := NewManager(quietLogger(), resolve)
	go m.Start()
	return m
}

func quietLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func signToken(t *testing.T, userID string) string {
	t.Helper()
	claims := middleware.Claims{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	require.NoError(t, err)
	return signed
}

func dial(t *testing.T, srv *httptest.Server, userID string) *gorilla.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "?token=" + signToken(t, userID)
	conn, _, err := gorilla.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	return conn
}

type event struct {
	Type    string                 `json:"type"`
	Payload map[string]interface{} `json:"payload"`
}

func readEvent(t *testing.T, conn *gorilla.Conn) event {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	var ev event
	require.NoError(t, json.Unmarshal(data, &ev))
	return ev
}

func TestHandlerRejectsMissingToken(t *testing.T) {
	manager := newTestManager(nil)

	srv := httptest.NewServer(Handler(manager, testSecret))
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestHandlerRejectsInvalidToken(t *testing.T) {
	manager := newTestManager(nil)

	srv := httptest.NewServer(Handler(manager, testSecret))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "?token=garbage")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestHandlerWelcomeEvent(t *testing.T) {
	manager := newTestManager(nil)

	srv := httptest.NewServer(Handler(manager, testSecret))
	defer srv.Close()

	conn := dial(t, srv, "user-1")
	defer conn.Close()

	ev := readEvent(t, conn)
	assert.Equal(t, EventConnected, ev.Type)
	assert.Equal(t, "user-1", ev.Payload["userId"])
}

func TestBroadcastReachesAllClients(t *testing.T) {
	manager := newTestManager(nil)

	srv := httptest.NewServer(Handler(manager, testSecret))
	defer srv.Close()

	a := dial(t, srv, "user-a")
	defer a.Close()
	b := dial(t, srv, "user-b")
	defer b.Close()
	readEvent(t, a) // drain welcome
	readEvent(t, b)

	require.Eventually(t, func() bool {
		return manager.ConnectedClients() == 2
	}, time.Second, 10*time.Millisecond)

	manager.Broadcast(EventNewMessage, map[string]interface{}{"conversationId": "c1"})

	for _, conn := range []*gorilla.Conn{a, b} {
		ev := readEvent(t, conn)
		assert.Equal(t, EventNewMessage, ev.Type)
		assert.Equal(t, "c1", ev.Payload["conversationId"])
	}
}

func TestSendToUserTargetsOnlyThatUser(t *testing.T) {
	manager := newTestManager(nil)

	srv := httptest.NewServer(Handler(manager, testSecret))
	defer srv.Close()

	a := dial(t, srv, "user-a")
	defer a.Close()
	b := dial(t, srv, "user-b")
	defer b.Close()
	readEvent(t, a)
	readEvent(t, b)

	require.Eventually(t, func() bool {
		return manager.ConnectedClients() == 2
	}, time.Second, 10*time.Millisecond)

	manager.SendToUser("user-a", EventNotification, map[string]interface{}{"kind": "like"})

	ev := readEvent(t, a)
	assert.Equal(t, EventNotification, ev.Type)

	b.SetReadDeadline(time.Now().Add(200 * time.Millisecond))
	_, _, err := b.ReadMessage()
	assert.Error(t, err, "other user should receive nothing")
}

func TestPingPong(t *testing.T) {
	manager := newTestManager(nil)

	srv := httptest.NewServer(Handler(manager, testSecret))
	defer srv.Close()

	conn := dial(t, srv, "user-1")
	defer conn.Close()
	readEvent(t, conn)

	require.NoError(t, conn.WriteJSON(map[string]interface{}{"type": "ping"}))

	ev := readEvent(t, conn)
	assert.Equal(t, EventPong, ev.Type)
}

func TestTypingRelayReachesOnlyParticipants(t *testing.T) {
	manager := newTestManager(func(ctx context.Context, conversationID, userID string) ([]string, error) {
		return []string{"user-a", "user-b"}, nil
	})

	srv := httptest.NewServer(Handler(manager, testSecret))
	defer srv.Close()

	a := dial(t, srv, "user-a")
	defer a.Close()
	b := dial(t, srv, "user-b")
	defer b.Close()
	c := dial(t, srv, "user-c")
	defer c.Close()
	readEvent(t, a)
	readEvent(t, b)
	readEvent(t, c)

	require.Eventually(t, func() bool {
		return manager.ConnectedClients() == 3
	}, time.Second, 10*time.Millisecond)

	require.NoError(t, a.WriteJSON(map[string]interface{}{
		"type":    EventTypingStart,
		"payload": map[string]interface{}{"conversationId": "c9"},
	}))

	ev := readEvent(t, b)
	assert.Equal(t, EventTypingStart, ev.Type)
	assert.Equal(t, "c9", ev.Payload["conversationId"])
	assert.Equal(t, "user-a", ev.Payload["userId"])

	c.SetReadDeadline(time.Now().Add(200 * time.Millisecond))
	_, _, err := c.ReadMessage()
	assert.Error(t, err, "non-participant should receive nothing")
}

func TestTypingRelayDroppedWithoutResolver(t *testing.T) {
	manager := newTestManager(nil)

	srv := httptest.NewServer(Handler(manager, testSecret))
	defer srv.Close()

	a := dial(t, srv, "user-a")
	defer a.Close()
	b := dial(t, srv, "user-b")
	defer b.Close()
	readEvent(t, a)
	readEvent(t, b)

	require.Eventually(t, func() bool {
		return manager.ConnectedClients() == 2
	}, time.Second, 10*time.Millisecond)

	require.NoError(t, a.WriteJSON(map[string]interface{}{
		"type":    EventTypingStart,
		"payload": map[string]interface{}{"conversationId": "c9"},
	}))

	b.SetReadDeadline(time.Now().Add(200 * time.Millisecond))
	_, _, err := b.ReadMessage()
	assert.Error(t, err, "relay without a resolver should be dropped")
}

func TestSendToConversationSkipsSender(t *testing.T) {
	manager := newTestManager(func(ctx context.Context, conversationID, userID string) ([]string, error) {
		return []string{"user-a", "user-b"}, nil
	})

	srv := httptest.NewServer(Handler(manager, testSecret))
	defer srv.Close()

	a := dial(t, srv, "user-a")
	defer a.Close()
	b := dial(t, srv, "user-b")
	defer b.Close()
	readEvent(t, a)
	readEvent(t, b)

	require.Eventually(t, func() bool {
		return manager.ConnectedClients() == 2
	}, time.Second, 10*time.Millisecond)

	manager.SendToConversation("c9", "user-a", EventMessageRead, map[string]interface{}{"conversationId": "c9"})

	ev := readEvent(t, b)
	assert.Equal(t, EventMessageRead, ev.Type)

	a.SetReadDeadline(time.Now().Add(200 * time.Millisecond))
	_, _, err := a.ReadMessage()
	assert.Error(t, err, "sender should not receive their own event")
}

func TestUnregisterOnClose(t *testing.T) {
	manager := newTestManager(nil)

	srv := httptest.NewServer(Handler(manager, testSecret))
	defer srv.Close()

	conn := dial(t, srv, "user-1")
	readEvent(t, conn)

	require.Eventually(t, func() bool {
		return manager.ConnectedClients() == 1
	}, time.Second, 10*time.Millisecond)

	conn.Close()

	require.Eventually(t, func() bool {
		return manager.ConnectedClients() == 0
	}, time.Second, 10*time.Millisecond)
}
