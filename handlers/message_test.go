package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"ripple/config"
	"ripple/storage"
	"ripple/websocket"
)

func testAPI(store storage.MessageStore) *API {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return &API{
		Cfg:   &config.Config{JWTSecret: "test"},
		Store: store,
		WS:    websocket.NewManager(log, nil),
		Log:   log,
	}
}

// asUser stands in for the JWT middleware.
func asUser(userID string) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set("userId", userID)
		c.Next()
	}
}

func messageRouter(a *API, userID string) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	auth := r.Group("/api", asUser(userID))
	auth.POST("/conversations", a.CreateConversation)
	auth.GET("/conversations/:id", a.GetConversation)
	auth.GET("/conversations/:id/messages", a.GetMessages)
	auth.PUT("/conversations/:id/read", a.MarkConversationRead)
	auth.POST("/messages/typing", a.SendTypingIndicator)
	return r
}

func doJSON(r *gin.Engine, method, path string, body interface{}) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func seedConversation(t *testing.T, store storage.MessageStore, participants ...string) *storage.Conversation {
	t.Helper()
	conv, _, err := store.CreateConversation(context.Background(), participants)
	require.NoError(t, err)
	return conv
}

const (
	testUserA = "64b000000000000000000001"
	testUserB = "64b000000000000000000002"
	outsider  = "64b000000000000000000009"
)

func TestCreateConversationRejectsBadParticipant(t *testing.T) {
	r := messageRouter(testAPI(storage.NewMemoryStore()), testUserA)

	w := doJSON(r, http.MethodPost, "/api/conversations", gin.H{
		"participants": []string{"not-an-id"},
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCreateConversationRejectsSelfOnly(t *testing.T) {
	r := messageRouter(testAPI(storage.NewMemoryStore()), testUserA)

	w := doJSON(r, http.MethodPost, "/api/conversations", gin.H{
		"participants": []string{testUserA},
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCreateConversationRequiresBody(t *testing.T) {
	r := messageRouter(testAPI(storage.NewMemoryStore()), testUserA)

	w := doJSON(r, http.MethodPost, "/api/conversations", gin.H{})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGetConversationNotFound(t *testing.T) {
	r := messageRouter(testAPI(storage.NewMemoryStore()), testUserA)

	w := doJSON(r, http.MethodGet, "/api/conversations/"+primitive.NewObjectID().Hex(), nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestGetConversationForbiddenForOutsider(t *testing.T) {
	store := storage.NewMemoryStore()
	conv := seedConversation(t, store, testUserA, testUserB)
	r := messageRouter(testAPI(store), outsider)

	w := doJSON(r, http.MethodGet, "/api/conversations/"+conv.ID, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestGetMessages(t *testing.T) {
	store := storage.NewMemoryStore()
	conv := seedConversation(t, store, testUserA, testUserB)

	msg := storage.Message{
		ConversationID: conv.ID,
		SenderID:       testUserB,
		Content:        "hello",
		Type:           storage.MessageText,
		CreatedAt:      time.Now().Unix(),
	}
	require.NoError(t, store.SendMessage(context.Background(), &msg))

	r := messageRouter(testAPI(store), testUserA)
	w := doJSON(r, http.MethodGet, "/api/conversations/"+conv.ID+"/messages", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var messages []storage.Message
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &messages))
	require.Len(t, messages, 1)
	assert.Equal(t, "hello", messages[0].Content)
}

func TestGetMessagesForbiddenForOutsider(t *testing.T) {
	store := storage.NewMemoryStore()
	conv := seedConversation(t, store, testUserA, testUserB)

	r := messageRouter(testAPI(store), outsider)
	w := doJSON(r, http.MethodGet, "/api/conversations/"+conv.ID+"/messages", nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestMarkConversationRead(t *testing.T) {
	store := storage.NewMemoryStore()
	conv := seedConversation(t, store, testUserA, testUserB)

	msg := storage.Message{
		ConversationID: conv.ID,
		SenderID:       testUserB,
		Content:        "unread",
		Type:           storage.MessageText,
		CreatedAt:      time.Now().Unix(),
	}
	require.NoError(t, store.SendMessage(context.Background(), &msg))

	r := messageRouter(testAPI(store), testUserA)
	w := doJSON(r, http.MethodPut, "/api/conversations/"+conv.ID+"/read", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		UpdatedCount int64 `json:"updatedCount"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, int64(1), resp.UpdatedCount)

	msgs, err := store.ListMessages(context.Background(), conv.ID)
	require.NoError(t, err)
	assert.True(t, msgs[0].IsRead)
}

func TestSendTypingIndicator(t *testing.T) {
	store := storage.NewMemoryStore()
	conv := seedConversation(t, store, testUserA, testUserB)
	r := messageRouter(testAPI(store), testUserA)

	w := doJSON(r, http.MethodPost, "/api/messages/typing", gin.H{
		"conversationId": conv.ID,
		"typing":         true,
	})
	assert.Equal(t, http.StatusOK, w.Code)

	w = doJSON(r, http.MethodPost, "/api/messages/typing", gin.H{})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSendTypingIndicatorUnknownConversation(t *testing.T) {
	r := messageRouter(testAPI(storage.NewMemoryStore()), testUserA)

	w := doJSON(r, http.MethodPost, "/api/messages/typing", gin.H{
		"conversationId": primitive.NewObjectID().Hex(),
		"typing":         true,
	})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestSendTypingIndicatorForbiddenForOutsider(t *testing.T) {
	store := storage.NewMemoryStore()
	conv := seedConversation(t, store, testUserA, testUserB)
	r := messageRouter(testAPI(store), outsider)

	w := doJSON(r, http.MethodPost, "/api/messages/typing", gin.H{
		"conversationId": conv.ID,
		"typing":         true,
	})
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestPushContent(t *testing.T) {
	title, body := pushContent("like", "Ada")
	assert.Equal(t, "New like", title)
	assert.Equal(t, "Ada liked your post", body)

	title, _ = pushContent("follow", "")
	assert.Equal(t, "New follower", title)

	title, _ = pushContent("unknown-type", "Ada")
	assert.Empty(t, title)
}
