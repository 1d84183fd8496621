// Package websocket delivers realtime events to connected clients.
package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"ripple/middleware"
)

// Event types pushed to clients.
const (
	EventConnected    = "connected"
	EventNewMessage   = "new_message"
	EventMessageRead  = "message_read"
	EventTypingStart  = "typing_start"
	EventTypingEnd    = "typing_end"
	EventNotification = "notification"
	EventPong         = "pong"
)

// ConversationResolver returns a conversation's participant user ids,
// verifying that userID is one of them. It lets the manager address
// conversation events without knowing which message backend is active.
type ConversationResolver func(ctx context.Context, conversationID, userID string) ([]string, error)

type Manager struct {
	clients    map[*Client]bool
	broadcast  chan []byte
	register   chan *Client
	unregister chan *Client
	mu         sync.RWMutex
	log        *logrus.Logger
	resolve    ConversationResolver
}

type Client struct {
	conn    *websocket.Conn
	userID  string
	send    chan []byte
	manager *Manager
}

func NewManager(log *logrus.Logger, resolve ConversationResolver) *Manager {
	return &Manager{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan []byte, 64),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		log:        log,
		resolve:    resolve,
	}
}

func (m *Manager) Start() {
	for {
		select {
		case client := <-m.register:
			m.mu.Lock()
			m.clients[client] = true
			total := len(m.clients)
			m.mu.Unlock()
			m.log.WithFields(logrus.Fields{"userId": client.userID, "clients": total}).Info("websocket client registered")

		case client := <-m.unregister:
			m.mu.Lock()
			if _, ok := m.clients[client]; ok {
				delete(m.clients, client)
				close(client.send)
			}
			total := len(m.clients)
			m.mu.Unlock()
			m.log.WithFields(logrus.Fields{"userId": client.userID, "clients": total}).Info("websocket client unregistered")

		case message := <-m.broadcast:
			m.mu.Lock()
			for client := range m.clients {
				select {
				case client.send <- message:
				default:
					close(client.send)
					delete(m.clients, client)
				}
			}
			m.mu.Unlock()
		}
	}
}

func (m *Manager) marshalEvent(eventType string, payload interface{}) []byte {
	msg, err := json.Marshal(map[string]interface{}{
		"type":    eventType,
		"payload": payload,
	})
	if err != nil {
		m.log.WithError(err).Error("marshal websocket event")
		return nil
	}
	return msg
}

// Broadcast sends a typed event to every connected client.
func (m *Manager) Broadcast(eventType string, payload interface{}) {
	if msg := m.marshalEvent(eventType, payload); msg != nil {
		m.broadcast <- msg
	}
}

// SendToUser delivers a typed event to every connection a user holds.
func (m *Manager) SendToUser(userID, eventType string, payload interface{}) {
	msg := m.marshalEvent(eventType, payload)
	if msg == nil {
		return
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	for client := range m.clients {
		if client.userID != userID {
			continue
		}
		select {
		case client.send <- msg:
		default:
		}
	}
}

// SendToConversation delivers a typed event to every participant of a
// conversation except the sender. Events are dropped when no resolver is
// configured or the sender does not participate; conversation traffic is
// never broadcast.
func (m *Manager) SendToConversation(conversationID, senderID, eventType string, payload interface{}) {
	if m.resolve == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	participants, err := m.resolve(ctx, conversationID, senderID)
	if err != nil {
		m.log.WithError(err).WithField("conversationId", conversationID).Warn("resolve conversation for relay")
		return
	}
	for _, p := range participants {
		if p == senderID {
			continue
		}
		m.SendToUser(p, eventType, payload)
	}
}

func (m *Manager) ConnectedClients() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.clients)
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// Handler upgrades the connection after validating the JWT passed as the
// token query parameter.
func Handler(manager *Manager, jwtSecret string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token := r.URL.Query().Get("token")
		if token == "" {
			http.Error(w, "Token required", http.StatusUnauthorized)
			return
		}

		claims, err := middleware.ParseToken(token, jwtSecret)
		if err != nil {
			http.Error(w, "Invalid token", http.StatusUnauthorized)
			return
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			manager.log.WithError(err).Error("websocket upgrade failed")
			return
		}

		client := &Client{
			conn:    conn,
			userID:  claims.UserID,
			send:    make(chan []byte, 256),
			manager: manager,
		}

		manager.register <- client

		welcome := manager.marshalEvent(EventConnected, map[string]interface{}{
			"userId": client.userID,
			"time":   time.Now().Unix(),
		})
		if welcome != nil {
			client.send <- welcome
		}

		go client.writePump()
		go client.readPump()
	}
}

func (c *Client) readPump() {
	defer func() {
		c.manager.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadLimit(4096)
	c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.manager.log.WithError(err).Warn("websocket read error")
			}
			break
		}

		var data map[string]interface{}
		if err := json.Unmarshal(message, &data); err != nil {
			continue
		}

		switch data["type"] {
		case EventTypingStart:
			c.relayTyping(EventTypingStart, data)
		case EventTypingEnd:
			c.relayTyping(EventTypingEnd, data)
		case EventMessageRead:
			c.relayRead(data)
		case "ping":
			c.sendPong()
		}
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(30 * time.Second)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(message)
			if err := w.Close(); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Client) relayTyping(eventType string, data map[string]interface{}) {
	payload, ok := data["payload"].(map[string]interface{})
	if !ok {
		return
	}
	convID, ok := payload["conversationId"].(string)
	if !ok || convID == "" {
		return
	}
	c.manager.SendToConversation(convID, c.userID, eventType, map[string]interface{}{
		"conversationId": convID,
		"userId":         c.userID,
		"timestamp":      time.Now().Unix(),
	})
}

func (c *Client) relayRead(data map[string]interface{}) {
	payload, ok := data["payload"].(map[string]interface{})
	if !ok {
		return
	}
	convID, ok := payload["conversationId"].(string)
	if !ok || convID == "" {
		return
	}
	c.manager.SendToConversation(convID, c.userID, EventMessageRead, map[string]interface{}{
		"conversationId": convID,
		"userId":         c.userID,
		"messageIds":     payload["messageIds"],
		"timestamp":      time.Now().Unix(),
	})
}

func (c *Client) sendPong() {
	msg := c.manager.marshalEvent(EventPong, map[string]interface{}{
		"time": time.Now().Unix(),
	})
	if msg != nil {
		c.send <- msg
	}
}
