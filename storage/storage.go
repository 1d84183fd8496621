// Package storage abstracts direct-message persistence so the REST layer
// stays identical whether conversations live in MongoDB or in a hosted
// Postgres reached over the Supabase REST API.
package storage

import (
	"context"
	"errors"
)

var (
	ErrNotFound       = errors.New("storage: not found")
	ErrNotParticipant = errors.New("storage: user is not a participant")
)

// Message content types.
const (
	MessageText  = "text"
	MessageImage = "image"
	MessageVoice = "voice"
)

// Conversation ids and participant ids are opaque strings: ObjectID hex on
// the Mongo backend, UUIDs on the Supabase backend for conversation ids.
type Conversation struct {
	ID            string   `json:"id"`
	Participants  []string `json:"participants"`
	LastMessage   string   `json:"lastMessage,omitempty"`
	LastMessageAt int64    `json:"lastMessageAt"`
	CreatedAt     int64    `json:"createdAt"`
}

type Message struct {
	ID             string `json:"id"`
	ConversationID string `json:"conversationId"`
	SenderID       string `json:"senderId"`
	Content        string `json:"content"`
	Type           string `json:"type"`
	IsRead         bool   `json:"isRead"`
	CreatedAt      int64  `json:"createdAt"`
}

// MessageStore is the messaging backend selected at startup.
type MessageStore interface {
	// CreateConversation finds or creates the conversation with exactly the
	// given participant set and reports whether it already existed.
	CreateConversation(ctx context.Context, participants []string) (*Conversation, bool, error)

	// GetConversation returns the conversation if userID participates in it,
	// ErrNotFound if it does not exist and ErrNotParticipant otherwise.
	GetConversation(ctx context.Context, id, userID string) (*Conversation, error)

	// ListConversations returns userID's conversations, most recent first.
	ListConversations(ctx context.Context, userID string) ([]Conversation, error)

	// SendMessage appends a message and bumps the conversation's
	// lastMessage/lastMessageAt.
	SendMessage(ctx context.Context, msg *Message) error

	// ListMessages returns a conversation's messages in chronological order.
	ListMessages(ctx context.Context, conversationID string) ([]Message, error)

	// MarkRead marks every unread message not sent by userID as read and
	// returns how many were updated.
	MarkRead(ctx context.Context, conversationID, userID string) (int64, error)
}

// HasParticipant reports whether id is in the conversation's participant set.
func (c *Conversation) HasParticipant(id string) bool {
	for _, p := range c.Participants {
		if p == id {
			return true
		}
	}
	return false
}
