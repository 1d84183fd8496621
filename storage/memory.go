package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// MemoryStore is an in-process MessageStore used by tests.
type MemoryStore struct {
	mu            sync.Mutex
	conversations map[string]*Conversation
	messages      map[string][]Message
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		conversations: make(map[string]*Conversation),
		messages:      make(map[string][]Message),
	}
}

func (s *MemoryStore) CreateConversation(_ context.Context, participants []string) (*Conversation, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sorted := append([]string(nil), participants...)
	sort.Strings(sorted)

	for _, conv := range s.conversations {
		if sameSet(conv.Participants, sorted) {
			copied := *conv
			return &copied, true, nil
		}
	}

	now := time.Now().Unix()
	conv := &Conversation{
		ID:            primitive.NewObjectID().Hex(),
		Participants:  sorted,
		LastMessageAt: now,
		CreatedAt:     now,
	}
	s.conversations[conv.ID] = conv
	copied := *conv
	return &copied, false, nil
}

func (s *MemoryStore) GetConversation(_ context.Context, id, userID string) (*Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	conv, ok := s.conversations[id]
	if !ok {
		return nil, ErrNotFound
	}
	if !conv.HasParticipant(userID) {
		return nil, ErrNotParticipant
	}
	copied := *conv
	return &copied, nil
}

func (s *MemoryStore) ListConversations(_ context.Context, userID string) ([]Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []Conversation
	for _, conv := range s.conversations {
		if conv.HasParticipant(userID) {
			out = append(out, *conv)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].LastMessageAt > out[j].LastMessageAt
	})
	return out, nil
}

func (s *MemoryStore) SendMessage(_ context.Context, msg *Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	conv, ok := s.conversations[msg.ConversationID]
	if !ok {
		return ErrNotFound
	}

	msg.ID = primitive.NewObjectID().Hex()
	s.messages[msg.ConversationID] = append(s.messages[msg.ConversationID], *msg)
	conv.LastMessage = msg.Content
	conv.LastMessageAt = msg.CreatedAt
	return nil
}

func (s *MemoryStore) ListMessages(_ context.Context, conversationID string) ([]Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	msgs := s.messages[conversationID]
	out := make([]Message, len(msgs))
	copy(out, msgs)
	return out, nil
}

func (s *MemoryStore) MarkRead(_ context.Context, conversationID, userID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var updated int64
	msgs := s.messages[conversationID]
	for i := range msgs {
		if msgs[i].SenderID != userID && !msgs[i].IsRead {
			msgs[i].IsRead = true
			updated++
		}
	}
	return updated, nil
}

func sameSet(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
