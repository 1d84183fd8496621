package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

const maxSupabaseResponseBytes = 8 << 20 // 8 MiB

// SupabaseClient is a thin client for the Supabase REST (PostgREST) API.
type SupabaseClient struct {
	url        string
	serviceKey string
	httpClient *http.Client
}

type SupabaseConfig struct {
	URL        string
	ServiceKey string
}

func NewSupabaseClient(cfg SupabaseConfig) (*SupabaseClient, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("supabase URL is required")
	}
	if cfg.ServiceKey == "" {
		return nil, fmt.Errorf("supabase service key is required")
	}
	return &SupabaseClient{
		url:        strings.TrimRight(cfg.URL, "/"),
		serviceKey: cfg.ServiceKey,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}, nil
}

// Request makes an HTTP request against /rest/v1/<table>.
func (c *SupabaseClient) Request(ctx context.Context, method, table string, body interface{}, query string) ([]byte, error) {
	url := fmt.Sprintf("%s/rest/v1/%s", c.url, table)
	if query != "" {
		url += "?" + query
	}

	var reqBody io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal body: %w", err)
		}
		reqBody = bytes.NewReader(jsonBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reqBody)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("apikey", c.serviceKey)
	req.Header.Set("Authorization", "Bearer "+c.serviceKey)
	req.Header.Set("Prefer", "return=representation")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxSupabaseResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("supabase API error %d: %s", resp.StatusCode, strings.TrimSpace(string(respBody)))
	}
	return respBody, nil
}

// SupabaseStore keeps conversations and messages in hosted Postgres tables
// reached through the Supabase REST API.
type SupabaseStore struct {
	client *SupabaseClient
}

type supaConversation struct {
	ID            string   `json:"id"`
	Participants  []string `json:"participants"`
	LastMessage   string   `json:"last_message,omitempty"`
	LastMessageAt int64    `json:"last_message_at"`
	CreatedAt     int64    `json:"created_at"`
}

type supaMessage struct {
	ID             string `json:"id"`
	ConversationID string `json:"conversation_id"`
	SenderID       string `json:"sender_id"`
	Content        string `json:"content"`
	Type           string `json:"type"`
	IsRead         bool   `json:"is_read"`
	CreatedAt      int64  `json:"created_at"`
	SourceID       string `json:"source_id,omitempty"`
}

func NewSupabaseStore(client *SupabaseClient) *SupabaseStore {
	return &SupabaseStore{client: client}
}

func (s *SupabaseStore) CreateConversation(ctx context.Context, participants []string) (*Conversation, bool, error) {
	sorted := append([]string(nil), participants...)
	sort.Strings(sorted)

	// cs (contains) matches supersets, so the exact set is confirmed by size.
	query := fmt.Sprintf("participants=cs.{%s}", strings.Join(sorted, ","))
	data, err := s.client.Request(ctx, http.MethodGet, "conversations", nil, query)
	if err != nil {
		return nil, false, err
	}

	var rows []supaConversation
	if err := json.Unmarshal(data, &rows); err != nil {
		return nil, false, fmt.Errorf("decode conversations: %w", err)
	}
	for _, row := range rows {
		if len(row.Participants) == len(sorted) {
			return row.toConversation(), true, nil
		}
	}

	now := time.Now().Unix()
	conv := supaConversation{
		ID:            uuid.NewString(),
		Participants:  sorted,
		LastMessageAt: now,
		CreatedAt:     now,
	}
	data, err = s.client.Request(ctx, http.MethodPost, "conversations", conv, "")
	if err != nil {
		return nil, false, err
	}
	var inserted []supaConversation
	if err := json.Unmarshal(data, &inserted); err == nil && len(inserted) > 0 {
		conv = inserted[0]
	}
	return conv.toConversation(), false, nil
}

func (s *SupabaseStore) GetConversation(ctx context.Context, id, userID string) (*Conversation, error) {
	data, err := s.client.Request(ctx, http.MethodGet, "conversations", nil, "id=eq."+id+"&limit=1")
	if err != nil {
		return nil, err
	}

	var rows []supaConversation
	if err := json.Unmarshal(data, &rows); err != nil {
		return nil, fmt.Errorf("decode conversation: %w", err)
	}
	if len(rows) == 0 {
		return nil, ErrNotFound
	}

	conv := rows[0].toConversation()
	if !conv.HasParticipant(userID) {
		return nil, ErrNotParticipant
	}
	return conv, nil
}

func (s *SupabaseStore) ListConversations(ctx context.Context, userID string) ([]Conversation, error) {
	query := fmt.Sprintf("participants=cs.{%s}&order=last_message_at.desc", userID)
	data, err := s.client.Request(ctx, http.MethodGet, "conversations", nil, query)
	if err != nil {
		return nil, err
	}

	var rows []supaConversation
	if err := json.Unmarshal(data, &rows); err != nil {
		return nil, fmt.Errorf("decode conversations: %w", err)
	}

	out := make([]Conversation, len(rows))
	for i, row := range rows {
		out[i] = *row.toConversation()
	}
	return out, nil
}

func (s *SupabaseStore) SendMessage(ctx context.Context, msg *Message) error {
	row := supaMessage{
		ID:             uuid.NewString(),
		ConversationID: msg.ConversationID,
		SenderID:       msg.SenderID,
		Content:        msg.Content,
		Type:           msg.Type,
		CreatedAt:      msg.CreatedAt,
	}
	if _, err := s.client.Request(ctx, http.MethodPost, "messages", row, ""); err != nil {
		return err
	}
	msg.ID = row.ID

	patch := map[string]interface{}{
		"last_message":    msg.Content,
		"last_message_at": msg.CreatedAt,
	}
	_, err := s.client.Request(ctx, http.MethodPatch, "conversations", patch, "id=eq."+msg.ConversationID)
	return err
}

func (s *SupabaseStore) ListMessages(ctx context.Context, conversationID string) ([]Message, error) {
	query := "conversation_id=eq." + conversationID + "&order=created_at.asc"
	data, err := s.client.Request(ctx, http.MethodGet, "messages", nil, query)
	if err != nil {
		return nil, err
	}

	var rows []supaMessage
	if err := json.Unmarshal(data, &rows); err != nil {
		return nil, fmt.Errorf("decode messages: %w", err)
	}

	out := make([]Message, len(rows))
	for i, row := range rows {
		out[i] = Message{
			ID:             row.ID,
			ConversationID: row.ConversationID,
			SenderID:       row.SenderID,
			Content:        row.Content,
			Type:           row.Type,
			IsRead:         row.IsRead,
			CreatedAt:      row.CreatedAt,
		}
	}
	return out, nil
}

func (s *SupabaseStore) MarkRead(ctx context.Context, conversationID, userID string) (int64, error) {
	query := "conversation_id=eq." + conversationID +
		"&sender_id=neq." + userID +
		"&is_read=eq.false"
	data, err := s.client.Request(ctx, http.MethodPatch, "messages", map[string]interface{}{"is_read": true}, query)
	if err != nil {
		return 0, err
	}

	var rows []supaMessage
	if err := json.Unmarshal(data, &rows); err != nil {
		return 0, fmt.Errorf("decode updated messages: %w", err)
	}
	return int64(len(rows)), nil
}

func (c *supaConversation) toConversation() *Conversation {
	return &Conversation{
		ID:            c.ID,
		Participants:  c.Participants,
		LastMessage:   c.LastMessage,
		LastMessageAt: c.LastMessageAt,
		CreatedAt:     c.CreatedAt,
	}
}
