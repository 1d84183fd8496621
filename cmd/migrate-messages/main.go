// Command migrate-messages copies conversations and messages from the Mongo
// message store into the Supabase tables, so a deployment can switch
// MESSAGE_BACKEND without losing history. The copy is idempotent: rows are
// keyed by their Mongo id in the source_id column and skipped when present.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"ripple/config"
	"ripple/database"
	"ripple/storage"
)

type sourceConversation struct {
	ID            primitive.ObjectID   `bson:"_id"`
	Participants  []primitive.ObjectID `bson:"participants"`
	LastMessage   string               `bson:"lastMessage,omitempty"`
	LastMessageAt int64                `bson:"lastMessageAt"`
	CreatedAt     int64                `bson:"createdAt"`
}

type sourceMessage struct {
	ID             primitive.ObjectID `bson:"_id"`
	ConversationID primitive.ObjectID `bson:"conversationId"`
	SenderID       primitive.ObjectID `bson:"senderId"`
	Content        string             `bson:"content"`
	Type           string             `bson:"type"`
	IsRead         bool               `bson:"isRead"`
	CreatedAt      int64              `bson:"createdAt"`
}

type targetConversation struct {
	ID            string   `json:"id"`
	Participants  []string `json:"participants"`
	LastMessage   string   `json:"last_message,omitempty"`
	LastMessageAt int64    `json:"last_message_at"`
	CreatedAt     int64    `json:"created_at"`
	SourceID      string   `json:"source_id"`
}

type targetMessage struct {
	ID             string `json:"id"`
	ConversationID string `json:"conversation_id"`
	SenderID       string `json:"sender_id"`
	Content        string `json:"content"`
	Type           string `json:"type"`
	IsRead         bool   `json:"is_read"`
	CreatedAt      int64  `json:"created_at"`
	SourceID       string `json:"source_id"`
}

func main() {
	log := logrus.New()
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	cfg, err := config.Load()
	if err != nil {
		log.WithError(err).Fatal("invalid configuration")
	}
	if cfg.SupabaseURL == "" || cfg.SupabaseServiceKey == "" {
		log.Fatal("SUPABASE_URL and SUPABASE_SERVICE_KEY must be set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Minute)
	defer cancel()

	db, err := database.Connect(ctx, cfg.MongoURI, cfg.MongoDB)
	if err != nil {
		log.WithError(err).Fatal("failed to connect to MongoDB")
	}
	defer db.Disconnect(context.Background())

	client, err := storage.NewSupabaseClient(storage.SupabaseConfig{
		URL:        cfg.SupabaseURL,
		ServiceKey: cfg.SupabaseServiceKey,
	})
	if err != nil {
		log.WithError(err).Fatal("failed to configure Supabase client")
	}

	m := migrator{ctx: ctx, db: db, client: client, log: log}

	convMap, copied, skipped, err := m.migrateConversations()
	if err != nil {
		log.WithError(err).Fatal("conversation migration failed")
	}
	log.WithFields(logrus.Fields{"copied": copied, "skipped": skipped}).Info("conversations migrated")

	copied, skipped, err = m.migrateMessages(convMap)
	if err != nil {
		log.WithError(err).Fatal("message migration failed")
	}
	log.WithFields(logrus.Fields{"copied": copied, "skipped": skipped}).Info("messages migrated")
}

type migrator struct {
	ctx    context.Context
	db     *database.Mongo
	client *storage.SupabaseClient
	log    *logrus.Logger
}

// exists checks for a row already migrated from the given source id.
func (m *migrator) exists(table, sourceID string) (bool, string, error) {
	data, err := m.client.Request(m.ctx, http.MethodGet, table, nil, "source_id=eq."+sourceID+"&select=id&limit=1")
	if err != nil {
		return false, "", err
	}
	var rows []struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(data, &rows); err != nil {
		return false, "", fmt.Errorf("decode existing rows: %w", err)
	}
	if len(rows) == 0 {
		return false, "", nil
	}
	return true, rows[0].ID, nil
}

// migrateConversations returns the Mongo-id to Supabase-id mapping needed to
// rewrite message foreign keys.
func (m *migrator) migrateConversations() (map[string]string, int, int, error) {
	cursor, err := m.db.DB.Collection("conversations").Find(m.ctx, bson.M{})
	if err != nil {
		return nil, 0, 0, fmt.Errorf("list conversations: %w", err)
	}
	defer cursor.Close(m.ctx)

	convMap := make(map[string]string)
	var copied, skipped int

	for cursor.Next(m.ctx) {
		var conv sourceConversation
		if err := cursor.Decode(&conv); err != nil {
			return nil, copied, skipped, fmt.Errorf("decode conversation: %w", err)
		}

		sourceID := conv.ID.Hex()
		found, targetID, err := m.exists("conversations", sourceID)
		if err != nil {
			return nil, copied, skipped, err
		}
		if found {
			convMap[sourceID] = targetID
			skipped++
			continue
		}

		participants := make([]string, len(conv.Participants))
		for i, p := range conv.Participants {
			participants[i] = p.Hex()
		}

		row := targetConversation{
			ID:            uuid.NewString(),
			Participants:  participants,
			LastMessage:   conv.LastMessage,
			LastMessageAt: conv.LastMessageAt,
			CreatedAt:     conv.CreatedAt,
			SourceID:      sourceID,
		}
		if _, err := m.client.Request(m.ctx, http.MethodPost, "conversations", row, ""); err != nil {
			return nil, copied, skipped, fmt.Errorf("insert conversation %s: %w", sourceID, err)
		}
		convMap[sourceID] = row.ID
		copied++
	}
	return convMap, copied, skipped, cursor.Err()
}

func (m *migrator) migrateMessages(convMap map[string]string) (int, int, error) {
	cursor, err := m.db.DB.Collection("messages").Find(m.ctx, bson.M{})
	if err != nil {
		return 0, 0, fmt.Errorf("list messages: %w", err)
	}
	defer cursor.Close(m.ctx)

	var copied, skipped int
	for cursor.Next(m.ctx) {
		var msg sourceMessage
		if err := cursor.Decode(&msg); err != nil {
			return copied, skipped, fmt.Errorf("decode message: %w", err)
		}

		targetConv, ok := convMap[msg.ConversationID.Hex()]
		if !ok {
			m.log.WithField("messageId", msg.ID.Hex()).Warn("orphan message, conversation missing")
			skipped++
			continue
		}

		sourceID := msg.ID.Hex()
		found, _, err := m.exists("messages", sourceID)
		if err != nil {
			return copied, skipped, err
		}
		if found {
			skipped++
			continue
		}

		row := targetMessage{
			ID:             uuid.NewString(),
			ConversationID: targetConv,
			SenderID:       msg.SenderID.Hex(),
			Content:        msg.Content,
			Type:           msg.Type,
			IsRead:         msg.IsRead,
			CreatedAt:      msg.CreatedAt,
			SourceID:       sourceID,
		}
		if _, err := m.client.Request(m.ctx, http.MethodPost, "messages", row, ""); err != nil {
			return copied, skipped, fmt.Errorf("insert message %s: %w", sourceID, err)
		}
		copied++
	}
	return copied, skipped, cursor.Err()
}
