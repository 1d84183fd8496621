package storage

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoStore keeps conversations and messages as documents, the original
// backend for direct messaging.
type MongoStore struct {
	conversations *mongo.Collection
	messages      *mongo.Collection
}

type mongoConversation struct {
	ID            primitive.ObjectID   `bson:"_id,omitempty"`
	Participants  []primitive.ObjectID `bson:"participants"`
	LastMessage   string               `bson:"lastMessage,omitempty"`
	LastMessageAt int64                `bson:"lastMessageAt"`
	CreatedAt     int64                `bson:"createdAt"`
}

type mongoMessage struct {
	ID             primitive.ObjectID `bson:"_id,omitempty"`
	ConversationID primitive.ObjectID `bson:"conversationId"`
	SenderID       primitive.ObjectID `bson:"senderId"`
	Content        string             `bson:"content"`
	Type           string             `bson:"type"`
	IsRead         bool               `bson:"isRead"`
	CreatedAt      int64              `bson:"createdAt"`
}

func NewMongoStore(db *mongo.Database) *MongoStore {
	return &MongoStore{
		conversations: db.Collection("conversations"),
		messages:      db.Collection("messages"),
	}
}

func (s *MongoStore) CreateConversation(ctx context.Context, participants []string) (*Conversation, bool, error) {
	ids, err := toObjectIDs(participants)
	if err != nil {
		return nil, false, err
	}

	filter := bson.M{
		"participants": bson.M{
			"$all":  ids,
			"$size": len(ids),
		},
	}

	var existing mongoConversation
	err = s.conversations.FindOne(ctx, filter).Decode(&existing)
	if err == nil {
		return existing.toConversation(), true, nil
	}
	if err != mongo.ErrNoDocuments {
		return nil, false, fmt.Errorf("find conversation: %w", err)
	}

	now := time.Now().Unix()
	conv := mongoConversation{
		ID:            primitive.NewObjectID(),
		Participants:  ids,
		LastMessageAt: now,
		CreatedAt:     now,
	}
	if _, err := s.conversations.InsertOne(ctx, conv); err != nil {
		return nil, false, fmt.Errorf("insert conversation: %w", err)
	}
	return conv.toConversation(), false, nil
}

func (s *MongoStore) GetConversation(ctx context.Context, id, userID string) (*Conversation, error) {
	convID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, ErrNotFound
	}

	var conv mongoConversation
	err = s.conversations.FindOne(ctx, bson.M{"_id": convID}).Decode(&conv)
	if err == mongo.ErrNoDocuments {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find conversation: %w", err)
	}

	out := conv.toConversation()
	if !out.HasParticipant(userID) {
		return nil, ErrNotParticipant
	}
	return out, nil
}

func (s *MongoStore) ListConversations(ctx context.Context, userID string) ([]Conversation, error) {
	uid, err := primitive.ObjectIDFromHex(userID)
	if err != nil {
		return nil, fmt.Errorf("invalid user id: %w", err)
	}

	opts := options.Find().SetSort(bson.D{{Key: "lastMessageAt", Value: -1}})
	cursor, err := s.conversations.Find(ctx, bson.M{"participants": uid}, opts)
	if err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}
	defer cursor.Close(ctx)

	var docs []mongoConversation
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode conversations: %w", err)
	}

	out := make([]Conversation, len(docs))
	for i, d := range docs {
		out[i] = *d.toConversation()
	}
	return out, nil
}

func (s *MongoStore) SendMessage(ctx context.Context, msg *Message) error {
	convID, err := primitive.ObjectIDFromHex(msg.ConversationID)
	if err != nil {
		return ErrNotFound
	}
	senderID, err := primitive.ObjectIDFromHex(msg.SenderID)
	if err != nil {
		return fmt.Errorf("invalid sender id: %w", err)
	}

	doc := mongoMessage{
		ID:             primitive.NewObjectID(),
		ConversationID: convID,
		SenderID:       senderID,
		Content:        msg.Content,
		Type:           msg.Type,
		CreatedAt:      msg.CreatedAt,
	}
	if _, err := s.messages.InsertOne(ctx, doc); err != nil {
		return fmt.Errorf("insert message: %w", err)
	}
	msg.ID = doc.ID.Hex()

	_, err = s.conversations.UpdateOne(ctx,
		bson.M{"_id": convID},
		bson.M{"$set": bson.M{
			"lastMessage":   msg.Content,
			"lastMessageAt": msg.CreatedAt,
		}},
	)
	if err != nil {
		return fmt.Errorf("update conversation: %w", err)
	}
	return nil
}

func (s *MongoStore) ListMessages(ctx context.Context, conversationID string) ([]Message, error) {
	convID, err := primitive.ObjectIDFromHex(conversationID)
	if err != nil {
		return nil, ErrNotFound
	}

	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: 1}})
	cursor, err := s.messages.Find(ctx, bson.M{"conversationId": convID}, opts)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer cursor.Close(ctx)

	var docs []mongoMessage
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode messages: %w", err)
	}

	out := make([]Message, len(docs))
	for i, d := range docs {
		out[i] = Message{
			ID:             d.ID.Hex(),
			ConversationID: d.ConversationID.Hex(),
			SenderID:       d.SenderID.Hex(),
			Content:        d.Content,
			Type:           d.Type,
			IsRead:         d.IsRead,
			CreatedAt:      d.CreatedAt,
		}
	}
	return out, nil
}

func (s *MongoStore) MarkRead(ctx context.Context, conversationID, userID string) (int64, error) {
	convID, err := primitive.ObjectIDFromHex(conversationID)
	if err != nil {
		return 0, ErrNotFound
	}
	uid, err := primitive.ObjectIDFromHex(userID)
	if err != nil {
		return 0, fmt.Errorf("invalid user id: %w", err)
	}

	result, err := s.messages.UpdateMany(ctx,
		bson.M{
			"conversationId": convID,
			"senderId":       bson.M{"$ne": uid},
			"isRead":         false,
		},
		bson.M{"$set": bson.M{"isRead": true}},
	)
	if err != nil {
		return 0, fmt.Errorf("mark read: %w", err)
	}
	return result.ModifiedCount, nil
}

func (c *mongoConversation) toConversation() *Conversation {
	participants := make([]string, len(c.Participants))
	for i, p := range c.Participants {
		participants[i] = p.Hex()
	}
	return &Conversation{
		ID:            c.ID.Hex(),
		Participants:  participants,
		LastMessage:   c.LastMessage,
		LastMessageAt: c.LastMessageAt,
		CreatedAt:     c.CreatedAt,
	}
}

func toObjectIDs(ids []string) ([]primitive.ObjectID, error) {
	out := make([]primitive.ObjectID, len(ids))
	for i, id := range ids {
		oid, err := primitive.ObjectIDFromHex(id)
		if err != nil {
			return nil, fmt.Errorf("invalid participant id %q: %w", id, err)
		}
		out[i] = oid
	}
	return out, nil
}
