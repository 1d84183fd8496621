package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"ripple/models"
	"ripple/storage"
	"ripple/websocket"
)

func storageError(c *gin.Context, err error) {
	switch err {
	case storage.ErrNotFound:
		c.JSON(http.StatusNotFound, gin.H{"error": "Conversation not found"})
	case storage.ErrNotParticipant:
		c.JSON(http.StatusForbidden, gin.H{"error": "Access denied to conversation"})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Messaging backend error"})
	}
}

type CreateConversationRequest struct {
	Participants []string `json:"participants" binding:"required,min=1"`
}

func (a *API) CreateConversation(c *gin.Context) {
	var req CreateConversationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	ctx, cancel := requestContext()
	defer cancel()

	participants := []string{userID.Hex()}
	for _, p := range req.Participants {
		pID, err := primitive.ObjectIDFromHex(p)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid participant ID"})
			return
		}
		if pID == userID {
			continue
		}

		blocked, err := a.Rel.Blocked(ctx, userID, pID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to check relationship"})
			return
		}
		if blocked {
			c.JSON(http.StatusForbidden, gin.H{"error": "Cannot start a conversation with this user"})
			return
		}
		participants = append(participants, pID.Hex())
	}

	if len(participants) < 2 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Conversation must have at least two participants"})
		return
	}

	conv, existed, err := a.Store.CreateConversation(ctx, participants)
	if err != nil {
		a.Log.WithError(err).Error("create conversation")
		storageError(c, err)
		return
	}

	if existed {
		c.JSON(http.StatusOK, gin.H{"id": conv.ID})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"id": conv.ID, "conversation": conv})
}

func (a *API) GetConversations(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	ctx, cancel := requestContext()
	defer cancel()

	conversations, err := a.Store.ListConversations(ctx, userID.Hex())
	if err != nil {
		a.Log.WithError(err).Error("list conversations")
		storageError(c, err)
		return
	}

	response := make([]map[string]interface{}, len(conversations))
	for i, conv := range conversations {
		response[i] = map[string]interface{}{
			"id":            conv.ID,
			"lastMessage":   conv.LastMessage,
			"lastMessageAt": conv.LastMessageAt,
			"partner":       a.partnerProfile(ctx, &conv, userID),
		}
	}

	c.JSON(http.StatusOK, response)
}

// partnerProfile resolves the other participant's public card, falling back
// to placeholders so the client never sees a null partner.
func (a *API) partnerProfile(ctx context.Context, conv *storage.Conversation, userID primitive.ObjectID) map[string]interface{} {
	partnerMap := map[string]interface{}{
		"id":     "",
		"name":   "Unknown",
		"avatar": fallbackAvatar,
		"status": "offline",
	}

	for _, p := range conv.Participants {
		if p == userID.Hex() {
			continue
		}
		pID, err := primitive.ObjectIDFromHex(p)
		if err != nil {
			break
		}
		var partner models.User
		if err := a.DB.Users.FindOne(ctx, bson.M{"_id": pID}).Decode(&partner); err != nil {
			break
		}
		partnerMap["id"] = partner.ID.Hex()
		if partner.Name != "" {
			partnerMap["name"] = partner.Name
		}
		if partner.Avatar != "" {
			partnerMap["avatar"] = partner.Avatar
		}
		if partner.Status != "" {
			partnerMap["status"] = partner.Status
		}
		break
	}
	return partnerMap
}

func (a *API) GetConversation(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	ctx, cancel := requestContext()
	defer cancel()

	conv, err := a.Store.GetConversation(ctx, c.Param("id"), userID.Hex())
	if err != nil {
		storageError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"id":            conv.ID,
		"lastMessage":   conv.LastMessage,
		"lastMessageAt": conv.LastMessageAt,
		"partner":       a.partnerProfile(ctx, conv, userID),
	})
}

type SendMessageRequest struct {
	ConversationID string `json:"conversationId" binding:"required"`
	Content        string `json:"content" binding:"required,max=5000"`
	Type           string `json:"type" binding:"omitempty,oneof=text image voice"`
}

func (a *API) SendMessage(c *gin.Context) {
	var req SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.Type == "" {
		req.Type = storage.MessageText
	}

	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	ctx, cancel := requestContext()
	defer cancel()

	conv, err := a.Store.GetConversation(ctx, req.ConversationID, userID.Hex())
	if err != nil {
		storageError(c, err)
		return
	}

	// A block placed after the conversation was created still stops traffic
	for _, p := range conv.Participants {
		pID, err := primitive.ObjectIDFromHex(p)
		if err != nil || pID == userID {
			continue
		}
		blocked, err := a.Rel.Blocked(ctx, userID, pID)
		if err == nil && blocked {
			c.JSON(http.StatusForbidden, gin.H{"error": "Cannot message this user"})
			return
		}
	}

	msg := storage.Message{
		ConversationID: conv.ID,
		SenderID:       userID.Hex(),
		Content:        req.Content,
		Type:           req.Type,
		CreatedAt:      time.Now().Unix(),
	}
	if err := a.Store.SendMessage(ctx, &msg); err != nil {
		a.Log.WithError(err).Error("send message")
		storageError(c, err)
		return
	}

	for _, p := range conv.Participants {
		// The sender's other devices get the event too
		a.WS.SendToUser(p, websocket.EventNewMessage, msg)

		if p == userID.Hex() {
			continue
		}
		recipientID, err := primitive.ObjectIDFromHex(p)
		if err != nil {
			continue
		}
		go a.notify(models.Notification{
			Recipient:      recipientID,
			Actor:          userID,
			Type:           models.NotifMessage,
			ConversationID: conv.ID,
		})
	}

	c.JSON(http.StatusCreated, gin.H{
		"message": "Message sent",
		"id":      msg.ID,
	})
}

func (a *API) GetMessages(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	ctx, cancel := requestContext()
	defer cancel()

	convID := c.Param("id")
	if _, err := a.Store.GetConversation(ctx, convID, userID.Hex()); err != nil {
		storageError(c, err)
		return
	}

	messages, err := a.Store.ListMessages(ctx, convID)
	if err != nil {
		a.Log.WithError(err).Error("list messages")
		storageError(c, err)
		return
	}

	if messages == nil {
		messages = []storage.Message{}
	}
	c.JSON(http.StatusOK, messages)
}

func (a *API) MarkConversationRead(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	ctx, cancel := requestContext()
	defer cancel()

	convID := c.Param("id")
	conv, err := a.Store.GetConversation(ctx, convID, userID.Hex())
	if err != nil {
		storageError(c, err)
		return
	}

	updated, err := a.Store.MarkRead(ctx, convID, userID.Hex())
	if err != nil {
		a.Log.WithError(err).Error("mark conversation read")
		storageError(c, err)
		return
	}

	readEvent := map[string]interface{}{
		"conversationId": convID,
		"userId":         userID.Hex(),
		"timestamp":      time.Now().Unix(),
	}
	for _, p := range conv.Participants {
		if p == userID.Hex() {
			continue
		}
		a.WS.SendToUser(p, websocket.EventMessageRead, readEvent)
	}

	c.JSON(http.StatusOK, gin.H{
		"message":      "Marked as read",
		"updatedCount": updated,
	})
}

type TypingRequest struct {
	ConversationID string `json:"conversationId" binding:"required"`
	Typing         bool   `json:"typing"`
}

// SendTypingIndicator relays typing state over the socket layer for clients
// that only speak HTTP. Delivery is scoped to the conversation's other
// participants.
func (a *API) SendTypingIndicator(c *gin.Context) {
	var req TypingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	ctx, cancel := requestContext()
	defer cancel()

	conv, err := a.Store.GetConversation(ctx, req.ConversationID, userID.Hex())
	if err != nil {
		storageError(c, err)
		return
	}

	event := websocket.EventTypingEnd
	if req.Typing {
		event = websocket.EventTypingStart
	}
	payload := map[string]interface{}{
		"conversationId": conv.ID,
		"userId":         userID.Hex(),
		"timestamp":      time.Now().Unix(),
	}
	for _, p := range conv.Participants {
		if p == userID.Hex() {
			continue
		}
		a.WS.SendToUser(p, event, payload)
	}

	c.JSON(http.StatusOK, gin.H{"message": "Typing indicator sent"})
}
