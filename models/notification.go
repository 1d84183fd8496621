package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Notification types.
const (
	NotifFollow        = "follow"
	NotifFriendRequest = "friend_request"
	NotifFriendAccept  = "friend_accept"
	NotifLike          = "like"
	NotifComment       = "comment"
	NotifMessage       = "message"
)

// NotificationTTL controls the TTL index on expiresAt.
const NotificationTTL = 30 * 24 * time.Hour

type Notification struct {
	ID        primitive.ObjectID  `bson:"_id,omitempty" json:"id"`
	Recipient primitive.ObjectID  `bson:"recipient" json:"recipient"`
	Actor     primitive.ObjectID  `bson:"actor" json:"actor"`
	Type      string              `bson:"type" json:"type"`
	PostID    *primitive.ObjectID `bson:"postId,omitempty" json:"postId,omitempty"`
	CommentID *primitive.ObjectID `bson:"commentId,omitempty" json:"commentId,omitempty"`
	// Conversation lives in whichever message backend is active, so the
	// reference is an opaque string rather than an ObjectID.
	ConversationID string    `bson:"conversationId,omitempty" json:"conversationId,omitempty"`
	Read           bool      `bson:"read" json:"read"`
	CreatedAt      int64     `bson:"createdAt" json:"createdAt"`
	ExpiresAt      time.Time `bson:"expiresAt" json:"-"`
}
