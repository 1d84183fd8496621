package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// StoryTTL is how long a story stays visible after posting.
const StoryTTL = 24 * time.Hour

type Story struct {
	ID        primitive.ObjectID   `bson:"_id,omitempty" json:"id"`
	UserID    primitive.ObjectID   `bson:"userId" json:"userId"`
	MediaURL  string               `bson:"mediaUrl" json:"mediaUrl"`
	MediaType string               `bson:"mediaType" json:"mediaType"` // image, video
	Caption   string               `bson:"caption,omitempty" json:"caption,omitempty"`
	Viewers   []primitive.ObjectID `bson:"viewers" json:"-"`
	CreatedAt int64                `bson:"createdAt" json:"createdAt"`
	ExpiresAt time.Time            `bson:"expiresAt" json:"expiresAt"`
}
