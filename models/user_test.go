package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

func TestPublicProfileOmitsPrivateFields(t *testing.T) {
	hash := "bcrypt-hash"
	u := User{
		ID:           primitive.NewObjectID(),
		Email:        "ada@example.com",
		PasswordHash: &hash,
		GoogleID:     "google-123",
		Username:     "ada",
		Name:         "Ada Lovelace",
		Status:       "available",
	}

	profile := u.PublicProfile()

	assert.Equal(t, u.ID.Hex(), profile["id"])
	assert.Equal(t, "ada", profile["username"])
	assert.NotContains(t, profile, "email")
	assert.NotContains(t, profile, "passwordHash")
	assert.NotContains(t, profile, "googleId")
}
