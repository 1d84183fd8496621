package models

import "go.mongodb.org/mongo-driver/bson/primitive"

type User struct {
	ID           primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Email        string             `bson:"email" json:"email"`
	PasswordHash *string            `bson:"passwordHash,omitempty" json:"-"`
	AuthProvider string             `bson:"authProvider" json:"-"` // email, google
	GoogleID     string             `bson:"googleId,omitempty" json:"-"`

	Username  string `bson:"username" json:"username"`
	Name      string `bson:"name" json:"name"`
	Avatar    string `bson:"avatar" json:"avatar"`
	Bio       string `bson:"bio" json:"bio"`
	Status    string `bson:"status" json:"status"` // available, busy
	BirthDate int64  `bson:"birthDate" json:"birthDate"`

	CreatedAt int64 `bson:"createdAt" json:"createdAt"`
	LastSeen  int64 `bson:"lastSeen" json:"lastSeen"`
}

// PublicProfile is the shape other users are allowed to see.
func (u *User) PublicProfile() map[string]interface{} {
	return map[string]interface{}{
		"id":       u.ID.Hex(),
		"username": u.Username,
		"name":     u.Name,
		"avatar":   u.Avatar,
		"bio":      u.Bio,
		"status":   u.Status,
		"lastSeen": u.LastSeen,
	}
}
