package handlers

import (
	"net/http"
	"regexp"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"ripple/media"
	"ripple/models"
)

func (a *API) GetMyProfile(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	ctx, cancel := requestContext()
	defer cancel()

	var user models.User
	err := a.DB.Users.FindOne(ctx, bson.M{"_id": userID}).Decode(&user)
	if err == mongo.ErrNoDocuments {
		c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch profile"})
		return
	}

	c.JSON(http.StatusOK, user)
}

// UpdateMyProfile accepts multipart form fields plus an optional avatar file
// which is pushed to the hosted media service.
func (a *API) UpdateMyProfile(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	ctx, cancel := requestContext()
	defer cancel()

	set := bson.M{}
	for _, field := range []string{"username", "name", "bio", "status"} {
		if value := c.PostForm(field); value != "" {
			set[field] = value
		}
	}
	if birthDate := c.PostForm("birthDate"); birthDate != "" {
		ts, err := strconv.ParseInt(birthDate, 10, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid birthDate"})
			return
		}
		set["birthDate"] = ts
	}

	avatarFile, _, err := c.Request.FormFile("avatar")
	if err == nil {
		defer avatarFile.Close()

		if a.Uploader == nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Media uploads not configured"})
			return
		}
		url, err := a.Uploader.Upload(ctx, avatarFile, media.KindAvatar, userID.Hex())
		if err != nil {
			a.Log.WithError(err).Error("avatar upload failed")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to upload avatar"})
			return
		}
		set["avatar"] = url
	}

	if len(set) == 0 {
		c.JSON(http.StatusOK, gin.H{"message": "No changes to update"})
		return
	}

	result, err := a.DB.Users.UpdateOne(ctx, bson.M{"_id": userID}, bson.M{"$set": set})
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			c.JSON(http.StatusConflict, gin.H{"error": "Username already taken"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update profile"})
		return
	}
	if result.MatchedCount == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Profile updated successfully"})
}

func (a *API) UpdateStatus(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	var req struct {
		Status string `json:"status" binding:"required,oneof=available busy"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ctx, cancel := requestContext()
	defer cancel()

	_, err := a.DB.Users.UpdateOne(ctx, bson.M{"_id": userID}, bson.M{"$set": bson.M{
		"status":   req.Status,
		"lastSeen": time.Now().Unix(),
	}})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update status"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Status updated"})
}

// GetUser returns another user's public profile. Blocked pairs see 404 in
// both directions.
func (a *API) GetUser(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	targetID, ok := pathID(c, "id")
	if !ok {
		return
	}

	ctx, cancel := requestContext()
	defer cancel()

	if targetID != userID {
		blocked, err := a.Rel.Blocked(ctx, userID, targetID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to check relationship"})
			return
		}
		if blocked {
			c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
			return
		}
	}

	var user models.User
	err := a.DB.Users.FindOne(ctx, bson.M{"_id": targetID}).Decode(&user)
	if err == mongo.ErrNoDocuments {
		c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch user"})
		return
	}

	c.JSON(http.StatusOK, user.PublicProfile())
}

// SearchUsers matches username or name prefixes, excluding blocked pairs.
func (a *API) SearchUsers(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	query := c.Query("q")
	if query == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing search query"})
		return
	}

	ctx, cancel := requestContext()
	defer cancel()

	pattern := primitive.Regex{Pattern: "^" + regexp.QuoteMeta(query), Options: "i"}
	filter := bson.M{
		"_id": bson.M{"$ne": userID},
		"$or": []bson.M{
			{"username": pattern},
			{"name": pattern},
		},
	}

	opts := options.Find().SetLimit(20)
	cursor, err := a.DB.Users.Find(ctx, filter, opts)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to search users"})
		return
	}
	defer cursor.Close(ctx)

	var users []models.User
	if err := cursor.All(ctx, &users); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to decode users"})
		return
	}

	results := make([]map[string]interface{}, 0, len(users))
	for i := range users {
		blocked, err := a.Rel.Blocked(ctx, userID, users[i].ID)
		if err != nil || blocked {
			continue
		}
		results = append(results, users[i].PublicProfile())
	}

	c.JSON(http.StatusOK, results)
}
