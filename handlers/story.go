package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"

	"ripple/models"
	"ripple/relations"
)

type CreateStoryRequest struct {
	MediaURL  string `json:"mediaUrl" binding:"required,url"`
	MediaType string `json:"mediaType" binding:"required,oneof=image video"`
	Caption   string `json:"caption" binding:"max=500"`
}

func (a *API) CreateStory(c *gin.Context) {
	var req CreateStoryRequest
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

	now := time.Now()
	story := models.Story{
		ID:        primitive.NewObjectID(),
		UserID:    userID,
		MediaURL:  req.MediaURL,
		MediaType: req.MediaType,
		Caption:   req.Caption,
		Viewers:   []primitive.ObjectID{},
		CreatedAt: now.Unix(),
		ExpiresAt: now.Add(models.StoryTTL),
	}

	if _, err := a.DB.Stories.InsertOne(ctx, story); err != nil {
		a.Log.WithError(err).Error("insert story")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create story"})
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"message":   "Story created",
		"storyId":   story.ID.Hex(),
		"expiresAt": story.ExpiresAt,
	})
}

// GetStoryFeed returns unexpired stories from followed users plus the
// caller's own, grouped per owner. The TTL index cleans documents up lazily
// so expiry is also enforced here.
func (a *API) GetStoryFeed(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	ctx, cancel := requestContext()
	defer cancel()

	following, err := a.Rel.Objects(ctx, userID, relations.Follows)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch following"})
		return
	}
	owners := append(following, userID)

	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.D{
			{Key: "userId", Value: bson.D{{Key: "$in", Value: owners}}},
			{Key: "expiresAt", Value: bson.D{{Key: "$gt", Value: time.Now()}}},
		}}},
		{{Key: "$sort", Value: bson.D{{Key: "createdAt", Value: 1}}}},
		{{Key: "$group", Value: bson.D{
			{Key: "_id", Value: "$userId"},
			{Key: "stories", Value: bson.D{{Key: "$push", Value: "$$ROOT"}}},
		}}},
		{{Key: "$lookup", Value: bson.D{
			{Key: "from", Value: "users"},
			{Key: "localField", Value: "_id"},
			{Key: "foreignField", Value: "_id"},
			{Key: "as", Value: "owner"},
		}}},
		{{Key: "$unwind", Value: bson.D{
			{Key: "path", Value: "$owner"},
			{Key: "preserveNullAndEmptyArrays", Value: true},
		}}},
	}

	cursor, err := a.DB.Stories.Aggregate(ctx, pipeline)
	if err != nil {
		a.Log.WithError(err).Error("aggregate story feed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch stories"})
		return
	}
	defer cursor.Close(ctx)

	var groups []struct {
		OwnerID primitive.ObjectID `bson:"_id"`
		Stories []models.Story     `bson:"stories"`
		Owner   *models.User       `bson:"owner"`
	}
	if err := cursor.All(ctx, &groups); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to decode stories"})
		return
	}

	response := make([]map[string]interface{}, len(groups))
	for i, g := range groups {
		ownerMap := map[string]interface{}{
			"id":     g.OwnerID.Hex(),
			"name":   "Unknown User",
			"avatar": fallbackAvatar,
		}
		if g.Owner != nil {
			if g.Owner.Name != "" {
				ownerMap["name"] = g.Owner.Name
			}
			if g.Owner.Avatar != "" {
				ownerMap["avatar"] = g.Owner.Avatar
			}
			ownerMap["username"] = g.Owner.Username
		}

		stories := make([]map[string]interface{}, len(g.Stories))
		for j, s := range g.Stories {
			seen := false
			for _, v := range s.Viewers {
				if v == userID {
					seen = true
					break
				}
			}
			stories[j] = map[string]interface{}{
				"id":        s.ID.Hex(),
				"mediaUrl":  s.MediaURL,
				"mediaType": s.MediaType,
				"caption":   s.Caption,
				"createdAt": s.CreatedAt,
				"expiresAt": s.ExpiresAt,
				"seen":      seen,
			}
		}

		response[i] = map[string]interface{}{
			"owner":   ownerMap,
			"stories": stories,
		}
	}

	c.JSON(http.StatusOK, response)
}

// ViewStory records the caller in the story's viewer list. Idempotent; the
// owner's own views are not recorded.
func (a *API) ViewStory(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	storyID, ok := pathID(c, "id")
	if !ok {
		return
	}

	ctx, cancel := requestContext()
	defer cancel()

	var story models.Story
	err := a.DB.Stories.FindOne(ctx, bson.M{
		"_id":       storyID,
		"expiresAt": bson.M{"$gt": time.Now()},
	}).Decode(&story)
	if err == mongo.ErrNoDocuments {
		c.JSON(http.StatusNotFound, gin.H{"error": "Story not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch story"})
		return
	}

	if story.UserID == userID {
		c.JSON(http.StatusOK, gin.H{"message": "Story viewed"})
		return
	}

	_, err = a.DB.Stories.UpdateOne(ctx,
		bson.M{"_id": storyID},
		bson.M{"$addToSet": bson.M{"viewers": userID}},
	)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to record view"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Story viewed"})
}

// GetStoryViewers lists who saw the story; owner only.
func (a *API) GetStoryViewers(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	storyID, ok := pathID(c, "id")
	if !ok {
		return
	}

	ctx, cancel := requestContext()
	defer cancel()

	var story models.Story
	err := a.DB.Stories.FindOne(ctx, bson.M{"_id": storyID}).Decode(&story)
	if err == mongo.ErrNoDocuments {
		c.JSON(http.StatusNotFound, gin.H{"error": "Story not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch story"})
		return
	}

	if story.UserID != userID {
		c.JSON(http.StatusForbidden, gin.H{"error": "Only the story owner can see viewers"})
		return
	}

	viewers, err := a.visibleUsers(ctx, userID, story.Viewers)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch viewers"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"count":   len(viewers),
		"viewers": viewers,
	})
}

func (a *API) DeleteStory(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	storyID, ok := pathID(c, "id")
	if !ok {
		return
	}

	ctx, cancel := requestContext()
	defer cancel()

	result, err := a.DB.Stories.DeleteOne(ctx, bson.M{"_id": storyID, "userId": userID})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete story"})
		return
	}
	if result.DeletedCount == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "Story not found"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Story deleted"})
}
