package handlers

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"

	"ripple/models"
	"ripple/relations"
)

type CreatePostRequest struct {
	Content string   `json:"content" binding:"required,max=5000"`
	Media   []string `json:"media" binding:"max=10"`
}

func (a *API) CreatePost(c *gin.Context) {
	var req CreatePostRequest
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

	post := models.Post{
		ID:        primitive.NewObjectID(),
		UserID:    userID,
		Content:   req.Content,
		Media:     req.Media,
		Likes:     []primitive.ObjectID{},
		Comments:  []models.Comment{},
		CreatedAt: time.Now().Unix(),
	}

	if _, err := a.DB.Posts.InsertOne(ctx, post); err != nil {
		a.Log.WithError(err).Error("insert post")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create post"})
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"message": "Post created successfully",
		"postId":  post.ID.Hex(),
	})
}

func pagination(c *gin.Context) (limit, offset int64) {
	limit, _ = strconv.ParseInt(c.DefaultQuery("limit", "20"), 10, 64)
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	offset, _ = strconv.ParseInt(c.DefaultQuery("offset", "0"), 10, 64)
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}

// GetFeed returns posts authored by users the caller follows, plus their
// own, newest first.
func (a *API) GetFeed(c *gin.Context) {
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
	authors := append(following, userID)

	limit, offset := pagination(c)

	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.D{{Key: "userId", Value: bson.D{{Key: "$in", Value: authors}}}}}},
		{{Key: "$sort", Value: bson.D{{Key: "createdAt", Value: -1}}}},
		{{Key: "$skip", Value: offset}},
		{{Key: "$limit", Value: limit}},
		{{Key: "$lookup", Value: bson.D{
			{Key: "from", Value: "users"},
			{Key: "localField", Value: "userId"},
			{Key: "foreignField", Value: "_id"},
			{Key: "as", Value: "author"},
		}}},
		{{Key: "$unwind", Value: bson.D{
			{Key: "path", Value: "$author"},
			{Key: "preserveNullAndEmptyArrays", Value: true},
		}}},
	}

	a.respondPosts(c, ctx, pipeline, userID)
}

func (a *API) GetUserPosts(c *gin.Context) {
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

	limit, offset := pagination(c)

	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.D{{Key: "userId", Value: targetID}}}},
		{{Key: "$sort", Value: bson.D{{Key: "createdAt", Value: -1}}}},
		{{Key: "$skip", Value: offset}},
		{{Key: "$limit", Value: limit}},
		{{Key: "$lookup", Value: bson.D{
			{Key: "from", Value: "users"},
			{Key: "localField", Value: "userId"},
			{Key: "foreignField", Value: "_id"},
			{Key: "as", Value: "author"},
		}}},
		{{Key: "$unwind", Value: bson.D{
			{Key: "path", Value: "$author"},
			{Key: "preserveNullAndEmptyArrays", Value: true},
		}}},
	}

	a.respondPosts(c, ctx, pipeline, userID)
}

// respondPosts runs an aggregation ending in an author $lookup and shapes
// the response, never returning a null author.
func (a *API) respondPosts(c *gin.Context, ctx context.Context, pipeline mongo.Pipeline, viewer primitive.ObjectID) {
	cursor, err := a.DB.Posts.Aggregate(ctx, pipeline)
	if err != nil {
		a.Log.WithError(err).Error("aggregate posts")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch posts"})
		return
	}
	defer cursor.Close(ctx)

	var posts []struct {
		models.Post `bson:",inline"`
		Author      *models.User `bson:"author"`
	}
	if err := cursor.All(ctx, &posts); err != nil {
		a.Log.WithError(err).Error("decode posts")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to decode posts"})
		return
	}

	response := make([]map[string]interface{}, len(posts))
	for i, p := range posts {
		authorMap := map[string]interface{}{
			"id":     p.UserID.Hex(),
			"name":   "Unknown User",
			"avatar": fallbackAvatar,
		}
		if p.Author != nil {
			if p.Author.Name != "" {
				authorMap["name"] = p.Author.Name
			}
			if p.Author.Avatar != "" {
				authorMap["avatar"] = p.Author.Avatar
			}
			authorMap["username"] = p.Author.Username
		}

		liked := false
		for _, id := range p.Likes {
			if id == viewer {
				liked = true
				break
			}
		}

		response[i] = map[string]interface{}{
			"id":           p.ID.Hex(),
			"content":      p.Content,
			"media":        p.Media,
			"createdAt":    p.CreatedAt,
			"author":       authorMap,
			"likeCount":    len(p.Likes),
			"liked":        liked,
			"commentCount": len(p.Comments),
		}
	}

	c.JSON(http.StatusOK, response)
}

func (a *API) DeletePost(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	postID, ok := pathID(c, "id")
	if !ok {
		return
	}

	ctx, cancel := requestContext()
	defer cancel()

	result, err := a.DB.Posts.DeleteOne(ctx, bson.M{"_id": postID, "userId": userID})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete post"})
		return
	}
	if result.DeletedCount == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "Post not found"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Post deleted"})
}

func (a *API) LikePost(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	postID, ok := pathID(c, "id")
	if !ok {
		return
	}

	ctx, cancel := requestContext()
	defer cancel()

	var post models.Post
	err := a.DB.Posts.FindOne(ctx, bson.M{"_id": postID}).Decode(&post)
	if err == mongo.ErrNoDocuments {
		c.JSON(http.StatusNotFound, gin.H{"error": "Post not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch post"})
		return
	}

	result, err := a.DB.Posts.UpdateOne(ctx,
		bson.M{"_id": postID},
		bson.M{"$addToSet": bson.M{"likes": userID}},
	)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to like post"})
		return
	}

	// Only the first like from this user notifies the owner
	if result.ModifiedCount > 0 && post.UserID != userID {
		go a.notify(models.Notification{
			Recipient: post.UserID,
			Actor:     userID,
			Type:      models.NotifLike,
			PostID:    &postID,
		})
	}

	c.JSON(http.StatusOK, gin.H{"message": "Post liked"})
}

func (a *API) UnlikePost(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	postID, ok := pathID(c, "id")
	if !ok {
		return
	}

	ctx, cancel := requestContext()
	defer cancel()

	result, err := a.DB.Posts.UpdateOne(ctx,
		bson.M{"_id": postID},
		bson.M{"$pull": bson.M{"likes": userID}},
	)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to unlike post"})
		return
	}
	if result.MatchedCount == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "Post not found"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Post unliked"})
}

type AddCommentRequest struct {
	Content string `json:"content" binding:"required,max=2000"`
}

func (a *API) AddComment(c *gin.Context) {
	var req AddCommentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	postID, ok := pathID(c, "id")
	if !ok {
		return
	}

	ctx, cancel := requestContext()
	defer cancel()

	var post models.Post
	err := a.DB.Posts.FindOne(ctx, bson.M{"_id": postID}).Decode(&post)
	if err == mongo.ErrNoDocuments {
		c.JSON(http.StatusNotFound, gin.H{"error": "Post not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch post"})
		return
	}

	comment := models.Comment{
		ID:        primitive.NewObjectID(),
		UserID:    userID,
		Content:   req.Content,
		CreatedAt: time.Now().Unix(),
	}

	_, err = a.DB.Posts.UpdateOne(ctx,
		bson.M{"_id": postID},
		bson.M{"$push": bson.M{"comments": comment}},
	)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to add comment"})
		return
	}

	if post.UserID != userID {
		commentID := comment.ID
		go a.notify(models.Notification{
			Recipient: post.UserID,
			Actor:     userID,
			Type:      models.NotifComment,
			PostID:    &postID,
			CommentID: &commentID,
		})
	}

	c.JSON(http.StatusCreated, gin.H{
		"message":   "Comment added",
		"commentId": comment.ID.Hex(),
	})
}

func (a *API) GetComments(c *gin.Context) {
	if _, ok := currentUserID(c); !ok {
		return
	}
	postID, ok := pathID(c, "id")
	if !ok {
		return
	}

	ctx, cancel := requestContext()
	defer cancel()

	var post models.Post
	err := a.DB.Posts.FindOne(ctx, bson.M{"_id": postID}).Decode(&post)
	if err == mongo.ErrNoDocuments {
		c.JSON(http.StatusNotFound, gin.H{"error": "Post not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch post"})
		return
	}

	c.JSON(http.StatusOK, post.Comments)
}

// DeleteComment removes a comment; allowed for the comment author or the
// post owner.
func (a *API) DeleteComment(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	postID, ok := pathID(c, "id")
	if !ok {
		return
	}
	commentID, ok := pathID(c, "commentId")
	if !ok {
		return
	}

	ctx, cancel := requestContext()
	defer cancel()

	var post models.Post
	err := a.DB.Posts.FindOne(ctx, bson.M{"_id": postID}).Decode(&post)
	if err == mongo.ErrNoDocuments {
		c.JSON(http.StatusNotFound, gin.H{"error": "Post not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch post"})
		return
	}

	filter := bson.M{"_id": postID}
	pull := bson.M{"_id": commentID}
	if post.UserID != userID {
		// Not the post owner: may only remove their own comment
		pull["userId"] = userID
	}

	result, err := a.DB.Posts.UpdateOne(ctx, filter, bson.M{"$pull": bson.M{"comments": pull}})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete comment"})
		return
	}
	if result.ModifiedCount == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "Comment not found"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Comment deleted"})
}
