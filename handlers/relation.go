package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"ripple/models"
	"ripple/relations"
)

// relationError maps relations package errors to HTTP responses.
func relationError(c *gin.Context, err error) {
	switch err {
	case relations.ErrSelfRelation:
		c.JSON(http.StatusBadRequest, gin.H{"error": "Cannot do that to yourself"})
	case relations.ErrDuplicate:
		c.JSON(http.StatusConflict, gin.H{"error": "Relationship already exists"})
	case relations.ErrBlocked:
		c.JSON(http.StatusForbidden, gin.H{"error": "Action not allowed"})
	case relations.ErrNotFound:
		c.JSON(http.StatusNotFound, gin.H{"error": "Relationship not found"})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update relationship"})
	}
}

// targetUser loads the :id user, returning 404 when missing.
func (a *API) targetUser(c *gin.Context) (primitive.ObjectID, bool) {
	targetID, ok := pathID(c, "id")
	if !ok {
		return primitive.NilObjectID, false
	}

	ctx, cancel := requestContext()
	defer cancel()

	count, err := a.DB.Users.CountDocuments(ctx, bson.M{"_id": targetID})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch user"})
		return primitive.NilObjectID, false
	}
	if count == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
		return primitive.NilObjectID, false
	}
	return targetID, true
}

func (a *API) Follow(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	targetID, ok := a.targetUser(c)
	if !ok {
		return
	}

	ctx, cancel := requestContext()
	defer cancel()

	if _, err := a.Rel.Follow(ctx, userID, targetID); err != nil {
		relationError(c, err)
		return
	}

	go a.notify(models.Notification{
		Recipient: targetID,
		Actor:     userID,
		Type:      models.NotifFollow,
	})

	c.JSON(http.StatusCreated, gin.H{"message": "Now following"})
}

func (a *API) Unfollow(c *gin.Context) {
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

	if err := a.Rel.Unfollow(ctx, userID, targetID); err != nil {
		relationError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Unfollowed"})
}

func (a *API) GetFollowers(c *gin.Context) {
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

	ids, err := a.Rel.Subjects(ctx, targetID, relations.Follows)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch followers"})
		return
	}

	users, err := a.visibleUsers(ctx, userID, ids)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch followers"})
		return
	}
	c.JSON(http.StatusOK, users)
}

func (a *API) GetFollowing(c *gin.Context) {
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

	ids, err := a.Rel.Objects(ctx, targetID, relations.Follows)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch following"})
		return
	}

	users, err := a.visibleUsers(ctx, userID, ids)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch following"})
		return
	}
	c.JSON(http.StatusOK, users)
}

func (a *API) SendFriendRequest(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	targetID, ok := a.targetUser(c)
	if !ok {
		return
	}

	ctx, cancel := requestContext()
	defer cancel()

	edge, err := a.Rel.SendRequest(ctx, userID, targetID)
	if err != nil {
		relationError(c, err)
		return
	}

	go a.notify(models.Notification{
		Recipient: targetID,
		Actor:     userID,
		Type:      models.NotifFriendRequest,
	})

	c.JSON(http.StatusCreated, gin.H{"requestId": edge.ID.Hex()})
}

func (a *API) AcceptFriendRequest(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	requestID, ok := pathID(c, "id")
	if !ok {
		return
	}

	ctx, cancel := requestContext()
	defer cancel()

	req, err := a.Rel.AcceptRequest(ctx, requestID, userID)
	if err != nil {
		relationError(c, err)
		return
	}

	go a.notify(models.Notification{
		Recipient: req.Subject,
		Actor:     userID,
		Type:      models.NotifFriendAccept,
	})

	c.JSON(http.StatusOK, gin.H{"message": "Friend request accepted"})
}

// RemoveFriendRequest declines (receiver) or cancels (sender) a pending
// request.
func (a *API) RemoveFriendRequest(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	requestID, ok := pathID(c, "id")
	if !ok {
		return
	}

	ctx, cancel := requestContext()
	defer cancel()

	if err := a.Rel.RemoveRequest(ctx, requestID, userID); err != nil {
		relationError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Friend request removed"})
}

func (a *API) GetFriendRequests(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	ctx, cancel := requestContext()
	defer cancel()

	incoming, outgoing, err := a.Rel.Requests(ctx, userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch friend requests"})
		return
	}

	shape := func(edges []models.Relation) []map[string]interface{} {
		out := make([]map[string]interface{}, len(edges))
		for i, e := range edges {
			out[i] = map[string]interface{}{
				"id":        e.ID.Hex(),
				"from":      e.Subject.Hex(),
				"to":        e.Object.Hex(),
				"createdAt": e.CreatedAt,
			}
		}
		return out
	}

	c.JSON(http.StatusOK, gin.H{
		"incoming": shape(incoming),
		"outgoing": shape(outgoing),
	})
}

func (a *API) GetFriends(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	ctx, cancel := requestContext()
	defer cancel()

	ids, err := a.Rel.Objects(ctx, userID, relations.Friend)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch friends"})
		return
	}

	users, err := a.visibleUsers(ctx, userID, ids)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch friends"})
		return
	}
	c.JSON(http.StatusOK, users)
}

func (a *API) Unfriend(c *gin.Context) {
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

	if err := a.Rel.Unfriend(ctx, userID, targetID); err != nil {
		relationError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Unfriended"})
}

func (a *API) Block(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	targetID, ok := a.targetUser(c)
	if !ok {
		return
	}

	ctx, cancel := requestContext()
	defer cancel()

	if _, err := a.Rel.Block(ctx, userID, targetID); err != nil {
		relationError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"message": "User blocked"})
}

func (a *API) Unblock(c *gin.Context) {
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

	if err := a.Rel.Unblock(ctx, userID, targetID); err != nil {
		relationError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "User unblocked"})
}

func (a *API) GetBlockedUsers(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	ctx, cancel := requestContext()
	defer cancel()

	ids, err := a.Rel.Objects(ctx, userID, relations.Blocks)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch blocked users"})
		return
	}

	users, err := a.publicUsers(ctx, ids)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch blocked users"})
		return
	}
	c.JSON(http.StatusOK, users)
}
