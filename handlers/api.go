package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"ripple/config"
	"ripple/database"
	"ripple/media"
	"ripple/models"
	"ripple/relations"
	"ripple/storage"
	"ripple/websocket"
)

const fallbackAvatar = "https://upload.wikimedia.org/wikipedia/commons/8/89/Portrait_Placeholder.png"

const requestTimeout = 10 * time.Second

// API holds every dependency the handlers need. Everything is constructed
// once in main and injected; there is no package-level state.
type API struct {
	Cfg      *config.Config
	DB       *database.Mongo
	Store    storage.MessageStore
	Rel      *relations.Service
	WS       *websocket.Manager
	Uploader *media.Uploader
	Log      *logrus.Logger
}

func New(cfg *config.Config, db *database.Mongo, store storage.MessageStore, rel *relations.Service, ws *websocket.Manager, up *media.Uploader, log *logrus.Logger) *API {
	return &API{
		Cfg:      cfg,
		DB:       db,
		Store:    store,
		Rel:      rel,
		WS:       ws,
		Uploader: up,
		Log:      log,
	}
}

// requestContext bounds handler database work.
func requestContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), requestTimeout)
}

// currentUserID reads the authenticated user id set by the JWT middleware.
// On failure it writes the 401 response and returns ok=false.
func currentUserID(c *gin.Context) (primitive.ObjectID, bool) {
	userID, err := primitive.ObjectIDFromHex(c.GetString("userId"))
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid user ID"})
		return primitive.NilObjectID, false
	}
	return userID, true
}

// pathID parses an ObjectID path parameter, writing the 400 response itself.
func pathID(c *gin.Context, name string) (primitive.ObjectID, bool) {
	id, err := primitive.ObjectIDFromHex(c.Param(name))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid " + name})
		return primitive.NilObjectID, false
	}
	return id, true
}

// notify persists a notification and fans it out over push and WebSocket.
// Delivery is best effort; the triggering request never fails because of it.
func (a *API) notify(n models.Notification) {
	n.ID = primitive.NewObjectID()
	n.CreatedAt = time.Now().Unix()
	n.ExpiresAt = time.Now().Add(models.NotificationTTL)

	ctx, cancel := requestContext()
	defer cancel()

	if _, err := a.DB.Notifications.InsertOne(ctx, n); err != nil {
		a.Log.WithError(err).Error("insert notification")
		return
	}

	a.WS.SendToUser(n.Recipient.Hex(), websocket.EventNotification, n)

	var actor models.User
	if err := a.DB.Users.FindOne(ctx, bson.M{"_id": n.Actor}).Decode(&actor); err != nil {
		return
	}
	title, body := pushContent(n.Type, actor.Name)
	if title != "" {
		a.sendPush(n.Recipient, title, body, actor.Avatar)
	}
}

func pushContent(notifType, actorName string) (title, body string) {
	if actorName == "" {
		actorName = "Someone"
	}
	switch notifType {
	case models.NotifFollow:
		return "New follower", actorName + " started following you"
	case models.NotifFriendRequest:
		return "Friend request", actorName + " sent you a friend request"
	case models.NotifFriendAccept:
		return "Request accepted", actorName + " accepted your friend request"
	case models.NotifLike:
		return "New like", actorName + " liked your post"
	case models.NotifComment:
		return "New comment", actorName + " commented on your post"
	case models.NotifMessage:
		return actorName + " sent a message", ""
	}
	return "", ""
}

// visibleTo drops ids that are in a block relationship with the viewer.
// Blocking severs the pair's own edges, but third-party listings (someone
// else's followers, a story's viewers) can still contain blocked users.
func visibleTo(viewer primitive.ObjectID, ids []primitive.ObjectID, blocked func(primitive.ObjectID) (bool, error)) ([]primitive.ObjectID, error) {
	out := make([]primitive.ObjectID, 0, len(ids))
	for _, id := range ids {
		if id != viewer {
			b, err := blocked(id)
			if err != nil {
				return nil, err
			}
			if b {
				continue
			}
		}
		out = append(out, id)
	}
	return out, nil
}

// visibleUsers is publicUsers minus anyone blocked by or blocking the viewer.
func (a *API) visibleUsers(ctx context.Context, viewer primitive.ObjectID, ids []primitive.ObjectID) ([]map[string]interface{}, error) {
	filtered, err := visibleTo(viewer, ids, func(id primitive.ObjectID) (bool, error) {
		return a.Rel.Blocked(ctx, viewer, id)
	})
	if err != nil {
		return nil, err
	}
	return a.publicUsers(ctx, filtered)
}

// publicUsers loads the given users and maps them to their public profiles.
func (a *API) publicUsers(ctx context.Context, ids []primitive.ObjectID) ([]map[string]interface{}, error) {
	if len(ids) == 0 {
		return []map[string]interface{}{}, nil
	}

	cursor, err := a.DB.Users.Find(ctx, bson.M{"_id": bson.M{"$in": ids}})
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var users []models.User
	if err := cursor.All(ctx, &users); err != nil {
		return nil, err
	}

	out := make([]map[string]interface{}, len(users))
	for i := range users {
		out[i] = users[i].PublicProfile()
	}
	return out, nil
}
