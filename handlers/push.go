package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"ripple/models"
)

func (a *API) GetVapidPublicKey(c *gin.Context) {
	if a.Cfg.VAPIDPublicKey == "" {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Push notifications not configured"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"publicKey": a.Cfg.VAPIDPublicKey})
}

type SubscribePushRequest struct {
	Endpoint string `json:"endpoint" binding:"required"`
	Keys     struct {
		P256dh string `json:"p256dh" binding:"required"`
		Auth   string `json:"auth" binding:"required"`
	} `json:"keys" binding:"required"`
}

// subscriptionUpdate builds the upsert document for a user's subscription.
// _id is written only on insert; MongoDB rejects a matched update that
// touches it.
func subscriptionUpdate(userID primitive.ObjectID, sub webpush.Subscription) bson.M {
	return bson.M{
		"$set": bson.M{
			"userId": userID,
			"sub":    sub,
		},
		"$setOnInsert": bson.M{"_id": primitive.NewObjectID()},
	}
}

func (a *API) SubscribePush(c *gin.Context) {
	var req SubscribePushRequest
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

	sub := webpush.Subscription{
		Endpoint: req.Endpoint,
		Keys: webpush.Keys{
			P256dh: req.Keys.P256dh,
			Auth:   req.Keys.Auth,
		},
	}

	_, err := a.DB.Subscriptions.UpdateOne(ctx,
		bson.M{"userId": userID},
		subscriptionUpdate(userID, sub),
		options.Update().SetUpsert(true),
	)
	if err != nil {
		a.Log.WithError(err).Error("save push subscription")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to save subscription"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Push subscription saved"})
}

func (a *API) UnsubscribePush(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	ctx, cancel := requestContext()
	defer cancel()

	if _, err := a.DB.Subscriptions.DeleteOne(ctx, bson.M{"userId": userID}); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to remove subscription"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Push subscription removed"})
}

// sendPush delivers a web-push notification to the user's subscription.
// Expired subscriptions (410) are removed on the spot.
func (a *API) sendPush(userID primitive.ObjectID, title, body, icon string) {
	if a.Cfg.VAPIDPrivateKey == "" {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var sub models.PushSubscription
	err := a.DB.Subscriptions.FindOne(ctx, bson.M{"userId": userID}).Decode(&sub)
	if err == mongo.ErrNoDocuments {
		return
	}
	if err != nil {
		a.Log.WithError(err).Error("find push subscription")
		return
	}

	if len(body) > 100 {
		body = body[:100] + "..."
	}
	payload, err := json.Marshal(map[string]interface{}{
		"title": title,
		"body":  body,
		"icon":  icon,
	})
	if err != nil {
		return
	}

	resp, err := webpush.SendNotification(payload, &sub.Sub, &webpush.Options{
		Subscriber:      a.Cfg.VAPIDSubscriber,
		VAPIDPublicKey:  a.Cfg.VAPIDPublicKey,
		VAPIDPrivateKey: a.Cfg.VAPIDPrivateKey,
		TTL:             30,
	})
	if err != nil {
		a.Log.WithError(err).WithField("userId", userID.Hex()).Warn("push delivery failed")
		if resp != nil && resp.StatusCode == http.StatusGone {
			a.DB.Subscriptions.DeleteOne(ctx, bson.M{"userId": userID})
		}
		return
	}
	resp.Body.Close()
}
