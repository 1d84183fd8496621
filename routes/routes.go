package routes

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"ripple/handlers"
	"ripple/middleware"
)

// SetupRouter wires every endpoint to the injected API.
func SetupRouter(api *handlers.API) *gin.Engine {
	router := gin.Default()

	router.GET("/api/health", func(c *gin.Context) {
		c.JSON(200, gin.H{
			"status": "ok",
			"time":   time.Now().Unix(),
		})
	})

	router.Use(cors.New(cors.Config{
		AllowOrigins:     api.Cfg.AllowedOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS", "PATCH"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", "Accept", "X-Requested-With"},
		ExposeHeaders:    []string{"Content-Length", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	limiter := middleware.NewIPRateLimiter(60, time.Minute)
	router.Use(middleware.RateLimit(limiter))

	// Public routes
	router.POST("/api/signup", api.Signup)
	router.POST("/api/login", api.Login)
	router.GET("/api/vapid-public-key", api.GetVapidPublicKey)

	// Google OAuth
	router.GET("/api/google/auth-url", api.GoogleAuthURL)
	router.GET("/api/google/callback", api.GoogleOAuthCallback)
	router.POST("/api/google-auth", api.GoogleAuthWithCredential)

	protected := router.Group("/api")
	protected.Use(middleware.JWTAuth(api.Cfg.JWTSecret))

	// Profile
	protected.GET("/me", api.GetMyProfile)
	protected.PUT("/me", api.UpdateMyProfile)
	protected.PUT("/me/status", api.UpdateStatus)
	protected.GET("/user/:id", api.GetUser)
	protected.GET("/users/search", api.SearchUsers)

	// Posts
	protected.POST("/posts", api.CreatePost)
	protected.GET("/feed", api.GetFeed)
	protected.GET("/user/:id/posts", api.GetUserPosts)
	protected.DELETE("/posts/:id", api.DeletePost)
	protected.POST("/posts/:id/like", api.LikePost)
	protected.DELETE("/posts/:id/like", api.UnlikePost)
	protected.POST("/posts/:id/comments", api.AddComment)
	protected.GET("/posts/:id/comments", api.GetComments)
	protected.DELETE("/posts/:id/comments/:commentId", api.DeleteComment)

	// Stories
	protected.POST("/stories", api.CreateStory)
	protected.GET("/stories/feed", api.GetStoryFeed)
	protected.POST("/stories/:id/view", api.ViewStory)
	protected.GET("/stories/:id/viewers", api.GetStoryViewers)
	protected.DELETE("/stories/:id", api.DeleteStory)

	// Relationships
	protected.POST("/users/:id/follow", api.Follow)
	protected.DELETE("/users/:id/follow", api.Unfollow)
	protected.GET("/users/:id/followers", api.GetFollowers)
	protected.GET("/users/:id/following", api.GetFollowing)
	protected.POST("/users/:id/friend-request", api.SendFriendRequest)
	protected.POST("/friend-requests/:id/accept", api.AcceptFriendRequest)
	protected.DELETE("/friend-requests/:id", api.RemoveFriendRequest)
	protected.GET("/friend-requests", api.GetFriendRequests)
	protected.GET("/friends", api.GetFriends)
	protected.DELETE("/friends/:id", api.Unfriend)
	protected.POST("/users/:id/block", api.Block)
	protected.DELETE("/users/:id/block", api.Unblock)
	protected.GET("/blocked", api.GetBlockedUsers)

	// Notifications
	protected.GET("/notifications", api.GetNotifications)
	protected.POST("/notifications/:id/read", api.MarkNotificationRead)
	protected.POST("/notifications/read-all", api.MarkAllNotificationsRead)
	protected.DELETE("/notifications/:id", api.DeleteNotification)

	// Messaging
	protected.POST("/conversations", api.CreateConversation)
	protected.GET("/conversations", api.GetConversations)
	protected.GET("/conversations/:id", api.GetConversation)
	protected.GET("/conversations/:id/messages", api.GetMessages)
	protected.POST("/conversations/:id/read", api.MarkConversationRead)
	protected.POST("/messages", api.SendMessage)
	protected.POST("/typing", api.SendTypingIndicator)

	// Media
	protected.POST("/upload", api.UploadMedia)

	// Push subscriptions
	protected.POST("/subscribe", api.SubscribePush)
	protected.DELETE("/subscribe", api.UnsubscribePush)

	router.NoRoute(func(c *gin.Context) {
		if len(c.Request.URL.Path) >= 4 && c.Request.URL.Path[:4] == "/api" {
			c.JSON(404, gin.H{
				"error": "Endpoint not found",
				"path":  c.Request.URL.Path,
			})
			return
		}
		c.Next()
	})

	return router
}
