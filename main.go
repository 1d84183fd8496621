package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"ripple/config"
	"ripple/database"
	"ripple/handlers"
	"ripple/media"
	"ripple/relations"
	"ripple/routes"
	"ripple/storage"
	"ripple/websocket"
)

func main() {
	log := logrus.New()
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	cfg, err := config.Load()
	if err != nil {
		log.WithError(err).Fatal("invalid configuration")
	}

	gin.SetMode(cfg.GinMode)

	// Connect to MongoDB with retry
	var db *database.Mongo
	for i := 1; i <= 3; i++ {
		db, err = database.Connect(context.Background(), cfg.MongoURI, cfg.MongoDB)
		if err == nil {
			break
		}
		log.WithError(err).Warnf("MongoDB connection attempt %d failed", i)
		time.Sleep(2 * time.Second)
	}
	if err != nil {
		log.WithError(err).Fatal("failed to connect to MongoDB")
	}
	log.Info("MongoDB connected")

	indexCtx, cancelIndex := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancelIndex()
	if err := db.EnsureIndexes(indexCtx); err != nil {
		log.WithError(err).Fatal("failed to create indexes")
	}

	rel := relations.NewService(db.DB)
	if err := rel.EnsureIndexes(indexCtx); err != nil {
		log.WithError(err).Fatal("failed to create relation indexes")
	}

	// Message backend selected at startup
	var store storage.MessageStore
	switch cfg.MessageBackend {
	case config.BackendSupabase:
		client, err := storage.NewSupabaseClient(storage.SupabaseConfig{
			URL:        cfg.SupabaseURL,
			ServiceKey: cfg.SupabaseServiceKey,
		})
		if err != nil {
			log.WithError(err).Fatal("failed to configure Supabase client")
		}
		store = storage.NewSupabaseStore(client)
		log.Info("messaging backend: supabase")
	default:
		store = storage.NewMongoStore(db.DB)
		log.Info("messaging backend: mongo")
	}

	var uploader *media.Uploader
	if cfg.CloudinaryURL != "" {
		uploader, err = media.New(cfg.CloudinaryURL)
		if err != nil {
			log.WithError(err).Fatal("failed to configure media uploads")
		}
	} else {
		log.Warn("CLOUDINARY_URL not set, media uploads disabled")
	}

	// Socket relays address conversation events through the active backend
	wsManager := websocket.NewManager(log, func(ctx context.Context, conversationID, userID string) ([]string, error) {
		conv, err := store.GetConversation(ctx, conversationID, userID)
		if err != nil {
			return nil, err
		}
		return conv.Participants, nil
	})
	go wsManager.Start()

	api := handlers.New(cfg, db, store, rel, wsManager, uploader, log)
	router := routes.SetupRouter(api)

	router.GET("/ws", func(c *gin.Context) {
		websocket.Handler(wsManager, cfg.JWTSecret)(c.Writer, c.Request)
	})

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.WithField("port", cfg.Port).Info("server listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Fatal("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("forced shutdown")
	}
	if err := db.Disconnect(context.Background()); err != nil {
		log.WithError(err).Error("mongo disconnect")
	}

	log.Info("server stopped")
}
