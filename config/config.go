package config

import (
	"fmt"
	"strings"

	"github.com/joeshaw/envdecode"
	"github.com/joho/godotenv"
)

// Message store backends selectable via MESSAGE_BACKEND.
const (
	BackendMongo    = "mongo"
	BackendSupabase = "supabase"
)

type Config struct {
	Port     string `env:"PORT,default=8080"`
	GinMode  string `env:"GIN_MODE,default=debug"`
	MongoURI string `env:"MONGODB_URI,default=mongodb://127.0.0.1:27017"`
	MongoDB  string `env:"MONGODB_DATABASE,default=ripple"`

	JWTSecret string `env:"JWT_SECRET"`

	CloudinaryURL string `env:"CLOUDINARY_URL"`

	VAPIDPublicKey  string `env:"VAPID_PUBLIC_KEY"`
	VAPIDPrivateKey string `env:"VAPID_PRIVATE_KEY"`
	VAPIDSubscriber string `env:"VAPID_SUBSCRIBER,default=mailto:admin@ripple.app"`

	// Direct messaging backend: "mongo" (default) or "supabase".
	MessageBackend     string `env:"MESSAGE_BACKEND,default=mongo"`
	SupabaseURL        string `env:"SUPABASE_URL"`
	SupabaseServiceKey string `env:"SUPABASE_SERVICE_KEY"`

	GoogleClientID     string `env:"GOOGLE_CLIENT_ID"`
	GoogleClientSecret string `env:"GOOGLE_CLIENT_SECRET"`
	GoogleRedirectURL  string `env:"GOOGLE_REDIRECT_URL,default=http://localhost:8080/api/google/callback"`

	AllowedOrigins []string `env:"ALLOWED_ORIGINS,default=http://localhost:3000;http://localhost:5500;http://127.0.0.1:5500"`
}

// Load reads .env (if present) and decodes the environment into a Config.
// Missing required values are reported together so startup fails once.
func Load() (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := envdecode.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("decode environment: %w", err)
	}

	var missing []string
	if cfg.JWTSecret == "" {
		missing = append(missing, "JWT_SECRET")
	}
	if cfg.MessageBackend == BackendSupabase {
		if cfg.SupabaseURL == "" {
			missing = append(missing, "SUPABASE_URL")
		}
		if cfg.SupabaseServiceKey == "" {
			missing = append(missing, "SUPABASE_SERVICE_KEY")
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables not set: %s", strings.Join(missing, ", "))
	}

	if cfg.MessageBackend != BackendMongo && cfg.MessageBackend != BackendSupabase {
		return nil, fmt.Errorf("unknown MESSAGE_BACKEND %q", cfg.MessageBackend)
	}

	return &cfg, nil
}
