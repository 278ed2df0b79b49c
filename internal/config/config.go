package config

import (
	"log"
	"os"
	"strings"
	"time"

	"github.com/soaringjerry/intake/internal/utils"
)

// Config holds runtime configuration shared across the application.
type Config struct {
	Addr                         string
	SQLitePath                   string
	SQLiteDriver                 string
	MigrationsDir                string
	JWTSecret                    string
	JWTIssuer                    string
	TokenTTL                     time.Duration
	ReviewerEmails               []string
	StorageDir                   string
	PublicBaseURL                string
	UploadTTL                    time.Duration
	MaxUploadBytes               int64
	MessengerEndpoint            string
	MessengerDestination         string
	MessengerTimeout             time.Duration
	MongoURI                     string
	MongoDatabase                string
	FailedNotificationCollection string
	AllowedOrigins               []string
	ShutdownTimeout              time.Duration
	ServerLog                    *log.Logger
}

// Load reads environment variables and returns a fully populated Config.
func Load() Config {
	driver := strings.ToLower(strings.TrimSpace(utils.SafeEnv("INTAKE_SQLITE_DRIVER", "sqlite3")))
	if driver != "sqlite" {
		driver = "sqlite3"
	}
	origins := utils.EnvList("API_ALLOWED_ORIGINS")
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	cfg := Config{
		Addr:                         utils.SafeEnv("INTAKE_ADDR", ":8080"),
		SQLitePath:                   utils.SafeEnv("INTAKE_SQLITE_PATH", "data/intake.db"),
		SQLiteDriver:                 driver,
		MigrationsDir:                strings.TrimSpace(os.Getenv("INTAKE_MIGRATIONS_DIR")),
		JWTSecret:                    os.Getenv("INTAKE_JWT_SECRET"),
		JWTIssuer:                    utils.SafeEnv("INTAKE_JWT_ISSUER", "intake"),
		TokenTTL:                     utils.EnvDuration("INTAKE_TOKEN_TTL", 30*24*time.Hour),
		ReviewerEmails:               utils.EnvList("INTAKE_REVIEWER_EMAILS"),
		StorageDir:                   utils.SafeEnv("INTAKE_STORAGE_DIR", "data/uploads"),
		PublicBaseURL:                strings.TrimRight(utils.SafeEnv("INTAKE_PUBLIC_BASE_URL", "http://localhost:8080"), "/"),
		UploadTTL:                    utils.EnvDuration("INTAKE_UPLOAD_TTL", 15*time.Minute),
		MaxUploadBytes:               utils.EnvInt64("INTAKE_MAX_UPLOAD_BYTES", 10<<20),
		MessengerEndpoint:            strings.TrimSpace(os.Getenv("MESSENGER_GATEWAY_URL")),
		MessengerDestination:         utils.SafeEnv("MESSENGER_GATEWAY_DESTINATION", "email"),
		MessengerTimeout:             utils.EnvDuration("MESSENGER_GATEWAY_TIMEOUT", 3*time.Second),
		MongoURI:                     strings.TrimSpace(os.Getenv("MONGO_URI")),
		MongoDatabase:                utils.SafeEnv("MONGO_DB", "intake"),
		FailedNotificationCollection: utils.SafeEnv("FAILED_NOTIFICATION_COLLECTION", "failed_notifications"),
		AllowedOrigins:               origins,
		ShutdownTimeout:              utils.EnvDuration("INTAKE_SHUTDOWN_TIMEOUT", 10*time.Second),
		ServerLog:                    log.New(os.Stdout, "[intake] ", log.LstdFlags|log.Lshortfile),
	}
	if cfg.JWTSecret == "" {
		cfg.ServerLog.Printf("INTAKE_JWT_SECRET not set; using the development secret")
	}
	cfg.ServerLog.Printf("loaded config: addr=%q sqlite=%s(%q) messenger=%q mongo=%t", cfg.Addr, cfg.SQLiteDriver, cfg.SQLitePath, cfg.MessengerEndpoint, cfg.MongoURI != "")
	return cfg
}
