// Package config loads the relay configuration from the environment.
// A .env file in the working directory is applied first when present.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/lib/pq"
)

// Config holds every tunable of the relay process.
type Config struct {
	HTTPAddr string

	DatabaseDSN string

	RedisAddr      string
	RedisPassword  string
	RedisDB        int
	RecentCacheTTL time.Duration

	JWTSecret string
	TokenTTL  time.Duration

	UploadDir      string
	PublicBaseURL  string
	MaxUploadBytes int64
	NatsURL        string
	BlobBucket     string

	SendBuffer      int
	MaxFrameBytes   int64
	ShutdownTimeout time.Duration

	LogLevel  string
	LogFormat string
}

// Load reads the configuration. Invalid numeric values fall back to their
// defaults with a warning; only an unparsable DATABASE_URL is an error.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Warn("no .env file loaded", "error", err)
	}

	dsn, err := databaseDSN()
	if err != nil {
		return nil, err
	}

	return &Config{
		HTTPAddr:        getEnv("HTTP_ADDR", ":4000"),
		DatabaseDSN:     dsn,
		RedisAddr:       os.Getenv("REDIS_ADDR"),
		RedisPassword:   os.Getenv("REDIS_PASSWORD"),
		RedisDB:         getEnvInt("REDIS_DB", 0),
		RecentCacheTTL:  getEnvDuration("RECENT_CACHE_TTL", 5*time.Minute),
		JWTSecret:       getEnv("JWT_SECRET", "dev-secret"),
		TokenTTL:        getEnvDuration("TOKEN_TTL", 24*time.Hour),
		UploadDir:       getEnv("UPLOAD_DIR", "./uploads"),
		PublicBaseURL:   os.Getenv("PUBLIC_BASE_URL"),
		MaxUploadBytes:  getEnvInt64("MAX_UPLOAD_BYTES", 5*1024*1024),
		NatsURL:         os.Getenv("NATS_URL"),
		BlobBucket:      getEnv("BLOB_BUCKET", "uploads"),
		SendBuffer:      getEnvInt("SEND_BUFFER", 256),
		MaxFrameBytes:   getEnvInt64("MAX_FRAME_BYTES", 64*1024),
		ShutdownTimeout: getEnvDuration("SHUTDOWN_TIMEOUT", 30*time.Second),
		LogLevel:        getEnv("LOG_LEVEL", "info"),
		LogFormat:       getEnv("LOG_FORMAT", "text"),
	}, nil
}

// databaseDSN prefers DATABASE_URL and otherwise assembles a key/value DSN
// from the discrete DB_* variables.
func databaseDSN() (string, error) {
	if url := os.Getenv("DATABASE_URL"); url != "" {
		dsn, err := pq.ParseURL(url)
		if err != nil {
			return "", fmt.Errorf("invalid DATABASE_URL: %w", err)
		}
		return dsn, nil
	}
	return fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=disable",
		getEnv("DB_HOST", "localhost"),
		getEnv("DB_USER", "user"),
		getEnv("DB_PASSWORD", "password"),
		getEnv("DB_NAME", "chatrelay"),
		getEnv("DB_PORT", "5432"),
	), nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
		slog.Warn("invalid int value, using default", "key", key, "value", value, "default", defaultValue)
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intVal
		}
		slog.Warn("invalid int64 value, using default", "key", key, "value", value, "default", defaultValue)
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
		slog.Warn("invalid duration value, using default", "key", key, "value", value, "default", defaultValue)
	}
	return defaultValue
}
