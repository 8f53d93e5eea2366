package config

import (
	"fmt"
	"os"
	"strconv"
)

type Config struct {
	Port     string
	LogLevel string

	// Gemini
	GeminiAPIKey string
	GeminiModel  string

	// Snapshot persistence
	SnapshotDriver string // "sqlite" or "redis"
	SQLitePath     string
	RedisAddr      string
	RedisPassword  string
	RedisDB        int

	// Image payload store
	ImageStore        string // "s3" or "memory"
	S3Endpoint        string
	S3AccessKeyID     string
	S3SecretAccessKey string
	S3BucketName      string
	S3UseSSL          bool

	// Upload limits
	MaxFileSize int64
}

func Load() (*Config, error) {
	cfg := &Config{
		Port:              getEnv("PORT", "8080"),
		LogLevel:          getEnv("LOG_LEVEL", "info"),
		GeminiAPIKey:      getEnv("GEMINI_API_KEY", ""),
		GeminiModel:       getEnv("GEMINI_MODEL", "gemini-2.5-flash"),
		SnapshotDriver:    getEnv("SNAPSHOT_DRIVER", "sqlite"),
		SQLitePath:        getEnv("SQLITE_PATH", "data/payslip.db"),
		RedisAddr:         getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword:     getEnv("REDIS_PASSWORD", ""),
		ImageStore:        getEnv("IMAGE_STORE", "memory"),
		S3Endpoint:        getEnv("S3_ENDPOINT", "localhost:9000"),
		S3AccessKeyID:     getEnv("S3_ACCESS_KEY_ID", "minioadmin"),
		S3SecretAccessKey: getEnv("S3_SECRET_ACCESS_KEY", "minioadmin"),
		S3BucketName:      getEnv("S3_BUCKET_NAME", "payslips"),
		S3UseSSL:          getEnv("S3_USE_SSL", "false") == "true",
		MaxFileSize:       10 * 1024 * 1024,
	}

	if db, err := strconv.Atoi(getEnv("REDIS_DB", "0")); err == nil {
		cfg.RedisDB = db
	}

	// The application must not start without a model credential.
	if cfg.GeminiAPIKey == "" {
		return nil, fmt.Errorf("GEMINI_API_KEY is required")
	}

	switch cfg.SnapshotDriver {
	case "sqlite", "redis":
	default:
		return nil, fmt.Errorf("unknown SNAPSHOT_DRIVER %q (want sqlite or redis)", cfg.SnapshotDriver)
	}

	switch cfg.ImageStore {
	case "s3", "memory":
	default:
		return nil, fmt.Errorf("unknown IMAGE_STORE %q (want s3 or memory)", cfg.ImageStore)
	}

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
