package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	// Service configuration
	ServicePort string
	ServiceName string
	MaxUploadMB int
	LogLevel    string
	LogFormat   string

	// Session configuration
	JWTSecret         string
	CookieSecure      bool
	AuthDebugFallback bool

	// Index backend configuration
	IndexBackendURL string
	IndexTimeout    time.Duration

	// MinIO configuration
	MinIOEndpoint   string
	MinIOAccessKey  string
	MinIOSecretKey  string
	MinIOBucketName string
	MinIOUseSSL     bool

	// TiDB configuration
	TiDBHost     string
	TiDBPort     string
	TiDBUser     string
	TiDBPassword string
	TiDBDatabase string

	// Redis configuration
	RedisEnabled  bool
	RedisHost     string
	RedisPort     string
	RedisPassword string
	RedisDB       int
	EntryCacheTTL time.Duration

	// Jaeger configuration
	TracingEnabled bool
	JaegerEndpoint string
}

var defaults = map[string]any{
	"SERVICE_PORT":        "8080",
	"SERVICE_NAME":        "docsync-service",
	"MAX_UPLOAD_MB":       25,
	"LOG_LEVEL":           "info",
	"LOG_FORMAT":          "json",
	"JWT_SECRET":          "",
	"COOKIE_SECURE":       true,
	"AUTH_DEBUG_FALLBACK": false,
	"INDEX_BACKEND_URL":   "http://localhost:8000",
	"INDEX_TIMEOUT":       "30s",
	"MINIO_ENDPOINT":      "localhost:9000",
	"MINIO_ACCESS_KEY":    "minioadmin",
	"MINIO_SECRET_KEY":    "minioadmin",
	"MINIO_BUCKET_NAME":   "docsync",
	"MINIO_USE_SSL":       false,
	"TIDB_HOST":           "localhost",
	"TIDB_PORT":           "4000",
	"TIDB_USER":           "root",
	"TIDB_PASSWORD":       "",
	"TIDB_DATABASE":       "docsync",
	"REDIS_ENABLED":       true,
	"REDIS_HOST":          "localhost",
	"REDIS_PORT":          "6379",
	"REDIS_PASSWORD":      "",
	"REDIS_DB":            0,
	"ENTRY_CACHE_TTL":     "30s",
	"TRACING_ENABLED":     true,
	"JAEGER_ENDPOINT":     "localhost:4318",
}

// LoadConfig loads configuration from environment variables with sensible defaults
func LoadConfig() (*Config, error) {
	v := viper.New()
	v.AutomaticEnv()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	config := &Config{
		ServicePort: v.GetString("SERVICE_PORT"),
		ServiceName: v.GetString("SERVICE_NAME"),
		MaxUploadMB: v.GetInt("MAX_UPLOAD_MB"),
		LogLevel:    strings.ToLower(v.GetString("LOG_LEVEL")),
		LogFormat:   strings.ToLower(v.GetString("LOG_FORMAT")),

		JWTSecret:         v.GetString("JWT_SECRET"),
		CookieSecure:      v.GetBool("COOKIE_SECURE"),
		AuthDebugFallback: v.GetBool("AUTH_DEBUG_FALLBACK"),

		IndexBackendURL: strings.TrimRight(v.GetString("INDEX_BACKEND_URL"), "/"),

		MinIOEndpoint:   v.GetString("MINIO_ENDPOINT"),
		MinIOAccessKey:  v.GetString("MINIO_ACCESS_KEY"),
		MinIOSecretKey:  v.GetString("MINIO_SECRET_KEY"),
		MinIOBucketName: v.GetString("MINIO_BUCKET_NAME"),
		MinIOUseSSL:     v.GetBool("MINIO_USE_SSL"),

		TiDBHost:     v.GetString("TIDB_HOST"),
		TiDBPort:     v.GetString("TIDB_PORT"),
		TiDBUser:     v.GetString("TIDB_USER"),
		TiDBPassword: v.GetString("TIDB_PASSWORD"),
		TiDBDatabase: v.GetString("TIDB_DATABASE"),

		RedisEnabled:  v.GetBool("REDIS_ENABLED"),
		RedisHost:     v.GetString("REDIS_HOST"),
		RedisPort:     v.GetString("REDIS_PORT"),
		RedisPassword: v.GetString("REDIS_PASSWORD"),
		RedisDB:       v.GetInt("REDIS_DB"),

		TracingEnabled: v.GetBool("TRACING_ENABLED"),
		JaegerEndpoint: v.GetString("JAEGER_ENDPOINT"),
	}

	var err error
	if config.IndexTimeout, err = parseDuration(v, "INDEX_TIMEOUT"); err != nil {
		return nil, err
	}
	if config.EntryCacheTTL, err = parseDuration(v, "ENTRY_CACHE_TTL"); err != nil {
		return nil, err
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// Validate checks required values and ranges
func (c *Config) Validate() error {
	if c.JWTSecret == "" {
		return errors.New("JWT_SECRET is required")
	}
	if c.IndexBackendURL == "" {
		return errors.New("INDEX_BACKEND_URL is required")
	}
	if c.IndexTimeout <= 0 {
		return errors.New("INDEX_TIMEOUT must be greater than zero")
	}
	if c.MaxUploadMB <= 0 {
		return errors.New("MAX_UPLOAD_MB must be greater than zero")
	}
	if c.LogFormat != "json" && c.LogFormat != "text" {
		return fmt.Errorf("LOG_FORMAT: unsupported format %q (json, text)", c.LogFormat)
	}
	if _, err := parseLogLevel(c.LogLevel); err != nil {
		return fmt.Errorf("LOG_LEVEL: %w", err)
	}
	return nil
}

// GetDSN returns the TiDB connection string
func (c *Config) GetDSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=True&loc=UTC",
		c.TiDBUser,
		c.TiDBPassword,
		c.TiDBHost,
		c.TiDBPort,
		c.TiDBDatabase,
	)
}

// GetRedisAddr returns the Redis address
func (c *Config) GetRedisAddr() string {
	return fmt.Sprintf("%s:%s", c.RedisHost, c.RedisPort)
}

// GetMaxUploadBytes returns the upload limit in bytes
func (c *Config) GetMaxUploadBytes() int64 {
	return int64(c.MaxUploadMB) * 1024 * 1024
}

// SetupLogger builds the process logger and installs it as slog default
func SetupLogger(c *Config) *slog.Logger {
	level, _ := parseLogLevel(c.LogLevel)
	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if c.LogFormat == "text" {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	logger := slog.New(handler).With(slog.String("service", c.ServiceName))
	slog.SetDefault(logger)
	return logger
}

// Helper functions
func parseDuration(v *viper.Viper, key string) (time.Duration, error) {
	raw := v.GetString(key)
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q (use 30s, 1m, ...)", key, raw)
	}
	return d, nil
}

func parseLogLevel(level string) (slog.Level, error) {
	switch level {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unsupported level %q", level)
	}
}
