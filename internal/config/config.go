package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Backplane kinds.
const (
	BackplaneNone = "none"
	BackplaneNATS = "nats"
)

// Full-document modes for the change feed.
const (
	FullDocumentUpdateLookup  = "updateLookup"
	FullDocumentWhenAvailable = "whenAvailable"
)

// Config holds all application configuration
type Config struct {
	Server    ServerConfig
	Mongo     MongoConfig
	JWT       JWTConfig
	Backplane BackplaneConfig
	Watcher   WatcherConfig
	RateLimit RateLimitConfig
	WebSocket WebSocketConfig
	Logging   LoggingConfig
	App       AppConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
}

// MongoConfig holds document store configuration
type MongoConfig struct {
	URI            string
	Database       string
	ConnectTimeout time.Duration
}

// JWTConfig holds the handshake credential configuration
type JWTConfig struct {
	Secret   string
	TokenTTL time.Duration
}

// BackplaneConfig selects and configures the fan-out adapter
type BackplaneConfig struct {
	Kind          string // none, nats
	URL           string
	Subject       string
	MaxReconnect  int
	ReconnectWait time.Duration
}

// WatcherConfig holds change feed configuration
type WatcherConfig struct {
	IgnoredCollections []string
	IgnoredOperations  []string
	BatchSize          int
	MaxAwait           time.Duration
	FullDocumentMode   string
	MaxRestarts        int
}

// RateLimitConfig holds handshake rate limiting configuration
type RateLimitConfig struct {
	Enabled           bool
	RequestsPerSecond float64
	BurstSize         int
}

// WebSocketConfig holds WebSocket configuration
type WebSocketConfig struct {
	AllowedOrigins  []string
	ReadBufferSize  int
	WriteBufferSize int
	SendBufferSize  int
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string // debug, info, warn, error
	Format string // json, text
}

// AppConfig holds application metadata
type AppConfig struct {
	Name        string
	Version     string
	Environment string
	ModelsFile  string
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists (for local development)
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using system environment variables")
	}

	cfg := &Config{
		Server: ServerConfig{
			Port:            getEnvOrDefault("SERVER_PORT", ":8080"),
			ReadTimeout:     getDurationOrDefault("SERVER_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:    getDurationOrDefault("SERVER_WRITE_TIMEOUT", 15*time.Second),
			IdleTimeout:     getDurationOrDefault("SERVER_IDLE_TIMEOUT", 60*time.Second),
			ShutdownTimeout: getDurationOrDefault("SERVER_SHUTDOWN_TIMEOUT", 30*time.Second),
		},
		Mongo: MongoConfig{
			URI:            os.Getenv("MONGO_URI"),
			Database:       getEnvOrDefault("MONGO_DATABASE", "app"),
			ConnectTimeout: getDurationOrDefault("MONGO_CONNECT_TIMEOUT", 10*time.Second),
		},
		JWT: JWTConfig{
			Secret:   os.Getenv("JWT_SECRET"),
			TokenTTL: getDurationOrDefault("JWT_TOKEN_TTL", 1*time.Hour),
		},
		Backplane: BackplaneConfig{
			Kind:          getEnvOrDefault("BACKPLANE_KIND", BackplaneNone),
			URL:           os.Getenv("BACKPLANE_URL"),
			Subject:       getEnvOrDefault("BACKPLANE_SUBJECT", "realtime.events"),
			MaxReconnect:  getIntOrDefault("BACKPLANE_MAX_RECONNECT", 10),
			ReconnectWait: getDurationOrDefault("BACKPLANE_RECONNECT_WAIT", 2*time.Second),
		},
		Watcher: WatcherConfig{
			IgnoredCollections: getStringSliceOrDefault("WATCH_IGNORED_COLLECTIONS", []string{}),
			IgnoredOperations:  getStringSliceOrDefault("WATCH_IGNORED_OPERATIONS", []string{}),
			BatchSize:          getIntOrDefault("WATCH_BATCH_SIZE", 50),
			MaxAwait:           getDurationOrDefault("WATCH_MAX_AWAIT", 1*time.Second),
			FullDocumentMode:   getEnvOrDefault("WATCH_FULL_DOCUMENT_MODE", FullDocumentUpdateLookup),
			MaxRestarts:        getIntOrDefault("WATCH_MAX_RESTARTS", 5),
		},
		RateLimit: RateLimitConfig{
			Enabled:           getBoolOrDefault("RATE_LIMIT_ENABLED", true),
			RequestsPerSecond: getFloatOrDefault("RATE_LIMIT_RPS", 10),
			BurstSize:         getIntOrDefault("RATE_LIMIT_BURST", 20),
		},
		WebSocket: WebSocketConfig{
			AllowedOrigins:  getStringSliceOrDefault("WS_ALLOWED_ORIGINS", []string{}),
			ReadBufferSize:  getIntOrDefault("WS_READ_BUFFER_SIZE", 1024),
			WriteBufferSize: getIntOrDefault("WS_WRITE_BUFFER_SIZE", 1024),
			SendBufferSize:  getIntOrDefault("WS_SEND_BUFFER_SIZE", 256),
		},
		Logging: LoggingConfig{
			Level:  getEnvOrDefault("LOG_LEVEL", "info"),
			Format: getEnvOrDefault("LOG_FORMAT", "json"),
		},
		App: AppConfig{
			Name:        getEnvOrDefault("APP_NAME", "realtime-gateway"),
			Version:     getEnvOrDefault("APP_VERSION", "dev"),
			Environment: getEnvOrDefault("APP_ENV", "development"),
			ModelsFile:  getEnvOrDefault("MODELS_FILE", ""),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	var errs []string

	// Required fields
	if c.Mongo.URI == "" {
		errs = append(errs, "MONGO_URI is required")
	}

	if c.JWT.Secret == "" {
		errs = append(errs, "JWT_SECRET is required")
	}

	switch c.Backplane.Kind {
	case BackplaneNone:
	case BackplaneNATS:
		if c.Backplane.URL == "" {
			errs = append(errs, "BACKPLANE_URL is required when BACKPLANE_KIND is nats")
		}
	default:
		errs = append(errs, fmt.Sprintf("BACKPLANE_KIND must be one of: none, nats (got %q)", c.Backplane.Kind))
	}

	switch c.Watcher.FullDocumentMode {
	case FullDocumentUpdateLookup, FullDocumentWhenAvailable:
	default:
		errs = append(errs, fmt.Sprintf("WATCH_FULL_DOCUMENT_MODE must be %s or %s (got %q)",
			FullDocumentUpdateLookup, FullDocumentWhenAvailable, c.Watcher.FullDocumentMode))
	}

	if c.Watcher.BatchSize <= 0 {
		errs = append(errs, "WATCH_BATCH_SIZE must be positive")
	}

	// Security validations
	if c.IsProduction() {
		if len(c.JWT.Secret) < 32 {
			errs = append(errs, "JWT_SECRET must be at least 32 characters in production")
		}

		if len(c.WebSocket.AllowedOrigins) == 0 {
			errs = append(errs, "WS_ALLOWED_ORIGINS must be set in production")
		}
	}

	if len(errs) > 0 {
		return errors.New("configuration errors:\n  - " + strings.Join(errs, "\n  - "))
	}

	return nil
}

// IsDevelopment returns true if running in development environment
func (c *Config) IsDevelopment() bool {
	return c.App.Environment == "development"
}

// IsProduction returns true if running in production environment
func (c *Config) IsProduction() bool {
	return c.App.Environment == "production"
}

// Helper functions

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getFloatOrDefault(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

func getBoolOrDefault(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func getStringSliceOrDefault(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		parts := strings.Split(value, ",")
		result := make([]string, 0, len(parts))
		for _, part := range parts {
			trimmed := strings.TrimSpace(part)
			if trimmed != "" {
				result = append(result, trimmed)
			}
		}
		if len(result) > 0 {
			return result
		}
	}
	return defaultValue
}

// String returns a redacted string representation of the config (safe for logging)
func (c *Config) String() string {
	return fmt.Sprintf(
		"Config{Server: %s, Mongo: %s, JWT: [REDACTED], Backplane: %s, Environment: %s}",
		c.Server.Port,
		redactURL(c.Mongo.URI),
		c.Backplane.Kind,
		c.App.Environment,
	)
}

// redactURL redacts credentials embedded in a connection string
func redactURL(url string) string {
	if url == "" {
		return ""
	}
	if idx := strings.Index(url, "@"); idx > 0 {
		return "[REDACTED]" + url[idx:]
	}
	return "[REDACTED]"
}
