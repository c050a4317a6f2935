// Package config defines runtime configuration for the relaychat service,
// loaded from environment variables with sensible defaults for local use.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// RateLimitConfig defines the parameters for per-connection message rate limiting.
type RateLimitConfig struct {
	Burst          int
	RefillInterval time.Duration
}

// Config holds all server settings: HTTP listener, realtime limits, token
// signing, and MongoDB connection parameters.
type Config struct {
	Port           string
	AllowedOrigins []string

	MongoURI      string
	MongoDatabase string

	JWTSecret string
	JWTTTL    time.Duration

	// HistoryLimit is the number of recent messages replayed to a new session.
	HistoryLimit int
	// MaxMessageLength is the maximum chat message length in characters after trimming.
	MaxMessageLength int
	// MaxFrameSize is the maximum websocket frame size in bytes accepted from a client.
	MaxFrameSize int64

	RateLimit       RateLimitConfig
	ShutdownTimeout time.Duration
}

// Default returns the configuration used when no environment overrides are set.
func Default() Config {
	return Config{
		Port: ":8080",
		AllowedOrigins: []string{
			"http://localhost:8080",
			"http://localhost:3000",
		},
		MongoURI:         "mongodb://localhost:27017",
		MongoDatabase:    "relaychat",
		JWTSecret:        "",
		JWTTTL:           24 * time.Hour,
		HistoryLimit:     50,
		MaxMessageLength: 1000,
		MaxFrameSize:     4096,
		RateLimit: RateLimitConfig{
			Burst:          10,
			RefillInterval: time.Second,
		},
		ShutdownTimeout: 10 * time.Second,
	}
}

// FromEnv builds a Config from environment variables, falling back to defaults
// for anything unset or unparsable.
func FromEnv() Config {
	cfg := Default()

	if port := os.Getenv("SERVER_PORT"); port != "" {
		if !strings.HasPrefix(port, ":") {
			port = ":" + port
		}
		cfg.Port = port
	}
	if origins := os.Getenv("ALLOWED_ORIGINS"); origins != "" {
		cfg.AllowedOrigins = parseList(origins)
	}
	if uri := os.Getenv("MONGODB_URI"); uri != "" {
		cfg.MongoURI = uri
	}
	if db := os.Getenv("MONGODB_DATABASE"); db != "" {
		cfg.MongoDatabase = db
	}
	cfg.JWTSecret = os.Getenv("JWT_SECRET")
	if ttl := os.Getenv("JWT_TTL"); ttl != "" {
		cfg.JWTTTL = parseDuration(ttl, cfg.JWTTTL)
	}
	if limit := os.Getenv("HISTORY_LIMIT"); limit != "" {
		cfg.HistoryLimit = parsePositiveInt(limit, cfg.HistoryLimit)
	}
	if max := os.Getenv("MAX_MESSAGE_LENGTH"); max != "" {
		cfg.MaxMessageLength = parsePositiveInt(max, cfg.MaxMessageLength)
	}
	if size := os.Getenv("MAX_FRAME_SIZE"); size != "" {
		cfg.MaxFrameSize = parsePositiveInt64(size, cfg.MaxFrameSize)
	}
	if burst := os.Getenv("RATE_LIMIT_BURST"); burst != "" {
		cfg.RateLimit.Burst = parsePositiveInt(burst, cfg.RateLimit.Burst)
	}
	if interval := os.Getenv("RATE_LIMIT_REFILL_INTERVAL"); interval != "" {
		cfg.RateLimit.RefillInterval = parseDuration(interval, cfg.RateLimit.RefillInterval)
	}
	if timeout := os.Getenv("SHUTDOWN_TIMEOUT"); timeout != "" {
		cfg.ShutdownTimeout = parseDuration(timeout, cfg.ShutdownTimeout)
	}

	return cfg.sanitized()
}

// sanitized clamps out-of-range values back to defaults.
func (c Config) sanitized() Config {
	def := Default()

	if c.Port == "" {
		c.Port = def.Port
	}
	if c.HistoryLimit <= 0 {
		c.HistoryLimit = def.HistoryLimit
	}
	if c.MaxMessageLength <= 0 {
		c.MaxMessageLength = def.MaxMessageLength
	}
	if c.MaxFrameSize <= 0 {
		c.MaxFrameSize = def.MaxFrameSize
	}
	if c.RateLimit.Burst <= 0 {
		c.RateLimit.Burst = def.RateLimit.Burst
	}
	if c.RateLimit.RefillInterval <= 0 {
		c.RateLimit.RefillInterval = def.RateLimit.RefillInterval
	}
	if c.JWTTTL <= 0 {
		c.JWTTTL = def.JWTTTL
	}
	if c.ShutdownTimeout <= 0 {
		c.ShutdownTimeout = def.ShutdownTimeout
	}
	return c
}

func parseList(value string) []string {
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func parsePositiveInt(value string, defaultValue int) int {
	if parsed, err := strconv.Atoi(value); err == nil && parsed > 0 {
		return parsed
	}
	return defaultValue
}

func parsePositiveInt64(value string, defaultValue int64) int64 {
	if parsed, err := strconv.ParseInt(value, 10, 64); err == nil && parsed > 0 {
		return parsed
	}
	return defaultValue
}

func parseDuration(value string, defaultValue time.Duration) time.Duration {
	if parsed, err := time.ParseDuration(value); err == nil && parsed > 0 {
		return parsed
	}
	return defaultValue
}
