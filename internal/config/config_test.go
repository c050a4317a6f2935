package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.Equal(t, ":8080", cfg.Port)
	assert.Equal(t, 50, cfg.HistoryLimit)
	assert.Equal(t, 1000, cfg.MaxMessageLength)
	assert.Equal(t, 24*time.Hour, cfg.JWTTTL)
	assert.NotEmpty(t, cfg.AllowedOrigins)
}

func TestFromEnv_Overrides(t *testing.T) {
	t.Setenv("SERVER_PORT", "9090")
	t.Setenv("ALLOWED_ORIGINS", "https://chat.example.com, https://www.example.com")
	t.Setenv("MONGODB_URI", "mongodb://db:27017")
	t.Setenv("MONGODB_DATABASE", "chat")
	t.Setenv("JWT_SECRET", "hunter2hunter2")
	t.Setenv("JWT_TTL", "2h")
	t.Setenv("HISTORY_LIMIT", "25")
	t.Setenv("MAX_MESSAGE_LENGTH", "500")
	t.Setenv("RATE_LIMIT_BURST", "3")
	t.Setenv("RATE_LIMIT_REFILL_INTERVAL", "2s")

	cfg := FromEnv()

	assert.Equal(t, ":9090", cfg.Port)
	assert.Equal(t, []string{"https://chat.example.com", "https://www.example.com"}, cfg.AllowedOrigins)
	assert.Equal(t, "mongodb://db:27017", cfg.MongoURI)
	assert.Equal(t, "chat", cfg.MongoDatabase)
	assert.Equal(t, "hunter2hunter2", cfg.JWTSecret)
	assert.Equal(t, 2*time.Hour, cfg.JWTTTL)
	assert.Equal(t, 25, cfg.HistoryLimit)
	assert.Equal(t, 500, cfg.MaxMessageLength)
	assert.Equal(t, 3, cfg.RateLimit.Burst)
	assert.Equal(t, 2*time.Second, cfg.RateLimit.RefillInterval)
}

func TestFromEnv_InvalidValuesFallBack(t *testing.T) {
	t.Setenv("HISTORY_LIMIT", "not-a-number")
	t.Setenv("MAX_MESSAGE_LENGTH", "-5")
	t.Setenv("JWT_TTL", "soon")

	cfg := FromEnv()
	def := Default()

	assert.Equal(t, def.HistoryLimit, cfg.HistoryLimit)
	assert.Equal(t, def.MaxMessageLength, cfg.MaxMessageLength)
	assert.Equal(t, def.JWTTTL, cfg.JWTTTL)
}

func TestFromEnv_PortPrefix(t *testing.T) {
	t.Setenv("SERVER_PORT", ":7070")

	cfg := FromEnv()
	assert.Equal(t, ":7070", cfg.Port)
}
