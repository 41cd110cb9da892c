package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestGetEnvHelpers(t *testing.T) {
	t.Setenv("C4_INT", "12")
	t.Setenv("C4_BAD_INT", "twelve")
	t.Setenv("C4_DUR", "90s")
	t.Setenv("C4_SECS", "45")
	t.Setenv("C4_LIST", " a, ,b ,c")

	assert.Equal(t, "fallback", GetEnv("C4_UNSET", "fallback"))
	assert.Equal(t, 12, GetEnvAsInt("C4_INT", 1))
	assert.Equal(t, 1, GetEnvAsInt("C4_BAD_INT", 1))
	assert.Equal(t, 90*time.Second, GetEnvAsDuration("C4_DUR", time.Second))
	assert.Equal(t, 45*time.Second, GetEnvAsDuration("C4_SECS", time.Second))
	assert.Equal(t, time.Second, GetEnvAsDuration("C4_BAD_INT", time.Second))
	assert.Equal(t, []string{"a", "b", "c"}, GetEnvAsList("C4_LIST", nil))
	assert.Equal(t, []string{"x"}, GetEnvAsList("C4_UNSET", []string{"x"}))
}

func TestLoadConfig(t *testing.T) {
	t.Setenv("PORT", "9000")
	t.Setenv("ALLOWED_ORIGINS", "https://play.example.com")
	t.Setenv("STALE_GAME_TTL", "2h")

	cfg := LoadConfig()
	assert.Equal(t, "9000", cfg.Port)
	assert.Contains(t, cfg.AllowedOrigins, "https://play.example.com")
	assert.Contains(t, cfg.AllowedOrigins, "http://localhost:5173")
	assert.Equal(t, 2*time.Hour, cfg.StaleGameTTL)
	assert.Equal(t, time.Hour, cfg.CleanupInterval)
}

func TestLoadClientConfig(t *testing.T) {
	t.Setenv("RELAY_URL", "https://relay.example.com/")
	t.Setenv("STUN_SERVERS", "stun:a.example.com:3478")

	cfg := LoadClientConfig()
	assert.Equal(t, "https://relay.example.com", cfg.RelayURL)
	assert.Equal(t, []string{"stun:a.example.com:3478"}, cfg.STUNServers)
	assert.Equal(t, 300*time.Millisecond, cfg.MoveDelay)
	assert.Equal(t, 30*time.Second, cfg.ConnectTimeout)
}
