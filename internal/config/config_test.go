package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadDefaults(t *testing.T) {
	cfg := Load()

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, "development", cfg.Env)
	assert.Equal(t, 6*time.Hour, cfg.RenewalInterval)
	assert.Equal(t, 48*time.Hour, cfg.RenewalThreshold)
	assert.Equal(t, 10*time.Second, cfg.CalendarTimeout)
	assert.Equal(t, 120, cfg.RateLimitPerMinute)
	assert.True(t, cfg.RateLimitEnabled)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("RENEWAL_INTERVAL", "1h")
	t.Setenv("RENEWAL_THRESHOLD", "12h")
	t.Setenv("RATE_LIMIT_PER_MINUTE", "30")
	t.Setenv("RATE_LIMIT_ENABLED", "false")
	t.Setenv("CALENDAR_TIMEOUT", "2s")

	cfg := Load()

	assert.Equal(t, "9090", cfg.Port)
	assert.Equal(t, time.Hour, cfg.RenewalInterval)
	assert.Equal(t, 12*time.Hour, cfg.RenewalThreshold)
	assert.Equal(t, 30, cfg.RateLimitPerMinute)
	assert.False(t, cfg.RateLimitEnabled)
	assert.Equal(t, 2*time.Second, cfg.CalendarTimeout)
}

func TestInvalidDurationFallsBack(t *testing.T) {
	t.Setenv("RENEWAL_INTERVAL", "not-a-duration")
	cfg := Load()
	assert.Equal(t, 6*time.Hour, cfg.RenewalInterval)
}
