package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromEnvRequiresPIIKey(t *testing.T) {
	t.Setenv("BATISECURE_PII_KEY", "")
	t.Setenv("BATISECURE_ADMIN_JWT_KEY", "jwt-secret")

	_, err := FromEnv()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "BATISECURE_PII_KEY")
}

func TestFromEnvDefaults(t *testing.T) {
	t.Setenv("BATISECURE_PII_KEY", "master-secret")
	t.Setenv("BATISECURE_ADMIN_JWT_KEY", "jwt-secret")
	t.Setenv("BATISECURE_ADDR", "")
	t.Setenv("BATISECURE_RATE_LIMIT_MAX", "")
	t.Setenv("BATISECURE_RATE_LIMIT_WINDOW", "")

	cfg, err := FromEnv()
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.Addr)
	assert.Equal(t, 100, cfg.RateLimitMax)
	assert.Equal(t, 15*time.Minute, cfg.RateLimitWindow)
}

func TestFromEnvOverrides(t *testing.T) {
	t.Setenv("BATISECURE_PII_KEY", "master-secret")
	t.Setenv("BATISECURE_ADMIN_JWT_KEY", "jwt-secret")
	t.Setenv("BATISECURE_RATE_LIMIT_MAX", "25")
	t.Setenv("BATISECURE_RATE_LIMIT_WINDOW", "1m")

	cfg, err := FromEnv()
	require.NoError(t, err)
	assert.Equal(t, 25, cfg.RateLimitMax)
	assert.Equal(t, time.Minute, cfg.RateLimitWindow)
}
