package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	dErrors "batisecure/pkg/domain-errors"
)

// Server captures process-level configuration for the security core.
type Server struct {
	Addr            string
	DatabaseURL     string
	PIIMasterKey    string
	AdminJWTKey     string
	ServiceKeyHash  string
	RateLimitMax    int
	RateLimitWindow time.Duration
}

const (
	defaultAddr            = ":8080"
	defaultRateLimitMax    = 100
	defaultRateLimitWindow = 15 * time.Minute
)

// FromEnv builds a Server config from environment variables so main stays lean.
// A .env file in the working directory is loaded first when present.
//
// The PII master key has no fallback: running without an explicit key would
// silently encrypt production data under a known value, so FromEnv fails instead.
func FromEnv() (Server, error) {
	_ = godotenv.Load()

	cfg := Server{
		Addr:            os.Getenv("BATISECURE_ADDR"),
		DatabaseURL:     os.Getenv("BATISECURE_DATABASE_URL"),
		PIIMasterKey:    os.Getenv("BATISECURE_PII_KEY"),
		AdminJWTKey:     os.Getenv("BATISECURE_ADMIN_JWT_KEY"),
		ServiceKeyHash:  os.Getenv("BATISECURE_SERVICE_KEY_HASH"),
		RateLimitMax:    defaultRateLimitMax,
		RateLimitWindow: defaultRateLimitWindow,
	}
	if cfg.Addr == "" {
		cfg.Addr = defaultAddr
	}
	if cfg.PIIMasterKey == "" {
		return Server{}, dErrors.New(dErrors.CodeInvalidInput, "BATISECURE_PII_KEY must be set")
	}
	if cfg.AdminJWTKey == "" {
		return Server{}, dErrors.New(dErrors.CodeInvalidInput, "BATISECURE_ADMIN_JWT_KEY must be set")
	}

	if raw := os.Getenv("BATISECURE_RATE_LIMIT_MAX"); raw != "" {
		if max, err := strconv.Atoi(raw); err == nil && max > 0 {
			cfg.RateLimitMax = max
		}
	}
	if raw := os.Getenv("BATISECURE_RATE_LIMIT_WINDOW"); raw != "" {
		if window, err := time.ParseDuration(raw); err == nil && window > 0 {
			cfg.RateLimitWindow = window
		}
	}

	return cfg, nil
}
