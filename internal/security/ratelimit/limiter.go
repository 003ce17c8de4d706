// Package ratelimit implements fixed-window request limiting keyed by client
// identifier (IP or user ID). State lives behind BucketStore so a shared
// external store can replace the process-local map in multi-instance
// deployments without changing callers.
package ratelimit

import (
	"context"
	"time"

	"batisecure/internal/platform/metrics"
	"batisecure/internal/security/events"
)

// Result describes the outcome of a rate limit check.
type Result struct {
	Allowed    bool      `json:"allowed"`
	Limit      int       `json:"limit"`
	Remaining  int       `json:"remaining"`
	ResetAt    time.Time `json:"reset_at"`
	RetryAfter int       `json:"retry_after,omitempty"` // seconds, only set when not allowed
}

// BucketStore holds per-identifier window counters.
type BucketStore interface {
	// Incr advances the counter for key inside a fixed window, resetting it
	// when the previous window has expired. It returns the count after the
	// increment and the end of the current window.
	Incr(ctx context.Context, key string, window time.Duration) (count int, resetAt time.Time, err error)
	Reset(ctx context.Context, key string) error
	CurrentCount(ctx context.Context, key string) (int, error)
}

const (
	// DefaultMaxRequests allows 100 requests per window per identifier.
	DefaultMaxRequests = 100
	// DefaultWindow is the fixed 15 minute counting window.
	DefaultWindow = 15 * time.Minute
)

// Limiter applies a fixed-window limit and records violations on the
// security event log.
type Limiter struct {
	store       BucketStore
	maxRequests int
	window      time.Duration
	eventLog    *events.Logger
	metrics     *metrics.Metrics
}

// Option configures the Limiter.
type Option func(*Limiter)

// WithLimit overrides the default requests-per-window limit.
func WithLimit(max int) Option {
	return func(l *Limiter) {
		if max > 0 {
			l.maxRequests = max
		}
	}
}

// WithWindow overrides the default window duration.
func WithWindow(window time.Duration) Option {
	return func(l *Limiter) {
		if window > 0 {
			l.window = window
		}
	}
}

// WithMetrics enables the violation counter.
func WithMetrics(m *metrics.Metrics) Option {
	return func(l *Limiter) {
		l.metrics = m
	}
}

// NewLimiter constructs a Limiter over the given bucket store. The event
// logger may be nil; violations are then only reflected in the Result.
func NewLimiter(store BucketStore, eventLog *events.Logger, opts ...Option) *Limiter {
	l := &Limiter{
		store:       store,
		eventLog:    eventLog,
		maxRequests: DefaultMaxRequests,
		window:      DefaultWindow,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Allow counts one request for the identifier and reports whether it is
// within the window limit. The (N+1)-th request of a window is rejected and
// emits a MEDIUM RATE_LIMIT_EXCEEDED event.
func (l *Limiter) Allow(ctx context.Context, identifier string) (Result, error) {
	count, resetAt, err := l.store.Incr(ctx, identifier, l.window)
	if err != nil {
		return Result{}, err
	}

	if count > l.maxRequests {
		if l.metrics != nil {
			l.metrics.IncrementRateLimitViolations()
		}
		if l.eventLog != nil {
			l.eventLog.Log(ctx, events.Entry{
				Action:    events.ActionRateLimitExceeded,
				Resource:  "rate_limiter",
				IPAddress: identifier,
				Success:   false,
				RiskLevel: events.RiskMedium,
				Details: map[string]any{
					"count":     count,
					"limit":     l.maxRequests,
					"window_ms": l.window.Milliseconds(),
				},
			})
		}
		return Result{
			Allowed:    false,
			Limit:      l.maxRequests,
			Remaining:  0,
			ResetAt:    resetAt,
			RetryAfter: retryAfterSeconds(resetAt),
		}, nil
	}

	return Result{
		Allowed:   true,
		Limit:     l.maxRequests,
		Remaining: l.maxRequests - count,
		ResetAt:   resetAt,
	}, nil
}

// Reset clears the counter for an identifier. Admin surface.
func (l *Limiter) Reset(ctx context.Context, identifier string) error {
	return l.store.Reset(ctx, identifier)
}

// CurrentCount returns the in-window request count for an identifier.
func (l *Limiter) CurrentCount(ctx context.Context, identifier string) (int, error) {
	return l.store.CurrentCount(ctx, identifier)
}

func retryAfterSeconds(resetAt time.Time) int {
	seconds := int(time.Until(resetAt).Seconds())
	if seconds < 0 {
		return 0
	}
	return seconds
}
