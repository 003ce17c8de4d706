// Package service implements the GDPR data controller: consent lifecycle,
// data-subject rights requests, the processing audit trail, retention
// cleanup and breach tracking.
package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"batisecure/internal/crypto/pii"
	"batisecure/internal/gdpr/models"
	"batisecure/internal/gdpr/tracer"
	"batisecure/internal/platform/metrics"
	"batisecure/internal/platform/privacy"
)

// CleanupStrategy deletes or anonymizes expired records of one data type.
// It receives the cutoff computed from the retention policy and returns the
// number of records affected.
type CleanupStrategy func(ctx context.Context, cutoff time.Time) (int, error)

// Controller coordinates every data-protection operation. All dependencies
// are injected; there is no package-level state.
type Controller struct {
	stores  Stores
	tx      Tx
	logger  *slog.Logger
	metrics *metrics.Metrics
	tracer  tracer.Tracer
	cipher  *pii.Cipher
	clock   func() time.Time

	cleanups map[string]CleanupStrategy
}

type Option func(*Controller)

// WithMetrics attaches a metrics registry.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Controller) {
		c.metrics = m
	}
}

// WithTracer attaches a tracer. Defaults to a no-op.
func WithTracer(t tracer.Tracer) Option {
	return func(c *Controller) {
		if t != nil {
			c.tracer = t
		}
	}
}

// WithPIICipher enables decryption of field-level encrypted business
// records when assembling data exports. Without it, encrypted fields are
// exported as stored.
func WithPIICipher(cipher *pii.Cipher) Option {
	return func(c *Controller) {
		c.cipher = cipher
	}
}

// WithClock overrides the time source for tests.
func WithClock(now func() time.Time) Option {
	return func(c *Controller) {
		if now != nil {
			c.clock = now
		}
	}
}

// WithCleanupStrategy registers the cleanup behavior for one data type.
// Data types with a retention policy but no strategy are reported as
// skipped, never guessed at.
func WithCleanupStrategy(dataType string, strategy CleanupStrategy) Option {
	return func(c *Controller) {
		c.cleanups[dataType] = strategy
	}
}

func NewController(stores Stores, tx Tx, logger *slog.Logger, opts ...Option) *Controller {
	c := &Controller{
		stores:   stores,
		tx:       tx,
		logger:   logger,
		tracer:   tracer.NewNoop(),
		clock:    time.Now,
		cleanups: make(map[string]CleanupStrategy),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func newID() string {
	return uuid.NewString()
}

// recordProcessing appends one audit-trail entry. Failures are logged but
// never fail the calling operation; the trail is best-effort by contract
// while the operation itself is the source of truth.
func (c *Controller) recordProcessing(ctx context.Context, userID, dataType, operation string, basis models.LawfulBasis, purpose, sourceIP string) {
	entry := &models.ProcessingLog{
		ID:          newID(),
		UserID:      userID,
		DataType:    dataType,
		Operation:   operation,
		LawfulBasis: basis,
		Purpose:     purpose,
		Source:      privacy.AnonymizeIP(sourceIP),
		Timestamp:   c.clock().UTC(),
	}
	if err := c.stores.Logs.AppendLog(ctx, entry); err != nil {
		c.logger.Error("processing log append failed",
			"operation", operation,
			"data_type", dataType,
			"error", err)
	}
}
