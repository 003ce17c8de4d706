package events

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"batisecure/internal/platform/metrics"
)

// AlertSink receives a copy of every HIGH/CRITICAL entry. Implementations
// deliver to an operator-facing channel; delivery is best-effort.
type AlertSink interface {
	SendAlert(ctx context.Context, entry Entry)
}

// SlogAlertSink is the reference sink: it surfaces alerts on the process log
// at Error level so operators see them without extra infrastructure.
type SlogAlertSink struct {
	Logger *slog.Logger
}

func (s *SlogAlertSink) SendAlert(_ context.Context, entry Entry) {
	if s.Logger == nil {
		return
	}
	s.Logger.Error("security alert",
		"action", entry.Action,
		"resource", entry.Resource,
		"user_id", entry.UserID,
		"ip_address", entry.IPAddress,
		"risk_level", entry.RiskLevel,
	)
}

// Logger records security events. Logging is best-effort relative to the
// caller's primary operation: persistence failures are reported on the
// diagnostic log and never returned.
type Logger struct {
	store   Store
	sink    AlertSink
	logger  *slog.Logger
	metrics *metrics.Metrics

	entries chan Entry
	wg      sync.WaitGroup
	async   bool
}

// Option configures the Logger.
type Option func(*Logger)

// WithAlertSink sets the sink notified on HIGH/CRITICAL events.
func WithAlertSink(sink AlertSink) Option {
	return func(l *Logger) {
		l.sink = sink
	}
}

// WithMetrics enables per-risk-level event counters.
func WithMetrics(m *metrics.Metrics) Option {
	return func(l *Logger) {
		l.metrics = m
	}
}

// WithAsyncBuffer enables async persistence with the specified buffer size.
// Entries are queued and written by a background goroutine; a full buffer
// drops the entry rather than blocking the request path.
func WithAsyncBuffer(size int) Option {
	return func(l *Logger) {
		if size > 0 {
			l.entries = make(chan Entry, size)
			l.async = true
		}
	}
}

// NewLogger constructs a security event logger over the given store.
func NewLogger(store Store, diag *slog.Logger, opts ...Option) *Logger {
	l := &Logger{store: store, logger: diag}
	for _, opt := range opts {
		opt(l)
	}
	if l.async {
		l.wg.Add(1)
		go l.processEntries()
	}
	return l
}

// Log records the entry. It never returns an error: audit logging must not
// abort the operation being audited.
func (l *Logger) Log(ctx context.Context, entry Entry) {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now()
	}
	if !entry.RiskLevel.IsValid() {
		entry.RiskLevel = RiskLow
	}

	if l.metrics != nil {
		l.metrics.IncrementSecurityEvents(string(entry.RiskLevel))
	}

	if entry.RiskLevel.IsAlertable() && l.sink != nil {
		l.sink.SendAlert(ctx, entry)
	}

	if l.async {
		select {
		case l.entries <- entry:
		default:
			l.diag("security event buffer full, entry dropped", entry, nil)
		}
		return
	}

	if err := l.store.Append(ctx, entry); err != nil {
		l.diag("failed to persist security event", entry, err)
	}
}

func (l *Logger) processEntries() {
	defer l.wg.Done()
	for entry := range l.entries {
		if err := l.store.Append(context.Background(), entry); err != nil {
			l.diag("failed to persist security event", entry, err)
		}
	}
}

// Close shuts down the async logger and waits for pending entries to drain.
func (l *Logger) Close() {
	if l.async && l.entries != nil {
		close(l.entries)
		l.wg.Wait()
	}
}

func (l *Logger) diag(msg string, entry Entry, err error) {
	if l.logger == nil {
		return
	}
	l.logger.Error(msg,
		"error", err,
		"action", entry.Action,
		"user_id", entry.UserID,
		"risk_level", entry.RiskLevel,
	)
}
