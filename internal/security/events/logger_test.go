package events

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type captureSink struct {
	mu      sync.Mutex
	entries []Entry
}

func (s *captureSink) SendAlert(_ context.Context, entry Entry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, entry)
}

type failingStore struct{}

func (failingStore) Append(context.Context, Entry) error { return errors.New("disk full") }
func (failingStore) ListByUser(context.Context, string) ([]Entry, error) {
	return nil, nil
}
func (failingStore) ListSince(context.Context, time.Time) ([]Entry, error) {
	return nil, nil
}
func (failingStore) CountByRiskLevel(context.Context, time.Time) (map[RiskLevel]int, error) {
	return nil, nil
}

func TestLoggerFillsDefaults(t *testing.T) {
	store := NewInMemoryStore()
	logger := NewLogger(store, slog.Default())

	logger.Log(context.Background(), Entry{Action: ActionPermissionCheck, Success: true})

	all := store.All()
	require.Len(t, all, 1)
	assert.NotEmpty(t, all[0].ID)
	assert.False(t, all[0].Timestamp.IsZero())
	assert.Equal(t, RiskLow, all[0].RiskLevel)
}

func TestLoggerAlertsOnHighRisk(t *testing.T) {
	store := NewInMemoryStore()
	sink := &captureSink{}
	logger := NewLogger(store, slog.Default(), WithAlertSink(sink))

	logger.Log(context.Background(), Entry{Action: ActionRateLimitExceeded, RiskLevel: RiskMedium})
	logger.Log(context.Background(), Entry{Action: ActionHighRiskActivityDetected, RiskLevel: RiskHigh})
	logger.Log(context.Background(), Entry{Action: "DATA_BREACH_REPORTED", RiskLevel: RiskCritical})

	require.Len(t, sink.entries, 2)
	assert.Equal(t, ActionHighRiskActivityDetected, sink.entries[0].Action)
	assert.Equal(t, RiskCritical, sink.entries[1].RiskLevel)
}

func TestLoggerSwallowsStoreFailures(t *testing.T) {
	logger := NewLogger(failingStore{}, slog.Default())

	// Must not panic or surface the error to the caller.
	logger.Log(context.Background(), Entry{Action: ActionPermissionCheck})
}

func TestLoggerAsyncDrainsOnClose(t *testing.T) {
	store := NewInMemoryStore()
	logger := NewLogger(store, slog.Default(), WithAsyncBuffer(16))

	for range 10 {
		logger.Log(context.Background(), Entry{Action: ActionPermissionCheck})
	}
	logger.Close()

	assert.Len(t, store.All(), 10)
}

func TestStoreCountByRiskLevel(t *testing.T) {
	store := NewInMemoryStore()
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, store.Append(ctx, Entry{RiskLevel: RiskLow, Timestamp: now}))
	require.NoError(t, store.Append(ctx, Entry{RiskLevel: RiskHigh, Timestamp: now}))
	require.NoError(t, store.Append(ctx, Entry{RiskLevel: RiskHigh, Timestamp: now.Add(-48 * time.Hour)}))

	counts, err := store.CountByRiskLevel(ctx, now.Add(-time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, counts[RiskLow])
	assert.Equal(t, 1, counts[RiskHigh])
}
