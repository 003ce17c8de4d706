package events

import (
	"context"
	"time"

	dErrors "batisecure/pkg/domain-errors"
)

// ErrNotFound keeps storage-specific 404s consistent across implementations.
var ErrNotFound = dErrors.New(dErrors.CodeNotFound, "security event not found")

// Store persists security event entries.
// Error Contract:
// - Append returns nil on success or a wrapped error on failure
// - List methods return an empty slice, never nil errors for empty results
type Store interface {
	Append(ctx context.Context, entry Entry) error
	ListByUser(ctx context.Context, userID string) ([]Entry, error)
	ListSince(ctx context.Context, since time.Time) ([]Entry, error)
	CountByRiskLevel(ctx context.Context, since time.Time) (map[RiskLevel]int, error)
}
