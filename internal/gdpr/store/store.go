package store

import (
	"context"
	"time"

	"batisecure/internal/gdpr/models"
	dErrors "batisecure/pkg/domain-errors"
)

// ErrNotFound keeps storage-specific 404s consistent across implementations.
var ErrNotFound = dErrors.New(dErrors.CodeNotFound, "record not found")

// ConsentStore persists consent rows.
// Error Contract:
// - Revoke returns ErrNotFound when no active consent matches
// - List methods return empty slices for no matches, never ErrNotFound
type ConsentStore interface {
	Save(ctx context.Context, consent *models.Consent) error
	ListByUser(ctx context.Context, userID string, filter *models.ConsentFilter) ([]*models.Consent, error)
	ActiveByUserAndPurpose(ctx context.Context, userID string, purpose models.Purpose) ([]*models.Consent, error)
	// Revoke soft-revokes every active consent matching (userID, purpose)
	// and returns the updated rows.
	Revoke(ctx context.Context, userID string, purpose models.Purpose, revokedAt time.Time, ip, userAgent string) ([]*models.Consent, error)
	CountActiveByPurpose(ctx context.Context) (map[models.Purpose]int, error)
	CountActive(ctx context.Context) (int, error)
}

// RightsStore persists data-subject rights requests.
type RightsStore interface {
	SaveRequest(ctx context.Context, request *models.RightsRequest) error
	FindRequestByID(ctx context.Context, id string) (*models.RightsRequest, error)
	UpdateRequest(ctx context.Context, request *models.RightsRequest) error
	ListRequestsByUser(ctx context.Context, userID string) ([]*models.RightsRequest, error)
	ListRequests(ctx context.Context, filter *models.RequestFilter) ([]*models.RightsRequest, error)
	CountRequestsByStatus(ctx context.Context, status models.RequestStatus) (int, error)
}

// ProcessingLogStore is the append-only lawful-basis trail.
type ProcessingLogStore interface {
	AppendLog(ctx context.Context, entry *models.ProcessingLog) error
	ListLogsByUser(ctx context.Context, userID string) ([]*models.ProcessingLog, error)
	ListLogsBetween(ctx context.Context, from, to time.Time) ([]*models.ProcessingLog, error)
}

// RetentionStore persists retention policies keyed by (dataType, category).
type RetentionStore interface {
	Upsert(ctx context.Context, policy *models.RetentionPolicy) error
	List(ctx context.Context) ([]*models.RetentionPolicy, error)
}

// BreachStore persists data-breach reports. Rows are never deleted.
type BreachStore interface {
	SaveBreach(ctx context.Context, breach *models.Breach) error
	FindBreachByID(ctx context.Context, id string) (*models.Breach, error)
	UpdateBreach(ctx context.Context, breach *models.Breach) error
	ListBreaches(ctx context.Context) ([]*models.Breach, error)
	CountDetectedSince(ctx context.Context, since time.Time) (int, error)
}

// SubjectStore exposes the user-owned records that access and erasure
// requests operate on. The mutating methods are only called inside an
// erasure transaction.
type SubjectStore interface {
	Profile(ctx context.Context, userID string) (*models.UserProfile, error)
	Projects(ctx context.Context, userID string) ([]map[string]any, error)
	Quotes(ctx context.Context, userID string) ([]map[string]any, error)
	Notifications(ctx context.Context, userID string) ([]map[string]any, error)
	Messages(ctx context.Context, userID string) ([]*models.Message, error)
	Comments(ctx context.Context, userID string) ([]*models.Comment, error)
	Documents(ctx context.Context, userID string) ([]*models.Document, error)
	CountUsers(ctx context.Context) (int, error)

	// AnonymizeProfile replaces the email and blanks the identifying fields
	// while preserving the row's primary key.
	AnonymizeProfile(ctx context.Context, userID, anonymizedEmail string) error
	// RedactMessages overwrites message bodies with the placeholder and
	// clears photo references. Returns the number of rows touched.
	RedactMessages(ctx context.Context, userID, placeholder string) (int, error)
	RedactComments(ctx context.Context, userID, placeholder string) (int, error)
	// DeleteDocuments hard-deletes the user's uploads. Returns the count.
	DeleteDocuments(ctx context.Context, userID string) (int, error)
}
