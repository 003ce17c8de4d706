package models

import (
	"time"

	dErrors "batisecure/pkg/domain-errors"
)

// Consent captures one grant of consent for one purpose.
//
// # Uniqueness Invariant
//
// A user holds at most one ACTIVE consent per purpose (granted and not
// revoked). Withdrawal is a soft transition: RevokedAt is set and the row is
// retained forever for audit completeness. A later re-grant creates a new
// row; revoked rows are never resurrected.
type Consent struct {
	ID               string
	UserID           string
	Purpose          Purpose
	Granted          bool
	IPAddress        string
	UserAgent        string
	Timestamp        time.Time
	RevokedAt        *time.Time
	RevokedIPAddress string
	RevokedUserAgent string
}

// NewConsent creates a Consent with domain invariant checks.
func NewConsent(id, userID string, purpose Purpose, ip, userAgent string, grantedAt time.Time) (*Consent, error) {
	if id == "" {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "consent ID required")
	}
	if userID == "" {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "user ID required")
	}
	if !purpose.IsValid() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "invalid consent purpose")
	}
	if grantedAt.IsZero() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "grant time required")
	}
	return &Consent{
		ID:        id,
		UserID:    userID,
		Purpose:   purpose,
		Granted:   true,
		IPAddress: ip,
		UserAgent: userAgent,
		Timestamp: grantedAt,
	}, nil
}

// IsActive reports whether the consent currently authorizes processing.
func (c Consent) IsActive() bool {
	return c.Granted && c.RevokedAt == nil
}

// ConsentFilter narrows consent listings.
type ConsentFilter struct {
	Purpose    *Purpose
	ActiveOnly bool
}

// RightsRequest tracks a data subject's exercise of a legal right through
// its processing lifecycle.
type RightsRequest struct {
	ID              string
	UserID          string
	Type            RequestType
	Status          RequestStatus
	RequestData     map[string]any
	ProcessedData   map[string]any
	ProcessorUserID string
	ResponseNote    string
	CreatedAt       time.Time
	ProcessedAt     *time.Time
}

// Transition moves the request to the next status, enforcing the state machine.
func (r *RightsRequest) Transition(next RequestStatus) error {
	if !r.Status.CanTransitionTo(next) {
		return dErrors.New(dErrors.CodeInvalidTransition,
			"cannot move request from "+string(r.Status)+" to "+string(next))
	}
	r.Status = next
	return nil
}

// RequestFilter narrows rights-request listings.
type RequestFilter struct {
	Type   *RequestType
	Status *RequestStatus
	From   *time.Time
	To     *time.Time
}

// ProcessingLog is one append-only entry of the lawful-basis audit trail.
// Every controller-level action writes exactly one entry; entries carry an
// anonymized source address since they are retained for years.
type ProcessingLog struct {
	ID          string
	UserID      string
	DataType    string
	Operation   string
	LawfulBasis LawfulBasis
	Purpose     string
	Source      string
	Timestamp   time.Time
}

// Processing operations recorded on the trail.
const (
	OperationCollect   = "COLLECT"
	OperationConsent   = "CONSENT"
	OperationWithdraw  = "WITHDRAW"
	OperationRequest   = "REQUEST"
	OperationExport    = "EXPORT"
	OperationAnonymize = "ANONYMIZE"
	OperationDelete    = "DELETE"
)

// RetentionPolicy governs how long one category of data may be kept.
// Uniquely keyed by (DataType, Category).
type RetentionPolicy struct {
	DataType      string
	Category      string
	RetentionDays int
	LawfulBasis   LawfulBasis
	UpdatedAt     time.Time
}

// Breach is a reported personal-data breach. Never deleted; status and
// mitigation actions evolve as the investigation progresses.
type Breach struct {
	ID                 string
	Title              string
	Description        string
	Severity           BreachSeverity
	AffectedDataTypes  []string
	AffectedUsersCount *int
	ReportedBy         string
	OccurredAt         time.Time
	DetectedAt         time.Time
	Status             BreachStatus
	MitigationActions  []string
}

// ComplianceReport is the aggregate snapshot served to supervisory surfaces.
type ComplianceReport struct {
	TotalUsers      int       `json:"total_users"`
	ActiveConsents  int       `json:"active_consents"`
	PendingRequests int       `json:"pending_requests"`
	RecentBreaches  int       `json:"recent_breaches"`
	GeneratedAt     time.Time `json:"generated_at"`
}

// CleanupReport summarizes one retention cleanup run.
type CleanupReport struct {
	RecordsAffected map[string]int `json:"records_affected"` // data type -> count
	TablesTouched   []string       `json:"tables_touched"`
	SkippedTypes    []string       `json:"skipped_types"`
	StartedAt       time.Time      `json:"started_at"`
	FinishedAt      time.Time      `json:"finished_at"`
}
