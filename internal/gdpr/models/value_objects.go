package models

// Purpose identifies why personal data is processed. Grants are scoped to
// exactly one purpose.
type Purpose string

const (
	PurposeMarketing         Purpose = "MARKETING"
	PurposeAnalytics         Purpose = "ANALYTICS"
	PurposeCommunication     Purpose = "COMMUNICATION"
	PurposeProfiling         Purpose = "PROFILING"
	PurposeThirdPartySharing Purpose = "THIRD_PARTY_SHARING"
	PurposeCookies           Purpose = "COOKIES"
	PurposeGeolocation       Purpose = "GEOLOCATION"
	PurposePhotoStorage      Purpose = "PHOTO_STORAGE"
)

// AllPurposes lists every valid purpose, for aggregation surfaces.
var AllPurposes = []Purpose{
	PurposeMarketing,
	PurposeAnalytics,
	PurposeCommunication,
	PurposeProfiling,
	PurposeThirdPartySharing,
	PurposeCookies,
	PurposeGeolocation,
	PurposePhotoStorage,
}

func (p Purpose) IsValid() bool {
	for _, known := range AllPurposes {
		if p == known {
			return true
		}
	}
	return false
}

// RequestType is the legal right a data subject exercises.
type RequestType string

const (
	RequestAccess        RequestType = "ACCESS"
	RequestRectification RequestType = "RECTIFICATION"
	RequestErasure       RequestType = "ERASURE"
	RequestRestrict      RequestType = "RESTRICT"
	RequestPortability   RequestType = "PORTABILITY"
	RequestObject        RequestType = "OBJECT"
)

func (t RequestType) IsValid() bool {
	switch t {
	case RequestAccess, RequestRectification, RequestErasure, RequestRestrict, RequestPortability, RequestObject:
		return true
	}
	return false
}

// RequestStatus is the processing lifecycle state of a rights request.
//
// PENDING → IN_PROGRESS → {COMPLETED|REJECTED}; PENDING may also move
// directly to COMPLETED or REJECTED. Terminal states have no exits.
type RequestStatus string

const (
	StatusPending    RequestStatus = "PENDING"
	StatusInProgress RequestStatus = "IN_PROGRESS"
	StatusCompleted  RequestStatus = "COMPLETED"
	StatusRejected   RequestStatus = "REJECTED"
	StatusExpired    RequestStatus = "EXPIRED"
)

func (s RequestStatus) IsValid() bool {
	switch s {
	case StatusPending, StatusInProgress, StatusCompleted, StatusRejected, StatusExpired:
		return true
	}
	return false
}

// IsTerminal reports whether the status permits no further transition.
func (s RequestStatus) IsTerminal() bool {
	return s == StatusCompleted || s == StatusRejected || s == StatusExpired
}

// CanTransitionTo enforces the request state machine.
func (s RequestStatus) CanTransitionTo(next RequestStatus) bool {
	if s.IsTerminal() {
		return false
	}
	switch s {
	case StatusPending:
		return next == StatusInProgress || next == StatusCompleted || next == StatusRejected || next == StatusExpired
	case StatusInProgress:
		return next == StatusCompleted || next == StatusRejected
	}
	return false
}

// LawfulBasis is the legal justification recorded for a processing activity.
type LawfulBasis string

const (
	BasisConsent             LawfulBasis = "CONSENT"
	BasisContract            LawfulBasis = "CONTRACT"
	BasisLegalObligation     LawfulBasis = "LEGAL_OBLIGATION"
	BasisVitalInterests      LawfulBasis = "VITAL_INTERESTS"
	BasisPublicTask          LawfulBasis = "PUBLIC_TASK"
	BasisLegitimateInterests LawfulBasis = "LEGITIMATE_INTERESTS"
)

// BreachSeverity grades a reported data breach.
type BreachSeverity string

const (
	SeverityLow      BreachSeverity = "LOW"
	SeverityMedium   BreachSeverity = "MEDIUM"
	SeverityHigh     BreachSeverity = "HIGH"
	SeverityCritical BreachSeverity = "CRITICAL"
)

func (s BreachSeverity) IsValid() bool {
	switch s {
	case SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical:
		return true
	}
	return false
}

// BreachStatus tracks breach investigation progress.
type BreachStatus string

const (
	BreachDetected      BreachStatus = "DETECTED"
	BreachInvestigating BreachStatus = "INVESTIGATING"
	BreachContained     BreachStatus = "CONTAINED"
	BreachResolved      BreachStatus = "RESOLVED"
)

func (s BreachStatus) IsValid() bool {
	switch s {
	case BreachDetected, BreachInvestigating, BreachContained, BreachResolved:
		return true
	}
	return false
}
