package events

import "time"

// RiskLevel classifies the severity of a security event.
type RiskLevel string

const (
	RiskLow      RiskLevel = "LOW"
	RiskMedium   RiskLevel = "MEDIUM"
	RiskHigh     RiskLevel = "HIGH"
	RiskCritical RiskLevel = "CRITICAL"
)

func (l RiskLevel) IsValid() bool {
	switch l {
	case RiskLow, RiskMedium, RiskHigh, RiskCritical:
		return true
	}
	return false
}

// IsAlertable reports whether events at this level must reach an operator.
func (l RiskLevel) IsAlertable() bool {
	return l == RiskHigh || l == RiskCritical
}

// Well-known event actions emitted by the security components.
const (
	ActionRateLimitExceeded        = "RATE_LIMIT_EXCEEDED"
	ActionPermissionCheck          = "PERMISSION_CHECK"
	ActionPermissionInvalidUser    = "PERMISSION_CHECK_INVALID_USER"
	ActionHighRiskActivityDetected = "HIGH_RISK_ACTIVITY_DETECTED"
)

// Entry is an append-only record of a security-relevant action. Entries are
// never mutated or deleted by this subsystem; compliance reporting reads them.
type Entry struct {
	ID        string
	UserID    string // empty for anonymous traffic
	Action    string
	Resource  string
	IPAddress string
	UserAgent string
	Success   bool
	RiskLevel RiskLevel
	Details   map[string]any
	Timestamp time.Time
}
