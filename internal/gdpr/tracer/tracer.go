// Package tracer is a small tracing abstraction for the GDPR controller.
// It keeps the controller decoupled from OpenTelemetry while still letting
// production deployments export spans for the slow paths (export assembly,
// erasure transactions, cleanup sweeps).
package tracer

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// Span is an active trace span.
type Span interface {
	// End completes the span. A non-nil err marks it as failed.
	End(err error)
	SetAttributes(attrs ...Attribute)
	AddEvent(name string, attrs ...Attribute)
}

// Tracer creates spans. Implementations must be safe for concurrent use.
type Tracer interface {
	Start(ctx context.Context, name string, attrs ...Attribute) (context.Context, Span)
}

// Attribute is a key-value pair attached to spans.
type Attribute struct {
	Key   string
	Value any
}

func String(key, value string) Attribute { return Attribute{Key: key, Value: value} }

func Bool(key string, value bool) Attribute { return Attribute{Key: key, Value: value} }

func Int(key string, value int) Attribute { return Attribute{Key: key, Value: int64(value)} }

func Duration(key string, value time.Duration) Attribute {
	return Attribute{Key: key, Value: value.Milliseconds()}
}

// HashUserID returns a truncated SHA-256 of the user ID so spans can be
// correlated without carrying the identifier itself.
func HashUserID(userID string) string {
	if userID == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(userID))
	return hex.EncodeToString(sum[:8])
}

// Span names used by the GDPR controller.
const (
	SpanConsentRecord   = "gdpr.consent.record"
	SpanConsentWithdraw = "gdpr.consent.withdraw"
	SpanRequestSubmit   = "gdpr.request.submit"
	SpanRequestAccess   = "gdpr.request.access"
	SpanRequestErasure  = "gdpr.request.erasure"
	SpanCleanup         = "gdpr.cleanup"
	SpanComplianceScan  = "gdpr.compliance.report"
)

// Attribute keys used by the GDPR controller.
const (
	AttrUserHash    = "user.hash"
	AttrPurpose     = "consent.purpose"
	AttrRequestType = "request.type"
	AttrDataType    = "cleanup.data_type"
	AttrRecordCount = "records.count"
)
