// Package guard composes the security checks applied to every inbound
// request: rate limiting by client IP, then permission evaluation, then
// anomaly scoring. The guard owns no state; it orders the components and
// short-circuits on the first failure.
package guard

import (
	"context"

	"batisecure/internal/platform/metrics"
	"batisecure/internal/security/anomaly"
	"batisecure/internal/security/events"
	"batisecure/internal/security/permissions"
	"batisecure/internal/security/ratelimit"
)

// HighRiskThreshold blocks requests whose anomaly score exceeds it.
const HighRiskThreshold = 70

// Denial reasons surfaced to callers.
const (
	ReasonRateLimited  = "Rate limit exceeded"
	ReasonInsufficient = "Insufficient permissions"
	ReasonHighRisk     = "High risk activity detected"
)

// Request is the reduced request context the guard needs. UserID, Action and
// Resource are empty for anonymous traffic.
type Request struct {
	ClientIP  string
	UserAgent string
	UserID    string
	Action    string
	Resource  string
	Metadata  anomaly.Metadata
}

// Decision is the guard's verdict.
type Decision struct {
	Allowed bool
	Reason  string
}

// Guard runs the check pipeline.
type Guard struct {
	limiter   *ratelimit.Limiter
	evaluator *permissions.Evaluator
	detector  *anomaly.Detector
	eventLog  *events.Logger
	metrics   *metrics.Metrics
}

// Option configures the Guard.
type Option func(*Guard)

// WithMetrics enables blocked-request counters.
func WithMetrics(m *metrics.Metrics) Option {
	return func(g *Guard) {
		g.metrics = m
	}
}

// New constructs a Guard over the three security components.
func New(limiter *ratelimit.Limiter, evaluator *permissions.Evaluator, detector *anomaly.Detector, eventLog *events.Logger, opts ...Option) *Guard {
	g := &Guard{
		limiter:   limiter,
		evaluator: evaluator,
		detector:  detector,
		eventLog:  eventLog,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Evaluate applies the pipeline in order and stops at the first failure:
//  1. rate limit on the client IP
//  2. permission check when user, action and resource are all known
//  3. anomaly scoring when a user is known; a score above 70 blocks
func (g *Guard) Evaluate(ctx context.Context, req Request) (Decision, error) {
	res, err := g.limiter.Allow(ctx, req.ClientIP)
	if err != nil {
		return Decision{}, err
	}
	if !res.Allowed {
		g.blocked("rate_limit")
		return Decision{Allowed: false, Reason: ReasonRateLimited}, nil
	}

	if req.UserID != "" && req.Action != "" && req.Resource != "" {
		allowed, err := g.evaluator.Check(ctx, req.UserID, req.Action, req.Resource, "")
		if err != nil {
			return Decision{}, err
		}
		if !allowed {
			g.blocked("permission")
			return Decision{Allowed: false, Reason: ReasonInsufficient}, nil
		}
	}

	if req.UserID != "" {
		score := g.detector.Observe(req.UserID, req.Action, req.Metadata)
		if score > HighRiskThreshold {
			g.blocked("anomaly")
			if g.eventLog != nil {
				g.eventLog.Log(ctx, events.Entry{
					UserID:    req.UserID,
					Action:    events.ActionHighRiskActivityDetected,
					Resource:  req.Resource,
					IPAddress: req.ClientIP,
					UserAgent: req.UserAgent,
					Success:   false,
					RiskLevel: events.RiskHigh,
					Details: map[string]any{
						"score":            score,
						"requested_action": req.Action,
						"device":           DeviceDetails(req.UserAgent),
					},
				})
			}
			return Decision{Allowed: false, Reason: ReasonHighRisk}, nil
		}
	}

	return Decision{Allowed: true}, nil
}

func (g *Guard) blocked(reason string) {
	if g.metrics != nil {
		g.metrics.IncrementRequestsBlocked(reason)
	}
}
