// Package permissions evaluates the static role→action matrix of the
// construction-business platform. Every check, allowed or denied, lands on
// the security event log.
package permissions

import (
	"context"
	"log/slog"

	"batisecure/internal/platform/metrics"
	"batisecure/internal/security/events"
	dErrors "batisecure/pkg/domain-errors"
)

// Role is a user role of the platform.
type Role string

const (
	RoleAdmin      Role = "ADMIN"
	RoleCommercial Role = "COMMERCIAL"
	RoleOuvrier    Role = "OUVRIER"
	RoleClient     Role = "CLIENT"
)

func (r Role) IsValid() bool {
	switch r {
	case RoleAdmin, RoleCommercial, RoleOuvrier, RoleClient:
		return true
	}
	return false
}

// Wildcard grants every action.
const Wildcard = "*"

// rolePermissions is the static allow-list per role. ADMIN carries the
// wildcard; the other roles get exact action strings.
var rolePermissions = map[Role][]string{
	RoleAdmin: {Wildcard},
	RoleCommercial: {
		"client:read", "client:write",
		"opportunite:read", "opportunite:write",
		"devis:read", "devis:write",
		"rgpd:consentement:own",
		"rgpd:demande:own",
	},
	RoleOuvrier: {
		"chantier:read",
		"avancement:write",
		"planning:read",
		"rgpd:consentement:own",
		"rgpd:demande:own",
	},
	RoleClient: {
		"chantier:read:own",
		"devis:read:own",
		"facture:read:own",
		"document:read:own",
		"message:write:own",
		"rgpd:consentement:own",
		"rgpd:demande:own",
	},
}

// AllowedActions returns a copy of the allow-list for a role.
func AllowedActions(role Role) []string {
	return append([]string{}, rolePermissions[role]...)
}

// RoleStore resolves a user's role.
// Error Contract: returns a CodeNotFound domain error for unknown users.
type RoleStore interface {
	RoleByUserID(ctx context.Context, userID string) (Role, error)
}

// Evaluator answers "may this user perform this action on this resource".
type Evaluator struct {
	roles    RoleStore
	eventLog *events.Logger
	logger   *slog.Logger
	metrics  *metrics.Metrics
}

// Option configures the Evaluator.
type Option func(*Evaluator)

// WithMetrics enables the denial counter.
func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Evaluator) {
		e.metrics = m
	}
}

// NewEvaluator constructs an Evaluator over the given role store.
func NewEvaluator(roles RoleStore, eventLog *events.Logger, logger *slog.Logger, opts ...Option) *Evaluator {
	e := &Evaluator{roles: roles, eventLog: eventLog, logger: logger}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Check reports whether userID may perform action on resource. resourceID is
// recorded for audit but does not change the decision: ownership scoping is
// the calling handler's query-level concern.
//
// A failed role lookup is treated as a HIGH-risk event and denies.
func (e *Evaluator) Check(ctx context.Context, userID, action, resource, resourceID string) (bool, error) {
	role, err := e.roles.RoleByUserID(ctx, userID)
	if err != nil {
		e.log(ctx, events.Entry{
			UserID:    userID,
			Action:    events.ActionPermissionInvalidUser,
			Resource:  resource,
			Success:   false,
			RiskLevel: events.RiskHigh,
			Details:   map[string]any{"requested_action": action},
		})
		if dErrors.HasCode(err, dErrors.CodeNotFound) {
			return false, nil
		}
		return false, dErrors.Wrap(err, dErrors.CodeInternal, "failed to resolve user role")
	}

	allowed := hasPermission(role, action)

	entry := events.Entry{
		UserID:    userID,
		Action:    events.ActionPermissionCheck,
		Resource:  resource,
		Success:   allowed,
		RiskLevel: events.RiskLow,
		Details: map[string]any{
			"requested_action": action,
			"role":             string(role),
		},
	}
	if resourceID != "" {
		entry.Details["resource_id"] = resourceID
	}
	if !allowed {
		entry.RiskLevel = events.RiskMedium
		if e.metrics != nil {
			e.metrics.IncrementPermissionDenials(string(role))
		}
		if e.logger != nil {
			e.logger.Warn("permission denied",
				"user_id", userID,
				"role", role,
				"action", action,
				"resource", resource,
			)
		}
	}
	e.log(ctx, entry)

	return allowed, nil
}

func hasPermission(role Role, action string) bool {
	for _, allowed := range rolePermissions[role] {
		if allowed == Wildcard || allowed == action {
			return true
		}
	}
	return false
}

func (e *Evaluator) log(ctx context.Context, entry events.Entry) {
	if e.eventLog != nil {
		e.eventLog.Log(ctx, entry)
	}
}
