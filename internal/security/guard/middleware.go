package guard

import (
	"context"
	"net"
	"net/http"
	"strings"

	"github.com/mssola/useragent"

	"batisecure/internal/security/anomaly"
)

type identityKey struct{}

// Identity is what the HTTP layer knows about the caller once authenticated.
// FailedLogins carries the count of bad credentials seen from the caller's
// address before this request succeeded; the anomaly detector weighs it.
type Identity struct {
	UserID       string
	Action       string
	Resource     string
	FailedLogins int
}

// WithIdentity attaches the caller identity for the guard middleware.
// Authentication middleware upstream is expected to set it.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, id)
}

// IdentityFrom retrieves the caller identity, if any.
func IdentityFrom(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityKey{}).(Identity)
	return id, ok
}

// ActionContext annotates the authenticated identity with the action and
// resource the routed endpoint represents, so the permission and anomaly
// steps see what is being attempted. Mount it between the authentication
// middleware and Middleware.
func ActionContext(action, resource string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if id, ok := IdentityFrom(r.Context()); ok {
				id.Action = action
				id.Resource = resource
				r = r.WithContext(WithIdentity(r.Context(), id))
			}
			next.ServeHTTP(w, r)
		})
	}
}

// Middleware adapts the Guard to chi. Denials are written as JSON with 429
// for rate limiting and 403 otherwise.
func (g *Guard) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		req := Request{
			ClientIP:  ClientIP(r),
			UserAgent: r.Header.Get("User-Agent"),
		}
		if id, ok := IdentityFrom(r.Context()); ok {
			req.UserID = id.UserID
			req.Action = id.Action
			req.Resource = id.Resource
			req.Metadata = anomaly.Metadata{FailedLogins: id.FailedLogins}
		}

		decision, err := g.Evaluate(r.Context(), req)
		if err != nil {
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}
		if !decision.Allowed {
			status := http.StatusForbidden
			if decision.Reason == ReasonRateLimited {
				status = http.StatusTooManyRequests
			}
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(status)
			_, _ = w.Write([]byte(`{"error":"request_blocked","error_description":"` + decision.Reason + `"}`))
			return
		}

		next.ServeHTTP(w, r)
	})
}

// DeviceDetails parses a User-Agent header into the structured shape
// recorded on security events.
func DeviceDetails(ua string) map[string]any {
	if ua == "" {
		return map[string]any{"user_agent": "unknown"}
	}
	parsed := useragent.New(ua)
	browser, version := parsed.Browser()
	return map[string]any{
		"os":      parsed.OS(),
		"browser": browser,
		"version": version,
		"mobile":  parsed.Mobile(),
		"bot":     parsed.Bot(),
	}
}

// ClientIP resolves the originating address, preferring X-Forwarded-For.
func ClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		if first, _, found := strings.Cut(xff, ","); found || first != "" {
			return strings.TrimSpace(first)
		}
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return strings.TrimSpace(xri)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
