package httptransport

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"batisecure/internal/security/guard"
	"batisecure/internal/transport/httputil"
	dErrors "batisecure/pkg/domain-errors"
	"batisecure/pkg/secrets"
)

// AuthConfig carries the credentials the authentication middleware accepts:
// a JWT signing key for interactive sessions and an optional bcrypt hash of
// a service key for automated jobs such as the retention scheduler.
type AuthConfig struct {
	JWTSecret      []byte
	ServiceKeyHash string
}

// ServiceAccountID identifies automated callers in processing logs and
// request records.
const ServiceAccountID = "service"

// Claims is the token payload. Role travels in the token so the admin
// surface does not need a store round trip for the authorization gate; the
// permission evaluator still checks the persisted role on guarded actions.
type Claims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// IssueToken signs a session token for the user.
func IssueToken(secret []byte, userID, role string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
}

func parseToken(secret []byte, raw string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, dErrors.New(dErrors.CodeUnauthorized, "unexpected signing method")
		}
		return secret, nil
	})
	if err != nil || !token.Valid {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "invalid token")
	}
	return claims, nil
}

type roleKey struct{}

// RoleFrom retrieves the authenticated caller's role.
func RoleFrom(ctx context.Context) string {
	role, _ := ctx.Value(roleKey{}).(string)
	return role
}

// credentialFailures counts consecutive bad credentials per client address.
// The count rides on the identity of the next successful request so the
// anomaly detector can weigh brute-force patterns; a success clears it.
type credentialFailures struct {
	mu     sync.Mutex
	counts map[string]int
}

func newCredentialFailures() *credentialFailures {
	return &credentialFailures{counts: make(map[string]int)}
}

func (f *credentialFailures) note(addr string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.counts[addr]++
}

func (f *credentialFailures) take(addr string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	count := f.counts[addr]
	delete(f.counts, addr)
	return count
}

// Authenticate validates the caller credential and attaches the identity for
// downstream middleware and handlers. A service key in X-Service-Key is
// checked first so schedulers do not need token refresh logic; everything
// else goes through the bearer token.
func Authenticate(cfg AuthConfig) func(http.Handler) http.Handler {
	failures := newCredentialFailures()
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			addr := guard.ClientIP(r)

			if key := r.Header.Get("X-Service-Key"); key != "" && cfg.ServiceKeyHash != "" {
				if err := secrets.Verify(key, cfg.ServiceKeyHash); err != nil {
					failures.note(addr)
					httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "invalid service key"))
					return
				}
				ctx := guard.WithIdentity(r.Context(), guard.Identity{
					UserID:       ServiceAccountID,
					FailedLogins: failures.take(addr),
				})
				ctx = context.WithValue(ctx, roleKey{}, "ADMIN")
				next.ServeHTTP(w, r.WithContext(ctx))
				return
			}

			header := r.Header.Get("Authorization")
			raw, found := strings.CutPrefix(header, "Bearer ")
			if !found || raw == "" {
				httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "missing bearer token"))
				return
			}
			claims, err := parseToken(cfg.JWTSecret, raw)
			if err != nil {
				failures.note(addr)
				httputil.WriteError(w, err)
				return
			}
			ctx := guard.WithIdentity(r.Context(), guard.Identity{
				UserID:       claims.Subject,
				FailedLogins: failures.take(addr),
			})
			ctx = context.WithValue(ctx, roleKey{}, claims.Role)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireAdmin gates the administrative surface.
func RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if RoleFrom(r.Context()) != "ADMIN" {
			httputil.WriteError(w, dErrors.New(dErrors.CodeForbidden, "administrator role required"))
			return
		}
		next.ServeHTTP(w, r)
	})
}

func callerID(r *http.Request) string {
	if id, ok := guard.IdentityFrom(r.Context()); ok {
		return id.UserID
	}
	return ""
}
