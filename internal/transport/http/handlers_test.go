package httptransport

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"batisecure/internal/gdpr/models"
	"batisecure/internal/gdpr/service"
	gstore "batisecure/internal/gdpr/store"
	"batisecure/internal/platform/health"
	"batisecure/internal/security/anomaly"
	"batisecure/internal/security/events"
	"batisecure/internal/security/guard"
	"batisecure/internal/security/permissions"
	"batisecure/internal/security/ratelimit"
	"batisecure/pkg/secrets"
)

var (
	testSecret     = []byte("test-admin-jwt-secret")
	testServiceKey = "scheduler-key"
)

// countingRoleStore records how many times the permission evaluator resolves
// a role, so routing tests can assert the check actually runs.
type countingRoleStore struct {
	*permissions.InMemoryRoleStore
	mu      sync.Mutex
	lookups int
}

func (s *countingRoleStore) RoleByUserID(ctx context.Context, userID string) (permissions.Role, error) {
	s.mu.Lock()
	s.lookups++
	s.mu.Unlock()
	return s.InMemoryRoleStore.RoleByUserID(ctx, userID)
}

func (s *countingRoleStore) Lookups() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lookups
}

type env struct {
	server     *httptest.Server
	mem        *gstore.MemoryStore
	roles      *countingRoleStore
	eventStore *events.InMemoryStore
}

func newEnv(t *testing.T) *env {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	mem := gstore.NewMemoryStore()
	stores := service.Stores{
		Consents: mem, Requests: mem, Logs: mem,
		Retention: mem, Breaches: mem, Subjects: mem,
	}
	controller := service.NewController(stores, service.NewMemoryTx(mem), logger)

	eventStore := events.NewInMemoryStore()
	eventLog := events.NewLogger(eventStore, logger)
	roles := &countingRoleStore{InMemoryRoleStore: permissions.NewInMemoryRoleStore()}
	roles.SetRole("user-1", permissions.RoleClient)
	roles.SetRole("admin-1", permissions.RoleAdmin)
	roles.SetRole(ServiceAccountID, permissions.RoleAdmin)

	noon := func() time.Time {
		return time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)
	}
	g := guard.New(
		ratelimit.NewLimiter(ratelimit.NewInMemoryBucketStore(), eventLog),
		permissions.NewEvaluator(roles, eventLog, logger),
		anomaly.NewDetector(anomaly.WithClock(noon)),
		eventLog,
	)

	keyHash, err := secrets.Hash(testServiceKey)
	require.NoError(t, err)

	h := NewHandler(controller, eventStore, logger)
	router := NewRouter(h, g, health.New("test"), AuthConfig{
		JWTSecret:      testSecret,
		ServiceKeyHash: keyHash,
	}, logger)
	server := httptest.NewServer(router)
	t.Cleanup(server.Close)

	return &env{server: server, mem: mem, roles: roles, eventStore: eventStore}
}

func (e *env) do(t *testing.T, method, path, token string, body any) *http.Response {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, e.server.URL+path, reader)
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := e.server.Client().Do(req)
	require.NoError(t, err)
	return resp
}

func token(t *testing.T, userID, role string) string {
	t.Helper()
	raw, err := IssueToken(testSecret, userID, role, time.Hour)
	require.NoError(t, err)
	return raw
}

func decode(t *testing.T, resp *http.Response, into any) {
	t.Helper()
	defer resp.Body.Close()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(into))
}

func TestAuthenticationGate(t *testing.T) {
	e := newEnv(t)

	t.Run("missing token", func(t *testing.T) {
		resp := e.do(t, http.MethodGet, "/rgpd/consentements", "", nil)
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
		resp.Body.Close()
	})

	t.Run("garbage token", func(t *testing.T) {
		resp := e.do(t, http.MethodGet, "/rgpd/consentements", "not-a-jwt", nil)
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
		resp.Body.Close()
	})

	t.Run("non-admin on admin surface", func(t *testing.T) {
		resp := e.do(t, http.MethodGet, "/admin/rgpd/demandes", token(t, "user-1", "CLIENT"), nil)
		assert.Equal(t, http.StatusForbidden, resp.StatusCode)
		resp.Body.Close()
	})

	t.Run("service key reaches admin surface", func(t *testing.T) {
		req, err := http.NewRequest(http.MethodGet, e.server.URL+"/admin/rgpd/demandes", nil)
		require.NoError(t, err)
		req.Header.Set("X-Service-Key", testServiceKey)
		resp, err := e.server.Client().Do(req)
		require.NoError(t, err)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		resp.Body.Close()
	})

	t.Run("wrong service key is rejected", func(t *testing.T) {
		req, err := http.NewRequest(http.MethodGet, e.server.URL+"/admin/rgpd/demandes", nil)
		require.NoError(t, err)
		req.Header.Set("X-Service-Key", "guessed")
		resp, err := e.server.Client().Do(req)
		require.NoError(t, err)
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
		resp.Body.Close()
	})
}

func TestGuardChecksPermissionsOnAuthenticatedRoutes(t *testing.T) {
	e := newEnv(t)

	t.Run("role store consulted on self-service route", func(t *testing.T) {
		before := e.roles.Lookups()
		resp := e.do(t, http.MethodGet, "/rgpd/consentements", token(t, "user-1", "CLIENT"), nil)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		resp.Body.Close()
		assert.Greater(t, e.roles.Lookups(), before)
	})

	t.Run("user without a stored role is blocked", func(t *testing.T) {
		// the token alone is not enough: the persisted role decides
		resp := e.do(t, http.MethodGet, "/rgpd/consentements", token(t, "ghost-1", "CLIENT"), nil)
		assert.Equal(t, http.StatusForbidden, resp.StatusCode)
		resp.Body.Close()
	})

	t.Run("client denied on admin surface by permissions", func(t *testing.T) {
		before := e.roles.Lookups()
		resp := e.do(t, http.MethodGet, "/admin/rgpd/demandes", token(t, "user-1", "CLIENT"), nil)
		assert.Equal(t, http.StatusForbidden, resp.StatusCode)
		resp.Body.Close()
		assert.Greater(t, e.roles.Lookups(), before)
	})
}

func TestAuthenticateThreadsFailedLogins(t *testing.T) {
	var captured guard.Identity
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		captured, _ = guard.IdentityFrom(r.Context())
	})
	keyHash, err := secrets.Hash(testServiceKey)
	require.NoError(t, err)
	handler := Authenticate(AuthConfig{JWTSecret: testSecret, ServiceKeyHash: keyHash})(next)

	send := func(authorization string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = "203.0.113.5:4711"
		if authorization != "" {
			req.Header.Set("Authorization", authorization)
		}
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec
	}

	for range 4 {
		rec := send("Bearer not-a-jwt")
		require.Equal(t, http.StatusUnauthorized, rec.Code)
	}

	rec := send("Bearer " + token(t, "user-1", "CLIENT"))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 4, captured.FailedLogins)

	// a success clears the counter for the address
	rec = send("Bearer " + token(t, "user-1", "CLIENT"))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Zero(t, captured.FailedLogins)
}

func TestConsentEndpoints(t *testing.T) {
	e := newEnv(t)
	userToken := token(t, "user-1", "CLIENT")

	resp := e.do(t, http.MethodPost, "/rgpd/consentements", userToken,
		map[string]string{"purpose": "MARKETING"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var created consentResponse
	decode(t, resp, &created)
	assert.True(t, created.Active)
	assert.Equal(t, "MARKETING", created.Purpose)

	// duplicate grant conflicts
	resp = e.do(t, http.MethodPost, "/rgpd/consentements", userToken,
		map[string]string{"purpose": "MARKETING"})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	resp.Body.Close()

	resp = e.do(t, http.MethodDelete, "/rgpd/consentements/MARKETING", userToken, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	resp = e.do(t, http.MethodGet, "/rgpd/consentements?active=true", userToken, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var listed struct {
		Consents []consentResponse `json:"consents"`
	}
	decode(t, resp, &listed)
	assert.Empty(t, listed.Consents)
}

func TestRightsRequestEndpoints(t *testing.T) {
	e := newEnv(t)
	e.mem.PutProfile(&models.UserProfile{
		ID: "user-1", Email: "marie.leroy@example.com", Nom: "Leroy", Role: "CLIENT",
	})
	userToken := token(t, "user-1", "CLIENT")
	adminToken := token(t, "admin-1", "ADMIN")

	resp := e.do(t, http.MethodPost, "/rgpd/demandes", userToken,
		map[string]any{"type": "ERASURE"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var submitted rightsRequestResponse
	decode(t, resp, &submitted)
	assert.Equal(t, "PENDING", submitted.Status)

	resp = e.do(t, http.MethodPost, "/admin/rgpd/demandes/"+submitted.ID+"/process", adminToken, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var processed rightsRequestResponse
	decode(t, resp, &processed)
	assert.Equal(t, "COMPLETED", processed.Status)

	profile, err := e.mem.Profile(t.Context(), "user-1")
	require.NoError(t, err)
	assert.Regexp(t, `@rgpd\.invalid$`, profile.Email)
	assert.Empty(t, profile.Nom)
}

func TestDecisionBodyHandling(t *testing.T) {
	e := newEnv(t)
	userToken := token(t, "user-1", "CLIENT")
	adminToken := token(t, "admin-1", "ADMIN")

	submit := func(t *testing.T) string {
		resp := e.do(t, http.MethodPost, "/rgpd/demandes", userToken,
			map[string]any{"type": "RECTIFICATION"})
		require.Equal(t, http.StatusCreated, resp.StatusCode)
		var submitted rightsRequestResponse
		decode(t, resp, &submitted)
		return submitted.ID
	}

	t.Run("malformed note body is rejected, request stays pending", func(t *testing.T) {
		id := submit(t)
		req, err := http.NewRequest(http.MethodPost,
			e.server.URL+"/admin/rgpd/demandes/"+id+"/reject",
			bytes.NewReader([]byte(`{"note": `)))
		require.NoError(t, err)
		req.Header.Set("Authorization", "Bearer "+adminToken)
		resp, err := e.server.Client().Do(req)
		require.NoError(t, err)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		resp.Body.Close()

		stored, err := e.mem.FindRequestByID(t.Context(), id)
		require.NoError(t, err)
		assert.Equal(t, models.StatusPending, stored.Status)
	})

	t.Run("approval without a body succeeds", func(t *testing.T) {
		id := submit(t)
		resp := e.do(t, http.MethodPost, "/admin/rgpd/demandes/"+id+"/approve", adminToken, nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		var approved rightsRequestResponse
		decode(t, resp, &approved)
		assert.Equal(t, "IN_PROGRESS", approved.Status)
		assert.Empty(t, approved.ResponseNote)
	})
}

func TestSubmitRejectsInjectionPayloads(t *testing.T) {
	e := newEnv(t)
	userToken := token(t, "user-1", "CLIENT")

	resp := e.do(t, http.MethodPost, "/rgpd/demandes", userToken, map[string]any{
		"type": "RECTIFICATION",
		"data": map[string]any{"champ": "nom' OR 1=1 --"},
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()
}

func TestAdminReportAndRetention(t *testing.T) {
	e := newEnv(t)
	adminToken := token(t, "admin-1", "ADMIN")

	resp := e.do(t, http.MethodPut, "/admin/rgpd/retention", adminToken, map[string]any{
		"data_type": "notifications", "category": "technique",
		"retention_days": 90, "lawful_basis": "LEGITIMATE_INTERESTS",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	resp = e.do(t, http.MethodGet, "/admin/rgpd/rapport", adminToken, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var report models.ComplianceReport
	decode(t, resp, &report)
	assert.Zero(t, report.TotalUsers)

	// cleanup skips the type with no registered strategy
	resp = e.do(t, http.MethodPost, "/admin/rgpd/nettoyage", adminToken, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var cleanup models.CleanupReport
	decode(t, resp, &cleanup)
	assert.Equal(t, []string{"notifications"}, cleanup.SkippedTypes)
}

func TestSecurityEventEndpoints(t *testing.T) {
	e := newEnv(t)
	adminToken := token(t, "admin-1", "ADMIN")

	require.NoError(t, e.eventStore.Append(t.Context(), events.Entry{
		ID:        "evt-1",
		UserID:    "user-7",
		Action:    events.ActionRateLimitExceeded,
		IPAddress: "10.0.0.9",
		RiskLevel: events.RiskMedium,
		Timestamp: time.Now(),
	}))

	resp := e.do(t, http.MethodGet, "/admin/securite/evenements?user_id=user-7", adminToken, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var listing struct {
		Events []events.Entry `json:"events"`
	}
	decode(t, resp, &listing)
	require.Len(t, listing.Events, 1)
	assert.Equal(t, events.ActionRateLimitExceeded, listing.Events[0].Action)

	resp = e.do(t, http.MethodGet, "/admin/securite/risques", adminToken, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var summary struct {
		Counts map[string]int `json:"counts"`
	}
	decode(t, resp, &summary)
	assert.Equal(t, 1, summary.Counts["MEDIUM"])

	resp = e.do(t, http.MethodGet, "/admin/securite/evenements?since=yesterday", adminToken, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()
}

func TestHealthAndMetricsArePublic(t *testing.T) {
	e := newEnv(t)

	resp := e.do(t, http.MethodGet, "/health/live", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	resp = e.do(t, http.MethodGet, "/metrics", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()
}
