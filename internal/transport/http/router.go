// Package httptransport is the thin HTTP layer. Handlers delegate to the
// GDPR controller and the security guard; no business logic lives here.
package httptransport

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"batisecure/internal/gdpr/service"
	"batisecure/internal/platform/health"
	"batisecure/internal/platform/middleware"
	"batisecure/internal/security/events"
	"batisecure/internal/security/guard"
	"batisecure/internal/security/validation"
	dErrors "batisecure/pkg/domain-errors"
)

// Handler bundles the dependencies the HTTP endpoints need.
type Handler struct {
	gdpr   *service.Controller
	events events.Store
	logger *slog.Logger
}

func NewHandler(gdpr *service.Controller, eventStore events.Store, logger *slog.Logger) *Handler {
	return &Handler{gdpr: gdpr, events: eventStore, logger: logger}
}

// NewRouter wires every endpoint with the middleware stack. The guard runs
// after authentication so rate limiting, permission checks and anomaly
// scoring see the caller identity; each subtree annotates the identity with
// its action and resource first so those checks know what is attempted.
func NewRouter(h *Handler, g *guard.Guard, healthHandler *health.Handler, auth AuthConfig, logger *slog.Logger) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Recovery(logger))
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger(logger))
	r.Use(middleware.Timeout(30 * time.Second))

	healthHandler.Register(r)
	r.Handle("/metrics", promhttp.Handler())

	r.Group(func(r chi.Router) {
		r.Use(Authenticate(auth))

		r.Route("/rgpd", func(r chi.Router) {
			r.Route("/consentements", func(r chi.Router) {
				r.Use(guard.ActionContext("rgpd:consentement:own", "consentements"))
				r.Use(g.Middleware)
				r.Post("/", h.handleGrantConsent)
				r.Get("/", h.handleListConsents)
				r.Delete("/{purpose}", h.handleWithdrawConsent)
			})
			r.Route("/demandes", func(r chi.Router) {
				r.Use(guard.ActionContext("rgpd:demande:own", "demandes_rgpd"))
				r.Use(g.Middleware)
				r.Post("/", h.handleSubmitRequest)
				r.Get("/", h.handleListOwnRequests)
			})
		})

		r.Route("/admin/rgpd", func(r chi.Router) {
			r.Use(guard.ActionContext("rgpd:administration", "rgpd"))
			r.Use(g.Middleware)
			r.Use(RequireAdmin)
			r.Get("/demandes", h.handleListRequests)
			r.Post("/demandes/{id}/approve", h.handleApproveRequest)
			r.Post("/demandes/{id}/reject", h.handleRejectRequest)
			r.Post("/demandes/{id}/process", h.handleProcessRequest)
			r.Post("/demandes/{id}/expire", h.handleExpireRequest)
			r.Put("/retention", h.handleSetRetention)
			r.Get("/retention", h.handleListRetention)
			r.Post("/violations", h.handleReportBreach)
			r.Patch("/violations/{id}", h.handleUpdateBreach)
			r.Get("/violations", h.handleListBreaches)
			r.Get("/rapport", h.handleComplianceReport)
			r.Get("/consentements/stats", h.handleConsentStats)
			r.Post("/nettoyage", h.handleCleanup)
			r.Get("/utilisateurs/{userID}/journal", h.handleUserProcessingLogs)
			r.Get("/journal", h.handleProcessingJournal)
		})

		r.Route("/admin/securite", func(r chi.Router) {
			r.Use(guard.ActionContext("securite:audit", "security_events"))
			r.Use(g.Middleware)
			r.Use(RequireAdmin)
			r.Get("/evenements", h.handleSecurityEvents)
			r.Get("/risques", h.handleRiskSummary)
		})
	})

	return r
}

func clientIPOf(r *http.Request) string {
	return guard.ClientIP(r)
}

// screenFreeText rejects payload values carrying injection patterns before
// they reach storage or later rendering.
func screenFreeText(values map[string]any) error {
	for key, value := range values {
		s, ok := value.(string)
		if !ok {
			continue
		}
		if validation.HasSQLInjection(s) || validation.HasXSS(s) {
			return dErrors.New(dErrors.CodeValidation, "field "+key+" contains forbidden content")
		}
	}
	return nil
}
