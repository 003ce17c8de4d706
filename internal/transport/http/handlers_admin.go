package httptransport

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"batisecure/internal/gdpr/models"
	"batisecure/internal/transport/httputil"
	dErrors "batisecure/pkg/domain-errors"
)

type retentionBody struct {
	DataType      string `json:"data_type"`
	Category      string `json:"category"`
	RetentionDays int    `json:"retention_days"`
	LawfulBasis   string `json:"lawful_basis"`
}

func (h *Handler) handleSetRetention(w http.ResponseWriter, r *http.Request) {
	body, ok := httputil.DecodeJSON[retentionBody](w, r)
	if !ok {
		return
	}
	policy := &models.RetentionPolicy{
		DataType:      body.DataType,
		Category:      body.Category,
		RetentionDays: body.RetentionDays,
		LawfulBasis:   models.LawfulBasis(body.LawfulBasis),
	}
	if err := h.gdpr.SetRetentionPolicy(r.Context(), policy); err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, policy)
}

func (h *Handler) handleListRetention(w http.ResponseWriter, r *http.Request) {
	policies, err := h.gdpr.ListRetentionPolicies(r.Context())
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"policies": policies})
}

type breachBody struct {
	Title              string   `json:"title"`
	Description        string   `json:"description"`
	Severity           string   `json:"severity"`
	AffectedDataTypes  []string `json:"affected_data_types"`
	AffectedUsersCount *int     `json:"affected_users_count,omitempty"`
}

func (h *Handler) handleReportBreach(w http.ResponseWriter, r *http.Request) {
	body, ok := httputil.DecodeJSON[breachBody](w, r)
	if !ok {
		return
	}
	breach, err := h.gdpr.ReportBreach(r.Context(), &models.Breach{
		Title:              body.Title,
		Description:        body.Description,
		Severity:           models.BreachSeverity(body.Severity),
		AffectedDataTypes:  body.AffectedDataTypes,
		AffectedUsersCount: body.AffectedUsersCount,
		ReportedBy:         callerID(r),
	})
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, breach)
}

type breachUpdateBody struct {
	Status            string   `json:"status"`
	MitigationActions []string `json:"mitigation_actions,omitempty"`
}

func (h *Handler) handleUpdateBreach(w http.ResponseWriter, r *http.Request) {
	body, ok := httputil.DecodeJSON[breachUpdateBody](w, r)
	if !ok {
		return
	}
	breach, err := h.gdpr.UpdateBreach(r.Context(), chi.URLParam(r, "id"),
		models.BreachStatus(body.Status), body.MitigationActions)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, breach)
}

func (h *Handler) handleListBreaches(w http.ResponseWriter, r *http.Request) {
	breaches, err := h.gdpr.ListBreaches(r.Context())
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"breaches": breaches})
}

func (h *Handler) handleComplianceReport(w http.ResponseWriter, r *http.Request) {
	report, err := h.gdpr.GenerateComplianceReport(r.Context())
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, report)
}

func (h *Handler) handleConsentStats(w http.ResponseWriter, r *http.Request) {
	counts, err := h.gdpr.ActiveConsentsByPurpose(r.Context())
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	out := make(map[string]int, len(counts))
	for purpose, n := range counts {
		out[string(purpose)] = n
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"active_consents": out})
}

func (h *Handler) handleCleanup(w http.ResponseWriter, r *http.Request) {
	report, err := h.gdpr.CleanupExpiredData(r.Context())
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, report)
}

func (h *Handler) handleUserProcessingLogs(w http.ResponseWriter, r *http.Request) {
	logs, err := h.gdpr.ProcessingLogsByUser(r.Context(), chi.URLParam(r, "userID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"logs": logs})
}

// handleProcessingJournal lists all processing activity over a date range
// (?from= and ?to=, RFC 3339; to defaults to now).
func (h *Handler) handleProcessingJournal(w http.ResponseWriter, r *http.Request) {
	from, err := time.Parse(time.RFC3339, r.URL.Query().Get("from"))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "from must be RFC 3339"))
		return
	}
	to := time.Now()
	if raw := r.URL.Query().Get("to"); raw != "" {
		if to, err = time.Parse(time.RFC3339, raw); err != nil {
			httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "to must be RFC 3339"))
			return
		}
	}
	logs, err := h.gdpr.ProcessingLogsBetween(r.Context(), from, to)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"logs": logs})
}
