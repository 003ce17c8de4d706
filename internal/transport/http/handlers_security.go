package httptransport

import (
	"net/http"
	"time"

	"batisecure/internal/transport/httputil"
	dErrors "batisecure/pkg/domain-errors"
)

// Default lookback for the security event endpoints when no range is given.
const defaultEventWindow = 24 * time.Hour

// handleSecurityEvents lists recent security events, optionally scoped to a
// single user via ?user_id= or bounded via ?since= (RFC 3339).
func (h *Handler) handleSecurityEvents(w http.ResponseWriter, r *http.Request) {
	if userID := r.URL.Query().Get("user_id"); userID != "" {
		entries, err := h.events.ListByUser(r.Context(), userID)
		if err != nil {
			httputil.WriteError(w, err)
			return
		}
		httputil.WriteJSON(w, http.StatusOK, map[string]any{"events": entries})
		return
	}

	since := time.Now().Add(-defaultEventWindow)
	if raw := r.URL.Query().Get("since"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "since must be RFC 3339"))
			return
		}
		since = parsed
	}
	entries, err := h.events.ListSince(r.Context(), since)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"events": entries})
}

// handleRiskSummary counts events per risk level over the requested window.
func (h *Handler) handleRiskSummary(w http.ResponseWriter, r *http.Request) {
	since := time.Now().Add(-defaultEventWindow)
	if raw := r.URL.Query().Get("since"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "since must be RFC 3339"))
			return
		}
		since = parsed
	}
	counts, err := h.events.CountByRiskLevel(r.Context(), since)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	out := make(map[string]int, len(counts))
	for level, n := range counts {
		out[string(level)] = n
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"since": since.Format(time.RFC3339), "counts": out})
}
