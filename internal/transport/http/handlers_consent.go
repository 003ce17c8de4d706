package httptransport

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"batisecure/internal/gdpr/models"
	"batisecure/internal/transport/httputil"
)

type consentRequest struct {
	Purpose string `json:"purpose"`
}

type consentResponse struct {
	ID        string  `json:"id"`
	Purpose   string  `json:"purpose"`
	Active    bool    `json:"active"`
	GrantedAt string  `json:"granted_at"`
	RevokedAt *string `json:"revoked_at,omitempty"`
}

func toConsentResponse(c *models.Consent) consentResponse {
	resp := consentResponse{
		ID:        c.ID,
		Purpose:   string(c.Purpose),
		Active:    c.IsActive(),
		GrantedAt: c.Timestamp.Format(timeLayout),
	}
	if c.RevokedAt != nil {
		revoked := c.RevokedAt.Format(timeLayout)
		resp.RevokedAt = &revoked
	}
	return resp
}

func (h *Handler) handleGrantConsent(w http.ResponseWriter, r *http.Request) {
	body, ok := httputil.DecodeJSON[consentRequest](w, r)
	if !ok {
		return
	}
	consent, err := h.gdpr.RecordConsent(r.Context(), callerID(r),
		models.Purpose(body.Purpose), clientIPOf(r), r.Header.Get("User-Agent"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, toConsentResponse(consent))
}

func (h *Handler) handleWithdrawConsent(w http.ResponseWriter, r *http.Request) {
	purpose := chi.URLParam(r, "purpose")
	revoked, err := h.gdpr.WithdrawConsent(r.Context(), callerID(r),
		models.Purpose(purpose), clientIPOf(r), r.Header.Get("User-Agent"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	out := make([]consentResponse, 0, len(revoked))
	for _, c := range revoked {
		out = append(out, toConsentResponse(c))
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"revoked": out})
}

func (h *Handler) handleListConsents(w http.ResponseWriter, r *http.Request) {
	filter := &models.ConsentFilter{}
	if q := r.URL.Query().Get("purpose"); q != "" {
		purpose := models.Purpose(q)
		filter.Purpose = &purpose
	}
	filter.ActiveOnly = r.URL.Query().Get("active") == "true"

	consents, err := h.gdpr.ListConsents(r.Context(), callerID(r), filter)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	out := make([]consentResponse, 0, len(consents))
	for _, c := range consents {
		out = append(out, toConsentResponse(c))
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"consents": out})
}
