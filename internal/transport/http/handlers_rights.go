package httptransport

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"batisecure/internal/gdpr/models"
	"batisecure/internal/security/validation"
	"batisecure/internal/transport/httputil"
	dErrors "batisecure/pkg/domain-errors"
)

const timeLayout = "2006-01-02T15:04:05Z07:00"

type rightsRequestBody struct {
	Type string         `json:"type"`
	Data map[string]any `json:"data,omitempty"`
}

type rightsRequestResponse struct {
	ID            string         `json:"id"`
	Type          string         `json:"type"`
	Status        string         `json:"status"`
	ResponseNote  string         `json:"response_note,omitempty"`
	ProcessedData map[string]any `json:"processed_data,omitempty"`
	CreatedAt     string         `json:"created_at"`
	ProcessedAt   *string        `json:"processed_at,omitempty"`
}

func toRequestResponse(r *models.RightsRequest) rightsRequestResponse {
	resp := rightsRequestResponse{
		ID:            r.ID,
		Type:          string(r.Type),
		Status:        string(r.Status),
		ResponseNote:  r.ResponseNote,
		ProcessedData: r.ProcessedData,
		CreatedAt:     r.CreatedAt.Format(timeLayout),
	}
	if r.ProcessedAt != nil {
		processed := r.ProcessedAt.Format(timeLayout)
		resp.ProcessedAt = &processed
	}
	return resp
}

func (h *Handler) handleSubmitRequest(w http.ResponseWriter, r *http.Request) {
	body, ok := httputil.DecodeJSON[rightsRequestBody](w, r)
	if !ok {
		return
	}
	if err := screenFreeText(body.Data); err != nil {
		httputil.WriteError(w, err)
		return
	}
	request, err := h.gdpr.SubmitRightsRequest(r.Context(), callerID(r),
		models.RequestType(body.Type), body.Data)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, toRequestResponse(request))
}

func (h *Handler) handleListOwnRequests(w http.ResponseWriter, r *http.Request) {
	requests, err := h.gdpr.ListRequestsByUser(r.Context(), callerID(r))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	out := make([]rightsRequestResponse, 0, len(requests))
	for _, req := range requests {
		out = append(out, toRequestResponse(req))
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"requests": out})
}

func (h *Handler) handleListRequests(w http.ResponseWriter, r *http.Request) {
	filter := &models.RequestFilter{}
	if q := r.URL.Query().Get("type"); q != "" {
		reqType := models.RequestType(q)
		filter.Type = &reqType
	}
	if q := r.URL.Query().Get("status"); q != "" {
		status := models.RequestStatus(q)
		filter.Status = &status
	}
	requests, err := h.gdpr.ListRequests(r.Context(), filter)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	out := make([]rightsRequestResponse, 0, len(requests))
	for _, req := range requests {
		out = append(out, toRequestResponse(req))
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"requests": out})
}

type decisionBody struct {
	Note string `json:"note"`
}

func (h *Handler) handleApproveRequest(w http.ResponseWriter, r *http.Request) {
	body, ok := httputil.DecodeJSONOptional[decisionBody](w, r)
	if !ok {
		return
	}
	request, err := h.gdpr.ApproveRightsRequest(r.Context(), chi.URLParam(r, "id"), callerID(r), validation.Sanitize(body.Note))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toRequestResponse(request))
}

func (h *Handler) handleRejectRequest(w http.ResponseWriter, r *http.Request) {
	body, ok := httputil.DecodeJSONOptional[decisionBody](w, r)
	if !ok {
		return
	}
	request, err := h.gdpr.RejectRightsRequest(r.Context(), chi.URLParam(r, "id"), callerID(r), validation.Sanitize(body.Note))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toRequestResponse(request))
}

// handleExpireRequest closes out a pending request whose legal response
// deadline has passed. Called by the scheduler through the service key.
func (h *Handler) handleExpireRequest(w http.ResponseWriter, r *http.Request) {
	request, err := h.gdpr.ExpireRequest(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toRequestResponse(request))
}

// handleProcessRequest executes the request according to its type: access
// and portability requests return the export payload, erasure requests
// return the completed request with its counters.
func (h *Handler) handleProcessRequest(w http.ResponseWriter, r *http.Request) {
	requestID := chi.URLParam(r, "id")
	request, err := h.gdpr.GetRequest(r.Context(), requestID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	switch request.Type {
	case models.RequestAccess, models.RequestPortability:
		export, err := h.gdpr.ProcessAccessRequest(r.Context(), requestID, callerID(r))
		if err != nil {
			httputil.WriteError(w, err)
			return
		}
		httputil.WriteJSON(w, http.StatusOK, export)
	case models.RequestErasure:
		processed, err := h.gdpr.ProcessErasureRequest(r.Context(), requestID, callerID(r))
		if err != nil {
			httputil.WriteError(w, err)
			return
		}
		httputil.WriteJSON(w, http.StatusOK, toRequestResponse(processed))
	default:
		httputil.WriteError(w, dErrors.New(dErrors.CodeWrongRequestType,
			"requests of type "+string(request.Type)+" are processed manually"))
	}
}
