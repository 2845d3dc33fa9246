package quoting

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/lanecrest/lanecrest/internal/platform/httpx"
	"github.com/lanecrest/lanecrest/internal/shared"
)

type Handler struct {
	service  *Service
	validate *validator.Validate
}

func NewHandler(service *Service) *Handler {
	return &Handler{service: service, validate: validator.New()}
}

func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	actor, ok := shared.ActorFromContext(r.Context())
	if !ok {
		httpx.Problem(w, r, http.StatusUnauthorized, "Unauthorized", "missing actor context")
		return
	}

	var req CreateQuoteRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, r, http.StatusBadRequest, "Invalid Request", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, r, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}

	quote, err := h.service.CreateQuote(r.Context(), actor, req)
	if err != nil {
		httpx.RespondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, quote)
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	actor, ok := shared.ActorFromContext(r.Context())
	if !ok {
		httpx.Problem(w, r, http.StatusUnauthorized, "Unauthorized", "missing actor context")
		return
	}
	id, err := uuid.Parse(chi.URLParam(r, "quoteID"))
	if err != nil {
		httpx.Problem(w, r, http.StatusBadRequest, "Invalid Request", "malformed quote id")
		return
	}

	quote, err := h.service.Get(r.Context(), actor.TenantID, id)
	if err != nil {
		httpx.RespondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, quote)
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	actor, ok := shared.ActorFromContext(r.Context())
	if !ok {
		httpx.Problem(w, r, http.StatusUnauthorized, "Unauthorized", "missing actor context")
		return
	}

	req := ListQuotesRequest{TenantID: actor.TenantID, Limit: 50}
	if raw := r.URL.Query().Get("status"); raw != "" {
		status := QuoteStatus(raw)
		req.Status = &status
	}
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 && n <= 200 {
			req.Limit = n
		}
	}
	if raw := r.URL.Query().Get("offset"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n >= 0 {
			req.Offset = n
		}
	}
	if raw := r.URL.Query().Get("from"); raw != "" {
		if t, err := time.Parse(time.RFC3339, raw); err == nil {
			req.DateFrom = &t
		}
	}
	if raw := r.URL.Query().Get("to"); raw != "" {
		if t, err := time.Parse(time.RFC3339, raw); err == nil {
			req.DateTo = &t
		}
	}

	quotes, total, err := h.service.List(r.Context(), req)
	if err != nil {
		httpx.RespondError(w, r, err)
		return
	}
	meta := shared.NewPagination(req.Offset/req.Limit+1, req.Limit, total)
	httpx.JSON(w, http.StatusOK, map[string]any{"quotes": quotes, "pagination": meta})
}

func (h *Handler) Save(w http.ResponseWriter, r *http.Request) {
	actor, ok := shared.ActorFromContext(r.Context())
	if !ok {
		httpx.Problem(w, r, http.StatusUnauthorized, "Unauthorized", "missing actor context")
		return
	}
	quoteID, err := uuid.Parse(chi.URLParam(r, "quoteID"))
	if err != nil {
		httpx.Problem(w, r, http.StatusBadRequest, "Invalid Request", "malformed quote id")
		return
	}

	var payload SaveQuotePayload
	if err := httpx.DecodeJSON(r, &payload); err != nil {
		httpx.Problem(w, r, http.StatusBadRequest, "Invalid Request", err.Error())
		return
	}
	payload.QuoteID = quoteID
	if err := h.validate.Struct(payload); err != nil {
		httpx.Problem(w, r, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}

	if _, err := h.service.SaveQuoteAtomic(r.Context(), actor, payload); err != nil {
		httpx.RespondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"quote_id": quoteID.String()})
}

func (h *Handler) CreateVersion(w http.ResponseWriter, r *http.Request) {
	actor, ok := shared.ActorFromContext(r.Context())
	if !ok {
		httpx.Problem(w, r, http.StatusUnauthorized, "Unauthorized", "missing actor context")
		return
	}
	quoteID, err := uuid.Parse(chi.URLParam(r, "quoteID"))
	if err != nil {
		httpx.Problem(w, r, http.StatusBadRequest, "Invalid Request", "malformed quote id")
		return
	}

	var req CreateVersionRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, r, http.StatusBadRequest, "Invalid Request", err.Error())
		return
	}

	version, err := h.service.CreateVersion(r.Context(), actor, quoteID, req)
	if err != nil {
		httpx.RespondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, version)
}

func (h *Handler) GetVersion(w http.ResponseWriter, r *http.Request) {
	actor, ok := shared.ActorFromContext(r.Context())
	if !ok {
		httpx.Problem(w, r, http.StatusUnauthorized, "Unauthorized", "missing actor context")
		return
	}
	versionID, err := uuid.Parse(chi.URLParam(r, "versionID"))
	if err != nil {
		httpx.Problem(w, r, http.StatusBadRequest, "Invalid Request", "malformed version id")
		return
	}

	version, err := h.service.GetVersion(r.Context(), actor.TenantID, versionID)
	if err != nil {
		httpx.RespondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, version)
}

// transition builds a handler for one lifecycle step. The optional reason
// comes from the request body.
func (h *Handler) transition(to VersionStatus) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := shared.ActorFromContext(r.Context())
		if !ok {
			httpx.Problem(w, r, http.StatusUnauthorized, "Unauthorized", "missing actor context")
			return
		}
		versionID, err := uuid.Parse(chi.URLParam(r, "versionID"))
		if err != nil {
			httpx.Problem(w, r, http.StatusBadRequest, "Invalid Request", "malformed version id")
			return
		}

		var body struct {
			Reason string `json:"reason"`
		}
		if r.ContentLength > 0 {
			if err := httpx.DecodeJSON(r, &body); err != nil {
				httpx.Problem(w, r, http.StatusBadRequest, "Invalid Request", err.Error())
				return
			}
		}

		version, err := h.service.Transition(r.Context(), actor, versionID, to, body.Reason)
		if err != nil {
			httpx.RespondError(w, r, err)
			return
		}
		httpx.JSON(w, http.StatusOK, version)
	}
}

func (h *Handler) Select(w http.ResponseWriter, r *http.Request) {
	actor, ok := shared.ActorFromContext(r.Context())
	if !ok {
		httpx.Problem(w, r, http.StatusUnauthorized, "Unauthorized", "missing actor context")
		return
	}
	quoteID, err := uuid.Parse(chi.URLParam(r, "quoteID"))
	if err != nil {
		httpx.Problem(w, r, http.StatusBadRequest, "Invalid Request", "malformed quote id")
		return
	}

	var req SelectionRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, r, http.StatusBadRequest, "Invalid Request", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, r, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}

	if err := h.service.RecordCustomerSelection(r.Context(), actor, quoteID, req); err != nil {
		httpx.RespondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"status": "selected"})
}

func (h *Handler) VerifyTotals(w http.ResponseWriter, r *http.Request) {
	actor, ok := shared.ActorFromContext(r.Context())
	if !ok {
		httpx.Problem(w, r, http.StatusUnauthorized, "Unauthorized", "missing actor context")
		return
	}
	versionID, err := uuid.Parse(chi.URLParam(r, "versionID"))
	if err != nil {
		httpx.Problem(w, r, http.StatusBadRequest, "Invalid Request", "malformed version id")
		return
	}

	if err := h.service.VerifyTotals(r.Context(), actor.TenantID, versionID); err != nil {
		httpx.RespondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"status": "consistent"})
}
