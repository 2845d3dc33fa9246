package pricing

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/lanecrest/lanecrest/internal/platform/httpx"
	"github.com/lanecrest/lanecrest/internal/shared"
)

// Handler exposes margin-rule administration and price resolution endpoints.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler constructs the HTTP handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{
		logger:   logger,
		service:  service,
		validate: validator.New(),
	}
}

func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	actor, ok := shared.ActorFromContext(r.Context())
	if !ok {
		httpx.Problem(w, r, http.StatusUnauthorized, "Unauthorized", "missing actor context")
		return
	}

	var req CreateRuleRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, r, http.StatusBadRequest, "Validation Failed", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, r, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}

	rule := MarginRule{
		TenantID:   actor.TenantID,
		Name:       req.Name,
		Conditions: toConditions(req.Conditions),
		Adjustment: req.Adjustment,
		Value:      req.Value,
		Priority:   req.Priority,
	}
	created, err := h.service.Create(r.Context(), rule, actor.UserID)
	if err != nil {
		h.logger.Error("create margin rule failed", slog.Any("error", err))
		httpx.RespondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, created)
}

func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	actor, ok := shared.ActorFromContext(r.Context())
	if !ok {
		httpx.Problem(w, r, http.StatusUnauthorized, "Unauthorized", "missing actor context")
		return
	}
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.Problem(w, r, http.StatusBadRequest, "Validation Failed", "invalid rule id")
		return
	}

	var req CreateRuleRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, r, http.StatusBadRequest, "Validation Failed", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, r, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}

	rule := MarginRule{
		ID:         id,
		TenantID:   actor.TenantID,
		Name:       req.Name,
		Conditions: toConditions(req.Conditions),
		Adjustment: req.Adjustment,
		Value:      req.Value,
		Priority:   req.Priority,
	}
	updated, err := h.service.Update(r.Context(), rule, actor.UserID)
	if err != nil {
		h.logger.Error("update margin rule failed", slog.Any("error", err))
		httpx.RespondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, updated)
}

func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	actor, ok := shared.ActorFromContext(r.Context())
	if !ok {
		httpx.Problem(w, r, http.StatusUnauthorized, "Unauthorized", "missing actor context")
		return
	}
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.Problem(w, r, http.StatusBadRequest, "Validation Failed", "invalid rule id")
		return
	}
	if err := h.service.Delete(r.Context(), actor.TenantID, id, actor.UserID); err != nil {
		httpx.RespondError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	actor, ok := shared.ActorFromContext(r.Context())
	if !ok {
		httpx.Problem(w, r, http.StatusUnauthorized, "Unauthorized", "missing actor context")
		return
	}
	rules, err := h.service.List(r.Context(), actor.TenantID)
	if err != nil {
		h.logger.Error("list margin rules failed", slog.Any("error", err))
		httpx.RespondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"rules": rules})
}

// Price resolves and applies rules against a cost supplied by the caller,
// without persisting anything.
func (h *Handler) Price(w http.ResponseWriter, r *http.Request) {
	actor, ok := shared.ActorFromContext(r.Context())
	if !ok {
		httpx.Problem(w, r, http.StatusUnauthorized, "Unauthorized", "missing actor context")
		return
	}

	var req PriceRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, r, http.StatusBadRequest, "Validation Failed", "invalid JSON body")
		return
	}
	result, err := h.service.Price(r.Context(), actor.TenantID, req.Context, req.Cost)
	if err != nil {
		h.logger.Error("price resolution failed", slog.Any("error", err))
		httpx.RespondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, result)
}

func toConditions(reqs []ConditionReq) []Condition {
	conditions := make([]Condition, 0, len(reqs))
	for _, c := range reqs {
		conditions = append(conditions, Condition{Field: c.Field, Expected: c.Expected})
	}
	return conditions
}
