package sequence

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/lanecrest/lanecrest/internal/platform/httpx"
	"github.com/lanecrest/lanecrest/internal/shared"
)

// Handler exposes the advisory number endpoints. The format and scope are
// fixed at construction so callers cannot probe foreign counters.
type Handler struct {
	allocator *Allocator
	scope     string
	format    Format
}

// NewHandler constructs the HTTP handler.
func NewHandler(allocator *Allocator, scope string, format Format) *Handler {
	return &Handler{allocator: allocator, scope: scope, format: format}
}

// Preview returns the number the next allocation would produce.
func (h *Handler) Preview(w http.ResponseWriter, r *http.Request) {
	actor, ok := shared.ActorFromContext(r.Context())
	if !ok {
		httpx.Problem(w, r, http.StatusUnauthorized, "Unauthorized", "missing actor context")
		return
	}

	number, err := h.allocator.PreviewNext(r.Context(), actor.TenantID, h.scope, h.format, time.Now())
	if err != nil {
		httpx.RespondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"number": number})
}

// Check reports whether a candidate number is still unassigned.
func (h *Handler) Check(w http.ResponseWriter, r *http.Request) {
	actor, ok := shared.ActorFromContext(r.Context())
	if !ok {
		httpx.Problem(w, r, http.StatusUnauthorized, "Unauthorized", "missing actor context")
		return
	}

	number := r.URL.Query().Get("number")
	if number == "" {
		httpx.Problem(w, r, http.StatusBadRequest, "Validation Failed", "number query parameter is required")
		return
	}

	available, err := h.allocator.CheckAvailability(r.Context(), actor.TenantID, number)
	if err != nil {
		httpx.RespondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"number": number, "available": available})
}

// Routes mounts the sequence endpoints.
func Routes(r chi.Router, h *Handler) {
	r.Route("/sequence", func(r chi.Router) {
		r.Get("/preview", h.Preview)
		r.Get("/check", h.Check)
	})
}
