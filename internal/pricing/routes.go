package pricing

import (
	"github.com/go-chi/chi/v5"
)

// Routes mounts the margin-rule API under the given router.
func Routes(r chi.Router, h *Handler) {
	r.Route("/margin-rules", func(r chi.Router) {
		r.Get("/", h.List)
		r.Post("/", h.Create)
		r.Put("/{id}", h.Update)
		r.Delete("/{id}", h.Delete)
	})
	r.Post("/pricing/resolve", h.Price)
}
