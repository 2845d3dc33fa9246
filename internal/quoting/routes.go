package quoting

import "github.com/go-chi/chi/v5"

// Routes mounts the quoting API under the given router.
func Routes(r chi.Router, h *Handler) {
	r.Route("/quotes", func(r chi.Router) {
		r.Get("/", h.List)
		r.Post("/", h.Create)

		r.Route("/{quoteID}", func(r chi.Router) {
			r.Get("/", h.Get)
			r.Put("/graph", h.Save)
			r.Post("/versions", h.CreateVersion)
			r.Post("/selection", h.Select)
		})
	})

	r.Route("/versions/{versionID}", func(r chi.Router) {
		r.Get("/", h.GetVersion)
		r.Post("/submit", h.transition(VersionStatusInternalReview))
		r.Post("/approve", h.transition(VersionStatusApproved))
		r.Post("/reject", h.transition(VersionStatusRejected))
		r.Post("/send", h.transition(VersionStatusSent))
		r.Post("/accept", h.transition(VersionStatusAccepted))
		r.Post("/expire", h.transition(VersionStatusExpired))
		r.Post("/verify-totals", h.VerifyTotals)
	})
}
