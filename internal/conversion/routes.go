package conversion

import "github.com/go-chi/chi/v5"

// Routes mounts the conversion API under the given router.
func Routes(r chi.Router, h *Handler) {
	r.Post("/quotes/{quoteID}/convert", h.Convert)

	r.Route("/shipments/{shipmentID}", func(r chi.Router) {
		r.Get("/", h.GetShipment)
		r.Post("/invoice", h.Invoice)
	})

	r.Get("/invoices/{invoiceID}", h.GetInvoice)
}
