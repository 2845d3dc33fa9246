package conversion

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/lanecrest/lanecrest/internal/platform/httpx"
	"github.com/lanecrest/lanecrest/internal/shared"
)

type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

func (h *Handler) Convert(w http.ResponseWriter, r *http.Request) {
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

	shipment, err := h.service.ConvertQuoteToShipment(r.Context(), actor, quoteID)
	if err != nil {
		httpx.RespondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, shipment)
}

func (h *Handler) GetShipment(w http.ResponseWriter, r *http.Request) {
	actor, ok := shared.ActorFromContext(r.Context())
	if !ok {
		httpx.Problem(w, r, http.StatusUnauthorized, "Unauthorized", "missing actor context")
		return
	}
	id, err := uuid.Parse(chi.URLParam(r, "shipmentID"))
	if err != nil {
		httpx.Problem(w, r, http.StatusBadRequest, "Invalid Request", "malformed shipment id")
		return
	}

	shipment, err := h.service.GetShipment(r.Context(), actor.TenantID, id)
	if err != nil {
		httpx.RespondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, shipment)
}

func (h *Handler) Invoice(w http.ResponseWriter, r *http.Request) {
	actor, ok := shared.ActorFromContext(r.Context())
	if !ok {
		httpx.Problem(w, r, http.StatusUnauthorized, "Unauthorized", "missing actor context")
		return
	}
	shipmentID, err := uuid.Parse(chi.URLParam(r, "shipmentID"))
	if err != nil {
		httpx.Problem(w, r, http.StatusBadRequest, "Invalid Request", "malformed shipment id")
		return
	}

	invoice, err := h.service.CreateInvoiceFromShipment(r.Context(), actor, shipmentID)
	if err != nil {
		httpx.RespondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, invoice)
}

func (h *Handler) GetInvoice(w http.ResponseWriter, r *http.Request) {
	actor, ok := shared.ActorFromContext(r.Context())
	if !ok {
		httpx.Problem(w, r, http.StatusUnauthorized, "Unauthorized", "missing actor context")
		return
	}
	id, err := uuid.Parse(chi.URLParam(r, "invoiceID"))
	if err != nil {
		httpx.Problem(w, r, http.StatusBadRequest, "Invalid Request", "malformed invoice id")
		return
	}

	invoice, err := h.service.GetInvoice(r.Context(), actor.TenantID, id)
	if err != nil {
		httpx.RespondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, invoice)
}
