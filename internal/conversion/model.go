// Package conversion turns accepted quotes into shipments and shipments
// into invoices, computing customs fees along the way.
package conversion

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type ShipmentStatus string

const (
	ShipmentStatusPlanned   ShipmentStatus = "planned"
	ShipmentStatusInTransit ShipmentStatus = "in_transit"
	ShipmentStatusDelivered ShipmentStatus = "delivered"
)

type InvoiceStatus string

const (
	InvoiceStatusDraft  InvoiceStatus = "draft"
	InvoiceStatusIssued InvoiceStatus = "issued"
)

// Shipment is the operational snapshot created from an accepted quote. It
// references its source but never shares rows with it; later quote edits
// cannot leak into a shipment.
type Shipment struct {
	ID             uuid.UUID      `json:"id"`
	TenantID       uuid.UUID      `json:"tenant_id"`
	QuoteID        uuid.UUID      `json:"quote_id"`
	OptionID       uuid.UUID      `json:"option_id"`
	ShipmentNumber string         `json:"shipment_number"`
	Status         ShipmentStatus `json:"status"`
	AccountRef     string         `json:"account_ref"`
	Currency       string         `json:"currency"`
	Incoterm       string         `json:"incoterm,omitempty"`
	ServiceLevel   string         `json:"service_level,omitempty"`
	Origin         string         `json:"origin,omitempty"`
	Destination    string         `json:"destination,omitempty"`
	// Mode is the primary transport mode; OceanMove is true when any leg
	// of the selected option moves by ocean and drives the harbor
	// maintenance fee.
	Mode      string    `json:"mode,omitempty"`
	OceanMove bool      `json:"ocean_move"`
	CreatedBy uuid.UUID `json:"created_by"`
	CreatedAt time.Time `json:"created_at"`

	Items   []ShipmentItem   `json:"items,omitempty"`
	Charges []ShipmentCharge `json:"charges,omitempty"`
}

// ShipmentItem is a declared cargo line copied from the quote at
// conversion time.
type ShipmentItem struct {
	ID            uuid.UUID       `json:"id"`
	ShipmentID    uuid.UUID       `json:"shipment_id"`
	TenantID      uuid.UUID       `json:"tenant_id"`
	Description   string          `json:"description"`
	Quantity      decimal.Decimal `json:"quantity"`
	DeclaredValue decimal.Decimal `json:"declared_value"`
	Currency      string          `json:"currency"`
	HTSCode       string          `json:"hts_code,omitempty"`
}

// ShipmentCharge is a billable sell-side charge copied from the selected
// option.
type ShipmentCharge struct {
	ID          uuid.UUID       `json:"id"`
	ShipmentID  uuid.UUID       `json:"shipment_id"`
	TenantID    uuid.UUID       `json:"tenant_id"`
	CategoryRef string          `json:"category_ref"`
	Amount      decimal.Decimal `json:"amount"`
	Currency    string          `json:"currency"`
}

// Invoice is billed against one shipment.
type Invoice struct {
	ID            uuid.UUID       `json:"id"`
	TenantID      uuid.UUID       `json:"tenant_id"`
	ShipmentID    uuid.UUID       `json:"shipment_id"`
	InvoiceNumber string          `json:"invoice_number"`
	Status        InvoiceStatus   `json:"status"`
	Currency      string          `json:"currency"`
	TotalAmount   decimal.Decimal `json:"total_amount"`
	CreatedBy     uuid.UUID       `json:"created_by"`
	CreatedAt     time.Time       `json:"created_at"`

	Lines []InvoiceLine `json:"lines,omitempty"`
}

// InvoiceLine is one billed amount. The consolidated customs fee line
// carries the full FeeBreakdown so the single amount stays auditable.
type InvoiceLine struct {
	ID          uuid.UUID       `json:"id"`
	InvoiceID   uuid.UUID       `json:"invoice_id"`
	TenantID    uuid.UUID       `json:"tenant_id"`
	Description string          `json:"description"`
	Amount      decimal.Decimal `json:"amount"`
	Currency    string          `json:"currency"`
	FeeMeta     *FeeBreakdown   `json:"fee_meta,omitempty"`
}

// feeLineDescription names the consolidated customs line on invoices.
const feeLineDescription = "Customs Duties & Fees"
