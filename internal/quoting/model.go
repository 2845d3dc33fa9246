// Package quoting owns the quote/version/option/leg/charge graph and its
// lifecycle.
package quoting

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/lanecrest/lanecrest/internal/shared"
)

type QuoteStatus string

const (
	QuoteStatusDraft     QuoteStatus = "draft"
	QuoteStatusOpen      QuoteStatus = "open"
	QuoteStatusConverted QuoteStatus = "converted"
	QuoteStatusClosed    QuoteStatus = "closed"
)

type VersionStatus string

const (
	VersionStatusDraft          VersionStatus = "draft"
	VersionStatusInternalReview VersionStatus = "internal_review"
	VersionStatusApproved       VersionStatus = "approved"
	VersionStatusSent           VersionStatus = "sent"
	VersionStatusAccepted       VersionStatus = "accepted"
	VersionStatusRejected       VersionStatus = "rejected"
	VersionStatusExpired        VersionStatus = "expired"
)

// versionTransitions encodes the one-directional lifecycle. Rejected
// versions are never reopened; cloning creates a fresh draft version.
var versionTransitions = map[VersionStatus][]VersionStatus{
	VersionStatusDraft:          {VersionStatusInternalReview, VersionStatusApproved, VersionStatusRejected},
	VersionStatusInternalReview: {VersionStatusApproved, VersionStatusRejected, VersionStatusSent},
	VersionStatusApproved:       {VersionStatusSent},
	VersionStatusSent:           {VersionStatusAccepted, VersionStatusRejected, VersionStatusExpired},
}

// CanTransition reports whether from -> to is a legal lifecycle step.
func CanTransition(from, to VersionStatus) bool {
	for _, allowed := range versionTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// CheckTransition returns a StateConflictError when the step is illegal.
func CheckTransition(versionID uuid.UUID, from, to VersionStatus) error {
	if CanTransition(from, to) {
		return nil
	}
	return &shared.StateConflictError{
		Entity: "quotation_version",
		ID:     versionID.String(),
		From:   string(from),
		To:     string(to),
	}
}

// Editable reports whether the version's options/legs/charges may still be
// mutated. Anything past draft is logically frozen.
func (s VersionStatus) Editable() bool {
	return s == VersionStatusDraft
}

type ChargeSide string

const (
	SideBuy  ChargeSide = "buy"
	SideSell ChargeSide = "sell"
)

// Quote is the tenant-scoped root. The number is assigned exactly once at
// creation and never mutated afterwards.
type Quote struct {
	ID           uuid.UUID   `json:"id"`
	TenantID     uuid.UUID   `json:"tenant_id"`
	QuoteNumber  string      `json:"quote_number"`
	Status       QuoteStatus `json:"status"`
	AccountRef   string      `json:"account_ref"`
	Currency     string      `json:"currency"`
	Incoterm     string      `json:"incoterm,omitempty"`
	ServiceLevel string      `json:"service_level,omitempty"`
	Origin       string      `json:"origin,omitempty"`
	Destination  string      `json:"destination,omitempty"`
	CreatedBy    uuid.UUID   `json:"created_by"`
	CreatedAt    time.Time   `json:"created_at"`
	UpdatedAt    time.Time   `json:"updated_at"`

	Items    []QuoteItem        `json:"items,omitempty"`
	Cargo    []CargoConfig      `json:"cargo_configurations,omitempty"`
	Versions []QuotationVersion `json:"versions,omitempty"`
}

// QuoteItem is one declared line of cargo, carrying the customs
// classification used downstream by invoicing.
type QuoteItem struct {
	ID            uuid.UUID       `json:"id"`
	QuoteID       uuid.UUID       `json:"quote_id"`
	TenantID      uuid.UUID       `json:"tenant_id"`
	Description   string          `json:"description"`
	Quantity      decimal.Decimal `json:"quantity"`
	DeclaredValue decimal.Decimal `json:"declared_value"`
	Currency      string          `json:"currency"`
	HTSCode       string          `json:"hts_code,omitempty"`
}

// CargoConfig captures the physical load for one quote.
type CargoConfig struct {
	ID            uuid.UUID       `json:"id"`
	QuoteID       uuid.UUID       `json:"quote_id"`
	ContainerType string          `json:"container_type"`
	Quantity      int             `json:"quantity"`
	WeightKg      decimal.Decimal `json:"weight_kg"`
	VolumeM3      decimal.Decimal `json:"volume_m3"`
}

// QuotationVersion snapshots a quote's pricing at a point in time. Versions
// are append-only; version numbers within a quote never repeat.
type QuotationVersion struct {
	ID         uuid.UUID     `json:"id"`
	QuoteID    uuid.UUID     `json:"quote_id"`
	VersionNo  int           `json:"version_no"`
	Status     VersionStatus `json:"status"`
	ValidUntil *time.Time    `json:"valid_until,omitempty"`
	CreatedBy  uuid.UUID     `json:"created_by"`
	CreatedAt  time.Time     `json:"created_at"`

	Options []Option `json:"options,omitempty"`
}

// Option is one complete priced alternative within a version. At most one
// option per version carries IsSelected; Recommended is advisory and
// independent of selection.
type Option struct {
	ID          uuid.UUID       `json:"id"`
	VersionID   uuid.UUID       `json:"version_id"`
	TenantID    uuid.UUID       `json:"tenant_id"`
	CarrierName string          `json:"carrier_name"`
	IsSelected  bool            `json:"is_selected"`
	Recommended bool            `json:"recommended"`
	RankScore   float64         `json:"rank_score"`
	TotalAmount decimal.Decimal `json:"total_amount"`
	Currency    string          `json:"currency"`
	TransitDays int             `json:"transit_days"`

	Legs          []Leg    `json:"legs,omitempty"`
	DirectCharges []Charge `json:"charges,omitempty"`
}

// Leg is one itinerary segment. SortOrder is unique and contiguous within
// an option and drives itinerary display.
type Leg struct {
	ID          uuid.UUID `json:"id"`
	OptionID    uuid.UUID `json:"option_id"`
	TenantID    uuid.UUID `json:"tenant_id"`
	SortOrder   int       `json:"sort_order"`
	Mode        string    `json:"mode"`
	Origin      string    `json:"origin"`
	Destination string    `json:"destination"`
	TransitDays int       `json:"transit_days"`

	Charges []Charge `json:"charges,omitempty"`
}

// Charge belongs to exactly one leg, or directly to an option on the
// combined-charge path. The tenant id is carried redundantly for row-level
// isolation and must match the owning parent.
type Charge struct {
	ID          uuid.UUID       `json:"id"`
	TenantID    uuid.UUID       `json:"tenant_id"`
	LegID       *uuid.UUID      `json:"leg_id,omitempty"`
	OptionID    *uuid.UUID      `json:"option_id,omitempty"`
	CategoryRef string          `json:"category_ref"`
	Side        ChargeSide      `json:"side"`
	BasisRef    string          `json:"basis_ref,omitempty"`
	Quantity    decimal.Decimal `json:"quantity"`
	UnitRate    decimal.Decimal `json:"unit_rate"`
	Amount      decimal.Decimal `json:"amount"`
	Currency    string          `json:"currency"`
}

// QuoteSummary is the listing projection.
type QuoteSummary struct {
	ID           uuid.UUID   `json:"id"`
	QuoteNumber  string      `json:"quote_number"`
	Status       QuoteStatus `json:"status"`
	AccountRef   string      `json:"account_ref"`
	Currency     string      `json:"currency"`
	VersionCount int         `json:"version_count"`
	CreatedAt    time.Time   `json:"created_at"`
}
