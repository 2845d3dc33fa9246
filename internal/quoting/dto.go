package quoting

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type CreateQuoteRequest struct {
	AccountRef   string `json:"account_ref" validate:"required,max=64"`
	Currency     string `json:"currency" validate:"required,len=3"`
	Incoterm     string `json:"incoterm,omitempty" validate:"omitempty,max=8"`
	ServiceLevel string `json:"service_level,omitempty" validate:"omitempty,max=32"`
	Origin       string `json:"origin,omitempty"`
	Destination  string `json:"destination,omitempty"`

	NumberPrefix string `json:"number_prefix,omitempty" validate:"omitempty,max=8"`
	ResetPolicy  string `json:"reset_policy,omitempty" validate:"omitempty,oneof=none daily monthly yearly"`
}

// SaveQuotePayload is the single atomic authoring write: header, items,
// cargo and the full option/leg/charge graph replace the stored draft graph
// in one transaction.
type SaveQuotePayload struct {
	QuoteID   uuid.UUID            `json:"quote_id" validate:"required"`
	VersionID uuid.UUID            `json:"version_id" validate:"required"`
	Header    QuoteHeaderPayload   `json:"quote" validate:"required"`
	Items     []ItemPayload        `json:"items" validate:"dive"`
	Cargo     []CargoConfigPayload `json:"cargo_configurations" validate:"dive"`
	Options   []OptionPayload      `json:"options" validate:"dive"`
}

type QuoteHeaderPayload struct {
	AccountRef   string `json:"account_ref" validate:"required,max=64"`
	Currency     string `json:"currency" validate:"required,len=3"`
	Incoterm     string `json:"incoterm,omitempty"`
	ServiceLevel string `json:"service_level,omitempty"`
	Origin       string `json:"origin,omitempty"`
	Destination  string `json:"destination,omitempty"`
}

type ItemPayload struct {
	Description   string          `json:"description" validate:"required"`
	Quantity      decimal.Decimal `json:"quantity"`
	DeclaredValue decimal.Decimal `json:"declared_value"`
	Currency      string          `json:"currency" validate:"required,len=3"`
	HTSCode       string          `json:"hts_code,omitempty"`
}

type CargoConfigPayload struct {
	ContainerType string          `json:"container_type" validate:"required"`
	Quantity      int             `json:"quantity" validate:"gte=1"`
	WeightKg      decimal.Decimal `json:"weight_kg"`
	VolumeM3      decimal.Decimal `json:"volume_m3"`
}

type OptionPayload struct {
	CarrierName string          `json:"carrier_name" validate:"required"`
	Recommended bool            `json:"recommended"`
	RankScore   float64         `json:"rank_score"`
	Currency    string          `json:"currency" validate:"required,len=3"`
	TransitDays int             `json:"transit_days"`
	Legs        []LegPayload    `json:"legs" validate:"dive"`
	BuyCharges  []ChargePayload `json:"buy_charges" validate:"dive"`
	SellCharges []ChargePayload `json:"sell_charges" validate:"dive"`
}

type LegPayload struct {
	SortOrder   int             `json:"sort_order"`
	Mode        string          `json:"mode" validate:"required,oneof=ocean air truck rail"`
	Origin      string          `json:"origin" validate:"required"`
	Destination string          `json:"destination" validate:"required"`
	TransitDays int             `json:"transit_days"`
	BuyCharges  []ChargePayload `json:"buy_charges" validate:"dive"`
	SellCharges []ChargePayload `json:"sell_charges" validate:"dive"`
}

type ChargePayload struct {
	CategoryRef string          `json:"category_ref" validate:"required"`
	BasisRef    string          `json:"basis_ref,omitempty"`
	Quantity    decimal.Decimal `json:"quantity"`
	UnitRate    decimal.Decimal `json:"unit_rate"`
	Amount      decimal.Decimal `json:"amount"`
	Currency    string          `json:"currency" validate:"required,len=3"`
}

type SelectionRequest struct {
	VersionID uuid.UUID `json:"version_id" validate:"required"`
	OptionID  uuid.UUID `json:"option_id" validate:"required"`
	Reason    string    `json:"reason,omitempty"`
}

type ListQuotesRequest struct {
	TenantID uuid.UUID
	Status   *QuoteStatus
	DateFrom *time.Time
	DateTo   *time.Time
	Limit    int
	Offset   int
}

type CreateVersionRequest struct {
	// CloneFromVersionID copies the option graph of an earlier (typically
	// rejected) version into the new draft. Zero value starts empty.
	CloneFromVersionID uuid.UUID  `json:"clone_from_version_id,omitempty"`
	ValidUntil         *time.Time `json:"valid_until,omitempty"`
}
