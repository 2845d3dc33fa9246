// Package tariffs stores ad-valorem duty rates by HTS code.
package tariffs

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Tariff maps one HTS code to its fractional ad-valorem rate for a tenant.
type Tariff struct {
	ID          uuid.UUID       `json:"id"`
	TenantID    uuid.UUID       `json:"tenant_id"`
	HTSCode     string          `json:"hts_code"`
	Rate        decimal.Decimal `json:"rate"`
	Description string          `json:"description,omitempty"`
	UpdatedBy   uuid.UUID       `json:"updated_by"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

type UpsertTariffRequest struct {
	HTSCode     string          `json:"hts_code" validate:"required,max=16"`
	Rate        decimal.Decimal `json:"rate"`
	Description string          `json:"description,omitempty" validate:"omitempty,max=256"`
}
