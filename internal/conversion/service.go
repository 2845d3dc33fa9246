package conversion

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/lanecrest/lanecrest/internal/quoting"
	"github.com/lanecrest/lanecrest/internal/sequence"
	"github.com/lanecrest/lanecrest/internal/shared"
)

var (
	shipmentNumberFormat = sequence.Format{Prefix: "SHP", Separator: "-", PadLength: 5, Reset: sequence.ResetYearly}
	invoiceNumberFormat  = sequence.Format{Prefix: "INV", Separator: "-", PadLength: 5, Reset: sequence.ResetYearly}
)

// QuoteSource reads the quoting graph the conversion consumes.
type QuoteSource interface {
	Get(ctx context.Context, tenantID, id uuid.UUID) (*quoting.Quote, error)
	GetVersion(ctx context.Context, tenantID, versionID uuid.UUID) (*quoting.QuotationVersion, error)
}

// RateSource answers ad-valorem duty rates by HTS code. Unknown codes
// resolve to a zero rate.
type RateSource interface {
	Rate(ctx context.Context, tenantID uuid.UUID, htsCode string) (decimal.Decimal, error)
}

// Idempotency guards against double execution of a conversion.
type Idempotency interface {
	CheckAndInsert(ctx context.Context, key, module string) error
	Delete(ctx context.Context, key string) error
}

// Metrics receives conversion instrumentation events.
type Metrics interface {
	Conversion(stage, outcome string)
}

// Service runs the quote to shipment to invoice pipeline.
type Service struct {
	repo        Repository
	quotes      QuoteSource
	rates       RateSource
	allocator   *sequence.Allocator
	idempotency Idempotency
	audit       *shared.AuditLogger
	metrics     Metrics
	logger      *slog.Logger
	feeCfg      FeeConfig
}

// NewService constructs the conversion service.
func NewService(repo Repository, quotes QuoteSource, rates RateSource, allocator *sequence.Allocator,
	idempotency Idempotency, audit *shared.AuditLogger, metrics Metrics, logger *slog.Logger, feeCfg FeeConfig) *Service {
	return &Service{
		repo:        repo,
		quotes:      quotes,
		rates:       rates,
		allocator:   allocator,
		idempotency: idempotency,
		audit:       audit,
		metrics:     metrics,
		logger:      logger,
		feeCfg:      feeCfg,
	}
}

// ConvertQuoteToShipment snapshots the accepted version's selected option
// into a shipment. The whole copy and the quote status flip happen in one
// transaction; a failed item insert leaves no partial shipment behind.
func (s *Service) ConvertQuoteToShipment(ctx context.Context, actor shared.Actor, quoteID uuid.UUID) (*Shipment, error) {
	key := "convert:quote:" + quoteID.String()
	if err := s.idempotency.CheckAndInsert(ctx, key, "conversion"); err != nil {
		if errors.Is(err, shared.ErrIdempotencyConflict) {
			s.conversionOutcome("shipment", "duplicate")
			return nil, fmt.Errorf("conversion: quote %s conversion already in progress or done: %w", quoteID, shared.ErrConflict)
		}
		return nil, fmt.Errorf("idempotency check: %w", err)
	}
	shipment, err := s.convertQuote(ctx, actor, quoteID)
	if err != nil {
		// Release the key so a fixed retry can run.
		if delErr := s.idempotency.Delete(ctx, key); delErr != nil {
			s.logger.Warn("idempotency key release failed", slog.String("key", key), slog.Any("error", delErr))
		}
		s.conversionOutcome("shipment", "failure")
		return nil, err
	}
	s.conversionOutcome("shipment", "success")
	return shipment, nil
}

func (s *Service) convertQuote(ctx context.Context, actor shared.Actor, quoteID uuid.UUID) (*Shipment, error) {
	quote, err := s.quotes.Get(ctx, actor.TenantID, quoteID)
	if err != nil {
		return nil, fmt.Errorf("get quote: %w", err)
	}
	if quote.Status == quoting.QuoteStatusConverted {
		return nil, fmt.Errorf("conversion: quote %s already converted: %w", quoteID, shared.ErrConflict)
	}

	option, oceanMove, mode, err := s.selectedOption(ctx, actor.TenantID, quote)
	if err != nil {
		return nil, err
	}

	shipmentID := uuid.New()
	number, err := s.allocator.Reserve(ctx, actor.TenantID, "shipment", shipmentNumberFormat, time.Now(), func(number string) error {
		return s.repo.WithTx(ctx, func(ctx context.Context, repo Repository) error {
			shipment := Shipment{
				ID:             shipmentID,
				TenantID:       actor.TenantID,
				QuoteID:        quote.ID,
				OptionID:       option.ID,
				ShipmentNumber: number,
				Status:         ShipmentStatusPlanned,
				AccountRef:     quote.AccountRef,
				Currency:       quote.Currency,
				Incoterm:       quote.Incoterm,
				ServiceLevel:   quote.ServiceLevel,
				Origin:         quote.Origin,
				Destination:    quote.Destination,
				Mode:           mode,
				OceanMove:      oceanMove,
				CreatedBy:      actor.UserID,
			}
			if err := repo.InsertShipment(ctx, shipment); err != nil {
				return fmt.Errorf("insert shipment: %w", err)
			}
			for _, item := range quote.Items {
				if err := repo.InsertShipmentItem(ctx, ShipmentItem{
					ID:            uuid.New(),
					ShipmentID:    shipmentID,
					TenantID:      actor.TenantID,
					Description:   item.Description,
					Quantity:      item.Quantity,
					DeclaredValue: item.DeclaredValue,
					Currency:      item.Currency,
					HTSCode:       item.HTSCode,
				}); err != nil {
					return fmt.Errorf("insert shipment item: %w", err)
				}
			}
			for _, charge := range sellCharges(option) {
				if err := repo.InsertShipmentCharge(ctx, ShipmentCharge{
					ID:          uuid.New(),
					ShipmentID:  shipmentID,
					TenantID:    actor.TenantID,
					CategoryRef: charge.CategoryRef,
					Amount:      charge.Amount,
					Currency:    charge.Currency,
				}); err != nil {
					return fmt.Errorf("insert shipment charge: %w", err)
				}
			}
			return repo.MarkQuoteConverted(ctx, actor.TenantID, quote.ID)
		})
	})
	if err != nil {
		return nil, err
	}

	s.auditRecord(ctx, actor, "shipment.create", "shipment", shipmentID.String(),
		map[string]any{"quote_id": quote.ID.String(), "shipment_number": number})
	return s.repo.GetShipment(ctx, actor.TenantID, shipmentID)
}

// selectedOption finds the accepted version's chosen option and derives the
// transport mode flags from its legs.
func (s *Service) selectedOption(ctx context.Context, tenantID uuid.UUID, quote *quoting.Quote) (*quoting.Option, bool, string, error) {
	var accepted *quoting.QuotationVersion
	for i := range quote.Versions {
		v := &quote.Versions[i]
		if v.Status == quoting.VersionStatusAccepted && (accepted == nil || v.VersionNo > accepted.VersionNo) {
			accepted = v
		}
	}
	if accepted == nil {
		return nil, false, "", fmt.Errorf("conversion: quote %s has no accepted version: %w", quote.ID, shared.ErrValidation)
	}

	version, err := s.quotes.GetVersion(ctx, tenantID, accepted.ID)
	if err != nil {
		return nil, false, "", fmt.Errorf("get accepted version: %w", err)
	}
	for i := range version.Options {
		option := &version.Options[i]
		if !option.IsSelected {
			continue
		}
		var oceanMove bool
		var mode string
		for _, leg := range option.Legs {
			if mode == "" {
				mode = leg.Mode
			}
			if leg.Mode == "ocean" {
				oceanMove = true
			}
		}
		return option, oceanMove, mode, nil
	}
	return nil, false, "", fmt.Errorf("conversion: accepted version %s has no selected option: %w", accepted.ID, shared.ErrValidation)
}

// CreateInvoiceFromShipment bills the shipment's charges and appends one
// consolidated customs fee line whose amount equals the sum of its rounded
// components. Zero fees produce no line.
func (s *Service) CreateInvoiceFromShipment(ctx context.Context, actor shared.Actor, shipmentID uuid.UUID) (*Invoice, error) {
	key := "invoice:shipment:" + shipmentID.String()
	if err := s.idempotency.CheckAndInsert(ctx, key, "conversion"); err != nil {
		if errors.Is(err, shared.ErrIdempotencyConflict) {
			s.conversionOutcome("invoice", "duplicate")
			return nil, fmt.Errorf("conversion: invoice for shipment %s already in progress or done: %w", shipmentID, shared.ErrConflict)
		}
		return nil, fmt.Errorf("idempotency check: %w", err)
	}
	invoice, err := s.createInvoice(ctx, actor, shipmentID)
	if err != nil {
		if delErr := s.idempotency.Delete(ctx, key); delErr != nil {
			s.logger.Warn("idempotency key release failed", slog.String("key", key), slog.Any("error", delErr))
		}
		s.conversionOutcome("invoice", "failure")
		return nil, err
	}
	s.conversionOutcome("invoice", "success")
	return invoice, nil
}

func (s *Service) createInvoice(ctx context.Context, actor shared.Actor, shipmentID uuid.UUID) (*Invoice, error) {
	shipment, err := s.repo.GetShipment(ctx, actor.TenantID, shipmentID)
	if err != nil {
		return nil, fmt.Errorf("get shipment: %w", err)
	}
	exists, err := s.repo.InvoiceExistsForShipment(ctx, shipmentID)
	if err != nil {
		return nil, fmt.Errorf("invoice existence check: %w", err)
	}
	if exists {
		return nil, fmt.Errorf("conversion: shipment %s already invoiced: %w", shipmentID, shared.ErrConflict)
	}

	fees, err := s.shipmentFees(ctx, actor.TenantID, shipment)
	if err != nil {
		return nil, err
	}

	invoiceID := uuid.New()
	lines := make([]InvoiceLine, 0, len(shipment.Charges)+1)
	total := decimal.Zero
	for _, charge := range shipment.Charges {
		lines = append(lines, InvoiceLine{
			ID:          uuid.New(),
			InvoiceID:   invoiceID,
			TenantID:    actor.TenantID,
			Description: charge.CategoryRef,
			Amount:      charge.Amount,
			Currency:    charge.Currency,
		})
		total = total.Add(charge.Amount)
	}
	if fees.HasFees() {
		breakdown := fees
		lines = append(lines, InvoiceLine{
			ID:          uuid.New(),
			InvoiceID:   invoiceID,
			TenantID:    actor.TenantID,
			Description: feeLineDescription,
			Amount:      fees.Total,
			Currency:    shipment.Currency,
			FeeMeta:     &breakdown,
		})
		total = total.Add(fees.Total)
	}

	number, err := s.allocator.Reserve(ctx, actor.TenantID, "invoice", invoiceNumberFormat, time.Now(), func(number string) error {
		return s.repo.WithTx(ctx, func(ctx context.Context, repo Repository) error {
			invoice := Invoice{
				ID:            invoiceID,
				TenantID:      actor.TenantID,
				ShipmentID:    shipmentID,
				InvoiceNumber: number,
				Status:        InvoiceStatusDraft,
				Currency:      shipment.Currency,
				TotalAmount:   total,
				CreatedBy:     actor.UserID,
			}
			if err := repo.InsertInvoice(ctx, invoice); err != nil {
				return fmt.Errorf("insert invoice: %w", err)
			}
			for _, line := range lines {
				if err := repo.InsertInvoiceLine(ctx, line); err != nil {
					return fmt.Errorf("insert invoice line: %w", err)
				}
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	s.auditRecord(ctx, actor, "invoice.create", "invoice", invoiceID.String(),
		map[string]any{"shipment_id": shipmentID.String(), "invoice_number": number, "fees": fees})
	return s.repo.GetInvoice(ctx, actor.TenantID, invoiceID)
}

// shipmentFees sums per-item duties at each item's HTS rate, then applies
// the shipment-level processing and harbor fees on the aggregate declared
// value.
func (s *Service) shipmentFees(ctx context.Context, tenantID uuid.UUID, shipment *Shipment) (FeeBreakdown, error) {
	declared := decimal.Zero
	duty := decimal.Zero
	for _, item := range shipment.Items {
		if item.DeclaredValue.Sign() <= 0 {
			continue
		}
		declared = declared.Add(item.DeclaredValue)
		if item.HTSCode == "" {
			continue
		}
		rate, err := s.rates.Rate(ctx, tenantID, item.HTSCode)
		if err != nil {
			return FeeBreakdown{}, fmt.Errorf("tariff rate for %s: %w", item.HTSCode, err)
		}
		duty = duty.Add(ItemDuty(item.DeclaredValue, rate))
	}
	return CalculateFees(declared, duty, shipment.OceanMove, s.feeCfg), nil
}

// GetShipment returns the shipment with items and charges.
func (s *Service) GetShipment(ctx context.Context, tenantID, id uuid.UUID) (*Shipment, error) {
	return s.repo.GetShipment(ctx, tenantID, id)
}

// GetInvoice returns the invoice with its lines.
func (s *Service) GetInvoice(ctx context.Context, tenantID, id uuid.UUID) (*Invoice, error) {
	return s.repo.GetInvoice(ctx, tenantID, id)
}

func (s *Service) conversionOutcome(stage, outcome string) {
	if s.metrics != nil {
		s.metrics.Conversion(stage, outcome)
	}
}

func (s *Service) auditRecord(ctx context.Context, actor shared.Actor, action, entity, entityID string, meta map[string]any) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Record(ctx, shared.AuditLog{
		TenantID: actor.TenantID.String(),
		ActorID:  actor.UserID.String(),
		Action:   action,
		Entity:   entity,
		EntityID: entityID,
		Meta:     meta,
	}); err != nil {
		s.logger.Warn("audit record failed", slog.String("action", action), slog.Any("error", err))
	}
}

// sellCharges flattens the sell side of an option, leg charges first.
func sellCharges(option *quoting.Option) []quoting.Charge {
	var out []quoting.Charge
	for _, leg := range option.Legs {
		for _, charge := range leg.Charges {
			if charge.Side == quoting.SideSell {
				out = append(out, charge)
			}
		}
	}
	for _, charge := range option.DirectCharges {
		if charge.Side == quoting.SideSell {
			out = append(out, charge)
		}
	}
	return out
}
