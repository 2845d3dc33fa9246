package quoting

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/lanecrest/lanecrest/internal/rollup"
	"github.com/lanecrest/lanecrest/internal/sequence"
	"github.com/lanecrest/lanecrest/internal/shared"
)

// DefaultNumberFormat is used when a tenant does not configure its own.
var DefaultNumberFormat = sequence.Format{
	Prefix:    "QT",
	Separator: "-",
	PadLength: 4,
	Reset:     sequence.ResetMonthly,
}

// Service implements quote authoring and the version lifecycle.
type Service struct {
	repo      Repository
	allocator *sequence.Allocator
	audit     *shared.AuditLogger
	logger    *slog.Logger
}

// NewService constructs the quoting service.
func NewService(repo Repository, allocator *sequence.Allocator, audit *shared.AuditLogger, logger *slog.Logger) *Service {
	return &Service{repo: repo, allocator: allocator, audit: audit, logger: logger}
}

// CreateQuote allocates a number and writes the quote with its initial draft
// version in one transaction. Number collisions at insert time trigger a
// fresh allocation, bounded by the allocator's retry budget.
func (s *Service) CreateQuote(ctx context.Context, actor shared.Actor, req CreateQuoteRequest) (*Quote, error) {
	if !shared.ValidCurrency(req.Currency) {
		return nil, fmt.Errorf("quoting: currency %q: %w", req.Currency, shared.ErrValidation)
	}

	format := DefaultNumberFormat
	if req.NumberPrefix != "" {
		format.Prefix = req.NumberPrefix
	}
	if req.ResetPolicy != "" {
		format.Reset = sequence.ResetPolicy(req.ResetPolicy)
	}

	quoteID := uuid.New()
	number, err := s.allocator.Reserve(ctx, actor.TenantID, "quote", format, time.Now(), func(number string) error {
		return s.repo.WithTx(ctx, func(ctx context.Context, repo Repository) error {
			quote := Quote{
				ID:           quoteID,
				TenantID:     actor.TenantID,
				QuoteNumber:  number,
				Status:       QuoteStatusDraft,
				AccountRef:   req.AccountRef,
				Currency:     req.Currency,
				Incoterm:     req.Incoterm,
				ServiceLevel: req.ServiceLevel,
				Origin:       req.Origin,
				Destination:  req.Destination,
				CreatedBy:    actor.UserID,
			}
			if err := repo.InsertQuote(ctx, quote); err != nil {
				return fmt.Errorf("insert quote: %w", err)
			}
			version := QuotationVersion{
				ID:        uuid.New(),
				QuoteID:   quoteID,
				VersionNo: 1,
				Status:    VersionStatusDraft,
				CreatedBy: actor.UserID,
			}
			if err := repo.InsertVersion(ctx, version); err != nil {
				return fmt.Errorf("insert initial version: %w", err)
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	s.auditRecord(ctx, actor, "quote.create", "quote", quoteID.String(), map[string]any{"quote_number": number})
	return s.repo.GetQuote(ctx, actor.TenantID, quoteID)
}

// Get returns the quote with items, cargo and version headers.
func (s *Service) Get(ctx context.Context, tenantID, id uuid.UUID) (*Quote, error) {
	return s.repo.GetQuote(ctx, tenantID, id)
}

// GetVersion returns a version with its full option graph.
func (s *Service) GetVersion(ctx context.Context, tenantID, versionID uuid.UUID) (*QuotationVersion, error) {
	return s.repo.GetVersion(ctx, tenantID, versionID)
}

// List returns quote summaries for the tenant.
func (s *Service) List(ctx context.Context, req ListQuotesRequest) ([]QuoteSummary, int, error) {
	return s.repo.List(ctx, req)
}

// SaveQuoteAtomic replaces the draft authoring graph in one all-or-nothing
// write: header, items, cargo configurations, and the version's options with
// their legs and buy/sell charges. Any insert failure rolls the whole graph
// back.
func (s *Service) SaveQuoteAtomic(ctx context.Context, actor shared.Actor, payload SaveQuotePayload) (uuid.UUID, error) {
	version, err := s.repo.GetVersion(ctx, actor.TenantID, payload.VersionID)
	if err != nil {
		return uuid.Nil, fmt.Errorf("get version: %w", err)
	}
	if version.QuoteID != payload.QuoteID {
		return uuid.Nil, fmt.Errorf("quoting: version %s does not belong to quote %s: %w",
			payload.VersionID, payload.QuoteID, shared.ErrValidation)
	}
	if !version.Status.Editable() {
		return uuid.Nil, &shared.StateConflictError{
			Entity: "quotation_version",
			ID:     version.ID.String(),
			From:   string(version.Status),
			To:     "edited",
		}
	}

	options, err := buildOptionGraph(actor.TenantID, payload)
	if err != nil {
		return uuid.Nil, err
	}

	// Totals are recomputed from the submitted charges; the rollup also
	// re-checks linkage, tenant and currency consistency on the built graph.
	for i := range options {
		total, err := rollup.Rollup(toRollupOption(options[i]))
		if err != nil {
			return uuid.Nil, err
		}
		options[i].TotalAmount = total.OptionTotal
	}

	err = s.repo.WithTx(ctx, func(ctx context.Context, repo Repository) error {
		if err := repo.LockQuote(ctx, actor.TenantID, payload.QuoteID); err != nil {
			return fmt.Errorf("lock quote: %w", err)
		}
		header := Quote{
			ID:           payload.QuoteID,
			TenantID:     actor.TenantID,
			AccountRef:   payload.Header.AccountRef,
			Currency:     payload.Header.Currency,
			Incoterm:     payload.Header.Incoterm,
			ServiceLevel: payload.Header.ServiceLevel,
			Origin:       payload.Header.Origin,
			Destination:  payload.Header.Destination,
		}
		if err := repo.UpdateQuoteHeader(ctx, header); err != nil {
			return fmt.Errorf("update header: %w", err)
		}
		if err := repo.ReplaceItems(ctx, payload.QuoteID, actor.TenantID, buildItems(actor.TenantID, payload)); err != nil {
			return fmt.Errorf("replace items: %w", err)
		}
		if err := repo.ReplaceCargo(ctx, payload.QuoteID, buildCargo(payload)); err != nil {
			return fmt.Errorf("replace cargo: %w", err)
		}
		if err := repo.DeleteVersionGraph(ctx, payload.VersionID); err != nil {
			return fmt.Errorf("delete version graph: %w", err)
		}
		for _, option := range options {
			if err := repo.InsertOption(ctx, option); err != nil {
				return fmt.Errorf("insert option: %w", err)
			}
			for _, leg := range option.Legs {
				if err := repo.InsertLeg(ctx, leg); err != nil {
					return fmt.Errorf("insert leg: %w", err)
				}
				for _, charge := range leg.Charges {
					if err := repo.InsertCharge(ctx, charge); err != nil {
						return fmt.Errorf("insert charge: %w", err)
					}
				}
			}
			for _, charge := range option.DirectCharges {
				if err := repo.InsertCharge(ctx, charge); err != nil {
					return fmt.Errorf("insert option charge: %w", err)
				}
			}
		}
		return nil
	})
	if err != nil {
		return uuid.Nil, err
	}

	return payload.QuoteID, nil
}

// CreateVersion appends a new draft version, optionally cloning the option
// graph of a prior version. Prior versions are never mutated.
func (s *Service) CreateVersion(ctx context.Context, actor shared.Actor, quoteID uuid.UUID, req CreateVersionRequest) (*QuotationVersion, error) {
	var source *QuotationVersion
	if req.CloneFromVersionID != uuid.Nil {
		var err error
		source, err = s.repo.GetVersion(ctx, actor.TenantID, req.CloneFromVersionID)
		if err != nil {
			return nil, fmt.Errorf("get source version: %w", err)
		}
		if source.QuoteID != quoteID {
			return nil, fmt.Errorf("quoting: source version belongs to another quote: %w", shared.ErrValidation)
		}
	}

	versionID := uuid.New()
	err := s.repo.WithTx(ctx, func(ctx context.Context, repo Repository) error {
		if err := repo.LockQuote(ctx, actor.TenantID, quoteID); err != nil {
			return fmt.Errorf("lock quote: %w", err)
		}
		versionNo, err := repo.NextVersionNo(ctx, quoteID)
		if err != nil {
			return fmt.Errorf("next version number: %w", err)
		}
		version := QuotationVersion{
			ID:         versionID,
			QuoteID:    quoteID,
			VersionNo:  versionNo,
			Status:     VersionStatusDraft,
			ValidUntil: req.ValidUntil,
			CreatedBy:  actor.UserID,
		}
		if err := repo.InsertVersion(ctx, version); err != nil {
			return fmt.Errorf("insert version: %w", err)
		}
		if source != nil {
			if err := insertClonedGraph(ctx, repo, versionID, source.Options); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.auditRecord(ctx, actor, "quote_version.create", "quotation_version", versionID.String(), nil)
	return s.repo.GetVersion(ctx, actor.TenantID, versionID)
}

// Transition moves a version through its lifecycle, rejecting illegal steps
// with a state conflict carrying the current state.
func (s *Service) Transition(ctx context.Context, actor shared.Actor, versionID uuid.UUID, to VersionStatus, reason string) (*QuotationVersion, error) {
	version, err := s.repo.GetVersion(ctx, actor.TenantID, versionID)
	if err != nil {
		return nil, fmt.Errorf("get version: %w", err)
	}
	if err := CheckTransition(versionID, version.Status, to); err != nil {
		return nil, err
	}

	var reasonPtr *string
	if reason != "" {
		reasonPtr = &reason
	}
	if err := s.repo.UpdateVersionStatus(ctx, versionID, to, actor.UserID, reasonPtr); err != nil {
		return nil, fmt.Errorf("update version status: %w", err)
	}

	s.auditRecord(ctx, actor, "quote_version."+string(to), "quotation_version", versionID.String(),
		map[string]any{"from": string(version.Status), "reason": reason})
	return s.repo.GetVersion(ctx, actor.TenantID, versionID)
}

// RecordCustomerSelection marks one option as the customer's final choice,
// clearing any previous selection in the same write, and accepts the
// version.
func (s *Service) RecordCustomerSelection(ctx context.Context, actor shared.Actor, quoteID uuid.UUID, req SelectionRequest) error {
	version, err := s.repo.GetVersion(ctx, actor.TenantID, req.VersionID)
	if err != nil {
		return fmt.Errorf("get version: %w", err)
	}
	if version.QuoteID != quoteID {
		return fmt.Errorf("quoting: version %s does not belong to quote %s: %w",
			req.VersionID, quoteID, shared.ErrValidation)
	}
	var found bool
	for _, option := range version.Options {
		if option.ID == req.OptionID {
			found = true
			break
		}
	}
	if !found {
		return fmt.Errorf("quoting: option %s not part of version %s: %w",
			req.OptionID, req.VersionID, shared.ErrValidation)
	}
	if err := CheckTransition(req.VersionID, version.Status, VersionStatusAccepted); err != nil {
		return err
	}

	reason := req.Reason
	err = s.repo.WithTx(ctx, func(ctx context.Context, repo Repository) error {
		if err := repo.ClearSelection(ctx, req.VersionID); err != nil {
			return fmt.Errorf("clear selection: %w", err)
		}
		if err := repo.SetSelectedOption(ctx, req.VersionID, req.OptionID); err != nil {
			return fmt.Errorf("set selected option: %w", err)
		}
		if err := repo.UpdateVersionStatus(ctx, req.VersionID, VersionStatusAccepted, actor.UserID, &reason); err != nil {
			return fmt.Errorf("accept version: %w", err)
		}
		if err := repo.UpdateQuoteStatus(ctx, actor.TenantID, quoteID, QuoteStatusOpen); err != nil {
			return fmt.Errorf("update quote status: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.auditRecord(ctx, actor, "quote.selection", "quote_option", req.OptionID.String(),
		map[string]any{"version_id": req.VersionID.String(), "reason": req.Reason})
	return nil
}

// ExpireOverdueVersions sweeps sent versions whose validity window has
// elapsed and marks them expired. Returns the number of versions expired.
func (s *Service) ExpireOverdueVersions(ctx context.Context, now time.Time, limit int) (int, error) {
	versions, err := s.repo.ListVersionsPastValidity(ctx, now, limit)
	if err != nil {
		return 0, fmt.Errorf("list overdue versions: %w", err)
	}

	var expired atomic.Int64
	reason := "validity window elapsed"
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for _, version := range versions {
		version := version
		g.Go(func() error {
			if err := CheckTransition(version.ID, version.Status, VersionStatusExpired); err != nil {
				// Raced with a concurrent transition; skip it.
				return nil
			}
			if err := s.repo.UpdateVersionStatus(ctx, version.ID, VersionStatusExpired, uuid.Nil, &reason); err != nil {
				return fmt.Errorf("expire version %s: %w", version.ID, err)
			}
			expired.Add(1)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return int(expired.Load()), err
	}
	return int(expired.Load()), nil
}

// RefreshTotals recomputes every option total under a version and persists
// the result. The rollup itself stays pure; this is the explicit write.
func (s *Service) RefreshTotals(ctx context.Context, tenantID, versionID uuid.UUID) error {
	version, err := s.repo.GetVersion(ctx, tenantID, versionID)
	if err != nil {
		return fmt.Errorf("get version: %w", err)
	}
	for _, option := range version.Options {
		total, err := rollup.Rollup(toRollupOption(option))
		if err != nil {
			return err
		}
		if total.OptionTotal.Equal(option.TotalAmount) {
			continue
		}
		if err := s.repo.PersistOptionTotal(ctx, option.ID, total.OptionTotal); err != nil {
			return fmt.Errorf("persist option total: %w", err)
		}
	}
	return nil
}

// VerifyTotals cross-checks stored option totals against recomputed ones.
func (s *Service) VerifyTotals(ctx context.Context, tenantID, versionID uuid.UUID) error {
	version, err := s.repo.GetVersion(ctx, tenantID, versionID)
	if err != nil {
		return fmt.Errorf("get version: %w", err)
	}
	for _, option := range version.Options {
		ro := toRollupOption(option)
		ro.StoredTotal = option.TotalAmount
		if err := rollup.Verify(ro); err != nil {
			return err
		}
	}
	return nil
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

// buildOptionGraph materialises payload options into entities, assigning ids
// and validating structural invariants before anything is written.
func buildOptionGraph(tenantID uuid.UUID, payload SaveQuotePayload) ([]Option, error) {
	options := make([]Option, 0, len(payload.Options))
	for oi, op := range payload.Options {
		if !shared.ValidCurrency(op.Currency) {
			return nil, fmt.Errorf("quoting: option %d currency %q: %w", oi, op.Currency, shared.ErrValidation)
		}
		optionID := uuid.New()
		option := Option{
			ID:          optionID,
			VersionID:   payload.VersionID,
			TenantID:    tenantID,
			CarrierName: op.CarrierName,
			Recommended: op.Recommended,
			RankScore:   op.RankScore,
			Currency:    op.Currency,
			TransitDays: op.TransitDays,
		}

		seen := make(map[int]bool, len(op.Legs))
		for li, lp := range op.Legs {
			sortOrder := lp.SortOrder
			if sortOrder == 0 {
				sortOrder = li + 1
			}
			if seen[sortOrder] {
				return nil, fmt.Errorf("quoting: option %d has duplicate leg sort order %d: %w",
					oi, sortOrder, shared.ErrValidation)
			}
			seen[sortOrder] = true

			legID := uuid.New()
			leg := Leg{
				ID:          legID,
				OptionID:    optionID,
				TenantID:    tenantID,
				SortOrder:   sortOrder,
				Mode:        lp.Mode,
				Origin:      lp.Origin,
				Destination: lp.Destination,
				TransitDays: lp.TransitDays,
			}
			for _, cp := range lp.BuyCharges {
				leg.Charges = append(leg.Charges, buildCharge(tenantID, &legID, nil, SideBuy, cp))
			}
			for _, cp := range lp.SellCharges {
				leg.Charges = append(leg.Charges, buildCharge(tenantID, &legID, nil, SideSell, cp))
			}
			option.Legs = append(option.Legs, leg)
		}
		// Sort orders must be contiguous from 1.
		for want := 1; want <= len(op.Legs); want++ {
			if !seen[want] {
				return nil, fmt.Errorf("quoting: option %d leg sort orders not contiguous, missing %d: %w",
					oi, want, shared.ErrValidation)
			}
		}

		for _, cp := range op.BuyCharges {
			option.DirectCharges = append(option.DirectCharges, buildCharge(tenantID, nil, &optionID, SideBuy, cp))
		}
		for _, cp := range op.SellCharges {
			option.DirectCharges = append(option.DirectCharges, buildCharge(tenantID, nil, &optionID, SideSell, cp))
		}
		options = append(options, option)
	}
	return options, nil
}

func buildCharge(tenantID uuid.UUID, legID, optionID *uuid.UUID, side ChargeSide, cp ChargePayload) Charge {
	amount := cp.Amount
	if amount.IsZero() && !cp.Quantity.IsZero() {
		amount = cp.Quantity.Mul(cp.UnitRate)
	}
	return Charge{
		ID:          uuid.New(),
		TenantID:    tenantID,
		LegID:       legID,
		OptionID:    optionID,
		CategoryRef: cp.CategoryRef,
		Side:        side,
		BasisRef:    cp.BasisRef,
		Quantity:    cp.Quantity,
		UnitRate:    cp.UnitRate,
		Amount:      amount,
		Currency:    cp.Currency,
	}
}

func buildItems(tenantID uuid.UUID, payload SaveQuotePayload) []QuoteItem {
	items := make([]QuoteItem, 0, len(payload.Items))
	for _, ip := range payload.Items {
		items = append(items, QuoteItem{
			ID:            uuid.New(),
			QuoteID:       payload.QuoteID,
			TenantID:      tenantID,
			Description:   ip.Description,
			Quantity:      ip.Quantity,
			DeclaredValue: ip.DeclaredValue,
			Currency:      ip.Currency,
			HTSCode:       ip.HTSCode,
		})
	}
	return items
}

func buildCargo(payload SaveQuotePayload) []CargoConfig {
	cargo := make([]CargoConfig, 0, len(payload.Cargo))
	for _, cp := range payload.Cargo {
		cargo = append(cargo, CargoConfig{
			ID:            uuid.New(),
			QuoteID:       payload.QuoteID,
			ContainerType: cp.ContainerType,
			Quantity:      cp.Quantity,
			WeightKg:      cp.WeightKg,
			VolumeM3:      cp.VolumeM3,
		})
	}
	return cargo
}

func insertClonedGraph(ctx context.Context, repo Repository, versionID uuid.UUID, options []Option) error {
	for _, option := range options {
		optionID := uuid.New()
		clone := option
		clone.ID = optionID
		clone.VersionID = versionID
		clone.IsSelected = false
		clone.Legs = nil
		clone.DirectCharges = nil
		if err := repo.InsertOption(ctx, clone); err != nil {
			return fmt.Errorf("clone option: %w", err)
		}
		for _, leg := range option.Legs {
			legID := uuid.New()
			legClone := leg
			legClone.ID = legID
			legClone.OptionID = optionID
			legClone.Charges = nil
			if err := repo.InsertLeg(ctx, legClone); err != nil {
				return fmt.Errorf("clone leg: %w", err)
			}
			for _, charge := range leg.Charges {
				chargeClone := charge
				chargeClone.ID = uuid.New()
				chargeClone.LegID = &legID
				if err := repo.InsertCharge(ctx, chargeClone); err != nil {
					return fmt.Errorf("clone charge: %w", err)
				}
			}
		}
		for _, charge := range option.DirectCharges {
			chargeClone := charge
			chargeClone.ID = uuid.New()
			chargeClone.OptionID = &optionID
			if err := repo.InsertCharge(ctx, chargeClone); err != nil {
				return fmt.Errorf("clone option charge: %w", err)
			}
		}
	}
	return nil
}

func toRollupOption(option Option) rollup.Option {
	ro := rollup.Option{
		ID:       option.ID,
		TenantID: option.TenantID,
		Currency: option.Currency,
	}
	for _, leg := range option.Legs {
		rl := rollup.Leg{ID: leg.ID, SortOrder: leg.SortOrder}
		for _, charge := range leg.Charges {
			rl.Charges = append(rl.Charges, toRollupCharge(charge))
		}
		ro.Legs = append(ro.Legs, rl)
	}
	for _, charge := range option.DirectCharges {
		ro.DirectCharges = append(ro.DirectCharges, toRollupCharge(charge))
	}
	return ro
}

func toRollupCharge(charge Charge) rollup.Charge {
	return rollup.Charge{
		ID:       charge.ID,
		TenantID: charge.TenantID,
		LegID:    charge.LegID,
		Amount:   charge.Amount,
		Currency: charge.Currency,
	}
}
