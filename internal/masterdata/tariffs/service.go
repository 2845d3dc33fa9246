package tariffs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/lanecrest/lanecrest/internal/platform/cache"
	"github.com/lanecrest/lanecrest/internal/shared"
)

// Service serves rate lookups through a TTL cache and invalidates on write.
type Service struct {
	repo   Repository
	cache  *cache.TTLCache
	audit  *shared.AuditLogger
	logger *slog.Logger
}

// NewService constructs the tariff service.
func NewService(repo Repository, ttlCache *cache.TTLCache, audit *shared.AuditLogger, logger *slog.Logger) *Service {
	return &Service{repo: repo, cache: ttlCache, audit: audit, logger: logger}
}

// Rate returns the fractional duty rate for the HTS code. Unknown codes
// yield a zero rate; unclassified goods simply owe no duty.
func (s *Service) Rate(ctx context.Context, tenantID uuid.UUID, htsCode string) (decimal.Decimal, error) {
	if htsCode == "" {
		return decimal.Zero, nil
	}
	var tariff Tariff
	err := s.cache.FetchJSON(ctx, &tariff, func(ctx context.Context) (interface{}, error) {
		t, err := s.repo.Get(ctx, tenantID, htsCode)
		if err != nil {
			if errors.Is(err, shared.ErrNotFound) {
				// Cache the miss as a zero-rate entry.
				return &Tariff{TenantID: tenantID, HTSCode: htsCode, Rate: decimal.Zero}, nil
			}
			return nil, err
		}
		return t, nil
	}, tenantID.String(), htsCode)
	if err != nil {
		return decimal.Zero, fmt.Errorf("tariff rate lookup: %w", err)
	}
	return tariff.Rate, nil
}

// Get returns the stored tariff, uncached.
func (s *Service) Get(ctx context.Context, tenantID uuid.UUID, htsCode string) (*Tariff, error) {
	return s.repo.Get(ctx, tenantID, htsCode)
}

// List returns all tariffs for the tenant.
func (s *Service) List(ctx context.Context, tenantID uuid.UUID) ([]Tariff, error) {
	return s.repo.List(ctx, tenantID)
}

// Upsert writes the rate and drops the cached entry so the next lookup
// reloads it.
func (s *Service) Upsert(ctx context.Context, actor shared.Actor, req UpsertTariffRequest) (*Tariff, error) {
	if req.Rate.Sign() < 0 || req.Rate.GreaterThan(decimal.NewFromInt(1)) {
		return nil, fmt.Errorf("tariffs: rate %s outside [0, 1]: %w", req.Rate, shared.ErrValidation)
	}

	tariff := Tariff{
		ID:          uuid.New(),
		TenantID:    actor.TenantID,
		HTSCode:     req.HTSCode,
		Rate:        req.Rate,
		Description: req.Description,
		UpdatedBy:   actor.UserID,
	}
	if err := s.repo.Upsert(ctx, tariff); err != nil {
		return nil, fmt.Errorf("upsert tariff: %w", err)
	}
	if err := s.cache.Invalidate(ctx, actor.TenantID.String(), req.HTSCode); err != nil {
		s.logger.Warn("tariff cache invalidation failed",
			slog.String("hts_code", req.HTSCode), slog.Any("error", err))
	}

	if s.audit != nil {
		if err := s.audit.Record(ctx, shared.AuditLog{
			TenantID: actor.TenantID.String(),
			ActorID:  actor.UserID.String(),
			Action:   "tariff.upsert",
			Entity:   "tariff",
			EntityID: req.HTSCode,
			Meta:     map[string]any{"rate": req.Rate.String()},
		}); err != nil {
			s.logger.Warn("audit record failed", slog.Any("error", err))
		}
	}
	return s.repo.Get(ctx, actor.TenantID, req.HTSCode)
}

// Delete removes the tariff and its cached entry.
func (s *Service) Delete(ctx context.Context, actor shared.Actor, htsCode string) error {
	if err := s.repo.Delete(ctx, actor.TenantID, htsCode); err != nil {
		return err
	}
	if err := s.cache.Invalidate(ctx, actor.TenantID.String(), htsCode); err != nil {
		s.logger.Warn("tariff cache invalidation failed",
			slog.String("hts_code", htsCode), slog.Any("error", err))
	}
	return nil
}
