package pricing

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/lanecrest/lanecrest/internal/shared"
)

// Service exposes rule administration and price resolution.
type Service struct {
	repo  Repository
	audit *shared.AuditLogger
}

// NewService constructs the pricing service.
func NewService(repo Repository, audit *shared.AuditLogger) *Service {
	return &Service{repo: repo, audit: audit}
}

// Resolve returns the tenant's rules matching the context, in application
// order (priority descending, ties by insertion order).
func (s *Service) Resolve(ctx context.Context, tenantID uuid.UUID, pricingContext map[string]string) ([]MarginRule, error) {
	rules, err := s.repo.ListByTenant(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("list margin rules: %w", err)
	}
	return Match(rules, pricingContext), nil
}

// Price resolves matching rules and compounds them onto cost.
func (s *Service) Price(ctx context.Context, tenantID uuid.UUID, pricingContext map[string]string, cost decimal.Decimal) (PricingResult, error) {
	matched, err := s.Resolve(ctx, tenantID, pricingContext)
	if err != nil {
		return PricingResult{}, err
	}
	return ApplyPricing(cost, matched), nil
}

// Create validates and stores a new rule.
func (s *Service) Create(ctx context.Context, rule MarginRule, actorID uuid.UUID) (*MarginRule, error) {
	if rule.ID == uuid.Nil {
		rule.ID = uuid.New()
	}
	if err := ValidateRule(rule); err != nil {
		return nil, err
	}
	if err := s.repo.Create(ctx, rule); err != nil {
		return nil, fmt.Errorf("create margin rule: %w", err)
	}
	s.auditRecord(ctx, rule, actorID, "margin_rule.create")
	return s.repo.Get(ctx, rule.TenantID, rule.ID)
}

// Update validates and replaces an existing rule.
func (s *Service) Update(ctx context.Context, rule MarginRule, actorID uuid.UUID) (*MarginRule, error) {
	if err := ValidateRule(rule); err != nil {
		return nil, err
	}
	if err := s.repo.Update(ctx, rule); err != nil {
		return nil, fmt.Errorf("update margin rule: %w", err)
	}
	s.auditRecord(ctx, rule, actorID, "margin_rule.update")
	return s.repo.Get(ctx, rule.TenantID, rule.ID)
}

// Delete removes a rule.
func (s *Service) Delete(ctx context.Context, tenantID, id, actorID uuid.UUID) error {
	if err := s.repo.Delete(ctx, tenantID, id); err != nil {
		return fmt.Errorf("delete margin rule: %w", err)
	}
	s.auditRecord(ctx, MarginRule{ID: id, TenantID: tenantID}, actorID, "margin_rule.delete")
	return nil
}

// List returns every rule for the tenant in resolution order.
func (s *Service) List(ctx context.Context, tenantID uuid.UUID) ([]MarginRule, error) {
	return s.repo.ListByTenant(ctx, tenantID)
}

func (s *Service) auditRecord(ctx context.Context, rule MarginRule, actorID uuid.UUID, action string) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		TenantID: rule.TenantID.String(),
		ActorID:  actorID.String(),
		Action:   action,
		Entity:   "margin_rule",
		EntityID: rule.ID.String(),
	})
}
