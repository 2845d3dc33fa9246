package pricing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/lanecrest/lanecrest/internal/shared"
)

// Repository persists margin rules.
type Repository interface {
	ListByTenant(ctx context.Context, tenantID uuid.UUID) ([]MarginRule, error)
	Get(ctx context.Context, tenantID, id uuid.UUID) (*MarginRule, error)
	Create(ctx context.Context, rule MarginRule) error
	Update(ctx context.Context, rule MarginRule) error
	Delete(ctx context.Context, tenantID, id uuid.UUID) error
}

type repository struct {
	pool *pgxpool.Pool
}

// NewRepository returns a Postgres-backed Repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{pool: pool}
}

// ListByTenant returns the tenant's rules ordered by priority descending.
// Equal priorities keep insertion order so resolution is stable.
func (r *repository) ListByTenant(ctx context.Context, tenantID uuid.UUID) ([]MarginRule, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, tenant_id, name, conditions, adjustment, value, priority, created_at, updated_at
		FROM margin_rules
		WHERE tenant_id = $1
		ORDER BY priority DESC, created_at ASC, id ASC
	`, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rules []MarginRule
	for rows.Next() {
		rule, err := scanRule(rows)
		if err != nil {
			return nil, err
		}
		rules = append(rules, rule)
	}
	return rules, rows.Err()
}

func (r *repository) Get(ctx context.Context, tenantID, id uuid.UUID) (*MarginRule, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, tenant_id, name, conditions, adjustment, value, priority, created_at, updated_at
		FROM margin_rules
		WHERE tenant_id = $1 AND id = $2
	`, tenantID, id)
	rule, err := scanRule(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return &rule, nil
}

func (r *repository) Create(ctx context.Context, rule MarginRule) error {
	conditions, err := json.Marshal(rule.Conditions)
	if err != nil {
		return fmt.Errorf("encode conditions: %w", err)
	}
	_, err = r.pool.Exec(ctx, `
		INSERT INTO margin_rules (id, tenant_id, name, conditions, adjustment, value, priority, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NOW(), NOW())
	`, rule.ID, rule.TenantID, rule.Name, conditions, rule.Adjustment, rule.Value, rule.Priority)
	return err
}

func (r *repository) Update(ctx context.Context, rule MarginRule) error {
	conditions, err := json.Marshal(rule.Conditions)
	if err != nil {
		return fmt.Errorf("encode conditions: %w", err)
	}
	tag, err := r.pool.Exec(ctx, `
		UPDATE margin_rules
		SET name = $3, conditions = $4, adjustment = $5, value = $6, priority = $7, updated_at = NOW()
		WHERE tenant_id = $1 AND id = $2
	`, rule.TenantID, rule.ID, rule.Name, conditions, rule.Adjustment, rule.Value, rule.Priority)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

func (r *repository) Delete(ctx context.Context, tenantID, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM margin_rules WHERE tenant_id = $1 AND id = $2`, tenantID, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

func scanRule(row pgx.Row) (MarginRule, error) {
	var (
		rule       MarginRule
		conditions []byte
	)
	err := row.Scan(&rule.ID, &rule.TenantID, &rule.Name, &conditions, &rule.Adjustment,
		&rule.Value, &rule.Priority, &rule.CreatedAt, &rule.UpdatedAt)
	if err != nil {
		return MarginRule{}, err
	}
	if len(conditions) > 0 {
		if err := json.Unmarshal(conditions, &rule.Conditions); err != nil {
			return MarginRule{}, fmt.Errorf("decode conditions: %w", err)
		}
	}
	return rule, nil
}
