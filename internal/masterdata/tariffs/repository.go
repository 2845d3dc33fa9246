package tariffs

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/lanecrest/lanecrest/internal/shared"
)

// Repository persists tariff rates.
type Repository interface {
	Get(ctx context.Context, tenantID uuid.UUID, htsCode string) (*Tariff, error)
	List(ctx context.Context, tenantID uuid.UUID) ([]Tariff, error)
	Upsert(ctx context.Context, t Tariff) error
	Delete(ctx context.Context, tenantID uuid.UUID, htsCode string) error
}

type repository struct {
	pool *pgxpool.Pool
}

// NewRepository returns a Postgres-backed Repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{pool: pool}
}

func (r *repository) Get(ctx context.Context, tenantID uuid.UUID, htsCode string) (*Tariff, error) {
	var t Tariff
	err := r.pool.QueryRow(ctx, `
		SELECT id, tenant_id, hts_code, rate, COALESCE(description, ''), updated_by, updated_at
		FROM tariffs
		WHERE tenant_id = $1 AND hts_code = $2`, tenantID, htsCode).Scan(
		&t.ID, &t.TenantID, &t.HTSCode, &t.Rate, &t.Description, &t.UpdatedBy, &t.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shared.ErrNotFound
		}
		return nil, fmt.Errorf("get tariff: %w", err)
	}
	return &t, nil
}

func (r *repository) List(ctx context.Context, tenantID uuid.UUID) ([]Tariff, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, tenant_id, hts_code, rate, COALESCE(description, ''), updated_by, updated_at
		FROM tariffs
		WHERE tenant_id = $1
		ORDER BY hts_code`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("list tariffs: %w", err)
	}
	defer rows.Close()

	var out []Tariff
	for rows.Next() {
		var t Tariff
		if err := rows.Scan(&t.ID, &t.TenantID, &t.HTSCode, &t.Rate,
			&t.Description, &t.UpdatedBy, &t.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan tariff: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (r *repository) Upsert(ctx context.Context, t Tariff) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO tariffs (id, tenant_id, hts_code, rate, description, updated_by, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW())
		ON CONFLICT (tenant_id, hts_code)
		DO UPDATE SET rate = EXCLUDED.rate, description = EXCLUDED.description,
		              updated_by = EXCLUDED.updated_by, updated_at = NOW()`,
		t.ID, t.TenantID, t.HTSCode, t.Rate, t.Description, t.UpdatedBy)
	return err
}

func (r *repository) Delete(ctx context.Context, tenantID uuid.UUID, htsCode string) error {
	tag, err := r.pool.Exec(ctx,
		`DELETE FROM tariffs WHERE tenant_id = $1 AND hts_code = $2`, tenantID, htsCode)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}
