package sequence

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository persists per-tenant sequence counters and answers the advisory
// uniqueness check against assigned quote numbers.
type Repository interface {
	// NextSeq atomically increments and returns the counter for
	// (tenant, scope, period). Safe under concurrent callers.
	NextSeq(ctx context.Context, tenantID uuid.UUID, scope, period string) (int64, error)
	// PeekSeq reads the counter without advancing it. Zero when no
	// allocation has happened yet in the period.
	PeekSeq(ctx context.Context, tenantID uuid.UUID, scope, period string) (int64, error)
	// IsUnique reports whether no quote for the tenant carries the number.
	IsUnique(ctx context.Context, tenantID uuid.UUID, number string) (bool, error)
	// ScanMax parses the trailing digits of existing numbers sharing the
	// prefix and returns the highest value found. Not concurrency-safe;
	// fallback path only.
	ScanMax(ctx context.Context, tenantID uuid.UUID, prefix string) (int64, error)
}

type repository struct {
	pool *pgxpool.Pool
}

// NewRepository returns a Postgres-backed Repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{pool: pool}
}

func (r *repository) NextSeq(ctx context.Context, tenantID uuid.UUID, scope, period string) (int64, error) {
	var seq int64
	err := r.pool.QueryRow(ctx, `
		INSERT INTO document_sequences (tenant_id, scope, period, seq)
		VALUES ($1, $2, $3, 1)
		ON CONFLICT (tenant_id, scope, period)
		DO UPDATE SET seq = document_sequences.seq + 1
		RETURNING seq
	`, tenantID, scope, period).Scan(&seq)
	if err != nil {
		return 0, err
	}
	return seq, nil
}

func (r *repository) PeekSeq(ctx context.Context, tenantID uuid.UUID, scope, period string) (int64, error) {
	var seq int64
	err := r.pool.QueryRow(ctx,
		`SELECT seq FROM document_sequences WHERE tenant_id = $1 AND scope = $2 AND period = $3`,
		tenantID, scope, period).Scan(&seq)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return seq, nil
}

func (r *repository) IsUnique(ctx context.Context, tenantID uuid.UUID, number string) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM quotes WHERE tenant_id = $1 AND quote_number = $2)`,
		tenantID, number).Scan(&exists)
	if err != nil {
		return false, err
	}
	return !exists, nil
}

func (r *repository) ScanMax(ctx context.Context, tenantID uuid.UUID, prefix string) (int64, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT quote_number FROM quotes WHERE tenant_id = $1 AND quote_number LIKE $2 || '%'`,
		tenantID, prefix)
	if err != nil {
		return 0, err
	}
	defer rows.Close()

	var max int64
	for rows.Next() {
		var number string
		if err := rows.Scan(&number); err != nil {
			return 0, err
		}
		if seq, ok := trailingSeq(strings.TrimPrefix(number, prefix)); ok && seq > max {
			max = seq
		}
	}
	return max, rows.Err()
}

// trailingSeq extracts the leading run of digits from the remainder of a
// number after its prefix, ignoring any suffix.
func trailingSeq(rest string) (int64, bool) {
	end := 0
	for end < len(rest) && rest[end] >= '0' && rest[end] <= '9' {
		end++
	}
	if end == 0 {
		return 0, false
	}
	seq, err := strconv.ParseInt(rest[:end], 10, 64)
	if err != nil {
		return 0, false
	}
	return seq, true
}

// undefinedTable is the PostgreSQL error code raised when the counter table
// is absent, which switches the allocator onto the scan fallback.
const undefinedTable = "42P01"

func isUndefinedTable(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == undefinedTable
}
