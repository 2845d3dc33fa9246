package quoting

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/lanecrest/lanecrest/internal/platform/db"
	"github.com/lanecrest/lanecrest/internal/shared"
)

// Repository persists the quoting graph.
type Repository interface {
	WithTx(ctx context.Context, fn func(context.Context, Repository) error) error

	GetQuote(ctx context.Context, tenantID, id uuid.UUID) (*Quote, error)
	GetQuoteByNumber(ctx context.Context, tenantID uuid.UUID, number string) (*Quote, error)
	List(ctx context.Context, req ListQuotesRequest) ([]QuoteSummary, int, error)
	InsertQuote(ctx context.Context, q Quote) error
	UpdateQuoteHeader(ctx context.Context, q Quote) error
	UpdateQuoteStatus(ctx context.Context, tenantID, id uuid.UUID, status QuoteStatus) error
	// LockQuote takes the per-quote row lock that serializes version
	// creation and graph replacement.
	LockQuote(ctx context.Context, tenantID, id uuid.UUID) error

	NextVersionNo(ctx context.Context, quoteID uuid.UUID) (int, error)
	InsertVersion(ctx context.Context, v QuotationVersion) error
	GetVersion(ctx context.Context, tenantID, versionID uuid.UUID) (*QuotationVersion, error)
	UpdateVersionStatus(ctx context.Context, versionID uuid.UUID, status VersionStatus, userID uuid.UUID, reason *string) error
	ListVersionsPastValidity(ctx context.Context, now time.Time, limit int) ([]QuotationVersion, error)

	ReplaceItems(ctx context.Context, quoteID, tenantID uuid.UUID, items []QuoteItem) error
	ReplaceCargo(ctx context.Context, quoteID uuid.UUID, cargo []CargoConfig) error
	DeleteVersionGraph(ctx context.Context, versionID uuid.UUID) error
	InsertOption(ctx context.Context, o Option) error
	InsertLeg(ctx context.Context, l Leg) error
	InsertCharge(ctx context.Context, c Charge) error

	ClearSelection(ctx context.Context, versionID uuid.UUID) error
	SetSelectedOption(ctx context.Context, versionID, optionID uuid.UUID) error
	PersistOptionTotal(ctx context.Context, optionID uuid.UUID, total decimal.Decimal) error
}

type dbtx interface {
	Exec(context.Context, string, ...interface{}) (pgconn.CommandTag, error)
	Query(context.Context, string, ...interface{}) (pgx.Rows, error)
	QueryRow(context.Context, string, ...interface{}) pgx.Row
}

type repository struct {
	db   dbtx
	pool *pgxpool.Pool
}

// NewRepository returns a Postgres-backed Repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{db: pool, pool: pool}
}

func (r *repository) WithTx(ctx context.Context, fn func(context.Context, Repository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &repository{db: tx, pool: r.pool})
	})
}

func (r *repository) GetQuote(ctx context.Context, tenantID, id uuid.UUID) (*Quote, error) {
	var q Quote
	err := r.db.QueryRow(ctx, `
		SELECT id, tenant_id, quote_number, status, account_ref, currency,
		       COALESCE(incoterm, ''), COALESCE(service_level, ''),
		       COALESCE(origin, ''), COALESCE(destination, ''),
		       created_by, created_at, updated_at
		FROM quotes
		WHERE tenant_id = $1 AND id = $2
	`, tenantID, id).Scan(&q.ID, &q.TenantID, &q.QuoteNumber, &q.Status, &q.AccountRef,
		&q.Currency, &q.Incoterm, &q.ServiceLevel, &q.Origin, &q.Destination,
		&q.CreatedBy, &q.CreatedAt, &q.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}

	if q.Items, err = r.quoteItems(ctx, id); err != nil {
		return nil, err
	}
	if q.Cargo, err = r.cargoConfigs(ctx, id); err != nil {
		return nil, err
	}
	if q.Versions, err = r.versionHeaders(ctx, id); err != nil {
		return nil, err
	}
	return &q, nil
}

func (r *repository) GetQuoteByNumber(ctx context.Context, tenantID uuid.UUID, number string) (*Quote, error) {
	var id uuid.UUID
	err := r.db.QueryRow(ctx,
		`SELECT id FROM quotes WHERE tenant_id = $1 AND quote_number = $2`,
		tenantID, number).Scan(&id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return r.GetQuote(ctx, tenantID, id)
}

func (r *repository) List(ctx context.Context, req ListQuotesRequest) ([]QuoteSummary, int, error) {
	conditions := []string{"q.tenant_id = $1"}
	args := []interface{}{req.TenantID}
	argPos := 2

	if req.Status != nil {
		conditions = append(conditions, fmt.Sprintf("q.status = $%d", argPos))
		args = append(args, *req.Status)
		argPos++
	}
	if req.DateFrom != nil {
		conditions = append(conditions, fmt.Sprintf("q.created_at >= $%d", argPos))
		args = append(args, *req.DateFrom)
		argPos++
	}
	if req.DateTo != nil {
		conditions = append(conditions, fmt.Sprintf("q.created_at <= $%d", argPos))
		args = append(args, *req.DateTo)
		argPos++
	}

	whereClause := "WHERE " + conditions[0]
	for i := 1; i < len(conditions); i++ {
		whereClause += " AND " + conditions[i]
	}

	var total int
	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM quotes q %s", whereClause)
	if err := r.db.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := fmt.Sprintf(`
		SELECT q.id, q.quote_number, q.status, q.account_ref, q.currency,
		       (SELECT COUNT(*) FROM quotation_versions v WHERE v.quote_id = q.id),
		       q.created_at
		FROM quotes q
		%s
		ORDER BY q.created_at DESC, q.id DESC
		LIMIT $%d OFFSET $%d
	`, whereClause, argPos, argPos+1)
	args = append(args, req.Limit, req.Offset)

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var quotes []QuoteSummary
	for rows.Next() {
		var s QuoteSummary
		if err := rows.Scan(&s.ID, &s.QuoteNumber, &s.Status, &s.AccountRef,
			&s.Currency, &s.VersionCount, &s.CreatedAt); err != nil {
			return nil, 0, err
		}
		quotes = append(quotes, s)
	}
	return quotes, total, rows.Err()
}

func (r *repository) InsertQuote(ctx context.Context, q Quote) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO quotes (id, tenant_id, quote_number, status, account_ref, currency,
		                    incoterm, service_level, origin, destination, created_by,
		                    created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, NOW(), NOW())
	`, q.ID, q.TenantID, q.QuoteNumber, q.Status, q.AccountRef, q.Currency,
		q.Incoterm, q.ServiceLevel, q.Origin, q.Destination, q.CreatedBy)
	return err
}

func (r *repository) UpdateQuoteHeader(ctx context.Context, q Quote) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE quotes
		SET account_ref = $3, currency = $4, incoterm = $5, service_level = $6,
		    origin = $7, destination = $8, updated_at = NOW()
		WHERE tenant_id = $1 AND id = $2
	`, q.TenantID, q.ID, q.AccountRef, q.Currency, q.Incoterm, q.ServiceLevel,
		q.Origin, q.Destination)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

func (r *repository) UpdateQuoteStatus(ctx context.Context, tenantID, id uuid.UUID, status QuoteStatus) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE quotes SET status = $3, updated_at = NOW() WHERE tenant_id = $1 AND id = $2`,
		tenantID, id, status)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

func (r *repository) LockQuote(ctx context.Context, tenantID, id uuid.UUID) error {
	var locked uuid.UUID
	err := r.db.QueryRow(ctx,
		`SELECT id FROM quotes WHERE tenant_id = $1 AND id = $2 FOR UPDATE`,
		tenantID, id).Scan(&locked)
	if errors.Is(err, pgx.ErrNoRows) {
		return shared.ErrNotFound
	}
	return err
}

func (r *repository) NextVersionNo(ctx context.Context, quoteID uuid.UUID) (int, error) {
	var next int
	err := r.db.QueryRow(ctx,
		`SELECT COALESCE(MAX(version_no), 0) + 1 FROM quotation_versions WHERE quote_id = $1`,
		quoteID).Scan(&next)
	return next, err
}

func (r *repository) InsertVersion(ctx context.Context, v QuotationVersion) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO quotation_versions (id, quote_id, version_no, status, valid_until, created_by, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW())
	`, v.ID, v.QuoteID, v.VersionNo, v.Status, v.ValidUntil, v.CreatedBy)
	return err
}

func (r *repository) GetVersion(ctx context.Context, tenantID, versionID uuid.UUID) (*QuotationVersion, error) {
	var v QuotationVersion
	err := r.db.QueryRow(ctx, `
		SELECT v.id, v.quote_id, v.version_no, v.status, v.valid_until, v.created_by, v.created_at
		FROM quotation_versions v
		JOIN quotes q ON q.id = v.quote_id
		WHERE q.tenant_id = $1 AND v.id = $2
	`, tenantID, versionID).Scan(&v.ID, &v.QuoteID, &v.VersionNo, &v.Status,
		&v.ValidUntil, &v.CreatedBy, &v.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	if v.Options, err = r.versionOptions(ctx, versionID); err != nil {
		return nil, err
	}
	return &v, nil
}

func (r *repository) UpdateVersionStatus(ctx context.Context, versionID uuid.UUID, status VersionStatus, userID uuid.UUID, reason *string) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE quotation_versions
		SET status = $2, status_changed_by = $3, status_changed_at = NOW(), status_reason = $4
		WHERE id = $1
	`, versionID, status, userID, reason)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

func (r *repository) ListVersionsPastValidity(ctx context.Context, now time.Time, limit int) ([]QuotationVersion, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, quote_id, version_no, status, valid_until, created_by, created_at
		FROM quotation_versions
		WHERE status = $1 AND valid_until IS NOT NULL AND valid_until < $2
		ORDER BY valid_until ASC
		LIMIT $3
	`, VersionStatusSent, now, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var versions []QuotationVersion
	for rows.Next() {
		var v QuotationVersion
		if err := rows.Scan(&v.ID, &v.QuoteID, &v.VersionNo, &v.Status,
			&v.ValidUntil, &v.CreatedBy, &v.CreatedAt); err != nil {
			return nil, err
		}
		versions = append(versions, v)
	}
	return versions, rows.Err()
}

func (r *repository) ReplaceItems(ctx context.Context, quoteID, tenantID uuid.UUID, items []QuoteItem) error {
	if _, err := r.db.Exec(ctx, `DELETE FROM quote_items WHERE quote_id = $1`, quoteID); err != nil {
		return err
	}
	for _, item := range items {
		_, err := r.db.Exec(ctx, `
			INSERT INTO quote_items (id, quote_id, tenant_id, description, quantity, declared_value, currency, hts_code)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		`, item.ID, quoteID, tenantID, item.Description, item.Quantity,
			item.DeclaredValue, item.Currency, item.HTSCode)
		if err != nil {
			return fmt.Errorf("insert quote item: %w", err)
		}
	}
	return nil
}

func (r *repository) ReplaceCargo(ctx context.Context, quoteID uuid.UUID, cargo []CargoConfig) error {
	if _, err := r.db.Exec(ctx, `DELETE FROM cargo_configurations WHERE quote_id = $1`, quoteID); err != nil {
		return err
	}
	for _, c := range cargo {
		_, err := r.db.Exec(ctx, `
			INSERT INTO cargo_configurations (id, quote_id, container_type, quantity, weight_kg, volume_m3)
			VALUES ($1, $2, $3, $4, $5, $6)
		`, c.ID, quoteID, c.ContainerType, c.Quantity, c.WeightKg, c.VolumeM3)
		if err != nil {
			return fmt.Errorf("insert cargo configuration: %w", err)
		}
	}
	return nil
}

// DeleteVersionGraph removes the option/leg/charge rows under a version.
// Charges cascade through their parents' foreign keys; explicit deletes keep
// the ordering obvious.
func (r *repository) DeleteVersionGraph(ctx context.Context, versionID uuid.UUID) error {
	statements := []string{
		`DELETE FROM charges WHERE leg_id IN (SELECT l.id FROM legs l JOIN quote_options o ON o.id = l.option_id WHERE o.version_id = $1)`,
		`DELETE FROM charges WHERE quote_option_id IN (SELECT id FROM quote_options WHERE version_id = $1)`,
		`DELETE FROM legs WHERE option_id IN (SELECT id FROM quote_options WHERE version_id = $1)`,
		`DELETE FROM quote_options WHERE version_id = $1`,
	}
	for _, stmt := range statements {
		if _, err := r.db.Exec(ctx, stmt, versionID); err != nil {
			return err
		}
	}
	return nil
}

func (r *repository) InsertOption(ctx context.Context, o Option) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO quote_options (id, version_id, tenant_id, carrier_name, is_selected,
		                           recommended, rank_score, total_amount, currency, transit_days)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, o.ID, o.VersionID, o.TenantID, o.CarrierName, o.IsSelected,
		o.Recommended, o.RankScore, o.TotalAmount, o.Currency, o.TransitDays)
	return err
}

func (r *repository) InsertLeg(ctx context.Context, l Leg) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO legs (id, option_id, tenant_id, sort_order, mode, origin, destination, transit_days)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, l.ID, l.OptionID, l.TenantID, l.SortOrder, l.Mode, l.Origin, l.Destination, l.TransitDays)
	return err
}

func (r *repository) InsertCharge(ctx context.Context, c Charge) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO charges (id, tenant_id, leg_id, quote_option_id, category_ref, side,
		                     basis_ref, quantity, unit_rate, amount, currency)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`, c.ID, c.TenantID, c.LegID, c.OptionID, c.CategoryRef, c.Side,
		c.BasisRef, c.Quantity, c.UnitRate, c.Amount, c.Currency)
	return err
}

func (r *repository) ClearSelection(ctx context.Context, versionID uuid.UUID) error {
	_, err := r.db.Exec(ctx,
		`UPDATE quote_options SET is_selected = FALSE WHERE version_id = $1`, versionID)
	return err
}

func (r *repository) SetSelectedOption(ctx context.Context, versionID, optionID uuid.UUID) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE quote_options SET is_selected = TRUE WHERE version_id = $1 AND id = $2`,
		versionID, optionID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

func (r *repository) PersistOptionTotal(ctx context.Context, optionID uuid.UUID, total decimal.Decimal) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE quote_options SET total_amount = $2 WHERE id = $1`, optionID, total)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

func (r *repository) quoteItems(ctx context.Context, quoteID uuid.UUID) ([]QuoteItem, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, quote_id, tenant_id, description, quantity, declared_value, currency, COALESCE(hts_code, '')
		FROM quote_items WHERE quote_id = $1 ORDER BY created_at ASC, id ASC
	`, quoteID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []QuoteItem
	for rows.Next() {
		var item QuoteItem
		if err := rows.Scan(&item.ID, &item.QuoteID, &item.TenantID, &item.Description,
			&item.Quantity, &item.DeclaredValue, &item.Currency, &item.HTSCode); err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

func (r *repository) cargoConfigs(ctx context.Context, quoteID uuid.UUID) ([]CargoConfig, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, quote_id, container_type, quantity, weight_kg, volume_m3
		FROM cargo_configurations WHERE quote_id = $1 ORDER BY id ASC
	`, quoteID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var cargo []CargoConfig
	for rows.Next() {
		var c CargoConfig
		if err := rows.Scan(&c.ID, &c.QuoteID, &c.ContainerType, &c.Quantity, &c.WeightKg, &c.VolumeM3); err != nil {
			return nil, err
		}
		cargo = append(cargo, c)
	}
	return cargo, rows.Err()
}

func (r *repository) versionHeaders(ctx context.Context, quoteID uuid.UUID) ([]QuotationVersion, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, quote_id, version_no, status, valid_until, created_by, created_at
		FROM quotation_versions WHERE quote_id = $1 ORDER BY version_no ASC
	`, quoteID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var versions []QuotationVersion
	for rows.Next() {
		var v QuotationVersion
		if err := rows.Scan(&v.ID, &v.QuoteID, &v.VersionNo, &v.Status,
			&v.ValidUntil, &v.CreatedBy, &v.CreatedAt); err != nil {
			return nil, err
		}
		versions = append(versions, v)
	}
	return versions, rows.Err()
}

func (r *repository) versionOptions(ctx context.Context, versionID uuid.UUID) ([]Option, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, version_id, tenant_id, carrier_name, is_selected, recommended,
		       rank_score, total_amount, currency, transit_days
		FROM quote_options WHERE version_id = $1 ORDER BY rank_score DESC, id ASC
	`, versionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var options []Option
	for rows.Next() {
		var o Option
		if err := rows.Scan(&o.ID, &o.VersionID, &o.TenantID, &o.CarrierName,
			&o.IsSelected, &o.Recommended, &o.RankScore, &o.TotalAmount,
			&o.Currency, &o.TransitDays); err != nil {
			return nil, err
		}
		options = append(options, o)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range options {
		legs, err := r.optionLegs(ctx, options[i].ID)
		if err != nil {
			return nil, err
		}
		options[i].Legs = legs

		direct, err := r.charges(ctx, `quote_option_id = $1`, options[i].ID)
		if err != nil {
			return nil, err
		}
		options[i].DirectCharges = direct
	}
	return options, nil
}

func (r *repository) optionLegs(ctx context.Context, optionID uuid.UUID) ([]Leg, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, option_id, tenant_id, sort_order, mode, origin, destination, transit_days
		FROM legs WHERE option_id = $1 ORDER BY sort_order ASC
	`, optionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var legs []Leg
	for rows.Next() {
		var l Leg
		if err := rows.Scan(&l.ID, &l.OptionID, &l.TenantID, &l.SortOrder,
			&l.Mode, &l.Origin, &l.Destination, &l.TransitDays); err != nil {
			return nil, err
		}
		legs = append(legs, l)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range legs {
		charges, err := r.charges(ctx, `leg_id = $1`, legs[i].ID)
		if err != nil {
			return nil, err
		}
		legs[i].Charges = charges
	}
	return legs, nil
}

func (r *repository) charges(ctx context.Context, where string, arg interface{}) ([]Charge, error) {
	rows, err := r.db.Query(ctx, fmt.Sprintf(`
		SELECT id, tenant_id, leg_id, quote_option_id, category_ref, side,
		       COALESCE(basis_ref, ''), quantity, unit_rate, amount, currency
		FROM charges WHERE %s ORDER BY id ASC
	`, where), arg)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var charges []Charge
	for rows.Next() {
		var c Charge
		if err := rows.Scan(&c.ID, &c.TenantID, &c.LegID, &c.OptionID, &c.CategoryRef,
			&c.Side, &c.BasisRef, &c.Quantity, &c.UnitRate, &c.Amount, &c.Currency); err != nil {
			return nil, err
		}
		charges = append(charges, c)
	}
	return charges, rows.Err()
}
