package conversion

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/lanecrest/lanecrest/internal/platform/db"
	"github.com/lanecrest/lanecrest/internal/shared"
)

// Repository persists shipments and invoices.
type Repository interface {
	WithTx(ctx context.Context, fn func(context.Context, Repository) error) error

	InsertShipment(ctx context.Context, s Shipment) error
	InsertShipmentItem(ctx context.Context, it ShipmentItem) error
	InsertShipmentCharge(ctx context.Context, c ShipmentCharge) error
	GetShipment(ctx context.Context, tenantID, id uuid.UUID) (*Shipment, error)
	// MarkQuoteConverted flips the source quote's status and reports a
	// conflict when the quote was already converted, making the
	// conversion idempotent at the datastore.
	MarkQuoteConverted(ctx context.Context, tenantID, quoteID uuid.UUID) error

	InsertInvoice(ctx context.Context, inv Invoice) error
	InsertInvoiceLine(ctx context.Context, line InvoiceLine) error
	GetInvoice(ctx context.Context, tenantID, id uuid.UUID) (*Invoice, error)
	InvoiceExistsForShipment(ctx context.Context, shipmentID uuid.UUID) (bool, error)
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

func (r *repository) InsertShipment(ctx context.Context, s Shipment) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO shipments (id, tenant_id, quote_id, quote_option_id, shipment_number,
		                       status, account_ref, currency, incoterm, service_level,
		                       origin, destination, mode, ocean_move, created_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`,
		s.ID, s.TenantID, s.QuoteID, s.OptionID, s.ShipmentNumber,
		s.Status, s.AccountRef, s.Currency, s.Incoterm, s.ServiceLevel,
		s.Origin, s.Destination, s.Mode, s.OceanMove, s.CreatedBy)
	return err
}

func (r *repository) InsertShipmentItem(ctx context.Context, it ShipmentItem) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO shipment_items (id, shipment_id, tenant_id, description, quantity,
		                            declared_value, currency, hts_code)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		it.ID, it.ShipmentID, it.TenantID, it.Description, it.Quantity,
		it.DeclaredValue, it.Currency, it.HTSCode)
	return err
}

func (r *repository) InsertShipmentCharge(ctx context.Context, c ShipmentCharge) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO shipment_charges (id, shipment_id, tenant_id, category_ref, amount, currency)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		c.ID, c.ShipmentID, c.TenantID, c.CategoryRef, c.Amount, c.Currency)
	return err
}

func (r *repository) GetShipment(ctx context.Context, tenantID, id uuid.UUID) (*Shipment, error) {
	var s Shipment
	err := r.db.QueryRow(ctx, `
		SELECT id, tenant_id, quote_id, quote_option_id, shipment_number, status,
		       account_ref, currency, COALESCE(incoterm, ''), COALESCE(service_level, ''),
		       COALESCE(origin, ''), COALESCE(destination, ''), COALESCE(mode, ''),
		       ocean_move, created_by, created_at
		FROM shipments
		WHERE tenant_id = $1 AND id = $2`, tenantID, id).Scan(
		&s.ID, &s.TenantID, &s.QuoteID, &s.OptionID, &s.ShipmentNumber, &s.Status,
		&s.AccountRef, &s.Currency, &s.Incoterm, &s.ServiceLevel,
		&s.Origin, &s.Destination, &s.Mode, &s.OceanMove, &s.CreatedBy, &s.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shared.ErrNotFound
		}
		return nil, fmt.Errorf("get shipment: %w", err)
	}

	rows, err := r.db.Query(ctx, `
		SELECT id, shipment_id, tenant_id, description, quantity, declared_value,
		       currency, COALESCE(hts_code, '')
		FROM shipment_items
		WHERE shipment_id = $1
		ORDER BY description, id`, id)
	if err != nil {
		return nil, fmt.Errorf("load shipment items: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var it ShipmentItem
		if err := rows.Scan(&it.ID, &it.ShipmentID, &it.TenantID, &it.Description,
			&it.Quantity, &it.DeclaredValue, &it.Currency, &it.HTSCode); err != nil {
			return nil, fmt.Errorf("scan shipment item: %w", err)
		}
		s.Items = append(s.Items, it)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	chargeRows, err := r.db.Query(ctx, `
		SELECT id, shipment_id, tenant_id, category_ref, amount, currency
		FROM shipment_charges
		WHERE shipment_id = $1
		ORDER BY category_ref, id`, id)
	if err != nil {
		return nil, fmt.Errorf("load shipment charges: %w", err)
	}
	defer chargeRows.Close()
	for chargeRows.Next() {
		var c ShipmentCharge
		if err := chargeRows.Scan(&c.ID, &c.ShipmentID, &c.TenantID,
			&c.CategoryRef, &c.Amount, &c.Currency); err != nil {
			return nil, fmt.Errorf("scan shipment charge: %w", err)
		}
		s.Charges = append(s.Charges, c)
	}
	if err := chargeRows.Err(); err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *repository) MarkQuoteConverted(ctx context.Context, tenantID, quoteID uuid.UUID) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE quotes
		SET status = 'converted', updated_at = NOW()
		WHERE tenant_id = $1 AND id = $2 AND status <> 'converted'`, tenantID, quoteID)
	if err != nil {
		return fmt.Errorf("mark quote converted: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("conversion: quote %s already converted: %w", quoteID, shared.ErrConflict)
	}
	return nil
}

func (r *repository) InsertInvoice(ctx context.Context, inv Invoice) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO invoices (id, tenant_id, shipment_id, invoice_number, status,
		                      currency, total_amount, created_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		inv.ID, inv.TenantID, inv.ShipmentID, inv.InvoiceNumber, inv.Status,
		inv.Currency, inv.TotalAmount, inv.CreatedBy)
	return err
}

func (r *repository) InsertInvoiceLine(ctx context.Context, line InvoiceLine) error {
	var meta []byte
	if line.FeeMeta != nil {
		var err error
		meta, err = json.Marshal(line.FeeMeta)
		if err != nil {
			return fmt.Errorf("marshal fee meta: %w", err)
		}
	}
	_, err := r.db.Exec(ctx, `
		INSERT INTO invoice_lines (id, invoice_id, tenant_id, description, amount, currency, fee_meta)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		line.ID, line.InvoiceID, line.TenantID, line.Description, line.Amount, line.Currency, meta)
	return err
}

func (r *repository) GetInvoice(ctx context.Context, tenantID, id uuid.UUID) (*Invoice, error) {
	var inv Invoice
	err := r.db.QueryRow(ctx, `
		SELECT id, tenant_id, shipment_id, invoice_number, status, currency,
		       total_amount, created_by, created_at
		FROM invoices
		WHERE tenant_id = $1 AND id = $2`, tenantID, id).Scan(
		&inv.ID, &inv.TenantID, &inv.ShipmentID, &inv.InvoiceNumber, &inv.Status,
		&inv.Currency, &inv.TotalAmount, &inv.CreatedBy, &inv.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shared.ErrNotFound
		}
		return nil, fmt.Errorf("get invoice: %w", err)
	}

	rows, err := r.db.Query(ctx, `
		SELECT id, invoice_id, tenant_id, description, amount, currency, fee_meta
		FROM invoice_lines
		WHERE invoice_id = $1
		ORDER BY description, id`, id)
	if err != nil {
		return nil, fmt.Errorf("load invoice lines: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var line InvoiceLine
		var meta []byte
		if err := rows.Scan(&line.ID, &line.InvoiceID, &line.TenantID,
			&line.Description, &line.Amount, &line.Currency, &meta); err != nil {
			return nil, fmt.Errorf("scan invoice line: %w", err)
		}
		if len(meta) > 0 {
			var breakdown FeeBreakdown
			if err := json.Unmarshal(meta, &breakdown); err != nil {
				return nil, fmt.Errorf("unmarshal fee meta: %w", err)
			}
			line.FeeMeta = &breakdown
		}
		inv.Lines = append(inv.Lines, line)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return &inv, nil
}

func (r *repository) InvoiceExistsForShipment(ctx context.Context, shipmentID uuid.UUID) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM invoices WHERE shipment_id = $1)`, shipmentID).Scan(&exists)
	return exists, err
}
