package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/shopspring/decimal"
	_ "modernc.org/sqlite"

	"github.com/hyperengineering/invoicesync/internal/types"
)

// SQLiteStore is the SQLite-backed invoice store.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLiteStore instance.
// It initializes the database with WAL mode, applies pragmas, and runs migrations.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	// Ensure parent directory exists
	if dir := filepath.Dir(dbPath); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := enablePragmas(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable pragmas: %w", err)
	}

	if err := RunMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// enablePragmas sets SQLite pragmas for optimal performance and safety.
func enablePragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
		"PRAGMA synchronous=NORMAL",
	}

	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("execute %s: %w", pragma, err)
		}
	}

	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// FindInvoiceID returns the id of the header with the given transaction
// number, or ErrNotFound when none exists.
func (s *SQLiteStore) FindInvoiceID(ctx context.Context, trxNumber int) (int64, error) {
	var id int64
	err := s.db.QueryRowContext(ctx, "SELECT id FROM invoices WHERE trx_number = ?", trxNumber).Scan(&id)
	if err == sql.ErrNoRows {
		return 0, ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("find invoice %d: %w", trxNumber, err)
	}
	return id, nil
}

// InsertInvoice creates a new invoice header and returns its id.
func (s *SQLiteStore) InsertInvoice(ctx context.Context, inv *types.Invoice) (int64, error) {
	var shipDate any
	if inv.ShipDateActual != nil {
		shipDate = inv.ShipDateActual.Format(time.RFC3339)
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO invoices (
			bill_to_party_id, bill_to_customer_name, bill_to_site_name, bill_to_location_id,
			bill_to_address1, bill_to_address2, bill_to_address3, bill_to_address4,
			bill_to_city, bill_to_state, bill_to_postal_code, bill_to_country, bill_to_customer_number,
			ship_to_party_id, ship_to_party_site_id, ship_to_customer_name, ship_to_site_name, ship_to_location_id,
			ship_to_address1, ship_to_address2, ship_to_address3, ship_to_address4,
			ship_to_city, ship_to_state, ship_to_postal_code, ship_to_country,
			trx_number, trx_date, trx_type, term_name, ship_date_actual, sales_order,
			primary_sales_rep, ship_via, purchase_order_number, internal_notes,
			tax_amount, freight_amount, total_amount, discount_taken, amount_applied, amount_due_remaining, total_net,
			status, due_date, period_from, period_to, created_date
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		inv.BillToPartyID, inv.BillToCustomerName, inv.BillToSiteName, inv.BillToLocationID,
		inv.BillToAddress1, inv.BillToAddress2, inv.BillToAddress3, inv.BillToAddress4,
		inv.BillToCity, inv.BillToState, inv.BillToPostalCode, inv.BillToCountry, inv.BillToCustomerNumber,
		inv.ShipToPartyID, inv.ShipToPartySiteID, inv.ShipToCustomerName, inv.ShipToSiteName, inv.ShipToLocationID,
		inv.ShipToAddress1, inv.ShipToAddress2, inv.ShipToAddress3, inv.ShipToAddress4,
		inv.ShipToCity, inv.ShipToState, inv.ShipToPostalCode, inv.ShipToCountry,
		inv.TrxNumber, inv.TrxDate.Format(time.RFC3339), inv.TrxType, inv.TermName, shipDate, inv.SalesOrder,
		inv.PrimarySalesRep, inv.ShipVia, inv.PurchaseOrderNumber, inv.InternalNotes,
		money(inv.TaxAmount), money(inv.FreightAmount), money(inv.TotalAmount),
		money(inv.DiscountTaken), money(inv.AmountApplied), money(inv.AmountDueRemaining), money(inv.TotalNet),
		inv.Status, inv.DueDate.Format(time.RFC3339), inv.PeriodFrom.Format(time.RFC3339), inv.PeriodTo.Format(time.RFC3339),
		inv.CreatedDate.Format(time.RFC3339),
	)
	if err != nil {
		return 0, fmt.Errorf("insert invoice %d: %w", inv.TrxNumber, err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("insert invoice %d: last insert id: %w", inv.TrxNumber, err)
	}
	return id, nil
}

// UpdateInvoice refreshes the mutable fields of an existing header.
func (s *SQLiteStore) UpdateInvoice(ctx context.Context, id int64, upd types.InvoiceUpdate) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE invoices SET
			status = ?,
			tax_amount = ?,
			freight_amount = ?,
			total_amount = ?,
			discount_taken = ?,
			amount_applied = ?,
			amount_due_remaining = ?
		WHERE id = ?
	`,
		upd.Status,
		money(upd.TaxAmount), money(upd.FreightAmount), money(upd.TotalAmount),
		money(upd.DiscountTaken), money(upd.AmountApplied), money(upd.AmountDueRemaining),
		id,
	)
	if err != nil {
		return fmt.Errorf("update invoice %d: %w", id, err)
	}
	return nil
}

// UpsertLine inserts a line item or updates it in place when the
// (invoice_id, line_number) pair already exists.
func (s *SQLiteStore) UpsertLine(ctx context.Context, line types.InvoiceLine) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO invoice_lines (
			invoice_id, line_number, item_number, packing_code, description,
			unit_of_measure, quantity, unit_price, extended_amount
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(invoice_id, line_number) DO UPDATE SET
			item_number = excluded.item_number,
			description = excluded.description,
			unit_of_measure = excluded.unit_of_measure,
			quantity = excluded.quantity,
			unit_price = excluded.unit_price,
			extended_amount = excluded.extended_amount
	`,
		line.InvoiceID, line.LineNumber, line.ItemNumber, line.PackingCode, line.Description,
		line.UnitOfMeasure, money(line.Quantity), money(line.UnitPrice), money(line.ExtendedAmount),
	)
	if err != nil {
		return fmt.Errorf("upsert line %d of invoice %d: %w", line.LineNumber, line.InvoiceID, err)
	}
	return nil
}

// LoadWatermark returns the last-run timestamp for a job, or
// ErrWatermarkNotFound when the job row is not provisioned.
func (s *SQLiteStore) LoadWatermark(ctx context.Context, jobName string) (time.Time, error) {
	var raw string
	err := s.db.QueryRowContext(ctx, "SELECT last_run FROM sync_watermarks WHERE job_name = ?", jobName).Scan(&raw)
	if err == sql.ErrNoRows {
		return time.Time{}, fmt.Errorf("%w: %s", ErrWatermarkNotFound, jobName)
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("load watermark %s: %w", jobName, err)
	}

	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("load watermark %s: parse %q: %w", jobName, raw, err)
	}
	return t, nil
}

// SaveWatermark updates the last-run timestamp for a job and returns the
// number of rows affected. It never creates the job row.
func (s *SQLiteStore) SaveWatermark(ctx context.Context, jobName string, t time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		"UPDATE sync_watermarks SET last_run = ? WHERE job_name = ?",
		t.UTC().Format(time.RFC3339), jobName)
	if err != nil {
		return 0, fmt.Errorf("save watermark %s: %w", jobName, err)
	}
	return res.RowsAffected()
}

// RecordRun appends a sync run to the run history.
func (s *SQLiteStore) RecordRun(ctx context.Context, run types.SyncRun) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sync_runs (id, job_name, started_at, finished_at, rows_processed, status, error)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`,
		run.ID, run.JobName,
		run.StartedAt.UTC().Format(time.RFC3339), run.FinishedAt.UTC().Format(time.RFC3339),
		run.RowsProcessed, run.Status, run.Error,
	)
	if err != nil {
		return fmt.Errorf("record run %s: %w", run.ID, err)
	}
	return nil
}

// LastRun returns the most recent sync run for a job, or nil when the job
// has never run.
func (s *SQLiteStore) LastRun(ctx context.Context, jobName string) (*types.SyncRun, error) {
	var run types.SyncRun
	var startedAt, finishedAt string
	err := s.db.QueryRowContext(ctx, `
		SELECT id, job_name, started_at, finished_at, rows_processed, status, error
		FROM sync_runs WHERE job_name = ?
		ORDER BY started_at DESC LIMIT 1
	`, jobName).Scan(&run.ID, &run.JobName, &startedAt, &finishedAt, &run.RowsProcessed, &run.Status, &run.Error)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("last run %s: %w", jobName, err)
	}

	if t, err := time.Parse(time.RFC3339, startedAt); err == nil {
		run.StartedAt = t
	}
	if t, err := time.Parse(time.RFC3339, finishedAt); err == nil {
		run.FinishedAt = t
	}
	return &run, nil
}

// GetInvoice returns the full header for a transaction number.
// Used by tests and operational tooling; the sync path only needs the id.
func (s *SQLiteStore) GetInvoice(ctx context.Context, trxNumber int) (*types.Invoice, error) {
	var inv types.Invoice
	var trxDate, dueDate, periodFrom, periodTo, createdDate string
	var shipDate sql.NullString
	var tax, freight, total, discount, applied, remaining, net string

	err := s.db.QueryRowContext(ctx, `
		SELECT id,
			bill_to_party_id, bill_to_customer_name, bill_to_site_name, bill_to_location_id,
			bill_to_address1, bill_to_address2, bill_to_address3, bill_to_address4,
			bill_to_city, bill_to_state, bill_to_postal_code, bill_to_country, bill_to_customer_number,
			ship_to_party_id, ship_to_party_site_id, ship_to_customer_name, ship_to_site_name, ship_to_location_id,
			ship_to_address1, ship_to_address2, ship_to_address3, ship_to_address4,
			ship_to_city, ship_to_state, ship_to_postal_code, ship_to_country,
			trx_number, trx_date, trx_type, term_name, ship_date_actual, sales_order,
			primary_sales_rep, ship_via, purchase_order_number, internal_notes,
			tax_amount, freight_amount, total_amount, discount_taken, amount_applied, amount_due_remaining, total_net,
			status, due_date, period_from, period_to, created_date
		FROM invoices WHERE trx_number = ?
	`, trxNumber).Scan(
		&inv.ID,
		&inv.BillToPartyID, &inv.BillToCustomerName, &inv.BillToSiteName, &inv.BillToLocationID,
		&inv.BillToAddress1, &inv.BillToAddress2, &inv.BillToAddress3, &inv.BillToAddress4,
		&inv.BillToCity, &inv.BillToState, &inv.BillToPostalCode, &inv.BillToCountry, &inv.BillToCustomerNumber,
		&inv.ShipToPartyID, &inv.ShipToPartySiteID, &inv.ShipToCustomerName, &inv.ShipToSiteName, &inv.ShipToLocationID,
		&inv.ShipToAddress1, &inv.ShipToAddress2, &inv.ShipToAddress3, &inv.ShipToAddress4,
		&inv.ShipToCity, &inv.ShipToState, &inv.ShipToPostalCode, &inv.ShipToCountry,
		&inv.TrxNumber, &trxDate, &inv.TrxType, &inv.TermName, &shipDate, &inv.SalesOrder,
		&inv.PrimarySalesRep, &inv.ShipVia, &inv.PurchaseOrderNumber, &inv.InternalNotes,
		&tax, &freight, &total, &discount, &applied, &remaining, &net,
		&inv.Status, &dueDate, &periodFrom, &periodTo, &createdDate,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get invoice %d: %w", trxNumber, err)
	}

	inv.TrxDate = parseStoredTime(trxDate)
	inv.DueDate = parseStoredTime(dueDate)
	inv.PeriodFrom = parseStoredTime(periodFrom)
	inv.PeriodTo = parseStoredTime(periodTo)
	inv.CreatedDate = parseStoredTime(createdDate)
	if shipDate.Valid {
		t := parseStoredTime(shipDate.String)
		inv.ShipDateActual = &t
	}

	inv.TaxAmount = parseStoredMoney(tax)
	inv.FreightAmount = parseStoredMoney(freight)
	inv.TotalAmount = parseStoredMoney(total)
	inv.DiscountTaken = parseStoredMoney(discount)
	inv.AmountApplied = parseStoredMoney(applied)
	inv.AmountDueRemaining = parseStoredMoney(remaining)
	inv.TotalNet = parseStoredMoney(net)

	return &inv, nil
}

// GetLines returns all line items of an invoice ordered by line number.
func (s *SQLiteStore) GetLines(ctx context.Context, invoiceID int64) ([]types.InvoiceLine, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT invoice_id, line_number, item_number, packing_code, description,
			unit_of_measure, quantity, unit_price, extended_amount
		FROM invoice_lines WHERE invoice_id = ?
		ORDER BY line_number
	`, invoiceID)
	if err != nil {
		return nil, fmt.Errorf("get lines of invoice %d: %w", invoiceID, err)
	}
	defer rows.Close()

	var lines []types.InvoiceLine
	for rows.Next() {
		var line types.InvoiceLine
		var qty, price, ext string
		if err := rows.Scan(
			&line.InvoiceID, &line.LineNumber, &line.ItemNumber, &line.PackingCode,
			&line.Description, &line.UnitOfMeasure, &qty, &price, &ext,
		); err != nil {
			return nil, fmt.Errorf("get lines of invoice %d: %w", invoiceID, err)
		}
		line.Quantity = parseStoredMoney(qty)
		line.UnitPrice = parseStoredMoney(price)
		line.ExtendedAmount = parseStoredMoney(ext)
		lines = append(lines, line)
	}
	return lines, rows.Err()
}

// money renders a decimal as the fixed two-fractional-digit string stored in
// monetary columns.
func money(d decimal.Decimal) string {
	return d.StringFixed(2)
}

func parseStoredMoney(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

func parseStoredTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
