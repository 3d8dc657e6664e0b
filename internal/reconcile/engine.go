// Package reconcile implements the reconciliation engine: it turns one
// fetched extract into invoice header and line item writes, deciding per
// transaction group between creating a new header and refreshing an
// existing one.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hyperengineering/invoicesync/internal/source"
	"github.com/hyperengineering/invoicesync/internal/store"
	"github.com/hyperengineering/invoicesync/internal/types"
)

// Gateway defines the persistence operations driven by the engine.
// Implemented by store.SQLiteStore.
type Gateway interface {
	FindInvoiceID(ctx context.Context, trxNumber int) (int64, error)
	InsertInvoice(ctx context.Context, inv *types.Invoice) (int64, error)
	UpdateInvoice(ctx context.Context, id int64, upd types.InvoiceUpdate) error
	UpsertLine(ctx context.Context, line types.InvoiceLine) error
}

// Result reports the outcome of a successful reconciliation pass.
type Result struct {
	RowsProcessed int
}

// group is all surviving rows sharing one transaction number, in input order.
type group struct {
	trxNumber int
	rows      []source.Row
}

// Engine reconciles extract rows into the invoice store.
type Engine struct {
	gateway Gateway
}

// NewEngine creates an engine writing through the given gateway.
func NewEngine(gateway Gateway) *Engine {
	return &Engine{gateway: gateway}
}

// Reconcile processes one extract. Rows with a blank SALES_ORDER field are
// non-substantive and never start or extend a group. Remaining rows are
// grouped by transaction number regardless of input ordering, preserving
// first-appearance order of the groups.
//
// The first error aborts the whole pass: groups committed before the
// failure stay committed (there is no cross-group transaction), and the
// same window is re-processed idempotently on the next cycle.
//
// An empty extract is not an error; it reports success with zero rows so
// the watermark can advance past empty windows.
func (e *Engine) Reconcile(ctx context.Context, rows []source.Row, now time.Time) (Result, error) {
	if len(rows) == 0 {
		return Result{}, nil
	}

	groups, processed, err := groupRows(rows)
	if err != nil {
		return Result{}, err
	}

	for _, g := range groups {
		if err := e.reconcileGroup(ctx, g, now); err != nil {
			return Result{}, fmt.Errorf("transaction %d: %w", g.trxNumber, err)
		}
	}

	return Result{RowsProcessed: processed}, nil
}

// groupRows buffers surviving rows into per-transaction groups keyed by
// TRX_NUMBER. An explicit group-by rather than a contiguity scan: the
// extract is normally pre-ordered by transaction number, but correctness
// must not depend on that.
func groupRows(rows []source.Row) ([]*group, int, error) {
	var groups []*group
	index := make(map[int]*group)
	processed := 0

	for _, row := range rows {
		if row.Get(source.FieldSalesOrder) == "" {
			continue
		}

		trxNumber, err := row.Int(source.FieldTrxNumber)
		if err != nil {
			return nil, 0, err
		}

		g, ok := index[trxNumber]
		if !ok {
			g = &group{trxNumber: trxNumber}
			index[trxNumber] = g
			groups = append(groups, g)
		}
		g.rows = append(g.rows, row)
		processed++
	}

	return groups, processed, nil
}

// reconcileGroup applies the insert-vs-update decision for one transaction
// and upserts every line row under the resolved header id.
func (e *Engine) reconcileGroup(ctx context.Context, g *group, now time.Time) error {
	first := g.rows[0]

	invoiceID, err := e.gateway.FindInvoiceID(ctx, g.trxNumber)
	switch {
	case errors.Is(err, store.ErrNotFound):
		inv, err := headerFromRow(first, now)
		if err != nil {
			return err
		}
		invoiceID, err = e.gateway.InsertInvoice(ctx, inv)
		if err != nil {
			// No header id means no owner for the lines; the group is
			// abandoned untouched and retried next cycle.
			return err
		}
		slog.Debug("invoice created",
			"component", "reconcile",
			"trx_number", g.trxNumber,
			"invoice_id", invoiceID,
			"lines", len(g.rows),
		)
	case err != nil:
		return err
	default:
		upd, err := updateFromRow(first)
		if err != nil {
			return err
		}
		if err := e.gateway.UpdateInvoice(ctx, invoiceID, upd); err != nil {
			return err
		}
		slog.Debug("invoice refreshed",
			"component", "reconcile",
			"trx_number", g.trxNumber,
			"invoice_id", invoiceID,
			"lines", len(g.rows),
		)
	}

	for _, row := range g.rows {
		line, err := lineFromRow(row, invoiceID)
		if err != nil {
			return err
		}
		if err := e.gateway.UpsertLine(ctx, line); err != nil {
			return err
		}
	}

	return nil
}

// headerFromRow builds a full invoice header from one extract row.
// Blank optional identifiers coerce to zero, blank text to empty strings.
func headerFromRow(row source.Row, now time.Time) (*types.Invoice, error) {
	inv := &types.Invoice{
		BillToCustomerName:   row.Get(source.FieldBillToCustomerName),
		BillToSiteName:       row.Get(source.FieldBillToSiteName),
		BillToAddress1:       row.Get(source.FieldBillToAddress1),
		BillToAddress2:       row.Get(source.FieldBillToAddress2),
		BillToAddress3:       row.Get(source.FieldBillToAddress3),
		BillToAddress4:       row.Get(source.FieldBillToAddress4),
		BillToCity:           row.Get(source.FieldBillToCity),
		BillToState:          row.Get(source.FieldBillToState),
		BillToPostalCode:     row.Get(source.FieldBillToPostalCode),
		BillToCountry:        row.Get(source.FieldBillToCountry),
		BillToCustomerNumber: row.Get(source.FieldBillToCustomerNumber),
		ShipToCustomerName:   row.Get(source.FieldShipToCustomerName),
		ShipToSiteName:       row.Get(source.FieldShipToSiteName),
		ShipToAddress1:       row.Get(source.FieldShipToAddress1),
		ShipToAddress2:       row.Get(source.FieldShipToAddress2),
		ShipToAddress3:       row.Get(source.FieldShipToAddress3),
		ShipToAddress4:       row.Get(source.FieldShipToAddress4),
		ShipToCity:           row.Get(source.FieldShipToCity),
		ShipToState:          row.Get(source.FieldShipToState),
		ShipToPostalCode:     row.Get(source.FieldShipToPostalCode),
		ShipToCountry:        row.Get(source.FieldShipToCountry),
		TrxType:              row.Get(source.FieldTrxType),
		TermName:             row.Get(source.FieldTermName),
		PrimarySalesRep:      row.Get(source.FieldPrimarySalesRep),
		ShipVia:              row.Get(source.FieldShipVia),
		PurchaseOrderNumber:  row.Get(source.FieldPurchaseOrderNumber),
		InternalNotes:        row.Get(source.FieldInternalNotes),
		Status:               row.Get(source.FieldStatus),
		CreatedDate:          now.UTC(),
	}

	var err error
	if inv.TrxNumber, err = row.Int(source.FieldTrxNumber); err != nil {
		return nil, err
	}
	if inv.SalesOrder, err = row.Int(source.FieldSalesOrder); err != nil {
		return nil, err
	}
	if inv.BillToPartyID, err = row.Int64(source.FieldBillToPartyID); err != nil {
		return nil, err
	}
	if inv.BillToLocationID, err = row.Int64(source.FieldBillToLocationID); err != nil {
		return nil, err
	}
	if inv.ShipToPartyID, err = row.Int64(source.FieldShipToPartyID); err != nil {
		return nil, err
	}
	if inv.ShipToPartySiteID, err = row.Int64(source.FieldShipToPartySiteID); err != nil {
		return nil, err
	}
	if inv.ShipToLocationID, err = row.Int64(source.FieldShipToLocationID); err != nil {
		return nil, err
	}

	if inv.TrxDate, err = row.Date(source.FieldTrxDate); err != nil {
		return nil, err
	}
	if inv.DueDate, err = row.Date(source.FieldDueDate); err != nil {
		return nil, err
	}
	if inv.PeriodFrom, err = row.Date(source.FieldPeriodFrom); err != nil {
		return nil, err
	}
	if inv.PeriodTo, err = row.Date(source.FieldPeriodTo); err != nil {
		return nil, err
	}
	if inv.ShipDateActual, err = row.DateOrNil(source.FieldShipDateActual); err != nil {
		return nil, err
	}

	if inv.TaxAmount, err = row.Decimal(source.FieldTaxAmount); err != nil {
		return nil, err
	}
	if inv.FreightAmount, err = row.Decimal(source.FieldFreightAmount); err != nil {
		return nil, err
	}
	if inv.TotalAmount, err = row.Decimal(source.FieldTotalAmount); err != nil {
		return nil, err
	}
	if inv.DiscountTaken, err = row.Decimal(source.FieldDiscountTaken); err != nil {
		return nil, err
	}
	if inv.AmountApplied, err = row.Decimal(source.FieldAmountApplied); err != nil {
		return nil, err
	}
	if inv.AmountDueRemaining, err = row.Decimal(source.FieldAmountDueRemaining); err != nil {
		return nil, err
	}
	if inv.TotalNet, err = row.Decimal(source.FieldLineAmount); err != nil {
		return nil, err
	}

	return inv, nil
}

// updateFromRow extracts the mutable header fields refreshed on re-delivery.
func updateFromRow(row source.Row) (types.InvoiceUpdate, error) {
	upd := types.InvoiceUpdate{
		Status: row.Get(source.FieldStatus),
	}

	var err error
	if upd.TaxAmount, err = row.Decimal(source.FieldTaxAmount); err != nil {
		return types.InvoiceUpdate{}, err
	}
	if upd.FreightAmount, err = row.Decimal(source.FieldFreightAmount); err != nil {
		return types.InvoiceUpdate{}, err
	}
	if upd.TotalAmount, err = row.Decimal(source.FieldTotalAmount); err != nil {
		return types.InvoiceUpdate{}, err
	}
	if upd.DiscountTaken, err = row.Decimal(source.FieldDiscountTaken); err != nil {
		return types.InvoiceUpdate{}, err
	}
	if upd.AmountApplied, err = row.Decimal(source.FieldAmountApplied); err != nil {
		return types.InvoiceUpdate{}, err
	}
	if upd.AmountDueRemaining, err = row.Decimal(source.FieldAmountDueRemaining); err != nil {
		return types.InvoiceUpdate{}, err
	}

	return upd, nil
}

// lineFromRow builds one line item owned by the given header.
func lineFromRow(row source.Row, invoiceID int64) (types.InvoiceLine, error) {
	line := types.InvoiceLine{
		InvoiceID:     invoiceID,
		ItemNumber:    row.Get(source.FieldItemNumber),
		PackingCode:   row.Get(source.FieldPackingCode),
		Description:   row.Get(source.FieldDescription),
		UnitOfMeasure: row.Get(source.FieldUnitOfMeasure),
	}

	var err error
	if line.LineNumber, err = row.Int(source.FieldLineNumber); err != nil {
		return types.InvoiceLine{}, err
	}
	if line.Quantity, err = row.Decimal(source.FieldQuantity); err != nil {
		return types.InvoiceLine{}, err
	}
	if line.UnitPrice, err = row.Decimal(source.FieldUnitPrice); err != nil {
		return types.InvoiceLine{}, err
	}
	if line.ExtendedAmount, err = row.Decimal(source.FieldExtendedAmount); err != nil {
		return types.InvoiceLine{}, err
	}

	return line, nil
}
