package reconcile

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/hyperengineering/invoicesync/internal/source"
	"github.com/hyperengineering/invoicesync/internal/store"
	"github.com/hyperengineering/invoicesync/internal/types"
)

func newTestStore(t *testing.T) *store.SQLiteStore {
	t.Helper()
	s, err := store.NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// extractRow builds a row with every required field populated. Overrides
// replace or blank out individual fields.
func extractRow(trxNumber, salesOrder, lineNumber string, overrides map[string]string) source.Row {
	row := source.Row{
		source.FieldTrxNumber:          trxNumber,
		source.FieldSalesOrder:         salesOrder,
		source.FieldLineNumber:         lineNumber,
		source.FieldBillToCustomerName: "Acme Manufacturing",
		source.FieldBillToPartyID:      "301",
		source.FieldTrxDate:            "2024-03-15",
		source.FieldDueDate:            "2024-04-14",
		source.FieldPeriodFrom:         "2024-03-01",
		source.FieldPeriodTo:           "2024-03-31",
		source.FieldStatus:             "OPEN",
		source.FieldItemNumber:         "WID-" + lineNumber,
		source.FieldDescription:        "Widget",
		source.FieldUnitOfMeasure:      "EA",
		source.FieldQuantity:           "5",
		source.FieldUnitPrice:          "50.00",
		source.FieldExtendedAmount:     "250.00",
		source.FieldTaxAmount:          "12.50",
		source.FieldTotalAmount:        "262.50",
		source.FieldAmountDueRemaining: "262.50",
	}
	for k, v := range overrides {
		row[k] = v
	}
	return row
}

func TestEngine_Reconcile_EmptyExtract(t *testing.T) {
	engine := NewEngine(newTestStore(t))

	result, err := engine.Reconcile(context.Background(), nil, time.Now())
	if err != nil {
		t.Fatal(err)
	}
	if result.RowsProcessed != 0 {
		t.Errorf("expected 0 rows processed, got %d", result.RowsProcessed)
	}
}

func TestEngine_Reconcile_CreatesInvoiceWithLines(t *testing.T) {
	s := newTestStore(t)
	engine := NewEngine(s)
	ctx := context.Background()
	now := time.Date(2024, 3, 16, 8, 0, 0, 0, time.UTC)

	rows := []source.Row{
		extractRow("100", "5001", "1", nil),
		extractRow("100", "5001", "2", map[string]string{
			source.FieldDescription: "Widget, large",
		}),
	}

	result, err := engine.Reconcile(ctx, rows, now)
	if err != nil {
		t.Fatal(err)
	}
	if result.RowsProcessed != 2 {
		t.Errorf("expected 2 rows processed, got %d", result.RowsProcessed)
	}

	inv, err := s.GetInvoice(ctx, 100)
	if err != nil {
		t.Fatal(err)
	}
	if inv.Status != "OPEN" {
		t.Errorf("expected status OPEN, got %q", inv.Status)
	}
	if !inv.CreatedDate.Equal(now) {
		t.Errorf("expected created date %v, got %v", now, inv.CreatedDate)
	}

	lines, err := s.GetLines(ctx, inv.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d", len(lines))
	}
	if lines[1].Description != "Widget, large" {
		t.Errorf("unexpected line 2 description %q", lines[1].Description)
	}
}

func TestEngine_Reconcile_RefreshesExistingInvoice(t *testing.T) {
	s := newTestStore(t)
	engine := NewEngine(s)
	ctx := context.Background()

	first := []source.Row{extractRow("100", "5001", "1", nil)}
	if _, err := engine.Reconcile(ctx, first, time.Now()); err != nil {
		t.Fatal(err)
	}

	// Re-delivered with a changed status, a changed line, and a new line.
	second := []source.Row{
		extractRow("100", "5001", "1", map[string]string{
			source.FieldStatus:             "CLOSED",
			source.FieldAmountApplied:      "262.50",
			source.FieldAmountDueRemaining: "0.00",
			source.FieldQuantity:           "6",
		}),
		extractRow("100", "5001", "2", map[string]string{
			source.FieldStatus: "CLOSED",
		}),
	}
	if _, err := engine.Reconcile(ctx, second, time.Now()); err != nil {
		t.Fatal(err)
	}

	inv, err := s.GetInvoice(ctx, 100)
	if err != nil {
		t.Fatal(err)
	}
	if inv.Status != "CLOSED" {
		t.Errorf("expected status CLOSED, got %q", inv.Status)
	}
	if inv.AmountDueRemaining.StringFixed(2) != "0.00" {
		t.Errorf("expected amount due 0.00, got %s", inv.AmountDueRemaining)
	}

	lines, err := s.GetLines(ctx, inv.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines after refresh, got %d", len(lines))
	}
	if lines[0].Quantity.StringFixed(2) != "6.00" {
		t.Errorf("expected line 1 quantity refreshed to 6.00, got %s", lines[0].Quantity)
	}
}

func TestEngine_Reconcile_Idempotent(t *testing.T) {
	s := newTestStore(t)
	engine := NewEngine(s)
	ctx := context.Background()

	rows := []source.Row{
		extractRow("100", "5001", "1", nil),
		extractRow("101", "5002", "1", nil),
	}

	for i := 0; i < 3; i++ {
		if _, err := engine.Reconcile(ctx, rows, time.Now()); err != nil {
			t.Fatalf("pass %d: %v", i+1, err)
		}
	}

	for _, trx := range []int{100, 101} {
		inv, err := s.GetInvoice(ctx, trx)
		if err != nil {
			t.Fatalf("trx %d: %v", trx, err)
		}
		lines, err := s.GetLines(ctx, inv.ID)
		if err != nil {
			t.Fatal(err)
		}
		if len(lines) != 1 {
			t.Errorf("trx %d: expected 1 line after repeated passes, got %d", trx, len(lines))
		}
	}
}

func TestEngine_Reconcile_NonContiguousGroupsMerge(t *testing.T) {
	s := newTestStore(t)
	engine := NewEngine(s)
	ctx := context.Background()

	// Rows for transaction 100 are split around transaction 101.
	rows := []source.Row{
		extractRow("100", "5001", "1", nil),
		extractRow("101", "5002", "1", nil),
		extractRow("100", "5001", "2", nil),
	}

	result, err := engine.Reconcile(ctx, rows, time.Now())
	if err != nil {
		t.Fatal(err)
	}
	if result.RowsProcessed != 3 {
		t.Errorf("expected 3 rows processed, got %d", result.RowsProcessed)
	}

	inv, err := s.GetInvoice(ctx, 100)
	if err != nil {
		t.Fatal(err)
	}
	lines, err := s.GetLines(ctx, inv.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(lines) != 2 {
		t.Errorf("expected both split rows under one invoice, got %d lines", len(lines))
	}
}

func TestEngine_Reconcile_SkipsBlankSalesOrderRows(t *testing.T) {
	s := newTestStore(t)
	engine := NewEngine(s)
	ctx := context.Background()

	rows := []source.Row{
		extractRow("100", "5001", "1", nil),
		extractRow("100", "", "2", nil),
		extractRow("100", "5001", "3", nil),
	}

	result, err := engine.Reconcile(ctx, rows, time.Now())
	if err != nil {
		t.Fatal(err)
	}
	if result.RowsProcessed != 2 {
		t.Errorf("expected 2 surviving rows, got %d", result.RowsProcessed)
	}

	inv, err := s.GetInvoice(ctx, 100)
	if err != nil {
		t.Fatal(err)
	}
	lines, err := s.GetLines(ctx, inv.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d", len(lines))
	}
	for _, line := range lines {
		if line.LineNumber == 2 {
			t.Error("blank sales order row must not be persisted")
		}
	}
}

func TestEngine_Reconcile_StaleLinesSurvive(t *testing.T) {
	s := newTestStore(t)
	engine := NewEngine(s)
	ctx := context.Background()

	full := []source.Row{
		extractRow("100", "5001", "1", nil),
		extractRow("100", "5001", "2", nil),
	}
	if _, err := engine.Reconcile(ctx, full, time.Now()); err != nil {
		t.Fatal(err)
	}

	// A later extract omitting line 2 must not delete it.
	partial := []source.Row{extractRow("100", "5001", "1", nil)}
	if _, err := engine.Reconcile(ctx, partial, time.Now()); err != nil {
		t.Fatal(err)
	}

	inv, err := s.GetInvoice(ctx, 100)
	if err != nil {
		t.Fatal(err)
	}
	lines, err := s.GetLines(ctx, inv.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(lines) != 2 {
		t.Errorf("expected stale line retained, got %d lines", len(lines))
	}
}

func TestEngine_Reconcile_MalformedTrxNumberIsError(t *testing.T) {
	engine := NewEngine(newTestStore(t))

	rows := []source.Row{extractRow("garbage", "5001", "1", nil)}
	if _, err := engine.Reconcile(context.Background(), rows, time.Now()); err == nil {
		t.Error("expected error for malformed transaction number")
	}
}

// failingGateway wraps a real gateway and fails inserts for one transaction
// number, exercising the abort-on-first-error path.
type failingGateway struct {
	Gateway
	failTrx int
}

var errInjected = errors.New("injected failure")

func (f *failingGateway) InsertInvoice(ctx context.Context, inv *types.Invoice) (int64, error) {
	if inv.TrxNumber == f.failTrx {
		return 0, errInjected
	}
	return f.Gateway.InsertInvoice(ctx, inv)
}

func TestEngine_Reconcile_FailureAbortsPassKeepsEarlierGroups(t *testing.T) {
	s := newTestStore(t)
	engine := NewEngine(&failingGateway{Gateway: s, failTrx: 101})
	ctx := context.Background()

	rows := []source.Row{
		extractRow("100", "5001", "1", nil),
		extractRow("101", "5002", "1", nil),
		extractRow("102", "5003", "1", nil),
	}

	_, err := engine.Reconcile(ctx, rows, time.Now())
	if !errors.Is(err, errInjected) {
		t.Fatalf("expected injected failure, got %v", err)
	}

	// The group before the failure is committed.
	if _, err := s.FindInvoiceID(ctx, 100); err != nil {
		t.Errorf("expected transaction 100 committed, got %v", err)
	}
	// The failing group and everything after it are untouched.
	for _, trx := range []int{101, 102} {
		if _, err := s.FindInvoiceID(ctx, trx); !errors.Is(err, store.ErrNotFound) {
			t.Errorf("expected transaction %d absent, got %v", trx, err)
		}
	}
}
