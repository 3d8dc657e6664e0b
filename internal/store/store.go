package store

import (
	"context"
	"time"

	"github.com/hyperengineering/invoicesync/internal/types"
)

// Store defines the persistence contract for invoice reconciliation:
// the invoice gateway operations, the watermark store, and the sync run
// history. Implemented by SQLiteStore.
type Store interface {
	FindInvoiceID(ctx context.Context, trxNumber int) (int64, error)
	InsertInvoice(ctx context.Context, inv *types.Invoice) (int64, error)
	UpdateInvoice(ctx context.Context, id int64, upd types.InvoiceUpdate) error
	UpsertLine(ctx context.Context, line types.InvoiceLine) error

	LoadWatermark(ctx context.Context, jobName string) (time.Time, error)
	SaveWatermark(ctx context.Context, jobName string, t time.Time) (int64, error)

	RecordRun(ctx context.Context, run types.SyncRun) error
	LastRun(ctx context.Context, jobName string) (*types.SyncRun, error)

	Close() error
}
