// Package types defines the domain model shared across invoicesync packages.
package types

import (
	"time"

	"github.com/shopspring/decimal"
)

// Invoice is one header row per unique transaction number. TrxNumber is the
// sole natural key used to match incoming report data to an existing header.
type Invoice struct {
	ID int64

	BillToPartyID        int64
	BillToCustomerName   string
	BillToSiteName       string
	BillToLocationID     int64
	BillToAddress1       string
	BillToAddress2       string
	BillToAddress3       string
	BillToAddress4       string
	BillToCity           string
	BillToState          string
	BillToPostalCode     string
	BillToCountry        string
	BillToCustomerNumber string

	ShipToPartyID      int64
	ShipToPartySiteID  int64
	ShipToCustomerName string
	ShipToSiteName     string
	ShipToLocationID   int64
	ShipToAddress1     string
	ShipToAddress2     string
	ShipToAddress3     string
	ShipToAddress4     string
	ShipToCity         string
	ShipToState        string
	ShipToPostalCode   string
	ShipToCountry      string

	TrxNumber           int
	TrxDate             time.Time
	TrxType             string
	TermName            string
	ShipDateActual      *time.Time
	SalesOrder          int
	PrimarySalesRep     string
	ShipVia             string
	PurchaseOrderNumber string
	InternalNotes       string

	TaxAmount          decimal.Decimal
	FreightAmount      decimal.Decimal
	TotalAmount        decimal.Decimal
	DiscountTaken      decimal.Decimal
	AmountApplied      decimal.Decimal
	AmountDueRemaining decimal.Decimal
	TotalNet           decimal.Decimal

	Status      string
	DueDate     time.Time
	PeriodFrom  time.Time
	PeriodTo    time.Time
	CreatedDate time.Time
}

// InvoiceUpdate carries the mutable header fields refreshed on every
// re-delivery of a known transaction. Identity and address fields are
// written once at insert and never touched again.
type InvoiceUpdate struct {
	Status             string
	TaxAmount          decimal.Decimal
	FreightAmount      decimal.Decimal
	TotalAmount        decimal.Decimal
	DiscountTaken      decimal.Decimal
	AmountApplied      decimal.Decimal
	AmountDueRemaining decimal.Decimal
}

// InvoiceLine is one row per (invoice, line number) pair. A line is owned
// exclusively by its parent header and has no independent lifecycle.
type InvoiceLine struct {
	InvoiceID      int64
	LineNumber     int
	ItemNumber     string
	PackingCode    string
	Description    string
	UnitOfMeasure  string
	Quantity       decimal.Decimal
	UnitPrice      decimal.Decimal
	ExtendedAmount decimal.Decimal
}

// Sync run outcome values persisted to the run history.
const (
	RunStatusSucceeded = "succeeded"
	RunStatusFailed    = "failed"
)

// SyncRun records one sync cycle for the operational status surface.
type SyncRun struct {
	ID            string
	JobName       string
	StartedAt     time.Time
	FinishedAt    time.Time
	RowsProcessed int
	Status        string
	Error         string
}
