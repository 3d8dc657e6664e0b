// Package source fetches and decodes incremental invoice extracts from the
// external reporting service. The rest of the system consumes the extract as
// a sequence of string-keyed rows; the wire protocol and the tabular text
// format are contained here.
package source

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Report column names, as emitted in the extract header row.
const (
	FieldTrxNumber           = "TRX_NUMBER"
	FieldTrxDate             = "TRX_DATE"
	FieldTrxType             = "TRX_TYPE"
	FieldSalesOrder          = "SALES_ORDER"
	FieldTermName            = "TERM_NAME"
	FieldShipDateActual      = "SHIP_DATE_ACTUAL"
	FieldPrimarySalesRep     = "PRIMARY_SALESREP_NAME"
	FieldShipVia             = "SHIP_VIA1"
	FieldPurchaseOrderNumber = "PURCHASE_ORDER_NUMBER"
	FieldInternalNotes       = "INTERNAL_NOTES"
	FieldStatus              = "STATUS"
	FieldDueDate             = "DUE_DATE"
	FieldPeriodFrom          = "CF_FROM_DATE"
	FieldPeriodTo            = "CF_TO_DATE"

	FieldBillToPartyID        = "BILL_TO_PARTY_ID"
	FieldBillToCustomerName   = "BILL_TO_CUSTOMER_NAME"
	FieldBillToSiteName       = "CF_BILL_TO_SITE_NAME"
	FieldBillToLocationID     = "BILL_TO_LOCATION_ID"
	FieldBillToAddress1       = "BILL_TO_ADDRESS1"
	FieldBillToAddress2       = "BILL_TO_ADDRESS2"
	FieldBillToAddress3       = "BILL_TO_ADDRESS3"
	FieldBillToAddress4       = "BILL_TO_ADDRESS4"
	FieldBillToCity           = "BILL_TO_CITY"
	FieldBillToState          = "BILL_TO_STATE"
	FieldBillToPostalCode     = "BILL_TO_POSTAL_CODE"
	FieldBillToCountry        = "BILL_TO_COUNTRY"
	FieldBillToCustomerNumber = "BILL_TO_CUSTOMER_NUMBER"

	FieldShipToPartyID      = "SHIP_TO_PARTY_ID"
	FieldShipToPartySiteID  = "SHIP_TO_PARTY_SITE_ID"
	FieldShipToCustomerName = "SHIP_TO_CUSTOMER_NAME"
	FieldShipToSiteName     = "SHIP_CUST_SITE_NAME"
	FieldShipToLocationID   = "SHIP_TO_LOCATION_ID"
	FieldShipToAddress1     = "SHIP_TO_ADDRESS1"
	FieldShipToAddress2     = "SHIP_TO_ADDRESS2"
	FieldShipToAddress3     = "SHIP_TO_ADDRESS3"
	FieldShipToAddress4     = "SHIP_TO_ADDRESS4"
	FieldShipToCity         = "SHIP_TO_CITY"
	FieldShipToState        = "SHIP_TO_STATE"
	FieldShipToPostalCode   = "SHIP_TO_POSTAL_CODE"
	FieldShipToCountry      = "SHIP_TO_COUNTRY"

	FieldTaxAmount          = "TAX_AMOUNT"
	FieldFreightAmount      = "FREIGHT_AMOUNT"
	FieldTotalAmount        = "TOTAL_AMOUNT"
	FieldDiscountTaken      = "DISCOUNT_TAKEN_EARNED"
	FieldAmountApplied      = "AMOUNT_APPLIED"
	FieldAmountDueRemaining = "AMOUNT_DUE_REMAINING"
	FieldLineAmount         = "LINE_AMOUNT"

	FieldLineNumber     = "LINE_NUMBER"
	FieldItemNumber     = "ITEM_NUMBER"
	FieldPackingCode    = "CF_PACKING"
	FieldDescription    = "LINE_DESCRIPTION"
	FieldUnitOfMeasure  = "UNIT_OF_MEASURE_NAME"
	FieldQuantity       = "QUANTITY"
	FieldUnitPrice      = "UNIT_PRICE"
	FieldExtendedAmount = "EXTENDED_AMOUNT"
)

// Timestamp layouts accepted in extract fields. The report emits invariant,
// locale-independent representations; no culture-sensitive parsing.
var dateLayouts = []string{
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// Row is a single extract row: field name → raw text value.
// Accessors coerce blank optional values (zero for numerics, empty string
// for text) rather than leaving them unset.
type Row map[string]string

// Get returns the trimmed text value of a field, empty when absent.
func (r Row) Get(field string) string {
	return strings.TrimSpace(r[field])
}

// Int parses an integer field. Blank coerces to zero.
func (r Row) Int(field string) (int, error) {
	s := r.Get(field)
	if s == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("field %s: parse %q as integer: %w", field, s, err)
	}
	return n, nil
}

// Int64 parses a 64-bit integer field. Blank coerces to zero.
func (r Row) Int64(field string) (int64, error) {
	s := r.Get(field)
	if s == "" {
		return 0, nil
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("field %s: parse %q as integer: %w", field, s, err)
	}
	return n, nil
}

// Decimal parses a fixed-point decimal field. Blank coerces to zero.
func (r Row) Decimal(field string) (decimal.Decimal, error) {
	s := r.Get(field)
	if s == "" {
		return decimal.Zero, nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("field %s: parse %q as decimal: %w", field, s, err)
	}
	return d, nil
}

// Date parses a required timestamp field.
func (r Row) Date(field string) (time.Time, error) {
	s := r.Get(field)
	if s == "" {
		return time.Time{}, fmt.Errorf("field %s: missing timestamp", field)
	}
	return parseTimestamp(field, s)
}

// DateOrNil parses an optional timestamp field. Blank returns nil.
func (r Row) DateOrNil(field string) (*time.Time, error) {
	s := r.Get(field)
	if s == "" {
		return nil, nil
	}
	t, err := parseTimestamp(field, s)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func parseTimestamp(field, s string) (time.Time, error) {
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("field %s: parse %q as timestamp", field, s)
}
