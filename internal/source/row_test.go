package source

import (
	"testing"
	"time"
)

func TestRow_Get_TrimsWhitespace(t *testing.T) {
	row := Row{FieldStatus: "  OPEN  "}

	if got := row.Get(FieldStatus); got != "OPEN" {
		t.Errorf("expected %q, got %q", "OPEN", got)
	}
}

func TestRow_Get_MissingField(t *testing.T) {
	row := Row{}

	if got := row.Get(FieldStatus); got != "" {
		t.Errorf("expected empty string for missing field, got %q", got)
	}
}

func TestRow_Int_BlankCoercesToZero(t *testing.T) {
	row := Row{FieldShipToPartyID: ""}

	n, err := row.Int(FieldShipToPartyID)
	if err != nil {
		t.Fatal(err)
	}
	if n != 0 {
		t.Errorf("expected 0 for blank field, got %d", n)
	}
}

func TestRow_Int_ParsesValue(t *testing.T) {
	row := Row{FieldTrxNumber: "1042"}

	n, err := row.Int(FieldTrxNumber)
	if err != nil {
		t.Fatal(err)
	}
	if n != 1042 {
		t.Errorf("expected 1042, got %d", n)
	}
}

func TestRow_Int_MalformedValue(t *testing.T) {
	// Trailing garbage must fail too, not truncate to the numeric prefix.
	for _, value := range []string{"not-a-number", "100abc", "1 2", "1.5"} {
		row := Row{FieldTrxNumber: value}
		if _, err := row.Int(FieldTrxNumber); err == nil {
			t.Errorf("expected error for malformed integer %q", value)
		}
	}
}

func TestRow_Int64_MalformedValue(t *testing.T) {
	for _, value := range []string{"not-a-number", "301xyz"} {
		row := Row{FieldBillToPartyID: value}
		if _, err := row.Int64(FieldBillToPartyID); err == nil {
			t.Errorf("expected error for malformed integer %q", value)
		}
	}
}

func TestRow_Decimal_BlankCoercesToZero(t *testing.T) {
	row := Row{FieldTaxAmount: ""}

	d, err := row.Decimal(FieldTaxAmount)
	if err != nil {
		t.Fatal(err)
	}
	if !d.IsZero() {
		t.Errorf("expected zero for blank field, got %s", d)
	}
}

func TestRow_Decimal_ParsesValue(t *testing.T) {
	row := Row{FieldUnitPrice: "19.95"}

	d, err := row.Decimal(FieldUnitPrice)
	if err != nil {
		t.Fatal(err)
	}
	if d.StringFixed(2) != "19.95" {
		t.Errorf("expected 19.95, got %s", d)
	}
}

func TestRow_Date_AcceptsInvariantLayouts(t *testing.T) {
	cases := []string{
		"2024-03-15T08:30:00",
		"2024-03-15 08:30:00",
		"2024-03-15",
	}

	for _, value := range cases {
		row := Row{FieldTrxDate: value}
		got, err := row.Date(FieldTrxDate)
		if err != nil {
			t.Errorf("parse %q: %v", value, err)
			continue
		}
		if got.Year() != 2024 || got.Month() != time.March || got.Day() != 15 {
			t.Errorf("parse %q: got %v", value, got)
		}
	}
}

func TestRow_Date_MissingIsError(t *testing.T) {
	row := Row{FieldTrxDate: ""}

	if _, err := row.Date(FieldTrxDate); err == nil {
		t.Error("expected error for missing required timestamp")
	}
}

func TestRow_DateOrNil_BlankReturnsNil(t *testing.T) {
	row := Row{FieldShipDateActual: ""}

	got, err := row.DateOrNil(FieldShipDateActual)
	if err != nil {
		t.Fatal(err)
	}
	if got != nil {
		t.Errorf("expected nil for blank optional timestamp, got %v", got)
	}
}
