package ledgerimport

import (
	"testing"
	"time"
)

func TestParseDateAcceptedForms(t *testing.T) {
	want := time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC)
	for _, input := range []string{"01/04/2024", "01-04-2024", "2024-04-01"} {
		got, err := parseDate(input)
		if err != nil {
			t.Fatalf("parseDate(%q) returned error: %v", input, err)
		}
		if !got.Equal(want) {
			t.Fatalf("parseDate(%q) = %v, want %v", input, got, want)
		}
	}
}

func TestParseDateRejectsOtherForms(t *testing.T) {
	for _, input := range []string{"April 1, 2024", "01.04.2024", "2024/04/01", "04/2024", ""} {
		if _, err := parseDate(input); err == nil {
			t.Fatalf("parseDate(%q) should fail", input)
		}
	}
}

func TestParseAmount(t *testing.T) {
	cases := []struct {
		input string
		want  string
	}{
		{"10,000", "10000"},
		{"", "0"},
		{"1,234,567.89", "1234567.89"},
		{"  500 ", "500"},
		{"0", "0"},
	}
	for _, tc := range cases {
		got, err := parseAmount(tc.input)
		if err != nil {
			t.Fatalf("parseAmount(%q) returned error: %v", tc.input, err)
		}
		if got.String() != tc.want {
			t.Fatalf("parseAmount(%q) = %s, want %s", tc.input, got, tc.want)
		}
	}
}

func TestParseAmountRejectsGarbage(t *testing.T) {
	for _, input := range []string{"abc", "12a", "10,0,00x"} {
		if _, err := parseAmount(input); err == nil {
			t.Fatalf("parseAmount(%q) should fail", input)
		}
	}
}

func TestNormalizeRowDateError(t *testing.T) {
	pr := normalizeRow(3, RawRow{Date: "April 1, 2024", Account: "Cash", Debit: "100"})
	if pr.Err == nil {
		t.Fatal("expected row error")
	}
	if pr.Err.Field != "date" || pr.Err.Message != "date format" {
		t.Fatalf("unexpected error %+v", pr.Err)
	}
	if pr.Err.Index != 3 || pr.Err.Raw != "April 1, 2024" {
		t.Fatalf("unexpected error %+v", pr.Err)
	}
}

func TestNormalizeRowNumberError(t *testing.T) {
	pr := normalizeRow(1, RawRow{Date: "01/04/2024", Account: "Cash", Debit: "abc"})
	if pr.Err == nil {
		t.Fatal("expected row error")
	}
	if pr.Err.Field != "debit" || pr.Err.Message != "number format" {
		t.Fatalf("unexpected error %+v", pr.Err)
	}
}

func TestNormalizeRowNegativeAmount(t *testing.T) {
	pr := normalizeRow(1, RawRow{Date: "01/04/2024", Account: "Cash", Credit: "-50"})
	if pr.Err == nil || pr.Err.Field != "credit" || pr.Err.Message != "negative amount" {
		t.Fatalf("expected negative amount error, got %+v", pr.Err)
	}
}

func TestNormalizeRowOK(t *testing.T) {
	pr := normalizeRow(1, RawRow{Date: "02/04/2024", Account: "Sales", Particulars: "Invoice #123", Credit: "5,000", Balance: "15000"})
	if pr.Err != nil {
		t.Fatalf("unexpected error %+v", pr.Err)
	}
	row := pr.Row
	if row.Account != "Sales" || row.Particulars != "Invoice #123" {
		t.Fatalf("unexpected row %+v", row)
	}
	if !row.Debit.IsZero() {
		t.Fatalf("debit should be zero, got %s", row.Debit)
	}
	if row.Credit.String() != "5000" || row.Balance.String() != "15000" {
		t.Fatalf("unexpected amounts %s / %s", row.Credit, row.Balance)
	}
}
