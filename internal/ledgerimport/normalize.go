package ledgerimport

import (
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Accepted date layouts. Anything else is a row-level "date format" error.
var dateLayouts = []string{"02/01/2006", "02-01-2006", "2006-01-02"}

var errDateFormat = errors.New("date format")

// parseDate normalizes the three accepted forms to a UTC calendar date.
func parseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range dateLayouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t, nil
		}
	}
	return time.Time{}, errDateFormat
}

// parseAmount strips thousands separators and parses a decimal amount.
// Empty strings normalize to zero.
func parseAmount(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(strings.ReplaceAll(s, ",", ""))
	if s == "" {
		return decimal.Zero, nil
	}
	return decimal.NewFromString(s)
}

func amountIsZero(s string) bool {
	d, err := parseAmount(s)
	return err == nil && d.IsZero()
}

// normalizeRow converts one RawRow into the tagged ParsedRow. The first
// failing field wins; later fields are not inspected.
func normalizeRow(index int, raw RawRow) ParsedRow {
	rowErr := func(field, message, value string) ParsedRow {
		return ParsedRow{Index: index, Err: &RowError{Index: index, Field: field, Message: message, Raw: value}}
	}

	date, err := parseDate(raw.Date)
	if err != nil {
		return rowErr("date", "date format", raw.Date)
	}
	debit, err := parseAmount(raw.Debit)
	if err != nil {
		return rowErr("debit", "number format", raw.Debit)
	}
	credit, err := parseAmount(raw.Credit)
	if err != nil {
		return rowErr("credit", "number format", raw.Credit)
	}
	balance, err := parseAmount(raw.Balance)
	if err != nil {
		return rowErr("balance", "number format", raw.Balance)
	}
	if debit.IsNegative() {
		return rowErr("debit", "negative amount", raw.Debit)
	}
	if credit.IsNegative() {
		return rowErr("credit", "negative amount", raw.Credit)
	}

	return ParsedRow{Index: index, Row: &NormalizedRow{
		Date:        date,
		Account:     raw.Account,
		Particulars: raw.Particulars,
		Debit:       debit,
		Credit:      credit,
		Balance:     balance,
	}}
}
