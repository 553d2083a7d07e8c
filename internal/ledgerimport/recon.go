package ledgerimport

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// largeDifferenceThreshold is the advisory cutoff for the amount-difference
// anomaly, in the ledger's base currency units.
var largeDifferenceThreshold = decimal.NewFromInt(1_000_000)

// Reconcile classifies rows in order as processed, duplicate or error, flags
// anomalies, and rewrites accepted account names through the mapping.
// It returns the aggregate result plus the rows eligible for persistence.
//
// Duplicate detection is batch-scoped and order-dependent: a row is a
// duplicate only of an earlier-accepted row with identical
// (date, account, debit, credit) in this same call.
func Reconcile(rows []ParsedRow, mapping AccountMapping) (ImportResult, []NormalizedRow) {
	result := ImportResult{
		TotalRows:  len(rows),
		Errors:     []RowError{},
		Anomalies:  []string{},
		Duplicates: []string{},
		Success:    true,
	}

	seen := map[string]bool{}
	accepted := make([]NormalizedRow, 0, len(rows))

	for _, pr := range rows {
		if pr.Err != nil {
			result.Errors = append(result.Errors, *pr.Err)
			result.ErrorRows++
			continue
		}
		row := *pr.Row

		// Structural validation happens before duplicate checks, so a row
		// can never count as both an error and a duplicate.
		if row.Date.IsZero() {
			result.Errors = append(result.Errors, RowError{Index: pr.Index, Field: "validation", Message: "missing date"})
			result.ErrorRows++
			continue
		}
		if row.Account == "" {
			result.Errors = append(result.Errors, RowError{Index: pr.Index, Field: "validation", Message: "missing account"})
			result.ErrorRows++
			continue
		}

		key := dupKey(row)
		if seen[key] {
			result.Duplicates = append(result.Duplicates,
				fmt.Sprintf("Row %d: %s - %s", pr.Index, row.Account, row.Particulars))
			result.SkippedRows++
			continue
		}
		seen[key] = true

		if row.Debit.Sub(row.Credit).Abs().GreaterThan(largeDifferenceThreshold) {
			result.Anomalies = append(result.Anomalies,
				fmt.Sprintf("Row %d: large amount difference (debit %s, credit %s)", pr.Index, row.Debit, row.Credit))
		}
		if row.Debit.IsPositive() && row.Credit.IsPositive() {
			result.Anomalies = append(result.Anomalies,
				fmt.Sprintf("Row %d: both debit and credit have values", pr.Index))
		}

		row.Account = mapping.Resolve(row.Account)
		accepted = append(accepted, row)
		result.ProcessedRows++
	}

	return result, accepted
}

func dupKey(row NormalizedRow) string {
	return row.Date.Format("2006-01-02") + "|" + row.Account + "|" + row.Debit.String() + "|" + row.Credit.String()
}
