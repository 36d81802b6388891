package google

import (
	"fmt"
	"strings"

	"fintrack/internal/core"
)

// Ledger columns, in sheet order.
var ledgerColumns = []string{
	"Transaction ID", "User ID", "Date", "Type", "Amount",
	"Category", "Description", "Source Kind", "Source ID",
}

// lastColumn is the letter of the final ledger column.
var lastColumn = string(rune('A' + len(ledgerColumns) - 1))

func headerRow() []any {
	out := make([]any, len(ledgerColumns))
	for i, c := range ledgerColumns {
		out[i] = c
	}
	return out
}

// entryRow renders a transaction as a sheet row. The amount is written as a
// number so that sheet formulas can sum it.
func entryRow(tx core.Transaction) []any {
	return []any{
		tx.ID,
		tx.UserID,
		tx.Date.String(),
		string(tx.Type),
		tx.Amount.Decimal().InexactFloat64(),
		tx.Category,
		tx.Description,
		string(tx.SourceKind),
		tx.SourceID,
	}
}

// findRow returns the zero-based index of the row holding the entry, or -1.
func findRow(rows [][]any, userID, transactionID string) int {
	for i, row := range rows {
		cols := toStrings(row)
		if len(cols) < 2 {
			continue
		}
		if cols[0] == transactionID && cols[1] == userID {
			return i
		}
	}
	return -1
}

// rowRef formats the A1 range of the zero-based row idx.
func rowRef(sheet string, idx int) string {
	return fmt.Sprintf("%s!A%d:%s%d", sheet, idx+1, lastColumn, idx+1)
}

func toStrings(in []any) []string {
	out := make([]string, len(in))
	for i, v := range in {
		out[i] = strings.TrimSpace(fmt.Sprint(v))
	}
	return out
}
