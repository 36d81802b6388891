package sheets

import (
	"context"

	"fintrack/internal/core"
)

// Ports for the ledger mirror. A mirror holds a copy of every ledger entry
// and is never read back by the services.
type (
	LedgerWriter interface {
		// Append adds the entry unless a row for its id already exists.
		Append(ctx context.Context, tx core.Transaction) (rowRef string, err error)
	}

	LedgerRemover interface {
		// Remove deletes the entry's row. A missing row is not an error.
		Remove(ctx context.Context, userID, transactionID string) error
	}

	LedgerMirror interface {
		LedgerWriter
		LedgerRemover
	}
)
