package storage

import (
	"context"
	"time"

	"fintrack/internal/core"
)

// Filter scopes a list query. UserID is mandatory; zero values of the other
// fields mean "no constraint".
type Filter struct {
	UserID         string
	Type           core.TransactionType
	From           core.Date
	To             core.Date
	GoalID         string
	FixedExpenseID string
	Period         core.Period
	ActiveOnly     bool
	Limit          int
}

// FixedExpensePatch updates the set fields of a fixed expense.
type FixedExpensePatch struct {
	Name        *string
	Amount      *core.Money
	Category    *string
	Description *string
	DueDay      *int
	IsActive    *bool
}

// ReceivablePatch updates the set fields of a receivable. When ExpectPaid is
// set the update only applies if the stored IsPaid equals it; otherwise the
// call fails with ErrConflict. A zero PaidDate or ExpectedDate clears the
// column.
type ReceivablePatch struct {
	DebtorName          *string
	Amount              *core.Money
	Reason              *string
	ExpectedDate        *core.Date
	IsPaid              *bool
	PaidDate            *core.Date
	LedgerTransactionID *string
	LedgerSyncPending   *bool

	ExpectPaid *bool
}

// GoalPatch updates the descriptive fields of a goal. The current amount is
// only changed together with a movement; IsCompleted is recomputed by the
// store whenever the target changes.
type GoalPatch struct {
	Name         *string
	TargetAmount *core.Money
	TargetDate   *core.Date
	Description  *string
}

// LedgerSyncOp is the ledger change a reconciliation row asks for.
type LedgerSyncOp string

const (
	OpInsertEntry LedgerSyncOp = "insert"
	OpDeleteEntry LedgerSyncOp = "delete"
)

// LedgerSyncStatus is the processing state of a reconciliation row.
type LedgerSyncStatus string

const (
	SyncPending    LedgerSyncStatus = "pending"
	SyncProcessing LedgerSyncStatus = "processing"
	SyncCompleted  LedgerSyncStatus = "completed"
	SyncFailed     LedgerSyncStatus = "failed"
)

// LedgerSync is a queued reconciliation of an anchor's ledger entry. There is
// at most one row per anchor.
type LedgerSync struct {
	ID            int64
	UserID        string
	Operation     LedgerSyncOp
	AnchorKind    core.Kind
	AnchorID      string
	TransactionID string
	Status        LedgerSyncStatus
	Attempts      int
	LastError     string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// LedgerSyncStats counts queue rows by status.
type LedgerSyncStats struct {
	Pending    int64
	Processing int64
	Completed  int64
	Failed     int64
}

// AnchorRef identifies an anchor flagged as awaiting ledger reconciliation.
type AnchorRef struct {
	Kind                core.Kind
	ID                  string
	UserID              string
	LedgerTransactionID string
}

type TransactionStore interface {
	CreateTransaction(ctx context.Context, tx core.Transaction) (core.Transaction, error)
	GetTransaction(ctx context.Context, userID, id string) (core.Transaction, error)
	ListTransactions(ctx context.Context, f Filter) ([]core.Transaction, error)
	DeleteTransaction(ctx context.Context, userID, id string) error
}

type FixedExpenseStore interface {
	CreateFixedExpense(ctx context.Context, e core.FixedExpense) (core.FixedExpense, error)
	GetFixedExpense(ctx context.Context, userID, id string) (core.FixedExpense, error)
	ListFixedExpenses(ctx context.Context, f Filter) ([]core.FixedExpense, error)
	UpdateFixedExpense(ctx context.Context, userID, id string, p FixedExpensePatch) (core.FixedExpense, error)
	// DeleteFixedExpense removes the expense and all of its payments.
	DeleteFixedExpense(ctx context.Context, userID, id string) error

	// CreatePayment fails with ErrConflict when the expense is already paid
	// for the period.
	CreatePayment(ctx context.Context, p core.FixedExpensePayment) (core.FixedExpensePayment, error)
	GetPayment(ctx context.Context, userID, id string) (core.FixedExpensePayment, error)
	FindPayment(ctx context.Context, userID, fixedExpenseID string, period core.Period) (core.FixedExpensePayment, error)
	ListPayments(ctx context.Context, f Filter) ([]core.FixedExpensePayment, error)
	DeletePayment(ctx context.Context, userID, id string) error
}

type ReceivableStore interface {
	CreateReceivable(ctx context.Context, r core.AccountReceivable) (core.AccountReceivable, error)
	GetReceivable(ctx context.Context, userID, id string) (core.AccountReceivable, error)
	ListReceivables(ctx context.Context, f Filter) ([]core.AccountReceivable, error)
	UpdateReceivable(ctx context.Context, userID, id string, p ReceivablePatch) (core.AccountReceivable, error)
	DeleteReceivable(ctx context.Context, userID, id string) error
}

type SavingsStore interface {
	CreateGoal(ctx context.Context, g core.SavingsGoal) (core.SavingsGoal, error)
	GetGoal(ctx context.Context, userID, id string) (core.SavingsGoal, error)
	ListGoals(ctx context.Context, f Filter) ([]core.SavingsGoal, error)
	UpdateGoal(ctx context.Context, userID, id string, p GoalPatch) (core.SavingsGoal, error)
	// DeleteGoal removes the goal and all of its movements.
	DeleteGoal(ctx context.Context, userID, id string) error

	// CreateMovement inserts m and stores next's current amount and
	// completion on the goal in one transaction. The goal update only applies
	// while its stored current amount equals expect; otherwise nothing is
	// written and ErrConflict is returned.
	CreateMovement(ctx context.Context, m core.SavingsMovement, next core.SavingsGoal, expect core.Money) (core.SavingsMovement, error)
	GetMovement(ctx context.Context, userID, id string) (core.SavingsMovement, error)
	ListMovements(ctx context.Context, f Filter) ([]core.SavingsMovement, error)
	// DeleteMovement removes the movement and stores next on the goal under
	// the same compare-and-set rule as CreateMovement.
	DeleteMovement(ctx context.Context, userID, id string, next core.SavingsGoal, expect core.Money) error
}

type LedgerSyncStore interface {
	// SetLedgerSyncPending flips the reconciliation flag of an anchor.
	SetLedgerSyncPending(ctx context.Context, kind core.Kind, userID, id string, pending bool) error
	// ListFlaggedAnchors returns anchors of every owner whose flag is set.
	ListFlaggedAnchors(ctx context.Context, limit int) ([]AnchorRef, error)

	// EnqueueLedgerSync inserts a pending row, or resets the anchor's
	// existing row to pending with the new operation.
	EnqueueLedgerSync(ctx context.Context, s LedgerSync) (LedgerSync, error)
	FindLedgerSync(ctx context.Context, kind core.Kind, anchorID string) (LedgerSync, error)
	DequeueLedgerSyncs(ctx context.Context, limit int) ([]LedgerSync, error)
	MarkLedgerSyncProcessing(ctx context.Context, id int64) error
	CompleteLedgerSync(ctx context.Context, id int64) error
	IncrementLedgerSyncAttempt(ctx context.Context, id int64, lastError string) error
	FailLedgerSync(ctx context.Context, id int64, lastError string) error
	ResetStaleLedgerSyncs(ctx context.Context) error
	RetryFailedLedgerSyncs(ctx context.Context) (int64, error)
	CleanupCompletedLedgerSyncs(ctx context.Context, before time.Time) (int64, error)
	LedgerSyncStats(ctx context.Context) (LedgerSyncStats, error)
}

// Store is the full persistence contract used by the services.
type Store interface {
	TransactionStore
	FixedExpenseStore
	ReceivableStore
	SavingsStore
	LedgerSyncStore

	Ping(ctx context.Context) error
	Close() error
}
