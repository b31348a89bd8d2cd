package drawer

import (
	"context"

	"github.com/shopspring/decimal"
)

// Store is the persistence contract used by Service.
// Implementations must enforce at most one active session per cashier and
// at most one variance record per session.
type Store interface {
	WithTx(ctx context.Context, fn func(ctx context.Context, txStore Store) error) error

	// FindActiveSession returns ErrNoActiveSession when the cashier has no active session.
	// Inside a transaction the row is locked for update.
	FindActiveSession(ctx context.Context, cashierID CashierID) (Session, error)
	// LockSession reloads a session by id, locking it for update.
	LockSession(ctx context.Context, sessionID string) (Session, error)
	// ListStaleSessions returns active sessions whose date is before the given date.
	ListStaleSessions(ctx context.Context, before ShiftDate) ([]Session, error)
	// CreateSession returns ErrActiveSessionExists when the cashier already has an active session.
	CreateSession(ctx context.Context, session NewSession) (Session, error)
	// CloseSession returns ErrSessionClosed when the session is no longer active.
	CloseSession(ctx context.Context, closure SessionClosure) error

	InsertTransaction(ctx context.Context, transaction NewTransaction) (Transaction, error)
	// GetTransaction returns ErrTransactionNotFound for unknown ids.
	GetTransaction(ctx context.Context, transactionID TransactionID) (Transaction, error)
	UpdateTransaction(ctx context.Context, update TransactionUpdate) (Transaction, error)
	DeleteTransaction(ctx context.Context, transactionID TransactionID) error
	ListTransactions(ctx context.Context, cashierID CashierID, date ShiftDate) ([]Transaction, error)
	SumByCategory(ctx context.Context, cashierID CashierID, date ShiftDate) (CategoryTotals, error)
	// LatestShiftCount returns the most recent counted amount for the date, if any.
	LatestShiftCount(ctx context.Context, cashierID CashierID, date ShiftDate) (decimal.Decimal, bool, error)
	SuggestDescriptions(ctx context.Context, category Category, prefix string, limit int) ([]string, error)

	// InsertVariance returns ErrVarianceRecorded when the session already has a record.
	InsertVariance(ctx context.Context, record VarianceRecord) error
}

// SalesTotals exposes the confirmed cash sales of a cashier for a day.
type SalesTotals interface {
	GetConfirmedSalesTotal(ctx context.Context, cashierID CashierID, date ShiftDate) (decimal.Decimal, error)
}

// ActivitySink persists audit entries.
type ActivitySink interface {
	RecordActivity(ctx context.Context, entry ActivityEntry) error
}
