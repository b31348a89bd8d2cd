package drawer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Service contains the drawer lifecycle over a Store.
type Service struct {
	store          Store
	sales          SalesTotals
	activity       ActivitySink
	nowFn          func() time.Time
	location       *time.Location
	requireSession bool
	logger         OperationLogger
}

// NewService wires a Service.
func NewService(store Store, sales SalesTotals, activity ActivitySink, now func() time.Time, options ...ServiceOption) (*Service, error) {
	if store == nil {
		return nil, fmt.Errorf("%w: store dependency is nil", ErrInvalidServiceConfig)
	}
	if sales == nil {
		return nil, fmt.Errorf("%w: sales dependency is nil", ErrInvalidServiceConfig)
	}
	if activity == nil {
		return nil, fmt.Errorf("%w: activity dependency is nil", ErrInvalidServiceConfig)
	}
	if now == nil {
		return nil, fmt.Errorf("%w: clock dependency is nil", ErrInvalidServiceConfig)
	}
	service := &Service{store: store, sales: sales, activity: activity, nowFn: now, location: time.UTC}
	for _, option := range options {
		if option != nil {
			option(service)
		}
	}
	return service, nil
}

// Receipt is the user-facing outcome shared by every mutating operation.
// AuditError is set when the operation succeeded but its audit entry could not be written.
type Receipt struct {
	Message    string
	AuditError error
}

// StatusResult describes a cashier's current drawer.
type StatusResult struct {
	Active    bool
	Session   Session
	Breakdown BalanceBreakdown
}

// Today returns the current business date.
func (service *Service) Today() ShiftDate {
	return ShiftDateOf(service.nowFn(), service.location)
}

// Balance computes the expected drawer balance for a cashier on a date.
func (service *Service) Balance(ctx context.Context, cashierID CashierID, date ShiftDate) (BalanceBreakdown, error) {
	return service.computeBreakdown(ctx, service.store, cashierID, date)
}

// Status closes stale sessions, then reports the cashier's active session and its running balance.
func (service *Service) Status(ctx context.Context, cashierID CashierID) (StatusResult, error) {
	// Sweep failures are reported through the operation logger and do not block the lookup.
	_, _ = service.Sweep(ctx)
	session, err := service.store.FindActiveSession(ctx, cashierID)
	if errors.Is(err, ErrNoActiveSession) {
		return StatusResult{}, nil
	}
	if err != nil {
		return StatusResult{}, err
	}
	breakdown, err := service.computeBreakdown(ctx, service.store, cashierID, session.SessionDate)
	if err != nil {
		return StatusResult{}, err
	}
	return StatusResult{Active: true, Session: session, Breakdown: breakdown}, nil
}

// ListTransactions lists the cashier's ledger rows for a date, oldest first.
func (service *Service) ListTransactions(ctx context.Context, cashierID CashierID, date ShiftDate) ([]Transaction, error) {
	return service.store.ListTransactions(ctx, cashierID, date)
}

// SuggestDescriptions returns distinct stored descriptions of a category starting with prefix.
func (service *Service) SuggestDescriptions(ctx context.Context, category Category, prefix string, limit int) ([]string, error) {
	if limit <= 0 {
		limit = defaultSuggestionLimit
	}
	if limit > maxSuggestionLimit {
		limit = maxSuggestionLimit
	}
	return service.store.SuggestDescriptions(ctx, category, NormalizeDescription(prefix), limit)
}

func (service *Service) logOperation(ctx context.Context, entry OperationLog) {
	if service.logger == nil {
		return
	}
	if entry.Status == "" {
		if entry.Error != nil {
			entry.Status = operationStatusError
		} else {
			entry.Status = operationStatusOK
		}
	}
	service.logger.LogOperation(ctx, entry)
}

func (service *Service) recordActivity(ctx context.Context, entry ActivityEntry) error {
	entry.CreatedAt = service.nowFn()
	if err := service.activity.RecordActivity(ctx, entry); err != nil {
		return AuditWriteError{Action: entry.Action, RecordID: entry.RecordID, err: err}
	}
	return nil
}

type transactionSnapshot struct {
	Category     Category          `json:"category"`
	Type         TransactionType   `json:"transaction_type"`
	Amount       string            `json:"amount"`
	Description  string            `json:"description"`
	Status       TransactionStatus `json:"status"`
	BusinessDate string            `json:"business_date"`
}

type sessionSnapshot struct {
	Status         SessionStatus `json:"status"`
	SessionDate    string        `json:"session_date"`
	StartingAmount string        `json:"starting_amount"`
	EndingAmount   string        `json:"ending_amount,omitempty"`
	TotalCashIn    string        `json:"total_cash_in,omitempty"`
	TotalCashOut   string        `json:"total_cash_out,omitempty"`
	TotalSales     string        `json:"total_sales,omitempty"`
	Variance       string        `json:"variance,omitempty"`
	VarianceType   VarianceType  `json:"variance_type,omitempty"`
}

func snapshotTransaction(transaction Transaction) json.RawMessage {
	return marshalSnapshot(transactionSnapshot{
		Category:     transaction.Category,
		Type:         transaction.Type,
		Amount:       transaction.Amount.StringFixed(amountScale),
		Description:  transaction.Description,
		Status:       transaction.Status,
		BusinessDate: transaction.BusinessDate.String(),
	})
}

func snapshotOpenSession(session Session) json.RawMessage {
	return marshalSnapshot(sessionSnapshot{
		Status:         session.Status,
		SessionDate:    session.SessionDate.String(),
		StartingAmount: session.StartingAmount.StringFixed(amountScale),
	})
}

func snapshotClosure(session Session, closure SessionClosure) json.RawMessage {
	return marshalSnapshot(sessionSnapshot{
		Status:         closure.Status,
		SessionDate:    session.SessionDate.String(),
		StartingAmount: session.StartingAmount.StringFixed(amountScale),
		EndingAmount:   closure.EndingAmount.StringFixed(amountScale),
		TotalCashIn:    closure.TotalCashIn.StringFixed(amountScale),
		TotalCashOut:   closure.TotalCashOut.StringFixed(amountScale),
		TotalSales:     closure.TotalSales.StringFixed(amountScale),
		Variance:       closure.Variance.StringFixed(amountScale),
		VarianceType:   ClassifyVariance(closure.Variance),
	})
}

func marshalSnapshot(snapshot any) json.RawMessage {
	encoded, err := json.Marshal(snapshot)
	if err != nil {
		return nil
	}
	return encoded
}

func formatMoney(value decimal.Decimal) string {
	return value.StringFixed(amountScale)
}
