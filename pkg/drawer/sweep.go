package drawer

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// AutoClosure describes one session closed by the sweep.
type AutoClosure struct {
	Session      Session
	Breakdown    BalanceBreakdown
	VarianceType VarianceType
}

// SweepResult lists the sessions closed by one sweep.
type SweepResult struct {
	Closed     []AutoClosure
	AuditError error
}

// Sweep auto-closes every active session dated before today. Running it again closes nothing.
func (service *Service) Sweep(ctx context.Context) (SweepResult, error) {
	today := service.Today()
	stale, err := service.store.ListStaleSessions(ctx, today)
	if err != nil {
		service.logOperation(ctx, OperationLog{Operation: operationSweep, Error: err})
		return SweepResult{}, err
	}

	var (
		result      SweepResult
		failures    []error
		auditErrors []error
	)
	for _, candidate := range stale {
		closed, ok, err := service.autoClose(ctx, candidate)
		cashierID := CashierID{value: candidate.CashierID}
		if err != nil {
			failures = append(failures, fmt.Errorf("session %s: %w", candidate.ID, err))
			service.logOperation(ctx, OperationLog{
				Operation: operationAutoClose,
				CashierID: cashierID,
				SessionID: candidate.ID,
				Error:     err,
			})
			continue
		}
		if !ok {
			continue
		}
		auditError := service.recordActivity(ctx, ActivityEntry{
			CashierID: candidate.CashierID,
			Action:    activityAutoCloseSession,
			TableName: tableSessions,
			RecordID:  candidate.ID,
			OldValues: snapshotOpenSession(candidate),
			NewValues: snapshotClosure(candidate, SessionClosure{
				Status:       closed.Session.Status,
				EndingAmount: endingOrZero(closed.Session),
				TotalCashIn:  closed.Session.TotalCashIn,
				TotalCashOut: closed.Session.TotalCashOut,
				TotalSales:   closed.Session.TotalSales,
				Variance:     closed.Session.Variance,
			}),
			Description: fmt.Sprintf("Session of %s auto-closed at end of day", candidate.SessionDate),
		})
		if auditError != nil {
			auditErrors = append(auditErrors, auditError)
		}
		service.logOperation(ctx, OperationLog{
			Operation:  operationAutoClose,
			CashierID:  cashierID,
			SessionID:  candidate.ID,
			Amount:     Amount{value: endingOrZero(closed.Session)},
			AuditError: auditError,
		})
		result.Closed = append(result.Closed, closed)
	}
	result.AuditError = errors.Join(auditErrors...)
	sweepError := errors.Join(failures...)
	if len(stale) > 0 || sweepError != nil {
		service.logOperation(ctx, OperationLog{Operation: operationSweep, Error: sweepError, AuditError: result.AuditError})
	}
	return result, sweepError
}

// autoClose closes one stale session in its own transaction. It reports false when another
// closer got there first.
func (service *Service) autoClose(ctx context.Context, candidate Session) (AutoClosure, bool, error) {
	now := service.nowFn()
	var (
		closed AutoClosure
		done   bool
	)
	err := service.store.WithTx(ctx, func(ctx context.Context, transactionStore Store) error {
		session, err := transactionStore.LockSession(ctx, candidate.ID)
		if err != nil {
			return err
		}
		if session.Status != SessionStatusActive {
			return nil
		}
		cashierID := CashierID{value: session.CashierID}
		breakdown, err := service.computeBreakdown(ctx, transactionStore, cashierID, session.SessionDate)
		if err != nil {
			return err
		}
		ending := breakdown.ExpectedBalance
		counted, found, err := transactionStore.LatestShiftCount(ctx, cashierID, session.SessionDate)
		if err != nil {
			return err
		}
		if found {
			ending = counted
		}
		closure := closureFor(session.ID, SessionStatusAutoClosed, session.SessionDate.EndOfDay(service.location), ending, breakdown)
		if err := transactionStore.CloseSession(ctx, closure); err != nil {
			if errors.Is(err, ErrSessionClosed) {
				return nil
			}
			return err
		}
		if err := transactionStore.InsertVariance(ctx, VarianceRecord{
			SessionID:       session.ID,
			CashierID:       session.CashierID,
			ExpectedBalance: breakdown.ExpectedBalance,
			ActualCounted:   ending,
			VarianceAmount:  closure.Variance,
			VarianceType:    ClassifyVariance(closure.Variance),
			ShiftDate:       session.SessionDate,
			Closure:         ClosureAutoClose,
			CreatedAt:       now,
		}); err != nil {
			return err
		}
		closed = AutoClosure{
			Session:      applyClosure(session, closure),
			Breakdown:    breakdown,
			VarianceType: ClassifyVariance(closure.Variance),
		}
		done = true
		return nil
	})
	if err != nil {
		return AutoClosure{}, false, err
	}
	return closed, done, nil
}

// endingOrZero returns the recorded ending amount or zero for sessions that have none.
func endingOrZero(session Session) decimal.Decimal {
	if session.EndingAmount == nil {
		return decimal.Zero
	}
	return *session.EndingAmount
}
