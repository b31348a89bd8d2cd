package drawer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// OpenResult is returned by Open.
type OpenResult struct {
	Receipt
	Session Session
}

// EndShiftResult is returned by EndShift.
type EndShiftResult struct {
	Receipt
	Session      Session
	Breakdown    BalanceBreakdown
	Counted      decimal.Decimal
	Variance     decimal.Decimal
	VarianceType VarianceType
}

// Open starts a shift for the cashier with the given opening float.
// Stale sessions from earlier dates are auto-closed first.
func (service *Service) Open(ctx context.Context, cashierID CashierID, startingAmount Amount, provenance Provenance) (OpenResult, error) {
	// Sweep failures are reported through the operation logger; the conflict check below still holds.
	_, _ = service.Sweep(ctx)

	now := service.nowFn()
	var session Session
	operationError := service.store.WithTx(ctx, func(ctx context.Context, transactionStore Store) error {
		_, err := transactionStore.FindActiveSession(ctx, cashierID)
		if err == nil {
			return ErrActiveSessionExists
		}
		if !errors.Is(err, ErrNoActiveSession) {
			return err
		}
		today := ShiftDateOf(now, service.location)
		created, err := transactionStore.CreateSession(ctx, NewSession{
			CashierID:      cashierID,
			SessionDate:    today,
			StartTime:      now,
			StartingAmount: startingAmount,
		})
		if err != nil {
			return err
		}
		if _, err := transactionStore.InsertTransaction(ctx, NewTransaction{
			CashierID:    cashierID,
			Category:     CategoryOpeningFloat,
			Amount:       startingAmount,
			Description:  openingFloatDescription,
			Status:       TransactionStatusCompleted,
			BusinessDate: today,
			CreatedAt:    now,
		}); err != nil {
			return err
		}
		session = created
		return nil
	})

	var result OpenResult
	if operationError == nil {
		result.Session = session
		result.Message = fmt.Sprintf("Shift started with %s in the drawer", startingAmount)
		result.AuditError = service.recordActivity(ctx, ActivityEntry{
			CashierID:   cashierID.String(),
			Action:      activityStartSession,
			TableName:   tableSessions,
			RecordID:    session.ID,
			NewValues:   snapshotOpenSession(session),
			Description: result.Message,
			IPAddress:   provenance.IPAddress,
			UserAgent:   provenance.UserAgent,
		})
	}
	service.logOperation(ctx, OperationLog{
		Operation:  operationOpen,
		CashierID:  cashierID,
		SessionID:  session.ID,
		Amount:     startingAmount,
		Error:      operationError,
		AuditError: result.AuditError,
	})
	if operationError != nil {
		return OpenResult{}, operationError
	}
	return result, nil
}

// EndShift reconciles the counted drawer against the expected balance and closes the active session.
func (service *Service) EndShift(ctx context.Context, cashierID CashierID, counted Amount, provenance Provenance) (EndShiftResult, error) {
	now := service.nowFn()
	var (
		result  EndShiftResult
		closing Session
		closure SessionClosure
	)
	operationError := service.store.WithTx(ctx, func(ctx context.Context, transactionStore Store) error {
		session, err := transactionStore.FindActiveSession(ctx, cashierID)
		if err != nil {
			return err
		}
		breakdown, err := service.computeBreakdown(ctx, transactionStore, cashierID, session.SessionDate)
		if err != nil {
			return err
		}
		variance := counted.Decimal().Sub(breakdown.ExpectedBalance)
		if _, err := transactionStore.InsertTransaction(ctx, NewTransaction{
			CashierID:    cashierID,
			Category:     CategoryShiftCount,
			Amount:       counted,
			Description:  shiftCountDescription(counted.Decimal(), breakdown.ExpectedBalance, variance),
			Status:       TransactionStatusCompleted,
			BusinessDate: ShiftDateOf(now, service.location),
			CreatedAt:    now,
		}); err != nil {
			return err
		}
		closure = closureFor(session.ID, SessionStatusClosed, now, counted.Decimal(), breakdown)
		if err := transactionStore.CloseSession(ctx, closure); err != nil {
			return err
		}
		if err := transactionStore.InsertVariance(ctx, VarianceRecord{
			SessionID:       session.ID,
			CashierID:       cashierID.String(),
			ExpectedBalance: breakdown.ExpectedBalance,
			ActualCounted:   counted.Decimal(),
			VarianceAmount:  variance,
			VarianceType:    ClassifyVariance(variance),
			ShiftDate:       session.SessionDate,
			Closure:         ClosureEndShift,
			CreatedAt:       now,
		}); err != nil {
			return err
		}
		closing = session
		result.Breakdown = breakdown
		result.Counted = counted.Decimal()
		result.Variance = variance
		result.VarianceType = ClassifyVariance(variance)
		return nil
	})

	if operationError == nil {
		result.Session = applyClosure(closing, closure)
		result.Message = endShiftMessage(result.Breakdown, result.Counted, result.Variance)
		result.AuditError = service.recordActivity(ctx, ActivityEntry{
			CashierID:   cashierID.String(),
			Action:      activityEndSession,
			TableName:   tableSessions,
			RecordID:    closing.ID,
			OldValues:   snapshotOpenSession(closing),
			NewValues:   snapshotClosure(closing, closure),
			Description: result.Message,
			IPAddress:   provenance.IPAddress,
			UserAgent:   provenance.UserAgent,
		})
	}
	service.logOperation(ctx, OperationLog{
		Operation:  operationEndShift,
		CashierID:  cashierID,
		SessionID:  closing.ID,
		Amount:     counted,
		Error:      operationError,
		AuditError: result.AuditError,
	})
	if operationError != nil {
		return EndShiftResult{}, operationError
	}
	return result, nil
}

func closureFor(sessionID string, status SessionStatus, endTime time.Time, ending decimal.Decimal, breakdown BalanceBreakdown) SessionClosure {
	return SessionClosure{
		SessionID:    sessionID,
		Status:       status,
		EndTime:      endTime,
		EndingAmount: ending,
		TotalCashIn:  breakdown.OpeningFloat.Add(breakdown.CashIns),
		TotalCashOut: breakdown.CashOuts.Add(breakdown.SafeDrops),
		TotalSales:   breakdown.CashSales,
		Variance:     ending.Sub(breakdown.ExpectedBalance),
	}
}

func applyClosure(session Session, closure SessionClosure) Session {
	endTime := closure.EndTime
	ending := closure.EndingAmount
	session.Status = closure.Status
	session.EndTime = &endTime
	session.EndingAmount = &ending
	session.TotalCashIn = closure.TotalCashIn
	session.TotalCashOut = closure.TotalCashOut
	session.TotalSales = closure.TotalSales
	session.Variance = closure.Variance
	return session
}

func endShiftMessage(breakdown BalanceBreakdown, counted decimal.Decimal, variance decimal.Decimal) string {
	detail := fmt.Sprintf("Expected %s (float %s + cash in %s + sales %s - cash out %s - safe drops %s), counted %s.",
		formatMoney(breakdown.ExpectedBalance),
		formatMoney(breakdown.OpeningFloat),
		formatMoney(breakdown.CashIns),
		formatMoney(breakdown.CashSales),
		formatMoney(breakdown.CashOuts),
		formatMoney(breakdown.SafeDrops),
		formatMoney(counted),
	)
	switch ClassifyVariance(variance) {
	case VarianceExcess:
		return fmt.Sprintf("Shift ended with an excess of %s. %s", formatMoney(variance), detail)
	case VarianceDeficit:
		return fmt.Sprintf("Shift ended with a shortage of %s. %s", formatMoney(variance.Abs()), detail)
	default:
		return fmt.Sprintf("Shift ended and the drawer balanced. %s", detail)
	}
}
