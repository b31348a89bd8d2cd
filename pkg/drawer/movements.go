package drawer

import (
	"context"
	"fmt"
)

// MovementResult is returned by CashIn, CashOut and SafeDrop.
type MovementResult struct {
	Receipt
	Transaction Transaction
}

type movement struct {
	operation string
	activity  string
	category  Category
	status    TransactionStatus
	verb      string
}

// CashIn records cash added to the drawer outside of sales.
func (service *Service) CashIn(ctx context.Context, cashierID CashierID, amount Amount, details MovementDetails, provenance Provenance) (MovementResult, error) {
	return service.recordMovement(ctx, movement{
		operation: operationCashIn,
		activity:  activityCashIn,
		category:  CategoryCashIn,
		status:    TransactionStatusCompleted,
		verb:      "Cash in",
	}, cashierID, amount, details, provenance)
}

// CashOut records cash taken from the drawer. Movements that need a manager's approval stay pending.
func (service *Service) CashOut(ctx context.Context, cashierID CashierID, amount Amount, details MovementDetails, requiresApproval bool, provenance Provenance) (MovementResult, error) {
	status := TransactionStatusCompleted
	if requiresApproval {
		status = TransactionStatusPending
	}
	return service.recordMovement(ctx, movement{
		operation: operationCashOut,
		activity:  activityCashOut,
		category:  CategoryCashOut,
		status:    status,
		verb:      "Cash out",
	}, cashierID, amount, details, provenance)
}

// SafeDrop records cash moved from the drawer to the safe.
func (service *Service) SafeDrop(ctx context.Context, cashierID CashierID, amount Amount, details MovementDetails, provenance Provenance) (MovementResult, error) {
	return service.recordMovement(ctx, movement{
		operation: operationSafeDrop,
		activity:  activitySafeDrop,
		category:  CategorySafeDrop,
		status:    TransactionStatusCompleted,
		verb:      "Safe drop",
	}, cashierID, amount, details, provenance)
}

func (service *Service) recordMovement(ctx context.Context, kind movement, cashierID CashierID, amount Amount, details MovementDetails, provenance Provenance) (MovementResult, error) {
	now := service.nowFn()
	var transaction Transaction
	operationError := func() error {
		if !amount.Decimal().IsPositive() {
			return fmt.Errorf("%w: must be greater than zero", ErrInvalidAmount)
		}
		description, err := composeDescription(kind.category, details)
		if err != nil {
			return err
		}
		return service.store.WithTx(ctx, func(ctx context.Context, transactionStore Store) error {
			if service.requireSession {
				if _, err := transactionStore.FindActiveSession(ctx, cashierID); err != nil {
					return err
				}
			}
			inserted, err := transactionStore.InsertTransaction(ctx, NewTransaction{
				CashierID:    cashierID,
				Category:     kind.category,
				Amount:       amount,
				Description:  description,
				Status:       kind.status,
				BusinessDate: ShiftDateOf(now, service.location),
				CreatedAt:    now,
			})
			if err != nil {
				return err
			}
			transaction = inserted
			return nil
		})
	}()

	var result MovementResult
	if operationError == nil {
		result.Transaction = transaction
		result.Message = fmt.Sprintf("%s of %s recorded", kind.verb, amount)
		if transaction.Status == TransactionStatusPending {
			result.Message += " and awaiting approval"
		}
		result.AuditError = service.recordActivity(ctx, ActivityEntry{
			CashierID:   cashierID.String(),
			Action:      kind.activity,
			TableName:   tableTransactions,
			RecordID:    transaction.ID,
			NewValues:   snapshotTransaction(transaction),
			Description: result.Message,
			IPAddress:   provenance.IPAddress,
			UserAgent:   provenance.UserAgent,
		})
	}
	service.logOperation(ctx, OperationLog{
		Operation:     kind.operation,
		CashierID:     cashierID,
		TransactionID: transaction.ID,
		Amount:        amount,
		Error:         operationError,
		AuditError:    result.AuditError,
	})
	if operationError != nil {
		return MovementResult{}, operationError
	}
	return result, nil
}
