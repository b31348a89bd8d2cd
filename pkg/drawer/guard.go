package drawer

import (
	"context"
	"fmt"
)

// EditResult is returned by EditTransaction.
type EditResult struct {
	Receipt
	Before Transaction
	After  Transaction
}

// DeleteResult is returned by DeleteTransaction.
type DeleteResult struct {
	Receipt
	Removed Transaction
}

// EditTransaction changes the amount and description of a row recorded during the current shift.
func (service *Service) EditTransaction(ctx context.Context, cashierID CashierID, transactionID TransactionID, newAmount Amount, newDescription string, provenance Provenance) (EditResult, error) {
	now := service.nowFn()
	var before, after Transaction
	operationError := func() error {
		if !newAmount.Decimal().IsPositive() {
			return fmt.Errorf("%w: must be greater than zero", ErrInvalidAmount)
		}
		return service.store.WithTx(ctx, func(ctx context.Context, transactionStore Store) error {
			current, err := service.guardTransaction(ctx, transactionStore, cashierID, transactionID)
			if err != nil {
				return err
			}
			description, err := composeDescription(current.Category, MovementDetails{Notes: newDescription})
			if err != nil {
				return err
			}
			updated, err := transactionStore.UpdateTransaction(ctx, TransactionUpdate{
				TransactionID: transactionID,
				Amount:        newAmount,
				Description:   description,
				UpdatedAt:     now,
			})
			if err != nil {
				return err
			}
			before = current
			after = updated
			return nil
		})
	}()

	var result EditResult
	if operationError == nil {
		result.Before = before
		result.After = after
		result.Message = fmt.Sprintf("Transaction updated from %s to %s", formatMoney(before.Amount), formatMoney(after.Amount))
		result.AuditError = service.recordActivity(ctx, ActivityEntry{
			CashierID:   cashierID.String(),
			Action:      activityEditTransaction,
			TableName:   tableTransactions,
			RecordID:    transactionID.String(),
			OldValues:   snapshotTransaction(before),
			NewValues:   snapshotTransaction(after),
			Description: result.Message,
			IPAddress:   provenance.IPAddress,
			UserAgent:   provenance.UserAgent,
		})
	}
	service.logOperation(ctx, OperationLog{
		Operation:     operationEdit,
		CashierID:     cashierID,
		TransactionID: transactionID.String(),
		Amount:        newAmount,
		Error:         operationError,
		AuditError:    result.AuditError,
	})
	if operationError != nil {
		return EditResult{}, operationError
	}
	return result, nil
}

// DeleteTransaction removes a row recorded during the current shift.
func (service *Service) DeleteTransaction(ctx context.Context, cashierID CashierID, transactionID TransactionID, provenance Provenance) (DeleteResult, error) {
	var removed Transaction
	operationError := service.store.WithTx(ctx, func(ctx context.Context, transactionStore Store) error {
		current, err := service.guardTransaction(ctx, transactionStore, cashierID, transactionID)
		if err != nil {
			return err
		}
		if err := transactionStore.DeleteTransaction(ctx, transactionID); err != nil {
			return err
		}
		removed = current
		return nil
	})

	var result DeleteResult
	if operationError == nil {
		result.Removed = removed
		result.Message = fmt.Sprintf("Transaction of %s deleted", formatMoney(removed.Amount))
		result.AuditError = service.recordActivity(ctx, ActivityEntry{
			CashierID:   cashierID.String(),
			Action:      activityDeleteTransaction,
			TableName:   tableTransactions,
			RecordID:    transactionID.String(),
			OldValues:   snapshotTransaction(removed),
			Description: result.Message,
			IPAddress:   provenance.IPAddress,
			UserAgent:   provenance.UserAgent,
		})
	}
	var amount Amount
	if operationError == nil {
		amount = Amount{value: removed.Amount}
	}
	service.logOperation(ctx, OperationLog{
		Operation:     operationDelete,
		CashierID:     cashierID,
		TransactionID: transactionID.String(),
		Amount:        amount,
		Error:         operationError,
		AuditError:    result.AuditError,
	})
	if operationError != nil {
		return DeleteResult{}, operationError
	}
	return result, nil
}

// guardTransaction loads a row and checks that the cashier may still change it:
// the row is theirs, they have an active session, and the row was created on that session's date.
func (service *Service) guardTransaction(ctx context.Context, store Store, cashierID CashierID, transactionID TransactionID) (Transaction, error) {
	transaction, err := store.GetTransaction(ctx, transactionID)
	if err != nil {
		return Transaction{}, err
	}
	if transaction.CashierID != cashierID.String() {
		return Transaction{}, ErrTransactionNotFound
	}
	session, err := store.FindActiveSession(ctx, cashierID)
	if err != nil {
		return Transaction{}, err
	}
	if transaction.BusinessDate != session.SessionDate {
		return Transaction{}, ErrTransactionSettled
	}
	if transaction.Category.SystemGenerated() {
		return Transaction{}, ErrTransactionLocked
	}
	return transaction, nil
}
