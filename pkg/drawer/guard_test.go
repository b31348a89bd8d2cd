package drawer

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
)

func TestEditTransactionGuard(test *testing.T) {
	test.Parallel()
	testCases := []struct {
		name    string
		prepare func(test *testing.T, fixture *serviceFixture) TransactionID
		wantErr error
	}{
		{
			name: "current shift row is editable",
			prepare: func(test *testing.T, fixture *serviceFixture) TransactionID {
				openShift(test, fixture, cashierValue)
				return recordCashIn(test, fixture, cashierValue)
			},
		},
		{
			name: "unknown row",
			prepare: func(test *testing.T, fixture *serviceFixture) TransactionID {
				openShift(test, fixture, cashierValue)
				return mustTransactionID(test, "txn-missing")
			},
			wantErr: ErrTransactionNotFound,
		},
		{
			name: "row of another cashier",
			prepare: func(test *testing.T, fixture *serviceFixture) TransactionID {
				openShift(test, fixture, cashierValue)
				return recordCashIn(test, fixture, otherCashierValue)
			},
			wantErr: ErrTransactionNotFound,
		},
		{
			name: "no active session",
			prepare: func(test *testing.T, fixture *serviceFixture) TransactionID {
				return recordCashIn(test, fixture, cashierValue)
			},
			wantErr: ErrNoActiveSession,
		},
		{
			name: "row from an earlier date",
			prepare: func(test *testing.T, fixture *serviceFixture) TransactionID {
				transactionID := recordCashIn(test, fixture, cashierValue)
				fixture.clock.advanceDays(1)
				openShift(test, fixture, cashierValue)
				return transactionID
			},
			wantErr: ErrTransactionSettled,
		},
		{
			name: "row from yesterday's closed session",
			prepare: func(test *testing.T, fixture *serviceFixture) TransactionID {
				openShift(test, fixture, cashierValue)
				transactionID := recordCashIn(test, fixture, cashierValue)
				if _, err := fixture.service.EndShift(context.Background(), mustCashierID(test, cashierValue), mustAmount(test, "150"), testProvenance); err != nil {
					test.Fatalf("end shift failed: %v", err)
				}
				fixture.clock.advanceDays(1)
				openShift(test, fixture, cashierValue)
				return transactionID
			},
			wantErr: ErrTransactionSettled,
		},
		{
			name: "opening float is locked",
			prepare: func(test *testing.T, fixture *serviceFixture) TransactionID {
				openShift(test, fixture, cashierValue)
				return mustTransactionID(test, fixture.store.transactions[0].ID)
			},
			wantErr: ErrTransactionLocked,
		},
	}
	for _, testCase := range testCases {
		testCase := testCase
		test.Run(testCase.name, func(test *testing.T) {
			test.Parallel()
			fixture := newServiceFixture(test)
			transactionID := testCase.prepare(test, fixture)
			auditBefore := len(fixture.sink.entries)

			result, err := fixture.service.EditTransaction(context.Background(), mustCashierID(test, cashierValue), transactionID, mustAmount(test, "75"), "corrected", testProvenance)
			if testCase.wantErr != nil {
				if !errors.Is(err, testCase.wantErr) {
					test.Fatalf(errorMismatch, testCase.wantErr, err)
				}
				if len(fixture.sink.entries) != auditBefore {
					test.Fatalf("refused edit must not be audited")
				}
				return
			}
			if err != nil {
				test.Fatalf("edit failed: %v", err)
			}
			if formatMoney(result.After.Amount) != "75.00" || result.After.Description != "CORRECTED" || formatMoney(result.Before.Amount) != "50.00" {
				test.Fatalf("unexpected edit result %+v", result)
			}
		})
	}
}

func TestEditAndDeleteAuditValues(test *testing.T) {
	test.Parallel()
	fixture := newServiceFixture(test)
	cashierID := mustCashierID(test, cashierValue)
	openShift(test, fixture, cashierValue)
	transactionID := recordCashIn(test, fixture, cashierValue)
	ctx := context.Background()

	if _, err := fixture.service.EditTransaction(ctx, cashierID, transactionID, mustAmount(test, "60"), "adjusted", testProvenance); err != nil {
		test.Fatalf("edit failed: %v", err)
	}
	editEntry := fixture.sink.entries[len(fixture.sink.entries)-1]
	var oldValues, newValues transactionSnapshot
	if err := json.Unmarshal(editEntry.OldValues, &oldValues); err != nil {
		test.Fatalf("old values: %v", err)
	}
	if err := json.Unmarshal(editEntry.NewValues, &newValues); err != nil {
		test.Fatalf("new values: %v", err)
	}
	if editEntry.Action != activityEditTransaction || oldValues.Amount != "50.00" || newValues.Amount != "60.00" {
		test.Fatalf("unexpected edit audit %+v", editEntry)
	}

	result, err := fixture.service.DeleteTransaction(ctx, cashierID, transactionID, testProvenance)
	if err != nil {
		test.Fatalf("delete failed: %v", err)
	}
	if formatMoney(result.Removed.Amount) != "60.00" {
		test.Fatalf("unexpected removed row %+v", result.Removed)
	}
	deleteEntry := fixture.sink.entries[len(fixture.sink.entries)-1]
	if deleteEntry.Action != activityDeleteTransaction || deleteEntry.OldValues == nil || deleteEntry.NewValues != nil {
		test.Fatalf("unexpected delete audit %+v", deleteEntry)
	}
	if _, err := fixture.store.GetTransaction(ctx, transactionID); !errors.Is(err, ErrTransactionNotFound) {
		test.Fatalf("expected row to be gone, got %v", err)
	}
}

func TestDeleteRefusesSettledRow(test *testing.T) {
	test.Parallel()
	fixture := newServiceFixture(test)
	cashierID := mustCashierID(test, cashierValue)
	openShift(test, fixture, cashierValue)
	transactionID := recordCashIn(test, fixture, cashierValue)
	if _, err := fixture.service.EndShift(context.Background(), cashierID, mustAmount(test, "150"), testProvenance); err != nil {
		test.Fatalf("end shift failed: %v", err)
	}
	fixture.clock.advanceDays(1)
	openShift(test, fixture, cashierValue)

	_, err := fixture.service.DeleteTransaction(context.Background(), cashierID, transactionID, testProvenance)
	if !errors.Is(err, ErrTransactionSettled) || !errors.Is(err, ErrConflict) {
		test.Fatalf(errorMismatch, ErrTransactionSettled, err)
	}
	if _, err := fixture.store.GetTransaction(context.Background(), transactionID); err != nil {
		test.Fatalf("expected row to remain, got %v", err)
	}
}

func TestEditRejectsNonPositiveAmount(test *testing.T) {
	test.Parallel()
	fixture := newServiceFixture(test)
	openShift(test, fixture, cashierValue)
	transactionID := recordCashIn(test, fixture, cashierValue)

	_, err := fixture.service.EditTransaction(context.Background(), mustCashierID(test, cashierValue), transactionID, mustAmount(test, "0"), "zero", testProvenance)
	if !errors.Is(err, ErrInvalidAmount) {
		test.Fatalf(errorMismatch, ErrInvalidAmount, err)
	}
}

func openShift(test *testing.T, fixture *serviceFixture, cashier string) {
	test.Helper()
	if _, err := fixture.service.Open(context.Background(), mustCashierID(test, cashier), mustAmount(test, "100"), testProvenance); err != nil {
		test.Fatalf("open failed: %v", err)
	}
}

func recordCashIn(test *testing.T, fixture *serviceFixture, cashier string) TransactionID {
	test.Helper()
	result, err := fixture.service.CashIn(context.Background(), mustCashierID(test, cashier), mustAmount(test, "50"), MovementDetails{Reason: "change"}, testProvenance)
	if err != nil {
		test.Fatalf("cash in failed: %v", err)
	}
	return mustTransactionID(test, result.Transaction.ID)
}
