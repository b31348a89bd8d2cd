package gormstore

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/MarkoPoloResearchLab/cashdrawer/pkg/drawer"
	"github.com/glebarez/sqlite"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const (
	cashierValue = "cashier-7"
	otherCashier = "cashier-9"
	shiftDay     = "2024-03-04"
)

func openTestDB(test *testing.T) *gorm.DB {
	test.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(test.Name())
	dsn := fmt.Sprintf("file:drawer_%s?mode=memory&cache=shared&_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)", name)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(test, err)
	sqlDB, err := db.DB()
	require.NoError(test, err)
	sqlDB.SetMaxOpenConns(1)
	test.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(test, AutoMigrate(db))
	return db
}

func mustCashier(test *testing.T, raw string) drawer.CashierID {
	test.Helper()
	cashierID, err := drawer.NewCashierID(raw)
	require.NoError(test, err)
	return cashierID
}

func mustAmount(test *testing.T, raw string) drawer.Amount {
	test.Helper()
	amount, err := drawer.ParseAmount(raw)
	require.NoError(test, err)
	return amount
}

func mustDate(test *testing.T, raw string) drawer.ShiftDate {
	test.Helper()
	date, err := drawer.ParseShiftDate(raw)
	require.NoError(test, err)
	return date
}

func requireMoney(test *testing.T, want string, got decimal.Decimal) {
	test.Helper()
	require.Equal(test, want, got.StringFixed(2))
}

func insertSale(test *testing.T, db *gorm.DB, receipt string, cashier string, amount string, method string, status string, at time.Time) {
	test.Helper()
	total, err := decimal.NewFromString(amount)
	require.NoError(test, err)
	require.NoError(test, db.Create(&Sale{
		ReceiptNumber: receipt,
		EmployeeID:    cashier,
		TotalAmount:   total,
		PaymentMethod: method,
		Status:        status,
		SaleDate:      at,
	}).Error)
}

func TestCreateSessionEnforcesSingleActiveSession(test *testing.T) {
	store := New(openTestDB(test))
	ctx := context.Background()
	input := drawer.NewSession{
		CashierID:      mustCashier(test, cashierValue),
		SessionDate:    mustDate(test, shiftDay),
		StartTime:      time.Date(2024, time.March, 4, 8, 0, 0, 0, time.UTC),
		StartingAmount: mustAmount(test, "100"),
	}

	first, err := store.CreateSession(ctx, input)
	require.NoError(test, err)
	require.NotEmpty(test, first.ID)
	require.Equal(test, drawer.SessionStatusActive, first.Status)

	_, err = store.CreateSession(ctx, input)
	require.ErrorIs(test, err, drawer.ErrActiveSessionExists)
	require.ErrorIs(test, err, drawer.ErrConflict)

	require.NoError(test, store.CloseSession(ctx, drawer.SessionClosure{
		SessionID:    first.ID,
		Status:       drawer.SessionStatusClosed,
		EndTime:      time.Date(2024, time.March, 4, 17, 0, 0, 0, time.UTC),
		EndingAmount: decimal.RequireFromString("100"),
	}))
	second, err := store.CreateSession(ctx, input)
	require.NoError(test, err)
	require.NotEqual(test, first.ID, second.ID)
}

func TestCloseSessionIsGuardedByStatus(test *testing.T) {
	store := New(openTestDB(test))
	ctx := context.Background()
	session, err := store.CreateSession(ctx, drawer.NewSession{
		CashierID:      mustCashier(test, cashierValue),
		SessionDate:    mustDate(test, shiftDay),
		StartTime:      time.Date(2024, time.March, 4, 8, 0, 0, 0, time.UTC),
		StartingAmount: mustAmount(test, "50"),
	})
	require.NoError(test, err)
	closure := drawer.SessionClosure{
		SessionID:    session.ID,
		Status:       drawer.SessionStatusAutoClosed,
		EndTime:      mustDate(test, shiftDay).EndOfDay(time.UTC),
		EndingAmount: decimal.RequireFromString("75.5"),
		TotalCashIn:  decimal.RequireFromString("50"),
		Variance:     decimal.RequireFromString("25.5"),
	}
	require.NoError(test, store.CloseSession(ctx, closure))
	require.ErrorIs(test, store.CloseSession(ctx, closure), drawer.ErrSessionClosed)

	reloaded, err := store.LockSession(ctx, session.ID)
	require.NoError(test, err)
	require.Equal(test, drawer.SessionStatusAutoClosed, reloaded.Status)
	require.NotNil(test, reloaded.EndingAmount)
	requireMoney(test, "75.50", *reloaded.EndingAmount)
	requireMoney(test, "25.50", reloaded.Variance)

	_, err = store.FindActiveSession(ctx, mustCashier(test, cashierValue))
	require.ErrorIs(test, err, drawer.ErrNoActiveSession)
}

func TestListStaleSessionsSkipsToday(test *testing.T) {
	store := New(openTestDB(test))
	ctx := context.Background()
	for cashier, day := range map[string]string{cashierValue: "2024-03-03", otherCashier: shiftDay} {
		_, err := store.CreateSession(ctx, drawer.NewSession{
			CashierID:      mustCashier(test, cashier),
			SessionDate:    mustDate(test, day),
			StartTime:      time.Date(2024, time.March, 3, 8, 0, 0, 0, time.UTC),
			StartingAmount: mustAmount(test, "10"),
		})
		require.NoError(test, err)
	}
	stale, err := store.ListStaleSessions(ctx, mustDate(test, shiftDay))
	require.NoError(test, err)
	require.Len(test, stale, 1)
	require.Equal(test, cashierValue, stale[0].CashierID)
}

func TestTransactionsSumAndShiftCount(test *testing.T) {
	store := New(openTestDB(test))
	ctx := context.Background()
	cashierID := mustCashier(test, cashierValue)
	date := mustDate(test, shiftDay)
	base := time.Date(2024, time.March, 4, 9, 0, 0, 0, time.UTC)
	rows := []struct {
		category drawer.Category
		amount   string
	}{
		{drawer.CategoryOpeningFloat, "100"},
		{drawer.CategoryCashIn, "50.25"},
		{drawer.CategoryCashIn, "4.75"},
		{drawer.CategoryCashOut, "20"},
		{drawer.CategorySafeDrop, "10"},
		{drawer.CategoryShiftCount, "140"},
		{drawer.CategoryShiftCount, "155"},
	}
	for index, row := range rows {
		_, err := store.InsertTransaction(ctx, drawer.NewTransaction{
			CashierID:    cashierID,
			Category:     row.category,
			Amount:       mustAmount(test, row.amount),
			Description:  string(row.category),
			Status:       drawer.TransactionStatusCompleted,
			BusinessDate: date,
			CreatedAt:    base.Add(time.Duration(index) * time.Minute),
		})
		require.NoError(test, err)
	}

	totals, err := store.SumByCategory(ctx, cashierID, date)
	require.NoError(test, err)
	requireMoney(test, "100.00", totals.Get(drawer.CategoryOpeningFloat))
	requireMoney(test, "55.00", totals.Get(drawer.CategoryCashIn))
	requireMoney(test, "20.00", totals.Get(drawer.CategoryCashOut))
	requireMoney(test, "10.00", totals.Get(drawer.CategorySafeDrop))

	counted, found, err := store.LatestShiftCount(ctx, cashierID, date)
	require.NoError(test, err)
	require.True(test, found)
	requireMoney(test, "155.00", counted)

	_, found, err = store.LatestShiftCount(ctx, cashierID, mustDate(test, "2024-03-05"))
	require.NoError(test, err)
	require.False(test, found)

	listed, err := store.ListTransactions(ctx, cashierID, date)
	require.NoError(test, err)
	require.Len(test, listed, len(rows))
	require.Equal(test, drawer.CategoryOpeningFloat, listed[0].Category)
	require.Equal(test, drawer.TransactionTypeCashOut, listed[len(listed)-1].Type)
}

func TestUpdateAndDeleteTransaction(test *testing.T) {
	store := New(openTestDB(test))
	ctx := context.Background()
	inserted, err := store.InsertTransaction(ctx, drawer.NewTransaction{
		CashierID:    mustCashier(test, cashierValue),
		Category:     drawer.CategoryCashOut,
		Amount:       mustAmount(test, "12"),
		Description:  "SUPPLIER",
		Status:       drawer.TransactionStatusPending,
		BusinessDate: mustDate(test, shiftDay),
		CreatedAt:    time.Date(2024, time.March, 4, 9, 0, 0, 0, time.UTC),
	})
	require.NoError(test, err)
	transactionID, err := drawer.NewTransactionID(inserted.ID)
	require.NoError(test, err)

	updated, err := store.UpdateTransaction(ctx, drawer.TransactionUpdate{
		TransactionID: transactionID,
		Amount:        mustAmount(test, "13.5"),
		Description:   "SUPPLIER REFUND",
		UpdatedAt:     time.Date(2024, time.March, 4, 10, 0, 0, 0, time.UTC),
	})
	require.NoError(test, err)
	requireMoney(test, "13.50", updated.Amount)
	require.Equal(test, "SUPPLIER REFUND", updated.Description)
	require.Equal(test, drawer.TransactionStatusPending, updated.Status)

	require.NoError(test, store.DeleteTransaction(ctx, transactionID))
	_, err = store.GetTransaction(ctx, transactionID)
	require.ErrorIs(test, err, drawer.ErrTransactionNotFound)
	require.ErrorIs(test, store.DeleteTransaction(ctx, transactionID), drawer.ErrTransactionNotFound)
}

func TestInsertVarianceOncePerSession(test *testing.T) {
	store := New(openTestDB(test))
	ctx := context.Background()
	record := drawer.VarianceRecord{
		SessionID:       "5b0c8f7e-1f0e-4a4c-9d55-6a3f5c1e2d10",
		CashierID:       cashierValue,
		ExpectedBalance: decimal.RequireFromString("150"),
		ActualCounted:   decimal.RequireFromString("140"),
		VarianceAmount:  decimal.RequireFromString("-10"),
		VarianceType:    drawer.VarianceDeficit,
		ShiftDate:       mustDate(test, shiftDay),
		Closure:         drawer.ClosureEndShift,
		CreatedAt:       time.Date(2024, time.March, 4, 17, 0, 0, 0, time.UTC),
	}
	require.NoError(test, store.InsertVariance(ctx, record))
	require.ErrorIs(test, store.InsertVariance(ctx, record), drawer.ErrVarianceRecorded)
}

func TestGetConfirmedSalesTotalFiltersSales(test *testing.T) {
	db := openTestDB(test)
	store := New(db)
	day := time.Date(2024, time.March, 4, 0, 0, 0, 0, time.UTC)
	insertSale(test, db, "R-1", cashierValue, "30", "cash", "confirmed", day.Add(10*time.Hour))
	insertSale(test, db, "R-2", cashierValue, "12.5", "cash", "confirmed", day.Add(23*time.Hour))
	insertSale(test, db, "R-3", cashierValue, "999", "mpesa", "confirmed", day.Add(11*time.Hour))
	insertSale(test, db, "R-4", cashierValue, "500", "cash", "pending", day.Add(12*time.Hour))
	insertSale(test, db, "R-5", cashierValue, "400", "cash", "confirmed", day.Add(25*time.Hour))
	insertSale(test, db, "R-6", otherCashier, "300", "cash", "confirmed", day.Add(13*time.Hour))

	total, err := store.GetConfirmedSalesTotal(context.Background(), mustCashier(test, cashierValue), mustDate(test, shiftDay))
	require.NoError(test, err)
	requireMoney(test, "42.50", total)

	empty, err := store.GetConfirmedSalesTotal(context.Background(), mustCashier(test, "nobody"), mustDate(test, shiftDay))
	require.NoError(test, err)
	require.True(test, empty.IsZero())
}

func TestGetConfirmedSalesTotalComparesSaleInstants(test *testing.T) {
	db := openTestDB(test)
	eastAfrica := time.FixedZone("EAT", 3*60*60)
	insertSale(test, db, "R-1", cashierValue, "30", "cash", "confirmed", time.Date(2024, time.March, 4, 22, 30, 0, 0, eastAfrica))
	insertSale(test, db, "R-2", cashierValue, "12", "cash", "confirmed", time.Date(2024, time.March, 4, 0, 30, 0, 0, eastAfrica))
	insertSale(test, db, "R-3", cashierValue, "500", "cash", "confirmed", time.Date(2024, time.March, 5, 0, 30, 0, 0, eastAfrica))
	insertSale(test, db, "R-4", cashierValue, "400", "cash", "confirmed", time.Date(2024, time.March, 3, 20, 59, 0, 0, time.UTC))

	local := New(db, WithLocation(eastAfrica))
	total, err := local.GetConfirmedSalesTotal(context.Background(), mustCashier(test, cashierValue), mustDate(test, shiftDay))
	require.NoError(test, err)
	requireMoney(test, "42.00", total)

	utc := New(db)
	total, err = utc.GetConfirmedSalesTotal(context.Background(), mustCashier(test, cashierValue), mustDate(test, shiftDay))
	require.NoError(test, err)
	requireMoney(test, "530.00", total)
}

func TestIsUniqueViolationMatchesOnlyItsIndex(test *testing.T) {
	db := openTestDB(test)
	startedAt := time.Date(2024, time.March, 4, 8, 0, 0, 0, time.UTC)
	active := CashDrawerSession{
		CashierID:   cashierValue,
		SessionDate: shiftDay,
		StartTime:   startedAt,
		Status:      string(drawer.SessionStatusActive),
		CreatedAt:   startedAt,
		UpdatedAt:   startedAt,
	}
	require.NoError(test, db.Create(&active).Error)

	second := active
	second.ID = ""
	err := db.Create(&second).Error
	require.Error(test, err)
	require.True(test, isUniqueViolation(err, constraintActiveSession))
	require.False(test, isUniqueViolation(err, constraintSessionVariance))

	sameID := active
	sameID.Status = string(drawer.SessionStatusClosed)
	err = db.Create(&sameID).Error
	require.Error(test, err)
	require.False(test, isUniqueViolation(err, constraintActiveSession))

	err = db.Exec("insert into cash_drawer_sessions (id, session_date) values (?, ?)", "missing-columns", shiftDay).Error
	require.Error(test, err)
	require.False(test, isUniqueViolation(err, constraintActiveSession))
}

func TestRecordActivityStoresJSON(test *testing.T) {
	db := openTestDB(test)
	store := New(db)
	require.NoError(test, store.RecordActivity(context.Background(), drawer.ActivityEntry{
		CashierID:   cashierValue,
		Action:      "edit_transaction",
		TableName:   "cash_drawer_transactions",
		RecordID:    "txn-1",
		OldValues:   []byte(`{"amount":"50.00"}`),
		NewValues:   []byte(`{"amount":"60.00"}`),
		Description: "Transaction updated",
		IPAddress:   "10.0.0.5",
		UserAgent:   "pos-terminal/1.0",
		CreatedAt:   time.Date(2024, time.March, 4, 9, 0, 0, 0, time.UTC),
	}))
	require.NoError(test, store.RecordActivity(context.Background(), drawer.ActivityEntry{
		CashierID: cashierValue,
		Action:    "delete_transaction",
		TableName: "cash_drawer_transactions",
		RecordID:  "txn-1",
		OldValues: []byte(`{"amount":"60.00"}`),
	}))

	var count int64
	require.NoError(test, db.Model(&CashierActivityLog{}).Count(&count).Error)
	require.EqualValues(test, 2, count)

	var edit CashierActivityLog
	require.NoError(test, db.Where("action_type = ?", "edit_transaction").Take(&edit).Error)
	require.JSONEq(test, `{"amount":"50.00"}`, string(edit.OldValues))
	require.JSONEq(test, `{"amount":"60.00"}`, string(edit.NewValues))
	require.Equal(test, "cash_drawer_transactions", edit.TargetTable)
	require.Equal(test, "10.0.0.5", edit.IPAddress)
}

func TestSuggestDescriptionsEscapesWildcards(test *testing.T) {
	store := New(openTestDB(test))
	ctx := context.Background()
	for _, description := range []string{"100% TIPS", "100 NOTES", "100% TIPS", "PAYOUT"} {
		_, err := store.InsertTransaction(ctx, drawer.NewTransaction{
			CashierID:    mustCashier(test, cashierValue),
			Category:     drawer.CategoryCashIn,
			Amount:       mustAmount(test, "1"),
			Description:  description,
			Status:       drawer.TransactionStatusCompleted,
			BusinessDate: mustDate(test, shiftDay),
			CreatedAt:    time.Date(2024, time.March, 4, 9, 0, 0, 0, time.UTC),
		})
		require.NoError(test, err)
	}
	suggestions, err := store.SuggestDescriptions(ctx, drawer.CategoryCashIn, "100%", 10)
	require.NoError(test, err)
	require.Equal(test, []string{"100% TIPS"}, suggestions)

	all, err := store.SuggestDescriptions(ctx, drawer.CategoryCashIn, "", 2)
	require.NoError(test, err)
	require.Equal(test, []string{"100 NOTES", "100% TIPS"}, all)
}
