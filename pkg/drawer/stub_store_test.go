package drawer

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

type memStore struct {
	sessions     []Session
	transactions []Transaction
	variances    []VarianceRecord
	sequence     int

	insertTransactionError error
	sumByCategoryError     error
	listStaleError         error
	closeSessionError      error
}

func newMemStore() *memStore {
	return &memStore{}
}

func (store *memStore) WithTx(ctx context.Context, fn func(ctx context.Context, txStore Store) error) error {
	sessions := append([]Session(nil), store.sessions...)
	transactions := append([]Transaction(nil), store.transactions...)
	variances := append([]VarianceRecord(nil), store.variances...)
	if err := fn(ctx, store); err != nil {
		store.sessions = sessions
		store.transactions = transactions
		store.variances = variances
		return err
	}
	return nil
}

func (store *memStore) nextID(prefix string) string {
	store.sequence++
	return fmt.Sprintf("%s-%d", prefix, store.sequence)
}

func (store *memStore) FindActiveSession(_ context.Context, cashierID CashierID) (Session, error) {
	for _, session := range store.sessions {
		if session.CashierID == cashierID.String() && session.Status == SessionStatusActive {
			return session, nil
		}
	}
	return Session{}, ErrNoActiveSession
}

func (store *memStore) LockSession(_ context.Context, sessionID string) (Session, error) {
	for _, session := range store.sessions {
		if session.ID == sessionID {
			return session, nil
		}
	}
	return Session{}, fmt.Errorf("%w: session %s", ErrNotFound, sessionID)
}

func (store *memStore) ListStaleSessions(_ context.Context, before ShiftDate) ([]Session, error) {
	if store.listStaleError != nil {
		return nil, store.listStaleError
	}
	var stale []Session
	for _, session := range store.sessions {
		if session.Status == SessionStatusActive && session.SessionDate.Before(before) {
			stale = append(stale, session)
		}
	}
	return stale, nil
}

func (store *memStore) CreateSession(ctx context.Context, input NewSession) (Session, error) {
	if _, err := store.FindActiveSession(ctx, input.CashierID); err == nil {
		return Session{}, ErrActiveSessionExists
	}
	session := Session{
		ID:             store.nextID("session"),
		CashierID:      input.CashierID.String(),
		SessionDate:    input.SessionDate,
		StartTime:      input.StartTime,
		StartingAmount: input.StartingAmount.Decimal(),
		Status:         SessionStatusActive,
	}
	store.sessions = append(store.sessions, session)
	return session, nil
}

func (store *memStore) CloseSession(_ context.Context, closure SessionClosure) error {
	if store.closeSessionError != nil {
		return store.closeSessionError
	}
	for index, session := range store.sessions {
		if session.ID != closure.SessionID {
			continue
		}
		if session.Status != SessionStatusActive {
			return ErrSessionClosed
		}
		store.sessions[index] = applyClosure(session, closure)
		return nil
	}
	return ErrSessionClosed
}

func (store *memStore) InsertTransaction(_ context.Context, input NewTransaction) (Transaction, error) {
	if store.insertTransactionError != nil {
		return Transaction{}, store.insertTransactionError
	}
	transaction := Transaction{
		ID:           store.nextID("txn"),
		CashierID:    input.CashierID.String(),
		Type:         input.Category.Type(),
		Category:     input.Category,
		Amount:       input.Amount.Decimal(),
		Description:  input.Description,
		Status:       input.Status,
		BusinessDate: input.BusinessDate,
		CreatedAt:    input.CreatedAt,
		UpdatedAt:    input.CreatedAt,
	}
	store.transactions = append(store.transactions, transaction)
	return transaction, nil
}

func (store *memStore) GetTransaction(_ context.Context, transactionID TransactionID) (Transaction, error) {
	for _, transaction := range store.transactions {
		if transaction.ID == transactionID.String() {
			return transaction, nil
		}
	}
	return Transaction{}, ErrTransactionNotFound
}

func (store *memStore) UpdateTransaction(_ context.Context, update TransactionUpdate) (Transaction, error) {
	for index, transaction := range store.transactions {
		if transaction.ID != update.TransactionID.String() {
			continue
		}
		transaction.Amount = update.Amount.Decimal()
		transaction.Description = update.Description
		transaction.UpdatedAt = update.UpdatedAt
		store.transactions[index] = transaction
		return transaction, nil
	}
	return Transaction{}, ErrTransactionNotFound
}

func (store *memStore) DeleteTransaction(_ context.Context, transactionID TransactionID) error {
	for index, transaction := range store.transactions {
		if transaction.ID == transactionID.String() {
			store.transactions = append(store.transactions[:index], store.transactions[index+1:]...)
			return nil
		}
	}
	return ErrTransactionNotFound
}

func (store *memStore) ListTransactions(_ context.Context, cashierID CashierID, date ShiftDate) ([]Transaction, error) {
	var listed []Transaction
	for _, transaction := range store.transactions {
		if transaction.CashierID == cashierID.String() && transaction.BusinessDate == date {
			listed = append(listed, transaction)
		}
	}
	return listed, nil
}

func (store *memStore) SumByCategory(ctx context.Context, cashierID CashierID, date ShiftDate) (CategoryTotals, error) {
	if store.sumByCategoryError != nil {
		return nil, store.sumByCategoryError
	}
	listed, _ := store.ListTransactions(ctx, cashierID, date)
	totals := CategoryTotals{}
	for _, transaction := range listed {
		totals[transaction.Category] = totals.Get(transaction.Category).Add(transaction.Amount)
	}
	return totals, nil
}

func (store *memStore) LatestShiftCount(ctx context.Context, cashierID CashierID, date ShiftDate) (decimal.Decimal, bool, error) {
	listed, _ := store.ListTransactions(ctx, cashierID, date)
	for index := len(listed) - 1; index >= 0; index-- {
		if listed[index].Category == CategoryShiftCount {
			return listed[index].Amount, true, nil
		}
	}
	return decimal.Zero, false, nil
}

func (store *memStore) SuggestDescriptions(_ context.Context, category Category, prefix string, limit int) ([]string, error) {
	seen := map[string]bool{}
	var suggestions []string
	for _, transaction := range store.transactions {
		if transaction.Category != category || !strings.HasPrefix(transaction.Description, prefix) || seen[transaction.Description] {
			continue
		}
		seen[transaction.Description] = true
		suggestions = append(suggestions, transaction.Description)
	}
	sort.Strings(suggestions)
	if len(suggestions) > limit {
		suggestions = suggestions[:limit]
	}
	return suggestions, nil
}

func (store *memStore) InsertVariance(_ context.Context, record VarianceRecord) error {
	for _, existing := range store.variances {
		if existing.SessionID == record.SessionID {
			return ErrVarianceRecorded
		}
	}
	store.variances = append(store.variances, record)
	return nil
}

func (store *memStore) sessionByID(test *testing.T, sessionID string) Session {
	test.Helper()
	for _, session := range store.sessions {
		if session.ID == sessionID {
			return session
		}
	}
	test.Fatalf("session %s not found", sessionID)
	return Session{}
}

func (store *memStore) countCategory(cashierID string, category Category) int {
	count := 0
	for _, transaction := range store.transactions {
		if transaction.CashierID == cashierID && transaction.Category == category {
			count++
		}
	}
	return count
}

type stubSales struct {
	totals map[string]decimal.Decimal
	err    error
}

func newStubSales() *stubSales {
	return &stubSales{totals: map[string]decimal.Decimal{}}
}

func (sales *stubSales) set(cashierID string, date string, total decimal.Decimal) {
	sales.totals[cashierID+"|"+date] = total
}

func (sales *stubSales) GetConfirmedSalesTotal(_ context.Context, cashierID CashierID, date ShiftDate) (decimal.Decimal, error) {
	if sales.err != nil {
		return decimal.Zero, sales.err
	}
	return sales.totals[cashierID.String()+"|"+date.String()], nil
}

type recorderSink struct {
	entries []ActivityEntry
	err     error
}

func (sink *recorderSink) RecordActivity(_ context.Context, entry ActivityEntry) error {
	if sink.err != nil {
		return sink.err
	}
	sink.entries = append(sink.entries, entry)
	return nil
}

type recorderLogger struct {
	entries []OperationLog
}

func (logger *recorderLogger) LogOperation(_ context.Context, entry OperationLog) {
	logger.entries = append(logger.entries, entry)
}

func (logger *recorderLogger) find(operation string) []OperationLog {
	var found []OperationLog
	for _, entry := range logger.entries {
		if entry.Operation == operation {
			found = append(found, entry)
		}
	}
	return found
}

type fakeClock struct {
	now time.Time
}

func (clock *fakeClock) Now() time.Time {
	return clock.now
}

func (clock *fakeClock) advanceDays(days int) {
	clock.now = clock.now.AddDate(0, 0, days)
}

type serviceFixture struct {
	service *Service
	store   *memStore
	sales   *stubSales
	sink    *recorderSink
	logger  *recorderLogger
	clock   *fakeClock
}

func newServiceFixture(test *testing.T, options ...ServiceOption) *serviceFixture {
	test.Helper()
	fixture := &serviceFixture{
		store:  newMemStore(),
		sales:  newStubSales(),
		sink:   &recorderSink{},
		logger: &recorderLogger{},
		clock:  &fakeClock{now: time.Date(2024, time.March, 4, 9, 30, 0, 0, time.UTC)},
	}
	options = append([]ServiceOption{WithOperationLogger(fixture.logger)}, options...)
	service, err := NewService(fixture.store, fixture.sales, fixture.sink, fixture.clock.Now, options...)
	if err != nil {
		test.Fatalf("service init failed: %v", err)
	}
	fixture.service = service
	return fixture
}

func mustCashierID(test *testing.T, raw string) CashierID {
	test.Helper()
	cashierID, err := NewCashierID(raw)
	if err != nil {
		test.Fatalf("cashier id: %v", err)
	}
	return cashierID
}

func mustTransactionID(test *testing.T, raw string) TransactionID {
	test.Helper()
	transactionID, err := NewTransactionID(raw)
	if err != nil {
		test.Fatalf("transaction id: %v", err)
	}
	return transactionID
}

func mustAmount(test *testing.T, raw string) Amount {
	test.Helper()
	amount, err := ParseAmount(raw)
	if err != nil {
		test.Fatalf("amount %q: %v", raw, err)
	}
	return amount
}

func mustShiftDate(test *testing.T, raw string) ShiftDate {
	test.Helper()
	date, err := ParseShiftDate(raw)
	if err != nil {
		test.Fatalf("shift date %q: %v", raw, err)
	}
	return date
}

func mustDecimal(test *testing.T, raw string) decimal.Decimal {
	test.Helper()
	value, err := decimal.NewFromString(raw)
	if err != nil {
		test.Fatalf("decimal %q: %v", raw, err)
	}
	return value
}
