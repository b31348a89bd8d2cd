package pgstore

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/MarkoPoloResearchLab/cashdrawer/pkg/drawer"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

const (
	constraintActiveSession   = "uniq_cash_drawer_sessions_active_cashier"
	constraintSessionVariance = "uniq_cash_drawer_variances_session"
	pgUniqueViolationCode     = "23505"
	likeEscape                = `\`
	errorOperationStore       = "store"
	errorSubjectActivity      = "activity"
	errorSubjectBalance       = "balance"
	errorSubjectSales         = "sales"
	errorSubjectSession       = "session"
	errorSubjectTransaction   = "transaction"
	errorSubjectVariance      = "variance"
	errorCodeBegin            = "begin"
	errorCodeClose            = "close"
	errorCodeCommit           = "commit"
	errorCodeCreate           = "create"
	errorCodeDelete           = "delete"
	errorCodeDuplicate        = "duplicate"
	errorCodeGet              = "get"
	errorCodeInsert           = "insert"
	errorCodeInvalid          = "invalid"
	errorCodeList             = "list"
	errorCodeLookup           = "lookup"
	errorCodeSum              = "sum"
	errorCodeSuggest          = "suggest"
	errorCodeUpdate           = "update"

	sessionColumns = `
		id::text, cashier_id, session_date, start_time, end_time,
		starting_amount::text, ending_amount::text, status,
		total_cash_in::text, total_cash_out::text, total_sales::text, variance::text
	`

	transactionColumns = `
		id::text, employee_id, transaction_type, category, amount::text,
		description, status, business_date, created_at, updated_at
	`

	sqlFindActiveSession = `
		select ` + sessionColumns + `
		from cash_drawer_sessions
		where cashier_id = $1 and status = 'active'
		for update
	`

	sqlLockSession = `
		select ` + sessionColumns + `
		from cash_drawer_sessions
		where id = $1
		for update
	`

	sqlListStaleSessions = `
		select ` + sessionColumns + `
		from cash_drawer_sessions
		where status = 'active' and session_date < $1
		order by session_date asc
	`

	sqlInsertSession = `
		insert into cash_drawer_sessions(cashier_id, session_date, start_time, starting_amount, status, created_at, updated_at)
		values ($1, $2, $3, $4::numeric, 'active', $3, $3)
		returning ` + sessionColumns

	sqlCloseSession = `
		update cash_drawer_sessions
		set status = $2, end_time = $3, ending_amount = $4::numeric,
			total_cash_in = $5::numeric, total_cash_out = $6::numeric,
			total_sales = $7::numeric, variance = $8::numeric, updated_at = now()
		where id = $1 and status = 'active'
	`

	sqlInsertTransaction = `
		insert into cash_drawer_transactions(
			employee_id, transaction_type, category, amount, description, status, business_date, created_at, updated_at
		)
		values ($1, $2, $3, $4::numeric, $5, $6, $7, $8, $8)
		returning ` + transactionColumns

	sqlSelectTransaction = `
		select ` + transactionColumns + `
		from cash_drawer_transactions
		where id = $1
		for update
	`

	sqlUpdateTransaction = `
		update cash_drawer_transactions
		set amount = $2::numeric, description = $3, updated_at = $4
		where id = $1
		returning ` + transactionColumns

	sqlDeleteTransaction = `
		delete from cash_drawer_transactions where id = $1
	`

	sqlListTransactions = `
		select ` + transactionColumns + `
		from cash_drawer_transactions
		where employee_id = $1 and business_date = $2
		order by created_at asc, id asc
	`

	sqlSumByCategory = `
		select category, coalesce(sum(amount),0)::text
		from cash_drawer_transactions
		where employee_id = $1 and business_date = $2
		group by category
	`

	sqlLatestShiftCount = `
		select amount::text
		from cash_drawer_transactions
		where employee_id = $1 and business_date = $2 and category = 'shift_count'
		order by created_at desc, id desc
		limit 1
	`

	sqlSuggestDescriptions = `
		select distinct description
		from cash_drawer_transactions
		where category = $1 and description like $2 escape '\'
		order by description asc
		limit $3
	`

	sqlInsertVariance = `
		insert into cash_drawer_variances(
			session_id, employee_id, expected_balance, actual_counted, variance_amount, variance_type, shift_date, closure, created_at
		)
		values ($1, $2, $3::numeric, $4::numeric, $5::numeric, $6, $7, $8, $9)
	`

	sqlSumConfirmedCashSales = `
		select coalesce(sum(total_amount),0)::text
		from sales
		where employee_id = $1 and status = 'confirmed' and payment_method = 'cash'
		and sale_date >= $2 and sale_date < $3
	`

	sqlInsertActivity = `
		insert into cashier_activity_logs(
			cashier_id, action_type, table_name, record_id, old_values, new_values, description, ip_address, user_agent, created_at
		)
		values ($1, $2, $3, $4, $5::jsonb, $6::jsonb, $7, $8, $9, $10)
	`
)

type querier interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, arguments ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, arguments ...any) pgx.Row
}

// Option configures a Store.
type Option func(*Store)

// WithLocation sets the business time zone used to match sale timestamps to dates.
func WithLocation(location *time.Location) Option {
	return func(store *Store) {
		if location != nil {
			store.location = location
		}
	}
}

// Store implements drawer.Store, drawer.SalesTotals and drawer.ActivitySink using a pgx pool (autocommit).
type Store struct {
	queries
	pool *pgxpool.Pool
}

// TxStore implements drawer.Store for an active transaction.
type TxStore struct {
	queries
	tx pgx.Tx
}

type queries struct {
	db       querier
	location *time.Location
}

// New returns a Store backed by a pgx pool.
func New(pool *pgxpool.Pool, options ...Option) *Store {
	store := &Store{pool: pool, queries: queries{db: pool, location: time.UTC}}
	for _, option := range options {
		if option != nil {
			option(store)
		}
	}
	return store
}

func (store *Store) WithTx(ctx context.Context, fn func(ctx context.Context, txStore drawer.Store) error) error {
	tx, err := store.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return wrapStoreError(errorSubjectTransaction, errorCodeBegin, drawer.Unavailable(err))
	}
	transactionStore := &TxStore{tx: tx, queries: queries{db: tx, location: store.location}}
	if err := fn(ctx, transactionStore); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return wrapStoreError(errorSubjectTransaction, errorCodeCommit, drawer.Unavailable(err))
	}
	return nil
}

func (store *TxStore) WithTx(ctx context.Context, fn func(ctx context.Context, txStore drawer.Store) error) error {
	return fn(ctx, store)
}

func (store queries) FindActiveSession(ctx context.Context, cashierID drawer.CashierID) (drawer.Session, error) {
	session, err := scanSession(store.db.QueryRow(ctx, sqlFindActiveSession, cashierID.String()))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return drawer.Session{}, wrapStoreError(errorSubjectSession, errorCodeLookup, drawer.ErrNoActiveSession)
		}
		return drawer.Session{}, wrapStoreError(errorSubjectSession, errorCodeLookup, classify(err))
	}
	return session, nil
}

func (store queries) LockSession(ctx context.Context, sessionID string) (drawer.Session, error) {
	if !isUUID(sessionID) {
		return drawer.Session{}, wrapStoreError(errorSubjectSession, errorCodeGet, drawer.ErrNotFound)
	}
	session, err := scanSession(store.db.QueryRow(ctx, sqlLockSession, sessionID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return drawer.Session{}, wrapStoreError(errorSubjectSession, errorCodeGet, drawer.ErrNotFound)
		}
		return drawer.Session{}, wrapStoreError(errorSubjectSession, errorCodeGet, classify(err))
	}
	return session, nil
}

func (store queries) ListStaleSessions(ctx context.Context, before drawer.ShiftDate) ([]drawer.Session, error) {
	rows, err := store.db.Query(ctx, sqlListStaleSessions, before.String())
	if err != nil {
		return nil, wrapStoreError(errorSubjectSession, errorCodeList, drawer.Unavailable(err))
	}
	defer rows.Close()
	sessions := make([]drawer.Session, 0, 8)
	for rows.Next() {
		session, err := scanSession(rows)
		if err != nil {
			return nil, wrapStoreError(errorSubjectSession, errorCodeList, classify(err))
		}
		sessions = append(sessions, session)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapStoreError(errorSubjectSession, errorCodeList, drawer.Unavailable(err))
	}
	return sessions, nil
}

func (store queries) CreateSession(ctx context.Context, input drawer.NewSession) (drawer.Session, error) {
	session, err := scanSession(store.db.QueryRow(ctx, sqlInsertSession,
		input.CashierID.String(),
		input.SessionDate.String(),
		input.StartTime.UTC(),
		input.StartingAmount.String(),
	))
	if isUniqueViolation(err, constraintActiveSession) {
		return drawer.Session{}, wrapStoreError(errorSubjectSession, errorCodeDuplicate, drawer.ErrActiveSessionExists)
	}
	if err != nil {
		return drawer.Session{}, wrapStoreError(errorSubjectSession, errorCodeCreate, classify(err))
	}
	return session, nil
}

func (store queries) CloseSession(ctx context.Context, closure drawer.SessionClosure) error {
	if !isUUID(closure.SessionID) {
		return wrapStoreError(errorSubjectSession, errorCodeClose, drawer.ErrSessionClosed)
	}
	tag, err := store.db.Exec(ctx, sqlCloseSession,
		closure.SessionID,
		string(closure.Status),
		closure.EndTime.UTC(),
		closure.EndingAmount.String(),
		closure.TotalCashIn.String(),
		closure.TotalCashOut.String(),
		closure.TotalSales.String(),
		closure.Variance.String(),
	)
	if err != nil {
		return wrapStoreError(errorSubjectSession, errorCodeClose, drawer.Unavailable(err))
	}
	if tag.RowsAffected() == 0 {
		return wrapStoreError(errorSubjectSession, errorCodeClose, drawer.ErrSessionClosed)
	}
	return nil
}

func (store queries) InsertTransaction(ctx context.Context, input drawer.NewTransaction) (drawer.Transaction, error) {
	createdAt := input.CreatedAt.UTC()
	if input.CreatedAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	transaction, err := scanTransaction(store.db.QueryRow(ctx, sqlInsertTransaction,
		input.CashierID.String(),
		string(input.Category.Type()),
		string(input.Category),
		input.Amount.String(),
		input.Description,
		string(input.Status),
		input.BusinessDate.String(),
		createdAt,
	))
	if err != nil {
		return drawer.Transaction{}, wrapStoreError(errorSubjectTransaction, errorCodeInsert, classify(err))
	}
	return transaction, nil
}

func (store queries) GetTransaction(ctx context.Context, transactionID drawer.TransactionID) (drawer.Transaction, error) {
	if !isUUID(transactionID.String()) {
		return drawer.Transaction{}, wrapStoreError(errorSubjectTransaction, errorCodeGet, drawer.ErrTransactionNotFound)
	}
	transaction, err := scanTransaction(store.db.QueryRow(ctx, sqlSelectTransaction, transactionID.String()))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return drawer.Transaction{}, wrapStoreError(errorSubjectTransaction, errorCodeGet, drawer.ErrTransactionNotFound)
		}
		return drawer.Transaction{}, wrapStoreError(errorSubjectTransaction, errorCodeGet, classify(err))
	}
	return transaction, nil
}

func (store queries) UpdateTransaction(ctx context.Context, update drawer.TransactionUpdate) (drawer.Transaction, error) {
	if !isUUID(update.TransactionID.String()) {
		return drawer.Transaction{}, wrapStoreError(errorSubjectTransaction, errorCodeUpdate, drawer.ErrTransactionNotFound)
	}
	transaction, err := scanTransaction(store.db.QueryRow(ctx, sqlUpdateTransaction,
		update.TransactionID.String(),
		update.Amount.String(),
		update.Description,
		update.UpdatedAt.UTC(),
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return drawer.Transaction{}, wrapStoreError(errorSubjectTransaction, errorCodeUpdate, drawer.ErrTransactionNotFound)
		}
		return drawer.Transaction{}, wrapStoreError(errorSubjectTransaction, errorCodeUpdate, classify(err))
	}
	return transaction, nil
}

func (store queries) DeleteTransaction(ctx context.Context, transactionID drawer.TransactionID) error {
	if !isUUID(transactionID.String()) {
		return wrapStoreError(errorSubjectTransaction, errorCodeDelete, drawer.ErrTransactionNotFound)
	}
	tag, err := store.db.Exec(ctx, sqlDeleteTransaction, transactionID.String())
	if err != nil {
		return wrapStoreError(errorSubjectTransaction, errorCodeDelete, drawer.Unavailable(err))
	}
	if tag.RowsAffected() == 0 {
		return wrapStoreError(errorSubjectTransaction, errorCodeDelete, drawer.ErrTransactionNotFound)
	}
	return nil
}

func (store queries) ListTransactions(ctx context.Context, cashierID drawer.CashierID, date drawer.ShiftDate) ([]drawer.Transaction, error) {
	rows, err := store.db.Query(ctx, sqlListTransactions, cashierID.String(), date.String())
	if err != nil {
		return nil, wrapStoreError(errorSubjectTransaction, errorCodeList, drawer.Unavailable(err))
	}
	defer rows.Close()
	transactions := make([]drawer.Transaction, 0, 32)
	for rows.Next() {
		transaction, err := scanTransaction(rows)
		if err != nil {
			return nil, wrapStoreError(errorSubjectTransaction, errorCodeList, classify(err))
		}
		transactions = append(transactions, transaction)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapStoreError(errorSubjectTransaction, errorCodeList, drawer.Unavailable(err))
	}
	return transactions, nil
}

func (store queries) SumByCategory(ctx context.Context, cashierID drawer.CashierID, date drawer.ShiftDate) (drawer.CategoryTotals, error) {
	rows, err := store.db.Query(ctx, sqlSumByCategory, cashierID.String(), date.String())
	if err != nil {
		return nil, wrapStoreError(errorSubjectBalance, errorCodeSum, drawer.Unavailable(err))
	}
	defer rows.Close()
	totals := drawer.CategoryTotals{}
	for rows.Next() {
		var categoryValue, totalValue string
		if err := rows.Scan(&categoryValue, &totalValue); err != nil {
			return nil, wrapStoreError(errorSubjectBalance, errorCodeSum, drawer.Unavailable(err))
		}
		category, err := drawer.ParseCategory(categoryValue)
		if err != nil {
			return nil, wrapStoreError(errorSubjectBalance, errorCodeInvalid, err)
		}
		total, err := parseMoney(totalValue)
		if err != nil {
			return nil, wrapStoreError(errorSubjectBalance, errorCodeInvalid, err)
		}
		totals[category] = total
	}
	if err := rows.Err(); err != nil {
		return nil, wrapStoreError(errorSubjectBalance, errorCodeSum, drawer.Unavailable(err))
	}
	return totals, nil
}

func (store queries) LatestShiftCount(ctx context.Context, cashierID drawer.CashierID, date drawer.ShiftDate) (decimal.Decimal, bool, error) {
	var amountValue string
	err := store.db.QueryRow(ctx, sqlLatestShiftCount, cashierID.String(), date.String()).Scan(&amountValue)
	if errors.Is(err, pgx.ErrNoRows) {
		return decimal.Zero, false, nil
	}
	if err != nil {
		return decimal.Zero, false, wrapStoreError(errorSubjectTransaction, errorCodeLookup, drawer.Unavailable(err))
	}
	amount, err := parseMoney(amountValue)
	if err != nil {
		return decimal.Zero, false, wrapStoreError(errorSubjectTransaction, errorCodeInvalid, err)
	}
	return amount, true, nil
}

func (store queries) SuggestDescriptions(ctx context.Context, category drawer.Category, prefix string, limit int) ([]string, error) {
	rows, err := store.db.Query(ctx, sqlSuggestDescriptions, string(category), escapeLike(prefix)+"%", limit)
	if err != nil {
		return nil, wrapStoreError(errorSubjectTransaction, errorCodeSuggest, drawer.Unavailable(err))
	}
	descriptions, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, wrapStoreError(errorSubjectTransaction, errorCodeSuggest, drawer.Unavailable(err))
	}
	return descriptions, nil
}

func (store queries) InsertVariance(ctx context.Context, record drawer.VarianceRecord) error {
	createdAt := record.CreatedAt.UTC()
	if record.CreatedAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	_, err := store.db.Exec(ctx, sqlInsertVariance,
		record.SessionID,
		record.CashierID,
		record.ExpectedBalance.String(),
		record.ActualCounted.String(),
		record.VarianceAmount.String(),
		string(record.VarianceType),
		record.ShiftDate.String(),
		string(record.Closure),
		createdAt,
	)
	if isUniqueViolation(err, constraintSessionVariance) {
		return wrapStoreError(errorSubjectVariance, errorCodeDuplicate, drawer.ErrVarianceRecorded)
	}
	if err != nil {
		return wrapStoreError(errorSubjectVariance, errorCodeInsert, drawer.Unavailable(err))
	}
	return nil
}

// GetConfirmedSalesTotal sums confirmed cash sales of the cashier on the date.
func (store queries) GetConfirmedSalesTotal(ctx context.Context, cashierID drawer.CashierID, date drawer.ShiftDate) (decimal.Decimal, error) {
	start, end := dayBounds(date, store.location)
	var totalValue string
	if err := store.db.QueryRow(ctx, sqlSumConfirmedCashSales, cashierID.String(), start, end).Scan(&totalValue); err != nil {
		return decimal.Zero, wrapStoreError(errorSubjectSales, errorCodeSum, drawer.Unavailable(err))
	}
	total, err := parseMoney(totalValue)
	if err != nil {
		return decimal.Zero, wrapStoreError(errorSubjectSales, errorCodeInvalid, err)
	}
	return total, nil
}

// RecordActivity appends one audit entry.
func (store queries) RecordActivity(ctx context.Context, entry drawer.ActivityEntry) error {
	createdAt := entry.CreatedAt.UTC()
	if entry.CreatedAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	_, err := store.db.Exec(ctx, sqlInsertActivity,
		entry.CashierID,
		entry.Action,
		entry.TableName,
		entry.RecordID,
		nullableJSON(entry.OldValues),
		nullableJSON(entry.NewValues),
		entry.Description,
		entry.IPAddress,
		entry.UserAgent,
		createdAt,
	)
	if err != nil {
		return wrapStoreError(errorSubjectActivity, errorCodeInsert, drawer.Unavailable(err))
	}
	return nil
}

func scanSession(row pgx.Row) (drawer.Session, error) {
	var (
		idValue       string
		cashierValue  string
		dateValue     string
		startTime     time.Time
		endTime       *time.Time
		startingValue string
		endingValue   *string
		statusValue   string
		cashInValue   string
		cashOutValue  string
		salesValue    string
		varianceValue string
	)
	if err := row.Scan(
		&idValue,
		&cashierValue,
		&dateValue,
		&startTime,
		&endTime,
		&startingValue,
		&endingValue,
		&statusValue,
		&cashInValue,
		&cashOutValue,
		&salesValue,
		&varianceValue,
	); err != nil {
		return drawer.Session{}, err
	}
	sessionDate, err := drawer.ParseShiftDate(dateValue)
	if err != nil {
		return drawer.Session{}, err
	}
	money, err := parseMoneyValues(startingValue, cashInValue, cashOutValue, salesValue, varianceValue)
	if err != nil {
		return drawer.Session{}, err
	}
	session := drawer.Session{
		ID:             idValue,
		CashierID:      cashierValue,
		SessionDate:    sessionDate,
		StartTime:      startTime,
		EndTime:        endTime,
		StartingAmount: money[0],
		Status:         drawer.SessionStatus(statusValue),
		TotalCashIn:    money[1],
		TotalCashOut:   money[2],
		TotalSales:     money[3],
		Variance:       money[4],
	}
	if endingValue != nil {
		ending, err := parseMoney(*endingValue)
		if err != nil {
			return drawer.Session{}, err
		}
		session.EndingAmount = &ending
	}
	return session, nil
}

func scanTransaction(row pgx.Row) (drawer.Transaction, error) {
	var (
		idValue       string
		employeeValue string
		typeValue     string
		categoryValue string
		amountValue   string
		description   string
		statusValue   string
		dateValue     string
		createdAt     time.Time
		updatedAt     time.Time
	)
	if err := row.Scan(
		&idValue,
		&employeeValue,
		&typeValue,
		&categoryValue,
		&amountValue,
		&description,
		&statusValue,
		&dateValue,
		&createdAt,
		&updatedAt,
	); err != nil {
		return drawer.Transaction{}, err
	}
	businessDate, err := drawer.ParseShiftDate(dateValue)
	if err != nil {
		return drawer.Transaction{}, err
	}
	amount, err := parseMoney(amountValue)
	if err != nil {
		return drawer.Transaction{}, err
	}
	category := drawer.Category(categoryValue)
	if categoryValue == "" {
		category = drawer.InferCategory(drawer.TransactionType(typeValue), description)
	}
	return drawer.Transaction{
		ID:           idValue,
		CashierID:    employeeValue,
		Type:         drawer.TransactionType(typeValue),
		Category:     category,
		Amount:       amount,
		Description:  description,
		Status:       drawer.TransactionStatus(statusValue),
		BusinessDate: businessDate,
		CreatedAt:    createdAt,
		UpdatedAt:    updatedAt,
	}, nil
}

func parseMoney(raw string) (decimal.Decimal, error) {
	value, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, err
	}
	return value.Round(2), nil
}

func parseMoneyValues(raw ...string) ([]decimal.Decimal, error) {
	values := make([]decimal.Decimal, 0, len(raw))
	for _, item := range raw {
		value, err := parseMoney(item)
		if err != nil {
			return nil, err
		}
		values = append(values, value)
	}
	return values, nil
}

// classify keeps domain errors from row mapping and marks everything else as a driver failure.
func classify(err error) error {
	if errors.Is(err, drawer.ErrValidation) {
		return err
	}
	return drawer.Unavailable(err)
}

func wrapStoreError(subject string, code string, err error) error {
	return drawer.WrapError(errorOperationStore, subject, code, err)
}

func dayBounds(date drawer.ShiftDate, location *time.Location) (time.Time, time.Time) {
	end := date.EndOfDay(location).Add(time.Second)
	return end.AddDate(0, 0, -1).UTC(), end.UTC()
}

func nullableJSON(raw []byte) any {
	if len(raw) == 0 {
		return nil
	}
	return string(raw)
}

func escapeLike(raw string) string {
	replacer := strings.NewReplacer(likeEscape, likeEscape+likeEscape, "%", likeEscape+"%", "_", likeEscape+"_")
	return replacer.Replace(raw)
}

func isUUID(raw string) bool {
	_, err := uuid.Parse(raw)
	return err == nil
}

func isUniqueViolation(err error, constraint string) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgUniqueViolationCode && pgErr.ConstraintName == constraint
	}
	return false
}
