package gormstore

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/MarkoPoloResearchLab/cashdrawer/pkg/drawer"
	gosqlite "github.com/glebarez/go-sqlite"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	constraintActiveSession   = "uniq_cash_drawer_sessions_active_cashier"
	constraintSessionVariance = "uniq_cash_drawer_variances_session"
	pgUniqueViolationCode     = "23505"
	sqliteUniqueCode          = 2067
	sqliteDialect             = "sqlite"
	sqliteDateTimeLayout      = "2006-01-02 15:04:05"
	salePaymentMethodCash     = "cash"
	saleStatusConfirmed       = "confirmed"
	likeEscape                = `\`
	errorOperationStore       = "store"
	errorSubjectActivity      = "activity"
	errorSubjectBalance       = "balance"
	errorSubjectSales         = "sales"
	errorSubjectSession       = "session"
	errorSubjectTransaction   = "transaction"
	errorSubjectVariance      = "variance"
	errorCodeClose            = "close"
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
)

// Store implements drawer.Store, drawer.SalesTotals and drawer.ActivitySink using GORM.
type Store struct {
	db       *gorm.DB
	location *time.Location
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

// New returns a Store backed by gorm.DB.
func New(db *gorm.DB, options ...Option) *Store {
	store := &Store{db: db, location: time.UTC}
	for _, option := range options {
		if option != nil {
			option(store)
		}
	}
	return store
}

// WithTx executes fn within a transaction.
func (store *Store) WithTx(ctx context.Context, fn func(ctx context.Context, txStore drawer.Store) error) error {
	return store.db.WithContext(ctx).Transaction(func(transaction *gorm.DB) error {
		return fn(ctx, &Store{db: transaction, location: store.location})
	})
}

func (store *Store) FindActiveSession(ctx context.Context, cashierID drawer.CashierID) (drawer.Session, error) {
	var model CashDrawerSession
	err := store.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("cashier_id = ? AND status = ?", cashierID.String(), string(drawer.SessionStatusActive)).
		Take(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return drawer.Session{}, wrapStoreError(errorSubjectSession, errorCodeLookup, drawer.ErrNoActiveSession)
		}
		return drawer.Session{}, wrapStoreError(errorSubjectSession, errorCodeLookup, drawer.Unavailable(err))
	}
	return mapSession(model)
}

func (store *Store) LockSession(ctx context.Context, sessionID string) (drawer.Session, error) {
	var model CashDrawerSession
	err := store.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", sessionID).
		Take(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return drawer.Session{}, wrapStoreError(errorSubjectSession, errorCodeGet, drawer.ErrNotFound)
		}
		return drawer.Session{}, wrapStoreError(errorSubjectSession, errorCodeGet, drawer.Unavailable(err))
	}
	return mapSession(model)
}

func (store *Store) ListStaleSessions(ctx context.Context, before drawer.ShiftDate) ([]drawer.Session, error) {
	var rows []CashDrawerSession
	err := store.db.WithContext(ctx).
		Where("status = ? AND session_date < ?", string(drawer.SessionStatusActive), before.String()).
		Order("session_date ASC").
		Find(&rows).Error
	if err != nil {
		return nil, wrapStoreError(errorSubjectSession, errorCodeList, drawer.Unavailable(err))
	}
	sessions := make([]drawer.Session, 0, len(rows))
	for _, row := range rows {
		session, err := mapSession(row)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, session)
	}
	return sessions, nil
}

func (store *Store) CreateSession(ctx context.Context, input drawer.NewSession) (drawer.Session, error) {
	model := CashDrawerSession{
		CashierID:      input.CashierID.String(),
		SessionDate:    input.SessionDate.String(),
		StartTime:      input.StartTime.UTC(),
		StartingAmount: input.StartingAmount.Decimal(),
		Status:         string(drawer.SessionStatusActive),
	}
	err := store.db.WithContext(ctx).Create(&model).Error
	if isUniqueViolation(err, constraintActiveSession) {
		return drawer.Session{}, wrapStoreError(errorSubjectSession, errorCodeDuplicate, drawer.ErrActiveSessionExists)
	}
	if err != nil {
		return drawer.Session{}, wrapStoreError(errorSubjectSession, errorCodeCreate, drawer.Unavailable(err))
	}
	return mapSession(model)
}

func (store *Store) CloseSession(ctx context.Context, closure drawer.SessionClosure) error {
	result := store.db.WithContext(ctx).
		Model(&CashDrawerSession{}).
		Where("id = ? AND status = ?", closure.SessionID, string(drawer.SessionStatusActive)).
		Updates(map[string]any{
			"status":         string(closure.Status),
			"end_time":       closure.EndTime.UTC(),
			"ending_amount":  closure.EndingAmount,
			"total_cash_in":  closure.TotalCashIn,
			"total_cash_out": closure.TotalCashOut,
			"total_sales":    closure.TotalSales,
			"variance":       closure.Variance,
		})
	if result.Error != nil {
		return wrapStoreError(errorSubjectSession, errorCodeClose, drawer.Unavailable(result.Error))
	}
	if result.RowsAffected == 0 {
		return wrapStoreError(errorSubjectSession, errorCodeClose, drawer.ErrSessionClosed)
	}
	return nil
}

func (store *Store) InsertTransaction(ctx context.Context, input drawer.NewTransaction) (drawer.Transaction, error) {
	createdAt := input.CreatedAt.UTC()
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	model := CashDrawerTransaction{
		EmployeeID:      input.CashierID.String(),
		TransactionType: string(input.Category.Type()),
		Category:        string(input.Category),
		Amount:          input.Amount.Decimal(),
		Description:     input.Description,
		Status:          string(input.Status),
		BusinessDate:    input.BusinessDate.String(),
		CreatedAt:       createdAt,
		UpdatedAt:       createdAt,
	}
	if err := store.db.WithContext(ctx).Create(&model).Error; err != nil {
		return drawer.Transaction{}, wrapStoreError(errorSubjectTransaction, errorCodeInsert, drawer.Unavailable(err))
	}
	return mapTransaction(model)
}

func (store *Store) GetTransaction(ctx context.Context, transactionID drawer.TransactionID) (drawer.Transaction, error) {
	var model CashDrawerTransaction
	err := store.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", transactionID.String()).
		Take(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return drawer.Transaction{}, wrapStoreError(errorSubjectTransaction, errorCodeGet, drawer.ErrTransactionNotFound)
		}
		return drawer.Transaction{}, wrapStoreError(errorSubjectTransaction, errorCodeGet, drawer.Unavailable(err))
	}
	return mapTransaction(model)
}

func (store *Store) UpdateTransaction(ctx context.Context, update drawer.TransactionUpdate) (drawer.Transaction, error) {
	result := store.db.WithContext(ctx).
		Model(&CashDrawerTransaction{}).
		Where("id = ?", update.TransactionID.String()).
		Updates(map[string]any{
			"amount":      update.Amount.Decimal(),
			"description": update.Description,
			"updated_at":  update.UpdatedAt.UTC(),
		})
	if result.Error != nil {
		return drawer.Transaction{}, wrapStoreError(errorSubjectTransaction, errorCodeUpdate, drawer.Unavailable(result.Error))
	}
	if result.RowsAffected == 0 {
		return drawer.Transaction{}, wrapStoreError(errorSubjectTransaction, errorCodeUpdate, drawer.ErrTransactionNotFound)
	}
	return store.GetTransaction(ctx, update.TransactionID)
}

func (store *Store) DeleteTransaction(ctx context.Context, transactionID drawer.TransactionID) error {
	result := store.db.WithContext(ctx).
		Where("id = ?", transactionID.String()).
		Delete(&CashDrawerTransaction{})
	if result.Error != nil {
		return wrapStoreError(errorSubjectTransaction, errorCodeDelete, drawer.Unavailable(result.Error))
	}
	if result.RowsAffected == 0 {
		return wrapStoreError(errorSubjectTransaction, errorCodeDelete, drawer.ErrTransactionNotFound)
	}
	return nil
}

func (store *Store) ListTransactions(ctx context.Context, cashierID drawer.CashierID, date drawer.ShiftDate) ([]drawer.Transaction, error) {
	var rows []CashDrawerTransaction
	err := store.db.WithContext(ctx).
		Where("employee_id = ? AND business_date = ?", cashierID.String(), date.String()).
		Order("created_at ASC").
		Order("id ASC").
		Find(&rows).Error
	if err != nil {
		return nil, wrapStoreError(errorSubjectTransaction, errorCodeList, drawer.Unavailable(err))
	}
	transactions := make([]drawer.Transaction, 0, len(rows))
	for _, row := range rows {
		transaction, err := mapTransaction(row)
		if err != nil {
			return nil, err
		}
		transactions = append(transactions, transaction)
	}
	return transactions, nil
}

func (store *Store) SumByCategory(ctx context.Context, cashierID drawer.CashierID, date drawer.ShiftDate) (drawer.CategoryTotals, error) {
	var rows []categorySum
	err := store.db.WithContext(ctx).
		Model(&CashDrawerTransaction{}).
		Select("category, coalesce(sum(amount),0) as total").
		Where("employee_id = ? AND business_date = ?", cashierID.String(), date.String()).
		Group("category").
		Scan(&rows).Error
	if err != nil {
		return nil, wrapStoreError(errorSubjectBalance, errorCodeSum, drawer.Unavailable(err))
	}
	totals := drawer.CategoryTotals{}
	for _, row := range rows {
		category, err := drawer.ParseCategory(row.Category)
		if err != nil {
			return nil, wrapStoreError(errorSubjectBalance, errorCodeInvalid, err)
		}
		totals[category] = row.Total.Round(2)
	}
	return totals, nil
}

func (store *Store) LatestShiftCount(ctx context.Context, cashierID drawer.CashierID, date drawer.ShiftDate) (decimal.Decimal, bool, error) {
	var model CashDrawerTransaction
	err := store.db.WithContext(ctx).
		Where("employee_id = ? AND business_date = ? AND category = ?", cashierID.String(), date.String(), string(drawer.CategoryShiftCount)).
		Order("created_at DESC").
		Order("id DESC").
		Take(&model).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return decimal.Zero, false, nil
	}
	if err != nil {
		return decimal.Zero, false, wrapStoreError(errorSubjectTransaction, errorCodeLookup, drawer.Unavailable(err))
	}
	return model.Amount, true, nil
}

func (store *Store) SuggestDescriptions(ctx context.Context, category drawer.Category, prefix string, limit int) ([]string, error) {
	var descriptions []string
	err := store.db.WithContext(ctx).
		Model(&CashDrawerTransaction{}).
		Distinct("description").
		Where("category = ? AND description LIKE ? ESCAPE ?", string(category), escapeLike(prefix)+"%", likeEscape).
		Order("description ASC").
		Limit(limit).
		Pluck("description", &descriptions).Error
	if err != nil {
		return nil, wrapStoreError(errorSubjectTransaction, errorCodeSuggest, drawer.Unavailable(err))
	}
	return descriptions, nil
}

func (store *Store) InsertVariance(ctx context.Context, record drawer.VarianceRecord) error {
	model := CashDrawerVariance{
		SessionID:       record.SessionID,
		EmployeeID:      record.CashierID,
		ExpectedBalance: record.ExpectedBalance,
		ActualCounted:   record.ActualCounted,
		VarianceAmount:  record.VarianceAmount,
		VarianceType:    string(record.VarianceType),
		ShiftDate:       record.ShiftDate.String(),
		Closure:         string(record.Closure),
		CreatedAt:       record.CreatedAt.UTC(),
	}
	err := store.db.WithContext(ctx).Create(&model).Error
	if isUniqueViolation(err, constraintSessionVariance) {
		return wrapStoreError(errorSubjectVariance, errorCodeDuplicate, drawer.ErrVarianceRecorded)
	}
	if err != nil {
		return wrapStoreError(errorSubjectVariance, errorCodeInsert, drawer.Unavailable(err))
	}
	return nil
}

// GetConfirmedSalesTotal sums confirmed cash sales of the cashier on the date.
func (store *Store) GetConfirmedSalesTotal(ctx context.Context, cashierID drawer.CashierID, date drawer.ShiftDate) (decimal.Decimal, error) {
	start, end := dayBounds(date, store.location)
	query := store.db.WithContext(ctx).
		Model(&Sale{}).
		Select("coalesce(sum(total_amount),0) as total").
		Where("employee_id = ? AND status = ? AND payment_method = ?", cashierID.String(), saleStatusConfirmed, salePaymentMethodCash)
	if store.db.Dialector.Name() == sqliteDialect {
		// sqlite keeps sale_date as text with its own offset; compare in UTC.
		query = query.Where("datetime(sale_date) >= ? AND datetime(sale_date) < ?",
			start.Format(sqliteDateTimeLayout), end.Format(sqliteDateTimeLayout))
	} else {
		query = query.Where("sale_date >= ? AND sale_date < ?", start, end)
	}
	var sum sqlSum
	err := query.Scan(&sum).Error
	if err != nil {
		return decimal.Zero, wrapStoreError(errorSubjectSales, errorCodeSum, drawer.Unavailable(err))
	}
	return sum.Total.Round(2), nil
}

// RecordActivity appends one audit entry.
func (store *Store) RecordActivity(ctx context.Context, entry drawer.ActivityEntry) error {
	createdAt := entry.CreatedAt.UTC()
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	model := CashierActivityLog{
		CashierID:   entry.CashierID,
		ActionType:  entry.Action,
		TargetTable: entry.TableName,
		RecordID:    entry.RecordID,
		OldValues:   nullableJSON(entry.OldValues),
		NewValues:   nullableJSON(entry.NewValues),
		Description: entry.Description,
		IPAddress:   entry.IPAddress,
		UserAgent:   entry.UserAgent,
		CreatedAt:   createdAt,
	}
	if err := store.db.WithContext(ctx).Create(&model).Error; err != nil {
		return wrapStoreError(errorSubjectActivity, errorCodeInsert, drawer.Unavailable(err))
	}
	return nil
}

func wrapStoreError(subject string, code string, err error) error {
	return drawer.WrapError(errorOperationStore, subject, code, err)
}

type sqlSum struct {
	Total decimal.Decimal
}

type categorySum struct {
	Category string
	Total    decimal.Decimal
}

func mapSession(model CashDrawerSession) (drawer.Session, error) {
	sessionDate, err := drawer.ParseShiftDate(model.SessionDate)
	if err != nil {
		return drawer.Session{}, wrapStoreError(errorSubjectSession, errorCodeInvalid, err)
	}
	session := drawer.Session{
		ID:             model.ID,
		CashierID:      model.CashierID,
		SessionDate:    sessionDate,
		StartTime:      model.StartTime,
		EndTime:        model.EndTime,
		StartingAmount: model.StartingAmount,
		Status:         drawer.SessionStatus(model.Status),
		TotalCashIn:    model.TotalCashIn,
		TotalCashOut:   model.TotalCashOut,
		TotalSales:     model.TotalSales,
		Variance:       model.Variance,
	}
	if model.EndingAmount.Valid {
		ending := model.EndingAmount.Decimal
		session.EndingAmount = &ending
	}
	return session, nil
}

func mapTransaction(model CashDrawerTransaction) (drawer.Transaction, error) {
	businessDate, err := drawer.ParseShiftDate(model.BusinessDate)
	if err != nil {
		return drawer.Transaction{}, wrapStoreError(errorSubjectTransaction, errorCodeInvalid, err)
	}
	category := drawer.Category(model.Category)
	if model.Category == "" {
		category = drawer.InferCategory(drawer.TransactionType(model.TransactionType), model.Description)
	}
	return drawer.Transaction{
		ID:           model.ID,
		CashierID:    model.EmployeeID,
		Type:         drawer.TransactionType(model.TransactionType),
		Category:     category,
		Amount:       model.Amount,
		Description:  model.Description,
		Status:       drawer.TransactionStatus(model.Status),
		BusinessDate: businessDate,
		CreatedAt:    model.CreatedAt,
		UpdatedAt:    model.UpdatedAt,
	}, nil
}

func dayBounds(date drawer.ShiftDate, location *time.Location) (time.Time, time.Time) {
	end := date.EndOfDay(location).Add(time.Second)
	return end.AddDate(0, 0, -1).UTC(), end.UTC()
}

func nullableJSON(raw []byte) datatypes.JSON {
	if len(raw) == 0 {
		return nil
	}
	return datatypes.JSON(raw)
}

func escapeLike(raw string) string {
	replacer := strings.NewReplacer(likeEscape, likeEscape+likeEscape, "%", likeEscape+"%", "_", likeEscape+"_")
	return replacer.Replace(raw)
}

func isUniqueViolation(err error, constraint string) bool {
	if err == nil {
		return false
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgUniqueViolationCode && pgErr.ConstraintName == constraint
	}
	var sqliteErr *gosqlite.Error
	if errors.As(err, &sqliteErr) {
		target, known := sqliteUniqueTargets[constraint]
		return known && sqliteErr.Code() == sqliteUniqueCode && strings.Contains(sqliteErr.Error(), target)
	}
	return false
}

// sqlite names the indexed columns, not the index, in unique violations.
var sqliteUniqueTargets = map[string]string{
	constraintActiveSession:   "cash_drawer_sessions.cashier_id",
	constraintSessionVariance: "cash_drawer_variances.session_id",
}
