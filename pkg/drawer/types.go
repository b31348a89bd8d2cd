package drawer

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// CashierID identifies the employee operating a drawer.
type CashierID struct {
	value string
}

// NewCashierID validates and normalizes a cashier id.
func NewCashierID(raw string) (CashierID, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return CashierID{}, fmt.Errorf("%w: empty value", ErrInvalidCashierID)
	}
	return CashierID{value: trimmed}, nil
}

// String returns the normalized identifier.
func (id CashierID) String() string {
	return id.value
}

// TransactionID identifies a ledger row.
type TransactionID struct {
	value string
}

// NewTransactionID validates and normalizes a transaction id.
func NewTransactionID(raw string) (TransactionID, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return TransactionID{}, fmt.Errorf("%w: empty value", ErrInvalidTransactionID)
	}
	return TransactionID{value: trimmed}, nil
}

// String returns the normalized identifier.
func (id TransactionID) String() string {
	return id.value
}

// Amount is a non-negative money value rounded to cents.
type Amount struct {
	value decimal.Decimal
}

// NewAmount accepts zero or a positive value.
func NewAmount(raw decimal.Decimal) (Amount, error) {
	rounded := raw.Round(amountScale)
	if rounded.IsNegative() {
		return Amount{}, fmt.Errorf("%w: must not be negative", ErrInvalidAmount)
	}
	return Amount{value: rounded}, nil
}

// NewPositiveAmount accepts a strictly positive value.
func NewPositiveAmount(raw decimal.Decimal) (Amount, error) {
	rounded := raw.Round(amountScale)
	if !rounded.IsPositive() {
		return Amount{}, fmt.Errorf("%w: must be greater than zero", ErrInvalidAmount)
	}
	return Amount{value: rounded}, nil
}

// ParseAmount parses a decimal string and accepts zero or a positive value.
func ParseAmount(raw string) (Amount, error) {
	parsed, err := decimal.NewFromString(strings.TrimSpace(raw))
	if err != nil {
		return Amount{}, fmt.Errorf("%w: %q is not a number", ErrInvalidAmount, raw)
	}
	return NewAmount(parsed)
}

// Decimal returns the underlying value.
func (amount Amount) Decimal() decimal.Decimal {
	return amount.value
}

// String renders the amount with two decimal places.
func (amount Amount) String() string {
	return amount.value.StringFixed(amountScale)
}

// ShiftDate is a calendar date in the business time zone.
type ShiftDate struct {
	year  int
	month time.Month
	day   int
}

// ParseShiftDate parses a YYYY-MM-DD date.
func ParseShiftDate(raw string) (ShiftDate, error) {
	parsed, err := time.Parse(shiftDateLayout, strings.TrimSpace(raw))
	if err != nil {
		return ShiftDate{}, fmt.Errorf("%w: %q must use YYYY-MM-DD", ErrInvalidShiftDate, raw)
	}
	return ShiftDateOf(parsed, time.UTC), nil
}

// ShiftDateOf returns the calendar date of instant in location.
func ShiftDateOf(instant time.Time, location *time.Location) ShiftDate {
	if location == nil {
		location = time.UTC
	}
	year, month, day := instant.In(location).Date()
	return ShiftDate{year: year, month: month, day: day}
}

// String renders the date as YYYY-MM-DD.
func (date ShiftDate) String() string {
	return fmt.Sprintf("%04d-%02d-%02d", date.year, int(date.month), date.day)
}

// IsZero reports whether the date was never set.
func (date ShiftDate) IsZero() bool {
	return date.year == 0 && date.month == 0 && date.day == 0
}

// Before reports whether date is strictly earlier than other.
func (date ShiftDate) Before(other ShiftDate) bool {
	return date.String() < other.String()
}

// EndOfDay returns 23:59:59 of the date in location.
func (date ShiftDate) EndOfDay(location *time.Location) time.Time {
	if location == nil {
		location = time.UTC
	}
	return time.Date(date.year, date.month, date.day, 23, 59, 59, 0, location)
}

// TransactionType is the direction of a cash movement.
type TransactionType string

const (
	TransactionTypeCashIn  TransactionType = "cash_in"
	TransactionTypeCashOut TransactionType = "cash_out"
)

// Category classifies a ledger row for balance computation.
type Category string

const (
	CategoryOpeningFloat Category = "opening_float"
	CategoryCashIn       Category = "cash_in"
	CategoryCashOut      Category = "cash_out"
	CategorySafeDrop     Category = "safe_drop"
	CategoryShiftCount   Category = "shift_count"
)

// ParseCategory validates a category name.
func ParseCategory(raw string) (Category, error) {
	category := Category(strings.ToLower(strings.TrimSpace(raw)))
	switch category {
	case CategoryOpeningFloat, CategoryCashIn, CategoryCashOut, CategorySafeDrop, CategoryShiftCount:
		return category, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidCategory, raw)
	}
}

// Type returns the movement direction implied by the category.
func (category Category) Type() TransactionType {
	switch category {
	case CategoryOpeningFloat, CategoryCashIn:
		return TransactionTypeCashIn
	default:
		return TransactionTypeCashOut
	}
}

// SystemGenerated reports whether rows of this category are written by the lifecycle itself.
func (category Category) SystemGenerated() bool {
	return category == CategoryOpeningFloat || category == CategoryShiftCount
}

// InferCategory classifies a row that carries no category using its type and description markers.
func InferCategory(transactionType TransactionType, description string) Category {
	trimmed := strings.TrimSpace(description)
	if transactionType == TransactionTypeCashIn {
		if strings.EqualFold(trimmed, openingFloatDescription) {
			return CategoryOpeningFloat
		}
		return CategoryCashIn
	}
	upper := strings.ToUpper(trimmed)
	switch {
	case strings.HasPrefix(upper, strings.ToUpper(safeDropMarker)):
		return CategorySafeDrop
	case strings.HasPrefix(upper, strings.ToUpper(shiftCountMarker)):
		return CategoryShiftCount
	default:
		return CategoryCashOut
	}
}

// TransactionStatus tracks approval of a ledger row.
type TransactionStatus string

const (
	TransactionStatusCompleted TransactionStatus = "completed"
	TransactionStatusPending   TransactionStatus = "pending"
	TransactionStatusCancelled TransactionStatus = "cancelled"
)

// SessionStatus defines the session lifecycle.
type SessionStatus string

const (
	SessionStatusActive     SessionStatus = "active"
	SessionStatusClosed     SessionStatus = "closed"
	SessionStatusAutoClosed SessionStatus = "auto_closed"
)

// VarianceType describes the sign of counted minus expected.
type VarianceType string

const (
	VarianceExcess   VarianceType = "excess"
	VarianceDeficit  VarianceType = "deficit"
	VarianceBalanced VarianceType = "balanced"
)

// ClassifyVariance maps a variance amount to its type.
func ClassifyVariance(variance decimal.Decimal) VarianceType {
	switch variance.Sign() {
	case 1:
		return VarianceExcess
	case -1:
		return VarianceDeficit
	default:
		return VarianceBalanced
	}
}

// ClosureKind records how a session was closed.
type ClosureKind string

const (
	ClosureEndShift  ClosureKind = "end_shift"
	ClosureAutoClose ClosureKind = "auto_close"
)

// Session is one cashier's drawer for one shift.
type Session struct {
	ID             string
	CashierID      string
	SessionDate    ShiftDate
	StartTime      time.Time
	EndTime        *time.Time
	StartingAmount decimal.Decimal
	EndingAmount   *decimal.Decimal
	Status         SessionStatus
	TotalCashIn    decimal.Decimal
	TotalCashOut   decimal.Decimal
	TotalSales     decimal.Decimal
	Variance       decimal.Decimal
}

// NewSession carries the values written when a session opens.
type NewSession struct {
	CashierID      CashierID
	SessionDate    ShiftDate
	StartTime      time.Time
	StartingAmount Amount
}

// SessionClosure carries the values written when a session leaves the active state.
type SessionClosure struct {
	SessionID    string
	Status       SessionStatus
	EndTime      time.Time
	EndingAmount decimal.Decimal
	TotalCashIn  decimal.Decimal
	TotalCashOut decimal.Decimal
	TotalSales   decimal.Decimal
	Variance     decimal.Decimal
}

// Transaction is a single row of the drawer ledger.
type Transaction struct {
	ID           string
	CashierID    string
	Type         TransactionType
	Category     Category
	Amount       decimal.Decimal
	Description  string
	Status       TransactionStatus
	BusinessDate ShiftDate
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// NewTransaction carries the values written for a new ledger row.
type NewTransaction struct {
	CashierID    CashierID
	Category     Category
	Amount       Amount
	Description  string
	Status       TransactionStatus
	BusinessDate ShiftDate
	CreatedAt    time.Time
}

// TransactionUpdate carries the editable fields of a ledger row.
type TransactionUpdate struct {
	TransactionID TransactionID
	Amount        Amount
	Description   string
	UpdatedAt     time.Time
}

// VarianceRecord is the immutable reconciliation written once per closure.
type VarianceRecord struct {
	SessionID       string
	CashierID       string
	ExpectedBalance decimal.Decimal
	ActualCounted   decimal.Decimal
	VarianceAmount  decimal.Decimal
	VarianceType    VarianceType
	ShiftDate       ShiftDate
	Closure         ClosureKind
	CreatedAt       time.Time
}

// CategoryTotals maps each category to its summed amount; missing keys are zero.
type CategoryTotals map[Category]decimal.Decimal

// Get returns the total for category or zero.
func (totals CategoryTotals) Get(category Category) decimal.Decimal {
	if total, ok := totals[category]; ok {
		return total
	}
	return decimal.Zero
}

// Provenance describes where a request came from.
type Provenance struct {
	IPAddress string
	UserAgent string
}

// ActivityEntry is one append-only audit record.
type ActivityEntry struct {
	CashierID   string
	Action      string
	TableName   string
	RecordID    string
	OldValues   json.RawMessage
	NewValues   json.RawMessage
	Description string
	IPAddress   string
	UserAgent   string
	CreatedAt   time.Time
}
