package gormstore

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// CashDrawerSession mirrors the cash_drawer_sessions table.
type CashDrawerSession struct {
	ID             string              `gorm:"type:uuid;primaryKey"`
	CashierID      string              `gorm:"not null;index:idx_cash_drawer_sessions_cashier_date,priority:1;index:uniq_cash_drawer_sessions_active_cashier,unique,where:status = 'active'"`
	SessionDate    string              `gorm:"type:varchar(10);not null;index:idx_cash_drawer_sessions_cashier_date,priority:2;index:idx_cash_drawer_sessions_status_date,priority:2"`
	StartTime      time.Time           `gorm:"not null"`
	EndTime        *time.Time          `gorm:""`
	StartingAmount decimal.Decimal     `gorm:"type:decimal(12,2);not null"`
	EndingAmount   decimal.NullDecimal `gorm:"type:decimal(12,2)"`
	Status         string              `gorm:"type:varchar(16);not null;index:idx_cash_drawer_sessions_status_date,priority:1"`
	TotalCashIn    decimal.Decimal     `gorm:"type:decimal(12,2);not null;default:0"`
	TotalCashOut   decimal.Decimal     `gorm:"type:decimal(12,2);not null;default:0"`
	TotalSales     decimal.Decimal     `gorm:"type:decimal(12,2);not null;default:0"`
	Variance       decimal.Decimal     `gorm:"type:decimal(12,2);not null;default:0"`
	CreatedAt      time.Time           `gorm:"not null"`
	UpdatedAt      time.Time           `gorm:"not null"`
}

func (CashDrawerSession) TableName() string { return "cash_drawer_sessions" }

func (session *CashDrawerSession) BeforeCreate(tx *gorm.DB) error {
	if session.ID == "" {
		session.ID = uuid.NewString()
	}
	return nil
}

// CashDrawerTransaction mirrors the cash_drawer_transactions table.
type CashDrawerTransaction struct {
	ID              string          `gorm:"type:uuid;primaryKey"`
	EmployeeID      string          `gorm:"not null;index:idx_cash_drawer_transactions_employee_date,priority:1"`
	TransactionType string          `gorm:"type:varchar(16);not null"`
	Category        string          `gorm:"type:varchar(16);not null;index:idx_cash_drawer_transactions_category_description,priority:1"`
	Amount          decimal.Decimal `gorm:"type:decimal(12,2);not null"`
	Description     string          `gorm:"type:varchar(255);not null;index:idx_cash_drawer_transactions_category_description,priority:2"`
	Status          string          `gorm:"type:varchar(16);not null"`
	BusinessDate    string          `gorm:"type:varchar(10);not null;index:idx_cash_drawer_transactions_employee_date,priority:2"`
	CreatedAt       time.Time       `gorm:"not null"`
	UpdatedAt       time.Time       `gorm:"not null"`
}

func (CashDrawerTransaction) TableName() string { return "cash_drawer_transactions" }

func (transaction *CashDrawerTransaction) BeforeCreate(tx *gorm.DB) error {
	if transaction.ID == "" {
		transaction.ID = uuid.NewString()
	}
	return nil
}

// CashDrawerVariance mirrors the cash_drawer_variances table.
type CashDrawerVariance struct {
	ID              string          `gorm:"type:uuid;primaryKey"`
	SessionID       string          `gorm:"type:uuid;not null;index:uniq_cash_drawer_variances_session,unique"`
	EmployeeID      string          `gorm:"not null;index"`
	ExpectedBalance decimal.Decimal `gorm:"type:decimal(12,2);not null"`
	ActualCounted   decimal.Decimal `gorm:"type:decimal(12,2);not null"`
	VarianceAmount  decimal.Decimal `gorm:"type:decimal(12,2);not null"`
	VarianceType    string          `gorm:"type:varchar(16);not null"`
	ShiftDate       string          `gorm:"type:varchar(10);not null"`
	Closure         string          `gorm:"type:varchar(16);not null"`
	CreatedAt       time.Time       `gorm:"not null"`
}

func (CashDrawerVariance) TableName() string { return "cash_drawer_variances" }

func (variance *CashDrawerVariance) BeforeCreate(tx *gorm.DB) error {
	if variance.ID == "" {
		variance.ID = uuid.NewString()
	}
	return nil
}

// CashierActivityLog mirrors the append-only cashier_activity_logs table.
type CashierActivityLog struct {
	ID          string         `gorm:"type:uuid;primaryKey"`
	CashierID   string         `gorm:"not null;index:idx_cashier_activity_logs_cashier_created,priority:1"`
	ActionType  string         `gorm:"type:varchar(32);not null"`
	TargetTable string         `gorm:"column:table_name;type:varchar(64);not null"`
	RecordID    string         `gorm:"not null"`
	OldValues   datatypes.JSON `gorm:"type:jsonb"`
	NewValues   datatypes.JSON `gorm:"type:jsonb"`
	Description string         `gorm:"type:text"`
	IPAddress   string         `gorm:"type:varchar(64)"`
	UserAgent   string         `gorm:"type:text"`
	CreatedAt   time.Time      `gorm:"not null;index:idx_cashier_activity_logs_cashier_created,priority:2"`
}

func (CashierActivityLog) TableName() string { return "cashier_activity_logs" }

func (activity *CashierActivityLog) BeforeCreate(tx *gorm.DB) error {
	if activity.ID == "" {
		activity.ID = uuid.NewString()
	}
	return nil
}

// Sale is the read model over the sales table owned by the point of sale.
type Sale struct {
	ID            uint            `gorm:"primaryKey"`
	ReceiptNumber string          `gorm:"type:varchar(50);not null;uniqueIndex"`
	EmployeeID    string          `gorm:"not null;index:idx_sales_employee_date,priority:1"`
	TotalAmount   decimal.Decimal `gorm:"type:decimal(10,2);not null"`
	PaymentMethod string          `gorm:"type:varchar(16);not null"`
	Status        string          `gorm:"type:varchar(16);not null;default:'pending'"`
	SaleDate      time.Time       `gorm:"not null;index:idx_sales_employee_date,priority:2"`
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

func (Sale) TableName() string { return "sales" }

// Models lists every table the drawer reads or writes, in migration order.
func Models() []any {
	return []any{
		&CashDrawerSession{},
		&CashDrawerTransaction{},
		&CashDrawerVariance{},
		&CashierActivityLog{},
		&Sale{},
	}
}

// AutoMigrate creates or updates the drawer tables.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(Models()...)
}
