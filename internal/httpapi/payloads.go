package httpapi

import (
	"time"

	"github.com/MarkoPoloResearchLab/cashdrawer/pkg/drawer"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

const moneyScale = 2

type openRequest struct {
	StartingAmount decimal.NullDecimal `json:"starting_amount"`
}

type endShiftRequest struct {
	CountedAmount decimal.NullDecimal `json:"counted_amount"`
}

type movementRequest struct {
	Amount           decimal.NullDecimal `json:"amount"`
	Reason           string              `json:"reason"`
	Reference        string              `json:"reference"`
	Notes            string              `json:"notes"`
	RequiresApproval bool                `json:"requires_approval"`
}

type editRequest struct {
	Amount      decimal.NullDecimal `json:"amount"`
	Description string              `json:"description"`
}

type sessionPayload struct {
	ID             string     `json:"id"`
	CashierID      string     `json:"cashier_id"`
	SessionDate    string     `json:"session_date"`
	Status         string     `json:"status"`
	StartTime      time.Time  `json:"start_time"`
	EndTime        *time.Time `json:"end_time,omitempty"`
	StartingAmount string     `json:"starting_amount"`
	EndingAmount   *string    `json:"ending_amount,omitempty"`
	TotalCashIn    string     `json:"total_cash_in"`
	TotalCashOut   string     `json:"total_cash_out"`
	TotalSales     string     `json:"total_sales"`
	Variance       string     `json:"variance"`
}

type breakdownPayload struct {
	Date            string `json:"date"`
	OpeningFloat    string `json:"opening_float"`
	CashIns         string `json:"cash_ins"`
	CashSales       string `json:"cash_sales"`
	CashOuts        string `json:"cash_outs"`
	SafeDrops       string `json:"safe_drops"`
	ExpectedBalance string `json:"expected_balance"`
}

type transactionPayload struct {
	ID           string    `json:"id"`
	Type         string    `json:"transaction_type"`
	Category     string    `json:"category"`
	Amount       string    `json:"amount"`
	Description  string    `json:"description"`
	Status       string    `json:"status"`
	BusinessDate string    `json:"business_date"`
	CreatedAt    time.Time `json:"created_at"`
}

type reconciliationPayload struct {
	Session      sessionPayload   `json:"session"`
	Breakdown    breakdownPayload `json:"breakdown"`
	Counted      string           `json:"counted"`
	Variance     string           `json:"variance"`
	VarianceType string           `json:"variance_type"`
}

func money(value decimal.Decimal) string {
	return value.StringFixed(moneyScale)
}

func toSessionPayload(session drawer.Session) sessionPayload {
	payload := sessionPayload{
		ID:             session.ID,
		CashierID:      session.CashierID,
		SessionDate:    session.SessionDate.String(),
		Status:         string(session.Status),
		StartTime:      session.StartTime,
		EndTime:        session.EndTime,
		StartingAmount: money(session.StartingAmount),
		TotalCashIn:    money(session.TotalCashIn),
		TotalCashOut:   money(session.TotalCashOut),
		TotalSales:     money(session.TotalSales),
		Variance:       money(session.Variance),
	}
	if session.EndingAmount != nil {
		ending := money(*session.EndingAmount)
		payload.EndingAmount = &ending
	}
	return payload
}

func toBreakdownPayload(breakdown drawer.BalanceBreakdown) breakdownPayload {
	return breakdownPayload{
		Date:            breakdown.Date.String(),
		OpeningFloat:    money(breakdown.OpeningFloat),
		CashIns:         money(breakdown.CashIns),
		CashSales:       money(breakdown.CashSales),
		CashOuts:        money(breakdown.CashOuts),
		SafeDrops:       money(breakdown.SafeDrops),
		ExpectedBalance: money(breakdown.ExpectedBalance),
	}
}

func toTransactionPayload(transaction drawer.Transaction) transactionPayload {
	return transactionPayload{
		ID:           transaction.ID,
		Type:         string(transaction.Type),
		Category:     string(transaction.Category),
		Amount:       money(transaction.Amount),
		Description:  transaction.Description,
		Status:       string(transaction.Status),
		BusinessDate: transaction.BusinessDate.String(),
		CreatedAt:    transaction.CreatedAt,
	}
}

func toTransactionPayloads(transactions []drawer.Transaction) []transactionPayload {
	payloads := make([]transactionPayload, 0, len(transactions))
	for _, transaction := range transactions {
		payloads = append(payloads, toTransactionPayload(transaction))
	}
	return payloads
}

func success(receipt drawer.Receipt, data any) gin.H {
	body := gin.H{
		"success": true,
		"message": receipt.Message,
	}
	if data != nil {
		body["data"] = data
	}
	if receipt.AuditError != nil {
		body["audit_warning"] = receipt.AuditError.Error()
	}
	return body
}

func failure(code string, message string) gin.H {
	return gin.H{
		"success": false,
		"error":   code,
		"message": message,
	}
}
