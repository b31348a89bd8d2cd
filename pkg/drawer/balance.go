package drawer

import (
	"context"

	"github.com/shopspring/decimal"
)

// BalanceBreakdown is the expected drawer content for one cashier on one date.
type BalanceBreakdown struct {
	Date            ShiftDate
	OpeningFloat    decimal.Decimal
	CashIns         decimal.Decimal
	CashSales       decimal.Decimal
	CashOuts        decimal.Decimal
	SafeDrops       decimal.Decimal
	ExpectedBalance decimal.Decimal
}

// ComputeBalance applies the drawer formula:
// opening float + cash ins + cash sales - cash outs - safe drops.
// Shift counts are not part of the drawer content and are ignored.
func ComputeBalance(date ShiftDate, totals CategoryTotals, cashSales decimal.Decimal) BalanceBreakdown {
	breakdown := BalanceBreakdown{
		Date:         date,
		OpeningFloat: totals.Get(CategoryOpeningFloat),
		CashIns:      totals.Get(CategoryCashIn),
		CashSales:    cashSales,
		CashOuts:     totals.Get(CategoryCashOut),
		SafeDrops:    totals.Get(CategorySafeDrop),
	}
	breakdown.ExpectedBalance = breakdown.OpeningFloat.
		Add(breakdown.CashIns).
		Add(breakdown.CashSales).
		Sub(breakdown.CashOuts).
		Sub(breakdown.SafeDrops)
	return breakdown
}

// computeBreakdown reads sales through store when it implements SalesTotals.
func (service *Service) computeBreakdown(ctx context.Context, store Store, cashierID CashierID, date ShiftDate) (BalanceBreakdown, error) {
	totals, err := store.SumByCategory(ctx, cashierID, date)
	if err != nil {
		return BalanceBreakdown{}, err
	}
	sales := service.sales
	if transactionalSales, ok := store.(SalesTotals); ok {
		sales = transactionalSales
	}
	cashSales, err := sales.GetConfirmedSalesTotal(ctx, cashierID, date)
	if err != nil {
		return BalanceBreakdown{}, err
	}
	return ComputeBalance(date, totals, cashSales), nil
}
