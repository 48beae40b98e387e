// Package metrics aggregates categorized transactions into monthly financial
// metrics, grouped by calendar month and account currency.
//
// Amounts in different currencies are never merged: requesting "all"
// currencies yields one row per (month, currency) pair. Metrics are computed
// on demand from the transaction set, so overrides and reparses are always
// reflected without cache invalidation.
package metrics

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"financial-statements-service/internal/models"
	"financial-statements-service/pkg/errors"
	"financial-statements-service/pkg/logger"
)

// CurrencyAll requests per-currency rows for every currency present
const CurrencyAll = "all"

// Params scope a metrics computation
type Params struct {
	// FromMonth and ToMonth bound the range, inclusive, as YYYY-MM.
	// Empty means unbounded on that side.
	FromMonth string
	ToMonth   string

	// Currency restricts rows to one account currency. Empty or "all"
	// keeps every currency, each in its own rows.
	Currency string

	// IncludeInternalTransfers keeps FX exchange legs in the aggregates.
	// They are excluded by default so moving money between own balances
	// does not inflate expense or revenue totals.
	IncludeInternalTransfers bool

	// UseOverrides resolves category, amount and sign overrides before
	// aggregating. On by default from the API surface.
	UseOverrides bool
}

// monthBounds resolves the optional range parameters
func (p *Params) monthBounds() (from, to time.Time, err error) {
	if p.FromMonth != "" {
		from, err = models.ParseMonth(p.FromMonth)
		if err != nil {
			return time.Time{}, time.Time{}, errors.FieldError(errors.CodeInvalidDate, p.FromMonth, err)
		}
	}
	if p.ToMonth != "" {
		to, err = models.ParseMonth(p.ToMonth)
		if err != nil {
			return time.Time{}, time.Time{}, errors.FieldError(errors.CodeInvalidDate, p.ToMonth, err)
		}
		to = models.EndOfMonth(to)
	}
	return from, to, nil
}

// MonthlyMetrics is the aggregate for one (month, currency) pair
type MonthlyMetrics struct {
	Month    string `json:"month"`
	Currency string `json:"currency"`

	CategoryTotals map[models.Category]decimal.Decimal `json:"category_totals"`
	CategoryCounts map[models.Category]int             `json:"category_counts"`

	// TotalExpensesOperational sums the five operating expense categories:
	// taxes, accountant, car leasing, employees and other. Dividends are a
	// profit distribution, not an operating cost, and are excluded.
	TotalExpensesOperational decimal.Decimal `json:"total_expenses_operational"`

	// NetIncomeOperational is revenue minus operational expenses
	NetIncomeOperational decimal.Decimal `json:"net_income_operational"`

	// NetCashAfterDividends is operational net income minus paid dividends
	NetCashAfterDividends decimal.Decimal `json:"net_cash_after_dividends"`

	TransactionCount      int `json:"transaction_count"`
	NeedsReviewCount      int `json:"needs_review_count"`
	InternalTransferCount int `json:"internal_transfer_count"`
}

// Summary is the aggregate for one currency across the whole requested range
type Summary struct {
	Currency  string `json:"currency"`
	FromMonth string `json:"from_month,omitempty"`
	ToMonth   string `json:"to_month,omitempty"`
	Months    int    `json:"months"`

	CategoryTotals map[models.Category]decimal.Decimal `json:"category_totals"`

	TotalExpensesOperational decimal.Decimal `json:"total_expenses_operational"`
	NetIncomeOperational     decimal.Decimal `json:"net_income_operational"`
	NetCashAfterDividends    decimal.Decimal `json:"net_cash_after_dividends"`

	TransactionCount int `json:"transaction_count"`
	NeedsReviewCount int `json:"needs_review_count"`
}

// operationalCategories are the expense categories counted as operating cost
var operationalCategories = []models.Category{
	models.CategoryTaxes,
	models.CategoryEmployees,
	models.CategoryCarLeasing,
	models.CategoryAccountant,
	models.CategoryOther,
}

// Calculator computes monthly metrics and range summaries
type Calculator struct {
	logger logger.Logger
}

// NewCalculator creates a metrics Calculator
func NewCalculator() *Calculator {
	return &Calculator{logger: logger.WithComponent("metrics")}
}

// Monthly aggregates the given transactions into per-(month, currency) rows,
// sorted by month then currency.
func (c *Calculator) Monthly(transactions []*models.Transaction, params Params) ([]*MonthlyMetrics, error) {
	from, to, err := params.monthBounds()
	if err != nil {
		return nil, err
	}

	type groupKey struct {
		month    string
		currency string
	}
	groups := make(map[groupKey]*MonthlyMetrics)

	skippedTransfers := 0
	for _, txn := range transactions {
		if !inScope(txn, from, to, params.Currency) {
			continue
		}
		if txn.IsInternalTransfer && !params.IncludeInternalTransfers {
			skippedTransfers++
			continue
		}

		key := groupKey{month: models.MonthKey(txn.TxnDateUTC), currency: txn.AccountCurrency}
		row, ok := groups[key]
		if !ok {
			row = newMonthlyMetrics(key.month, key.currency)
			groups[key] = row
		}
		row.accumulate(txn, params.UseOverrides)
	}

	rows := make([]*MonthlyMetrics, 0, len(groups))
	for _, row := range groups {
		row.finalize()
		rows = append(rows, row)
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].Month != rows[j].Month {
			return rows[i].Month < rows[j].Month
		}
		return rows[i].Currency < rows[j].Currency
	})

	c.logger.WithFields(logger.Fields{
		"rows":              len(rows),
		"skipped_transfers": skippedTransfers,
	}).Debug("Computed monthly metrics")

	return rows, nil
}

// Summarize folds monthly rows into one summary per currency, sorted by
// currency.
func (c *Calculator) Summarize(transactions []*models.Transaction, params Params) ([]*Summary, error) {
	rows, err := c.Monthly(transactions, params)
	if err != nil {
		return nil, err
	}

	byCurrency := make(map[string]*Summary)
	for _, row := range rows {
		summary, ok := byCurrency[row.Currency]
		if !ok {
			summary = &Summary{
				Currency:       row.Currency,
				FromMonth:      params.FromMonth,
				ToMonth:        params.ToMonth,
				CategoryTotals: emptyTotals(),
			}
			byCurrency[row.Currency] = summary
		}

		summary.Months++
		summary.TransactionCount += row.TransactionCount
		summary.NeedsReviewCount += row.NeedsReviewCount
		for category, total := range row.CategoryTotals {
			summary.CategoryTotals[category] = summary.CategoryTotals[category].Add(total)
		}
		summary.TotalExpensesOperational = summary.TotalExpensesOperational.Add(row.TotalExpensesOperational)
		summary.NetIncomeOperational = summary.NetIncomeOperational.Add(row.NetIncomeOperational)
		summary.NetCashAfterDividends = summary.NetCashAfterDividends.Add(row.NetCashAfterDividends)
	}

	summaries := make([]*Summary, 0, len(byCurrency))
	for _, summary := range byCurrency {
		summaries = append(summaries, summary)
	}
	sort.Slice(summaries, func(i, j int) bool {
		return summaries[i].Currency < summaries[j].Currency
	})

	return summaries, nil
}

// inScope applies the month range and currency filters
func inScope(txn *models.Transaction, from, to time.Time, currency string) bool {
	if !from.IsZero() && txn.TxnDateUTC.Before(from) {
		return false
	}
	if !to.IsZero() && !txn.TxnDateUTC.Before(to.AddDate(0, 0, 1)) {
		return false
	}
	if currency != "" && currency != CurrencyAll && txn.AccountCurrency != currency {
		return false
	}
	return true
}

func newMonthlyMetrics(month, currency string) *MonthlyMetrics {
	return &MonthlyMetrics{
		Month:          month,
		Currency:       currency,
		CategoryTotals: emptyTotals(),
		CategoryCounts: make(map[models.Category]int, len(models.AllCategories())),
	}
}

// emptyTotals seeds every category with a zero total so callers always see
// the full category set
func emptyTotals() map[models.Category]decimal.Decimal {
	totals := make(map[models.Category]decimal.Decimal, len(models.AllCategories()))
	for _, category := range models.AllCategories() {
		totals[category] = decimal.Zero
	}
	return totals
}

// accumulate adds one transaction's contribution to the row. Category totals
// are magnitudes for parsed rows; a sign override flips the contribution
// negative within its category.
func (m *MonthlyMetrics) accumulate(txn *models.Transaction, useOverrides bool) {
	category := txn.EffectiveCategory(useOverrides)
	amount := txn.EffectiveAmount(useOverrides)

	m.CategoryTotals[category] = m.CategoryTotals[category].Add(amount)
	m.CategoryCounts[category]++
	m.TransactionCount++
	if txn.NeedsReview {
		m.NeedsReviewCount++
	}
	if txn.IsInternalTransfer {
		m.InternalTransferCount++
	}
}

// finalize derives the headline figures from the category totals
func (m *MonthlyMetrics) finalize() {
	expenses := decimal.Zero
	for _, category := range operationalCategories {
		expenses = expenses.Add(m.CategoryTotals[category])
	}

	m.TotalExpensesOperational = expenses
	m.NetIncomeOperational = m.CategoryTotals[models.CategoryRevenue].Sub(expenses)
	m.NetCashAfterDividends = m.NetIncomeOperational.Sub(m.CategoryTotals[models.CategoryPaidDividends])
}
