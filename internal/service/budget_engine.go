package service

import (
	"fmt"
	"time"

	"github.com/kthezelais/budget-tracker/internal/domain"
	"github.com/kthezelais/budget-tracker/internal/util"
	"github.com/shopspring/decimal"
)

// BudgetEngine derives month summaries from transactions and monthly budgets.
// It holds no state besides the time zone used for month bucketing and never
// mutates its inputs.
type BudgetEngine struct {
	loc *time.Location
}

// NewBudgetEngine creates a BudgetEngine bucketing transactions in loc.
// A nil loc means time.Local.
func NewBudgetEngine(loc *time.Location) *BudgetEngine {
	if loc == nil {
		loc = time.Local
	}
	return &BudgetEngine{loc: loc}
}

// Location returns the time zone used for month bucketing
func (e *BudgetEngine) Location() *time.Location {
	return e.loc
}

// TransactionsForMonth returns the transactions whose timestamp falls in
// [first instant of month, first instant of next month)
func (e *BudgetEngine) TransactionsForMonth(transactions []*domain.Transaction, monthKey string) []*domain.Transaction {
	result := []*domain.Transaction{}
	start, end, err := util.MonthBounds(monthKey, e.loc)
	if err != nil {
		return result
	}
	for _, t := range transactions {
		if t == nil {
			continue
		}
		if !t.Timestamp.Before(start) && t.Timestamp.Before(end) {
			result = append(result, t)
		}
	}
	return result
}

// TotalForMonth returns withdrawals minus deposits for the month
func (e *BudgetEngine) TotalForMonth(transactions []*domain.Transaction, monthKey string) decimal.Decimal {
	total := decimal.Zero
	for _, t := range e.TransactionsForMonth(transactions, monthKey) {
		total = total.Add(t.SignedAmount())
	}
	return total
}

// RolloverCarryIn returns the signed amount carried into monthKey from the
// chain of preceding months. The chain stops at the first month that has
// rollover disabled or no budget record.
func (e *BudgetEngine) RolloverCarryIn(transactions []*domain.Transaction, budgets []*domain.MonthlyBudget, monthKey string) (decimal.Decimal, error) {
	index, err := indexBudgets(budgets)
	if err != nil {
		return decimal.Zero, err
	}
	return e.carryIn(e.totalsByMonth(transactions), index, monthKey)
}

// Summarize computes the summary of monthKey. A month without a budget record
// is treated as a fresh one seeded from defaultBudgetAmount with rollover on.
// The base budget is always defaultBudgetAmount; only the carry-in is derived.
func (e *BudgetEngine) Summarize(monthKey string, transactions []*domain.Transaction, budgets []*domain.MonthlyBudget, defaultBudgetAmount decimal.Decimal) (*domain.BudgetSummary, error) {
	if _, _, err := util.ParseMonthKey(monthKey); err != nil {
		return nil, err
	}
	index, err := indexBudgets(budgets)
	if err != nil {
		return nil, err
	}

	budget, ok := index[monthKey]
	if !ok {
		budget = &domain.MonthlyBudget{
			MonthYear:       monthKey,
			BudgetAmount:    defaultBudgetAmount,
			RolloverEnabled: true,
		}
	}

	totals := e.totalsByMonth(transactions)

	effective := defaultBudgetAmount
	if budget.RolloverEnabled {
		carry, err := e.carryIn(totals, index, monthKey)
		if err != nil {
			return nil, err
		}
		effective = effective.Add(carry)
	}

	spent := totals[monthKey]
	remaining := effective.Sub(spent)

	return &domain.BudgetSummary{
		MonthYear:         monthKey,
		BudgetAmount:      effective,
		TotalTransactions: spent,
		RemainingBudget:   remaining,
		IsOverBudget:      remaining.IsNegative(),
		RolloverEnabled:   budget.RolloverEnabled,
	}, nil
}

// RecalculateOnRolloverToggle returns a copy of budgets with the rollover flag
// of monthKey replaced, and the summary of monthKey computed from that copy.
// A missing record for monthKey is materialized from defaultBudgetAmount.
func (e *BudgetEngine) RecalculateOnRolloverToggle(monthKey string, transactions []*domain.Transaction, budgets []*domain.MonthlyBudget, newRolloverEnabled bool, defaultBudgetAmount decimal.Decimal) (*domain.BudgetSummary, []*domain.MonthlyBudget, error) {
	if _, _, err := util.ParseMonthKey(monthKey); err != nil {
		return nil, nil, err
	}

	updated := make([]*domain.MonthlyBudget, 0, len(budgets)+1)
	found := false
	for _, b := range budgets {
		if b == nil {
			continue
		}
		cp := *b
		if cp.MonthYear == monthKey {
			cp.RolloverEnabled = newRolloverEnabled
			found = true
		}
		updated = append(updated, &cp)
	}
	if !found {
		updated = append(updated, &domain.MonthlyBudget{
			MonthYear:       monthKey,
			BudgetAmount:    defaultBudgetAmount,
			RolloverEnabled: newRolloverEnabled,
		})
	}

	summary, err := e.Summarize(monthKey, transactions, updated, defaultBudgetAmount)
	if err != nil {
		return nil, nil, err
	}
	return summary, updated, nil
}

// carryIn walks backward from monthKey collecting the rollover chain, then
// folds it forward from the oldest link.
func (e *BudgetEngine) carryIn(totals map[string]decimal.Decimal, index map[string]*domain.MonthlyBudget, monthKey string) (decimal.Decimal, error) {
	if _, _, err := util.ParseMonthKey(monthKey); err != nil {
		return decimal.Zero, err
	}

	visited := map[string]struct{}{monthKey: {}}
	var chain []*domain.MonthlyBudget
	for cur := monthKey; ; {
		prev := util.PreviousMonth(cur)
		if _, seen := visited[prev]; seen {
			return decimal.Zero, fmt.Errorf("%w: %s", domain.ErrRolloverCycle, prev)
		}
		visited[prev] = struct{}{}

		budget, ok := index[prev]
		if !ok {
			break
		}
		chain = append(chain, budget)
		if !budget.RolloverEnabled {
			break
		}
		cur = prev
	}

	carry := decimal.Zero
	for i := len(chain) - 1; i >= 0; i-- {
		link := chain[i]
		carry = link.BudgetAmount.Add(carry).Sub(totals[link.MonthYear])
	}
	return carry, nil
}

// totalsByMonth buckets signed transaction amounts by month key
func (e *BudgetEngine) totalsByMonth(transactions []*domain.Transaction) map[string]decimal.Decimal {
	totals := make(map[string]decimal.Decimal)
	for _, t := range transactions {
		if t == nil {
			continue
		}
		key := util.MonthKeyOf(t.Timestamp, e.loc)
		totals[key] = totals[key].Add(t.SignedAmount())
	}
	return totals
}

// indexBudgets maps budgets by month key, rejecting malformed and duplicate keys
func indexBudgets(budgets []*domain.MonthlyBudget) (map[string]*domain.MonthlyBudget, error) {
	index := make(map[string]*domain.MonthlyBudget, len(budgets))
	for _, b := range budgets {
		if b == nil {
			continue
		}
		if !util.IsValidMonthKey(b.MonthYear) {
			return nil, fmt.Errorf("%w: %q", domain.ErrInvalidMonthKey, b.MonthYear)
		}
		if _, dup := index[b.MonthYear]; dup {
			return nil, fmt.Errorf("%w: %s", domain.ErrDuplicateMonthKey, b.MonthYear)
		}
		index[b.MonthYear] = b
	}
	return index, nil
}
