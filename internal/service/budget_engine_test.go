package service

import (
	"fmt"
	"testing"
	"time"

	"github.com/kthezelais/budget-tracker/internal/domain"
	"github.com/kthezelais/budget-tracker/internal/util"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testLoc = time.FixedZone("UTC-5", -5*60*60)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func tx(id int32, amount string, typ domain.TransactionType, ts time.Time) *domain.Transaction {
	return &domain.Transaction{
		ID:        id,
		DeviceID:  "device-1",
		Name:      fmt.Sprintf("tx %d", id),
		Amount:    dec(amount),
		Type:      typ,
		Timestamp: ts,
	}
}

func budget(month, amount string, rollover bool) *domain.MonthlyBudget {
	return &domain.MonthlyBudget{MonthYear: month, BudgetAmount: dec(amount), RolloverEnabled: rollover}
}

func day(year int, month time.Month, d int) time.Time {
	return time.Date(year, month, d, 12, 0, 0, 0, testLoc)
}

func TestBudgetEngine_TotalForMonth_SignConvention(t *testing.T) {
	engine := NewBudgetEngine(testLoc)
	transactions := []*domain.Transaction{
		tx(1, "50", domain.TransactionTypeWithdraw, day(2025, 9, 3)),
		tx(2, "20", domain.TransactionTypeDeposit, day(2025, 9, 10)),
		tx(3, "999", domain.TransactionTypeWithdraw, day(2025, 10, 1)),
	}

	assert.Equal(t, "30.00", engine.TotalForMonth(transactions, "2025-09").StringFixed(2))
	assert.True(t, engine.TotalForMonth(nil, "2025-09").IsZero())
}

func TestBudgetEngine_TransactionsForMonth_Boundaries(t *testing.T) {
	engine := NewBudgetEngine(testLoc)
	lastInstant := time.Date(2025, 9, 30, 23, 59, 59, 999_000_000, testLoc)
	firstInstantNext := time.Date(2025, 10, 1, 0, 0, 0, 0, testLoc)
	transactions := []*domain.Transaction{
		tx(1, "10", domain.TransactionTypeWithdraw, lastInstant),
		tx(2, "20", domain.TransactionTypeWithdraw, firstInstantNext),
	}

	september := engine.TransactionsForMonth(transactions, "2025-09")
	october := engine.TransactionsForMonth(transactions, "2025-10")

	require.Len(t, september, 1)
	assert.Equal(t, int32(1), september[0].ID)
	require.Len(t, october, 1)
	assert.Equal(t, int32(2), october[0].ID)

	assert.Equal(t, "10.00", engine.TotalForMonth(transactions, "2025-09").StringFixed(2))
	assert.Equal(t, "20.00", engine.TotalForMonth(transactions, "2025-10").StringFixed(2))
}

func TestBudgetEngine_TransactionsForMonth_UsesDeviceTimeZone(t *testing.T) {
	engine := NewBudgetEngine(testLoc)
	// 2025-10-01 02:00 UTC is still September 30th at UTC-5
	transactions := []*domain.Transaction{
		tx(1, "10", domain.TransactionTypeWithdraw, time.Date(2025, 10, 1, 2, 0, 0, 0, time.UTC)),
	}

	assert.Len(t, engine.TransactionsForMonth(transactions, "2025-09"), 1)
	assert.Empty(t, engine.TransactionsForMonth(transactions, "2025-10"))
	assert.Empty(t, engine.TransactionsForMonth(nil, "2025-10"))
	assert.Empty(t, engine.TransactionsForMonth(transactions, "not-a-month"))
}

func TestBudgetEngine_RolloverCarryIn_ChainOfEmptyMonths(t *testing.T) {
	engine := NewBudgetEngine(testLoc)

	for _, n := range []int{1, 2, 5, 24} {
		t.Run(fmt.Sprintf("%d months", n), func(t *testing.T) {
			months := util.NextNMonths("2024-01", n+1)
			budgets := make([]*domain.MonthlyBudget, 0, n)
			for _, m := range months[:n] {
				budgets = append(budgets, budget(m, "250", true))
			}

			carry, err := engine.RolloverCarryIn(nil, budgets, months[n])

			require.NoError(t, err)
			assert.True(t, carry.Equal(dec("250").Mul(decimal.NewFromInt(int64(n)))), carry.String())
		})
	}
}

func TestBudgetEngine_RolloverCarryIn_NoPreviousBudget(t *testing.T) {
	engine := NewBudgetEngine(testLoc)

	carry, err := engine.RolloverCarryIn(nil, []*domain.MonthlyBudget{budget("2025-06", "100", true)}, "2025-09")

	require.NoError(t, err)
	assert.True(t, carry.IsZero())
}

func TestBudgetEngine_RolloverCarryIn_StopsAtDisabledMonth(t *testing.T) {
	engine := NewBudgetEngine(testLoc)
	budgets := []*domain.MonthlyBudget{
		budget("2025-07", "1000", true),  // surplus 1000 would flow into August
		budget("2025-08", "1000", false), // chain stops here
	}
	transactions := []*domain.Transaction{
		tx(1, "400", domain.TransactionTypeWithdraw, day(2025, 8, 10)),
	}

	carry, err := engine.RolloverCarryIn(transactions, budgets, "2025-09")
	require.NoError(t, err)
	assert.Equal(t, "600.00", carry.StringFixed(2))

	summary, err := engine.Summarize("2025-09", transactions, budgets, dec("1000"))
	require.NoError(t, err)
	assert.Equal(t, "1600.00", summary.BudgetAmount.StringFixed(2))
}

func TestBudgetEngine_RolloverCarryIn_NegativeCarry(t *testing.T) {
	engine := NewBudgetEngine(testLoc)
	budgets := []*domain.MonthlyBudget{budget("2025-08", "500", false)}
	transactions := []*domain.Transaction{
		tx(1, "700", domain.TransactionTypeWithdraw, day(2025, 8, 10)),
	}

	carry, err := engine.RolloverCarryIn(transactions, budgets, "2025-09")

	require.NoError(t, err)
	assert.Equal(t, "-200.00", carry.StringFixed(2))
}

func TestBudgetEngine_RolloverCarryIn_YearBoundary(t *testing.T) {
	engine := NewBudgetEngine(testLoc)
	budgets := []*domain.MonthlyBudget{
		budget("2025-11", "100", false),
		budget("2025-12", "100", true),
	}

	carry, err := engine.RolloverCarryIn(nil, budgets, "2026-01")

	require.NoError(t, err)
	assert.Equal(t, "200.00", carry.StringFixed(2))
}

func TestBudgetEngine_RejectsMalformedBudgetCollection(t *testing.T) {
	engine := NewBudgetEngine(testLoc)

	_, err := engine.RolloverCarryIn(nil, []*domain.MonthlyBudget{
		budget("2025-08", "100", true),
		budget("2025-08", "200", true),
	}, "2025-09")
	assert.ErrorIs(t, err, domain.ErrDuplicateMonthKey)
	assert.True(t, domain.IsValidationError(err))

	_, err = engine.Summarize("2025-09", nil, []*domain.MonthlyBudget{budget("2025-8", "100", true)}, dec("100"))
	assert.ErrorIs(t, err, domain.ErrInvalidMonthKey)

	_, err = engine.Summarize("September", nil, nil, dec("100"))
	assert.ErrorIs(t, err, domain.ErrInvalidMonthKey)
}

func TestBudgetEngine_Summarize_FreshMonth(t *testing.T) {
	engine := NewBudgetEngine(testLoc)
	budgets := []*domain.MonthlyBudget{}

	summary, err := engine.Summarize("2025-09", nil, budgets, dec("1000"))

	require.NoError(t, err)
	assert.Equal(t, "2025-09", summary.MonthYear)
	assert.Equal(t, "1000.00", summary.BudgetAmount.StringFixed(2))
	assert.True(t, summary.TotalTransactions.IsZero())
	assert.Equal(t, "1000.00", summary.RemainingBudget.StringFixed(2))
	assert.False(t, summary.IsOverBudget)
	assert.True(t, summary.RolloverEnabled)
	assert.Empty(t, budgets, "caller collection must not be mutated")
}

func TestBudgetEngine_Summarize_UsesDefaultAmountAsBase(t *testing.T) {
	engine := NewBudgetEngine(testLoc)
	// the stored amount is stale; the supplied default wins
	budgets := []*domain.MonthlyBudget{budget("2025-09", "5000", false)}

	summary, err := engine.Summarize("2025-09", nil, budgets, dec("1200"))

	require.NoError(t, err)
	assert.Equal(t, "1200.00", summary.BudgetAmount.StringFixed(2))
	assert.False(t, summary.RolloverEnabled)
}

func TestBudgetEngine_Summarize_RolloverDisabledDropsCarry(t *testing.T) {
	engine := NewBudgetEngine(testLoc)
	budgets := []*domain.MonthlyBudget{
		budget("2025-08", "1000", true),
		budget("2025-09", "1000", false),
	}

	summary, err := engine.Summarize("2025-09", nil, budgets, dec("1000"))

	require.NoError(t, err)
	assert.Equal(t, "1000.00", summary.BudgetAmount.StringFixed(2))
}

func TestBudgetEngine_Summarize_OverBudgetBoundary(t *testing.T) {
	engine := NewBudgetEngine(testLoc)

	tests := []struct {
		name          string
		spent         string
		wantRemaining string
		wantOver      bool
	}{
		{"exactly on budget", "100.00", "0.00", false},
		{"one cent over", "100.01", "-0.01", true},
		{"under budget", "99.99", "0.01", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			transactions := []*domain.Transaction{
				tx(1, tt.spent, domain.TransactionTypeWithdraw, day(2025, 9, 5)),
			}
			budgets := []*domain.MonthlyBudget{budget("2025-09", "100", false)}

			summary, err := engine.Summarize("2025-09", transactions, budgets, dec("100"))

			require.NoError(t, err)
			assert.Equal(t, tt.wantRemaining, summary.RemainingBudget.StringFixed(2))
			assert.Equal(t, tt.wantOver, summary.IsOverBudget)
		})
	}
}

func TestBudgetEngine_EndToEndScenario(t *testing.T) {
	engine := NewBudgetEngine(testLoc)
	transactions := []*domain.Transaction{
		tx(1, "800", domain.TransactionTypeWithdraw, day(2025, 9, 12)),
		tx(2, "1300", domain.TransactionTypeWithdraw, day(2025, 10, 20)),
	}
	budgets := []*domain.MonthlyBudget{
		budget("2025-09", "1000", true),
		budget("2025-10", "1000", true),
		budget("2025-11", "1000", true),
	}

	carry, err := engine.RolloverCarryIn(transactions, budgets, "2025-10")
	require.NoError(t, err)
	assert.Equal(t, "200.00", carry.StringFixed(2))

	october, err := engine.Summarize("2025-10", transactions, budgets, dec("1000"))
	require.NoError(t, err)
	assert.Equal(t, "1200.00", october.BudgetAmount.StringFixed(2))
	assert.Equal(t, "1300.00", october.TotalTransactions.StringFixed(2))
	assert.Equal(t, "-100.00", october.RemainingBudget.StringFixed(2))
	assert.True(t, october.IsOverBudget)

	november, err := engine.Summarize("2025-11", transactions, budgets, dec("1000"))
	require.NoError(t, err)
	assert.Equal(t, "900.00", november.BudgetAmount.StringFixed(2))
	assert.False(t, november.IsOverBudget)
}

func TestBudgetEngine_EarliestMonthHasNoSelfCarry(t *testing.T) {
	engine := NewBudgetEngine(testLoc)
	transactions := []*domain.Transaction{
		tx(1, "300", domain.TransactionTypeWithdraw, day(2025, 9, 12)),
		tx(2, "50", domain.TransactionTypeWithdraw, day(2025, 10, 2)),
	}
	first := util.FirstTrackedMonth(transactions, testLoc)
	require.Equal(t, "2025-09", first)

	budgets := []*domain.MonthlyBudget{
		budget("2025-09", "1000", false),
		budget("2025-10", "1000", true),
	}

	carry, err := engine.RolloverCarryIn(transactions, budgets, first)
	require.NoError(t, err)
	assert.True(t, carry.IsZero())

	summary, err := engine.Summarize(first, transactions, budgets, dec("1000"))
	require.NoError(t, err)
	assert.Equal(t, "1000.00", summary.BudgetAmount.StringFixed(2))
	assert.Equal(t, "700.00", summary.RemainingBudget.StringFixed(2))
}

func TestBudgetEngine_RecalculateOnRolloverToggle(t *testing.T) {
	engine := NewBudgetEngine(testLoc)
	transactions := []*domain.Transaction{
		tx(1, "800", domain.TransactionTypeWithdraw, day(2025, 9, 12)),
	}
	budgets := []*domain.MonthlyBudget{
		budget("2025-09", "1000", true),
		budget("2025-10", "1000", true),
	}

	off, updated, err := engine.RecalculateOnRolloverToggle("2025-10", transactions, budgets, false, dec("1000"))
	require.NoError(t, err)
	assert.Equal(t, "1000.00", off.BudgetAmount.StringFixed(2))
	assert.False(t, off.RolloverEnabled)
	require.Len(t, updated, 2)
	assert.False(t, updated[1].RolloverEnabled)
	assert.True(t, budgets[1].RolloverEnabled, "input must not be mutated")

	on, _, err := engine.RecalculateOnRolloverToggle("2025-10", transactions, updated, true, dec("1000"))
	require.NoError(t, err)
	assert.Equal(t, "1200.00", on.BudgetAmount.StringFixed(2))
}

func TestBudgetEngine_RecalculateOnRolloverToggle_Idempotent(t *testing.T) {
	engine := NewBudgetEngine(testLoc)
	transactions := []*domain.Transaction{
		tx(1, "800", domain.TransactionTypeWithdraw, day(2025, 9, 12)),
	}
	budgets := []*domain.MonthlyBudget{
		budget("2025-09", "1000", true),
		budget("2025-10", "1000", false),
	}

	first, updated, err := engine.RecalculateOnRolloverToggle("2025-10", transactions, budgets, true, dec("1000"))
	require.NoError(t, err)
	second, _, err := engine.RecalculateOnRolloverToggle("2025-10", transactions, updated, true, dec("1000"))
	require.NoError(t, err)

	assert.Equal(t, first.BudgetAmount.String(), second.BudgetAmount.String())
	assert.Equal(t, first.RemainingBudget.String(), second.RemainingBudget.String())
	assert.Equal(t, first.TotalTransactions.String(), second.TotalTransactions.String())
	assert.Equal(t, first.IsOverBudget, second.IsOverBudget)
	assert.Equal(t, first.RolloverEnabled, second.RolloverEnabled)
}

func TestBudgetEngine_RecalculateOnRolloverToggle_MaterializesMissingMonth(t *testing.T) {
	engine := NewBudgetEngine(testLoc)

	summary, updated, err := engine.RecalculateOnRolloverToggle("2025-10", nil, nil, false, dec("750"))

	require.NoError(t, err)
	require.Len(t, updated, 1)
	assert.Equal(t, "2025-10", updated[0].MonthYear)
	assert.Equal(t, "750.00", updated[0].BudgetAmount.StringFixed(2))
	assert.False(t, summary.RolloverEnabled)
}
