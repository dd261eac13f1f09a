package domain

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// DefaultBudgetAmount seeds new months when no default_budget_amount setting exists
var DefaultBudgetAmount = decimal.NewFromInt(1000)

// MonthlyBudget is the allotment for one calendar month, before rollover is added
type MonthlyBudget struct {
	ID              int32           `json:"id"`
	MonthYear       string          `json:"month_year"`
	BudgetAmount    decimal.Decimal `json:"budget_amount"`
	RolloverEnabled bool            `json:"rollover_enabled"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

// MonthlyBudgetUpdate is a partial update; nil fields are left untouched
type MonthlyBudgetUpdate struct {
	BudgetAmount    *decimal.Decimal `json:"budget_amount,omitempty"`
	RolloverEnabled *bool            `json:"rollover_enabled,omitempty"`
}

// Apply returns a copy of b with the update applied
func (u MonthlyBudgetUpdate) Apply(b MonthlyBudget) MonthlyBudget {
	if u.BudgetAmount != nil {
		b.BudgetAmount = *u.BudgetAmount
	}
	if u.RolloverEnabled != nil {
		b.RolloverEnabled = *u.RolloverEnabled
	}
	return b
}

// ValidateBudgetAmount checks that a budget is non-negative with at most two
// fractional digits
func ValidateBudgetAmount(amount decimal.Decimal) error {
	if amount.IsNegative() {
		return ErrNegativeBudget
	}
	if !amount.Equal(amount.Truncate(MaxAmountFractionDigits)) {
		return ErrAmountPrecision
	}
	return nil
}

// BudgetSummary is the derived spend state of a month. It is never persisted.
type BudgetSummary struct {
	MonthYear         string          `json:"month_year"`
	BudgetAmount      decimal.Decimal `json:"budget_amount"`
	TotalTransactions decimal.Decimal `json:"total_transactions"`
	RemainingBudget   decimal.Decimal `json:"remaining_budget"`
	IsOverBudget      bool            `json:"is_over_budget"`
	RolloverEnabled   bool            `json:"rollover_enabled"`
}

type MonthlyBudgetRepository interface {
	Create(ctx context.Context, monthYear string, amount decimal.Decimal, rolloverEnabled bool) (*MonthlyBudget, error)
	GetByMonth(ctx context.Context, monthYear string) (*MonthlyBudget, error)
	GetAll(ctx context.Context) ([]*MonthlyBudget, error)
	Update(ctx context.Context, monthYear string, update MonthlyBudgetUpdate) (*MonthlyBudget, error)
	Delete(ctx context.Context, monthYear string) error
}
