package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/kthezelais/budget-tracker/internal/domain"
	"github.com/shopspring/decimal"
)

const monthlyBudgetColumns = `id, month_year, budget_amount, rollover_enabled, created_at, updated_at`

// MonthlyBudgetRepository implements domain.MonthlyBudgetRepository using PostgreSQL
type MonthlyBudgetRepository struct {
	pool *pgxpool.Pool
}

// NewMonthlyBudgetRepository creates a new MonthlyBudgetRepository
func NewMonthlyBudgetRepository(pool *pgxpool.Pool) *MonthlyBudgetRepository {
	return &MonthlyBudgetRepository{pool: pool}
}

// Create inserts the budget of a month
func (r *MonthlyBudgetRepository) Create(ctx context.Context, monthYear string, amount decimal.Decimal, rolloverEnabled bool) (*domain.MonthlyBudget, error) {
	num, err := decimalToPgNumeric(amount)
	if err != nil {
		return nil, fmt.Errorf("invalid budget amount: %w", err)
	}

	row := r.pool.QueryRow(ctx,
		`INSERT INTO monthly_budgets (month_year, budget_amount, rollover_enabled)
		 VALUES ($1, $2, $3) RETURNING `+monthlyBudgetColumns,
		monthYear, num, rolloverEnabled,
	)
	budget, err := scanMonthlyBudget(row)
	if err != nil {
		if isPgUniqueViolation(err) {
			return nil, domain.ErrMonthlyBudgetExists
		}
		return nil, err
	}
	return budget, nil
}

// GetByMonth retrieves the budget of a month
func (r *MonthlyBudgetRepository) GetByMonth(ctx context.Context, monthYear string) (*domain.MonthlyBudget, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+monthlyBudgetColumns+` FROM monthly_budgets WHERE month_year = $1`, monthYear)
	return scanMonthlyBudget(row)
}

// GetAll returns every budget, latest month first
func (r *MonthlyBudgetRepository) GetAll(ctx context.Context) ([]*domain.MonthlyBudget, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+monthlyBudgetColumns+` FROM monthly_budgets ORDER BY month_year DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	budgets := make([]*domain.MonthlyBudget, 0)
	for rows.Next() {
		b, err := scanMonthlyBudget(rows)
		if err != nil {
			return nil, err
		}
		budgets = append(budgets, b)
	}
	return budgets, rows.Err()
}

// Update applies a partial update; nil fields keep their stored value
func (r *MonthlyBudgetRepository) Update(ctx context.Context, monthYear string, update domain.MonthlyBudgetUpdate) (*domain.MonthlyBudget, error) {
	var amount pgtype.Numeric
	if update.BudgetAmount != nil {
		num, err := decimalToPgNumeric(*update.BudgetAmount)
		if err != nil {
			return nil, fmt.Errorf("invalid budget amount: %w", err)
		}
		amount = num
	}
	var rollover pgtype.Bool
	if update.RolloverEnabled != nil {
		rollover = pgtype.Bool{Bool: *update.RolloverEnabled, Valid: true}
	}

	row := r.pool.QueryRow(ctx,
		`UPDATE monthly_budgets
		 SET budget_amount = COALESCE($2, budget_amount),
		     rollover_enabled = COALESCE($3, rollover_enabled),
		     updated_at = NOW()
		 WHERE month_year = $1
		 RETURNING `+monthlyBudgetColumns,
		monthYear, amount, rollover,
	)
	return scanMonthlyBudget(row)
}

// Delete removes the budget of a month
func (r *MonthlyBudgetRepository) Delete(ctx context.Context, monthYear string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM monthly_budgets WHERE month_year = $1`, monthYear)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrMonthlyBudgetNotFound
	}
	return nil
}

func scanMonthlyBudget(row pgx.Row) (*domain.MonthlyBudget, error) {
	var (
		b      domain.MonthlyBudget
		amount pgtype.Numeric
	)
	err := row.Scan(&b.ID, &b.MonthYear, &amount, &b.RolloverEnabled, &b.CreatedAt, &b.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrMonthlyBudgetNotFound
		}
		return nil, err
	}
	b.BudgetAmount = pgNumericToDecimal(amount)
	return &b, nil
}
