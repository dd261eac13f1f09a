package service

import (
	"context"
	"errors"

	"github.com/kthezelais/budget-tracker/internal/domain"
	"github.com/kthezelais/budget-tracker/internal/util"
	"github.com/kthezelais/budget-tracker/internal/websocket"
	"github.com/shopspring/decimal"
)

// MonthlyBudgetService handles monthly budget business logic and the
// server-side budget summary
type MonthlyBudgetService struct {
	budgetRepo      domain.MonthlyBudgetRepository
	transactionRepo domain.TransactionRepository
	engine          *BudgetEngine
	publisher       websocket.EventPublisher
}

// NewMonthlyBudgetService creates a new MonthlyBudgetService
func NewMonthlyBudgetService(budgetRepo domain.MonthlyBudgetRepository, transactionRepo domain.TransactionRepository, engine *BudgetEngine, publisher websocket.EventPublisher) *MonthlyBudgetService {
	if publisher == nil {
		publisher = &websocket.NoOpPublisher{}
	}
	return &MonthlyBudgetService{
		budgetRepo:      budgetRepo,
		transactionRepo: transactionRepo,
		engine:          engine,
		publisher:       publisher,
	}
}

// CreateMonthlyBudget creates the budget record of a month. A month can only
// be created once.
func (s *MonthlyBudgetService) CreateMonthlyBudget(ctx context.Context, monthYear string, amount decimal.Decimal, rolloverEnabled bool) (*domain.MonthlyBudget, error) {
	if _, _, err := util.ParseMonthKey(monthYear); err != nil {
		return nil, err
	}
	if err := domain.ValidateBudgetAmount(amount); err != nil {
		return nil, err
	}

	_, err := s.budgetRepo.GetByMonth(ctx, monthYear)
	if err == nil {
		return nil, domain.ErrMonthlyBudgetExists
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}

	budget, err := s.budgetRepo.Create(ctx, monthYear, amount, rolloverEnabled)
	if err != nil {
		return nil, err
	}

	s.publisher.Publish(websocket.MonthlyBudgetCreated(budget))
	return budget, nil
}

// GetMonthlyBudget retrieves the budget record of a month
func (s *MonthlyBudgetService) GetMonthlyBudget(ctx context.Context, monthYear string) (*domain.MonthlyBudget, error) {
	if _, _, err := util.ParseMonthKey(monthYear); err != nil {
		return nil, err
	}
	return s.budgetRepo.GetByMonth(ctx, monthYear)
}

// GetAllMonthlyBudgets returns every budget record, latest month first
func (s *MonthlyBudgetService) GetAllMonthlyBudgets(ctx context.Context) ([]*domain.MonthlyBudget, error) {
	return s.budgetRepo.GetAll(ctx)
}

// UpdateMonthlyBudget applies a partial update to a month's budget
func (s *MonthlyBudgetService) UpdateMonthlyBudget(ctx context.Context, monthYear string, update domain.MonthlyBudgetUpdate) (*domain.MonthlyBudget, error) {
	if _, _, err := util.ParseMonthKey(monthYear); err != nil {
		return nil, err
	}
	if update.BudgetAmount != nil {
		if err := domain.ValidateBudgetAmount(*update.BudgetAmount); err != nil {
			return nil, err
		}
	}

	budget, err := s.budgetRepo.Update(ctx, monthYear, update)
	if err != nil {
		return nil, err
	}

	s.publisher.Publish(websocket.MonthlyBudgetUpdated(budget))
	return budget, nil
}

// DeleteMonthlyBudget removes a month's budget. Months that still hold
// transactions cannot be deleted.
func (s *MonthlyBudgetService) DeleteMonthlyBudget(ctx context.Context, monthYear string) error {
	if _, err := s.GetMonthlyBudget(ctx, monthYear); err != nil {
		return err
	}

	start, end, err := util.MonthBounds(monthYear, s.engine.Location())
	if err != nil {
		return err
	}
	count, err := s.transactionRepo.CountInRange(ctx, start, end)
	if err != nil {
		return err
	}
	if count > 0 {
		return domain.ErrBudgetHasTransactions
	}

	if err := s.budgetRepo.Delete(ctx, monthYear); err != nil {
		return err
	}

	s.publisher.Publish(websocket.MonthlyBudgetDeleted(map[string]string{"month_year": monthYear}))
	return nil
}

// GetBudgetSummary computes the summary of an existing month, using the
// stored budget amount as the base
func (s *MonthlyBudgetService) GetBudgetSummary(ctx context.Context, monthYear string) (*domain.BudgetSummary, error) {
	budget, err := s.GetMonthlyBudget(ctx, monthYear)
	if err != nil {
		return nil, err
	}

	budgets, err := s.budgetRepo.GetAll(ctx)
	if err != nil {
		return nil, err
	}
	transactions, err := s.transactionRepo.List(ctx, domain.TransactionFilters{})
	if err != nil {
		return nil, err
	}

	return s.engine.Summarize(monthYear, transactions, budgets, budget.BudgetAmount)
}
