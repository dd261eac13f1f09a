package handler

import (
	"net/http"
	"time"

	"github.com/kthezelais/budget-tracker/internal/domain"
	"github.com/kthezelais/budget-tracker/internal/service"
	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"
)

// MonthlyBudgetHandler handles monthly budget and budget summary requests
type MonthlyBudgetHandler struct {
	budgetService *service.MonthlyBudgetService
}

// NewMonthlyBudgetHandler creates a new MonthlyBudgetHandler
func NewMonthlyBudgetHandler(budgetService *service.MonthlyBudgetService) *MonthlyBudgetHandler {
	return &MonthlyBudgetHandler{budgetService: budgetService}
}

// CreateMonthlyBudgetRequest represents the create monthly budget request body
type CreateMonthlyBudgetRequest struct {
	MonthYear       string          `json:"month_year"`
	BudgetAmount    decimal.Decimal `json:"budget_amount"`
	RolloverEnabled *bool           `json:"rollover_enabled,omitempty"`
}

// UpdateMonthlyBudgetRequest represents a partial monthly budget update
type UpdateMonthlyBudgetRequest struct {
	BudgetAmount    *decimal.Decimal `json:"budget_amount,omitempty"`
	RolloverEnabled *bool            `json:"rollover_enabled,omitempty"`
}

// MonthlyBudgetResponse represents a monthly budget in API responses
type MonthlyBudgetResponse struct {
	ID              int32  `json:"id"`
	MonthYear       string `json:"month_year"`
	BudgetAmount    string `json:"budget_amount"`
	RolloverEnabled bool   `json:"rollover_enabled"`
	CreatedAt       string `json:"created_at"`
	UpdatedAt       string `json:"updated_at"`
}

// BudgetSummaryResponse represents a budget summary in API responses
type BudgetSummaryResponse struct {
	MonthYear         string `json:"month_year"`
	BudgetAmount      string `json:"budget_amount"`
	TotalTransactions string `json:"total_transactions"`
	RemainingBudget   string `json:"remaining_budget"`
	IsOverBudget      bool   `json:"is_over_budget"`
	RolloverEnabled   bool   `json:"rollover_enabled"`
}

// CreateMonthlyBudget handles POST /monthly-budgets
func (h *MonthlyBudgetHandler) CreateMonthlyBudget(c echo.Context) error {
	var req CreateMonthlyBudgetRequest
	if err := c.Bind(&req); err != nil {
		return NewValidationError(c, "Invalid request body", nil)
	}

	rollover := true
	if req.RolloverEnabled != nil {
		rollover = *req.RolloverEnabled
	}

	budget, err := h.budgetService.CreateMonthlyBudget(c.Request().Context(), req.MonthYear, req.BudgetAmount, rollover)
	if err != nil {
		return handleServiceError(c, err)
	}
	return c.JSON(http.StatusCreated, toMonthlyBudgetResponse(budget))
}

// GetMonthlyBudgets handles GET /monthly-budgets
func (h *MonthlyBudgetHandler) GetMonthlyBudgets(c echo.Context) error {
	budgets, err := h.budgetService.GetAllMonthlyBudgets(c.Request().Context())
	if err != nil {
		return handleServiceError(c, err)
	}

	response := make([]MonthlyBudgetResponse, len(budgets))
	for i, b := range budgets {
		response[i] = toMonthlyBudgetResponse(b)
	}
	return c.JSON(http.StatusOK, response)
}

// GetMonthlyBudget handles GET /monthly-budgets/:month
func (h *MonthlyBudgetHandler) GetMonthlyBudget(c echo.Context) error {
	budget, err := h.budgetService.GetMonthlyBudget(c.Request().Context(), c.Param("month"))
	if err != nil {
		return handleServiceError(c, err)
	}
	return c.JSON(http.StatusOK, toMonthlyBudgetResponse(budget))
}

// UpdateMonthlyBudget handles PUT /monthly-budgets/:month
func (h *MonthlyBudgetHandler) UpdateMonthlyBudget(c echo.Context) error {
	var req UpdateMonthlyBudgetRequest
	if err := c.Bind(&req); err != nil {
		return NewValidationError(c, "Invalid request body", nil)
	}

	budget, err := h.budgetService.UpdateMonthlyBudget(c.Request().Context(), c.Param("month"), domain.MonthlyBudgetUpdate{
		BudgetAmount:    req.BudgetAmount,
		RolloverEnabled: req.RolloverEnabled,
	})
	if err != nil {
		return handleServiceError(c, err)
	}
	return c.JSON(http.StatusOK, toMonthlyBudgetResponse(budget))
}

// DeleteMonthlyBudget handles DELETE /monthly-budgets/:month
func (h *MonthlyBudgetHandler) DeleteMonthlyBudget(c echo.Context) error {
	if err := h.budgetService.DeleteMonthlyBudget(c.Request().Context(), c.Param("month")); err != nil {
		return handleServiceError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// GetBudgetSummary handles GET /budget-summary/:month
func (h *MonthlyBudgetHandler) GetBudgetSummary(c echo.Context) error {
	summary, err := h.budgetService.GetBudgetSummary(c.Request().Context(), c.Param("month"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(http.StatusOK, BudgetSummaryResponse{
		MonthYear:         summary.MonthYear,
		BudgetAmount:      summary.BudgetAmount.StringFixed(2),
		TotalTransactions: summary.TotalTransactions.StringFixed(2),
		RemainingBudget:   summary.RemainingBudget.StringFixed(2),
		IsOverBudget:      summary.IsOverBudget,
		RolloverEnabled:   summary.RolloverEnabled,
	})
}

func toMonthlyBudgetResponse(b *domain.MonthlyBudget) MonthlyBudgetResponse {
	return MonthlyBudgetResponse{
		ID:              b.ID,
		MonthYear:       b.MonthYear,
		BudgetAmount:    b.BudgetAmount.StringFixed(2),
		RolloverEnabled: b.RolloverEnabled,
		CreatedAt:       b.CreatedAt.Format(time.RFC3339),
		UpdatedAt:       b.UpdatedAt.Format(time.RFC3339),
	}
}
