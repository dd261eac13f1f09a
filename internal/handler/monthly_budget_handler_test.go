package handler

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/kthezelais/budget-tracker/internal/domain"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRecorder() *httptest.ResponseRecorder {
	return httptest.NewRecorder()
}

func TestMonthlyBudgetHandler_Lifecycle(t *testing.T) {
	ts := newTestServer(t, nil)

	rec := ts.do(http.MethodPost, "/api/v1/monthly-budgets", `{"month_year":"2025-09","budget_amount":"1000"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var budget MonthlyBudgetResponse
	decodeBody(t, rec, &budget)
	assert.Equal(t, "1000.00", budget.BudgetAmount)
	assert.True(t, budget.RolloverEnabled, "rollover defaults to enabled")

	rec = ts.do(http.MethodPost, "/api/v1/monthly-budgets", `{"month_year":"2025-09","budget_amount":"1000"}`)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = ts.do(http.MethodPut, "/api/v1/monthly-budgets/2025-09", `{"rollover_enabled":false}`)
	require.Equal(t, http.StatusOK, rec.Code)
	decodeBody(t, rec, &budget)
	assert.False(t, budget.RolloverEnabled)
	assert.Equal(t, "1000.00", budget.BudgetAmount)

	rec = ts.do(http.MethodGet, "/api/v1/monthly-budgets/2025-10", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = ts.do(http.MethodGet, "/api/v1/monthly-budgets/september", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.do(http.MethodPost, "/api/v1/monthly-budgets", `{"month_year":"2025-10","budget_amount":"900","rollover_enabled":true}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = ts.do(http.MethodGet, "/api/v1/monthly-budgets", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var list []MonthlyBudgetResponse
	decodeBody(t, rec, &list)
	require.Len(t, list, 2)
	assert.Equal(t, "2025-10", list[0].MonthYear)

	rec = ts.do(http.MethodDelete, "/api/v1/monthly-budgets/2025-10", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestMonthlyBudgetHandler_DeleteForbiddenWithTransactions(t *testing.T) {
	ts := newTestServer(t, nil)
	ts.budgets.AddBudget(&domain.MonthlyBudget{MonthYear: "2025-09", BudgetAmount: decimal.NewFromInt(1000), RolloverEnabled: true})
	ts.transactions.AddTransaction(&domain.Transaction{Name: "rent", Amount: decimal.NewFromInt(500), Type: domain.TransactionTypeWithdraw, Timestamp: time.Date(2025, 9, 2, 0, 0, 0, 0, time.UTC)})

	rec := ts.do(http.MethodDelete, "/api/v1/monthly-budgets/2025-09", "")
	require.Equal(t, http.StatusForbidden, rec.Code)
	var problem ProblemDetails
	decodeBody(t, rec, &problem)
	assert.Equal(t, ErrorTypeForbidden, problem.Type)
}

func TestMonthlyBudgetHandler_Summary(t *testing.T) {
	ts := newTestServer(t, nil)

	rec := ts.do(http.MethodGet, "/api/v1/budget-summary/2025-09", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	ts.budgets.AddBudget(&domain.MonthlyBudget{MonthYear: "2025-09", BudgetAmount: decimal.NewFromInt(1000), RolloverEnabled: true})
	ts.transactions.AddTransaction(&domain.Transaction{Name: "a", Amount: decimal.NewFromInt(1050), Type: domain.TransactionTypeWithdraw, Timestamp: time.Date(2025, 9, 2, 0, 0, 0, 0, time.UTC)})
	ts.transactions.AddTransaction(&domain.Transaction{Name: "b", Amount: decimal.NewFromInt(20), Type: domain.TransactionTypeDeposit, Timestamp: time.Date(2025, 9, 3, 0, 0, 0, 0, time.UTC)})

	rec = ts.do(http.MethodGet, "/api/v1/budget-summary/2025-09", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var summary BudgetSummaryResponse
	decodeBody(t, rec, &summary)
	assert.Equal(t, "1000.00", summary.BudgetAmount)
	assert.Equal(t, "1030.00", summary.TotalTransactions)
	assert.Equal(t, "-30.00", summary.RemainingBudget)
	assert.True(t, summary.IsOverBudget)
}
