package remote

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/kthezelais/budget-tracker/internal/domain"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	return NewClient(Options{
		BaseURL:      server.URL + "/",
		APIKey:       "secret",
		DeviceID:     "device-1",
		MaxRetries:   1,
		RetryWaitMin: time.Millisecond,
		RetryWaitMax: 2 * time.Millisecond,
	})
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func TestFetchTransactions_SendsHeadersAndQuery(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/transactions", r.URL.Path)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		assert.Equal(t, "device-1", r.Header.Get("X-Device-ID"))
		assert.Equal(t, "Europe/Paris", r.URL.Query().Get("timezone"))
		assert.Equal(t, "2025-03", r.URL.Query().Get("month_year"))

		writeJSON(w, http.StatusOK, []map[string]interface{}{
			{
				"id":        7,
				"device_id": "device-1",
				"name":      "Coffee",
				"amount":    "4.50",
				"type":      "withdraw",
				"timestamp": "2025-03-02T08:30:00.123+01:00",
				"username":  "alex",
			},
		})
	})

	txs, err := client.FetchTransactions(context.Background(), "Europe/Paris", "2025-03")
	require.NoError(t, err)
	require.Len(t, txs, 1)
	assert.Equal(t, int32(7), txs[0].ID)
	assert.True(t, txs[0].Amount.Equal(decimal.RequireFromString("4.5")))
	assert.Equal(t, domain.TransactionTypeWithdraw, txs[0].Type)
	require.NotNil(t, txs[0].Username)
	assert.Equal(t, "alex", *txs[0].Username)
}

func TestFetchTransactions_OmitsEmptyMonth(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, ok := r.URL.Query()["month_year"]
		assert.False(t, ok)
		writeJSON(w, http.StatusOK, []interface{}{})
	})

	txs, err := client.FetchTransactions(context.Background(), "UTC", "")
	require.NoError(t, err)
	assert.Empty(t, txs)
}

func TestStatusMapping(t *testing.T) {
	tests := []struct {
		name   string
		status int
		want   error
	}{
		{"not found", http.StatusNotFound, domain.ErrNotFound},
		{"bad request", http.StatusBadRequest, domain.ErrInvalidInput},
		{"conflict", http.StatusConflict, domain.ErrAlreadyExists},
		{"unauthorized", http.StatusUnauthorized, domain.ErrRemoteUnavailable},
		{"forbidden", http.StatusForbidden, domain.ErrForbidden},
		{"server error", http.StatusInternalServerError, domain.ErrRemoteUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				writeJSON(w, tt.status, map[string]string{"title": "Nope", "detail": "details here"})
			})

			_, err := client.FetchMonthlyBudget(context.Background(), "2025-01")
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.want)

			var remoteErr *Error
			require.ErrorAs(t, err, &remoteErr)
			assert.Equal(t, tt.status, remoteErr.StatusCode)
			assert.Equal(t, "details here", remoteErr.Message)
		})
	}
}

func TestServerErrorsAreRetried(t *testing.T) {
	var calls int32
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		writeJSON(w, http.StatusOK, []interface{}{})
	})

	budgets, err := client.FetchMonthlyBudgets(context.Background())
	require.NoError(t, err)
	assert.Empty(t, budgets)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestUnreachableServer(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()

	client := NewClient(Options{BaseURL: url, MaxRetries: 1, RetryWaitMin: time.Millisecond, RetryWaitMax: time.Millisecond})
	_, err := client.FetchSettings(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrRemoteUnavailable)
}

func TestMalformedResponse(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("{not json"))
	})

	_, err := client.FetchSettings(context.Background())
	assert.ErrorIs(t, err, domain.ErrRemoteUnavailable)
}

func TestCreateTransaction_Body(t *testing.T) {
	ts := time.Date(2025, 4, 1, 12, 0, 0, 0, time.UTC)
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var body map[string]interface{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "Rent", body["name"])
		assert.Equal(t, "800.00", body["amount"])
		assert.Equal(t, "withdraw", body["type"])
		assert.Equal(t, "2025-04-01T12:00:00Z", body["timestamp"])

		writeJSON(w, http.StatusCreated, map[string]interface{}{
			"id": 12, "device_id": "device-1", "name": "Rent", "amount": "800.00",
			"type": "withdraw", "timestamp": "2025-04-01T12:00:00Z",
		})
	})

	tx, err := client.CreateTransaction(context.Background(), domain.TransactionInput{
		DeviceID:  "device-1",
		Name:      "Rent",
		Amount:    decimal.NewFromInt(800),
		Type:      domain.TransactionTypeWithdraw,
		Timestamp: ts,
	})
	require.NoError(t, err)
	assert.Equal(t, int32(12), tx.ID)
	assert.True(t, tx.Timestamp.Equal(ts))
}

func TestDeleteTransaction_NoContent(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodDelete, r.Method)
		assert.Equal(t, "/api/v1/transactions/5", r.URL.Path)
		w.WriteHeader(http.StatusNoContent)
	})

	require.NoError(t, client.DeleteTransaction(context.Background(), 5))
}

func TestUpdateMonthlyBudget_PartialBody(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPut, r.Method)
		assert.Equal(t, "/api/v1/monthly-budgets/2025-02", r.URL.Path)

		var body map[string]interface{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, false, body["rollover_enabled"])
		_, hasAmount := body["budget_amount"]
		assert.False(t, hasAmount)

		writeJSON(w, http.StatusOK, map[string]interface{}{
			"id": 1, "month_year": "2025-02", "budget_amount": "900.00", "rollover_enabled": false,
		})
	})

	off := false
	budget, err := client.UpdateMonthlyBudget(context.Background(), "2025-02", domain.MonthlyBudgetUpdate{RolloverEnabled: &off})
	require.NoError(t, err)
	assert.False(t, budget.RolloverEnabled)
	assert.True(t, budget.BudgetAmount.Equal(decimal.NewFromInt(900)))
}

func TestUpdateSetting_FallsBackToCreate(t *testing.T) {
	var methods []string
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		methods = append(methods, r.Method)
		if r.Method == http.MethodPut {
			writeJSON(w, http.StatusNotFound, map[string]string{"title": "Not Found"})
			return
		}
		writeJSON(w, http.StatusCreated, map[string]interface{}{"id": 3, "key": "default_budget_amount", "value": "1200"})
	})

	setting, err := client.UpdateSetting(context.Background(), domain.SettingDefaultBudgetAmount, "1200")
	require.NoError(t, err)
	assert.Equal(t, "1200", setting.Value)
	assert.Equal(t, []string{http.MethodPut, http.MethodPost}, methods)
}

func TestFetchBudgetSummary(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/budget-summary/2025-05", r.URL.Path)
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"month_year": "2025-05", "budget_amount": "1000.00", "total_transactions": "-1250.00",
			"remaining_budget": "-250.00", "is_over_budget": true, "rollover_enabled": true,
		})
	})

	summary, err := client.FetchBudgetSummary(context.Background(), "2025-05")
	require.NoError(t, err)
	assert.True(t, summary.IsOverBudget)
	assert.True(t, summary.RemainingBudget.Equal(decimal.NewFromInt(-250)))
}
