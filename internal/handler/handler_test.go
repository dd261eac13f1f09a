package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/kthezelais/budget-tracker/internal/backup"
	"github.com/kthezelais/budget-tracker/internal/domain"
	"github.com/kthezelais/budget-tracker/internal/middleware"
	"github.com/kthezelais/budget-tracker/internal/service"
	"github.com/kthezelais/budget-tracker/internal/testutil"
	"github.com/kthezelais/budget-tracker/internal/websocket"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/require"
)

const testAPIKey = "test-key"

type testServer struct {
	e            *echo.Echo
	hub          *websocket.Hub
	transactions *testutil.MockTransactionRepository
	budgets      *testutil.MockMonthlyBudgetRepository
	settings     *testutil.MockSettingRepository
	devices      *testutil.MockDeviceRepository
}

type stubExporter struct {
	result *backup.Result
	err    error
}

func (s *stubExporter) Export(ctx context.Context) (*backup.Result, error) {
	return s.result, s.err
}

func newTestServer(t *testing.T, exporter LedgerExporter) *testServer {
	t.Helper()

	ts := &testServer{
		e:            echo.New(),
		hub:          websocket.NewHub(),
		transactions: testutil.NewMockTransactionRepository(),
		budgets:      testutil.NewMockMonthlyBudgetRepository(),
		settings:     testutil.NewMockSettingRepository(),
		devices:      testutil.NewMockDeviceRepository(),
	}
	_, err := ts.settings.Upsert(context.Background(), domain.SettingAPIKey, testAPIKey)
	require.NoError(t, err)

	engine := service.NewBudgetEngine(time.UTC)
	settingService := service.NewSettingService(ts.settings, ts.hub)

	RegisterRoutes(ts.e, middleware.NewAPIKeyAuthMiddleware(settingService), nil, Handlers{
		Health:        NewHealthHandler(nil, "test"),
		Transaction:   NewTransactionHandler(service.NewTransactionService(ts.transactions, ts.hub)),
		MonthlyBudget: NewMonthlyBudgetHandler(service.NewMonthlyBudgetService(ts.budgets, ts.transactions, engine, ts.hub)),
		Setting:       NewSettingHandler(settingService),
		Device:        NewDeviceHandler(service.NewDeviceService(ts.devices, ts.hub)),
		Backup:        NewBackupHandler(exporter),
		WebSocket:     NewWebSocketHandler(ts.hub, []string{"*"}),
	})
	return ts
}

func (ts *testServer) do(method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	req.Header.Set("Authorization", "Bearer "+testAPIKey)
	req.Header.Set(middleware.DeviceIDHeader, "phone-1")

	rec := httptest.NewRecorder()
	ts.e.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, dst interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), dst), rec.Body.String())
}
