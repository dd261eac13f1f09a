package handler

import (
	"github.com/kthezelais/budget-tracker/internal/middleware"
	"github.com/labstack/echo/v4"
)

// Handlers groups every HTTP handler of the accounting service
type Handlers struct {
	Health        *HealthHandler
	Transaction   *TransactionHandler
	MonthlyBudget *MonthlyBudgetHandler
	Setting       *SettingHandler
	Device        *DeviceHandler
	Backup        *BackupHandler
	WebSocket     *WebSocketHandler
}

// RegisterRoutes sets up all API routes
func RegisterRoutes(e *echo.Echo, authMiddleware *middleware.APIKeyAuthMiddleware, rateLimiter *middleware.RateLimiter, h Handlers) {
	e.GET("/", h.Health.Root)
	e.GET("/health", h.Health.Health)

	// API version 1 (protected)
	api := e.Group("/api/v1")
	api.Use(authMiddleware.Authenticate())
	if rateLimiter != nil {
		api.Use(middleware.RateLimitMiddleware(rateLimiter))
	}

	// Transaction routes
	transactions := api.Group("/transactions")
	transactions.POST("", h.Transaction.CreateTransaction)
	transactions.GET("", h.Transaction.GetTransactions)
	transactions.GET("/oldest", h.Transaction.GetOldestTransaction)
	transactions.GET("/:id", h.Transaction.GetTransaction)
	transactions.GET("/:id/next", h.Transaction.GetNextTransaction)
	transactions.GET("/:id/previous", h.Transaction.GetPreviousTransaction)
	transactions.PUT("/:id", h.Transaction.UpdateTransaction)
	transactions.DELETE("/:id", h.Transaction.DeleteTransaction)

	// Device routes
	devices := api.Group("/devices")
	devices.POST("", h.Device.RegisterDevice)
	devices.GET("/:deviceId", h.Device.GetDevice)
	devices.PUT("/:deviceId", h.Device.UpdateDevice)

	// Monthly budget routes
	budgets := api.Group("/monthly-budgets")
	budgets.POST("", h.MonthlyBudget.CreateMonthlyBudget)
	budgets.GET("", h.MonthlyBudget.GetMonthlyBudgets)
	budgets.GET("/:month", h.MonthlyBudget.GetMonthlyBudget)
	budgets.PUT("/:month", h.MonthlyBudget.UpdateMonthlyBudget)
	budgets.DELETE("/:month", h.MonthlyBudget.DeleteMonthlyBudget)

	api.GET("/budget-summary/:month", h.MonthlyBudget.GetBudgetSummary)

	// Settings routes
	settings := api.Group("/settings")
	settings.GET("", h.Setting.GetSettings)
	settings.POST("", h.Setting.UpsertSetting)
	settings.PUT("", h.Setting.UpdateSetting)

	api.POST("/backups", h.Backup.CreateBackup)
	api.GET("/ws", h.WebSocket.HandleWS)
}
