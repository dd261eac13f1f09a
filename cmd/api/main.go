package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/kthezelais/budget-tracker/internal/backup"
	"github.com/kthezelais/budget-tracker/internal/config"
	"github.com/kthezelais/budget-tracker/internal/handler"
	"github.com/kthezelais/budget-tracker/internal/middleware"
	"github.com/kthezelais/budget-tracker/internal/repository/postgres"
	"github.com/kthezelais/budget-tracker/internal/service"
	"github.com/kthezelais/budget-tracker/internal/websocket"
	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// version is set at build time with -ldflags "-X main.version=..."
var version = "dev"

func main() {
	// Initialize zerolog
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	if os.Getenv("ENV") != "production" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	// Connect to database
	pool, err := pgxpool.New(context.Background(), cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer pool.Close()

	// Verify database connection
	if err := pool.Ping(context.Background()); err != nil {
		log.Fatal().Err(err).Msg("Failed to ping database")
	}
	log.Info().Msg("Connected to database")

	if err := postgres.RunMigrations(pool); err != nil {
		log.Fatal().Err(err).Msg("Failed to run migrations")
	}

	// Initialize repositories
	transactionRepo := postgres.NewTransactionRepository(pool)
	budgetRepo := postgres.NewMonthlyBudgetRepository(pool)
	settingRepo := postgres.NewSettingRepository(pool)
	deviceRepo := postgres.NewDeviceRepository(pool)

	// Change events go to every connected device
	hub := websocket.NewHub()

	// Initialize services
	engine := service.NewBudgetEngine(cfg.Location())
	transactionService := service.NewTransactionService(transactionRepo, hub)
	budgetService := service.NewMonthlyBudgetService(budgetRepo, transactionRepo, engine, hub)
	settingService := service.NewSettingService(settingRepo, hub)
	deviceService := service.NewDeviceService(deviceRepo, hub)

	apiKey, generated, err := settingService.EnsureAPIKey(context.Background(), cfg.APIKey)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize API key")
	}
	if generated {
		// Printed once so the key can be copied into client configs
		log.Warn().Str("api_key", apiKey).Msg("Generated a new API key")
	}

	// Ledger backups are optional
	var exporter handler.LedgerExporter
	if cfg.S3.Enabled() {
		s3Client, err := backup.NewS3Client(context.Background(), cfg.S3)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to create S3 client")
		}
		exporter = backup.NewExporter(s3Client, cfg.S3.Bucket, cfg.S3.Prefix, transactionRepo, budgetRepo, settingRepo)
		log.Info().Str("bucket", cfg.S3.Bucket).Msg("Ledger backups enabled")
	}

	handlers := handler.Handlers{
		Health:        handler.NewHealthHandler(pool, version),
		Transaction:   handler.NewTransactionHandler(transactionService),
		MonthlyBudget: handler.NewMonthlyBudgetHandler(budgetService),
		Setting:       handler.NewSettingHandler(settingService),
		Device:        handler.NewDeviceHandler(deviceService),
		Backup:        handler.NewBackupHandler(exporter),
		WebSocket:     handler.NewWebSocketHandler(hub, cfg.CORSOrigins),
	}

	authMiddleware := middleware.NewAPIKeyAuthMiddleware(settingService)
	rateLimiter := middleware.NewRateLimiterWithConfig(cfg.RateLimitPerMinute, cfg.RateLimitBurst)
	defer rateLimiter.Stop()

	// Create Echo instance
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Request ID middleware
	e.Use(echomiddleware.RequestID())

	// CORS middleware
	e.Use(echomiddleware.CORSWithConfig(echomiddleware.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization, middleware.DeviceIDHeader},
		MaxAge:       86400,
	}))

	// Security headers middleware (helmet-like)
	e.Use(echomiddleware.SecureWithConfig(echomiddleware.SecureConfig{
		XSSProtection:      "1; mode=block",
		ContentTypeNosniff: "nosniff",
		XFrameOptions:      "DENY",
		HSTSMaxAge:         31536000,
		ReferrerPolicy:     "strict-origin-when-cross-origin",
	}))

	// Request logging middleware with zerolog
	e.Use(zerologMiddleware())

	// Recovery middleware
	e.Use(echomiddleware.Recover())

	handler.RegisterRoutes(e, authMiddleware, rateLimiter, handlers)

	// Start server in goroutine
	go func() {
		log.Info().Str("port", cfg.Port).Str("timezone", cfg.Timezone).Msg("Starting server")
		if err := e.Start(":" + cfg.Port); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Server failed")
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := e.Shutdown(ctx); err != nil {
		log.Fatal().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server exited")
}

// zerologMiddleware returns a middleware that logs requests using zerolog
func zerologMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()

			err := next(c)
			if err != nil {
				c.Error(err)
			}

			req := c.Request()
			res := c.Response()

			event := log.Info()
			if res.Status >= http.StatusInternalServerError {
				event = log.Error()
			}
			event.
				Str("method", req.Method).
				Str("path", req.URL.Path).
				Int("status", res.Status).
				Dur("latency", time.Since(start)).
				Str("request_id", res.Header().Get(echo.HeaderXRequestID)).
				Str("device_id", req.Header.Get(middleware.DeviceIDHeader)).
				Msg("request")

			return nil
		}
	}
}
