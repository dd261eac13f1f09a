package handler

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/kthezelais/budget-tracker/internal/domain"
	"github.com/kthezelais/budget-tracker/internal/middleware"
	"github.com/kthezelais/budget-tracker/internal/service"
	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"
)

// TransactionHandler handles transaction-related HTTP requests
type TransactionHandler struct {
	transactionService *service.TransactionService
}

// NewTransactionHandler creates a new TransactionHandler
func NewTransactionHandler(transactionService *service.TransactionService) *TransactionHandler {
	return &TransactionHandler{transactionService: transactionService}
}

// TransactionRequest is the body of create and update requests
type TransactionRequest struct {
	DeviceID  string          `json:"device_id"`
	Name      string          `json:"name"`
	Amount    decimal.Decimal `json:"amount"`
	Type      string          `json:"type"`
	Timestamp *time.Time      `json:"timestamp,omitempty"`
}

// TransactionResponse represents a transaction in API responses
type TransactionResponse struct {
	ID        int32   `json:"id"`
	DeviceID  string  `json:"device_id"`
	Name      string  `json:"name"`
	Amount    string  `json:"amount"`
	Type      string  `json:"type"`
	Timestamp string  `json:"timestamp"`
	Username  *string `json:"username"`
	CreatedAt string  `json:"created_at"`
	UpdatedAt string  `json:"updated_at"`
}

// CreateTransaction handles POST /transactions
func (h *TransactionHandler) CreateTransaction(c echo.Context) error {
	input, ok := bindTransactionInput(c)
	if !ok {
		return NewValidationError(c, "Invalid request body", nil)
	}

	transaction, err := h.transactionService.CreateTransaction(c.Request().Context(), input)
	if err != nil {
		return handleServiceError(c, err)
	}
	return c.JSON(http.StatusCreated, toTransactionResponse(transaction))
}

// GetTransactions handles GET /transactions?timezone=&month_year=
func (h *TransactionHandler) GetTransactions(c echo.Context) error {
	loc := time.UTC
	if tz := c.QueryParam("timezone"); tz != "" {
		parsed, err := time.LoadLocation(tz)
		if err != nil {
			return handleServiceError(c, domain.ErrInvalidTimezone)
		}
		loc = parsed
	}

	transactions, err := h.transactionService.ListTransactions(c.Request().Context(), loc, c.QueryParam("month_year"))
	if err != nil {
		return handleServiceError(c, err)
	}

	response := make([]TransactionResponse, len(transactions))
	for i, t := range transactions {
		response[i] = toTransactionResponse(t)
	}
	return c.JSON(http.StatusOK, response)
}

// GetOldestTransaction handles GET /transactions/oldest
func (h *TransactionHandler) GetOldestTransaction(c echo.Context) error {
	transaction, err := h.transactionService.GetOldestTransaction(c.Request().Context())
	if err != nil {
		return handleServiceError(c, err)
	}
	return c.JSON(http.StatusOK, toTransactionResponse(transaction))
}

// GetTransaction handles GET /transactions/:id
func (h *TransactionHandler) GetTransaction(c echo.Context) error {
	return h.lookup(c, h.transactionService.GetTransaction)
}

// GetNextTransaction handles GET /transactions/:id/next
func (h *TransactionHandler) GetNextTransaction(c echo.Context) error {
	return h.lookup(c, h.transactionService.GetNextTransaction)
}

// GetPreviousTransaction handles GET /transactions/:id/previous
func (h *TransactionHandler) GetPreviousTransaction(c echo.Context) error {
	return h.lookup(c, h.transactionService.GetPreviousTransaction)
}

// UpdateTransaction handles PUT /transactions/:id
func (h *TransactionHandler) UpdateTransaction(c echo.Context) error {
	id, ok := parseTransactionID(c)
	if !ok {
		return invalidTransactionIDError(c)
	}
	input, ok := bindTransactionInput(c)
	if !ok {
		return NewValidationError(c, "Invalid request body", nil)
	}

	transaction, err := h.transactionService.UpdateTransaction(c.Request().Context(), id, input)
	if err != nil {
		return handleServiceError(c, err)
	}
	return c.JSON(http.StatusOK, toTransactionResponse(transaction))
}

// DeleteTransaction handles DELETE /transactions/:id
func (h *TransactionHandler) DeleteTransaction(c echo.Context) error {
	id, ok := parseTransactionID(c)
	if !ok {
		return invalidTransactionIDError(c)
	}

	if err := h.transactionService.DeleteTransaction(c.Request().Context(), id); err != nil {
		return handleServiceError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *TransactionHandler) lookup(c echo.Context, get func(ctx context.Context, id int32) (*domain.Transaction, error)) error {
	id, ok := parseTransactionID(c)
	if !ok {
		return invalidTransactionIDError(c)
	}

	transaction, err := get(c.Request().Context(), id)
	if err != nil {
		return handleServiceError(c, err)
	}
	return c.JSON(http.StatusOK, toTransactionResponse(transaction))
}

func bindTransactionInput(c echo.Context) (domain.TransactionInput, bool) {
	var req TransactionRequest
	if err := c.Bind(&req); err != nil {
		return domain.TransactionInput{}, false
	}

	input := domain.TransactionInput{
		DeviceID: req.DeviceID,
		Name:     req.Name,
		Amount:   req.Amount,
		Type:     domain.TransactionType(req.Type),
	}
	// Fall back to the device that authenticated the request
	if input.DeviceID == "" {
		input.DeviceID = middleware.GetDeviceID(c)
	}
	if req.Timestamp != nil {
		input.Timestamp = *req.Timestamp
	}
	return input, true
}

func parseTransactionID(c echo.Context) (int32, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 32)
	if err != nil || id <= 0 {
		return 0, false
	}
	return int32(id), true
}

func invalidTransactionIDError(c echo.Context) error {
	return NewValidationError(c, "Invalid transaction ID", []ValidationError{
		{Field: "id", Message: "Must be a positive integer"},
	})
}

func toTransactionResponse(t *domain.Transaction) TransactionResponse {
	return TransactionResponse{
		ID:        t.ID,
		DeviceID:  t.DeviceID,
		Name:      t.Name,
		Amount:    t.Amount.StringFixed(2),
		Type:      string(t.Type),
		Timestamp: t.Timestamp.Format(time.RFC3339Nano),
		Username:  t.Username,
		CreatedAt: t.CreatedAt.Format(time.RFC3339),
		UpdatedAt: t.UpdatedAt.Format(time.RFC3339),
	}
}
