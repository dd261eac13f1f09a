package handler

import (
	"errors"
	"net/http"

	"github.com/kthezelais/budget-tracker/internal/domain"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"
)

// ProblemDetails represents an RFC 7807 Problem Details response
type ProblemDetails struct {
	Type     string            `json:"type"`
	Title    string            `json:"title"`
	Status   int               `json:"status"`
	Detail   string            `json:"detail,omitempty"`
	Instance string            `json:"instance,omitempty"`
	Errors   []ValidationError `json:"errors,omitempty"`
}

// ValidationError represents a single validation error
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

const errorTypeBase = "https://budget-tracker.app/errors/"

// Problem types
const (
	ErrorTypeValidation   = errorTypeBase + "validation"
	ErrorTypeNotFound     = errorTypeBase + "not-found"
	ErrorTypeUnauthorized = errorTypeBase + "unauthorized"
	ErrorTypeForbidden    = errorTypeBase + "forbidden"
	ErrorTypeConflict     = errorTypeBase + "conflict"
	ErrorTypeInternal     = errorTypeBase + "internal"
	ErrorTypeUnavailable  = errorTypeBase + "not-implemented"
)

// problem writes a problem details body for status. Titles are the
// standard status texts.
func problem(c echo.Context, status int, errorType, detail string, fieldErrors []ValidationError) error {
	return c.JSON(status, ProblemDetails{
		Type:     errorType,
		Title:    http.StatusText(status),
		Status:   status,
		Detail:   detail,
		Instance: c.Request().URL.Path,
		Errors:   fieldErrors,
	})
}

// NewValidationError responds 400 with optional per-field errors
func NewValidationError(c echo.Context, detail string, fieldErrors []ValidationError) error {
	return problem(c, http.StatusBadRequest, ErrorTypeValidation, detail, fieldErrors)
}

func NewNotFoundError(c echo.Context, detail string) error {
	return problem(c, http.StatusNotFound, ErrorTypeNotFound, detail, nil)
}

func NewUnauthorizedError(c echo.Context, detail string) error {
	return problem(c, http.StatusUnauthorized, ErrorTypeUnauthorized, detail, nil)
}

func NewForbiddenError(c echo.Context, detail string) error {
	return problem(c, http.StatusForbidden, ErrorTypeForbidden, detail, nil)
}

func NewConflictError(c echo.Context, detail string) error {
	return problem(c, http.StatusConflict, ErrorTypeConflict, detail, nil)
}

func NewInternalError(c echo.Context, detail string) error {
	return problem(c, http.StatusInternalServerError, ErrorTypeInternal, detail, nil)
}

// NewNotImplementedError reports a feature that is disabled in this deployment
func NewNotImplementedError(c echo.Context, detail string) error {
	return problem(c, http.StatusNotImplemented, ErrorTypeUnavailable, detail, nil)
}

// handleServiceError maps a service error onto its problem details response
func handleServiceError(c echo.Context, err error) error {
	switch {
	case domain.IsValidationError(err):
		var fieldErrors []ValidationError
		if field := validationField(err); field != "" {
			fieldErrors = []ValidationError{{Field: field, Message: err.Error()}}
		}
		return NewValidationError(c, err.Error(), fieldErrors)
	case errors.Is(err, domain.ErrNotFound):
		return NewNotFoundError(c, err.Error())
	case errors.Is(err, domain.ErrAlreadyExists):
		return NewConflictError(c, err.Error())
	case errors.Is(err, domain.ErrForbidden):
		return NewForbiddenError(c, err.Error())
	case errors.Is(err, domain.ErrUnauthorized):
		return NewUnauthorizedError(c, err.Error())
	default:
		log.Error().Err(err).Str("path", c.Request().URL.Path).Msg("Request failed")
		return NewInternalError(c, "An unexpected error occurred")
	}
}

// validationField names the request field a validation error refers to
func validationField(err error) string {
	switch {
	case errors.Is(err, domain.ErrNameRequired), errors.Is(err, domain.ErrNameTooLong):
		return "name"
	case errors.Is(err, domain.ErrInvalidAmount), errors.Is(err, domain.ErrAmountTooLarge), errors.Is(err, domain.ErrAmountPrecision):
		return "amount"
	case errors.Is(err, domain.ErrInvalidTransactionType):
		return "type"
	case errors.Is(err, domain.ErrDeviceIDRequired):
		return "device_id"
	case errors.Is(err, domain.ErrUsernameRequired):
		return "username"
	case errors.Is(err, domain.ErrInvalidMonthKey):
		return "month_year"
	case errors.Is(err, domain.ErrNegativeBudget):
		return "budget_amount"
	case errors.Is(err, domain.ErrInvalidPriceFormat):
		return "value"
	case errors.Is(err, domain.ErrInvalidTimezone):
		return "timezone"
	}
	return ""
}
