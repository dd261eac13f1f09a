package domain

import (
	"errors"
	"fmt"
)

// Domain errors
var (
	ErrNotFound          = errors.New("resource not found")
	ErrAlreadyExists     = errors.New("resource already exists")
	ErrInvalidInput      = errors.New("invalid input")
	ErrUnauthorized      = errors.New("unauthorized")
	ErrForbidden         = errors.New("forbidden")
	ErrInternalError     = errors.New("internal error")
	ErrRemoteUnavailable = errors.New("remote service unavailable")
	ErrCacheUnavailable  = errors.New("offline cache unavailable")
	ErrNoChange          = errors.New("no change")
	ErrRolloverLocked    = errors.New("rollover cannot be changed on the earliest tracked month")
)

// Not-found errors for specific resources
var (
	ErrTransactionNotFound   = fmt.Errorf("transaction %w", ErrNotFound)
	ErrMonthlyBudgetNotFound = fmt.Errorf("monthly budget %w", ErrNotFound)
	ErrSettingNotFound       = fmt.Errorf("setting %w", ErrNotFound)
	ErrDeviceNotFound        = fmt.Errorf("device %w", ErrNotFound)
)

// Conflict errors
var (
	ErrMonthlyBudgetExists   = fmt.Errorf("monthly budget %w", ErrAlreadyExists)
	ErrUsernameTaken         = fmt.Errorf("username %w", ErrAlreadyExists)
	ErrBudgetHasTransactions = fmt.Errorf("%w: monthly budget still has transactions", ErrForbidden)
)

// Validation errors. All of them match ErrInvalidInput with errors.Is.
var (
	ErrNameRequired           = fmt.Errorf("%w: name is required", ErrInvalidInput)
	ErrNameTooLong            = fmt.Errorf("%w: name exceeds maximum length", ErrInvalidInput)
	ErrInvalidAmount          = fmt.Errorf("%w: amount must be positive", ErrInvalidInput)
	ErrAmountTooLarge         = fmt.Errorf("%w: amount exceeds 999999.99", ErrInvalidInput)
	ErrAmountPrecision        = fmt.Errorf("%w: amount has more than 2 decimal places", ErrInvalidInput)
	ErrInvalidTransactionType = fmt.Errorf("%w: type must be withdraw or deposit", ErrInvalidInput)
	ErrInvalidMonthKey        = fmt.Errorf("%w: month must use YYYY-MM format", ErrInvalidInput)
	ErrDuplicateMonthKey      = fmt.Errorf("%w: duplicate monthly budget for month", ErrInvalidInput)
	ErrRolloverCycle          = fmt.Errorf("%w: rollover chain revisits a month", ErrInvalidInput)
	ErrInvalidPriceFormat     = fmt.Errorf("%w: value must use price format", ErrInvalidInput)
	ErrInvalidTimezone        = fmt.Errorf("%w: unknown timezone", ErrInvalidInput)
	ErrDeviceIDRequired       = fmt.Errorf("%w: device id is required", ErrInvalidInput)
	ErrUsernameRequired       = fmt.Errorf("%w: username is required", ErrInvalidInput)
	ErrNegativeBudget         = fmt.Errorf("%w: budget amount cannot be negative", ErrInvalidInput)
)

// Validation constants
const (
	MaxTransactionNameLength = 255
	MaxAmountFractionDigits  = 2
)

// IsValidationError reports whether err is an input validation failure
func IsValidationError(err error) bool {
	return errors.Is(err, ErrInvalidInput)
}
