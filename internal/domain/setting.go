package domain

import (
	"context"
	"regexp"
	"time"

	"github.com/shopspring/decimal"
)

// Well-known setting keys
const (
	SettingDefaultBudgetAmount = "default_budget_amount"
	SettingAPIKey              = "api_key"
)

var priceFormat = regexp.MustCompile(`^\d*\.?\d{0,2}$`)

type Setting struct {
	ID        int32     `json:"id"`
	Key       string    `json:"key"`
	Value     string    `json:"value"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ValidateSetting checks value constraints of well-known keys
func ValidateSetting(key, value string) error {
	if key == "" {
		return ErrInvalidInput
	}
	if key == SettingDefaultBudgetAmount && (value == "" || !priceFormat.MatchString(value)) {
		return ErrInvalidPriceFormat
	}
	return nil
}

// DefaultBudgetFromSettings returns the default_budget_amount setting, or
// DefaultBudgetAmount when it is absent or unparsable
func DefaultBudgetFromSettings(settings []*Setting) decimal.Decimal {
	for _, s := range settings {
		if s.Key != SettingDefaultBudgetAmount {
			continue
		}
		if amount, err := decimal.NewFromString(s.Value); err == nil {
			return amount
		}
	}
	return DefaultBudgetAmount
}

type SettingRepository interface {
	GetAll(ctx context.Context) ([]*Setting, error)
	GetByKey(ctx context.Context, key string) (*Setting, error)
	Upsert(ctx context.Context, key, value string) (*Setting, error)
	Update(ctx context.Context, key, value string) (*Setting, error)
}
