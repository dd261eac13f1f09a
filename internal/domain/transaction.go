package domain

import (
	"context"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type TransactionType string

const (
	TransactionTypeWithdraw TransactionType = "withdraw"
	TransactionTypeDeposit  TransactionType = "deposit"
)

// MaxTransactionAmount is the largest amount a single transaction may carry
var MaxTransactionAmount = decimal.RequireFromString("999999.99")

// Transaction is an immutable ledger entry. Edits replace the record by ID.
type Transaction struct {
	ID        int32           `json:"id"`
	DeviceID  string          `json:"device_id"`
	Name      string          `json:"name"`
	Amount    decimal.Decimal `json:"amount"`
	Type      TransactionType `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Username  *string         `json:"username,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// SignedAmount returns the amount as it contributes to monthly spend:
// withdrawals count positive, deposits negative.
func (t *Transaction) SignedAmount() decimal.Decimal {
	if t.Type == TransactionTypeDeposit {
		return t.Amount.Neg()
	}
	return t.Amount
}

// TransactionInput holds the user-editable fields of a transaction
type TransactionInput struct {
	DeviceID  string          `json:"device_id"`
	Name      string          `json:"name"`
	Amount    decimal.Decimal `json:"amount"`
	Type      TransactionType `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
}

// Normalize trims the name and validates every field
func (in *TransactionInput) Normalize() error {
	in.Name = strings.TrimSpace(in.Name)
	if in.Name == "" {
		return ErrNameRequired
	}
	if len(in.Name) > MaxTransactionNameLength {
		return ErrNameTooLong
	}
	if err := ValidateAmount(in.Amount); err != nil {
		return err
	}
	if in.Type != TransactionTypeWithdraw && in.Type != TransactionTypeDeposit {
		return ErrInvalidTransactionType
	}
	return nil
}

// ValidateAmount checks that a transaction amount is positive, bounded and
// carries at most two fractional digits
func ValidateAmount(amount decimal.Decimal) error {
	if amount.LessThanOrEqual(decimal.Zero) {
		return ErrInvalidAmount
	}
	if amount.GreaterThan(MaxTransactionAmount) {
		return ErrAmountTooLarge
	}
	if !amount.Equal(amount.Truncate(MaxAmountFractionDigits)) {
		return ErrAmountPrecision
	}
	return nil
}

type TransactionFilters struct {
	Start *time.Time
	End   *time.Time
}

type TransactionRepository interface {
	Create(ctx context.Context, input TransactionInput) (*Transaction, error)
	GetByID(ctx context.Context, id int32) (*Transaction, error)
	List(ctx context.Context, filters TransactionFilters) ([]*Transaction, error)
	GetOldest(ctx context.Context) (*Transaction, error)
	GetNext(ctx context.Context, after time.Time) (*Transaction, error)
	GetPrevious(ctx context.Context, before time.Time) (*Transaction, error)
	Update(ctx context.Context, id int32, input TransactionInput) (*Transaction, error)
	Delete(ctx context.Context, id int32) error
	CountInRange(ctx context.Context, start, end time.Time) (int64, error)
}
