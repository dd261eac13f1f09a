package service

import (
	"context"
	"strings"
	"time"

	"github.com/kthezelais/budget-tracker/internal/domain"
	"github.com/kthezelais/budget-tracker/internal/util"
	"github.com/kthezelais/budget-tracker/internal/websocket"
)

// TransactionService handles transaction-related business logic
type TransactionService struct {
	transactionRepo domain.TransactionRepository
	publisher       websocket.EventPublisher
}

// NewTransactionService creates a new TransactionService
func NewTransactionService(transactionRepo domain.TransactionRepository, publisher websocket.EventPublisher) *TransactionService {
	if publisher == nil {
		publisher = &websocket.NoOpPublisher{}
	}
	return &TransactionService{
		transactionRepo: transactionRepo,
		publisher:       publisher,
	}
}

// CreateTransaction validates and stores a new transaction
func (s *TransactionService) CreateTransaction(ctx context.Context, input domain.TransactionInput) (*domain.Transaction, error) {
	if err := normalizeTransactionInput(&input); err != nil {
		return nil, err
	}

	transaction, err := s.transactionRepo.Create(ctx, input)
	if err != nil {
		return nil, err
	}

	s.publisher.Publish(websocket.TransactionCreated(transaction))
	return transaction, nil
}

// ListTransactions returns transactions newest first, optionally limited to
// one month as seen from loc. Timestamps are returned in loc.
func (s *TransactionService) ListTransactions(ctx context.Context, loc *time.Location, monthYear string) ([]*domain.Transaction, error) {
	if loc == nil {
		loc = time.UTC
	}

	var filters domain.TransactionFilters
	if monthYear != "" {
		start, end, err := util.MonthBounds(monthYear, loc)
		if err != nil {
			return nil, err
		}
		filters.Start = &start
		filters.End = &end
	}

	transactions, err := s.transactionRepo.List(ctx, filters)
	if err != nil {
		return nil, err
	}
	for _, t := range transactions {
		t.Timestamp = t.Timestamp.In(loc)
	}
	return transactions, nil
}

// GetTransaction retrieves a transaction by ID
func (s *TransactionService) GetTransaction(ctx context.Context, id int32) (*domain.Transaction, error) {
	return s.transactionRepo.GetByID(ctx, id)
}

// GetOldestTransaction returns the chronologically first transaction
func (s *TransactionService) GetOldestTransaction(ctx context.Context) (*domain.Transaction, error) {
	return s.transactionRepo.GetOldest(ctx)
}

// GetNextTransaction returns the transaction following id in time
func (s *TransactionService) GetNextTransaction(ctx context.Context, id int32) (*domain.Transaction, error) {
	current, err := s.transactionRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.transactionRepo.GetNext(ctx, current.Timestamp)
}

// GetPreviousTransaction returns the transaction preceding id in time
func (s *TransactionService) GetPreviousTransaction(ctx context.Context, id int32) (*domain.Transaction, error) {
	current, err := s.transactionRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.transactionRepo.GetPrevious(ctx, current.Timestamp)
}

// UpdateTransaction replaces the editable fields of a transaction
func (s *TransactionService) UpdateTransaction(ctx context.Context, id int32, input domain.TransactionInput) (*domain.Transaction, error) {
	if err := normalizeTransactionInput(&input); err != nil {
		return nil, err
	}

	transaction, err := s.transactionRepo.Update(ctx, id, input)
	if err != nil {
		return nil, err
	}

	s.publisher.Publish(websocket.TransactionUpdated(transaction))
	return transaction, nil
}

// DeleteTransaction removes a transaction
func (s *TransactionService) DeleteTransaction(ctx context.Context, id int32) error {
	if err := s.transactionRepo.Delete(ctx, id); err != nil {
		return err
	}

	s.publisher.Publish(websocket.TransactionDeleted(map[string]int32{"id": id}))
	return nil
}

func normalizeTransactionInput(input *domain.TransactionInput) error {
	input.DeviceID = strings.TrimSpace(input.DeviceID)
	if input.DeviceID == "" {
		return domain.ErrDeviceIDRequired
	}
	if err := input.Normalize(); err != nil {
		return err
	}
	// Default timestamp to now if not provided
	if input.Timestamp.IsZero() {
		input.Timestamp = time.Now()
	}
	return nil
}
