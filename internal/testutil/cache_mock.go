package testutil

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/kthezelais/budget-tracker/internal/cache"
	"github.com/kthezelais/budget-tracker/internal/domain"
)

// MockCache is an in-memory offline cache. Records go through JSON like the
// real store.
type MockCache struct {
	mu          sync.Mutex
	Collections map[string][]byte
	SyncedAt    time.Time
	Month       string
	// LoadErr and SaveErr fail every read or write
	LoadErr error
	SaveErr error
}

// NewMockCache creates a new MockCache
func NewMockCache() *MockCache {
	return &MockCache{Collections: make(map[string][]byte)}
}

// Corrupt stores an undecodable payload under collection
func (m *MockCache) Corrupt(collection string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Collections[collection] = []byte("{corrupt")
}

func (m *MockCache) Load(ctx context.Context, collection string, dst interface{}) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.LoadErr != nil {
		return m.LoadErr
	}

	payload, ok := m.Collections[collection]
	if !ok {
		return cache.ErrMiss
	}
	if err := json.Unmarshal(payload, dst); err != nil {
		return domain.ErrCacheUnavailable
	}
	return nil
}

func (m *MockCache) Save(ctx context.Context, collection string, records interface{}) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.SaveErr != nil {
		return m.SaveErr
	}

	payload, err := json.Marshal(records)
	if err != nil {
		return err
	}
	m.Collections[collection] = payload
	return nil
}

func (m *MockCache) LastSyncTime(ctx context.Context) (time.Time, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.SyncedAt.IsZero() {
		return time.Time{}, cache.ErrMiss
	}
	return m.SyncedAt, nil
}

func (m *MockCache) SetLastSyncTime(ctx context.Context, t time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.SaveErr != nil {
		return m.SaveErr
	}
	m.SyncedAt = t
	return nil
}

func (m *MockCache) CurrentMonth(ctx context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Month == "" {
		return "", cache.ErrMiss
	}
	return m.Month, nil
}

func (m *MockCache) SetCurrentMonth(ctx context.Context, month string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.SaveErr != nil {
		return m.SaveErr
	}
	m.Month = month
	return nil
}

// Transactions decodes the cached transactions
func (m *MockCache) Transactions() []*domain.Transaction {
	var txs []*domain.Transaction
	_ = m.Load(context.Background(), cache.Transactions, &txs)
	return txs
}

// Budgets decodes the cached monthly budgets
func (m *MockCache) Budgets() []*domain.MonthlyBudget {
	var budgets []*domain.MonthlyBudget
	_ = m.Load(context.Background(), cache.MonthlyBudgets, &budgets)
	return budgets
}
