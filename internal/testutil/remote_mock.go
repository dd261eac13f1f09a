package testutil

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/kthezelais/budget-tracker/internal/domain"
	"github.com/kthezelais/budget-tracker/internal/websocket"
	"github.com/shopspring/decimal"
)

// MockRemote is an in-memory accounting service for client-side tests
type MockRemote struct {
	mu           sync.Mutex
	Transactions map[int32]*domain.Transaction
	Budgets      map[string]*domain.MonthlyBudget
	Settings     map[string]*domain.Setting
	Devices      map[string]*domain.Device
	NextID       int32
	// Err fails every call, as if the service were down
	Err error
	// FailOn fails individual calls by method name
	FailOn map[string]error
	Events chan websocket.Event
	calls  []string
}

// NewMockRemote creates a new MockRemote
func NewMockRemote() *MockRemote {
	return &MockRemote{
		Transactions: make(map[int32]*domain.Transaction),
		Budgets:      make(map[string]*domain.MonthlyBudget),
		Settings:     make(map[string]*domain.Setting),
		Devices:      make(map[string]*domain.Device),
		NextID:       1,
		FailOn:       make(map[string]error),
	}
}

// AddTransaction seeds a transaction and returns it
func (m *MockRemote) AddTransaction(name string, amount decimal.Decimal, txType domain.TransactionType, ts time.Time) *domain.Transaction {
	m.mu.Lock()
	defer m.mu.Unlock()

	t := &domain.Transaction{ID: m.NextID, DeviceID: "device-1", Name: name, Amount: amount, Type: txType, Timestamp: ts}
	m.NextID++
	m.Transactions[t.ID] = t
	return t
}

// AddBudget seeds a monthly budget
func (m *MockRemote) AddBudget(month string, amount decimal.Decimal, rolloverEnabled bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Budgets[month] = &domain.MonthlyBudget{ID: int32(len(m.Budgets) + 1), MonthYear: month, BudgetAmount: amount, RolloverEnabled: rolloverEnabled}
}

// SetOffline toggles a simulated outage
func (m *MockRemote) SetOffline(offline bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if offline {
		m.Err = domain.ErrRemoteUnavailable
	} else {
		m.Err = nil
	}
}

// Calls returns the method names invoked so far
func (m *MockRemote) Calls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.calls...)
}

// Called counts invocations of method
func (m *MockRemote) Called(method string) int {
	n := 0
	for _, c := range m.Calls() {
		if c == method {
			n++
		}
	}
	return n
}

func (m *MockRemote) call(method string) error {
	m.calls = append(m.calls, method)
	if m.Err != nil {
		return m.Err
	}
	if err, ok := m.FailOn[method]; ok {
		return err
	}
	return nil
}

func (m *MockRemote) FetchTransactions(ctx context.Context, timezone, month string) ([]*domain.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.call("FetchTransactions"); err != nil {
		return nil, err
	}

	result := make([]*domain.Transaction, 0, len(m.Transactions))
	for _, t := range m.Transactions {
		cp := *t
		result = append(result, &cp)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Timestamp.After(result[j].Timestamp) })
	return result, nil
}

func (m *MockRemote) FetchOldestTransaction(ctx context.Context) (*domain.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.call("FetchOldestTransaction"); err != nil {
		return nil, err
	}

	var oldest *domain.Transaction
	for _, t := range m.Transactions {
		if oldest == nil || t.Timestamp.Before(oldest.Timestamp) {
			oldest = t
		}
	}
	if oldest == nil {
		return nil, domain.ErrTransactionNotFound
	}
	cp := *oldest
	return &cp, nil
}

func (m *MockRemote) FetchMonthlyBudgets(ctx context.Context) ([]*domain.MonthlyBudget, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.call("FetchMonthlyBudgets"); err != nil {
		return nil, err
	}

	result := make([]*domain.MonthlyBudget, 0, len(m.Budgets))
	for _, b := range m.Budgets {
		cp := *b
		result = append(result, &cp)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].MonthYear > result[j].MonthYear })
	return result, nil
}

func (m *MockRemote) FetchMonthlyBudget(ctx context.Context, month string) (*domain.MonthlyBudget, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.call("FetchMonthlyBudget"); err != nil {
		return nil, err
	}

	b, ok := m.Budgets[month]
	if !ok {
		return nil, domain.ErrMonthlyBudgetNotFound
	}
	cp := *b
	return &cp, nil
}

func (m *MockRemote) CreateMonthlyBudget(ctx context.Context, month string, amount decimal.Decimal, rolloverEnabled bool) (*domain.MonthlyBudget, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.call("CreateMonthlyBudget"); err != nil {
		return nil, err
	}

	if _, ok := m.Budgets[month]; ok {
		return nil, domain.ErrMonthlyBudgetExists
	}
	b := &domain.MonthlyBudget{ID: int32(len(m.Budgets) + 1), MonthYear: month, BudgetAmount: amount, RolloverEnabled: rolloverEnabled}
	m.Budgets[month] = b
	cp := *b
	return &cp, nil
}

func (m *MockRemote) UpdateMonthlyBudget(ctx context.Context, month string, update domain.MonthlyBudgetUpdate) (*domain.MonthlyBudget, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.call("UpdateMonthlyBudget"); err != nil {
		return nil, err
	}

	b, ok := m.Budgets[month]
	if !ok {
		return nil, domain.ErrMonthlyBudgetNotFound
	}
	updated := update.Apply(*b)
	m.Budgets[month] = &updated
	cp := updated
	return &cp, nil
}

func (m *MockRemote) FetchBudgetSummary(ctx context.Context, month string) (*domain.BudgetSummary, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.call("FetchBudgetSummary"); err != nil {
		return nil, err
	}

	b, ok := m.Budgets[month]
	if !ok {
		return nil, domain.ErrMonthlyBudgetNotFound
	}
	return &domain.BudgetSummary{MonthYear: month, BudgetAmount: b.BudgetAmount, RemainingBudget: b.BudgetAmount, RolloverEnabled: b.RolloverEnabled}, nil
}

func (m *MockRemote) FetchSettings(ctx context.Context) ([]*domain.Setting, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.call("FetchSettings"); err != nil {
		return nil, err
	}

	result := make([]*domain.Setting, 0, len(m.Settings))
	for _, s := range m.Settings {
		cp := *s
		result = append(result, &cp)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Key < result[j].Key })
	return result, nil
}

func (m *MockRemote) UpdateSetting(ctx context.Context, key, value string) (*domain.Setting, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.call("UpdateSetting"); err != nil {
		return nil, err
	}

	s := &domain.Setting{ID: int32(len(m.Settings) + 1), Key: key, Value: value, UpdatedAt: time.Now()}
	if existing, ok := m.Settings[key]; ok {
		s.ID = existing.ID
	}
	m.Settings[key] = s
	cp := *s
	return &cp, nil
}

func (m *MockRemote) CreateTransaction(ctx context.Context, input domain.TransactionInput) (*domain.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.call("CreateTransaction"); err != nil {
		return nil, err
	}

	now := time.Now()
	t := &domain.Transaction{
		ID:        m.NextID,
		DeviceID:  input.DeviceID,
		Name:      input.Name,
		Amount:    input.Amount,
		Type:      input.Type,
		Timestamp: input.Timestamp,
		CreatedAt: now,
		UpdatedAt: now,
	}
	m.NextID++
	m.Transactions[t.ID] = t
	cp := *t
	return &cp, nil
}

func (m *MockRemote) UpdateTransaction(ctx context.Context, id int32, input domain.TransactionInput) (*domain.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.call("UpdateTransaction"); err != nil {
		return nil, err
	}

	t, ok := m.Transactions[id]
	if !ok {
		return nil, domain.ErrTransactionNotFound
	}
	t.DeviceID = input.DeviceID
	t.Name = input.Name
	t.Amount = input.Amount
	t.Type = input.Type
	t.Timestamp = input.Timestamp
	t.UpdatedAt = time.Now()
	cp := *t
	return &cp, nil
}

func (m *MockRemote) DeleteTransaction(ctx context.Context, id int32) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.call("DeleteTransaction"); err != nil {
		return err
	}

	if _, ok := m.Transactions[id]; !ok {
		return domain.ErrTransactionNotFound
	}
	delete(m.Transactions, id)
	return nil
}

func (m *MockRemote) RegisterDevice(ctx context.Context, deviceID, username, deviceName string) (*domain.Device, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.call("RegisterDevice"); err != nil {
		return nil, err
	}

	d := &domain.Device{ID: int32(len(m.Devices) + 1), DeviceID: deviceID, Username: username, DeviceName: deviceName}
	m.Devices[deviceID] = d
	cp := *d
	return &cp, nil
}

func (m *MockRemote) Subscribe(ctx context.Context) (<-chan websocket.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.call("Subscribe"); err != nil {
		return nil, err
	}
	if m.Events == nil {
		return nil, errors.New("no event stream configured")
	}
	return m.Events, nil
}
