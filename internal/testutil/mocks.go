package testutil

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/kthezelais/budget-tracker/internal/domain"
	"github.com/kthezelais/budget-tracker/internal/websocket"
	"github.com/shopspring/decimal"
)

// MockTransactionRepository is a mock implementation of domain.TransactionRepository
type MockTransactionRepository struct {
	mu           sync.Mutex
	Transactions map[int32]*domain.Transaction
	Usernames    map[string]string
	NextID       int32
	ListErr      error
	CreateFn     func(input domain.TransactionInput) (*domain.Transaction, error)
}

// NewMockTransactionRepository creates a new MockTransactionRepository
func NewMockTransactionRepository() *MockTransactionRepository {
	return &MockTransactionRepository{
		Transactions: make(map[int32]*domain.Transaction),
		Usernames:    make(map[string]string),
		NextID:       1,
	}
}

// Create stores a new transaction
func (m *MockTransactionRepository) Create(ctx context.Context, input domain.TransactionInput) (*domain.Transaction, error) {
	if m.CreateFn != nil {
		return m.CreateFn(input)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

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
	return m.withUsername(t), nil
}

// GetByID retrieves a transaction by ID
func (m *MockTransactionRepository) GetByID(ctx context.Context, id int32) (*domain.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if t, ok := m.Transactions[id]; ok {
		return m.withUsername(t), nil
	}
	return nil, domain.ErrTransactionNotFound
}

// List returns transactions in [Start, End), newest first
func (m *MockTransactionRepository) List(ctx context.Context, filters domain.TransactionFilters) ([]*domain.Transaction, error) {
	if m.ListErr != nil {
		return nil, m.ListErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	var result []*domain.Transaction
	for _, t := range m.sorted() {
		if filters.Start != nil && t.Timestamp.Before(*filters.Start) {
			continue
		}
		if filters.End != nil && !t.Timestamp.Before(*filters.End) {
			continue
		}
		result = append(result, m.withUsername(t))
	}
	// newest first
	for i, j := 0, len(result)-1; i < j; i, j = i+1, j-1 {
		result[i], result[j] = result[j], result[i]
	}
	return result, nil
}

// GetOldest returns the chronologically first transaction
func (m *MockTransactionRepository) GetOldest(ctx context.Context) (*domain.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	sorted := m.sorted()
	if len(sorted) == 0 {
		return nil, domain.ErrTransactionNotFound
	}
	return m.withUsername(sorted[0]), nil
}

// GetNext returns the first transaction strictly after the given instant
func (m *MockTransactionRepository) GetNext(ctx context.Context, after time.Time) (*domain.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, t := range m.sorted() {
		if t.Timestamp.After(after) {
			return m.withUsername(t), nil
		}
	}
	return nil, domain.ErrTransactionNotFound
}

// GetPrevious returns the last transaction strictly before the given instant
func (m *MockTransactionRepository) GetPrevious(ctx context.Context, before time.Time) (*domain.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	sorted := m.sorted()
	for i := len(sorted) - 1; i >= 0; i-- {
		if sorted[i].Timestamp.Before(before) {
			return m.withUsername(sorted[i]), nil
		}
	}
	return nil, domain.ErrTransactionNotFound
}

// Update replaces the editable fields of a transaction
func (m *MockTransactionRepository) Update(ctx context.Context, id int32, input domain.TransactionInput) (*domain.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

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
	return m.withUsername(t), nil
}

// Delete removes a transaction
func (m *MockTransactionRepository) Delete(ctx context.Context, id int32) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.Transactions[id]; !ok {
		return domain.ErrTransactionNotFound
	}
	delete(m.Transactions, id)
	return nil
}

// CountInRange counts transactions in [start, end)
func (m *MockTransactionRepository) CountInRange(ctx context.Context, start, end time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var count int64
	for _, t := range m.Transactions {
		if !t.Timestamp.Before(start) && t.Timestamp.Before(end) {
			count++
		}
	}
	return count, nil
}

// AddTransaction adds a transaction directly (for test setup)
func (m *MockTransactionRepository) AddTransaction(t *domain.Transaction) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if t.ID == 0 {
		t.ID = m.NextID
	}
	if t.ID >= m.NextID {
		m.NextID = t.ID + 1
	}
	m.Transactions[t.ID] = t
}

func (m *MockTransactionRepository) sorted() []*domain.Transaction {
	result := make([]*domain.Transaction, 0, len(m.Transactions))
	for _, t := range m.Transactions {
		result = append(result, t)
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Timestamp.Equal(result[j].Timestamp) {
			return result[i].ID < result[j].ID
		}
		return result[i].Timestamp.Before(result[j].Timestamp)
	})
	return result
}

func (m *MockTransactionRepository) withUsername(t *domain.Transaction) *domain.Transaction {
	c := *t
	if name, ok := m.Usernames[t.DeviceID]; ok {
		c.Username = &name
	}
	return &c
}

// MockMonthlyBudgetRepository is a mock implementation of domain.MonthlyBudgetRepository
type MockMonthlyBudgetRepository struct {
	mu      sync.Mutex
	Budgets map[string]*domain.MonthlyBudget
	NextID  int32
}

// NewMockMonthlyBudgetRepository creates a new MockMonthlyBudgetRepository
func NewMockMonthlyBudgetRepository() *MockMonthlyBudgetRepository {
	return &MockMonthlyBudgetRepository{
		Budgets: make(map[string]*domain.MonthlyBudget),
		NextID:  1,
	}
}

// Create stores a new monthly budget
func (m *MockMonthlyBudgetRepository) Create(ctx context.Context, monthYear string, amount decimal.Decimal, rolloverEnabled bool) (*domain.MonthlyBudget, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.Budgets[monthYear]; ok {
		return nil, domain.ErrMonthlyBudgetExists
	}
	now := time.Now()
	b := &domain.MonthlyBudget{
		ID:              m.NextID,
		MonthYear:       monthYear,
		BudgetAmount:    amount,
		RolloverEnabled: rolloverEnabled,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	m.NextID++
	m.Budgets[monthYear] = b
	c := *b
	return &c, nil
}

// GetByMonth retrieves the budget of a month
func (m *MockMonthlyBudgetRepository) GetByMonth(ctx context.Context, monthYear string) (*domain.MonthlyBudget, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if b, ok := m.Budgets[monthYear]; ok {
		c := *b
		return &c, nil
	}
	return nil, domain.ErrMonthlyBudgetNotFound
}

// GetAll returns every budget, latest month first
func (m *MockMonthlyBudgetRepository) GetAll(ctx context.Context) ([]*domain.MonthlyBudget, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	result := make([]*domain.MonthlyBudget, 0, len(m.Budgets))
	for _, b := range m.Budgets {
		c := *b
		result = append(result, &c)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].MonthYear > result[j].MonthYear })
	return result, nil
}

// Update applies a partial update
func (m *MockMonthlyBudgetRepository) Update(ctx context.Context, monthYear string, update domain.MonthlyBudgetUpdate) (*domain.MonthlyBudget, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	b, ok := m.Budgets[monthYear]
	if !ok {
		return nil, domain.ErrMonthlyBudgetNotFound
	}
	updated := update.Apply(*b)
	updated.UpdatedAt = time.Now()
	m.Budgets[monthYear] = &updated
	c := updated
	return &c, nil
}

// Delete removes the budget of a month
func (m *MockMonthlyBudgetRepository) Delete(ctx context.Context, monthYear string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.Budgets[monthYear]; !ok {
		return domain.ErrMonthlyBudgetNotFound
	}
	delete(m.Budgets, monthYear)
	return nil
}

// AddBudget adds a budget directly (for test setup)
func (m *MockMonthlyBudgetRepository) AddBudget(b *domain.MonthlyBudget) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if b.ID == 0 {
		b.ID = m.NextID
		m.NextID++
	}
	m.Budgets[b.MonthYear] = b
}

// MockSettingRepository is a mock implementation of domain.SettingRepository
type MockSettingRepository struct {
	mu       sync.Mutex
	Settings map[string]*domain.Setting
	NextID   int32
	GetErr   error
}

// NewMockSettingRepository creates a new MockSettingRepository
func NewMockSettingRepository() *MockSettingRepository {
	return &MockSettingRepository{
		Settings: make(map[string]*domain.Setting),
		NextID:   1,
	}
}

// GetAll returns every setting ordered by key
func (m *MockSettingRepository) GetAll(ctx context.Context) ([]*domain.Setting, error) {
	if m.GetErr != nil {
		return nil, m.GetErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	result := make([]*domain.Setting, 0, len(m.Settings))
	for _, s := range m.Settings {
		c := *s
		result = append(result, &c)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Key < result[j].Key })
	return result, nil
}

// GetByKey retrieves a setting by key
func (m *MockSettingRepository) GetByKey(ctx context.Context, key string) (*domain.Setting, error) {
	if m.GetErr != nil {
		return nil, m.GetErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if s, ok := m.Settings[key]; ok {
		c := *s
		return &c, nil
	}
	return nil, domain.ErrSettingNotFound
}

// Upsert creates or replaces a setting
func (m *MockSettingRepository) Upsert(ctx context.Context, key, value string) (*domain.Setting, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.Settings[key]
	if !ok {
		s = &domain.Setting{ID: m.NextID, Key: key}
		m.NextID++
		m.Settings[key] = s
	}
	s.Value = value
	s.UpdatedAt = time.Now()
	c := *s
	return &c, nil
}

// Update replaces the value of an existing setting
func (m *MockSettingRepository) Update(ctx context.Context, key, value string) (*domain.Setting, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.Settings[key]
	if !ok {
		return nil, domain.ErrSettingNotFound
	}
	s.Value = value
	s.UpdatedAt = time.Now()
	c := *s
	return &c, nil
}

// MockDeviceRepository is a mock implementation of domain.DeviceRepository
type MockDeviceRepository struct {
	mu      sync.Mutex
	Devices map[string]*domain.Device
	NextID  int32
}

// NewMockDeviceRepository creates a new MockDeviceRepository
func NewMockDeviceRepository() *MockDeviceRepository {
	return &MockDeviceRepository{
		Devices: make(map[string]*domain.Device),
		NextID:  1,
	}
}

// Upsert creates or refreshes a device registration
func (m *MockDeviceRepository) Upsert(ctx context.Context, deviceID, username, deviceName string) (*domain.Device, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	d, ok := m.Devices[deviceID]
	if !ok {
		d = &domain.Device{ID: m.NextID, DeviceID: deviceID, CreatedAt: now}
		m.NextID++
		m.Devices[deviceID] = d
	}
	d.Username = username
	d.DeviceName = deviceName
	d.UpdatedAt = now
	c := *d
	return &c, nil
}

// GetByDeviceID retrieves a device by its client-side identifier
func (m *MockDeviceRepository) GetByDeviceID(ctx context.Context, deviceID string) (*domain.Device, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if d, ok := m.Devices[deviceID]; ok {
		c := *d
		return &c, nil
	}
	return nil, domain.ErrDeviceNotFound
}

// GetByUsername retrieves a device by username
func (m *MockDeviceRepository) GetByUsername(ctx context.Context, username string) (*domain.Device, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, d := range m.Devices {
		if d.Username == username {
			c := *d
			return &c, nil
		}
	}
	return nil, domain.ErrDeviceNotFound
}

// UpdateUsername renames a device
func (m *MockDeviceRepository) UpdateUsername(ctx context.Context, deviceID, username string) (*domain.Device, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	d, ok := m.Devices[deviceID]
	if !ok {
		return nil, domain.ErrDeviceNotFound
	}
	d.Username = username
	d.UpdatedAt = time.Now()
	c := *d
	return &c, nil
}

// MockEventPublisher records published events
type MockEventPublisher struct {
	mu     sync.Mutex
	Events []string
}

// Publish records the event's type
func (m *MockEventPublisher) Publish(event websocket.Event) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Events = append(m.Events, event.Type)
}

// Published returns a copy of the recorded event types
func (m *MockEventPublisher) Published() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.Events...)
}
