package syncer

import (
	"context"
	"errors"
	"strings"

	"github.com/kthezelais/budget-tracker/internal/cache"
	"github.com/kthezelais/budget-tracker/internal/domain"
	"github.com/kthezelais/budget-tracker/internal/util"
	"github.com/shopspring/decimal"
)

// Every mutation is one unit under s.mu: validate, write to the service
// (best effort), write the cache, recompute locally, then reload silently.

// CreateTransaction records a transaction and reloads the current month
func (s *Syncer) CreateTransaction(ctx context.Context, input domain.TransactionInput) (*LoadResult, error) {
	if err := s.normalizeInput(&input); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	snap := s.working(ctx)

	callCtx, cancel := s.remoteCtx(ctx)
	created, err := s.remote.CreateTransaction(callCtx, input)
	cancel()
	if err != nil {
		s.logger.Warn().Err(err).Str("name", input.Name).Msg("Remote create failed, keeping transaction offline")
		now := util.Now()
		created = &domain.Transaction{
			ID:        provisionalID(snap.transactions),
			DeviceID:  input.DeviceID,
			Name:      input.Name,
			Amount:    input.Amount,
			Type:      input.Type,
			Timestamp: input.Timestamp,
			CreatedAt: now,
			UpdatedAt: now,
		}
	}

	snap.transactions = append(snap.transactions, created)
	s.saveLocal(ctx, cache.Transactions, snap.transactions)
	return s.reconcile(ctx, s.currentMonth(ctx), snap, nil)
}

// UpdateTransaction replaces the fields of transaction id
func (s *Syncer) UpdateTransaction(ctx context.Context, id int32, input domain.TransactionInput) (*LoadResult, error) {
	if err := s.normalizeInput(&input); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	snap := s.working(ctx)
	existing := findTransaction(snap.transactions, id)

	var updated *domain.Transaction
	if id > 0 {
		callCtx, cancel := s.remoteCtx(ctx)
		remoteTx, err := s.remote.UpdateTransaction(callCtx, id, input)
		cancel()
		switch {
		case err == nil:
			updated = remoteTx
		case errors.Is(err, domain.ErrNotFound) && existing == nil:
			return nil, domain.ErrTransactionNotFound
		case domain.IsValidationError(err):
			return nil, err
		default:
			s.logger.Warn().Err(err).Int32("transaction_id", id).Msg("Remote update failed, updating offline copy")
		}
	}

	if updated == nil {
		if existing == nil {
			return nil, domain.ErrTransactionNotFound
		}
		cp := *existing
		cp.DeviceID = input.DeviceID
		cp.Name = input.Name
		cp.Amount = input.Amount
		cp.Type = input.Type
		cp.Timestamp = input.Timestamp
		cp.UpdatedAt = util.Now()
		updated = &cp
	}

	if existing != nil {
		snap.transactions = replaceTransaction(snap.transactions, id, updated)
	} else {
		snap.transactions = append(snap.transactions, updated)
	}
	s.saveLocal(ctx, cache.Transactions, snap.transactions)
	return s.reconcile(ctx, s.currentMonth(ctx), snap, nil)
}

// DeleteTransaction removes transaction id
func (s *Syncer) DeleteTransaction(ctx context.Context, id int32) (*LoadResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := s.working(ctx)
	existing := findTransaction(snap.transactions, id)

	if id > 0 {
		callCtx, cancel := s.remoteCtx(ctx)
		err := s.remote.DeleteTransaction(callCtx, id)
		cancel()
		if errors.Is(err, domain.ErrNotFound) && existing == nil {
			return nil, domain.ErrTransactionNotFound
		}
		if err != nil && !errors.Is(err, domain.ErrNotFound) {
			s.logger.Warn().Err(err).Int32("transaction_id", id).Msg("Remote delete failed, deleting offline copy")
		}
	} else if existing == nil {
		return nil, domain.ErrTransactionNotFound
	}

	snap.transactions = replaceTransaction(snap.transactions, id, nil)
	s.saveLocal(ctx, cache.Transactions, snap.transactions)
	return s.reconcile(ctx, s.currentMonth(ctx), snap, nil)
}

// UpdateBudgetAmount sets the base budget of month. Submitting the current
// amount is rejected with domain.ErrNoChange.
func (s *Syncer) UpdateBudgetAmount(ctx context.Context, month string, amount decimal.Decimal) (*LoadResult, error) {
	if _, _, err := util.ParseMonthKey(month); err != nil {
		return nil, err
	}
	if err := domain.ValidateBudgetAmount(amount); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	snap := s.working(ctx)
	current := findBudget(snap.budgets, month)
	if current != nil && current.BudgetAmount.Equal(amount) {
		return nil, domain.ErrNoChange
	}

	write := pendingBudgetWrite{Month: month, BudgetAmount: &amount}
	if err := s.pushBudgetWrite(ctx, write, s.defaultFromSettings(snap.settings)); err != nil {
		if rejected(err) {
			return nil, err
		}
		s.logger.Warn().Err(err).Str("month", month).Msg("Remote budget update failed, queued for next sync")
		s.queueBudgetWrite(ctx, write)
	}

	next := domain.MonthlyBudget{MonthYear: month, RolloverEnabled: true}
	if current != nil {
		next = *current
	}
	next.BudgetAmount = amount
	next.UpdatedAt = util.Now()
	snap.budgets = replaceBudget(snap.budgets, &next)

	s.saveLocal(ctx, cache.MonthlyBudgets, snap.budgets)
	return s.reconcile(ctx, month, snap, nil)
}

// ToggleRollover turns rollover on or off for month. The earliest tracked
// month cannot be toggled.
func (s *Syncer) ToggleRollover(ctx context.Context, month string, enabled bool) (*LoadResult, error) {
	if _, _, err := util.ParseMonthKey(month); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	snap := s.working(ctx)
	if s.rolloverLocked(month, snap) {
		return nil, domain.ErrRolloverLocked
	}

	base := s.defaultFromSettings(snap.settings)
	if b := findBudget(snap.budgets, month); b != nil {
		base = b.BudgetAmount
	}

	summary, budgets, err := s.engine.RecalculateOnRolloverToggle(month, snap.transactions, snap.budgets, enabled, base)
	if err != nil {
		return nil, err
	}

	write := pendingBudgetWrite{Month: month, RolloverEnabled: &enabled}
	if err := s.pushBudgetWrite(ctx, write, base); err != nil {
		if rejected(err) {
			return nil, err
		}
		s.logger.Warn().Err(err).Str("month", month).Msg("Remote rollover update failed, queued for next sync")
		s.queueBudgetWrite(ctx, write)
	}

	snap.budgets = budgets
	s.saveLocal(ctx, cache.MonthlyBudgets, snap.budgets)

	monthTxs := s.engine.TransactionsForMonth(snap.transactions, month)
	sortNewestFirst(monthTxs)
	optimistic := &LoadResult{
		Month:        month,
		Summary:      summary,
		Budget:       findBudget(budgets, month),
		Transactions: monthTxs,
	}
	return s.reconcile(ctx, month, snap, optimistic)
}

// UpdateDefaultBudget changes the amount new months are created with
func (s *Syncer) UpdateDefaultBudget(ctx context.Context, value string) (*LoadResult, error) {
	value = strings.TrimSpace(value)
	if err := domain.ValidateSetting(domain.SettingDefaultBudgetAmount, value); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	snap := s.working(ctx)

	callCtx, cancel := s.remoteCtx(ctx)
	setting, err := s.remote.UpdateSetting(callCtx, domain.SettingDefaultBudgetAmount, value)
	cancel()
	if err != nil {
		s.logger.Warn().Err(err).Msg("Remote settings update failed, updating offline copy")
		setting = &domain.Setting{Key: domain.SettingDefaultBudgetAmount, Value: value, UpdatedAt: util.Now()}
	}

	snap.settings = replaceSetting(snap.settings, setting)
	s.saveLocal(ctx, cache.Settings, snap.settings)
	return s.reconcile(ctx, s.currentMonth(ctx), snap, nil)
}

// RegisterDevice records this device and the username shown on its
// transactions. It needs the service.
func (s *Syncer) RegisterDevice(ctx context.Context, username, deviceName string) (*domain.Device, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return nil, domain.ErrUsernameRequired
	}
	if s.deviceID == "" {
		return nil, domain.ErrDeviceIDRequired
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	callCtx, cancel := s.remoteCtx(ctx)
	defer cancel()
	return s.remote.RegisterDevice(callCtx, s.deviceID, username, strings.TrimSpace(deviceName))
}

func (s *Syncer) normalizeInput(input *domain.TransactionInput) error {
	if strings.TrimSpace(input.DeviceID) == "" {
		input.DeviceID = s.deviceID
	}
	input.DeviceID = strings.TrimSpace(input.DeviceID)
	if err := input.Normalize(); err != nil {
		return err
	}
	if input.DeviceID == "" {
		return domain.ErrDeviceIDRequired
	}
	if input.Timestamp.IsZero() {
		input.Timestamp = util.Now()
	}
	return nil
}

// reconcile commits snap as the working ledger and reloads month silently.
// When the reload has nothing to show, the local recomputation is returned
// instead.
func (s *Syncer) reconcile(ctx context.Context, month string, snap *snapshot, optimistic *LoadResult) (*LoadResult, error) {
	s.data = snap

	if optimistic == nil {
		base := s.defaultFromSettings(snap.settings)
		if b := findBudget(snap.budgets, month); b != nil {
			base = b.BudgetAmount
		}
		locked := s.rolloverLocked(month, snap)
		if result, err := s.buildResult(month, snap, base, locked); err == nil {
			optimistic = result
		}
	}

	result, err := s.load(ctx, month, true)
	if err == nil || optimistic == nil {
		return result, err
	}

	s.logger.Warn().Err(err).Str("month", month).Msg("Reload failed, showing local changes")
	optimistic.State = StateDegradedFallback
	optimistic.Notice = NoticeOffline
	s.data = snap
	s.last = optimistic
	return optimistic, nil
}

// rolloverLocked reports whether month is the earliest tracked month
func (s *Syncer) rolloverLocked(month string, snap *snapshot) bool {
	if s.last != nil && s.last.Month == month && s.last.State == StateSuccess {
		return s.last.RolloverLocked
	}
	return util.FirstTrackedMonth(snap.transactions, s.loc) == month
}

func (s *Syncer) saveLocal(ctx context.Context, collection string, records interface{}) {
	if err := s.cache.Save(ctx, collection, records); err != nil {
		s.logger.Error().Err(err).Str("collection", collection).Msg("Failed to write offline cache")
		s.dirty = true
	}
}

// provisionalID returns a negative id below every id in txs
func provisionalID(txs []*domain.Transaction) int32 {
	id := int32(-1)
	for _, t := range txs {
		if t != nil && t.ID <= id {
			id = t.ID - 1
		}
	}
	return id
}

func replaceSetting(settings []*domain.Setting, setting *domain.Setting) []*domain.Setting {
	result := make([]*domain.Setting, 0, len(settings)+1)
	found := false
	for _, existing := range settings {
		if existing != nil && existing.Key == setting.Key {
			result = append(result, setting)
			found = true
			continue
		}
		result = append(result, existing)
	}
	if !found {
		result = append(result, setting)
	}
	return result
}
