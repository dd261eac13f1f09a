package syncer

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/kthezelais/budget-tracker/internal/cache"
	"github.com/kthezelais/budget-tracker/internal/domain"
	"github.com/kthezelais/budget-tracker/internal/util"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
)

// snapshot is one consistent view of the ledger
type snapshot struct {
	transactions []*domain.Transaction
	budgets      []*domain.MonthlyBudget
	settings     []*domain.Setting
}

func (s *snapshot) clone() *snapshot {
	return &snapshot{
		transactions: append([]*domain.Transaction(nil), s.transactions...),
		budgets:      append([]*domain.MonthlyBudget(nil), s.budgets...),
		settings:     append([]*domain.Setting(nil), s.settings...),
	}
}

// Load runs one load cycle for month. A silent load skips the Loading state.
// Remote failures degrade to cached data and are reported through the
// result's State and Notice; an error is returned only when nothing can be
// shown.
func (s *Syncer) Load(ctx context.Context, month string, silent bool) (*LoadResult, error) {
	if _, _, err := util.ParseMonthKey(month); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load(ctx, month, silent)
}

func (s *Syncer) load(ctx context.Context, month string, silent bool) (*LoadResult, error) {
	if !silent {
		s.setState(StateLoading)
	}
	defer s.setState(StateIdle)

	s.month = month

	snap, remoteMonth, locked, err := s.fetchRemote(ctx, month)
	if err != nil {
		s.logger.Warn().Err(err).Str("month", month).Msg("Remote load failed, using offline data")
		return s.loadFallback(ctx, month)
	}

	base := s.defaultFromSettings(snap.settings)
	if remoteMonth != nil {
		base = remoteMonth.BudgetAmount
	}

	result, err := s.buildResult(month, snap, base, locked)
	if err != nil {
		return s.fail(month, err)
	}
	result.State = StateSuccess
	result.LastSync = util.Now()

	s.data = snap
	s.last = result
	s.persist(ctx, month, snap, result.LastSync)

	s.logger.Debug().
		Str("month", month).
		Int("transactions", len(snap.transactions)).
		Bool("rollover_locked", locked).
		Msg("Month synchronized")
	return result, nil
}

// fetchRemote pulls everything needed to render month from the service,
// creating the month first when it does not exist yet
func (s *Syncer) fetchRemote(ctx context.Context, month string) (*snapshot, *domain.MonthlyBudget, bool, error) {
	if err := s.replayPendingTransactions(ctx); err != nil {
		return nil, nil, false, err
	}
	if err := s.replayPendingBudgetWrites(ctx); err != nil {
		return nil, nil, false, err
	}
	if err := s.ensureRemoteMonth(ctx, month); err != nil {
		return nil, nil, false, err
	}

	snap := &snapshot{}
	var (
		remoteMonth *domain.MonthlyBudget
		oldest      *domain.Transaction
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		callCtx, cancel := s.remoteCtx(gctx)
		defer cancel()
		txs, err := s.remote.FetchTransactions(callCtx, s.loc.String(), "")
		snap.transactions = txs
		return err
	})
	g.Go(func() error {
		callCtx, cancel := s.remoteCtx(gctx)
		defer cancel()
		budgets, err := s.remote.FetchMonthlyBudgets(callCtx)
		snap.budgets = budgets
		return err
	})
	g.Go(func() error {
		callCtx, cancel := s.remoteCtx(gctx)
		defer cancel()
		settings, err := s.remote.FetchSettings(callCtx)
		snap.settings = settings
		return err
	})
	g.Go(func() error {
		callCtx, cancel := s.remoteCtx(gctx)
		defer cancel()
		budget, err := s.remote.FetchMonthlyBudget(callCtx, month)
		remoteMonth = budget
		return err
	})
	g.Go(func() error {
		callCtx, cancel := s.remoteCtx(gctx)
		defer cancel()
		tx, err := s.remote.FetchOldestTransaction(callCtx)
		if errors.Is(err, domain.ErrNotFound) {
			return nil
		}
		oldest = tx
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, nil, false, err
	}

	firstMonth := util.CurrentMonth()
	if oldest != nil {
		firstMonth = util.MonthKeyOf(oldest.Timestamp, s.loc)
	}
	locked := firstMonth == month

	if locked && remoteMonth != nil && remoteMonth.RolloverEnabled {
		off := false
		callCtx, cancel := s.remoteCtx(ctx)
		updated, err := s.remote.UpdateMonthlyBudget(callCtx, month, domain.MonthlyBudgetUpdate{RolloverEnabled: &off})
		cancel()
		if err != nil {
			return nil, nil, false, err
		}
		remoteMonth = updated
		s.logger.Info().Str("month", month).Msg("Rollover disabled on earliest tracked month")
	}
	snap.budgets = replaceBudget(snap.budgets, remoteMonth)

	return snap, remoteMonth, locked, nil
}

// ensureRemoteMonth creates month remotely when the service has no budget for it
func (s *Syncer) ensureRemoteMonth(ctx context.Context, month string) error {
	callCtx, cancel := s.remoteCtx(ctx)
	defer cancel()

	_, err := s.remote.FetchBudgetSummary(callCtx, month)
	if err == nil || !errors.Is(err, domain.ErrNotFound) {
		return err
	}

	settings, err := s.remote.FetchSettings(callCtx)
	if err != nil {
		return err
	}
	amount := s.defaultFromSettings(settings)

	if _, err := s.remote.CreateMonthlyBudget(callCtx, month, amount, true); err != nil && !errors.Is(err, domain.ErrAlreadyExists) {
		return err
	}
	s.logger.Info().Str("month", month).Str("amount", amount.StringFixed(2)).Msg("Created monthly budget")

	_, err = s.remote.FetchBudgetSummary(callCtx, month)
	return err
}

// loadFallback renders month from the offline cache
func (s *Syncer) loadFallback(ctx context.Context, month string) (*LoadResult, error) {
	snap, err := s.readCache(ctx)
	if s.dirty && s.data != nil {
		snap, err = s.data.clone(), nil
	}
	if err != nil {
		return s.fail(month, err)
	}

	base := s.defaultFromSettings(snap.settings)
	if budget := findBudget(snap.budgets, month); budget != nil {
		base = budget.BudgetAmount
	}
	locked := util.FirstTrackedMonth(snap.transactions, s.loc) == month

	result, err := s.buildResult(month, snap, base, locked)
	if err != nil {
		return s.fail(month, err)
	}
	result.State = StateDegradedFallback
	result.Notice = NoticeOffline
	if synced, err := s.cache.LastSyncTime(ctx); err == nil {
		result.LastSync = synced
	}

	if err := s.cache.SetCurrentMonth(ctx, month); err != nil {
		s.logger.Warn().Err(err).Msg("Failed to record current month")
	}

	s.data = snap
	s.last = result
	return result, nil
}

// fail produces the empty result shown when nothing can be loaded
func (s *Syncer) fail(month string, err error) (*LoadResult, error) {
	s.setState(StateFailed)
	s.logger.Error().Err(err).Str("month", month).Msg("Unable to load month")

	result := &LoadResult{
		Month:        month,
		State:        StateFailed,
		Transactions: []*domain.Transaction{},
		Notice:       NoticeFailed,
	}
	s.last = result
	return result, err
}

// buildResult computes the month view of snap. The earliest tracked month
// never rolls over, whatever its stored flag says.
func (s *Syncer) buildResult(month string, snap *snapshot, base decimal.Decimal, locked bool) (*LoadResult, error) {
	budgets := snap.budgets
	if locked {
		budgets = withRollover(budgets, month, false)
	}

	summary, err := s.engine.Summarize(month, snap.transactions, budgets, base)
	if err != nil {
		return nil, err
	}

	monthTxs := s.engine.TransactionsForMonth(snap.transactions, month)
	sortNewestFirst(monthTxs)

	return &LoadResult{
		Month:          month,
		Summary:        summary,
		Budget:         findBudget(budgets, month),
		Transactions:   monthTxs,
		RolloverLocked: locked,
	}, nil
}

// persist stores a successful sync. Cache failures are logged only; the
// remote data is already on screen.
func (s *Syncer) persist(ctx context.Context, month string, snap *snapshot, syncedAt time.Time) {
	writes := []struct {
		collection string
		records    interface{}
	}{
		{cache.Transactions, snap.transactions},
		{cache.MonthlyBudgets, snap.budgets},
		{cache.Settings, snap.settings},
	}
	clean := true
	for _, w := range writes {
		if err := s.cache.Save(ctx, w.collection, w.records); err != nil {
			s.logger.Warn().Err(err).Str("collection", w.collection).Msg("Failed to update offline cache")
			clean = false
		}
	}
	s.dirty = !clean
	if err := s.cache.SetLastSyncTime(ctx, syncedAt); err != nil {
		s.logger.Warn().Err(err).Msg("Failed to record sync time")
	}
	if err := s.cache.SetCurrentMonth(ctx, month); err != nil {
		s.logger.Warn().Err(err).Msg("Failed to record current month")
	}
}

// readCache loads the cached ledger. An entirely empty cache is unusable.
func (s *Syncer) readCache(ctx context.Context) (*snapshot, error) {
	snap := &snapshot{}

	txErr := s.cache.Load(ctx, cache.Transactions, &snap.transactions)
	budgetErr := s.cache.Load(ctx, cache.MonthlyBudgets, &snap.budgets)
	if errors.Is(txErr, cache.ErrMiss) && errors.Is(budgetErr, cache.ErrMiss) {
		return nil, fmt.Errorf("%w: no cached data", domain.ErrCacheUnavailable)
	}
	for _, err := range []error{txErr, budgetErr} {
		if err != nil && !errors.Is(err, cache.ErrMiss) {
			return nil, cacheError(err)
		}
	}

	if err := s.cache.Load(ctx, cache.Settings, &snap.settings); err != nil && !errors.Is(err, cache.ErrMiss) {
		return nil, cacheError(err)
	}
	return snap, nil
}

// working returns a private copy of the last known ledger
func (s *Syncer) working(ctx context.Context) *snapshot {
	if s.data != nil {
		return s.data.clone()
	}
	snap, err := s.readCache(ctx)
	if err != nil {
		s.logger.Debug().Err(err).Msg("Starting from an empty ledger")
		return &snapshot{}
	}
	return snap
}

func (s *Syncer) currentMonth(ctx context.Context) string {
	if s.month != "" {
		return s.month
	}
	if month, err := s.cache.CurrentMonth(ctx); err == nil && util.IsValidMonthKey(month) {
		return month
	}
	return util.CurrentMonth()
}

func cacheError(err error) error {
	if errors.Is(err, domain.ErrCacheUnavailable) {
		return err
	}
	return fmt.Errorf("%w: %v", domain.ErrCacheUnavailable, err)
}

func sortNewestFirst(txs []*domain.Transaction) {
	sort.SliceStable(txs, func(i, j int) bool {
		if txs[i].Timestamp.Equal(txs[j].Timestamp) {
			return txs[i].ID > txs[j].ID
		}
		return txs[i].Timestamp.After(txs[j].Timestamp)
	})
}

// replaceBudget returns budgets with the record of b's month replaced by b,
// or b appended
func replaceBudget(budgets []*domain.MonthlyBudget, b *domain.MonthlyBudget) []*domain.MonthlyBudget {
	if b == nil {
		return budgets
	}
	result := make([]*domain.MonthlyBudget, 0, len(budgets)+1)
	found := false
	for _, existing := range budgets {
		if existing != nil && existing.MonthYear == b.MonthYear {
			result = append(result, b)
			found = true
			continue
		}
		result = append(result, existing)
	}
	if !found {
		result = append(result, b)
	}
	return result
}

// withRollover returns a copy of budgets with month's rollover flag set
func withRollover(budgets []*domain.MonthlyBudget, month string, enabled bool) []*domain.MonthlyBudget {
	b := findBudget(budgets, month)
	if b == nil || b.RolloverEnabled == enabled {
		return budgets
	}
	cp := *b
	cp.RolloverEnabled = enabled
	return replaceBudget(budgets, &cp)
}
