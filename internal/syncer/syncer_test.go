package syncer

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/kthezelais/budget-tracker/internal/cache"
	"github.com/kthezelais/budget-tracker/internal/domain"
	"github.com/kthezelais/budget-tracker/internal/testutil"
	"github.com/kthezelais/budget-tracker/internal/util"
	"github.com/kthezelais/budget-tracker/internal/websocket"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func day(month time.Month, d int) time.Time {
	return time.Date(2025, month, d, 12, 0, 0, 0, time.UTC)
}

func newTestSyncer(t *testing.T) (*Syncer, *testutil.MockRemote, *testutil.MockCache) {
	t.Helper()
	util.Now = func() time.Time { return day(time.November, 15) }
	t.Cleanup(func() { util.Now = time.Now })

	remote := testutil.NewMockRemote()
	store := testutil.NewMockCache()
	s := New(Options{
		Remote:        remote,
		Cache:         store,
		Timezone:      time.UTC,
		DeviceID:      "device-1",
		RemoteTimeout: time.Second,
	})
	return s, remote, store
}

// seedLedger builds the September to November scenario: 1000 per month with
// rollover, 800 spent in September and 1300 in October
func seedLedger(remote *testutil.MockRemote) {
	remote.AddBudget("2025-09", dec("1000"), true)
	remote.AddBudget("2025-10", dec("1000"), true)
	remote.AddBudget("2025-11", dec("1000"), true)
	remote.AddTransaction("Rent", dec("800"), domain.TransactionTypeWithdraw, day(time.September, 10))
	remote.AddTransaction("Holiday", dec("1300"), domain.TransactionTypeWithdraw, day(time.October, 5))
}

func TestLoad_CreatesMissingMonthFromDefaultSetting(t *testing.T) {
	s, remote, store := newTestSyncer(t)
	remote.Settings[domain.SettingDefaultBudgetAmount] = &domain.Setting{Key: domain.SettingDefaultBudgetAmount, Value: "1500"}

	result, err := s.Load(context.Background(), "2025-11", false)
	require.NoError(t, err)

	assert.Equal(t, StateSuccess, result.State)
	assert.Equal(t, NoticeNone, result.Notice)
	require.Contains(t, remote.Budgets, "2025-11")
	assert.True(t, remote.Budgets["2025-11"].BudgetAmount.Equal(dec("1500")))
	assert.True(t, result.Summary.BudgetAmount.Equal(dec("1500")))
	assert.Equal(t, 2, remote.Called("FetchBudgetSummary"))

	// no transactions at all, so the displayed month is the earliest one
	assert.True(t, result.RolloverLocked)
	assert.False(t, remote.Budgets["2025-11"].RolloverEnabled)

	assert.Equal(t, StateIdle, s.State())
	assert.Equal(t, "2025-11", store.Month)
	assert.False(t, store.SyncedAt.IsZero())
}

func TestLoad_FallsBackToHardcodedDefault(t *testing.T) {
	s, remote, _ := newTestSyncer(t)

	_, err := s.Load(context.Background(), "2025-11", true)
	require.NoError(t, err)
	assert.True(t, remote.Budgets["2025-11"].BudgetAmount.Equal(domain.DefaultBudgetAmount))
}

func TestLoad_RolloverScenario(t *testing.T) {
	s, remote, store := newTestSyncer(t)
	seedLedger(remote)
	ctx := context.Background()

	oct, err := s.Load(ctx, "2025-10", false)
	require.NoError(t, err)
	assert.Equal(t, StateSuccess, oct.State)
	assert.False(t, oct.RolloverLocked)
	assert.True(t, oct.Summary.BudgetAmount.Equal(dec("1200")), oct.Summary.BudgetAmount.String())
	assert.True(t, oct.Summary.TotalTransactions.Equal(dec("1300")))
	assert.True(t, oct.Summary.RemainingBudget.Equal(dec("-100")))
	assert.True(t, oct.Summary.IsOverBudget)
	require.Len(t, oct.Transactions, 1)
	assert.Equal(t, "Holiday", oct.Transactions[0].Name)

	nov, err := s.Load(ctx, "2025-11", false)
	require.NoError(t, err)
	assert.True(t, nov.Summary.BudgetAmount.Equal(dec("900")), nov.Summary.BudgetAmount.String())
	assert.Empty(t, nov.Transactions)

	assert.Len(t, store.Transactions(), 2)
	assert.Len(t, store.Budgets(), 3)
}

func TestLoad_LocksEarliestMonth(t *testing.T) {
	s, remote, _ := newTestSyncer(t)
	seedLedger(remote)
	ctx := context.Background()

	sep, err := s.Load(ctx, "2025-09", false)
	require.NoError(t, err)
	assert.True(t, sep.RolloverLocked)
	assert.False(t, remote.Budgets["2025-09"].RolloverEnabled)
	assert.False(t, sep.Summary.RolloverEnabled)
	assert.True(t, sep.Summary.BudgetAmount.Equal(dec("1000")))

	updates := remote.Called("UpdateMonthlyBudget")
	_, err = s.ToggleRollover(ctx, "2025-09", true)
	assert.ErrorIs(t, err, domain.ErrRolloverLocked)
	assert.Equal(t, KindRolloverLocked, Classify(err))
	assert.Equal(t, updates, remote.Called("UpdateMonthlyBudget"))
}

func TestLoad_DegradesToCache(t *testing.T) {
	s, remote, _ := newTestSyncer(t)
	seedLedger(remote)
	ctx := context.Background()

	_, err := s.Load(ctx, "2025-10", false)
	require.NoError(t, err)

	remote.SetOffline(true)
	result, err := s.Load(ctx, "2025-10", false)
	require.NoError(t, err)

	assert.Equal(t, StateDegradedFallback, result.State)
	assert.Equal(t, NoticeOffline, result.Notice)
	assert.True(t, result.Summary.BudgetAmount.Equal(dec("1200")))
	assert.True(t, result.Summary.RemainingBudget.Equal(dec("-100")))
	assert.False(t, result.LastSync.IsZero())
	assert.Equal(t, StateIdle, s.State())
}

func TestLoad_FailsWithEmptyCache(t *testing.T) {
	s, remote, _ := newTestSyncer(t)
	remote.SetOffline(true)

	result, err := s.Load(context.Background(), "2025-11", false)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrCacheUnavailable)
	assert.Equal(t, KindCacheUnavailable, Classify(err))

	require.NotNil(t, result)
	assert.Equal(t, StateFailed, result.State)
	assert.Equal(t, NoticeFailed, result.Notice)
	assert.NotNil(t, result.Transactions)
	assert.Empty(t, result.Transactions)
	assert.Nil(t, result.Summary)
}

func TestLoad_FailsWithCorruptCache(t *testing.T) {
	s, remote, store := newTestSyncer(t)
	remote.SetOffline(true)
	store.Corrupt(cache.Transactions)

	result, err := s.Load(context.Background(), "2025-11", false)
	assert.ErrorIs(t, err, domain.ErrCacheUnavailable)
	assert.Equal(t, StateFailed, result.State)
}

func TestLoad_RejectsMalformedMonth(t *testing.T) {
	s, remote, _ := newTestSyncer(t)

	_, err := s.Load(context.Background(), "2025-13", false)
	assert.ErrorIs(t, err, domain.ErrInvalidMonthKey)
	assert.Empty(t, remote.Calls())
}

type slowRemote struct {
	*testutil.MockRemote
}

func (r slowRemote) FetchBudgetSummary(ctx context.Context, month string) (*domain.BudgetSummary, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestLoad_RemoteTimeoutDegrades(t *testing.T) {
	util.Now = func() time.Time { return day(time.November, 15) }
	t.Cleanup(func() { util.Now = time.Now })

	store := testutil.NewMockCache()
	ctx := context.Background()
	require.NoError(t, store.Save(ctx, cache.MonthlyBudgets, []*domain.MonthlyBudget{{MonthYear: "2025-11", BudgetAmount: dec("700"), RolloverEnabled: true}}))

	s := New(Options{
		Remote:        slowRemote{testutil.NewMockRemote()},
		Cache:         store,
		Timezone:      time.UTC,
		RemoteTimeout: 10 * time.Millisecond,
	})

	result, err := s.Load(ctx, "2025-11", false)
	require.NoError(t, err)
	assert.Equal(t, StateDegradedFallback, result.State)
	assert.True(t, result.Summary.BudgetAmount.Equal(dec("700")))
}

func TestCreateTransaction_ValidationSkipsWrites(t *testing.T) {
	s, remote, store := newTestSyncer(t)

	_, err := s.CreateTransaction(context.Background(), domain.TransactionInput{
		Name:   "  ",
		Amount: dec("5"),
		Type:   domain.TransactionTypeWithdraw,
	})
	assert.ErrorIs(t, err, domain.ErrNameRequired)
	assert.Equal(t, KindValidation, Classify(err))
	assert.Empty(t, remote.Calls())
	assert.Empty(t, store.Collections)

	_, err = s.CreateTransaction(context.Background(), domain.TransactionInput{
		Name:   "Coffee",
		Amount: dec("1.999"),
		Type:   domain.TransactionTypeWithdraw,
	})
	assert.ErrorIs(t, err, domain.ErrAmountPrecision)
	assert.Empty(t, remote.Calls())
}

func TestCreateTransaction_Online(t *testing.T) {
	s, remote, store := newTestSyncer(t)
	seedLedger(remote)
	ctx := context.Background()
	_, err := s.Load(ctx, "2025-11", false)
	require.NoError(t, err)

	result, err := s.CreateTransaction(ctx, domain.TransactionInput{
		Name:      "Groceries",
		Amount:    dec("150"),
		Type:      domain.TransactionTypeWithdraw,
		Timestamp: day(time.November, 14),
	})
	require.NoError(t, err)
	assert.Equal(t, StateSuccess, result.State)
	require.Len(t, result.Transactions, 1)
	assert.Equal(t, "device-1", result.Transactions[0].DeviceID)
	assert.True(t, result.Summary.RemainingBudget.Equal(dec("750")))
	assert.Len(t, store.Transactions(), 3)
}

func TestCreateTransaction_OfflineThenReplayed(t *testing.T) {
	s, remote, store := newTestSyncer(t)
	seedLedger(remote)
	ctx := context.Background()
	_, err := s.Load(ctx, "2025-11", false)
	require.NoError(t, err)

	remote.SetOffline(true)
	result, err := s.CreateTransaction(ctx, domain.TransactionInput{
		Name:   "Lunch",
		Amount: dec("12.50"),
		Type:   domain.TransactionTypeWithdraw,
	})
	require.NoError(t, err)
	assert.Equal(t, StateDegradedFallback, result.State)
	require.Len(t, result.Transactions, 1)
	assert.Equal(t, int32(-1), result.Transactions[0].ID)
	assert.True(t, result.Summary.RemainingBudget.Equal(dec("887.50")))

	remote.SetOffline(false)
	result, err = s.Load(ctx, "2025-11", true)
	require.NoError(t, err)
	assert.Equal(t, StateSuccess, result.State)
	require.Len(t, result.Transactions, 1)
	assert.Positive(t, result.Transactions[0].ID)
	assert.Len(t, remote.Transactions, 3)

	for _, tx := range store.Transactions() {
		assert.Positive(t, tx.ID)
	}

	// a second load must not create it again
	_, err = s.Load(ctx, "2025-11", true)
	require.NoError(t, err)
	assert.Len(t, remote.Transactions, 3)
}

func TestConcurrentOfflineCreatesAreSerialized(t *testing.T) {
	s, remote, store := newTestSyncer(t)
	seedLedger(remote)
	ctx := context.Background()
	_, err := s.Load(ctx, "2025-11", false)
	require.NoError(t, err)
	remote.SetOffline(true)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.CreateTransaction(ctx, domain.TransactionInput{
				Name:   "Snack",
				Amount: dec("1"),
				Type:   domain.TransactionTypeWithdraw,
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	seen := map[int32]bool{}
	for _, tx := range store.Transactions() {
		assert.False(t, seen[tx.ID], "duplicate id %d", tx.ID)
		seen[tx.ID] = true
	}
	assert.Len(t, seen, 12)
}

func TestUpdateTransaction(t *testing.T) {
	s, remote, _ := newTestSyncer(t)
	seedLedger(remote)
	ctx := context.Background()
	_, err := s.Load(ctx, "2025-10", false)
	require.NoError(t, err)

	result, err := s.UpdateTransaction(ctx, 2, domain.TransactionInput{
		Name:      "Holiday",
		Amount:    dec("1000"),
		Type:      domain.TransactionTypeWithdraw,
		Timestamp: day(time.October, 5),
	})
	require.NoError(t, err)
	assert.True(t, remote.Transactions[2].Amount.Equal(dec("1000")))
	assert.True(t, result.Summary.RemainingBudget.Equal(dec("200")))
	assert.False(t, result.Summary.IsOverBudget)

	_, err = s.UpdateTransaction(ctx, 99, domain.TransactionInput{Name: "x", Amount: dec("1"), Type: domain.TransactionTypeDeposit})
	assert.ErrorIs(t, err, domain.ErrTransactionNotFound)
	assert.Equal(t, KindNotFound, Classify(err))
}

func TestUpdateTransaction_Offline(t *testing.T) {
	s, remote, store := newTestSyncer(t)
	seedLedger(remote)
	ctx := context.Background()
	_, err := s.Load(ctx, "2025-10", false)
	require.NoError(t, err)

	remote.SetOffline(true)
	result, err := s.UpdateTransaction(ctx, 2, domain.TransactionInput{
		Name:      "Holiday",
		Amount:    dec("1200"),
		Type:      domain.TransactionTypeWithdraw,
		Timestamp: day(time.October, 5),
	})
	require.NoError(t, err)
	assert.Equal(t, StateDegradedFallback, result.State)
	assert.True(t, result.Summary.RemainingBudget.Equal(dec("0")))
	assert.False(t, result.Summary.IsOverBudget)

	cached := store.Transactions()
	require.Len(t, cached, 2)
	for _, tx := range cached {
		if tx.ID == 2 {
			assert.True(t, tx.Amount.Equal(dec("1200")))
		}
	}
}

func TestDeleteTransaction(t *testing.T) {
	s, remote, store := newTestSyncer(t)
	seedLedger(remote)
	ctx := context.Background()
	_, err := s.Load(ctx, "2025-10", false)
	require.NoError(t, err)

	result, err := s.DeleteTransaction(ctx, 2)
	require.NoError(t, err)
	assert.Empty(t, result.Transactions)
	assert.NotContains(t, remote.Transactions, int32(2))
	assert.Len(t, store.Transactions(), 1)

	_, err = s.DeleteTransaction(ctx, 2)
	assert.ErrorIs(t, err, domain.ErrTransactionNotFound)
}

func TestDeleteProvisionalTransactionStaysLocal(t *testing.T) {
	s, remote, store := newTestSyncer(t)
	seedLedger(remote)
	ctx := context.Background()
	_, err := s.Load(ctx, "2025-11", false)
	require.NoError(t, err)

	remote.SetOffline(true)
	_, err = s.CreateTransaction(ctx, domain.TransactionInput{Name: "Tea", Amount: dec("3"), Type: domain.TransactionTypeWithdraw})
	require.NoError(t, err)
	remote.SetOffline(false)

	deletes := remote.Called("DeleteTransaction")
	_, err = s.DeleteTransaction(ctx, -1)
	require.NoError(t, err)
	assert.Equal(t, deletes, remote.Called("DeleteTransaction"))
	for _, tx := range store.Transactions() {
		assert.NotEqual(t, "Tea", tx.Name)
	}
}

func TestUpdateBudgetAmount_NoChange(t *testing.T) {
	s, remote, _ := newTestSyncer(t)
	seedLedger(remote)
	ctx := context.Background()
	_, err := s.Load(ctx, "2025-11", false)
	require.NoError(t, err)

	updates := remote.Called("UpdateMonthlyBudget")
	_, err = s.UpdateBudgetAmount(ctx, "2025-11", dec("1000.00"))
	assert.ErrorIs(t, err, domain.ErrNoChange)
	assert.Equal(t, KindStaleWriteIgnored, Classify(err))
	assert.Equal(t, updates, remote.Called("UpdateMonthlyBudget"))
}

func TestUpdateBudgetAmount_Validation(t *testing.T) {
	s, remote, _ := newTestSyncer(t)

	_, err := s.UpdateBudgetAmount(context.Background(), "2025-11", dec("-5"))
	assert.ErrorIs(t, err, domain.ErrNegativeBudget)
	_, err = s.UpdateBudgetAmount(context.Background(), "11-2025", dec("5"))
	assert.ErrorIs(t, err, domain.ErrInvalidMonthKey)
	assert.Empty(t, remote.Calls())
}

func TestUpdateBudgetAmount_OfflineIsReplayed(t *testing.T) {
	s, remote, store := newTestSyncer(t)
	seedLedger(remote)
	ctx := context.Background()
	_, err := s.Load(ctx, "2025-11", false)
	require.NoError(t, err)

	remote.SetOffline(true)
	result, err := s.UpdateBudgetAmount(ctx, "2025-11", dec("1100"))
	require.NoError(t, err)
	assert.Equal(t, StateDegradedFallback, result.State)
	assert.True(t, result.Summary.BudgetAmount.Equal(dec("1000")), result.Summary.BudgetAmount.String())
	assert.True(t, remote.Budgets["2025-11"].BudgetAmount.Equal(dec("1000")))

	var pending []pendingBudgetWrite
	require.NoError(t, store.Load(ctx, cache.PendingBudgetWrites, &pending))
	require.Len(t, pending, 1)

	remote.SetOffline(false)
	result, err = s.Load(ctx, "2025-11", true)
	require.NoError(t, err)
	assert.Equal(t, StateSuccess, result.State)
	assert.True(t, remote.Budgets["2025-11"].BudgetAmount.Equal(dec("1100")))
	assert.True(t, result.Summary.BudgetAmount.Equal(dec("1000")))

	pending = nil
	require.NoError(t, store.Load(ctx, cache.PendingBudgetWrites, &pending))
	assert.Empty(t, pending)
}

func TestToggleRollover(t *testing.T) {
	s, remote, store := newTestSyncer(t)
	seedLedger(remote)
	ctx := context.Background()
	_, err := s.Load(ctx, "2025-11", false)
	require.NoError(t, err)

	result, err := s.ToggleRollover(ctx, "2025-11", false)
	require.NoError(t, err)
	assert.False(t, remote.Budgets["2025-11"].RolloverEnabled)
	assert.False(t, result.Summary.RolloverEnabled)
	assert.True(t, result.Summary.BudgetAmount.Equal(dec("1000")))

	for _, b := range store.Budgets() {
		if b.MonthYear == "2025-11" {
			assert.False(t, b.RolloverEnabled)
		}
	}

	again, err := s.ToggleRollover(ctx, "2025-11", false)
	require.NoError(t, err)
	assert.Equal(t, result.Summary, again.Summary)
}

func TestToggleRollover_OptimisticWhenCacheFails(t *testing.T) {
	s, remote, store := newTestSyncer(t)
	seedLedger(remote)
	ctx := context.Background()
	_, err := s.Load(ctx, "2025-11", false)
	require.NoError(t, err)

	remote.SetOffline(true)
	store.SaveErr = domain.ErrCacheUnavailable
	store.LoadErr = domain.ErrCacheUnavailable

	result, err := s.ToggleRollover(ctx, "2025-11", false)
	require.NoError(t, err)
	assert.Equal(t, StateDegradedFallback, result.State)
	assert.Equal(t, NoticeOffline, result.Notice)
	assert.True(t, result.Summary.BudgetAmount.Equal(dec("1000")))
	assert.False(t, result.Summary.RolloverEnabled)
}

func TestUpdateDefaultBudget(t *testing.T) {
	s, remote, _ := newTestSyncer(t)
	ctx := context.Background()

	_, err := s.UpdateDefaultBudget(ctx, "12.345")
	assert.ErrorIs(t, err, domain.ErrInvalidPriceFormat)
	assert.Empty(t, remote.Calls())

	_, err = s.UpdateDefaultBudget(ctx, "1250.50")
	require.NoError(t, err)
	require.Contains(t, remote.Settings, domain.SettingDefaultBudgetAmount)
	assert.Equal(t, "1250.50", remote.Settings[domain.SettingDefaultBudgetAmount].Value)

	// the reload created the current month from the new default
	assert.True(t, remote.Budgets["2025-11"].BudgetAmount.Equal(dec("1250.50")))
}

func TestRegisterDevice(t *testing.T) {
	s, remote, _ := newTestSyncer(t)

	_, err := s.RegisterDevice(context.Background(), " ", "laptop")
	assert.ErrorIs(t, err, domain.ErrUsernameRequired)

	device, err := s.RegisterDevice(context.Background(), "alex", "laptop")
	require.NoError(t, err)
	assert.Equal(t, "device-1", device.DeviceID)
	assert.Equal(t, "alex", remote.Devices["device-1"].Username)

	remote.SetOffline(true)
	_, err = s.RegisterDevice(context.Background(), "alex", "laptop")
	assert.Equal(t, KindRemoteUnavailable, Classify(err))
}

func TestWatch_ReloadsOnEvents(t *testing.T) {
	s, remote, _ := newTestSyncer(t)
	seedLedger(remote)
	remote.Events = make(chan websocket.Event, 1)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	results := make(chan *LoadResult, 1)
	done := make(chan error, 1)
	go func() {
		done <- s.Watch(ctx, "2025-10", func(result *LoadResult, err error) {
			assert.NoError(t, err)
			results <- result
		})
	}()

	remote.Events <- websocket.TransactionCreated(map[string]int{"id": 9})

	select {
	case result := <-results:
		assert.Equal(t, "2025-10", result.Month)
		assert.Equal(t, StateSuccess, result.State)
	case <-time.After(2 * time.Second):
		t.Fatal("no reload after event")
	}

	close(remote.Events)
	select {
	case err := <-done:
		assert.ErrorIs(t, err, domain.ErrRemoteUnavailable)
	case <-time.After(2 * time.Second):
		t.Fatal("watch did not stop")
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		err  error
		want ErrorKind
	}{
		{nil, KindNone},
		{domain.ErrMonthlyBudgetNotFound, KindNotFound},
		{domain.ErrRemoteUnavailable, KindRemoteUnavailable},
		{context.DeadlineExceeded, KindRemoteUnavailable},
		{cache.ErrMiss, KindCacheUnavailable},
		{domain.ErrInvalidAmount, KindValidation},
		{domain.ErrNoChange, KindStaleWriteIgnored},
		{domain.ErrRolloverLocked, KindRolloverLocked},
		{domain.ErrForbidden, KindUnknown},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, Classify(tt.err), "%v", tt.err)
	}
}
