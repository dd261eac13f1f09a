package syncer

import (
	"context"
	"errors"

	"github.com/kthezelais/budget-tracker/internal/cache"
	"github.com/kthezelais/budget-tracker/internal/domain"
	"github.com/shopspring/decimal"
)

// pendingBudgetWrite is a budget change the service has not acknowledged yet
type pendingBudgetWrite struct {
	Month           string           `json:"month_year"`
	BudgetAmount    *decimal.Decimal `json:"budget_amount,omitempty"`
	RolloverEnabled *bool            `json:"rollover_enabled,omitempty"`
}

// rejected reports whether the service refused a write for good, as opposed
// to being unreachable
func rejected(err error) bool {
	return errors.Is(err, domain.ErrInvalidInput) ||
		errors.Is(err, domain.ErrForbidden) ||
		errors.Is(err, domain.ErrAlreadyExists)
}

// pushBudgetWrite sends w to the service, creating the month from fallback
// when the service does not know it
func (s *Syncer) pushBudgetWrite(ctx context.Context, w pendingBudgetWrite, fallback decimal.Decimal) error {
	callCtx, cancel := s.remoteCtx(ctx)
	defer cancel()

	update := domain.MonthlyBudgetUpdate{BudgetAmount: w.BudgetAmount, RolloverEnabled: w.RolloverEnabled}
	_, err := s.remote.UpdateMonthlyBudget(callCtx, w.Month, update)
	if !errors.Is(err, domain.ErrNotFound) {
		return err
	}

	amount := fallback
	if w.BudgetAmount != nil {
		amount = *w.BudgetAmount
	}
	rollover := true
	if w.RolloverEnabled != nil {
		rollover = *w.RolloverEnabled
	}
	_, err = s.remote.CreateMonthlyBudget(callCtx, w.Month, amount, rollover)
	return err
}

func (s *Syncer) loadPending(ctx context.Context) ([]pendingBudgetWrite, error) {
	var pending []pendingBudgetWrite
	if err := s.cache.Load(ctx, cache.PendingBudgetWrites, &pending); err != nil && !errors.Is(err, cache.ErrMiss) {
		return nil, err
	}
	return pending, nil
}

// queueBudgetWrite merges w into the pending writes of its month
func (s *Syncer) queueBudgetWrite(ctx context.Context, w pendingBudgetWrite) {
	pending, err := s.loadPending(ctx)
	if err != nil {
		s.logger.Warn().Err(err).Msg("Pending budget writes unreadable, starting over")
		pending = nil
	}

	merged := false
	for i := range pending {
		if pending[i].Month != w.Month {
			continue
		}
		if w.BudgetAmount != nil {
			pending[i].BudgetAmount = w.BudgetAmount
		}
		if w.RolloverEnabled != nil {
			pending[i].RolloverEnabled = w.RolloverEnabled
		}
		merged = true
	}
	if !merged {
		pending = append(pending, w)
	}

	if err := s.cache.Save(ctx, cache.PendingBudgetWrites, pending); err != nil {
		s.logger.Error().Err(err).Str("month", w.Month).Msg("Failed to queue budget write")
	}
}

// replayPendingBudgetWrites pushes queued budget writes before anything is
// fetched, so local changes win over the service's copy. It stops at the
// first write the service cannot take right now.
func (s *Syncer) replayPendingBudgetWrites(ctx context.Context) error {
	pending, err := s.loadPending(ctx)
	if err != nil {
		s.logger.Warn().Err(err).Msg("Skipping unreadable pending budget writes")
		return nil
	}
	if len(pending) == 0 {
		return nil
	}

	fallback := s.defaultFromSettings(s.working(ctx).settings)
	for i, w := range pending {
		err := s.pushBudgetWrite(ctx, w, fallback)
		if err == nil {
			s.logger.Info().Str("month", w.Month).Msg("Replayed pending budget write")
			continue
		}
		if rejected(err) {
			s.logger.Warn().Err(err).Str("month", w.Month).Msg("Dropping budget write rejected by server")
			continue
		}
		if saveErr := s.cache.Save(ctx, cache.PendingBudgetWrites, pending[i:]); saveErr != nil {
			s.logger.Warn().Err(saveErr).Msg("Failed to update pending budget writes")
		}
		return err
	}

	if err := s.cache.Save(ctx, cache.PendingBudgetWrites, []pendingBudgetWrite{}); err != nil {
		s.logger.Warn().Err(err).Msg("Failed to clear pending budget writes")
	}
	return nil
}

// replayPendingTransactions creates remotely the transactions recorded while
// offline. They carry provisional negative ids until then.
func (s *Syncer) replayPendingTransactions(ctx context.Context) error {
	snap := s.working(ctx)

	var provisional []*domain.Transaction
	for _, t := range snap.transactions {
		if t != nil && t.ID < 0 {
			provisional = append(provisional, t)
		}
	}
	if len(provisional) == 0 {
		return nil
	}

	var replayErr error
	for _, t := range provisional {
		callCtx, cancel := s.remoteCtx(ctx)
		created, err := s.remote.CreateTransaction(callCtx, domain.TransactionInput{
			DeviceID:  t.DeviceID,
			Name:      t.Name,
			Amount:    t.Amount,
			Type:      t.Type,
			Timestamp: t.Timestamp,
		})
		cancel()

		if err != nil && !rejected(err) {
			replayErr = err
			break
		}
		if err != nil {
			s.logger.Warn().Err(err).Str("name", t.Name).Msg("Dropping offline transaction rejected by server")
			created = nil
		}
		snap.transactions = replaceTransaction(snap.transactions, t.ID, created)
	}

	if err := s.cache.Save(ctx, cache.Transactions, snap.transactions); err != nil {
		s.logger.Warn().Err(err).Msg("Failed to update offline cache")
	}
	s.data = snap
	return replayErr
}

// replaceTransaction returns txs with the transaction id replaced by t, or
// removed when t is nil
func replaceTransaction(txs []*domain.Transaction, id int32, t *domain.Transaction) []*domain.Transaction {
	result := make([]*domain.Transaction, 0, len(txs))
	for _, existing := range txs {
		if existing == nil {
			continue
		}
		if existing.ID == id {
			if t != nil {
				result = append(result, t)
			}
			continue
		}
		result = append(result, existing)
	}
	return result
}

func findTransaction(txs []*domain.Transaction, id int32) *domain.Transaction {
	for _, t := range txs {
		if t != nil && t.ID == id {
			return t
		}
	}
	return nil
}
