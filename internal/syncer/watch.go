package syncer

import (
	"context"
	"fmt"

	"github.com/kthezelais/budget-tracker/internal/domain"
)

// Watch reloads month silently on every change published by the service and
// hands each result to onResult. An empty month follows the current month.
// It returns when ctx is done or the change feed closes.
func (s *Syncer) Watch(ctx context.Context, month string, onResult func(*LoadResult, error)) error {
	events, err := s.remote.Subscribe(ctx)
	if err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-events:
			if !ok {
				return fmt.Errorf("%w: change feed closed", domain.ErrRemoteUnavailable)
			}

			target := month
			if target == "" {
				s.mu.Lock()
				target = s.currentMonth(ctx)
				s.mu.Unlock()
			}

			s.logger.Debug().Str("event", event.Type).Str("month", target).Msg("Change received")
			result, err := s.Load(ctx, target, true)
			if onResult != nil {
				onResult(result, err)
			}
		}
	}
}
