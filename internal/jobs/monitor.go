package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jnst/trading-event-queue/internal/metrics"
	"github.com/jnst/trading-event-queue/internal/repository"
)

// StuckEventsCheck counts events delivered more than threshold ago and still not
// acknowledged. It only reports; nothing is returned to pending.
func StuckEventsCheck(
	events repository.EventRepository,
	threshold time.Duration,
	interval time.Duration,
	logger *slog.Logger,
	now func() time.Time,
) Job {
	return Job{
		ID:       JobStuckEvents,
		Interval: interval,
		Run: func(ctx context.Context) error {
			count, err := events.CountStuck(ctx, now().Add(-threshold))
			if err != nil {
				return fmt.Errorf("failed to count stuck events: %w", err)
			}

			metrics.StuckEvents.Set(float64(count))

			if count > 0 {
				logger.Warn("stuck events detected",
					slog.Int64("count", count),
					slog.Duration("threshold", threshold))
				return nil
			}

			logger.Info("no stuck events", slog.Duration("threshold", threshold))

			return nil
		},
	}
}
