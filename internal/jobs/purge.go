package jobs

import (
	"context"
	"log/slog"
	"time"

	"github.com/jnst/trading-event-queue/internal/config"
	"github.com/jnst/trading-event-queue/internal/metrics"
	"github.com/jnst/trading-event-queue/internal/repository"
)

// PurgeJobs returns one retention job per collection. The events job deletes terminal
// events only.
func PurgeJobs(
	events repository.EventRepository,
	retention repository.RetentionRepository,
	windows config.Retention,
	interval time.Duration,
	logger *slog.Logger,
	now func() time.Time,
) []Job {
	purge := func(id string, collection repository.Collection, window time.Duration,
		del func(ctx context.Context, cutoff time.Time) (int64, error),
	) Job {
		return Job{
			ID:       id,
			Interval: interval,
			Run: func(ctx context.Context) error {
				cutoff := now().Add(-window)

				deleted, err := del(ctx, cutoff)
				if err != nil {
					return err
				}

				metrics.RowsPurged.WithLabelValues(string(collection)).Add(float64(deleted))
				logger.Info("purged expired rows",
					slog.String("collection", string(collection)),
					slog.Int64("deleted", deleted),
					slog.Time("cutoff", cutoff))

				return nil
			},
		}
	}

	sibling := func(c repository.Collection) func(context.Context, time.Time) (int64, error) {
		return func(ctx context.Context, cutoff time.Time) (int64, error) {
			return retention.PurgeOlderThan(ctx, c, cutoff)
		}
	}

	return []Job{
		purge(JobPurgeEvents, repository.CollectionEvents, windows.Events, events.PurgeTerminal),
		purge(JobPurgeLogs, repository.CollectionLogs, windows.Logs, sibling(repository.CollectionLogs)),
		purge(JobPurgeHeartbeats, repository.CollectionHeartbeats, windows.Heartbeats,
			sibling(repository.CollectionHeartbeats)),
		purge(JobPurgeAccountSnapshots, repository.CollectionAccountSnapshots, windows.AccountSnapshots,
			sibling(repository.CollectionAccountSnapshots)),
		purge(JobPurgeStrategySnapshots, repository.CollectionStrategySnapshots, windows.StrategySnapshots,
			sibling(repository.CollectionStrategySnapshots)),
	}
}
