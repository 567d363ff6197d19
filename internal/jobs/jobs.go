// Package jobs runs the queue's periodic maintenance: the stuck-event monitor and the
// retention purgers.
package jobs

import (
	"context"
	"time"
)

// Job IDs.
const (
	JobStuckEvents            = "stuck_events_check"
	JobPurgeEvents            = "purge_events"
	JobPurgeLogs              = "purge_logs"
	JobPurgeHeartbeats        = "purge_heartbeats"
	JobPurgeAccountSnapshots  = "purge_account_snapshots"
	JobPurgeStrategySnapshots = "purge_strategy_snapshots"
)

// Job is a named unit of periodic work.
type Job struct {
	ID       string
	Interval time.Duration
	Run      func(ctx context.Context) error
}
