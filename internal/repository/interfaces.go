// Package repository provides data access interfaces and implementations.
package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jnst/trading-event-queue/internal/model"
)

// ErrAccountNotFound is returned when an account id does not exist.
var ErrAccountNotFound = fmt.Errorf("%w: account", model.ErrNotFound)

// ErrUnknownCollection is returned when a purge names a table outside the retention set.
var ErrUnknownCollection = errors.New("unknown collection")

// Collection names a table covered by the retention purger.
type Collection string

// Purgeable collections. Events are purged through EventRepository.PurgeTerminal.
const (
	CollectionEvents            Collection = "events"
	CollectionLogs              Collection = "logs"
	CollectionHeartbeats        Collection = "heartbeats"
	CollectionAccountSnapshots  Collection = "account_snapshots"
	CollectionStrategySnapshots Collection = "strategy_snapshots"
)

func (c Collection) validSibling() bool {
	switch c {
	case CollectionLogs, CollectionHeartbeats, CollectionAccountSnapshots, CollectionStrategySnapshots:
		return true
	default:
		return false
	}
}

// EventRepository defines methods for event data access. Claim and Ack are single
// conditional writes: the status guard and the mutation happen atomically.
type EventRepository interface {
	Create(ctx context.Context, params *model.CreateEventParams) (*model.Event, error)
	GetByID(ctx context.Context, accountID int64, id string) (*model.Event, error)
	// ListPending returns claim candidates ordered by (created_at, id) ascending.
	ListPending(ctx context.Context, query *model.PendingQuery) ([]model.Position, error)
	// Claim moves a pending event to delivered. It returns model.ErrAlreadyClaimed when
	// the event is no longer pending.
	Claim(ctx context.Context, params *model.ClaimParams) (*model.Event, error)
	// Ack moves a delivered event of the account to processed. It returns
	// model.ErrEventNotDelivered when that precondition does not hold.
	Ack(ctx context.Context, params *model.AckParams) (*model.Event, error)
	// History returns up to query.Limit events ordered by (created_at, id) descending.
	History(ctx context.Context, query *model.HistoryQuery) ([]*model.Event, error)
	CountStuck(ctx context.Context, deliveredBefore time.Time) (int64, error)
	PurgeTerminal(ctx context.Context, createdBefore time.Time) (int64, error)
}

// AccountRepository defines the account lookups the queue needs. Save registers or
// re-owns an account mirrored from the account service.
type AccountRepository interface {
	GetByID(ctx context.Context, id int64) (*model.Account, error)
	Save(ctx context.Context, account *model.Account) error
}

// RetentionRepository deletes expired rows from the sibling collections.
type RetentionRepository interface {
	PurgeOlderThan(ctx context.Context, collection Collection, cutoff time.Time) (int64, error)
}
