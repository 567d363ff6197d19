package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/jnst/trading-event-queue/internal/config"
)

// Stores bundles the repositories of one backend.
type Stores struct {
	Events    EventRepository
	Accounts  AccountRepository
	Retention RetentionRepository

	close func()
}

// Close releases the underlying connections.
func (s *Stores) Close() {
	if s.close != nil {
		s.close()
	}
}

// Open connects to the backend selected by cfg.StoreDriver and applies its schema.
func Open(ctx context.Context, cfg *config.Config) (*Stores, error) {
	switch cfg.StoreDriver {
	case config.DriverPostgres:
		pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		if err := MigratePostgres(ctx, pool); err != nil {
			pool.Close()
			return nil, err
		}

		return &Stores{
			Events:    NewEventRepositoryImpl(pool),
			Accounts:  NewAccountRepositoryImpl(pool),
			Retention: NewRetentionRepositoryImpl(pool),
			close:     pool.Close,
		}, nil
	case config.DriverSQLite:
		db, err := OpenSQLite(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, err
		}

		return &Stores{
			Events:    NewSQLiteEventRepositoryImpl(db),
			Accounts:  NewSQLiteAccountRepositoryImpl(db),
			Retention: NewSQLiteRetentionRepositoryImpl(db),
			close:     func() { _ = db.Close() },
		}, nil
	default:
		return nil, fmt.Errorf("%w: %s", config.ErrUnknownDriver, cfg.StoreDriver)
	}
}
