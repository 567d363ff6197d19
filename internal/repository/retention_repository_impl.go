package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// RetentionRepositoryImpl implements RetentionRepository using PostgreSQL.
type RetentionRepositoryImpl struct {
	pool *pgxpool.Pool
}

// NewRetentionRepositoryImpl creates a new RetentionRepository implementation.
func NewRetentionRepositoryImpl(pool *pgxpool.Pool) RetentionRepository {
	return &RetentionRepositoryImpl{pool: pool}
}

// PurgeOlderThan deletes rows of collection created before cutoff.
func (r *RetentionRepositoryImpl) PurgeOlderThan(
	ctx context.Context, collection Collection, cutoff time.Time,
) (int64, error) {
	if !collection.validSibling() {
		return 0, fmt.Errorf("%w: %s", ErrUnknownCollection, collection)
	}

	// collection is one of a fixed set of identifiers, never caller input.
	tag, err := r.pool.Exec(ctx, `DELETE FROM `+string(collection)+` WHERE created_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to purge %s: %w", collection, err)
	}

	return tag.RowsAffected(), nil
}
