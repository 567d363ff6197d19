package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// SQLiteRetentionRepositoryImpl implements RetentionRepository using SQLite.
type SQLiteRetentionRepositoryImpl struct {
	db *sql.DB
}

// NewSQLiteRetentionRepositoryImpl creates a new SQLite-backed RetentionRepository.
func NewSQLiteRetentionRepositoryImpl(db *sql.DB) RetentionRepository {
	return &SQLiteRetentionRepositoryImpl{db: db}
}

// PurgeOlderThan deletes rows of collection created before cutoff.
func (r *SQLiteRetentionRepositoryImpl) PurgeOlderThan(
	ctx context.Context, collection Collection, cutoff time.Time,
) (int64, error) {
	if !collection.validSibling() {
		return 0, fmt.Errorf("%w: %s", ErrUnknownCollection, collection)
	}

	result, err := r.db.ExecContext(ctx, `DELETE FROM `+string(collection)+` WHERE created_at < ?`, toMicros(cutoff))
	if err != nil {
		return 0, fmt.Errorf("failed to purge %s: %w", collection, err)
	}

	return result.RowsAffected()
}
