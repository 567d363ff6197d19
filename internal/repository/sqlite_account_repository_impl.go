package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jnst/trading-event-queue/internal/model"
)

// SQLiteAccountRepositoryImpl implements AccountRepository using SQLite.
type SQLiteAccountRepositoryImpl struct {
	db *sql.DB
}

// NewSQLiteAccountRepositoryImpl creates a new SQLite-backed AccountRepository.
func NewSQLiteAccountRepositoryImpl(db *sql.DB) AccountRepository {
	return &SQLiteAccountRepositoryImpl{db: db}
}

// GetByID retrieves an account and its owner.
func (r *SQLiteAccountRepositoryImpl) GetByID(ctx context.Context, id int64) (*model.Account, error) {
	var account model.Account
	err := r.db.QueryRowContext(ctx, `SELECT id, user_id FROM accounts WHERE id = ?`, id).
		Scan(&account.ID, &account.UserID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrAccountNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get account: %w", err)
	}

	return &account, nil
}

// Save inserts or updates an account owner.
func (r *SQLiteAccountRepositoryImpl) Save(ctx context.Context, account *model.Account) error {
	_, err := r.db.ExecContext(ctx, `
INSERT INTO accounts (id, user_id) VALUES (?, ?)
ON CONFLICT (id) DO UPDATE SET user_id = excluded.user_id`,
		account.ID, account.UserID,
	)
	if err != nil {
		return fmt.Errorf("failed to save account: %w", err)
	}

	return nil
}
