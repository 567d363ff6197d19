package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/jnst/trading-event-queue/internal/model"
)

// AccountRepositoryImpl implements AccountRepository using PostgreSQL.
type AccountRepositoryImpl struct {
	pool *pgxpool.Pool
}

// NewAccountRepositoryImpl creates a new AccountRepository implementation.
func NewAccountRepositoryImpl(pool *pgxpool.Pool) AccountRepository {
	return &AccountRepositoryImpl{pool: pool}
}

// GetByID retrieves an account and its owner.
func (r *AccountRepositoryImpl) GetByID(ctx context.Context, id int64) (*model.Account, error) {
	var account model.Account
	err := r.pool.QueryRow(ctx, `SELECT id, user_id FROM accounts WHERE id = $1`, id).
		Scan(&account.ID, &account.UserID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrAccountNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get account: %w", err)
	}

	return &account, nil
}

// Save inserts or updates an account owner.
func (r *AccountRepositoryImpl) Save(ctx context.Context, account *model.Account) error {
	_, err := r.pool.Exec(ctx, `
INSERT INTO accounts (id, user_id) VALUES ($1, $2)
ON CONFLICT (id) DO UPDATE SET user_id = EXCLUDED.user_id`,
		account.ID, account.UserID,
	)
	if err != nil {
		return fmt.Errorf("failed to save account: %w", err)
	}

	return nil
}
