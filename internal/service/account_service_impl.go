package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/jnst/trading-event-queue/internal/authz"
	"github.com/jnst/trading-event-queue/internal/model"
	"github.com/jnst/trading-event-queue/internal/repository"
)

// AccountServiceImpl implements AccountService.
type AccountServiceImpl struct {
	accountRepo repository.AccountRepository
	logger      *slog.Logger
}

// NewAccountServiceImpl creates a new AccountService implementation.
func NewAccountServiceImpl(accountRepo repository.AccountRepository, logger *slog.Logger) AccountService {
	return &AccountServiceImpl{accountRepo: accountRepo, logger: logger}
}

// Save upserts the account owner.
func (s *AccountServiceImpl) Save(
	ctx context.Context, principal *model.Principal, input *SaveAccountInput,
) (*model.Account, error) {
	if err := authz.Authorize(authz.OpAccountSave, principal, nil); err != nil {
		return nil, err
	}

	verr := &model.ValidationError{}
	if input.AccountID <= 0 {
		verr.Add("account_id", "A valid integer is required.")
	}
	userID := strings.TrimSpace(input.UserID)
	if userID == "" {
		verr.Add("user_id", "This field is required.")
	}
	if err := verr.Err(); err != nil {
		return nil, err
	}

	account := &model.Account{ID: input.AccountID, UserID: userID}
	if err := s.accountRepo.Save(ctx, account); err != nil {
		return nil, fmt.Errorf("failed to save account: %w", err)
	}

	s.logger.Info("account saved",
		slog.Int64("account_id", account.ID),
		slog.String("user_id", account.UserID))

	return account, nil
}
