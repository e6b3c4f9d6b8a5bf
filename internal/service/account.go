package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"investment-ledger/internal/model"
	"investment-ledger/internal/repository"
)

// AccountService handles registration and the read-only boundary queries.
// It never mutates balances; that is the ledger engine's job.
type AccountService struct {
	accounts     *repository.AccountRepository
	transactions *repository.TransactionRepository
	positions    *repository.PositionRepository
}

// NewAccountService creates a new AccountService instance.
func NewAccountService(
	accounts *repository.AccountRepository,
	transactions *repository.TransactionRepository,
	positions *repository.PositionRepository,
) *AccountService {
	return &AccountService{
		accounts:     accounts,
		transactions: transactions,
		positions:    positions,
	}
}

// Register ensures an account exists, creating it with zero balances if
// necessary. A self-referencing sponsor is dropped at the door. Returns the
// account and whether it was newly created.
func (s *AccountService) Register(ctx context.Context, userID, referrerID string) (*model.Account, bool, error) {
	if userID == "" {
		return nil, false, ErrAccountNotFound
	}
	if referrerID == userID {
		referrerID = ""
	}

	account, created, err := s.accounts.GetOrCreate(ctx, userID, referrerID)
	if err != nil {
		return nil, false, fmt.Errorf("failed to register account: %w", err)
	}
	return account, created, nil
}

// GetAccount retrieves an account by user ID.
func (s *AccountService) GetAccount(ctx context.Context, userID string) (*model.Account, error) {
	account, err := s.accounts.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrAccountNotFound) {
			return nil, ErrAccountNotFound
		}
		return nil, err
	}
	return account, nil
}

// GetTransactions retrieves a user's transaction history, newest first.
func (s *AccountService) GetTransactions(ctx context.Context, userID string, limit int) ([]*model.LedgerTransaction, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	return s.transactions.ListByUserID(ctx, userID, limit)
}

// GetPositions retrieves a user's positions, newest first.
func (s *AccountService) GetPositions(ctx context.Context, userID string, limit int) ([]*model.Position, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	return s.positions.ListByUserID(ctx, userID, limit)
}

// SetStatus blocks or unblocks an account. Admin-only; a blocked account
// cannot request deposits or withdrawals and earns no referral bonuses.
func (s *AccountService) SetStatus(ctx context.Context, userID, status string) error {
	if err := s.accounts.SetStatus(ctx, userID, status); err != nil {
		if errors.Is(err, repository.ErrAccountNotFound) {
			return ErrAccountNotFound
		}
		return err
	}
	return nil
}

// GetReferralEarnings summarizes an account's referral income and direct
// downline size.
func (s *AccountService) GetReferralEarnings(ctx context.Context, userID string) (*model.ReferralEarnings, error) {
	earnings, err := s.accounts.ReferralEarnings(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrAccountNotFound) {
			return nil, ErrAccountNotFound
		}
		return nil, err
	}
	return earnings, nil
}

// GetEarningsSince sums a user's credited earnings (accrual, referral,
// rewards) since the given time.
func (s *AccountService) GetEarningsSince(ctx context.Context, userID string, since time.Time) (decimal.Decimal, error) {
	types := []string{model.TxTypeProfit, model.TxTypeReferral, model.TxTypeAchievement, model.TxTypeTeamReward}
	return s.transactions.SumAmountByTypes(ctx, userID, types, since)
}
