package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"investment-ledger/internal/model"
)

// accountColumns is the select list shared by every account query.
const accountColumns = `user_id, referrer_id, status, total_deposit, remaining_balance,
	current_balance, referral_profit, team_profit, total_earned, created_at, updated_at`

// AccountRepository handles account data persistence.
type AccountRepository struct {
	db DB
}

// NewAccountRepository creates a new AccountRepository instance.
func NewAccountRepository(db DB) *AccountRepository {
	return &AccountRepository{db: db}
}

// WithTx returns a copy of the repository bound to the given transaction.
func (r *AccountRepository) WithTx(tx pgx.Tx) *AccountRepository {
	return &AccountRepository{db: tx}
}

func scanAccount(row pgx.Row) (*model.Account, error) {
	var a model.Account
	err := row.Scan(
		&a.UserID,
		&a.ReferrerID,
		&a.Status,
		&a.TotalDeposit,
		&a.RemainingBalance,
		&a.CurrentBalance,
		&a.ReferralProfit,
		&a.TeamProfit,
		&a.TotalEarned,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAccountNotFound
		}
		return nil, err
	}
	return &a, nil
}

// Create creates a new account with zero balances.
func (r *AccountRepository) Create(ctx context.Context, userID, referrerID string) (*model.Account, error) {
	const query = `
		INSERT INTO accounts (user_id, referrer_id, status, created_at, updated_at)
		VALUES ($1, $2, 'active', NOW(), NOW())
		RETURNING ` + accountColumns

	account, err := scanAccount(r.db.QueryRow(ctx, query, userID, referrerID))
	if err != nil {
		return nil, fmt.Errorf("failed to create account: %w", err)
	}
	return account, nil
}

// GetByID retrieves an account by user ID.
// Returns ErrAccountNotFound if the account does not exist.
func (r *AccountRepository) GetByID(ctx context.Context, userID string) (*model.Account, error) {
	const query = `SELECT ` + accountColumns + ` FROM accounts WHERE user_id = $1`

	account, err := scanAccount(r.db.QueryRow(ctx, query, userID))
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to get account: %w", err)
	}
	return account, nil
}

// GetForUpdate retrieves an account with a row lock. Must run inside a
// transaction; concurrent mutations of the same account serialize here.
func (r *AccountRepository) GetForUpdate(ctx context.Context, userID string) (*model.Account, error) {
	const query = `SELECT ` + accountColumns + ` FROM accounts WHERE user_id = $1 FOR UPDATE`

	account, err := scanAccount(r.db.QueryRow(ctx, query, userID))
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to lock account: %w", err)
	}
	return account, nil
}

// GetOrCreate retrieves an account, creating it with zero balances if absent.
func (r *AccountRepository) GetOrCreate(ctx context.Context, userID, referrerID string) (*model.Account, bool, error) {
	account, err := r.GetByID(ctx, userID)
	if err == nil {
		return account, false, nil
	}
	if !errors.Is(err, ErrAccountNotFound) {
		return nil, false, err
	}

	account, err = r.Create(ctx, userID, referrerID)
	if err != nil {
		// Race with a concurrent registration: fall back to the winner's row.
		if isUniqueViolation(err) {
			account, err = r.GetByID(ctx, userID)
			if err != nil {
				return nil, false, err
			}
			return account, false, nil
		}
		return nil, false, err
	}

	return account, true, nil
}

// Debit decreases both current_balance and remaining_balance by amount.
// The CHECK constraints reject a debit that would drive either negative.
func (r *AccountRepository) Debit(ctx context.Context, userID string, amount decimal.Decimal) (*model.Account, error) {
	const query = `
		UPDATE accounts
		SET current_balance = current_balance - $2,
			remaining_balance = remaining_balance - $2,
			updated_at = NOW()
		WHERE user_id = $1
		RETURNING ` + accountColumns

	account, err := scanAccount(r.db.QueryRow(ctx, query, userID, amount))
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to debit account: %w", err)
	}
	return account, nil
}

// CreditReferral applies a sponsor's direct-profit bonus: referral_profit,
// total_earned and both balances all increase by the bonus.
func (r *AccountRepository) CreditReferral(ctx context.Context, userID string, bonus decimal.Decimal) (*model.Account, error) {
	const query = `
		UPDATE accounts
		SET current_balance = current_balance + $2,
			remaining_balance = remaining_balance + $2,
			referral_profit = referral_profit + $2,
			total_earned = total_earned + $2,
			updated_at = NOW()
		WHERE user_id = $1
		RETURNING ` + accountColumns

	account, err := scanAccount(r.db.QueryRow(ctx, query, userID, bonus))
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to credit referral bonus: %w", err)
	}
	return account, nil
}

// CreditDeposit applies an approved deposit: both balances and total_deposit
// increase by amount.
func (r *AccountRepository) CreditDeposit(ctx context.Context, userID string, amount decimal.Decimal) (*model.Account, error) {
	const query = `
		UPDATE accounts
		SET current_balance = current_balance + $2,
			remaining_balance = remaining_balance + $2,
			total_deposit = total_deposit + $2,
			updated_at = NOW()
		WHERE user_id = $1
		RETURNING ` + accountColumns

	account, err := scanAccount(r.db.QueryRow(ctx, query, userID, amount))
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to credit deposit: %w", err)
	}
	return account, nil
}

// Refund returns a reserved withdrawal amount to both balances.
func (r *AccountRepository) Refund(ctx context.Context, userID string, amount decimal.Decimal) (*model.Account, error) {
	const query = `
		UPDATE accounts
		SET current_balance = current_balance + $2,
			remaining_balance = remaining_balance + $2,
			updated_at = NOW()
		WHERE user_id = $1
		RETURNING ` + accountColumns

	account, err := scanAccount(r.db.QueryRow(ctx, query, userID, amount))
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to refund account: %w", err)
	}
	return account, nil
}

// CreditReward applies a claimed reward to current_balance and total_earned.
// Team rewards additionally accrue into team_profit.
func (r *AccountRepository) CreditReward(ctx context.Context, userID string, amount decimal.Decimal, team bool) (*model.Account, error) {
	const query = `
		UPDATE accounts
		SET current_balance = current_balance + $2,
			total_earned = total_earned + $2,
			team_profit = team_profit + CASE WHEN $3 THEN $2 ELSE 0 END,
			updated_at = NOW()
		WHERE user_id = $1
		RETURNING ` + accountColumns

	account, err := scanAccount(r.db.QueryRow(ctx, query, userID, amount, team))
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to credit reward: %w", err)
	}
	return account, nil
}

// CreditProfit applies a daily accrual credit to both balances and
// total_earned.
func (r *AccountRepository) CreditProfit(ctx context.Context, userID string, amount decimal.Decimal) (*model.Account, error) {
	const query = `
		UPDATE accounts
		SET current_balance = current_balance + $2,
			remaining_balance = remaining_balance + $2,
			total_earned = total_earned + $2,
			updated_at = NOW()
		WHERE user_id = $1
		RETURNING ` + accountColumns

	account, err := scanAccount(r.db.QueryRow(ctx, query, userID, amount))
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to credit profit: %w", err)
	}
	return account, nil
}

// SetStatus sets an account's status (active/blocked).
func (r *AccountRepository) SetStatus(ctx context.Context, userID, status string) error {
	const query = `UPDATE accounts SET status = $2, updated_at = NOW() WHERE user_id = $1`

	result, err := r.db.Exec(ctx, query, userID, status)
	if err != nil {
		return fmt.Errorf("failed to set account status: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrAccountNotFound
	}
	return nil
}

// ReferralEarnings summarizes an account's referral income and the size of
// its direct downline.
func (r *AccountRepository) ReferralEarnings(ctx context.Context, userID string) (*model.ReferralEarnings, error) {
	const query = `
		SELECT a.user_id, a.referral_profit, a.team_profit,
			(SELECT COUNT(*) FROM accounts d WHERE d.referrer_id = a.user_id) AS direct_count
		FROM accounts a
		WHERE a.user_id = $1
	`

	var e model.ReferralEarnings
	err := r.db.QueryRow(ctx, query, userID).Scan(&e.UserID, &e.ReferralProfit, &e.TeamProfit, &e.DirectCount)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAccountNotFound
		}
		return nil, fmt.Errorf("failed to get referral earnings: %w", err)
	}
	return &e, nil
}
