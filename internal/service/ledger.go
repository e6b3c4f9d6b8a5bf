package service

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sort"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"investment-ledger/internal/metrics"
	"investment-ledger/internal/model"
	"investment-ledger/internal/repository"
)

// defaultCommitAttempts bounds the transparent retry of commits invalidated
// by a concurrent writer.
const defaultCommitAttempts = 3

// SettlementOutcome is the result of applying an externally-approved
// transaction.
type SettlementOutcome string

const (
	SettlementApplied SettlementOutcome = "applied"
	SettlementSkipped SettlementOutcome = "skipped"
)

// RewardOutcome is the result of a reward claim.
type RewardOutcome string

const (
	RewardApplied        RewardOutcome = "applied"
	RewardAlreadyClaimed RewardOutcome = "already_claimed"
)

// LedgerService is the transactional core: every balance mutation runs
// through one of its operations, as a single atomic database transaction
// correlated with exactly one audit record per affected account.
type LedgerService struct {
	pool           *pgxpool.Pool
	accounts       *repository.AccountRepository
	plans          *repository.PlanRepository
	positions      *repository.PositionRepository
	transactions   *repository.TransactionRepository
	rewards        *repository.RewardRepository
	referral       *ReferralService
	commitAttempts int
}

// NewLedgerService creates a new LedgerService instance.
func NewLedgerService(
	pool *pgxpool.Pool,
	accounts *repository.AccountRepository,
	plans *repository.PlanRepository,
	positions *repository.PositionRepository,
	transactions *repository.TransactionRepository,
	rewards *repository.RewardRepository,
	referral *ReferralService,
	commitAttempts int,
) *LedgerService {
	if commitAttempts <= 0 {
		commitAttempts = defaultCommitAttempts
	}
	return &LedgerService{
		pool:           pool,
		accounts:       accounts,
		plans:          plans,
		positions:      positions,
		transactions:   transactions,
		rewards:        rewards,
		referral:       referral,
		commitAttempts: commitAttempts,
	}
}

// purchaseFigures holds the amounts fixed at purchase time.
type purchaseFigures struct {
	Bonus       decimal.Decimal // sponsor's direct-profit credit
	ROIAmount   decimal.Decimal // daily accrual amount
	TotalPayout decimal.Decimal // lifetime payout cap
}

var oneHundred = decimal.NewFromInt(100)

// computePurchaseFigures derives the purchase-time amounts from the plan's
// percentage rates.
func computePurchaseFigures(amount decimal.Decimal, plan *model.Plan) purchaseFigures {
	return purchaseFigures{
		Bonus:       amount.Mul(plan.DirectProfitPercent).Div(oneHundred),
		ROIAmount:   amount.Mul(plan.DailyPercentage).Div(oneHundred),
		TotalPayout: amount.Mul(plan.TotalPayoutPercent).Div(oneHundred),
	}
}

// Purchase executes a plan purchase: debit the buyer, credit the sponsor's
// direct profit if eligible, create the position and the audit records - all
// in one atomic commit. Returns the new position ID.
//
// Concurrent purchases touching the same buyer or the same sponsor serialize
// on the locked account rows; an invalidated commit is retried transparently
// a bounded number of times.
func (s *LedgerService) Purchase(ctx context.Context, userID, planID string, amount decimal.Decimal) (string, error) {
	if userID == "" {
		return "", ErrAccountNotFound
	}
	if planID == "" {
		return "", ErrPlanNotFound
	}
	if amount.LessThanOrEqual(decimal.Zero) {
		return "", ErrInvalidAmount
	}

	// Sponsor resolution is a query, so it runs before the atomic scope.
	// Eligibility is re-validated on the locked row inside the transaction.
	sponsor, err := s.referral.ResolveSponsor(ctx, userID)
	if err != nil {
		return "", err
	}

	var positionID string
	err = s.inTx(ctx, func(tx pgx.Tx) error {
		accounts := s.accounts.WithTx(tx)

		// Lock buyer and sponsor in sorted order to avoid lock cycles with
		// a concurrent purchase locking the same pair in reverse.
		lockIDs := []string{userID}
		if sponsor != nil && sponsor.UserID != userID {
			lockIDs = append(lockIDs, sponsor.UserID)
		}
		sort.Strings(lockIDs)

		locked := make(map[string]*model.Account, len(lockIDs))
		for _, id := range lockIDs {
			account, err := accounts.GetForUpdate(ctx, id)
			if err != nil {
				if errors.Is(err, repository.ErrAccountNotFound) && id != userID {
					continue // sponsor vanished: skip the bonus, not the purchase
				}
				if errors.Is(err, repository.ErrAccountNotFound) {
					return ErrAccountNotFound
				}
				return err
			}
			locked[id] = account
		}

		buyer := locked[userID]
		if buyer == nil {
			return ErrAccountNotFound
		}

		// Re-read the plan inside the transaction.
		plan, err := s.plans.WithTx(tx).GetByID(ctx, planID)
		if err != nil {
			if errors.Is(err, repository.ErrPlanNotFound) {
				return ErrPlanNotFound
			}
			return err
		}

		if amount.LessThan(plan.MinAmount) {
			return ErrMinimumNotMet
		}
		if plan.MaxAmount != nil && amount.GreaterThan(*plan.MaxAmount) {
			return ErrMaximumExceeded
		}

		if buyer.CurrentBalance.LessThan(amount) || buyer.RemainingBalance.LessThan(amount) {
			return ErrInsufficientBalance
		}

		// Sponsor eligibility on the locked row. An ineligible or missing
		// sponsor silently skips the bonus; it is not an error.
		var eligibleSponsor *model.Account
		if sponsor != nil {
			if current := locked[sponsor.UserID]; current != nil && current.IsActive() {
				eligibleSponsor = current
			}
		}

		figures := computePurchaseFigures(amount, plan)

		if _, err := accounts.Debit(ctx, userID, amount); err != nil {
			return err
		}

		referrerID := ""
		if sponsor != nil {
			referrerID = sponsor.UserID
		}

		position, err := s.positions.WithTx(tx).Create(ctx, repository.CreatePositionParams{
			UserID:            userID,
			PlanID:            planID,
			Principal:         amount,
			ROIPercent:        plan.DailyPercentage,
			ROIAmount:         figures.ROIAmount,
			TotalPayoutAmount: figures.TotalPayout,
			ReferrerID:        referrerID,
			ReferralPaid:      eligibleSponsor != nil && figures.Bonus.IsPositive(),
		})
		if err != nil {
			return err
		}
		positionID = position.ID

		transactions := s.transactions.WithTx(tx)
		purchaseDesc := fmt.Sprintf("purchase of plan %s", plan.Name)
		if _, err := transactions.Create(ctx, repository.CreateTransactionParams{
			UserID:         userID,
			Amount:         amount,
			Type:           model.TxTypePurchase,
			Status:         model.TxStatusApproved,
			BalanceUpdated: true,
			Description:    &purchaseDesc,
		}); err != nil {
			return err
		}

		if eligibleSponsor != nil && figures.Bonus.IsPositive() {
			if _, err := accounts.CreditReferral(ctx, eligibleSponsor.UserID, figures.Bonus); err != nil {
				return err
			}
			bonusDesc := fmt.Sprintf("direct profit from %s buying plan %s", userID, plan.Name)
			if _, err := transactions.Create(ctx, repository.CreateTransactionParams{
				UserID:         eligibleSponsor.UserID,
				Amount:         figures.Bonus,
				Type:           model.TxTypeReferral,
				Status:         model.TxStatusApproved,
				BalanceUpdated: true,
				Description:    &bonusDesc,
			}); err != nil {
				return err
			}
		}

		return nil
	})
	if err != nil {
		metrics.Purchases.WithLabelValues("failed").Inc()
		return "", err
	}

	metrics.Purchases.WithLabelValues("ok").Inc()
	log.Info().
		Str("user_id", userID).
		Str("plan_id", planID).
		Str("position_id", positionID).
		Str("amount", amount.String()).
		Msg("Purchase committed")
	return positionID, nil
}

// RequestDeposit creates a pending deposit record. No balance effect occurs
// until an admin approves it and the settlement applies.
func (s *LedgerService) RequestDeposit(ctx context.Context, userID string, amount decimal.Decimal, address string) (string, error) {
	if amount.LessThanOrEqual(decimal.Zero) {
		return "", ErrInvalidAmount
	}

	account, err := s.accounts.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrAccountNotFound) {
			return "", ErrAccountNotFound
		}
		return "", err
	}
	if !account.IsActive() {
		return "", ErrAccountBlocked
	}

	tx, err := s.transactions.Create(ctx, repository.CreateTransactionParams{
		UserID:  userID,
		Amount:  amount,
		Type:    model.TxTypeDeposit,
		Status:  model.TxStatusPending,
		Address: address,
	})
	if err != nil {
		return "", err
	}

	log.Info().Str("user_id", userID).Str("transaction_id", tx.ID).Msg("Deposit requested")
	return tx.ID, nil
}

// RequestWithdrawal reserves a withdrawal: both balances are debited
// immediately and a pending withdraw record is created in the same commit.
// Rejection later refunds the reservation; approval settles with no further
// balance change.
func (s *LedgerService) RequestWithdrawal(ctx context.Context, userID string, amount decimal.Decimal, address string) (string, error) {
	if amount.LessThanOrEqual(decimal.Zero) {
		return "", ErrInvalidAmount
	}
	if strings.TrimSpace(address) == "" {
		return "", ErrBlankAddress
	}

	var txID string
	err := s.inTx(ctx, func(tx pgx.Tx) error {
		accounts := s.accounts.WithTx(tx)

		account, err := accounts.GetForUpdate(ctx, userID)
		if err != nil {
			if errors.Is(err, repository.ErrAccountNotFound) {
				return ErrAccountNotFound
			}
			return err
		}
		if !account.IsActive() {
			return ErrAccountBlocked
		}
		if account.CurrentBalance.LessThan(amount) || account.RemainingBalance.LessThan(amount) {
			return ErrInsufficientBalance
		}

		if _, err := accounts.Debit(ctx, userID, amount); err != nil {
			return err
		}

		created, err := s.transactions.WithTx(tx).Create(ctx, repository.CreateTransactionParams{
			UserID:  userID,
			Amount:  amount,
			Type:    model.TxTypeWithdraw,
			Status:  model.TxStatusPending,
			Address: address,
		})
		if err != nil {
			return err
		}
		txID = created.ID
		return nil
	})
	if err != nil {
		metrics.Withdrawals.WithLabelValues("failed").Inc()
		return "", err
	}

	metrics.Withdrawals.WithLabelValues("reserved").Inc()
	// Admin notification is a collaborator concern; the engine only logs.
	log.Info().
		Str("user_id", userID).
		Str("transaction_id", txID).
		Str("amount", amount.String()).
		Msg("Withdrawal reserved, awaiting review")
	return txID, nil
}

// ApplySettlement applies an externally-approved deposit or withdrawal to
// the owning account exactly once. The balance_updated guard is checked and
// set inside the same atomic scope, so concurrent deliveries of the same
// notification produce at most one balance effect.
func (s *LedgerService) ApplySettlement(ctx context.Context, transactionID string) (SettlementOutcome, error) {
	// Fast path only; the authoritative guard is inside the transaction.
	existing, err := s.transactions.GetByID(ctx, transactionID)
	if err != nil {
		if errors.Is(err, repository.ErrTransactionNotFound) {
			return "", ErrTransactionNotFound
		}
		return "", err
	}
	if existing.BalanceUpdated {
		return SettlementSkipped, nil
	}

	outcome := SettlementSkipped
	err = s.inTx(ctx, func(tx pgx.Tx) error {
		outcome = SettlementSkipped

		transactions := s.transactions.WithTx(tx)
		record, err := transactions.GetForUpdate(ctx, transactionID)
		if err != nil {
			if errors.Is(err, repository.ErrTransactionNotFound) {
				return ErrTransactionNotFound
			}
			return err
		}
		if record.BalanceUpdated {
			return nil // a concurrent settlement won
		}

		accounts := s.accounts.WithTx(tx)
		if _, err := accounts.GetForUpdate(ctx, record.UserID); err != nil {
			if errors.Is(err, repository.ErrAccountNotFound) {
				return ErrAccountNotFound
			}
			return err
		}

		status := record.Status
		switch record.Type {
		case model.TxTypeDeposit:
			if _, err := accounts.CreditDeposit(ctx, record.UserID, record.Amount); err != nil {
				return err
			}
			status = model.TxStatusApproved
			outcome = SettlementApplied
		case model.TxTypeWithdraw:
			// The amount was reserved at request time: rejection refunds it,
			// approval stands with no further balance change.
			if record.Status == model.TxStatusRejected {
				if _, err := accounts.Refund(ctx, record.UserID, record.Amount); err != nil {
					return err
				}
			}
			outcome = SettlementApplied
		default:
			// Engine-created types are settled at creation; nothing to apply.
		}

		marked, err := transactions.MarkBalanceUpdated(ctx, transactionID, status)
		if err != nil {
			return err
		}
		if !marked {
			outcome = SettlementSkipped
		}
		return nil
	})
	if err != nil {
		metrics.Settlements.WithLabelValues("failed").Inc()
		return "", err
	}

	metrics.Settlements.WithLabelValues(string(outcome)).Inc()
	if outcome == SettlementApplied {
		log.Info().Str("transaction_id", transactionID).Msg("Settlement applied")
	}
	return outcome, nil
}

// ReviewTransaction moves a pending deposit/withdraw to approved or
// rejected. The status update fires the settlement notification trigger; the
// balance effect itself is applied by ApplySettlement.
func (s *LedgerService) ReviewTransaction(ctx context.Context, transactionID string, approve bool) error {
	record, err := s.transactions.GetByID(ctx, transactionID)
	if err != nil {
		if errors.Is(err, repository.ErrTransactionNotFound) {
			return ErrTransactionNotFound
		}
		return err
	}
	if record.Status != model.TxStatusPending {
		return ErrNotReviewable
	}

	status := model.TxStatusRejected
	if approve {
		status = model.TxStatusApproved
	}

	updated, err := s.transactions.SetStatus(ctx, transactionID, status)
	if err != nil {
		return err
	}
	if !updated {
		return ErrNotReviewable
	}

	log.Info().Str("transaction_id", transactionID).Str("status", status).Msg("Transaction reviewed")
	return nil
}

// CreditReward pays a one-off reward exactly once per (user, rewardKey). The
// existence check runs inside the same atomic scope as the credit: a second
// claim loses on the claimed_rewards primary key and commits nothing.
func (s *LedgerService) CreditReward(ctx context.Context, userID, rewardKey string, amount decimal.Decimal, rewardType string) (RewardOutcome, error) {
	if amount.LessThanOrEqual(decimal.Zero) {
		return "", ErrInvalidAmount
	}
	if rewardType != model.TxTypeTeamReward {
		rewardType = model.TxTypeAchievement
	}

	// Fast path only; the claim inside the transaction is authoritative.
	claimed, err := s.rewards.IsClaimed(ctx, userID, rewardKey)
	if err != nil {
		return "", err
	}
	if claimed {
		return RewardAlreadyClaimed, nil
	}

	err = s.inTx(ctx, func(tx pgx.Tx) error {
		accounts := s.accounts.WithTx(tx)
		if _, err := accounts.GetForUpdate(ctx, userID); err != nil {
			if errors.Is(err, repository.ErrAccountNotFound) {
				return ErrAccountNotFound
			}
			return err
		}

		if err := s.rewards.WithTx(tx).Claim(ctx, userID, rewardKey); err != nil {
			return err
		}

		if _, err := accounts.CreditReward(ctx, userID, amount, rewardType == model.TxTypeTeamReward); err != nil {
			return err
		}

		desc := fmt.Sprintf("reward %s", rewardKey)
		_, err := s.transactions.WithTx(tx).Create(ctx, repository.CreateTransactionParams{
			UserID:         userID,
			Amount:         amount,
			Type:           rewardType,
			Status:         model.TxStatusCollected,
			BalanceUpdated: true,
			Description:    &desc,
		})
		return err
	})
	if err != nil {
		if errors.Is(err, repository.ErrRewardClaimed) {
			return RewardAlreadyClaimed, nil
		}
		metrics.Rewards.WithLabelValues("failed").Inc()
		return "", err
	}

	metrics.Rewards.WithLabelValues("applied").Inc()
	log.Info().Str("user_id", userID).Str("reward_key", rewardKey).Msg("Reward credited")
	return RewardApplied, nil
}

// inTx runs fn inside a database transaction, retrying commits invalidated
// by a concurrent writer up to the configured attempt bound.
func (s *LedgerService) inTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	var err error
	for attempt := 1; ; attempt++ {
		err = s.runTx(ctx, fn)
		if err == nil || !isCommitConflict(err) || attempt >= s.commitAttempts {
			return err
		}

		log.Warn().Int("attempt", attempt).Err(err).Msg("Commit conflict, retrying")
		backoff := time.Duration(attempt)*10*time.Millisecond +
			time.Duration(rand.Intn(10))*time.Millisecond
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
	}
}

func (s *LedgerService) runTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // rollback after commit is a no-op

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// isCommitConflict reports whether the error is a serialization failure or
// deadlock, i.e. the read set was invalidated between read and commit.
func isCommitConflict(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	return pgErr.Code == "40001" || pgErr.Code == "40P01"
}
