// Package model defines the data models for the investment ledger.
package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Account represents a user's financial record: balances, earnings and the
// sponsor edge. One row per user, created at registration, never deleted.
type Account struct {
	UserID           string          `db:"user_id"`
	ReferrerID       string          `db:"referrer_id"`
	Status           string          `db:"status"`
	TotalDeposit     decimal.Decimal `db:"total_deposit"`
	RemainingBalance decimal.Decimal `db:"remaining_balance"`
	CurrentBalance   decimal.Decimal `db:"current_balance"`
	ReferralProfit   decimal.Decimal `db:"referral_profit"`
	TeamProfit       decimal.Decimal `db:"team_profit"`
	TotalEarned      decimal.Decimal `db:"total_earned"`
	CreatedAt        time.Time       `db:"created_at"`
	UpdatedAt        time.Time       `db:"updated_at"`
}

// Account statuses.
const (
	AccountStatusActive  = "active"
	AccountStatusBlocked = "blocked"
)

// IsActive reports whether the account may receive referral bonuses
// and initiate withdrawals.
func (a *Account) IsActive() bool {
	return a.Status == AccountStatusActive
}

// Plan is a catalog product defining investment limits and payout rates.
// Immutable from the engine's point of view.
type Plan struct {
	ID                  string           `db:"id"`
	Name                string           `db:"name"`
	MinAmount           decimal.Decimal  `db:"min_amount"`
	MaxAmount           *decimal.Decimal `db:"max_amount"`
	DailyPercentage     decimal.Decimal  `db:"daily_percentage"`
	DirectProfitPercent decimal.Decimal  `db:"direct_profit_percent"`
	TotalPayoutPercent  decimal.Decimal  `db:"total_payout_percent"`
	Active              bool             `db:"active"`
	CreatedAt           time.Time        `db:"created_at"`
}

// Position is a user's purchased stake in a plan. Created atomically with the
// purchase transaction; total_accumulated is advanced by the accrual job.
type Position struct {
	ID                string          `db:"id"`
	UserID            string          `db:"user_id"`
	PlanID            string          `db:"plan_id"`
	Principal         decimal.Decimal `db:"principal"`
	ROIPercent        decimal.Decimal `db:"roi_percent"`
	ROIAmount         decimal.Decimal `db:"roi_amount"`
	TotalPayoutAmount decimal.Decimal `db:"total_payout_amount"`
	TotalAccumulated  decimal.Decimal `db:"total_accumulated"`
	Status            string          `db:"status"`
	ReferrerID        string          `db:"referrer_id"`
	ReferralPaid      bool            `db:"referral_received_direct_profit"`
	CreatedAt         time.Time       `db:"created_at"`
	ClosedAt          *time.Time      `db:"closed_at"`
}

// Position statuses.
const (
	PositionStatusActive = "active"
	PositionStatusClosed = "closed"
)

// LedgerTransaction is an append-only audit record correlated 1:1 with every
// balance mutation. BalanceUpdated is the idempotency guard: it transitions
// false to true exactly once, and no transaction may cause more than one
// balance effect.
type LedgerTransaction struct {
	ID             string          `db:"id"`
	UserID         string          `db:"user_id"`
	Amount         decimal.Decimal `db:"amount"`
	Type           string          `db:"type"`
	Status         string          `db:"status"`
	BalanceUpdated bool            `db:"balance_updated"`
	Address        string          `db:"address"`
	Description    *string         `db:"description"`
	CreatedAt      time.Time       `db:"created_at"`
	UpdatedAt      time.Time       `db:"updated_at"`
}

// Transaction types for categorizing balance mutations.
const (
	TxTypeDeposit     = "deposit"     // External deposit, settled on approval
	TxTypeWithdraw    = "withdraw"    // Withdrawal, pre-debited at request time
	TxTypePurchase    = "purchase"    // Plan purchase debit
	TxTypeReferral    = "referral"    // Sponsor's direct-profit credit
	TxTypeAchievement = "achievement" // One-off reward claim
	TxTypeTeamReward  = "team_reward" // Team milestone reward claim
	TxTypeProfit      = "profit"      // Daily accrual credit
)

// Transaction statuses.
const (
	TxStatusPending   = "pending"
	TxStatusApproved  = "approved"
	TxStatusRejected  = "rejected"
	TxStatusCollected = "collected"
)

// SettlementState is the explicit state of a withdrawal reservation, derived
// from status and the balance_updated guard so callers never infer it from
// the raw fields.
type SettlementState string

const (
	SettlementReserved SettlementState = "reserved" // amount debited, awaiting review
	SettlementSettled  SettlementState = "settled"  // approved, debit stands
	SettlementRefunded SettlementState = "refunded" // rejected, amount returned
	SettlementUnknown  SettlementState = "unknown"
)

// SettlementState returns the reservation state of a withdraw transaction.
func (t *LedgerTransaction) SettlementState() SettlementState {
	if t.Type != TxTypeWithdraw {
		return SettlementUnknown
	}
	switch {
	case t.Status == TxStatusPending:
		return SettlementReserved
	case t.Status == TxStatusApproved && t.BalanceUpdated:
		return SettlementSettled
	case t.Status == TxStatusRejected && t.BalanceUpdated:
		return SettlementRefunded
	default:
		return SettlementReserved
	}
}

// SettlementTypes returns the transaction types the settlement listener
// applies. All other types are settled in the same commit that creates them.
func SettlementTypes() []string {
	return []string{TxTypeDeposit, TxTypeWithdraw}
}

// ClaimedReward marks a reward key already paid to an account.
type ClaimedReward struct {
	UserID    string    `db:"user_id"`
	RewardKey string    `db:"reward_key"`
	ClaimedAt time.Time `db:"claimed_at"`
}

// ReferralEarnings summarizes a sponsor's income from its direct downline.
type ReferralEarnings struct {
	UserID         string          `db:"user_id"`
	ReferralProfit decimal.Decimal `db:"referral_profit"`
	TeamProfit     decimal.Decimal `db:"team_profit"`
	DirectCount    int64           `db:"direct_count"`
}
