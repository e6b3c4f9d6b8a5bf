package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// RewardRepository handles the claimed-rewards set. The table's primary key
// is the double-claim guard: Claim inside a transaction either inserts the
// row or fails with ErrRewardClaimed, with no separate existence check
// needed in the atomic scope.
type RewardRepository struct {
	db DB
}

// NewRewardRepository creates a new RewardRepository instance.
func NewRewardRepository(db DB) *RewardRepository {
	return &RewardRepository{db: db}
}

// WithTx returns a copy of the repository bound to the given transaction.
func (r *RewardRepository) WithTx(tx pgx.Tx) *RewardRepository {
	return &RewardRepository{db: tx}
}

// IsClaimed reports whether a reward key was already paid. Only a fast-path
// optimization; the authoritative guard is Claim's primary key.
func (r *RewardRepository) IsClaimed(ctx context.Context, userID, rewardKey string) (bool, error) {
	const query = `SELECT EXISTS(SELECT 1 FROM claimed_rewards WHERE user_id = $1 AND reward_key = $2)`

	var claimed bool
	err := r.db.QueryRow(ctx, query, userID, rewardKey).Scan(&claimed)
	if err != nil {
		return false, fmt.Errorf("failed to check claimed reward: %w", err)
	}
	return claimed, nil
}

// Claim marks a reward key as paid. Returns ErrRewardClaimed when the key
// was already claimed for this user.
func (r *RewardRepository) Claim(ctx context.Context, userID, rewardKey string) error {
	const query = `INSERT INTO claimed_rewards (user_id, reward_key, claimed_at) VALUES ($1, $2, NOW())`

	if _, err := r.db.Exec(ctx, query, userID, rewardKey); err != nil {
		if isUniqueViolation(err) {
			return ErrRewardClaimed
		}
		return fmt.Errorf("failed to claim reward: %w", err)
	}
	return nil
}
