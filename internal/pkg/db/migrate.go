package db

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
)

// Migrate executes database migrations. Statements are idempotent so the
// function is safe to run on every startup.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	// Migration 1: Create accounts table
	_, err := pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS accounts (
			user_id VARCHAR(64) PRIMARY KEY,
			referrer_id VARCHAR(64) NOT NULL DEFAULT '',
			status VARCHAR(20) NOT NULL DEFAULT 'active',
			total_deposit NUMERIC(20,8) NOT NULL DEFAULT 0,
			remaining_balance NUMERIC(20,8) NOT NULL DEFAULT 0 CHECK (remaining_balance >= 0),
			current_balance NUMERIC(20,8) NOT NULL DEFAULT 0 CHECK (current_balance >= 0),
			referral_profit NUMERIC(20,8) NOT NULL DEFAULT 0,
			team_profit NUMERIC(20,8) NOT NULL DEFAULT 0,
			total_earned NUMERIC(20,8) NOT NULL DEFAULT 0,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS idx_accounts_referrer ON accounts(referrer_id) WHERE referrer_id <> '';
	`)
	if err != nil {
		return err
	}
	log.Info().Msg("Migration 1: accounts table created")

	// Migration 2: Create plans table
	_, err = pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS plans (
			id VARCHAR(64) PRIMARY KEY,
			name VARCHAR(255) NOT NULL,
			min_amount NUMERIC(20,8) NOT NULL,
			max_amount NUMERIC(20,8),
			daily_percentage NUMERIC(10,4) NOT NULL,
			direct_profit_percent NUMERIC(10,4) NOT NULL,
			total_payout_percent NUMERIC(10,4) NOT NULL,
			active BOOLEAN NOT NULL DEFAULT TRUE,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
	`)
	if err != nil {
		return err
	}
	log.Info().Msg("Migration 2: plans table created")

	// Migration 3: Create positions table
	_, err = pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS positions (
			id UUID PRIMARY KEY,
			user_id VARCHAR(64) NOT NULL REFERENCES accounts(user_id),
			plan_id VARCHAR(64) NOT NULL REFERENCES plans(id),
			principal NUMERIC(20,8) NOT NULL,
			roi_percent NUMERIC(10,4) NOT NULL,
			roi_amount NUMERIC(20,8) NOT NULL,
			total_payout_amount NUMERIC(20,8) NOT NULL,
			total_accumulated NUMERIC(20,8) NOT NULL DEFAULT 0,
			status VARCHAR(20) NOT NULL DEFAULT 'active',
			referrer_id VARCHAR(64) NOT NULL DEFAULT '',
			referral_received_direct_profit BOOLEAN NOT NULL DEFAULT FALSE,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			closed_at TIMESTAMPTZ
		);
		CREATE INDEX IF NOT EXISTS idx_positions_user ON positions(user_id, created_at DESC);
		CREATE INDEX IF NOT EXISTS idx_positions_status ON positions(status) WHERE status = 'active';
	`)
	if err != nil {
		return err
	}
	log.Info().Msg("Migration 3: positions table created")

	// Migration 4: Create ledger_transactions table
	_, err = pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS ledger_transactions (
			id UUID PRIMARY KEY,
			user_id VARCHAR(64) NOT NULL REFERENCES accounts(user_id),
			amount NUMERIC(20,8) NOT NULL CHECK (amount > 0),
			type VARCHAR(20) NOT NULL,
			status VARCHAR(20) NOT NULL DEFAULT 'pending',
			balance_updated BOOLEAN NOT NULL DEFAULT FALSE,
			address VARCHAR(255) NOT NULL DEFAULT '',
			description TEXT,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS idx_ledger_tx_user_time ON ledger_transactions(user_id, created_at DESC);
		CREATE INDEX IF NOT EXISTS idx_ledger_tx_unsettled ON ledger_transactions(status)
			WHERE balance_updated = FALSE AND status IN ('approved', 'rejected');
	`)
	if err != nil {
		return err
	}
	log.Info().Msg("Migration 4: ledger_transactions table created")

	// Migration 5: Create claimed_rewards table
	// The primary key is the double-claim guard: the second insert for the
	// same (user, key) fails with a unique violation inside the claim
	// transaction.
	_, err = pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS claimed_rewards (
			user_id VARCHAR(64) NOT NULL REFERENCES accounts(user_id),
			reward_key VARCHAR(128) NOT NULL,
			claimed_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			PRIMARY KEY (user_id, reward_key)
		);
	`)
	if err != nil {
		return err
	}
	log.Info().Msg("Migration 5: claimed_rewards table created")

	// Migration 6: Settlement notification trigger
	// Fires whenever a transaction moves to approved/rejected while its
	// balance effect has not been applied; the settlement listener LISTENs
	// on this channel.
	_, err = pool.Exec(ctx, `
		CREATE OR REPLACE FUNCTION notify_ledger_settlement() RETURNS trigger AS $$
		BEGIN
			IF NEW.status IN ('approved', 'rejected')
				AND NOT NEW.balance_updated
				AND NEW.type IN ('deposit', 'withdraw') THEN
				PERFORM pg_notify('ledger_settlements', NEW.id::text);
			END IF;
			RETURN NEW;
		END;
		$$ LANGUAGE plpgsql;

		DROP TRIGGER IF EXISTS ledger_settlement_notify ON ledger_transactions;
		CREATE TRIGGER ledger_settlement_notify
			AFTER UPDATE OF status ON ledger_transactions
			FOR EACH ROW
			EXECUTE FUNCTION notify_ledger_settlement();
	`)
	if err != nil {
		return err
	}
	log.Info().Msg("Migration 6: settlement notification trigger created")

	log.Info().Msg("All migrations completed successfully")
	return nil
}
