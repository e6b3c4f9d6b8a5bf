// Integration tests for the data access layer. A PostgreSQL container is
// started per test via testcontainers-go; tests are skipped when Docker is
// unavailable.
package repository

import (
	"context"
	"os/exec"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"investment-ledger/internal/model"
	"investment-ledger/internal/pkg/db"
)

// checkDockerAvailable checks if Docker is available and running
func checkDockerAvailable() bool {
	cmd := exec.Command("docker", "info")
	err := cmd.Run()
	return err == nil
}

// setupTestDB creates a PostgreSQL container and returns a connection pool.
// Skips the test if Docker is not available.
func setupTestDB(t *testing.T) (*pgxpool.Pool, func()) {
	if !checkDockerAvailable() {
		t.Skip("Docker is not available, skipping integration test")
	}

	ctx := context.Background()

	pgContainer, err := postgres.Run(ctx,
		"postgres:15-alpine",
		postgres.WithDatabase("testdb"),
		postgres.WithUsername("testuser"),
		postgres.WithPassword("testpass"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	require.NoError(t, err)

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	pool, err := pgxpool.New(ctx, connStr)
	require.NoError(t, err)

	require.NoError(t, db.Migrate(ctx, pool))

	cleanup := func() {
		pool.Close()
		_ = pgContainer.Terminate(ctx)
	}

	return pool, cleanup
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

// ============================================================================
// AccountRepository Tests
// ============================================================================

func TestAccountRepository_CreateAndGet(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	repo := NewAccountRepository(pool)
	ctx := context.Background()

	account, err := repo.Create(ctx, "alice", "bob")
	require.NoError(t, err)
	assert.Equal(t, "alice", account.UserID)
	assert.Equal(t, "bob", account.ReferrerID)
	assert.Equal(t, model.AccountStatusActive, account.Status)
	assert.True(t, account.CurrentBalance.IsZero())
	assert.True(t, account.RemainingBalance.IsZero())
	assert.False(t, account.CreatedAt.IsZero())

	got, err := repo.GetByID(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, account.UserID, got.UserID)

	_, err = repo.GetByID(ctx, "nobody")
	assert.ErrorIs(t, err, ErrAccountNotFound)
}

func TestAccountRepository_GetOrCreate(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	repo := NewAccountRepository(pool)
	ctx := context.Background()

	account, created, err := repo.GetOrCreate(ctx, "alice", "")
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, "alice", account.UserID)

	again, created, err := repo.GetOrCreate(ctx, "alice", "someone-else")
	require.NoError(t, err)
	assert.False(t, created)
	// Referrer recorded at registration is immutable.
	assert.Equal(t, "", again.ReferrerID)
}

func TestAccountRepository_DebitAndCredits(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	repo := NewAccountRepository(pool)
	ctx := context.Background()

	_, err := repo.Create(ctx, "alice", "")
	require.NoError(t, err)

	account, err := repo.CreditDeposit(ctx, "alice", dec("100"))
	require.NoError(t, err)
	assert.True(t, account.CurrentBalance.Equal(dec("100")))
	assert.True(t, account.RemainingBalance.Equal(dec("100")))
	assert.True(t, account.TotalDeposit.Equal(dec("100")))

	account, err = repo.Debit(ctx, "alice", dec("60"))
	require.NoError(t, err)
	assert.True(t, account.CurrentBalance.Equal(dec("40")))
	assert.True(t, account.RemainingBalance.Equal(dec("40")))

	// Over-debit trips the non-negative balance constraint.
	_, err = repo.Debit(ctx, "alice", dec("100"))
	assert.Error(t, err)

	// A failed debit writes nothing.
	account, err = repo.GetByID(ctx, "alice")
	require.NoError(t, err)
	assert.True(t, account.CurrentBalance.Equal(dec("40")))

	account, err = repo.CreditReferral(ctx, "alice", dec("6"))
	require.NoError(t, err)
	assert.True(t, account.ReferralProfit.Equal(dec("6")))
	assert.True(t, account.TotalEarned.Equal(dec("6")))
	assert.True(t, account.CurrentBalance.Equal(dec("46")))

	account, err = repo.Refund(ctx, "alice", dec("4"))
	require.NoError(t, err)
	assert.True(t, account.CurrentBalance.Equal(dec("50")))
	assert.True(t, account.RemainingBalance.Equal(dec("50")))

	account, err = repo.CreditReward(ctx, "alice", dec("10"), true)
	require.NoError(t, err)
	assert.True(t, account.TeamProfit.Equal(dec("10")))
	assert.True(t, account.CurrentBalance.Equal(dec("60")))
	// Rewards do not touch remaining_balance.
	assert.True(t, account.RemainingBalance.Equal(dec("50")))
}

func TestAccountRepository_ReferralEarnings(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	repo := NewAccountRepository(pool)
	ctx := context.Background()

	_, err := repo.Create(ctx, "sponsor", "")
	require.NoError(t, err)
	_, err = repo.Create(ctx, "d1", "sponsor")
	require.NoError(t, err)
	_, err = repo.Create(ctx, "d2", "sponsor")
	require.NoError(t, err)

	_, err = repo.CreditReferral(ctx, "sponsor", dec("12.5"))
	require.NoError(t, err)

	earnings, err := repo.ReferralEarnings(ctx, "sponsor")
	require.NoError(t, err)
	assert.True(t, earnings.ReferralProfit.Equal(dec("12.5")))
	assert.Equal(t, int64(2), earnings.DirectCount)
}

// ============================================================================
// PlanRepository Tests
// ============================================================================

func TestPlanRepository_CreateGetList(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	repo := NewPlanRepository(pool)
	ctx := context.Background()

	maxAmount := dec("5000")
	plan, err := repo.Create(ctx, "starter", "Starter", dec("50"), &maxAmount, dec("2"), dec("10"), dec("200"))
	require.NoError(t, err)
	assert.Equal(t, "starter", plan.ID)
	require.NotNil(t, plan.MaxAmount)
	assert.True(t, plan.MaxAmount.Equal(dec("5000")))

	_, err = repo.Create(ctx, "pro", "Pro", dec("500"), nil, dec("3"), dec("12"), dec("250"))
	require.NoError(t, err)

	got, err := repo.GetByID(ctx, "starter")
	require.NoError(t, err)
	assert.True(t, got.MinAmount.Equal(dec("50")))

	_, err = repo.GetByID(ctx, "missing")
	assert.ErrorIs(t, err, ErrPlanNotFound)

	plans, err := repo.ListActive(ctx)
	require.NoError(t, err)
	require.Len(t, plans, 2)
	assert.Equal(t, "starter", plans[0].ID) // ordered by min_amount
}

// ============================================================================
// PositionRepository Tests
// ============================================================================

func TestPositionRepository_CreateAndAccrue(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	accounts := NewAccountRepository(pool)
	plans := NewPlanRepository(pool)
	repo := NewPositionRepository(pool)
	ctx := context.Background()

	_, err := accounts.Create(ctx, "alice", "")
	require.NoError(t, err)
	_, err = plans.Create(ctx, "starter", "Starter", dec("50"), nil, dec("2"), dec("10"), dec("200"))
	require.NoError(t, err)

	position, err := repo.Create(ctx, CreatePositionParams{
		UserID:            "alice",
		PlanID:            "starter",
		Principal:         dec("60"),
		ROIPercent:        dec("2"),
		ROIAmount:         dec("1.2"),
		TotalPayoutAmount: dec("120"),
		ReferrerID:        "bob",
		ReferralPaid:      true,
	})
	require.NoError(t, err)
	assert.NotEmpty(t, position.ID)
	assert.Equal(t, model.PositionStatusActive, position.Status)
	assert.True(t, position.TotalAccumulated.IsZero())

	ids, err := repo.ListActiveIDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{position.ID}, ids)

	updated, err := repo.ApplyAccrual(ctx, position.ID, dec("1.2"), false)
	require.NoError(t, err)
	assert.True(t, updated.TotalAccumulated.Equal(dec("1.2")))
	assert.Equal(t, model.PositionStatusActive, updated.Status)

	closed, err := repo.ApplyAccrual(ctx, position.ID, dec("118.8"), true)
	require.NoError(t, err)
	assert.Equal(t, model.PositionStatusClosed, closed.Status)
	require.NotNil(t, closed.ClosedAt)

	ids, err = repo.ListActiveIDs(ctx)
	require.NoError(t, err)
	assert.Empty(t, ids)
}

// ============================================================================
// TransactionRepository Tests
// ============================================================================

func TestTransactionRepository_CreateAndGuard(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	accounts := NewAccountRepository(pool)
	repo := NewTransactionRepository(pool)
	ctx := context.Background()

	_, err := accounts.Create(ctx, "alice", "")
	require.NoError(t, err)

	tx, err := repo.Create(ctx, CreateTransactionParams{
		UserID: "alice",
		Amount: dec("100"),
		Type:   model.TxTypeDeposit,
		Status: model.TxStatusPending,
	})
	require.NoError(t, err)
	assert.False(t, tx.BalanceUpdated)

	// The guard flips exactly once.
	marked, err := repo.MarkBalanceUpdated(ctx, tx.ID, model.TxStatusApproved)
	require.NoError(t, err)
	assert.True(t, marked)

	marked, err = repo.MarkBalanceUpdated(ctx, tx.ID, model.TxStatusApproved)
	require.NoError(t, err)
	assert.False(t, marked, "guard must not flip twice")

	got, err := repo.GetByID(ctx, tx.ID)
	require.NoError(t, err)
	assert.True(t, got.BalanceUpdated)
	assert.Equal(t, model.TxStatusApproved, got.Status)
}

func TestTransactionRepository_SetStatusOnlyPending(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	accounts := NewAccountRepository(pool)
	repo := NewTransactionRepository(pool)
	ctx := context.Background()

	_, err := accounts.Create(ctx, "alice", "")
	require.NoError(t, err)

	tx, err := repo.Create(ctx, CreateTransactionParams{
		UserID: "alice",
		Amount: dec("40"),
		Type:   model.TxTypeWithdraw,
		Status: model.TxStatusPending,
	})
	require.NoError(t, err)

	updated, err := repo.SetStatus(ctx, tx.ID, model.TxStatusRejected)
	require.NoError(t, err)
	assert.True(t, updated)

	// A second review finds nothing pending.
	updated, err = repo.SetStatus(ctx, tx.ID, model.TxStatusApproved)
	require.NoError(t, err)
	assert.False(t, updated)
}

func TestTransactionRepository_ListUnsettled(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	accounts := NewAccountRepository(pool)
	repo := NewTransactionRepository(pool)
	ctx := context.Background()

	_, err := accounts.Create(ctx, "alice", "")
	require.NoError(t, err)

	// A reviewed deposit awaiting settlement.
	pending, err := repo.Create(ctx, CreateTransactionParams{
		UserID: "alice", Amount: dec("10"), Type: model.TxTypeDeposit, Status: model.TxStatusPending,
	})
	require.NoError(t, err)
	_, err = repo.SetStatus(ctx, pending.ID, model.TxStatusApproved)
	require.NoError(t, err)

	// A settled purchase row must not show up.
	_, err = repo.Create(ctx, CreateTransactionParams{
		UserID: "alice", Amount: dec("5"), Type: model.TxTypePurchase,
		Status: model.TxStatusApproved, BalanceUpdated: true,
	})
	require.NoError(t, err)

	unsettled, err := repo.ListUnsettled(ctx, 10)
	require.NoError(t, err)
	require.Len(t, unsettled, 1)
	assert.Equal(t, pending.ID, unsettled[0].ID)
}

// ============================================================================
// RewardRepository Tests
// ============================================================================

func TestRewardRepository_ClaimOnce(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	accounts := NewAccountRepository(pool)
	repo := NewRewardRepository(pool)
	ctx := context.Background()

	_, err := accounts.Create(ctx, "alice", "")
	require.NoError(t, err)

	claimed, err := repo.IsClaimed(ctx, "alice", "first-deposit")
	require.NoError(t, err)
	assert.False(t, claimed)

	require.NoError(t, repo.Claim(ctx, "alice", "first-deposit"))

	err = repo.Claim(ctx, "alice", "first-deposit")
	assert.ErrorIs(t, err, ErrRewardClaimed)

	claimed, err = repo.IsClaimed(ctx, "alice", "first-deposit")
	require.NoError(t, err)
	assert.True(t, claimed)

	// A different key is independent.
	require.NoError(t, repo.Claim(ctx, "alice", "second-deposit"))
}
