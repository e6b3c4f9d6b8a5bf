package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"investment-ledger/internal/model"
)

const txColumns = `id, user_id, amount, type, status, balance_updated, address,
	description, created_at, updated_at`

// TransactionRepository handles the append-only ledger transaction log.
// Rows are never deleted; the balance_updated flag is only flipped by
// MarkBalanceUpdated.
type TransactionRepository struct {
	db DB
}

// NewTransactionRepository creates a new TransactionRepository instance.
func NewTransactionRepository(db DB) *TransactionRepository {
	return &TransactionRepository{db: db}
}

// WithTx returns a copy of the repository bound to the given transaction.
func (r *TransactionRepository) WithTx(tx pgx.Tx) *TransactionRepository {
	return &TransactionRepository{db: tx}
}

func scanTransaction(row pgx.Row) (*model.LedgerTransaction, error) {
	var t model.LedgerTransaction
	err := row.Scan(
		&t.ID,
		&t.UserID,
		&t.Amount,
		&t.Type,
		&t.Status,
		&t.BalanceUpdated,
		&t.Address,
		&t.Description,
		&t.CreatedAt,
		&t.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrTransactionNotFound
		}
		return nil, err
	}
	return &t, nil
}

// CreateTransactionParams carries the fields of a new audit record. Amount is
// always positive; direction is implied by Type.
type CreateTransactionParams struct {
	UserID         string
	Amount         decimal.Decimal
	Type           string
	Status         string
	BalanceUpdated bool
	Address        string
	Description    *string
}

// Create appends an audit record with a generated ID.
func (r *TransactionRepository) Create(ctx context.Context, params CreateTransactionParams) (*model.LedgerTransaction, error) {
	const query = `
		INSERT INTO ledger_transactions (id, user_id, amount, type, status,
			balance_updated, address, description, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW(), NOW())
		RETURNING ` + txColumns

	tx, err := scanTransaction(r.db.QueryRow(ctx, query,
		uuid.NewString(),
		params.UserID,
		params.Amount,
		params.Type,
		params.Status,
		params.BalanceUpdated,
		params.Address,
		params.Description,
	))
	if err != nil {
		return nil, fmt.Errorf("failed to create transaction: %w", err)
	}
	return tx, nil
}

// GetByID retrieves a transaction by ID.
func (r *TransactionRepository) GetByID(ctx context.Context, id string) (*model.LedgerTransaction, error) {
	const query = `SELECT ` + txColumns + ` FROM ledger_transactions WHERE id = $1`

	tx, err := scanTransaction(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, ErrTransactionNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to get transaction: %w", err)
	}
	return tx, nil
}

// GetForUpdate retrieves a transaction with a row lock. Must run inside a
// transaction; the settlement guard check-and-set serializes here.
func (r *TransactionRepository) GetForUpdate(ctx context.Context, id string) (*model.LedgerTransaction, error) {
	const query = `SELECT ` + txColumns + ` FROM ledger_transactions WHERE id = $1 FOR UPDATE`

	tx, err := scanTransaction(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, ErrTransactionNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to lock transaction: %w", err)
	}
	return tx, nil
}

// MarkBalanceUpdated flips the idempotency guard false to true, optionally
// moving the row to a terminal status in the same statement. Returns false
// when the guard was already set, in which case nothing was written.
func (r *TransactionRepository) MarkBalanceUpdated(ctx context.Context, id, status string) (bool, error) {
	const query = `
		UPDATE ledger_transactions
		SET balance_updated = TRUE, status = $2, updated_at = NOW()
		WHERE id = $1 AND balance_updated = FALSE
	`

	result, err := r.db.Exec(ctx, query, id, status)
	if err != nil {
		return false, fmt.Errorf("failed to mark balance updated: %w", err)
	}
	return result.RowsAffected() > 0, nil
}

// SetStatus moves a pending transaction to approved or rejected. Returns
// false when the transaction was not pending (already reviewed).
func (r *TransactionRepository) SetStatus(ctx context.Context, id, status string) (bool, error) {
	const query = `
		UPDATE ledger_transactions
		SET status = $2, updated_at = NOW()
		WHERE id = $1 AND status = 'pending'
	`

	result, err := r.db.Exec(ctx, query, id, status)
	if err != nil {
		return false, fmt.Errorf("failed to set transaction status: %w", err)
	}
	return result.RowsAffected() > 0, nil
}

// ListByUserID retrieves a user's transactions, newest first.
func (r *TransactionRepository) ListByUserID(ctx context.Context, userID string, limit int) ([]*model.LedgerTransaction, error) {
	const query = `
		SELECT ` + txColumns + `
		FROM ledger_transactions
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`

	rows, err := r.db.Query(ctx, query, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list transactions: %w", err)
	}
	defer rows.Close()

	var transactions []*model.LedgerTransaction
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		transactions = append(transactions, tx)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating transactions: %w", err)
	}

	return transactions, nil
}

// ListUnsettled retrieves reviewed deposit/withdraw transactions whose
// balance effect has not been applied. Used by the settlement listener's
// catch-up sweep.
func (r *TransactionRepository) ListUnsettled(ctx context.Context, limit int) ([]*model.LedgerTransaction, error) {
	const query = `
		SELECT ` + txColumns + `
		FROM ledger_transactions
		WHERE balance_updated = FALSE
		  AND status IN ('approved', 'rejected')
		  AND type IN ('deposit', 'withdraw')
		ORDER BY updated_at
		LIMIT $1
	`

	rows, err := r.db.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list unsettled transactions: %w", err)
	}
	defer rows.Close()

	var transactions []*model.LedgerTransaction
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		transactions = append(transactions, tx)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating unsettled transactions: %w", err)
	}

	return transactions, nil
}

// SumAmountByTypes sums a user's transaction amounts for the given types
// since a point in time. Backs the earnings summary read model.
func (r *TransactionRepository) SumAmountByTypes(ctx context.Context, userID string, types []string, since time.Time) (decimal.Decimal, error) {
	const query = `
		SELECT COALESCE(SUM(amount), 0)
		FROM ledger_transactions
		WHERE user_id = $1
		  AND type = ANY($2)
		  AND created_at >= $3
	`

	var sum decimal.Decimal
	err := r.db.QueryRow(ctx, query, userID, types, since).Scan(&sum)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to sum transactions: %w", err)
	}
	return sum, nil
}

// NewTransactionID generates an audit record identifier. Exposed so tests
// can pre-create rows with known IDs.
func NewTransactionID() string {
	return uuid.NewString()
}
