package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"investment-ledger/internal/model"
)

const positionColumns = `id, user_id, plan_id, principal, roi_percent, roi_amount,
	total_payout_amount, total_accumulated, status, referrer_id,
	referral_received_direct_profit, created_at, closed_at`

// PositionRepository handles position persistence. Positions are create-only
// from the engine's side; the accrual job advances total_accumulated.
type PositionRepository struct {
	db DB
}

// NewPositionRepository creates a new PositionRepository instance.
func NewPositionRepository(db DB) *PositionRepository {
	return &PositionRepository{db: db}
}

// WithTx returns a copy of the repository bound to the given transaction.
func (r *PositionRepository) WithTx(tx pgx.Tx) *PositionRepository {
	return &PositionRepository{db: tx}
}

func scanPosition(row pgx.Row) (*model.Position, error) {
	var p model.Position
	err := row.Scan(
		&p.ID,
		&p.UserID,
		&p.PlanID,
		&p.Principal,
		&p.ROIPercent,
		&p.ROIAmount,
		&p.TotalPayoutAmount,
		&p.TotalAccumulated,
		&p.Status,
		&p.ReferrerID,
		&p.ReferralPaid,
		&p.CreatedAt,
		&p.ClosedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPositionNotFound
		}
		return nil, err
	}
	return &p, nil
}

// CreatePositionParams carries the fields fixed at purchase time.
type CreatePositionParams struct {
	UserID            string
	PlanID            string
	Principal         decimal.Decimal
	ROIPercent        decimal.Decimal
	ROIAmount         decimal.Decimal
	TotalPayoutAmount decimal.Decimal
	ReferrerID        string
	ReferralPaid      bool
}

// Create inserts an active position with a generated ID.
func (r *PositionRepository) Create(ctx context.Context, params CreatePositionParams) (*model.Position, error) {
	const query = `
		INSERT INTO positions (id, user_id, plan_id, principal, roi_percent, roi_amount,
			total_payout_amount, total_accumulated, status, referrer_id,
			referral_received_direct_profit, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, 0, 'active', $8, $9, NOW())
		RETURNING ` + positionColumns

	position, err := scanPosition(r.db.QueryRow(ctx, query,
		uuid.NewString(),
		params.UserID,
		params.PlanID,
		params.Principal,
		params.ROIPercent,
		params.ROIAmount,
		params.TotalPayoutAmount,
		params.ReferrerID,
		params.ReferralPaid,
	))
	if err != nil {
		return nil, fmt.Errorf("failed to create position: %w", err)
	}
	return position, nil
}

// GetByID retrieves a position by ID.
func (r *PositionRepository) GetByID(ctx context.Context, id string) (*model.Position, error) {
	const query = `SELECT ` + positionColumns + ` FROM positions WHERE id = $1`

	position, err := scanPosition(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, ErrPositionNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to get position: %w", err)
	}
	return position, nil
}

// GetForUpdate retrieves a position with a row lock. Must run inside a
// transaction.
func (r *PositionRepository) GetForUpdate(ctx context.Context, id string) (*model.Position, error) {
	const query = `SELECT ` + positionColumns + ` FROM positions WHERE id = $1 FOR UPDATE`

	position, err := scanPosition(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, ErrPositionNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to lock position: %w", err)
	}
	return position, nil
}

// ListByUserID retrieves a user's positions, newest first.
func (r *PositionRepository) ListByUserID(ctx context.Context, userID string, limit int) ([]*model.Position, error) {
	const query = `
		SELECT ` + positionColumns + `
		FROM positions
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`

	rows, err := r.db.Query(ctx, query, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list positions: %w", err)
	}
	defer rows.Close()

	var positions []*model.Position
	for rows.Next() {
		position, err := scanPosition(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan position: %w", err)
		}
		positions = append(positions, position)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating positions: %w", err)
	}

	return positions, nil
}

// ListActiveIDs retrieves the IDs of all active positions. The accrual job
// iterates these one transaction per position, so only IDs are loaded here.
func (r *PositionRepository) ListActiveIDs(ctx context.Context) ([]string, error) {
	const query = `SELECT id FROM positions WHERE status = 'active' ORDER BY created_at`

	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list active positions: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan position id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating position ids: %w", err)
	}

	return ids, nil
}

// ApplyAccrual advances total_accumulated by credit, closing the position
// when requested.
func (r *PositionRepository) ApplyAccrual(ctx context.Context, id string, credit decimal.Decimal, closePosition bool) (*model.Position, error) {
	const query = `
		UPDATE positions
		SET total_accumulated = total_accumulated + $2,
			status = CASE WHEN $3 THEN 'closed' ELSE status END,
			closed_at = CASE WHEN $3 THEN NOW() ELSE closed_at END
		WHERE id = $1
		RETURNING ` + positionColumns

	position, err := scanPosition(r.db.QueryRow(ctx, query, id, credit, closePosition))
	if err != nil {
		if errors.Is(err, ErrPositionNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to apply accrual: %w", err)
	}
	return position, nil
}
