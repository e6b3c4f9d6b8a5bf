package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"investment-ledger/internal/model"
)

const planColumns = `id, name, min_amount, max_amount, daily_percentage,
	direct_profit_percent, total_payout_percent, active, created_at`

// PlanRepository handles plan catalog persistence. The catalog is
// read-mostly: the engine never mutates a plan.
type PlanRepository struct {
	db DB
}

// NewPlanRepository creates a new PlanRepository instance.
func NewPlanRepository(db DB) *PlanRepository {
	return &PlanRepository{db: db}
}

// WithTx returns a copy of the repository bound to the given transaction.
func (r *PlanRepository) WithTx(tx pgx.Tx) *PlanRepository {
	return &PlanRepository{db: tx}
}

func scanPlan(row pgx.Row) (*model.Plan, error) {
	var p model.Plan
	err := row.Scan(
		&p.ID,
		&p.Name,
		&p.MinAmount,
		&p.MaxAmount,
		&p.DailyPercentage,
		&p.DirectProfitPercent,
		&p.TotalPayoutPercent,
		&p.Active,
		&p.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPlanNotFound
		}
		return nil, err
	}
	return &p, nil
}

// Create inserts a catalog plan. Catalog edits are an admin concern; the
// engine only reads.
func (r *PlanRepository) Create(ctx context.Context, id, name string, minAmount decimal.Decimal, maxAmount *decimal.Decimal, dailyPct, directPct, totalPayoutPct decimal.Decimal) (*model.Plan, error) {
	const query = `
		INSERT INTO plans (id, name, min_amount, max_amount, daily_percentage,
			direct_profit_percent, total_payout_percent, active, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, TRUE, NOW())
		RETURNING ` + planColumns

	plan, err := scanPlan(r.db.QueryRow(ctx, query, id, name, minAmount, maxAmount, dailyPct, directPct, totalPayoutPct))
	if err != nil {
		return nil, fmt.Errorf("failed to create plan: %w", err)
	}
	return plan, nil
}

// GetByID retrieves a plan by ID.
// Returns ErrPlanNotFound if the plan does not exist.
func (r *PlanRepository) GetByID(ctx context.Context, id string) (*model.Plan, error) {
	const query = `SELECT ` + planColumns + ` FROM plans WHERE id = $1`

	plan, err := scanPlan(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, ErrPlanNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to get plan: %w", err)
	}
	return plan, nil
}

// ListActive retrieves all active plans ordered by minimum amount.
func (r *PlanRepository) ListActive(ctx context.Context) ([]*model.Plan, error) {
	const query = `SELECT ` + planColumns + ` FROM plans WHERE active ORDER BY min_amount`

	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list plans: %w", err)
	}
	defer rows.Close()

	var plans []*model.Plan
	for rows.Next() {
		plan, err := scanPlan(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan plan: %w", err)
		}
		plans = append(plans, plan)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating plans: %w", err)
	}

	return plans, nil
}
