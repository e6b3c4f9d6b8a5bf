package service

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"

	"investment-ledger/internal/model"
	"investment-ledger/internal/repository"
)

// CatalogService exposes the plan catalog. Plans are immutable once
// created; there is no update path by design.
type CatalogService struct {
	plans *repository.PlanRepository
}

// NewCatalogService creates a new CatalogService instance.
func NewCatalogService(plans *repository.PlanRepository) *CatalogService {
	return &CatalogService{plans: plans}
}

// ListPlans returns all active plans.
func (s *CatalogService) ListPlans(ctx context.Context) ([]*model.Plan, error) {
	return s.plans.ListActive(ctx)
}

// GetPlan retrieves a plan by ID.
func (s *CatalogService) GetPlan(ctx context.Context, id string) (*model.Plan, error) {
	plan, err := s.plans.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrPlanNotFound) {
			return nil, ErrPlanNotFound
		}
		return nil, err
	}
	return plan, nil
}

// CreatePlan adds a catalog product. Admin-only.
func (s *CatalogService) CreatePlan(ctx context.Context, id, name string, minAmount decimal.Decimal, maxAmount *decimal.Decimal, dailyPct, directPct, totalPayoutPct decimal.Decimal) (*model.Plan, error) {
	if minAmount.LessThanOrEqual(decimal.Zero) {
		return nil, ErrInvalidAmount
	}
	return s.plans.Create(ctx, id, name, minAmount, maxAmount, dailyPct, directPct, totalPayoutPct)
}
