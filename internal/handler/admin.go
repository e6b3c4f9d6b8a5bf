package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"investment-ledger/internal/model"
	"investment-ledger/internal/service"
)

// AdminHandler exposes the review and catalog-management operations.
// Authentication for these routes is a deployment concern (reverse proxy),
// not part of the engine.
type AdminHandler struct {
	ledger   *service.LedgerService
	accounts *service.AccountService
	catalog  *service.CatalogService
}

// NewAdminHandler creates a new AdminHandler.
func NewAdminHandler(ledger *service.LedgerService, accounts *service.AccountService, catalog *service.CatalogService) *AdminHandler {
	return &AdminHandler{ledger: ledger, accounts: accounts, catalog: catalog}
}

type reviewRequest struct {
	Approve *bool `json:"approve" binding:"required"`
}

// ReviewTransaction handles POST /admin/transactions/:id/review. Approval or
// rejection fires the settlement trigger; the balance effect is applied by
// the settlement listener.
func (h *AdminHandler) ReviewTransaction(c *gin.Context) {
	var req reviewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.ledger.ReviewTransaction(c.Request.Context(), c.Param("id"), *req.Approve); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "reviewed"})
}

type accountStatusRequest struct {
	Blocked bool `json:"blocked"`
}

// SetAccountStatus handles POST /admin/accounts/:id/status.
func (h *AdminHandler) SetAccountStatus(c *gin.Context) {
	var req accountStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	status := model.AccountStatusActive
	if req.Blocked {
		status = model.AccountStatusBlocked
	}
	if err := h.accounts.SetStatus(c.Request.Context(), c.Param("id"), status); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": status})
}

type createPlanRequest struct {
	ID                  string           `json:"id" binding:"required"`
	Name                string           `json:"name" binding:"required"`
	MinAmount           decimal.Decimal  `json:"min_amount" binding:"required"`
	MaxAmount           *decimal.Decimal `json:"max_amount"`
	DailyPercentage     decimal.Decimal  `json:"daily_percentage" binding:"required"`
	DirectProfitPercent decimal.Decimal  `json:"direct_profit_percent"`
	TotalPayoutPercent  decimal.Decimal  `json:"total_payout_percent" binding:"required"`
}

// CreatePlan handles POST /admin/plans.
func (h *AdminHandler) CreatePlan(c *gin.Context) {
	var req createPlanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	plan, err := h.catalog.CreatePlan(c.Request.Context(), req.ID, req.Name,
		req.MinAmount, req.MaxAmount, req.DailyPercentage, req.DirectProfitPercent, req.TotalPayoutPercent)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, plan)
}
