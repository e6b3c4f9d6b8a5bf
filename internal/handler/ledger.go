package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"investment-ledger/internal/service"
)

// LedgerHandler exposes the balance-mutating operations.
type LedgerHandler struct {
	ledger *service.LedgerService
}

// NewLedgerHandler creates a new LedgerHandler.
func NewLedgerHandler(ledger *service.LedgerService) *LedgerHandler {
	return &LedgerHandler{ledger: ledger}
}

type purchaseRequest struct {
	UserID string          `json:"user_id" binding:"required"`
	PlanID string          `json:"plan_id" binding:"required"`
	Amount decimal.Decimal `json:"amount" binding:"required"`
}

// Purchase handles POST /purchases.
func (h *LedgerHandler) Purchase(c *gin.Context) {
	var req purchaseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	positionID, err := h.ledger.Purchase(c.Request.Context(), req.UserID, req.PlanID, req.Amount)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"position_id": positionID})
}

type transferRequest struct {
	UserID  string          `json:"user_id" binding:"required"`
	Amount  decimal.Decimal `json:"amount" binding:"required"`
	Address string          `json:"address"`
}

// RequestDeposit handles POST /deposits. The deposit stays pending until an
// admin review settles it.
func (h *LedgerHandler) RequestDeposit(c *gin.Context) {
	var req transferRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	txID, err := h.ledger.RequestDeposit(c.Request.Context(), req.UserID, req.Amount, req.Address)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusAccepted, gin.H{"transaction_id": txID})
}

// RequestWithdrawal handles POST /withdrawals. The amount is reserved
// immediately; rejection refunds it.
func (h *LedgerHandler) RequestWithdrawal(c *gin.Context) {
	var req transferRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	txID, err := h.ledger.RequestWithdrawal(c.Request.Context(), req.UserID, req.Amount, req.Address)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusAccepted, gin.H{"transaction_id": txID})
}

type claimRewardRequest struct {
	UserID    string          `json:"user_id" binding:"required"`
	RewardKey string          `json:"reward_key" binding:"required"`
	Amount    decimal.Decimal `json:"amount" binding:"required"`
	Kind      string          `json:"kind"`
}

// ClaimReward handles POST /rewards/claim.
func (h *LedgerHandler) ClaimReward(c *gin.Context) {
	var req claimRewardRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	outcome, err := h.ledger.CreditReward(c.Request.Context(), req.UserID, req.RewardKey, req.Amount, req.Kind)
	if err != nil {
		writeError(c, err)
		return
	}

	status := http.StatusOK
	if outcome == service.RewardApplied {
		status = http.StatusCreated
	}
	c.JSON(status, gin.H{"outcome": string(outcome)})
}
