// Package handler provides the HTTP boundary over the ledger engine.
package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"investment-ledger/internal/service"
)

// NewRouter builds the gin engine with all routes registered.
func NewRouter(ledger *service.LedgerService, accounts *service.AccountService, catalog *service.CatalogService) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	ledgerHandler := NewLedgerHandler(ledger)
	accountHandler := NewAccountHandler(accounts)
	planHandler := NewPlanHandler(catalog)
	adminHandler := NewAdminHandler(ledger, accounts, catalog)

	v1 := router.Group("/api/v1")
	{
		v1.POST("/accounts", accountHandler.Register)
		v1.GET("/accounts/:id", accountHandler.GetAccount)
		v1.GET("/accounts/:id/transactions", accountHandler.GetTransactions)
		v1.GET("/accounts/:id/positions", accountHandler.GetPositions)
		v1.GET("/accounts/:id/referrals", accountHandler.GetReferralEarnings)
		v1.GET("/accounts/:id/earnings", accountHandler.GetEarnings)

		v1.GET("/plans", planHandler.List)

		v1.POST("/purchases", ledgerHandler.Purchase)
		v1.POST("/deposits", ledgerHandler.RequestDeposit)
		v1.POST("/withdrawals", ledgerHandler.RequestWithdrawal)
		v1.POST("/rewards/claim", ledgerHandler.ClaimReward)

		admin := v1.Group("/admin")
		{
			admin.POST("/transactions/:id/review", adminHandler.ReviewTransaction)
			admin.POST("/accounts/:id/status", adminHandler.SetAccountStatus)
			admin.POST("/plans", adminHandler.CreatePlan)
		}
	}

	return router
}

// writeError maps engine errors to HTTP statuses. Unexpected errors surface
// as a generic failure so callers can only retry.
func writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrInvalidAmount),
		errors.Is(err, service.ErrMinimumNotMet),
		errors.Is(err, service.ErrMaximumExceeded),
		errors.Is(err, service.ErrBlankAddress):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, service.ErrInsufficientBalance):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
	case errors.Is(err, service.ErrAccountNotFound),
		errors.Is(err, service.ErrPlanNotFound),
		errors.Is(err, service.ErrTransactionNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, service.ErrAccountBlocked):
		c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
	case errors.Is(err, service.ErrNotReviewable):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "try again later"})
	}
}
