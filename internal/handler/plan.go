package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"investment-ledger/internal/service"
)

// PlanHandler exposes the plan catalog.
type PlanHandler struct {
	catalog *service.CatalogService
}

// NewPlanHandler creates a new PlanHandler.
func NewPlanHandler(catalog *service.CatalogService) *PlanHandler {
	return &PlanHandler{catalog: catalog}
}

// List handles GET /plans.
func (h *PlanHandler) List(c *gin.Context) {
	plans, err := h.catalog.ListPlans(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"plans": plans})
}
