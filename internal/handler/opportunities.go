package handler

import (
	"github.com/gin-gonic/gin"

	"arbadvisor/internal/agent"
)

// OpportunityHandler serves the live opportunity set tracked by the
// arbitrage agent.
type OpportunityHandler struct {
	Orchestrator *agent.Orchestrator
}

func (h *OpportunityHandler) Register(r *gin.Engine) {
	group := r.Group("/api/v1/opportunities")
	group.GET("", h.list)
	group.GET("/details", h.details)
}

func (h *OpportunityHandler) list(c *gin.Context) {
	opps := h.Orchestrator.ActiveOpportunities()
	Ok(c, opps, map[string]any{"total": len(opps)})
}

func (h *OpportunityHandler) details(c *gin.Context) {
	opps := h.Orchestrator.AllOpportunitiesWithDetails()
	Ok(c, opps, map[string]any{"total": len(opps)})
}
