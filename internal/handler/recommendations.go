package handler

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"arbadvisor/internal/agent"
)

type RecommendationHandler struct {
	Orchestrator *agent.Orchestrator
}

func (h *RecommendationHandler) Register(r *gin.Engine) {
	r.GET("/api/v1/recommendations/:user_id", h.byUser)
}

func (h *RecommendationHandler) byUser(c *gin.Context) {
	userID := strings.TrimSpace(c.Param("user_id"))
	if userID == "" {
		Error(c, http.StatusBadRequest, "user_id is required", nil)
		return
	}
	recs := h.Orchestrator.UserRecommendations(userID)
	Ok(c, recs, map[string]any{"total": len(recs)})
}
