package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"arbadvisor/internal/agent"
	"arbadvisor/internal/repository"
	"arbadvisor/internal/service"
)

type StrategyHandler struct {
	Strategies   *service.StrategyService
	Orchestrator *agent.Orchestrator
}

func (h *StrategyHandler) Register(r *gin.Engine) {
	group := r.Group("/api/v1/users/:user_id/strategies")
	group.GET("", h.list)
	group.POST("", h.save)
	group.POST("/fund", h.fund)
	group.POST("/enable", h.setEnabled)
	group.POST("/generate", h.generate)
	group.POST("/execute-demo", h.executeDemo)
}

func (h *StrategyHandler) list(c *gin.Context) {
	userID := strings.TrimSpace(c.Param("user_id"))
	strategies, err := h.Strategies.List(c.Request.Context(), userID)
	if err != nil {
		strategyError(c, err)
		return
	}
	Ok(c, strategies, map[string]any{"total": len(strategies)})
}

func (h *StrategyHandler) save(c *gin.Context) {
	userID := strings.TrimSpace(c.Param("user_id"))
	var input service.StrategyInput
	if err := c.ShouldBindJSON(&input); err != nil {
		Error(c, http.StatusBadRequest, "invalid request body", nil)
		return
	}
	item, err := h.Strategies.Save(c.Request.Context(), userID, input)
	if err != nil {
		strategyError(c, err)
		return
	}
	Ok(c, item, nil)
}

type fundRequest struct {
	StrategyID string          `json:"strategy_id"`
	Amount     decimal.Decimal `json:"amount"`
}

func (h *StrategyHandler) fund(c *gin.Context) {
	userID := strings.TrimSpace(c.Param("user_id"))
	var req fundRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.StrategyID) == "" {
		Error(c, http.StatusBadRequest, "strategy_id and amount are required", nil)
		return
	}
	item, err := h.Strategies.Fund(c.Request.Context(), userID, req.StrategyID, req.Amount)
	if err != nil {
		strategyError(c, err)
		return
	}
	Ok(c, item, nil)
}

type enableRequest struct {
	StrategyID string `json:"strategy_id"`
	Enabled    bool   `json:"enabled"`
}

func (h *StrategyHandler) setEnabled(c *gin.Context) {
	var req enableRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.StrategyID) == "" {
		Error(c, http.StatusBadRequest, "strategy_id is required", nil)
		return
	}
	if err := h.Strategies.SetEnabled(c.Request.Context(), req.StrategyID, req.Enabled); err != nil {
		strategyError(c, err)
		return
	}
	Ok(c, gin.H{"strategy_id": req.StrategyID, "enabled": req.Enabled}, nil)
}

type generateRequest struct {
	Prompt          string          `json:"prompt"`
	CurrentStrategy json.RawMessage `json:"current_strategy"`
}

func (h *StrategyHandler) generate(c *gin.Context) {
	var req generateRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Prompt) == "" {
		Error(c, http.StatusBadRequest, "prompt is required", nil)
		return
	}
	out, err := h.Strategies.Generate(c.Request.Context(), req.CurrentStrategy, req.Prompt)
	if err != nil {
		Error(c, http.StatusBadGateway, "strategy generation failed", nil)
		return
	}
	Ok(c, out, nil)
}

func (h *StrategyHandler) executeDemo(c *gin.Context) {
	userID := strings.TrimSpace(c.Param("user_id"))
	res, err := h.Strategies.ExecuteDemo(c.Request.Context(), userID, h.Orchestrator.ActiveOpportunities())
	if err != nil {
		strategyError(c, err)
		return
	}
	Ok(c, res, nil)
}

func strategyError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, repository.ErrNotFound):
		Error(c, http.StatusNotFound, "not found", nil)
	case errors.Is(err, service.ErrStrategyNotFound):
		Error(c, http.StatusNotFound, "strategy not found", nil)
	case errors.Is(err, service.ErrInvalidAmount),
		errors.Is(err, service.ErrInsufficientFunds):
		Error(c, http.StatusBadRequest, err.Error(), nil)
	default:
		Error(c, http.StatusInternalServerError, "strategy operation failed", nil)
	}
}
