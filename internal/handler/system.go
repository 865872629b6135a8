package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"arbadvisor/internal/agent"
	"arbadvisor/internal/service"
)

// SystemHandler exposes orchestrator lifecycle and the agent pipeline entry
// point: submitting natural-language preferences.
type SystemHandler struct {
	Orchestrator *agent.Orchestrator
	Accounts     *service.AccountService
	Logger       *zap.Logger
}

func (h *SystemHandler) Register(r *gin.Engine) {
	group := r.Group("/api/v1/system")
	group.POST("/start", h.start)
	group.POST("/stop", h.stop)
	group.GET("/status", h.status)
	group.POST("/debug", h.setDebug)
	group.POST("/clear-logs", h.clearLogs)
	group.POST("/simulate", h.simulate)

	r.POST("/api/v1/preferences", h.processPreferences)
}

func (h *SystemHandler) start(c *gin.Context) {
	h.Orchestrator.Start(c.Request.Context())
	Ok(c, gin.H{"running": h.Orchestrator.Running()}, nil)
}

func (h *SystemHandler) stop(c *gin.Context) {
	h.Orchestrator.Stop()
	Ok(c, gin.H{"running": h.Orchestrator.Running()}, nil)
}

func (h *SystemHandler) status(c *gin.Context) {
	Ok(c, h.Orchestrator.SystemStatus(), nil)
}

type debugRequest struct {
	Enabled bool `json:"enabled"`
}

func (h *SystemHandler) setDebug(c *gin.Context) {
	var req debugRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		Error(c, http.StatusBadRequest, "invalid request body", nil)
		return
	}
	h.Orchestrator.SetDebugMode(req.Enabled)
	Ok(c, gin.H{"debug": req.Enabled}, nil)
}

func (h *SystemHandler) clearLogs(c *gin.Context) {
	h.Orchestrator.ClearLogs()
	Ok(c, nil, nil)
}

type simulateRequest struct {
	Topic string `json:"topic"`
}

func (h *SystemHandler) simulate(c *gin.Context) {
	var req simulateRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Topic) == "" {
		Error(c, http.StatusBadRequest, "topic is required", nil)
		return
	}
	// Runs past the request lifetime so the scripted exchange is not cut
	// short when the client disconnects.
	go h.Orchestrator.SimulateConversation(context.Background(), req.Topic)
	Ok(c, gin.H{"topic": req.Topic}, nil)
}

type preferencesRequest struct {
	UserID string `json:"user_id"`
	Input  string `json:"input"`
}

func (h *SystemHandler) processPreferences(c *gin.Context) {
	var req preferencesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		Error(c, http.StatusBadRequest, "invalid request body", nil)
		return
	}
	req.UserID = strings.TrimSpace(req.UserID)
	if req.UserID == "" || strings.TrimSpace(req.Input) == "" {
		Error(c, http.StatusBadRequest, "user_id and input are required", nil)
		return
	}

	ctx := c.Request.Context()
	if h.Accounts != nil {
		if _, err := h.Accounts.Ensure(ctx, req.UserID, ""); err != nil && h.Logger != nil {
			h.Logger.Warn("user bootstrap failed", zap.Error(err))
		}
	}

	schema, err := h.Orchestrator.ProcessUserInput(ctx, req.Input, req.UserID)
	if err != nil {
		Error(c, http.StatusInternalServerError, "failed to process preferences", nil)
		return
	}
	if h.Accounts != nil {
		if err := h.Accounts.SavePreferences(ctx, req.UserID, schema); err != nil && h.Logger != nil {
			h.Logger.Warn("preference persistence failed", zap.Error(err))
		}
	}
	Ok(c, schema, nil)
}
