package handler

import (
	"github.com/gin-gonic/gin"

	"arbadvisor/internal/agent"
)

// MessageHandler serves the inter-agent message history and the system log,
// both newest first.
type MessageHandler struct {
	Orchestrator *agent.Orchestrator
}

func (h *MessageHandler) Register(r *gin.Engine) {
	r.GET("/api/v1/messages", h.messages)
	r.GET("/api/v1/logs", h.logs)
}

func (h *MessageHandler) messages(c *gin.Context) {
	limit := intQuery(c, "limit", 50)
	msgs := h.Orchestrator.Messages()
	total := len(msgs)
	if limit > 0 && limit < total {
		msgs = msgs[:limit]
	}
	Ok(c, msgs, map[string]any{"total": total})
}

func (h *MessageHandler) logs(c *gin.Context) {
	limit := intQuery(c, "limit", 100)
	logs := h.Orchestrator.SystemLogs()
	total := len(logs)
	if limit > 0 && limit < total {
		logs = logs[:limit]
	}
	Ok(c, logs, map[string]any{"total": total})
}
