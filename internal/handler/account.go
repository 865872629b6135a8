package handler

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"arbadvisor/internal/service"
)

type AccountHandler struct {
	Accounts *service.AccountService
}

func (h *AccountHandler) Register(r *gin.Engine) {
	r.GET("/api/v1/users/:user_id", h.get)
	r.POST("/api/v1/users", h.ensure)
}

func (h *AccountHandler) get(c *gin.Context) {
	userID := strings.TrimSpace(c.Param("user_id"))
	user, err := h.Accounts.Get(c.Request.Context(), userID)
	if err != nil {
		Error(c, http.StatusNotFound, "user not found", nil)
		return
	}
	Ok(c, user, nil)
}

type ensureRequest struct {
	UserID      string `json:"user_id"`
	DisplayName string `json:"display_name"`
}

func (h *AccountHandler) ensure(c *gin.Context) {
	var req ensureRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.UserID) == "" {
		Error(c, http.StatusBadRequest, "user_id is required", nil)
		return
	}
	user, err := h.Accounts.Ensure(c.Request.Context(), strings.TrimSpace(req.UserID), req.DisplayName)
	if err != nil {
		Error(c, http.StatusInternalServerError, "failed to create user", nil)
		return
	}
	Ok(c, user, nil)
}
