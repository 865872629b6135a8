package handler

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"arbadvisor/internal/repository"
	"arbadvisor/internal/service"
)

type WalletHandler struct {
	Wallet *service.WalletService
}

func (h *WalletHandler) Register(r *gin.Engine) {
	group := r.Group("/api/v1/wallet")
	group.GET("/:user_id/balance", h.balance)
	group.GET("/:user_id/transactions", h.transactions)
	group.POST("/:user_id/deposit", h.deposit)
	group.POST("/:user_id/withdraw", h.withdraw)
}

func (h *WalletHandler) balance(c *gin.Context) {
	userID := strings.TrimSpace(c.Param("user_id"))
	balance, err := h.Wallet.Balance(c.Request.Context(), userID)
	if err != nil {
		walletError(c, err)
		return
	}
	Ok(c, gin.H{"user_id": userID, "balance": balance}, nil)
}

func (h *WalletHandler) transactions(c *gin.Context) {
	userID := strings.TrimSpace(c.Param("user_id"))
	limit := intQuery(c, "limit", 50)
	txs, err := h.Wallet.Transactions(c.Request.Context(), userID, limit)
	if err != nil {
		walletError(c, err)
		return
	}
	Ok(c, txs, map[string]any{"total": len(txs)})
}

type amountRequest struct {
	Amount decimal.Decimal `json:"amount"`
}

func (h *WalletHandler) deposit(c *gin.Context) {
	userID := strings.TrimSpace(c.Param("user_id"))
	var req amountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		Error(c, http.StatusBadRequest, "invalid request body", nil)
		return
	}
	res, err := h.Wallet.Deposit(c.Request.Context(), userID, req.Amount)
	if err != nil {
		walletError(c, err)
		return
	}
	Ok(c, res, nil)
}

type withdrawRequest struct {
	Amount  decimal.Decimal `json:"amount"`
	Address string          `json:"address"`
}

func (h *WalletHandler) withdraw(c *gin.Context) {
	userID := strings.TrimSpace(c.Param("user_id"))
	var req withdrawRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		Error(c, http.StatusBadRequest, "invalid request body", nil)
		return
	}
	res, err := h.Wallet.Withdraw(c.Request.Context(), userID, req.Address, req.Amount)
	if err != nil {
		walletError(c, err)
		return
	}
	Ok(c, res, nil)
}

func walletError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, repository.ErrNotFound):
		Error(c, http.StatusNotFound, "user not found", nil)
	case errors.Is(err, service.ErrInvalidAmount),
		errors.Is(err, service.ErrInvalidAddress),
		errors.Is(err, service.ErrInsufficientFunds):
		Error(c, http.StatusBadRequest, err.Error(), nil)
	default:
		Error(c, http.StatusInternalServerError, "wallet operation failed", nil)
	}
}
