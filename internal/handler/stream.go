package handler

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"arbadvisor/internal/agent"
)

// StreamHandler pushes every bus event to websocket clients as JSON. One
// subscription per connection; slow readers are disconnected rather than
// allowed to stall the bus.
type StreamHandler struct {
	Bus    *agent.Bus
	Logger *zap.Logger

	// WriteTimeout bounds a single frame write. Zero means 10s.
	WriteTimeout time.Duration
}

func (h *StreamHandler) Register(r *gin.Engine) {
	r.GET("/api/v1/stream", h.stream)
}

func (h *StreamHandler) stream(c *gin.Context) {
	conn, err := websocket.Accept(c.Writer, c.Request, &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		if h.Logger != nil {
			h.Logger.Warn("websocket accept failed", zap.Error(err))
		}
		return
	}
	defer conn.Close(websocket.StatusNormalClosure, "shutdown")

	ctx := c.Request.Context()
	events := h.Bus.SubscribeAll(64)
	defer h.Bus.UnsubscribeAll(events)

	// Reads are discarded; the socket is one-way. CloseRead surfaces client
	// disconnects through the returned context.
	ctx = conn.CloseRead(ctx)

	timeout := h.WriteTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-events:
			writeCtx, cancel := context.WithTimeout(ctx, timeout)
			err := wsjson.Write(writeCtx, conn, ev)
			cancel()
			if err != nil {
				if h.Logger != nil && ctx.Err() == nil {
					h.Logger.Debug("stream write failed", zap.Error(err))
				}
				return
			}
		}
	}
}
