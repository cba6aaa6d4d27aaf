package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/pushrelay/pushrelay/internal/realtime"
	"github.com/pushrelay/pushrelay/pkg/errors"
	"github.com/pushrelay/pushrelay/pkg/response"
)

// RealtimeHandler upgrades HTTP connections into hub websocket sessions.
type RealtimeHandler struct {
	hub     *realtime.Hub
	handler realtime.Handler
}

// NewRealtimeHandler constructs a realtime handler. The command handler is
// usually the dispatcher.
func NewRealtimeHandler(hub *realtime.Hub, handler realtime.Handler) *RealtimeHandler {
	return &RealtimeHandler{hub: hub, handler: handler}
}

// Stream upgrades the request to a websocket session. The connection carries
// no identity until the client issues a join command.
func (h *RealtimeHandler) Stream(c *gin.Context) {
	if h.hub == nil || h.handler == nil {
		response.Error(c, errors.ErrNotFound)
		return
	}

	h.hub.Serve(h.handler, c.Writer, c.Request)
}
