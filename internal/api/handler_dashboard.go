package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// GetDashboard handles GET /api/dashboard: the mirrored summary plus sync
// freshness and stream health.
func (h *Handler) GetDashboard(c *gin.Context) {
	lastRefresh := h.poller.LastRefresh()

	resp := gin.H{
		"summary":      h.reconciler.Summary(),
		"last_refresh": nil,
		"stream":       h.streamStatus(),
	}
	if !lastRefresh.IsZero() {
		resp["last_refresh"] = lastRefresh.UTC().Format(time.RFC3339)
	}
	c.JSON(http.StatusOK, resp)
}

// TriggerRefresh handles POST /api/refresh: requests an out-of-band poll.
// The poller ignores the request while the view is still fresh.
func (h *Handler) TriggerRefresh(c *gin.Context) {
	h.poller.Trigger()
	c.JSON(http.StatusAccepted, gin.H{"status": "refresh requested"})
}

// GetStreamStatus handles GET /api/stream.
func (h *Handler) GetStreamStatus(c *gin.Context) {
	c.JSON(http.StatusOK, h.streamStatus())
}

func (h *Handler) streamStatus() gin.H {
	status := gin.H{
		"state":             h.stream.State().String(),
		"connected":         h.stream.IsConnected(),
		"reconnect_attempt": h.stream.ReconnectAttempt(),
	}
	if err := h.stream.Err(); err != nil {
		status["error"] = err.Error()
	}
	return status
}
