package server

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// handleStream serves server-sent events until the client disconnects.
// Privileged callers join the moderator audience and see unpublished confessions too.
func (h *httpHandler) handleStream(c *gin.Context) {
	audience := AudiencePublic
	if callerFromContext(c).Privileged() {
		audience = AudienceModerators
	}

	ctx := c.Request.Context()
	stream, cleanup := h.realtime.Subscribe(ctx, audience)
	defer cleanup()

	header := c.Writer.Header()
	header.Set("Content-Type", "text/event-stream")
	header.Set("Cache-Control", "no-cache")
	header.Set("Connection", "keep-alive")
	header.Set("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)
	c.Writer.WriteHeaderNow()
	c.Writer.Flush()

	heartbeat := time.NewTicker(h.heartbeatInterval)
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case message, ok := <-stream:
			if !ok {
				return
			}
			c.SSEvent(message.EventType, newRealtimePayload(message))
			c.Writer.Flush()
		case tick := <-heartbeat.C:
			c.SSEvent(realtimeEventHeartbeat, gin.H{"source": realtimeSourceBackend, "timestamp": tick.UTC()})
			c.Writer.Flush()
		}
	}
}
