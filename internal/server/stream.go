package server

import (
	"net/http"
	"time"

	"git.mci.dev/mse/sre/phoenix/golang/callboard/internal/livecall"
	"git.mci.dev/mse/sre/phoenix/golang/callboard/internal/logging"
	"github.com/gin-gonic/gin"
	"github.com/goccy/go-json"
	"go.uber.org/zap"
)

// liveCallStream pushes live call snapshots as server-sent events. Polling
// runs while at least one stream is open.
func (server *Server) liveCallStream(c *gin.Context) {
	flusher, ok := c.Writer.(http.Flusher)
	if !ok {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "streaming not supported"})
		return
	}

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Status(http.StatusOK)

	// The server write timeout would cut long-lived streams.
	_ = http.NewResponseController(c.Writer).SetWriteDeadline(time.Time{})

	ch := server.deps.Stream.Subscribe()
	defer server.deps.Stream.Unsubscribe(ch)

	release := server.deps.LiveCalls.Acquire()
	defer release()

	current, ok := server.deps.LiveCalls.Current()
	if ok {
		data, err := json.Marshal(current)
		if err == nil {
			_, _ = c.Writer.Write(livecall.FormatSSE(livecall.SnapshotEvent, data))
		}
	}

	flusher.Flush()

	keepalive := time.NewTicker(server.keepalive)
	defer keepalive.Stop()

	ctx := c.Request.Context()

	for {
		select {
		case <-ctx.Done():
			return
		case <-keepalive.C:
			_, err := c.Writer.Write([]byte(":keepalive\n\n"))
			if err != nil {
				return
			}

			flusher.Flush()
		case frame, ok := <-ch:
			if !ok {
				return
			}

			_, err := c.Writer.Write(frame)
			if err != nil {
				logging.Logger.Debug("Live call stream closed", zap.String("error", err.Error()))
				return
			}

			flusher.Flush()
		}
	}
}
