package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/codeready-toolchain/poolbroker/pkg/ops"
)

// heartbeatInterval keeps idle event streams alive and lets the server
// detect disconnected listeners.
const heartbeatInterval = 15 * time.Second

// getOperationHandler handles GET /operations/:id.
func (s *Server) getOperationHandler(c *gin.Context) {
	op, ok := s.registry.Get(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, errorResponse{Error: "operation not found"})
		return
	}
	c.JSON(http.StatusOK, operationStatusResponse{
		OperationID: op.ID,
		Status:      string(op.Status),
		Message:     op.Message,
	})
}

// snapshotMessage is the first message on an event stream: the operation's
// current state, so listeners joining mid-flight know where it stands.
type snapshotMessage struct {
	Event   string     `json:"event"`
	Status  ops.Status `json:"status"`
	Message string     `json:"message,omitempty"`
}

// streamOperationEventsHandler handles GET /operations/:id/events as an SSE
// stream. Subscribing to an unknown id is allowed; the listener receives
// whatever is published later. The stream stays open until the client
// disconnects; a heartbeat is emitted every 15 s.
func (s *Server) streamOperationEventsHandler(c *gin.Context) {
	id := c.Param("id")
	ch, cancel := s.broadcaster.Subscribe(id)
	defer cancel()

	h := c.Writer.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	c.Writer.WriteHeader(http.StatusOK)
	c.Writer.Flush()

	if op, ok := s.registry.Get(id); ok {
		snap, err := json.Marshal(snapshotMessage{Event: "snapshot", Status: op.Status, Message: op.Message})
		if err == nil {
			if writeSSEData(c, snap) != nil {
				return
			}
		}
	}

	heartbeat := time.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()

	ctx := c.Request.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case <-heartbeat.C:
			if writeSSEEvent(c, "heartbeat", []byte(`{}`)) != nil {
				return
			}
		case msg := <-ch:
			if writeSSEData(c, msg) != nil {
				return
			}
		}
	}
}

// writeSSEData writes a data-only SSE frame and flushes it.
func writeSSEData(c *gin.Context, data []byte) error {
	if _, err := fmt.Fprintf(c.Writer, "data: %s\n\n", data); err != nil {
		return err
	}
	c.Writer.Flush()
	return nil
}

// writeSSEEvent writes a named SSE event frame and flushes it.
func writeSSEEvent(c *gin.Context, event string, data []byte) error {
	if _, err := fmt.Fprintf(c.Writer, "event: %s\ndata: %s\n\n", event, data); err != nil {
		return err
	}
	c.Writer.Flush()
	return nil
}
