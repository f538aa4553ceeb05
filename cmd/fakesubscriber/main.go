// Fake async subscriber — a test peer for the pool broker. It acknowledges
// webhook notifications with an operation id and reports the operation as
// succeeded after a configurable delay.
package main

import (
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type server struct {
	mu    sync.Mutex
	done  map[string]bool
	delay time.Duration
}

type ackResponse struct {
	OperationID string `json:"operation_id"`
	Status      string `json:"status"`
}

type statusResponse struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// notifyHandler accepts any webhook payload, registers a new operation, and
// marks it done after the configured delay.
func (s *server) notifyHandler(c *gin.Context) {
	opID := uuid.New().String()

	s.mu.Lock()
	s.done[opID] = false
	s.mu.Unlock()

	time.AfterFunc(s.delay, func() {
		s.mu.Lock()
		s.done[opID] = true
		s.mu.Unlock()
	})

	slog.Info("Notification accepted", "path", c.Request.URL.Path, "operation_id", opID)
	c.JSON(http.StatusOK, ackResponse{OperationID: opID, Status: "accepted"})
}

// statusHandler handles GET /operations/status?id=. Unknown ids report
// pending so a poller started before the ack landed does not abort.
func (s *server) statusHandler(c *gin.Context) {
	id := c.Query("id")

	s.mu.Lock()
	done := s.done[id]
	s.mu.Unlock()

	status := "pending"
	if done {
		status = "succeeded"
	}
	c.JSON(http.StatusOK, statusResponse{Status: status})
}

func main() {
	delay := 15 * time.Second
	if v := os.Getenv("FAKE_SUB_DELAY_SECS"); v != "" {
		if secs, err := strconv.Atoi(v); err == nil && secs >= 0 {
			delay = time.Duration(secs) * time.Second
		}
	}

	addr := "0.0.0.0:8001"
	if v := os.Getenv("FAKE_SUB_ADDR"); v != "" {
		addr = v
	}

	s := &server{done: make(map[string]bool), delay: delay}

	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.POST("/return", s.notifyHandler)
	r.POST("/submit", s.notifyHandler)
	r.POST("/borrow", s.notifyHandler)
	r.GET("/operations/status", s.statusHandler)

	slog.Info("Fake subscriber listening", "addr", addr, "delay", delay)
	if err := r.Run(addr); err != nil {
		slog.Error("Server error", "error", err)
		os.Exit(1)
	}
}
