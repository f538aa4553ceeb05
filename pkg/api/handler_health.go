package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/codeready-toolchain/poolbroker/pkg/version"
)

// healthResponse is returned by GET /health.
type healthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
	Store   string `json:"store"`
	Error   string `json:"error,omitempty"`
}

// healthHandler handles GET /health. Only the broker's own backing store is
// probed; subscriber endpoints are external dependencies and deliberately
// excluded so an unhealthy subscriber cannot get the broker restarted.
func (s *Server) healthHandler(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	if err := s.store.TestConnection(ctx); err != nil {
		c.JSON(http.StatusServiceUnavailable, healthResponse{
			Status:  "unhealthy",
			Version: version.GitCommit,
			Store:   "unreachable",
			Error:   err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, healthResponse{
		Status:  "healthy",
		Version: version.GitCommit,
		Store:   "ok",
	})
}
