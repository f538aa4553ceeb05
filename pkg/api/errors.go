package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/codeready-toolchain/poolbroker/pkg/store"
	"github.com/codeready-toolchain/poolbroker/pkg/subscribers"
)

// renderError maps workflow and store errors to HTTP responses: empty pool
// 503, wrong token 401, unknown item 404, must-succeed subscriber failure
// 502, anything else a 500 from the backing store.
func renderError(c *gin.Context, err error) {
	var subErr *subscribers.Error
	switch {
	case errors.Is(err, store.ErrEmpty):
		c.JSON(http.StatusServiceUnavailable, errorResponse{Error: err.Error()})
	case errors.Is(err, store.ErrUnauthorized):
		c.JSON(http.StatusUnauthorized, errorResponse{Error: err.Error()})
	case errors.Is(err, store.ErrNotFound):
		c.JSON(http.StatusNotFound, errorResponse{Error: err.Error()})
	case errors.As(err, &subErr):
		c.JSON(http.StatusBadGateway, errorResponse{Error: subErr.Error()})
	default:
		slog.Error("Unexpected store error", "error", err)
		c.JSON(http.StatusInternalServerError, errorResponse{Error: err.Error()})
	}
}
