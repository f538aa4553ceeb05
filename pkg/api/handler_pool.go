package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
)

// borrowHandler handles GET /borrow?wait=<sec>&params=<json>.
// Without wait the borrow is immediate; with wait the request blocks until
// an item becomes available or the budget elapses (503 on empty either way).
func (s *Server) borrowHandler(c *gin.Context) {
	var wait *time.Duration
	if v := c.Query("wait"); v != "" {
		secs, err := strconv.Atoi(v)
		if err != nil || secs < 0 {
			c.JSON(http.StatusBadRequest, errorResponse{Error: "wait must be a non-negative integer number of seconds"})
			return
		}
		d := time.Duration(secs) * time.Second
		wait = &d
	}

	var params json.RawMessage
	if v := c.Query("params"); v != "" {
		if !json.Valid([]byte(v)) {
			c.JSON(http.StatusBadRequest, errorResponse{Error: "params must be valid JSON"})
			return
		}
		params = json.RawMessage(v)
	}

	result, err := s.engine.Borrow(c.Request.Context(), wait, params)
	if err != nil {
		renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// returnHandler handles POST /return. The borrow token is verified
// synchronously; the rest of the workflow runs detached and is tracked by
// the returned operation id.
func (s *Server) returnHandler(c *gin.Context) {
	var req returnRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	if !json.Valid(req.Item) {
		c.JSON(http.StatusBadRequest, errorResponse{Error: "item must be valid JSON"})
		return
	}

	opID, err := s.engine.Return(c.Request.Context(), req.Item, req.BorrowToken)
	if err != nil {
		renderError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, acceptedResponse{OperationID: opID, Status: "accepted"})
}

// submitHandler handles POST /submit. Submission is unauthenticated: any
// client may contribute a new item to the pool.
func (s *Server) submitHandler(c *gin.Context) {
	var req itemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	if !json.Valid(req.Item) {
		c.JSON(http.StatusBadRequest, errorResponse{Error: "item must be valid JSON"})
		return
	}

	opID, err := s.engine.Submit(c.Request.Context(), req.Item)
	if err != nil {
		renderError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, acceptedResponse{OperationID: opID, Status: "accepted"})
}
