package api

import (
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/codeready-toolchain/poolbroker/pkg/ops"
)

// listItemsHandler handles GET /admin/items.
func (s *Server) listItemsHandler(c *gin.Context) {
	items, err := s.store.ListItems(c.Request.Context())
	if err != nil {
		renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, itemsListResponse{Items: items, Count: len(items)})
}

// listBorrowedHandler handles GET /admin/borrowed.
func (s *Server) listBorrowedHandler(c *gin.Context) {
	borrowed, err := s.store.ListBorrowed(c.Request.Context())
	if err != nil {
		renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, borrowedListResponse{Borrowed: borrowed, Count: len(borrowed)})
}

// deleteItemHandler handles DELETE /admin/items.
func (s *Server) deleteItemHandler(c *gin.Context) {
	item, ok := bindItem(c)
	if !ok {
		return
	}
	if err := s.store.DeleteItem(c.Request.Context(), item); err != nil {
		renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, successResponse{Success: true, Message: "Item deleted successfully"})
}

// deleteBorrowedHandler handles DELETE /admin/borrowed: drops the ledger
// entry without returning the item to the pool.
func (s *Server) deleteBorrowedHandler(c *gin.Context) {
	item, ok := bindItem(c)
	if !ok {
		return
	}
	if err := s.store.DeleteBorrowed(c.Request.Context(), item); err != nil {
		renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, successResponse{Success: true, Message: "Borrowed item deleted successfully"})
}

// forceReturnHandler handles POST /admin/force-return: puts the item back in
// the pool and clears any ledger entry, regardless of token.
func (s *Server) forceReturnHandler(c *gin.Context) {
	item, ok := bindItem(c)
	if !ok {
		return
	}
	if err := s.store.ForceReturn(c.Request.Context(), item); err != nil {
		renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, successResponse{Success: true, Message: "Item force-returned to freelist"})
}

// listOperationsHandler handles GET /admin/operations.
func (s *Server) listOperationsHandler(c *gin.Context) {
	operations := s.registry.All()
	c.JSON(http.StatusOK, operationsListResponse{Operations: operations, Count: len(operations)})
}

// deleteOperationHandler handles DELETE /admin/operations/:id.
func (s *Server) deleteOperationHandler(c *gin.Context) {
	if !s.registry.Delete(c.Param("id")) {
		c.JSON(http.StatusNotFound, errorResponse{Error: "operation not found"})
		return
	}
	c.JSON(http.StatusOK, successResponse{Success: true, Message: "Operation deleted"})
}

// statsHandler handles GET /admin/stats.
func (s *Server) statsHandler(c *gin.Context) {
	ctx := c.Request.Context()
	items, err := s.store.ListItems(ctx)
	if err != nil {
		renderError(c, err)
		return
	}
	borrowed, err := s.store.ListBorrowed(ctx)
	if err != nil {
		renderError(c, err)
		return
	}

	var pending, failed int
	for _, op := range s.registry.All() {
		switch op.Status {
		case ops.StatusPending, ops.StatusInProgress:
			pending++
		case ops.StatusFailed:
			failed++
		}
	}

	c.JSON(http.StatusOK, statsResponse{
		FreeCount:         len(items),
		BorrowedCount:     len(borrowed),
		PendingOperations: pending,
		FailedOperations:  failed,
	})
}

// bindItem binds the `{item}` request body shared by the admin mutations.
func bindItem(c *gin.Context) (json.RawMessage, bool) {
	var req itemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error()})
		return nil, false
	}
	if !json.Valid(req.Item) {
		c.JSON(http.StatusBadRequest, errorResponse{Error: "item must be valid JSON"})
		return nil, false
	}
	return req.Item, true
}
