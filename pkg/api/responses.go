package api

import (
	"encoding/json"

	"github.com/codeready-toolchain/poolbroker/pkg/ops"
	"github.com/codeready-toolchain/poolbroker/pkg/store"
)

// errorResponse is the uniform error envelope.
type errorResponse struct {
	Error string `json:"error"`
}

// successResponse is the uniform success envelope for admin mutations.
type successResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// acceptedResponse is returned by POST /return and POST /submit.
type acceptedResponse struct {
	OperationID string `json:"operation_id"`
	Status      string `json:"status"`
}

// operationStatusResponse is returned by GET /operations/:id.
type operationStatusResponse struct {
	OperationID string `json:"operation_id"`
	Status      string `json:"status"`
	Message     string `json:"message,omitempty"`
}

// itemsListResponse is returned by GET /admin/items.
type itemsListResponse struct {
	Items []json.RawMessage `json:"items"`
	Count int               `json:"count"`
}

// borrowedListResponse is returned by GET /admin/borrowed.
type borrowedListResponse struct {
	Borrowed []store.BorrowedItem `json:"borrowed"`
	Count    int                  `json:"count"`
}

// itemRequest is the body of POST /submit and the admin item mutations.
type itemRequest struct {
	Item json.RawMessage `json:"item" binding:"required"`
}

// returnRequest is the body of POST /return.
type returnRequest struct {
	Item        json.RawMessage `json:"item" binding:"required"`
	BorrowToken string          `json:"borrow_token" binding:"required"`
}

// operationsListResponse is returned by GET /admin/operations.
type operationsListResponse struct {
	Operations []*ops.Operation `json:"operations"`
	Count      int              `json:"count"`
}

// statsResponse is returned by GET /admin/stats.
type statsResponse struct {
	FreeCount         int `json:"free_count"`
	BorrowedCount     int `json:"borrowed_count"`
	PendingOperations int `json:"pending_operations"`
	FailedOperations  int `json:"failed_operations"`
}
