// Package api is the HTTP ingress façade: routing, request binding, error
// mapping, and the SSE event streams. No domain logic lives here.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/codeready-toolchain/poolbroker/pkg/events"
	"github.com/codeready-toolchain/poolbroker/pkg/ops"
	"github.com/codeready-toolchain/poolbroker/pkg/store"
	"github.com/codeready-toolchain/poolbroker/pkg/workflow"
)

// AdminStore is the store surface used by the admin and health endpoints.
// *store.Store satisfies it.
type AdminStore interface {
	TestConnection(ctx context.Context) error
	ListItems(ctx context.Context) ([]json.RawMessage, error)
	ListBorrowed(ctx context.Context) ([]store.BorrowedItem, error)
	DeleteItem(ctx context.Context, item json.RawMessage) error
	DeleteBorrowed(ctx context.Context, item json.RawMessage) error
	ForceReturn(ctx context.Context, item json.RawMessage) error
}

// Server is the broker's HTTP server.
type Server struct {
	engine      *workflow.Engine
	store       AdminStore
	registry    *ops.Registry
	broadcaster *events.Broadcaster

	router     *gin.Engine
	httpServer *http.Server
}

// NewServer wires the routes onto a fresh gin engine.
func NewServer(engine *workflow.Engine, adminStore AdminStore) *Server {
	gin.SetMode(gin.ReleaseMode)

	s := &Server{
		engine:      engine,
		store:       adminStore,
		registry:    engine.Registry(),
		broadcaster: engine.Broadcaster(),
	}

	r := gin.New()
	r.Use(gin.Recovery(), securityHeaders())

	r.GET("/health", s.healthHandler)
	r.GET("/openapi.json", s.openAPIHandler)

	r.GET("/borrow", s.borrowHandler)
	r.POST("/return", s.returnHandler)
	r.POST("/submit", s.submitHandler)

	r.GET("/operations/:id", s.getOperationHandler)
	r.GET("/operations/:id/events", s.streamOperationEventsHandler)

	admin := r.Group("/admin")
	{
		admin.GET("/items", s.listItemsHandler)
		admin.DELETE("/items", s.deleteItemHandler)
		admin.GET("/borrowed", s.listBorrowedHandler)
		admin.DELETE("/borrowed", s.deleteBorrowedHandler)
		admin.POST("/force-return", s.forceReturnHandler)
		admin.GET("/operations", s.listOperationsHandler)
		admin.DELETE("/operations/:id", s.deleteOperationHandler)
		admin.GET("/stats", s.statsHandler)
	}

	s.router = r
	return s
}

// Router exposes the handler for tests.
func (s *Server) Router() http.Handler {
	return s.router
}

// Start begins serving on addr. Blocks until the server stops.
func (s *Server) Start(addr string) error {
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}
