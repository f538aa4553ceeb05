// Pool broker server — durable freelist of opaque JSON items with
// borrow/return/submit workflows and webhook subscriber fan-out.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/codeready-toolchain/poolbroker/pkg/api"
	"github.com/codeready-toolchain/poolbroker/pkg/config"
	"github.com/codeready-toolchain/poolbroker/pkg/events"
	"github.com/codeready-toolchain/poolbroker/pkg/ops"
	"github.com/codeready-toolchain/poolbroker/pkg/store"
	"github.com/codeready-toolchain/poolbroker/pkg/subscribers"
	"github.com/codeready-toolchain/poolbroker/pkg/version"
	"github.com/codeready-toolchain/poolbroker/pkg/workflow"
)

const listenAddr = "0.0.0.0:8000"

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func main() {
	configPath := flag.String("config",
		getEnv("POOLBROKER_CONFIG", ""),
		"Path to the TOML subscriber configuration file")
	printOpenAPI := flag.Bool("print-openapi", false,
		"Print the OpenAPI document to stdout and exit")
	flag.Parse()

	if *printOpenAPI {
		doc, err := api.OpenAPIJSON()
		if err != nil {
			fmt.Fprintln(os.Stderr, "failed to render OpenAPI document:", err)
			os.Exit(1)
		}
		fmt.Println(doc)
		return
	}

	// Load .env if present
	if err := godotenv.Load(); err != nil {
		slog.Debug("No .env file loaded, continuing with existing environment", "error", err)
	}

	slog.Info("Starting pool broker",
		"version", version.Full(),
		"config", *configPath)

	ctx := context.Background()

	// 1. Subscriber configuration (empty groups when no file is given)
	cfg := config.Default()
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			slog.Error("Failed to load configuration", "path", *configPath, "error", err)
			os.Exit(1)
		}
		cfg = loaded
	}

	// 2. Backing store
	redisURL := getEnv("REDIS_URL", "redis://127.0.0.1/")
	st, err := store.NewFromURL(redisURL)
	if err != nil {
		slog.Error("Invalid REDIS_URL", "url", redisURL, "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := st.Client().Close(); err != nil {
			slog.Error("Error closing store client", "error", err)
		}
	}()

	pingCtx, pingCancel := context.WithTimeout(ctx, 5*time.Second)
	err = st.TestConnection(pingCtx)
	pingCancel()
	if err != nil {
		slog.Error("Failed to connect to the backing store", "url", redisURL, "error", err)
		os.Exit(1)
	}
	slog.Info("Connected to backing store")

	// 3. Workflow engine and its collaborators
	registry := ops.NewRegistry()
	broadcaster := events.NewBroadcaster()
	dispatcher := subscribers.NewDispatcher()
	engine := workflow.New(st, dispatcher, registry, broadcaster, cfg)

	// 4. HTTP server (non-blocking)
	httpServer := api.NewServer(engine, st)
	errCh := make(chan error, 1)
	go func() {
		slog.Info("HTTP server listening", "addr", listenAddr)
		if err := httpServer.Start(listenAddr); err != nil && err != http.ErrServerClosed {
			slog.Error("HTTP server error", "error", err)
			errCh <- err
		}
	}()

	// 5. Wait for shutdown signal or server error
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)

	select {
	case sig := <-sigCh:
		slog.Info("Shutdown signal received", "signal", sig)
	case err := <-errCh:
		slog.Error("Server error triggered shutdown", "error", err)
	}

	// 6. Graceful shutdown. Detached return/submit workflows keep their own
	// lifetime; only the HTTP listener is drained here.
	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	}

	slog.Info("Shutdown complete")
}
