// Package workflow orchestrates the borrow, return, and submit flows:
// precondition checks, subscriber fan-out, operation bookkeeping, event
// emission, pool mutation, and rollback.
package workflow

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/codeready-toolchain/poolbroker/pkg/config"
	"github.com/codeready-toolchain/poolbroker/pkg/events"
	"github.com/codeready-toolchain/poolbroker/pkg/ops"
	"github.com/codeready-toolchain/poolbroker/pkg/subscribers"
)

// Store is the pool-store surface the engine mutates.
type Store interface {
	Borrow(ctx context.Context) (json.RawMessage, error)
	BorrowBlocking(ctx context.Context, timeout time.Duration) (json.RawMessage, error)
	ReturnItem(ctx context.Context, item json.RawMessage) error
	RecordBorrowed(ctx context.Context, item json.RawMessage, token string) error
	VerifyBorrowToken(ctx context.Context, item json.RawMessage, token string) error
	RemoveBorrowedRecord(ctx context.Context, item json.RawMessage) error
}

// Dispatcher fans an event out to the configured subscribers.
type Dispatcher interface {
	Dispatch(ctx context.Context, kind subscribers.Kind, subs map[string]config.Subscriber, item, params json.RawMessage, onStatus subscribers.StatusFunc) error
}

// Engine drives the three workflows against the store, the dispatcher, the
// operation registry, and the event broadcaster.
type Engine struct {
	store       Store
	dispatcher  Dispatcher
	registry    *ops.Registry
	broadcaster *events.Broadcaster
	cfg         *config.Config
}

// New creates a workflow engine.
func New(store Store, dispatcher Dispatcher, registry *ops.Registry, broadcaster *events.Broadcaster, cfg *config.Config) *Engine {
	return &Engine{
		store:       store,
		dispatcher:  dispatcher,
		registry:    registry,
		broadcaster: broadcaster,
		cfg:         cfg,
	}
}

// Registry exposes the operation registry for status reads.
func (e *Engine) Registry() *ops.Registry { return e.registry }

// Broadcaster exposes the event broadcaster for stream subscriptions.
func (e *Engine) Broadcaster() *events.Broadcaster { return e.broadcaster }

// BorrowResult is the successful outcome of the borrow workflow.
type BorrowResult struct {
	Item        json.RawMessage `json:"item"`
	BorrowToken string          `json:"borrow_token"`
}

// Borrow runs the synchronous borrow workflow: acquire an item (optionally
// waiting up to wait for one to appear), notify borrow subscribers, mint a
// borrow token, and record the ledger entry. On failure after the item has
// been popped, the item is returned to the pool before the error surfaces.
func (e *Engine) Borrow(ctx context.Context, wait *time.Duration, params json.RawMessage) (*BorrowResult, error) {
	var (
		item json.RawMessage
		err  error
	)
	if wait == nil {
		item, err = e.store.Borrow(ctx)
	} else {
		item, err = e.store.BorrowBlocking(ctx, *wait)
	}
	if err != nil {
		return nil, err
	}

	if err := e.dispatcher.Dispatch(ctx, subscribers.KindBorrow, e.cfg.Borrow.Subscribers, item, params, nil); err != nil {
		e.compensate(ctx, item, "borrow dispatch")
		return nil, err
	}

	token := uuid.New().String()
	if err := e.store.RecordBorrowed(ctx, item, token); err != nil {
		e.compensate(ctx, item, "ledger write")
		return nil, err
	}

	return &BorrowResult{Item: item, BorrowToken: token}, nil
}

// Return starts the asynchronous return workflow. The borrow token is
// verified synchronously; everything after the operation id is handed back
// runs detached from the request, so client disconnects never abort a
// return in flight.
func (e *Engine) Return(ctx context.Context, item json.RawMessage, token string) (string, error) {
	if err := e.store.VerifyBorrowToken(ctx, item, token); err != nil {
		return "", err
	}
	return e.startAsync(ctx, subscribers.KindReturn, e.cfg.Return.Subscribers, item, true), nil
}

// Submit starts the asynchronous submit workflow. Submission is
// unauthenticated: there is no token to check.
func (e *Engine) Submit(ctx context.Context, item json.RawMessage) (string, error) {
	return e.startAsync(ctx, subscribers.KindSubmit, e.cfg.Submit.Subscribers, item, false), nil
}

// startAsync creates the Pending operation, emits the created event, and
// spawns the detached workflow goroutine. Returns the operation id.
func (e *Engine) startAsync(ctx context.Context, kind subscribers.Kind, subs map[string]config.Subscriber, item json.RawMessage, clearLedger bool) string {
	opID := uuid.New().String()
	names, must := subscriberNames(subs)
	e.registry.Create(opID, item, names, must)
	e.broadcaster.Publish(opID, events.Created())

	// Detach from the request context: the workflow must run to a terminal
	// state even if the caller disconnects.
	go e.runAsync(context.WithoutCancel(ctx), opID, kind, subs, item, clearLedger)

	return opID
}

// runAsync is the background half of return/submit: subscribers first, pool
// mutation second. A must-succeed dispatch failure terminates the operation
// before any pool mutation, so no compensation is needed there.
func (e *Engine) runAsync(ctx context.Context, opID string, kind subscribers.Kind, subs map[string]config.Subscriber, item json.RawMessage, clearLedger bool) {
	onStatus := func(name string, status ops.Status) {
		e.registry.SetSubscriberStatus(opID, name, status)
	}
	if err := e.dispatcher.Dispatch(ctx, kind, subs, item, nil, onStatus); err != nil {
		slog.Warn("Operation failed during subscriber dispatch",
			"operation_id", opID, "kind", string(kind), "error", err)
		e.fail(opID, err.Error())
		return
	}

	e.registry.SetStatus(opID, ops.StatusInProgress)
	e.broadcaster.Publish(opID, events.NotificationsOK())

	if err := e.store.ReturnItem(ctx, item); err != nil {
		slog.Error("Operation failed during pool insert",
			"operation_id", opID, "kind", string(kind), "error", err)
		e.fail(opID, err.Error())
		return
	}
	if clearLedger {
		if err := e.store.RemoveBorrowedRecord(ctx, item); err != nil {
			// The item is already back in the pool; surface the stale
			// ledger entry instead of pretending the return was clean.
			slog.Error("Item returned but ledger cleanup failed",
				"operation_id", opID, "error", err)
			e.fail(opID, "item returned but ledger cleanup failed: "+err.Error())
			return
		}
	}

	e.registry.SetStatus(opID, ops.StatusSucceeded)
	e.broadcaster.Publish(opID, events.Completed())
}

// fail moves the operation to Failed with a message and emits the failed
// event.
func (e *Engine) fail(opID, reason string) {
	e.registry.SetMessage(opID, reason)
	e.registry.SetStatus(opID, ops.StatusFailed)
	e.broadcaster.Publish(opID, events.Failed(reason))
}

// compensate puts a popped item back into the pool after a later borrow
// step failed. Best effort: a rollback failure leaves the item stranded and
// is only loggable.
func (e *Engine) compensate(ctx context.Context, item json.RawMessage, stage string) {
	if err := e.store.ReturnItem(ctx, item); err != nil {
		slog.Error("Rollback failed, item not restored to pool",
			"stage", stage, "error", err)
	}
}

// subscriberNames splits a subscriber group into all names and the
// must-succeed subset.
func subscriberNames(subs map[string]config.Subscriber) (names, mustSucceed []string) {
	for name, def := range subs {
		names = append(names, name)
		if def.MustSucceed {
			mustSucceed = append(mustSucceed, name)
		}
	}
	return names, mustSucceed
}
