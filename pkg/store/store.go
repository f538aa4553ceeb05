// Package store implements the Redis-backed pool store: the freelist of
// borrowable items, the borrowed-item ledger, and the availability
// notification channel.
//
// Layout in Redis:
//
//	freelist        SET   canonical-JSON items available for borrowing
//	borrowed        HASH  canonical-JSON item → borrow token
//	freelist:notify PUBSUB channel signalled after every successful add
//
// Set-pop and set-add are individually atomic in Redis, which is all the
// broker needs: the pool/ledger disjointness invariant is maintained by the
// workflow engine's ordered mutations, not by multi-key transactions.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	freelistKey   = "freelist"
	borrowedKey   = "borrowed"
	notifyChannel = "freelist:notify"
)

// BorrowedItem pairs a ledger item with its outstanding borrow token.
type BorrowedItem struct {
	Item        json.RawMessage `json:"item"`
	BorrowToken string          `json:"borrow_token"`
}

// Store provides atomic pool and ledger mutation over a shared Redis client.
// Connections are acquired per call from the client's pool; no locks are
// held across store I/O.
type Store struct {
	rdb *redis.Client
}

// New creates a Store backed by an existing Redis client.
func New(rdb *redis.Client) *Store {
	return &Store{rdb: rdb}
}

// NewFromURL creates a Store from a redis:// URL.
func NewFromURL(url string) (*Store, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	return New(redis.NewClient(opts)), nil
}

// Client returns the underlying Redis client, for health checks.
func (s *Store) Client() *redis.Client {
	return s.rdb
}

// TestConnection probes the backing store. Startup treats a failure here as
// fatal.
func (s *Store) TestConnection(ctx context.Context) error {
	if err := s.rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping: %w", err)
	}
	return nil
}

// Borrow atomically removes and returns one item from the freelist. The
// choice of item is unordered. Returns ErrEmpty when the pool has no items.
func (s *Store) Borrow(ctx context.Context) (json.RawMessage, error) {
	raw, err := s.rdb.SPop(ctx, freelistKey).Result()
	if errors.Is(err, redis.Nil) {
		return nil, ErrEmpty
	}
	if err != nil {
		return nil, fmt.Errorf("pop freelist: %w", err)
	}
	if !json.Valid([]byte(raw)) {
		return nil, fmt.Errorf("stored value is not valid JSON: %q", raw)
	}
	return json.RawMessage(raw), nil
}

// BorrowBlocking behaves like Borrow but, when the pool is empty, subscribes
// to the availability channel and retries on each notification until an item
// is obtained or timeout elapses. Notifications are hints, not guarantees:
// another waiter may win the race, in which case the loop keeps waiting for
// whatever remains of the wall-clock budget.
func (s *Store) BorrowBlocking(ctx context.Context, timeout time.Duration) (json.RawMessage, error) {
	item, err := s.Borrow(ctx)
	if !errors.Is(err, ErrEmpty) {
		return item, err
	}

	sub := s.rdb.Subscribe(ctx, notifyChannel)
	defer func() { _ = sub.Close() }()

	// Wait for the subscription to be established before re-checking, so a
	// notification published in the gap cannot be missed.
	if _, err := sub.Receive(ctx); err != nil {
		return nil, fmt.Errorf("subscribe to availability channel: %w", err)
	}

	item, err = s.Borrow(ctx)
	if !errors.Is(err, ErrEmpty) {
		return item, err
	}

	deadline := time.Now().Add(timeout)
	notifications := sub.Channel()
	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return nil, ErrEmpty
		}
		timer := time.NewTimer(remaining)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
			return nil, ErrEmpty
		case _, ok := <-notifications:
			timer.Stop()
			if !ok {
				return nil, errors.New("availability subscription closed")
			}
			item, err := s.Borrow(ctx)
			if err == nil {
				return item, nil
			}
			if !errors.Is(err, ErrEmpty) {
				return nil, err
			}
			// Spurious wakeup: another waiter took the item. Keep waiting.
		}
	}
}

// ReturnItem adds the item to the freelist and then publishes an availability
// notification, in that order, so a waiter woken by the notification can
// observe the item with a subsequent Borrow. Adding an item already in the
// pool is a no-op (set semantics) but still notifies.
func (s *Store) ReturnItem(ctx context.Context, item json.RawMessage) error {
	member, err := Canonical(item)
	if err != nil {
		return err
	}
	if err := s.rdb.SAdd(ctx, freelistKey, member).Err(); err != nil {
		return fmt.Errorf("add to freelist: %w", err)
	}
	if err := s.rdb.Publish(ctx, notifyChannel, member).Err(); err != nil {
		return fmt.Errorf("publish availability notification: %w", err)
	}
	return nil
}

// RecordBorrowed writes the ledger entry item → token.
func (s *Store) RecordBorrowed(ctx context.Context, item json.RawMessage, token string) error {
	field, err := Canonical(item)
	if err != nil {
		return err
	}
	if err := s.rdb.HSet(ctx, borrowedKey, field, token).Err(); err != nil {
		return fmt.Errorf("record borrowed item: %w", err)
	}
	return nil
}

// VerifyBorrowToken checks the presented token against the ledger. Returns
// ErrNotFound when the item has no ledger entry and ErrUnauthorized when the
// stored token differs.
func (s *Store) VerifyBorrowToken(ctx context.Context, item json.RawMessage, token string) error {
	field, err := Canonical(item)
	if err != nil {
		return err
	}
	stored, err := s.rdb.HGet(ctx, borrowedKey, field).Result()
	if errors.Is(err, redis.Nil) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("read ledger entry: %w", err)
	}
	if stored != token {
		return ErrUnauthorized
	}
	return nil
}

// RemoveBorrowedRecord deletes the ledger entry for the item. Idempotent.
func (s *Store) RemoveBorrowedRecord(ctx context.Context, item json.RawMessage) error {
	field, err := Canonical(item)
	if err != nil {
		return err
	}
	if err := s.rdb.HDel(ctx, borrowedKey, field).Err(); err != nil {
		return fmt.Errorf("remove ledger entry: %w", err)
	}
	return nil
}

// ListItems returns all items currently in the freelist.
func (s *Store) ListItems(ctx context.Context) ([]json.RawMessage, error) {
	members, err := s.rdb.SMembers(ctx, freelistKey).Result()
	if err != nil {
		return nil, fmt.Errorf("list freelist: %w", err)
	}
	items := make([]json.RawMessage, 0, len(members))
	for _, m := range members {
		items = append(items, json.RawMessage(m))
	}
	return items, nil
}

// ListBorrowed returns all ledger entries.
func (s *Store) ListBorrowed(ctx context.Context) ([]BorrowedItem, error) {
	entries, err := s.rdb.HGetAll(ctx, borrowedKey).Result()
	if err != nil {
		return nil, fmt.Errorf("list ledger: %w", err)
	}
	borrowed := make([]BorrowedItem, 0, len(entries))
	for item, token := range entries {
		borrowed = append(borrowed, BorrowedItem{
			Item:        json.RawMessage(item),
			BorrowToken: token,
		})
	}
	return borrowed, nil
}

// DeleteItem removes an item from the freelist without touching the ledger.
// Returns ErrNotFound when the item was not in the pool.
func (s *Store) DeleteItem(ctx context.Context, item json.RawMessage) error {
	member, err := Canonical(item)
	if err != nil {
		return err
	}
	removed, err := s.rdb.SRem(ctx, freelistKey, member).Result()
	if err != nil {
		return fmt.Errorf("remove from freelist: %w", err)
	}
	if removed == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteBorrowed removes a ledger entry without returning the item to the
// pool. Returns ErrNotFound when the item had no entry.
func (s *Store) DeleteBorrowed(ctx context.Context, item json.RawMessage) error {
	field, err := Canonical(item)
	if err != nil {
		return err
	}
	removed, err := s.rdb.HDel(ctx, borrowedKey, field).Result()
	if err != nil {
		return fmt.Errorf("remove ledger entry: %w", err)
	}
	if removed == 0 {
		return ErrNotFound
	}
	return nil
}

// ForceReturn puts the item back in the freelist and clears any ledger entry,
// regardless of token. Admin escape hatch for stuck borrows.
func (s *Store) ForceReturn(ctx context.Context, item json.RawMessage) error {
	if err := s.ReturnItem(ctx, item); err != nil {
		return err
	}
	return s.RemoveBorrowedRecord(ctx, item)
}
