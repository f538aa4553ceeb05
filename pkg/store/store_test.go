package store

import (
	"context"
	"encoding/json"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tcredis "github.com/testcontainers/testcontainers-go/modules/redis"
)

var (
	// Shared Redis URL for all tests in local dev
	sharedRedisURL string
	containerOnce  sync.Once
	containerErr   error
)

// getOrCreateRedis returns a Redis connection URL with CI/local environment
// detection. In CI (when CI_REDIS_URL is set): connects to an external Redis
// service container. In local dev: starts a shared testcontainer once per
// package.
func getOrCreateRedis(t *testing.T) string {
	if ciURL := os.Getenv("CI_REDIS_URL"); ciURL != "" {
		t.Log("Using external Redis from CI_REDIS_URL")
		return ciURL
	}

	containerOnce.Do(func() {
		ctx := context.Background()
		container, err := tcredis.Run(ctx, "redis:7-alpine")
		if err != nil {
			containerErr = err
			return
		}
		sharedRedisURL, containerErr = container.ConnectionString(ctx)
	})
	require.NoError(t, containerErr)
	return sharedRedisURL
}

// newTestStore creates a Store on a flushed logical database so tests do not
// see each other's keys.
func newTestStore(t *testing.T) *Store {
	t.Helper()
	url := getOrCreateRedis(t)

	st, err := NewFromURL(url)
	require.NoError(t, err)
	require.NoError(t, st.Client().FlushDB(context.Background()).Err())

	t.Cleanup(func() {
		_ = st.Client().Close()
	})
	return st
}

func TestTestConnection(t *testing.T) {
	st := newTestStore(t)
	assert.NoError(t, st.TestConnection(context.Background()))
}

func TestBorrow_Empty(t *testing.T) {
	st := newTestStore(t)

	_, err := st.Borrow(context.Background())
	assert.ErrorIs(t, err, ErrEmpty)
}

func TestReturnItemThenBorrow(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, st.ReturnItem(ctx, json.RawMessage(`{"ip":"10.0.0.1"}`)))

	item, err := st.Borrow(ctx)
	require.NoError(t, err)
	assert.JSONEq(t, `{"ip":"10.0.0.1"}`, string(item))

	// Pool is empty again
	_, err = st.Borrow(ctx)
	assert.ErrorIs(t, err, ErrEmpty)
}

func TestReturnItem_CanonicalizesKeyOrder(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	// Same object, different key order: one pool entry
	require.NoError(t, st.ReturnItem(ctx, json.RawMessage(`{"a":1,"b":2}`)))
	require.NoError(t, st.ReturnItem(ctx, json.RawMessage(`{"b":2,"a":1}`)))

	items, err := st.ListItems(ctx)
	require.NoError(t, err)
	assert.Len(t, items, 1)
}

func TestReturnItem_Idempotent(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	item := json.RawMessage(`{"ip":"10.0.0.1"}`)
	require.NoError(t, st.ReturnItem(ctx, item))
	require.NoError(t, st.ReturnItem(ctx, item))

	items, err := st.ListItems(ctx)
	require.NoError(t, err)
	assert.Len(t, items, 1)
}

func TestReturnItem_InvalidJSON(t *testing.T) {
	st := newTestStore(t)
	assert.Error(t, st.ReturnItem(context.Background(), json.RawMessage(`{not json`)))
}

func TestBorrowBlocking_ItemAlreadyAvailable(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, st.ReturnItem(ctx, json.RawMessage(`{"ip":"10.0.0.1"}`)))

	item, err := st.BorrowBlocking(ctx, 5*time.Second)
	require.NoError(t, err)
	assert.JSONEq(t, `{"ip":"10.0.0.1"}`, string(item))
}

func TestBorrowBlocking_WokenByReturn(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	go func() {
		time.Sleep(200 * time.Millisecond)
		_ = st.ReturnItem(ctx, json.RawMessage(`{"ip":"10.0.0.1"}`))
	}()

	start := time.Now()
	item, err := st.BorrowBlocking(ctx, 10*time.Second)
	require.NoError(t, err)
	assert.JSONEq(t, `{"ip":"10.0.0.1"}`, string(item))
	assert.Less(t, time.Since(start), 5*time.Second, "woken by notification, not by timeout")
}

func TestBorrowBlocking_Timeout(t *testing.T) {
	st := newTestStore(t)

	start := time.Now()
	_, err := st.BorrowBlocking(context.Background(), 300*time.Millisecond)
	assert.ErrorIs(t, err, ErrEmpty)
	assert.GreaterOrEqual(t, time.Since(start), 300*time.Millisecond)
}

func TestBorrowBlocking_ContextCancelled(t *testing.T) {
	st := newTestStore(t)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(100 * time.Millisecond)
		cancel()
	}()

	_, err := st.BorrowBlocking(ctx, 10*time.Second)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestBorrowBlocking_OneWaiterWins(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	type result struct {
		item json.RawMessage
		err  error
	}
	results := make(chan result, 2)
	for i := 0; i < 2; i++ {
		go func() {
			item, err := st.BorrowBlocking(ctx, 2*time.Second)
			results <- result{item, err}
		}()
	}

	// Give both waiters time to subscribe, then release a single item
	time.Sleep(300 * time.Millisecond)
	require.NoError(t, st.ReturnItem(ctx, json.RawMessage(`{"ip":"10.0.0.1"}`)))

	var won, lost int
	for i := 0; i < 2; i++ {
		r := <-results
		if r.err == nil {
			won++
		} else {
			assert.ErrorIs(t, r.err, ErrEmpty)
			lost++
		}
	}
	assert.Equal(t, 1, won)
	assert.Equal(t, 1, lost)
}

func TestBorrowTokenLifecycle(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	item := json.RawMessage(`{"ip":"10.0.0.1"}`)

	// No ledger entry yet
	assert.ErrorIs(t, st.VerifyBorrowToken(ctx, item, "tok-1"), ErrNotFound)

	require.NoError(t, st.RecordBorrowed(ctx, item, "tok-1"))
	assert.NoError(t, st.VerifyBorrowToken(ctx, item, "tok-1"))
	assert.ErrorIs(t, st.VerifyBorrowToken(ctx, item, "wrong"), ErrUnauthorized)

	// Key-order variants resolve to the same ledger entry
	require.NoError(t, st.RecordBorrowed(ctx, json.RawMessage(`{"b":2,"a":1}`), "tok-2"))
	assert.NoError(t, st.VerifyBorrowToken(ctx, json.RawMessage(`{"a":1,"b":2}`), "tok-2"))

	require.NoError(t, st.RemoveBorrowedRecord(ctx, item))
	assert.ErrorIs(t, st.VerifyBorrowToken(ctx, item, "tok-1"), ErrNotFound)

	// Removing again is a no-op
	assert.NoError(t, st.RemoveBorrowedRecord(ctx, item))
}

func TestListBorrowed(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, st.RecordBorrowed(ctx, json.RawMessage(`{"ip":"10.0.0.1"}`), "tok-1"))
	require.NoError(t, st.RecordBorrowed(ctx, json.RawMessage(`{"ip":"10.0.0.2"}`), "tok-2"))

	borrowed, err := st.ListBorrowed(ctx)
	require.NoError(t, err)
	require.Len(t, borrowed, 2)

	tokens := map[string]bool{}
	for _, b := range borrowed {
		tokens[b.BorrowToken] = true
	}
	assert.True(t, tokens["tok-1"])
	assert.True(t, tokens["tok-2"])
}

func TestDeleteItem(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	item := json.RawMessage(`{"ip":"10.0.0.1"}`)

	require.NoError(t, st.ReturnItem(ctx, item))
	assert.NoError(t, st.DeleteItem(ctx, item))
	assert.ErrorIs(t, st.DeleteItem(ctx, item), ErrNotFound)
}

func TestDeleteBorrowed(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	item := json.RawMessage(`{"ip":"10.0.0.1"}`)

	require.NoError(t, st.RecordBorrowed(ctx, item, "tok-1"))
	assert.NoError(t, st.DeleteBorrowed(ctx, item))
	assert.ErrorIs(t, st.DeleteBorrowed(ctx, item), ErrNotFound)

	// The item was not returned to the pool
	items, err := st.ListItems(ctx)
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestForceReturn(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	item := json.RawMessage(`{"ip":"10.0.0.1"}`)

	require.NoError(t, st.RecordBorrowed(ctx, item, "tok-1"))
	require.NoError(t, st.ForceReturn(ctx, item))

	items, err := st.ListItems(ctx)
	require.NoError(t, err)
	assert.Len(t, items, 1)
	assert.ErrorIs(t, st.VerifyBorrowToken(ctx, item, "tok-1"), ErrNotFound)
}

func TestNewFromURL_Invalid(t *testing.T) {
	_, err := NewFromURL("not-a-redis-url")
	assert.Error(t, err)
}

func TestStoredItemsAreOpaque(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	// Items of any JSON shape round-trip untouched apart from key ordering
	for _, raw := range []string{
		`"bare string"`,
		`42`,
		`[1,2,3]`,
		`{"nested":{"deep":{"value":true}}}`,
		`{"serial":9007199254740993}`,
	} {
		require.NoError(t, st.ReturnItem(ctx, json.RawMessage(raw)))
		item, err := st.Borrow(ctx)
		require.NoError(t, err)
		// Inputs are already in canonical form, so the stored member must
		// match byte for byte. JSONEq would hide float64 rounding of the
		// large serial.
		assert.Equal(t, raw, string(item))
	}
}

func TestClientAccessor(t *testing.T) {
	st := newTestStore(t)
	var _ *redis.Client = st.Client()
	assert.NotNil(t, st.Client())
}
