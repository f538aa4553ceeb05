// Package subscribers delivers pool lifecycle notifications to the
// configured webhook endpoints and enforces must-succeed semantics.
package subscribers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/codeready-toolchain/poolbroker/pkg/config"
	"github.com/codeready-toolchain/poolbroker/pkg/ops"
	"github.com/codeready-toolchain/poolbroker/pkg/version"
)

// Kind is the pool event being dispatched.
type Kind string

const (
	KindBorrow Kind = "borrow"
	KindReturn Kind = "return"
	KindSubmit Kind = "submit"
)

const (
	// requestTimeout bounds a single POST or status poll.
	requestTimeout = 30 * time.Second

	// defaultPollInterval is the fixed tick between async status polls.
	defaultPollInterval = 2 * time.Second

	// defaultMaxPollAttempts bounds async polling to roughly one hour at
	// the default interval.
	defaultMaxPollAttempts = 1800
)

// Error reports a must-succeed subscriber failure. Best-effort subscriber
// failures are logged and never surface as an Error.
type Error struct {
	Subscriber  string
	MustSucceed bool
	Message     string
}

func (e *Error) Error() string {
	return fmt.Sprintf("subscriber %q failed: %s", e.Subscriber, e.Message)
}

// StatusFunc receives per-subscriber progress so the caller can mirror it
// into the operation record. May be nil.
type StatusFunc func(name string, status ops.Status)

// Dispatcher POSTs event payloads to subscribers over a single shared,
// pooled HTTP client and polls async subscribers to completion. It never
// retries and never rolls back already-notified subscribers; compensation is
// the workflow engine's responsibility.
type Dispatcher struct {
	http            *http.Client
	pollInterval    time.Duration
	maxPollAttempts int
}

// NewDispatcher creates a Dispatcher with the default HTTP client and
// polling parameters.
func NewDispatcher() *Dispatcher {
	return &Dispatcher{
		http:            &http.Client{Timeout: requestTimeout},
		pollInterval:    defaultPollInterval,
		maxPollAttempts: defaultMaxPollAttempts,
	}
}

// eventPayload is the body POSTed to subscribers. Params is only carried for
// borrow and return events.
type eventPayload struct {
	Item   json.RawMessage `json:"item"`
	Params json.RawMessage `json:"params,omitempty"`
}

// asyncAck is the 2xx response body of an async must-succeed subscriber.
type asyncAck struct {
	OperationID string `json:"operation_id"`
	Status      string `json:"status"`
}

// pollResponse is the body of the async status endpoint.
type pollResponse struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// Dispatch POSTs the event to every configured subscriber, in name order.
// A must-succeed failure short-circuits the remainder and returns an *Error;
// best-effort failures are logged and skipped. A nil return means every
// must-succeed subscriber acknowledged.
func (d *Dispatcher) Dispatch(ctx context.Context, kind Kind, subs map[string]config.Subscriber, item, params json.RawMessage, onStatus StatusFunc) error {
	payload := eventPayload{Item: item}
	if kind != KindSubmit {
		payload.Params = params
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s payload: %w", kind, err)
	}

	// Stable iteration order: map order is randomized in Go.
	names := make([]string, 0, len(subs))
	for name := range subs {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		def := subs[name]
		if onStatus != nil {
			onStatus(name, ops.StatusInProgress)
		}
		if err := d.notifyOne(ctx, kind, name, def, body); err != nil {
			if onStatus != nil {
				onStatus(name, ops.StatusFailed)
			}
			if def.MustSucceed {
				return err
			}
			slog.Warn("Best-effort subscriber failed",
				"kind", string(kind), "subscriber", name, "error", err)
			continue
		}
		if onStatus != nil {
			onStatus(name, ops.StatusSucceeded)
		}
	}
	return nil
}

// notifyOne sends the POST to a single subscriber and, for async
// must-succeed subscribers, polls its status endpoint to a terminal state.
func (d *Dispatcher) notifyOne(ctx context.Context, kind Kind, name string, def config.Subscriber, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, def.Post, bytes.NewReader(body))
	if err != nil {
		return &Error{Subscriber: name, MustSucceed: def.MustSucceed, Message: err.Error()}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", version.Full())

	resp, err := d.http.Do(req)
	if err != nil {
		return &Error{Subscriber: name, MustSucceed: def.MustSucceed, Message: err.Error()}
	}
	respBody, readErr := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	_ = resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &Error{Subscriber: name, MustSucceed: def.MustSucceed,
			Message: fmt.Sprintf("POST %s returned status %d", def.Post, resp.StatusCode)}
	}
	if !def.MustSucceed || !def.Async {
		return nil
	}
	if readErr != nil {
		return &Error{Subscriber: name, MustSucceed: true,
			Message: fmt.Sprintf("read acknowledgment body: %v", readErr)}
	}

	var ack asyncAck
	if err := json.Unmarshal(respBody, &ack); err != nil {
		return &Error{Subscriber: name, MustSucceed: true,
			Message: fmt.Sprintf("invalid acknowledgment body: %v", err)}
	}
	if ack.OperationID == "" {
		return &Error{Subscriber: name, MustSucceed: true,
			Message: "acknowledgment is missing operation_id"}
	}

	statusURL, err := statusURL(def.Post, ack.OperationID)
	if err != nil {
		return &Error{Subscriber: name, MustSucceed: true, Message: err.Error()}
	}
	return d.pollStatus(ctx, name, statusURL)
}

// pollStatus polls the subscriber's status endpoint at a fixed interval
// until it reports a terminal status or the attempt budget runs out.
// Transport errors and non-2xx responses abort immediately.
func (d *Dispatcher) pollStatus(ctx context.Context, name, statusURL string) error {
	ticker := time.NewTicker(d.pollInterval)
	defer ticker.Stop()

	for attempt := 0; attempt < d.maxPollAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return &Error{Subscriber: name, MustSucceed: true, Message: ctx.Err().Error()}
		case <-ticker.C:
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, statusURL, nil)
		if err != nil {
			return &Error{Subscriber: name, MustSucceed: true, Message: err.Error()}
		}
		req.Header.Set("User-Agent", version.Full())

		resp, err := d.http.Do(req)
		if err != nil {
			return &Error{Subscriber: name, MustSucceed: true,
				Message: fmt.Sprintf("status poll: %v", err)}
		}
		body, readErr := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		_ = resp.Body.Close()
		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			return &Error{Subscriber: name, MustSucceed: true,
				Message: fmt.Sprintf("status poll returned status %d", resp.StatusCode)}
		}
		if readErr != nil {
			return &Error{Subscriber: name, MustSucceed: true,
				Message: fmt.Sprintf("read status body: %v", readErr)}
		}

		var st pollResponse
		if err := json.Unmarshal(body, &st); err != nil {
			return &Error{Subscriber: name, MustSucceed: true,
				Message: fmt.Sprintf("invalid status body: %v", err)}
		}

		switch strings.ToLower(st.Status) {
		case "succeeded", "success", "ok":
			return nil
		case "failed", "error":
			msg := st.Message
			if msg == "" {
				msg = "subscriber reported " + st.Status
			}
			return &Error{Subscriber: name, MustSucceed: true, Message: msg}
		default:
			// Still in progress, keep polling.
		}
	}
	return &Error{Subscriber: name, MustSucceed: true,
		Message: fmt.Sprintf("timed out after %d status polls", d.maxPollAttempts)}
}

// statusURL derives the async status endpoint from the subscriber's POST
// URL: same host, path replaced with /operations/status, query id=<opID>.
func statusURL(postURL, operationID string) (string, error) {
	u, err := url.Parse(postURL)
	if err != nil {
		return "", fmt.Errorf("parse subscriber url: %w", err)
	}
	u.Path = "/operations/status"
	u.RawQuery = url.Values{"id": {operationID}}.Encode()
	u.Fragment = ""
	return u.String(), nil
}
