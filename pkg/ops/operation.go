// Package ops tracks the lifecycle of asynchronous broker operations
// (returns and submits). Records live for the broker's lifetime unless
// explicitly deleted; they are not persisted across restarts.
package ops

import "encoding/json"

// Status is the lifecycle state of an operation or of a single subscriber
// within it.
type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in_progress"
	StatusSucceeded  Status = "succeeded"
	StatusFailed     Status = "failed"
)

// Terminal reports whether the status is final. Terminal statuses never
// change.
func (s Status) Terminal() bool {
	return s == StatusSucceeded || s == StatusFailed
}

// Operation records the progress of one return or submit workflow.
type Operation struct {
	ID     string          `json:"id"`
	Item   json.RawMessage `json:"item"`
	Status Status          `json:"status"`

	// Message carries human-readable failure detail.
	Message string `json:"message,omitempty"`

	// MustSucceed names the subscribers whose acknowledgment is required.
	MustSucceed []string `json:"must_succeed"`

	// Subscribers maps every configured subscriber for the event kind to
	// its per-operation status. Its key set is always a superset of
	// MustSucceed.
	Subscribers map[string]Status `json:"subscribers"`
}

// clone returns a deep copy so registry callers never share mutable state.
func (o *Operation) clone() *Operation {
	cp := *o
	cp.MustSucceed = append([]string(nil), o.MustSucceed...)
	cp.Subscribers = make(map[string]Status, len(o.Subscribers))
	for name, st := range o.Subscribers {
		cp.Subscribers[name] = st
	}
	return &cp
}
