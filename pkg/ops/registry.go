package ops

import "sync"

// Registry is a thread-safe in-memory table of operations keyed by id.
// Writers briefly hold the exclusive lock for insert/update; readers take
// the shared lock for get/list.
type Registry struct {
	mu  sync.RWMutex
	ops map[string]*Operation
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{ops: make(map[string]*Operation)}
}

// Create inserts a new Pending operation. subscribers seeds the
// per-subscriber status map (all Pending); mustSucceed names the required
// subset.
func (r *Registry) Create(id string, item []byte, subscribers, mustSucceed []string) *Operation {
	op := &Operation{
		ID:          id,
		Item:        item,
		Status:      StatusPending,
		MustSucceed: append([]string(nil), mustSucceed...),
		Subscribers: make(map[string]Status, len(subscribers)),
	}
	for _, name := range subscribers {
		op.Subscribers[name] = StatusPending
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.ops[id] = op
	return op.clone()
}

// Get returns a copy of the operation, or false if the id is unknown.
func (r *Registry) Get(id string) (*Operation, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	op, ok := r.ops[id]
	if !ok {
		return nil, false
	}
	return op.clone(), true
}

// SetStatus advances the operation's status. Status only moves forward
// through Pending → InProgress → {Succeeded, Failed}; terminal states are
// immutable and backwards transitions are refused. Returns false when the
// id is unknown or the transition was rejected.
func (r *Registry) SetStatus(id string, status Status) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	op, ok := r.ops[id]
	if !ok {
		return false
	}
	if op.Status.Terminal() {
		return false
	}
	if status == StatusPending && op.Status != StatusPending {
		return false
	}
	op.Status = status
	return true
}

// SetMessage records human-readable failure detail. No-op on terminal
// operations: the message is set before the terminal transition.
func (r *Registry) SetMessage(id, message string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	op, ok := r.ops[id]
	if !ok || op.Status.Terminal() {
		return false
	}
	op.Message = message
	return true
}

// SetSubscriberStatus records the per-operation status of one subscriber.
// No-op once the operation is terminal, like SetStatus and SetMessage.
func (r *Registry) SetSubscriberStatus(id, name string, status Status) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	op, ok := r.ops[id]
	if !ok || op.Status.Terminal() {
		return false
	}
	op.Subscribers[name] = status
	return true
}

// All returns copies of every operation, in no particular order.
func (r *Registry) All() []*Operation {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Operation, 0, len(r.ops))
	for _, op := range r.ops {
		out = append(out, op.clone())
	}
	return out
}

// Delete removes the operation. Returns false if the id was unknown.
func (r *Registry) Delete(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.ops[id]; !ok {
		return false
	}
	delete(r.ops, id)
	return true
}
