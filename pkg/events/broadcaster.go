// Package events provides the per-operation fan-out bus delivering
// state-change messages to live listeners (the SSE streams).
package events

import "sync"

// listenerBuffer is the per-listener channel capacity. A listener lagging by
// more than this many messages starts missing them; that is the explicit
// contract, and clients re-fetch terminal state via the polling endpoint.
const listenerBuffer = 64

// Broadcaster is a map from operation id to a set of listener channels.
// Producers are the workflow engine; consumers are live event streams.
type Broadcaster struct {
	mu        sync.RWMutex
	listeners map[string]map[chan []byte]struct{}
}

// NewBroadcaster creates an empty broadcaster.
func NewBroadcaster() *Broadcaster {
	return &Broadcaster{listeners: make(map[string]map[chan []byte]struct{})}
}

// Subscribe registers a listener for an operation id and returns its channel
// together with a cancel function. Subscribing to an unknown id is valid:
// the entry is created so a late subscriber still receives any future
// publications. Every message published after Subscribe returns is delivered
// in publication order, up to the listener's buffer capacity.
func (b *Broadcaster) Subscribe(id string) (<-chan []byte, func()) {
	ch := make(chan []byte, listenerBuffer)

	b.mu.Lock()
	set, ok := b.listeners[id]
	if !ok {
		set = make(map[chan []byte]struct{})
		b.listeners[id] = set
	}
	set[ch] = struct{}{}
	b.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			b.mu.Lock()
			if set, ok := b.listeners[id]; ok {
				delete(set, ch)
				if len(set) == 0 {
					delete(b.listeners, id)
				}
			}
			b.mu.Unlock()
		})
	}
	return ch, cancel
}

// Publish delivers payload to every listener of the operation. It never
// blocks and never fails visibly: a full listener channel simply drops the
// message.
func (b *Broadcaster) Publish(id string, payload []byte) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for ch := range b.listeners[id] {
		select {
		case ch <- payload:
		default:
		}
	}
}

// listenerCount reports the number of live listeners for an id. Used by
// tests to poll instead of sleeping.
func (b *Broadcaster) listenerCount(id string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.listeners[id])
}
