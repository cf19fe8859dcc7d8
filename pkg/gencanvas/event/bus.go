package event

import (
	"sync"
	"sync/atomic"
)

// Bus fans out node changes to subscribers.
// All methods are safe for concurrent use.
type Bus struct {
	mu     sync.RWMutex
	subs   map[int64]chan NodeChange
	nextID atomic.Int64
	closed bool
}

// DefaultBuffer is the per-subscriber channel buffer when the caller
// passes a non-positive size.
const DefaultBuffer = 64

// NewBus creates a new bus with no subscribers.
func NewBus() *Bus {
	return &Bus{
		subs: make(map[int64]chan NodeChange),
	}
}

// Publish delivers a change to every subscriber. Delivery is
// non-blocking: subscribers whose buffers are full miss the change.
func (b *Bus) Publish(c NodeChange) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return
	}

	for _, ch := range b.subs {
		select {
		case ch <- c:
		default:
			// Subscriber is behind; it will re-read from the store.
		}
	}
}

// Subscribe registers a new subscriber and returns its channel plus an
// unsubscribe function. The channel is closed on unsubscribe or when the
// bus is closed.
func (b *Bus) Subscribe(buffer int) (<-chan NodeChange, func()) {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan NodeChange, buffer)
	if b.closed {
		close(ch)
		return ch, func() {}
	}

	id := b.nextID.Add(1)
	b.subs[id] = ch

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			if _, ok := b.subs[id]; ok {
				delete(b.subs, id)
				close(ch)
			}
		})
	}
	return ch, cancel
}

// Len returns the number of active subscribers. Useful for testing.
func (b *Bus) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Close shuts down the bus and closes all subscriber channels.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true

	for id, ch := range b.subs {
		delete(b.subs, id)
		close(ch)
	}
}
