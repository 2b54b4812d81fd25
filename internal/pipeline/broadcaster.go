package pipeline

import (
	"sync"

	"github.com/Faiz-k/Intentify/internal/util"
)

// Broadcaster provides a generic pub/sub mechanism that distributes values
// to multiple subscribers. Slow subscribers are dropped rather than allowed
// to stall the producer.
type Broadcaster[T any] struct {
	name        string
	mu          sync.RWMutex
	subscribers map[string]chan T
	closed      bool
}

// NewBroadcaster creates a new broadcaster instance.
func NewBroadcaster[T any](name string) *Broadcaster[T] {
	return &Broadcaster[T]{
		name:        name,
		subscribers: make(map[string]chan T),
	}
}

// Subscribe adds a new subscriber with the given ID and returns a channel
// that will receive broadcasted values. Subscribing to a closed broadcaster
// yields a closed channel.
func (b *Broadcaster[T]) Subscribe(subscriberID string, bufferSize int) <-chan T {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		ch := make(chan T)
		close(ch)
		return ch
	}

	if old, exists := b.subscribers[subscriberID]; exists {
		close(old)
	}

	ch := make(chan T, bufferSize)
	b.subscribers[subscriberID] = ch

	util.GetLogger().Debug("New subscriber added", "broadcaster", b.name, "id", subscriberID, "total", len(b.subscribers))
	return ch
}

// Unsubscribe removes a subscriber and closes its channel.
func (b *Broadcaster[T]) Unsubscribe(subscriberID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if ch, exists := b.subscribers[subscriberID]; exists {
		close(ch)
		delete(b.subscribers, subscriberID)
		util.GetLogger().Debug("Subscriber removed", "broadcaster", b.name, "id", subscriberID, "remaining", len(b.subscribers))
	}
}

// Broadcast sends v to all current subscribers. If a subscriber's
// channel is full, that subscriber will be dropped.
func (b *Broadcaster[T]) Broadcast(v T) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}

	for id, ch := range b.subscribers {
		select {
		case ch <- v:
		default:
			close(ch)
			delete(b.subscribers, id)
			util.GetLogger().Warn("Dropping subscriber due to full channel", "broadcaster", b.name, "id", id)
		}
	}
}

// Close shuts down the broadcaster and closes all subscriber channels.
func (b *Broadcaster[T]) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}

	b.closed = true
	for id, ch := range b.subscribers {
		close(ch)
		delete(b.subscribers, id)
	}
	util.GetLogger().Debug("Broadcaster closed", "broadcaster", b.name)
}

// GetSubscriberCount returns the current number of subscribers.
func (b *Broadcaster[T]) GetSubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}
