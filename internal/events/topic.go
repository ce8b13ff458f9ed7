// Package events implements the observable event and progress streams:
// a generic multi-subscriber topic, completed when the owning workflow
// context is disposed.
package events

import "sync"

// Topic is a generic multi-subscriber publish/subscribe channel. Each
// Subscribe call gets its own buffered channel fed in publish order;
// Complete closes every subscriber channel, after which further Publish
// calls are no-ops.
type Topic[T any] struct {
	mu          sync.Mutex
	subscribers map[int]chan T
	nextID      int
	completed   bool
}

// NewTopic creates an empty Topic.
func NewTopic[T any]() *Topic[T] {
	return &Topic[T]{subscribers: make(map[int]chan T)}
}

// Subscribe registers a new subscriber with the given channel buffer size
// and returns the channel plus an unsubscribe function. If the topic has
// already completed, the returned channel is immediately closed.
func (t *Topic[T]) Subscribe(buffer int) (<-chan T, func()) {
	t.mu.Lock()
	defer t.mu.Unlock()

	ch := make(chan T, buffer)
	if t.completed {
		close(ch)
		return ch, func() {}
	}

	id := t.nextID
	t.nextID++
	t.subscribers[id] = ch

	unsubscribe := func() {
		t.mu.Lock()
		defer t.mu.Unlock()
		if sub, ok := t.subscribers[id]; ok {
			delete(t.subscribers, id)
			close(sub)
		}
	}
	return ch, unsubscribe
}

// Publish sends value to every current subscriber. A subscriber whose
// buffer is full drops the value rather than blocking the publisher,
// since event delivery is best-effort diagnostic output, not a control
// path.
func (t *Topic[T]) Publish(value T) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.completed {
		return
	}
	for _, ch := range t.subscribers {
		select {
		case ch <- value:
		default:
		}
	}
}

// Complete closes every subscriber channel and marks the topic finished.
// Subsequent Subscribe calls receive an already-closed channel.
func (t *Topic[T]) Complete() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.completed {
		return
	}
	t.completed = true
	for id, ch := range t.subscribers {
		close(ch)
		delete(t.subscribers, id)
	}
}
