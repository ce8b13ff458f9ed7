// Package queue implements the per-node bounded inboxes and the global
// dead-letter queue that the router and engine dispatch loop read from and
// write to.
package queue

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/smilemakc/mbflow/internal/domain"
)

// DefaultCapacity is the inbox capacity used when a node does not specify
// one.
const DefaultCapacity = 1024

// ErrInboxClosed is returned by Enqueue once the inbox has been closed.
var ErrInboxClosed = errors.New("queue: inbox closed")

// ErrEnqueueTimeout is returned by Enqueue when the inbox stays full for
// longer than the given timeout.
var ErrEnqueueTimeout = errors.New("queue: enqueue timed out, inbox full")

// Inbox is a bounded FIFO queue of messages addressed to one node,
// implemented as a buffered channel. It implements domain.Inbox.
type Inbox struct {
	ch chan domain.Message

	mu     sync.Mutex
	closed bool
}

// NewInbox creates an Inbox with the given capacity. A capacity of 0 or
// less uses DefaultCapacity.
func NewInbox(capacity int) *Inbox {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Inbox{ch: make(chan domain.Message, capacity)}
}

// TryEnqueue appends m without blocking, reporting false if the inbox is
// full or closed.
func (b *Inbox) TryEnqueue(m domain.Message) bool {
	b.mu.Lock()
	closed := b.closed
	b.mu.Unlock()
	if closed {
		return false
	}
	select {
	case b.ch <- m:
		return true
	default:
		return false
	}
}

// Enqueue blocks until there is room, ctx is done, or timeout elapses.
// timeout <= 0 means wait indefinitely (bounded only by ctx).
func (b *Inbox) Enqueue(ctx context.Context, m domain.Message, timeout time.Duration) error {
	b.mu.Lock()
	closed := b.closed
	b.mu.Unlock()
	if closed {
		return ErrInboxClosed
	}

	var timeoutCh <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		timeoutCh = timer.C
	}

	select {
	case b.ch <- m:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-timeoutCh:
		return ErrEnqueueTimeout
	}
}

// Dequeue blocks until a message is available, ctx is done, or the inbox
// is closed and drained. The second return value is false in the latter
// two cases.
func (b *Inbox) Dequeue(ctx context.Context) (domain.Message, bool) {
	select {
	case m, ok := <-b.ch:
		return m, ok
	case <-ctx.Done():
		return domain.Message{}, false
	}
}

// Count returns the number of messages currently buffered.
func (b *Inbox) Count() int {
	return len(b.ch)
}

// Close marks the inbox closed and closes the underlying channel, waking
// any blocked Dequeue call once drained.
func (b *Inbox) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	b.mu.Unlock()
	close(b.ch)
}

// Drain returns and removes all currently buffered messages without
// blocking, used when checkpointing a running workflow.
func (b *Inbox) Drain() []domain.Message {
	var out []domain.Message
	for {
		select {
		case m, ok := <-b.ch:
			if !ok {
				return out
			}
			out = append(out, m)
		default:
			return out
		}
	}
}
