// Package concurrency implements the workflow-wide priority-aware
// concurrency limiter and the per-node-kind throttler.
package concurrency

import (
	"context"
	"errors"
	"sync"

	"github.com/smilemakc/mbflow/internal/domain"
)

// ErrLimiterDisposed is returned by Acquire once the limiter has been
// disposed, including by a queued Acquire call that Dispose cancels before
// a slot became available.
var ErrLimiterDisposed = errors.New("concurrency: limiter disposed")

// Release is an idempotent handle returned by Acquire; disposing it twice
// releases a slot exactly once.
type Release struct {
	once sync.Once
	fn   func()
}

// Dispose runs the release exactly once, no matter how many times called.
func (r *Release) Dispose() {
	r.once.Do(func() {
		if r.fn != nil {
			r.fn()
		}
	})
}

type waiter struct {
	ready chan bool // true: granted a slot; false: cancelled by Dispose
	done  bool
}

// Limiter is the workflow-wide priority-aware slot allocator. A limit of 0
// means unlimited: Acquire always succeeds immediately.
type Limiter struct {
	mu       sync.Mutex
	limit    int
	free     int
	cursor   int
	queues   [domain.NumPriorities][]*waiter
	disposed bool
}

// NewLimiter creates a Limiter with the given total slot count. A limit
// <= 0 means unlimited.
func NewLimiter(limit int) *Limiter {
	return &Limiter{limit: limit, free: limit}
}

// Acquire blocks until a slot is available at the given priority or ctx is
// cancelled. It returns a Release handle on success.
func (l *Limiter) Acquire(ctx context.Context, priority domain.Priority) (*Release, error) {
	if l.limit <= 0 {
		return &Release{}, nil
	}

	l.mu.Lock()
	if !l.disposed && l.free > 0 {
		l.free--
		l.mu.Unlock()
		return l.newRelease(), nil
	}
	if l.disposed {
		l.mu.Unlock()
		return nil, ErrLimiterDisposed
	}

	w := &waiter{ready: make(chan bool, 1)}
	idx := int(priority)
	l.queues[idx] = append(l.queues[idx], w)
	l.mu.Unlock()

	select {
	case granted := <-w.ready:
		if !granted {
			return nil, ErrLimiterDisposed
		}
		return l.newRelease(), nil
	case <-ctx.Done():
		l.removeWaiter(idx, w)
		return nil, ctx.Err()
	}
}

func (l *Limiter) removeWaiter(idx int, w *waiter) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if w.done {
		// Already handed a slot by release() racing with cancellation;
		// hand it back to the free pool since this caller is abandoning it.
		l.free++
		l.wakeNext()
		return
	}
	q := l.queues[idx]
	for i, qw := range q {
		if qw == w {
			l.queues[idx] = append(q[:i], q[i+1:]...)
			break
		}
	}
}

func (l *Limiter) newRelease() *Release {
	return &Release{fn: l.release}
}

func (l *Limiter) release() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.disposed {
		return
	}
	l.free++
	l.wakeNext()
}

// wakeNext hands one free slot to the next waiter found by scanning
// priorities starting from the rotating cursor, or leaves it in the free
// pool if no waiters exist. Must be called with l.mu held.
func (l *Limiter) wakeNext() {
	for i := 0; i < domain.NumPriorities; i++ {
		idx := (l.cursor + i) % domain.NumPriorities
		q := l.queues[idx]
		if len(q) == 0 {
			continue
		}
		w := q[0]
		l.queues[idx] = q[1:]
		l.free--
		w.done = true
		w.ready <- true
		l.cursor = (idx + 1) % domain.NumPriorities
		return
	}
}

// Dispose cancels all queued waiters: each queued Acquire call returns
// ErrLimiterDisposed. Waiters already handed a slot keep it, and releases
// made after Dispose do not return slots to the pool.
func (l *Limiter) Dispose() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.disposed {
		return
	}
	l.disposed = true
	for i := range l.queues {
		for _, w := range l.queues[i] {
			if !w.done {
				w.done = true
				w.ready <- false
			}
		}
		l.queues[i] = nil
	}
}
