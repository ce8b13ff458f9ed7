package concurrency

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smilemakc/mbflow/internal/domain"
)

func TestLimiter_UnlimitedAlwaysAcquires(t *testing.T) {
	l := NewLimiter(0)
	for i := 0; i < 100; i++ {
		rel, err := l.Acquire(context.Background(), domain.PriorityNormal)
		require.NoError(t, err)
		rel.Dispose()
	}
}

func TestLimiter_BlocksAtCapacityAndReleases(t *testing.T) {
	l := NewLimiter(1)

	rel, err := l.Acquire(context.Background(), domain.PriorityNormal)
	require.NoError(t, err)

	acquired := make(chan struct{})
	go func() {
		r, err := l.Acquire(context.Background(), domain.PriorityNormal)
		require.NoError(t, err)
		close(acquired)
		r.Dispose()
	}()

	select {
	case <-acquired:
		t.Fatal("second Acquire should block while the only slot is held")
	case <-time.After(50 * time.Millisecond):
	}

	rel.Dispose()

	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("second Acquire should unblock after release")
	}
}

func TestLimiter_DisposeIsIdempotent(t *testing.T) {
	l := NewLimiter(1)
	rel, err := l.Acquire(context.Background(), domain.PriorityHigh)
	require.NoError(t, err)
	rel.Dispose()
	rel.Dispose() // must not panic or double-free the slot

	rel2, err := l.Acquire(context.Background(), domain.PriorityHigh)
	require.NoError(t, err)
	rel2.Dispose()
}

func TestLimiter_CancelledContextUnblocksWaiter(t *testing.T) {
	l := NewLimiter(1)
	rel, err := l.Acquire(context.Background(), domain.PriorityNormal)
	require.NoError(t, err)
	defer rel.Dispose()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err = l.Acquire(ctx, domain.PriorityNormal)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestLimiter_HighPriorityServedBeforeLow(t *testing.T) {
	l := NewLimiter(1)
	rel, err := l.Acquire(context.Background(), domain.PriorityNormal)
	require.NoError(t, err)

	var order []domain.Priority
	var mu sync.Mutex
	var wg sync.WaitGroup

	queueAndRecord := func(p domain.Priority) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r, err := l.Acquire(context.Background(), p)
			require.NoError(t, err)
			mu.Lock()
			order = append(order, p)
			mu.Unlock()
			r.Dispose()
		}()
		time.Sleep(10 * time.Millisecond) // ensure queue order
	}

	queueAndRecord(domain.PriorityLow)
	queueAndRecord(domain.PriorityHigh)

	rel.Dispose()
	wg.Wait()

	require.Len(t, order, 2)
	assert.Equal(t, domain.PriorityHigh, order[0], "high priority waiter should be served first")
}

func TestLimiter_DisposeCancelsQueuedWaiters(t *testing.T) {
	l := NewLimiter(1)
	rel, err := l.Acquire(context.Background(), domain.PriorityNormal)
	require.NoError(t, err)
	defer rel.Dispose()

	errCh := make(chan error, 1)
	go func() {
		_, err := l.Acquire(context.Background(), domain.PriorityNormal)
		errCh <- err
	}()

	time.Sleep(20 * time.Millisecond)
	l.Dispose()

	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, ErrLimiterDisposed)
	case <-time.After(time.Second):
		t.Fatal("queued waiter should be released by Dispose")
	}
}
