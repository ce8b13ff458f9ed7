package concurrency

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestThrottler_UnregisteredNodeNeverBlocks(t *testing.T) {
	th := NewThrottler()
	rel, err := th.Acquire(context.Background(), "unregistered")
	require.NoError(t, err)
	assert.Nil(t, rel)
}

func TestThrottler_IndependentNodesDoNotContend(t *testing.T) {
	th := NewThrottler()
	th.Register("a", 1)
	th.Register("b", 1)

	relA, err := th.Acquire(context.Background(), "a")
	require.NoError(t, err)
	defer relA.Dispose()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	relB, err := th.Acquire(ctx, "b")
	require.NoError(t, err, "node b's throttle must be independent of node a's")
	relB.Dispose()
}

func TestThrottler_SameNodeBlocksAtCapacity(t *testing.T) {
	th := NewThrottler()
	th.Register("a", 1)

	rel, err := th.Acquire(context.Background(), "a")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	_, err = th.Acquire(ctx, "a")
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	rel.Dispose()

	rel2, err := th.Acquire(context.Background(), "a")
	require.NoError(t, err)
	rel2.Dispose()
}

func TestThrottler_UnregisterStopsThrottling(t *testing.T) {
	th := NewThrottler()
	th.Register("a", 1)
	rel, err := th.Acquire(context.Background(), "a")
	require.NoError(t, err)
	defer rel.Dispose()

	th.Unregister("a")

	rel2, err := th.Acquire(context.Background(), "a")
	require.NoError(t, err)
	assert.Nil(t, rel2)
}
