package queue

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smilemakc/mbflow/internal/domain"
)

func TestInbox_TryEnqueueRespectsCapacity(t *testing.T) {
	b := NewInbox(2)
	assert.True(t, b.TryEnqueue(domain.Message{Type: domain.MessageComplete}))
	assert.True(t, b.TryEnqueue(domain.Message{Type: domain.MessageComplete}))
	assert.False(t, b.TryEnqueue(domain.Message{Type: domain.MessageComplete}), "third enqueue should fail, inbox full")
	assert.Equal(t, 2, b.Count())
}

func TestInbox_DefaultCapacityUsedWhenNonPositive(t *testing.T) {
	b := NewInbox(0)
	for i := 0; i < DefaultCapacity; i++ {
		require.True(t, b.TryEnqueue(domain.Message{}))
	}
	assert.False(t, b.TryEnqueue(domain.Message{}))
}

func TestInbox_DequeueFIFO(t *testing.T) {
	b := NewInbox(4)
	b.TryEnqueue(domain.Message{SourceNodeID: "a"})
	b.TryEnqueue(domain.Message{SourceNodeID: "b"})

	m1, ok := b.Dequeue(context.Background())
	require.True(t, ok)
	assert.Equal(t, "a", m1.SourceNodeID)

	m2, ok := b.Dequeue(context.Background())
	require.True(t, ok)
	assert.Equal(t, "b", m2.SourceNodeID)
}

func TestInbox_EnqueueBlocksThenTimesOut(t *testing.T) {
	b := NewInbox(1)
	require.True(t, b.TryEnqueue(domain.Message{}))

	err := b.Enqueue(context.Background(), domain.Message{}, 20*time.Millisecond)
	assert.ErrorIs(t, err, ErrEnqueueTimeout)
}

func TestInbox_EnqueueUnblocksOnDequeue(t *testing.T) {
	b := NewInbox(1)
	require.True(t, b.TryEnqueue(domain.Message{}))

	done := make(chan error, 1)
	go func() {
		done <- b.Enqueue(context.Background(), domain.Message{}, time.Second)
	}()

	time.Sleep(10 * time.Millisecond)
	_, ok := b.Dequeue(context.Background())
	require.True(t, ok)

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Enqueue should unblock once a slot frees up")
	}
}

func TestInbox_CloseWakesDequeue(t *testing.T) {
	b := NewInbox(1)
	done := make(chan bool, 1)
	go func() {
		_, ok := b.Dequeue(context.Background())
		done <- ok
	}()

	time.Sleep(10 * time.Millisecond)
	b.Close()

	select {
	case ok := <-done:
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("Dequeue should wake up once the inbox is closed")
	}
}

func TestInbox_EnqueueAfterCloseFails(t *testing.T) {
	b := NewInbox(1)
	b.Close()
	err := b.Enqueue(context.Background(), domain.Message{}, 0)
	assert.ErrorIs(t, err, ErrInboxClosed)
	assert.False(t, b.TryEnqueue(domain.Message{}))
}

func TestInbox_CloseIsIdempotent(t *testing.T) {
	b := NewInbox(1)
	b.Close()
	assert.NotPanics(t, func() { b.Close() })
}

func TestInbox_Drain(t *testing.T) {
	b := NewInbox(4)
	b.TryEnqueue(domain.Message{SourceNodeID: "a"})
	b.TryEnqueue(domain.Message{SourceNodeID: "b"})

	drained := b.Drain()
	require.Len(t, drained, 2)
	assert.Equal(t, 0, b.Count())
	assert.Empty(t, b.Drain(), "second drain on an empty inbox returns nothing")
}
