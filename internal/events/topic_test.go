package events

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTopic_PublishDeliversToAllSubscribers(t *testing.T) {
	topic := NewTopic[int]()
	ch1, unsub1 := topic.Subscribe(4)
	defer unsub1()
	ch2, unsub2 := topic.Subscribe(4)
	defer unsub2()

	topic.Publish(7)

	assert.Equal(t, 7, <-ch1)
	assert.Equal(t, 7, <-ch2)
}

func TestTopic_PublishDropsOnFullBuffer(t *testing.T) {
	topic := NewTopic[int]()
	ch, unsub := topic.Subscribe(1)
	defer unsub()

	topic.Publish(1)
	topic.Publish(2) // buffer full, should drop rather than block

	select {
	case v := <-ch:
		assert.Equal(t, 1, v)
	case <-time.After(time.Second):
		t.Fatal("expected the first published value to be buffered")
	}

	select {
	case v, ok := <-ch:
		t.Fatalf("unexpected second value delivered: %v ok=%v", v, ok)
	case <-time.After(20 * time.Millisecond):
	}
}

func TestTopic_UnsubscribeClosesChannel(t *testing.T) {
	topic := NewTopic[int]()
	ch, unsub := topic.Subscribe(1)
	unsub()

	_, ok := <-ch
	assert.False(t, ok)
}

func TestTopic_CompleteClosesAllSubscribers(t *testing.T) {
	topic := NewTopic[int]()
	ch1, _ := topic.Subscribe(1)
	ch2, _ := topic.Subscribe(1)

	topic.Complete()

	_, ok1 := <-ch1
	_, ok2 := <-ch2
	assert.False(t, ok1)
	assert.False(t, ok2)
}

func TestTopic_SubscribeAfterCompleteReturnsClosedChannel(t *testing.T) {
	topic := NewTopic[int]()
	topic.Complete()

	ch, unsub := topic.Subscribe(1)
	defer unsub()

	_, ok := <-ch
	assert.False(t, ok)
}

func TestTopic_PublishAfterCompleteIsNoop(t *testing.T) {
	topic := NewTopic[int]()
	topic.Complete()
	require.NotPanics(t, func() { topic.Publish(1) })
}

func TestTopic_CompleteIsIdempotent(t *testing.T) {
	topic := NewTopic[int]()
	topic.Subscribe(1)
	topic.Complete()
	assert.NotPanics(t, func() { topic.Complete() })
}
