package queue

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smilemakc/mbflow/internal/domain"
)

func TestDeadLetterQueue_AppendAndList(t *testing.T) {
	dlq := NewDeadLetterQueue()
	assert.Equal(t, 0, dlq.Count())

	dlq.Append(domain.DeadLetter{
		Original: domain.Message{WorkflowInstanceID: "i1"},
		TargetID: "n1",
		Reason:   domain.ReasonTargetQueueFull,
	})
	dlq.Append(domain.DeadLetter{
		Original: domain.Message{WorkflowInstanceID: "i2"},
		TargetID: "n2",
		Reason:   domain.ReasonTargetQueueNotFound,
	})

	require.Equal(t, 2, dlq.Count())
	assert.Len(t, dlq.List(), 2)
}

func TestDeadLetterQueue_ListForInstanceFilters(t *testing.T) {
	dlq := NewDeadLetterQueue()
	dlq.Append(domain.DeadLetter{Original: domain.Message{WorkflowInstanceID: "i1"}, TargetID: "n1"})
	dlq.Append(domain.DeadLetter{Original: domain.Message{WorkflowInstanceID: "i2"}, TargetID: "n2"})
	dlq.Append(domain.DeadLetter{Original: domain.Message{WorkflowInstanceID: "i1"}, TargetID: "n3"})

	entries := dlq.ListForInstance("i1")
	require.Len(t, entries, 2)
	assert.Equal(t, "n1", entries[0].TargetID)
	assert.Equal(t, "n3", entries[1].TargetID)

	assert.Empty(t, dlq.ListForInstance("unknown"))
}

func TestDeadLetterQueue_ListReturnsSnapshot(t *testing.T) {
	dlq := NewDeadLetterQueue()
	dlq.Append(domain.DeadLetter{Original: domain.Message{WorkflowInstanceID: "i1"}})

	snapshot := dlq.List()
	dlq.Append(domain.DeadLetter{Original: domain.Message{WorkflowInstanceID: "i2"}})

	assert.Len(t, snapshot, 1, "mutating the queue after List must not affect the returned snapshot")
	assert.Equal(t, 2, dlq.Count())
}
