package router

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smilemakc/mbflow/internal/domain"
	"github.com/smilemakc/mbflow/internal/queue"
)

func newTestContext(nodeIDs ...string) *domain.WorkflowExecutionContext {
	wctx := domain.NewWorkflowExecutionContext("inst-1", "def-1", nil)
	for _, id := range nodeIDs {
		wctx.Inboxes[id] = queue.NewInbox(4)
	}
	return wctx
}

func TestRouter_RouteDeliversToMatchingTarget(t *testing.T) {
	dlq := queue.NewDeadLetterQueue()
	r := New(dlq)
	r.AddRoute(domain.NodeConnection{SourceID: "a", TargetID: "b", Trigger: domain.MessageComplete, IsEnabled: true})

	wctx := newTestContext("a", "b")
	msg := domain.NewCompleteMessage("a", wctx.InstanceID, 0, nil)

	delivered := r.Route(context.Background(), wctx, msg)
	assert.Equal(t, 1, delivered)

	got, ok := wctx.Inboxes["b"].Dequeue(context.Background())
	require.True(t, ok)
	assert.Equal(t, "a", got.SourceNodeID)
}

func TestRouter_SkipsDisabledConnection(t *testing.T) {
	dlq := queue.NewDeadLetterQueue()
	r := New(dlq)
	r.AddRoute(domain.NodeConnection{SourceID: "a", TargetID: "b", Trigger: domain.MessageComplete, IsEnabled: false})

	wctx := newTestContext("a", "b")
	msg := domain.NewCompleteMessage("a", wctx.InstanceID, 0, nil)

	delivered := r.Route(context.Background(), wctx, msg)
	assert.Equal(t, 0, delivered)
}

func TestRouter_SkipsOnTriggerMismatch(t *testing.T) {
	dlq := queue.NewDeadLetterQueue()
	r := New(dlq)
	r.AddRoute(domain.NodeConnection{SourceID: "a", TargetID: "b", Trigger: domain.MessageFail, IsEnabled: true})

	wctx := newTestContext("a", "b")
	msg := domain.NewCompleteMessage("a", wctx.InstanceID, 0, nil)

	assert.Equal(t, 0, r.Route(context.Background(), wctx, msg))
}

func TestRouter_ConditionGatesDelivery(t *testing.T) {
	dlq := queue.NewDeadLetterQueue()
	r := New(dlq)
	r.AddRoute(domain.NodeConnection{
		SourceID: "a", TargetID: "b", Trigger: domain.MessageComplete, IsEnabled: true,
		Condition: "output.score > 10",
	})

	wctx := newTestContext("a", "b")

	lowMsg := domain.NewCompleteMessage("a", wctx.InstanceID, 0, map[string]any{"score": 5})
	assert.Equal(t, 0, r.Route(context.Background(), wctx, lowMsg))

	highMsg := domain.NewCompleteMessage("a", wctx.InstanceID, 0, map[string]any{"score": 20})
	assert.Equal(t, 1, r.Route(context.Background(), wctx, highMsg))
}

func TestRouter_DeadLettersWhenTargetInboxMissing(t *testing.T) {
	dlq := queue.NewDeadLetterQueue()
	r := New(dlq)
	r.AddRoute(domain.NodeConnection{SourceID: "a", TargetID: "ghost", Trigger: domain.MessageComplete, IsEnabled: true})

	wctx := newTestContext("a")
	msg := domain.NewCompleteMessage("a", wctx.InstanceID, 0, nil)

	delivered := r.Route(context.Background(), wctx, msg)
	assert.Equal(t, 0, delivered)
	require.Equal(t, 1, dlq.Count())
	assert.Equal(t, domain.ReasonTargetQueueNotFound, dlq.List()[0].Reason)
}

func TestRouter_FullQueueDeadLetterPolicy(t *testing.T) {
	dlq := queue.NewDeadLetterQueue()
	r := New(dlq)
	r.Policy = FullQueueDeadLetter
	r.AddRoute(domain.NodeConnection{SourceID: "a", TargetID: "b", Trigger: domain.MessageComplete, IsEnabled: true})

	wctx := domain.NewWorkflowExecutionContext("inst-1", "def-1", nil)
	wctx.Inboxes["b"] = queue.NewInbox(1)
	wctx.Inboxes["b"].TryEnqueue(domain.Message{}) // fill capacity

	msg := domain.NewCompleteMessage("a", wctx.InstanceID, 0, nil)
	delivered := r.Route(context.Background(), wctx, msg)

	assert.Equal(t, 0, delivered)
	require.Equal(t, 1, dlq.Count())
	assert.Equal(t, domain.ReasonTargetQueueFull, dlq.List()[0].Reason)
}

func TestRouter_RouteToExplicitTargets(t *testing.T) {
	dlq := queue.NewDeadLetterQueue()
	r := New(dlq)
	wctx := newTestContext("b", "c")
	msg := domain.NewCompleteMessage("a", wctx.InstanceID, 0, nil)

	delivered, err := r.RouteTo(context.Background(), wctx, msg, []string{"b", "c"})
	require.NoError(t, err)
	assert.Equal(t, 2, delivered)
}

func TestRouter_RouteToRequiresTargets(t *testing.T) {
	dlq := queue.NewDeadLetterQueue()
	r := New(dlq)
	wctx := newTestContext()
	_, err := r.RouteTo(context.Background(), wctx, domain.Message{}, nil)
	assert.Error(t, err)
}

func TestRouter_LoadDefinitionIncludesContainerChildren(t *testing.T) {
	dlq := queue.NewDeadLetterQueue()
	r := New(dlq)

	def := &domain.WorkflowDefinition{
		ID: "wf",
		Nodes: []domain.NodeDefinition{
			{ID: "outer", Kind: domain.KindContainer, Connections: []domain.NodeConnection{
				{SourceID: "x", TargetID: "y", Trigger: domain.MessageComplete, IsEnabled: true},
			}},
		},
	}
	r.LoadDefinition(def)
	assert.Equal(t, 1, r.RouteCount())
}

func TestRouter_RemoveRoute(t *testing.T) {
	dlq := queue.NewDeadLetterQueue()
	r := New(dlq)
	conn := domain.NodeConnection{SourceID: "a", TargetID: "b", Trigger: domain.MessageComplete, IsEnabled: true}
	r.AddRoute(conn)
	require.Equal(t, 1, r.RouteCount())

	r.RemoveRoute("a", "b", "", domain.MessageComplete)
	assert.Equal(t, 0, r.RouteCount())
}
