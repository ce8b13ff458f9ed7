package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smilemakc/mbflow/internal/domain"
)

func echoBody(_ context.Context, _ *domain.WorkflowExecutionContext, nctx *domain.NodeExecutionContext) (*domain.NodeInstance, error) {
	return &domain.NodeInstance{NodeID: nctx.NodeID, Status: domain.NodeCompleted, Output: nctx.Input}, nil
}

func waitTerminal(t *testing.T, wctx *domain.WorkflowExecutionContext) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !wctx.Status().IsTerminal() {
		if time.Now().After(deadline) {
			t.Fatalf("workflow did not reach a terminal status in time, last status: %s", wctx.Status())
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestEngine_SequentialChainCompletes(t *testing.T) {
	def := &domain.WorkflowDefinition{
		ID:               "seq",
		EntryPointNodeID: "a",
		Nodes: []domain.NodeDefinition{
			{ID: "a", Kind: domain.KindTask},
			{ID: "b", Kind: domain.KindTask},
			{ID: "c", Kind: domain.KindTask},
		},
		Connections: []domain.NodeConnection{
			{SourceID: "a", TargetID: "b", Trigger: domain.MessageComplete, IsEnabled: true},
			{SourceID: "b", TargetID: "c", Trigger: domain.MessageComplete, IsEnabled: true},
		},
	}
	bodies := map[string]NodeBody{
		"a": NodeBodyFunc(echoBody),
		"b": NodeBodyFunc(echoBody),
		"c": NodeBodyFunc(echoBody),
	}

	e := New(def, bodies, DefaultConfig())
	wctx, err := e.StartAsync()
	require.NoError(t, err)

	waitTerminal(t, wctx)
	assert.Equal(t, domain.WorkflowCompleted, wctx.Status())
}

func TestEngine_ParallelFanOutFanIn(t *testing.T) {
	def := &domain.WorkflowDefinition{
		ID:               "fanout",
		EntryPointNodeID: "start",
		Nodes: []domain.NodeDefinition{
			{ID: "start", Kind: domain.KindTask},
			{ID: "left", Kind: domain.KindTask},
			{ID: "right", Kind: domain.KindTask},
			{ID: "join", Kind: domain.KindTask, JoinPolicy: domain.JoinAll},
		},
		Connections: []domain.NodeConnection{
			{SourceID: "start", TargetID: "left", Trigger: domain.MessageComplete, IsEnabled: true},
			{SourceID: "start", TargetID: "right", Trigger: domain.MessageComplete, IsEnabled: true},
			{SourceID: "left", TargetID: "join", Trigger: domain.MessageComplete, IsEnabled: true},
			{SourceID: "right", TargetID: "join", Trigger: domain.MessageComplete, IsEnabled: true},
		},
	}
	bodies := map[string]NodeBody{
		"start": NodeBodyFunc(echoBody),
		"left":  NodeBodyFunc(echoBody),
		"right": NodeBodyFunc(echoBody),
		"join":  NodeBodyFunc(echoBody),
	}

	e := New(def, bodies, DefaultConfig())
	wctx, err := e.StartAsync()
	require.NoError(t, err)

	waitTerminal(t, wctx)
	assert.Equal(t, domain.WorkflowCompleted, wctx.Status())
}

func TestEngine_NodeFailureMarksWorkflowFailed(t *testing.T) {
	def := &domain.WorkflowDefinition{
		ID:               "failing",
		EntryPointNodeID: "a",
		Nodes: []domain.NodeDefinition{
			{ID: "a", Kind: domain.KindTask},
		},
	}
	bodies := map[string]NodeBody{
		"a": NodeBodyFunc(func(context.Context, *domain.WorkflowExecutionContext, *domain.NodeExecutionContext) (*domain.NodeInstance, error) {
			return nil, errors.New("boom")
		}),
	}

	e := New(def, bodies, DefaultConfig())
	wctx, err := e.StartAsync()
	require.NoError(t, err)

	waitTerminal(t, wctx)
	assert.Equal(t, domain.WorkflowFailed, wctx.Status())
	assert.Equal(t, 0, e.DeadLetters().Count(), "a node failure with no outgoing edges produces no dead letters")
}

func TestEngine_LocallyHandledFailureDoesNotFailWorkflow(t *testing.T) {
	def := &domain.WorkflowDefinition{
		ID:               "locally-handled-failure",
		EntryPointNodeID: "a",
		Nodes: []domain.NodeDefinition{
			{ID: "a", Kind: domain.KindTask},
			{ID: "handler", Kind: domain.KindTask},
		},
		Connections: []domain.NodeConnection{
			{SourceID: "a", TargetID: "handler", Trigger: domain.MessageFail, IsEnabled: true},
		},
	}
	bodies := map[string]NodeBody{
		"a": NodeBodyFunc(func(context.Context, *domain.WorkflowExecutionContext, *domain.NodeExecutionContext) (*domain.NodeInstance, error) {
			return nil, errors.New("boom")
		}),
		"handler": NodeBodyFunc(echoBody),
	}

	e := New(def, bodies, DefaultConfig())
	wctx, err := e.StartAsync()
	require.NoError(t, err)

	waitTerminal(t, wctx)
	assert.Equal(t, domain.WorkflowCompleted, wctx.Status(), "a's failure is routed to an enabled Fail-triggered edge, so it should not fail the workflow")
}

func TestEngine_UnhandledFailureStillFailsWorkflow(t *testing.T) {
	def := &domain.WorkflowDefinition{
		ID:               "unhandled-failure",
		EntryPointNodeID: "a",
		Nodes: []domain.NodeDefinition{
			{ID: "a", Kind: domain.KindTask},
			{ID: "b", Kind: domain.KindTask},
		},
		Connections: []domain.NodeConnection{
			{SourceID: "a", TargetID: "b", Trigger: domain.MessageComplete, IsEnabled: true},
		},
	}
	bodies := map[string]NodeBody{
		"a": NodeBodyFunc(func(context.Context, *domain.WorkflowExecutionContext, *domain.NodeExecutionContext) (*domain.NodeInstance, error) {
			return nil, errors.New("boom")
		}),
		"b": NodeBodyFunc(echoBody),
	}

	e := New(def, bodies, DefaultConfig())
	wctx, err := e.StartAsync()
	require.NoError(t, err)

	waitTerminal(t, wctx)
	assert.Equal(t, domain.WorkflowFailed, wctx.Status(), "a's failure has no Fail-triggered edge, so it must still fail the workflow")
}

func TestEngine_ConditionalRoutingSkipsFalseBranch(t *testing.T) {
	def := &domain.WorkflowDefinition{
		ID:               "cond",
		EntryPointNodeID: "a",
		Nodes: []domain.NodeDefinition{
			{ID: "a", Kind: domain.KindTask},
			{ID: "taken", Kind: domain.KindTask},
			{ID: "skipped", Kind: domain.KindTask},
		},
		Connections: []domain.NodeConnection{
			{SourceID: "a", TargetID: "taken", Trigger: domain.MessageComplete, IsEnabled: true, Condition: "output.go == true"},
			{SourceID: "a", TargetID: "skipped", Trigger: domain.MessageComplete, IsEnabled: true, Condition: "output.go == false"},
		},
	}
	bodies := map[string]NodeBody{
		"a": NodeBodyFunc(func(_ context.Context, _ *domain.WorkflowExecutionContext, nctx *domain.NodeExecutionContext) (*domain.NodeInstance, error) {
			return &domain.NodeInstance{NodeID: nctx.NodeID, Status: domain.NodeCompleted, Output: map[string]any{"go": true}}, nil
		}),
		"taken":   NodeBodyFunc(echoBody),
		"skipped": NodeBodyFunc(echoBody),
	}

	e := New(def, bodies, DefaultConfig())
	wctx, err := e.StartAsync()
	require.NoError(t, err)

	waitTerminal(t, wctx)
	assert.Equal(t, domain.WorkflowCompleted, wctx.Status())
	assert.Equal(t, 0, e.DeadLetters().Count())
}

func TestEngine_CancelStopsDispatch(t *testing.T) {
	block := make(chan struct{})
	def := &domain.WorkflowDefinition{
		ID:               "cancel-me",
		EntryPointNodeID: "a",
		Nodes: []domain.NodeDefinition{
			{ID: "a", Kind: domain.KindTask},
		},
	}
	bodies := map[string]NodeBody{
		"a": NodeBodyFunc(func(ctx context.Context, _ *domain.WorkflowExecutionContext, nctx *domain.NodeExecutionContext) (*domain.NodeInstance, error) {
			select {
			case <-block:
			case <-ctx.Done():
			}
			return &domain.NodeInstance{NodeID: nctx.NodeID, Status: domain.NodeCancelled}, ctx.Err()
		}),
	}

	e := New(def, bodies, DefaultConfig())
	wctx, err := e.StartAsync()
	require.NoError(t, err)

	time.Sleep(20 * time.Millisecond)
	e.Cancel(domain.CancelReasonUser)
	close(block)

	waitTerminal(t, wctx)
	assert.Equal(t, domain.WorkflowCancelled, wctx.Status())
	assert.Equal(t, string(domain.CancelReasonUser), wctx.Reason())
}
