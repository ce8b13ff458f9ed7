package engine

import (
	"context"

	"github.com/smilemakc/mbflow/internal/domain"
)

// NodeBody is the single operation a user-supplied node implementation
// provides. Control-flow node kinds never reach a NodeBody: the engine
// dispatches them to its own built-in bodies (see controlflow.go).
type NodeBody interface {
	Execute(ctx context.Context, wctx *domain.WorkflowExecutionContext, nctx *domain.NodeExecutionContext) (*domain.NodeInstance, error)
}

// NodeBodyFunc adapts a plain function to the NodeBody interface.
type NodeBodyFunc func(ctx context.Context, wctx *domain.WorkflowExecutionContext, nctx *domain.NodeExecutionContext) (*domain.NodeInstance, error)

// Execute implements NodeBody.
func (f NodeBodyFunc) Execute(ctx context.Context, wctx *domain.WorkflowExecutionContext, nctx *domain.NodeExecutionContext) (*domain.NodeInstance, error) {
	return f(ctx, wctx, nctx)
}

// NoOpBody is the body registered for KindNoop: it completes immediately,
// echoing its input as output.
var NoOpBody NodeBody = NodeBodyFunc(func(_ context.Context, _ *domain.WorkflowExecutionContext, nctx *domain.NodeExecutionContext) (*domain.NodeInstance, error) {
	return &domain.NodeInstance{
		NodeID: nctx.NodeID,
		Status: domain.NodeCompleted,
		Output: nctx.Input,
	}, nil
})
