package nodebody

import (
	"context"

	"github.com/expr-lang/expr"

	"github.com/smilemakc/mbflow/internal/domain"
	domainerrors "github.com/smilemakc/mbflow/internal/domain/errors"
)

// ScriptBody evaluates its Script field as an expr-lang expression against
// the node's input and workflow variables. A returned map is merged into the
// output; any other result is stored under "result".
type ScriptBody struct {
	Script string
}

// Execute implements engine.NodeBody.
func (b *ScriptBody) Execute(_ context.Context, wctx *domain.WorkflowExecutionContext, nctx *domain.NodeExecutionContext) (*domain.NodeInstance, error) {
	env := map[string]any{
		"input":     nctx.Input,
		"variables": wctx.Variables.Snapshot(),
	}
	out, err := expr.Eval(b.Script, env)
	if err != nil {
		return nil, domainerrors.New(domainerrors.KindNodeBody, "", wctx.InstanceID, nctx.NodeID, "script evaluation failed", err)
	}

	if m, ok := out.(map[string]any); ok {
		for k, v := range m {
			nctx.Output[k] = v
		}
	} else {
		nctx.Output["result"] = out
	}

	return &domain.NodeInstance{NodeID: nctx.NodeID, Status: domain.NodeCompleted, Output: nctx.Output}, nil
}
