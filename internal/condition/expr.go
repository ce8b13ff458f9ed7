package condition

import (
	"fmt"
	"sync"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
)

// ExprEvaluator is the "richer expression form" external collaborator
// referenced for IfElse/ForEach/While/Switch bodies: it compiles and
// caches expr-lang/expr programs, mirroring the compiled-program cache the
// teacher lineage's condition evaluator used for its single grammar.
type ExprEvaluator struct {
	mu    sync.RWMutex
	cache map[string]*vm.Program
}

// NewExprEvaluator returns an ExprEvaluator with an empty program cache.
func NewExprEvaluator() *ExprEvaluator {
	return &ExprEvaluator{cache: make(map[string]*vm.Program)}
}

func (e *ExprEvaluator) compile(exprStr string) (*vm.Program, error) {
	e.mu.RLock()
	program, ok := e.cache[exprStr]
	e.mu.RUnlock()
	if ok {
		return program, nil
	}

	program, err := expr.Compile(exprStr, expr.AllowUndefinedVariables())
	if err != nil {
		return nil, fmt.Errorf("condition: compile %q: %w", exprStr, err)
	}

	e.mu.Lock()
	e.cache[exprStr] = program
	e.mu.Unlock()
	return program, nil
}

// Evaluate compiles (or fetches from cache) exprStr and runs it against
// vars, coercing the result to bool. A missing variable reference resolves
// to nil per expr.AllowUndefinedVariables, and nil coerces to false.
func (e *ExprEvaluator) Evaluate(exprStr string, vars map[string]any) (bool, error) {
	program, err := e.compile(exprStr)
	if err != nil {
		return false, err
	}
	out, err := expr.Run(program, vars)
	if err != nil {
		return false, fmt.Errorf("condition: evaluate %q: %w", exprStr, err)
	}
	switch v := out.(type) {
	case bool:
		return v, nil
	case nil:
		return false, nil
	default:
		return false, fmt.Errorf("condition: expression %q did not yield a boolean, got %T", exprStr, out)
	}
}

// EvaluateValue runs exprStr and returns its raw result, for nodes (like
// Switch) that bind an arbitrary-typed expression rather than a boolean or
// enumerable one.
func (e *ExprEvaluator) EvaluateValue(exprStr string, vars map[string]any) (any, error) {
	program, err := e.compile(exprStr)
	if err != nil {
		return nil, err
	}
	out, err := expr.Run(program, vars)
	if err != nil {
		return nil, fmt.Errorf("condition: evaluate %q: %w", exprStr, err)
	}
	return out, nil
}

// EvaluateEnumerable runs exprStr and returns it as a []any, for ForEach
// nodes that bind a collection expression rather than a boolean one. Scalar
// maps iterate over their values; nil yields an empty slice.
func (e *ExprEvaluator) EvaluateEnumerable(exprStr string, vars map[string]any) ([]any, error) {
	program, err := e.compile(exprStr)
	if err != nil {
		return nil, err
	}
	out, err := expr.Run(program, vars)
	if err != nil {
		return nil, fmt.Errorf("condition: evaluate %q: %w", exprStr, err)
	}
	switch v := out.(type) {
	case nil:
		return nil, nil
	case []any:
		return v, nil
	case map[string]any:
		items := make([]any, 0, len(v))
		for _, val := range v {
			items = append(items, val)
		}
		return items, nil
	default:
		return nil, fmt.Errorf("condition: expression %q did not yield an enumerable, got %T", exprStr, out)
	}
}

// CacheSize reports the number of distinct compiled programs held, mirroring
// the diagnostic surface of the single-grammar evaluator this is adapted
// from.
func (e *ExprEvaluator) CacheSize() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.cache)
}
