// Package condition implements the two condition evaluators the engine
// uses: a narrow boolean mini-grammar for simple edge conditions, and a
// richer expression evaluator backed by expr-lang/expr for control-flow
// node bodies (IfElse, ForEach, While, Switch).
package condition

// Evaluator evaluates a condition expression against a variable binding
// and reports whether it holds. Implementations must treat a reference to
// a missing variable or output property as false rather than erroring,
// except where the underlying expression language has no such concept
// (see ExprEvaluator).
type Evaluator interface {
	Evaluate(expr string, vars map[string]any) (bool, error)
}

// Vars is the binding an edge condition or control-flow expression is
// evaluated against. output holds the upstream node's OutputData under
// the "output" namespace referenced by §4.2's grammar (output.<name>);
// variables holds the workflow-scope VariableMap snapshot.
type Vars struct {
	Output    map[string]any
	Variables map[string]any
}

// ToMap flattens Vars into the single namespace both evaluators bind
// expressions against: "output" and "variables" top-level keys.
func (v Vars) ToMap() map[string]any {
	return map[string]any{
		"output":    v.Output,
		"variables": v.Variables,
	}
}
