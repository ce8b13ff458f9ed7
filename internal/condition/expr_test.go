package condition

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExprEvaluator_Evaluate(t *testing.T) {
	e := NewExprEvaluator()
	vars := map[string]any{"output": map[string]any{"count": 3}}

	ok, err := e.Evaluate("output.count > 2", vars)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = e.Evaluate("output.count > 10", vars)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestExprEvaluator_UndefinedVariableIsFalse(t *testing.T) {
	e := NewExprEvaluator()
	ok, err := e.Evaluate("output.missing", map[string]any{"output": map[string]any{}})
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestExprEvaluator_CachesCompiledPrograms(t *testing.T) {
	e := NewExprEvaluator()
	vars := map[string]any{"output": map[string]any{"n": 1}}

	_, err := e.Evaluate("output.n == 1", vars)
	require.NoError(t, err)
	assert.Equal(t, 1, e.CacheSize())

	_, err = e.Evaluate("output.n == 1", vars)
	require.NoError(t, err)
	assert.Equal(t, 1, e.CacheSize(), "same expression should reuse the cached program")

	_, err = e.Evaluate("output.n == 2", vars)
	require.NoError(t, err)
	assert.Equal(t, 2, e.CacheSize())
}

func TestExprEvaluator_EvaluateValue(t *testing.T) {
	e := NewExprEvaluator()
	out, err := e.EvaluateValue(`output.kind`, map[string]any{"output": map[string]any{"kind": "gold"}})
	require.NoError(t, err)
	assert.Equal(t, "gold", out)
}

func TestExprEvaluator_EvaluateEnumerable(t *testing.T) {
	e := NewExprEvaluator()

	items, err := e.EvaluateEnumerable("output.items", map[string]any{"output": map[string]any{"items": []any{1, 2, 3}}})
	require.NoError(t, err)
	assert.Equal(t, []any{1, 2, 3}, items)

	items, err = e.EvaluateEnumerable("output.missing", map[string]any{"output": map[string]any{}})
	require.NoError(t, err)
	assert.Nil(t, items)
}

func TestExprEvaluator_NonBooleanResultErrors(t *testing.T) {
	e := NewExprEvaluator()
	_, err := e.Evaluate(`"not a bool"`, nil)
	assert.Error(t, err)
}
