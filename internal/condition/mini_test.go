package condition

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMiniEvaluator_BareBooleans(t *testing.T) {
	e := NewMiniEvaluator()

	ok, err := e.Evaluate("true", nil)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = e.Evaluate("FALSE", nil)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMiniEvaluator_Comparisons(t *testing.T) {
	vars := map[string]any{"output": map[string]any{"score": 42, "label": "gold"}}
	e := NewMiniEvaluator()

	cases := []struct {
		expr string
		want bool
	}{
		{"output.score > 10", true},
		{"output.score > 100", false},
		{"output.score >= 42", true},
		{"output.score <= 41", false},
		{"output.score == 42", true},
		{"output.score != 42", false},
		{`output.label == "gold"`, true},
		{`output.label == 'silver'`, false},
	}
	for _, c := range cases {
		got, err := e.Evaluate(c.expr, vars)
		require.NoError(t, err, c.expr)
		assert.Equal(t, c.want, got, c.expr)
	}
}

func TestMiniEvaluator_MissingOutputComparesFalse(t *testing.T) {
	e := NewMiniEvaluator()
	ok, err := e.Evaluate("output.missing > 5", map[string]any{"output": map[string]any{}})
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMiniEvaluator_Truthiness(t *testing.T) {
	e := NewMiniEvaluator()

	ok, err := e.Evaluate("output.flag", map[string]any{"output": map[string]any{"flag": true}})
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = e.Evaluate("output.flag", map[string]any{"output": map[string]any{"flag": "false"}})
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = e.Evaluate("output.missing", map[string]any{"output": map[string]any{}})
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMiniEvaluator_InvalidExpression(t *testing.T) {
	e := NewMiniEvaluator()
	_, err := e.Evaluate("not.a.valid.reference", nil)
	assert.Error(t, err)
}
