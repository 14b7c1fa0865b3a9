package expr

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompareOperators(t *testing.T) {
	env := Env{"score": 0.8, "metric": "cpu.load"}

	cases := []struct {
		expr string
		want bool
	}{
		{"score > 0.5", true},
		{"score >= 0.8", true},
		{"score < 0.5", false},
		{"score == 0.8", true},
		{"score != 0.8", false},
		{"metric == \"cpu.load\"", true},
		{"metric =~ \"^cpu\\.\"", true},
		{"metric =~ \"^mem\"", false},
	}
	for _, c := range cases {
		got, err := Eval(c.expr, env)
		require.NoError(t, err, c.expr)
		assert.Equal(t, c.want, got, c.expr)
	}
}

func TestLogicalCombinators(t *testing.T) {
	env := Env{"severity": "critical", "score": 0.95}

	got, err := Eval(`severity == "critical" AND score > 0.9`, env)
	require.NoError(t, err)
	assert.True(t, got)

	got, err = Eval(`severity == "low" OR score > 0.9`, env)
	require.NoError(t, err)
	assert.True(t, got)

	got, err = Eval(`NOT (severity == "low")`, env)
	require.NoError(t, err)
	assert.True(t, got)
}

func TestDottedFieldLookup(t *testing.T) {
	env := Env{"context": map[string]interface{}{"metric": "latency_p99"}}
	got, err := Eval(`context.metric == "latency_p99"`, env)
	require.NoError(t, err)
	assert.True(t, got)
}

func TestInvalidExpressionIsEvaluationError(t *testing.T) {
	_, err := Eval("score >", Env{"score": 1.0})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrEvaluation)
}

func TestMissingFieldComparesFalseNotError(t *testing.T) {
	got, err := Eval(`missing == "x"`, Env{})
	require.NoError(t, err)
	assert.False(t, got)
}
