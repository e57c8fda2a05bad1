package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEvaluateCondition_IsNotEmpty(t *testing.T) {
	cases := []struct {
		name     string
		variable any
		want     bool
	}{
		{"nil", nil, false},
		{"empty string", "", false},
		{"empty list", []any{}, false},
		{"non-empty string", "x", true},
		{"non-empty list", []any{1}, true},
		{"zero number", float64(0), true},
		{"false boolean", false, true},
		{"empty object", map[string]any{}, true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := EvaluateCondition(tc.variable, OpIsNotEmpty, nil)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)

			neg, err := EvaluateCondition(tc.variable, OpIsEmpty, nil)
			require.NoError(t, err)
			assert.Equal(t, !tc.want, neg)
		})
	}
}

func TestEvaluateCondition_Equals(t *testing.T) {
	got, err := EvaluateCondition("abc", OpEquals, "abc")
	require.NoError(t, err)
	assert.True(t, got)

	got, err = EvaluateCondition("abc", OpEquals, "abd")
	require.NoError(t, err)
	assert.False(t, got)

	// Numbers compare by value across Go numeric types.
	got, err = EvaluateCondition(float64(5), OpEquals, 5)
	require.NoError(t, err)
	assert.True(t, got)

	// A numeric string is not a number.
	got, err = EvaluateCondition("5", OpEquals, 5)
	require.NoError(t, err)
	assert.False(t, got)

	got, err = EvaluateCondition([]any{"a"}, OpEquals, []any{"a"})
	require.NoError(t, err)
	assert.True(t, got)
}

func TestEvaluateCondition_GreaterLessThan(t *testing.T) {
	got, err := EvaluateCondition(float64(10), OpGreaterThan, 5)
	require.NoError(t, err)
	assert.True(t, got)

	got, err = EvaluateCondition(float64(3), OpGreaterThan, 5)
	require.NoError(t, err)
	assert.False(t, got)

	got, err = EvaluateCondition(float64(3), OpLessThan, 5)
	require.NoError(t, err)
	assert.True(t, got)

	// Non-numeric operands always compare false.
	got, err = EvaluateCondition("ten", OpGreaterThan, 5)
	require.NoError(t, err)
	assert.False(t, got)

	got, err = EvaluateCondition(nil, OpLessThan, 5)
	require.NoError(t, err)
	assert.False(t, got)
}

func TestEvaluateCondition_UnknownOperator(t *testing.T) {
	_, err := EvaluateCondition("x", "matches", nil)
	require.Error(t, err)
}

func TestKnownOperator(t *testing.T) {
	for _, op := range []string{OpIsNotEmpty, OpIsEmpty, OpEquals, OpGreaterThan, OpLessThan} {
		assert.True(t, KnownOperator(op))
	}
	assert.False(t, KnownOperator("contains"))
}
