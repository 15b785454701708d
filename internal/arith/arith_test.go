package arith_test

import (
	"context"
	"testing"

	"github.com/aretw0/threadgraph/internal/arith"
	"github.com/aretw0/threadgraph/pkg/domain"
	"github.com/aretw0/threadgraph/pkg/registry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompute(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"what is 2 plus 2", "4"},
		{"what is 2 plus 2?", "4"},
		{"2+2", "4"},
		{"10 minus 4", "6"},
		{"3 times 4", "12"},
		{"6 multiplied by 7", "42"},
		{"10 divided by 4", "2.5"},
		{"9 over 3", "3"},
		{"3 x 5", "15"},
		{"2 + 3 * 4", "14"},
		{"(2 + 3) * 4", "20"},
		{"-3 + 5", "2"},
		{"2 * -3", "-6"},
		{"1.5 plus 1.25", "2.75"},
		{"0.1 + 0.2", "0.3"},
		{"add 2 and 3", "5"},
		{"sum of 1, 2, 3 and 4", "10"},
		{"multiply 3 by 4", "12"},
		{"Please ADD 10 to 5", "15"},
		{"7 × 6", "42"},
		{"8 ÷ 2", "4"},
	}
	for _, tc := range cases {
		t.Run(tc.in, func(t *testing.T) {
			assert.Equal(t, tc.want, arith.Compute(tc.in))
		})
	}
}

func TestCompute_FailSoft(t *testing.T) {
	inputs := []string{
		"plus plus",
		"what is plus",
		"1 / 0",
		"5 divided by (2 - 2)",
		"2 plus",
		"(2 + 3",
		"2 + 3)",
		"add",
		"hello there",
		"",
		"1.2.3 plus 4",
		"2 plus 2 3",
	}
	for _, in := range inputs {
		t.Run(in, func(t *testing.T) {
			assert.Equal(t, domain.ToolFallback, arith.Compute(in))
		})
	}
}

func TestEvaluate_Errors(t *testing.T) {
	_, err := arith.Evaluate("1 / 0")
	assert.ErrorIs(t, err, arith.ErrDivisionByZero)

	_, err = arith.Evaluate("plus plus")
	assert.ErrorIs(t, err, arith.ErrSyntax)

	_, err = arith.Evaluate("nothing to see")
	assert.ErrorIs(t, err, arith.ErrNoExpression)
}

func TestFormat(t *testing.T) {
	assert.Equal(t, "4", arith.Format(4))
	assert.Equal(t, "2.5", arith.Format(2.5))
	assert.Equal(t, "0.3333333333", arith.Format(1.0/3))
	assert.Equal(t, "0", arith.Format(-0.00000000000001))
	assert.Equal(t, "-12", arith.Format(-12))
}

func TestTool_ThroughRegistry(t *testing.T) {
	r := registry.NewRegistry()
	arith.Register(r)

	out, err := r.Execute(context.Background(), arith.ToolName, map[string]any{"text": "what is 2 plus 2"})
	require.NoError(t, err)
	assert.Equal(t, "4", out)

	_, err = r.Execute(context.Background(), arith.ToolName, map[string]any{"text": "plus plus"})
	assert.ErrorIs(t, err, arith.ErrSyntax)
}
