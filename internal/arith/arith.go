// Package arith evaluates arithmetic phrased in plain language ("what is 2 plus 2").
//
// Input is tokenized and parsed by a small recursive-descent parser; nothing is ever
// evaluated as code.
package arith

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/aretw0/threadgraph/pkg/domain"
	"github.com/aretw0/threadgraph/pkg/registry"
)

// ToolName is the registry name of the arithmetic tool.
const ToolName = "arithmetic"

var (
	// ErrNoExpression is returned when the text holds nothing to compute.
	ErrNoExpression = errors.New("no arithmetic expression found")
	// ErrSyntax is returned for malformed expressions such as "plus plus".
	ErrSyntax = errors.New("malformed arithmetic expression")
	// ErrDivisionByZero is returned when a divisor evaluates to zero.
	ErrDivisionByZero = errors.New("division by zero")
)

// Evaluate computes the value of the arithmetic in text.
//
// Explicit operators (symbols or words) take precedence. Without them, the verbs
// "add"/"sum" and "multiply" fold every number found with + and * respectively.
func Evaluate(text string) (float64, error) {
	toks, v, err := lex(text)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrSyntax, err)
	}

	var nums []float64
	hasOp := false
	for _, t := range toks {
		switch t.kind {
		case tokNumber:
			nums = append(nums, t.num)
		case tokOp:
			hasOp = true
		}
	}
	if len(nums) == 0 {
		if hasOp {
			return 0, ErrSyntax
		}
		return 0, ErrNoExpression
	}

	var result float64
	switch {
	case hasOp:
		p := &parser{toks: toks}
		result, err = p.parse()
		if err != nil {
			return 0, err
		}
	case v == verbSum:
		for _, n := range nums {
			result += n
		}
	case v == verbProduct:
		result = 1
		for _, n := range nums {
			result *= n
		}
	case len(nums) == 1:
		result = nums[0]
	default:
		return 0, ErrNoExpression
	}

	if math.IsNaN(result) || math.IsInf(result, 0) {
		return 0, fmt.Errorf("%w: result out of range", ErrSyntax)
	}
	return result, nil
}

// Format renders a result without trailing zeros, rounded to 10 decimal places.
func Format(v float64) string {
	s := strconv.FormatFloat(v, 'f', 10, 64)
	s = strings.TrimRight(s, "0")
	s = strings.TrimSuffix(s, ".")
	if s == "-0" {
		return "0"
	}
	return s
}

// Compute evaluates text and formats the result. It never fails: any error yields
// domain.ToolFallback.
func Compute(text string) string {
	v, err := Evaluate(text)
	if err != nil {
		return domain.ToolFallback
	}
	return Format(v)
}

// Tool adapts Evaluate to the registry's tool signature. It expects a "text" argument.
func Tool(ctx context.Context, args map[string]any) (any, error) {
	var in struct {
		Text string `mapstructure:"text"`
	}
	if err := registry.Decode(args, &in); err != nil {
		return nil, err
	}
	v, err := Evaluate(in.Text)
	if err != nil {
		return nil, err
	}
	return Format(v), nil
}

// Register adds the arithmetic tool to r under ToolName.
func Register(r *registry.Registry) {
	r.Register(ToolName, Tool)
}
