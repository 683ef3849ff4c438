package filter

import (
	"errors"
	"fmt"

	"doccore/pkg/domain"

	exprlang "github.com/expr-lang/expr"
	exprvm "github.com/expr-lang/expr/vm"
)

var _ domain.Filter = (*exprFilter)(nil)

type exprFilter struct {
	expression string
	program    *exprvm.Program
}

// Expr compiles an expr-lang boolean expression. Top-level document fields
// are variables, so `Number == 2` matches {"Number": 2}. Unknown fields
// evaluate to nil.
func Expr(expression string) (domain.Filter, error) {
	if expression == "" {
		return nil, errors.New("expr filter: expression must not be empty")
	}
	program, err := exprlang.Compile(expression,
		exprlang.Env(map[string]any{}),
		exprlang.AllowUndefinedVariables(),
		exprlang.AsBool(),
	)
	if err != nil {
		return nil, fmt.Errorf("expr filter %q: %w", expression, err)
	}
	return &exprFilter{expression: expression, program: program}, nil
}

func (f *exprFilter) Match(payload []byte) (bool, error) {
	doc, err := decodeObject(payload)
	if err != nil {
		return false, err
	}
	out, err := exprlang.Run(f.program, doc)
	if err != nil {
		return false, fmt.Errorf("expr filter %q: %w", f.expression, err)
	}
	matched, ok := out.(bool)
	if !ok {
		return false, fmt.Errorf("expr filter %q: result %T is not bool", f.expression, out)
	}
	return matched, nil
}

func (f *exprFilter) String() string { return f.expression }
