package filter

import (
	"errors"
	"fmt"

	"doccore/pkg/domain"

	celgo "github.com/google/cel-go/cel"
)

var _ domain.Filter = (*celFilter)(nil)

// celDocVariable is the name the decoded document is bound to.
const celDocVariable = "doc"

type celFilter struct {
	expression string
	program    celgo.Program
}

// CEL compiles a CEL boolean expression over the decoded document bound as
// `doc`, e.g. `doc.name == "a" && doc.tags.exists(t, t == "x")`.
func CEL(expression string) (domain.Filter, error) {
	if expression == "" {
		return nil, errors.New("cel filter: expression must not be empty")
	}
	env, err := celgo.NewEnv(celgo.Variable(celDocVariable, celgo.DynType))
	if err != nil {
		return nil, fmt.Errorf("cel filter env: %w", err)
	}
	ast, issues := env.Compile(expression)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("cel filter %q: %w", expression, issues.Err())
	}
	program, err := env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("cel filter %q: %w", expression, err)
	}
	return &celFilter{expression: expression, program: program}, nil
}

func (f *celFilter) Match(payload []byte) (bool, error) {
	doc, err := decodeObject(payload)
	if err != nil {
		return false, err
	}
	out, _, err := f.program.Eval(map[string]any{celDocVariable: doc})
	if err != nil {
		return false, fmt.Errorf("cel filter %q: %w", f.expression, err)
	}
	matched, ok := out.Value().(bool)
	if !ok {
		return false, fmt.Errorf("cel filter %q: result %T is not bool", f.expression, out.Value())
	}
	return matched, nil
}

func (f *celFilter) String() string { return f.expression }
