// Package filter provides document predicates evaluated against serialized
// JSON payloads: expr-lang and CEL expressions, typed Go predicates and
// simple field equality.
package filter

import (
	"encoding/json"
	"fmt"
	"reflect"

	"doccore/pkg/domain"
)

var (
	_ domain.Filter = allFilter{}
	_ domain.Filter = andFilter{}
	_ domain.Filter = (*fieldEquals)(nil)
	_ domain.Filter = funcFilter[struct{}]{}
)

// All matches every document.
func All() domain.Filter { return allFilter{} }

type allFilter struct{}

func (allFilter) Match([]byte) (bool, error) { return true, nil }

// And matches documents accepted by every filter, evaluated in order and
// stopping at the first rejection. And() matches everything.
func And(filters ...domain.Filter) domain.Filter { return andFilter(filters) }

type andFilter []domain.Filter

func (a andFilter) Match(payload []byte) (bool, error) {
	for _, f := range a {
		ok, err := domain.Matches(f, payload)
		if err != nil || !ok {
			return false, err
		}
	}
	return true, nil
}

// FieldEquals matches documents whose top-level field equals value once both
// sides are normalized through JSON.
func FieldEquals(field string, value any) (domain.Filter, error) {
	want, err := normalize(value)
	if err != nil {
		return nil, fmt.Errorf("field %s: %w", field, err)
	}
	return &fieldEquals{field: field, want: want}, nil
}

type fieldEquals struct {
	field string
	want  any
}

func (f *fieldEquals) Match(payload []byte) (bool, error) {
	doc, err := decodeObject(payload)
	if err != nil {
		return false, err
	}
	got, ok := doc[f.field]
	if !ok {
		return false, nil
	}
	return reflect.DeepEqual(got, f.want), nil
}

// Func adapts a typed Go predicate. Each candidate is decoded into a fresh T.
func Func[T any](pred func(*T) bool) domain.Filter {
	return funcFilter[T]{pred: pred}
}

type funcFilter[T any] struct {
	pred func(*T) bool
}

func (f funcFilter[T]) Match(payload []byte) (bool, error) {
	v := new(T)
	if err := json.Unmarshal(payload, v); err != nil {
		return false, fmt.Errorf("decode candidate: %w", err)
	}
	return f.pred(v), nil
}

func decodeObject(payload []byte) (map[string]any, error) {
	var doc map[string]any
	if err := json.Unmarshal(payload, &doc); err != nil {
		return nil, fmt.Errorf("decode candidate: %w", err)
	}
	if doc == nil {
		doc = map[string]any{}
	}
	return doc, nil
}

func normalize(value any) (any, error) {
	raw, err := json.Marshal(value)
	if err != nil {
		return nil, err
	}
	var out any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}
