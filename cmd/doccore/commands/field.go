package commands

import (
	"encoding/json"
	"fmt"
	"strings"

	"doccore/internal/filter"
	"doccore/pkg/domain"
)

// fieldFilters parses field=JSON pairs; values that are not valid JSON are
// compared as strings.
func fieldFilters(pairs []string) (domain.Filter, error) {
	filters := make([]domain.Filter, 0, len(pairs))
	for _, pair := range pairs {
		name, raw, ok := strings.Cut(pair, "=")
		if !ok || name == "" {
			return nil, fmt.Errorf("invalid --field %q, want name=value", pair)
		}
		var value any
		if err := json.Unmarshal([]byte(raw), &value); err != nil {
			value = raw
		}
		f, err := filter.FieldEquals(name, value)
		if err != nil {
			return nil, err
		}
		filters = append(filters, f)
	}
	return filter.And(filters...), nil
}
