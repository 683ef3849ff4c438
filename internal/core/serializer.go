package core

import (
	"encoding/json"

	"doccore/pkg/domain"
)

var _ domain.Serializer = JSONSerializer{}

// JSONSerializer is the default document serializer.
type JSONSerializer struct{}

// Marshal encodes v as JSON.
func (JSONSerializer) Marshal(v any) ([]byte, error) { return json.Marshal(v) }

// Unmarshal decodes JSON data into v.
func (JSONSerializer) Unmarshal(data []byte, v any) error { return json.Unmarshal(data, v) }
