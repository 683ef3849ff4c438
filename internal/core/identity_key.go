package core

import (
	"bytes"
	"fmt"
	"math"
	"reflect"

	"doccore/pkg/domain"

	"github.com/cespare/xxhash/v2"
)

// identityKey validates id for use as a partition key. The identifier value
// itself is the key, so two unequal identifiers never share an entry even when
// their hashes collide. Values of different dynamic types are distinct keys.
func identityKey(id any) (any, error) {
	if id == nil {
		return nil, domain.ErrInvalidIdentifier
	}
	v := reflect.ValueOf(id)
	if !v.Comparable() || hasNaN(v) {
		return nil, fmt.Errorf("%w: %T", domain.ErrInvalidIdentifier, id)
	}
	return id, nil
}

// hasNaN reports whether a NaN is reachable by == on v. NaN never equals
// itself, so such a key could never be hit.
func hasNaN(v reflect.Value) bool {
	switch v.Kind() {
	case reflect.Float32, reflect.Float64:
		return math.IsNaN(v.Float())
	case reflect.Complex64, reflect.Complex128:
		c := v.Complex()
		return math.IsNaN(real(c)) || math.IsNaN(imag(c))
	case reflect.Array:
		for i := range v.Len() {
			if hasNaN(v.Index(i)) {
				return true
			}
		}
	case reflect.Struct:
		for i := range v.NumField() {
			if hasNaN(v.Field(i)) {
				return true
			}
		}
	case reflect.Interface:
		if !v.IsNil() {
			return hasNaN(v.Elem())
		}
	}
	return false
}

var nullPayload = []byte("null")

// isEmptyPayload reports whether payload denotes "no entity".
func isEmptyPayload(payload []byte) bool {
	trimmed := bytes.TrimSpace(payload)
	return len(trimmed) == 0 || bytes.Equal(trimmed, nullPayload)
}

// fingerprint summarizes a serialized payload for change detection.
func fingerprint(payload []byte) uint64 {
	return xxhash.Sum64(payload)
}

// docKey addresses a tracked document inside a session.
type docKey struct {
	docType string
	id      string
}

func (k docKey) ref() domain.DocumentRef {
	return domain.DocumentRef{Type: k.docType, ID: k.id}
}
