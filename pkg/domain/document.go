// Package domain defines the document envelope, persistence contracts and
// sentinel errors shared by the session layer and the storage backends.
package domain

import (
	"reflect"
	"strings"
)

// Document is a stored, serialized entity as yielded by a DocumentStore.
type Document struct {
	Type    string `json:"type"`
	ID      string `json:"id"`
	Payload []byte `json:"payload"`
}

// DocumentRef addresses a stored document without its payload.
type DocumentRef struct {
	Type string `json:"type"`
	ID   string `json:"id"`
}

// Ref returns the address of the document.
func (d Document) Ref() DocumentRef {
	return DocumentRef{Type: d.Type, ID: d.ID}
}

// Identified is implemented by entities persisted through a session.
type Identified interface {
	DocumentID() string
	SetDocumentID(id string)
}

// TypeNamer lets an entity override the document type name derived from its Go type.
type TypeNamer interface {
	DocumentType() string
}

// TypeName returns the document type name used to store values of T.
// Entities implementing TypeNamer (on the value or pointer receiver) choose
// their own name; otherwise the lower-cased Go type name is used.
func TypeName[T any]() string {
	var zero T
	if namer, ok := any(zero).(TypeNamer); ok {
		return namer.DocumentType()
	}
	if namer, ok := any(&zero).(TypeNamer); ok {
		return namer.DocumentType()
	}
	t := reflect.TypeFor[T]()
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	return strings.ToLower(t.Name())
}
