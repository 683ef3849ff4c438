package domain

import (
	"context"
	"iter"
)

// Filter decides whether a serialized document matches a query predicate.
type Filter interface {
	Match(payload []byte) (bool, error)
}

// ChangeSet groups the writes produced by one unit of work.
type ChangeSet struct {
	Upserts []Document
	Deletes []DocumentRef
}

// Empty reports whether the change set carries no writes.
func (c ChangeSet) Empty() bool {
	return len(c.Upserts) == 0 && len(c.Deletes) == 0
}

// DocumentStore is the storage collaborator consumed by sessions. It owns
// persistence, predicate evaluation and result ordering.
type DocumentStore interface {
	// Load returns the payload stored for (docType, id), or a nil payload
	// without error when no such document exists.
	Load(ctx context.Context, docType, id string) ([]byte, error)
	// Query lazily yields the documents of docType matching filter in the
	// store's deterministic order. Stopping the iteration releases the
	// underlying cursor without producing further candidates.
	Query(ctx context.Context, docType string, filter Filter) iter.Seq2[Document, error]
	// Apply writes the change set, atomically where the backend allows it.
	Apply(ctx context.Context, changes ChangeSet) error
	Close() error
}

// Serializer converts entities to and from their stored form.
type Serializer interface {
	Marshal(v any) ([]byte, error)
	Unmarshal(data []byte, v any) error
}

// Matches applies filter to payload. A nil filter matches every document.
func Matches(filter Filter, payload []byte) (bool, error) {
	if filter == nil {
		return true, nil
	}
	return filter.Match(payload)
}
