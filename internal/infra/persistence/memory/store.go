// Package memory provides an in-memory document store used for tests and
// ephemeral environments.
package memory

import (
	"cmp"
	"context"
	"fmt"
	"iter"
	"slices"
	"sync"

	"doccore/pkg/domain"
)

// Compile-time contract assertion ensuring memory.Store adheres to the domain persistence interface.
var _ domain.DocumentStore = (*Store)(nil)

type record struct {
	payload []byte
	seq     uint64
}

// Store keeps documents per type in process memory. Queries yield documents
// in first-insertion order; overwriting a document keeps its position.
type Store struct {
	mu   sync.RWMutex
	docs map[string]map[string]record
	seq  uint64
}

// NewStore returns an empty in-memory store.
func NewStore() *Store {
	return &Store{docs: make(map[string]map[string]record)}
}

// Load returns a copy of the stored payload, or nil when absent.
func (s *Store) Load(ctx context.Context, docType, id string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.docs[docType][id]
	if !ok {
		return nil, nil
	}
	return slices.Clone(rec.payload), nil
}

// Query yields matching documents from a snapshot taken when iteration starts.
func (s *Store) Query(ctx context.Context, docType string, filter domain.Filter) iter.Seq2[domain.Document, error] {
	return func(yield func(domain.Document, error) bool) {
		for _, doc := range s.snapshot(docType) {
			if err := ctx.Err(); err != nil {
				yield(domain.Document{}, err)
				return
			}
			ok, err := domain.Matches(filter, doc.Payload)
			if err != nil {
				yield(domain.Document{}, err)
				return
			}
			if ok && !yield(doc, nil) {
				return
			}
		}
	}
}

func (s *Store) snapshot(docType string) []domain.Document {
	s.mu.RLock()
	bucket := s.docs[docType]
	type ordered struct {
		doc domain.Document
		seq uint64
	}
	rows := make([]ordered, 0, len(bucket))
	for id, rec := range bucket {
		rows = append(rows, ordered{
			doc: domain.Document{Type: docType, ID: id, Payload: slices.Clone(rec.payload)},
			seq: rec.seq,
		})
	}
	s.mu.RUnlock()
	slices.SortFunc(rows, func(a, b ordered) int { return cmp.Compare(a.seq, b.seq) })
	out := make([]domain.Document, len(rows))
	for i, row := range rows {
		out[i] = row.doc
	}
	return out
}

// Apply validates the whole change set before mutating, so it either applies
// completely or not at all.
func (s *Store) Apply(ctx context.Context, changes domain.ChangeSet) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	for _, doc := range changes.Upserts {
		if doc.Type == "" || doc.ID == "" {
			return fmt.Errorf("memory store: upsert requires type and id (got %q/%q)", doc.Type, doc.ID)
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, doc := range changes.Upserts {
		bucket, ok := s.docs[doc.Type]
		if !ok {
			bucket = make(map[string]record)
			s.docs[doc.Type] = bucket
		}
		rec, exists := bucket[doc.ID]
		if !exists {
			s.seq++
			rec.seq = s.seq
		}
		rec.payload = slices.Clone(doc.Payload)
		bucket[doc.ID] = rec
	}
	for _, ref := range changes.Deletes {
		delete(s.docs[ref.Type], ref.ID)
	}
	return nil
}

// Count returns the number of stored documents of docType.
func (s *Store) Count(docType string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.docs[docType])
}

// Close is a no-op.
func (s *Store) Close() error { return nil }
