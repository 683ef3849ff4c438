package core

import (
	"cmp"
	"context"
	"fmt"
	"iter"
	"slices"
	"sync"
	"sync/atomic"

	"doccore/pkg/domain"

	"golang.org/x/sync/errgroup"
)

// Session is a unit of work. It owns one identity map, tracks the entities
// it has materialized or stored, and writes their changes on SaveChanges.
// A session is safe for concurrent use.
type Session struct {
	svc      *Service
	identity *IdentityMap

	mu      sync.Mutex
	tracked map[docKey]*trackedDoc
	deletes map[docKey]struct{}
	closed  atomic.Bool
}

type trackedDoc struct {
	entity      any
	fingerprint uint64
	force       bool
}

// Stats returns the identity map counters of the session.
func (s *Session) Stats() IdentityStats {
	return s.identity.Stats()
}

// Close ends the session and discards its identity map.
func (s *Session) Close() {
	if s.closed.Swap(true) {
		return
	}
	s.identity.Clear()
	s.mu.Lock()
	clear(s.tracked)
	clear(s.deletes)
	s.mu.Unlock()
}

func (s *Session) checkOpen() error {
	if s.closed.Load() {
		return domain.ErrSessionClosed
	}
	return nil
}

// track records the clean state of a materialized entity the first time the
// session sees it.
func (s *Session) track(key docKey, entity any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tracked[key]; ok {
		return nil
	}
	payload, err := s.svc.serializer.Marshal(entity)
	if err != nil {
		return err
	}
	s.tracked[key] = &trackedDoc{entity: entity, fingerprint: fingerprint(payload)}
	return nil
}

func (s *Session) pendingDelete(key docKey) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.deletes[key]
	return ok
}

// Load returns the document of type T with the given id, or nil when the
// store has none or the session has deleted it. Missing documents are cached
// as negative entries.
func Load[T any](ctx context.Context, s *Session, id string) (*T, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	docType := domain.TypeName[T]()
	if s.pendingDelete(docKey{docType: docType, id: id}) {
		return nil, nil
	}
	var entity *T
	err := s.svc.run(ctx, "load", func(ctx context.Context) error {
		var err error
		entity, err = GetAsync[T](ctx, s.identity, id, func(ctx context.Context) ([]byte, error) {
			return s.svc.store.Load(ctx, docType, id)
		})
		if err != nil || entity == nil {
			return err
		}
		return s.track(docKey{docType: docType, id: id}, entity)
	})
	if err != nil {
		return nil, err
	}
	return entity, nil
}

// LoadMany loads the given ids concurrently and returns the entities in
// request order. Missing documents yield nil elements. The first failure is
// returned as is.
func LoadMany[T any](ctx context.Context, s *Session, ids ...string) ([]*T, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	out := make([]*T, len(ids))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.svc.loadConcurrency)
	for i, id := range ids {
		g.Go(func() error {
			entity, err := Load[T](gctx, s, id)
			if err != nil {
				return err
			}
			out[i] = entity
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// StoreDocument schedules entity for upsert and makes it the session's
// authoritative instance. Entities without an id receive a new UUID.
func StoreDocument[T any](s *Session, entity *T) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	identified, ok := any(entity).(domain.Identified)
	if !ok || entity == nil {
		return fmt.Errorf("%w: %T", domain.ErrMissingDocumentID, entity)
	}
	if identified.DocumentID() == "" {
		identified.SetDocumentID(s.svc.newID())
	}
	key := docKey{docType: domain.TypeName[T](), id: identified.DocumentID()}
	if err := Store[T](s.identity, key.id, entity); err != nil {
		return err
	}
	s.mu.Lock()
	s.tracked[key] = &trackedDoc{entity: entity, force: true}
	delete(s.deletes, key)
	s.mu.Unlock()
	return nil
}

// Delete evicts the document from the session and schedules its removal.
func Delete[T any](s *Session, id string) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	key := docKey{docType: domain.TypeName[T](), id: id}
	Remove[T](s.identity, id)
	s.mu.Lock()
	delete(s.tracked, key)
	s.deletes[key] = struct{}{}
	s.mu.Unlock()
	return nil
}

// SaveChanges writes stored entities, modified loaded entities and deletes
// in one change set. Pending work is kept when the store rejects it.
func (s *Session) SaveChanges(ctx context.Context) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	return s.svc.run(ctx, "save_changes", func(ctx context.Context) error {
		s.mu.Lock()
		defer s.mu.Unlock()

		var changes domain.ChangeSet
		fingerprints := make(map[docKey]uint64, len(s.tracked))
		for _, key := range sortedKeys(s.tracked) {
			doc := s.tracked[key]
			payload, err := s.svc.serializer.Marshal(doc.entity)
			if err != nil {
				return fmt.Errorf("marshal %s %s: %w", key.docType, key.id, err)
			}
			fp := fingerprint(payload)
			fingerprints[key] = fp
			if doc.force || fp != doc.fingerprint {
				changes.Upserts = append(changes.Upserts, domain.Document{Type: key.docType, ID: key.id, Payload: payload})
			}
		}
		for _, key := range sortedKeys(s.deletes) {
			changes.Deletes = append(changes.Deletes, key.ref())
		}
		if changes.Empty() {
			return nil
		}
		if err := s.svc.store.Apply(ctx, changes); err != nil {
			return err
		}
		for key, fp := range fingerprints {
			s.tracked[key].fingerprint = fp
			s.tracked[key].force = false
		}
		clear(s.deletes)
		s.svc.logger.Debug("session changes saved", "upserts", len(changes.Upserts), "deletes", len(changes.Deletes))
		return nil
	})
}

func sortedKeys[V any](m map[docKey]V) []docKey {
	keys := make([]docKey, 0, len(m))
	for key := range m {
		keys = append(keys, key)
	}
	slices.SortFunc(keys, func(a, b docKey) int {
		return cmp.Or(cmp.Compare(a.docType, b.docType), cmp.Compare(a.id, b.id))
	})
	return keys
}

// Queryable is a filtered query over documents of type T.
type Queryable[T any] struct {
	session *Session
	docType string
	filter  domain.Filter
}

// Query starts a filtered query. A nil filter matches every document.
func Query[T any](s *Session, filter domain.Filter) *Queryable[T] {
	return &Queryable[T]{session: s, docType: domain.TypeName[T](), filter: filter}
}

// First returns the first matching document, failing with domain.ErrNoMatch when there is none.
func (q *Queryable[T]) First(ctx context.Context) (*T, error) {
	return q.single(ctx, "first", First[T])
}

// FirstOrDefault returns the first matching document, or nil when there is none.
func (q *Queryable[T]) FirstOrDefault(ctx context.Context) (*T, error) {
	return q.single(ctx, "first_or_default", FirstOrDefault[T])
}

type singleResolution[T any] func(context.Context, iter.Seq2[domain.Document, error], Resolver[T]) (*T, error)

func (q *Queryable[T]) single(ctx context.Context, operation string, resolve singleResolution[T]) (*T, error) {
	if err := q.session.checkOpen(); err != nil {
		return nil, err
	}
	var entity *T
	err := q.session.svc.run(ctx, operation, func(ctx context.Context) error {
		var err error
		entity, err = resolve(ctx, q.candidates(ctx), q.materialize)
		return err
	})
	if err != nil {
		return nil, err
	}
	return entity, nil
}

// List materializes every matching document.
func (q *Queryable[T]) List(ctx context.Context) ([]*T, error) {
	if err := q.session.checkOpen(); err != nil {
		return nil, err
	}
	var out []*T
	err := q.session.svc.run(ctx, "list", func(ctx context.Context) error {
		for doc, err := range q.candidates(ctx) {
			if err != nil {
				return err
			}
			entity, err := q.materialize(doc)
			if err != nil {
				return err
			}
			if entity != nil {
				out = append(out, entity)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// candidates yields the store's matches minus documents deleted in this session.
func (q *Queryable[T]) candidates(ctx context.Context) iter.Seq2[domain.Document, error] {
	source := q.session.svc.store.Query(ctx, q.docType, q.filter)
	return func(yield func(domain.Document, error) bool) {
		for doc, err := range source {
			if err == nil && q.session.pendingDelete(docKey{docType: q.docType, id: doc.ID}) {
				continue
			}
			if !yield(doc, err) {
				return
			}
		}
	}
}

func (q *Queryable[T]) materialize(doc domain.Document) (*T, error) {
	entity, err := GetPayload[T](q.session.identity, doc.ID, doc.Payload)
	if err != nil || entity == nil {
		return entity, err
	}
	if err := q.session.track(docKey{docType: q.docType, id: doc.ID}, entity); err != nil {
		return nil, err
	}
	return entity, nil
}
