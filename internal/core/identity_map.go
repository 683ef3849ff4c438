package core

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"sync/atomic"

	"doccore/pkg/domain"
)

// IdentityMap memoizes materialized entities per (declared type, identifier)
// for the lifetime of one session. It is safe for concurrent use.
//
// By default two callers racing to materialize the same key may both run
// their loader; the first insert wins, every caller receives the winning
// value and the losing value is discarded. WithExactlyOnceLoads switches to
// a pending-placeholder scheme where the loader runs once per key.
//
// Empty payloads are cached as negative entries: Has and Retrieve report
// them as absent, but a later Get returns nil without invoking its loader.
type IdentityMap struct {
	serializer  domain.Serializer
	exactlyOnce bool
	partitions  sync.Map // reflect.Type -> *partition

	hits      atomic.Int64
	misses    atomic.Int64
	loads     atomic.Int64
	discarded atomic.Int64
}

// IdentityMapOption configures an IdentityMap.
type IdentityMapOption func(*IdentityMap)

// WithExactlyOnceLoads makes concurrent first loads of one key share a single
// loader invocation.
func WithExactlyOnceLoads() IdentityMapOption {
	return func(m *IdentityMap) { m.exactlyOnce = true }
}

// IdentityStats reports identity map counters.
type IdentityStats struct {
	Hits      int64 `json:"hits"`
	Misses    int64 `json:"misses"`
	Loads     int64 `json:"loads"`
	Discarded int64 `json:"discarded"`
}

// NewIdentityMap constructs an empty identity map. A nil serializer selects JSONSerializer.
func NewIdentityMap(serializer domain.Serializer, opts ...IdentityMapOption) *IdentityMap {
	if serializer == nil {
		serializer = JSONSerializer{}
	}
	m := &IdentityMap{serializer: serializer}
	for _, opt := range opts {
		if opt != nil {
			opt(m)
		}
	}
	return m
}

type partition struct {
	entries sync.Map // identifier -> *entry
}

// entry is a cache slot. Entries created by the exactly-once path carry a
// ready channel that is closed once value/absent/err are final.
type entry struct {
	value  any
	absent bool
	ready  chan struct{}
	err    error
}

func (e *entry) resolved() bool {
	if e.ready == nil {
		return true
	}
	select {
	case <-e.ready:
		return e.err == nil
	default:
		return false
	}
}

func typed[T any](e *entry) *T {
	if e.absent {
		return nil
	}
	v, _ := e.value.(*T)
	return v
}

func (m *IdentityMap) partitionFor(t reflect.Type) *partition {
	if p, ok := m.partitions.Load(t); ok {
		return p.(*partition)
	}
	p, _ := m.partitions.LoadOrStore(t, &partition{})
	return p.(*partition)
}

func (p *partition) lookup(key any) (*entry, bool) {
	v, ok := p.entries.Load(key)
	if !ok {
		return nil, false
	}
	e := v.(*entry)
	if !e.resolved() {
		return nil, false
	}
	return e, true
}

// Stats returns a snapshot of the identity map counters.
func (m *IdentityMap) Stats() IdentityStats {
	return IdentityStats{
		Hits:      m.hits.Load(),
		Misses:    m.misses.Load(),
		Loads:     m.loads.Load(),
		Discarded: m.discarded.Load(),
	}
}

// Len returns the number of resolved entries, negative entries included.
func (m *IdentityMap) Len() int {
	n := 0
	m.partitions.Range(func(_, v any) bool {
		v.(*partition).entries.Range(func(_, e any) bool {
			if e.(*entry).resolved() {
				n++
			}
			return true
		})
		return true
	})
	return n
}

// Clear drops every partition.
func (m *IdentityMap) Clear() {
	m.partitions.Clear()
}

type fetchFunc func(ctx context.Context) ([]byte, error)

// Get returns the entity cached for (T, id), invoking loader to fetch its
// serialized form on a miss.
func Get[T any](m *IdentityMap, id any, loader func() ([]byte, error)) (*T, error) {
	return load[T](context.Background(), m, id, func(context.Context) ([]byte, error) {
		return loader()
	})
}

// GetPayload is Get with an already fetched payload.
func GetPayload[T any](m *IdentityMap, id any, payload []byte) (*T, error) {
	return load[T](context.Background(), m, id, func(context.Context) ([]byte, error) {
		return payload, nil
	})
}

// GetAsync is Get with a context-aware loader. The caller waits for the
// fetch or for ctx, whichever finishes first; a cancelled wait returns
// ctx.Err(). Entries that are already cached are unaffected by cancellation.
func GetAsync[T any](ctx context.Context, m *IdentityMap, id any, loader func(context.Context) ([]byte, error)) (*T, error) {
	return load[T](ctx, m, id, func(ctx context.Context) ([]byte, error) {
		return awaitFetch(ctx, loader)
	})
}

type fetchResult struct {
	payload []byte
	err     error
}

func awaitFetch(ctx context.Context, loader func(context.Context) ([]byte, error)) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	done := make(chan fetchResult, 1)
	go func() {
		payload, err := loader(ctx)
		done <- fetchResult{payload: payload, err: err}
	}()
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case r := <-done:
		return r.payload, r.err
	}
}

// Store makes entity the authoritative cached value for (T, id). A nil
// entity is stored as a negative entry.
func Store[T any](m *IdentityMap, id any, entity *T) error {
	key, err := identityKey(id)
	if err != nil {
		return err
	}
	p := m.partitionFor(reflect.TypeFor[T]())
	p.entries.Store(key, &entry{value: entity, absent: entity == nil})
	return nil
}

// Remove evicts the entry for (T, id) if present.
func Remove[T any](m *IdentityMap, id any) {
	key, err := identityKey(id)
	if err != nil {
		return
	}
	m.partitionFor(reflect.TypeFor[T]()).entries.Delete(key)
}

// Has reports whether a non-negative entry is cached for (T, id).
func Has[T any](m *IdentityMap, id any) bool {
	return Retrieve[T](m, id) != nil
}

// Retrieve returns the cached entity for (T, id) or nil. It never loads.
func Retrieve[T any](m *IdentityMap, id any) *T {
	key, err := identityKey(id)
	if err != nil {
		return nil
	}
	e, ok := m.partitionFor(reflect.TypeFor[T]()).lookup(key)
	if !ok {
		return nil
	}
	return typed[T](e)
}

func load[T any](ctx context.Context, m *IdentityMap, id any, fetch fetchFunc) (*T, error) {
	key, err := identityKey(id)
	if err != nil {
		return nil, err
	}
	p := m.partitionFor(reflect.TypeFor[T]())
	if m.exactlyOnce {
		return loadOnce[T](ctx, m, p, key, fetch)
	}
	if e, ok := p.lookup(key); ok {
		m.hits.Add(1)
		return typed[T](e), nil
	}
	m.misses.Add(1)
	payload, err := fetch(ctx)
	if err != nil {
		return nil, err
	}
	fresh, err := materialize[T](m.serializer, payload)
	if err != nil {
		return nil, err
	}
	m.loads.Add(1)
	actual, loaded := p.entries.LoadOrStore(key, fresh)
	if loaded {
		m.discarded.Add(1)
	}
	return typed[T](actual.(*entry)), nil
}

func loadOnce[T any](ctx context.Context, m *IdentityMap, p *partition, key any, fetch fetchFunc) (*T, error) {
	for {
		if v, ok := p.entries.Load(key); ok {
			e := v.(*entry)
			if e.ready != nil {
				select {
				case <-e.ready:
				case <-ctx.Done():
					return nil, ctx.Err()
				}
			}
			if e.err == nil {
				m.hits.Add(1)
				return typed[T](e), nil
			}
			// The leader was cancelled or panicked; take over the load.
			if isCancellation(e.err) || errors.Is(e.err, errLoaderPanicked) {
				continue
			}
			return nil, e.err
		}
		pending := &entry{ready: make(chan struct{})}
		if _, loaded := p.entries.LoadOrStore(key, pending); loaded {
			continue
		}
		m.misses.Add(1)
		return leadLoad[T](ctx, m, p, key, pending, fetch)
	}
}

func leadLoad[T any](ctx context.Context, m *IdentityMap, p *partition, key any, pending *entry, fetch fetchFunc) (*T, error) {
	finished := false
	defer func() {
		if finished {
			return
		}
		// The loader or serializer panicked; release waiters before the panic
		// unwinds further.
		pending.err = errLoaderPanicked
		p.entries.CompareAndDelete(key, pending)
		close(pending.ready)
	}()
	payload, err := fetch(ctx)
	var fresh *entry
	if err == nil {
		fresh, err = materialize[T](m.serializer, payload)
	}
	finished = true
	if err != nil {
		pending.err = err
		p.entries.CompareAndDelete(key, pending)
		close(pending.ready)
		return nil, err
	}
	m.loads.Add(1)
	pending.value, pending.absent = fresh.value, fresh.absent
	close(pending.ready)
	return typed[T](pending), nil
}

func materialize[T any](serializer domain.Serializer, payload []byte) (*entry, error) {
	if isEmptyPayload(payload) {
		return &entry{absent: true}, nil
	}
	v := new(T)
	if err := serializer.Unmarshal(payload, v); err != nil {
		return nil, err
	}
	return &entry{value: v}, nil
}

var errLoaderPanicked = errors.New("identity map: loader panicked")

func isCancellation(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
