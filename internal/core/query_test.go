package core

import (
	"context"
	"errors"
	"iter"
	"testing"

	"doccore/pkg/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recordingSeq yields docs and records how many were pulled and whether the
// consumer stopped early.
type recordingSeq struct {
	docs    []domain.Document
	err     error
	pulled  int
	stopped bool
}

func (r *recordingSeq) seq() iter.Seq2[domain.Document, error] {
	return func(yield func(domain.Document, error) bool) {
		for _, doc := range r.docs {
			r.pulled++
			if !yield(doc, nil) {
				r.stopped = true
				return
			}
		}
		if r.err != nil {
			yield(domain.Document{}, r.err)
		}
	}
}

func docs(payloads ...string) []domain.Document {
	out := make([]domain.Document, len(payloads))
	for i, p := range payloads {
		out[i] = domain.Document{Type: "user", ID: string(rune('a' + i)), Payload: []byte(p)}
	}
	return out
}

func identityResolver(m *IdentityMap, resolved *int) Resolver[user] {
	return func(doc domain.Document) (*user, error) {
		*resolved++
		return GetPayload[user](m, doc.ID, doc.Payload)
	}
}

func TestFirstOnEmptySequence(t *testing.T) {
	ctx := context.Background()
	m := NewIdentityMap(nil)
	var resolved int

	_, err := First(ctx, (&recordingSeq{}).seq(), identityResolver(m, &resolved))
	assert.ErrorIs(t, err, domain.ErrNoMatch)

	got, err := FirstOrDefault(ctx, (&recordingSeq{}).seq(), identityResolver(m, &resolved))
	require.NoError(t, err)
	assert.Nil(t, got)
	assert.Zero(t, resolved)
}

func TestFirstMaterializesOnlyTheFirstCandidate(t *testing.T) {
	for name, resolve := range map[string]singleResolution[user]{"first": First[user], "first or default": FirstOrDefault[user]} {
		t.Run(name, func(t *testing.T) {
			m := NewIdentityMap(nil)
			src := &recordingSeq{docs: docs(`{"name":"one"}`, `{"name":"two"}`, `{"name":"three"}`)}
			var resolved int

			got, err := resolve(context.Background(), src.seq(), identityResolver(m, &resolved))
			require.NoError(t, err)
			assert.Equal(t, "one", got.Name)
			assert.Equal(t, 1, src.pulled)
			assert.True(t, src.stopped)
			assert.Equal(t, 1, resolved)
			assert.False(t, Has[user](m, "b"), "later candidates are not materialized")
		})
	}
}

func TestFirstReturnsCachedInstance(t *testing.T) {
	m := NewIdentityMap(nil)
	cached := &user{Name: "cached"}
	require.NoError(t, Store(m, "a", cached))
	var resolved int

	got, err := First(context.Background(), (&recordingSeq{docs: docs(`{"name":"stale"}`)}).seq(), identityResolver(m, &resolved))
	require.NoError(t, err)
	assert.Same(t, cached, got)
}

func TestFirstPropagatesCollaboratorFailures(t *testing.T) {
	ctx := context.Background()
	boom := errors.New("cursor broken")
	m := NewIdentityMap(nil)
	var resolved int

	_, err := First(ctx, (&recordingSeq{err: boom}).seq(), identityResolver(m, &resolved))
	assert.Same(t, boom, err)
	_, err = FirstOrDefault(ctx, (&recordingSeq{err: boom}).seq(), identityResolver(m, &resolved))
	assert.Same(t, boom, err)
	assert.NotErrorIs(t, err, domain.ErrNoMatch)

	resolveErr := errors.New("decode failed")
	_, err = First(ctx, (&recordingSeq{docs: docs(`{}`)}).seq(), func(domain.Document) (*user, error) { return nil, resolveErr })
	assert.Same(t, resolveErr, err)
}

func TestFirstHonoursCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	var resolved int
	src := &recordingSeq{docs: docs(`{}`)}

	_, err := First(ctx, src.seq(), identityResolver(NewIdentityMap(nil), &resolved))
	assert.ErrorIs(t, err, context.Canceled)
	_, err = FirstOrDefault(ctx, src.seq(), identityResolver(NewIdentityMap(nil), &resolved))
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, src.pulled)
}
