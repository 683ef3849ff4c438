// Package storetest holds the behavioural contract every domain.DocumentStore
// backend is tested against.
package storetest

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"doccore/pkg/domain"

	"github.com/stretchr/testify/require"
)

type matchFunc func([]byte) (bool, error)

func (f matchFunc) Match(payload []byte) (bool, error) { return f(payload) }

func contains(fragment string) domain.Filter {
	return matchFunc(func(p []byte) (bool, error) { return bytes.Contains(p, []byte(fragment)), nil })
}

// Run exercises open against the document store contract. open must return
// an empty store; Run closes it.
func Run(t *testing.T, open func(t *testing.T) domain.DocumentStore) {
	t.Helper()

	t.Run("load missing returns nil", func(t *testing.T) {
		store := open(t)
		t.Cleanup(func() { _ = store.Close() })
		payload, err := store.Load(context.Background(), "user", "nobody")
		require.NoError(t, err)
		require.Nil(t, payload)
	})

	t.Run("apply upserts then deletes", func(t *testing.T) {
		ctx := context.Background()
		store := open(t)
		t.Cleanup(func() { _ = store.Close() })
		require.NoError(t, store.Apply(ctx, domain.ChangeSet{Upserts: []domain.Document{
			{Type: "user", ID: "a", Payload: []byte(`{"name":"ada"}`)},
			{Type: "user", ID: "b", Payload: []byte(`{"name":"bob"}`)},
		}}))
		got, err := store.Load(ctx, "user", "a")
		require.NoError(t, err)
		require.JSONEq(t, `{"name":"ada"}`, string(got))

		require.NoError(t, store.Apply(ctx, domain.ChangeSet{
			Upserts: []domain.Document{{Type: "user", ID: "a", Payload: []byte(`{"name":"ada2"}`)}},
			Deletes: []domain.DocumentRef{{Type: "user", ID: "b"}},
		}))
		got, err = store.Load(ctx, "user", "a")
		require.NoError(t, err)
		require.JSONEq(t, `{"name":"ada2"}`, string(got))
		got, err = store.Load(ctx, "user", "b")
		require.NoError(t, err)
		require.Nil(t, got)
	})

	t.Run("types are partitioned", func(t *testing.T) {
		ctx := context.Background()
		store := open(t)
		t.Cleanup(func() { _ = store.Close() })
		require.NoError(t, store.Apply(ctx, domain.ChangeSet{Upserts: []domain.Document{
			{Type: "user", ID: "1", Payload: []byte(`{"kind":"user"}`)},
			{Type: "order", ID: "1", Payload: []byte(`{"kind":"order"}`)},
		}}))
		got, err := store.Load(ctx, "order", "1")
		require.NoError(t, err)
		require.JSONEq(t, `{"kind":"order"}`, string(got))
		require.Equal(t, []string{"1"}, collectIDs(t, store, "user", nil))
	})

	t.Run("query is filtered and ordered", func(t *testing.T) {
		ctx := context.Background()
		store := open(t)
		t.Cleanup(func() { _ = store.Close() })
		require.NoError(t, store.Apply(ctx, domain.ChangeSet{Upserts: []domain.Document{
			{Type: "item", ID: "k1", Payload: []byte(`{"v":1}`)},
			{Type: "item", ID: "k2", Payload: []byte(`{"v":2,"tag":"x"}`)},
			{Type: "item", ID: "k3", Payload: []byte(`{"v":3,"tag":"x"}`)},
		}}))
		require.Equal(t, []string{"k1", "k2", "k3"}, collectIDs(t, store, "item", nil))
		require.Equal(t, []string{"k2", "k3"}, collectIDs(t, store, "item", contains(`"tag"`)))
		require.Empty(t, collectIDs(t, store, "item", contains("nothing")))
	})

	t.Run("query stops when consumer stops", func(t *testing.T) {
		ctx := context.Background()
		store := open(t)
		t.Cleanup(func() { _ = store.Close() })
		require.NoError(t, store.Apply(ctx, domain.ChangeSet{Upserts: []domain.Document{
			{Type: "item", ID: "k1", Payload: []byte(`{"v":1}`)},
			{Type: "item", ID: "k2", Payload: []byte(`{"v":2}`)},
			{Type: "item", ID: "k3", Payload: []byte(`{"v":3}`)},
		}}))
		evaluated := 0
		counting := matchFunc(func([]byte) (bool, error) { evaluated++; return true, nil })
		for doc, err := range store.Query(ctx, "item", counting) {
			require.NoError(t, err)
			require.Equal(t, "k1", doc.ID)
			break
		}
		require.Equal(t, 1, evaluated)
	})

	t.Run("filter errors surface", func(t *testing.T) {
		ctx := context.Background()
		store := open(t)
		t.Cleanup(func() { _ = store.Close() })
		require.NoError(t, store.Apply(ctx, domain.ChangeSet{Upserts: []domain.Document{
			{Type: "item", ID: "k1", Payload: []byte(`{"v":1}`)},
		}}))
		boom := errors.New("boom")
		failing := matchFunc(func([]byte) (bool, error) { return false, boom })
		var got error
		for _, err := range store.Query(ctx, "item", failing) {
			got = err
		}
		require.ErrorIs(t, got, boom)
	})
}

func collectIDs(t *testing.T, store domain.DocumentStore, docType string, filter domain.Filter) []string {
	t.Helper()
	var ids []string
	for doc, err := range store.Query(context.Background(), docType, filter) {
		require.NoError(t, err)
		ids = append(ids, doc.ID)
	}
	return ids
}
