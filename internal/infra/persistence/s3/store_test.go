package s3

import (
	"context"
	"strings"
	"testing"

	"doccore/internal/infra/persistence/storetest"
	"doccore/pkg/domain"

	"github.com/stretchr/testify/require"
)

func TestS3StoreContract(t *testing.T) {
	storetest.Run(t, func(*testing.T) domain.DocumentStore {
		store, _ := NewMockForTests("", 0)
		return store
	})
}

func TestS3StorePaginatesQueries(t *testing.T) {
	ctx := context.Background()
	store, bucket := NewMockForTests("tenant/", 2)
	var upserts []domain.Document
	for _, id := range []string{"a", "b", "c", "d", "e"} {
		upserts = append(upserts, domain.Document{Type: "item", ID: id, Payload: []byte(`{"id":"` + id + `"}`)})
	}
	require.NoError(t, store.Apply(ctx, domain.ChangeSet{Upserts: upserts}))
	require.Len(t, bucket.Keys(), 5)
	require.True(t, strings.HasPrefix(bucket.Keys()[0], "tenant/item/"))

	var ids []string
	for doc, err := range store.Query(ctx, "item", nil) {
		require.NoError(t, err)
		ids = append(ids, doc.ID)
	}
	require.Equal(t, []string{"a", "b", "c", "d", "e"}, ids)
}

func TestS3StoreFetchesLazily(t *testing.T) {
	ctx := context.Background()
	store, bucket := NewMockForTests("", 0)
	require.NoError(t, store.Apply(ctx, domain.ChangeSet{Upserts: []domain.Document{
		{Type: "item", ID: "1", Payload: []byte(`{}`)},
		{Type: "item", ID: "2", Payload: []byte(`{}`)},
		{Type: "item", ID: "3", Payload: []byte(`{}`)},
	}}))
	for _, err := range store.Query(ctx, "item", nil) {
		require.NoError(t, err)
		break
	}
	require.Equal(t, 1, bucket.Gets())
}

func TestS3StoreEscapesIdentifiers(t *testing.T) {
	ctx := context.Background()
	store, _ := NewMockForTests("", 0)
	id := "orders/2024 #1"
	require.NoError(t, store.Apply(ctx, domain.ChangeSet{Upserts: []domain.Document{
		{Type: "order", ID: id, Payload: []byte(`{"n":1}`)},
	}}))
	got, err := store.Load(ctx, "order", id)
	require.NoError(t, err)
	require.JSONEq(t, `{"n":1}`, string(got))

	var ids []string
	for doc, err := range store.Query(ctx, "order", nil) {
		require.NoError(t, err)
		ids = append(ids, doc.ID)
	}
	require.Equal(t, []string{id}, ids)
}

func TestS3StoreApplyReportsPutFailure(t *testing.T) {
	store, bucket := NewMockForTests("", 0)
	bucket.FailPuts = true
	err := store.Apply(context.Background(), domain.ChangeSet{Upserts: []domain.Document{{Type: "item", ID: "1", Payload: []byte(`{}`)}}})
	require.ErrorContains(t, err, "upsert item 1")
}

func TestNewRequiresBucket(t *testing.T) {
	_, err := New(context.Background(), Config{})
	require.ErrorContains(t, err, "bucket required")
}

func TestNewWithStaticCredentials(t *testing.T) {
	store, err := New(context.Background(), Config{
		Bucket:          "docs",
		Endpoint:        "http://localhost:9000",
		PathStyle:       true,
		AccessKeyID:     "minio",
		SecretAccessKey: "minio123",
	})
	require.NoError(t, err)
	require.Equal(t, "docs", store.Bucket())
	require.NoError(t, store.Close())
}
