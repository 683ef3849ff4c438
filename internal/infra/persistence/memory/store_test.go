package memory

import (
	"context"
	"testing"

	"doccore/internal/infra/persistence/storetest"
	"doccore/pkg/domain"
)

func TestMemoryStoreContract(t *testing.T) {
	storetest.Run(t, func(*testing.T) domain.DocumentStore { return NewStore() })
}

func TestMemoryStoreLoadReturnsCopy(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	if err := store.Apply(ctx, domain.ChangeSet{Upserts: []domain.Document{{Type: "t", ID: "1", Payload: []byte(`{"a":1}`)}}}); err != nil {
		t.Fatalf("apply: %v", err)
	}
	got, _ := store.Load(ctx, "t", "1")
	got[0] = 'X'
	again, _ := store.Load(ctx, "t", "1")
	if string(again) != `{"a":1}` {
		t.Fatalf("stored payload mutated through Load: %s", again)
	}
}

func TestMemoryStoreApplyValidatesBeforeWriting(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	err := store.Apply(ctx, domain.ChangeSet{Upserts: []domain.Document{
		{Type: "t", ID: "1", Payload: []byte(`{}`)},
		{Type: "t", ID: "", Payload: []byte(`{}`)},
	}})
	if err == nil {
		t.Fatalf("expected invalid change set to fail")
	}
	if n := store.Count("t"); n != 0 {
		t.Fatalf("expected no partial writes, got %d", n)
	}
}

func TestMemoryStoreQuerySnapshotIgnoresLaterWrites(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	_ = store.Apply(ctx, domain.ChangeSet{Upserts: []domain.Document{{Type: "t", ID: "1", Payload: []byte(`{}`)}}})
	var seen []string
	for doc, err := range store.Query(ctx, "t", nil) {
		if err != nil {
			t.Fatalf("query: %v", err)
		}
		seen = append(seen, doc.ID)
		_ = store.Apply(ctx, domain.ChangeSet{Upserts: []domain.Document{{Type: "t", ID: "2", Payload: []byte(`{}`)}}})
	}
	if len(seen) != 1 {
		t.Fatalf("expected snapshot iteration, saw %v", seen)
	}
	if store.Count("t") != 2 {
		t.Fatalf("expected write to land, count=%d", store.Count("t"))
	}
}

func TestMemoryStoreQueryHonoursCancellation(t *testing.T) {
	store := NewStore()
	_ = store.Apply(context.Background(), domain.ChangeSet{Upserts: []domain.Document{{Type: "t", ID: "1", Payload: []byte(`{}`)}}})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	var got error
	for _, err := range store.Query(ctx, "t", nil) {
		got = err
	}
	if got == nil {
		t.Fatalf("expected cancellation error")
	}
}
