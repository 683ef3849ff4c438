package testutil

import (
	"context"
	"database/sql/driver"
	"errors"
	"io"
	"testing"
)

func TestStubDBUpsertsAndScansDocuments(t *testing.T) {
	ctx := context.Background()
	_, conn := NewStubDB()

	if err := conn.Ping(ctx); err != nil {
		t.Fatalf("Ping: %v", err)
	}
	insert := "INSERT INTO documents (doc_type, id, payload) VALUES ($1, $2, $3)"
	for _, args := range [][]driver.NamedValue{
		{{Value: "user"}, {Value: "a"}, {Value: `{"n":1}`}},
		{{Value: "user"}, {Value: "b"}, {Value: `{"n":2}`}},
		{{Value: "user"}, {Value: "a"}, {Value: `{"n":3}`}},
	} {
		if _, err := conn.ExecContext(ctx, insert, args); err != nil {
			t.Fatalf("ExecContext insert: %v", err)
		}
	}
	rows := conn.Snapshot()
	if len(rows) != 2 || rows[0].ID != "a" || rows[0].Payload != `{"n":3}` || rows[0].Seq != 1 {
		t.Fatalf("unexpected rows after upsert: %+v", rows)
	}

	scan, err := conn.QueryContext(ctx, "SELECT id, payload FROM documents WHERE doc_type = $1 ORDER BY seq", []driver.NamedValue{{Value: "user"}})
	if err != nil {
		t.Fatalf("QueryContext: %v", err)
	}
	dest := make([]driver.Value, 2)
	var ids []string
	for scan.Next(dest) == nil {
		ids = append(ids, dest[0].(string))
	}
	if len(ids) != 2 || ids[0] != "a" || ids[1] != "b" {
		t.Fatalf("unexpected scan order %v", ids)
	}

	if _, err := conn.ExecContext(ctx, "DELETE FROM documents WHERE doc_type = $1 AND id = $2", []driver.NamedValue{{Value: "user"}, {Value: "a"}}); err != nil {
		t.Fatalf("ExecContext delete: %v", err)
	}
	point, err := conn.QueryContext(ctx, "SELECT payload FROM documents WHERE doc_type = $1 AND id = $2", []driver.NamedValue{{Value: "user"}, {Value: "a"}})
	if err != nil {
		t.Fatalf("QueryContext point: %v", err)
	}
	if err := point.Next(make([]driver.Value, 1)); !errors.Is(err, io.EOF) {
		t.Fatalf("expected deleted row to be gone, got %v", err)
	}
	if len(conn.ExecLog()) != 4 {
		t.Fatalf("expected 4 recorded execs, got %d", len(conn.ExecLog()))
	}
}

func TestStubDBFailureFlags(t *testing.T) {
	ctx := context.Background()
	_, conn := NewStubDB()
	conn.FailPing, conn.FailExec, conn.FailBegin, conn.FailQuery = true, true, true, true
	if err := conn.Ping(ctx); err == nil {
		t.Fatalf("expected ping failure")
	}
	if _, err := conn.ExecContext(ctx, "INSERT INTO documents", nil); err == nil {
		t.Fatalf("expected exec failure")
	}
	if _, err := conn.BeginTx(ctx, driver.TxOptions{}); err == nil {
		t.Fatalf("expected begin failure")
	}
	if _, err := conn.QueryContext(ctx, "SELECT id FROM documents WHERE doc_type = $1", []driver.NamedValue{{Value: "x"}}); err == nil {
		t.Fatalf("expected query failure")
	}
}
