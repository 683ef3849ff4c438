// Package testutil provides a stub database driver emulating the postgres
// documents table for store tests.
package testutil

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"fmt"
	"io"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
)

// StubRow is one emulated documents row.
type StubRow struct {
	DocType string
	ID      string
	Payload string
	Seq     int64
}

// StubConn records statements and keeps documents rows in memory.
type StubConn struct {
	mu         sync.Mutex
	Execs      []string
	Rows       []StubRow
	seq        int64
	FailPing   bool
	FailExec   bool
	FailBegin  bool
	FailCommit bool
	FailQuery  bool
	RowsErr    error
}

var stubSeq atomic.Int64

// NewStubDB registers a sql.DB backed by an in-memory stub connection.
func NewStubDB() (*sql.DB, *StubConn) {
	conn := &StubConn{}
	name := fmt.Sprintf("stubpg%d", stubSeq.Add(1))
	sql.Register(name, &stubDriver{conn: conn})
	db, err := sql.Open(name, "stub")
	if err != nil {
		panic(err)
	}
	return db, conn
}

// Snapshot returns a copy of the stored rows in sequence order.
func (c *StubConn) Snapshot() []StubRow {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Clone(c.Rows)
}

// ExecLog returns a copy of the executed statements.
func (c *StubConn) ExecLog() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Clone(c.Execs)
}

type stubDriver struct {
	conn *StubConn
}

func (d *stubDriver) Open(string) (driver.Conn, error) {
	return d.conn, nil
}

// Prepare implements driver.Conn.
func (c *StubConn) Prepare(string) (driver.Stmt, error) { return nil, fmt.Errorf("not implemented") }

// Close implements driver.Conn.
func (c *StubConn) Close() error { return nil }

// Begin implements driver.Conn.
func (c *StubConn) Begin() (driver.Tx, error) {
	return c.BeginTx(context.Background(), driver.TxOptions{})
}

// Ping implements driver.Pinger.
func (c *StubConn) Ping(_ context.Context) error {
	if c.FailPing {
		return fmt.Errorf("ping fail")
	}
	return nil
}

// BeginTx implements driver.ConnBeginTx.
func (c *StubConn) BeginTx(_ context.Context, _ driver.TxOptions) (driver.Tx, error) {
	if c.FailBegin {
		return nil, fmt.Errorf("begin fail")
	}
	return &stubTx{conn: c}, nil
}

// ExecContext implements driver.ExecerContext.
func (c *StubConn) ExecContext(_ context.Context, query string, args []driver.NamedValue) (driver.Result, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Execs = append(c.Execs, query)
	if c.FailExec {
		return nil, fmt.Errorf("exec fail")
	}
	verb := strings.ToUpper(strings.TrimSpace(query))
	switch {
	case strings.HasPrefix(verb, "INSERT INTO DOCUMENTS"):
		if len(args) != 3 {
			return nil, fmt.Errorf("insert expects 3 args, got %d", len(args))
		}
		row := StubRow{DocType: str(args[0]), ID: str(args[1]), Payload: str(args[2])}
		if i := c.find(row.DocType, row.ID); i >= 0 {
			c.Rows[i].Payload = row.Payload
			return driver.RowsAffected(1), nil
		}
		c.seq++
		row.Seq = c.seq
		c.Rows = append(c.Rows, row)
		return driver.RowsAffected(1), nil
	case strings.HasPrefix(verb, "DELETE FROM DOCUMENTS"):
		if len(args) != 2 {
			return nil, fmt.Errorf("delete expects 2 args, got %d", len(args))
		}
		if i := c.find(str(args[0]), str(args[1])); i >= 0 {
			c.Rows = slices.Delete(c.Rows, i, i+1)
			return driver.RowsAffected(1), nil
		}
		return driver.RowsAffected(0), nil
	}
	return driver.RowsAffected(0), nil
}

// QueryContext implements driver.QueryerContext. It understands the point
// lookup (doc_type, id) and the ordered scan of one doc_type.
func (c *StubConn) QueryContext(_ context.Context, query string, args []driver.NamedValue) (driver.Rows, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.FailQuery {
		return nil, fmt.Errorf("query fail")
	}
	up := strings.ToUpper(query)
	if !strings.Contains(up, "FROM DOCUMENTS") || len(args) == 0 {
		return nil, fmt.Errorf("unsupported query: %s", query)
	}
	docType := str(args[0])
	if len(args) == 2 {
		out := &stubRows{cols: []string{"payload"}, err: c.RowsErr}
		if i := c.find(docType, str(args[1])); i >= 0 {
			out.rows = append(out.rows, []driver.Value{c.Rows[i].Payload})
		}
		return out, nil
	}
	out := &stubRows{cols: []string{"id", "payload"}, err: c.RowsErr}
	for _, row := range c.Rows {
		if row.DocType == docType {
			out.rows = append(out.rows, []driver.Value{row.ID, row.Payload})
		}
	}
	return out, nil
}

func (c *StubConn) find(docType, id string) int {
	return slices.IndexFunc(c.Rows, func(r StubRow) bool { return r.DocType == docType && r.ID == id })
}

func str(v driver.NamedValue) string {
	switch t := v.Value.(type) {
	case string:
		return t
	case []byte:
		return string(t)
	default:
		return fmt.Sprint(t)
	}
}

type stubTx struct {
	conn *StubConn
}

func (t *stubTx) Commit() error {
	if t.conn.FailCommit {
		return fmt.Errorf("commit fail")
	}
	return nil
}
func (t *stubTx) Rollback() error { return nil }

type stubRows struct {
	cols []string
	rows [][]driver.Value
	idx  int
	err  error
}

func (r *stubRows) Columns() []string { return r.cols }
func (r *stubRows) Close() error      { return nil }

func (r *stubRows) Next(dest []driver.Value) error {
	if r.idx >= len(r.rows) {
		if r.err != nil {
			return r.err
		}
		return io.EOF
	}
	copy(dest, r.rows[r.idx])
	r.idx++
	return nil
}
