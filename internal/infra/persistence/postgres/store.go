// Package postgres provides a Postgres-backed document store keeping one JSONB
// row per document.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"iter"
	"sync"

	"doccore/pkg/domain"

	_ "github.com/jackc/pgx/v5/stdlib" // register pgx as a database/sql driver
)

// Compile-time contract assertion ensuring the store satisfies the domain interface.
var _ domain.DocumentStore = (*Store)(nil)

const (
	defaultDriver = "pgx"
	// Default DSN keeps parity with OpenDocumentStore defaults while allowing overrides via env.
	defaultDSN = "postgres://localhost/doccore?sslmode=disable"
)

const schema = `CREATE TABLE IF NOT EXISTS documents (
	doc_type TEXT NOT NULL,
	id       TEXT NOT NULL,
	payload  JSONB NOT NULL,
	seq      BIGSERIAL,
	PRIMARY KEY (doc_type, id)
)`

const (
	loadSQL   = `SELECT payload FROM documents WHERE doc_type = $1 AND id = $2`
	querySQL  = `SELECT id, payload FROM documents WHERE doc_type = $1 ORDER BY seq`
	upsertSQL = `INSERT INTO documents (doc_type, id, payload) VALUES ($1, $2, $3)
ON CONFLICT (doc_type, id) DO UPDATE SET payload = EXCLUDED.payload`
	deleteSQL = `DELETE FROM documents WHERE doc_type = $1 AND id = $2`
)

var (
	sqlOpen = sql.Open
	openMu  sync.Mutex
)

// Store persists documents to Postgres. Queries yield documents in
// first-insertion order; updates keep the original sequence number.
type Store struct {
	db *sql.DB
}

// NewStore opens a Postgres-backed store using the provided DSN (falls back to defaultDSN)
// and ensures the documents table exists.
func NewStore(ctx context.Context, dsn string) (*Store, error) {
	if dsn == "" {
		dsn = defaultDSN
	}
	openMu.Lock()
	db, err := sqlOpen(defaultDriver, dsn)
	openMu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create documents table: %w", err)
	}
	return &Store{db: db}, nil
}

// Load returns the stored payload, or nil when absent.
func (s *Store) Load(ctx context.Context, docType, id string) ([]byte, error) {
	var payload []byte
	err := s.db.QueryRowContext(ctx, loadSQL, docType, id).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load %s %s: %w", docType, id, err)
	}
	return payload, nil
}

// Query streams rows of docType and yields those matching filter.
func (s *Store) Query(ctx context.Context, docType string, filter domain.Filter) iter.Seq2[domain.Document, error] {
	return func(yield func(domain.Document, error) bool) {
		rows, err := s.db.QueryContext(ctx, querySQL, docType)
		if err != nil {
			yield(domain.Document{}, fmt.Errorf("query %s: %w", docType, err))
			return
		}
		defer func() { _ = rows.Close() }()
		for rows.Next() {
			doc := domain.Document{Type: docType}
			if err := rows.Scan(&doc.ID, &doc.Payload); err != nil {
				yield(domain.Document{}, fmt.Errorf("scan %s: %w", docType, err))
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
		if err := rows.Err(); err != nil {
			yield(domain.Document{}, fmt.Errorf("iterate %s: %w", docType, err))
		}
	}
}

// Apply writes the change set in one transaction.
func (s *Store) Apply(ctx context.Context, changes domain.ChangeSet) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := applyChanges(ctx, tx, changes); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func applyChanges(ctx context.Context, exec execer, changes domain.ChangeSet) error {
	for _, doc := range changes.Upserts {
		if _, err := exec.ExecContext(ctx, upsertSQL, doc.Type, doc.ID, string(doc.Payload)); err != nil {
			return fmt.Errorf("upsert %s %s: %w", doc.Type, doc.ID, err)
		}
	}
	for _, ref := range changes.Deletes {
		if _, err := exec.ExecContext(ctx, deleteSQL, ref.Type, ref.ID); err != nil {
			return fmt.Errorf("delete %s %s: %w", ref.Type, ref.ID, err)
		}
	}
	return nil
}

// Close closes the database.
func (s *Store) Close() error { return s.db.Close() }

// DB exposes the underlying sql.DB for integration testing hooks.
func (s *Store) DB() *sql.DB { return s.db }

// OverrideSQLOpen swaps the sqlOpen function for tests and returns a restore function.
func OverrideSQLOpen(fn func(driverName, dataSourceName string) (*sql.DB, error)) func() {
	openMu.Lock()
	defer openMu.Unlock()
	prev := sqlOpen
	sqlOpen = fn
	return func() {
		openMu.Lock()
		defer openMu.Unlock()
		sqlOpen = prev
	}
}
