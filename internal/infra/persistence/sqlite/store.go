// Package sqlite provides a document store persisted to a single SQLite table
// through the pure-Go modernc.org/sqlite driver.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"iter"
	"os"
	"path/filepath"

	"doccore/pkg/domain"

	_ "modernc.org/sqlite" // pure go sqlite driver
)

// Compile-time contract assertion ensuring the store satisfies the domain interface.
var _ domain.DocumentStore = (*Store)(nil)

const defaultPath = "doccore.db"

const schema = `CREATE TABLE IF NOT EXISTS documents (
	doc_type TEXT NOT NULL,
	id       TEXT NOT NULL,
	payload  BLOB NOT NULL,
	seq      INTEGER NOT NULL,
	PRIMARY KEY (doc_type, id)
)`

// Store keeps one row per document. Queries yield documents in
// first-insertion order.
type Store struct {
	db   *sql.DB
	path string
}

// NewStore opens (creating when needed) the SQLite database at path.
func NewStore(path string) (*Store, error) {
	if path == "" {
		path = defaultPath
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil && !errors.Is(err, os.ErrExist) {
		return nil, fmt.Errorf("create dirs: %w", err)
	}
	db, err := sql.Open("sqlite", path+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create documents table: %w", err)
	}
	return &Store{db: db, path: path}, nil
}

// Load returns the stored payload, or nil when absent.
func (s *Store) Load(ctx context.Context, docType, id string) ([]byte, error) {
	var payload []byte
	err := s.db.QueryRowContext(ctx, `SELECT payload FROM documents WHERE doc_type = ? AND id = ?`, docType, id).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load %s %s: %w", docType, id, err)
	}
	return payload, nil
}

// Query streams rows of docType and yields those matching filter. The
// cursor is closed as soon as the consumer stops iterating.
func (s *Store) Query(ctx context.Context, docType string, filter domain.Filter) iter.Seq2[domain.Document, error] {
	return func(yield func(domain.Document, error) bool) {
		rows, err := s.db.QueryContext(ctx, `SELECT id, payload FROM documents WHERE doc_type = ? ORDER BY seq`, docType)
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

// Apply writes the change set in one SQLite transaction.
func (s *Store) Apply(ctx context.Context, changes domain.ChangeSet) (retErr error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if retErr != nil {
			_ = tx.Rollback()
		}
	}()
	for _, doc := range changes.Upserts {
		if _, err := tx.ExecContext(ctx, `INSERT INTO documents(doc_type, id, payload, seq)
			VALUES(?, ?, ?, (SELECT COALESCE(MAX(seq), 0) + 1 FROM documents))
			ON CONFLICT(doc_type, id) DO UPDATE SET payload = excluded.payload`,
			doc.Type, doc.ID, doc.Payload); err != nil {
			return fmt.Errorf("upsert %s %s: %w", doc.Type, doc.ID, err)
		}
	}
	for _, ref := range changes.Deletes {
		if _, err := tx.ExecContext(ctx, `DELETE FROM documents WHERE doc_type = ? AND id = ?`, ref.Type, ref.ID); err != nil {
			return fmt.Errorf("delete %s %s: %w", ref.Type, ref.ID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// Close closes the database.
func (s *Store) Close() error { return s.db.Close() }

// DB exposes the underlying sql.DB for integration testing hooks.
func (s *Store) DB() *sql.DB { return s.db }

// Path returns the configured database path.
func (s *Store) Path() string { return s.path }
