// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package ledger records processed documents in a SQLite database so that
// unchanged sources can be skipped on later runs, and aggregates the
// placeholder inventory across every templated document.
package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/pdiddy/docx-templater/pkg/types"
)

// ErrNotFound is returned when the ledger holds no record for a document.
var ErrNotFound = errors.New("no ledger record")

const timeFormat = time.RFC3339Nano

// Store manages the ledger SQLite database.
type Store struct {
	db   *sql.DB
	path string
}

// Open opens or creates the ledger database at path, creating the schema if
// it does not exist.
func Open(ctx context.Context, path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating ledger directory: %w", err)
	}

	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_foreign_keys=on&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("opening ledger: %w", err)
	}

	s := &Store{db: db, path: path}
	if err := s.createSchema(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating ledger schema: %w", err)
	}
	return s, nil
}

// Close releases the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Path returns the database file path.
func (s *Store) Path() string { return s.path }

func (s *Store) createSchema(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS runs (
			id TEXT PRIMARY KEY,
			started_at TEXT NOT NULL,
			finished_at TEXT,
			processed INTEGER NOT NULL DEFAULT 0,
			skipped INTEGER NOT NULL DEFAULT 0,
			failed INTEGER NOT NULL DEFAULT 0
		)`,
		`CREATE TABLE IF NOT EXISTS documents (
			path TEXT PRIMARY KEY,
			output_path TEXT,
			sha256 TEXT,
			status TEXT NOT NULL,
			locations INTEGER NOT NULL DEFAULT 0,
			changed INTEGER NOT NULL DEFAULT 0,
			deleted INTEGER NOT NULL DEFAULT 0,
			error TEXT,
			processed_at TEXT NOT NULL,
			run_id TEXT REFERENCES runs(id)
		)`,
		`CREATE TABLE IF NOT EXISTS placeholders (
			path TEXT NOT NULL REFERENCES documents(path) ON DELETE CASCADE,
			name TEXT NOT NULL,
			count INTEGER NOT NULL,
			PRIMARY KEY (path, name)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_placeholders_name ON placeholders(name)`,
		`CREATE INDEX IF NOT EXISTS idx_documents_processed_at ON documents(processed_at)`,
	}

	for _, stmt := range statements {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("executing schema statement: %w", err)
		}
	}
	return nil
}

// BeginRun inserts a new run record and returns it.
func (s *Store) BeginRun(ctx context.Context) (types.Run, error) {
	run := types.Run{ID: uuid.NewString(), StartedAt: time.Now().UTC()}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (id, started_at) VALUES (?, ?)`,
		run.ID, run.StartedAt.Format(timeFormat),
	)
	if err != nil {
		return types.Run{}, fmt.Errorf("inserting run: %w", err)
	}
	return run, nil
}

// FinishRun stores the final counters of run.
func (s *Store) FinishRun(ctx context.Context, run types.Run) error {
	if run.FinishedAt.IsZero() {
		run.FinishedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`UPDATE runs SET finished_at = ?, processed = ?, skipped = ?, failed = ? WHERE id = ?`,
		run.FinishedAt.Format(timeFormat), run.Processed, run.Skipped, run.Failed, run.ID,
	)
	if err != nil {
		return fmt.Errorf("updating run %s: %w", run.ID, err)
	}
	return nil
}

// Record upserts doc and replaces its placeholder rows in one transaction.
// Skipped documents are not recorded so that the last real outcome stays.
func (s *Store) Record(ctx context.Context, runID string, doc types.Document) error {
	if doc.Status == types.DocumentSkipped {
		return nil
	}
	if doc.ProcessedAt.IsZero() {
		doc.ProcessedAt = time.Now().UTC()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	var run any
	if runID != "" {
		run = runID
	}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO documents (path, output_path, sha256, status, locations, changed, deleted, error, processed_at, run_id)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(path) DO UPDATE SET
			output_path=excluded.output_path, sha256=excluded.sha256, status=excluded.status,
			locations=excluded.locations, changed=excluded.changed, deleted=excluded.deleted,
			error=excluded.error, processed_at=excluded.processed_at, run_id=excluded.run_id`,
		doc.Path, doc.OutputPath, doc.SHA256, string(doc.Status),
		doc.Locations, doc.Changed, doc.Deleted, doc.Error,
		doc.ProcessedAt.UTC().Format(timeFormat), run,
	)
	if err != nil {
		return fmt.Errorf("upserting document %s: %w", doc.Path, err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM placeholders WHERE path = ?`, doc.Path); err != nil {
		return fmt.Errorf("clearing placeholders for %s: %w", doc.Path, err)
	}

	if len(doc.Placeholders) > 0 {
		stmt, err := tx.PrepareContext(ctx, `INSERT INTO placeholders (path, name, count) VALUES (?, ?, ?)`)
		if err != nil {
			return fmt.Errorf("preparing insert: %w", err)
		}
		defer stmt.Close()

		for name, count := range doc.Placeholders {
			if _, err := stmt.ExecContext(ctx, doc.Path, name, count); err != nil {
				return fmt.Errorf("inserting placeholder %s for %s: %w", name, doc.Path, err)
			}
		}
	}

	return tx.Commit()
}

// LastHash returns the source digest recorded the last time path was
// processed successfully, or ErrNotFound.
func (s *Store) LastHash(ctx context.Context, path string) (string, error) {
	var hash string
	err := s.db.QueryRowContext(ctx,
		`SELECT sha256 FROM documents WHERE path = ? AND status = ?`,
		path, string(types.DocumentProcessed),
	).Scan(&hash)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("querying ledger for %s: %w", path, err)
	}
	return hash, nil
}

// Document returns the ledger record for path, or ErrNotFound.
func (s *Store) Document(ctx context.Context, path string) (types.Document, error) {
	docs, err := s.queryDocuments(ctx, `WHERE path = ?`, path)
	if err != nil {
		return types.Document{}, err
	}
	if len(docs) == 0 {
		return types.Document{}, ErrNotFound
	}
	return docs[0], nil
}

// History returns up to limit document records, most recently processed
// first. A limit of zero or less returns every record.
func (s *Store) History(ctx context.Context, limit int) ([]types.Document, error) {
	if limit <= 0 {
		limit = -1
	}
	return s.queryDocuments(ctx, `ORDER BY processed_at DESC, path LIMIT ?`, limit)
}

func (s *Store) queryDocuments(ctx context.Context, clause string, args ...any) ([]types.Document, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT path, output_path, sha256, status, locations, changed, deleted, error, processed_at
		 FROM documents `+clause, args...)
	if err != nil {
		return nil, fmt.Errorf("querying documents: %w", err)
	}
	defer rows.Close()

	var docs []types.Document
	index := make(map[string]int)
	for rows.Next() {
		var (
			d                       types.Document
			status, processedAt     string
			output, hash, errString sql.NullString
		)
		if err := rows.Scan(&d.Path, &output, &hash, &status, &d.Locations, &d.Changed, &d.Deleted, &errString, &processedAt); err != nil {
			return nil, fmt.Errorf("scanning document: %w", err)
		}
		d.OutputPath = output.String
		d.SHA256 = hash.String
		d.Error = errString.String
		d.Status = types.DocumentStatus(status)
		d.ProcessedAt, _ = time.Parse(timeFormat, processedAt)
		index[d.Path] = len(docs)
		docs = append(docs, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating documents: %w", err)
	}
	rows.Close()

	if len(docs) == 0 {
		return docs, nil
	}

	prows, err := s.db.QueryContext(ctx, `SELECT path, name, count FROM placeholders`)
	if err != nil {
		return nil, fmt.Errorf("querying placeholders: %w", err)
	}
	defer prows.Close()
	for prows.Next() {
		var (
			path, name string
			count      int
		)
		if err := prows.Scan(&path, &name, &count); err != nil {
			return nil, fmt.Errorf("scanning placeholder: %w", err)
		}
		i, ok := index[path]
		if !ok {
			continue
		}
		if docs[i].Placeholders == nil {
			docs[i].Placeholders = make(map[string]int)
		}
		docs[i].Placeholders[name] = count
	}
	return docs, prows.Err()
}

// PlaceholderUsage aggregates one placeholder name across the ledger.
type PlaceholderUsage struct {
	Name        string   `json:"name" yaml:"name"`
	Documents   int      `json:"documents" yaml:"documents"`
	Occurrences int      `json:"occurrences" yaml:"occurrences"`
	Paths       []string `json:"paths" yaml:"paths"`
}

// Placeholders returns every placeholder name emitted into processed
// documents, most widely used first.
func (s *Store) Placeholders(ctx context.Context) ([]PlaceholderUsage, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT p.name, p.path, p.count
		 FROM placeholders p JOIN documents d ON d.path = p.path
		 WHERE d.status = ?
		 ORDER BY p.name, p.path`, string(types.DocumentProcessed))
	if err != nil {
		return nil, fmt.Errorf("querying placeholders: %w", err)
	}
	defer rows.Close()

	byName := make(map[string]*PlaceholderUsage)
	var order []string
	for rows.Next() {
		var (
			name, path string
			count      int
		)
		if err := rows.Scan(&name, &path, &count); err != nil {
			return nil, fmt.Errorf("scanning placeholder: %w", err)
		}
		u, ok := byName[name]
		if !ok {
			u = &PlaceholderUsage{Name: name}
			byName[name] = u
			order = append(order, name)
		}
		u.Documents++
		u.Occurrences += count
		u.Paths = append(u.Paths, path)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating placeholders: %w", err)
	}

	out := make([]PlaceholderUsage, len(order))
	for i, name := range order {
		out[i] = *byName[name]
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Documents != out[j].Documents {
			return out[i].Documents > out[j].Documents
		}
		return out[i].Name < out[j].Name
	})
	return out, nil
}

// Runs returns up to limit runs, newest first.
func (s *Store) Runs(ctx context.Context, limit int) ([]types.Run, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, started_at, finished_at, processed, skipped, failed
		 FROM runs ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("querying runs: %w", err)
	}
	defer rows.Close()

	var runs []types.Run
	for rows.Next() {
		var (
			r        types.Run
			started  string
			finished sql.NullString
		)
		if err := rows.Scan(&r.ID, &started, &finished, &r.Processed, &r.Skipped, &r.Failed); err != nil {
			return nil, fmt.Errorf("scanning run: %w", err)
		}
		r.StartedAt, _ = time.Parse(timeFormat, started)
		if finished.Valid {
			r.FinishedAt, _ = time.Parse(timeFormat, finished.String)
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}
