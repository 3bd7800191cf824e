package rag

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"

	_ "modernc.org/sqlite" // register "sqlite" driver
)

// Chunk is an indexed chunk as written by the indexer.
type Chunk struct {
	// Filename is the source file path relative to the indexed root.
	Filename string
	// Location identifies the chunk's position within Filename.
	Location string
	// Text is the chunk content.
	Text string
	// Embedding is the chunk vector produced by the indexing model.
	Embedding []float32
}

// SQLiteStore implements ChunkStore on a local SQLite file. Embeddings are
// stored as little-endian float32 blobs and ranked in process, so it suits
// small single-user indexes and tests rather than large codebases.
type SQLiteStore struct {
	// db is the underlying database handle.
	db *sql.DB
}

// OpenSQLiteStore opens (or creates) a chunk database at path and runs the
// schema migration. Use ":memory:" for an in-memory database.
func OpenSQLiteStore(path string) (*SQLiteStore, error) {
	dsn := path
	if path != ":memory:" {
		dsn = path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open %s: %w", path, err)
	}
	// One connection keeps ":memory:" databases shared and avoids SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// migrate creates the chunk table if it does not already exist.
func (s *SQLiteStore) migrate() error {
	const ddl = `
CREATE TABLE IF NOT EXISTS code_vectors (
    filename  TEXT NOT NULL,
    location  TEXT NOT NULL,
    text      TEXT NOT NULL,
    embedding BLOB NOT NULL,
    PRIMARY KEY (filename, location)
);`
	if _, err := s.db.Exec(ddl); err != nil {
		return fmt.Errorf("sqlite: migrate: %w", err)
	}
	return nil
}

// Upsert inserts or replaces chunks keyed by (filename, location). It exists
// for indexers and fixtures; the query path never calls it.
func (s *SQLiteStore) Upsert(ctx context.Context, chunks []Chunk) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: upsert begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	const q = `
INSERT INTO code_vectors (filename, location, text, embedding) VALUES (?, ?, ?, ?)
ON CONFLICT (filename, location) DO UPDATE SET text = excluded.text, embedding = excluded.embedding`
	for _, c := range chunks {
		if _, err := tx.ExecContext(ctx, q, c.Filename, c.Location, c.Text, encodeVectorBlob(c.Embedding)); err != nil {
			return fmt.Errorf("sqlite: upsert %s@%s: %w", c.Filename, c.Location, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite: upsert commit: %w", err)
	}
	return nil
}

// SearchVector scores every chunk against vec and returns the best limit.
// Equal scores keep insertion order.
func (s *SQLiteStore) SearchVector(ctx context.Context, vec []float32, limit int) ([]Row, error) {
	if limit <= 0 {
		return nil, nil
	}
	rows, err := s.db.QueryContext(ctx, `SELECT filename, text, embedding FROM code_vectors ORDER BY rowid`)
	if err != nil {
		return nil, fmt.Errorf("sqlite: vector search: %w", err)
	}
	defer rows.Close()

	var out []Row
	for rows.Next() {
		var r Row
		var blob []byte
		if err := rows.Scan(&r.Filename, &r.Text, &blob); err != nil {
			return nil, fmt.Errorf("sqlite: vector search scan: %w", err)
		}
		emb, err := decodeVectorBlob(blob)
		if err != nil {
			return nil, err
		}
		r.Score = CosineSimilarity(vec, emb)
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: vector search rows: %w", err)
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// SearchSubstring scans chunks in insertion order and returns the first
// limit whose lowercased text contains any lowercased term. Matching runs in
// Go because SQLite's lower() only folds ASCII.
func (s *SQLiteStore) SearchSubstring(ctx context.Context, terms []string, limit int) ([]Row, error) {
	if len(terms) == 0 || limit <= 0 {
		return nil, nil
	}
	lowered := lowerTerms(terms)

	rows, err := s.db.QueryContext(ctx, `SELECT filename, text FROM code_vectors ORDER BY rowid`)
	if err != nil {
		return nil, fmt.Errorf("sqlite: substring search: %w", err)
	}
	defer rows.Close()

	var out []Row
	for rows.Next() {
		var r Row
		if err := rows.Scan(&r.Filename, &r.Text); err != nil {
			return nil, fmt.Errorf("sqlite: substring search scan: %w", err)
		}
		if containsAny(strings.ToLower(r.Text), lowered) {
			out = append(out, r)
			if len(out) == limit {
				break
			}
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: substring search rows: %w", err)
	}
	return out, nil
}

// Count returns the number of stored chunks.
func (s *SQLiteStore) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.QueryRowContext(ctx, `SELECT count(*) FROM code_vectors`).Scan(&n); err != nil {
		return 0, fmt.Errorf("sqlite: count: %w", err)
	}
	return n, nil
}

// Ping checks that the database handle is usable.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("sqlite: ping: %w", err)
	}
	return nil
}

// Close releases the database handle.
func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("sqlite: close: %w", err)
	}
	return nil
}

// lowerTerms returns terms lowercased for case-insensitive matching.
func lowerTerms(terms []string) []string {
	out := make([]string, len(terms))
	for i, t := range terms {
		out[i] = strings.ToLower(t)
	}
	return out
}

// appendMatches appends to out, in order, the rows whose lowercased text
// contains any of lowered, stopping at limit. done reports that limit was
// reached.
func appendMatches(out, rows []Row, lowered []string, limit int) (result []Row, done bool) {
	for _, r := range rows {
		if !containsAny(strings.ToLower(r.Text), lowered) {
			continue
		}
		out = append(out, r)
		if len(out) >= limit {
			return out, true
		}
	}
	return out, false
}

// containsAny reports whether s contains any of subs.
func containsAny(s string, subs []string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
