package rag

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"strings"

	"github.com/lib/pq"
)

// DefaultTable is the chunk table written by the indexer.
const DefaultTable = "code_vectors"

// identPattern restricts table names to plain SQL identifiers.
var identPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// PostgresConfig holds connection parameters for a pgvector-backed chunk table.
type PostgresConfig struct {
	// DatabaseURL is the lib/pq connection string.
	DatabaseURL string

	// Table is the chunk table name (default: code_vectors). The table must
	// have filename, location, text and embedding vector(N) columns.
	Table string
}

// PostgresStore implements ChunkStore over a Postgres table with a pgvector
// embedding column.
type PostgresStore struct {
	// db is the connection pool. Each query borrows a connection for its
	// own duration only.
	db *sql.DB

	// table is the quoted table identifier.
	table string
}

// NewPostgresStore opens a connection pool against cfg.DatabaseURL.
// No query is issued; use Ping to check reachability.
func NewPostgresStore(cfg *PostgresConfig) (*PostgresStore, error) {
	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("postgres: database URL must not be empty")
	}
	table := cfg.Table
	if table == "" {
		table = DefaultTable
	}
	if !identPattern.MatchString(table) {
		return nil, fmt.Errorf("postgres: invalid table name %q", table)
	}

	db, err := sql.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("postgres: open: %w", err)
	}
	return &PostgresStore{db: db, table: pq.QuoteIdentifier(table)}, nil
}

// SearchVector ranks chunks by cosine similarity using pgvector's <=> cosine
// distance operator.
func (s *PostgresStore) SearchVector(ctx context.Context, vec []float32, limit int) ([]Row, error) {
	q := fmt.Sprintf(`
SELECT filename, text, 1 - (embedding <=> $1::vector) AS score
FROM   %s
ORDER  BY score DESC, filename, location
LIMIT  $2`, s.table)

	rows, err := s.db.QueryContext(ctx, q, encodeVectorLiteral(vec), limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: vector search: %w", err)
	}
	defer rows.Close()

	var out []Row
	for rows.Next() {
		var r Row
		if err := rows.Scan(&r.Filename, &r.Text, &r.Score); err != nil {
			return nil, fmt.Errorf("postgres: vector search scan: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: vector search rows: %w", err)
	}
	return out, nil
}

// SearchSubstring returns chunks whose text matches any term with ILIKE.
// LIKE metacharacters in terms are escaped so each term is a literal
// substring.
func (s *PostgresStore) SearchSubstring(ctx context.Context, terms []string, limit int) ([]Row, error) {
	if len(terms) == 0 {
		return nil, nil
	}
	patterns := make([]string, len(terms))
	for i, t := range terms {
		patterns[i] = "%" + escapeLike(t) + "%"
	}

	q := fmt.Sprintf(`SELECT filename, text FROM %s WHERE text ILIKE ANY($1) LIMIT $2`, s.table)

	rows, err := s.db.QueryContext(ctx, q, pq.Array(patterns), limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: substring search: %w", err)
	}
	defer rows.Close()

	var out []Row
	for rows.Next() {
		var r Row
		if err := rows.Scan(&r.Filename, &r.Text); err != nil {
			return nil, fmt.Errorf("postgres: substring search scan: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: substring search rows: %w", err)
	}
	return out, nil
}

// Count returns the number of rows in the chunk table.
func (s *PostgresStore) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.QueryRowContext(ctx, fmt.Sprintf(`SELECT count(*) FROM %s`, s.table)).Scan(&n); err != nil {
		return 0, fmt.Errorf("postgres: count: %w", err)
	}
	return n, nil
}

// Ping checks that the database is reachable.
func (s *PostgresStore) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("postgres: ping: %w", err)
	}
	return nil
}

// Close releases the connection pool.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}

// likeEscaper escapes the characters LIKE treats specially, using the
// default backslash escape character.
var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// escapeLike makes term safe to embed in a LIKE pattern.
func escapeLike(term string) string {
	return likeEscaper.Replace(term)
}
