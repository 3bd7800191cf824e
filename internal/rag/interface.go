// Package rag implements hybrid retrieval over an indexed codebase: semantic
// search against chunk embeddings, keyword search against chunk text, and the
// merge and formatting steps that turn both result streams into a single
// context bundle for the answer synthesizer.
//
// The chunk table is owned by an external indexer. Nothing in this package
// writes to it on the query path.
package rag

import (
	"context"
)

// Source identifies which retrieval strategy produced a result.
type Source string

const (
	// SourceSemantic marks a result produced by vector similarity search.
	SourceSemantic Source = "semantic"
	// SourceKeyword marks a result produced by substring matching.
	SourceKeyword Source = "keyword"
)

// Label returns the capitalised form used when presenting provenance
// ("Semantic" or "Keyword").
func (s Source) Label() string {
	switch s {
	case SourceSemantic:
		return "Semantic"
	case SourceKeyword:
		return "Keyword"
	default:
		return string(s)
	}
}

// Row is a single chunk row returned by a ChunkStore query.
type Row struct {
	// Filename is the path of the source file relative to the indexed root.
	Filename string
	// Text is the full chunk content. It is never truncated.
	Text string
	// Score is the cosine similarity for vector queries. Substring queries
	// leave it zero.
	Score float64
}

// Result is a retrieval hit tagged with the strategy that produced it.
type Result struct {
	// Filename is the path of the source file the chunk came from.
	Filename string
	// Text is the chunk content.
	Text string
	// Score is a similarity value for semantic hits, or the fixed keyword
	// confidence for keyword hits.
	Score float64
	// Source is the retrieval strategy that produced this hit.
	Source Source
}

// ChunkStore is the read interface over the indexed chunk table.
// Implementations must be safe to call from multiple goroutines.
type ChunkStore interface {
	// SearchVector returns at most limit rows ordered by descending cosine
	// similarity to vec. Ties are ordered by insertion.
	SearchVector(ctx context.Context, vec []float32, limit int) ([]Row, error)

	// SearchSubstring returns at most limit rows whose text contains any of
	// terms as a case-insensitive substring, in store order.
	SearchSubstring(ctx context.Context, terms []string, limit int) ([]Row, error)

	// Count returns the number of indexed chunks.
	Count(ctx context.Context) (int64, error)

	// Ping reports whether the store is reachable.
	Ping(ctx context.Context) error

	// Close releases any resources held by the store.
	Close() error
}

// Embedder is the interface for converting text into dense vector embeddings.
// It must use the same model as the indexer that populated the ChunkStore.
// Implementations must be safe to call from multiple goroutines.
type Embedder interface {
	// Embed converts a batch of texts into their corresponding embeddings.
	// The returned slice is parallel to the input slice.
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}
