package rag

import (
	"context"
	"fmt"
	"sort"
)

// DefaultSemanticTopK is the number of semantic hits kept per query.
const DefaultSemanticTopK = 4

// SemanticRetriever embeds the query and runs a vector similarity search
// against the chunk store. It borrows the Embedder; it does not own its
// lifecycle.
type SemanticRetriever struct {
	// embedder converts query text to a dense vector.
	embedder Embedder

	// store performs the vector similarity search.
	store ChunkStore

	// topK is the maximum number of results returned per query.
	topK int
}

// NewSemanticRetriever constructs a SemanticRetriever. A non-positive topK
// falls back to DefaultSemanticTopK.
func NewSemanticRetriever(embedder Embedder, store ChunkStore, topK int) (*SemanticRetriever, error) {
	if embedder == nil {
		return nil, fmt.Errorf("rag: embedder must not be nil")
	}
	if store == nil {
		return nil, fmt.Errorf("rag: store must not be nil")
	}
	if topK <= 0 {
		topK = DefaultSemanticTopK
	}
	return &SemanticRetriever{embedder: embedder, store: store, topK: topK}, nil
}

// Retrieve embeds query and returns up to topK results tagged SourceSemantic,
// sorted by descending score. An empty store yields an empty slice.
func (r *SemanticRetriever) Retrieve(ctx context.Context, query string) ([]Result, error) {
	embeddings, err := r.embedder.Embed(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("rag: embedding query failed: %w", err)
	}
	if len(embeddings) == 0 || len(embeddings[0]) == 0 {
		return nil, fmt.Errorf("rag: embedder returned empty result for query")
	}

	rows, err := r.store.SearchVector(ctx, embeddings[0], r.topK)
	if err != nil {
		return nil, fmt.Errorf("rag: vector search failed: %w", err)
	}
	if len(rows) > r.topK {
		rows = rows[:r.topK]
	}

	results := make([]Result, 0, len(rows))
	for _, row := range rows {
		results = append(results, Result{
			Filename: row.Filename,
			Text:     row.Text,
			Score:    row.Score,
			Source:   SourceSemantic,
		})
	}
	// Stores already order by score; a stable sort keeps their tie order.
	sort.SliceStable(results, func(i, j int) bool { return results[i].Score > results[j].Score })

	return results, nil
}
