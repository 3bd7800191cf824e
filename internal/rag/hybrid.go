package rag

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/54b3r/coderag-go/internal/logging"
)

// Recorder receives per-strategy retrieval outcomes. It is satisfied by the
// answer package's Prometheus metrics; a nil Recorder is allowed.
type Recorder interface {
	// ObserveRetrieval records how many results source produced, or the
	// error that made it produce none.
	ObserveRetrieval(source Source, results int, err error)
}

// HybridRetriever runs the semantic and keyword strategies side by side and
// merges their output. A failing strategy contributes zero results; it never
// fails the query.
type HybridRetriever struct {
	// semantic is the vector similarity strategy.
	semantic *SemanticRetriever
	// keyword is the substring match strategy.
	keyword *KeywordRetriever
	// recorder receives per-strategy outcomes. May be nil.
	recorder Recorder
}

// NewHybridRetriever constructs a HybridRetriever. recorder may be nil.
func NewHybridRetriever(semantic *SemanticRetriever, keyword *KeywordRetriever, recorder Recorder) (*HybridRetriever, error) {
	if semantic == nil {
		return nil, fmt.Errorf("rag: semantic retriever must not be nil")
	}
	if keyword == nil {
		return nil, fmt.Errorf("rag: keyword retriever must not be nil")
	}
	return &HybridRetriever{semantic: semantic, keyword: keyword, recorder: recorder}, nil
}

// Retrieve returns the merged bundle for query. Both strategies run
// concurrently and the merge waits for both.
func (h *HybridRetriever) Retrieve(ctx context.Context, query string) Bundle {
	var semantic, keyword []Result
	var g errgroup.Group

	g.Go(func() error {
		semantic = h.run(ctx, SourceSemantic, query, h.semantic.Retrieve)
		return nil
	})
	g.Go(func() error {
		keyword = h.run(ctx, SourceKeyword, query, h.keyword.Retrieve)
		return nil
	})
	_ = g.Wait()

	bundle := Merge(semantic, keyword)
	logging.FromContext(ctx).Debug("rag: retrieval complete",
		slog.Int("semantic", len(semantic)),
		slog.Int("keyword", len(keyword)),
		slog.Int("merged", bundle.Len()),
	)
	return bundle
}

// run executes one strategy, absorbing its error into an empty result.
func (h *HybridRetriever) run(ctx context.Context, source Source, query string,
	fn func(context.Context, string) ([]Result, error),
) []Result {
	results, err := fn(ctx, query)
	if err != nil {
		logging.FromContext(ctx).Warn("rag: retrieval strategy failed, continuing without it",
			slog.String("source", string(source)),
			slog.Any("error", err),
		)
		results = nil
	}
	if h.recorder != nil {
		h.recorder.ObserveRetrieval(source, len(results), err)
	}
	return results
}
