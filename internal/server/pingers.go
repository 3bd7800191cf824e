package server

import (
	"context"
	"errors"
	"fmt"

	"github.com/54b3r/coderag-go/internal/rag"
)

// errEmptyIndex is reported by IndexPinger before the indexer has written
// any chunk.
var errEmptyIndex = errors.New("index is empty")

// funcPinger adapts a name and a probe function to the Pinger interface.
type funcPinger struct {
	name string
	fn   func(ctx context.Context) error
}

// NewPinger returns a Pinger that reports name and runs fn. Chunk stores,
// the conversation store and the Ollama embedder all expose a suitable Ping
// method.
func NewPinger(name string, fn func(ctx context.Context) error) Pinger {
	return &funcPinger{name: name, fn: fn}
}

// Name returns the dependency label used in readiness responses.
func (p *funcPinger) Name() string { return p.name }

// Ping runs the probe function.
func (p *funcPinger) Ping(ctx context.Context) error { return p.fn(ctx) }

// IndexPinger reports ready only once the chunk store holds at least one
// chunk, so a freshly started stack is not routed traffic it would answer
// with "no relevant code" for every question.
type IndexPinger struct {
	// store is the chunk store to count.
	store rag.ChunkStore
}

// NewIndexPinger constructs an IndexPinger for store.
func NewIndexPinger(store rag.ChunkStore) *IndexPinger {
	return &IndexPinger{store: store}
}

// Name returns the dependency label used in readiness responses.
func (p *IndexPinger) Name() string { return "index" }

// Ping counts the indexed chunks.
func (p *IndexPinger) Ping(ctx context.Context) error {
	n, err := p.store.Count(ctx)
	if err != nil {
		return fmt.Errorf("count failed: %w", err)
	}
	if n == 0 {
		return errEmptyIndex
	}
	return nil
}
