package embedder

import (
	"context"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/54b3r/coderag-go/internal/rag"
)

// Cached wraps a rag.Embedder with an LRU cache keyed by input text. Chat
// sessions repeat queries (follow-up actions, retried questions), and the
// embedding of a given text never changes for a fixed model.
type Cached struct {
	// inner computes embeddings on a cache miss.
	inner rag.Embedder
	// cache maps text to its embedding.
	cache *lru.Cache[string, []float32]
}

// NewCached wraps inner with an LRU of the given size.
func NewCached(inner rag.Embedder, size int) (*Cached, error) {
	if inner == nil {
		return nil, fmt.Errorf("embedder: inner embedder must not be nil")
	}
	cache, err := lru.New[string, []float32](size)
	if err != nil {
		return nil, fmt.Errorf("embedder: create cache: %w", err)
	}
	return &Cached{inner: inner, cache: cache}, nil
}

// Embed returns cached vectors where available and embeds only the misses,
// in a single batch call to the wrapped embedder.
func (c *Cached) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	var missIdx []int
	var missTexts []string

	for i, t := range texts {
		if v, ok := c.cache.Get(t); ok {
			out[i] = v
			continue
		}
		missIdx = append(missIdx, i)
		missTexts = append(missTexts, t)
	}
	if len(missTexts) == 0 {
		return out, nil
	}

	vecs, err := c.inner.Embed(ctx, missTexts)
	if err != nil {
		return nil, err
	}
	if len(vecs) != len(missTexts) {
		return nil, fmt.Errorf("embedder: expected %d embeddings, got %d", len(missTexts), len(vecs))
	}
	for j, i := range missIdx {
		out[i] = vecs[j]
		c.cache.Add(missTexts[j], vecs[j])
	}
	return out, nil
}

// Inner returns the wrapped embedder.
func (c *Cached) Inner() rag.Embedder { return c.inner }

// Len returns the number of cached entries.
func (c *Cached) Len() int { return c.cache.Len() }
