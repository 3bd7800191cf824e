package rag

import (
	"context"
	"errors"
	"sync"
)

// fakeEmbedder returns a fixed vector, or err when set.
type fakeEmbedder struct {
	vec []float32
	err error
}

func (f *fakeEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = f.vec
	}
	return out, nil
}

// fakeStore is an in-memory ChunkStore double that records calls.
type fakeStore struct {
	mu sync.Mutex

	vectorRows    []Row
	substringRows []Row
	vectorErr     error
	substringErr  error

	vectorCalls    int
	substringCalls int
	lastTerms      []string
	lastLimit      int
}

func (f *fakeStore) SearchVector(_ context.Context, _ []float32, limit int) ([]Row, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.vectorCalls++
	if f.vectorErr != nil {
		return nil, f.vectorErr
	}
	rows := f.vectorRows
	if len(rows) > limit {
		rows = rows[:limit]
	}
	return rows, nil
}

func (f *fakeStore) SearchSubstring(_ context.Context, terms []string, limit int) ([]Row, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.substringCalls++
	f.lastTerms = terms
	f.lastLimit = limit
	if f.substringErr != nil {
		return nil, f.substringErr
	}
	rows := f.substringRows
	if len(rows) > limit {
		rows = rows[:limit]
	}
	return rows, nil
}

func (f *fakeStore) Count(context.Context) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return int64(len(f.vectorRows)), nil
}

func (f *fakeStore) Ping(context.Context) error { return nil }
func (f *fakeStore) Close() error               { return nil }

// errStoreDown is returned by fakes simulating an unreachable store.
var errStoreDown = errors.New("connection refused")

// fakeRecorder captures ObserveRetrieval calls.
type fakeRecorder struct {
	mu   sync.Mutex
	seen map[Source]int
	errs map[Source]error
}

func (r *fakeRecorder) ObserveRetrieval(source Source, n int, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.seen == nil {
		r.seen = map[Source]int{}
		r.errs = map[Source]error{}
	}
	r.seen[source] = n
	r.errs[source] = err
}
