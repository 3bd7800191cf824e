package rag

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"
)

const (
	// DefaultKeywordLimit is the number of keyword hits kept per query.
	DefaultKeywordLimit = 3

	// DefaultMinTermLength is the length a query token must exceed to be
	// used as a keyword. Tokens of this length or shorter are dropped.
	DefaultMinTermLength = 3

	// DefaultKeywordScore is the fixed confidence assigned to keyword hits.
	// It marks a textual match rather than a similarity rank.
	DefaultKeywordScore = 0.9
)

// KeywordConfig tunes the KeywordRetriever. Zero values select the defaults.
type KeywordConfig struct {
	// Limit is the maximum number of results returned per query.
	Limit int
	// MinTermLength drops query tokens whose rune count is <= this value.
	MinTermLength int
	// Score is the confidence attached to every keyword hit.
	Score float64
}

// KeywordRetriever matches significant query terms against chunk text.
type KeywordRetriever struct {
	// store performs the substring query.
	store ChunkStore

	// cfg holds the resolved tuning parameters.
	cfg KeywordConfig
}

// NewKeywordRetriever constructs a KeywordRetriever over store.
func NewKeywordRetriever(store ChunkStore, cfg KeywordConfig) (*KeywordRetriever, error) {
	if store == nil {
		return nil, fmt.Errorf("rag: store must not be nil")
	}
	if cfg.Limit <= 0 {
		cfg.Limit = DefaultKeywordLimit
	}
	if cfg.MinTermLength <= 0 {
		cfg.MinTermLength = DefaultMinTermLength
	}
	if cfg.Score <= 0 {
		cfg.Score = DefaultKeywordScore
	}
	return &KeywordRetriever{store: store, cfg: cfg}, nil
}

// SignificantTerms splits query on whitespace and keeps the tokens that are
// strictly longer than minLen runes. Order is preserved.
func SignificantTerms(query string, minLen int) []string {
	var terms []string
	for _, tok := range strings.Fields(query) {
		if utf8.RuneCountInString(tok) > minLen {
			terms = append(terms, tok)
		}
	}
	return terms
}

// Retrieve returns up to Limit chunks containing any significant term of
// query. When no term survives filtering the store is not queried.
func (r *KeywordRetriever) Retrieve(ctx context.Context, query string) ([]Result, error) {
	terms := SignificantTerms(query, r.cfg.MinTermLength)
	if len(terms) == 0 {
		return nil, nil
	}

	rows, err := r.store.SearchSubstring(ctx, terms, r.cfg.Limit)
	if err != nil {
		return nil, fmt.Errorf("rag: keyword search failed: %w", err)
	}
	if len(rows) > r.cfg.Limit {
		rows = rows[:r.cfg.Limit]
	}

	results := make([]Result, 0, len(rows))
	for _, row := range rows {
		results = append(results, Result{
			Filename: row.Filename,
			Text:     row.Text,
			Score:    r.cfg.Score,
			Source:   SourceKeyword,
		})
	}
	return results, nil
}
