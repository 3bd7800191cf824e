package rag

import (
	"context"
	"fmt"

	"github.com/qdrant/go-client/qdrant"
)

// Payload keys the indexer writes on each Qdrant point.
const (
	qdrantFilenameKey = "filename"
	qdrantTextKey     = "text"
)

// qdrantScrollPage is the number of points fetched per Scroll call during
// keyword search.
const qdrantScrollPage = 256

// QdrantConfig holds connection parameters for a Qdrant vector store instance.
type QdrantConfig struct {
	// Host is the Qdrant server hostname (default: localhost).
	Host string

	// Port is the Qdrant gRPC port (default: 6334).
	Port int

	// Collection is the Qdrant collection the indexer writes chunks to
	// (default: code_vectors).
	Collection string

	// APIKey is the optional Qdrant API key for authenticated clusters.
	APIKey string

	// UseTLS enables TLS for the gRPC connection.
	UseTLS bool
}

// QdrantStore implements ChunkStore backed by a Qdrant collection. Each point
// carries "filename" and "text" payload fields. No payload index is needed.
type QdrantStore struct {
	// client is the underlying Qdrant gRPC client.
	client *qdrant.Client

	// cfg holds the resolved configuration for this store.
	cfg *QdrantConfig
}

// NewQdrantStore creates a QdrantStore. The collection is not created here;
// it belongs to the indexer.
func NewQdrantStore(cfg *QdrantConfig) (*QdrantStore, error) {
	if cfg.Host == "" {
		cfg.Host = "localhost"
	}
	if cfg.Port == 0 {
		cfg.Port = 6334
	}
	if cfg.Collection == "" {
		cfg.Collection = DefaultTable
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   cfg.Host,
		Port:   cfg.Port,
		APIKey: cfg.APIKey,
		UseTLS: cfg.UseTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("qdrant: failed to create client: %w", err)
	}

	return &QdrantStore{client: client, cfg: cfg}, nil
}

// SearchVector performs a cosine similarity query and returns the top limit
// points. The collection must be configured with cosine distance.
func (s *QdrantStore) SearchVector(ctx context.Context, vec []float32, limit int) ([]Row, error) {
	if limit <= 0 {
		return nil, nil
	}
	n := uint64(limit)
	results, err := s.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: s.cfg.Collection,
		Query:          qdrant.NewQuery(vec...),
		Limit:          &n,
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("qdrant: search failed: %w", err)
	}

	rows := make([]Row, 0, len(results))
	for _, r := range results {
		row := payloadRow(r.GetPayload())
		row.Score = float64(r.GetScore())
		rows = append(rows, row)
	}
	return rows, nil
}

// SearchSubstring pages through the collection in point-id order and returns
// the first limit points whose lowercased text contains any lowercased term.
func (s *QdrantStore) SearchSubstring(ctx context.Context, terms []string, limit int) ([]Row, error) {
	if len(terms) == 0 || limit <= 0 {
		return nil, nil
	}
	lowered := lowerTerms(terms)

	page := uint32(qdrantScrollPage)
	req := &qdrant.ScrollPoints{
		CollectionName: s.cfg.Collection,
		Limit:          &page,
		WithPayload:    qdrant.NewWithPayloadInclude(qdrantFilenameKey, qdrantTextKey),
	}

	var out []Row
	for {
		points, next, err := s.client.ScrollAndOffset(ctx, req)
		if err != nil {
			return nil, fmt.Errorf("qdrant: scroll failed: %w", err)
		}
		rows := make([]Row, 0, len(points))
		for _, p := range points {
			rows = append(rows, payloadRow(p.GetPayload()))
		}
		var done bool
		out, done = appendMatches(out, rows, lowered, limit)
		if done || next == nil || len(points) == 0 {
			return out, nil
		}
		req.Offset = next
	}
}

// Count returns the exact number of points in the collection, or 0 when the
// collection has not been created yet.
func (s *QdrantStore) Count(ctx context.Context) (int64, error) {
	exists, err := s.client.CollectionExists(ctx, s.cfg.Collection)
	if err != nil {
		return 0, fmt.Errorf("qdrant: failed to check collection existence: %w", err)
	}
	if !exists {
		return 0, nil
	}
	n, err := s.client.Count(ctx, &qdrant.CountPoints{
		CollectionName: s.cfg.Collection,
		Exact:          qdrant.PtrOf(true),
	})
	if err != nil {
		return 0, fmt.Errorf("qdrant: count failed: %w", err)
	}
	return int64(n), nil
}

// Ping calls the Qdrant HealthCheck RPC.
func (s *QdrantStore) Ping(ctx context.Context) error {
	if _, err := s.client.HealthCheck(ctx); err != nil {
		return fmt.Errorf("qdrant: health check failed: %w", err)
	}
	return nil
}

// Close closes the underlying Qdrant gRPC connection.
func (s *QdrantStore) Close() error {
	return s.client.Close()
}

// payloadRow extracts filename and text from a point payload.
func payloadRow(p map[string]*qdrant.Value) Row {
	var row Row
	if v, ok := p[qdrantFilenameKey]; ok {
		row.Filename = v.GetStringValue()
	}
	if v, ok := p[qdrantTextKey]; ok {
		row.Text = v.GetStringValue()
	}
	return row
}
