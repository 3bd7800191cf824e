package rag

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/54b3r/coderag-go/internal/logging"
)

// WaitConfig controls WaitForIndex polling.
type WaitConfig struct {
	// Attempts is the number of polls before giving up (default: 30).
	Attempts int
	// Interval is the delay between polls (default: 1s).
	Interval time.Duration
}

// WaitForIndex polls store until it holds at least one chunk. It returns the
// observed count, or an error once all attempts are used or ctx ends.
// Count errors are logged and treated as "not ready yet".
func WaitForIndex(ctx context.Context, store ChunkStore, cfg WaitConfig) (int64, error) {
	if cfg.Attempts <= 0 {
		cfg.Attempts = 30
	}
	if cfg.Interval <= 0 {
		cfg.Interval = time.Second
	}
	log := logging.FromContext(ctx)

	for attempt := 1; attempt <= cfg.Attempts; attempt++ {
		n, err := store.Count(ctx)
		switch {
		case err != nil:
			log.Warn("rag: index count failed", slog.Int("attempt", attempt), slog.Any("error", err))
		case n > 0:
			return n, nil
		default:
			log.Debug("rag: index still empty", slog.Int("attempt", attempt))
		}

		if attempt == cfg.Attempts {
			break
		}
		select {
		case <-ctx.Done():
			return 0, ctx.Err()
		case <-time.After(cfg.Interval):
		}
	}
	return 0, fmt.Errorf("rag: index still empty after %d attempts", cfg.Attempts)
}
