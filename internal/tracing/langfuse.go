// Package tracing wires Langfuse callbacks into the eino model calls.
package tracing

import (
	"github.com/cloudwego/eino-ext/callbacks/langfuse"
	"github.com/cloudwego/eino/callbacks"

	"github.com/54b3r/coderag-go/internal/config"
)

// DefaultHost is used when no Langfuse host is configured.
const DefaultHost = "http://localhost:3000"

// Setup initialises the Langfuse callback handler when both keys in cfg are
// set and registers it globally so every model call is traced. Returns a
// flush function that must be called before process exit to ensure all
// traces are sent. If Langfuse is not configured, tracing is silently
// disabled and the returned flush is a no-op.
func Setup(cfg config.TracingSettings) (flush func(), enabled bool) {
	if !cfg.Enabled() {
		return func() {}, false
	}
	host := cfg.Host
	if host == "" {
		host = DefaultHost
	}

	handler, flusher := langfuse.NewLangfuseHandler(&langfuse.Config{
		Host:      host,
		PublicKey: cfg.PublicKey,
		SecretKey: cfg.SecretKey,
	})
	callbacks.AppendGlobalHandlers(handler)

	return flusher, true
}
