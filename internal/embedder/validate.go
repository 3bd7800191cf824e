package embedder

import (
	"log/slog"
	"strings"
)

// knownChatModelPrefixes contains name fragments that identify chat/completion
// models which are NOT suitable for embedding.
var knownChatModelPrefixes = []string{
	"gpt-4",
	"gpt-3.5",
	"gpt-35",
	"o1",
	"o3",
	"llama3",
	"llama2",
	"llama-3",
	"mistral",
	"mixtral",
	"gemma",
	"gemini",
	"phi3",
	"claude",
	"deepseek",
	"qwen",
}

// looksLikeChatModel returns true when the model name resembles a known
// chat/completion model rather than a dedicated embedding model.
func looksLikeChatModel(model string) bool {
	lower := strings.ToLower(model)
	for _, prefix := range knownChatModelPrefixes {
		if strings.Contains(lower, prefix) {
			return true
		}
	}
	return false
}

// Warnings returns human-readable problems with cfg that will not stop
// startup but will make semantic search return nonsense: a chat model used
// for embedding, or a vector size other than the indexer's.
func Warnings(cfg *Config) []string {
	var out []string
	if cfg.Model != "" && looksLikeChatModel(cfg.Model) {
		out = append(out, "EMBEDDING_MODEL "+cfg.Model+" looks like a chat model, not an embedding model")
	}
	if cfg.dimensions() != DefaultDimensions {
		out = append(out, "EMBEDDING_DIMENSIONS differs from the 384-dimension index written by the indexer; vectors will not be comparable unless the indexer was reconfigured too")
	}
	if cfg.provider() != BackendOllama && cfg.Model == "" {
		out = append(out, "query embeddings will use "+DefaultOpenAIModel+" while the index uses all-MiniLM-L6-v2")
	}
	return out
}

// LogWarnings emits each entry of Warnings at WARN level.
func LogWarnings(cfg *Config, log *slog.Logger) {
	for _, w := range Warnings(cfg) {
		log.Warn("embedder: "+w,
			slog.String("provider", cfg.provider()),
			slog.String("model", cfg.Model),
		)
	}
}
