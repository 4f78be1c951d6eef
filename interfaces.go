package ceti

import "context"

// EmbeddingProvider generates vector embeddings from text, for the
// Ledger's semantic lookup. When supplied via WithEmbeddingProvider,
// replaces the auto-detected Ollama/OpenAI/noop provider. App.New() wraps
// it in an adapter for internal use.
type EmbeddingProvider interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Dimensions() int
}

// Message is one turn in a chat-style completion request passed to an
// OracleClient.
type Message struct {
	Role    string // "system", "user", or "assistant".
	Content string
}

// OracleClient wraps an LLM provider used by the Oracle (generator,
// critics, and judge quorum). When supplied via WithOracleClient, replaces
// the auto-detected Ollama/OpenAI/noop client.
type OracleClient interface {
	Complete(ctx context.Context, model string, messages []Message, maxTokens int) (string, error)
}
