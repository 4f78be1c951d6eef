package ceti

import "log/slog"

// Option configures an App.
type Option func(*resolvedOptions)

// resolvedOptions holds all extension points after applying defaults.
// Unexported — callers use the With* functions.
type resolvedOptions struct {
	port              int
	version           string
	logger            *slog.Logger
	apiKeys           []string
	embeddingProvider EmbeddingProvider
	oracleClient      OracleClient
}

// WithPort overrides the HTTP port read from CETI_PORT.
func WithPort(port int) Option {
	return func(o *resolvedOptions) { o.port = port }
}

// WithVersion sets the version string reported on GET /health.
func WithVersion(version string) Option {
	return func(o *resolvedOptions) { o.version = version }
}

// WithLogger sets the structured logger used throughout the App. Defaults
// to slog.Default() when not set.
func WithLogger(logger *slog.Logger) Option {
	return func(o *resolvedOptions) { o.logger = logger }
}

// WithAPIKeys overrides the API keys read from CETI_API_KEYS, useful for
// tests and embedders that provision keys programmatically.
func WithAPIKeys(keys ...string) Option {
	return func(o *resolvedOptions) { o.apiKeys = keys }
}

// WithEmbeddingProvider replaces the auto-detected embedding backend
// (Ollama/OpenAI/noop) with a caller-supplied implementation.
func WithEmbeddingProvider(p EmbeddingProvider) Option {
	return func(o *resolvedOptions) { o.embeddingProvider = p }
}

// WithOracleClient replaces the auto-detected Oracle backend
// (Ollama/OpenAI/noop) with a caller-supplied implementation. Useful for
// tests that want to script the adversarial pipeline's verdicts, or for
// embedders routing to an in-house model gateway.
func WithOracleClient(c OracleClient) Option {
	return func(o *resolvedOptions) { o.oracleClient = c }
}
