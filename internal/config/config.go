// Package config loads and validates application configuration from environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	// MinAdversarialRounds is the hard floor on MaxRounds.
	MinAdversarialRounds = 3
	// MinQuorumSize is the hard floor on len(JudgeModels).
	MinQuorumSize = 3
	// DriftVariantsCount is the number of logical rotation slots the critic
	// persona selector rotates across.
	DriftVariantsCount = 8
	// MinOrthogonalityWeight is the minimum fraction of the accept decision
	// that must be contributed by the non-LLM layer (ledger hit or guard).
	MinOrthogonalityWeight = 0.4
)

// Config holds all application configuration.
type Config struct {
	// Server settings.
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration

	// Ledger settings.
	LedgerPath         string // SQLite file path for the default ledger backend.
	DatabaseURL        string // Optional Postgres+pgvector ledger backend.
	QdrantURL          string // Optional Qdrant ledger backend (gRPC URL).
	QdrantAPIKey       string
	QdrantCollection   string
	SimilarityThreshold float64       // Cosine-similarity acceptance threshold (default 0.92).
	DefaultTTL          time.Duration // Default ledger entry TTL (default 30 days).

	// Oracle / model settings.
	GeneratorModel string
	CriticModel    string
	JudgeModels    []string // Comma-separated, must have len >= MinQuorumSize.
	MaxRounds      int      // Must be >= MinAdversarialRounds.
	OracleProvider string   // "ollama", "openai", or "noop"; any other value (default "auto") selects ollama.
	OllamaURL      string
	OpenAIAPIKey   string
	LLMAPIKey      string // Generic provider key, per spec §6.

	// Web context settings.
	WebSearchAPIKey string
	WebSearchURL    string

	// Embedding provider settings.
	EmbeddingProvider   string // "auto", "openai", "ollama", or "noop"
	EmbeddingModel      string
	EmbeddingDimensions int
	OllamaEmbedModel    string

	// Invariant check: mechanical orthogonality weight, asserted but not
	// further operationalized (see spec's Open Question, §9).
	MechanicalOrthogonalityWeight float64

	// Auth settings.
	APIKeys []string // Valid API keys accepted on /verify. Empty disables auth (dev only).

	// Rate limiting.
	RedisURL         string // If set, rate limiting uses the Redis sliding-window backend.
	RateLimitPerMin  int
	RateLimitEnabled bool

	// OTEL settings.
	OTELEndpoint string
	OTELInsecure bool
	ServiceName  string

	// CORS settings.
	CORSAllowedOrigins []string

	// Operational settings.
	LogLevel            string
	MaxRequestBodyBytes int64
	MaxQueryLength      int
}

// Load reads configuration from environment variables with sensible defaults.
// Returns an error if any environment variable contains an unparseable value,
// or if the parsed configuration fails Validate (including the hard
// invariants). Missing variables use sensible defaults.
func Load() (Config, error) {
	var errs []error
	cfg := Config{
		LedgerPath:          envStr("LEDGER_PATH", "ceti_ledger.db"),
		DatabaseURL:         envStr("DATABASE_URL", ""),
		QdrantURL:           envStr("QDRANT_URL", ""),
		QdrantAPIKey:        envStr("QDRANT_API_KEY", ""),
		QdrantCollection:    envStr("QDRANT_COLLECTION", "ceti_ledger"),
		GeneratorModel:      envStr("GENERATOR_MODEL", "llama3.1"),
		CriticModel:         envStr("CRITIC_MODEL", "llama3.1"),
		JudgeModels:         envStrSlice("JUDGE_MODELS", []string{"llama3.1", "llama3.1", "llama3.1"}),
		OracleProvider:      envStr("CETI_ORACLE_PROVIDER", "auto"),
		OllamaURL:           envStr("OLLAMA_URL", "http://localhost:11434"),
		OpenAIAPIKey:        envStr("OPENAI_API_KEY", ""),
		LLMAPIKey:           envStr("LLM_API_KEY", ""),
		WebSearchAPIKey:     envStr("WEB_SEARCH_API_KEY", ""),
		WebSearchURL:        envStr("CETI_WEB_SEARCH_URL", "https://google.serper.dev/search"),
		EmbeddingProvider:   envStr("CETI_EMBEDDING_PROVIDER", "auto"),
		EmbeddingModel:      envStr("CETI_EMBEDDING_MODEL", "text-embedding-3-small"),
		OllamaEmbedModel:    envStr("CETI_OLLAMA_EMBED_MODEL", "mxbai-embed-large"),
		APIKeys:             envStrSlice("CETI_API_KEYS", nil),
		RedisURL:            envStr("REDIS_URL", ""),
		OTELEndpoint:        envStr("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
		ServiceName:         envStr("OTEL_SERVICE_NAME", "ceti"),
		LogLevel:            envStr("CETI_LOG_LEVEL", "info"),
		CORSAllowedOrigins:  envStrSlice("CETI_CORS_ALLOWED_ORIGINS", nil),
	}

	// Integer fields.
	cfg.Port, errs = collectInt(errs, "CETI_PORT", 8080)
	cfg.MaxRounds, errs = collectInt(errs, "MAX_ROUNDS", 3)
	cfg.EmbeddingDimensions, errs = collectInt(errs, "CETI_EMBEDDING_DIMENSIONS", 1024)
	cfg.RateLimitPerMin, errs = collectInt(errs, "CETI_RATE_LIMIT_PER_MIN", 10)
	cfg.MaxQueryLength, errs = collectInt(errs, "CETI_MAX_QUERY_LENGTH", 2000)

	var maxReqBody int
	maxReqBody, errs = collectInt(errs, "CETI_MAX_REQUEST_BODY_BYTES", 64*1024)
	cfg.MaxRequestBodyBytes = int64(maxReqBody)

	// Boolean fields.
	cfg.OTELInsecure, errs = collectBool(errs, "OTEL_EXPORTER_OTLP_INSECURE", false)
	cfg.RateLimitEnabled, errs = collectBool(errs, "CETI_RATE_LIMIT_ENABLED", true)

	// Duration fields.
	cfg.ReadTimeout, errs = collectDuration(errs, "CETI_READ_TIMEOUT", 30*time.Second)
	cfg.WriteTimeout, errs = collectDuration(errs, "CETI_WRITE_TIMEOUT", 60*time.Second)
	cfg.DefaultTTL, errs = collectDuration(errs, "CETI_LEDGER_DEFAULT_TTL", 2_592_000*time.Second)

	// Float fields.
	cfg.SimilarityThreshold, errs = collectFloat(errs, "SIMILARITY_THRESHOLD", 0.92)
	cfg.MechanicalOrthogonalityWeight, errs = collectFloat(errs, "CETI_MECHANICAL_ORTHOGONALITY_WEIGHT", 0.4)

	if len(errs) > 0 {
		msgs := make([]string, len(errs))
		for i, e := range errs {
			msgs[i] = e.Error()
		}
		return Config{}, fmt.Errorf("config: invalid environment variables:\n  %s", strings.Join(msgs, "\n  "))
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// collectInt parses an int env var, appending any error to the accumulator.
func collectInt(errs []error, key string, fallback int) (int, []error) {
	v, err := envInt(key, fallback)
	if err != nil {
		errs = append(errs, err)
	}
	return v, errs
}

// collectBool parses a bool env var, appending any error to the accumulator.
func collectBool(errs []error, key string, fallback bool) (bool, []error) {
	v, err := envBool(key, fallback)
	if err != nil {
		errs = append(errs, err)
	}
	return v, errs
}

// collectDuration parses a duration env var, appending any error to the accumulator.
func collectDuration(errs []error, key string, fallback time.Duration) (time.Duration, []error) {
	v, err := envDuration(key, fallback)
	if err != nil {
		errs = append(errs, err)
	}
	return v, errs
}

// collectFloat parses a float env var, appending any error to the accumulator.
func collectFloat(errs []error, key string, fallback float64) (float64, []error) {
	v, err := envFloat(key, fallback)
	if err != nil {
		errs = append(errs, err)
	}
	return v, errs
}

// Validate checks that required configuration is present and sane, including
// the hard invariants that the Invariant Enforcer must assert at startup
// (spec §3, §4.6): MaxRounds, quorum size, critic drift, orthogonality weight.
func (c Config) Validate() error {
	var errs []error

	if c.LedgerPath == "" && c.DatabaseURL == "" && c.QdrantURL == "" {
		errs = append(errs, errors.New("config: one of LEDGER_PATH, DATABASE_URL, or QDRANT_URL is required"))
	}
	if c.Port < 1 || c.Port > 65535 {
		errs = append(errs, errors.New("config: CETI_PORT must be between 1 and 65535"))
	}
	if c.ReadTimeout <= 0 {
		errs = append(errs, errors.New("config: CETI_READ_TIMEOUT must be positive"))
	}
	if c.WriteTimeout <= 0 {
		errs = append(errs, errors.New("config: CETI_WRITE_TIMEOUT must be positive"))
	}
	if c.MaxRequestBodyBytes <= 0 {
		errs = append(errs, errors.New("config: CETI_MAX_REQUEST_BODY_BYTES must be positive"))
	}
	if c.MaxQueryLength <= 0 {
		errs = append(errs, errors.New("config: CETI_MAX_QUERY_LENGTH must be positive"))
	}
	if c.EmbeddingDimensions <= 0 {
		errs = append(errs, errors.New("config: CETI_EMBEDDING_DIMENSIONS must be positive"))
	}
	if c.SimilarityThreshold < 0 || c.SimilarityThreshold > 1 {
		errs = append(errs, errors.New("config: SIMILARITY_THRESHOLD must be between 0 and 1"))
	}
	if c.DefaultTTL <= 0 {
		errs = append(errs, errors.New("config: CETI_LEDGER_DEFAULT_TTL must be positive"))
	}

	// Hard invariants (spec §3 Invariants; enforced unconditionally).
	if c.MaxRounds < MinAdversarialRounds {
		errs = append(errs, fmt.Errorf("config: MAX_ROUNDS=%d violates invariant MAX_ROUNDS >= %d", c.MaxRounds, MinAdversarialRounds))
	}
	if len(c.JudgeModels) < MinQuorumSize {
		errs = append(errs, fmt.Errorf("config: JUDGE_MODELS has %d entries, violates invariant |JUDGE_MODELS| >= %d", len(c.JudgeModels), MinQuorumSize))
	}
	if DriftVariantsCount < 8 {
		// Unreachable with the constant as written; guards against a future edit
		// that weakens the constant without updating this check.
		errs = append(errs, fmt.Errorf("config: DriftVariantsCount=%d violates invariant >= 8", DriftVariantsCount))
	}
	if c.MechanicalOrthogonalityWeight < MinOrthogonalityWeight {
		errs = append(errs, fmt.Errorf("config: CETI_MECHANICAL_ORTHOGONALITY_WEIGHT=%.2f violates invariant >= %.2f", c.MechanicalOrthogonalityWeight, MinOrthogonalityWeight))
	}

	return errors.Join(errs...)
}

func envStr(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s=%q is not a valid integer", key, v)
	}
	return n, nil
}

func envBool(key string, fallback bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("%s=%q is not a valid boolean", key, v)
	}
	return b, nil
}

func envDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s=%q is not a valid duration", key, v)
	}
	return d, nil
}

func envFloat(key string, fallback float64) (float64, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("%s=%q is not a valid float", key, v)
	}
	return f, nil
}

// envStrSlice reads a comma-separated env var into a string slice.
// Returns fallback if the env var is empty or unset.
func envStrSlice(key string, fallback []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return fallback
	}
	return out
}
