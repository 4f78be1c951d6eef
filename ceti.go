// Package ceti is the public API for embedding the CETI adjudication
// server.
//
// Consumers import this package to construct and run the server without
// forking it:
//
//	app, err := ceti.New(
//	    ceti.WithVersion(version),
//	    ceti.WithLogger(logger),
//	)
//	if err != nil { ... }
//	if err := app.Run(ctx); err != nil { ... }
//
// The import graph enforces a strict no-cycle rule: ceti (root) imports
// internal/*, but internal/* never imports ceti. Public types (Response,
// Granted, Denied, etc.) are standalone structs with no internal imports;
// conversion helpers (toPublicResponse) live here because this is the only
// file that sees both sides of the boundary.
package ceti

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/io-m1/ceti/internal/auth"
	"github.com/io-m1/ceti/internal/config"
	"github.com/io-m1/ceti/internal/embedding"
	"github.com/io-m1/ceti/internal/ledger"
	"github.com/io-m1/ceti/internal/oracle"
	"github.com/io-m1/ceti/internal/oracle/oraclefake"
	"github.com/io-m1/ceti/internal/persona"
	"github.com/io-m1/ceti/internal/ratelimit"
	"github.com/io-m1/ceti/internal/server"
	"github.com/io-m1/ceti/internal/telemetry"
	"github.com/io-m1/ceti/internal/tier"
	"github.com/io-m1/ceti/internal/verifier"
	"github.com/io-m1/ceti/internal/webcontext"
)

// App is the CETI server lifecycle. Construct with New(), run with Run().
// App has no public fields — use New() options to configure it.
type App struct {
	cfg          config.Config
	store        ledger.Store
	srv          *server.Server
	verifier     *verifier.Verifier
	redisClient  *redis.Client
	redisLimiter *ratelimit.Limiter
	memLimiter   *ratelimit.MemoryLimiter
	oracleClient oracle.Client
	otelShutdown func(context.Context) error
	logger       *slog.Logger
	version      string
}

// New initialises the CETI server: it loads and validates configuration,
// wires the Ledger, Oracle, and rate-limit backends, and returns a
// ready-to-run App. It does NOT start any goroutines or accept HTTP
// connections — call Run().
func New(opts ...Option) (*App, error) {
	o := resolvedOptions{}
	for _, fn := range opts {
		fn(&o)
	}

	logger := o.logger
	if logger == nil {
		logger = slog.Default()
	}

	// Load .env file if present (non-fatal; production won't have one).
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if o.port != 0 {
		cfg.Port = o.port
	}
	if len(o.apiKeys) > 0 {
		cfg.APIKeys = o.apiKeys
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	version := o.version
	if version == "" {
		version = "dev"
	}

	logger.Info("ceti starting", "version", version, "port", cfg.Port)

	otelShutdown, err := telemetry.Init(context.Background(), cfg.OTELEndpoint, cfg.ServiceName, version, cfg.OTELInsecure)
	if err != nil {
		return nil, fmt.Errorf("telemetry: %w", err)
	}

	store, err := newLedgerStore(context.Background(), cfg, logger)
	if err != nil {
		_ = otelShutdown(context.Background())
		return nil, fmt.Errorf("ledger: %w", err)
	}

	var embedder embedding.Provider
	if o.embeddingProvider != nil {
		embedder = &embeddingProviderAdapter{p: o.embeddingProvider}
	} else {
		embedder = newEmbeddingProvider(cfg, logger)
	}

	var oracleClient oracle.Client
	if o.oracleClient != nil {
		oracleClient = &oracleClientAdapter{c: o.oracleClient}
	} else {
		oracleClient = newOracleClient(cfg, logger)
	}

	authVerifier, err := auth.New(cfg.APIKeys)
	if err != nil {
		_ = store.Close()
		_ = otelShutdown(context.Background())
		return nil, fmt.Errorf("auth: %w", err)
	}
	if authVerifier.Disabled() {
		logger.Warn("auth: no API keys configured, /verify is unauthenticated (dev only)")
	}

	var redisClient *redis.Client
	var redisLimiter *ratelimit.Limiter
	var memLimiter *ratelimit.MemoryLimiter
	if cfg.RateLimitEnabled {
		if cfg.RedisURL != "" {
			redisOpts, parseErr := redis.ParseURL(cfg.RedisURL)
			if parseErr != nil {
				_ = store.Close()
				_ = otelShutdown(context.Background())
				return nil, fmt.Errorf("rate limit: parse REDIS_URL: %w", parseErr)
			}
			redisClient = redis.NewClient(redisOpts)
			redisLimiter = ratelimit.New(redisClient, logger, false)
			logger.Info("rate limiting: redis sliding window", "limit_per_min", cfg.RateLimitPerMin)
		} else {
			memLimiter = ratelimit.NewMemoryLimiter(float64(cfg.RateLimitPerMin)/60.0, cfg.RateLimitPerMin)
			logger.Info("rate limiting: in-memory token bucket (no REDIS_URL)", "limit_per_min", cfg.RateLimitPerMin)
		}
	} else {
		logger.Info("rate limiting: disabled")
	}

	v := verifier.New(
		store,
		embedder,
		webcontext.New(cfg.WebSearchAPIKey, cfg.WebSearchURL),
		persona.New(nil, nil),
		oracleClient,
		verifier.Config{
			GeneratorModel: cfg.GeneratorModel,
			CriticModel:    cfg.CriticModel,
			JudgeModels:    cfg.JudgeModels,
			MaxRounds:      cfg.MaxRounds,
			DefaultTTL:     int(cfg.DefaultTTL.Seconds()),
		},
		logger,
	)

	srv := server.New(server.ServerConfig{
		Verifier:            v,
		Auth:                authVerifier,
		Logger:              logger,
		RateLimiter:         redisLimiter,
		MemoryLimiter:       memLimiter,
		RateLimitPerMin:     cfg.RateLimitPerMin,
		Port:                cfg.Port,
		ReadTimeout:         cfg.ReadTimeout,
		WriteTimeout:        cfg.WriteTimeout,
		Version:             version,
		MaxRequestBodyBytes: cfg.MaxRequestBodyBytes,
		CORSAllowedOrigins:  cfg.CORSAllowedOrigins,
	})

	return &App{
		cfg:          cfg,
		store:        store,
		srv:          srv,
		verifier:     v,
		redisClient:  redisClient,
		redisLimiter: redisLimiter,
		memLimiter:   memLimiter,
		oracleClient: oracleClient,
		otelShutdown: otelShutdown,
		logger:       logger,
		version:      version,
	}, nil
}

// Run warms up the configured Oracle (if it supports warmup), starts the
// HTTP server, and blocks until ctx is cancelled or a fatal server error
// occurs. On return, Shutdown is called automatically — callers should not
// call Shutdown separately.
func (a *App) Run(ctx context.Context) error {
	a.warmupOracle(ctx)

	errCh := make(chan error, 1)
	go func() {
		if err := a.srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		_ = a.Shutdown(context.Background())
		return err
	}

	return a.Shutdown(context.Background())
}

// Shutdown gracefully stops accepting HTTP requests, drains in-flight
// requests, then closes the Ledger store and all other held resources.
func (a *App) Shutdown(ctx context.Context) error {
	a.logger.Info("ceti shutting down")

	httpCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	if err := a.srv.Shutdown(httpCtx); err != nil {
		a.logger.Error("http shutdown error", "error", err)
	}
	cancel()

	if err := a.store.Close(); err != nil {
		a.logger.Error("ledger store close error", "error", err)
	}
	if a.memLimiter != nil {
		_ = a.memLimiter.Close()
	}
	if a.redisLimiter != nil {
		_ = a.redisLimiter.Close()
	}
	if a.redisClient != nil {
		_ = a.redisClient.Close()
	}
	_ = a.otelShutdown(context.Background())

	a.logger.Info("ceti stopped")
	return nil
}

// Verify runs the adjudication pipeline directly, for consumers embedding
// CETI as a library rather than calling it over HTTP. It runs the same
// pipeline as POST /verify, minus the HTTP envelope, with two differences:
// an empty riskTier is an error rather than defaulting to MEDIUM, and if ctx
// is canceled before an outcome is reached the Response has an empty
// Outcome with neither Granted nor Denied set.
func (a *App) Verify(ctx context.Context, query string, riskTier RiskTier) (Response, error) {
	parsed, err := tier.Parse(string(riskTier))
	if err != nil {
		return Response{}, fmt.Errorf("ceti: %w", err)
	}
	resp := a.verifier.Verify(ctx, verifier.Request{Query: query, RiskTier: parsed})
	return toPublicResponse(resp, uuid.New().String()), nil
}

// warmupOracle loads the configured model into memory ahead of the first
// real /verify call, for Oracle backends whose first call would otherwise
// pay a cold-start penalty that risks blowing the round budget (spec §4.4,
// mirroring the teacher's conflictBackfillLoop Ollama warmup).
func (a *App) warmupOracle(ctx context.Context) {
	oc, ok := a.oracleClient.(*oracle.OllamaClient)
	if !ok {
		return
	}
	a.logger.Info("oracle: warming up ollama model", "model", a.cfg.GeneratorModel)
	if err := oc.Warmup(ctx, a.cfg.GeneratorModel); err != nil {
		a.logger.Warn("oracle: ollama warmup failed (will proceed anyway)", "error", err)
		return
	}
	a.logger.Info("oracle: ollama model ready")
}

// ── Adapters (defined here because this file imports both sides) ──────────

// embeddingProviderAdapter wraps a public EmbeddingProvider to satisfy
// internal embedding.Provider.
type embeddingProviderAdapter struct {
	p EmbeddingProvider
}

func (a *embeddingProviderAdapter) Embed(ctx context.Context, text string) ([]float32, error) {
	return a.p.Embed(ctx, text)
}

func (a *embeddingProviderAdapter) Dimensions() int {
	return a.p.Dimensions()
}

// oracleClientAdapter wraps a public OracleClient to satisfy internal
// oracle.Client.
type oracleClientAdapter struct {
	c OracleClient
}

func (a *oracleClientAdapter) Complete(ctx context.Context, model string, messages []oracle.Message, maxTokens int) (string, error) {
	pubMessages := make([]Message, len(messages))
	for i, m := range messages {
		pubMessages[i] = Message{Role: m.Role, Content: m.Content}
	}
	return a.c.Complete(ctx, model, pubMessages, maxTokens)
}

// ── Helpers ─────────────────────────────────────────────────────────────

func newLedgerStore(ctx context.Context, cfg config.Config, logger *slog.Logger) (ledger.Store, error) {
	switch {
	case cfg.QdrantURL != "":
		logger.Info("ledger backend: qdrant", "url", cfg.QdrantURL, "collection", cfg.QdrantCollection)
		return ledger.NewQdrantStore(ctx, ledger.QdrantConfig{
			URL:        cfg.QdrantURL,
			APIKey:     cfg.QdrantAPIKey,
			Collection: cfg.QdrantCollection,
			Dims:       uint64(cfg.EmbeddingDimensions), //nolint:gosec // validated positive in config.Validate
		}, 1-cfg.SimilarityThreshold, logger)
	case cfg.DatabaseURL != "":
		logger.Info("ledger backend: postgres")
		return ledger.NewPostgresStore(ctx, cfg.DatabaseURL, 1-cfg.SimilarityThreshold)
	default:
		logger.Info("ledger backend: sqlite", "path", cfg.LedgerPath)
		return ledger.NewSQLiteStore(cfg.LedgerPath, 1-cfg.SimilarityThreshold)
	}
}

func newEmbeddingProvider(cfg config.Config, logger *slog.Logger) embedding.Provider {
	dims := cfg.EmbeddingDimensions

	switch cfg.EmbeddingProvider {
	case "openai":
		if cfg.OpenAIAPIKey == "" {
			logger.Error("embedding: openai provider requested but OPENAI_API_KEY is unset")
			return embedding.NewNoopProvider(dims)
		}
		p, err := embedding.NewOpenAIProvider(cfg.OpenAIAPIKey, cfg.EmbeddingModel, dims)
		if err != nil {
			logger.Error("embedding: openai provider init failed", "error", err)
			return embedding.NewNoopProvider(dims)
		}
		logger.Info("embedding provider: openai", "model", cfg.EmbeddingModel, "dimensions", dims)
		return p
	case "ollama":
		logger.Info("embedding provider: ollama", "url", cfg.OllamaURL, "model", cfg.OllamaEmbedModel, "dimensions", dims)
		return embedding.NewOllamaProvider(cfg.OllamaURL, cfg.OllamaEmbedModel, dims)
	case "noop":
		logger.Info("embedding provider: noop (ledger lookups always miss)")
		return embedding.NewNoopProvider(dims)
	case "auto":
		fallthrough
	default:
		if ollamaReachable(cfg.OllamaURL) {
			logger.Info("embedding provider: ollama (auto-detected)", "url", cfg.OllamaURL, "dimensions", dims)
			return embedding.NewOllamaProvider(cfg.OllamaURL, cfg.OllamaEmbedModel, dims)
		}
		if cfg.OpenAIAPIKey != "" {
			p, err := embedding.NewOpenAIProvider(cfg.OpenAIAPIKey, cfg.EmbeddingModel, dims)
			if err == nil {
				logger.Info("embedding provider: openai (auto-detected)", "model", cfg.EmbeddingModel, "dimensions", dims)
				return p
			}
			logger.Error("embedding: openai provider init failed", "error", err)
		}
		logger.Warn("embedding provider: noop (no embedding backend reachable, ledger disabled)")
		return embedding.NewNoopProvider(dims)
	}
}

func newOracleClient(cfg config.Config, logger *slog.Logger) oracle.Client {
	switch cfg.OracleProvider {
	case "openai":
		key := cfg.OpenAIAPIKey
		if key == "" {
			key = cfg.LLMAPIKey
		}
		logger.Info("oracle provider: openai")
		return oracle.NewOpenAIClient(key)
	case "noop":
		logger.Warn("oracle provider: noop — every round auto-accepts, for local development only")
		return oraclefake.Noop{}
	case "ollama":
		fallthrough
	default:
		logger.Info("oracle provider: ollama", "url", cfg.OllamaURL)
		return oracle.NewOllamaClient(cfg.OllamaURL)
	}
}

func ollamaReachable(baseURL string) bool {
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL+"/api/tags", nil)
	if err != nil {
		return false
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return false
	}
	_ = resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

// toPublicResponse converts an internal verifier.Response to the public
// ceti.Response. Lives here because this is the only file that imports both
// sides of the boundary.
func toPublicResponse(resp verifier.Response, requestID string) Response {
	out := Response{
		Meta: ResponseMeta{
			RequestID:       requestID,
			Timestamp:       time.Now().UTC(),
			RoundsCompleted: resp.Meta.RoundsCompleted,
			Cached:          resp.Meta.Cached,
		},
	}
	switch {
	case resp.Granted != nil:
		out.Outcome = OutcomeGranted
		out.Granted = &Granted{
			ResponseContent: resp.Granted.ResponseContent,
			CertificationID: resp.Granted.CertificationID,
			Scope: AuthorizationScope{
				ContextHash:     resp.Granted.Scope.ContextHash,
				IssuedAt:        resp.Granted.Scope.TemporalBounds.IssuedAt,
				TTLSeconds:      resp.Granted.Scope.TemporalBounds.TTLSeconds,
				ActionClass:     resp.Granted.Scope.ActionClass,
				RiskTierApplied: resp.Granted.Scope.RiskTierApplied.String(),
			},
		}
	case resp.Denied != nil:
		out.Outcome = OutcomeDenied
		out.Denied = &Denied{
			ResponseContent: resp.Denied.ResponseContent,
			Diagnostics: RefusalDiagnostics{
				FailureType:                  string(resp.Denied.RefusalDiagnostics.FailureType),
				Details:                      resp.Denied.RefusalDiagnostics.Details,
				RequirementsForCertification: resp.Denied.RefusalDiagnostics.RequirementsForCertification,
			},
		}
	}
	return out
}
