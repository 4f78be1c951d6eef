// Package verifier implements Thunderdome: the bounded, multi-round
// adversarial state machine that adjudicates a query into a certified
// GRANTED authorization or a structured DENIED refusal (spec §4.5).
package verifier

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/io-m1/ceti/internal/embedding"
	"github.com/io-m1/ceti/internal/guard"
	"github.com/io-m1/ceti/internal/integrity"
	"github.com/io-m1/ceti/internal/ledger"
	"github.com/io-m1/ceti/internal/oracle"
	"github.com/io-m1/ceti/internal/persona"
	"github.com/io-m1/ceti/internal/tier"
	"github.com/io-m1/ceti/internal/webcontext"
)

const (
	generationMaxTokens = 500
	defenseMaxTokens    = 500
	verdictMaxTokens    = 100
	detailsMaxLen       = 300
	contextTimeout      = 10 * time.Second
)

const requirementsForCertification = "answer must survive critic attack within MAX_ROUNDS and pass judge quorum supermajority"

// Verifier composes the Input Guard, Ledger, Web Context Fetcher, Critic
// Persona Pool, and Oracle Client into a single adjudication entry point.
// All dependencies are injected explicitly (spec §9: "inject them as
// explicit dependencies into the Verifier to keep the core testable").
type Verifier struct {
	ledger   ledger.Store
	embedder embedding.Provider
	context  *webcontext.Fetcher
	personas *persona.Pool
	oracle   oracle.Client
	logger   *slog.Logger

	generatorModel string
	criticModel    string
	judgeModels    []string
	maxRounds      int
	defaultTTL     int
}

// Config holds the Verifier's construction-time parameters.
type Config struct {
	GeneratorModel string
	CriticModel    string
	JudgeModels    []string
	MaxRounds      int
	DefaultTTL     int // seconds
}

// New constructs a Verifier. Callers are responsible for having already
// validated cfg against the invariants in spec §3 (internal/config.Validate
// does this before any Verifier is ever built).
func New(store ledger.Store, embedder embedding.Provider, ctxFetcher *webcontext.Fetcher, personas *persona.Pool, client oracle.Client, cfg Config, logger *slog.Logger) *Verifier {
	return &Verifier{
		ledger:         store,
		embedder:       embedder,
		context:        ctxFetcher,
		personas:       personas,
		oracle:         client,
		logger:         logger,
		generatorModel: cfg.GeneratorModel,
		criticModel:    cfg.CriticModel,
		judgeModels:    cfg.JudgeModels,
		maxRounds:      cfg.MaxRounds,
		defaultTTL:     cfg.DefaultTTL,
	}
}

// Verify runs the full Thunderdome pipeline for a single request (spec
// §4.5). It never returns an error: every failure mode maps to a Denied
// response, per §9's "Verifier's public entry never raises". The one
// exception is cancellation: if ctx is canceled before an outcome is
// reached, it returns the zero Response, with neither Granted nor Denied
// set, and nothing is written to the ledger.
func (v *Verifier) Verify(ctx context.Context, req Request) Response {
	// Step 1: Guard.
	if blocked, reason := guard.Check(req.Query); blocked {
		v.logger.Info("verifier: guard blocked query", "reason", reason)
		return deniedResponse(FailureGamingSuspicion, reason, "", Meta{})
	}

	queryEmbedding, embedErr := v.embedder.Embed(ctx, req.Query)

	// Step 2: Ledger lookup.
	if embedErr == nil {
		if entry, found, err := v.ledger.Lookup(ctx, queryEmbedding, req.RiskTier); err != nil {
			v.logger.Warn("verifier: ledger lookup failed", "error", err)
		} else if found {
			return cachedGrantedResponse(entry)
		}
	}

	if ctx.Err() != nil {
		return Response{}
	}

	// Step 3: Context.
	contextCtx, cancel := context.WithTimeout(ctx, contextTimeout)
	webContext := v.context.Fetch(contextCtx, req.Query)
	cancel()

	// Step 4: Initial generation.
	transcript := []integrity.Turn{{Role: "user", Content: req.Query, RoundIndex: 0}}
	prompt := webContext + "\n" + req.Query
	currentAnswer, err := v.oracle.Complete(ctx, v.generatorModel, []oracle.Message{{Role: "user", Content: prompt}}, generationMaxTokens)
	if err != nil {
		return deniedResponse(FailureInstability, classString(err), "", Meta{})
	}
	transcript = append(transcript, integrity.Turn{Role: "assistant", ModelID: v.generatorModel, Content: currentAnswer, RoundIndex: 0})

	if ctx.Err() != nil {
		return Response{}
	}

	// Step 5: Adversarial loop.
	consensus := false
	lastCritique := ""
	roundsCompleted := 0

	for round := 1; round <= v.maxRounds; round++ {
		roundsCompleted = round
		if ctx.Err() != nil {
			return Response{}
		}

		selected := v.personas.Select(round)
		critiquePrompt := fmt.Sprintf("%s\n\nQuery: %s\n\nCurrent answer: %s\n\nRespond with VERDICT: ACCEPT or VERDICT: REJECT.", selected.SystemPrompt, req.Query, currentAnswer)
		critiqueContent, critErr := v.oracle.Complete(ctx, v.criticModel, []oracle.Message{{Role: "user", Content: critiquePrompt}}, verdictMaxTokens)
		if critErr != nil {
			// Fail-closed: an Oracle error on the critic maps to a synthetic REJECT.
			critiqueContent = "VERDICT: REJECT"
		}
		transcript = append(transcript, integrity.Turn{Role: "critic", ModelID: v.criticModel, Content: critiqueContent, RoundIndex: round})
		lastCritique = critiqueContent

		if isAccept(critiqueContent) {
			consensus = true
			break
		}

		defensePrompt := fmt.Sprintf("Your answer was critiqued: %s\n\nOriginal query: %s\n\nProvide a complete revised answer.", critiqueContent, req.Query)
		revised, defErr := v.oracle.Complete(ctx, v.generatorModel, []oracle.Message{{Role: "user", Content: defensePrompt}}, defenseMaxTokens)
		if defErr != nil {
			// Keep currentAnswer unchanged; the next round attacks the stale answer.
			continue
		}
		currentAnswer = revised
		transcript = append(transcript, integrity.Turn{Role: "assistant", ModelID: v.generatorModel, Content: currentAnswer, RoundIndex: round})
	}

	if !consensus {
		failureType := FailureGamingSuspicion
		if roundsCompleted == v.maxRounds {
			failureType = FailureInstability
		}
		return deniedResponse(failureType, truncate(lastCritique, detailsMaxLen), requirementsForCertification, Meta{RoundsCompleted: roundsCompleted})
	}

	if ctx.Err() != nil {
		return Response{}
	}

	// Step 6: Quorum vote.
	accepts, judgeTurns, quorumErr := v.runQuorum(ctx, req.Query, currentAnswer)
	transcript = append(transcript, judgeTurns...)
	if quorumErr != nil {
		return Response{}
	}

	threshold := len(v.judgeModels)*2/3 + 1
	if accepts < threshold {
		return deniedResponse(FailureInstability, "quorum rejected certification", requirementsForCertification, Meta{RoundsCompleted: roundsCompleted})
	}

	// Step 7: Outcome — pass.
	transcriptHash := integrity.TranscriptHash(transcript)
	certificationID := integrity.CertificationID(transcriptHash)
	scope := buildScope(req.Query, req.RiskTier, v.defaultTTL)

	if ctx.Err() != nil {
		return Response{}
	}

	if embedErr == nil {
		scopeJSON, err := json.Marshal(scope)
		if err != nil {
			v.logger.Warn("verifier: marshal scope failed", "error", err)
			scopeJSON = []byte("{}")
		}
		entry := ledger.Entry{
			CertificationID: certificationID,
			Embedding:       queryEmbedding,
			RiskTier:        req.RiskTier,
			ResponseContent: currentAnswer,
			ScopeJSON:       string(scopeJSON),
			IssuedAt:        scope.TemporalBounds.IssuedAt,
			TTLSeconds:      scope.TemporalBounds.TTLSeconds,
		}
		if existing, found, lookupErr := v.ledger.Lookup(ctx, queryEmbedding, req.RiskTier); lookupErr == nil && found && existing.ResponseContent != currentAnswer {
			v.logger.Info("verifier: conflicting ledger entry, skipping store", "certification_id", certificationID)
		} else if err := v.ledger.Store(ctx, entry); err != nil {
			v.logger.Warn("verifier: ledger store failed", "error", err)
		}
	}

	return Response{
		Granted: &GrantedResult{
			ResponseContent: currentAnswer,
			Scope:           scope,
			CertificationID: certificationID,
		},
		Meta: Meta{RoundsCompleted: roundsCompleted, Cached: false, Source: "pipeline"},
	}
}

// runQuorum fans out one judge prompt per model in parallel (spec §4.5 step
// 6) with errgroup.WithContext, one goroutine per judge and no concurrency
// limit. Judge errors count as REJECT rather than aborting the
// group, since a single slow/failed judge must not sink the whole vote.
func (v *Verifier) runQuorum(ctx context.Context, query, answer string) (accepts int, turns []integrity.Turn, err error) {
	type judgeResult struct {
		model   string
		content string
		accept  bool
	}
	results := make([]judgeResult, len(v.judgeModels))

	g, gCtx := errgroup.WithContext(ctx)
	for i, model := range v.judgeModels {
		i, model := i, model
		g.Go(func() error {
			prompt := fmt.Sprintf("Query: %s\n\nProposed answer: %s\n\nRespond with VERDICT: ACCEPT or VERDICT: REJECT.", query, answer)
			content, callErr := v.oracle.Complete(gCtx, model, []oracle.Message{{Role: "user", Content: prompt}}, verdictMaxTokens)
			if callErr != nil {
				content = "VERDICT: REJECT"
			}
			results[i] = judgeResult{model: model, content: content, accept: isAccept(content)}
			return nil
		})
	}
	if waitErr := g.Wait(); waitErr != nil {
		return 0, nil, waitErr
	}

	for _, r := range results {
		turns = append(turns, integrity.Turn{Role: "judge", ModelID: r.model, Content: r.content})
		if r.accept {
			accepts++
		}
	}
	return accepts, turns, nil
}

// isAccept implements the exact tie-break rule in spec §4.5: only a literal
// (case-insensitive) "VERDICT: ACCEPT" substring counts; a bare "ACCEPT"
// does not, and empty content is REJECT.
func isAccept(content string) bool {
	return strings.Contains(strings.ToUpper(content), "VERDICT: ACCEPT")
}

func classString(err error) string {
	var oe *oracle.Error
	if errors.As(err, &oe) {
		return string(oe.Class)
	}
	return truncate(err.Error(), detailsMaxLen)
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen]
}

func buildScope(query string, requested tier.RiskTier, ttlSeconds int) AuthorizationScope {
	actionClass := "decision_support"
	if requested == tier.Low || requested == tier.Medium {
		actionClass = "informational"
	}
	return AuthorizationScope{
		ContextHash: integrity.ContextHash(query),
		TemporalBounds: TemporalBounds{
			IssuedAt:   time.Now().UTC(),
			TTLSeconds: ttlSeconds,
		},
		ActionClass:     actionClass,
		RiskTierApplied: requested,
	}
}

func deniedResponse(failureType FailureType, details, requirements string, meta Meta) Response {
	return Response{
		Denied: &DeniedResult{
			ResponseContent: "",
			RefusalDiagnostics: RefusalDiagnostics{
				FailureType:                  failureType,
				Details:                      truncate(details, detailsMaxLen),
				RequirementsForCertification: requirements,
			},
		},
		Meta: meta,
	}
}

func cachedGrantedResponse(entry *ledger.Entry) Response {
	scope := AuthorizationScope{
		RiskTierApplied: entry.RiskTier,
		TemporalBounds: TemporalBounds{
			IssuedAt:   entry.IssuedAt,
			TTLSeconds: entry.TTLSeconds,
		},
	}
	// Best-effort: recover the full scope (context_hash, action_class) the
	// entry was certified with. A decode failure still preserves the fields
	// above, which are the ones the ledger's own columns guarantee.
	_ = json.Unmarshal([]byte(entry.ScopeJSON), &scope)

	return Response{
		Granted: &GrantedResult{
			ResponseContent: entry.ResponseContent,
			Scope:           scope,
			CertificationID: entry.CertificationID,
		},
		Meta: Meta{Cached: true, Source: "ledger_hit"},
	}
}
