package server

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/io-m1/ceti/internal/apitypes"
	"github.com/io-m1/ceti/internal/tier"
	"github.com/io-m1/ceti/internal/verifier"
)

// Handlers holds HTTP handler dependencies.
type Handlers struct {
	verifier  *verifier.Verifier
	logger    *slog.Logger
	version   string
	maxBody   int64
	startedAt time.Time
}

// HandlersDeps are the dependencies required to build Handlers.
type HandlersDeps struct {
	Verifier            *verifier.Verifier
	Logger              *slog.Logger
	Version             string
	MaxRequestBodyBytes int64
}

// NewHandlers creates a new Handlers with all dependencies.
func NewHandlers(deps HandlersDeps) *Handlers {
	return &Handlers{
		verifier:  deps.Verifier,
		logger:    deps.Logger,
		version:   deps.Version,
		maxBody:   deps.MaxRequestBodyBytes,
		startedAt: time.Now(),
	}
}

// HandleVerify handles POST /verify: runs the full adjudication pipeline
// (spec §4.5) against the submitted query and returns a Granted or Denied
// response.
func (h *Handlers) HandleVerify(w http.ResponseWriter, r *http.Request) {
	var req apitypes.VerifyRequest
	if err := decodeJSON(r, &req, h.maxBody); err != nil {
		writeError(w, r, http.StatusBadRequest, apitypes.ErrCodeInvalidInput, "invalid request body")
		return
	}

	if req.Query == "" {
		writeError(w, r, http.StatusBadRequest, apitypes.ErrCodeInvalidInput, "query is required")
		return
	}

	// risk_tier is optional; an omitted field defaults to MEDIUM (spec §6).
	rawTier := req.RiskTier
	if rawTier == "" {
		rawTier = tier.Medium.String()
	}
	riskTier, err := tier.Parse(rawTier)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, apitypes.ErrCodeInvalidInput, "risk_tier must be one of LOW, MEDIUM, HIGH, CRITICAL")
		return
	}

	resp := h.verifier.Verify(r.Context(), verifier.Request{Query: req.Query, RiskTier: riskTier})

	body := apitypes.VerifyResponse{
		Meta: apitypes.ResponseMeta{
			RequestID:       RequestIDFromContext(r.Context()),
			Timestamp:       time.Now().UTC(),
			RoundsCompleted: resp.Meta.RoundsCompleted,
			Cached:          resp.Meta.Cached,
		},
	}

	switch {
	case resp.Granted != nil:
		body.Outcome = "granted"
		body.Granted = &apitypes.GrantedBody{
			ResponseContent: resp.Granted.ResponseContent,
			CertificationID: resp.Granted.CertificationID,
			Scope: apitypes.AuthorizationScope{
				ContextHash:     resp.Granted.Scope.ContextHash,
				IssuedAt:        resp.Granted.Scope.TemporalBounds.IssuedAt,
				TTLSeconds:      resp.Granted.Scope.TemporalBounds.TTLSeconds,
				ActionClass:     resp.Granted.Scope.ActionClass,
				RiskTierApplied: resp.Granted.Scope.RiskTierApplied.String(),
			},
		}
		writeJSON(w, r, http.StatusOK, body)

	case resp.Denied != nil:
		body.Outcome = "denied"
		body.Denied = &apitypes.DeniedBody{
			ResponseContent: resp.Denied.ResponseContent,
			Diagnostics: apitypes.RefusalDiagnostics{
				FailureType:                   string(resp.Denied.RefusalDiagnostics.FailureType),
				Details:                       resp.Denied.RefusalDiagnostics.Details,
				RequirementsForCertification: resp.Denied.RefusalDiagnostics.RequirementsForCertification,
			},
		}
		writeJSON(w, r, http.StatusOK, body)

	default:
		// Verify returned a zero-value Response, meaning ctx was canceled
		// before any outcome was reached (spec §5 cancellation semantics).
		writeError(w, r, http.StatusServiceUnavailable, apitypes.ErrCodeInternalError, "request canceled before adjudication completed")
	}
}

// HandleRoot handles GET /. Registered as the "GET /" pattern, which
// net/http's ServeMux treats as a catch-all for any GET path not matched by
// a more specific route, so unknown paths are rejected with 404 here rather
// than silently returning this body. invariants_enforced is always true:
// the process refuses to start unless config.Validate() passed (MAX_ROUNDS,
// quorum size, drift variants, and orthogonality weight all at or above
// their floors).
func (h *Handlers) HandleRoot(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	writeJSON(w, r, http.StatusOK, apitypes.RootResponse{
		Status:             "ok",
		InvariantsEnforced: true,
		Version:            h.version,
		Message:            "CETI adjudication service is running",
	})
}

// HandleHealth handles GET /health.
func (h *Handlers) HandleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, apitypes.HealthResponse{
		Status:  "ok",
		Version: h.version,
		Ledger:  "ok",
		Uptime:  int64(time.Since(h.startedAt).Seconds()),
	})
}
