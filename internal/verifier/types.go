package verifier

import (
	"time"

	"github.com/io-m1/ceti/internal/tier"
)

// Request is a single adjudication request (spec §3 Query + RiskTier).
type Request struct {
	Query    string
	RiskTier tier.RiskTier
}

// FailureType classifies why a request was denied (spec §3 RefusalDiagnostics).
type FailureType string

const (
	FailureCorrelationSuspicion FailureType = "correlation_suspicion"
	FailureContradiction        FailureType = "contradiction"
	FailureGamingSuspicion      FailureType = "gaming_suspicion"
	FailureMissingEvidence      FailureType = "missing_evidence"
	FailureInstability          FailureType = "instability"
	FailureOther                FailureType = "other"
)

// RefusalDiagnostics explains a Denied outcome.
type RefusalDiagnostics struct {
	FailureType                 FailureType
	Details                     string
	RequirementsForCertification string
}

// AuthorizationScope bounds what a Granted response authorizes (spec §3).
type AuthorizationScope struct {
	ContextHash     string         `json:"context_hash"`
	TemporalBounds  TemporalBounds `json:"temporal_bounds"`
	ActionClass     string         `json:"action_class"`
	RiskTierApplied tier.RiskTier  `json:"risk_tier_applied"`
}

// TemporalBounds is the issuance date and TTL of a grant.
type TemporalBounds struct {
	IssuedAt   time.Time `json:"issued_at"`
	TTLSeconds int       `json:"ttl_seconds"`
}

// Meta carries supplemented, non-normative response metadata (rounds
// completed, cache provenance) — not named in spec.md's Response union but
// implied by the test scenarios and made explicit here.
type Meta struct {
	RoundsCompleted int
	Cached          bool
	Source          string
}

// Response is the discriminated Granted/Denied union (spec §3). Exactly one
// of Granted/Denied is non-nil, except in the zero Response that Verify
// returns when ctx is canceled before an outcome is reached.
type Response struct {
	Granted *GrantedResult
	Denied  *DeniedResult
	Meta    Meta
}

// GrantedResult is the payload of a GRANTED authorization.
type GrantedResult struct {
	ResponseContent string
	Scope           AuthorizationScope
	CertificationID string
}

// DeniedResult is the payload of a DENIED authorization.
type DeniedResult struct {
	ResponseContent    string
	RefusalDiagnostics RefusalDiagnostics
}
