package ceti

import "time"

// RiskTier is the wire-level risk classification of an authorization
// query: "LOW", "MEDIUM", "HIGH", or "CRITICAL". Tiers form a total order
// internally; callers only ever see the string form.
type RiskTier string

const (
	RiskLow      RiskTier = "LOW"
	RiskMedium   RiskTier = "MEDIUM"
	RiskHigh     RiskTier = "HIGH"
	RiskCritical RiskTier = "CRITICAL"
)

// Outcome discriminates a Response's Granted/Denied union.
type Outcome string

const (
	OutcomeGranted Outcome = "granted"
	OutcomeDenied  Outcome = "denied"
)

// Response is the public result of an adjudication. Exactly one of
// Granted/Denied is non-nil, selected by Outcome, except when the
// adjudication was canceled: then Outcome is empty and both are nil.
type Response struct {
	Outcome Outcome
	Granted *Granted
	Denied  *Denied
	Meta    ResponseMeta
}

// ResponseMeta carries non-normative response metadata.
type ResponseMeta struct {
	RequestID       string
	Timestamp       time.Time
	RoundsCompleted int
	Cached          bool
}

// Granted is the payload of a GRANTED authorization.
type Granted struct {
	ResponseContent string
	Scope           AuthorizationScope
	CertificationID string
}

// Denied is the payload of a DENIED authorization.
type Denied struct {
	ResponseContent string
	Diagnostics     RefusalDiagnostics
}

// RefusalDiagnostics explains why a query was denied.
type RefusalDiagnostics struct {
	FailureType                  string
	Details                      string
	RequirementsForCertification string
}

// AuthorizationScope bounds what a Granted response authorizes.
type AuthorizationScope struct {
	ContextHash     string
	IssuedAt        time.Time
	TTLSeconds      int
	ActionClass     string
	RiskTierApplied string
}
