// Package persona implements the Critic Persona Pool: a fixed ordered list
// of hostile personas and a deterministic selector that rotates through them
// across rounds and days (spec §2.5, §4.3).
package persona

import (
	"hash/fnv"
	"time"
)

// Persona is a fixed hostile critic system prompt applied at one round.
type Persona struct {
	ID           string
	SystemPrompt string
}

// DefaultPersonas is the built-in persona set, grounded on the original
// CRITIC_VARIANTS list: eight hostile critic stances, one per drift slot.
var DefaultPersonas = []Persona{
	{ID: "red-team-analyst", SystemPrompt: "You are a hostile red-team analyst. Assume the answer is wrong unless proven flawless."},
	{ID: "black-hat-auditor", SystemPrompt: "You are a black-hat auditor. Identify any exploitable ambiguity or failure mode."},
	{ID: "formal-methods-verifier", SystemPrompt: "You are a formal methods verifier. Reject if any assumption is unstated."},
	{ID: "adversarial-domain-expert", SystemPrompt: "You are an adversarial domain expert. Reject if any edge case is ignored."},
	{ID: "governance-enforcer", SystemPrompt: "You are a governance enforcer. Reject if authorization scope is exceeded."},
	{ID: "contradiction-hunter", SystemPrompt: "You are a contradiction hunter. Reject if any internal inconsistency exists."},
	{ID: "risk-analyst", SystemPrompt: "You are a risk analyst. Reject if downstream harm is possible."},
	{ID: "orthogonality-critic", SystemPrompt: "You are an orthogonality critic. Reject if reasoning collapses under reframing."},
}

// DriftVariantsCount is the number of logical rotation slots the selector
// rotates across, independent of how many personas are actually configured.
const DriftVariantsCount = 8

// Clock abstracts the wall clock so the selector is reproducible in tests.
// Mirrors the teacher's pattern of injecting dependencies (e.g. JWTManager's
// injected expiration) rather than consulting time.Now() directly.
type Clock interface {
	Now() time.Time
}

// SystemClock is the production Clock backed by time.Now().
type SystemClock struct{}

// Now returns the current wall-clock time.
func (SystemClock) Now() time.Time { return time.Now() }

// Pool holds an immutable persona set and a selector clock.
type Pool struct {
	personas []Persona
	clock    Clock
}

// New constructs a Pool. personas must be non-empty; callers that pass an
// empty slice get DefaultPersonas instead, since |personas| >= 1 is a hard
// invariant (spec §3).
func New(personas []Persona, clock Clock) *Pool {
	if len(personas) == 0 {
		personas = DefaultPersonas
	}
	if clock == nil {
		clock = SystemClock{}
	}
	return &Pool{personas: append([]Persona(nil), personas...), clock: clock}
}

// Select implements the deterministic rotation formula from §4.3:
//
//	index := (floor(now_seconds/86400) + round_index + stable_hash(persona_set)) mod DriftVariantsCount
//	persona := personas[index mod len(personas)]
//
// This gives daily rotation across days, per-round variation within a
// request, and reproducibility for tests via the injected clock.
func (p *Pool) Select(round int) Persona {
	day := p.clock.Now().Unix() / 86400
	idx := (day + int64(round) + int64(stableHash(p.personas))) % DriftVariantsCount
	if idx < 0 {
		idx += DriftVariantsCount
	}
	return p.personas[int(idx)%len(p.personas)]
}

// Personas returns the pool's immutable persona set.
func (p *Pool) Personas() []Persona {
	return append([]Persona(nil), p.personas...)
}

// stableHash computes a deterministic hash of the persona set's identity,
// so the rotation offset is stable across process restarts given the same
// configured persona list, but varies if the operator reconfigures personas.
func stableHash(personas []Persona) uint32 {
	h := fnv.New32a()
	for _, p := range personas {
		_, _ = h.Write([]byte(p.ID))
		_, _ = h.Write([]byte{0})
	}
	return h.Sum32()
}
