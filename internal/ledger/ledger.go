// Package ledger implements the semantic adjudication cache (spec §4.2).
// A lookup against the Ledger is a cosine-similarity match against
// previously certified responses, gated by a TTL and by risk-tier
// monotonicity: a cached entry may only answer a query whose risk tier is
// no higher than the tier the entry was certified under.
package ledger

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/io-m1/ceti/internal/tier"
)

// ErrNotFound is returned by implementations that want to distinguish a
// definite miss from a transient backend error; Store.Lookup communicates
// misses via its bool return instead, so callers normally never see this.
var ErrNotFound = errors.New("ledger: entry not found")

// Entry is a certified adjudication result stored for semantic reuse.
type Entry struct {
	CertificationID string
	Embedding       []float32
	RiskTier        tier.RiskTier
	ResponseContent string
	ScopeJSON       string
	IssuedAt        time.Time
	TTLSeconds      int
}

// Expired reports whether e's TTL has elapsed as of now.
func (e Entry) Expired(now time.Time) bool {
	if e.TTLSeconds <= 0 {
		return false
	}
	return now.After(e.IssuedAt.Add(time.Duration(e.TTLSeconds) * time.Second))
}

// Store is the Ledger's persistence boundary. Implementations are swappable
// (SQLite by default; Qdrant or Postgres when configured) but all honor the
// same three-part acceptance test on Lookup: cosine distance within
// threshold, entry not expired, and tier monotonicity (the cached entry's
// tier must be >= the queried tier).
type Store interface {
	// Lookup finds the closest entry to queryEmbedding that is eligible to
	// answer a query of the given risk tier. It returns (nil, false, nil)
	// on a clean miss; error is reserved for backend failures.
	Lookup(ctx context.Context, queryEmbedding []float32, queryTier tier.RiskTier) (*Entry, bool, error)

	// Store upserts an entry, keyed by CertificationID (idempotent: writing
	// the same certification twice is a no-op replace, not a duplicate).
	Store(ctx context.Context, entry Entry) error

	// Close releases any resources held by the store.
	Close() error
}

// CosineDistance computes 1 - cosine_similarity(a, b). Both vectors must be
// the same length and non-zero; callers (Lookup implementations) are
// expected to skip rows where that doesn't hold rather than panic.
func CosineDistance(a, b []float32) float64 {
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 1
	}
	similarity := dot / (math.Sqrt(normA) * math.Sqrt(normB))
	return 1 - similarity
}

// eligible runs the three-part acceptance test from §4.2: distance within
// threshold, not expired, and tier monotonicity.
func eligible(e Entry, distance, threshold float64, queryTier tier.RiskTier, now time.Time) bool {
	if distance > threshold {
		return false
	}
	if e.Expired(now) {
		return false
	}
	return !e.RiskTier.Less(queryTier)
}
