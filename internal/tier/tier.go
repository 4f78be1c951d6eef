// Package tier defines the risk classification shared by the Ledger and the
// Verifier. It is split out from the root package (rather than living on
// the public Query/Response types directly) so that internal packages can
// depend on it without importing the root package, matching the project's
// internal-never-imports-root boundary.
package tier

import "fmt"

// RiskTier classifies the stakes of an authorization query (spec §3).
// Tiers form a total order: LOW < MEDIUM < HIGH < CRITICAL.
type RiskTier int

const (
	Low RiskTier = iota
	Medium
	High
	Critical
)

// String renders the tier the way it appears on the wire (JSON, env vars).
func (t RiskTier) String() string {
	switch t {
	case Low:
		return "LOW"
	case Medium:
		return "MEDIUM"
	case High:
		return "HIGH"
	case Critical:
		return "CRITICAL"
	default:
		return "UNKNOWN"
	}
}

// Less reports whether t is strictly lower-stakes than other.
func (t RiskTier) Less(other RiskTier) bool {
	return t < other
}

// Parse converts a wire string ("LOW", "MEDIUM", "HIGH", "CRITICAL") into a
// RiskTier. Matching is exact: case-sensitive, with no whitespace trimming.
func Parse(s string) (RiskTier, error) {
	switch s {
	case "LOW":
		return Low, nil
	case "MEDIUM":
		return Medium, nil
	case "HIGH":
		return High, nil
	case "CRITICAL":
		return Critical, nil
	default:
		return Low, fmt.Errorf("tier: unrecognized risk tier %q", s)
	}
}

// MarshalJSON renders the tier as its wire string.
func (t RiskTier) MarshalJSON() ([]byte, error) {
	return []byte(`"` + t.String() + `"`), nil
}

// UnmarshalJSON parses the tier from its wire string.
func (t *RiskTier) UnmarshalJSON(data []byte) error {
	s := string(data)
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		s = s[1 : len(s)-1]
	}
	parsed, err := Parse(s)
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}
