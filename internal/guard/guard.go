// Package guard implements the Input Guard: a pure, fail-closed check that
// rejects over-length queries and queries matching a fixed prompt-injection
// pattern set, before any Oracle call is made.
package guard

import "regexp"

// MaxQueryLength is the hard ceiling on query length in bytes.
const MaxQueryLength = 2000

// patterns targets instruction-override, jailbreak, persona-hijack, and
// "forget previous" phrasings, case-insensitively. Compiled once at package
// init, mirroring the init-time regex compilation pattern the teacher uses
// for its private-IP CIDR set.
var patterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)ignore.*(rules|instructions|previous)`),
	regexp.MustCompile(`(?i)jailbreak|dan|system prompt|developer mode`),
	regexp.MustCompile(`(?i)forget.*(all|previous)`),
	regexp.MustCompile(`(?i)simulate.*(bypass|override)`),
	regexp.MustCompile(`(?i)you are now|act as`),
}

// Check applies the Input Guard to a raw query. It never blocks on I/O and
// never returns an error — a guard failure is reported to the caller as
// (blocked=true, reason) and the caller maps that to Denied{gaming_suspicion}.
func Check(query string) (blocked bool, reason string) {
	if len(query) > MaxQueryLength {
		return true, "Query exceeds maximum length (2000 chars)."
	}
	for _, p := range patterns {
		if p.MatchString(query) {
			return true, "Disallowed pattern detected: " + p.String()
		}
	}
	return false, ""
}
