// Package auth authenticates requests to the adjudication HTTP surface.
//
// CETI has no notion of agents, organizations, or roles to issue JWTs for —
// callers are trusted services holding one of a small set of
// operator-provisioned keys. Authentication is a constant-time membership
// check against the configured key set (hashed with Argon2id, following the
// teacher's hash.go, so a leaked config snapshot doesn't hand out live
// credentials verbatim).
package auth

import (
	"context"
	"strings"
)

type claimsKey struct{}

// Claims identifies the authenticated caller. CETI has no per-agent roles,
// so this carries only which key matched, for audit logging.
type Claims struct {
	KeyPrefix string
}

// WithClaims attaches Claims to ctx.
func WithClaims(ctx context.Context, c *Claims) context.Context {
	return context.WithValue(ctx, claimsKey{}, c)
}

// ClaimsFromContext returns the Claims attached by WithClaims, if any.
func ClaimsFromContext(ctx context.Context) (*Claims, bool) {
	c, ok := ctx.Value(claimsKey{}).(*Claims)
	return c, ok
}

// Verifier checks bearer credentials against a configured key set, each
// stored as an Argon2id hash rather than plaintext.
type Verifier struct {
	hashes []keyHash
}

type keyHash struct {
	prefix string
	hash   string
}

// New hashes each configured plaintext key once at startup. An empty key
// set disables authentication (every credential is accepted) — intended
// for local development only, per config.Config.APIKeys' documented
// default.
func New(keys []string) (*Verifier, error) {
	v := &Verifier{}
	for _, k := range keys {
		if k == "" {
			continue
		}
		h, err := HashAPIKey(k)
		if err != nil {
			return nil, err
		}
		v.hashes = append(v.hashes, keyHash{prefix: prefix(k), hash: h})
	}
	return v, nil
}

// Disabled reports whether no keys are configured.
func (v *Verifier) Disabled() bool {
	return len(v.hashes) == 0
}

// Verify checks credential against every configured hash. It does not stop
// at the first match: every call performs exactly as many Argon2id
// computations as there are configured keys, so that response timing does
// not reveal which key, if any, matched.
func (v *Verifier) Verify(credential string) (*Claims, bool) {
	if v.Disabled() {
		return &Claims{}, true
	}
	var matched *Claims
	for _, kh := range v.hashes {
		ok, err := VerifyAPIKey(credential, kh.hash)
		if err == nil && ok && matched == nil {
			matched = &Claims{KeyPrefix: kh.prefix}
		}
	}
	return matched, matched != nil
}

// CredentialFromRequest extracts a bearer credential from either the
// X-API-Key header or an "Authorization: Bearer <key>" / "Authorization:
// ApiKey <key>" header, mirroring the teacher's dual-scheme convention in
// its own authMiddleware.
func CredentialFromRequest(apiKeyHeader, authHeader string) (string, bool) {
	if apiKeyHeader != "" {
		return apiKeyHeader, true
	}
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 {
		return "", false
	}
	scheme, credential := parts[0], parts[1]
	if strings.EqualFold(scheme, "Bearer") || strings.EqualFold(scheme, "ApiKey") {
		return credential, true
	}
	return "", false
}

func prefix(key string) string {
	if len(key) <= 8 {
		return key
	}
	return key[:8]
}
