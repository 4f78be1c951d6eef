package auth_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/io-m1/ceti/internal/auth"
)

func TestHashAndVerifyAPIKey(t *testing.T) {
	hash, err := auth.HashAPIKey("test-key-123")
	require.NoError(t, err)
	assert.NotEmpty(t, hash)

	valid, err := auth.VerifyAPIKey("test-key-123", hash)
	require.NoError(t, err)
	assert.True(t, valid)

	valid, err = auth.VerifyAPIKey("wrong-key", hash)
	require.NoError(t, err)
	assert.False(t, valid)
}

func TestVerifier_EmptyKeySetDisablesAuth(t *testing.T) {
	v, err := auth.New(nil)
	require.NoError(t, err)
	assert.True(t, v.Disabled())

	claims, ok := v.Verify("anything")
	assert.True(t, ok)
	assert.NotNil(t, claims)
}

func TestVerifier_AcceptsConfiguredKey(t *testing.T) {
	v, err := auth.New([]string{"sk-live-abc123", "sk-live-def456"})
	require.NoError(t, err)
	assert.False(t, v.Disabled())

	claims, ok := v.Verify("sk-live-abc123")
	require.True(t, ok)
	assert.Equal(t, "sk-live-", claims.KeyPrefix)
}

func TestVerifier_RejectsUnknownKey(t *testing.T) {
	v, err := auth.New([]string{"sk-live-abc123"})
	require.NoError(t, err)

	_, ok := v.Verify("sk-live-wrong")
	assert.False(t, ok)
}

func TestCredentialFromRequest(t *testing.T) {
	cases := []struct {
		name       string
		apiKeyHdr  string
		authHdr    string
		wantCred   string
		wantFound  bool
	}{
		{"x-api-key wins", "key-a", "Bearer key-b", "key-a", true},
		{"bearer scheme", "", "Bearer key-b", "key-b", true},
		{"apikey scheme", "", "ApiKey key-c", "key-c", true},
		{"unsupported scheme", "", "Basic dXNlcjpwYXNz", "", false},
		{"no credentials", "", "", "", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cred, found := auth.CredentialFromRequest(tc.apiKeyHdr, tc.authHdr)
			assert.Equal(t, tc.wantFound, found)
			assert.Equal(t, tc.wantCred, cred)
		})
	}
}

func TestClaimsContextRoundTrip(t *testing.T) {
	ctx := auth.WithClaims(context.Background(), &auth.Claims{KeyPrefix: "sk-live-"})
	claims, ok := auth.ClaimsFromContext(ctx)
	require.True(t, ok)
	assert.Equal(t, "sk-live-", claims.KeyPrefix)
}
