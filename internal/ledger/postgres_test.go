package ledger_test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/io-m1/ceti/internal/ledger"
	"github.com/io-m1/ceti/internal/testutil"
	"github.com/io-m1/ceti/internal/tier"
)

// tc holds a shared Postgres+pgvector container for all tests in this file.
var tc *testutil.TestContainer

func TestMain(m *testing.M) {
	tc = testutil.MustStartPostgres()
	code := m.Run()
	tc.Terminate()
	os.Exit(code)
}

func newPostgresStore(t *testing.T) *ledger.PostgresStore {
	t.Helper()
	store, err := tc.NewLedgerStore(context.Background(), 0.08) // threshold = 1 - 0.92
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestPostgresStore_LookupMissesOnEmptyLedger(t *testing.T) {
	store := newPostgresStore(t)
	entry, ok, err := store.Lookup(context.Background(), []float32{0.1, 0.2, 0.3}, tier.Medium)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Nil(t, entry)
}

func TestPostgresStore_LookupHitsOnNearDuplicate(t *testing.T) {
	store := newPostgresStore(t)
	ctx := context.Background()

	original := ledger.Entry{
		CertificationID: "cert-pg-1",
		Embedding:       []float32{1, 0, 0},
		RiskTier:        tier.Medium,
		ResponseContent: "granted response",
		ScopeJSON:       `{"context_hash":"abc"}`,
		IssuedAt:        time.Now(),
		TTLSeconds:      3600,
	}
	require.NoError(t, store.Store(ctx, original))

	entry, ok, err := store.Lookup(ctx, []float32{0.99, 0.01, 0}, tier.Medium)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, original.CertificationID, entry.CertificationID)
}

func TestPostgresStore_LookupMissesWhenQueryTierExceedsEntryTier(t *testing.T) {
	store := newPostgresStore(t)
	ctx := context.Background()

	require.NoError(t, store.Store(ctx, ledger.Entry{
		CertificationID: "cert-pg-2",
		Embedding:       []float32{1, 0, 0},
		RiskTier:        tier.Low,
		ResponseContent: "granted response",
		ScopeJSON:       `{}`,
		IssuedAt:        time.Now(),
		TTLSeconds:      3600,
	}))

	_, ok, err := store.Lookup(ctx, []float32{1, 0, 0}, tier.High)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestPostgresStore_StoreIsIdempotentUpsertByCertificationID(t *testing.T) {
	store := newPostgresStore(t)
	ctx := context.Background()

	entry := ledger.Entry{
		CertificationID: "cert-pg-3",
		Embedding:       []float32{0, 1, 0},
		RiskTier:        tier.Low,
		ResponseContent: "first",
		ScopeJSON:       `{}`,
		IssuedAt:        time.Now(),
		TTLSeconds:      3600,
	}
	require.NoError(t, store.Store(ctx, entry))

	entry.ResponseContent = "second"
	require.NoError(t, store.Store(ctx, entry))

	got, ok, err := store.Lookup(ctx, []float32{0, 1, 0}, tier.Low)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "second", got.ResponseContent)
}
