package persona

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixedClock struct{ t time.Time }

func (f fixedClock) Now() time.Time { return f.t }

func TestSelect_DeterministicGivenClock(t *testing.T) {
	clock := fixedClock{t: time.Unix(1_700_000_000, 0)}
	pool := New(DefaultPersonas, clock)

	a := pool.Select(1)
	b := pool.Select(1)
	assert.Equal(t, a, b, "same clock and round must select the same persona")
}

func TestSelect_VariesAcrossRounds(t *testing.T) {
	clock := fixedClock{t: time.Unix(1_700_000_000, 0)}
	pool := New(DefaultPersonas, clock)

	seen := make(map[string]bool)
	for round := 0; round < DriftVariantsCount; round++ {
		seen[pool.Select(round).ID] = true
	}
	assert.Greater(t, len(seen), 1, "rotation across rounds should visit more than one persona")
}

func TestSelect_VariesAcrossDays(t *testing.T) {
	day0 := fixedClock{t: time.Unix(0, 0)}
	day1 := fixedClock{t: time.Unix(86400, 0)}

	p0 := New(DefaultPersonas, day0).Select(0)
	p1 := New(DefaultPersonas, day1).Select(0)
	assert.NotEqual(t, p0.ID, p1.ID, "rotation should differ across day boundaries for at least this offset")
}

func TestNew_EmptyPersonasFallsBackToDefaults(t *testing.T) {
	pool := New(nil, fixedClock{t: time.Unix(0, 0)})
	require.NotEmpty(t, pool.Personas())
	assert.Equal(t, len(DefaultPersonas), len(pool.Personas()))
}

func TestDefaultPersonas_SatisfiesMinimumCount(t *testing.T) {
	require.GreaterOrEqual(t, len(DefaultPersonas), 1)
	require.GreaterOrEqual(t, len(DefaultPersonas), 4, "spec expects 4-8 personas typically")
}
