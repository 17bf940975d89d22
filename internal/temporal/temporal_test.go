package temporal

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/signet-ai/signet/internal/model"
)

func TestStrength_PinnedAlwaysOne(t *testing.T) {
	now := time.Now()
	m := model.Memory{Pinned: true, Importance: 0.1, CreatedAt: now.Add(-365 * 24 * time.Hour)}
	require.Equal(t, 1.0, Strength(m, now))
}

func TestStrength_MonotonicDecayOverTime(t *testing.T) {
	now := time.Now()
	created := now.Add(-100 * 24 * time.Hour)
	m := model.Memory{Importance: 0.5, CreatedAt: created}

	s30 := Strength(m, created.Add(30*24*time.Hour))
	s60 := Strength(m, created.Add(60*24*time.Hour))
	require.GreaterOrEqual(t, s30, s60)
}

func TestStrength_RehearsalIncreasesScore(t *testing.T) {
	now := time.Now()
	base := model.Memory{Importance: 0.2, CreatedAt: now.Add(-10 * 24 * time.Hour)}
	rehearsed := base
	rehearsed.RehearsalCount = 5

	require.Greater(t, Strength(rehearsed, now), Strength(base, now))
}

func TestStrength_RespectsImportanceFloor(t *testing.T) {
	now := time.Now()
	m := model.Memory{Importance: 1.0, CreatedAt: now.Add(-100000 * time.Hour)}
	require.GreaterOrEqual(t, Strength(m, now), 0.2)
}

func TestChanged_ThresholdsSmallDeltas(t *testing.T) {
	require.False(t, Changed(0.5, 0.5005))
	require.True(t, Changed(0.5, 0.503))
}
