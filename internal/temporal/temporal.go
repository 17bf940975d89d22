// Package temporal computes the per-memory strength score used to rank
// recall results and decide what decays out of active use. The formula is
// closed-form arithmetic, recomputed in batches rather than kept live.
package temporal

import (
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/signet-ai/signet/internal/model"
)

const (
	decayRate          = 0.03
	rehearsalBonusScale = 0.3
	importanceFloorScale = 0.2
)

// Strength computes a memory's current strength given its rehearsal/access
// history and importance, as of now. Pinned memories always score 1.0.
func Strength(m model.Memory, now time.Time) float64 {
	if m.Pinned {
		return 1.0
	}

	days := now.Sub(m.LastTouch()).Hours() / 24
	if days < 0 {
		days = 0
	}

	decay := math.Exp(-decayRate * days)
	rehearsalBonus := math.Log(1+float64(m.RehearsalCount)) * rehearsalBonusScale
	floor := m.Importance * importanceFloorScale

	strength := decay + rehearsalBonus
	if strength < floor {
		strength = floor
	}
	if strength > 1.0 {
		strength = 1.0
	}
	return round3(strength)
}

func round3(f float64) float64 {
	return math.Round(f*1000) / 1000
}

// Recomputation holds the outcome of a single memory's strength
// recomputation: whether the new value differs enough from the stored one
// to be worth a write.
type Recomputation struct {
	MemoryID uuid.UUID
	Old      float64
	New      float64
}

// significantChange is the minimum absolute delta recomputeAll treats as
// worth persisting, to avoid rewriting every row on every tick.
const significantChange = 0.001

// Changed reports whether the recomputed strength differs enough from the
// stored value to warrant a write.
func Changed(old, new float64) bool {
	return math.Abs(new-old) > significantChange
}
