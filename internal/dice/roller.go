package dice

import (
	"errors"
	"math/rand"
)

// Roller provides an interface for rolling dice
// This allows us to inject deterministic implementations for testing
type Roller interface {
	// Roll rolls count dice with the given sides and adds a bonus
	Roll(count, sides, bonus int) (int, error)
}

type randomRoller struct {
	rng *rand.Rand
}

// NewRandomRoller creates a roller backed by the given source. A nil rng
// falls back to the global source.
func NewRandomRoller(rng *rand.Rand) Roller {
	return &randomRoller{rng: rng}
}

func (r *randomRoller) Roll(count, sides, bonus int) (int, error) {
	if count < 1 {
		return 0, errors.New("invalid dice count")
	}
	if sides < 1 {
		return 0, errors.New("invalid dice size")
	}

	total := bonus
	for i := 0; i < count; i++ {
		if r.rng != nil {
			total += r.rng.Intn(sides) + 1
		} else {
			total += rand.Intn(sides) + 1
		}
	}
	return total, nil
}
