package policy

import (
	"fmt"
	"math/rand"
	"time"

	"github.com/Schellenberg3/VMControl/internal/env"
)

// Random selects random actions for the given action space. Continuous
// actions are drawn from a standard normal per dimension, matching the demo
// driver's random velocity commands; discrete actions are uniform and
// returned one-hot.
type Random struct {
	rng   *rand.Rand
	space env.Space
}

// NewRandom creates a random policy for the given action space. A nil rng
// seeds one from the wall clock.
func NewRandom(space env.Space, rng *rand.Rand) (*Random, error) {
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	switch space.(type) {
	case env.Box, env.Discrete:
	default:
		return nil, fmt.Errorf("unsupported action space type: %T", space)
	}
	return &Random{rng: rng, space: space}, nil
}

// SelectAction implements Policy.
func (p *Random) SelectAction(observation []float64) ([]float64, error) {
	switch space := p.space.(type) {
	case env.Box:
		action := make([]float64, space.Size())
		for i := range action {
			action[i] = p.rng.NormFloat64()
		}
		return action, nil
	case env.Discrete:
		action := make([]float64, space.N)
		action[space.Sample(p.rng)] = 1
		return action, nil
	default:
		return nil, fmt.Errorf("unsupported action space type: %T", p.space)
	}
}
