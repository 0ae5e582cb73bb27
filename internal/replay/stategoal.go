package replay

import (
	"fmt"
	"math/rand"

	"github.com/rs/zerolog"

	"github.com/Schellenberg3/VMControl/internal/env"
	"github.com/Schellenberg3/VMControl/internal/rollout"
)

// StateGoalConfig configures the goal-concatenating relabeling buffer.
type StateGoalConfig struct {
	// MaxSize is the buffer capacity in transitions.
	MaxSize int

	// K is the number of hindsight goals drawn per path step.
	K int
}

// DefaultStateGoalConfig matches the training scripts' defaults.
func DefaultStateGoalConfig(maxSize int) StateGoalConfig {
	return StateGoalConfig{MaxSize: maxSize, K: 4}
}

// Validate checks the configuration.
func (c StateGoalConfig) Validate() error {
	if c.MaxSize <= 0 {
		return fmt.Errorf("max size must be positive, got %d", c.MaxSize)
	}
	if c.K <= 0 {
		return fmt.Errorf("k must be positive, got %d", c.K)
	}
	return nil
}

// StateGoalBuffer stores observation‖goal concatenations and relabels at
// insert time: each path step is inserted once with its original goal and K
// more times with future achieved goals, the reward recomputed through the
// environment's reward function.
type StateGoalBuffer struct {
	*flatBuffer

	cfg     StateGoalConfig
	env     env.GoalEnv
	obsDim  int
	goalDim int
}

// NewStateGoal builds the buffer. The stored row width is the observation
// dimension plus the goal dimension.
func NewStateGoal(cfg StateGoalConfig, e env.GoalEnv, rng *rand.Rand, logger zerolog.Logger) (*StateGoalBuffer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid state-goal config: %w", err)
	}
	spec := e.ObservationSpec()
	obsBox, ok := spec[env.ObservationKey]
	if !ok {
		return nil, fmt.Errorf("key not found in the observation space: %s", env.ObservationKey)
	}
	goalBox, ok := spec[env.DesiredGoalKey]
	if !ok {
		return nil, fmt.Errorf("key not found in the observation space: %s", env.DesiredGoalKey)
	}

	obsDim := obsBox.Size()
	goalDim := goalBox.Size()
	return &StateGoalBuffer{
		flatBuffer: newFlatBuffer(cfg.MaxSize, obsDim+goalDim, e.ActionSpec().Size(), rng, logger),
		cfg:        cfg,
		env:        e,
		obsDim:     obsDim,
		goalDim:    goalDim,
	}, nil
}

// AddSample inserts a single observation‖goal transition.
func (b *StateGoalBuffer) AddSample(obs, action []float64, reward float64, terminal bool, nextObs []float64) error {
	return b.addSample(obs, action, reward, terminal, nextObs)
}

// AddPath inserts each step with its original goal, then K hindsight copies
// with goals drawn from the achieved goals later in the path.
func (b *StateGoalBuffer) AddPath(path *rollout.Path) error {
	pathLen := path.Len()
	if pathLen == 0 {
		return nil
	}

	for i := 0; i < pathLen; i++ {
		obs := path.Observations[i]
		next := path.NextObservations[i]
		err := b.addSample(
			concat(obs[env.ObservationKey], obs[env.DesiredGoalKey]),
			path.Actions[i],
			path.Rewards[i],
			path.Terminals[i],
			concat(next[env.ObservationKey], next[env.DesiredGoalKey]),
		)
		if err != nil {
			return err
		}
		if i == pathLen-1 {
			break
		}

		for j := 0; j < b.cfg.K; j++ {
			// Future goal drawn with replacement from the rest of the path.
			goalStep := i + 1 + b.rng.Intn(pathLen-i-1)
			goal := path.NextObservations[goalStep][env.AchievedGoalKey]
			reward := b.env.ComputeReward(next[env.AchievedGoalKey], goal)
			err := b.addSample(
				concat(obs[env.ObservationKey], goal),
				path.Actions[i],
				reward,
				path.Terminals[i],
				concat(next[env.ObservationKey], goal),
			)
			if err != nil {
				return err
			}
		}
	}
	return nil
}

func concat(a, b []float64) []float64 {
	out := make([]float64, 0, len(a)+len(b))
	out = append(out, a...)
	out = append(out, b...)
	return out
}
