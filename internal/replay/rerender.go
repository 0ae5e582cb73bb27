package replay

import (
	"fmt"
	"math/rand"

	"github.com/rs/zerolog"

	"github.com/Schellenberg3/VMControl/internal/env"
	"github.com/Schellenberg3/VMControl/internal/rollout"
)

// Rerenderer replays saved simulator states so relabeled transitions can be
// re-rendered against substituted goals. The simulated arm implements it.
type Rerenderer interface {
	// RestoreState loads a snapshot taken from an observation's save-state
	// entry.
	RestoreState(state []float64) error

	// SetGoal overrides the desired goal before re-rendering.
	SetGoal(goal []float64) error

	// Observe returns the observation for the restored state.
	Observe() env.Observation

	// Step applies the original action under the substituted goal.
	Step(action []float64) (env.Observation, float64, bool, error)
}

// RerenderConfig configures the re-rendering relabeling buffer.
type RerenderConfig struct {
	// MaxSize is the buffer capacity in transitions.
	MaxSize int

	// K is the number of hindsight goals drawn per path step.
	K int

	// Transform post-processes re-rendered flat observations before
	// insertion. Nil means identity.
	Transform func([]float64) []float64
}

// DefaultRerenderConfig matches the training scripts' defaults.
func DefaultRerenderConfig(maxSize int) RerenderConfig {
	return RerenderConfig{MaxSize: maxSize, K: 4}
}

// Validate checks the configuration.
func (c RerenderConfig) Validate() error {
	if c.MaxSize <= 0 {
		return fmt.Errorf("max size must be positive, got %d", c.MaxSize)
	}
	if c.K <= 0 {
		return fmt.Errorf("k must be positive, got %d", c.K)
	}
	return nil
}

// RerenderBuffer stores flat observations and relabels at insert time by
// re-rendering: for each path step it draws K future achieved goals, replays
// the step's saved simulator state against each substituted goal, and
// inserts the re-rendered transitions alongside the originals.
type RerenderBuffer struct {
	*flatBuffer

	cfg      RerenderConfig
	env      env.GoalEnv
	renderer Rerenderer
}

// NewRerender builds the buffer. The renderer is typically a second instance
// of the same environment dedicated to replaying saved states.
func NewRerender(cfg RerenderConfig, e env.GoalEnv, renderer Rerenderer, rng *rand.Rand, logger zerolog.Logger) (*RerenderBuffer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid rerender config: %w", err)
	}
	if renderer == nil {
		return nil, fmt.Errorf("rerenderer is required")
	}
	spec := e.ObservationSpec()
	box, ok := spec[env.ObservationKey]
	if !ok {
		return nil, fmt.Errorf("key not found in the observation space: %s", env.ObservationKey)
	}
	return &RerenderBuffer{
		flatBuffer: newFlatBuffer(cfg.MaxSize, box.Size(), e.ActionSpec().Size(), rng, logger),
		cfg:        cfg,
		env:        e,
		renderer:   renderer,
	}, nil
}

// AddSample inserts a single flat transition.
func (b *RerenderBuffer) AddSample(obs, action []float64, reward float64, terminal bool, nextObs []float64) error {
	return b.addSample(obs, action, reward, terminal, nextObs)
}

// AddPath inserts every step of the path as-is, then re-renders K hindsight
// variants per step (except the last, which has no future) and inserts those
// too.
func (b *RerenderBuffer) AddPath(path *rollout.Path) error {
	pathLen := path.Len()
	if pathLen == 0 {
		return nil
	}

	for i := 0; i < pathLen; i++ {
		err := b.addSample(
			path.Observations[i][env.ObservationKey],
			path.Actions[i],
			path.Rewards[i],
			path.Terminals[i],
			path.NextObservations[i][env.ObservationKey],
		)
		if err != nil {
			return err
		}
	}

	for i := 0; i < pathLen-1; i++ {
		state := path.Observations[i][env.SaveStateKey]
		for j := 0; j < b.cfg.K; j++ {
			// Future goal drawn with replacement from the rest of the path.
			goalStep := i + 1 + b.rng.Intn(pathLen-i-1)
			goal := path.Observations[goalStep][env.AchievedGoalKey]

			before, reward, after, err := b.rerenderStep(state, path.Actions[i], goal)
			if err != nil {
				return fmt.Errorf("re-render step %d goal %d: %w", i, j, err)
			}
			if err := b.addSample(before, path.Actions[i], reward, path.Terminals[i], after); err != nil {
				return err
			}
		}
	}
	return nil
}

func (b *RerenderBuffer) rerenderStep(state, action, goal []float64) (before []float64, reward float64, after []float64, err error) {
	if err := b.renderer.RestoreState(state); err != nil {
		return nil, 0, nil, fmt.Errorf("restore state: %w", err)
	}
	if err := b.renderer.SetGoal(goal); err != nil {
		return nil, 0, nil, fmt.Errorf("set goal: %w", err)
	}
	before = b.renderer.Observe()[env.ObservationKey]
	next, reward, _, err := b.renderer.Step(action)
	if err != nil {
		return nil, 0, nil, fmt.Errorf("replay action: %w", err)
	}
	after = next[env.ObservationKey]
	if b.cfg.Transform != nil {
		before = b.cfg.Transform(before)
		after = b.cfg.Transform(after)
	}
	return before, reward, after, nil
}
