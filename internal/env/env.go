// Package env defines the goal-conditioned environment interface used by the
// evaluation harness, the demo driver, and the relabeling replay buffers.
//
// Observations are dictionaries of flat float vectors. The canonical keys
// follow the multitask/GoalEnv convention: the raw observation, the goal the
// agent is asked to reach, and the goal it has actually achieved so far.
package env

import "strings"

// Canonical observation dictionary keys.
const (
	ObservationKey  = "observation"
	DesiredGoalKey  = "desired_goal"
	AchievedGoalKey = "achieved_goal"

	// SaveStateKey holds a snapshot of the simulator state sufficient to
	// re-render the step later. Only environments that support re-rendering
	// populate it.
	SaveStateKey = "save_state"

	// ImageKeyPrefix marks observation keys holding image data. Image values
	// are pixel intensities in [0, 1] and are stored by the replay buffers
	// as raw bytes.
	ImageKeyPrefix = "image"
)

// IsImageKey reports whether an observation key holds image data.
func IsImageKey(key string) bool {
	return strings.HasPrefix(key, ImageKeyPrefix)
}

// Observation is a dictionary observation: each key maps to a flat vector.
type Observation map[string][]float64

// Clone returns a deep copy of the observation.
func (o Observation) Clone() Observation {
	out := make(Observation, len(o))
	for k, v := range o {
		c := make([]float64, len(v))
		copy(c, v)
		out[k] = c
	}
	return out
}

// GoalEnv is a goal-conditioned environment. Step actions are flat float
// vectors; discrete environments interpret index 0 as the action index.
type GoalEnv interface {
	// Reset starts a new episode and returns the first observation.
	Reset() (Observation, error)

	// Step applies an action and returns the next observation, the reward,
	// and whether the episode terminated.
	Step(action []float64) (Observation, float64, bool, error)

	// ObservationSpec describes the per-key layout of observations.
	ObservationSpec() map[string]Box

	// ActionSpec describes the action space.
	ActionSpec() Space

	// SampleGoals draws n fresh goals from the environment's goal
	// distribution. Each returned observation carries the goal keys only.
	SampleGoals(n int) []Observation

	// ComputeReward evaluates the reward an agent would have received had
	// the desired goal been the one given, against the achieved goal.
	ComputeReward(achieved, desired []float64) float64

	// Render returns a human-readable frame of the current state.
	Render() string

	// Close releases the environment's resources.
	Close() error
}

// BatchRewarder is an optional interface for environments with a batch-wise
// reward implementation. The relabeling buffer prefers it over per-sample
// ComputeReward calls when present.
type BatchRewarder interface {
	ComputeRewards(achieved, desired [][]float64) []float64
}
