package replay

import (
	"math"
	"math/rand"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Schellenberg3/VMControl/internal/env"
	"github.com/Schellenberg3/VMControl/internal/rollout"
)

// stubEnv is a minimal goal-conditioned environment: observation dim 2,
// goal dim 1, continuous action dim 1. The reward is negative distance
// between achieved and desired goal.
type stubEnv struct {
	discrete bool
	envGoal  float64
}

func (s *stubEnv) Reset() (env.Observation, error) { return nil, nil }
func (s *stubEnv) Step(action []float64) (env.Observation, float64, bool, error) {
	return nil, 0, false, nil
}

func (s *stubEnv) ObservationSpec() map[string]env.Box {
	return map[string]env.Box{
		env.ObservationKey:  env.UniformBox(2, -10, 10),
		env.DesiredGoalKey:  env.UniformBox(1, -10, 10),
		env.AchievedGoalKey: env.UniformBox(1, -10, 10),
		"image_observation": env.UniformBox(4, 0, 1),
	}
}

func (s *stubEnv) ActionSpec() env.Space {
	if s.discrete {
		return env.Discrete{N: 3}
	}
	return env.UniformBox(1, -1, 1)
}

func (s *stubEnv) SampleGoals(n int) []env.Observation {
	goals := make([]env.Observation, n)
	for i := range goals {
		goals[i] = env.Observation{env.DesiredGoalKey: []float64{s.envGoal}}
	}
	return goals
}

func (s *stubEnv) ComputeReward(achieved, desired []float64) float64 {
	return -math.Abs(achieved[0] - desired[0])
}

func (s *stubEnv) Render() string { return "" }
func (s *stubEnv) Close() error   { return nil }

// makePath builds a path of the given length. Step i observes [i, i],
// achieves goal [i], desires goal [100] throughout, and the next
// observation achieves [i+1].
func makePath(length int, withImage bool) *rollout.Path {
	p := &rollout.Path{EpisodeID: "test-episode"}
	for i := 0; i < length; i++ {
		fi := float64(i)
		obs := env.Observation{
			env.ObservationKey:  []float64{fi, fi},
			env.DesiredGoalKey:  []float64{100},
			env.AchievedGoalKey: []float64{fi},
		}
		next := env.Observation{
			env.ObservationKey:  []float64{fi + 1, fi + 1},
			env.DesiredGoalKey:  []float64{100},
			env.AchievedGoalKey: []float64{fi + 1},
		}
		if withImage {
			obs["image_observation"] = []float64{0.1, 0.2, 0.3, 0.4}
			next["image_observation"] = []float64{0.5, 0.6, 0.7, 0.8}
		}
		p.Observations = append(p.Observations, obs)
		p.Actions = append(p.Actions, []float64{fi / 10})
		p.Rewards = append(p.Rewards, -1)
		p.Terminals = append(p.Terminals, i == length-1)
		p.NextObservations = append(p.NextObservations, next)
	}
	return p
}

func newTestBuffer(t *testing.T, cfg RelabelingConfig, e env.GoalEnv, seed int64) *RelabelingBuffer {
	t.Helper()
	b, err := NewRelabeling(cfg, e, rand.New(rand.NewSource(seed)), zerolog.Nop())
	require.NoError(t, err)
	return b
}

func TestGoalFractionsValidate(t *testing.T) {
	assert.NoError(t, GoalFractions{Rollout: 1}.Validate())
	assert.NoError(t, GoalFractions{Rollout: 0.5, Env: 0.25}.Validate())
	assert.Error(t, GoalFractions{Rollout: -0.1}.Validate())
	assert.Error(t, GoalFractions{Env: -0.1}.Validate())
	assert.Error(t, GoalFractions{Rollout: 0.8, Env: 0.3}.Validate())
}

func TestRelabelingConfigValidate(t *testing.T) {
	cfg := DefaultRelabelingConfig(0)
	_, err := NewRelabeling(cfg, &stubEnv{}, nil, zerolog.Nop())
	assert.Error(t, err)

	cfg = DefaultRelabelingConfig(10)
	cfg.GoalKeys = []string{"not_a_saved_key"}
	_, err = NewRelabeling(cfg, &stubEnv{}, nil, zerolog.Nop())
	assert.Error(t, err)

	cfg = DefaultRelabelingConfig(10)
	cfg.InternalKeys = []string{"missing_key"}
	_, err = NewRelabeling(cfg, &stubEnv{}, nil, zerolog.Nop())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing_key")
}

func TestRelabelingAddPath(t *testing.T) {
	b := newTestBuffer(t, DefaultRelabelingConfig(10), &stubEnv{}, 1)

	require.NoError(t, b.AddPath(makePath(4, false)))
	assert.Equal(t, 4, b.Size())
	assert.Equal(t, 4, b.top)

	// Every slot's future list covers the rest of the path.
	assert.Equal(t, []int{0, 1, 2, 3}, b.futureIdx[0])
	assert.Equal(t, []int{3}, b.futureIdx[3])

	require.NoError(t, b.AddPath(makePath(3, false)))
	assert.Equal(t, 7, b.Size())
	assert.Equal(t, []int{4, 5, 6}, b.futureIdx[4])
}

func TestRelabelingAddPathWraps(t *testing.T) {
	b := newTestBuffer(t, DefaultRelabelingConfig(10), &stubEnv{}, 1)

	require.NoError(t, b.AddPath(makePath(6, false)))
	require.NoError(t, b.AddPath(makePath(6, false)))

	// Second path wraps: slots 6..9 pre-wrap, slots 0..1 post-wrap.
	assert.Equal(t, 2, b.top)
	assert.Equal(t, 10, b.Size())

	assert.Equal(t, []int{6, 7, 8, 9, 0, 1}, b.futureIdx[6])
	assert.Equal(t, []int{9, 0, 1}, b.futureIdx[9])
	assert.Equal(t, []int{0, 1}, b.futureIdx[0])
	assert.Equal(t, []int{1}, b.futureIdx[1])

	// Post-wrap slots hold the tail of the second path.
	assert.Equal(t, []float64{4, 4}, b.obs[env.ObservationKey].row(0))
	assert.Equal(t, []float64{5, 5}, b.obs[env.ObservationKey].row(1))
}

func TestRelabelingRejectsPathLongerThanCapacity(t *testing.T) {
	b := newTestBuffer(t, DefaultRelabelingConfig(3), &stubEnv{}, 1)
	err := b.AddPath(makePath(4, false))
	require.ErrorIs(t, err, ErrPathTooLong)
}

func TestRelabelingRandomBatchEmpty(t *testing.T) {
	b := newTestBuffer(t, DefaultRelabelingConfig(10), &stubEnv{}, 1)
	_, err := b.RandomBatch(4)
	assert.ErrorIs(t, err, ErrEmpty)
}

func TestRelabelingRandomBatchRolloutGoalsOnly(t *testing.T) {
	b := newTestBuffer(t, DefaultRelabelingConfig(10), &stubEnv{}, 7)
	require.NoError(t, b.AddPath(makePath(5, false)))

	batch, err := b.RandomBatch(6)
	require.NoError(t, err)
	require.Equal(t, 6, batch.Len())

	// Every goal keeps the rollout's original desired goal.
	for i := 0; i < batch.Len(); i++ {
		assert.Equal(t, 100.0, batch.ResampledGoals.At(i, 0))
	}
}

func TestRelabelingRandomBatchFractionSplit(t *testing.T) {
	stub := &stubEnv{envGoal: 42}
	cfg := DefaultRelabelingConfig(20)
	cfg.Fractions = GoalFractions{Rollout: 0.5, Env: 0.25}
	b := newTestBuffer(t, cfg, stub, 3)
	require.NoError(t, b.AddPath(makePath(8, false)))

	batch, err := b.RandomBatch(8)
	require.NoError(t, err)

	// Rows 0..3 keep rollout goals, rows 4..5 get env goals, rows 6..7 get
	// future achieved goals from the same path.
	for i := 0; i < 4; i++ {
		assert.Equal(t, 100.0, batch.ResampledGoals.At(i, 0), "row %d", i)
	}
	for i := 4; i < 6; i++ {
		assert.Equal(t, 42.0, batch.ResampledGoals.At(i, 0), "row %d", i)
	}
	for i := 6; i < 8; i++ {
		slot := batch.Indices[i]
		goal := batch.ResampledGoals.At(i, 0)
		// The goal must be an achieved goal from the slot's own future.
		found := false
		for _, j := range b.futureIdx[slot] {
			if goal == b.nextObs[env.AchievedGoalKey].row(j)[0] {
				found = true
				break
			}
		}
		assert.True(t, found, "row %d goal %g not in slot %d future", i, goal, slot)
	}

	// Rewards are recomputed against the relabeled goals.
	for i := 0; i < batch.Len(); i++ {
		achieved := b.nextObs[env.AchievedGoalKey].row(batch.Indices[i])
		want := stub.ComputeReward(achieved, []float64{batch.ResampledGoals.At(i, 0)})
		assert.InDelta(t, want, batch.Rewards[i], 1e-12, "row %d", i)
	}
}

func TestRelabelingImageKeysStoredAsBytes(t *testing.T) {
	cfg := DefaultRelabelingConfig(10)
	cfg.InternalKeys = []string{"image_observation"}
	b := newTestBuffer(t, cfg, &stubEnv{}, 1)

	require.NoError(t, b.AddPath(makePath(2, true)))

	// Pixels survive the byte round trip to within quantization error.
	_, isImage := b.obs["image_observation"].(*imageStore)
	assert.True(t, isImage)
	got := b.obs["image_observation"].row(0)
	want := []float64{0.1, 0.2, 0.3, 0.4}
	for i := range want {
		assert.InDelta(t, want[i], got[i], 1.0/255, "pixel %d", i)
	}
}

func TestRelabelingOneHotActions(t *testing.T) {
	b := newTestBuffer(t, DefaultRelabelingConfig(10), &stubEnv{discrete: true}, 1)

	p := makePath(2, false)
	p.Actions = [][]float64{{2}, {0}}
	require.NoError(t, b.AddPath(p))

	assert.Equal(t, []float64{0, 0, 1}, b.actions.RawRowView(0))
	assert.Equal(t, []float64{1, 0, 0}, b.actions.RawRowView(1))

	p.Actions = [][]float64{{5}, {0}}
	assert.Error(t, b.AddPath(p))
}

func TestRelabelingInsertShapeMismatch(t *testing.T) {
	b := newTestBuffer(t, DefaultRelabelingConfig(10), &stubEnv{}, 1)

	p := makePath(2, false)
	p.Observations[1][env.ObservationKey] = []float64{1, 2, 3}
	err := b.AddPath(p)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "slot")
}
