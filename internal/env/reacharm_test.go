package env

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestArm(t *testing.T, cfg ArmConfig, seed int64) *ReachArm {
	t.Helper()
	arm, err := NewReachArm(cfg, rand.New(rand.NewSource(seed)))
	require.NoError(t, err)
	return arm
}

func TestArmConfigValidate(t *testing.T) {
	assert.NoError(t, DefaultArmConfig().Validate())
	assert.Error(t, ArmConfig{Joints: 0, LinkLength: 0.25}.Validate())
	assert.Error(t, ArmConfig{Joints: 6, LinkLength: 0}.Validate())
	assert.Error(t, ArmConfig{Joints: 6, LinkLength: 0.25, ImageSize: -1}.Validate())
}

func TestReachArmObservationMatchesSpec(t *testing.T) {
	cfg := DefaultArmConfig()
	cfg.ImageSize = 8
	arm := newTestArm(t, cfg, 1)

	obs, err := arm.Reset()
	require.NoError(t, err)

	spec := arm.ObservationSpec()
	require.Contains(t, spec, ObservationKey)
	for key, box := range spec {
		require.Contains(t, obs, key)
		assert.Len(t, obs[key], box.Size(), "key %s", key)
	}

	// Image pixels stay in [0, 1].
	for _, p := range obs["image_observation"] {
		assert.GreaterOrEqual(t, p, 0.0)
		assert.LessOrEqual(t, p, 1.0)
	}
}

func TestReachArmDepthImageKey(t *testing.T) {
	cfg := DefaultArmConfig()
	cfg.ImageSize = 8
	cfg.Depth = true
	arm := newTestArm(t, cfg, 1)

	obs, err := arm.Reset()
	require.NoError(t, err)
	assert.Contains(t, obs, "image_depth_observation")
	assert.NotContains(t, obs, "image_observation")
}

func TestReachArmStep(t *testing.T) {
	arm := newTestArm(t, DefaultArmConfig(), 2)
	_, err := arm.Reset()
	require.NoError(t, err)

	action := make([]float64, arm.ActionSpec().Size())
	action[0] = 0.5
	obs, reward, done, err := arm.Step(action)
	require.NoError(t, err)
	assert.Contains(t, obs, AchievedGoalKey)
	if done {
		assert.Equal(t, 0.0, reward)
	} else {
		assert.Equal(t, -1.0, reward)
	}

	_, _, _, err = arm.Step([]float64{1})
	assert.Error(t, err)
}

func TestReachArmComputeReward(t *testing.T) {
	arm := newTestArm(t, DefaultArmConfig(), 3)
	assert.Equal(t, 0.0, arm.ComputeReward([]float64{0.5, 0.5}, []float64{0.5, 0.5}))
	assert.Equal(t, -1.0, arm.ComputeReward([]float64{0, 0}, []float64{1, 1}))

	rewards := arm.ComputeRewards([][]float64{{0, 0}, {1, 1}}, [][]float64{{0, 0.01}, {0, 0}})
	assert.Equal(t, []float64{0, -1}, rewards)
}

func TestReachArmGoalsWithinReach(t *testing.T) {
	arm := newTestArm(t, DefaultArmConfig(), 4)
	reach := float64(defaultJoints) * defaultLinkLength
	for _, goal := range arm.SampleGoals(50) {
		g := goal[DesiredGoalKey]
		require.Len(t, g, 2)
		assert.LessOrEqual(t, math.Hypot(g[0], g[1]), reach)
	}
}

func TestReachArmRestoreState(t *testing.T) {
	arm := newTestArm(t, DefaultArmConfig(), 5)
	obs, err := arm.Reset()
	require.NoError(t, err)
	saved := obs[SaveStateKey]

	action := make([]float64, arm.ActionSpec().Size())
	for i := range action {
		action[i] = 0.3
	}
	_, _, _, err = arm.Step(action)
	require.NoError(t, err)

	require.NoError(t, arm.RestoreState(saved))
	assert.Equal(t, obs[ObservationKey], arm.Observe()[ObservationKey])

	assert.Error(t, arm.RestoreState([]float64{1, 2}))
}

func TestReachArmSetGoal(t *testing.T) {
	arm := newTestArm(t, DefaultArmConfig(), 6)
	_, err := arm.Reset()
	require.NoError(t, err)

	require.NoError(t, arm.SetGoal([]float64{0.1, 0.2}))
	assert.Equal(t, []float64{0.1, 0.2}, arm.Observe()[DesiredGoalKey])
	assert.Error(t, arm.SetGoal([]float64{1}))
}

func TestStepLimit(t *testing.T) {
	arm := newTestArm(t, DefaultArmConfig(), 7)
	limited := StepLimit(arm, 3)

	_, err := limited.Reset()
	require.NoError(t, err)

	action := make([]float64, arm.ActionSpec().Size())
	var done bool
	for i := 0; i < 3; i++ {
		_, _, done, err = limited.Step(action)
		require.NoError(t, err)
	}
	assert.True(t, done)

	// Reset clears the step counter.
	_, err = limited.Reset()
	require.NoError(t, err)
	_, _, done, err = limited.Step(action)
	require.NoError(t, err)
	assert.False(t, done)
}

func TestBoxSpace(t *testing.T) {
	b := UniformBox(3, -1, 1)
	assert.Equal(t, 3, b.Size())

	rng := rand.New(rand.NewSource(8))
	for i := 0; i < 20; i++ {
		assert.True(t, b.Contains(b.Sample(rng)))
	}
	assert.False(t, b.Contains([]float64{2, 0, 0}))
	assert.False(t, b.Contains([]float64{0, 0}))

	d := Discrete{N: 4}
	assert.Equal(t, 4, d.Size())
	idx := d.Sample(rng)
	assert.GreaterOrEqual(t, idx, 0)
	assert.Less(t, idx, 4)
}

func TestIsImageKey(t *testing.T) {
	assert.True(t, IsImageKey("image_observation"))
	assert.True(t, IsImageKey("image_depth_observation"))
	assert.False(t, IsImageKey(ObservationKey))
}
