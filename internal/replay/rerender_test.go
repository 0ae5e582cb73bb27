package replay

import (
	"context"
	"math/rand"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Schellenberg3/VMControl/internal/env"
	"github.com/Schellenberg3/VMControl/internal/policy"
	"github.com/Schellenberg3/VMControl/internal/rollout"
)

func collectArmPath(t *testing.T, arm env.GoalEnv, steps int, seed int64) *rollout.Path {
	t.Helper()
	random, err := policy.NewRandom(arm.ActionSpec(), rand.New(rand.NewSource(seed)))
	require.NoError(t, err)
	c := &rollout.Collector{Env: arm, Policy: random, MaxSteps: steps, Logger: zerolog.Nop()}
	path, err := c.Collect(context.Background())
	require.NoError(t, err)
	return path
}

func TestRerenderConfigValidate(t *testing.T) {
	assert.Error(t, RerenderConfig{MaxSize: 0, K: 4}.Validate())
	assert.Error(t, RerenderConfig{MaxSize: 10, K: 0}.Validate())
	assert.NoError(t, DefaultRerenderConfig(10).Validate())

	arm, err := env.NewReachArm(env.DefaultArmConfig(), rand.New(rand.NewSource(1)))
	require.NoError(t, err)
	_, err = NewRerender(DefaultRerenderConfig(10), arm, nil, nil, zerolog.Nop())
	assert.Error(t, err)
}

func TestRerenderAddPath(t *testing.T) {
	rng := rand.New(rand.NewSource(5))
	arm, err := env.NewReachArm(env.DefaultArmConfig(), rng)
	require.NoError(t, err)
	renderer, err := env.NewReachArm(env.DefaultArmConfig(), rng)
	require.NoError(t, err)

	path := collectArmPath(t, arm, 6, 5)
	require.GreaterOrEqual(t, path.Len(), 2)

	cfg := RerenderConfig{MaxSize: 1000, K: 3}
	b, err := NewRerender(cfg, arm, renderer, rand.New(rand.NewSource(9)), zerolog.Nop())
	require.NoError(t, err)

	require.NoError(t, b.AddPath(path))
	assert.Equal(t, path.Len()+(path.Len()-1)*cfg.K, b.Size())

	// The first slots hold the raw path observations.
	obsDim := arm.ObservationSpec()[env.ObservationKey].Size()
	assert.Equal(t, path.Observations[0][env.ObservationKey], b.obs.RawRowView(0)[:obsDim])
}

func TestRerenderTransformApplied(t *testing.T) {
	rng := rand.New(rand.NewSource(5))
	arm, err := env.NewReachArm(env.DefaultArmConfig(), rng)
	require.NoError(t, err)
	renderer, err := env.NewReachArm(env.DefaultArmConfig(), rng)
	require.NoError(t, err)

	path := collectArmPath(t, arm, 3, 5)
	require.GreaterOrEqual(t, path.Len(), 2)

	marker := 123.0
	cfg := RerenderConfig{
		MaxSize: 100,
		K:       1,
		Transform: func(obs []float64) []float64 {
			out := append([]float64(nil), obs...)
			out[0] = marker
			return out
		},
	}
	b, err := NewRerender(cfg, arm, renderer, rand.New(rand.NewSource(9)), zerolog.Nop())
	require.NoError(t, err)
	require.NoError(t, b.AddPath(path))

	// Re-rendered inserts follow the raw path inserts and carry the
	// transform's marker; raw inserts do not.
	assert.NotEqual(t, marker, b.obs.At(0, 0))
	assert.Equal(t, marker, b.obs.At(path.Len(), 0))
}

func TestRerenderStateReplayIsConsistent(t *testing.T) {
	rng := rand.New(rand.NewSource(11))
	arm, err := env.NewReachArm(env.DefaultArmConfig(), rng)
	require.NoError(t, err)

	obs, err := arm.Reset()
	require.NoError(t, err)
	saved := obs[env.SaveStateKey]

	// Perturb the arm, then restoring the snapshot must reproduce the
	// original observation.
	_, _, _, err = arm.Step(make([]float64, arm.ActionSpec().Size()))
	require.NoError(t, err)

	require.NoError(t, arm.RestoreState(saved))
	assert.Equal(t, obs[env.ObservationKey], arm.Observe()[env.ObservationKey])
}
