package checkpoint

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Schellenberg3/VMControl/internal/policy"
)

func TestSaveLoadRoundTrip(t *testing.T) {
	root := t.TempDir()
	weights := policy.Weights{
		W: [][]float64{{0.1, -0.2, 0.3}, {0.4, 0.5, -0.6}},
		B: []float64{0.01, -0.02},
	}

	require.NoError(t, Save(root, "reach-v1", weights))

	loaded, err := Load(root, "reach-v1")
	require.NoError(t, err)
	assert.Equal(t, weights, loaded)
}

func TestLoadMissingNetwork(t *testing.T) {
	_, err := Load(t.TempDir(), "nope")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestLoadCorruptCheckpoint(t *testing.T) {
	root := t.TempDir()
	dir := filepath.Join(root, "bad")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, PolicyFileName), []byte("not json"), 0o644))

	_, err := Load(root, "bad")
	assert.Error(t, err)
}

func TestSaveRejectsInvalidWeights(t *testing.T) {
	err := Save(t.TempDir(), "empty", policy.Weights{})
	assert.Error(t, err)
}

func TestPathLayout(t *testing.T) {
	got := Path("networks", "my-net")
	assert.Equal(t, filepath.Join("networks", "my-net", "trained_policy.json"), got)
}
