// Package checkpoint stores trained policy weights on disk. Checkpoints live
// under <root>/<name>/trained_policy.json, one directory per named network.
package checkpoint

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/Schellenberg3/VMControl/internal/policy"
)

// PolicyFileName is the weight file stored inside each network directory.
const PolicyFileName = "trained_policy.json"

// DefaultRoot is the directory holding named networks, relative to the
// working directory.
const DefaultRoot = "networks"

// ErrNotFound is returned when no checkpoint exists for the given name.
var ErrNotFound = errors.New("checkpoint not found")

// Path returns the weight file location for a named network.
func Path(root, name string) string {
	return filepath.Join(root, name, PolicyFileName)
}

// Save writes policy weights for the named network, creating the directory
// as needed.
func Save(root, name string, weights policy.Weights) error {
	if err := weights.Validate(); err != nil {
		return fmt.Errorf("refusing to save invalid weights: %w", err)
	}
	dir := filepath.Join(root, name)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create checkpoint dir: %w", err)
	}
	data, err := json.MarshalIndent(weights, "", "  ")
	if err != nil {
		return fmt.Errorf("encode weights: %w", err)
	}
	if err := os.WriteFile(Path(root, name), data, 0o644); err != nil {
		return fmt.Errorf("write checkpoint: %w", err)
	}
	return nil
}

// Load reads policy weights for the named network.
func Load(root, name string) (policy.Weights, error) {
	data, err := os.ReadFile(Path(root, name))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return policy.Weights{}, fmt.Errorf("network %q under %s: %w", name, root, ErrNotFound)
		}
		return policy.Weights{}, fmt.Errorf("read checkpoint: %w", err)
	}
	var weights policy.Weights
	if err := json.Unmarshal(data, &weights); err != nil {
		return policy.Weights{}, fmt.Errorf("decode checkpoint %s: %w", Path(root, name), err)
	}
	if err := weights.Validate(); err != nil {
		return policy.Weights{}, fmt.Errorf("checkpoint %s: %w", Path(root, name), err)
	}
	return weights, nil
}
