// Package config holds the configuration for the evaluation and demo
// drivers.
package config

import (
	"fmt"

	"github.com/Schellenberg3/VMControl/internal/checkpoint"
)

// Eval configures the policy evaluation harness.
type Eval struct {
	// Name selects the trained network to load.
	Name string `mapstructure:"name"`

	// NetworksDir is the checkpoint root directory.
	NetworksDir string `mapstructure:"networks_dir"`

	// Steps is the total number of evaluation steps.
	Steps int `mapstructure:"steps"`

	// EpisodeLen forces a reset every this many steps.
	EpisodeLen int `mapstructure:"episode_len"`

	// ImageSize is the square pixel size of image observations; zero
	// disables them.
	ImageSize int `mapstructure:"image_size"`

	// Depth switches the image observation to a depth map.
	Depth bool `mapstructure:"depth"`

	// Confirm gates each action on user confirmation.
	Confirm bool `mapstructure:"confirm"`

	// LogLevel sets the zerolog level.
	LogLevel string `mapstructure:"log_level"`
}

// DefaultEval returns the evaluation defaults.
func DefaultEval() *Eval {
	return &Eval{
		NetworksDir: checkpoint.DefaultRoot,
		Steps:       150,
		EpisodeLen:  50,
		ImageSize:   64,
		Confirm:     true,
		LogLevel:    "info",
	}
}

// Validate checks the configuration.
func (c *Eval) Validate() error {
	if c.Name == "" {
		return fmt.Errorf("name is required")
	}
	if c.Steps <= 0 {
		return fmt.Errorf("steps must be positive")
	}
	if c.EpisodeLen <= 0 {
		return fmt.Errorf("episode_len must be positive")
	}
	if c.ImageSize < 0 {
		return fmt.Errorf("image_size must not be negative")
	}
	return nil
}

// Demo configures the random-action demo driver.
type Demo struct {
	// Steps caps the episode length.
	Steps int `mapstructure:"steps"`

	// Seed seeds the action noise; zero draws a fresh seed.
	Seed int64 `mapstructure:"seed"`

	// LogLevel sets the zerolog level.
	LogLevel string `mapstructure:"log_level"`
}

// DefaultDemo returns the demo defaults.
func DefaultDemo() *Demo {
	return &Demo{
		Steps:    100,
		LogLevel: "info",
	}
}

// Validate checks the configuration.
func (c *Demo) Validate() error {
	if c.Steps <= 0 {
		return fmt.Errorf("steps must be positive")
	}
	return nil
}
