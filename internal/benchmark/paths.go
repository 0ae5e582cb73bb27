// Package benchmark defines the on-disk layout of the manipulation
// benchmark's recorded demonstration datasets: per-camera image folders,
// episode and variation directory patterns, and the scene file carried with
// each task.
package benchmark

import (
	"fmt"
	"path/filepath"
)

// Camera folder names inside an episode directory.
const (
	LeftShoulderRGBFolder   = "left_shoulder_rgb"
	LeftShoulderDepthFolder = "left_shoulder_depth"
	LeftShoulderMaskFolder  = "left_shoulder_mask"

	RightShoulderRGBFolder   = "right_shoulder_rgb"
	RightShoulderDepthFolder = "right_shoulder_depth"
	RightShoulderMaskFolder  = "right_shoulder_mask"

	WristRGBFolder   = "wrist_rgb"
	WristDepthFolder = "wrist_depth"
	WristMaskFolder  = "wrist_mask"
)

const (
	// ImageFormat is the per-step image filename pattern.
	ImageFormat = "%d.png"

	// EpisodesFolder groups the recorded episodes of a variation.
	EpisodesFolder = "episodes"

	// EpisodeFolder is the per-episode directory pattern.
	EpisodeFolder = "episode%d"

	// VariationsFolder is the per-variation directory pattern.
	VariationsFolder = "variation%d"

	// LowDimFile holds the serialized low-dimensional observations of an
	// episode.
	LowDimFile = "low_dim_obs.pkl"

	// VariationDescriptionsFile holds the natural-language descriptions of
	// a variation.
	VariationDescriptionsFile = "variation_descriptions.pkl"

	// SceneFile is the simulator scene saved with each task.
	SceneFile = "task_design.ttt"
)

// DepthScale converts stored depth image values to meters.
const DepthScale = 1000.0

// CameraFolders lists every camera folder inside an episode directory.
var CameraFolders = []string{
	LeftShoulderRGBFolder,
	LeftShoulderDepthFolder,
	LeftShoulderMaskFolder,
	RightShoulderRGBFolder,
	RightShoulderDepthFolder,
	RightShoulderMaskFolder,
	WristRGBFolder,
	WristDepthFolder,
	WristMaskFolder,
}

// VariationDir returns the directory of a task variation.
func VariationDir(taskRoot string, variation int) string {
	return filepath.Join(taskRoot, fmt.Sprintf(VariationsFolder, variation))
}

// EpisodeDir returns the directory of a recorded episode within a variation.
func EpisodeDir(taskRoot string, variation, episode int) string {
	return filepath.Join(
		VariationDir(taskRoot, variation),
		EpisodesFolder,
		fmt.Sprintf(EpisodeFolder, episode),
	)
}

// ImagePath returns the image file for one step of one camera in an episode.
func ImagePath(episodeDir, cameraFolder string, step int) string {
	return filepath.Join(episodeDir, cameraFolder, fmt.Sprintf(ImageFormat, step))
}

// LowDimPath returns the low-dimensional observation file of an episode.
func LowDimPath(episodeDir string) string {
	return filepath.Join(episodeDir, LowDimFile)
}

// DescriptionsPath returns the variation description file of a variation.
func DescriptionsPath(taskRoot string, variation int) string {
	return filepath.Join(VariationDir(taskRoot, variation), VariationDescriptionsFile)
}
