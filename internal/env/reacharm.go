package env

import (
	"fmt"
	"math"
	"math/rand"
	"strings"
)

const (
	defaultJoints     = 6
	defaultLinkLength = 0.25
	tau               = 0.05 // integration step, seconds
	maxJointVelocity  = 1.0  // rad/s, action units
	velocityDamping   = 0.9
	goalThreshold     = 0.05
	missReward        = -1.0
	reachedReward     = 0.0
)

// ArmConfig configures the simulated reach arm.
type ArmConfig struct {
	// Joints is the number of revolute joints. The action has one velocity
	// command per joint plus a gripper command.
	Joints int

	// LinkLength is the length of each arm segment.
	LinkLength float64

	// ImageSize, when positive, adds a square grayscale image observation
	// under the "image_observation" key.
	ImageSize int

	// Depth renders the image observation as a depth map instead of an
	// intensity raster. Only meaningful when ImageSize is set.
	Depth bool
}

// DefaultArmConfig returns the configuration used by the demo and eval
// drivers when no overrides are given.
func DefaultArmConfig() ArmConfig {
	return ArmConfig{
		Joints:     defaultJoints,
		LinkLength: defaultLinkLength,
	}
}

// Validate checks the configuration.
func (c ArmConfig) Validate() error {
	if c.Joints <= 0 {
		return fmt.Errorf("joints must be positive, got %d", c.Joints)
	}
	if c.LinkLength <= 0 {
		return fmt.Errorf("link length must be positive, got %g", c.LinkLength)
	}
	if c.ImageSize < 0 {
		return fmt.Errorf("image size must not be negative, got %d", c.ImageSize)
	}
	return nil
}

// ReachArm is a planar kinematic arm driven by joint velocities plus a
// gripper command. The goal is a 2-D target for the end effector; the reward
// is sparse (0 at the goal, -1 elsewhere). It stands in for the robotics
// simulator the research scripts were written against.
type ReachArm struct {
	cfg ArmConfig
	rng *rand.Rand

	angles     []float64
	velocities []float64
	gripper    float64
	goal       []float64
}

// NewReachArm creates the arm. A nil rng seeds one from the global source.
func NewReachArm(cfg ArmConfig, rng *rand.Rand) (*ReachArm, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid arm config: %w", err)
	}
	if rng == nil {
		rng = rand.New(rand.NewSource(rand.Int63()))
	}
	a := &ReachArm{
		cfg:        cfg,
		rng:        rng,
		angles:     make([]float64, cfg.Joints),
		velocities: make([]float64, cfg.Joints),
		goal:       make([]float64, 2),
	}
	return a, nil
}

// Reset implements GoalEnv.
func (a *ReachArm) Reset() (Observation, error) {
	for i := range a.angles {
		a.angles[i] = a.rng.Float64()*0.2 - 0.1
		a.velocities[i] = 0
	}
	a.gripper = 1 // open
	copy(a.goal, a.sampleGoal())
	return a.observe(), nil
}

// Step implements GoalEnv. The action holds one velocity command per joint
// followed by the gripper command; commands are clamped to the action bounds.
func (a *ReachArm) Step(action []float64) (Observation, float64, bool, error) {
	want := a.cfg.Joints + 1
	if len(action) != want {
		return nil, 0, false, fmt.Errorf("action has %d components, want %d", len(action), want)
	}
	for i := 0; i < a.cfg.Joints; i++ {
		cmd := clamp(action[i], -maxJointVelocity, maxJointVelocity)
		a.velocities[i] = velocityDamping*a.velocities[i] + cmd
		a.angles[i] = wrapAngle(a.angles[i] + tau*a.velocities[i])
	}
	if action[a.cfg.Joints] >= 0 {
		a.gripper = 1
	} else {
		a.gripper = 0
	}

	obs := a.observe()
	reward := a.ComputeReward(obs[AchievedGoalKey], obs[DesiredGoalKey])
	done := reward >= reachedReward
	return obs, reward, done, nil
}

// ObservationSpec implements GoalEnv.
func (a *ReachArm) ObservationSpec() map[string]Box {
	reach := a.reach()
	spec := map[string]Box{
		ObservationKey:  UniformBox(2*a.cfg.Joints+3, -math.Max(reach, math.Pi), math.Max(reach, math.Pi)),
		DesiredGoalKey:  UniformBox(2, -reach, reach),
		AchievedGoalKey: UniformBox(2, -reach, reach),
		SaveStateKey:    UniformBox(2*a.cfg.Joints+1, -math.Pi, math.Pi),
	}
	if a.cfg.ImageSize > 0 {
		spec[a.imageKey()] = UniformBox(a.cfg.ImageSize*a.cfg.ImageSize, 0, 1)
	}
	return spec
}

// ActionSpec implements GoalEnv.
func (a *ReachArm) ActionSpec() Space {
	return UniformBox(a.cfg.Joints+1, -maxJointVelocity, maxJointVelocity)
}

// SampleGoals implements GoalEnv.
func (a *ReachArm) SampleGoals(n int) []Observation {
	goals := make([]Observation, n)
	for i := range goals {
		g := a.sampleGoal()
		goals[i] = Observation{DesiredGoalKey: g}
	}
	return goals
}

// ComputeReward implements GoalEnv: sparse reward on end-effector distance.
func (a *ReachArm) ComputeReward(achieved, desired []float64) float64 {
	if dist(achieved, desired) < goalThreshold {
		return reachedReward
	}
	return missReward
}

// ComputeRewards implements BatchRewarder.
func (a *ReachArm) ComputeRewards(achieved, desired [][]float64) []float64 {
	out := make([]float64, len(achieved))
	for i := range achieved {
		out[i] = a.ComputeReward(achieved[i], desired[i])
	}
	return out
}

// Render implements GoalEnv.
func (a *ReachArm) Render() string {
	ee := a.endEffector()
	var sb strings.Builder
	fmt.Fprintf(&sb, "ee=(%.3f, %.3f) goal=(%.3f, %.3f) dist=%.3f grip=%.0f",
		ee[0], ee[1], a.goal[0], a.goal[1], dist(ee, a.goal), a.gripper)
	return sb.String()
}

// Close implements GoalEnv.
func (a *ReachArm) Close() error { return nil }

// RestoreState loads a state snapshot previously taken from the SaveStateKey
// observation entry. Used by the re-rendering relabeling buffer.
func (a *ReachArm) RestoreState(state []float64) error {
	want := 2*a.cfg.Joints + 1
	if len(state) != want {
		return fmt.Errorf("state has %d components, want %d", len(state), want)
	}
	copy(a.angles, state[:a.cfg.Joints])
	copy(a.velocities, state[a.cfg.Joints:2*a.cfg.Joints])
	a.gripper = state[2*a.cfg.Joints]
	return nil
}

// SetGoal overrides the desired goal, e.g. when re-rendering a step against
// a substituted goal.
func (a *ReachArm) SetGoal(goal []float64) error {
	if len(goal) != 2 {
		return fmt.Errorf("goal has %d components, want 2", len(goal))
	}
	copy(a.goal, goal)
	return nil
}

// Observe returns the observation for the current state without stepping.
// Used when replaying restored states.
func (a *ReachArm) Observe() Observation {
	return a.observe()
}

func (a *ReachArm) observe() Observation {
	ee := a.endEffector()
	vec := make([]float64, 0, 2*a.cfg.Joints+3)
	vec = append(vec, a.angles...)
	vec = append(vec, a.velocities...)
	vec = append(vec, ee[0], ee[1], a.gripper)

	obs := Observation{
		ObservationKey:  vec,
		DesiredGoalKey:  append([]float64(nil), a.goal...),
		AchievedGoalKey: ee,
		SaveStateKey:    a.saveState(),
	}
	if a.cfg.ImageSize > 0 {
		obs[a.imageKey()] = a.renderImage()
	}
	return obs
}

func (a *ReachArm) saveState() []float64 {
	s := make([]float64, 0, 2*a.cfg.Joints+1)
	s = append(s, a.angles...)
	s = append(s, a.velocities...)
	s = append(s, a.gripper)
	return s
}

func (a *ReachArm) imageKey() string {
	if a.cfg.Depth {
		return ImageKeyPrefix + "_depth_observation"
	}
	return ImageKeyPrefix + "_observation"
}

// endEffector computes the tip position by accumulating joint angles along
// the kinematic chain.
func (a *ReachArm) endEffector() []float64 {
	var x, y, theta float64
	for _, ang := range a.angles {
		theta += ang
		x += a.cfg.LinkLength * math.Cos(theta)
		y += a.cfg.LinkLength * math.Sin(theta)
	}
	return []float64{x, y}
}

func (a *ReachArm) reach() float64 {
	return float64(a.cfg.Joints) * a.cfg.LinkLength
}

// sampleGoal draws a target within the reachable annulus, away from the
// degenerate fully-folded pose.
func (a *ReachArm) sampleGoal() []float64 {
	reach := a.reach()
	r := reach * (0.3 + 0.6*a.rng.Float64())
	phi := a.rng.Float64() * 2 * math.Pi
	return []float64{r * math.Cos(phi), r * math.Sin(phi)}
}

// renderImage rasterizes the arm and target into a flat size*size grayscale
// frame with intensities in [0, 1]. Depth mode encodes distance from the
// base plane instead of link intensity.
func (a *ReachArm) renderImage() []float64 {
	size := a.cfg.ImageSize
	img := make([]float64, size*size)
	reach := a.reach()
	scale := float64(size-1) / (2 * reach)

	plot := func(x, y, value float64) {
		px := int((x + reach) * scale)
		py := int((y + reach) * scale)
		if px < 0 || px >= size || py < 0 || py >= size {
			return
		}
		idx := py*size + px
		if value > img[idx] {
			img[idx] = value
		}
	}

	// Trace each link with fixed-step samples.
	var x, y, theta float64
	for j, ang := range a.angles {
		theta += ang
		dx := a.cfg.LinkLength * math.Cos(theta)
		dy := a.cfg.LinkLength * math.Sin(theta)
		const samples = 16
		for s := 0; s <= samples; s++ {
			t := float64(s) / samples
			value := 0.6
			if a.cfg.Depth {
				value = 1 - float64(j)/float64(len(a.angles)+1)
			}
			plot(x+t*dx, y+t*dy, value)
		}
		x += dx
		y += dy
	}
	plot(a.goal[0], a.goal[1], 1.0)
	return img
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func wrapAngle(theta float64) float64 {
	for theta > math.Pi {
		theta -= 2 * math.Pi
	}
	for theta < -math.Pi {
		theta += 2 * math.Pi
	}
	return theta
}

func dist(a, b []float64) float64 {
	var sum float64
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return math.Sqrt(sum)
}
