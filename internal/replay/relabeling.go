package replay

import (
	"fmt"
	"math/rand"

	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/mat"

	"github.com/Schellenberg3/VMControl/internal/env"
	"github.com/Schellenberg3/VMControl/internal/rollout"
)

// RelabelingConfig configures the dict-observation relabeling buffer.
type RelabelingConfig struct {
	// MaxSize is the buffer capacity in transitions.
	MaxSize int

	// Fractions split each sampled batch between goal sources.
	Fractions GoalFractions

	// Observation dictionary keys. Zero values take the canonical names.
	ObservationKey  string
	DesiredGoalKey  string
	AchievedGoalKey string

	// InternalKeys are extra observation keys stored alongside the
	// canonical ones.
	InternalKeys []string

	// GoalKeys are the keys rewritten when a goal is relabeled. The desired
	// goal key is always included.
	GoalKeys []string
}

// DefaultRelabelingConfig returns the configuration matching pure hindsight
// off: every sampled goal is the rollout's original goal.
func DefaultRelabelingConfig(maxSize int) RelabelingConfig {
	return RelabelingConfig{
		MaxSize:   maxSize,
		Fractions: GoalFractions{Rollout: 1},
	}
}

func (c *RelabelingConfig) normalize() {
	if c.ObservationKey == "" {
		c.ObservationKey = env.ObservationKey
	}
	if c.DesiredGoalKey == "" {
		c.DesiredGoalKey = env.DesiredGoalKey
	}
	if c.AchievedGoalKey == "" {
		c.AchievedGoalKey = env.AchievedGoalKey
	}
	for _, k := range c.GoalKeys {
		if k == c.DesiredGoalKey {
			return
		}
	}
	c.GoalKeys = append(c.GoalKeys, c.DesiredGoalKey)
}

// Validate checks the configuration.
func (c RelabelingConfig) Validate() error {
	if c.MaxSize <= 0 {
		return fmt.Errorf("max size must be positive, got %d", c.MaxSize)
	}
	if err := c.Fractions.Validate(); err != nil {
		return fmt.Errorf("goal fractions: %w", err)
	}
	return nil
}

// RelabelingBuffer stores dictionary observations and relabels goals at
// sample time. Each slot keeps the indices of the observations recorded
// after it in the same path, so hindsight goals can be drawn from the
// trajectory's own future.
type RelabelingBuffer struct {
	cfg RelabelingConfig
	env env.GoalEnv

	obKeysToSave []string // observation, desired goal, achieved goal
	allKeys      []string // obKeysToSave plus internal keys

	obs     map[string]columnStore
	nextObs map[string]columnStore

	actions   *mat.Dense
	terminals []bool

	actionDim int
	discrete  bool

	top  int
	size int

	// futureIdx[i] lists the slots whose next observation was recorded
	// after slot i in the same path, wrap-aware.
	futureIdx [][]int

	rng    *rand.Rand
	logger zerolog.Logger
}

// NewRelabeling builds the buffer against the environment's observation and
// action specs. A nil rng seeds one from the global source.
func NewRelabeling(cfg RelabelingConfig, e env.GoalEnv, rng *rand.Rand, logger zerolog.Logger) (*RelabelingBuffer, error) {
	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid relabeling config: %w", err)
	}
	if rng == nil {
		rng = rand.New(rand.NewSource(rand.Int63()))
	}

	b := &RelabelingBuffer{
		cfg:          cfg,
		env:          e,
		obKeysToSave: []string{cfg.ObservationKey, cfg.DesiredGoalKey, cfg.AchievedGoalKey},
		terminals:    make([]bool, cfg.MaxSize),
		futureIdx:    make([][]int, cfg.MaxSize),
		rng:          rng,
		logger:       logger,
	}
	b.allKeys = append(append([]string(nil), b.obKeysToSave...), cfg.InternalKeys...)

	for _, gk := range cfg.GoalKeys {
		if !contains(b.obKeysToSave, gk) {
			return nil, fmt.Errorf("goal key %q is not one of the saved observation keys", gk)
		}
	}

	spec := e.ObservationSpec()
	b.obs = make(map[string]columnStore, len(b.allKeys))
	b.nextObs = make(map[string]columnStore, len(b.allKeys))
	for _, key := range b.allKeys {
		box, ok := spec[key]
		if !ok {
			return nil, fmt.Errorf("key not found in the observation space: %s", key)
		}
		b.obs[key] = newKeyStore(key, cfg.MaxSize, box.Size())
		b.nextObs[key] = newKeyStore(key, cfg.MaxSize, box.Size())
	}

	switch space := e.ActionSpec().(type) {
	case env.Discrete:
		b.discrete = true
		b.actionDim = space.N
	case env.Box:
		b.actionDim = space.Size()
	default:
		return nil, fmt.Errorf("unsupported action space type: %T", space)
	}
	b.actions = mat.NewDense(cfg.MaxSize, b.actionDim, nil)

	return b, nil
}

func newKeyStore(key string, rows, cols int) columnStore {
	if env.IsImageKey(key) {
		return newImageStore(rows, cols)
	}
	return newFloatStore(rows, cols)
}

// Size is the number of transitions available for sampling.
func (b *RelabelingBuffer) Size() int { return b.size }

// AddPath inserts a whole episode. Paths longer than the capacity are
// rejected; paths that run past the end of the store wrap around, and the
// future-index lists of the pre-wrap slots reach across the boundary.
func (b *RelabelingBuffer) AddPath(path *rollout.Path) error {
	pathLen := path.Len()
	if pathLen == 0 {
		return nil
	}
	if pathLen > b.cfg.MaxSize {
		return fmt.Errorf("path of %d steps into buffer of %d: %w", pathLen, b.cfg.MaxSize, ErrPathTooLong)
	}

	actions, err := b.encodeActions(path.Actions)
	if err != nil {
		return err
	}

	if b.top+pathLen >= b.cfg.MaxSize {
		numPreWrap := b.cfg.MaxSize - b.top
		numPostWrap := pathLen - numPreWrap

		for i := 0; i < numPreWrap; i++ {
			if err := b.writeStep(b.top+i, path, actions, i); err != nil {
				return err
			}
		}
		for i := 0; i < numPostWrap; i++ {
			if err := b.writeStep(i, path, actions, numPreWrap+i); err != nil {
				return err
			}
		}

		// Slots written before the wrap see the rest of the pre-wrap
		// segment and then the entire post-wrap segment.
		for i := b.top; i < b.cfg.MaxSize; i++ {
			future := make([]int, 0, b.cfg.MaxSize-i+numPostWrap)
			for j := i; j < b.cfg.MaxSize; j++ {
				future = append(future, j)
			}
			for j := 0; j < numPostWrap; j++ {
				future = append(future, j)
			}
			b.futureIdx[i] = future
		}
		for i := 0; i < numPostWrap; i++ {
			future := make([]int, 0, numPostWrap-i)
			for j := i; j < numPostWrap; j++ {
				future = append(future, j)
			}
			b.futureIdx[i] = future
		}
	} else {
		for i := 0; i < pathLen; i++ {
			if err := b.writeStep(b.top+i, path, actions, i); err != nil {
				return err
			}
		}
		for i := b.top; i < b.top+pathLen; i++ {
			future := make([]int, 0, b.top+pathLen-i)
			for j := i; j < b.top+pathLen; j++ {
				future = append(future, j)
			}
			b.futureIdx[i] = future
		}
	}

	b.top = (b.top + pathLen) % b.cfg.MaxSize
	b.size = min(b.size+pathLen, b.cfg.MaxSize)
	return nil
}

// writeStep copies path step `step` into buffer slot `slot`. A shape
// mismatch logs the sample before returning the error.
func (b *RelabelingBuffer) writeStep(slot int, path *rollout.Path, actions *mat.Dense, step int) error {
	for _, key := range b.allKeys {
		if err := b.obs[key].setRow(slot, path.Observations[step][key]); err != nil {
			b.logInsertFailure(slot, key, path, step, err)
			return fmt.Errorf("store observation %q at slot %d: %w", key, slot, err)
		}
		if err := b.nextObs[key].setRow(slot, path.NextObservations[step][key]); err != nil {
			b.logInsertFailure(slot, key, path, step, err)
			return fmt.Errorf("store next observation %q at slot %d: %w", key, slot, err)
		}
	}
	b.actions.SetRow(slot, actions.RawRowView(step))
	b.terminals[slot] = path.Terminals[step]
	return nil
}

func (b *RelabelingBuffer) logInsertFailure(slot int, key string, path *rollout.Path, step int, err error) {
	b.logger.Error().
		Err(err).
		Int("top", slot).
		Str("key", key).
		Str("episode_id", path.EpisodeID).
		Floats64("observation", path.Observations[step][key]).
		Floats64("next_observation", path.NextObservations[step][key]).
		Bool("terminal", path.Terminals[step]).
		Msg("replay insert failed")
}

// encodeActions flattens path actions into a matrix, one-hot encoding
// discrete action indices.
func (b *RelabelingBuffer) encodeActions(actions [][]float64) (*mat.Dense, error) {
	out := mat.NewDense(len(actions), b.actionDim, nil)
	for i, a := range actions {
		row := a
		if b.discrete && len(a) == 1 {
			enc, err := oneHot(int(a[0]), b.actionDim)
			if err != nil {
				return nil, fmt.Errorf("encode action %d: %w", i, err)
			}
			row = enc
		}
		if len(row) != b.actionDim {
			return nil, fmt.Errorf("action %d has %d components, buffer expects %d", i, len(row), b.actionDim)
		}
		out.SetRow(i, row)
	}
	return out, nil
}

// RandomBatch samples transitions uniformly and relabels goals: the first
// rollout share keeps original goals, the next share gets fresh environment
// goals, and the remainder gets future achieved goals from the same path.
// Rewards are recomputed against the relabeled goals.
func (b *RelabelingBuffer) RandomBatch(batchSize int) (*Batch, error) {
	if b.size == 0 {
		return nil, ErrEmpty
	}
	if batchSize <= 0 {
		return nil, fmt.Errorf("batch size must be positive, got %d", batchSize)
	}

	indices := make([]int, batchSize)
	for i := range indices {
		indices[i] = b.rng.Intn(b.size)
	}
	numRollout, numEnv, numFuture := b.cfg.Fractions.split(batchSize)

	newObs := make(map[string]*mat.Dense, len(b.obKeysToSave))
	newNextObs := make(map[string]*mat.Dense, len(b.obKeysToSave))
	for _, key := range b.obKeysToSave {
		newObs[key] = gather(b.obs[key], indices)
		newNextObs[key] = gather(b.nextObs[key], indices)
	}
	resampledGoals := gather(b.nextObs[b.cfg.DesiredGoalKey], indices)

	if numEnv > 0 {
		envGoals := b.env.SampleGoals(numEnv)
		for i, goal := range envGoals {
			row := numRollout + i
			resampledGoals.SetRow(row, goal[b.cfg.DesiredGoalKey])
			for _, goalKey := range b.cfg.GoalKeys {
				if v, ok := goal[goalKey]; ok {
					newObs[goalKey].SetRow(row, v)
					newNextObs[goalKey].SetRow(row, v)
				}
			}
		}
	}

	if numFuture > 0 {
		for i := 0; i < numFuture; i++ {
			row := batchSize - numFuture + i
			slot := indices[row]
			options := b.futureIdx[slot]
			futureSlot := options[b.rng.Intn(len(options))]
			resampledGoals.SetRow(row, b.nextObs[b.cfg.AchievedGoalKey].row(futureSlot))
			for _, goalKey := range b.cfg.GoalKeys {
				v := b.nextObs[goalKey].row(futureSlot)
				newObs[goalKey].SetRow(row, v)
				newNextObs[goalKey].SetRow(row, v)
			}
		}
	}

	setRows(newObs[b.cfg.DesiredGoalKey], resampledGoals)
	setRows(newNextObs[b.cfg.DesiredGoalKey], resampledGoals)

	rewards := b.computeRewards(batchSize, newNextObs, resampledGoals)

	batch := &Batch{
		Observations:     newObs[b.cfg.ObservationKey],
		Actions:          gatherDense(b.actions, indices),
		Rewards:          rewards,
		Terminals:        make([]bool, batchSize),
		NextObservations: newNextObs[b.cfg.ObservationKey],
		ResampledGoals:   resampledGoals,
		Indices:          indices,
	}
	for r, i := range indices {
		batch.Terminals[r] = b.terminals[i]
	}
	return batch, nil
}

// computeRewards re-evaluates rewards against the relabeled goals, using the
// environment's batch implementation when it has one.
func (b *RelabelingBuffer) computeRewards(batchSize int, newNextObs map[string]*mat.Dense, goals *mat.Dense) []float64 {
	achieved := matRows(newNextObs[b.cfg.AchievedGoalKey])
	desired := matRows(goals)
	if br, ok := b.env.(env.BatchRewarder); ok {
		return br.ComputeRewards(achieved, desired)
	}
	rewards := make([]float64, batchSize)
	for i := range rewards {
		rewards[i] = b.env.ComputeReward(achieved[i], desired[i])
	}
	return rewards
}

func setRows(dst, src *mat.Dense) {
	rows, _ := src.Dims()
	for i := 0; i < rows; i++ {
		dst.SetRow(i, src.RawRowView(i))
	}
}

func matRows(m *mat.Dense) [][]float64 {
	rows, _ := m.Dims()
	out := make([][]float64, rows)
	for i := range out {
		out[i] = m.RawRowView(i)
	}
	return out
}

func contains(keys []string, key string) bool {
	for _, k := range keys {
		if k == key {
			return true
		}
	}
	return false
}
