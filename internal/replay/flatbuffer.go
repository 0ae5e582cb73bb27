package replay

import (
	"fmt"
	"math/rand"

	"github.com/rs/zerolog"

	"gonum.org/v1/gonum/mat"
)

// flatBuffer is the circular transition store shared by the insert-time
// relabeling buffers: flat observations, actions, rewards, and terminals,
// written one slot at a time behind a wrap-around pointer.
type flatBuffer struct {
	maxSize int

	obs       *mat.Dense
	nextObs   *mat.Dense
	actions   *mat.Dense
	rewards   []float64
	terminals []bool

	top  int
	size int

	rng    *rand.Rand
	logger zerolog.Logger
}

func newFlatBuffer(maxSize, obsDim, actionDim int, rng *rand.Rand, logger zerolog.Logger) *flatBuffer {
	if rng == nil {
		rng = rand.New(rand.NewSource(rand.Int63()))
	}
	return &flatBuffer{
		maxSize:   maxSize,
		obs:       mat.NewDense(maxSize, obsDim, nil),
		nextObs:   mat.NewDense(maxSize, obsDim, nil),
		actions:   mat.NewDense(maxSize, actionDim, nil),
		rewards:   make([]float64, maxSize),
		terminals: make([]bool, maxSize),
		rng:       rng,
		logger:    logger,
	}
}

// Size is the number of valid transitions, saturating at capacity.
func (b *flatBuffer) Size() int { return b.size }

// addSample writes one transition at the current top slot and advances the
// pointer. A shape mismatch logs the offending sample before returning the
// error, mirroring the debug path the training scripts relied on.
func (b *flatBuffer) addSample(obs, action []float64, reward float64, terminal bool, nextObs []float64) error {
	if err := b.checkDims(obs, action, nextObs); err != nil {
		b.logger.Error().
			Err(err).
			Int("top", b.top).
			Floats64("observation", obs).
			Floats64("next_observation", nextObs).
			Bool("terminal", terminal).
			Msg("replay insert failed")
		return fmt.Errorf("add sample at slot %d: %w", b.top, err)
	}

	b.obs.SetRow(b.top, obs)
	b.nextObs.SetRow(b.top, nextObs)
	b.actions.SetRow(b.top, action)
	b.rewards[b.top] = reward
	b.terminals[b.top] = terminal
	b.advance()
	return nil
}

func (b *flatBuffer) checkDims(obs, action, nextObs []float64) error {
	_, obsDim := b.obs.Dims()
	_, actionDim := b.actions.Dims()
	if len(obs) != obsDim {
		return fmt.Errorf("observation has %d components, buffer expects %d", len(obs), obsDim)
	}
	if len(nextObs) != obsDim {
		return fmt.Errorf("next observation has %d components, buffer expects %d", len(nextObs), obsDim)
	}
	if len(action) != actionDim {
		return fmt.Errorf("action has %d components, buffer expects %d", len(action), actionDim)
	}
	return nil
}

func (b *flatBuffer) advance() {
	b.top = (b.top + 1) % b.maxSize
	if b.size < b.maxSize {
		b.size++
	}
}

func (b *flatBuffer) sampleIndices(batchSize int) []int {
	indices := make([]int, batchSize)
	for i := range indices {
		indices[i] = b.rng.Intn(b.size)
	}
	return indices
}

// RandomBatch samples transitions uniformly with replacement.
func (b *flatBuffer) RandomBatch(batchSize int) (*Batch, error) {
	if b.size == 0 {
		return nil, ErrEmpty
	}
	if batchSize <= 0 {
		return nil, fmt.Errorf("batch size must be positive, got %d", batchSize)
	}

	indices := b.sampleIndices(batchSize)
	batch := &Batch{
		Observations:     gatherDense(b.obs, indices),
		Actions:          gatherDense(b.actions, indices),
		Rewards:          make([]float64, batchSize),
		Terminals:        make([]bool, batchSize),
		NextObservations: gatherDense(b.nextObs, indices),
		Indices:          indices,
	}
	for r, i := range indices {
		batch.Rewards[r] = b.rewards[i]
		batch.Terminals[r] = b.terminals[i]
	}
	return batch, nil
}

func gatherDense(m *mat.Dense, indices []int) *mat.Dense {
	_, cols := m.Dims()
	out := mat.NewDense(len(indices), cols, nil)
	for r, i := range indices {
		out.SetRow(r, m.RawRowView(i))
	}
	return out
}
