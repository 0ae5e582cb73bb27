// Package replay implements goal-relabeling experience replay buffers for
// off-policy goal-conditioned training.
//
// All variants share the same storage model: flat fixed-capacity arrays
// indexed by a wrap-around write pointer. The size saturates at capacity and
// every slot in [0, size) is always valid to sample.
package replay

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/mat"
)

var (
	// ErrEmpty is returned when sampling from a buffer with no transitions.
	ErrEmpty = errors.New("replay buffer is empty")

	// ErrPathTooLong is returned when a path exceeds the buffer capacity.
	ErrPathTooLong = errors.New("path longer than buffer capacity")
)

// Batch is a sampled training batch. Rows across all fields are aligned.
type Batch struct {
	Observations     *mat.Dense
	Actions          *mat.Dense
	Rewards          []float64
	Terminals        []bool
	NextObservations *mat.Dense
	// ResampledGoals carries the goals after hindsight relabeling. Only the
	// sample-time relabeling buffer fills it.
	ResampledGoals *mat.Dense
	// Indices are the buffer slots the batch rows were drawn from.
	Indices []int
}

// Len is the number of rows in the batch.
func (b *Batch) Len() int { return len(b.Rewards) }

// GoalFractions splits a sampled batch between goal sources: the rollout's
// original goals, fresh environment goals, and hindsight future goals. The
// future fraction is the remainder.
type GoalFractions struct {
	Rollout float64
	Env     float64
}

// Validate enforces the fraction constraints.
func (f GoalFractions) Validate() error {
	if f.Rollout < 0 {
		return fmt.Errorf("rollout goal fraction must not be negative, got %g", f.Rollout)
	}
	if f.Env < 0 {
		return fmt.Errorf("env goal fraction must not be negative, got %g", f.Env)
	}
	if f.Rollout+f.Env > 1 {
		return fmt.Errorf("rollout and env goal fractions sum to %g, must not exceed 1", f.Rollout+f.Env)
	}
	return nil
}

// split divides a batch size into per-source counts. Future goals take the
// remainder after truncating the rollout and env shares.
func (f GoalFractions) split(batchSize int) (rollout, env, future int) {
	env = int(float64(batchSize) * f.Env)
	rollout = int(float64(batchSize) * f.Rollout)
	future = batchSize - env - rollout
	return rollout, env, future
}

// columnStore is one observation key's fixed-capacity row storage. Values
// flow in and out as float vectors; implementations choose the
// representation.
type columnStore interface {
	dim() int
	setRow(i int, v []float64) error
	// row returns a fresh copy of slot i.
	row(i int) []float64
}

// floatStore keeps rows as float64 in a dense matrix.
type floatStore struct {
	m *mat.Dense
}

func newFloatStore(rows, cols int) *floatStore {
	return &floatStore{m: mat.NewDense(rows, cols, nil)}
}

func (s *floatStore) dim() int {
	_, c := s.m.Dims()
	return c
}

func (s *floatStore) setRow(i int, v []float64) error {
	if len(v) != s.dim() {
		return fmt.Errorf("value has %d components, store expects %d", len(v), s.dim())
	}
	s.m.SetRow(i, v)
	return nil
}

func (s *floatStore) row(i int) []float64 {
	out := make([]float64, s.dim())
	copy(out, s.m.RawRowView(i))
	return out
}

// imageStore keeps rows as raw bytes: pixel intensities in [0, 1] are
// quantized to uint8 on the way in and normalized back on the way out.
type imageStore struct {
	rows [][]byte
	cols int
}

func newImageStore(rows, cols int) *imageStore {
	return &imageStore{rows: make([][]byte, rows), cols: cols}
}

func (s *imageStore) dim() int { return s.cols }

func (s *imageStore) setRow(i int, v []float64) error {
	if len(v) != s.cols {
		return fmt.Errorf("image has %d pixels, store expects %d", len(v), s.cols)
	}
	row := s.rows[i]
	if row == nil {
		row = make([]byte, s.cols)
		s.rows[i] = row
	}
	for j, p := range v {
		if p < 0 {
			p = 0
		} else if p > 1 {
			p = 1
		}
		row[j] = byte(p * 255)
	}
	return nil
}

func (s *imageStore) row(i int) []float64 {
	out := make([]float64, s.cols)
	for j, b := range s.rows[i] {
		out[j] = float64(b) / 255
	}
	return out
}

// gather copies the given store rows into a dense matrix, one per index.
func gather(s columnStore, indices []int) *mat.Dense {
	out := mat.NewDense(len(indices), s.dim(), nil)
	for r, i := range indices {
		out.SetRow(r, s.row(i))
	}
	return out
}

// oneHot encodes an action index into an n-wide indicator vector.
func oneHot(index, n int) ([]float64, error) {
	if index < 0 || index >= n {
		return nil, fmt.Errorf("action index %d out of range [0, %d)", index, n)
	}
	v := make([]float64, n)
	v[index] = 1
	return v, nil
}
