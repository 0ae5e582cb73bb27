package policy

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/Schellenberg3/VMControl/internal/env"
)

// Weights holds the parameters of a trained linear policy as saved in a
// checkpoint file.
type Weights struct {
	W [][]float64 `json:"w"` // shape: [actionDim][obsDim]
	B []float64   `json:"b"` // shape: [actionDim]
}

// Validate checks the weight shapes against each other.
func (w Weights) Validate() error {
	if len(w.W) == 0 {
		return fmt.Errorf("weight matrix is empty")
	}
	if len(w.B) != len(w.W) {
		return fmt.Errorf("bias has %d components, weight matrix has %d rows", len(w.B), len(w.W))
	}
	cols := len(w.W[0])
	for i, row := range w.W {
		if len(row) != cols {
			return fmt.Errorf("weight row %d has %d columns, want %d", i, len(row), cols)
		}
	}
	return nil
}

// Linear is a deterministic trained policy: a tanh-squashed affine map from
// observation to action, rescaled into the action bounds.
type Linear struct {
	w      *mat.Dense
	b      *mat.VecDense
	bounds env.Box
}

// NewLinear builds a linear policy from checkpoint weights and the target
// action space.
func NewLinear(weights Weights, bounds env.Box) (*Linear, error) {
	if err := weights.Validate(); err != nil {
		return nil, fmt.Errorf("invalid policy weights: %w", err)
	}
	rows := len(weights.W)
	cols := len(weights.W[0])
	if rows != bounds.Size() {
		return nil, fmt.Errorf("policy outputs %d actions, action space has %d", rows, bounds.Size())
	}

	w := mat.NewDense(rows, cols, nil)
	for i, row := range weights.W {
		w.SetRow(i, row)
	}
	return &Linear{
		w:      w,
		b:      mat.NewVecDense(rows, append([]float64(nil), weights.B...)),
		bounds: bounds,
	}, nil
}

// SelectAction implements Policy.
func (p *Linear) SelectAction(observation []float64) ([]float64, error) {
	_, cols := p.w.Dims()
	if len(observation) != cols {
		return nil, fmt.Errorf("observation has %d components, policy expects %d", len(observation), cols)
	}

	var out mat.VecDense
	out.MulVec(p.w, mat.NewVecDense(len(observation), observation))
	out.AddVec(&out, p.b)

	action := make([]float64, out.Len())
	for i := range action {
		// tanh squashes to (-1, 1); rescale into the per-dimension bounds.
		unit := math.Tanh(out.AtVec(i))
		lo, hi := p.bounds.Low[i], p.bounds.High[i]
		action[i] = lo + (unit+1)/2*(hi-lo)
	}
	return action, nil
}
