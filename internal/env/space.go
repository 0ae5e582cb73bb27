package env

import "math/rand"

// Space describes the layout of an action or observation component.
type Space interface {
	// Size is the flat dimension of points in the space. For discrete
	// spaces this is the number of choices, matching the width of a
	// one-hot encoding.
	Size() int
}

// Box is a bounded continuous space with per-dimension bounds.
type Box struct {
	Low  []float64
	High []float64
}

// Size implements Space.
func (b Box) Size() int { return len(b.Low) }

// Sample draws a uniform point from the box.
func (b Box) Sample(rng *rand.Rand) []float64 {
	v := make([]float64, len(b.Low))
	for i := range v {
		v[i] = b.Low[i] + rng.Float64()*(b.High[i]-b.Low[i])
	}
	return v
}

// Contains reports whether v lies within the box bounds.
func (b Box) Contains(v []float64) bool {
	if len(v) != len(b.Low) {
		return false
	}
	for i := range v {
		if v[i] < b.Low[i] || v[i] > b.High[i] {
			return false
		}
	}
	return true
}

// UniformBox builds a box with the same bounds in every dimension.
func UniformBox(dim int, low, high float64) Box {
	b := Box{Low: make([]float64, dim), High: make([]float64, dim)}
	for i := 0; i < dim; i++ {
		b.Low[i] = low
		b.High[i] = high
	}
	return b
}

// Discrete is a finite choice space with actions 0..N-1.
type Discrete struct {
	N int
}

// Size implements Space. It equals the width of a one-hot encoding.
func (d Discrete) Size() int { return d.N }

// Sample draws a uniform action index.
func (d Discrete) Sample(rng *rand.Rand) int { return rng.Intn(d.N) }
