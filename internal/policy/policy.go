// Package policy provides action selection strategies for the demo and
// evaluation drivers.
package policy

// Policy selects actions from flat observation vectors.
type Policy interface {
	// SelectAction chooses an action given the current observation vector.
	SelectAction(observation []float64) ([]float64, error)
}
