package entities

import "math/big"

// StepPrediction is the predicted outcome of one simulated step.
type StepPrediction struct {
	Venue     string    `json:"venue"`
	TokenIn   Token     `json:"tokenIn"`
	TokenOut  Token     `json:"tokenOut"`
	Direction Direction `json:"direction"`
	AmountIn  *big.Int  `json:"amountIn"`
	AmountOut *big.Int  `json:"amountOut"`
	// Exact is false when the venue had no read-only preview and the local
	// curve estimate was used instead.
	Exact bool `json:"exact"`
	// BelowMinimum is set when the prediction is under the step's minAmountOut.
	BelowMinimum bool `json:"belowMinimum"`
}

// SimulationResult is produced once per simulation and never mutated.
// It is void once the chain advances past BlockNumber.
type SimulationResult struct {
	RouteID     string           `json:"routeId"`
	BlockNumber uint64           `json:"blockNumber"`
	Steps       []StepPrediction `json:"steps"`
	AmountIn    *big.Int         `json:"amountIn"`
	AmountOut   *big.Int         `json:"amountOut"`
}

// Exact reports whether every step came from a read-only venue preview.
func (r *SimulationResult) Exact() bool {
	for _, s := range r.Steps {
		if !s.Exact {
			return false
		}
	}
	return true
}

// ApproximateSteps returns the indexes of steps that used a local estimate.
func (r *SimulationResult) ApproximateSteps() []int {
	var idx []int
	for i, s := range r.Steps {
		if !s.Exact {
			idx = append(idx, i)
		}
	}
	return idx
}
