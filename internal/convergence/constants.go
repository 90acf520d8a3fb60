package convergence

import (
	"math"
)

// Constant is a named reference value a consistent ratio may match.
type Constant struct {
	Name  string  `json:"name" yaml:"name"`
	Value float64 `json:"value" yaml:"value"`
}

// DefaultConstants is the reference library: a few irrational constants and
// the low-order ratios of consecutive Fibonacci numbers.
var DefaultConstants = []Constant{
	{Name: "golden ratio", Value: (1 + math.Sqrt(5)) / 2},
	{Name: "pi", Value: math.Pi},
	{Name: "e", Value: math.E},
	{Name: "square root of 2", Value: math.Sqrt2},
	{Name: "square root of 3", Value: math.Sqrt(3)},
	{Name: "fibonacci 2/1", Value: 2},
	{Name: "fibonacci 3/2", Value: 1.5},
	{Name: "fibonacci 5/3", Value: 5.0 / 3},
	{Name: "fibonacci 8/5", Value: 1.6},
	{Name: "fibonacci 13/8", Value: 13.0 / 8},
	{Name: "fibonacci 21/13", Value: 21.0 / 13},
}

// Match returns the constant closest to v in relative terms, provided that
// relative error is within tolerance.
func Match(v float64, constants []Constant, tolerance float64) (Constant, float64, bool) {
	var (
		best    Constant
		bestErr = math.Inf(1)
	)
	for _, c := range constants {
		if c.Value == 0 {
			continue
		}
		relErr := math.Abs(v-c.Value) / math.Abs(c.Value)
		if relErr < bestErr {
			best, bestErr = c, relErr
		}
	}
	if bestErr > tolerance {
		return Constant{}, 0, false
	}
	return best, bestErr, true
}
