package stats

import (
	"math"

	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"
)

// Correlation is a Pearson coefficient with its two-sided p-value.
type Correlation struct {
	R float64
	P float64
	N int
}

// Pearson correlates x and y. Degenerate inputs (fewer than three pairs,
// mismatched lengths or a constant column) yield r=0, p=1.
func Pearson(x, y []float64) Correlation {
	n := len(x)
	if n != len(y) || n < 3 {
		return Correlation{R: 0, P: 1, N: n}
	}
	if constant(x) || constant(y) {
		return Correlation{R: 0, P: 1, N: n}
	}
	r := stat.Correlation(x, y, nil)
	if math.IsNaN(r) {
		return Correlation{R: 0, P: 1, N: n}
	}
	r = math.Max(-1, math.Min(1, r))
	return Correlation{R: r, P: PearsonPValue(r, n), N: n}
}

// PearsonPValue returns the two-sided p-value of r over n samples using the
// Student's t distribution with n-2 degrees of freedom.
func PearsonPValue(r float64, n int) float64 {
	if n < 3 {
		return 1
	}
	if math.Abs(r) >= 1 {
		return 0
	}
	df := float64(n - 2)
	t := r * math.Sqrt(df/(1-r*r))
	dist := distuv.StudentsT{Mu: 0, Sigma: 1, Nu: df}
	p := 2 * dist.Survival(math.Abs(t))
	return math.Max(0, math.Min(1, p))
}

// MeanCV returns the mean, sample standard deviation and coefficient of
// variation (std/|mean|). ok is false when the CV is undefined.
func MeanCV(values []float64) (mean, std, cv float64, ok bool) {
	if len(values) == 0 {
		return 0, 0, 0, false
	}
	if len(values) == 1 {
		mean = values[0]
	} else {
		mean, std = stat.MeanStdDev(values, nil)
	}
	if mean == 0 || math.IsNaN(mean) || math.IsNaN(std) {
		return mean, std, 0, false
	}
	return mean, std, std / math.Abs(mean), true
}

// Mean is the arithmetic mean; 0 for an empty slice.
func Mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	return stat.Mean(values, nil)
}

func constant(values []float64) bool {
	for _, v := range values[1:] {
		if v != values[0] {
			return false
		}
	}
	return true
}
