package evo

import (
	"math"

	"formulaevo/internal/model"
)

// Fitness reduces a validation report to the scalar the engine maximizes.
// Implementations must be deterministic and return finite values >= 0.
type Fitness interface {
	Name() string
	Score(report model.ValidationReport) float64
}

// CorrelationFitness is the mean, over non-skipped domains, of the summed
// absolute correlation of significant properties divided by the number of
// properties. A report with every domain skipped scores 0.
type CorrelationFitness struct{}

func (CorrelationFitness) Name() string {
	return "correlation"
}

func (CorrelationFitness) Score(report model.ValidationReport) float64 {
	active := report.ActiveDomains()
	if len(active) == 0 {
		return 0
	}
	total := 0.0
	for _, d := range active {
		sum := 0.0
		for _, c := range d.Significant {
			sum += math.Abs(c.Correlation)
		}
		total += sum / float64(len(model.Properties))
	}
	return total / float64(len(active))
}

// ConsistencyFitness is the mean cross-domain consistency over all
// properties, rewarding formulas whose signal agrees in sign across domains.
type ConsistencyFitness struct{}

func (ConsistencyFitness) Name() string {
	return "consistency"
}

func (ConsistencyFitness) Score(report model.ValidationReport) float64 {
	if len(report.ActiveDomains()) == 0 {
		return 0
	}
	total := 0.0
	for _, prop := range model.Properties {
		total += report.Consistency[prop]
	}
	return total / float64(len(model.Properties))
}
