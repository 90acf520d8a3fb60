package evo

import (
	"math/rand"

	"gonum.org/v1/gonum/stat"

	"formulaevo/internal/formula"
)

// Origins recorded on individuals.
const (
	OriginRandom    = "random"
	OriginElite     = "elite"
	OriginClone     = "clone"
	OriginCrossover = "crossover"
	OriginMutation  = "mutation"
	OriginBoth      = "crossover+mutation"
)

// randomGenes draws one uniform value per gene, in gene order.
func randomGenes(rng *rand.Rand, bounds []formula.ParamBound) []float64 {
	genes := make([]float64, len(bounds))
	for i, b := range bounds {
		genes[i] = b.Min + rng.Float64()*b.Span()
	}
	return genes
}

// crossover blends two parents gene by gene with an independent mixing
// ratio per gene when the rate gate passes, and clones a otherwise. A convex
// combination of in-bound genes stays in bounds.
func crossover(rng *rand.Rand, rate float64, a, b []float64) ([]float64, bool) {
	child := append([]float64(nil), a...)
	if rng.Float64() >= rate {
		return child, false
	}
	for i := range child {
		alpha := rng.Float64()
		child[i] = alpha*a[i] + (1-alpha)*b[i]
	}
	return child, true
}

// mutate adds Gaussian noise of scale*span to each gene whose gate passes and
// clips the result back into bounds.
func mutate(rng *rand.Rand, rate, scale float64, genes []float64, bounds []formula.ParamBound) bool {
	mutated := false
	for i, b := range bounds {
		if rng.Float64() >= rate {
			continue
		}
		genes[i] = b.Clip(genes[i] + rng.NormFloat64()*scale*b.Span())
		mutated = true
	}
	return mutated
}

func originOf(crossed, mutated bool) string {
	switch {
	case crossed && mutated:
		return OriginBoth
	case crossed:
		return OriginCrossover
	case mutated:
		return OriginMutation
	default:
		return OriginClone
	}
}

// diversity is the mean over genes of the population standard deviation of
// each gene divided by its span.
func diversity(genes [][]float64, bounds []formula.ParamBound) float64 {
	if len(genes) < 2 || len(bounds) == 0 {
		return 0
	}
	column := make([]float64, len(genes))
	total := 0.0
	for i, b := range bounds {
		if b.Span() <= 0 {
			continue
		}
		for j, g := range genes {
			column[j] = g[i]
		}
		_, std := stat.PopMeanStdDev(column, nil)
		total += std / b.Span()
	}
	return total / float64(len(bounds))
}
