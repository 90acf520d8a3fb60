package evo

import (
	"fmt"
	"math/rand"

	"formulaevo/internal/model"
)

// Selector chooses a parent from a population ranked by fitness, best first.
type Selector interface {
	Name() string
	PickParent(rng *rand.Rand, ranked []model.Individual) (model.Individual, error)
}

// EliteSelector picks uniformly from the top Count individuals.
type EliteSelector struct {
	Count int
}

func (EliteSelector) Name() string {
	return "elite"
}

func (s EliteSelector) PickParent(rng *rand.Rand, ranked []model.Individual) (model.Individual, error) {
	if err := checkPick(rng, ranked); err != nil {
		return model.Individual{}, err
	}
	count := s.Count
	if count <= 0 || count > len(ranked) {
		count = len(ranked)
	}
	return ranked[rng.Intn(count)], nil
}

// TournamentSelector samples TournamentSize candidates with replacement from
// the top PoolSize individuals and returns the fittest.
type TournamentSelector struct {
	PoolSize       int
	TournamentSize int
}

func (TournamentSelector) Name() string {
	return "tournament"
}

func (s TournamentSelector) PickParent(rng *rand.Rand, ranked []model.Individual) (model.Individual, error) {
	if err := checkPick(rng, ranked); err != nil {
		return model.Individual{}, err
	}

	poolSize := s.PoolSize
	if poolSize <= 0 || poolSize > len(ranked) {
		poolSize = len(ranked)
	}

	tournamentSize := s.TournamentSize
	if tournamentSize <= 0 {
		tournamentSize = 3
	}

	best := ranked[rng.Intn(poolSize)]
	for i := 1; i < tournamentSize; i++ {
		candidate := ranked[rng.Intn(poolSize)]
		if candidate.Fitness > best.Fitness {
			best = candidate
		}
	}
	return best, nil
}

// RouletteSelector picks with probability proportional to fitness. Negative
// fitness counts as zero; an all-zero population is sampled uniformly.
type RouletteSelector struct{}

func (RouletteSelector) Name() string {
	return "roulette"
}

func (RouletteSelector) PickParent(rng *rand.Rand, ranked []model.Individual) (model.Individual, error) {
	if err := checkPick(rng, ranked); err != nil {
		return model.Individual{}, err
	}
	total := 0.0
	for _, ind := range ranked {
		if ind.Fitness > 0 {
			total += ind.Fitness
		}
	}
	spin := rng.Float64()
	if total <= 0 {
		return ranked[int(spin*float64(len(ranked)))%len(ranked)], nil
	}
	target := spin * total
	acc := 0.0
	for _, ind := range ranked {
		if ind.Fitness <= 0 {
			continue
		}
		acc += ind.Fitness
		if target < acc {
			return ind, nil
		}
	}
	for i := len(ranked) - 1; i >= 0; i-- {
		if ranked[i].Fitness > 0 {
			return ranked[i], nil
		}
	}
	return ranked[0], nil
}

func checkPick(rng *rand.Rand, ranked []model.Individual) error {
	if rng == nil {
		return fmt.Errorf("random source is required")
	}
	if len(ranked) == 0 {
		return fmt.Errorf("ranked population is empty")
	}
	return nil
}
