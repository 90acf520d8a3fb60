package evo

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"formulaevo/internal/model"
)

func rankedFixture() []model.Individual {
	return []model.Individual{
		{Parameters: []float64{0}, Fitness: 0.9},
		{Parameters: []float64{1}, Fitness: 0.5},
		{Parameters: []float64{2}, Fitness: 0.1},
		{Parameters: []float64{3}, Fitness: 0},
	}
}

func TestTournamentSelectorPrefersFitter(t *testing.T) {
	ranked := rankedFixture()
	rng := rand.New(rand.NewSource(42))
	counts := map[float64]int{}
	for i := 0; i < 2000; i++ {
		parent, err := TournamentSelector{TournamentSize: 3}.PickParent(rng, ranked)
		require.NoError(t, err)
		counts[parent.Parameters[0]]++
	}
	assert.Greater(t, counts[0], counts[1])
	assert.Greater(t, counts[1], counts[2])
	assert.Greater(t, counts[2], counts[3])
}

func TestTournamentSelectorPoolSize(t *testing.T) {
	ranked := rankedFixture()
	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 200; i++ {
		parent, err := TournamentSelector{PoolSize: 2, TournamentSize: 1}.PickParent(rng, ranked)
		require.NoError(t, err)
		assert.Less(t, parent.Parameters[0], 2.0)
	}
}

func TestRouletteSelectorIsProportional(t *testing.T) {
	ranked := rankedFixture()
	rng := rand.New(rand.NewSource(3))
	counts := map[float64]int{}
	const draws = 15000
	for i := 0; i < draws; i++ {
		parent, err := RouletteSelector{}.PickParent(rng, ranked)
		require.NoError(t, err)
		counts[parent.Parameters[0]]++
	}
	assert.Zero(t, counts[3])
	assert.InDelta(t, 0.9/1.5, float64(counts[0])/draws, 0.03)
	assert.InDelta(t, 0.5/1.5, float64(counts[1])/draws, 0.03)
}

func TestRouletteSelectorAllZeroIsUniform(t *testing.T) {
	ranked := []model.Individual{{Parameters: []float64{0}}, {Parameters: []float64{1}}}
	rng := rand.New(rand.NewSource(1))
	seen := map[float64]bool{}
	for i := 0; i < 100; i++ {
		parent, err := RouletteSelector{}.PickParent(rng, ranked)
		require.NoError(t, err)
		seen[parent.Parameters[0]] = true
	}
	assert.Len(t, seen, 2)
}

func TestEliteSelectorStaysInTop(t *testing.T) {
	ranked := rankedFixture()
	rng := rand.New(rand.NewSource(5))
	for i := 0; i < 100; i++ {
		parent, err := EliteSelector{Count: 2}.PickParent(rng, ranked)
		require.NoError(t, err)
		assert.Less(t, parent.Parameters[0], 2.0)
	}
}

func TestSelectorsRejectBadInput(t *testing.T) {
	for _, s := range []Selector{EliteSelector{}, TournamentSelector{}, RouletteSelector{}} {
		_, err := s.PickParent(nil, rankedFixture())
		assert.Error(t, err, s.Name())
		_, err = s.PickParent(rand.New(rand.NewSource(1)), nil)
		assert.Error(t, err, s.Name())
	}
}
