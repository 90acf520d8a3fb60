package evo

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

var (
	ErrStrategyExists   = errors.New("strategy already registered")
	ErrStrategyNotFound = errors.New("strategy not found")
)

type strategyRegistry struct {
	mu        sync.RWMutex
	selectors map[string]func() Selector
	fitness   map[string]func() Fitness
}

var registry = newStrategyRegistry()

func newStrategyRegistry() *strategyRegistry {
	r := &strategyRegistry{
		selectors: make(map[string]func() Selector),
		fitness:   make(map[string]func() Fitness),
	}
	r.selectors["tournament"] = func() Selector { return TournamentSelector{TournamentSize: 3} }
	r.selectors["roulette"] = func() Selector { return RouletteSelector{} }
	r.selectors["elite"] = func() Selector { return EliteSelector{} }
	r.fitness["correlation"] = func() Fitness { return CorrelationFitness{} }
	r.fitness["consistency"] = func() Fitness { return ConsistencyFitness{} }
	return r
}

// RegisterSelector makes a selector constructible by name from run configs.
func RegisterSelector(name string, factory func() Selector) error {
	if name == "" {
		return errors.New("selector name is required")
	}
	if factory == nil {
		return errors.New("selector factory is required")
	}
	registry.mu.Lock()
	defer registry.mu.Unlock()
	if _, exists := registry.selectors[name]; exists {
		return fmt.Errorf("%w: selector %s", ErrStrategyExists, name)
	}
	registry.selectors[name] = factory
	return nil
}

// RegisterFitness makes a fitness function constructible by name.
func RegisterFitness(name string, factory func() Fitness) error {
	if name == "" {
		return errors.New("fitness name is required")
	}
	if factory == nil {
		return errors.New("fitness factory is required")
	}
	registry.mu.Lock()
	defer registry.mu.Unlock()
	if _, exists := registry.fitness[name]; exists {
		return fmt.Errorf("%w: fitness %s", ErrStrategyExists, name)
	}
	registry.fitness[name] = factory
	return nil
}

// ResolveSelector returns the named selector; an empty name selects the
// default tournament.
func ResolveSelector(name string) (Selector, error) {
	if name == "" {
		name = "tournament"
	}
	registry.mu.RLock()
	factory, ok := registry.selectors[name]
	registry.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: selector %s", ErrStrategyNotFound, name)
	}
	return factory(), nil
}

// ResolveFitness returns the named fitness; an empty name selects
// correlation.
func ResolveFitness(name string) (Fitness, error) {
	if name == "" {
		name = "correlation"
	}
	registry.mu.RLock()
	factory, ok := registry.fitness[name]
	registry.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: fitness %s", ErrStrategyNotFound, name)
	}
	return factory(), nil
}

func ListSelectors() []string {
	registry.mu.RLock()
	defer registry.mu.RUnlock()
	return sortedKeys(registry.selectors)
}

func ListFitness() []string {
	registry.mu.RLock()
	defer registry.mu.RUnlock()
	return sortedKeys(registry.fitness)
}

func sortedKeys[V any](m map[string]V) []string {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func resetRegistryForTests() {
	fresh := newStrategyRegistry()
	registry.mu.Lock()
	defer registry.mu.Unlock()
	registry.selectors = fresh.selectors
	registry.fitness = fresh.fitness
}
