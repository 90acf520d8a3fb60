package evo

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"math/rand"
	"runtime"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"formulaevo/internal/formula"
	"formulaevo/internal/metrics"
	"formulaevo/internal/model"
)

// Stop reasons recorded on a history.
const (
	StopConverged   = "converged"
	StopGenerations = "generations"
	StopTimeout     = "timeout"
	StopCancelled   = "cancelled"
)

const (
	DefaultCrossoverRate      = 0.9
	DefaultMutationRate       = 0.1
	DefaultMutationScale      = 0.1
	DefaultConvergenceEpsilon = 1e-4
	DefaultConvergenceWindow  = 5
)

// Disabled switches off crossover, mutation or the mutation step when used
// as the rate or scale. Zero selects the default instead.
const Disabled = -1.0

// Evaluator produces the validation report a fitness is computed from.
type Evaluator interface {
	Validate(ctx context.Context, formulaType model.FormulaType, params []float64, domains []string, sampleLimit int) (model.ValidationReport, error)
}

// Config describes one evolution run. Zero values select the defaults.
type Config struct {
	RunID          string
	FormulaType    model.FormulaType
	Domains        []string
	PopulationSize int
	Generations    int
	SampleLimit    int
	Seed           int64
	// MaxDuration bounds wall time, checked once per generation. Zero means
	// no limit.
	MaxDuration time.Duration

	EliteCount    int
	Workers       int
	Selector      Selector
	Fitness       Fitness
	// CrossoverRate and MutationRate are per-child probabilities in [0, 1].
	// Zero selects the default and Disabled forces 0.
	CrossoverRate float64
	MutationRate  float64
	// MutationScale is the Gaussian sigma as a fraction of each gene's span.
	MutationScale float64

	// The run converges when the best fitness improved by less than
	// ConvergenceEpsilon over the last ConvergenceWindow generations.
	ConvergenceEpsilon float64
	ConvergenceWindow  int
}

type Options struct {
	Logger  *slog.Logger
	Metrics *metrics.Metrics
	Clock   func() time.Time
}

// Engine runs seeded genetic searches over formula parameter vectors.
type Engine struct {
	evaluator Evaluator
	logger    *slog.Logger
	metrics   *metrics.Metrics
	clock     func() time.Time
}

func NewEngine(evaluator Evaluator, opts Options) (*Engine, error) {
	if evaluator == nil {
		return nil, fmt.Errorf("evaluator is required")
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	return &Engine{
		evaluator: evaluator,
		logger:    opts.Logger,
		metrics:   opts.Metrics,
		clock:     opts.Clock,
	}, nil
}

func (c Config) withDefaults() (Config, error) {
	if _, err := formula.Bounds(c.FormulaType); err != nil {
		return c, err
	}
	if len(c.Domains) == 0 {
		return c, formula.Invalid("domains", "at least one domain id is required")
	}
	if c.PopulationSize < 2 {
		return c, formula.Invalid("population_size", "must be >= 2, got %d", c.PopulationSize)
	}
	if c.Generations <= 0 {
		return c, formula.Invalid("n_generations", "must be > 0, got %d", c.Generations)
	}
	if c.SampleLimit <= 0 {
		return c, formula.Invalid("sample_limit", "must be > 0, got %d", c.SampleLimit)
	}
	if c.MaxDuration < 0 {
		return c, formula.Invalid("max_duration", "must be >= 0")
	}
	if c.EliteCount == 0 {
		c.EliteCount = max(1, c.PopulationSize/10)
	}
	if c.EliteCount < 1 || c.EliteCount >= c.PopulationSize {
		return c, formula.Invalid("elite_count", "must be in [1, population size)")
	}
	if c.Workers <= 0 {
		c.Workers = min(c.PopulationSize, runtime.NumCPU())
	}
	if c.Selector == nil {
		c.Selector = TournamentSelector{TournamentSize: 3}
	}
	if c.Fitness == nil {
		c.Fitness = CorrelationFitness{}
	}
	c.CrossoverRate = rateOrDefault(c.CrossoverRate, DefaultCrossoverRate)
	c.MutationRate = rateOrDefault(c.MutationRate, DefaultMutationRate)
	c.MutationScale = rateOrDefault(c.MutationScale, DefaultMutationScale)
	if c.CrossoverRate < 0 || c.CrossoverRate > 1 || c.MutationRate < 0 || c.MutationRate > 1 {
		return c, formula.Invalid("rates", "crossover and mutation rates must be in [0, 1]")
	}
	if c.MutationScale < 0 {
		return c, formula.Invalid("mutation_scale", "must be >= 0")
	}
	if c.ConvergenceEpsilon == 0 {
		c.ConvergenceEpsilon = DefaultConvergenceEpsilon
	}
	if c.ConvergenceWindow == 0 {
		c.ConvergenceWindow = DefaultConvergenceWindow
	}
	if c.ConvergenceEpsilon < 0 || c.ConvergenceWindow < 1 {
		return c, formula.Invalid("convergence", "epsilon must be >= 0 and window >= 1")
	}
	c.Domains = append([]string(nil), c.Domains...)
	return c, nil
}

func rateOrDefault(v, def float64) float64 {
	switch v {
	case 0:
		return def
	case Disabled:
		return 0
	}
	return v
}

// Evolve searches the parameter space of cfg.FormulaType. Cancellation and
// the duration limit are honored at generation boundaries only; the history
// recorded so far is returned with a nil error in both cases. Only an invalid
// configuration yields an error.
func (e *Engine) Evolve(ctx context.Context, cfg Config) (model.EvolutionHistory, error) {
	cfg, err := cfg.withDefaults()
	if err != nil {
		return model.EvolutionHistory{}, err
	}
	bounds, _ := formula.Bounds(cfg.FormulaType)

	history := model.EvolutionHistory{
		RunID:       cfg.RunID,
		FormulaType: cfg.FormulaType,
		Domains:     cfg.Domains,
		SampleLimit: cfg.SampleLimit,
		Seed:        cfg.Seed,
		Generations: make([]model.Generation, 0, cfg.Generations),
	}
	logger := e.logger.With(
		slog.String("run_id", cfg.RunID),
		slog.String("formula_type", string(cfg.FormulaType)),
	)
	started := e.clock()
	if ctx.Err() != nil {
		return e.finish(logger, history, StopCancelled), nil
	}

	// In-flight evaluations always finish so a generation is never partial.
	evalCtx := context.WithoutCancel(ctx)
	rng := rand.New(rand.NewSource(cfg.Seed))

	population := make([]model.Individual, cfg.PopulationSize)
	for i := range population {
		population[i] = model.Individual{
			Parameters: randomGenes(rng, bounds),
			Origin:     OriginRandom,
		}
	}
	failures := e.evaluate(evalCtx, logger, cfg, population, 0, 0)

	for gen := 0; ; gen++ {
		ranked := rank(population)
		snapshot := summarize(gen, ranked, bounds, failures)
		history.Generations = append(history.Generations, snapshot)
		e.metrics.ObserveGeneration(string(cfg.FormulaType), snapshot.Best.Fitness)
		logger.Debug("generation complete",
			slog.Int("generation", gen),
			slog.Float64("best_fitness", snapshot.Best.Fitness),
			slog.Float64("mean_fitness", snapshot.MeanFitness),
			slog.Float64("diversity", snapshot.Diversity),
			slog.Int("failures", failures),
		)

		switch {
		case converged(history.Generations, cfg.ConvergenceWindow, cfg.ConvergenceEpsilon):
			return e.finish(logger, history, StopConverged), nil
		case len(history.Generations) >= cfg.Generations:
			return e.finish(logger, history, StopGenerations), nil
		case cfg.MaxDuration > 0 && e.clock().Sub(started) >= cfg.MaxDuration:
			return e.finish(logger, history, StopTimeout), nil
		case ctx.Err() != nil:
			return e.finish(logger, history, StopCancelled), nil
		}

		next, err := e.breed(rng, cfg, ranked, bounds, gen+1)
		if err != nil {
			return model.EvolutionHistory{}, err
		}
		failures = e.evaluate(evalCtx, logger, cfg, next, cfg.EliteCount, gen+1)
		population = next
	}
}

// breed keeps the elites with their fitness and fills the rest of the next
// generation with offspring. The RNG is consumed in a fixed order per child:
// parent A, parent B, crossover gate, mixing ratios, mutation gates and draws.
func (e *Engine) breed(rng *rand.Rand, cfg Config, ranked []model.Individual, bounds []formula.ParamBound, generation int) ([]model.Individual, error) {
	next := make([]model.Individual, 0, cfg.PopulationSize)
	for i := 0; i < cfg.EliteCount; i++ {
		elite := ranked[i].Clone()
		elite.Origin = OriginElite
		next = append(next, elite)
	}
	for len(next) < cfg.PopulationSize {
		a, err := cfg.Selector.PickParent(rng, ranked)
		if err != nil {
			return nil, fmt.Errorf("select parent: %w", err)
		}
		b, err := cfg.Selector.PickParent(rng, ranked)
		if err != nil {
			return nil, fmt.Errorf("select parent: %w", err)
		}
		genes, crossed := crossover(rng, cfg.CrossoverRate, a.Parameters, b.Parameters)
		mutated := mutate(rng, cfg.MutationRate, cfg.MutationScale, genes, bounds)
		next = append(next, model.Individual{
			Parameters:     genes,
			GenerationBorn: generation,
			Origin:         originOf(crossed, mutated),
		})
	}
	return next, nil
}

// evaluate scores population[from:] in place on a bounded worker pool and
// returns the number of individuals whose evaluation failed.
func (e *Engine) evaluate(ctx context.Context, logger *slog.Logger, cfg Config, population []model.Individual, from, generation int) int {
	failed := make([]bool, len(population))
	g := new(errgroup.Group)
	g.SetLimit(cfg.Workers)
	for i := from; i < len(population); i++ {
		i := i
		g.Go(func() error {
			fitness, err := e.score(ctx, cfg, population[i].Parameters)
			if err != nil {
				logger.Warn("individual evaluation failed",
					slog.Int("generation", generation),
					slog.Int("index", i),
					slog.String("parameters", formula.Describe(cfg.FormulaType, population[i].Parameters)),
					slog.String("error", err.Error()),
				)
				fitness = 0
				failed[i] = true
			}
			population[i].Fitness = fitness
			e.metrics.ObserveEvaluation(string(cfg.FormulaType), err != nil)
			return nil
		})
	}
	_ = g.Wait()

	count := 0
	for _, f := range failed {
		if f {
			count++
		}
	}
	return count
}

func (e *Engine) score(ctx context.Context, cfg Config, params []float64) (fitness float64, err error) {
	defer func() {
		if r := recover(); r != nil {
			fitness, err = 0, fmt.Errorf("evaluation panic: %v", r)
		}
	}()
	report, err := e.evaluator.Validate(ctx, cfg.FormulaType, params, cfg.Domains, cfg.SampleLimit)
	if err != nil {
		return 0, err
	}
	fitness = cfg.Fitness.Score(report)
	if math.IsNaN(fitness) || math.IsInf(fitness, 0) {
		return 0, fmt.Errorf("%s fitness is not finite", cfg.Fitness.Name())
	}
	return fitness, nil
}

func (e *Engine) finish(logger *slog.Logger, history model.EvolutionHistory, reason string) model.EvolutionHistory {
	history.StopReason = reason
	history.Converged = reason == StopConverged
	history.TimedOut = reason == StopTimeout
	history.Cancelled = reason == StopCancelled
	e.metrics.ObserveRun(string(history.FormulaType), reason)

	attrs := []any{
		slog.String("stop_reason", reason),
		slog.Int("generations", len(history.Generations)),
	}
	if best, ok := history.Best(); ok {
		attrs = append(attrs, slog.Float64("best_fitness", best.Fitness))
	}
	logger.Info("evolution finished", attrs...)
	return history
}

// rank returns a copy ordered by fitness, best first. Ties keep their
// population order.
func rank(population []model.Individual) []model.Individual {
	ranked := make([]model.Individual, len(population))
	for i, ind := range population {
		ranked[i] = ind.Clone()
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Fitness > ranked[j].Fitness
	})
	return ranked
}

func summarize(index int, ranked []model.Individual, bounds []formula.ParamBound, failures int) model.Generation {
	total := 0.0
	minFitness := ranked[0].Fitness
	genes := make([][]float64, len(ranked))
	for i, ind := range ranked {
		total += ind.Fitness
		if ind.Fitness < minFitness {
			minFitness = ind.Fitness
		}
		genes[i] = ind.Parameters
	}
	return model.Generation{
		Index:       index,
		Population:  ranked,
		Best:        ranked[0].Clone(),
		MeanFitness: total / float64(len(ranked)),
		MinFitness:  minFitness,
		Diversity:   diversity(genes, bounds),
		Failures:    failures,
	}
}

// converged reports whether the best fitness of the last window generations
// improved by less than epsilon over the generation before them.
func converged(generations []model.Generation, window int, epsilon float64) bool {
	if len(generations) <= window {
		return false
	}
	last := generations[len(generations)-1].Best.Fitness
	before := generations[len(generations)-1-window].Best.Fitness
	return last-before < epsilon
}
