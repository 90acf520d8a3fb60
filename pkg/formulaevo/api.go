// Package formulaevo is the public entry point for validating, evolving and
// analyzing visual-encoding formulas against domain outcomes.
package formulaevo

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"formulaevo/internal/cache"
	"formulaevo/internal/convergence"
	"formulaevo/internal/domain"
	"formulaevo/internal/evo"
	"formulaevo/internal/formula"
	"formulaevo/internal/metrics"
	"formulaevo/internal/model"
	"formulaevo/internal/stats"
	"formulaevo/internal/storage"
	"formulaevo/internal/validation"
)

const (
	defaultExportsDir  = "exports"
	defaultDBPath      = "formulaevo.db"
	defaultSampleLimit = 1000
	defaultPopulation  = 50
	defaultGenerations = 100

	// Fixed width so stored timestamps sort lexically.
	createdAtLayout = "2006-01-02T15:04:05.000000000Z"
)

var ErrRunNotFound = errors.New("run not found")

type Options struct {
	// Provider supplies domain entities. Required.
	Provider domain.Provider

	StoreKind  string
	DBPath     string
	ExportsDir string

	MinEntities int
	Alpha       float64
	Workers     int
	// MaxCachedEncodings bounds each call's transform cache. Zero selects
	// cache.DefaultMaxEncodings and a negative value means unbounded.
	MaxCachedEncodings int

	// Registerer receives the engine's Prometheus collectors when set.
	Registerer prometheus.Registerer
	Logger     *slog.Logger
	Clock      func() time.Time
}

// Client wires the validator, evolution engine, analyzer and store together.
// Each Validate or Evolve call gets its own cache, so provider changes are
// seen by the next call and memory is released when a call returns.
type Client struct {
	store        storage.Store
	engine       *formula.Engine
	validator    *validation.Validator
	metrics      *metrics.Metrics
	logger       *slog.Logger
	clock        func() time.Time
	maxEncodings int

	exportsDir string

	mu         sync.Mutex
	cacheStats cache.Stats
}

type ValidateRequest struct {
	FormulaType model.FormulaType
	Parameters  []float64
	Domains     []string
	SampleLimit int
	// Save persists the report and assigns it an id.
	Save bool
}

// EvolveRequest configures one run. Zero values select the engine defaults;
// set a rate or MutationScale to Disabled to switch that operator off.
type EvolveRequest struct {
	FormulaType        model.FormulaType
	Domains            []string
	Population         int
	Generations        int
	SampleLimit        int
	Seed               int64
	MaxDuration        time.Duration
	EliteCount         int
	Workers            int
	Selection          string
	Fitness            string
	CrossoverRate      float64
	MutationRate       float64
	MutationScale      float64
	ConvergenceEpsilon float64
	ConvergenceWindow  int
}

type RunSummary struct {
	RunID            string
	BestByGeneration []float64
	Best             model.Individual
	StopReason       string
	Converged        bool
	TimedOut         bool
	Cancelled        bool
}

type AnalyzeRequest struct {
	// RunIDs selects histories to analyze. Empty means every stored run.
	RunIDs []string
	// FormulaTypes restricts the stored runs considered when RunIDs is empty.
	FormulaTypes []model.FormulaType
	MinRuns      int
	MaxCV        float64
	Tolerance    float64
}

type RunsRequest struct {
	Limit       int
	FormulaType model.FormulaType
}

type ExportRequest struct {
	RunID  string
	Latest bool
	OutDir string
	// ReportID and InvariantSetID add stored records to the export.
	ReportID       string
	InvariantSetID string
}

type ExportSummary struct {
	RunID     string
	Directory string
}

func New(opts Options) (*Client, error) {
	if opts.Provider == nil {
		return nil, errors.New("domain provider is required")
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if opts.DBPath == "" {
		opts.DBPath = defaultDBPath
	}
	if opts.ExportsDir == "" {
		opts.ExportsDir = defaultExportsDir
	}

	store, err := storage.Open(opts.StoreKind, opts.DBPath)
	if err != nil {
		return nil, err
	}

	switch {
	case opts.MaxCachedEncodings == 0:
		opts.MaxCachedEncodings = cache.DefaultMaxEncodings
	case opts.MaxCachedEncodings < 0:
		opts.MaxCachedEncodings = 0
	}

	var m *metrics.Metrics
	if opts.Registerer != nil {
		m = metrics.New(opts.Registerer)
	}

	engine := formula.NewEngine()
	validator, err := validation.New(validation.Config{
		Provider:    opts.Provider,
		Engine:      engine,
		Metrics:     m,
		Logger:      opts.Logger,
		MinEntities: opts.MinEntities,
		Alpha:       opts.Alpha,
		Workers:     opts.Workers,
	})
	if err != nil {
		return nil, err
	}

	return &Client{
		store:        store,
		engine:       engine,
		validator:    validator,
		metrics:      m,
		logger:       opts.Logger,
		clock:        opts.Clock,
		maxEncodings: opts.MaxCachedEncodings,
		exportsDir:   opts.ExportsDir,
	}, nil
}

// session returns a validator memoizing into a fresh cache and a func that
// folds the cache's counters into the client totals once the call is done.
func (c *Client) session() (*validation.Validator, func()) {
	cacheOpts := []cache.Option{cache.WithMaxEncodings(c.maxEncodings)}
	if c.metrics != nil {
		cacheOpts = append(cacheOpts, cache.WithObserver(c.metrics))
	}
	sc := cache.New(cacheOpts...)
	done := func() {
		c.mu.Lock()
		c.cacheStats = c.cacheStats.Add(sc.Stats())
		c.mu.Unlock()
	}
	return c.validator.WithCache(sc), done
}

func (c *Client) Init(ctx context.Context) error {
	return c.store.Init(ctx)
}

func (c *Client) Close() error {
	return storage.Close(c.store)
}

// Transform encodes one named subject without touching any domain data.
func (c *Client) Transform(name string, features model.Features, formulaType model.FormulaType, params []float64) (model.VisualEncoding, error) {
	return c.engine.Transform(name, features, formulaType, params)
}

// CacheStats reports hit and miss counts summed over completed calls.
func (c *Client) CacheStats() cache.Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cacheStats
}

func (c *Client) Validate(ctx context.Context, req ValidateRequest) (model.ValidationReport, error) {
	if req.SampleLimit == 0 {
		req.SampleLimit = defaultSampleLimit
	}
	validator, done := c.session()
	report, err := validator.Validate(ctx, req.FormulaType, req.Parameters, req.Domains, req.SampleLimit)
	done()
	if err != nil {
		return model.ValidationReport{}, err
	}
	if !req.Save {
		return report, nil
	}
	report.ID = uuid.NewString()
	if err := c.store.SaveValidationReport(ctx, report); err != nil {
		return model.ValidationReport{}, fmt.Errorf("save validation report: %w", err)
	}
	return report, nil
}

// Evolve runs one seeded search and persists its history and run record.
// A cancelled or timed out run is still persisted.
func (c *Client) Evolve(ctx context.Context, req EvolveRequest) (RunSummary, error) {
	if req.Population == 0 {
		req.Population = defaultPopulation
	}
	if req.Generations == 0 {
		req.Generations = defaultGenerations
	}
	if req.SampleLimit == 0 {
		req.SampleLimit = defaultSampleLimit
	}
	selector, err := evo.ResolveSelector(req.Selection)
	if err != nil {
		return RunSummary{}, err
	}
	fitness, err := evo.ResolveFitness(req.Fitness)
	if err != nil {
		return RunSummary{}, err
	}

	validator, done := c.session()
	evolver, err := evo.NewEngine(validator, evo.Options{Logger: c.logger, Metrics: c.metrics, Clock: c.clock})
	if err != nil {
		done()
		return RunSummary{}, err
	}
	runID := uuid.NewString()
	history, err := evolver.Evolve(ctx, evo.Config{
		RunID:              runID,
		FormulaType:        req.FormulaType,
		Domains:            req.Domains,
		PopulationSize:     req.Population,
		Generations:        req.Generations,
		SampleLimit:        req.SampleLimit,
		Seed:               req.Seed,
		MaxDuration:        req.MaxDuration,
		EliteCount:         req.EliteCount,
		Workers:            req.Workers,
		Selector:           selector,
		Fitness:            fitness,
		CrossoverRate:      req.CrossoverRate,
		MutationRate:       req.MutationRate,
		MutationScale:      req.MutationScale,
		ConvergenceEpsilon: req.ConvergenceEpsilon,
		ConvergenceWindow:  req.ConvergenceWindow,
	})
	done()
	if err != nil {
		return RunSummary{}, err
	}

	// Persist even when the caller's context is done.
	saveCtx := context.WithoutCancel(ctx)
	if err := c.store.SaveHistory(saveCtx, history); err != nil {
		return RunSummary{}, fmt.Errorf("save history: %w", err)
	}
	best, _ := history.Best()
	if err := c.store.SaveRun(saveCtx, model.RunRecord{
		RunID:        runID,
		CreatedAtUTC: c.clock().UTC().Format(createdAtLayout),
		FormulaType:  history.FormulaType,
		Domains:      history.Domains,
		Seed:         history.Seed,
		Generations:  len(history.Generations),
		BestFitness:  best.Fitness,
		Converged:    history.Converged,
		TimedOut:     history.TimedOut,
	}); err != nil {
		return RunSummary{}, fmt.Errorf("save run: %w", err)
	}

	return RunSummary{
		RunID:            runID,
		BestByGeneration: history.BestByGeneration(),
		Best:             best,
		StopReason:       history.StopReason,
		Converged:        history.Converged,
		TimedOut:         history.TimedOut,
		Cancelled:        history.Cancelled,
	}, nil
}

// Analyze runs convergence analysis over stored histories and persists the
// resulting invariant set, which may be empty.
func (c *Client) Analyze(ctx context.Context, req AnalyzeRequest) (model.InvariantSet, error) {
	runIDs := req.RunIDs
	if len(runIDs) == 0 {
		runs, err := c.Runs(ctx, RunsRequest{})
		if err != nil {
			return model.InvariantSet{}, err
		}
		for _, run := range runs {
			if len(req.FormulaTypes) == 0 || containsType(req.FormulaTypes, run.FormulaType) {
				runIDs = append(runIDs, run.RunID)
			}
		}
	}

	histories := make([]model.EvolutionHistory, 0, len(runIDs))
	for _, id := range runIDs {
		history, err := c.History(ctx, id)
		if err != nil {
			return model.InvariantSet{}, err
		}
		histories = append(histories, history)
	}

	analyzer, err := convergence.NewAnalyzer(convergence.Config{
		MinRuns:   req.MinRuns,
		MaxCV:     req.MaxCV,
		Tolerance: req.Tolerance,
		Logger:    c.logger,
		Metrics:   c.metrics,
	})
	if err != nil {
		return model.InvariantSet{}, err
	}
	set := model.InvariantSet{
		ID:         uuid.NewString(),
		RunIDs:     append([]string{}, runIDs...),
		Invariants: analyzer.Analyze(histories),
	}
	if err := c.store.SaveInvariantSet(ctx, set); err != nil {
		return model.InvariantSet{}, fmt.Errorf("save invariant set: %w", err)
	}
	return set, nil
}

// Runs lists stored runs newest first.
func (c *Client) Runs(ctx context.Context, req RunsRequest) ([]model.RunRecord, error) {
	if req.Limit < 0 {
		return nil, errors.New("limit must be >= 0")
	}
	all, err := c.store.ListRuns(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]model.RunRecord, 0, len(all))
	for i := len(all) - 1; i >= 0; i-- {
		if req.FormulaType != "" && all[i].FormulaType != req.FormulaType {
			continue
		}
		out = append(out, all[i])
		if req.Limit > 0 && len(out) == req.Limit {
			break
		}
	}
	return out, nil
}

func (c *Client) History(ctx context.Context, runID string) (model.EvolutionHistory, error) {
	history, ok, err := c.store.GetHistory(ctx, runID)
	if err != nil {
		return model.EvolutionHistory{}, err
	}
	if !ok {
		return model.EvolutionHistory{}, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	return history, nil
}

// Export writes a run's history and fitness series, plus any requested
// report or invariant set, under OutDir/<run id>.
func (c *Client) Export(ctx context.Context, req ExportRequest) (ExportSummary, error) {
	if req.RunID != "" && req.Latest {
		return ExportSummary{}, errors.New("use either run id or latest")
	}
	if req.RunID == "" && !req.Latest {
		return ExportSummary{}, errors.New("export requires run id or latest")
	}
	if req.OutDir == "" {
		req.OutDir = c.exportsDir
	}

	runID := req.RunID
	if req.Latest {
		runs, err := c.Runs(ctx, RunsRequest{Limit: 1})
		if err != nil {
			return ExportSummary{}, err
		}
		if len(runs) == 0 {
			return ExportSummary{}, fmt.Errorf("%w: no runs available to export", ErrRunNotFound)
		}
		runID = runs[0].RunID
	}

	history, err := c.History(ctx, runID)
	if err != nil {
		return ExportSummary{}, err
	}
	artifacts := stats.RunArtifacts{History: history}
	if req.ReportID != "" {
		report, ok, err := c.store.GetValidationReport(ctx, req.ReportID)
		if err != nil {
			return ExportSummary{}, err
		}
		if !ok {
			return ExportSummary{}, fmt.Errorf("validation report not found: %s", req.ReportID)
		}
		artifacts.Report = &report
	}
	if req.InvariantSetID != "" {
		set, ok, err := c.store.GetInvariantSet(ctx, req.InvariantSetID)
		if err != nil {
			return ExportSummary{}, err
		}
		if !ok {
			return ExportSummary{}, fmt.Errorf("invariant set not found: %s", req.InvariantSetID)
		}
		artifacts.Invariants = &set
	}

	dir, err := stats.WriteRunArtifacts(req.OutDir, artifacts)
	if err != nil {
		return ExportSummary{}, err
	}
	return ExportSummary{RunID: runID, Directory: filepath.Clean(dir)}, nil
}

func containsType(types []model.FormulaType, t model.FormulaType) bool {
	for _, candidate := range types {
		if candidate == t {
			return true
		}
	}
	return false
}
