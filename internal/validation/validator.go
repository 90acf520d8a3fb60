package validation

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"runtime"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"formulaevo/internal/cache"
	"formulaevo/internal/domain"
	"formulaevo/internal/formula"
	"formulaevo/internal/metrics"
	"formulaevo/internal/model"
	"formulaevo/internal/stats"
)

const (
	DefaultMinEntities = 30
	DefaultAlpha       = 0.05
)

// Skip reason codes recorded on skipped domains.
const (
	SkipInsufficientEntities = "insufficient_entities"
	SkipProviderError        = "provider_error"
)

type Config struct {
	Provider domain.Provider
	Engine   *formula.Engine
	Cache    *cache.Cache
	Metrics  *metrics.Metrics
	Logger   *slog.Logger

	// MinEntities is the usable entity count below which a domain is skipped.
	MinEntities int
	// Alpha is the significance level for the two-sided Pearson test.
	Alpha float64
	// Workers bounds the number of domains processed concurrently.
	Workers int
}

// Validator scores a formula and parameter vector against domain outcomes.
// It is safe for concurrent use.
type Validator struct {
	provider    domain.Provider
	engine      *formula.Engine
	cache       *cache.Cache
	metrics     *metrics.Metrics
	logger      *slog.Logger
	minEntities int
	alpha       float64
	workers     int
}

func New(cfg Config) (*Validator, error) {
	if cfg.Provider == nil {
		return nil, fmt.Errorf("domain provider is required")
	}
	if cfg.Engine == nil {
		cfg.Engine = formula.NewEngine()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.MinEntities == 0 {
		cfg.MinEntities = DefaultMinEntities
	}
	if cfg.MinEntities < 3 {
		return nil, fmt.Errorf("min entities must be >= 3")
	}
	if cfg.Alpha == 0 {
		cfg.Alpha = DefaultAlpha
	}
	if cfg.Alpha <= 0 || cfg.Alpha >= 1 {
		return nil, fmt.Errorf("alpha must be in (0, 1)")
	}
	if cfg.Workers <= 0 {
		cfg.Workers = runtime.NumCPU()
	}
	return &Validator{
		provider:    cfg.Provider,
		engine:      cfg.Engine,
		cache:       cfg.Cache,
		metrics:     cfg.Metrics,
		logger:      cfg.Logger,
		minEntities: cfg.MinEntities,
		alpha:       cfg.Alpha,
		workers:     cfg.Workers,
	}, nil
}

func (v *Validator) Alpha() float64 { return v.alpha }

// WithCache returns a validator with v's settings that memoizes into c.
// A nil c disables caching.
func (v *Validator) WithCache(c *cache.Cache) *Validator {
	out := *v
	out.cache = c
	return &out
}

// Validate transforms every usable entity of each domain and correlates the
// encoding properties with the domain outcome. Only malformed arguments
// produce an error; provider failures and small samples are recorded on the
// affected domain as skipped.
func (v *Validator) Validate(ctx context.Context, formulaType model.FormulaType, params []float64, domains []string, sampleLimit int) (model.ValidationReport, error) {
	if err := formula.CheckParameters(formulaType, params); err != nil {
		return model.ValidationReport{}, err
	}
	if sampleLimit <= 0 {
		return model.ValidationReport{}, formula.Invalid("sample_limit", "must be > 0, got %d", sampleLimit)
	}
	domains = uniqueDomains(domains)
	if len(domains) == 0 {
		return model.ValidationReport{}, formula.Invalid("domains", "at least one domain id is required")
	}

	started := time.Now()
	params = append([]float64(nil), params...)
	hash := cache.ParameterHash(params)
	results := make([]model.DomainPerformance, len(domains))

	g := new(errgroup.Group)
	g.SetLimit(min(v.workers, len(domains)))
	for i, domainID := range domains {
		i, domainID := i, domainID
		g.Go(func() error {
			results[i] = v.validateDomain(ctx, formulaType, params, hash, domainID, sampleLimit)
			return nil
		})
	}
	_ = g.Wait()

	report := model.ValidationReport{
		FormulaType: formulaType,
		Parameters:  params,
		SampleLimit: sampleLimit,
		Domains:     results,
		Consistency: consistency(results),
	}
	v.metrics.ObserveValidation(string(formulaType), time.Since(started))
	return report, nil
}

func (v *Validator) validateDomain(ctx context.Context, formulaType model.FormulaType, params []float64, hash uint64, domainID string, sampleLimit int) model.DomainPerformance {
	perf := model.DomainPerformance{DomainID: domainID}

	encKey := cache.EncodingKey{DomainID: domainID, FormulaType: formulaType, ParameterHash: hash, SampleLimit: sampleLimit}
	encoded, ok := v.cache.Encodings(encKey)
	if !ok {
		entities, err := v.entities(ctx, domainID, sampleLimit)
		if err != nil {
			v.logger.Warn("domain skipped",
				slog.String("domain", domainID),
				slog.String("reason", SkipProviderError),
				slog.String("error", err.Error()),
			)
			v.metrics.ObserveSkippedDomain(SkipProviderError)
			perf.Skipped = true
			perf.SkipReason = fmt.Sprintf("%s: %v", SkipProviderError, err)
			return perf
		}
		encoded = v.encode(formulaType, params, entities)
		v.cache.PutEncodings(encKey, encoded)
		if encoded.Dropped > 0 {
			v.logger.Warn("entities dropped",
				slog.String("domain", domainID),
				slog.Int("dropped", encoded.Dropped),
				slog.Int("loaded", len(entities)),
			)
			v.metrics.ObserveDroppedEntities(domainID, encoded.Dropped)
		}
	}

	perf.EntityCount = len(encoded.Encodings)
	perf.DroppedEntities = encoded.Dropped
	if perf.EntityCount < v.minEntities {
		v.logger.Debug("domain skipped",
			slog.String("domain", domainID),
			slog.String("reason", SkipInsufficientEntities),
			slog.Int("entities", perf.EntityCount),
			slog.Int("min_entities", v.minEntities),
		)
		v.metrics.ObserveSkippedDomain(SkipInsufficientEntities)
		perf.Skipped = true
		perf.SkipReason = fmt.Sprintf("%s: %d < %d", SkipInsufficientEntities, perf.EntityCount, v.minEntities)
		return perf
	}

	perf.Correlations = make([]model.PropertyCorrelation, 0, len(model.Properties))
	column := make([]float64, len(encoded.Encodings))
	for _, prop := range model.Properties {
		for i, enc := range encoded.Encodings {
			column[i] = enc.Value(prop)
		}
		c := stats.Pearson(column, encoded.Outcomes)
		pc := model.PropertyCorrelation{
			Property:    prop,
			Correlation: c.R,
			PValue:      c.P,
			Significant: c.P < v.alpha && c.R != 0,
		}
		perf.Correlations = append(perf.Correlations, pc)
		if pc.Significant {
			perf.Significant = append(perf.Significant, pc)
		}
	}
	sort.SliceStable(perf.Significant, func(i, j int) bool {
		a, b := perf.Significant[i], perf.Significant[j]
		if math.Abs(a.Correlation) != math.Abs(b.Correlation) {
			return math.Abs(a.Correlation) > math.Abs(b.Correlation)
		}
		return a.Property < b.Property
	})
	return perf
}

func (v *Validator) entities(ctx context.Context, domainID string, sampleLimit int) ([]model.DomainEntity, error) {
	key := cache.EntityKey{DomainID: domainID, SampleLimit: sampleLimit}
	if entities, ok := v.cache.Entities(key); ok {
		return entities, nil
	}
	entities, err := v.provider.Load(ctx, domainID, sampleLimit)
	if err != nil {
		return nil, fmt.Errorf("load domain %s: %w", domainID, err)
	}
	if len(entities) > sampleLimit {
		entities = entities[:sampleLimit]
	}
	v.cache.PutEntities(key, entities)
	return entities, nil
}

func (v *Validator) encode(formulaType model.FormulaType, params []float64, entities []model.DomainEntity) cache.Encoded {
	out := cache.Encoded{
		Encodings: make([]model.VisualEncoding, 0, len(entities)),
		Outcomes:  make([]float64, 0, len(entities)),
	}
	for _, e := range entities {
		if math.IsNaN(e.Outcome) || math.IsInf(e.Outcome, 0) {
			out.Dropped++
			continue
		}
		enc, err := v.engine.Transform(e.Name, e.Features, formulaType, params)
		if err != nil {
			out.Dropped++
			continue
		}
		out.Encodings = append(out.Encodings, enc)
		out.Outcomes = append(out.Outcomes, e.Outcome)
	}
	return out
}

// consistency is, per property, the larger of the significant-positive and
// significant-negative domain counts over the number of active domains.
func consistency(domains []model.DomainPerformance) map[model.Property]float64 {
	out := make(map[model.Property]float64, len(model.Properties))
	active := 0
	pos := map[model.Property]int{}
	neg := map[model.Property]int{}
	for _, d := range domains {
		if d.Skipped {
			continue
		}
		active++
		for _, c := range d.Significant {
			if c.Correlation > 0 {
				pos[c.Property]++
			} else {
				neg[c.Property]++
			}
		}
	}
	for _, prop := range model.Properties {
		if active == 0 {
			out[prop] = 0
			continue
		}
		out[prop] = float64(max(pos[prop], neg[prop])) / float64(active)
	}
	return out
}

func uniqueDomains(domains []string) []string {
	seen := make(map[string]struct{}, len(domains))
	out := make([]string, 0, len(domains))
	for _, d := range domains {
		if d == "" {
			continue
		}
		if _, ok := seen[d]; ok {
			continue
		}
		seen[d] = struct{}{}
		out = append(out, d)
	}
	return out
}
