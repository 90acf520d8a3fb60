package validation

import (
	"context"
	"errors"
	"math"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"formulaevo/internal/cache"
	"formulaevo/internal/domain"
	"formulaevo/internal/formula"
	"formulaevo/internal/model"
)

type countingProvider struct {
	inner domain.Provider
	loads atomic.Int64
	fail  map[string]error
}

func (p *countingProvider) Load(ctx context.Context, domainID string, sampleLimit int) ([]model.DomainEntity, error) {
	p.loads.Add(1)
	if err, ok := p.fail[domainID]; ok {
		return nil, err
	}
	return p.inner.Load(ctx, domainID, sampleLimit)
}

func memoryDomain(t *testing.T, p *domain.MemoryProvider, id string, count int, driver string) []model.DomainEntity {
	t.Helper()
	entities, err := domain.Synthetic(domain.SyntheticSpec{DomainID: id, Count: count, Seed: int64(len(id) + count), Driver: driver, Gain: 10, Noise: 0.1})
	require.NoError(t, err)
	p.Put(id, entities)
	return entities
}

func newValidator(t *testing.T, provider domain.Provider, c *cache.Cache) *Validator {
	t.Helper()
	v, err := New(Config{Provider: provider, Cache: c})
	require.NoError(t, err)
	return v
}

func TestValidateSkipsSmallDomainWithoutError(t *testing.T) {
	p := domain.NewMemoryProvider()
	memoryDomain(t, p, "tiny", 10, "harshness")
	v := newValidator(t, p, nil)

	params, err := formula.DefaultParameters(model.FormulaHybrid)
	require.NoError(t, err)
	report, err := v.Validate(context.Background(), model.FormulaHybrid, params, []string{"tiny"}, 50)
	require.NoError(t, err)

	require.Len(t, report.Domains, 1)
	d := report.Domains[0]
	assert.True(t, d.Skipped)
	assert.Equal(t, 10, d.EntityCount)
	assert.True(t, strings.HasPrefix(d.SkipReason, SkipInsufficientEntities))
	assert.Empty(t, d.Correlations)
	assert.Empty(t, report.ActiveDomains())
	for _, prop := range model.Properties {
		assert.Equal(t, 0.0, report.Consistency[prop])
	}
}

func TestValidateFindsDrivenProperty(t *testing.T) {
	p := domain.NewMemoryProvider()
	memoryDomain(t, p, "alpha", 80, "harshness")
	memoryDomain(t, p, "beta", 80, "harshness")
	v := newValidator(t, p, cache.New())

	params, err := formula.DefaultParameters(model.FormulaPhonetic)
	require.NoError(t, err)
	report, err := v.Validate(context.Background(), model.FormulaPhonetic, params, []string{"alpha", "beta", "alpha"}, 100)
	require.NoError(t, err)

	require.Len(t, report.Domains, 2)
	for _, d := range report.Domains {
		require.False(t, d.Skipped)
		assert.Equal(t, 80, d.EntityCount)
		assert.Len(t, d.Correlations, len(model.Properties))
		require.NotEmpty(t, d.Significant)
		for i := 1; i < len(d.Significant); i++ {
			assert.GreaterOrEqual(t, math.Abs(d.Significant[i-1].Correlation), math.Abs(d.Significant[i].Correlation))
		}
		for _, c := range d.Correlations {
			if c.Property == model.PropPatternDensity {
				assert.Greater(t, c.Correlation, 0.9)
				assert.True(t, c.Significant)
			}
			assert.GreaterOrEqual(t, c.PValue, 0.0)
			assert.LessOrEqual(t, c.PValue, 1.0)
		}
	}
	assert.Equal(t, 1.0, report.Consistency[model.PropPatternDensity])
	assert.Equal(t, 100, report.SampleLimit)
	assert.Equal(t, params, report.Parameters)
}

func TestValidateProviderFailureSkipsDomain(t *testing.T) {
	mem := domain.NewMemoryProvider()
	memoryDomain(t, mem, "good", 60, "harshness")
	p := &countingProvider{inner: mem, fail: map[string]error{"broken": errors.New("connection reset")}}
	v := newValidator(t, p, nil)

	params, err := formula.DefaultParameters(model.FormulaPhonetic)
	require.NoError(t, err)
	report, err := v.Validate(context.Background(), model.FormulaPhonetic, params, []string{"broken", "good", "missing"}, 60)
	require.NoError(t, err)

	require.Len(t, report.Domains, 3)
	assert.True(t, report.Domains[0].Skipped)
	assert.Contains(t, report.Domains[0].SkipReason, "connection reset")
	assert.False(t, report.Domains[1].Skipped)
	assert.True(t, report.Domains[2].Skipped)
	assert.Contains(t, report.Domains[2].SkipReason, SkipProviderError)
	assert.Equal(t, 1.0, report.Consistency[model.PropPatternDensity])
}

func TestValidateDropsMalformedEntities(t *testing.T) {
	p := domain.NewMemoryProvider()
	entities, err := domain.Synthetic(domain.SyntheticSpec{DomainID: "d", Count: 40, Seed: 2, Driver: "power"})
	require.NoError(t, err)
	entities = append(entities,
		model.DomainEntity{Name: " ", Features: model.Features{"power": 1}, Outcome: 1},
		model.DomainEntity{Name: "nofeatures", Outcome: 1},
		model.DomainEntity{Name: "nan", Features: model.Features{"power": math.NaN()}, Outcome: 1},
		model.DomainEntity{Name: "badoutcome", Features: model.Features{"power": 1}, Outcome: math.Inf(1)},
	)
	p.Put("d", entities)
	v := newValidator(t, p, nil)

	params, err := formula.DefaultParameters(model.FormulaSemantic)
	require.NoError(t, err)
	report, err := v.Validate(context.Background(), model.FormulaSemantic, params, []string{"d"}, 100)
	require.NoError(t, err)
	assert.Equal(t, 4, report.Domains[0].DroppedEntities)
	assert.Equal(t, 40, report.Domains[0].EntityCount)
	assert.False(t, report.Domains[0].Skipped)
}

func TestValidateInvalidInput(t *testing.T) {
	p := domain.NewMemoryProvider()
	v := newValidator(t, p, nil)
	good, err := formula.DefaultParameters(model.FormulaPhonetic)
	require.NoError(t, err)

	tests := []struct {
		name        string
		formulaType model.FormulaType
		params      []float64
		domains     []string
		limit       int
	}{
		{name: "unknown formula", formulaType: "cubist", params: good, domains: []string{"d"}, limit: 10},
		{name: "arity", formulaType: model.FormulaPhonetic, params: good[:3], domains: []string{"d"}, limit: 10},
		{name: "out of bounds", formulaType: model.FormulaPhonetic, params: []float64{-1, 0, 0, 0, 0, 0}, domains: []string{"d"}, limit: 10},
		{name: "no domains", formulaType: model.FormulaPhonetic, params: good, domains: nil, limit: 10},
		{name: "sample limit", formulaType: model.FormulaPhonetic, params: good, domains: []string{"d"}, limit: 0},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := v.Validate(context.Background(), tc.formulaType, tc.params, tc.domains, tc.limit)
			require.Error(t, err)
			assert.ErrorIs(t, err, formula.ErrInvalidInput)
		})
	}
}

func TestValidateShuffledControlLosesSignal(t *testing.T) {
	const n = 300
	mem := domain.NewMemoryProvider()
	memoryDomain(t, mem, "d", n, "harshness")
	params, err := formula.DefaultParameters(model.FormulaPhonetic)
	require.NoError(t, err)
	ctx := context.Background()

	baseline, err := newValidator(t, mem, nil).Validate(ctx, model.FormulaPhonetic, params, []string{"d"}, n)
	require.NoError(t, err)
	strongest := 0.0
	for _, c := range baseline.Domains[0].Correlations {
		strongest = math.Max(strongest, math.Abs(c.Correlation))
	}
	require.Greater(t, strongest, 0.5, "unshuffled domain should carry signal")

	var (
		cells       int
		significant int
		sumAbs      float64
	)
	for seed := int64(1); seed <= 16; seed++ {
		v := newValidator(t, domain.ShuffledProvider{Inner: mem, Seed: seed}, nil)
		report, err := v.Validate(ctx, model.FormulaPhonetic, params, []string{"d"}, n)
		require.NoError(t, err)
		require.False(t, report.Domains[0].Skipped)
		correlations := report.Domains[0].Correlations
		require.Len(t, correlations, len(model.Properties))
		for _, c := range correlations {
			r := math.Abs(c.Correlation)
			assert.Less(t, r, 0.3, "seed %d %s", seed, c.Property)
			sumAbs += r
			cells++
			if c.Significant {
				significant++
			}
		}
	}
	assert.Less(t, sumAbs/float64(cells), 0.1, "mean |r| under shuffled outcomes")
	assert.LessOrEqual(t, float64(significant)/float64(cells), 0.15, "share of significant correlations under shuffled outcomes")
}

func TestValidateUsesCache(t *testing.T) {
	mem := domain.NewMemoryProvider()
	memoryDomain(t, mem, "d", 40, "softness")
	p := &countingProvider{inner: mem}
	c := cache.New()
	v := newValidator(t, p, c)

	params, err := formula.DefaultParameters(model.FormulaPhonetic)
	require.NoError(t, err)
	first, err := v.Validate(context.Background(), model.FormulaPhonetic, params, []string{"d"}, 40)
	require.NoError(t, err)
	second, err := v.Validate(context.Background(), model.FormulaPhonetic, params, []string{"d"}, 40)
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, int64(1), p.loads.Load())

	params[0] = params[0] / 2
	_, err = v.Validate(context.Background(), model.FormulaPhonetic, params, []string{"d"}, 40)
	require.NoError(t, err)
	assert.Equal(t, int64(1), p.loads.Load())
	stats := c.Stats()
	assert.Equal(t, uint64(1), stats.EncodingHits)
	assert.Equal(t, uint64(1), stats.EntityHits)
}

func TestNewRejectsBadConfig(t *testing.T) {
	_, err := New(Config{})
	assert.Error(t, err)
	_, err = New(Config{Provider: domain.NewMemoryProvider(), Alpha: 2})
	assert.Error(t, err)
	_, err = New(Config{Provider: domain.NewMemoryProvider(), MinEntities: 2})
	assert.Error(t, err)
}
