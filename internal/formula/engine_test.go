package formula

import (
	"errors"
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"formulaevo/internal/model"
)

func sampleFeatures() model.Features {
	return model.Features{
		"syllables":          3,
		"vowel_ratio":        0.4,
		"harshness":          0.7,
		"softness":           0.2,
		"sentiment":          0.5,
		"memorability":       0.8,
		"power":              0.3,
		"abstractness":       0.1,
		"length":             7,
		"consonant_clusters": 2,
		"symmetry_score":     0.25,
		"letter_entropy":     2.6,
		"rare_letter_ratio":  0.14,
		"repetition":         0.1,
		"uniqueness":         0.9,
	}
}

func randomParams(rng *rand.Rand, t model.FormulaType) []float64 {
	bounds, _ := Bounds(t)
	out := make([]float64, len(bounds))
	for i, b := range bounds {
		out[i] = b.Min + rng.Float64()*b.Span()
	}
	return out
}

func TestTransformIsDeterministic(t *testing.T) {
	engine := NewEngine()
	for _, ft := range model.FormulaTypes {
		params, err := DefaultParameters(ft)
		require.NoError(t, err)

		first, err := engine.Transform("Bitcoin", sampleFeatures(), ft, params)
		require.NoError(t, err)
		for i := 0; i < 5; i++ {
			again, err := engine.Transform("Bitcoin", sampleFeatures(), ft, params)
			require.NoError(t, err)
			assert.Equal(t, first, again, "formula %s", ft)
		}
	}
}

func TestTransformRespectsRanges(t *testing.T) {
	engine := NewEngine()
	rng := rand.New(rand.NewSource(7))
	names := []string{"Katrina", "x", "Zyzzyva", "Ethereum Classic", "ÅngströmQ", "aaaaaa", "Michael Jordan", "123 go"}

	for _, ft := range model.FormulaTypes {
		for i := 0; i < 200; i++ {
			features := model.Features{}
			for key := range sampleFeatures() {
				features[key] = (rng.Float64() - 0.5) * math.Pow(10, float64(rng.Intn(6)))
			}
			params := randomParams(rng, ft)
			name := names[rng.Intn(len(names))]

			enc, err := engine.Transform(name, features, ft, params)
			require.NoError(t, err)
			assertInRange(t, enc)
		}
	}
}

func TestTransformHandlesExtremeFeatures(t *testing.T) {
	engine := NewEngine()
	features := model.Features{
		"syllables":      math.MaxFloat64,
		"harshness":      -math.MaxFloat64,
		"letter_entropy": math.MaxFloat64,
		"length":         math.MaxFloat64,
	}
	for _, ft := range model.FormulaTypes {
		bounds, _ := Bounds(ft)
		params := make([]float64, len(bounds))
		for i, b := range bounds {
			params[i] = b.Max
		}
		enc, err := engine.Transform("overflow", features, ft, params)
		require.NoError(t, err)
		assertInRange(t, enc)
	}
}

func assertInRange(t *testing.T, enc model.VisualEncoding) {
	t.Helper()
	in := func(name string, v, lo, hi float64) {
		assert.False(t, math.IsNaN(v), "%s is NaN", name)
		assert.GreaterOrEqual(t, v, lo, name)
		assert.LessOrEqual(t, v, hi, name)
	}
	in("complexity", enc.Geometry.Complexity, 0, 1)
	in("symmetry", enc.Geometry.Symmetry, 0, 1)
	in("angular_vs_curved", enc.Geometry.AngularVsCurved, -1, 1)
	in("hue", enc.Color.Hue, 0, 360)
	assert.Less(t, enc.Color.Hue, 360.0)
	in("saturation", enc.Color.Saturation, 0, 100)
	in("brightness", enc.Color.Brightness, 0, 100)
	in("x", enc.Spatial.X, -1, 1)
	in("y", enc.Spatial.Y, -1, 1)
	in("z", enc.Spatial.Z, 0, 1)
	in("rotation", enc.Spatial.Rotation, 0, 360)
	assert.Less(t, enc.Spatial.Rotation, 360.0)
	in("glow_intensity", enc.Texture.GlowIntensity, 0, 1)
	in("fractal_dimension", enc.Texture.FractalDimension, 1, 2)
	in("pattern_density", enc.Texture.PatternDensity, 0, 1)
	assert.Contains(t, model.Shapes, enc.Geometry.ShapeType)
	assert.Contains(t, model.Palettes, enc.Color.PaletteFamily)
}

func TestTransformRejectsInvalidInput(t *testing.T) {
	engine := NewEngine()
	defaults, err := DefaultParameters(model.FormulaPhonetic)
	require.NoError(t, err)

	outOfBounds := append([]float64(nil), defaults...)
	outOfBounds[0] = 10_000
	notFinite := append([]float64(nil), defaults...)
	notFinite[3] = math.NaN()
	zeroWeights, err := DefaultParameters(model.FormulaHybrid)
	require.NoError(t, err)
	for i := range model.BaseFormulas {
		zeroWeights[i] = 0
	}

	cases := []struct {
		name     string
		subject  string
		features model.Features
		formula  model.FormulaType
		params   []float64
		field    string
	}{
		{name: "empty name", subject: "  ", features: sampleFeatures(), formula: model.FormulaPhonetic, params: defaults, field: "name"},
		{name: "empty features", subject: "a", features: model.Features{}, formula: model.FormulaPhonetic, params: defaults, field: "features"},
		{name: "nan feature", subject: "a", features: model.Features{"harshness": math.NaN()}, formula: model.FormulaPhonetic, params: defaults, field: "features"},
		{name: "unknown formula", subject: "a", features: sampleFeatures(), formula: "astrological", params: defaults, field: "formula_type"},
		{name: "wrong arity", subject: "a", features: sampleFeatures(), formula: model.FormulaPhonetic, params: defaults[:2], field: "parameters"},
		{name: "out of bounds", subject: "a", features: sampleFeatures(), formula: model.FormulaPhonetic, params: outOfBounds, field: "parameters"},
		{name: "not finite", subject: "a", features: sampleFeatures(), formula: model.FormulaPhonetic, params: notFinite, field: "parameters"},
		{name: "zero hybrid weights", subject: "a", features: sampleFeatures(), formula: model.FormulaHybrid, params: zeroWeights, field: "parameters"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			enc, err := engine.Transform(tc.subject, tc.features, tc.formula, tc.params)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalidInput))
			var inputErr *InvalidInputError
			require.ErrorAs(t, err, &inputErr)
			assert.Equal(t, tc.field, inputErr.Field)
			assert.Equal(t, model.VisualEncoding{}, enc)
		})
	}
}

// hybridVector builds a hybrid parameter vector with weight w on base index
// i and the given base parameters in that base's slot.
func hybridVector(t *testing.T, i int, w float64, baseParams []float64) []float64 {
	t.Helper()
	p, err := DefaultParameters(model.FormulaHybrid)
	require.NoError(t, err)
	for j := range model.BaseFormulas {
		p[j] = 0
	}
	p[i] = w
	offset := len(model.BaseFormulas)
	for _, base := range model.BaseFormulas[:i] {
		bounds, err := Bounds(base)
		require.NoError(t, err)
		offset += len(bounds)
	}
	copy(p[offset:], baseParams)
	return p
}

func assertSameEncoding(t *testing.T, want, got model.VisualEncoding, msg any) {
	t.Helper()
	assert.Equal(t, want.Geometry.ShapeType, got.Geometry.ShapeType, msg)
	assert.Equal(t, want.Color.PaletteFamily, got.Color.PaletteFamily, msg)
	assert.InDelta(t, want.Geometry.Complexity, got.Geometry.Complexity, 1e-9, msg)
	hueDelta := math.Abs(want.Color.Hue - got.Color.Hue)
	assert.Less(t, math.Min(hueDelta, 360-hueDelta), 1e-6, msg)
	rotDelta := math.Abs(want.Spatial.Rotation - got.Spatial.Rotation)
	assert.Less(t, math.Min(rotDelta, 360-rotDelta), 1e-6, msg)
	assert.InDelta(t, want.Texture.FractalDimension, got.Texture.FractalDimension, 1e-9, msg)
}

func TestHybridWithSingleWeightMatchesBaseAtDefaults(t *testing.T) {
	engine := NewEngine()
	features := sampleFeatures()
	for i, base := range model.BaseFormulas {
		defaults, err := DefaultParameters(base)
		require.NoError(t, err)

		hybrid, err := engine.Transform("Solana", features, model.FormulaHybrid, hybridVector(t, i, 0.7, defaults))
		require.NoError(t, err)
		direct, err := engine.Transform("Solana", features, base, defaults)
		require.NoError(t, err)
		assertSameEncoding(t, direct, hybrid, base)
	}
}

func TestHybridRunsBasesWithTheirOwnParameters(t *testing.T) {
	engine := NewEngine()
	features := sampleFeatures()
	for i, base := range model.BaseFormulas {
		bounds, err := Bounds(base)
		require.NoError(t, err)
		tuned := make([]float64, len(bounds))
		for j, b := range bounds {
			tuned[j] = b.Min + 0.8*b.Span()
		}

		hybrid, err := engine.Transform("Solana", features, model.FormulaHybrid, hybridVector(t, i, 1, tuned))
		require.NoError(t, err)
		direct, err := engine.Transform("Solana", features, base, tuned)
		require.NoError(t, err)
		assertSameEncoding(t, direct, hybrid, base)
	}

	defaults, err := DefaultParameters(model.FormulaHybrid)
	require.NoError(t, err)
	before, err := engine.Transform("Solana", features, model.FormulaHybrid, defaults)
	require.NoError(t, err)
	shifted := append([]float64(nil), defaults...)
	shifted[len(model.BaseFormulas)+2] = 300 // phonetic.hue_offset
	after, err := engine.Transform("Solana", features, model.FormulaHybrid, shifted)
	require.NoError(t, err)
	assert.NotEqual(t, before.Color.Hue, after.Color.Hue)
}

func TestHybridBoundsCarryBaseParameters(t *testing.T) {
	bounds, err := Bounds(model.FormulaHybrid)
	require.NoError(t, err)
	want := len(model.BaseFormulas)
	for _, base := range model.BaseFormulas {
		b, err := Bounds(base)
		require.NoError(t, err)
		want += len(b)
	}
	require.Len(t, bounds, want)
	assert.Equal(t, "phonetic_weight", bounds[0].Name)
	assert.Equal(t, "numerological_weight", bounds[4].Name)
	assert.Equal(t, "phonetic.hue_vowel_weight", bounds[5].Name)
	assert.Equal(t, "numerological.shape_offset", bounds[len(bounds)-1].Name)

	// base parameters at their minimum still pass when a weight is positive
	low := make([]float64, len(bounds))
	for i, b := range bounds {
		low[i] = b.Min
	}
	low[1] = 0.5
	assert.NoError(t, CheckParameters(model.FormulaHybrid, low))
}

func TestBlendUsesCircularHueAndWeightedVote(t *testing.T) {
	a := model.VisualEncoding{
		Geometry: model.Geometry{ShapeType: model.ShapeStar, Complexity: 0.2},
		Color:    model.Color{Hue: 350, PaletteFamily: model.PaletteWarm},
	}
	b := model.VisualEncoding{
		Geometry: model.Geometry{ShapeType: model.ShapeSpiral, Complexity: 0.6},
		Color:    model.Color{Hue: 10, PaletteFamily: model.PaletteCool},
	}

	out := blend([]model.VisualEncoding{a, b}, []float64{0.5, 0.5})
	assert.InDelta(t, 0.4, out.Geometry.Complexity, 1e-12)
	hueDistance := math.Min(out.Color.Hue, 360-out.Color.Hue)
	assert.Less(t, hueDistance, 1e-6, "hue %.6f should sit at 0 degrees", out.Color.Hue)
	assert.Equal(t, model.ShapeStar, out.Geometry.ShapeType, "ties go to enum order")
	assert.Equal(t, model.PaletteWarm, out.Color.PaletteFamily)

	out = blend([]model.VisualEncoding{a, b}, []float64{0.3, 0.7})
	assert.Equal(t, model.ShapeSpiral, out.Geometry.ShapeType)
	assert.Equal(t, model.PaletteCool, out.Color.PaletteFamily)
}

func TestWrapDegrees(t *testing.T) {
	assert.Equal(t, 0.0, wrapDegrees(360))
	assert.Equal(t, 350.0, wrapDegrees(-10))
	assert.Equal(t, 0.0, wrapDegrees(-1e-20))
	assert.InDelta(t, 45.0, wrapDegrees(765), 1e-9)
}

func TestNameSignals(t *testing.T) {
	sig := nameSignals("Abba")
	assert.Equal(t, 4.0, sig.Length)
	assert.Equal(t, 0.5, sig.VowelRatio)
	assert.Equal(t, 6.0, sig.LetterSum)
	assert.Equal(t, 6.0, sig.DigitalRoot)
	assert.Equal(t, 0.5, sig.Repetition)
	assert.InDelta(t, 1.0, sig.Entropy, 1e-12)

	empty := nameSignals("42")
	assert.Equal(t, 0.0, empty.Length)
	assert.Equal(t, 0.0, empty.DigitalRoot)
}

func TestCheckParametersAcceptsBoundsInclusive(t *testing.T) {
	for _, ft := range model.FormulaTypes {
		bounds, err := Bounds(ft)
		require.NoError(t, err)
		low := make([]float64, len(bounds))
		high := make([]float64, len(bounds))
		for i, b := range bounds {
			low[i] = b.Min
			high[i] = b.Max
		}
		if ft != model.FormulaHybrid {
			assert.NoError(t, CheckParameters(ft, low), ft)
		}
		assert.NoError(t, CheckParameters(ft, high), ft)
	}
}
