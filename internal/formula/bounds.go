package formula

import (
	"fmt"
	"math"

	"formulaevo/internal/model"
)

// ParamBound declares one tunable parameter of a formula type.
type ParamBound struct {
	Name    string  `json:"name"`
	Min     float64 `json:"min"`
	Max     float64 `json:"max"`
	Default float64 `json:"default"`
}

// Span returns the width of the bound interval.
func (b ParamBound) Span() float64 {
	return b.Max - b.Min
}

// Clip pulls v into [Min, Max].
func (b ParamBound) Clip(v float64) float64 {
	if v < b.Min {
		return b.Min
	}
	if v > b.Max {
		return b.Max
	}
	return v
}

var baseBounds = map[model.FormulaType][]ParamBound{
	model.FormulaPhonetic: {
		{Name: "hue_vowel_weight", Min: 0, Max: 720, Default: 240},
		{Name: "hue_harshness_weight", Min: 0, Max: 720, Default: 120},
		{Name: "hue_offset", Min: 0, Max: 360, Default: 0},
		{Name: "complexity_gain", Min: 0, Max: 4, Default: 1},
		{Name: "curvature_gain", Min: 0, Max: 4, Default: 1},
		{Name: "glow_gain", Min: 0, Max: 4, Default: 1},
	},
	model.FormulaSemantic: {
		{Name: "sentiment_hue_weight", Min: 0, Max: 360, Default: 90},
		{Name: "power_hue_weight", Min: 0, Max: 360, Default: 60},
		{Name: "hue_offset", Min: 0, Max: 360, Default: 180},
		{Name: "saturation_gain", Min: 0, Max: 4, Default: 1},
		{Name: "brightness_gain", Min: 0, Max: 4, Default: 1},
		{Name: "abstraction_gain", Min: 0, Max: 4, Default: 1},
	},
	model.FormulaStructural: {
		{Name: "symmetry_gain", Min: 0, Max: 4, Default: 1},
		{Name: "complexity_gain", Min: 0, Max: 4, Default: 1},
		{Name: "cluster_weight", Min: 0, Max: 4, Default: 1},
		{Name: "density_gain", Min: 0, Max: 4, Default: 1},
		{Name: "position_gain", Min: 0, Max: 4, Default: 1},
		{Name: "rotation_step", Min: 0, Max: 90, Default: 15},
	},
	model.FormulaFrequency: {
		{Name: "entropy_gain", Min: 0, Max: 4, Default: 1},
		{Name: "rarity_gain", Min: 0, Max: 4, Default: 1},
		{Name: "repetition_gain", Min: 0, Max: 4, Default: 1},
		{Name: "uniqueness_gain", Min: 0, Max: 4, Default: 1},
		{Name: "rotation_weight", Min: 0, Max: 720, Default: 180},
		{Name: "brightness_bias", Min: -2, Max: 2, Default: 0},
	},
	model.FormulaNumerological: {
		{Name: "sum_multiplier", Min: 0, Max: 10, Default: 1},
		{Name: "root_multiplier", Min: 0, Max: 90, Default: 40},
		{Name: "hue_offset", Min: 0, Max: 360, Default: 0},
		{Name: "rotation_multiplier", Min: 0, Max: 90, Default: 40},
		{Name: "depth_gain", Min: 0, Max: 4, Default: 1},
		{Name: "shape_offset", Min: 0, Max: 6, Default: 0},
	},
}

// The hybrid vector is one sub-weight per base formula followed by each
// base formula's own parameters, both in model.BaseFormulas order.
var boundsByType = withHybrid(baseBounds)

func withHybrid(base map[model.FormulaType][]ParamBound) map[model.FormulaType][]ParamBound {
	out := make(map[model.FormulaType][]ParamBound, len(base)+1)
	hybrid := make([]ParamBound, 0, len(model.BaseFormulas))
	for _, t := range model.BaseFormulas {
		hybrid = append(hybrid, ParamBound{Name: string(t) + "_weight", Min: 0, Max: 1, Default: 0.2})
	}
	for _, t := range model.BaseFormulas {
		out[t] = base[t]
		for _, b := range base[t] {
			b.Name = string(t) + "." + b.Name
			hybrid = append(hybrid, b)
		}
	}
	out[model.FormulaHybrid] = hybrid
	return out
}

// Bounds returns a copy of the declared parameter bounds for t.
func Bounds(t model.FormulaType) ([]ParamBound, error) {
	bounds, ok := boundsByType[t]
	if !ok {
		return nil, invalid("formula_type", "unknown formula type %q", t)
	}
	return append([]ParamBound(nil), bounds...), nil
}

// DefaultParameters returns the declared default vector for t.
func DefaultParameters(t model.FormulaType) ([]float64, error) {
	bounds, err := Bounds(t)
	if err != nil {
		return nil, err
	}
	out := make([]float64, len(bounds))
	for i, b := range bounds {
		out[i] = b.Default
	}
	return out, nil
}

// CheckParameters verifies arity, finiteness and bounds of params for t.
func CheckParameters(t model.FormulaType, params []float64) error {
	bounds, ok := boundsByType[t]
	if !ok {
		return invalid("formula_type", "unknown formula type %q", t)
	}
	if len(params) != len(bounds) {
		return invalid("parameters", "%s expects %d parameters, got %d", t, len(bounds), len(params))
	}
	for i, v := range params {
		b := bounds[i]
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return invalid("parameters", "%s is not finite", b.Name)
		}
		if v < b.Min || v > b.Max {
			return invalid("parameters", "%s=%g outside [%g, %g]", b.Name, v, b.Min, b.Max)
		}
	}
	if t == model.FormulaHybrid {
		total := 0.0
		for _, v := range params[:len(model.BaseFormulas)] {
			total += v
		}
		if total <= 0 {
			return invalid("parameters", "hybrid sub-weights must have a positive sum")
		}
	}
	return nil
}

// Describe renders a parameter vector with its declared names.
func Describe(t model.FormulaType, params []float64) string {
	bounds, ok := boundsByType[t]
	if !ok || len(bounds) != len(params) {
		return fmt.Sprintf("%s%v", t, params)
	}
	out := string(t) + "{"
	for i, b := range bounds {
		if i > 0 {
			out += " "
		}
		out += fmt.Sprintf("%s=%.4g", b.Name, params[i])
	}
	return out + "}"
}
