package formula

import (
	"math"
	"strings"

	"formulaevo/internal/model"
)

// Engine dispatches transforms to the closed set of formula implementations.
// It holds no mutable state and is safe for concurrent use.
type Engine struct {
	formulas map[model.FormulaType]Formula
}

func NewEngine() *Engine {
	base := []Formula{
		phoneticFormula{},
		semanticFormula{},
		structuralFormula{},
		frequencyFormula{},
		numerologicalFormula{},
	}
	formulas := make(map[model.FormulaType]Formula, len(base)+1)
	for _, f := range base {
		formulas[f.Type()] = f
	}
	formulas[model.FormulaHybrid] = newHybridFormula(base)
	return &Engine{formulas: formulas}
}

// Transform maps a name and its features to a visual encoding. Identical
// inputs always produce identical encodings.
func (e *Engine) Transform(name string, features model.Features, t model.FormulaType, params []float64) (model.VisualEncoding, error) {
	f, ok := e.formulas[t]
	if !ok {
		return model.VisualEncoding{}, invalid("formula_type", "unknown formula type %q", t)
	}
	if err := CheckSubject(name, features); err != nil {
		return model.VisualEncoding{}, err
	}
	if err := CheckParameters(t, params); err != nil {
		return model.VisualEncoding{}, err
	}
	return finalize(f.Encode(nameSignals(name), features, params)), nil
}

// TransformDefinition is Transform for a FormulaDefinition.
func (e *Engine) TransformDefinition(name string, features model.Features, def model.FormulaDefinition) (model.VisualEncoding, error) {
	return e.Transform(name, features, def.Type, def.Parameters)
}

// CheckSubject validates the name and feature vector of a transform request.
func CheckSubject(name string, features model.Features) error {
	if strings.TrimSpace(name) == "" {
		return invalid("name", "must be non-empty")
	}
	if len(features) == 0 {
		return invalid("features", "must be non-empty")
	}
	for key, v := range features {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return invalid("features", "%s is not finite", key)
		}
	}
	return nil
}

// finalize pins every field into its declared range and fills a missing
// palette from the hue.
func finalize(v model.VisualEncoding) model.VisualEncoding {
	v.Geometry.Complexity = clamp(v.Geometry.Complexity, 0, 1)
	v.Geometry.Symmetry = clamp(v.Geometry.Symmetry, 0, 1)
	v.Geometry.AngularVsCurved = clamp(v.Geometry.AngularVsCurved, -1, 1)
	if v.Geometry.ShapeType == "" {
		v.Geometry.ShapeType = model.ShapePolygon
	}

	v.Color.Hue = wrapDegrees(clamp(v.Color.Hue, -math.MaxFloat64, math.MaxFloat64))
	v.Color.Saturation = clamp(v.Color.Saturation, 0, 100)
	v.Color.Brightness = clamp(v.Color.Brightness, 0, 100)
	if v.Color.PaletteFamily == "" {
		v.Color.PaletteFamily = paletteForHue(v.Color.Hue)
	}

	v.Spatial.X = clamp(v.Spatial.X, -1, 1)
	v.Spatial.Y = clamp(v.Spatial.Y, -1, 1)
	v.Spatial.Z = clamp(v.Spatial.Z, 0, 1)
	v.Spatial.Rotation = wrapDegrees(clamp(v.Spatial.Rotation, -math.MaxFloat64, math.MaxFloat64))

	v.Texture.GlowIntensity = clamp(v.Texture.GlowIntensity, 0, 1)
	v.Texture.FractalDimension = clamp(v.Texture.FractalDimension, 1, 2)
	v.Texture.PatternDensity = clamp(v.Texture.PatternDensity, 0, 1)
	return v
}
