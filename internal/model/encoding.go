package model

import "fmt"

type ShapeType string

const (
	ShapeHeart   ShapeType = "heart"
	ShapeStar    ShapeType = "star"
	ShapeSpiral  ShapeType = "spiral"
	ShapeMandala ShapeType = "mandala"
	ShapePolygon ShapeType = "polygon"
	ShapeFractal ShapeType = "fractal"
)

// Shapes lists shape types in enum order. Tie-breaks follow this order.
var Shapes = []ShapeType{ShapeHeart, ShapeStar, ShapeSpiral, ShapeMandala, ShapePolygon, ShapeFractal}

type PaletteFamily string

const (
	PaletteWarm    PaletteFamily = "warm"
	PaletteCool    PaletteFamily = "cool"
	PaletteNeutral PaletteFamily = "neutral"
)

var Palettes = []PaletteFamily{PaletteWarm, PaletteCool, PaletteNeutral}

type FormulaType string

const (
	FormulaPhonetic      FormulaType = "phonetic"
	FormulaSemantic      FormulaType = "semantic"
	FormulaStructural    FormulaType = "structural"
	FormulaFrequency     FormulaType = "frequency"
	FormulaNumerological FormulaType = "numerological"
	FormulaHybrid        FormulaType = "hybrid"
)

// BaseFormulas lists the five non-composite formula types in hybrid weight order.
var BaseFormulas = []FormulaType{
	FormulaPhonetic,
	FormulaSemantic,
	FormulaStructural,
	FormulaFrequency,
	FormulaNumerological,
}

// FormulaTypes lists every formula type.
var FormulaTypes = append(append([]FormulaType(nil), BaseFormulas...), FormulaHybrid)

func ParseFormulaType(s string) (FormulaType, error) {
	for _, t := range FormulaTypes {
		if string(t) == s {
			return t, nil
		}
	}
	return "", fmt.Errorf("unknown formula type: %q", s)
}

type Geometry struct {
	ShapeType       ShapeType `json:"shape_type"`
	Complexity      float64   `json:"complexity"`
	Symmetry        float64   `json:"symmetry"`
	AngularVsCurved float64   `json:"angular_vs_curved"`
}

type Color struct {
	Hue           float64       `json:"hue"`
	Saturation    float64       `json:"saturation"`
	Brightness    float64       `json:"brightness"`
	PaletteFamily PaletteFamily `json:"palette_family"`
}

type Spatial struct {
	X        float64 `json:"x"`
	Y        float64 `json:"y"`
	Z        float64 `json:"z"`
	Rotation float64 `json:"rotation"`
}

type Texture struct {
	GlowIntensity    float64 `json:"glow_intensity"`
	FractalDimension float64 `json:"fractal_dimension"`
	PatternDensity   float64 `json:"pattern_density"`
}

// VisualEncoding is a bounded point in geometry/color/spatial/texture space.
// It is a plain value; copies never alias.
type VisualEncoding struct {
	Geometry Geometry `json:"geometry"`
	Color    Color    `json:"color"`
	Spatial  Spatial  `json:"spatial"`
	Texture  Texture  `json:"texture"`
}

// Property names a numeric VisualEncoding field.
type Property string

const (
	PropComplexity       Property = "complexity"
	PropSymmetry         Property = "symmetry"
	PropAngularVsCurved  Property = "angular_vs_curved"
	PropHue              Property = "hue"
	PropSaturation       Property = "saturation"
	PropBrightness       Property = "brightness"
	PropX                Property = "x"
	PropY                Property = "y"
	PropZ                Property = "z"
	PropRotation         Property = "rotation"
	PropGlowIntensity    Property = "glow_intensity"
	PropFractalDimension Property = "fractal_dimension"
	PropPatternDensity   Property = "pattern_density"
)

// Properties lists every numeric property in a stable order.
var Properties = []Property{
	PropComplexity,
	PropSymmetry,
	PropAngularVsCurved,
	PropHue,
	PropSaturation,
	PropBrightness,
	PropX,
	PropY,
	PropZ,
	PropRotation,
	PropGlowIntensity,
	PropFractalDimension,
	PropPatternDensity,
}

// Value reads a numeric property from the encoding.
func (v VisualEncoding) Value(p Property) float64 {
	switch p {
	case PropComplexity:
		return v.Geometry.Complexity
	case PropSymmetry:
		return v.Geometry.Symmetry
	case PropAngularVsCurved:
		return v.Geometry.AngularVsCurved
	case PropHue:
		return v.Color.Hue
	case PropSaturation:
		return v.Color.Saturation
	case PropBrightness:
		return v.Color.Brightness
	case PropX:
		return v.Spatial.X
	case PropY:
		return v.Spatial.Y
	case PropZ:
		return v.Spatial.Z
	case PropRotation:
		return v.Spatial.Rotation
	case PropGlowIntensity:
		return v.Texture.GlowIntensity
	case PropFractalDimension:
		return v.Texture.FractalDimension
	case PropPatternDensity:
		return v.Texture.PatternDensity
	default:
		return 0
	}
}

type PropertyCorrelation struct {
	Property    Property `json:"property"`
	Correlation float64  `json:"correlation"`
	PValue      float64  `json:"p_value"`
	Significant bool     `json:"significant"`
}

type DomainPerformance struct {
	DomainID        string                `json:"domain_id"`
	EntityCount     int                   `json:"entity_count"`
	DroppedEntities int                   `json:"dropped_entities,omitempty"`
	Skipped         bool                  `json:"skipped"`
	SkipReason      string                `json:"skip_reason,omitempty"`
	Correlations    []PropertyCorrelation `json:"correlations,omitempty"`
	Significant     []PropertyCorrelation `json:"significant,omitempty"`
}

type ValidationReport struct {
	VersionedRecord
	ID          string               `json:"id,omitempty"`
	FormulaType FormulaType          `json:"formula_type"`
	Parameters  []float64            `json:"parameters"`
	SampleLimit int                  `json:"sample_limit"`
	Domains     []DomainPerformance  `json:"domains"`
	Consistency map[Property]float64 `json:"consistency"`
}

// ActiveDomains returns the non-skipped domain records.
func (r ValidationReport) ActiveDomains() []DomainPerformance {
	out := make([]DomainPerformance, 0, len(r.Domains))
	for _, d := range r.Domains {
		if !d.Skipped {
			out = append(out, d)
		}
	}
	return out
}
