package formula

import (
	"math"

	"formulaevo/internal/model"
)

// hybridFormula blends the five base formulas using normalized sub-weights.
// Each part runs with its own slice of the hybrid parameter vector.
type hybridFormula struct {
	parts []Formula
	arity []int
}

func newHybridFormula(parts []Formula) hybridFormula {
	arity := make([]int, len(parts))
	for i, part := range parts {
		arity[i] = len(boundsByType[part.Type()])
	}
	return hybridFormula{parts: parts, arity: arity}
}

func (hybridFormula) Type() model.FormulaType { return model.FormulaHybrid }

func (h hybridFormula) Encode(sig Signals, features model.Features, p []float64) model.VisualEncoding {
	weights := normalizeWeights(p[:len(h.parts)])
	encodings := make([]model.VisualEncoding, len(h.parts))
	offset := len(h.parts)
	for i, part := range h.parts {
		sub := p[offset : offset+h.arity[i]]
		offset += h.arity[i]
		if weights[i] == 0 {
			continue
		}
		encodings[i] = finalize(part.Encode(sig, features, sub))
	}
	return blend(encodings, weights)
}

func normalizeWeights(p []float64) []float64 {
	total := 0.0
	for _, w := range p {
		total += w
	}
	out := make([]float64, len(p))
	if total <= 0 {
		return out
	}
	for i, w := range p {
		out[i] = w / total
	}
	return out
}

func blend(encodings []model.VisualEncoding, weights []float64) model.VisualEncoding {
	var (
		out        model.VisualEncoding
		hueX, hueY float64
		rotX, rotY float64
		hueSum     float64
		rotSum     float64
	)
	shapeVotes := map[model.ShapeType]float64{}
	paletteVotes := map[model.PaletteFamily]float64{}

	for i, e := range encodings {
		w := weights[i]
		if w == 0 {
			continue
		}
		out.Geometry.Complexity += w * e.Geometry.Complexity
		out.Geometry.Symmetry += w * e.Geometry.Symmetry
		out.Geometry.AngularVsCurved += w * e.Geometry.AngularVsCurved
		out.Color.Saturation += w * e.Color.Saturation
		out.Color.Brightness += w * e.Color.Brightness
		out.Spatial.X += w * e.Spatial.X
		out.Spatial.Y += w * e.Spatial.Y
		out.Spatial.Z += w * e.Spatial.Z
		out.Texture.GlowIntensity += w * e.Texture.GlowIntensity
		out.Texture.FractalDimension += w * e.Texture.FractalDimension
		out.Texture.PatternDensity += w * e.Texture.PatternDensity

		hueRad := e.Color.Hue * math.Pi / 180
		hueX += w * math.Cos(hueRad)
		hueY += w * math.Sin(hueRad)
		hueSum += w * e.Color.Hue
		rotRad := e.Spatial.Rotation * math.Pi / 180
		rotX += w * math.Cos(rotRad)
		rotY += w * math.Sin(rotRad)
		rotSum += w * e.Spatial.Rotation

		shapeVotes[e.Geometry.ShapeType] += w
		paletteVotes[e.Color.PaletteFamily] += w
	}

	out.Color.Hue = circularMean(hueX, hueY, hueSum)
	out.Spatial.Rotation = circularMean(rotX, rotY, rotSum)
	out.Geometry.ShapeType = vote(model.Shapes, shapeVotes)
	out.Color.PaletteFamily = vote(model.Palettes, paletteVotes)
	return out
}

// circularMean returns the weighted mean angle, falling back to the linear
// mean when the resultant vector vanishes.
func circularMean(x, y, linear float64) float64 {
	if math.Hypot(x, y) < 1e-9 {
		return wrapDegrees(linear)
	}
	return wrapDegrees(math.Atan2(y, x) * 180 / math.Pi)
}

// vote picks the heaviest category; ties go to the earliest in order.
func vote[T comparable](order []T, votes map[T]float64) T {
	best := order[0]
	bestWeight := -1.0
	for _, candidate := range order {
		if w := votes[candidate]; w > bestWeight {
			best = candidate
			bestWeight = w
		}
	}
	return best
}
