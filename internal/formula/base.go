package formula

import (
	"math"

	"formulaevo/internal/model"
)

// Formula is one deterministic name-to-encoding strategy. Implementations
// receive already validated input and may leave PaletteFamily empty, in which
// case the engine derives it from the hue.
type Formula interface {
	Type() model.FormulaType
	Encode(sig Signals, features model.Features, params []float64) model.VisualEncoding
}

// phoneticFormula maps syllables, vowel_ratio, harshness and softness onto
// hue, angular_vs_curved, complexity and glow.
type phoneticFormula struct{}

func (phoneticFormula) Type() model.FormulaType { return model.FormulaPhonetic }

func (phoneticFormula) Encode(sig Signals, features model.Features, p []float64) model.VisualEncoding {
	f := reader{features}
	vowel := f.get("vowel_ratio", sig.VowelRatio)
	harsh := f.get("harshness", 0)
	soft := f.get("softness", 0)
	syl := f.get("syllables", sig.Syllables)

	hue := wrapDegrees(p[0]*vowel + p[1]*harsh + p[2])
	return model.VisualEncoding{
		Geometry: model.Geometry{
			ShapeType:       shapeAt(squash(p[4] * (soft - harsh + vowel - 0.5))),
			Complexity:      squash(p[3] * (syl/3 - 1)),
			Symmetry:        squash(1 - p[4]*math.Abs(harsh-soft)),
			AngularVsCurved: signed(p[4] * (harsh - soft)),
		},
		Color: model.Color{
			Hue:        hue,
			Saturation: percent(0.5*p[4]*harsh + 0.2),
			Brightness: percent(2*vowel - 0.5 + 0.5*soft),
		},
		Spatial: model.Spatial{
			X:        signed(2 * p[4] * (vowel - 0.5)),
			Y:        signed(p[3] * (syl - 2) / 2),
			Z:        squash(2*sig.Phase - 1),
			Rotation: wrapDegrees(360*sig.Phase + p[2]),
		},
		Texture: model.Texture{
			GlowIntensity:    squash(p[5] * (soft + vowel - 0.5)),
			FractalDimension: 1 + squash(p[3]*syl/4-1),
			PatternDensity:   squash(p[5] * (harsh - 0.25)),
		},
	}
}

// semanticFormula maps sentiment, memorability, power and abstractness onto
// hue, saturation, brightness and palette.
type semanticFormula struct{}

func (semanticFormula) Type() model.FormulaType { return model.FormulaSemantic }

func (semanticFormula) Encode(sig Signals, features model.Features, p []float64) model.VisualEncoding {
	f := reader{features}
	sent := f.get("sentiment", 0)
	mem := f.get("memorability", 0.5)
	power := f.get("power", 0)
	abstr := f.get("abstractness", 0.5)

	palette := model.PaletteNeutral
	switch {
	case sent > 0.1:
		palette = model.PaletteWarm
	case sent < -0.1:
		palette = model.PaletteCool
	}

	return model.VisualEncoding{
		Geometry: model.Geometry{
			ShapeType:       shapeAt(squash(p[5]*(abstr+mem) - 1)),
			Complexity:      squash(p[5] * abstr),
			Symmetry:        squash(p[4] * (mem - 0.5)),
			AngularVsCurved: signed(power - sent),
		},
		Color: model.Color{
			Hue:           wrapDegrees(p[0]*sent + p[1]*power + p[2]),
			Saturation:    percent(p[3]*(mem-0.5) + power),
			Brightness:    percent(p[4] * sent),
			PaletteFamily: palette,
		},
		Spatial: model.Spatial{
			X:        signed(0.5 * p[3] * sent),
			Y:        signed(0.5 * p[4] * power),
			Z:        squash(p[5] * (abstr - 0.5)),
			Rotation: wrapDegrees(p[0]*mem + p[2] + 360*sig.Phase),
		},
		Texture: model.Texture{
			GlowIntensity:    squash(p[3] * mem),
			FractalDimension: 1 + squash(0.5*p[5]*abstr),
			PatternDensity:   squash(p[4]*(power+mem) - 1),
		},
	}
}

// structuralFormula maps length, syllables, consonant_clusters and
// symmetry_score onto shape, symmetry, complexity, pattern density and
// spatial position.
type structuralFormula struct{}

func (structuralFormula) Type() model.FormulaType { return model.FormulaStructural }

func (structuralFormula) Encode(sig Signals, features model.Features, p []float64) model.VisualEncoding {
	f := reader{features}
	length := f.get("length", sig.Length)
	syl := f.get("syllables", sig.Syllables)
	clusters := f.get("consonant_clusters", 0)
	symm := f.get("symmetry_score", 0)

	perLetter := syl
	if length > 0 {
		perLetter = syl / length
	}

	return model.VisualEncoding{
		Geometry: model.Geometry{
			ShapeType:       shapeAt(squash(p[1] * (syl - 2) / 2)),
			Complexity:      squash(p[1]*(length/8-1) + 0.25*p[2]*clusters),
			Symmetry:        squash(p[0] * (symm - 0.5)),
			AngularVsCurved: signed(p[2]*clusters - p[0]*symm),
		},
		Color: model.Color{
			Hue:        wrapDegrees(sig.LetterSum*p[5]/10 + 30*clusters),
			Saturation: percent(p[0] * symm),
			Brightness: percent(1 - 0.25*p[3]*clusters),
		},
		Spatial: model.Spatial{
			X:        signed(p[4] * (length - 8) / 8),
			Y:        signed(p[4] * (syl - 3) / 3),
			Z:        squash(p[2]*clusters - 1),
			Rotation: wrapDegrees(p[5] * length),
		},
		Texture: model.Texture{
			GlowIntensity:    squash(p[0]*symm - 0.5),
			FractalDimension: 1 + squash(0.5*p[1]*clusters-0.5),
			PatternDensity:   squash(p[3] * (4*perLetter - 1)),
		},
	}
}

// frequencyFormula maps letter_entropy, rare_letter_ratio, repetition and
// uniqueness onto fractal dimension, pattern density, brightness and rotation.
type frequencyFormula struct{}

func (frequencyFormula) Type() model.FormulaType { return model.FormulaFrequency }

func (frequencyFormula) Encode(sig Signals, features model.Features, p []float64) model.VisualEncoding {
	f := reader{features}
	ent := f.get("letter_entropy", sig.Entropy)
	rare := f.get("rare_letter_ratio", sig.RareRatio)
	rep := f.get("repetition", sig.Repetition)
	uniq := f.get("uniqueness", 0)

	return model.VisualEncoding{
		Geometry: model.Geometry{
			ShapeType:       shapeAt(squash(p[0] * (ent - 2.5))),
			Complexity:      squash(p[0] * (ent - 2)),
			Symmetry:        squash(3 * p[2] * (rep - 0.2)),
			AngularVsCurved: signed(4 * p[1] * (rare - 0.1)),
		},
		Color: model.Color{
			Hue:        wrapDegrees(p[4]*ent + 100*p[1]*rare),
			Saturation: percent(5 * p[1] * (rare - 0.1)),
			Brightness: percent(p[3]*uniq + p[5]),
		},
		Spatial: model.Spatial{
			X:        signed(p[3] * (uniq - 0.5)),
			Y:        signed(2 * p[2] * (rep - 0.2)),
			Z:        squash(p[0]*ent/4 - 0.5),
			Rotation: wrapDegrees(p[4]*rare + 360*sig.Phase),
		},
		Texture: model.Texture{
			GlowIntensity:    squash(p[3]*uniq - 0.5 + 0.25*p[5]),
			FractalDimension: 1 + squash(p[0]*(ent/3-1)),
			PatternDensity:   squash(2*p[2]*rep + 0.5*p[0]*(ent/3-1)),
		},
	}
}

// numerologicalFormula maps the letter sum, its digital root and length onto
// hue (modular), rotation, shape and depth.
type numerologicalFormula struct{}

func (numerologicalFormula) Type() model.FormulaType { return model.FormulaNumerological }

func (numerologicalFormula) Encode(sig Signals, features model.Features, p []float64) model.VisualEncoding {
	f := reader{features}
	sum := sig.LetterSum
	root := sig.DigitalRoot
	length := f.get("length", sig.Length)

	hue := wrapDegrees(p[0]*sum + p[1]*root + p[2])
	radius := squash(p[4])
	theta := hue * math.Pi / 180
	shapeIdx := (int(root) + int(math.Floor(p[5]))) % len(model.Shapes)

	return model.VisualEncoding{
		Geometry: model.Geometry{
			ShapeType:       model.Shapes[shapeIdx],
			Complexity:      squash(p[4] * (length/10 - 0.5)),
			Symmetry:        squash(p[4] * math.Cos(2*math.Pi*root/3)),
			AngularVsCurved: signed(2 * math.Sin(sum*p[0]*math.Pi/180)),
		},
		Color: model.Color{
			Hue:        hue,
			Saturation: percent(0.1 * p[0] * (math.Mod(sum, 10)/5 - 1)),
			Brightness: percent(2 * p[1] / 90 * (root/5 - 1)),
		},
		Spatial: model.Spatial{
			X:        radius * math.Cos(theta),
			Y:        radius * math.Sin(theta),
			Z:        squash(p[4] * (root/9 - 0.5)),
			Rotation: wrapDegrees(p[3]*root + p[0]*length),
		},
		Texture: model.Texture{
			GlowIntensity:    squash(p[4]*root/9 - 1),
			FractalDimension: 1 + clamp(root/9, 0, 1),
			PatternDensity:   squash(0.1*p[0]*length - 1),
		},
	}
}
