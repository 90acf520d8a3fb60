package formula

import (
	"hash/fnv"
	"math"
	"strings"
	"unicode"

	"formulaevo/internal/model"
)

// Signals are values derived from the name alone.
type Signals struct {
	Length      float64
	Syllables   float64
	VowelRatio  float64
	LetterSum   float64
	DigitalRoot float64
	Entropy     float64
	RareRatio   float64
	Repetition  float64
	Phase       float64
}

const rareLetters = "jqxzkvwy"

func nameSignals(name string) Signals {
	lower := strings.ToLower(name)
	var (
		letters   int
		vowels    int
		syllables int
		rare      int
		sum       int
		prevVowel bool
	)
	counts := map[rune]int{}
	for _, r := range lower {
		if !unicode.IsLetter(r) {
			prevVowel = false
			continue
		}
		letters++
		counts[r]++
		isVowel := strings.ContainsRune("aeiouy", r)
		if isVowel {
			vowels++
			if !prevVowel {
				syllables++
			}
		}
		prevVowel = isVowel
		if strings.ContainsRune(rareLetters, r) {
			rare++
		}
		if r >= 'a' && r <= 'z' {
			sum += int(r-'a') + 1
		}
	}

	sig := Signals{
		Length:    float64(letters),
		Syllables: float64(syllables),
		LetterSum: float64(sum),
		Phase:     phase(name),
	}
	if letters == 0 {
		return sig
	}
	if sig.Syllables == 0 {
		sig.Syllables = 1
	}
	sig.VowelRatio = float64(vowels) / float64(letters)
	sig.RareRatio = float64(rare) / float64(letters)
	sig.Repetition = 1 - float64(len(counts))/float64(letters)
	if sum > 0 {
		sig.DigitalRoot = float64(1 + (sum-1)%9)
	}
	for _, c := range counts {
		p := float64(c) / float64(letters)
		sig.Entropy -= p * math.Log2(p)
	}
	return sig
}

func phase(name string) float64 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(name))
	return float64(h.Sum32()) / (1 << 32)
}

// reader resolves feature values, falling back to name-derived estimates.
type reader struct {
	features model.Features
}

func (r reader) get(key string, fallback float64) float64 {
	if v, ok := r.features[key]; ok {
		return v
	}
	return fallback
}

func squash(x float64) float64 {
	return 0.5 * (math.Tanh(x) + 1)
}

func signed(x float64) float64 {
	return math.Tanh(x)
}

func percent(x float64) float64 {
	return 100 * squash(x)
}

func wrapDegrees(x float64) float64 {
	r := math.Mod(x, 360)
	if r < 0 {
		r += 360
	}
	if r >= 360 {
		r = 0
	}
	return r
}

func clamp(x, lo, hi float64) float64 {
	if math.IsNaN(x) {
		return lo
	}
	if x < lo {
		return lo
	}
	if x > hi {
		return hi
	}
	return x
}

func shapeAt(u float64) model.ShapeType {
	i := int(math.Floor(clamp(u, 0, 1) * float64(len(model.Shapes))))
	if i >= len(model.Shapes) {
		i = len(model.Shapes) - 1
	}
	return model.Shapes[i]
}

// paletteForHue buckets a hue into warm (reds through yellows), cool (greens
// through blues) or neutral.
func paletteForHue(hue float64) model.PaletteFamily {
	switch {
	case hue < 90 || hue >= 330:
		return model.PaletteWarm
	case hue >= 150 && hue < 270:
		return model.PaletteCool
	default:
		return model.PaletteNeutral
	}
}
