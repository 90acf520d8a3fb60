package domain

import (
	"context"
	"fmt"
	"hash/fnv"
	"math/rand"
	"strings"

	"formulaevo/internal/model"
)

// ShuffledProvider permutes outcomes relative to entities, deterministically
// per seed and domain, to build null-correlation controls.
type ShuffledProvider struct {
	Inner Provider
	Seed  int64
}

func (p ShuffledProvider) Load(ctx context.Context, domainID string, sampleLimit int) ([]model.DomainEntity, error) {
	entities, err := p.Inner.Load(ctx, domainID, sampleLimit)
	if err != nil {
		return nil, err
	}
	h := fnv.New64a()
	_, _ = h.Write([]byte(domainID))
	rng := rand.New(rand.NewSource(p.Seed ^ int64(h.Sum64())))

	outcomes := make([]float64, len(entities))
	for i, e := range entities {
		outcomes[i] = e.Outcome
	}
	rng.Shuffle(len(outcomes), func(i, j int) {
		outcomes[i], outcomes[j] = outcomes[j], outcomes[i]
	})
	for i := range entities {
		entities[i].Outcome = outcomes[i]
	}
	return entities, nil
}

// SyntheticSpec describes a generated domain. Outcome is Gain times the
// Driver feature plus Gaussian noise of scale Noise.
type SyntheticSpec struct {
	DomainID string
	Count    int
	Seed     int64
	Driver   string
	Gain     float64
	Noise    float64
}

var syllables = []string{
	"ka", "ri", "to", "zen", "mar", "lo", "vex", "qua", "ne", "sol",
	"dra", "bit", "eth", "or", "ix", "lu", "gan", "phi", "ro", "tek",
}

// Synthetic generates entities with the feature keys every formula reads.
func Synthetic(spec SyntheticSpec) ([]model.DomainEntity, error) {
	if spec.Count <= 0 {
		return nil, fmt.Errorf("synthetic count must be > 0")
	}
	if spec.DomainID == "" {
		return nil, fmt.Errorf("synthetic domain id is required")
	}
	rng := rand.New(rand.NewSource(spec.Seed))
	gain := spec.Gain
	if gain == 0 {
		gain = 1
	}

	out := make([]model.DomainEntity, 0, spec.Count)
	for i := 0; i < spec.Count; i++ {
		parts := 1 + rng.Intn(3)
		var b strings.Builder
		for j := 0; j < parts; j++ {
			b.WriteString(syllables[rng.Intn(len(syllables))])
		}
		name := fmt.Sprintf("%s%d", strings.ToUpper(b.String()[:1])+b.String()[1:], i)

		features := model.Features{
			"syllables":          float64(parts),
			"vowel_ratio":        0.2 + 0.5*rng.Float64(),
			"harshness":          rng.Float64(),
			"softness":           rng.Float64(),
			"sentiment":          2*rng.Float64() - 1,
			"memorability":       rng.Float64(),
			"power":              rng.Float64(),
			"abstractness":       rng.Float64(),
			"length":             float64(len(b.String())),
			"consonant_clusters": float64(rng.Intn(4)),
			"symmetry_score":     rng.Float64(),
			"letter_entropy":     1.5 + 2*rng.Float64(),
			"rare_letter_ratio":  0.3 * rng.Float64(),
			"repetition":         0.4 * rng.Float64(),
			"uniqueness":         rng.Float64(),
		}
		outcome := spec.Noise * rng.NormFloat64()
		if spec.Driver != "" {
			driver, ok := features[spec.Driver]
			if !ok {
				return nil, fmt.Errorf("unknown synthetic driver feature %q", spec.Driver)
			}
			outcome += gain * driver
		}
		out = append(out, model.DomainEntity{
			Name:     name,
			Features: features,
			Outcome:  outcome,
			DomainID: spec.DomainID,
		})
	}
	return out, nil
}
