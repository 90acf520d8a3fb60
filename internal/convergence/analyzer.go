package convergence

import (
	"fmt"
	"log/slog"
	"math"
	"sort"

	"formulaevo/internal/formula"
	"formulaevo/internal/metrics"
	"formulaevo/internal/model"
	"formulaevo/internal/stats"
)

const (
	DefaultMinRuns   = 3
	DefaultMaxCV     = 0.05
	DefaultTolerance = 0.01
)

type Config struct {
	// MinRuns is the number of runs a ratio family needs before it is tested.
	MinRuns int
	// MaxCV is the exclusive coefficient-of-variation ceiling for acceptance.
	MaxCV float64
	// Tolerance is the relative error allowed when matching a constant.
	Tolerance float64
	Constants []Constant
	Logger    *slog.Logger
	Metrics   *metrics.Metrics
}

// Analyzer looks for ratios that stay stable across independent runs.
type Analyzer struct {
	cfg Config
}

func NewAnalyzer(cfg Config) (*Analyzer, error) {
	if cfg.MinRuns == 0 {
		cfg.MinRuns = DefaultMinRuns
	}
	if cfg.MinRuns < 2 {
		return nil, fmt.Errorf("min runs must be >= 2")
	}
	if cfg.MaxCV == 0 {
		cfg.MaxCV = DefaultMaxCV
	}
	if cfg.Tolerance == 0 {
		cfg.Tolerance = DefaultTolerance
	}
	if cfg.MaxCV < 0 || cfg.Tolerance < 0 {
		return nil, fmt.Errorf("max cv and tolerance must be >= 0")
	}
	if cfg.Constants == nil {
		cfg.Constants = DefaultConstants
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Analyzer{cfg: cfg}, nil
}

// family is one candidate ratio observed once per run.
type family struct {
	label        string
	scope        model.InvariantScope
	formulaTypes []model.FormulaType
	ratios       []float64
}

// Analyze returns every consistent ratio family, most consistent first.
// Finding nothing is a normal outcome and yields an empty slice.
func (a *Analyzer) Analyze(histories []model.EvolutionHistory) []model.Invariant {
	runs := bestRuns(histories)
	families := append(a.withinFormula(runs), a.crossFormula(runs)...)

	out := make([]model.Invariant, 0)
	for _, f := range families {
		inv, ok := a.evaluate(f)
		if !ok {
			continue
		}
		a.cfg.Metrics.ObserveInvariant(string(inv.Kind))
		out = append(out, inv)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].ConsistencyScore != out[j].ConsistencyScore {
			return out[i].ConsistencyScore > out[j].ConsistencyScore
		}
		return out[i].Description < out[j].Description
	})
	a.cfg.Logger.Info("convergence analysis finished",
		slog.Int("histories", len(histories)),
		slog.Int("families", len(families)),
		slog.Int("invariants", len(out)),
	)
	return out
}

func (a *Analyzer) evaluate(f family) (model.Invariant, bool) {
	if len(f.ratios) < a.cfg.MinRuns {
		return model.Invariant{}, false
	}
	mean, _, cv, ok := stats.MeanCV(f.ratios)
	if !ok || math.IsNaN(cv) || cv >= a.cfg.MaxCV {
		return model.Invariant{}, false
	}
	inv := model.Invariant{
		Value:            mean,
		ConsistencyScore: 1 - cv,
		Kind:             model.KindNovelPattern,
		Scope:            f.scope,
		FormulaTypes:     f.formulaTypes,
		Samples:          len(f.ratios),
	}
	if c, relErr, matched := Match(mean, a.cfg.Constants, a.cfg.Tolerance); matched {
		inv.Kind = model.KindKnownConstant
		inv.MatchedConstant = c.Name
		inv.RelativeError = relErr
		inv.Description = fmt.Sprintf("%s ratio %.4f matches %s (%.4f) across %d runs", f.label, mean, c.Name, c.Value, len(f.ratios))
	} else {
		inv.Description = fmt.Sprintf("%s ratio %.4f is consistent across %d runs", f.label, mean, len(f.ratios))
	}
	return inv, true
}

type run struct {
	formulaType model.FormulaType
	seed        int64
	best        model.Individual
}

func bestRuns(histories []model.EvolutionHistory) []run {
	out := make([]run, 0, len(histories))
	for _, h := range histories {
		best, ok := h.Best()
		if !ok {
			continue
		}
		bounds, err := formula.Bounds(h.FormulaType)
		if err != nil || len(bounds) != len(best.Parameters) {
			continue
		}
		out = append(out, run{formulaType: h.FormulaType, seed: h.Seed, best: best})
	}
	return out
}

func (a *Analyzer) withinFormula(runs []run) []family {
	byType := groupByType(runs)
	var out []family
	for _, t := range model.FormulaTypes {
		group := byType[t]
		if len(group) < a.cfg.MinRuns {
			continue
		}
		bounds, _ := formula.Bounds(t)
		for i := 0; i < len(bounds); i++ {
			for j := i + 1; j < len(bounds); j++ {
				num := make([]float64, len(group))
				den := make([]float64, len(group))
				for k, r := range group {
					num[k] = r.best.Parameters[i]
					den[k] = r.best.Parameters[j]
				}
				ratios, swapped, ok := orientedRatios(num, den)
				if !ok {
					continue
				}
				top, bottom := bounds[i].Name, bounds[j].Name
				if swapped {
					top, bottom = bottom, top
				}
				out = append(out, family{
					label:        fmt.Sprintf("%s %s/%s", t, top, bottom),
					scope:        model.ScopeWithinFormula,
					formulaTypes: []model.FormulaType{t},
					ratios:       ratios,
				})
			}
		}
	}
	return out
}

func (a *Analyzer) crossFormula(runs []run) []family {
	byType := groupByType(runs)
	var out []family
	for x := 0; x < len(model.FormulaTypes); x++ {
		for y := x + 1; y < len(model.FormulaTypes); y++ {
			ta, tb := model.FormulaTypes[x], model.FormulaTypes[y]
			pairs := pairRuns(byType[ta], byType[tb])
			if len(pairs) < a.cfg.MinRuns {
				continue
			}
			fitA := make([]float64, len(pairs))
			fitB := make([]float64, len(pairs))
			posA := make([]float64, len(pairs))
			posB := make([]float64, len(pairs))
			for k, p := range pairs {
				fitA[k], fitB[k] = p[0].best.Fitness, p[1].best.Fitness
				posA[k], posB[k] = meanPosition(p[0]), meanPosition(p[1])
			}
			if f, ok := crossFamily("best fitness", ta, tb, fitA, fitB); ok {
				out = append(out, f)
			}
			if f, ok := crossFamily("mean parameter position", ta, tb, posA, posB); ok {
				out = append(out, f)
			}
		}
	}
	return out
}

func crossFamily(what string, ta, tb model.FormulaType, a, b []float64) (family, bool) {
	ratios, swapped, ok := orientedRatios(a, b)
	if !ok {
		return family{}, false
	}
	top, bottom := ta, tb
	if swapped {
		top, bottom = tb, ta
	}
	return family{
		label:        fmt.Sprintf("%s %s/%s", what, top, bottom),
		scope:        model.ScopeCrossFormula,
		formulaTypes: []model.FormulaType{ta, tb},
		ratios:       ratios,
	}, true
}

// orientedRatios divides num by den element-wise and inverts the family when
// its mean is below one, so every reported ratio is >= 1 on average.
func orientedRatios(num, den []float64) ([]float64, bool, bool) {
	ratios := make([]float64, len(num))
	for i := range num {
		if den[i] == 0 || num[i] == 0 {
			return nil, false, false
		}
		r := num[i] / den[i]
		if math.IsNaN(r) || math.IsInf(r, 0) || r <= 0 {
			return nil, false, false
		}
		ratios[i] = r
	}
	if stats.Mean(ratios) >= 1 {
		return ratios, false, true
	}
	for i, r := range ratios {
		ratios[i] = 1 / r
	}
	return ratios, true, true
}

// pairRuns matches runs of two formula types by seed, falling back to
// positional pairing when no seeds are shared.
func pairRuns(a, b []run) [][2]run {
	bySeed := make(map[int64]run, len(b))
	for _, r := range b {
		if _, exists := bySeed[r.seed]; !exists {
			bySeed[r.seed] = r
		}
	}
	var pairs [][2]run
	used := map[int64]bool{}
	for _, r := range a {
		other, ok := bySeed[r.seed]
		if !ok || used[r.seed] {
			continue
		}
		used[r.seed] = true
		pairs = append(pairs, [2]run{r, other})
	}
	if len(pairs) > 0 {
		return pairs
	}
	for i := 0; i < len(a) && i < len(b); i++ {
		pairs = append(pairs, [2]run{a[i], b[i]})
	}
	return pairs
}

// meanPosition is the average of each parameter's position within its
// bounds, in [0, 1].
func meanPosition(r run) float64 {
	bounds, _ := formula.Bounds(r.formulaType)
	total := 0.0
	for i, b := range bounds {
		if b.Span() > 0 {
			total += (r.best.Parameters[i] - b.Min) / b.Span()
		}
	}
	return total / float64(len(bounds))
}

func groupByType(runs []run) map[model.FormulaType][]run {
	out := make(map[model.FormulaType][]run)
	for _, r := range runs {
		out[r.formulaType] = append(out[r.formulaType], r)
	}
	return out
}
