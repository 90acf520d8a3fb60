package model

// VersionedRecord captures schema and codec evolution for persistent data.
type VersionedRecord struct {
	SchemaVersion int `json:"schema_version"`
	CodecVersion  int `json:"codec_version"`
}

// Features is a linguistic feature vector keyed by feature name.
type Features map[string]float64

// Clone returns an independent copy of the feature vector.
func (f Features) Clone() Features {
	if f == nil {
		return nil
	}
	out := make(Features, len(f))
	for k, v := range f {
		out[k] = v
	}
	return out
}

// DomainEntity is one named sample of a domain with its measured outcome.
type DomainEntity struct {
	Name     string   `json:"name"`
	Features Features `json:"features"`
	Outcome  float64  `json:"outcome"`
	DomainID string   `json:"domain_id"`
}

// FormulaDefinition pairs a formula type with its parameter vector.
type FormulaDefinition struct {
	Type       FormulaType `json:"formula_type"`
	Parameters []float64   `json:"parameters"`
}

type Individual struct {
	Parameters     []float64 `json:"parameters"`
	Fitness        float64   `json:"fitness"`
	GenerationBorn int       `json:"generation_born"`
	Origin         string    `json:"origin"`
}

// Clone copies the parameter slice so snapshots never share backing arrays.
func (i Individual) Clone() Individual {
	i.Parameters = append([]float64(nil), i.Parameters...)
	return i
}

type Generation struct {
	Index       int          `json:"index"`
	Population  []Individual `json:"population"`
	Best        Individual   `json:"best"`
	MeanFitness float64      `json:"mean_fitness"`
	MinFitness  float64      `json:"min_fitness"`
	Diversity   float64      `json:"diversity"`
	Failures    int          `json:"failures"`
}

type EvolutionHistory struct {
	VersionedRecord
	RunID       string       `json:"run_id"`
	FormulaType FormulaType  `json:"formula_type"`
	Domains     []string     `json:"domains"`
	SampleLimit int          `json:"sample_limit"`
	Seed        int64        `json:"seed"`
	Generations []Generation `json:"generations"`
	Converged   bool         `json:"converged"`
	TimedOut    bool         `json:"timed_out"`
	Cancelled   bool         `json:"cancelled"`
	StopReason  string       `json:"stop_reason"`
}

// Best returns the best individual of the last recorded generation.
func (h EvolutionHistory) Best() (Individual, bool) {
	if len(h.Generations) == 0 {
		return Individual{}, false
	}
	return h.Generations[len(h.Generations)-1].Best, true
}

// BestByGeneration lists the best fitness of every recorded generation.
func (h EvolutionHistory) BestByGeneration() []float64 {
	out := make([]float64, 0, len(h.Generations))
	for _, g := range h.Generations {
		out = append(out, g.Best.Fitness)
	}
	return out
}

type InvariantKind string

const (
	KindKnownConstant InvariantKind = "known_constant"
	KindNovelPattern  InvariantKind = "novel_pattern"
)

type InvariantScope string

const (
	ScopeWithinFormula InvariantScope = "within_formula"
	ScopeCrossFormula  InvariantScope = "cross_formula"
)

type Invariant struct {
	Description      string         `json:"description"`
	Value            float64        `json:"value"`
	ConsistencyScore float64        `json:"consistency_score"`
	Kind             InvariantKind  `json:"kind"`
	Scope            InvariantScope `json:"scope"`
	FormulaTypes     []FormulaType  `json:"formula_types"`
	Samples          int            `json:"samples"`
	MatchedConstant  string         `json:"matched_constant,omitempty"`
	RelativeError    float64        `json:"relative_error,omitempty"`
}

// InvariantSet is the persisted output of one convergence analysis.
type InvariantSet struct {
	VersionedRecord
	ID         string      `json:"id"`
	RunIDs     []string    `json:"run_ids"`
	Invariants []Invariant `json:"invariants"`
}

// RunRecord indexes a persisted evolution run.
type RunRecord struct {
	RunID        string      `json:"run_id"`
	CreatedAtUTC string      `json:"created_at_utc"`
	FormulaType  FormulaType `json:"formula_type"`
	Domains      []string    `json:"domains"`
	Seed         int64       `json:"seed"`
	Generations  int         `json:"generations"`
	BestFitness  float64     `json:"best_fitness"`
	Converged    bool        `json:"converged"`
	TimedOut     bool        `json:"timed_out"`
}
