package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "formulaevo"

// Metrics groups the collectors exported by validation, evolution and the
// cache. A nil *Metrics is a valid no-op recorder.
type Metrics struct {
	Evaluations        *prometheus.CounterVec
	Generations        *prometheus.CounterVec
	BestFitness        *prometheus.GaugeVec
	Runs               *prometheus.CounterVec
	Validations        *prometheus.HistogramVec
	DomainsSkipped     *prometheus.CounterVec
	EntitiesDropped    *prometheus.CounterVec
	CacheLookups       *prometheus.CounterVec
	InvariantsDetected *prometheus.CounterVec
}

// New registers the collectors on reg. Passing prometheus.DefaultRegisterer
// exposes them on the default /metrics handler.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Evaluations: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "evolution",
			Name:      "evaluations_total",
			Help:      "Fitness evaluations by formula type and result",
		}, []string{"formula_type", "result"}),
		Generations: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "evolution",
			Name:      "generations_total",
			Help:      "Completed generations by formula type",
		}, []string{"formula_type"}),
		BestFitness: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "evolution",
			Name:      "best_fitness",
			Help:      "Best fitness of the latest generation by formula type",
		}, []string{"formula_type"}),
		Runs: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "evolution",
			Name:      "runs_total",
			Help:      "Finished evolution runs by formula type and stop reason",
		}, []string{"formula_type", "stop_reason"}),
		Validations: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "validation",
			Name:      "duration_seconds",
			Help:      "Validation latency by formula type",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		}, []string{"formula_type"}),
		DomainsSkipped: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "validation",
			Name:      "domains_skipped_total",
			Help:      "Domains skipped during validation by reason",
		}, []string{"reason"}),
		EntitiesDropped: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "validation",
			Name:      "entities_dropped_total",
			Help:      "Entities rejected by the formula engine by domain",
		}, []string{"domain"}),
		CacheLookups: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "lookups_total",
			Help:      "Cache lookups by kind and result",
		}, []string{"kind", "result"}),
		InvariantsDetected: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "convergence",
			Name:      "invariants_total",
			Help:      "Invariants reported by kind",
		}, []string{"kind"}),
	}
}

func (m *Metrics) ObserveEvaluation(formulaType string, failed bool) {
	if m == nil {
		return
	}
	result := "ok"
	if failed {
		result = "failed"
	}
	m.Evaluations.WithLabelValues(formulaType, result).Inc()
}

func (m *Metrics) ObserveGeneration(formulaType string, best float64) {
	if m == nil {
		return
	}
	m.Generations.WithLabelValues(formulaType).Inc()
	m.BestFitness.WithLabelValues(formulaType).Set(best)
}

func (m *Metrics) ObserveRun(formulaType, stopReason string) {
	if m == nil {
		return
	}
	m.Runs.WithLabelValues(formulaType, stopReason).Inc()
}

func (m *Metrics) ObserveValidation(formulaType string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.Validations.WithLabelValues(formulaType).Observe(elapsed.Seconds())
}

func (m *Metrics) ObserveSkippedDomain(reason string) {
	if m == nil {
		return
	}
	m.DomainsSkipped.WithLabelValues(reason).Inc()
}

func (m *Metrics) ObserveDroppedEntities(domainID string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.EntitiesDropped.WithLabelValues(domainID).Add(float64(n))
}

func (m *Metrics) ObserveInvariant(kind string) {
	if m == nil {
		return
	}
	m.InvariantsDetected.WithLabelValues(kind).Inc()
}

// CacheLookup satisfies cache.Observer.
func (m *Metrics) CacheLookup(kind string, hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.CacheLookups.WithLabelValues(kind, result).Inc()
}
