package evo

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/goffincedric/SimpleAI/internal/model"
)

// Metrics exposes run progress to Prometheus. A nil *Metrics records nothing.
type Metrics struct {
	generations       prometheus.Counter
	evaluations       prometheus.Counter
	failedEvaluations prometheus.Counter
	bestFitness       prometheus.Gauge
	meanFitness       prometheus.Gauge
	bestEdges         prometheus.Gauge
	bestHidden        prometheus.Gauge
	mutations         *prometheus.CounterVec
	evaluationSeconds prometheus.Histogram
}

// NewMetrics registers every collector with reg. A nil reg leaves them
// unregistered, which is what tests want.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		generations: f.NewCounter(prometheus.CounterOpts{
			Name: "poleevo_generations_total",
			Help: "Generations evaluated.",
		}),
		evaluations: f.NewCounter(prometheus.CounterOpts{
			Name: "poleevo_evaluations_total",
			Help: "Episodes run.",
		}),
		failedEvaluations: f.NewCounter(prometheus.CounterOpts{
			Name: "poleevo_failed_evaluations_total",
			Help: "Episodes that ended in an error or panic.",
		}),
		bestFitness: f.NewGauge(prometheus.GaugeOpts{
			Name: "poleevo_best_fitness",
			Help: "Best fitness of the latest generation.",
		}),
		meanFitness: f.NewGauge(prometheus.GaugeOpts{
			Name: "poleevo_mean_fitness",
			Help: "Mean fitness of the latest generation.",
		}),
		bestEdges: f.NewGauge(prometheus.GaugeOpts{
			Name: "poleevo_best_edge_count",
			Help: "Edge count of the best graph of the latest generation.",
		}),
		bestHidden: f.NewGauge(prometheus.GaugeOpts{
			Name: "poleevo_best_hidden_count",
			Help: "Hidden node count of the best graph of the latest generation.",
		}),
		mutations: f.NewCounterVec(prometheus.CounterOpts{
			Name: "poleevo_mutations_total",
			Help: "Mutation attempts by operator and outcome.",
		}, []string{"operator", "result"}),
		evaluationSeconds: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "poleevo_evaluation_seconds",
			Help:    "Wall time of one episode.",
			Buckets: prometheus.ExponentialBuckets(0.001, 4, 8),
		}),
	}
}

func (m *Metrics) observeEvaluation(d time.Duration, failed bool) {
	if m == nil {
		return
	}
	m.evaluations.Inc()
	m.evaluationSeconds.Observe(d.Seconds())
	if failed {
		m.failedEvaluations.Inc()
	}
}

func (m *Metrics) observeMutation(operator string, applied bool) {
	if m == nil {
		return
	}
	result := "applied"
	if !applied {
		result = "rejected"
	}
	m.mutations.WithLabelValues(operator, result).Inc()
}

func (m *Metrics) observeGeneration(d model.GenerationDiagnostics) {
	if m == nil {
		return
	}
	m.generations.Inc()
	m.bestFitness.Set(d.BestFitness)
	m.meanFitness.Set(d.MeanFitness)
	m.bestEdges.Set(float64(d.BestEdgeCount))
	m.bestHidden.Set(float64(d.BestHiddenCount))
}
