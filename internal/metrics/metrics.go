package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"evolva/internal/evo"
)

// Recorder holds the engine's Prometheus collectors.
type Recorder struct {
	registry *prometheus.Registry

	GenerationsTotal *prometheus.CounterVec
	BestRawScore     *prometheus.GaugeVec
	MeanRawScore     *prometheus.GaugeVec
	StepDuration     prometheus.Histogram

	CacheHitsTotal   prometheus.Counter
	CacheMissesTotal prometheus.Counter
	RunsTotal        *prometheus.CounterVec
}

// NewRecorder registers the collectors on registry. A nil registry gets a
// fresh one so recorders never collide on the global default.
func NewRecorder(registry *prometheus.Registry) *Recorder {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}
	factory := promauto.With(registry)
	return &Recorder{
		registry: registry,

		GenerationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "evolva_generations_total",
				Help: "Total number of completed generations",
			},
			[]string{"run_id"},
		),
		BestRawScore: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "evolva_best_raw_score",
				Help: "Best raw score of the current generation",
			},
			[]string{"run_id"},
		),
		MeanRawScore: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "evolva_mean_raw_score",
				Help: "Mean raw score of the current generation",
			},
			[]string{"run_id"},
		),
		StepDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "evolva_step_duration_seconds",
				Help:    "Wall time of one generation step in seconds",
				Buckets: prometheus.ExponentialBuckets(0.0001, 4, 10),
			},
		),

		CacheHitsTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "evolva_evaluation_cache_hits_total",
				Help: "Total number of evaluations served from the score cache",
			},
		),
		CacheMissesTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "evolva_evaluation_cache_misses_total",
				Help: "Total number of evaluations computed in full",
			},
		),
		RunsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "evolva_runs_total",
				Help: "Total number of finished runs",
			},
			[]string{"status"},
		),
	}
}

func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// Handler serves the recorder's registry in the Prometheus text format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{Registry: r.registry})
}

// ForRun returns an observer that records generations under runID.
func (r *Recorder) ForRun(runID string) evo.Observer {
	generations := r.GenerationsTotal.WithLabelValues(runID)
	best := r.BestRawScore.WithLabelValues(runID)
	mean := r.MeanRawScore.WithLabelValues(runID)
	return evo.ObserverFunc(func(stats evo.GenerationStats) {
		generations.Inc()
		best.Set(float64(stats.BestRaw))
		mean.Set(stats.Population.RawMean)
		r.StepDuration.Observe(stats.Duration.Seconds())
	})
}

// RecordCache adds evaluation cache counts collected at the end of a run.
func (r *Recorder) RecordCache(hits, misses uint64) {
	r.CacheHitsTotal.Add(float64(hits))
	r.CacheMissesTotal.Add(float64(misses))
}

// RecordRun counts a finished run by status.
func (r *Recorder) RecordRun(status string) {
	r.RunsTotal.WithLabelValues(status).Inc()
}

// Forget drops the per-run series once a run is no longer interesting.
func (r *Recorder) Forget(runID string) {
	r.GenerationsTotal.DeleteLabelValues(runID)
	r.BestRawScore.DeleteLabelValues(runID)
	r.MeanRawScore.DeleteLabelValues(runID)
}
