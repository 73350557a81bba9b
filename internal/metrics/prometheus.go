// Package metrics exposes the Prometheus instrumentation for CrossRank:
// run and stage timings, decision-row counters, and cache performance.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	io_prometheus_client "github.com/prometheus/client_model/go"
	"github.com/rs/zerolog/log"
)

// cacheTypes are the label values the hit-ratio gauge aggregates over.
var cacheTypes = []string{"memory", "redis"}

// Registry holds all Prometheus metrics for CrossRank.
type Registry struct {
	handler http.Handler

	// Stage duration metrics
	StageDuration *prometheus.HistogramVec

	// Cache performance metrics
	CacheHitRatio prometheus.Gauge
	CacheHits     *prometheus.CounterVec
	CacheMisses   *prometheus.CounterVec

	// Run metrics
	ActiveRuns   prometheus.Gauge
	TotalRuns    prometheus.Counter
	RunErrors    *prometheus.CounterVec
	RowsScored   prometheus.Counter
	DecisionRows *prometheus.CounterVec
	MissingRows  prometheus.Counter

	// Last completed run
	LastRunUnix     prometheus.Gauge
	LastRunDuration prometheus.Gauge
	RunInfo         *prometheus.GaugeVec
}

// NewRegistry creates the registry on the default Prometheus registerer.
func NewRegistry() *Registry {
	return NewRegistryOn(prometheus.DefaultRegisterer)
}

// NewRegistryOn creates the registry and registers every metric with reg.
// Tests pass a fresh prometheus.NewRegistry to avoid double registration.
func NewRegistryOn(reg prometheus.Registerer) *Registry {
	r := &Registry{
		StageDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "crossrank_stage_duration_seconds",
				Help:    "Duration of each run stage in seconds",
				Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0},
			},
			[]string{"stage", "result"},
		),

		CacheHitRatio: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "crossrank_cache_hit_ratio",
				Help: "Current panel cache hit ratio (0.0 to 1.0)",
			},
		),

		CacheHits: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crossrank_cache_hits_total",
				Help: "Total panel cache hits by backend",
			},
			[]string{"cache_type"},
		),

		CacheMisses: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crossrank_cache_misses_total",
				Help: "Total panel cache misses by backend",
			},
			[]string{"cache_type"},
		),

		ActiveRuns: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "crossrank_active_runs",
				Help: "Number of currently executing signal runs",
			},
		),

		TotalRuns: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "crossrank_runs_total",
				Help: "Total signal runs initiated",
			},
		),

		RunErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crossrank_run_errors_total",
				Help: "Total run failures by stage",
			},
			[]string{"stage"},
		),

		RowsScored: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "crossrank_rows_total",
				Help: "Total signal rows produced, held rows included",
			},
		),

		DecisionRows: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crossrank_decision_rows_total",
				Help: "Total decision rows computed by rebalance policy",
			},
			[]string{"policy"},
		),

		MissingRows: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "crossrank_missing_decision_rows_total",
				Help: "Total decision rows emitted all-missing for lack of valid data",
			},
		),

		LastRunUnix: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "crossrank_last_run_timestamp_seconds",
				Help: "Unix time of the last completed run",
			},
		),

		LastRunDuration: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "crossrank_last_run_duration_seconds",
				Help: "Wall time of the last completed run",
			},
		),

		RunInfo: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "crossrank_run_info",
				Help: "Identity of the last completed run, value always 1",
			},
			[]string{"run_id", "policy", "source"},
		),
	}

	reg.MustRegister(
		r.StageDuration,
		r.CacheHitRatio,
		r.CacheHits,
		r.CacheMisses,
		r.ActiveRuns,
		r.TotalRuns,
		r.RunErrors,
		r.RowsScored,
		r.DecisionRows,
		r.MissingRows,
		r.LastRunUnix,
		r.LastRunDuration,
		r.RunInfo,
	)

	// Scrape the registry the metrics actually live in, not the global one.
	if gatherer, ok := reg.(prometheus.Gatherer); ok {
		r.handler = promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
	} else {
		r.handler = promhttp.Handler()
	}

	return r
}

// StageTimer tracks execution time for run stages.
type StageTimer struct {
	metrics *Registry
	stage   string
	start   time.Time
}

// StartStageTimer begins timing a run stage.
func (r *Registry) StartStageTimer(stage string) *StageTimer {
	return &StageTimer{metrics: r, stage: stage, start: time.Now()}
}

// Stop completes the stage timing and records the observation.
func (st *StageTimer) Stop(result string) {
	duration := time.Since(st.start)
	st.metrics.StageDuration.WithLabelValues(st.stage, result).Observe(duration.Seconds())

	log.Debug().
		Str("stage", st.stage).
		Str("result", result).
		Dur("duration", duration).
		Msg("Run stage completed")
}

// RecordCacheHit records a panel cache hit for the given backend.
func (r *Registry) RecordCacheHit(cacheType string) {
	r.CacheHits.WithLabelValues(cacheType).Inc()
	r.updateCacheHitRatio()
}

// RecordCacheMiss records a panel cache miss for the given backend.
func (r *Registry) RecordCacheMiss(cacheType string) {
	r.CacheMisses.WithLabelValues(cacheType).Inc()
	r.updateCacheHitRatio()
}

// RecordRunError counts a failed run by stage.
func (r *Registry) RecordRunError(stage string) {
	r.RunErrors.WithLabelValues(stage).Inc()
	log.Warn().Str("stage", stage).Msg("Run error recorded")
}

// RunStarted marks a run in flight.
func (r *Registry) RunStarted() {
	r.ActiveRuns.Inc()
	r.TotalRuns.Inc()
}

// RunFinished clears the in-flight marker and stamps the completion gauges.
func (r *Registry) RunFinished(elapsed time.Duration) {
	r.ActiveRuns.Dec()
	r.LastRunUnix.Set(float64(time.Now().Unix()))
	r.LastRunDuration.Set(elapsed.Seconds())
}

// RecordComputation accounts one engine result.
func (r *Registry) RecordComputation(policy string, rows, decisions, missing int) {
	r.RowsScored.Add(float64(rows))
	r.DecisionRows.WithLabelValues(policy).Add(float64(decisions))
	r.MissingRows.Add(float64(missing))
}

// RecordRunInfo republishes the info gauge for the run that just finished.
// Reset first so only one label set is ever exposed.
func (r *Registry) RecordRunInfo(runID, policy, source string) {
	r.RunInfo.Reset()
	r.RunInfo.WithLabelValues(runID, policy, source).Set(1)
}

// updateCacheHitRatio recomputes the ratio gauge by reading the counters
// back through the client model.
func (r *Registry) updateCacheHitRatio() {
	var m io_prometheus_client.Metric

	totalHits := 0.0
	totalMisses := 0.0
	for _, cacheType := range cacheTypes {
		if hits, err := r.CacheHits.GetMetricWithLabelValues(cacheType); err == nil {
			if err := hits.Write(&m); err == nil {
				totalHits += m.GetCounter().GetValue()
			}
		}
		if misses, err := r.CacheMisses.GetMetricWithLabelValues(cacheType); err == nil {
			if err := misses.Write(&m); err == nil {
				totalMisses += m.GetCounter().GetValue()
			}
		}
	}

	if total := totalHits + totalMisses; total > 0 {
		r.CacheHitRatio.Set(totalHits / total)
	}
}

// Handler returns the Prometheus scrape handler.
func (r *Registry) Handler() http.Handler {
	return r.handler
}
