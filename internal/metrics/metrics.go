package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/wonny/renewcast/internal/contracts"
)

// Run outcomes used as the "outcome" label
const (
	OutcomeSuccess = "success"
	OutcomeError   = "error"
)

// Recorder exposes pipeline metrics on its own registry.
// A nil *Recorder is valid and records nothing.
type Recorder struct {
	registry *prometheus.Registry

	runsTotal       *prometheus.CounterVec
	runDuration     *prometheus.HistogramVec
	recordsUpserted *prometheus.CounterVec
	sweepSites      *prometheus.GaugeVec
}

// New creates a recorder with Go and process collectors registered
func New() *Recorder {
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	r := &Recorder{
		registry: registry,
		runsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "renewcast_pipeline_runs_total",
			Help: "Pipeline runs by generation type, outcome and failing stage.",
		}, []string{"generation_type", "outcome", "stage"}),
		runDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "renewcast_pipeline_run_duration_seconds",
			Help:    "Duration of single-site pipeline runs.",
			Buckets: prometheus.DefBuckets,
		}, []string{"generation_type"}),
		recordsUpserted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "renewcast_records_upserted_total",
			Help: "Rows written by the persistence stage.",
		}, []string{"generation_type", "table", "action"}),
		sweepSites: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "renewcast_sweep_sites",
			Help: "Sites processed by the last sweep of a generation type, by outcome.",
		}, []string{"generation_type", "outcome"}),
	}

	registry.MustRegister(r.runsTotal)
	registry.MustRegister(r.runDuration)
	registry.MustRegister(r.recordsUpserted)
	registry.MustRegister(r.sweepSites)

	return r
}

// Registry returns the Prometheus registry
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// Handler serves the registry in the Prometheus exposition format
func (r *Recorder) Handler() http.Handler {
	if r == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

// ObserveRun records one single-site run; err decides the outcome label
func (r *Recorder) ObserveRun(t contracts.GenerationType, d time.Duration, err error) {
	if r == nil {
		return
	}
	outcome, stage := OutcomeSuccess, "none"
	if err != nil {
		outcome, stage = OutcomeError, "other"
		if s, ok := contracts.StageOf(err); ok {
			stage = string(s)
		}
	}
	r.runsTotal.WithLabelValues(string(t), outcome, stage).Inc()
	r.runDuration.WithLabelValues(string(t)).Observe(d.Seconds())
}

// AddPersisted records the counts of one persist call
func (r *Recorder) AddPersisted(t contracts.GenerationType, c contracts.PersistCounts) {
	if r == nil {
		return
	}
	r.recordsUpserted.WithLabelValues(string(t), "hourly", "created").Add(float64(c.HourlyCreated))
	r.recordsUpserted.WithLabelValues(string(t), "hourly", "updated").Add(float64(c.HourlyUpdated))
	r.recordsUpserted.WithLabelValues(string(t), "daily", "created").Add(float64(c.DailyCreated))
	r.recordsUpserted.WithLabelValues(string(t), "daily", "updated").Add(float64(c.DailyUpdated))
}

// ObserveSweep records the outcome split of a sweep
func (r *Recorder) ObserveSweep(t contracts.GenerationType, succeeded, failed int) {
	if r == nil {
		return
	}
	r.sweepSites.WithLabelValues(string(t), OutcomeSuccess).Set(float64(succeeded))
	r.sweepSites.WithLabelValues(string(t), OutcomeError).Set(float64(failed))
}
