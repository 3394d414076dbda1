package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the service collectors on a private registry, so tests can
// build as many as they like. All methods are safe on a nil *Metrics.
type Metrics struct {
	registry          *prometheus.Registry
	httpRequestsTotal *prometheus.CounterVec
	httpDuration      *prometheus.HistogramVec
	predictions       *prometheus.CounterVec
	observations      *prometheus.CounterVec
	ruleRowsSkipped   prometheus.Counter
	ruleDuplicates    prometheus.Counter
	rulesLoaded       prometheus.Gauge
	jobRuns           *prometheus.CounterVec
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		httpRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "moodtrack_http_requests_total",
			Help: "Total count of HTTP requests processed by route and status.",
		}, []string{"route", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "moodtrack_http_request_duration_seconds",
			Help:    "Histogram of HTTP request durations by route.",
			Buckets: prometheus.DefBuckets,
		}, []string{"route"}),
		predictions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "moodtrack_predictions_total",
			Help: "Predictions made, by the tier that produced them.",
		}, []string{"source"}),
		observations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "moodtrack_observations_ingested_total",
			Help: "Observations stored, by ingest channel.",
		}, []string{"channel"}),
		ruleRowsSkipped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "moodtrack_rule_rows_skipped_total",
			Help: "Rule source rows skipped for unreadable cells.",
		}),
		ruleDuplicates: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "moodtrack_rule_duplicates_total",
			Help: "Rule source rows ignored because their sequence was already defined.",
		}),
		rulesLoaded: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "moodtrack_rules_loaded",
			Help: "Number of rules in the active table.",
		}),
		jobRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "moodtrack_scheduler_runs_total",
			Help: "Scheduler job runs by job and outcome.",
		}, []string{"job", "status"}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.httpRequestsTotal,
		m.httpDuration,
		m.predictions,
		m.observations,
		m.ruleRowsSkipped,
		m.ruleDuplicates,
		m.rulesLoaded,
		m.jobRuns,
	)

	return m
}

// Handler serves the registry in the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) ObserveRequest(route string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	m.httpRequestsTotal.WithLabelValues(route, strconv.Itoa(status)).Inc()
	m.httpDuration.WithLabelValues(route).Observe(duration.Seconds())
}

func (m *Metrics) Prediction(source string) {
	if m == nil {
		return
	}
	m.predictions.WithLabelValues(source).Inc()
}

func (m *Metrics) ObservationIngested(channel string) {
	if m == nil {
		return
	}
	m.observations.WithLabelValues(channel).Inc()
}

// RulesCompiled records a compile report and the size of the new table
func (m *Metrics) RulesCompiled(skipped, duplicates, loaded int) {
	if m == nil {
		return
	}
	m.ruleRowsSkipped.Add(float64(skipped))
	m.ruleDuplicates.Add(float64(duplicates))
	m.rulesLoaded.Set(float64(loaded))
}

// RulesLoaded sets the active table size without a compile
func (m *Metrics) RulesLoaded(n int) {
	if m == nil {
		return
	}
	m.rulesLoaded.Set(float64(n))
}

func (m *Metrics) JobRun(job string, failed bool) {
	if m == nil {
		return
	}
	status := "completed"
	if failed {
		status = "failed"
	}
	m.jobRuns.WithLabelValues(job, status).Inc()
}
