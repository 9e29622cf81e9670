// Package metrics exports operational measurements to Prometheus.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/custodia-labs/sercha-match/internal/core/domain"
	"github.com/custodia-labs/sercha-match/internal/core/ports/driven"
)

// Ensure Recorder implements the interface.
var _ driven.MetricsRecorder = (*Recorder)(nil)

const namespace = "sercha_match"

var indexStates = []domain.IndexState{
	domain.StateCurrent,
	domain.StateChecking,
	domain.StateBuilding,
	domain.StatePromoting,
	domain.StateFailed,
}

// Recorder records measurements into its own registry.
type Recorder struct {
	registry *prometheus.Registry

	builds        *prometheus.CounterVec
	buildDuration *prometheus.HistogramVec
	datasetLoads  *prometheus.CounterVec
	datasetSize   *prometheus.GaugeVec
	indexState    *prometheus.GaugeVec
	queries       *prometheus.CounterVec
	queryLatency  *prometheus.HistogramVec
}

// NewRecorder creates a recorder with Go runtime and process collectors.
func NewRecorder() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		builds: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "index_builds_total",
			Help:      "Settled index updates by status.",
		}, []string{"status"}),
		buildDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "index_build_duration_seconds",
			Help:      "Duration of index updates.",
			Buckets:   prometheus.ExponentialBuckets(0.1, 4, 10),
		}, []string{"status"}),
		datasetLoads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dataset_loads_total",
			Help:      "Dataset loads by action and result.",
		}, []string{"dataset", "action", "result"}),
		datasetSize: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "dataset_entities",
			Help:      "Entities written by the last successful load of a dataset.",
		}, []string{"dataset"}),
		indexState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "index_state",
			Help:      "1 for the current lifecycle state of the index, 0 otherwise.",
		}, []string{"state"}),
		queries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "queries_total",
			Help:      "Match and search queries by kind and result.",
		}, []string{"kind", "result"}),
		queryLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "query_duration_seconds",
			Help:      "Query latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"kind"}),
	}

	r.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		r.builds,
		r.buildDuration,
		r.datasetLoads,
		r.datasetSize,
		r.indexState,
		r.queries,
		r.queryLatency,
	)
	return r
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{Registry: r.registry})
}

// Registry exposes the underlying registry.
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// ObserveBuild implements driven.MetricsRecorder.
func (r *Recorder) ObserveBuild(status domain.BuildStatus, duration time.Duration) {
	r.builds.WithLabelValues(string(status)).Inc()
	r.buildDuration.WithLabelValues(string(status)).Observe(duration.Seconds())
}

// ObserveDataset implements driven.MetricsRecorder.
func (r *Recorder) ObserveDataset(dataset string, action domain.DatasetAction, entities int, err error) {
	r.datasetLoads.WithLabelValues(dataset, string(action), result(err)).Inc()
	if err == nil {
		r.datasetSize.WithLabelValues(dataset).Set(float64(entities))
	}
}

// SetIndexState implements driven.MetricsRecorder.
func (r *Recorder) SetIndexState(state domain.IndexState) {
	for _, s := range indexStates {
		v := 0.0
		if s == state {
			v = 1
		}
		r.indexState.WithLabelValues(string(s)).Set(v)
	}
}

// ObserveQuery implements driven.MetricsRecorder.
func (r *Recorder) ObserveQuery(kind string, duration time.Duration, err error) {
	r.queries.WithLabelValues(kind, result(err)).Inc()
	r.queryLatency.WithLabelValues(kind).Observe(duration.Seconds())
}

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
