// Package metrics provides Prometheus metrics for pump model training runs.
// Metrics implements ml.Observer, so attaching it to a run records how long
// each backend trained, how it scored and which one was selected.
//
// Training is a batch job, so instead of serving an endpoint the collected
// series can be written to a node_exporter textfile.
package metrics

import (
	"sync"
	"time"

	"pump-predictor/internal/ml"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for training runs.
type Metrics struct {
	registry *prometheus.Registry

	mu        sync.Mutex
	evaluated map[string]struct{}

	TrainingRuns     *prometheus.CounterVec   // Backends trained, by backend
	TrainingFailures *prometheus.CounterVec   // Backends that failed to train, by backend
	TrainingDuration *prometheus.HistogramVec // Wall time of Train, by backend
	ModelMetric      *prometheus.GaugeVec     // Held-out score, by backend and metric
	DatasetRows      prometheus.Gauge         // Rows in the last dataset
	SelectedModel    *prometheus.GaugeVec     // 1 for the selected backend, 0 otherwise
}

// New creates metrics on a fresh registry.
func New() *Metrics {
	return NewWithRegistry(prometheus.NewRegistry())
}

// NewWithRegistry creates metrics registered on registry (useful for testing).
func NewWithRegistry(registry *prometheus.Registry) *Metrics {
	factory := promauto.With(registry)
	return &Metrics{
		registry:  registry,
		evaluated: make(map[string]struct{}),
		TrainingRuns: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "pump_training_runs_total",
			Help: "Total number of backend training runs",
		}, []string{"backend"}),
		TrainingFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "pump_training_failures_total",
			Help: "Total number of failed backend training runs",
		}, []string{"backend"}),
		TrainingDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "pump_training_duration_seconds",
			Help:    "Backend training duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 16),
		}, []string{"backend"}),
		ModelMetric: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "pump_model_metric",
			Help: "Held-out evaluation score of each backend",
		}, []string{"backend", "metric"}),
		DatasetRows: factory.NewGauge(prometheus.GaugeOpts{
			Name: "pump_dataset_rows",
			Help: "Number of telemetry rows in the last training dataset",
		}),
		SelectedModel: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "pump_selected_model_info",
			Help: "Set to 1 for the backend chosen by the last selection",
		}, []string{"backend"}),
	}
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

func (m *Metrics) DataLoaded(rows, features int) {
	m.DatasetRows.Set(float64(rows))
}

func (m *Metrics) TrainingStarted(name string, rows int) {
	m.TrainingRuns.WithLabelValues(name).Inc()
}

func (m *Metrics) TrainingFinished(name string, elapsed time.Duration, err error) {
	if err != nil {
		m.TrainingFailures.WithLabelValues(name).Inc()
		return
	}
	m.TrainingDuration.WithLabelValues(name).Observe(elapsed.Seconds())
}

func (m *Metrics) MetricsComputed(name string, scores ml.Metrics) {
	for metric, v := range scores {
		m.ModelMetric.WithLabelValues(name, metric).Set(v)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.evaluated[name] = struct{}{}
	m.SelectedModel.WithLabelValues(name).Set(0)
}

func (m *Metrics) ModelSelected(name, metric string, value float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for other := range m.evaluated {
		m.SelectedModel.WithLabelValues(other).Set(0)
	}
	m.SelectedModel.WithLabelValues(name).Set(1)
}

// WriteTextfile writes every collected series to path in the text exposition
// format, atomically.
func (m *Metrics) WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, m.registry)
}

var _ ml.Observer = (*Metrics)(nil)
