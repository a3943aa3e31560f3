// Package metrics defines the Prometheus collectors spindle exports from
// its build and dev-server loops.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Config configures the collectors.
type Config struct {
	// Namespace is the metrics namespace (default: "spindle").
	Namespace string

	// ConstLabels are constant labels added to all metrics.
	ConstLabels prometheus.Labels

	// Buckets are the histogram buckets for build durations.
	Buckets []float64

	// Registry is the Prometheus registry to use. Required: spindle never
	// registers on the global default registry.
	Registry prometheus.Registerer
}

// Option configures the collectors.
type Option func(*Config)

// WithNamespace sets the metrics namespace.
func WithNamespace(namespace string) Option {
	return func(c *Config) {
		c.Namespace = namespace
	}
}

// WithConstLabels sets constant labels for all metrics.
func WithConstLabels(labels prometheus.Labels) Option {
	return func(c *Config) {
		c.ConstLabels = labels
	}
}

// WithBuckets sets the histogram buckets.
func WithBuckets(buckets []float64) Option {
	return func(c *Config) {
		c.Buckets = buckets
	}
}

// Collectors holds spindle's metrics. A nil *Collectors is valid and
// records nothing.
type Collectors struct {
	buildsTotal    *prometheus.CounterVec
	buildDuration  prometheus.Histogram
	nodeBuilds     *prometheus.CounterVec
	nodeDuration   *prometheus.HistogramVec
	outputsWritten prometheus.Counter
	outputsSkipped prometheus.Counter
	reloadClients  prometheus.Gauge
	reloadEvents   *prometheus.CounterVec
	watchBatches   prometheus.Counter
}

// New registers the collectors on registry.
func New(registry prometheus.Registerer, opts ...Option) *Collectors {
	config := Config{
		Namespace: "spindle",
		Buckets:   []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
		Registry:  registry,
	}
	for _, opt := range opts {
		opt(&config)
	}
	factory := promauto.With(config.Registry)

	return &Collectors{
		buildsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Name:        "builds_total",
			Help:        "Total number of build runs by outcome",
			ConstLabels: config.ConstLabels,
		}, []string{"status"}),

		buildDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace:   config.Namespace,
			Name:        "build_duration_seconds",
			Help:        "Wall time of build runs in seconds",
			ConstLabels: config.ConstLabels,
			Buckets:     config.Buckets,
		}),

		nodeBuilds: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Name:        "node_builds_total",
			Help:        "Total number of asset builds by kind and outcome",
			ConstLabels: config.ConstLabels,
		}, []string{"kind", "status"}),

		nodeDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace:   config.Namespace,
			Name:        "node_build_duration_seconds",
			Help:        "Duration of individual asset builds in seconds",
			ConstLabels: config.ConstLabels,
			Buckets:     config.Buckets,
		}, []string{"kind"}),

		outputsWritten: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Name:        "outputs_written_total",
			Help:        "Output files written to the dist directory",
			ConstLabels: config.ConstLabels,
		}),

		outputsSkipped: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Name:        "outputs_skipped_total",
			Help:        "Output writes skipped because the content hash was unchanged",
			ConstLabels: config.ConstLabels,
		}),

		reloadClients: factory.NewGauge(prometheus.GaugeOpts{
			Namespace:   config.Namespace,
			Name:        "reload_clients",
			Help:        "Connected live-reload clients",
			ConstLabels: config.ConstLabels,
		}),

		reloadEvents: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Name:        "reload_events_total",
			Help:        "Reload events broadcast to clients by status",
			ConstLabels: config.ConstLabels,
		}, []string{"status"}),

		watchBatches: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Name:        "watch_batches_total",
			Help:        "Debounced file change batches",
			ConstLabels: config.ConstLabels,
		}),
	}
}

// ObserveRun records a finished build run.
func (c *Collectors) ObserveRun(status string, d time.Duration) {
	if c == nil {
		return
	}
	c.buildsTotal.WithLabelValues(status).Inc()
	c.buildDuration.Observe(d.Seconds())
}

// ObserveNode records one asset build.
func (c *Collectors) ObserveNode(kind string, ok bool, d time.Duration) {
	if c == nil {
		return
	}
	status := "success"
	if !ok {
		status = "error"
	}
	c.nodeBuilds.WithLabelValues(kind, status).Inc()
	c.nodeDuration.WithLabelValues(kind).Observe(d.Seconds())
}

// OutputWritten counts a written output file.
func (c *Collectors) OutputWritten() {
	if c == nil {
		return
	}
	c.outputsWritten.Inc()
}

// OutputSkipped counts an output whose write was skipped.
func (c *Collectors) OutputSkipped() {
	if c == nil {
		return
	}
	c.outputsSkipped.Inc()
}

// SetReloadClients sets the live-reload client gauge.
func (c *Collectors) SetReloadClients(n int) {
	if c == nil {
		return
	}
	c.reloadClients.Set(float64(n))
}

// ReloadEvent counts a broadcast reload event.
func (c *Collectors) ReloadEvent(status string) {
	if c == nil {
		return
	}
	c.reloadEvents.WithLabelValues(status).Inc()
}

// WatchBatch counts a debounced change batch.
func (c *Collectors) WatchBatch() {
	if c == nil {
		return
	}
	c.watchBatches.Inc()
}
