// Package metrics provides Prometheus metrics collection for nodecfg.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/artpar/nodecfg/core/cgm"
)

// Collector holds all Prometheus metrics for nodecfg.
type Collector struct {
	// Compile metrics
	CompilesTotal   *prometheus.CounterVec
	CompileDuration *prometheus.HistogramVec
	ModuleDuration  *prometheus.HistogramVec
	ModuleFailures  *prometheus.CounterVec
	CacheLookups    *prometheus.CounterVec

	// Edit metrics
	EditsTotal *prometheus.CounterVec

	// HTTP metrics
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec

	// Config metrics
	ConfigReloads      prometheus.Counter
	ConfigReloadErrors prometheus.Counter
	ConfigLastReload   prometheus.Gauge
}

// New creates a collector registered with the default registry.
func New() *Collector {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// NewWithRegistry creates a collector registered with reg.
func NewWithRegistry(reg prometheus.Registerer) *Collector {
	factory := promauto.With(reg)

	return &Collector{
		CompilesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "nodecfg",
				Name:      "compiles_total",
				Help:      "Total number of node compilations by final stage and result",
			},
			[]string{"platform", "stage", "result"},
		),
		CompileDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "nodecfg",
				Name:      "compile_duration_seconds",
				Help:      "Node compilation duration in seconds",
				Buckets:   []float64{.0005, .001, .005, .01, .025, .05, .1, .25, .5, 1},
			},
			[]string{"platform"},
		),
		ModuleDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "nodecfg",
				Name:      "module_duration_seconds",
				Help:      "Generation module duration in seconds",
				Buckets:   []float64{.0001, .0005, .001, .005, .01, .05, .1},
			},
			[]string{"platform", "module"},
		),
		ModuleFailures: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "nodecfg",
				Name:      "module_failures_total",
				Help:      "Total number of failed generation module runs",
			},
			[]string{"platform", "module"},
		),
		CacheLookups: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "nodecfg",
				Name:      "artifact_cache_lookups_total",
				Help:      "Artifact cache lookups by result",
			},
			[]string{"result"},
		),

		EditsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "nodecfg",
				Name:      "config_edits_total",
				Help:      "Config tree edits by operation and result",
			},
			[]string{"op", "result"},
		),

		RequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "nodecfg",
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests processed",
			},
			[]string{"method", "route", "status"},
		),
		RequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "nodecfg",
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
			},
			[]string{"method", "route"},
		),

		ConfigReloads: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: "nodecfg",
				Name:      "config_reloads_total",
				Help:      "Total number of successful config reloads",
			},
		),
		ConfigReloadErrors: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: "nodecfg",
				Name:      "config_reload_errors_total",
				Help:      "Total number of config reload errors",
			},
		),
		ConfigLastReload: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "nodecfg",
				Name:      "config_last_reload_timestamp",
				Help:      "Unix timestamp of last successful config reload",
			},
		),
	}
}

// CompileFinished records one node compilation.
func (c *Collector) CompileFinished(platform string, stage cgm.Stage, ok bool, d time.Duration) {
	c.CompilesTotal.WithLabelValues(platform, string(stage), result(ok)).Inc()
	if ok {
		c.CompileDuration.WithLabelValues(platform).Observe(d.Seconds())
	}
}

// ModuleFinished records one generation module run.
func (c *Collector) ModuleFinished(platform, module string, ok bool, d time.Duration) {
	c.ModuleDuration.WithLabelValues(platform, module).Observe(d.Seconds())
	if !ok {
		c.ModuleFailures.WithLabelValues(platform, module).Inc()
	}
}

// CacheLookup records an artifact cache lookup.
func (c *Collector) CacheLookup(hit bool) {
	if hit {
		c.CacheLookups.WithLabelValues("hit").Inc()
		return
	}
	c.CacheLookups.WithLabelValues("miss").Inc()
}

// Edit records a config tree edit.
func (c *Collector) Edit(op string, ok bool) {
	c.EditsTotal.WithLabelValues(op, result(ok)).Inc()
}

// Request records an HTTP request.
func (c *Collector) Request(method, route string, status int, d time.Duration) {
	c.RequestsTotal.WithLabelValues(method, route, StatusClass(status)).Inc()
	c.RequestDuration.WithLabelValues(method, route).Observe(d.Seconds())
}

// ConfigReloaded records a config reload attempt.
func (c *Collector) ConfigReloaded(err error, at time.Time) {
	if err != nil {
		c.ConfigReloadErrors.Inc()
		return
	}
	c.ConfigReloads.Inc()
	c.ConfigLastReload.Set(float64(at.Unix()))
}

// StatusClass reduces a status code to its class, e.g. 404 -> "4xx".
func StatusClass(status int) string {
	if status < 100 || status > 599 {
		return strconv.Itoa(status)
	}
	return strconv.Itoa(status/100) + "xx"
}

func result(ok bool) string {
	if ok {
		return "ok"
	}
	return "error"
}

var _ cgm.Metrics = (*Collector)(nil)
