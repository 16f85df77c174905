// Package metrics implements node.Metrics with Prometheus collectors,
// exposed over HTTP the way the teacher's internal/single/monitoring
// package registers its ws_* gauges/counters and serves them via
// promhttp.Handler.
package metrics

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector is a node's Prometheus metrics, registered against its own
// registry (rather than the global default) so a process that wires up
// more than one node in-process, e.g. in tests, never double-registers.
type Collector struct {
	registry *prometheus.Registry

	postsTotal         prometheus.Counter
	subscriptionsGauge prometheus.Gauge
	dhtCallsTotal      *prometheus.CounterVec
	dhtErrorsTotal     *prometheus.CounterVec
	cacheHitsTotal     prometheus.Counter
	cacheMissesTotal   prometheus.Counter
	getOutcomesTotal   *prometheus.CounterVec
	reconcileRetries   prometheus.Counter
	processRSSBytes    prometheus.Gauge
	processCPUPercent  prometheus.Gauge

	server   *http.Server
	sampler  *processSampler
}

// New builds a Collector and registers its collectors. Call Handler or
// Serve to expose them.
func New() *Collector {
	reg := prometheus.NewRegistry()

	c := &Collector{
		registry: reg,
		postsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tl_posts_total",
			Help: "Total number of posts successfully published to the own timeline.",
		}),
		subscriptionsGauge: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "tl_subscriptions_current",
			Help: "Current number of users this node follows.",
		}),
		dhtCallsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tl_dht_calls_total",
			Help: "Total DHT operations issued, by operation and outcome.",
		}, []string{"op", "outcome"}),
		dhtErrorsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tl_dht_errors_total",
			Help: "Total DHT operation failures, by operation.",
		}, []string{"op"}),
		cacheHitsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tl_cache_hits_total",
			Help: "Total get requests served from a valid local cache.",
		}),
		cacheMissesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tl_cache_misses_total",
			Help: "Total get requests that found no valid local cache.",
		}),
		getOutcomesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tl_get_outcomes_total",
			Help: "Total get pipeline completions, by source (local, cache, owner, subscriber, not_found).",
		}, []string{"source"}),
		reconcileRetries: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tl_reconcile_retries_total",
			Help: "Total backoff-and-retry iterations spent in the subscription reconciliation loop.",
		}),
		processRSSBytes: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "tl_process_rss_bytes",
			Help: "Resident set size of this node's process, sampled periodically.",
		}),
		processCPUPercent: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "tl_process_cpu_percent",
			Help: "CPU usage percentage of this node's process, sampled periodically.",
		}),
	}

	reg.MustRegister(
		c.postsTotal,
		c.subscriptionsGauge,
		c.dhtCallsTotal,
		c.dhtErrorsTotal,
		c.cacheHitsTotal,
		c.cacheMissesTotal,
		c.getOutcomesTotal,
		c.reconcileRetries,
		c.processRSSBytes,
		c.processCPUPercent,
	)
	return c
}

// ObservePostCreated implements node.Metrics.
func (c *Collector) ObservePostCreated() { c.postsTotal.Inc() }

// ObserveSubscription implements node.Metrics; delta is +1 on sub, -1
// on unsub.
func (c *Collector) ObserveSubscription(delta int) { c.subscriptionsGauge.Add(float64(delta)) }

// ObserveDHTCall implements node.Metrics.
func (c *Collector) ObserveDHTCall(op string, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
		c.dhtErrorsTotal.WithLabelValues(op).Inc()
	}
	c.dhtCallsTotal.WithLabelValues(op, outcome).Inc()
}

// ObserveCacheResult implements node.Metrics.
func (c *Collector) ObserveCacheResult(hit bool) {
	if hit {
		c.cacheHitsTotal.Inc()
	} else {
		c.cacheMissesTotal.Inc()
	}
}

// ObserveGetOutcome implements node.Metrics.
func (c *Collector) ObserveGetOutcome(source string) {
	c.getOutcomesTotal.WithLabelValues(source).Inc()
}

// ObserveReconcileRetry implements node.Metrics.
func (c *Collector) ObserveReconcileRetry() { c.reconcileRetries.Inc() }

// Handler returns the HTTP handler serving this collector's registry in
// the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// Serve starts an HTTP server on addr exposing Handler at /metrics. It
// returns immediately; call Shutdown to stop it.
func (c *Collector) Serve(addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", c.Handler())
	c.server = &http.Server{Addr: addr, Handler: mux}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	go func() {
		_ = c.server.Serve(ln)
	}()
	return nil
}

// Shutdown gracefully stops the metrics HTTP server and the process
// sampler, if either is running.
func (c *Collector) Shutdown(ctx context.Context) error {
	if c.sampler != nil {
		c.sampler.stop()
	}
	if c.server == nil {
		return nil
	}
	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return c.server.Shutdown(shutdownCtx)
}

// StartSampling begins periodically sampling this process's RSS and CPU
// usage into processRSSBytes/processCPUPercent, the way the teacher's
// collectMetrics loop samples proc.MemoryInfo() on a ticker.
func (c *Collector) StartSampling(interval time.Duration) {
	c.sampler = newProcessSampler(c.processRSSBytes, c.processCPUPercent)
	c.sampler.start(interval)
}
