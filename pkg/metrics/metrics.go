// Package metrics exposes the relay's Prometheus metrics.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "bridge"

// Optimized for relay latencies, from a cached model list to a long stream.
var durationBuckets = []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60}

// Collector owns a registry and the relay's metric vectors. A nil
// *Collector is valid and records nothing.
type Collector struct {
	registry *prometheus.Registry

	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	streamsTotal    *prometheus.CounterVec
	streamEvents    prometheus.Counter
	discardedBytes  prometheus.Counter
	upstreamErrors  *prometheus.CounterVec
	modelsCache     *prometheus.CounterVec
	transcriptJobs  *prometheus.CounterVec
	activeStreams   prometheus.Gauge
}

// NewCollector creates and registers the relay metrics. If registry is nil a
// fresh one is created, with the Go and process collectors attached.
func NewCollector(registry *prometheus.Registry) *Collector {
	if registry == nil {
		registry = prometheus.NewRegistry()
		registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}

	c := &Collector{
		registry: registry,
		requestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_total",
			Help:      "Total number of relay requests by route and HTTP status",
		}, []string{"route", "status"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "request_duration_seconds",
			Help:      "Duration of relay requests in seconds, streams included",
			Buckets:   durationBuckets,
		}, []string{"route"}),
		streamsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "streams_total",
			Help:      "Total number of relayed streams by outcome",
		}, []string{"outcome"}),
		streamEvents: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stream_events_total",
			Help:      "Total number of SSE events sent downstream",
		}),
		discardedBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stream_discarded_bytes_total",
			Help:      "Bytes of incomplete trailing fragments dropped at upstream EOF",
		}),
		upstreamErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "upstream_errors_total",
			Help:      "Total number of upstream failures by kind",
		}, []string{"kind"}),
		modelsCache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "models_cache_lookups_total",
			Help:      "Model list cache lookups by result",
		}, []string{"result"}),
		transcriptJobs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transcript_jobs_total",
			Help:      "Transcript jobs by result",
		}, []string{"result"}),
		activeStreams: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_streams",
			Help:      "Number of streams currently being relayed",
		}),
	}

	registry.MustRegister(
		c.requestsTotal,
		c.requestDuration,
		c.streamsTotal,
		c.streamEvents,
		c.discardedBytes,
		c.upstreamErrors,
		c.modelsCache,
		c.transcriptJobs,
		c.activeStreams,
	)

	return c
}

// Registry returns the underlying registry.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// RecordRequest records a finished request.
func (c *Collector) RecordRequest(route string, status int, duration time.Duration) {
	if c == nil {
		return
	}
	c.requestsTotal.WithLabelValues(route, strconv.Itoa(status)).Inc()
	c.requestDuration.WithLabelValues(route).Observe(duration.Seconds())
}

// StreamStarted marks a stream as in flight. Call StreamFinished when it ends.
func (c *Collector) StreamStarted() {
	if c == nil {
		return
	}
	c.activeStreams.Inc()
}

// StreamFinished records how a stream ended.
func (c *Collector) StreamFinished(outcome string, events, discarded int) {
	if c == nil {
		return
	}
	c.activeStreams.Dec()
	c.streamsTotal.WithLabelValues(outcome).Inc()
	c.streamEvents.Add(float64(events))
	c.discardedBytes.Add(float64(discarded))
}

// RecordUpstreamError counts an upstream failure, e.g. "status",
// "idle_timeout" or "connect".
func (c *Collector) RecordUpstreamError(kind string) {
	if c == nil {
		return
	}
	c.upstreamErrors.WithLabelValues(kind).Inc()
}

// RecordCacheLookup counts a model list cache hit or miss.
func (c *Collector) RecordCacheLookup(hit bool) {
	if c == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	c.modelsCache.WithLabelValues(result).Inc()
}

// RecordTranscriptJob counts a transcript job result: "stored", "failed"
// or "dropped".
func (c *Collector) RecordTranscriptJob(result string) {
	if c == nil {
		return
	}
	c.transcriptJobs.WithLabelValues(result).Inc()
}

// Handler returns an HTTP handler for the Prometheus metrics endpoint.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
		ErrorHandling:     promhttp.ContinueOnError,
	})
}
