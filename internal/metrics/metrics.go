package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "sentinel"

// Collector owns the Prometheus registry and every metric the service exports
type Collector struct {
	registry *prometheus.Registry

	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	upstreamRequestsTotal   *prometheus.CounterVec
	upstreamRequestDuration *prometheus.HistogramVec

	pollerRunsTotal *prometheus.CounterVec
	alertsTotal     *prometheus.CounterVec
	eventsTotal     *prometheus.CounterVec
	wsClients       prometheus.Gauge
}

// New creates a collector backed by its own registry
func New() *Collector {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	c := &Collector{
		registry: registry,
		httpRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests served",
			},
			[]string{"method", "route", "status"},
		),
		httpRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request latency",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
		upstreamRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "upstream_requests_total",
				Help:      "Total number of calls to upstream APIs",
			},
			[]string{"domain", "operation", "outcome"},
		),
		upstreamRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "upstream_request_duration_seconds",
				Help:      "Upstream API call latency",
				Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 15},
			},
			[]string{"domain", "operation"},
		),
		pollerRunsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "poller_runs_total",
				Help:      "Total number of page poller refreshes",
			},
			[]string{"poller", "outcome"},
		),
		alertsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "alerts_total",
				Help:      "Total number of alerts raised",
			},
			[]string{"rule", "severity"},
		),
		eventsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "events_published_total",
				Help:      "Total number of analysis events published",
			},
			[]string{"type", "outcome"},
		),
		wsClients: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "websocket_clients",
				Help:      "Number of connected websocket clients",
			},
		),
	}

	registry.MustRegister(
		c.httpRequestsTotal,
		c.httpRequestDuration,
		c.upstreamRequestsTotal,
		c.upstreamRequestDuration,
		c.pollerRunsTotal,
		c.alertsTotal,
		c.eventsTotal,
		c.wsClients,
	)

	return c
}

// Registry exposes the underlying registry, mainly for tests
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler serves the registry in the Prometheus exposition format
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

func (c *Collector) ObserveHTTPRequest(method, route string, status int, elapsed time.Duration) {
	if c == nil {
		return
	}
	c.httpRequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	c.httpRequestDuration.WithLabelValues(method, route).Observe(elapsed.Seconds())
}

// ObserveUpstream records one upstream call. outcome is "success", "error" or "rejected".
func (c *Collector) ObserveUpstream(domain, operation, outcome string, elapsed time.Duration) {
	if c == nil {
		return
	}
	c.upstreamRequestsTotal.WithLabelValues(domain, operation, outcome).Inc()
	c.upstreamRequestDuration.WithLabelValues(domain, operation).Observe(elapsed.Seconds())
}

func (c *Collector) PollerRun(poller string, err error) {
	if c == nil {
		return
	}
	c.pollerRunsTotal.WithLabelValues(poller, outcome(err)).Inc()
}

func (c *Collector) AlertRaised(rule, severity string) {
	if c == nil {
		return
	}
	c.alertsTotal.WithLabelValues(rule, severity).Inc()
}

func (c *Collector) EventPublished(eventType string, err error) {
	if c == nil {
		return
	}
	c.eventsTotal.WithLabelValues(eventType, outcome(err)).Inc()
}

func (c *Collector) SetWebsocketClients(n int) {
	if c == nil {
		return
	}
	c.wsClients.Set(float64(n))
}

func outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}
