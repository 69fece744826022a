// Package metrics exposes Prometheus collectors for the chat server
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"intake-chat/internal/adapters/gateway"
	"intake-chat/internal/core/services"
)

const namespace = "intake_chat"

// Collectors holds every metric and its private registry
type Collectors struct {
	registry *prometheus.Registry

	logins          *prometheus.CounterVec
	bootstraps      *prometheus.CounterVec
	sends           *prometheus.CounterVec
	sendLatency     prometheus.Histogram
	upstream        *prometheus.HistogramVec
	activeVisits    prometheus.Gauge
	httpRequests    *prometheus.CounterVec
	rateLimitedHits prometheus.Counter
}

var (
	_ services.Recorder       = (*Collectors)(nil)
	_ gateway.RequestObserver = (*Collectors)(nil)
)

// New registers all collectors on a fresh registry
func New() *Collectors {
	c := &Collectors{
		registry: prometheus.NewRegistry(),
		logins: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "logins_total",
			Help:      "Chat logins by outcome.",
		}, []string{"outcome"}),
		bootstraps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "first_message_bootstraps_total",
			Help:      "Greeting bootstraps by outcome.",
		}, []string{"outcome"}),
		sends: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sends_total",
			Help:      "User message sends by outcome.",
		}, []string{"outcome"}),
		sendLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "webhook_round_trip_seconds",
			Help:      "Latency of the agent webhook round trip.",
			Buckets:   []float64{0.25, 0.5, 1, 2, 5, 10, 20, 30, 60},
		}),
		upstream: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "upstream_request_seconds",
			Help:      "Backend and webhook calls by target and outcome.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"target", "outcome"}),
		activeVisits: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_visits",
			Help:      "Live chat visits.",
		}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests served by route and status code.",
		}, []string{"method", "route", "status"}),
		rateLimitedHits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rate_limited_requests_total",
			Help:      "Requests rejected by the rate limiter.",
		}),
	}

	c.registry.MustRegister(
		c.logins,
		c.bootstraps,
		c.sends,
		c.sendLatency,
		c.upstream,
		c.activeVisits,
		c.httpRequests,
		c.rateLimitedHits,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return c
}

// Handler serves the registry in the Prometheus text format
func (c *Collectors) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{Registry: c.registry})
}

// Registry exposes the underlying registry for tests and extra collectors
func (c *Collectors) Registry() *prometheus.Registry {
	return c.registry
}

func (c *Collectors) LoginFinished(outcome string) {
	c.logins.WithLabelValues(outcome).Inc()
}

func (c *Collectors) BootstrapFinished(outcome string) {
	c.bootstraps.WithLabelValues(outcome).Inc()
}

func (c *Collectors) SendFinished(outcome string, latency time.Duration) {
	c.sends.WithLabelValues(outcome).Inc()
	c.sendLatency.Observe(latency.Seconds())
}

func (c *Collectors) ActiveVisits(n int) {
	c.activeVisits.Set(float64(n))
}

// ObserveRequest records an outbound backend or webhook call
func (c *Collectors) ObserveRequest(target, outcome string, latency time.Duration) {
	c.upstream.WithLabelValues(target, outcome).Observe(latency.Seconds())
}

// ObserveHTTP records a served request
func (c *Collectors) ObserveHTTP(method, route string, status int) {
	c.httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
}

// RateLimited counts a rejected request
func (c *Collectors) RateLimited() {
	c.rateLimitedHits.Inc()
}
