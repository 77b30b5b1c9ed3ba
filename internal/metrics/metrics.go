package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector owns the Prometheus registry for the provider layer.
type Collector struct {
	registry *prometheus.Registry

	providerRequests *prometheus.CounterVec
	providerDuration *prometheus.HistogramVec
	rateLimitRetries *prometheus.CounterVec
	cacheHits        *prometheus.CounterVec
	cacheMisses      *prometheus.CounterVec
}

// NewCollector creates a Collector with its own registry.
func NewCollector() *Collector {
	registry := prometheus.NewRegistry()

	return &Collector{
		registry: registry,
		providerRequests: promauto.With(registry).NewCounterVec(prometheus.CounterOpts{
			Name: "provider_requests_total",
			Help: "Total vendor API requests by provider, operation and outcome",
		}, []string{"provider", "operation", "status"}),
		providerDuration: promauto.With(registry).NewHistogramVec(prometheus.HistogramOpts{
			Name:    "provider_request_duration_seconds",
			Help:    "Vendor API request duration",
			Buckets: prometheus.DefBuckets,
		}, []string{"provider", "operation"}),
		rateLimitRetries: promauto.With(registry).NewCounterVec(prometheus.CounterOpts{
			Name: "provider_rate_limit_retries_total",
			Help: "Retries triggered by vendor rate limiting",
		}, []string{"provider"}),
		cacheHits: promauto.With(registry).NewCounterVec(prometheus.CounterOpts{
			Name: "cache_hits_total",
			Help: "Cache hits by cache name",
		}, []string{"cache"}),
		cacheMisses: promauto.With(registry).NewCounterVec(prometheus.CounterOpts{
			Name: "cache_misses_total",
			Help: "Cache misses by cache name",
		}, []string{"cache"}),
	}
}

// RecordRequest records one vendor call.
func (c *Collector) RecordRequest(provider, operation string, duration time.Duration, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	c.providerRequests.WithLabelValues(provider, operation, status).Inc()
	c.providerDuration.WithLabelValues(provider, operation).Observe(duration.Seconds())
}

// RecordRateLimitRetry counts one rate-limit triggered retry.
func (c *Collector) RecordRateLimitRetry(provider string) {
	c.rateLimitRetries.WithLabelValues(provider).Inc()
}

// RecordCacheHit counts a hit for the named cache.
func (c *Collector) RecordCacheHit(cache string) {
	c.cacheHits.WithLabelValues(cache).Inc()
}

// RecordCacheMiss counts a miss for the named cache.
func (c *Collector) RecordCacheMiss(cache string) {
	c.cacheMisses.WithLabelValues(cache).Inc()
}

// Handler exposes the registry for the /metrics endpoint.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}
