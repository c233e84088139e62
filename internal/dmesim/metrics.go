package dmesim

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the simulator's Prometheus collectors.
type Metrics struct {
	reg *prometheus.Registry

	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	rpcTotal        *prometheus.CounterVec
	sessionsTotal   *prometheus.CounterVec
	tokensIssued    prometheus.Counter
	tokensEvicted   prometheus.Counter
	verifications   *prometheus.CounterVec
	rateLimited     prometheus.Counter
}

// NewMetrics registers the simulator collectors on reg. A nil reg gets a
// fresh registry.
func NewMetrics(reg *prometheus.Registry) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	f := promauto.With(reg)
	return &Metrics{
		reg: reg,
		requestsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "dmesim_http_requests_total",
			Help: "Total HTTP requests by method, path, and response status.",
		}, []string{"method", "path", "status"}),
		requestDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "dmesim_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "path"}),
		rpcTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "dmesim_rpc_requests_total",
			Help: "Total RPC requests by method and status code.",
		}, []string{"method", "code"}),
		sessionsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "dmesim_register_total",
			Help: "RegisterClient outcomes by reply status.",
		}, []string{"status"}),
		tokensIssued: f.NewCounter(prometheus.CounterOpts{
			Name: "dmesim_verify_tokens_issued_total",
			Help: "Location verification tokens minted by the token server.",
		}),
		tokensEvicted: f.NewCounter(prometheus.CounterOpts{
			Name: "dmesim_verify_tokens_evicted_total",
			Help: "Location verification tokens that expired unused.",
		}),
		verifications: f.NewCounterVec(prometheus.CounterOpts{
			Name: "dmesim_verify_location_total",
			Help: "VerifyLocation outcomes by GPS location status.",
		}, []string{"status"}),
		rateLimited: f.NewCounter(prometheus.CounterOpts{
			Name: "dmesim_rate_limited_total",
			Help: "REST calls rejected by the per-IP rate limiter.",
		}),
	}
}

// Registry returns the registry the collectors live on.
func (m *Metrics) Registry() *prometheus.Registry { return m.reg }

// PrometheusMiddleware returns a Gin middleware that records per-request metrics.
func (m *Metrics) PrometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		status := strconv.Itoa(c.Writer.Status())
		m.requestsTotal.WithLabelValues(c.Request.Method, path, status).Inc()
		m.requestDuration.WithLabelValues(c.Request.Method, path).Observe(time.Since(start).Seconds())
	}
}

// MetricsHandler returns a Gin handler that serves the registry.
func (m *Metrics) MetricsHandler() gin.HandlerFunc {
	h := promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{})
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}
