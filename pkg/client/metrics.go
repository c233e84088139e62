package client

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// metrics are the client's request collectors. A nil *metrics records
// nothing.
type metrics struct {
	requests *prometheus.CounterVec
	duration *prometheus.HistogramVec
	tokens   *prometheus.CounterVec
}

func newMetrics(reg prometheus.Registerer) *metrics {
	f := promauto.With(reg)
	return &metrics{
		requests: f.NewCounterVec(prometheus.CounterOpts{
			Name: "dme_client_requests_total",
			Help: "Total matching engine calls by API and outcome.",
		}, []string{"api", "outcome"}),
		duration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "dme_client_request_duration_seconds",
			Help:    "Matching engine call duration in seconds.",
			Buckets: prometheus.DefBuckets,
		}, []string{"api"}),
		tokens: f.NewCounterVec(prometheus.CounterOpts{
			Name: "dme_client_token_resolutions_total",
			Help: "Total verification token resolutions by outcome.",
		}, []string{"outcome"}),
	}
}

func (m *metrics) observe(api string, start time.Time, err error) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(api, Classify(err).String()).Inc()
	m.duration.WithLabelValues(api).Observe(time.Since(start).Seconds())
}

func (m *metrics) observeToken(err error) {
	if m == nil {
		return
	}
	m.tokens.WithLabelValues(Classify(err).String()).Inc()
}
