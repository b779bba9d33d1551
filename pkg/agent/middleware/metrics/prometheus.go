package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// PrometheusRecorder implements Recorder on Prometheus collectors.
type PrometheusRecorder struct {
	requestsTotal   *prometheus.CounterVec
	tokensTotal     *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
}

// NewPrometheusRecorder creates a recorder registered against reg. Passing
// nil uses the default registerer.
func NewPrometheusRecorder(reg prometheus.Registerer) *PrometheusRecorder {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &PrometheusRecorder{
		requestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "llm_requests_total",
				Help: "Total number of LLM requests by model, role, and status",
			},
			[]string{"model", "role", "status", "error_type"},
		),
		tokensTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "llm_tokens_total",
				Help: "Total number of tokens used in LLM requests",
			},
			[]string{"model", "role", "type"},
		),
		requestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "llm_request_duration_seconds",
				Help:    "Duration of LLM requests in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"model", "role"},
		),
	}
}

var (
	defaultRecorder *PrometheusRecorder //nolint:gochecknoglobals
	defaultOnce     sync.Once           //nolint:gochecknoglobals
)

// Default returns the process-wide recorder on the default registry.
func Default() *PrometheusRecorder {
	defaultOnce.Do(func() {
		defaultRecorder = NewPrometheusRecorder(nil)
	})
	return defaultRecorder
}

// ObserveRequest implements Recorder.
func (p *PrometheusRecorder) ObserveRequest(
	model, role string,
	promptTokens, completionTokens int,
	success bool,
	errorType string,
	duration time.Duration,
) {
	status := statusSuccess
	if !success {
		status = statusError
	}

	p.requestsTotal.WithLabelValues(model, role, status, errorType).Inc()

	if success {
		p.tokensTotal.WithLabelValues(model, role, "prompt").Add(float64(promptTokens))
		p.tokensTotal.WithLabelValues(model, role, "completion").Add(float64(completionTokens))
	}

	p.requestDuration.WithLabelValues(model, role).Observe(duration.Seconds())
}
