// Package metrics provides Prometheus metrics for the risk assessor: prediction
// submissions and their attempts, assessed risk tiers and HTTP traffic.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/viacare/risk-assessor/internal/domain"
)

const (
	defaultNamespace = "risk_assessor"
	outcomeSuccess   = "success"
)

// Manager owns a registry and every collector registered on it.
type Manager struct {
	namespace        string
	histogramBuckets []float64
	registry         *prometheus.Registry

	// Prediction service
	attempts           *prometheus.CounterVec
	backoffs           prometheus.Counter
	backoffSeconds     prometheus.Counter
	submissions        *prometheus.CounterVec
	submissionDuration prometheus.Histogram
	submissionAttempts prometheus.Histogram

	// Assessments
	assessments   *prometheus.CounterVec
	visitsByTier  *prometheus.CounterVec
	trendsByShape *prometheus.CounterVec

	// HTTP
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
}

// NewManager creates a Manager. Without WithRegistry a private registry is used,
// so several managers can coexist in tests.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        defaultNamespace,
		histogramBuckets: prometheus.DefBuckets,
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.registry == nil {
		m.registry = prometheus.NewRegistry()
	}

	m.initializeMetrics()
	return m
}

func (m *Manager) initializeMetrics() {
	auto := promauto.With(m.registry)

	m.attempts = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: "prediction",
		Name:      "attempts_total",
		Help:      "Prediction service requests by outcome",
	}, []string{"outcome"})

	m.backoffs = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: "prediction",
		Name:      "backoffs_total",
		Help:      "Number of waits applied after a rate-limited attempt",
	})

	m.backoffSeconds = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: "prediction",
		Name:      "backoff_seconds_total",
		Help:      "Total time spent waiting between attempts",
	})

	m.submissions = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: "prediction",
		Name:      "submissions_total",
		Help:      "Prediction submissions by final outcome",
	}, []string{"outcome"})

	m.submissionDuration = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: "prediction",
		Name:      "submission_duration_seconds",
		Help:      "Wall time of a submission including backoff",
		Buckets:   m.histogramBuckets,
	})

	m.submissionAttempts = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: "prediction",
		Name:      "submission_attempts",
		Help:      "Attempts used per submission",
		Buckets:   []float64{1, 2, 3, 5, 8},
	})

	m.assessments = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: "assessment",
		Name:      "total",
		Help:      "Assessments by outcome",
	}, []string{"outcome"})

	m.visitsByTier = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: "assessment",
		Name:      "visits_total",
		Help:      "Assessed visits by risk tier",
	}, []string{"tier"})

	m.trendsByShape = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: "assessment",
		Name:      "trends_total",
		Help:      "Trend summaries by direction and average tier",
	}, []string{"direction", "tier"})

	m.httpRequests = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "HTTP requests by route, method and status code",
	}, []string{"route", "method", "status_code"})

	m.httpRequestDuration = auto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "HTTP request latency",
		Buckets:   m.histogramBuckets,
	}, []string{"route", "method"})
}

// Registry returns the registry holding every metric of this Manager.
func (m *Manager) Registry() *prometheus.Registry {
	return m.registry
}

// Handler exposes the registry in the Prometheus text format.
func (m *Manager) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// RecordAttempt counts one request to the prediction service.
func (m *Manager) RecordAttempt(kind domain.ErrorKind) {
	m.attempts.WithLabelValues(outcome(kind)).Inc()
}

// RecordBackoff counts one wait between attempts.
func (m *Manager) RecordBackoff(delay time.Duration) {
	m.backoffs.Inc()
	m.backoffSeconds.Add(delay.Seconds())
}

// RecordSubmission records the final outcome of a submission.
func (m *Manager) RecordSubmission(kind domain.ErrorKind, attempts int, duration time.Duration) {
	m.submissions.WithLabelValues(outcome(kind)).Inc()
	m.submissionDuration.Observe(duration.Seconds())
	m.submissionAttempts.Observe(float64(attempts))
}

// RecordAssessment counts one completed assessment with its tiers and trend.
func (m *Manager) RecordAssessment(assessment *domain.Assessment) {
	m.assessments.WithLabelValues(outcomeSuccess).Inc()
	for _, visit := range assessment.Visits {
		m.visitsByTier.WithLabelValues(visit.Tier.String()).Inc()
	}
	s := assessment.Summary
	m.trendsByShape.WithLabelValues(s.Direction.String(), s.AverageTier.String()).Inc()
}

// RecordAssessmentFailure counts an assessment that ended with err.
func (m *Manager) RecordAssessmentFailure(err error) {
	label := "validation"
	if kind, ok := domain.KindOf(err); ok {
		label = string(kind)
	}
	m.assessments.WithLabelValues(label).Inc()
}

// RecordHTTPRequest records one served HTTP request.
func (m *Manager) RecordHTTPRequest(route, method string, statusCode int, duration time.Duration) {
	m.httpRequests.WithLabelValues(route, method, strconv.Itoa(statusCode)).Inc()
	m.httpRequestDuration.WithLabelValues(route, method).Observe(duration.Seconds())
}

func outcome(kind domain.ErrorKind) string {
	if kind == "" {
		return outcomeSuccess
	}
	return string(kind)
}
