package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the security and RGPD core.
type Metrics struct {
	// Security pipeline metrics
	RateLimitViolations prometheus.Counter
	RequestsBlocked     *prometheus.CounterVec
	PermissionDenials   *prometheus.CounterVec
	AnomalyScore        prometheus.Histogram
	SecurityEvents      *prometheus.CounterVec

	// RGPD metrics
	ConsentsGranted   *prometheus.CounterVec
	ConsentsWithdrawn *prometheus.CounterVec
	RightsRequests    *prometheus.CounterVec
	UsersAnonymized   prometheus.Counter
	RecordsCleaned    *prometheus.CounterVec

	// Latency
	ErasureLatency prometheus.Histogram
}

// New creates and registers all Prometheus metrics.
func New() *Metrics {
	return &Metrics{
		RateLimitViolations: promauto.NewCounter(prometheus.CounterOpts{
			Name: "batisecure_rate_limit_violations_total",
			Help: "Total number of requests rejected by the rate limiter",
		}),
		RequestsBlocked: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "batisecure_requests_blocked_total",
			Help: "Total number of requests blocked by the guard, labeled by reason",
		}, []string{"reason"}),
		PermissionDenials: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "batisecure_permission_denials_total",
			Help: "Total number of denied permission checks, labeled by role",
		}, []string{"role"}),
		AnomalyScore: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "batisecure_anomaly_score",
			Help:    "Distribution of anomaly risk scores",
			Buckets: []float64{10, 20, 30, 50, 70, 90, 100},
		}),
		SecurityEvents: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "batisecure_security_events_total",
			Help: "Total number of security events, labeled by risk level",
		}, []string{"risk_level"}),
		ConsentsGranted: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "batisecure_consents_granted_total",
			Help: "Total number of consents granted, labeled by purpose",
		}, []string{"purpose"}),
		ConsentsWithdrawn: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "batisecure_consents_withdrawn_total",
			Help: "Total number of consents withdrawn, labeled by purpose",
		}, []string{"purpose"}),
		RightsRequests: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "batisecure_rights_requests_total",
			Help: "Total number of data-subject rights requests, labeled by type",
		}, []string{"type"}),
		UsersAnonymized: promauto.NewCounter(prometheus.CounterOpts{
			Name: "batisecure_users_anonymized_total",
			Help: "Total number of users anonymized through erasure requests",
		}),
		RecordsCleaned: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "batisecure_records_cleaned_total",
			Help: "Total number of records removed by retention cleanup, labeled by data type",
		}, []string{"data_type"}),
		ErasureLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "batisecure_erasure_latency_seconds",
			Help:    "Latency of erasure request processing in seconds",
			Buckets: prometheus.DefBuckets,
		}),
	}
}

// IncrementRateLimitViolations increments the rate limit violation counter by 1.
func (m *Metrics) IncrementRateLimitViolations() {
	m.RateLimitViolations.Inc()
}

func (m *Metrics) IncrementRequestsBlocked(reason string) {
	m.RequestsBlocked.WithLabelValues(reason).Inc()
}

func (m *Metrics) IncrementPermissionDenials(role string) {
	m.PermissionDenials.WithLabelValues(role).Inc()
}

func (m *Metrics) ObserveAnomalyScore(score int) {
	m.AnomalyScore.Observe(float64(score))
}

func (m *Metrics) IncrementSecurityEvents(riskLevel string) {
	m.SecurityEvents.WithLabelValues(riskLevel).Inc()
}

func (m *Metrics) IncrementConsentsGranted(purpose string) {
	m.ConsentsGranted.WithLabelValues(purpose).Inc()
}

func (m *Metrics) IncrementConsentsWithdrawn(purpose string) {
	m.ConsentsWithdrawn.WithLabelValues(purpose).Inc()
}

func (m *Metrics) IncrementRightsRequests(requestType string) {
	m.RightsRequests.WithLabelValues(requestType).Inc()
}

func (m *Metrics) IncrementUsersAnonymized() {
	m.UsersAnonymized.Inc()
}

func (m *Metrics) AddRecordsCleaned(dataType string, count int) {
	m.RecordsCleaned.WithLabelValues(dataType).Add(float64(count))
}

// ObserveErasureLatency records the duration of an erasure transaction.
func (m *Metrics) ObserveErasureLatency(durationSeconds float64) {
	m.ErasureLatency.Observe(durationSeconds)
}
