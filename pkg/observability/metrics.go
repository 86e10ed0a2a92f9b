package observability

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all the Prometheus metrics for the ENI manager
type Metrics struct {
	// Lifecycle operation metrics
	OperationsTotal   *prometheus.CounterVec
	OperationDuration *prometheus.HistogramVec
	OperationErrors   *prometheus.CounterVec

	// Cleanup metrics
	InterfacesCleaned   prometheus.Counter
	InterfacesProtected *prometheus.CounterVec

	// Convergence wait metrics
	ConvergenceWaits        *prometheus.CounterVec
	ConvergenceWaitDuration *prometheus.HistogramVec

	// AWS API metrics
	AWSAPICallsTotal    *prometheus.CounterVec
	AWSAPICallDuration  *prometheus.HistogramVec
	AWSAPIErrors        *prometheus.CounterVec
	AWSThrottlingEvents prometheus.Counter

	// Instance metadata service metrics
	MetadataRequestsTotal *prometheus.CounterVec
}

var (
	metricsInstance *Metrics
	metricsOnce     sync.Once
)

// NewMetrics creates and registers all metrics (singleton pattern)
func NewMetrics() *Metrics {
	metricsOnce.Do(func() {
		metricsInstance = createMetrics()
	})
	return metricsInstance
}

// createMetrics creates and registers all metrics
func createMetrics() *Metrics {
	m := &Metrics{
		OperationsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "eni_operations_total",
				Help: "Total number of lifecycle operations performed",
			},
			[]string{"operation", "status"},
		),

		OperationDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "eni_operation_duration_seconds",
				Help:    "Duration of lifecycle operations in seconds",
				Buckets: prometheus.ExponentialBuckets(0.1, 2, 10),
			},
			[]string{"operation"},
		),

		OperationErrors: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "eni_operation_errors_total",
				Help: "Total number of lifecycle operation errors",
			},
			[]string{"operation", "error_kind"},
		),

		InterfacesCleaned: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "eni_cleanup_deleted_total",
				Help: "Total number of interfaces deleted by cleanup",
			},
		),

		InterfacesProtected: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "eni_cleanup_protected_total",
				Help: "Total number of interfaces cleanup refused to delete",
			},
			[]string{"reason"},
		),

		ConvergenceWaits: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "eni_convergence_waits_total",
				Help: "Total number of convergence waits performed",
			},
			[]string{"condition", "outcome"},
		),

		ConvergenceWaitDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "eni_convergence_wait_duration_seconds",
				Help:    "Time spent waiting for resources to converge",
				Buckets: prometheus.ExponentialBuckets(0.1, 2, 10),
			},
			[]string{"condition"},
		),

		AWSAPICallsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "aws_api_calls_total",
				Help: "Total number of AWS API calls made",
			},
			[]string{"service", "operation", "status"},
		),

		AWSAPICallDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "aws_api_call_duration_seconds",
				Help:    "Duration of AWS API calls in seconds",
				Buckets: prometheus.ExponentialBuckets(0.01, 2, 10),
			},
			[]string{"service", "operation"},
		),

		AWSAPIErrors: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "aws_api_errors_total",
				Help: "Total number of AWS API errors",
			},
			[]string{"service", "operation", "error_kind"},
		),

		AWSThrottlingEvents: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "aws_throttling_events_total",
				Help: "Total number of AWS API throttling events",
			},
		),

		MetadataRequestsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "imds_requests_total",
				Help: "Total number of instance metadata service requests by outcome",
			},
			[]string{"outcome"},
		),
	}

	return m
}

// RecordOperation records metrics for a completed lifecycle operation
func (m *Metrics) RecordOperation(operation, status string, duration time.Duration) {
	m.OperationsTotal.WithLabelValues(operation, status).Inc()
	m.OperationDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// RecordOperationError records a lifecycle operation error
func (m *Metrics) RecordOperationError(operation, errorKind string) {
	m.OperationErrors.WithLabelValues(operation, errorKind).Inc()
}

// RecordCleanedInterface records an interface deleted by cleanup
func (m *Metrics) RecordCleanedInterface() {
	m.InterfacesCleaned.Inc()
}

// RecordProtectedInterface records an interface cleanup refused to delete
func (m *Metrics) RecordProtectedInterface(reason string) {
	m.InterfacesProtected.WithLabelValues(reason).Inc()
}

// RecordConvergenceWait records a convergence wait and its outcome
func (m *Metrics) RecordConvergenceWait(condition, outcome string, duration time.Duration) {
	m.ConvergenceWaits.WithLabelValues(condition, outcome).Inc()
	m.ConvergenceWaitDuration.WithLabelValues(condition).Observe(duration.Seconds())
}

// RecordAWSAPICall records metrics for an AWS API call
func (m *Metrics) RecordAWSAPICall(service, operation, status string, duration time.Duration) {
	m.AWSAPICallsTotal.WithLabelValues(service, operation, status).Inc()
	m.AWSAPICallDuration.WithLabelValues(service, operation).Observe(duration.Seconds())
}

// RecordAWSAPIError records an AWS API error
func (m *Metrics) RecordAWSAPIError(service, operation, errorKind string) {
	m.AWSAPIErrors.WithLabelValues(service, operation, errorKind).Inc()
}

// RecordAWSThrottling records an AWS throttling event
func (m *Metrics) RecordAWSThrottling() {
	m.AWSThrottlingEvents.Inc()
}

// RecordMetadataRequest records the outcome of a metadata service request
func (m *Metrics) RecordMetadataRequest(outcome string) {
	m.MetadataRequestsTotal.WithLabelValues(outcome).Inc()
}

// Timer is a helper for timing operations
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// Duration returns the elapsed time since the timer was created
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}

// ObserveWithTimer is a helper to observe a histogram with a timer
func ObserveWithTimer(histogram prometheus.Observer, timer *Timer) {
	histogram.Observe(timer.Duration().Seconds())
}
