package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics bundles Prometheus collectors used across the service.
type Metrics struct {
	HTTPRequests *prometheus.CounterVec
	HTTPDuration *prometheus.HistogramVec
	WebhookQueue prometheus.Gauge

	BalancerSelections  *prometheus.CounterVec
	BalancerCycleResets *prometheus.CounterVec
	RotationCacheErrors *prometheus.CounterVec

	BalanceLockOutcomes     *prometheus.CounterVec
	BalanceLockCircuitState prometheus.Gauge

	WebhookDeliveries *prometheus.CounterVec
	WebhookAttempts   *prometheus.HistogramVec
	WebhookDuration   *prometheus.HistogramVec
	CircuitState      *prometheus.GaugeVec

	HealthChecks *prometheus.CounterVec
}

// NewMetrics registers collectors with the provided namespace.
func NewMetrics(namespace string, reg prometheus.Registerer) *Metrics {
	labels := []string{"method", "path", "status"}
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "http_requests_total",
		Help:      "Total HTTP requests processed.",
	}, labels)
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "http_request_duration_seconds",
		Help:      "Duration of HTTP requests in seconds.",
		Buckets:   prometheus.DefBuckets,
	}, labels)
	queue := prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "webhook_outbox_backlog",
		Help:      "Number of webhook events pending delivery.",
	})

	balancerSelections := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "balancer_selections_total",
		Help:      "Total instance selections made by the load balancer.",
	}, []string{"group_alias", "instance", "pass"})

	balancerCycleResets := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "balancer_cycle_resets_total",
		Help:      "Total contact rotation cycle resets.",
	}, []string{"group_alias"})

	rotationCacheErrors := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "rotation_store_cache_errors_total",
		Help:      "Total RotationStore cache-tier errors absorbed by the fallback tier.",
	}, []string{"op"})

	webhookDeliveries := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "webhook_deliveries_total",
		Help:      "Total webhook delivery outcomes.",
	}, []string{"subscriber", "outcome"})

	webhookAttempts := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "webhook_delivery_attempts",
		Help:      "Number of HTTP attempts per webhook delivery.",
		Buckets:   []float64{1, 2, 3, 5, 10, 20},
	}, []string{"subscriber"})

	webhookDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "webhook_delivery_duration_seconds",
		Help:      "Duration of a completed webhook delivery, including retries.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"subscriber"})

	circuitState := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "webhook_circuit_state",
		Help:      "Circuit breaker state per subscriber (0=closed,1=open,2=half_open).",
	}, []string{"subscriber"})

	healthChecks := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "health_checks_total",
		Help:      "Total dependency health checks performed by /health and /ready.",
	}, []string{"component", "status"})

	balanceLockOutcomes := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "balance_lock_outcomes_total",
		Help:      "Total balance lock acquisitions by outcome (success, failure).",
	}, []string{"outcome"})

	balanceLockCircuitState := prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "balance_lock_circuit_state",
		Help:      "Balance lock circuit breaker state (0=closed,1=open,2=half_open).",
	})

	reg.MustRegister(
		requests, duration, queue,
		balancerSelections, balancerCycleResets, rotationCacheErrors,
		webhookDeliveries, webhookAttempts, webhookDuration, circuitState,
		healthChecks, balanceLockOutcomes, balanceLockCircuitState,
	)

	return &Metrics{
		HTTPRequests:            requests,
		HTTPDuration:            duration,
		WebhookQueue:            queue,
		BalancerSelections:      balancerSelections,
		BalancerCycleResets:     balancerCycleResets,
		RotationCacheErrors:     rotationCacheErrors,
		BalanceLockOutcomes:     balanceLockOutcomes,
		BalanceLockCircuitState: balanceLockCircuitState,
		WebhookDeliveries:       webhookDeliveries,
		WebhookAttempts:         webhookAttempts,
		WebhookDuration:         webhookDuration,
		CircuitState:            circuitState,
		HealthChecks:            healthChecks,
	}
}
