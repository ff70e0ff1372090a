// Package metrics exposes payment core health signals over Prometheus.
package metrics

import (
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Config carries the constant labels attached to every instrument.
type Config struct {
	ServiceName string
	Environment string
}

// PaymentMetrics captures operation, lock and reconciliation signals.
type PaymentMetrics struct {
	operations        *prometheus.CounterVec
	operationDuration *prometheus.HistogramVec
	pluginTimeouts    prometheus.Counter
	lockWait          prometheus.Histogram
	lockTimeouts      prometheus.Counter
	janitorResolved   *prometheus.CounterVec
}

var (
	paymentMetricsOnce sync.Once
	paymentMetrics     *PaymentMetrics
)

// Payment returns the singleton payment metrics registry.
func Payment() *PaymentMetrics {
	return PaymentWithConfig(Config{})
}

// PaymentWithConfig returns the singleton payment metrics registry using config labels.
func PaymentWithConfig(cfg Config) *PaymentMetrics {
	paymentMetricsOnce.Do(func() {
		paymentMetrics = newPaymentMetrics(prometheus.DefaultRegisterer, cfg)
	})
	return paymentMetrics
}

// ResetPaymentMetricsForTest resets the payment metrics singleton for tests.
func ResetPaymentMetricsForTest() {
	paymentMetricsOnce = sync.Once{}
	paymentMetrics = nil
}

func newPaymentMetrics(registerer prometheus.Registerer, cfg Config) *PaymentMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	serviceName := strings.TrimSpace(cfg.ServiceName)
	if serviceName == "" {
		serviceName = "paycore"
	}
	environment := strings.TrimSpace(cfg.Environment)
	if environment == "" {
		environment = "unknown"
	}
	constLabels := prometheus.Labels{
		"service": serviceName,
		"env":     environment,
	}

	operations := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "paycore_payment_operations_total",
		Help:        "Payment operations by transaction type and resulting status.",
		ConstLabels: constLabels,
	}, []string{"transaction_type", "status"})
	operationDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:        "paycore_payment_operation_duration_seconds",
		Help:        "End-to-end payment operation latency including lock wait and plugin call.",
		Buckets:     []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		ConstLabels: constLabels,
	}, []string{"transaction_type"})
	pluginTimeouts := prometheus.NewCounter(prometheus.CounterOpts{
		Name:        "paycore_plugin_timeouts_total",
		Help:        "Plugin calls abandoned after the dispatch timeout.",
		ConstLabels: constLabels,
	})
	lockWait := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:        "paycore_account_lock_wait_seconds",
		Help:        "Time spent waiting for the per-account lock.",
		Buckets:     []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		ConstLabels: constLabels,
	})
	lockTimeouts := prometheus.NewCounter(prometheus.CounterOpts{
		Name:        "paycore_account_lock_timeouts_total",
		Help:        "Account lock acquisitions abandoned after the configured timeout.",
		ConstLabels: constLabels,
	})
	janitorResolved := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "paycore_janitor_resolved_total",
		Help:        "Incomplete transactions resolved by reconciliation, by final status.",
		ConstLabels: constLabels,
	}, []string{"status"})

	registerer.MustRegister(
		operations,
		operationDuration,
		pluginTimeouts,
		lockWait,
		lockTimeouts,
		janitorResolved,
	)

	return &PaymentMetrics{
		operations:        operations,
		operationDuration: operationDuration,
		pluginTimeouts:    pluginTimeouts,
		lockWait:          lockWait,
		lockTimeouts:      lockTimeouts,
		janitorResolved:   janitorResolved,
	}
}

// IncOperation increments the operation counter for a type and status.
func (m *PaymentMetrics) IncOperation(transactionType, status string) {
	if m == nil || m.operations == nil {
		return
	}
	m.operations.WithLabelValues(transactionType, status).Inc()
}

// ObserveOperationDuration records operation latency in seconds.
func (m *PaymentMetrics) ObserveOperationDuration(transactionType string, duration time.Duration) {
	if m == nil || m.operationDuration == nil {
		return
	}
	m.operationDuration.WithLabelValues(transactionType).Observe(duration.Seconds())
}

// IncPluginTimeout increments the abandoned plugin call counter.
func (m *PaymentMetrics) IncPluginTimeout() {
	if m == nil || m.pluginTimeouts == nil {
		return
	}
	m.pluginTimeouts.Inc()
}

// ObserveLockWait records time spent waiting for the account lock.
func (m *PaymentMetrics) ObserveLockWait(duration time.Duration) {
	if m == nil || m.lockWait == nil {
		return
	}
	if duration < 0 {
		duration = 0
	}
	m.lockWait.Observe(duration.Seconds())
}

// IncLockTimeout increments the lock acquisition timeout counter.
func (m *PaymentMetrics) IncLockTimeout() {
	if m == nil || m.lockTimeouts == nil {
		return
	}
	m.lockTimeouts.Inc()
}

// IncJanitorResolved increments the reconciliation resolution counter.
func (m *PaymentMetrics) IncJanitorResolved(status string) {
	if m == nil || m.janitorResolved == nil {
		return
	}
	m.janitorResolved.WithLabelValues(status).Inc()
}
