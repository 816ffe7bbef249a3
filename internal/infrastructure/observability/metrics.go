package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds all application metrics
type Metrics struct {
	// Attempt metrics
	AttemptsTotal   *prometheus.CounterVec
	AttemptDuration *prometheus.HistogramVec
	ActiveAttempts  prometheus.Gauge
	Completions     *prometheus.CounterVec

	// Control metrics
	ActiveControls prometheus.Gauge

	// Gateway window metrics
	ActiveWindows prometheus.Gauge
	WindowPolls   prometheus.Counter
	WindowEvents  *prometheus.CounterVec

	// Cart context writes
	ContextWrites *prometheus.CounterVec

	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Circuit breaker metrics
	CircuitBreakerState    *prometheus.GaugeVec
	CircuitBreakerRequests *prometheus.CounterVec

	// Worker metrics
	WorkerMessagesProcessed  *prometheus.CounterVec
	WorkerProcessingDuration *prometheus.HistogramVec
	OutboxPending            prometheus.Gauge
}

// NewMetrics creates and registers all metrics against the given registry.
// If reg is nil, prometheus.DefaultRegisterer is used.
func NewMetrics(namespace string, reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := prometheus.WrapRegistererWith(nil, reg)

	m := &Metrics{
		AttemptsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "payment_attempts_total",
				Help:      "Total number of payment attempts by provider and outcome",
			},
			[]string{"provider", "outcome"},
		),
		AttemptDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "payment_attempt_duration_seconds",
				Help:      "Payment attempt duration in seconds, from submit to resolution",
				Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 300, 900},
			},
			[]string{"provider"},
		),
		ActiveAttempts: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "active_payment_attempts",
				Help:      "Number of payment attempts currently in flight",
			},
		),
		Completions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "payment_completions_total",
				Help:      "Total number of completion signals raised",
			},
			[]string{"provider"},
		),
		ActiveControls: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "active_payment_controls",
				Help:      "Number of payment controls held in memory",
			},
		),
		ActiveWindows: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "active_gateway_windows",
				Help:      "Number of gateway windows currently being watched",
			},
		),
		WindowPolls: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "gateway_window_polls_total",
				Help:      "Total number of gateway window state polls",
			},
		),
		WindowEvents: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "gateway_window_events_total",
				Help:      "Total number of browser window events received",
			},
			[]string{"event", "result"},
		),
		ContextWrites: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cart_context_writes_total",
				Help:      "Total number of cart context writes by result",
			},
			[]string{"result"},
		),
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
		CircuitBreakerState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "circuit_breaker_state",
				Help:      "Circuit breaker state (0=closed, 1=half-open, 2=open)",
			},
			[]string{"name"},
		),
		CircuitBreakerRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "circuit_breaker_requests_total",
				Help:      "Total number of circuit breaker requests",
			},
			[]string{"name", "result"},
		),
		WorkerMessagesProcessed: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "worker_messages_processed_total",
				Help:      "Total number of worker messages processed",
			},
			[]string{"stream", "status"},
		),
		WorkerProcessingDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "worker_processing_duration_seconds",
				Help:      "Worker message processing duration in seconds",
				Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
			},
			[]string{"stream"},
		),
		OutboxPending: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "outbox_pending_entries",
				Help:      "Number of completion events waiting in the outbox",
			},
		),
	}

	factory.MustRegister(
		m.AttemptsTotal,
		m.AttemptDuration,
		m.ActiveAttempts,
		m.Completions,
		m.ActiveControls,
		m.ActiveWindows,
		m.WindowPolls,
		m.WindowEvents,
		m.ContextWrites,
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.CircuitBreakerState,
		m.CircuitBreakerRequests,
		m.WorkerMessagesProcessed,
		m.WorkerProcessingDuration,
		m.OutboxPending,
	)

	return m
}
