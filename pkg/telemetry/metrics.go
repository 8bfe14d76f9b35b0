package telemetry

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/prometheus/client_golang/prometheus/push"
	"github.com/rs/zerolog"

	"github.com/openfroyo/clusterforge/pkg/engine"
)

// PushJob is the Pushgateway job name metrics are grouped under.
const PushJob = "clusterforge"

// Metrics provides Prometheus metrics for reconciliations. It implements
// engine.Recorder; a disabled instance records nothing.
type Metrics struct {
	config MetricsConfig

	reconciliations   *prometheus.CounterVec
	reconcileDuration *prometheus.HistogramVec
	operations        *prometheus.CounterVec
	polls             *prometheus.CounterVec
	commandAttempts   *prometheus.CounterVec
	errorsByKind      *prometheus.CounterVec

	registry *prometheus.Registry
}

var _ engine.Recorder = (*Metrics)(nil)

// NewMetrics creates a new metrics collector with the given configuration.
func NewMetrics(cfg MetricsConfig) (*Metrics, error) {
	if !cfg.Enabled {
		return &Metrics{config: cfg}, nil
	}

	namespace := cfg.Namespace
	buckets := cfg.DefaultHistogramBuckets
	if len(buckets) == 0 {
		buckets = prometheus.DefBuckets
	}

	registry := prometheus.NewRegistry()

	m := &Metrics{
		config:   cfg,
		registry: registry,

		reconciliations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "reconciliations_total",
				Help:      "Total number of handled requests by kind, request type and reported status",
			},
			[]string{"kind", "request_type", "status"},
		),
		reconcileDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "reconcile_duration_seconds",
				Help:      "Duration of request handling in seconds, including the callback",
				Buckets:   buckets,
			},
			[]string{"kind", "request_type"},
		),
		operations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "operations_total",
				Help:      "Total number of decided operations (create, update, replace, delete, noop)",
			},
			[]string{"kind", "operation"},
		),
		polls: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "status_polls_total",
				Help:      "Total number of convergence polls by observed status",
			},
			[]string{"kind", "status"},
		),
		commandAttempts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "command_attempts_total",
				Help:      "Total number of external command attempts by outcome",
			},
			[]string{"tool", "outcome"},
		),
		errorsByKind: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "errors_total",
				Help:      "Total number of reconciliation errors by kind",
			},
			[]string{"kind"},
		),
	}

	registry.MustRegister(
		m.reconciliations,
		m.reconcileDuration,
		m.operations,
		m.polls,
		m.commandAttempts,
		m.errorsByKind,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return m, nil
}

// RecordReconcile records one handled request.
func (m *Metrics) RecordReconcile(kind, requestType, status string, duration time.Duration) {
	if m.reconciliations == nil {
		return
	}
	m.reconciliations.WithLabelValues(kind, requestType, status).Inc()
	m.reconcileDuration.WithLabelValues(kind, requestType).Observe(duration.Seconds())
}

// RecordOperation records the operation an executor decided on.
func (m *Metrics) RecordOperation(kind string, op engine.OperationType) {
	if m.operations == nil {
		return
	}
	m.operations.WithLabelValues(kind, string(op)).Inc()
}

// RecordPoll records one convergence poll.
func (m *Metrics) RecordPoll(kind string, status engine.ResourceStatus) {
	if m.polls == nil {
		return
	}
	m.polls.WithLabelValues(kind, string(status)).Inc()
}

// RecordCommandAttempt records one attempt of an external command.
func (m *Metrics) RecordCommandAttempt(tool, outcome string) {
	if m.commandAttempts == nil {
		return
	}
	m.commandAttempts.WithLabelValues(tool, outcome).Inc()
}

// RecordError records a reconciliation error.
func (m *Metrics) RecordError(kind engine.ErrorKind) {
	if m.errorsByKind == nil {
		return
	}
	m.errorsByKind.WithLabelValues(string(kind)).Inc()
}

// Registry returns the underlying registry, nil when metrics are disabled.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler returns an HTTP handler for the metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	if m.registry == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

// Push sends the current metrics to the configured Pushgateway, grouped by
// the given instance label. It is a no-op when no gateway is configured.
func (m *Metrics) Push(ctx context.Context, instance string) error {
	if m.registry == nil || m.config.PushGateway == "" {
		return nil
	}
	return push.New(m.config.PushGateway, PushJob).
		Gatherer(m.registry).
		Grouping("instance", instance).
		AddContext(ctx)
}

// StartMetricsServer starts an HTTP server to expose metrics and returns it
// so the caller can shut it down. It returns nil when no listen address is set.
func (m *Metrics) StartMetricsServer(logger zerolog.Logger) *http.Server {
	if !m.config.Enabled || m.config.ListenAddress == "" {
		return nil
	}

	mux := http.NewServeMux()
	mux.Handle(m.config.Path, m.Handler())

	server := &http.Server{
		Addr:              m.config.ListenAddress,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error().Err(err).Msg("metrics server error")
		}
	}()

	return server
}
