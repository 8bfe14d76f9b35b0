package telemetry

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/rs/zerolog"
)

// Telemetry combines logging, tracing and metrics for one process.
type Telemetry struct {
	Logger  zerolog.Logger
	Tracer  *Tracer
	Metrics *Metrics
	Config  *Config

	logCloser     io.Closer
	metricsServer *http.Server
}

// NewTelemetry creates a new telemetry instance from configuration.
func NewTelemetry(cfg *Config) (*Telemetry, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger, closer, err := NewLogger(cfg.Logging)
	if err != nil {
		return nil, err
	}
	logger = logger.With().
		Str("service", cfg.ServiceName).
		Str("version", cfg.ServiceVersion).
		Logger()

	tracer, err := NewTracer(cfg.Tracing, cfg.ServiceName, cfg.ServiceVersion, cfg.Environment)
	if err != nil {
		_ = closer.Close()
		return nil, err
	}

	metrics, err := NewMetrics(cfg.Metrics)
	if err != nil {
		_ = closer.Close()
		return nil, err
	}

	return &Telemetry{
		Logger:    logger,
		Tracer:    tracer,
		Metrics:   metrics,
		Config:    cfg,
		logCloser: closer,
	}, nil
}

// WithContext attaches the logger to ctx so zerolog.Ctx finds it.
func (t *Telemetry) WithContext(ctx context.Context) context.Context {
	return t.Logger.WithContext(ctx)
}

// StartMetricsServer starts the metrics HTTP server if one is configured.
func (t *Telemetry) StartMetricsServer() {
	t.metricsServer = t.Metrics.StartMetricsServer(t.Logger)
}

// Flush exports pending spans and pushes metrics for instance.
func (t *Telemetry) Flush(ctx context.Context, instance string) error {
	return errors.Join(
		t.Tracer.ForceFlush(ctx),
		t.Metrics.Push(ctx, instance),
	)
}

// Shutdown gracefully shuts down all telemetry components.
func (t *Telemetry) Shutdown(ctx context.Context) error {
	var errs []error
	if t.metricsServer != nil {
		errs = append(errs, t.metricsServer.Shutdown(ctx))
	}
	errs = append(errs, t.Tracer.Shutdown(ctx))
	if t.logCloser != nil {
		errs = append(errs, t.logCloser.Close())
	}
	return errors.Join(errs...)
}
