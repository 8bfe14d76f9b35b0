// Package telemetry provides observability for clusterforge.
//
// It combines structured logging (zerolog), distributed tracing
// (OpenTelemetry) and metrics (Prometheus).
//
// # Usage
//
// Initialize telemetry at process start:
//
//	cfg := telemetry.DefaultConfig()
//	cfg.ServiceVersion = version
//
//	tel, err := telemetry.NewTelemetry(cfg)
//	if err != nil {
//	    return err
//	}
//	defer tel.Shutdown(context.Background())
//
//	ctx = tel.WithContext(ctx)
//
// # Logging
//
// NewLogger returns a plain zerolog.Logger. Components derive children with
// a "component" field and read request-scoped loggers with zerolog.Ctx.
// In the function runtime logs are JSON on stdout, one object per line.
//
// # Tracing
//
// NewTracer installs the global tracer provider, so packages that call
// otel.Tracer pick it up without a direct dependency on this package.
// Spans are exported synchronously because an invocation may be frozen
// right after it returns.
//
// Supported exporters: otlp, stdout, none.
//
// # Metrics
//
// Metrics implements engine.Recorder:
//
//	reconciler := engine.NewReconciler(engine.ReconcilerOptions{
//	    Recorder: tel.Metrics,
//	    ...
//	})
//
// Long-running processes expose /metrics through StartMetricsServer.
// Short-lived invocations push to a Pushgateway through Flush.
package telemetry
