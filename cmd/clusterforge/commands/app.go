package commands

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/openfroyo/clusterforge/pkg/config"
	"github.com/openfroyo/clusterforge/pkg/engine"
	"github.com/openfroyo/clusterforge/pkg/policy"
	"github.com/openfroyo/clusterforge/pkg/providers/eks"
	"github.com/openfroyo/clusterforge/pkg/runner"
	"github.com/openfroyo/clusterforge/pkg/stores"
	"github.com/openfroyo/clusterforge/pkg/telemetry"
	"github.com/openfroyo/clusterforge/pkg/transports/callback"
)

// shutdownTimeout bounds flushing telemetry on exit.
const shutdownTimeout = 10 * time.Second

// app is everything one process needs to reconcile requests.
type app struct {
	cfg        *config.Config
	tel        *telemetry.Telemetry
	logger     zerolog.Logger
	reconciler *engine.Reconciler

	// mode names the command serving requests, e.g. lambda or handle.
	mode string

	// store is set for the local backend only.
	store *stores.ClusterStore

	closeOnce sync.Once
}

// appOptions adjusts how an app is assembled.
type appOptions struct {
	// backend overrides the configured backend.
	backend string

	// noCallback skips the callback; the payload is only returned.
	noCallback bool
}

// newApp loads configuration for cmd and wires the reconciler.
func newApp(ctx context.Context, cmd *cobra.Command, opts appOptions) (*app, error) {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(config.LoadOptions{ConfigFile: cfgFile, Flags: cmd.Flags()})
	if err != nil {
		return nil, err
	}
	if opts.backend != "" {
		cfg.Backend = opts.backend
	}

	if buildVersion != "" {
		cfg.Telemetry.ServiceVersion = buildVersion
	}
	tel, err := telemetry.NewTelemetry(&cfg.Telemetry)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	log.Logger = tel.Logger

	a := &app{cfg: cfg, tel: tel, logger: tel.Logger, mode: cmd.Name()}
	if err := a.wire(ctx, opts); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *app) wire(ctx context.Context, opts appOptions) error {
	cfg := a.cfg
	recorder := a.tel.Metrics

	r := runner.New(runner.Options{
		MaxAttempts:         cfg.CommandMaxAttempts,
		TransientSignatures: cfg.TransientSignatures,
		Recorder:            recorder,
		Logger:              a.logger,
	})
	helm := runner.NewHelmTool(runner.HelmOptions{
		Binary:     cfg.HelmBinary,
		WorkDir:    cfg.WorkDir,
		Runner:     r,
		Kubeconfig: runner.NewKubeconfigBootstrapper(r, cfg.AWSBinary, cfg.WorkDir, cfg.Region),
		Logger:     a.logger,
	})

	manager, err := a.resourceManager(ctx)
	if err != nil {
		return err
	}

	policies, err := policy.NewEngine(a.logger)
	if err != nil {
		return fmt.Errorf("failed to initialize policies: %w", err)
	}
	if err := policies.LoadPolicies(ctx, cfg.PolicyPaths); err != nil {
		return err
	}

	var reporter engine.Reporter
	if !opts.noCallback {
		reporter = callback.NewReporter(callback.Config{Timeout: cfg.HTTPTimeout}, a.logger)
	}

	a.reconciler = engine.NewReconciler(engine.ReconcilerOptions{
		Classifier: engine.NewClassifier(engine.ClassifierOptions{
			Kind:        cfg.ResourceKind(),
			ClusterName: cfg.ClusterName,
			RoleArn:     cfg.RoleArn,
			Schema:      config.NewSchemaRegistry(),
		}),
		Executors: map[engine.ResourceKind]engine.Executor{
			engine.ResourceKindCluster: engine.NewClusterExecutor(engine.ClusterExecutorOptions{
				Manager:                     manager,
				ActiveWait:                  cfg.ActiveWait,
				DeleteWait:                  cfg.DeleteWait,
				Recorder:                    recorder,
				Logger:                      a.logger,
				CompensateFailedReplacement: cfg.CompensateFailedReplacement,
			}),
			engine.ResourceKindChart: engine.NewChartExecutor(engine.ChartExecutorOptions{
				Tool:      helm,
				ChartWait: cfg.ChartWait,
				Recorder:  recorder,
				Logger:    a.logger,
			}),
		},
		Policy:        policies,
		Reporter:      reporter,
		Recorder:      recorder,
		Logger:        a.logger,
		LogStreamName: cfg.LogStreamName,
		ReportTimeout: cfg.HTTPTimeout,
	})
	return nil
}

func (a *app) resourceManager(ctx context.Context) (engine.ResourceManager, error) {
	switch a.cfg.Backend {
	case config.BackendLocal:
		store, err := stores.Open(ctx, stores.Config{
			Path:        a.cfg.StatePath(),
			SettleDelay: a.cfg.SettleDelay,
			Region:      a.cfg.Region,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to open local state: %w", err)
		}
		a.store = store
		return store, nil
	default:
		client, err := eks.NewClient(ctx, eks.ClientConfig{
			Region:        a.cfg.Region,
			AssumeRoleArn: a.cfg.AssumeRoleArn,
			MaxAttempts:   a.cfg.AWSMaxAttempts,
		})
		if err != nil {
			return nil, err
		}
		return eks.NewManager(client, a.logger), nil
	}
}

// handle reconciles one event, records it when the local backend is in use
// and flushes telemetry.
func (a *app) handle(ctx context.Context, raw engine.RawEvent) *engine.Result {
	start := time.Now()
	ctx, span := a.tel.Tracer.StartInvocationSpan(ctx, a.mode, raw.RequestID)
	res := a.reconciler.Handle(ctx, raw)
	telemetry.EndInvocationSpan(span, string(res.Payload.Status), res.Err)
	a.logger.Debug().
		Str("request_id", raw.RequestID).
		Str("trace_id", telemetry.TraceID(ctx)).
		Str("status", string(res.Payload.Status)).
		Dur("duration", time.Since(start)).
		Msg("request handled")

	// Bookkeeping runs even when the request ran out of time.
	after, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()

	if a.store != nil {
		rec := &stores.Reconciliation{
			RequestID:   raw.RequestID,
			RequestType: raw.RequestType,
			LogicalID:   raw.LogicalResourceID,
			PhysicalID:  res.Payload.PhysicalResourceID,
			Status:      string(res.Payload.Status),
			Reason:      res.Payload.Reason,
			Duration:    time.Since(start),
		}
		if res.Request != nil {
			rec.Kind = string(res.Request.Kind)
		}
		if res.Err != nil {
			rec.ErrorKind = string(engine.KindOf(res.Err))
		}
		if err := a.store.RecordReconciliation(after, rec); err != nil {
			a.logger.Warn().Err(err).Msg("failed to record reconciliation")
		}
	}

	if err := a.tel.Flush(after, a.instance()); err != nil {
		a.logger.Warn().Err(err).Msg("failed to flush telemetry")
	}
	return res
}

// instance identifies this process to the metrics gateway.
func (a *app) instance() string {
	if a.cfg.LogStreamName != "" {
		return a.cfg.LogStreamName
	}
	return "local"
}

// Close releases the store and shuts telemetry down. It is safe to call
// more than once.
func (a *app) Close() {
	a.closeOnce.Do(func() {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		var errs []error
		if a.store != nil {
			errs = append(errs, a.store.Close())
		}
		errs = append(errs, a.tel.Shutdown(ctx))
		if err := errors.Join(errs...); err != nil {
			a.logger.Warn().Err(err).Msg("shutdown incomplete")
		}
	})
}
