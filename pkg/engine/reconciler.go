package engine

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/openfroyo/clusterforge/pkg/engine"

// ReconcilerOptions configures a Reconciler.
type ReconcilerOptions struct {
	Classifier *Classifier
	Executors  map[ResourceKind]Executor

	// Policy admits requests before any external call; nil admits everything.
	Policy AdmissionPolicy

	Reporter Reporter
	Recorder Recorder
	Logger   zerolog.Logger

	// LogStreamName is referenced in default reasons and is the physical id
	// of last resort.
	LogStreamName string

	// ReportTimeout bounds the callback once reconciliation has ended. The
	// callback does not inherit the reconcile deadline, so a request that ran
	// out of time is still answered.
	ReportTimeout time.Duration
}

// DefaultReportTimeout is used when ReportTimeout is zero.
const DefaultReportTimeout = 30 * time.Second

// Reconciler is the single boundary that turns one inbound event into
// exactly one response.
type Reconciler struct {
	opts   ReconcilerOptions
	tracer trace.Tracer
	logger zerolog.Logger
}

// Result is the outcome of one Handle call.
type Result struct {
	Payload *ResponsePayload
	Request *ChangeRequest
	Outcome *Outcome

	// Err is the reconciliation error reported as FAILED, if any.
	Err error

	// TransportErr is set when the response could not be delivered.
	TransportErr error

	// States is the lifecycle history of the request.
	States []LifecycleState
}

// Succeeded reports whether the request was reconciled successfully.
func (r *Result) Succeeded() bool {
	return r.Err == nil
}

// NewReconciler creates a new reconciler.
func NewReconciler(opts ReconcilerOptions) *Reconciler {
	if opts.Recorder == nil {
		opts.Recorder = NopRecorder{}
	}
	if opts.ReportTimeout <= 0 {
		opts.ReportTimeout = DefaultReportTimeout
	}
	return &Reconciler{
		opts:   opts,
		tracer: otel.Tracer(tracerName),
		logger: opts.Logger.With().Str("component", "reconciler").Logger(),
	}
}

// Handle classifies, admits, executes and reports raw. Every failure,
// including a panic, is converted into a FAILED response.
func (r *Reconciler) Handle(ctx context.Context, raw RawEvent) *Result {
	start := time.Now()
	ctx, span := r.tracer.Start(ctx, "reconcile",
		trace.WithAttributes(
			attribute.String("request.id", raw.RequestID),
			attribute.String("request.type", raw.RequestType),
			attribute.String("logical.id", raw.LogicalResourceID),
		))
	defer span.End()

	logger := r.logger.With().
		Str("request_id", raw.RequestID).
		Str("stack_id", raw.StackID).
		Str("logical_id", raw.LogicalResourceID).
		Str("physical_id", raw.PhysicalResourceID).
		Str("request_type", raw.RequestType).
		Logger()
	ctx = logger.WithContext(ctx)

	lc := NewLifecycle(logger)
	req, outcome, err := r.reconcile(ctx, raw, lc)

	res := &Result{Request: req, Outcome: outcome, Err: err}
	kind := string(ResourceKindAuto)
	if req != nil {
		kind = string(req.Kind)
	}

	if err != nil {
		lc.Fail()
		r.opts.Recorder.RecordError(KindOf(err))
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		logger.Error().
			Err(err).
			Str("error_kind", string(KindOf(err))).
			Msg("reconciliation failed")
	} else if lc.State() != StateReporting {
		if terr := lc.Transition(StateReporting); terr != nil {
			logger.Warn().Err(terr).Msg("unexpected lifecycle state before reporting")
		}
	}

	res.Payload = BuildPayload(raw, outcome, err, r.opts.LogStreamName)
	res.TransportErr = r.report(ctx, raw.ResponseURL, res.Payload, logger)
	if err == nil && res.TransportErr == nil {
		_ = lc.Transition(StateDone)
	}
	res.States = lc.History()

	status := string(res.Payload.Status)
	r.opts.Recorder.RecordReconcile(kind, raw.RequestType, status, time.Since(start))
	span.SetAttributes(
		attribute.String("response.status", status),
		attribute.String("physical.id", res.Payload.PhysicalResourceID),
	)
	logger.Info().
		Str("status", status).
		Str("physical_id", res.Payload.PhysicalResourceID).
		Dur("duration", time.Since(start)).
		Msg("request handled")
	return res
}

func (r *Reconciler) reconcile(ctx context.Context, raw RawEvent, lc *Lifecycle) (req *ChangeRequest, outcome *Outcome, err error) {
	defer func() {
		if p := recover(); p != nil {
			zerolog.Ctx(ctx).Error().
				Str("stack", string(debug.Stack())).
				Interface("panic", p).
				Msg("recovered from panic")
			req, outcome = nil, nil
			err = NewInternalError(fmt.Sprintf("internal error: %v", p), nil)
		}
	}()

	req, err = r.classify(ctx, raw)
	if err != nil {
		return nil, nil, err
	}

	exec, err := r.executor(req.Kind)
	if err != nil {
		return req, nil, err
	}

	if r.opts.Policy != nil {
		ctx, span := r.tracer.Start(ctx, "admit")
		err = r.opts.Policy.Admit(ctx, req)
		span.End()
		if err != nil {
			return req, nil, err
		}
	}

	ctx, span := r.tracer.Start(ctx, "execute",
		trace.WithAttributes(
			attribute.String("resource.kind", string(req.Kind)),
			attribute.String("resource.identity", req.Identity.Name),
		))
	defer span.End()

	outcome, err = exec.Execute(ctx, req, lc)
	if err != nil {
		return req, nil, err
	}
	span.SetAttributes(attribute.String("operation", string(outcome.Operation)))
	return req, outcome, nil
}

// Classify validates raw without executing it.
func (r *Reconciler) Classify(ctx context.Context, raw RawEvent) (*ChangeRequest, error) {
	return r.classify(ctx, raw)
}

func (r *Reconciler) classify(ctx context.Context, raw RawEvent) (*ChangeRequest, error) {
	ctx, span := r.tracer.Start(ctx, "classify")
	defer span.End()

	req, err := r.opts.Classifier.Classify(ctx, raw)
	if err != nil {
		return nil, err
	}
	zerolog.Ctx(ctx).Info().
		Str("kind", string(req.Kind)).
		Str("identity", req.Identity.Name).
		Msg("request classified")
	return req, nil
}

// Plan classifies and admits raw and returns what Execute would do. Nothing
// is executed and nothing is reported.
func (r *Reconciler) Plan(ctx context.Context, raw RawEvent) (*ChangeRequest, *Outcome, error) {
	req, err := r.classify(ctx, raw)
	if err != nil {
		return nil, nil, err
	}
	exec, err := r.executor(req.Kind)
	if err != nil {
		return req, nil, err
	}
	if r.opts.Policy != nil {
		if err := r.opts.Policy.Admit(ctx, req); err != nil {
			return req, nil, err
		}
	}
	out, err := exec.Plan(ctx, req)
	return req, out, err
}

func (r *Reconciler) executor(kind ResourceKind) (Executor, error) {
	exec, ok := r.opts.Executors[kind]
	if !ok || exec == nil {
		return nil, NewInternalError(fmt.Sprintf("no executor configured for %s resources", kind), nil)
	}
	return exec, nil
}

func (r *Reconciler) report(ctx context.Context, url string, payload *ResponsePayload, logger zerolog.Logger) error {
	if r.opts.Reporter == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.opts.ReportTimeout)
	defer cancel()
	ctx, span := r.tracer.Start(ctx, "report")
	defer span.End()

	if err := r.opts.Reporter.Report(ctx, url, payload); err != nil {
		r.opts.Recorder.RecordError(KindTransport)
		span.RecordError(err)
		logger.Error().Err(err).Msg("unable to send response")
		return err
	}
	return nil
}
