package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
)

// chartMutableFields can change on a live release through an upgrade.
var chartMutableFields = []string{"Chart", "Version", "Repository", "Values", "Wait", "Timeout", "CreateNamespace"}

// ChartExecutorOptions configures a ChartExecutor.
type ChartExecutorOptions struct {
	Tool      DeploymentTool
	ChartWait WaitSpec
	Recorder  Recorder
	Logger    zerolog.Logger
}

// ChartExecutor reconciles chart releases through a DeploymentTool.
type ChartExecutor struct {
	opts   ChartExecutorOptions
	waiter *Waiter
	logger zerolog.Logger
}

// NewChartExecutor creates a new chart executor.
func NewChartExecutor(opts ChartExecutorOptions) *ChartExecutor {
	if opts.ChartWait.MaxAttempts == 0 {
		opts.ChartWait = DefaultChartWait
	}
	if opts.Recorder == nil {
		opts.Recorder = NopRecorder{}
	}
	return &ChartExecutor{
		opts:   opts,
		waiter: NewWaiter(string(ResourceKindChart), opts.Recorder, opts.Logger),
		logger: opts.Logger.With().Str("component", "chart-executor").Logger(),
	}
}

type chartPlan struct {
	op       OperationType
	decision *ReplacementDecision
	changed  []string
}

// Plan reports what Execute would do without invoking the deployment tool.
func (e *ChartExecutor) Plan(ctx context.Context, req *ChangeRequest) (*Outcome, error) {
	p, err := e.plan(req)
	if err != nil {
		return nil, err
	}
	out := &Outcome{PhysicalID: e.physicalID(req, p), Operation: p.op, Decision: p.decision}
	if len(p.changed) > 0 {
		out.Data = map[string]interface{}{"Changed": p.changed}
	}
	return out, nil
}

func (e *ChartExecutor) plan(req *ChangeRequest) (*chartPlan, error) {
	if req.Chart == nil {
		return nil, NewValidationError("invalid request. Missing 'Release'", nil)
	}

	switch req.Type {
	case RequestDelete:
		return &chartPlan{op: OperationDelete}, nil
	case RequestCreate:
		return &chartPlan{op: OperationCreate}, nil
	case RequestUpdate:
		// Identities are compared rather than physical ids so releases
		// created under an older physical id scheme are not reinstalled.
		oldID := req.PhysicalID
		if req.OldChart != nil {
			oldID = req.OldChart.Identity().Name
		}
		decision := ChartEvaluator.Evaluate(nil, nil, oldID, req.Identity.Name)
		if decision.Required {
			return &chartPlan{op: OperationReplace, decision: &decision}, nil
		}
		if req.OldChart == nil {
			return &chartPlan{op: OperationUpdate, decision: &decision, changed: chartMutableFields}, nil
		}

		if req.OldChart.Version != "" && req.Chart.Version == "" {
			return nil, NewPolicyViolation(fmt.Sprintf(
				"Version cannot be changed from a specific value (%s) to undefined", req.OldChart.Version))
		}
		changed := mutableDiff(chartFields(req.OldChart), chartFields(req.Chart), chartMutableFields)
		if len(changed) == 0 {
			return &chartPlan{op: OperationNoop, decision: &decision}, nil
		}
		return &chartPlan{op: OperationUpdate, decision: &decision, changed: changed}, nil
	default:
		return nil, NewUnsupportedOperation(string(req.Type))
	}
}

// physicalID keeps the existing physical id unless the release is new or replaced.
func (e *ChartExecutor) physicalID(req *ChangeRequest, p *chartPlan) string {
	switch {
	case p.op == OperationCreate, p.op == OperationReplace:
		return req.Identity.Name
	case req.PhysicalID != "":
		return req.PhysicalID
	default:
		return req.Identity.Name
	}
}

// Execute drives req to completion.
func (e *ChartExecutor) Execute(ctx context.Context, req *ChangeRequest, lc *Lifecycle) (*Outcome, error) {
	if err := req.Type.Validate(); err != nil {
		return nil, err
	}
	if req.Type == RequestUpdate {
		if err := lc.Transition(StateDeciding); err != nil {
			return nil, err
		}
	}

	p, err := e.plan(req)
	if err != nil {
		return nil, err
	}

	logger := e.logger.With().
		Str("request_id", req.RequestID).
		Str("release", req.Chart.Release).
		Str("namespace", req.Chart.EffectiveNamespace()).
		Str("cluster", req.Chart.ClusterName).
		Str("operation", string(p.op)).
		Logger()

	if p.op == OperationDelete {
		return e.uninstall(ctx, req, lc, logger)
	}

	switch p.op {
	case OperationCreate, OperationReplace:
		if err := lc.Transition(StateCreating); err != nil {
			return nil, err
		}
		if p.op == OperationReplace {
			logger.Info().Str("old_release", req.PhysicalID).Str("reason", p.decision.Reason).Msg("replacing release")
		}
		if err := e.upgrade(ctx, req, logger); err != nil {
			return nil, err
		}
	case OperationUpdate:
		logger.Info().Strs("changed", p.changed).Msg("upgrading release")
		if err := e.upgrade(ctx, req, logger); err != nil {
			return nil, err
		}
	default:
		logger.Info().Msg("no release change")
	}

	if err := lc.Transition(StateConverging); err != nil {
		return nil, err
	}
	data, err := e.converge(ctx, req, logger)
	if err != nil {
		return nil, err
	}

	e.opts.Recorder.RecordOperation(string(ResourceKindChart), p.op)
	return &Outcome{PhysicalID: e.physicalID(req, p), Operation: p.op, Decision: p.decision, Data: data}, nil
}

func (e *ChartExecutor) upgrade(ctx context.Context, req *ChangeRequest, logger zerolog.Logger) error {
	out, err := e.opts.Tool.UpgradeOrInstall(ctx, req.Chart)
	if err != nil {
		return err
	}
	logger.Info().Int("attempt", out.Attempt).Bytes("output", out.Output).Msg("release applied")
	return nil
}

// uninstall removes the release. Uninstall failures are logged and the
// delete is reported as successful; the release may be gone with its cluster.
func (e *ChartExecutor) uninstall(ctx context.Context, req *ChangeRequest, lc *Lifecycle, logger zerolog.Logger) (*Outcome, error) {
	if err := lc.Transition(StateDeleting); err != nil {
		return nil, err
	}

	physicalID := req.PhysicalID
	if physicalID == "" {
		physicalID = req.Identity.Name
	}
	outcome := &Outcome{PhysicalID: physicalID, Operation: OperationDelete, Data: map[string]interface{}{}}

	logger.Info().Msg("uninstalling release")
	out, err := e.opts.Tool.Uninstall(ctx, req.Chart)
	switch {
	case err == nil:
		e.opts.Recorder.RecordOperation(string(ResourceKindChart), OperationDelete)
	case isReleaseNotFound(err, out):
		logger.Info().Msg("release already uninstalled")
		e.opts.Recorder.RecordOperation(string(ResourceKindChart), OperationNoop)
	default:
		logger.Warn().Err(err).Msg("delete error")
	}
	return outcome, lc.Transition(StateReporting)
}

func (e *ChartExecutor) converge(ctx context.Context, req *ChangeRequest, logger zerolog.Logger) (map[string]interface{}, error) {
	probe := ProbeFunc(func(ctx context.Context, _ ResourceIdentity) (*Observation, error) {
		return e.opts.Tool.Status(ctx, req.Chart)
	})
	obs, err := e.waiter.Wait(ctx, probe, req.Identity, ResourceStatusActive, e.opts.ChartWait)
	if err != nil {
		return nil, err
	}

	data := map[string]interface{}{
		"Release":   req.Chart.Release,
		"Namespace": req.Chart.EffectiveNamespace(),
	}
	for _, key := range []string{"Revision", "Status"} {
		if v, ok := obs.Attributes[key]; ok {
			data[key] = v
		}
	}
	logger.Info().Interface("attributes", data).Msg("release deployed")
	return data, nil
}

func chartFields(c *ChartConfig) map[string]interface{} {
	return map[string]interface{}{
		"Chart":           c.Chart,
		"Version":         c.Version,
		"Repository":      c.Repository,
		"Values":          canonicalValues(c.Values),
		"Wait":            c.Wait,
		"Timeout":         c.Timeout,
		"CreateNamespace": c.CreateNamespace,
	}
}

// canonicalValues parses the values document so formatting differences do
// not count as a change.
func canonicalValues(text string) interface{} {
	if text == "" {
		return nil
	}
	var v interface{}
	if err := json.Unmarshal([]byte(text), &v); err != nil {
		return text
	}
	return v
}

func isReleaseNotFound(err error, out *CommandOutcome) bool {
	if errors.Is(err, ErrNotFound) {
		return true
	}
	if out != nil && bytes.Contains(out.Output, []byte("release: not found")) {
		return true
	}
	var ee *EngineError
	return errors.As(err, &ee) && bytes.Contains(ee.Output, []byte("release: not found"))
}
