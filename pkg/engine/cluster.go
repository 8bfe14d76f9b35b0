package engine

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sort"

	"github.com/rs/zerolog"
)

// ClusterExecutorOptions configures a ClusterExecutor.
type ClusterExecutorOptions struct {
	Manager    ResourceManager
	ActiveWait WaitSpec
	DeleteWait WaitSpec
	Recorder   Recorder
	Logger     zerolog.Logger

	// CompensateFailedReplacement deletes a replacement cluster that entered
	// FAILED, since the orchestrator is never told its name.
	CompensateFailedReplacement bool
}

// ClusterExecutor reconciles clusters through a ResourceManager.
type ClusterExecutor struct {
	opts   ClusterExecutorOptions
	waiter *Waiter
	logger zerolog.Logger
}

// NewClusterExecutor creates a new cluster executor.
func NewClusterExecutor(opts ClusterExecutorOptions) *ClusterExecutor {
	if opts.ActiveWait.MaxAttempts == 0 {
		opts.ActiveWait = DefaultActiveWait
	}
	if opts.DeleteWait.MaxAttempts == 0 {
		opts.DeleteWait = DefaultDeleteWait
	}
	if opts.Recorder == nil {
		opts.Recorder = NopRecorder{}
	}
	return &ClusterExecutor{
		opts:   opts,
		waiter: NewWaiter(string(ResourceKindCluster), opts.Recorder, opts.Logger),
		logger: opts.Logger.With().Str("component", "cluster-executor").Logger(),
	}
}

// clusterPlan is the decision for one request, computed without side effects.
type clusterPlan struct {
	op       OperationType
	name     string
	decision *ReplacementDecision

	// minted is true when name was derived from the request id, so an
	// AlreadyExists on create means this request is being replayed.
	minted bool

	versionCandidate bool
	versionChanged   bool
	loggingChanged   bool
}

// Plan reports what Execute would do without calling the resource manager.
func (e *ClusterExecutor) Plan(ctx context.Context, req *ChangeRequest) (*Outcome, error) {
	p, err := e.plan(req)
	if err != nil {
		return nil, err
	}
	op := p.op
	if op == OperationUpdate && !p.loggingChanged && !p.versionChanged {
		op = OperationNoop
	}
	return &Outcome{PhysicalID: p.name, Operation: op, Decision: p.decision}, nil
}

func (e *ClusterExecutor) plan(req *ChangeRequest) (*clusterPlan, error) {
	if req.Cluster == nil {
		return nil, NewValidationError("invalid request. Missing 'Config'", nil)
	}

	switch req.Type {
	case RequestDelete:
		return &clusterPlan{op: OperationDelete, name: req.Identity.Name}, nil

	case RequestCreate:
		name := req.Identity.Name
		minted := name == SynthesizeName(req.RequestID) || name == req.PhysicalID
		return &clusterPlan{op: OperationCreate, name: name, minted: minted}, nil

	case RequestUpdate:
		old := req.OldCluster
		if old == nil {
			old = &ClusterConfig{Raw: map[string]interface{}{}}
		}
		decision := ClusterEvaluator.Evaluate(old.Raw, req.Cluster.Raw, req.PhysicalID, req.Identity.Name)
		if decision.Required {
			name := req.Identity.Name
			minted := false
			if name == req.PhysicalID {
				name = MintReplacementName(name, req.RequestID)
				minted = true
			}
			return &clusterPlan{op: OperationReplace, name: name, decision: &decision, minted: minted}, nil
		}

		if old.Version != "" && req.Cluster.Version == "" {
			return nil, NewPolicyViolation(fmt.Sprintf(
				"Version cannot be changed from a specific value (%s) to undefined", old.Version))
		}
		if old.Logging != nil && req.Cluster.Logging == nil {
			return nil, NewPolicyViolation("Logging cannot be changed from a specific configuration to undefined")
		}
		return &clusterPlan{
			op:               OperationUpdate,
			name:             req.Identity.Name,
			decision:         &decision,
			versionCandidate: old.Version != "" || req.Cluster.Version != "",
			versionChanged:   old.Version != req.Cluster.Version,
			loggingChanged:   !reflect.DeepEqual(normalizeValue(old.Logging), normalizeValue(req.Cluster.Logging)),
		}, nil

	default:
		return nil, NewUnsupportedOperation(string(req.Type))
	}
}

// Execute drives req to completion.
func (e *ClusterExecutor) Execute(ctx context.Context, req *ChangeRequest, lc *Lifecycle) (*Outcome, error) {
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
		Str("cluster", p.name).
		Str("operation", string(p.op)).
		Logger()

	switch p.op {
	case OperationDelete:
		return e.delete(ctx, req, p, lc, logger)
	case OperationCreate, OperationReplace:
		return e.create(ctx, req, p, lc, logger)
	default:
		return e.updateInPlace(ctx, req, p, lc, logger)
	}
}

func (e *ClusterExecutor) delete(ctx context.Context, req *ChangeRequest, p *clusterPlan, lc *Lifecycle, logger zerolog.Logger) (*Outcome, error) {
	if err := lc.Transition(StateDeleting); err != nil {
		return nil, err
	}

	physicalID := req.PhysicalID
	if physicalID == "" {
		physicalID = p.name
	}
	outcome := &Outcome{PhysicalID: physicalID, Operation: OperationDelete, Data: map[string]interface{}{}}

	logger.Info().Msg("deleting cluster")
	if err := e.opts.Manager.DeleteResource(ctx, p.name); err != nil {
		if errors.Is(err, ErrNotFound) {
			logger.Info().Msg("cluster already deleted")
			e.opts.Recorder.RecordOperation(string(ResourceKindCluster), OperationNoop)
			return outcome, lc.Transition(StateReporting)
		}
		return nil, fmt.Errorf("failed to delete cluster %s: %w", p.name, err)
	}

	if err := lc.Transition(StateConverging); err != nil {
		return nil, err
	}
	logger.Info().Msg("waiting for cluster to be deleted")
	if _, err := e.waiter.Wait(ctx, e.probe(), ResourceIdentity{Name: p.name}, ResourceStatusAbsent, e.opts.DeleteWait); err != nil {
		return nil, err
	}

	e.opts.Recorder.RecordOperation(string(ResourceKindCluster), OperationDelete)
	return outcome, nil
}

func (e *ClusterExecutor) create(ctx context.Context, req *ChangeRequest, p *clusterPlan, lc *Lifecycle, logger zerolog.Logger) (*Outcome, error) {
	if err := lc.Transition(StateCreating); err != nil {
		return nil, err
	}

	if p.op == OperationReplace {
		logger.Info().
			Str("old_cluster", req.PhysicalID).
			Str("reason", p.decision.Reason).
			Msg("replacing cluster")
	} else {
		logger.Info().Msg("creating cluster")
	}

	desired := req.Cluster.WithName(p.name)
	id, err := e.opts.Manager.CreateResource(ctx, desired)
	switch {
	case err != nil && errors.Is(err, ErrAlreadyExists) && p.minted:
		logger.Info().Msg("cluster already exists, resuming convergence of a replayed request")
		id = ResourceIdentity{Name: p.name}
	case err != nil && errors.Is(err, ErrAlreadyExists):
		if adoptErr := e.adopt(ctx, desired, err); adoptErr != nil {
			return nil, adoptErr
		}
		logger.Info().Msg("cluster already exists with the requested role and network, adopting it")
		id = ResourceIdentity{Name: p.name}
	case err != nil:
		return nil, fmt.Errorf("failed to create cluster %s: %w", p.name, err)
	}
	if id.IsZero() {
		id = ResourceIdentity{Name: p.name}
	}

	if err := lc.Transition(StateConverging); err != nil {
		return nil, err
	}
	data, err := e.converge(ctx, id, logger)
	if err != nil {
		if p.op == OperationReplace {
			e.compensate(ctx, id, err, logger)
		}
		return nil, err
	}

	e.opts.Recorder.RecordOperation(string(ResourceKindCluster), p.op)
	return &Outcome{PhysicalID: id.Name, Operation: p.op, Decision: p.decision, Data: data}, nil
}

func (e *ClusterExecutor) updateInPlace(ctx context.Context, req *ChangeRequest, p *clusterPlan, lc *Lifecycle, logger zerolog.Logger) (*Outcome, error) {
	id := ResourceIdentity{Name: p.name}
	op := OperationNoop

	if p.versionCandidate {
		obs, err := e.opts.Manager.DescribeResource(ctx, p.name)
		if err != nil {
			return nil, fmt.Errorf("failed to describe cluster %s: %w", p.name, err)
		}
		actual, _ := obs.Attributes["Version"].(string)
		if desired := req.Cluster.Version; desired != actual {
			logger.Info().
				Str("from", actual).
				Str("to", desired).
				Msg("updating cluster version")
			if err := e.updateField(ctx, id, "version", desired); err != nil {
				return nil, err
			}
			op = OperationUpdate
		} else {
			logger.Info().Str("version", actual).Msg("no version change")
		}
	}

	if p.loggingChanged {
		logger.Info().Msg("updating cluster logging")
		if err := e.updateField(ctx, id, "logging", req.Cluster.Logging); err != nil {
			return nil, err
		}
		op = OperationUpdate
	}

	if err := lc.Transition(StateConverging); err != nil {
		return nil, err
	}
	data, err := e.converge(ctx, id, logger)
	if err != nil {
		return nil, err
	}

	e.opts.Recorder.RecordOperation(string(ResourceKindCluster), op)
	return &Outcome{PhysicalID: p.name, Operation: op, Decision: p.decision, Data: data}, nil
}

// adopt accepts an existing cluster named by the request when its role and
// network placement match cfg. Those settings cannot change in place, so a
// match is the cluster an earlier delivery of the same request created.
func (e *ClusterExecutor) adopt(ctx context.Context, cfg *ClusterConfig, exists error) error {
	obs, err := e.opts.Manager.DescribeResource(ctx, cfg.Name)
	if err != nil {
		return fmt.Errorf("failed to describe existing cluster %s: %w", cfg.Name, err)
	}
	if field := mismatchedField(cfg, obs); field != "" {
		return fmt.Errorf("failed to create cluster %s: existing cluster has a different %s: %w", cfg.Name, field, exists)
	}
	return nil
}

// mismatchedField names the first immutable setting on which the observed
// cluster differs from cfg, or returns "".
func mismatchedField(cfg *ClusterConfig, obs *Observation) string {
	if actual, _ := obs.Attributes["RoleArn"].(string); actual != cfg.RoleArn {
		return "roleArn"
	}
	actual, _ := obs.Attributes["ResourcesVpcConfig"].(map[string]interface{})
	for _, key := range []string{"subnetIds", "securityGroupIds"} {
		if !reflect.DeepEqual(stringSet(cfg.ResourcesVpcConfig[key]), stringSet(actual[key])) {
			return "resourcesVpcConfig." + key
		}
	}
	return ""
}

// stringSet returns the sorted strings of a list value; anything else is empty.
func stringSet(v interface{}) []string {
	out := []string{}
	switch t := v.(type) {
	case []string:
		out = append(out, t...)
	case []interface{}:
		for _, item := range t {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
	}
	sort.Strings(out)
	return out
}

// updateField issues one field update and waits for it to settle. The
// cluster API allows a single in-flight update per cluster.
func (e *ClusterExecutor) updateField(ctx context.Context, id ResourceIdentity, field string, value interface{}) error {
	if err := e.opts.Manager.UpdateResource(ctx, id.Name, field, value); err != nil {
		return fmt.Errorf("failed to update %s of cluster %s: %w", field, id, err)
	}
	_, err := e.waiter.Wait(ctx, e.probe(), id, ResourceStatusActive, e.opts.ActiveWait)
	return err
}

func (e *ClusterExecutor) converge(ctx context.Context, id ResourceIdentity, logger zerolog.Logger) (map[string]interface{}, error) {
	logger.Info().
		Dur("poll_interval", e.opts.ActiveWait.PollInterval).
		Int("max_attempts", e.opts.ActiveWait.MaxAttempts).
		Msg("waiting for cluster to become active")
	if _, err := e.waiter.Wait(ctx, e.probe(), id, ResourceStatusActive, e.opts.ActiveWait); err != nil {
		return nil, err
	}

	obs, err := e.opts.Manager.DescribeResource(ctx, id.Name)
	if err != nil {
		return nil, fmt.Errorf("failed to describe cluster %s: %w", id, err)
	}
	data := map[string]interface{}{"Name": id.Name}
	for _, key := range []string{"Name", "Endpoint", "Arn", "CertificateAuthorityData", "Version"} {
		if v, ok := obs.Attributes[key]; ok {
			data[key] = v
		}
	}
	logger.Info().Interface("attributes", data).Msg("cluster active")
	return data, nil
}

// compensate removes a replacement that reached FAILED. A replacement that
// merely timed out is left alone: a replay of the request mints the same
// name and resumes convergence.
func (e *ClusterExecutor) compensate(ctx context.Context, id ResourceIdentity, cause error, logger zerolog.Logger) {
	if !e.opts.CompensateFailedReplacement || KindOf(cause) != KindResourceFailed {
		logger.Warn().
			Err(cause).
			Str("abandoned_cluster", id.Name).
			Msg("replacement did not converge, leaving it for a replay of this request")
		return
	}
	logger.Warn().
		Err(cause).
		Str("abandoned_cluster", id.Name).
		Msg("replacement failed, deleting it")
	if err := e.opts.Manager.DeleteResource(ctx, id.Name); err != nil && !errors.Is(err, ErrNotFound) {
		logger.Error().Err(err).Str("abandoned_cluster", id.Name).Msg("failed to delete failed replacement")
	}
}

func (e *ClusterExecutor) probe() StatusProbe {
	return ProbeFunc(func(ctx context.Context, id ResourceIdentity) (*Observation, error) {
		return e.opts.Manager.DescribeResource(ctx, id.Name)
	})
}
