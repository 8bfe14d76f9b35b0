package engine

import (
	"context"
	"time"
)

// ResourceManager is the cluster-lifecycle API. Implementations return
// ErrNotFound-kind errors for missing resources and ErrAlreadyExists-kind
// errors for colliding creates; transient failures carry ErrorClassTransient.
type ResourceManager interface {
	// CreateResource starts creating a cluster and returns its identity.
	CreateResource(ctx context.Context, cfg *ClusterConfig) (ResourceIdentity, error)

	// UpdateResource starts an in-place update of a single field.
	UpdateResource(ctx context.Context, name, field string, value interface{}) error

	// DeleteResource starts deleting a cluster.
	DeleteResource(ctx context.Context, name string) error

	// DescribeResource returns the current status and attributes of a cluster.
	DescribeResource(ctx context.Context, name string) (*Observation, error)
}

// DeploymentTool is the package-deployment tool. Both mutating calls are idempotent.
type DeploymentTool interface {
	// UpgradeOrInstall installs the release or upgrades it in place.
	UpgradeOrInstall(ctx context.Context, chart *ChartConfig) (*CommandOutcome, error)

	// Uninstall removes the release.
	Uninstall(ctx context.Context, chart *ChartConfig) (*CommandOutcome, error)

	// Status reports the release status; a missing release is ResourceStatusAbsent.
	Status(ctx context.Context, chart *ChartConfig) (*Observation, error)
}

// StatusProbe performs one status query for the convergence waiter.
type StatusProbe interface {
	Probe(ctx context.Context, id ResourceIdentity) (*Observation, error)
}

// ProbeFunc adapts a function to the StatusProbe interface.
type ProbeFunc func(ctx context.Context, id ResourceIdentity) (*Observation, error)

// Probe calls f.
func (f ProbeFunc) Probe(ctx context.Context, id ResourceIdentity) (*Observation, error) {
	return f(ctx, id)
}

// Executor reconciles one kind of resource.
type Executor interface {
	// Execute drives the change to completion, recording transitions on lc.
	Execute(ctx context.Context, req *ChangeRequest, lc *Lifecycle) (*Outcome, error)

	// Plan decides what Execute would do without touching the external system.
	Plan(ctx context.Context, req *ChangeRequest) (*Outcome, error)
}

// Reporter delivers the response payload to the orchestrator.
type Reporter interface {
	Report(ctx context.Context, responseURL string, payload *ResponsePayload) error
}

// AdmissionPolicy vets a classified request before any external call.
type AdmissionPolicy interface {
	Admit(ctx context.Context, req *ChangeRequest) error
}

// PropertySchema validates raw resource properties against a named schema.
type PropertySchema interface {
	ValidateAgainstSchema(ctx context.Context, schemaName string, data interface{}) error
}

// Recorder receives reconciliation metrics.
type Recorder interface {
	RecordReconcile(kind, requestType, status string, duration time.Duration)
	RecordOperation(kind string, op OperationType)
	RecordPoll(kind string, status ResourceStatus)
	RecordCommandAttempt(tool, outcome string)
	RecordError(kind ErrorKind)
}

// NopRecorder discards all metrics.
type NopRecorder struct{}

func (NopRecorder) RecordReconcile(string, string, string, time.Duration) {}
func (NopRecorder) RecordOperation(string, OperationType)                 {}
func (NopRecorder) RecordPoll(string, ResourceStatus)                     {}
func (NopRecorder) RecordCommandAttempt(string, string)                   {}
func (NopRecorder) RecordError(ErrorKind)                                 {}
