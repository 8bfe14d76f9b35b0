package policy

import (
	"time"

	"github.com/openfroyo/clusterforge/pkg/engine"
)

// Severity represents the severity level of a policy violation.
type Severity string

const (
	// SeverityInfo is for informational messages.
	SeverityInfo Severity = "info"

	// SeverityWarning is for warnings that should be reviewed.
	SeverityWarning Severity = "warning"

	// SeverityError is for errors that should block operations.
	SeverityError Severity = "error"

	// SeverityCritical is for critical violations that must be addressed immediately.
	SeverityCritical Severity = "critical"
)

// Blocks reports whether a violation of this severity denies the request.
func (s Severity) Blocks() bool {
	return s == SeverityError || s == SeverityCritical
}

// Policy represents a policy rule with its Rego code.
type Policy struct {
	// Name is the unique name of the policy.
	Name string `json:"name" yaml:"name"`

	// Description provides a human-readable description.
	Description string `json:"description" yaml:"description"`

	// Rego contains the Rego policy code.
	Rego string `json:"rego" yaml:"rego"`

	// Severity is the default severity for violations.
	Severity Severity `json:"severity" yaml:"severity"`

	// Enabled indicates if the policy is active.
	Enabled bool `json:"enabled" yaml:"enabled"`

	// Tags are labels for organizing policies.
	Tags []string `json:"tags,omitempty" yaml:"tags,omitempty"`

	// Metadata contains additional policy metadata.
	Metadata map[string]interface{} `json:"metadata,omitempty" yaml:"metadata,omitempty"`
}

// Violation represents a single policy violation.
type Violation struct {
	// Policy is the name of the policy that was violated.
	Policy string `json:"policy"`

	// Resource is the identity of the resource that violated the policy.
	Resource string `json:"resource,omitempty"`

	// Message is a human-readable violation message.
	Message string `json:"message"`

	// Severity is the violation severity level.
	Severity Severity `json:"severity"`
}

// Result represents the result of policy evaluation.
type Result struct {
	// Allowed indicates if the request may proceed.
	Allowed bool `json:"allowed"`

	// Violations lists blocking policy violations.
	Violations []Violation `json:"violations,omitempty"`

	// Warnings lists violations that don't block the request.
	Warnings []Violation `json:"warnings,omitempty"`

	// EvaluatedPolicies lists the names of policies that were evaluated.
	EvaluatedPolicies []string `json:"evaluated_policies"`

	// Duration is how long the evaluation took.
	Duration time.Duration `json:"duration"`
}

// Input is the document policies are evaluated against.
type Input struct {
	Request  RequestInfo            `json:"request"`
	Desired  map[string]interface{} `json:"desired"`
	Previous map[string]interface{} `json:"previous,omitempty"`
	Cluster  *engine.ClusterConfig  `json:"cluster,omitempty"`
	Chart    *engine.ChartConfig    `json:"chart,omitempty"`
}

// RequestInfo describes the change request being admitted.
type RequestInfo struct {
	Type         string `json:"type"`
	Kind         string `json:"kind"`
	RequestID    string `json:"request_id"`
	StackID      string `json:"stack_id"`
	LogicalID    string `json:"logical_id"`
	ResourceType string `json:"resource_type,omitempty"`
	PhysicalID   string `json:"physical_id,omitempty"`
	Identity     string `json:"identity"`
}

// NewInput builds the policy input for a classified request.
func NewInput(req *engine.ChangeRequest) *Input {
	return &Input{
		Request: RequestInfo{
			Type:         string(req.Type),
			Kind:         string(req.Kind),
			RequestID:    req.RequestID,
			StackID:      req.StackID,
			LogicalID:    req.LogicalID,
			ResourceType: req.ResourceType,
			PhysicalID:   req.PhysicalID,
			Identity:     req.Identity.Name,
		},
		Desired:  req.Desired,
		Previous: req.Previous,
		Cluster:  req.Cluster,
		Chart:    req.Chart,
	}
}

// Bundle represents a collection of related policies.
type Bundle struct {
	// Name is the unique name of the bundle.
	Name string `json:"name" yaml:"name"`

	// Version is the bundle version.
	Version string `json:"version" yaml:"version"`

	// Description provides a human-readable description.
	Description string `json:"description" yaml:"description"`

	// Policies are the policies in this bundle.
	Policies []Policy `json:"policies" yaml:"policies"`
}
