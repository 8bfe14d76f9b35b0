package engine

import (
	"fmt"
	"time"
)

// RawEvent is the inbound change request envelope as delivered by the orchestrator.
type RawEvent struct {
	// RequestType is one of Create, Update or Delete.
	RequestType string `json:"RequestType" validate:"required"`

	// ResponseURL is the pre-signed URL the response is PUT to.
	ResponseURL string `json:"ResponseURL" validate:"required,url"`

	// StackID identifies the orchestrating stack.
	StackID string `json:"StackId" validate:"required"`

	// RequestID identifies this request; replays carry the same value.
	RequestID string `json:"RequestId" validate:"required"`

	// ResourceType is the custom resource type name, e.g. Custom::AWSCDK-EKS-Cluster.
	ResourceType string `json:"ResourceType,omitempty"`

	// LogicalResourceID is the template-level name of the resource.
	LogicalResourceID string `json:"LogicalResourceId" validate:"required"`

	// PhysicalResourceID is absent on the first Create.
	PhysicalResourceID string `json:"PhysicalResourceId,omitempty"`

	// ResourceProperties is the desired configuration.
	ResourceProperties map[string]interface{} `json:"ResourceProperties" validate:"required"`

	// OldResourceProperties is the previous configuration, Update only.
	OldResourceProperties map[string]interface{} `json:"OldResourceProperties,omitempty"`
}

// ResourceIdentity is the addressable name of the external resource.
type ResourceIdentity struct {
	Name string `json:"name"`
}

// String returns the identity name.
func (i ResourceIdentity) String() string {
	return i.Name
}

// IsZero reports whether no identity has been resolved.
func (i ResourceIdentity) IsZero() bool {
	return i.Name == ""
}

// ClusterConfig is the typed view of a cluster's desired configuration.
type ClusterConfig struct {
	// Name is the explicit cluster name, empty when the name is derived.
	Name string `json:"name,omitempty"`

	// RoleArn is the cluster service role. Changing it requires replacement.
	RoleArn string `json:"roleArn,omitempty"`

	// Version is the Kubernetes version, empty when unpinned.
	Version string `json:"version,omitempty"`

	// ResourcesVpcConfig is the network placement. Changing it requires replacement.
	ResourcesVpcConfig map[string]interface{} `json:"resourcesVpcConfig,omitempty"`

	// Logging is the control plane logging setup; it can be updated in place.
	Logging map[string]interface{} `json:"logging,omitempty"`

	// Raw is the complete normalized configuration including passthrough keys.
	Raw map[string]interface{} `json:"-"`
}

// WithName returns a copy of the configuration addressed by name.
func (c *ClusterConfig) WithName(name string) *ClusterConfig {
	cp := *c
	cp.Name = name
	cp.Raw = make(map[string]interface{}, len(c.Raw)+1)
	for k, v := range c.Raw {
		cp.Raw[k] = v
	}
	cp.Raw["name"] = name
	return &cp
}

// ChartConfig is the typed view of a chart release's desired configuration.
type ChartConfig struct {
	ClusterName     string `json:"ClusterName,omitempty"`
	RoleArn         string `json:"RoleArn,omitempty"`
	Release         string `json:"Release"`
	Chart           string `json:"Chart"`
	Version         string `json:"Version,omitempty"`
	Namespace       string `json:"Namespace,omitempty"`
	Repository      string `json:"Repository,omitempty"`
	Values          string `json:"Values,omitempty"`
	Wait            bool   `json:"Wait,omitempty"`
	Timeout         string `json:"Timeout,omitempty"`
	CreateNamespace bool   `json:"CreateNamespace,omitempty"`
}

// EffectiveNamespace returns the namespace helm installs into.
func (c *ChartConfig) EffectiveNamespace() string {
	if c.Namespace == "" {
		return DefaultNamespace
	}
	return c.Namespace
}

// Identity returns the physical identity of the release.
func (c *ChartConfig) Identity() ResourceIdentity {
	return ResourceIdentity{Name: fmt.Sprintf("%s/%s/%s", c.ClusterName, c.EffectiveNamespace(), c.Release)}
}

// DefaultNamespace is used when a chart does not name one.
const DefaultNamespace = "default"

// ChangeRequest is a classified, validated inbound request. It is not
// modified after classification.
type ChangeRequest struct {
	Type         RequestType
	Kind         ResourceKind
	StackID      string
	RequestID    string
	LogicalID    string
	ResourceType string
	ResponseURL  string

	// PhysicalID is the existing physical id, empty on a first Create.
	PhysicalID string

	// Identity is the resolved current identity of the resource.
	Identity ResourceIdentity

	// Desired and Previous are the normalized configuration mappings.
	Desired  map[string]interface{}
	Previous map[string]interface{}

	Cluster    *ClusterConfig
	OldCluster *ClusterConfig
	Chart      *ChartConfig
	OldChart   *ChartConfig
}

// HasPhysicalID reports whether the orchestrator supplied a physical id.
func (r *ChangeRequest) HasPhysicalID() bool {
	return r.PhysicalID != ""
}

// ReplacementDecision records whether an update must be applied by replacement.
type ReplacementDecision struct {
	Required bool   `json:"required"`
	Field    string `json:"field,omitempty"`
	Reason   string `json:"reason,omitempty"`
}

// WaitSpec bounds a convergence wait. The product of the two fields is the
// effective timeout.
type WaitSpec struct {
	PollInterval time.Duration `json:"poll_interval" mapstructure:"poll_interval"`
	MaxAttempts  int           `json:"max_attempts" mapstructure:"max_attempts" validate:"min=1"`
}

// Timeout returns the effective ceiling of the wait.
func (w WaitSpec) Timeout() time.Duration {
	return w.PollInterval * time.Duration(w.MaxAttempts)
}

// Validate checks that the wait spec is usable.
func (w WaitSpec) Validate() error {
	if w.MaxAttempts < 1 {
		return fmt.Errorf("max attempts must be positive, got %d", w.MaxAttempts)
	}
	if w.PollInterval < 0 {
		return fmt.Errorf("poll interval must not be negative, got %s", w.PollInterval)
	}
	return nil
}

// Default wait specs, tuned to the settle times of the cluster API.
var (
	DefaultActiveWait = WaitSpec{PollInterval: 30 * time.Second, MaxAttempts: 26}
	DefaultDeleteWait = WaitSpec{PollInterval: 30 * time.Second, MaxAttempts: 40}
	DefaultChartWait  = WaitSpec{PollInterval: 5 * time.Second, MaxAttempts: 60}
)

// CommandOutcome is the result of running an external deployment command.
type CommandOutcome struct {
	Succeeded bool   `json:"succeeded"`
	Output    []byte `json:"output"`
	Attempt   int    `json:"attempt"`
}

// Observation is one poll of an external resource.
type Observation struct {
	Status     ResourceStatus         `json:"status"`
	Attributes map[string]interface{} `json:"attributes,omitempty"`
}

// Outcome is what an executor produced for one change request.
type Outcome struct {
	PhysicalID string                 `json:"physical_id,omitempty"`
	Operation  OperationType          `json:"operation"`
	Decision   *ReplacementDecision   `json:"decision,omitempty"`
	Data       map[string]interface{} `json:"data,omitempty"`
}

// ResponsePayload is the callback body sent to the orchestrator.
type ResponsePayload struct {
	Status             ResponseStatus         `json:"Status"`
	Reason             string                 `json:"Reason"`
	PhysicalResourceID string                 `json:"PhysicalResourceId"`
	StackID            string                 `json:"StackId"`
	RequestID          string                 `json:"RequestId"`
	LogicalResourceID  string                 `json:"LogicalResourceId"`
	NoEcho             bool                   `json:"NoEcho"`
	Data               map[string]interface{} `json:"Data"`
}
