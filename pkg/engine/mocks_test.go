package engine

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// fastWait keeps convergence tests instantaneous.
var fastWait = WaitSpec{PollInterval: 0, MaxAttempts: 5}

type fakeCluster struct {
	status  ResourceStatus
	version string
	logging interface{}
	roleArn string
	vpc     map[string]interface{}
	// pending is the number of describes that still report the transitional status.
	pending int
	// settle is the status a transitional cluster moves to.
	settle ResourceStatus
}

type fakeManager struct {
	mu       sync.Mutex
	clusters map[string]*fakeCluster
	calls    []string

	createErr    error
	deleteErr    error
	describeErrs []error

	// createSettle overrides the status new clusters settle to.
	createSettle ResourceStatus
}

func newFakeManager() *fakeManager {
	return &fakeManager{clusters: make(map[string]*fakeCluster)}
}

func (m *fakeManager) addActive(name, version string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.clusters[name] = &fakeCluster{status: ResourceStatusActive, version: version}
}

func (m *fakeManager) addActiveWith(name, roleArn string, subnets ...string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.clusters[name] = &fakeCluster{
		status:  ResourceStatusActive,
		version: "1.30",
		roleArn: roleArn,
		vpc:     map[string]interface{}{"subnetIds": subnets},
	}
}

func (m *fakeManager) record(call string) {
	m.calls = append(m.calls, call)
}

func (m *fakeManager) Calls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.calls))
	copy(out, m.calls)
	return out
}

func (m *fakeManager) CreateResource(ctx context.Context, cfg *ClusterConfig) (ResourceIdentity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("create:" + cfg.Name)
	if m.createErr != nil {
		return ResourceIdentity{}, m.createErr
	}
	if _, ok := m.clusters[cfg.Name]; ok {
		return ResourceIdentity{}, NewAlreadyExistsError(cfg.Name, nil)
	}
	settle := ResourceStatusActive
	if m.createSettle != "" {
		settle = m.createSettle
	}
	version := cfg.Version
	if version == "" {
		version = "1.31"
	}
	m.clusters[cfg.Name] = &fakeCluster{
		status:  ResourceStatusCreating,
		version: version,
		logging: cfg.Logging,
		roleArn: cfg.RoleArn,
		vpc:     cfg.ResourcesVpcConfig,
		pending: 1,
		settle:  settle,
	}
	return ResourceIdentity{Name: cfg.Name}, nil
}

func (m *fakeManager) UpdateResource(ctx context.Context, name, field string, value interface{}) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record(fmt.Sprintf("update:%s:%s=%v", name, field, value))
	c, ok := m.clusters[name]
	if !ok {
		return NewNotFoundError(name, nil)
	}
	if c.status != ResourceStatusActive {
		return NewConflictError("update in progress", nil)
	}
	switch field {
	case "version":
		c.version, _ = value.(string)
	case "logging":
		c.logging = value
	}
	c.status, c.pending, c.settle = ResourceStatusUpdating, 1, ResourceStatusActive
	return nil
}

func (m *fakeManager) DeleteResource(ctx context.Context, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("delete:" + name)
	if m.deleteErr != nil {
		return m.deleteErr
	}
	c, ok := m.clusters[name]
	if !ok {
		return NewNotFoundError(name, nil)
	}
	c.status, c.pending, c.settle = ResourceStatusDeleting, 1, ResourceStatusAbsent
	return nil
}

func (m *fakeManager) DescribeResource(ctx context.Context, name string) (*Observation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("describe:" + name)
	if len(m.describeErrs) > 0 {
		err := m.describeErrs[0]
		m.describeErrs = m.describeErrs[1:]
		return nil, err
	}
	c, ok := m.clusters[name]
	if !ok {
		return nil, NewNotFoundError(name, nil)
	}
	if c.status.IsTransitional() {
		if c.pending > 0 {
			c.pending--
		} else {
			c.status = c.settle
		}
	}
	if c.status == ResourceStatusAbsent {
		delete(m.clusters, name)
		return nil, NewNotFoundError(name, nil)
	}
	return &Observation{
		Status: c.status,
		Attributes: map[string]interface{}{
			"Name":                     name,
			"Endpoint":                 "https://" + name + ".example.com",
			"Arn":                      "arn:aws:eks:us-east-1:123456789012:cluster/" + name,
			"CertificateAuthorityData": "Y2VydA==",
			"Version":                  c.version,
			"RoleArn":                  c.roleArn,
			"ResourcesVpcConfig":       c.vpc,
		},
	}, nil
}

func (m *fakeManager) countPrefix(prefix string) int {
	n := 0
	for _, c := range m.Calls() {
		if len(c) >= len(prefix) && c[:len(prefix)] == prefix {
			n++
		}
	}
	return n
}

type fakeTool struct {
	mu         sync.Mutex
	calls      []string
	releases   map[string]string
	upgradeErr error
	uninstall  func() (*CommandOutcome, error)
	statuses   []ResourceStatus
}

func newFakeTool() *fakeTool {
	return &fakeTool{releases: make(map[string]string)}
}

func (t *fakeTool) UpgradeOrInstall(ctx context.Context, c *ChartConfig) (*CommandOutcome, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.calls = append(t.calls, "upgrade:"+c.Release)
	if t.upgradeErr != nil {
		return &CommandOutcome{Attempt: 1}, t.upgradeErr
	}
	t.releases[c.Release] = c.Version
	return &CommandOutcome{Succeeded: true, Output: []byte("Release has been upgraded"), Attempt: 1}, nil
}

func (t *fakeTool) Uninstall(ctx context.Context, c *ChartConfig) (*CommandOutcome, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.calls = append(t.calls, "uninstall:"+c.Release)
	if t.uninstall != nil {
		return t.uninstall()
	}
	delete(t.releases, c.Release)
	return &CommandOutcome{Succeeded: true, Attempt: 1}, nil
}

func (t *fakeTool) Status(ctx context.Context, c *ChartConfig) (*Observation, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.calls = append(t.calls, "status:"+c.Release)
	status := ResourceStatusActive
	if len(t.statuses) > 0 {
		status = t.statuses[0]
		t.statuses = t.statuses[1:]
	}
	if _, ok := t.releases[c.Release]; !ok {
		status = ResourceStatusAbsent
	}
	return &Observation{
		Status: status,
		Attributes: map[string]interface{}{
			"Revision": 2,
			"Status":   "deployed",
		},
	}, nil
}

func (t *fakeTool) Calls() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]string, len(t.calls))
	copy(out, t.calls)
	return out
}

type fakeReporter struct {
	mu       sync.Mutex
	payloads []*ResponsePayload
	urls     []string
	err      error
}

func (r *fakeReporter) Report(ctx context.Context, url string, payload *ResponsePayload) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.urls = append(r.urls, url)
	r.payloads = append(r.payloads, payload)
	return r.err
}

type countingRecorder struct {
	mu         sync.Mutex
	polls      int
	operations []OperationType
	errors     []ErrorKind
	reconciles int
}

func (c *countingRecorder) RecordReconcile(string, string, string, time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.reconciles++
}

func (c *countingRecorder) RecordOperation(_ string, op OperationType) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.operations = append(c.operations, op)
}

func (c *countingRecorder) RecordPoll(string, ResourceStatus) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.polls++
}

func (c *countingRecorder) RecordCommandAttempt(string, string) {}

func (c *countingRecorder) RecordError(kind ErrorKind) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.errors = append(c.errors, kind)
}

func clusterEvent(reqType, requestID, physicalID string, config, oldConfig map[string]interface{}) RawEvent {
	ev := RawEvent{
		RequestType:        reqType,
		ResponseURL:        "https://cloudformation-custom-resource-response.example.com/response",
		StackID:            "arn:aws:cloudformation:us-east-1:123456789012:stack/demo/1",
		RequestID:          requestID,
		ResourceType:       "Custom::AWSCDK-EKS-Cluster",
		LogicalResourceID:  "Cluster",
		PhysicalResourceID: physicalID,
		ResourceProperties: map[string]interface{}{"ServiceToken": "arn:aws:lambda:fn", "Config": config},
	}
	if oldConfig != nil {
		ev.OldResourceProperties = map[string]interface{}{"Config": oldConfig}
	}
	return ev
}

func chartEvent(reqType, requestID, physicalID string, props, oldProps map[string]interface{}) RawEvent {
	return RawEvent{
		RequestType:           reqType,
		ResponseURL:           "https://cloudformation-custom-resource-response.example.com/response",
		StackID:               "arn:aws:cloudformation:us-east-1:123456789012:stack/demo/1",
		RequestID:             requestID,
		ResourceType:          "Custom::AWSCDK-EKS-HelmChart",
		LogicalResourceID:     "Chart",
		PhysicalResourceID:    physicalID,
		ResourceProperties:    props,
		OldResourceProperties: oldProps,
	}
}
