package policy

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/openfroyo/clusterforge/pkg/engine"
)

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	eng, err := NewEngine(zerolog.Nop())
	if err != nil {
		t.Fatalf("Failed to create engine: %v", err)
	}
	return eng
}

func clusterRequest(typ engine.RequestType, name, version string) *engine.ChangeRequest {
	cfg := &engine.ClusterConfig{Name: name, Version: version}
	return &engine.ChangeRequest{
		Type:      typ,
		Kind:      engine.ResourceKindCluster,
		RequestID: "req-1",
		LogicalID: "Cluster",
		Identity:  engine.ResourceIdentity{Name: name},
		Desired:   map[string]interface{}{"Config": map[string]interface{}{"name": name}},
		Cluster:   cfg,
	}
}

func chartRequest(typ engine.RequestType, release string) *engine.ChangeRequest {
	chart := &engine.ChartConfig{ClusterName: "prod", Release: release, Chart: "nginx"}
	return &engine.ChangeRequest{
		Type:      typ,
		Kind:      engine.ResourceKindChart,
		RequestID: "req-2",
		LogicalID: "Chart",
		Identity:  chart.Identity(),
		Desired:   map[string]interface{}{"Release": release, "Chart": "nginx"},
		Chart:     chart,
	}
}

func TestNewEngine(t *testing.T) {
	eng := newTestEngine(t)

	policies := eng.ListPolicies()
	expected := []string{"cluster-naming", "release-naming", "version-pinning"}
	if len(policies) != len(expected) {
		t.Fatalf("Expected %d built-in policies, got %d", len(expected), len(policies))
	}
	for i, name := range expected {
		if policies[i].Name != name {
			t.Errorf("Expected policy %d to be %s, got %s", i, name, policies[i].Name)
		}
	}
}

func TestEvaluate_ClusterNaming(t *testing.T) {
	eng := newTestEngine(t)

	tests := []struct {
		name        string
		req         *engine.ChangeRequest
		wantAllowed bool
	}{
		{"valid name", clusterRequest(engine.RequestCreate, "prod-east_1", "1.30"), true},
		{"synthesized name", clusterRequest(engine.RequestCreate, engine.SynthesizeName("req-1"), "1.30"), true},
		{"leading hyphen", clusterRequest(engine.RequestCreate, "-prod", "1.30"), false},
		{"dot in name", clusterRequest(engine.RequestUpdate, "prod.east", "1.30"), false},
		{"too long", clusterRequest(engine.RequestCreate, strings.Repeat("a", 101), "1.30"), false},
		{"delete is not checked", clusterRequest(engine.RequestDelete, "legacy.name", ""), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := eng.Evaluate(context.Background(), tt.req)
			if err != nil {
				t.Fatalf("Evaluation failed: %v", err)
			}
			if result.Allowed != tt.wantAllowed {
				t.Errorf("Expected allowed=%v, got %v (violations: %+v)", tt.wantAllowed, result.Allowed, result.Violations)
			}
		})
	}
}

func TestEvaluate_ReleaseNaming(t *testing.T) {
	eng := newTestEngine(t)

	tests := []struct {
		release     string
		wantAllowed bool
	}{
		{"web", true},
		{"web-frontend-2", true},
		{"Web", false},
		{"web_frontend", false},
		{"web-", false},
		{strings.Repeat("a", 54), false},
	}

	for _, tt := range tests {
		t.Run(tt.release, func(t *testing.T) {
			result, err := eng.Evaluate(context.Background(), chartRequest(engine.RequestCreate, tt.release))
			if err != nil {
				t.Fatalf("Evaluation failed: %v", err)
			}
			if result.Allowed != tt.wantAllowed {
				t.Errorf("Expected allowed=%v, got %v", tt.wantAllowed, result.Allowed)
			}
		})
	}
}

func TestEvaluate_VersionPinningWarns(t *testing.T) {
	eng := newTestEngine(t)

	result, err := eng.Evaluate(context.Background(), clusterRequest(engine.RequestCreate, "prod", ""))
	if err != nil {
		t.Fatalf("Evaluation failed: %v", err)
	}
	if !result.Allowed {
		t.Error("A warning must not block the request")
	}
	if len(result.Warnings) != 1 || result.Warnings[0].Policy != "version-pinning" {
		t.Errorf("Expected one version-pinning warning, got %+v", result.Warnings)
	}
}

func TestAdmit(t *testing.T) {
	eng := newTestEngine(t)

	if err := eng.Admit(context.Background(), clusterRequest(engine.RequestCreate, "prod", "1.30")); err != nil {
		t.Errorf("Expected admission, got %v", err)
	}

	err := eng.Admit(context.Background(), chartRequest(engine.RequestCreate, "Web"))
	if err == nil {
		t.Fatal("Expected admission to be denied")
	}
	if !errors.Is(err, engine.ErrPolicyViolation) {
		t.Errorf("Expected policy violation, got %v", err)
	}
	if !strings.Contains(err.Error(), "release name 'Web'") {
		t.Errorf("Unexpected message: %s", err.Error())
	}
}

func TestEnableDisablePolicy(t *testing.T) {
	eng := newTestEngine(t)
	req := chartRequest(engine.RequestCreate, "Web")

	if err := eng.DisablePolicy("release-naming"); err != nil {
		t.Fatalf("Failed to disable policy: %v", err)
	}
	if err := eng.Admit(context.Background(), req); err != nil {
		t.Errorf("Expected admission with policy disabled, got %v", err)
	}

	if err := eng.EnablePolicy("release-naming"); err != nil {
		t.Fatalf("Failed to enable policy: %v", err)
	}
	if err := eng.Admit(context.Background(), req); err == nil {
		t.Error("Expected denial with policy enabled")
	}

	if err := eng.DisablePolicy("missing"); err == nil {
		t.Error("Expected error for unknown policy")
	}
}

func TestLoadPolicies_Custom(t *testing.T) {
	eng := newTestEngine(t)

	dir := t.TempDir()
	rego := `# Production clusters must pin a version
package custom.prod_version

import rego.v1

deny contains violation if {
	input.request.kind == "cluster"
	startswith(input.request.identity, "prod")
	not input.cluster.version
	violation := {"message": "production clusters must pin a version", "severity": "critical"}
}
`
	if err := os.WriteFile(filepath.Join(dir, "prod-version.rego"), []byte(rego), 0o644); err != nil {
		t.Fatalf("Failed to write policy: %v", err)
	}

	if err := eng.LoadPolicies(context.Background(), []string{dir}); err != nil {
		t.Fatalf("Failed to load policies: %v", err)
	}

	result, err := eng.Evaluate(context.Background(), clusterRequest(engine.RequestCreate, "prod-1", ""))
	if err != nil {
		t.Fatalf("Evaluation failed: %v", err)
	}
	if result.Allowed {
		t.Fatal("Expected custom policy to deny")
	}
	if result.Violations[0].Severity != SeverityCritical {
		t.Errorf("Expected critical severity, got %s", result.Violations[0].Severity)
	}
	if result.Violations[0].Resource != "prod-1" {
		t.Errorf("Expected resource prod-1, got %s", result.Violations[0].Resource)
	}
}

func TestLoadPolicies_InvalidRego(t *testing.T) {
	eng := newTestEngine(t)

	path := filepath.Join(t.TempDir(), "broken.rego")
	if err := os.WriteFile(path, []byte("package broken\n\ndeny contains x if {"), 0o644); err != nil {
		t.Fatalf("Failed to write policy: %v", err)
	}

	if err := eng.LoadPolicies(context.Background(), []string{path}); err == nil {
		t.Error("Expected compile error")
	}
}
