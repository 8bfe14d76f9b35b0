package config

import (
	"context"
	"errors"
	"testing"

	"github.com/openfroyo/clusterforge/pkg/engine"
)

func TestSchemaRegistry_BuiltInSchemas(t *testing.T) {
	sr := NewSchemaRegistry()

	names := sr.ListSchemas()
	expected := []string{engine.SchemaChartProperties, engine.SchemaClusterProperties}
	if len(names) != len(expected) {
		t.Fatalf("expected %d schemas, got %v", len(expected), names)
	}
	for i, name := range expected {
		if names[i] != name {
			t.Errorf("expected schema %d to be %s, got %s", i, name, names[i])
		}
		schema, ok := sr.GetSchema(name)
		if !ok {
			t.Fatalf("built-in schema %s not found", name)
		}
		if schema.Err() != nil {
			t.Errorf("built-in schema %s has errors: %v", name, schema.Err())
		}
	}
}

func TestSchemaRegistry_RegisterSchema(t *testing.T) {
	sr := NewSchemaRegistry()

	custom := `
#Custom: {
	field1: string
	field2: int
}
`
	if err := sr.RegisterSchema(custom, "#Custom"); err != nil {
		t.Fatalf("failed to register schema: %v", err)
	}
	if _, ok := sr.GetSchema("#Custom"); !ok {
		t.Fatal("expected to find custom schema")
	}

	if err := sr.RegisterSchema(custom, "#Missing"); err == nil {
		t.Error("expected error for a definition that is not in the source")
	}
	if err := sr.RegisterSchema("#Broken: {", "#Broken"); err == nil {
		t.Error("expected compile error")
	}
}

func TestSchemaRegistry_ClusterProperties(t *testing.T) {
	sr := NewSchemaRegistry()
	ctx := context.Background()

	tests := []struct {
		name    string
		props   map[string]interface{}
		wantErr bool
	}{
		{
			name: "minimal",
			props: map[string]interface{}{
				"Config": map[string]interface{}{"roleArn": "arn:aws:iam::123:role/eks"},
			},
		},
		{
			name: "full with stringified booleans",
			props: map[string]interface{}{
				"ServiceToken": "arn:aws:lambda:us-east-1:123:function:provider",
				"Config": map[string]interface{}{
					"name":    "prod",
					"roleArn": "arn:aws:iam::123:role/eks",
					"version": "1.31",
					"resourcesVpcConfig": map[string]interface{}{
						"subnetIds":             []interface{}{"subnet-1", "subnet-2"},
						"endpointPublicAccess":  "true",
						"endpointPrivateAccess": false,
					},
					"logging": map[string]interface{}{
						"clusterLogging": []interface{}{
							map[string]interface{}{"types": []interface{}{"api", "audit"}, "enabled": "true"},
						},
					},
					"tags":         map[string]interface{}{"team": "platform"},
					"futureOption": 42,
				},
			},
		},
		{
			name:    "missing config",
			props:   map[string]interface{}{"ServiceToken": "x"},
			wantErr: true,
		},
		{
			name: "role is not an arn",
			props: map[string]interface{}{
				"Config": map[string]interface{}{"roleArn": "eks-role"},
			},
			wantErr: true,
		},
		{
			name: "version is not major.minor",
			props: map[string]interface{}{
				"Config": map[string]interface{}{"version": "latest"},
			},
			wantErr: true,
		},
		{
			name: "unknown log type",
			props: map[string]interface{}{
				"Config": map[string]interface{}{
					"logging": map[string]interface{}{
						"clusterLogging": []interface{}{
							map[string]interface{}{"types": []interface{}{"kubelet"}},
						},
					},
				},
			},
			wantErr: true,
		},
		{
			name: "boolean as arbitrary string",
			props: map[string]interface{}{
				"Config": map[string]interface{}{
					"resourcesVpcConfig": map[string]interface{}{"endpointPublicAccess": "yes"},
				},
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := sr.ValidateAgainstSchema(ctx, engine.SchemaClusterProperties, tt.props)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ValidateAgainstSchema() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, engine.ErrValidation) {
				t.Errorf("expected a validation error, got %v", err)
			}
		})
	}
}

func TestSchemaRegistry_ChartProperties(t *testing.T) {
	sr := NewSchemaRegistry()
	ctx := context.Background()

	tests := []struct {
		name    string
		props   map[string]interface{}
		wantErr bool
	}{
		{
			name:  "minimal",
			props: map[string]interface{}{"Release": "web", "Chart": "nginx"},
		},
		{
			name: "full",
			props: map[string]interface{}{
				"ClusterName":     "prod",
				"RoleArn":         "arn:aws:iam::123:role/kubectl",
				"Release":         "web",
				"Chart":           "nginx",
				"Version":         "1.2.3",
				"Namespace":       "apps",
				"Repository":      "https://charts.example.com",
				"Values":          `{"replicaCount":2}`,
				"Wait":            "true",
				"Timeout":         "5m",
				"CreateNamespace": true,
			},
		},
		{
			name:    "empty release",
			props:   map[string]interface{}{"Release": "", "Chart": "nginx"},
			wantErr: true,
		},
		{
			name:    "missing chart",
			props:   map[string]interface{}{"Release": "web"},
			wantErr: true,
		},
		{
			name:    "values as object",
			props:   map[string]interface{}{"Release": "web", "Chart": "nginx", "Values": map[string]interface{}{"a": 1}},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := sr.ValidateAgainstSchema(ctx, engine.SchemaChartProperties, tt.props)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateAgainstSchema() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestSchemaRegistry_UnknownSchema(t *testing.T) {
	sr := NewSchemaRegistry()

	err := sr.ValidateAgainstSchema(context.Background(), "#Nope", map[string]interface{}{})
	if err == nil {
		t.Fatal("expected error for unknown schema")
	}
	if errors.Is(err, engine.ErrValidation) {
		t.Error("an unknown schema is a wiring error, not a request error")
	}
}

func TestSchemaRegistry_DrivesClassifier(t *testing.T) {
	classifier := engine.NewClassifier(engine.ClassifierOptions{
		Kind:   engine.ResourceKindCluster,
		Schema: NewSchemaRegistry(),
	})

	_, err := classifier.Classify(context.Background(), engine.RawEvent{
		RequestType:        "Create",
		ResponseURL:        "https://example.com/response",
		StackID:            "stack",
		RequestID:          "req-1",
		LogicalResourceID:  "Cluster",
		ResourceProperties: map[string]interface{}{"Config": map[string]interface{}{"version": "one"}},
	})
	if !errors.Is(err, engine.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}
