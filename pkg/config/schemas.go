package config

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"

	"github.com/openfroyo/clusterforge/pkg/engine"
)

// SchemaRegistry manages CUE schemas for resource properties. It
// implements engine.PropertySchema.
type SchemaRegistry struct {
	ctx     *cue.Context
	schemas map[string]cue.Value
	mu      sync.RWMutex
}

var _ engine.PropertySchema = (*SchemaRegistry)(nil)

// NewSchemaRegistry creates a new schema registry with built-in schemas.
func NewSchemaRegistry() *SchemaRegistry {
	sr := &SchemaRegistry{
		ctx:     cuecontext.New(),
		schemas: make(map[string]cue.Value),
	}

	if err := sr.RegisterSchema(builtinPropertySchemas,
		engine.SchemaClusterProperties,
		engine.SchemaChartProperties,
	); err != nil {
		panic(fmt.Sprintf("built-in property schemas do not compile: %v", err))
	}

	return sr
}

// RegisterSchema compiles source and registers each named definition in it,
// e.g. "#ClusterProperties". A later registration replaces an earlier one.
func (sr *SchemaRegistry) RegisterSchema(source string, definitions ...string) error {
	val := sr.ctx.CompileString(source)
	if err := val.Err(); err != nil {
		return fmt.Errorf("failed to compile schema: %w", err)
	}

	found := make(map[string]cue.Value, len(definitions))
	for _, name := range definitions {
		def := val.LookupPath(cue.ParsePath(name))
		if !def.Exists() {
			return fmt.Errorf("schema %s not defined", name)
		}
		if err := def.Err(); err != nil {
			return fmt.Errorf("schema %s is invalid: %w", name, err)
		}
		found[name] = def
	}

	sr.mu.Lock()
	defer sr.mu.Unlock()
	for name, def := range found {
		sr.schemas[name] = def
	}
	return nil
}

// GetSchema retrieves a schema by name.
func (sr *SchemaRegistry) GetSchema(name string) (cue.Value, bool) {
	sr.mu.RLock()
	defer sr.mu.RUnlock()

	val, ok := sr.schemas[name]
	return val, ok
}

// ValidateAgainstSchema validates data against a named schema. A mismatch
// is reported as an engine ValidationError.
func (sr *SchemaRegistry) ValidateAgainstSchema(_ context.Context, schemaName string, data interface{}) error {
	schema, ok := sr.GetSchema(schemaName)
	if !ok {
		return fmt.Errorf("schema %s not found", schemaName)
	}

	dataVal := sr.ctx.Encode(data)
	if err := dataVal.Err(); err != nil {
		return engine.NewValidationError("invalid request. properties cannot be encoded", err)
	}

	unified := schema.Unify(dataVal)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return engine.NewValidationError("invalid request. properties do not match "+schemaName, err)
	}

	return nil
}

// ListSchemas returns all registered schema names in order.
func (sr *SchemaRegistry) ListSchemas() []string {
	sr.mu.RLock()
	defer sr.mu.RUnlock()

	names := make([]string, 0, len(sr.schemas))
	for name := range sr.schemas {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Property values arrive from the orchestrator as strings, so booleans are
// accepted in either form. Unknown keys are allowed here; the cluster API
// mapping passes every field it knows and rejects the rest.
const builtinPropertySchemas = `
#Bool: bool | "true" | "false"

#VpcConfig: {
	subnetIds?:             [...string]
	securityGroupIds?:      [...string]
	endpointPublicAccess?:  #Bool
	endpointPrivateAccess?: #Bool
	publicAccessCidrs?:     [...string]
	...
}

#LogSetup: {
	types?:   [...("api" | "audit" | "authenticator" | "controllerManager" | "scheduler")]
	enabled?: #Bool
	...
}

#ClusterConfig: {
	name?:               string
	roleArn?:            string & =~"^arn:"
	version?:            string & =~"^[0-9]+\\.[0-9]+$"
	resourcesVpcConfig?: #VpcConfig
	logging?: {
		clusterLogging?: [...#LogSetup]
		...
	}
	kubernetesNetworkConfig?: {
		serviceIpv4Cidr?: string
		ipFamily?:        "ipv4" | "ipv6"
		...
	}
	tags?: {[string]: string}
	...
}

#ClusterProperties: {
	ServiceToken?:  string
	AssumeRoleArn?: string
	Config!:        #ClusterConfig
	...
}

#ChartProperties: {
	ServiceToken?:    string
	ClusterName?:     string
	RoleArn?:         string
	Release!:         string & != ""
	Chart!:           string & != ""
	Version?:         string
	Namespace?:       string
	Repository?:      string
	Values?:          string
	Wait?:            #Bool
	Timeout?:         string
	CreateNamespace?: #Bool
	...
}
`
