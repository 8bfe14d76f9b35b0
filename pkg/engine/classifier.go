package engine

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

// Property schema names resolved by the PropertySchema collaborator.
const (
	SchemaClusterProperties = "#ClusterProperties"
	SchemaChartProperties   = "#ChartProperties"
)

// ClassifierOptions configures a Classifier.
type ClassifierOptions struct {
	// Kind forces the resource kind; ResourceKindAuto infers it per event.
	Kind ResourceKind

	// ClusterName and RoleArn fill chart properties that leave them out.
	ClusterName string
	RoleArn     string

	// Schema validates resource properties; nil skips schema validation.
	Schema PropertySchema
}

// Classifier turns raw events into validated change requests.
type Classifier struct {
	opts     ClassifierOptions
	validate *validator.Validate
}

// NewClassifier creates a new classifier.
func NewClassifier(opts ClassifierOptions) *Classifier {
	if opts.Kind == "" {
		opts.Kind = ResourceKindAuto
	}
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return fld.Name
		}
		return name
	})
	return &Classifier{opts: opts, validate: v}
}

// Classify validates raw and derives the resource identity. Classifying the
// same event twice yields the same request.
func (c *Classifier) Classify(ctx context.Context, raw RawEvent) (*ChangeRequest, error) {
	if err := c.validate.Struct(raw); err != nil {
		return nil, envelopeError(err)
	}

	reqType := RequestType(raw.RequestType)
	if err := reqType.Validate(); err != nil {
		return nil, err
	}

	kind := c.resolveKind(raw)

	desired, err := Normalize(raw.ResourceProperties)
	if err != nil {
		return nil, NewValidationError("invalid request. ResourceProperties", err)
	}
	previous, err := Normalize(raw.OldResourceProperties)
	if err != nil {
		return nil, NewValidationError("invalid request. OldResourceProperties", err)
	}

	req := &ChangeRequest{
		Type:         reqType,
		Kind:         kind,
		StackID:      raw.StackID,
		RequestID:    raw.RequestID,
		LogicalID:    raw.LogicalResourceID,
		ResourceType: raw.ResourceType,
		ResponseURL:  raw.ResponseURL,
		PhysicalID:   raw.PhysicalResourceID,
		Desired:      desired,
		Previous:     previous,
	}

	switch kind {
	case ResourceKindChart:
		err = c.classifyChart(ctx, req)
	default:
		err = c.classifyCluster(ctx, req)
	}
	if err != nil {
		return nil, err
	}
	return req, nil
}

func (c *Classifier) resolveKind(raw RawEvent) ResourceKind {
	if c.opts.Kind != ResourceKindAuto {
		return c.opts.Kind
	}
	if strings.Contains(raw.ResourceType, "HelmChart") {
		return ResourceKindChart
	}
	if _, ok := raw.ResourceProperties["Release"]; ok {
		return ResourceKindChart
	}
	return ResourceKindCluster
}

func (c *Classifier) classifyCluster(ctx context.Context, req *ChangeRequest) error {
	if _, ok := req.Desired["Config"]; !ok {
		return NewValidationError("invalid request. Missing 'Config'", nil)
	}
	if err := c.checkSchema(ctx, SchemaClusterProperties, req.Desired); err != nil {
		return err
	}

	desired, err := mapProp(req.Desired, "Config")
	if err != nil {
		return err
	}
	cfg, err := ClusterConfigFrom(desired)
	if err != nil {
		return err
	}
	req.Cluster = cfg

	if req.Type == RequestUpdate {
		prev, err := mapProp(req.Previous, "Config")
		if err != nil {
			return err
		}
		if req.OldCluster, err = ClusterConfigFrom(prev); err != nil {
			return err
		}
	}

	id, err := resolveClusterIdentity(req.Type, cfg.Name, req.PhysicalID, req.RequestID)
	if err != nil {
		return err
	}
	req.Identity = id
	return nil
}

func (c *Classifier) classifyChart(ctx context.Context, req *ChangeRequest) error {
	if req.Type != RequestCreate && !req.HasPhysicalID() {
		return NewInvariantViolation(fmt.Sprintf(
			"invalid request: request type is '%s' but 'PhysicalResourceId' is not defined", req.Type))
	}

	cfg, err := ChartConfigFrom(req.Desired, c.opts.ClusterName, c.opts.RoleArn)
	if err != nil {
		return err
	}
	if err := c.checkSchema(ctx, SchemaChartProperties, req.Desired); err != nil {
		return err
	}
	req.Chart = cfg

	if req.Type == RequestUpdate && len(req.Previous) > 0 {
		if req.OldChart, err = ChartConfigFrom(req.Previous, c.opts.ClusterName, c.opts.RoleArn); err != nil {
			return err
		}
	}

	req.Identity = cfg.Identity()
	return nil
}

func (c *Classifier) checkSchema(ctx context.Context, name string, data map[string]interface{}) error {
	if c.opts.Schema == nil {
		return nil
	}
	if err := c.opts.Schema.ValidateAgainstSchema(ctx, name, data); err != nil {
		var ee *EngineError
		if errors.As(err, &ee) && ee.Kind == KindValidation {
			return err
		}
		return NewValidationError("invalid request. properties do not match "+name, err)
	}
	return nil
}

// resolveClusterIdentity applies the naming rules in order: explicit name,
// existing physical id, a name synthesized from the request id on Create.
// A physical id minted from the explicit name by an earlier replacement is
// kept so the cluster is not renamed back on the next update.
func resolveClusterIdentity(t RequestType, name, physicalID, requestID string) (ResourceIdentity, error) {
	switch {
	case name != "":
		if physicalID != "" && InLineage(name, physicalID) {
			return ResourceIdentity{Name: physicalID}, nil
		}
		return ResourceIdentity{Name: name}, nil
	case physicalID != "":
		return ResourceIdentity{Name: physicalID}, nil
	case t == RequestCreate:
		return ResourceIdentity{Name: SynthesizeName(requestID)}, nil
	default:
		return ResourceIdentity{}, NewInvariantViolation("unexpected error. cannot determine cluster name")
	}
}

func envelopeError(err error) error {
	var ves validator.ValidationErrors
	if errors.As(err, &ves) && len(ves) > 0 {
		fe := ves[0]
		if fe.Tag() == "required" {
			return NewValidationError(fmt.Sprintf("invalid request. Missing '%s'", fe.Field()), nil)
		}
		return NewValidationError(
			fmt.Sprintf("invalid request. '%s' failed validation for tag '%s'", fe.Field(), fe.Tag()), nil)
	}
	return NewValidationError("invalid request", err)
}
