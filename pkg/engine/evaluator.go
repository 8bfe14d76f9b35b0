package engine

import (
	"encoding/json"
	"fmt"
	"reflect"
)

// Evaluator decides whether an update can be applied in place. The field
// lists name the keys the resource manager refuses to change on a live
// resource.
type Evaluator struct {
	// StructuralFields are immutable placement fields such as network config.
	StructuralFields []string

	// IdentityFields are immutable identity fields such as the execution role.
	IdentityFields []string
}

// ClusterEvaluator is the immutability contract of a cluster.
var ClusterEvaluator = Evaluator{
	StructuralFields: []string{"resourcesVpcConfig"},
	IdentityFields:   []string{"roleArn"},
}

// ChartEvaluator is the immutability contract of a chart release. Cluster,
// namespace and release are encoded in the identity, so a rename is the
// only replacement trigger.
var ChartEvaluator = Evaluator{}

// Evaluate compares old and new configurations. A missing key and an
// explicit null compare equal; key order is irrelevant.
func (e Evaluator) Evaluate(old, new map[string]interface{}, oldPhysicalID, newName string) ReplacementDecision {
	if oldPhysicalID != newName {
		return ReplacementDecision{
			Required: true,
			Field:    "name",
			Reason:   fmt.Sprintf("'name' change requires replacement (old=%s, new=%s)", oldPhysicalID, newName),
		}
	}

	fields := make([]string, 0, len(e.StructuralFields)+len(e.IdentityFields))
	fields = append(fields, e.StructuralFields...)
	fields = append(fields, e.IdentityFields...)

	for _, field := range fields {
		o, n := normalizeValue(old[field]), normalizeValue(new[field])
		if !reflect.DeepEqual(o, n) {
			return ReplacementDecision{
				Required: true,
				Field:    field,
				Reason: fmt.Sprintf("'%s' change requires replacement (old=%s, new=%s)",
					field, render(o), render(n)),
			}
		}
	}
	return ReplacementDecision{}
}

// normalizeValue round-trips v through JSON so typed and generic values
// compare structurally.
func normalizeValue(v interface{}) interface{} {
	if v == nil {
		return nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return v
	}
	var out interface{}
	if err := json.Unmarshal(data, &out); err != nil {
		return v
	}
	return out
}

func render(v interface{}) string {
	if v == nil {
		return "null"
	}
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(data)
}

// mutableDiff lists the keys among fields whose normalized values differ.
func mutableDiff(old, new map[string]interface{}, fields []string) []string {
	var changed []string
	for _, f := range fields {
		if !reflect.DeepEqual(normalizeValue(old[f]), normalizeValue(new[f])) {
			changed = append(changed, f)
		}
	}
	return changed
}
