package engine

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// Normalize converts a property mapping into plain JSON values so that two
// mappings describing the same configuration compare equal regardless of
// key order or the concrete Go types they were decoded into.
func Normalize(m map[string]interface{}) (map[string]interface{}, error) {
	if m == nil {
		return map[string]interface{}{}, nil
	}
	data, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("failed to encode properties: %w", err)
	}
	out := make(map[string]interface{})
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("failed to decode properties: %w", err)
	}
	return out, nil
}

// ClusterConfigFrom builds the typed view of a cluster configuration mapping.
func ClusterConfigFrom(m map[string]interface{}) (*ClusterConfig, error) {
	cfg := &ClusterConfig{Raw: make(map[string]interface{}, len(m))}
	for k, v := range m {
		cfg.Raw[k] = v
	}

	var err error
	if cfg.Name, err = stringProp(m, "name"); err != nil {
		return nil, err
	}
	if cfg.RoleArn, err = stringProp(m, "roleArn"); err != nil {
		return nil, err
	}
	if cfg.Version, err = stringProp(m, "version"); err != nil {
		return nil, err
	}
	if cfg.ResourcesVpcConfig, err = mapProp(m, "resourcesVpcConfig"); err != nil {
		return nil, err
	}
	if cfg.Logging, err = mapProp(m, "logging"); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ChartConfigFrom builds the typed view of a chart's resource properties.
// defaultCluster and defaultRole fill ClusterName and RoleArn when the
// properties leave them out.
func ChartConfigFrom(m map[string]interface{}, defaultCluster, defaultRole string) (*ChartConfig, error) {
	for _, key := range []string{"Release", "Chart"} {
		if v, ok := m[key]; !ok || v == nil || v == "" {
			return nil, NewValidationError(fmt.Sprintf("invalid request. Missing '%s'", key), nil)
		}
	}

	cfg := &ChartConfig{}
	var err error
	strs := []struct {
		key string
		dst *string
	}{
		{"ClusterName", &cfg.ClusterName},
		{"RoleArn", &cfg.RoleArn},
		{"Release", &cfg.Release},
		{"Chart", &cfg.Chart},
		{"Version", &cfg.Version},
		{"Namespace", &cfg.Namespace},
		{"Repository", &cfg.Repository},
		{"Values", &cfg.Values},
		{"Timeout", &cfg.Timeout},
	}
	for _, s := range strs {
		if *s.dst, err = stringProp(m, s.key); err != nil {
			return nil, err
		}
	}
	if cfg.Wait, err = boolProp(m, "Wait"); err != nil {
		return nil, err
	}
	if cfg.CreateNamespace, err = boolProp(m, "CreateNamespace"); err != nil {
		return nil, err
	}

	if cfg.ClusterName == "" {
		cfg.ClusterName = defaultCluster
	}
	if cfg.RoleArn == "" {
		cfg.RoleArn = defaultRole
	}
	if cfg.ClusterName == "" {
		return nil, NewValidationError("CLUSTER_NAME is missing in environment", nil)
	}
	if cfg.Values != "" {
		var probe interface{}
		if err := json.Unmarshal([]byte(cfg.Values), &probe); err != nil {
			return nil, NewValidationError("invalid request. 'Values' is not valid JSON", err)
		}
	}
	return cfg, nil
}

func stringProp(m map[string]interface{}, key string) (string, error) {
	v, ok := m[key]
	if !ok || v == nil {
		return "", nil
	}
	switch t := v.(type) {
	case string:
		return t, nil
	case float64:
		// Versions such as 1.30 may arrive unquoted.
		return strconv.FormatFloat(t, 'f', -1, 64), nil
	case json.Number:
		return t.String(), nil
	default:
		return "", NewValidationError(fmt.Sprintf("invalid request. '%s' must be a string", key), nil)
	}
}

func mapProp(m map[string]interface{}, key string) (map[string]interface{}, error) {
	v, ok := m[key]
	if !ok || v == nil {
		return nil, nil
	}
	out, ok := v.(map[string]interface{})
	if !ok {
		return nil, NewValidationError(fmt.Sprintf("invalid request. '%s' must be a mapping", key), nil)
	}
	return out, nil
}

// boolProp accepts native booleans and the "true"/"false" strings the
// orchestrator delivers scalar properties as.
func boolProp(m map[string]interface{}, key string) (bool, error) {
	v, ok := m[key]
	if !ok || v == nil {
		return false, nil
	}
	switch t := v.(type) {
	case bool:
		return t, nil
	case string:
		if t == "" {
			return false, nil
		}
		b, err := strconv.ParseBool(t)
		if err != nil {
			return false, NewValidationError(fmt.Sprintf("invalid request. '%s' must be a boolean", key), err)
		}
		return b, nil
	default:
		return false, NewValidationError(fmt.Sprintf("invalid request. '%s' must be a boolean", key), nil)
	}
}
