package eks

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awseks "github.com/aws/aws-sdk-go-v2/service/eks"
	"github.com/aws/aws-sdk-go-v2/service/eks/types"

	"github.com/openfroyo/clusterforge/pkg/engine"
)

// boolKeys are property keys the orchestrator may deliver as "true"/"false".
var boolKeys = map[string]bool{
	"endpointPublicAccess":  true,
	"endpointPrivateAccess": true,
	"enabled":               true,

	"bootstrapClusterCreatorAdminPermissions": true,
	"bootstrapSelfManagedAddons":              true,
}

// coerceBools rewrites string booleans under boolKeys into real booleans.
func coerceBools(v interface{}) interface{} {
	switch t := v.(type) {
	case map[string]interface{}:
		out := make(map[string]interface{}, len(t))
		for k, val := range t {
			if s, ok := val.(string); ok && boolKeys[k] {
				switch strings.ToLower(s) {
				case "true":
					out[k] = true
					continue
				case "false":
					out[k] = false
					continue
				}
			}
			out[k] = coerceBools(val)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(t))
		for i, val := range t {
			out[i] = coerceBools(val)
		}
		return out
	default:
		return v
	}
}

// decode maps a property document onto an SDK input struct. Property keys
// are camelCase; SDK field names match them case-insensitively.
func decode(v interface{}, out interface{}) error {
	data, err := json.Marshal(coerceBools(v))
	if err != nil {
		return err
	}
	return json.Unmarshal(data, out)
}

// decodeStrict is decode that rejects keys out has no field for.
func decodeStrict(v interface{}, out interface{}) error {
	data, err := json.Marshal(coerceBools(v))
	if err != nil {
		return err
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	return dec.Decode(out)
}

// CreateInput builds the CreateCluster request for cfg. Every key of the
// config document is passed through (encryptionConfig, accessConfig,
// upgradePolicy, ...); a key CreateCluster does not accept is a validation
// error. The typed fields of cfg take precedence.
func CreateInput(cfg *engine.ClusterConfig) (*awseks.CreateClusterInput, error) {
	in := &awseks.CreateClusterInput{}
	if len(cfg.Raw) > 0 {
		if err := decodeStrict(cfg.Raw, in); err != nil {
			return nil, engine.NewValidationError("invalid request. Config does not match the CreateCluster API", err)
		}
	}
	in.Name = aws.String(cfg.Name)
	if cfg.RoleArn != "" {
		in.RoleArn = aws.String(cfg.RoleArn)
	}
	if cfg.Version != "" {
		in.Version = aws.String(cfg.Version)
	}
	if cfg.ResourcesVpcConfig != nil {
		var vpc types.VpcConfigRequest
		if err := decode(cfg.ResourcesVpcConfig, &vpc); err != nil {
			return nil, engine.NewValidationError("invalid resourcesVpcConfig", err)
		}
		in.ResourcesVpcConfig = &vpc
	}
	if cfg.Logging != nil {
		logging, err := LoggingInput(cfg.Logging)
		if err != nil {
			return nil, err
		}
		in.Logging = logging
	}
	return in, nil
}

// LoggingInput converts a logging property document.
func LoggingInput(v interface{}) (*types.Logging, error) {
	var logging types.Logging
	if err := decode(v, &logging); err != nil {
		return nil, engine.NewValidationError("invalid logging", err)
	}
	return &logging, nil
}

// Observe converts a described cluster into an observation.
func Observe(c *types.Cluster) *engine.Observation {
	attrs := map[string]interface{}{
		"Name":     aws.ToString(c.Name),
		"Endpoint": aws.ToString(c.Endpoint),
		"Arn":      aws.ToString(c.Arn),
		"Version":  aws.ToString(c.Version),
	}
	if c.CertificateAuthority != nil {
		attrs["CertificateAuthorityData"] = aws.ToString(c.CertificateAuthority.Data)
	}
	attrs["RoleArn"] = aws.ToString(c.RoleArn)
	if vpc := c.ResourcesVpcConfig; vpc != nil {
		attrs["ResourcesVpcConfig"] = map[string]interface{}{
			"subnetIds":             vpc.SubnetIds,
			"securityGroupIds":      vpc.SecurityGroupIds,
			"endpointPublicAccess":  vpc.EndpointPublicAccess,
			"endpointPrivateAccess": vpc.EndpointPrivateAccess,
			"publicAccessCidrs":     vpc.PublicAccessCidrs,
		}
	}
	return &engine.Observation{Status: MapStatus(c.Status), Attributes: attrs}
}

// MapStatus maps an EKS cluster status onto a resource status.
func MapStatus(s types.ClusterStatus) engine.ResourceStatus {
	switch s {
	case types.ClusterStatusActive:
		return engine.ResourceStatusActive
	case types.ClusterStatusCreating:
		return engine.ResourceStatusCreating
	case types.ClusterStatusUpdating:
		return engine.ResourceStatusUpdating
	case types.ClusterStatusDeleting:
		return engine.ResourceStatusDeleting
	case types.ClusterStatusFailed:
		return engine.ResourceStatusFailed
	case types.ClusterStatusPending:
		return engine.ResourceStatusPending
	default:
		return engine.ResourceStatus(s)
	}
}
