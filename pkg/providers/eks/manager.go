package eks

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awseks "github.com/aws/aws-sdk-go-v2/service/eks"
	"github.com/aws/smithy-go"
	"github.com/rs/zerolog"

	"github.com/openfroyo/clusterforge/pkg/engine"
)

// Fields accepted by UpdateResource.
const (
	FieldVersion = "version"
	FieldLogging = "logging"
)

// Manager implements engine.ResourceManager against EKS.
type Manager struct {
	client Client
	logger zerolog.Logger
}

// NewManager creates a new EKS resource manager.
func NewManager(client Client, logger zerolog.Logger) *Manager {
	return &Manager{
		client: client,
		logger: logger.With().Str("component", "eks").Logger(),
	}
}

// CreateResource starts creating a cluster.
func (m *Manager) CreateResource(ctx context.Context, cfg *engine.ClusterConfig) (engine.ResourceIdentity, error) {
	in, err := CreateInput(cfg)
	if err != nil {
		return engine.ResourceIdentity{}, err
	}

	m.logger.Info().Str("cluster", cfg.Name).Msg("creating cluster")
	out, err := m.client.CreateCluster(ctx, in)
	if err != nil {
		return engine.ResourceIdentity{}, mapError(err, cfg.Name, "create")
	}

	name := cfg.Name
	if out != nil && out.Cluster != nil && out.Cluster.Name != nil {
		name = aws.ToString(out.Cluster.Name)
	}
	return engine.ResourceIdentity{Name: name}, nil
}

// UpdateResource starts an in-place update of the version or logging field.
func (m *Manager) UpdateResource(ctx context.Context, name, field string, value interface{}) error {
	var (
		updateID string
		err      error
	)
	switch field {
	case FieldVersion:
		version, ok := value.(string)
		if !ok || version == "" {
			return engine.NewValidationError(fmt.Sprintf("invalid version %v", value), nil)
		}
		var out *awseks.UpdateClusterVersionOutput
		out, err = m.client.UpdateClusterVersion(ctx, &awseks.UpdateClusterVersionInput{
			Name:    aws.String(name),
			Version: aws.String(version),
		})
		if err == nil && out.Update != nil {
			updateID = aws.ToString(out.Update.Id)
		}
	case FieldLogging:
		logging, lerr := LoggingInput(value)
		if lerr != nil {
			return lerr
		}
		var out *awseks.UpdateClusterConfigOutput
		out, err = m.client.UpdateClusterConfig(ctx, &awseks.UpdateClusterConfigInput{
			Name:    aws.String(name),
			Logging: logging,
		})
		if err == nil && out.Update != nil {
			updateID = aws.ToString(out.Update.Id)
		}
	default:
		return engine.NewInvariantViolation(fmt.Sprintf("field %q cannot be updated in place", field))
	}
	if err != nil {
		return mapError(err, name, "update")
	}

	m.logger.Info().
		Str("cluster", name).
		Str("field", field).
		Str("update_id", updateID).
		Msg("update started")
	return nil
}

// DeleteResource starts deleting a cluster.
func (m *Manager) DeleteResource(ctx context.Context, name string) error {
	m.logger.Info().Str("cluster", name).Msg("deleting cluster")
	if _, err := m.client.DeleteCluster(ctx, &awseks.DeleteClusterInput{Name: aws.String(name)}); err != nil {
		return mapError(err, name, "delete")
	}
	return nil
}

// DescribeResource returns the current status and attributes of a cluster.
func (m *Manager) DescribeResource(ctx context.Context, name string) (*engine.Observation, error) {
	out, err := m.client.DescribeCluster(ctx, &awseks.DescribeClusterInput{Name: aws.String(name)})
	if err != nil {
		return nil, mapError(err, name, "describe")
	}
	if out.Cluster == nil {
		return nil, engine.NewNotFoundError(name, nil)
	}
	return Observe(out.Cluster), nil
}

// mapError classifies an EKS API error.
func mapError(err error, name, op string) error {
	var apiErr smithy.APIError
	if !errors.As(err, &apiErr) {
		return fmt.Errorf("eks %s %s: %w", op, name, err)
	}

	msg := fmt.Sprintf("eks %s %s failed", op, name)
	switch apiErr.ErrorCode() {
	case "ResourceNotFoundException":
		return engine.NewNotFoundError(name, err).WithOperation(op)
	case "ResourceInUseException":
		if op == "create" {
			return engine.NewAlreadyExistsError(name, err).WithOperation(op)
		}
		return engine.NewConflictError(msg, err).WithResource(name).WithOperation(op)
	case "ServerException", "ServiceUnavailableException", "InternalFailure":
		return engine.NewTransientError(msg, err).WithResource(name).WithOperation(op)
	case "ThrottlingException", "TooManyRequestsException", "RequestLimitExceeded":
		return engine.NewThrottledError(msg, err).WithResource(name).WithOperation(op)
	default:
		return engine.NewPermanentError(apiErr.ErrorMessage(), err).WithResource(name).WithOperation(op).WithCode(apiErr.ErrorCode())
	}
}
