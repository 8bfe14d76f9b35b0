package engine

import (
	"encoding/json"
	"fmt"
)

// RequestType is the lifecycle verb of an inbound change request.
type RequestType string

const (
	RequestCreate RequestType = "Create"
	RequestUpdate RequestType = "Update"
	RequestDelete RequestType = "Delete"
)

// Validate rejects verbs other than Create, Update and Delete with an
// UnsupportedOperation error.
func (t RequestType) Validate() error {
	switch t {
	case RequestCreate, RequestUpdate, RequestDelete:
		return nil
	default:
		return NewUnsupportedOperation(string(t))
	}
}

// ResourceKind selects which executor reconciles a request.
type ResourceKind string

const (
	// ResourceKindCluster is a cluster managed through the resource-manager API.
	ResourceKindCluster ResourceKind = "cluster"

	// ResourceKindChart is a release managed through the deployment tool.
	ResourceKindChart ResourceKind = "chart"

	// ResourceKindAuto infers the kind from each event.
	ResourceKindAuto ResourceKind = "auto"
)

// OperationType is what an executor did, or would do, to reach the desired
// configuration.
type OperationType string

const (
	OperationCreate OperationType = "create"
	OperationUpdate OperationType = "update"
	OperationDelete OperationType = "delete"

	// OperationNoop means the resource already matched.
	OperationNoop OperationType = "noop"

	// OperationReplace means a new resource was created under a new physical
	// id; the old one is left for the orchestrator to delete.
	OperationReplace OperationType = "replace"
)

// ResourceStatus is the state of an external resource as observed by a poll.
type ResourceStatus string

const (
	ResourceStatusActive   ResourceStatus = "ACTIVE"
	ResourceStatusCreating ResourceStatus = "CREATING"
	ResourceStatusUpdating ResourceStatus = "UPDATING"
	ResourceStatusDeleting ResourceStatus = "DELETING"
	ResourceStatusPending  ResourceStatus = "PENDING"
	ResourceStatusFailed   ResourceStatus = "FAILED"

	// ResourceStatusAbsent is synthesized from a not-found poll.
	ResourceStatusAbsent ResourceStatus = "ABSENT"
)

// IsTransitional reports whether the resource is still moving between
// stable states.
func (s ResourceStatus) IsTransitional() bool {
	switch s {
	case ResourceStatusCreating, ResourceStatusUpdating, ResourceStatusDeleting, ResourceStatusPending:
		return true
	}
	return false
}

// ResponseStatus is the outcome reported to the orchestrator.
type ResponseStatus string

const (
	ResponseSuccess ResponseStatus = "SUCCESS"
	ResponseFailed  ResponseStatus = "FAILED"
)

// UnmarshalJSON accepts only SUCCESS and FAILED.
func (s *ResponseStatus) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return err
	}
	switch ResponseStatus(str) {
	case ResponseSuccess, ResponseFailed:
		*s = ResponseStatus(str)
		return nil
	default:
		return fmt.Errorf("invalid response status: %s", str)
	}
}
