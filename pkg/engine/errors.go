package engine

import (
	"errors"
	"fmt"
)

// ErrorClass represents the classification of an error for retry and recovery logic.
type ErrorClass string

const (
	// ErrorClassTransient indicates a temporary failure that may succeed on retry.
	// Examples: network timeouts, temporary service unavailability.
	ErrorClassTransient ErrorClass = "transient"

	// ErrorClassThrottled indicates rate limiting or quota exhaustion.
	ErrorClassThrottled ErrorClass = "throttled"

	// ErrorClassConflict indicates a resource state conflict.
	// Examples: an update already in progress on the cluster.
	ErrorClassConflict ErrorClass = "conflict"

	// ErrorClassPermanent indicates a non-recoverable error.
	ErrorClassPermanent ErrorClass = "permanent"
)

// ErrorKind identifies where in the reconciliation path an error was raised.
// The kind decides how the boundary reports it; the class decides whether
// a narrow retry loop may swallow it.
type ErrorKind string

const (
	// KindValidation is a malformed or incomplete request.
	KindValidation ErrorKind = "validation"

	// KindInvariant means the classifier could not resolve an identity.
	KindInvariant ErrorKind = "invariant"

	// KindPolicy is a disallowed mutation, e.g. unsetting a pinned version.
	KindPolicy ErrorKind = "policy"

	// KindConvergenceTimeout means the target state was not reached within the attempt budget.
	KindConvergenceTimeout ErrorKind = "convergence_timeout"

	// KindResourceFailed means the external system reported a definitive failure state.
	KindResourceFailed ErrorKind = "resource_failed"

	// KindCommand is a deployment-tool invocation that failed after its retry budget.
	KindCommand ErrorKind = "command"

	// KindTransport is a failure to deliver the callback response.
	KindTransport ErrorKind = "transport"

	// KindUnsupported is an unrecognized request type.
	KindUnsupported ErrorKind = "unsupported"

	// KindNotFound is returned by collaborators when the addressed resource does not exist.
	KindNotFound ErrorKind = "not_found"

	// KindAlreadyExists is returned by collaborators when a create collides with an existing resource.
	KindAlreadyExists ErrorKind = "already_exists"

	// KindInternal covers everything else, including recovered panics.
	KindInternal ErrorKind = "internal"
)

// EngineError represents a classified error with context.
// nolint:revive // EngineError is intentionally named to distinguish from standard errors
type EngineError struct {
	// Class is the error classification for retry logic.
	Class ErrorClass `json:"class"`

	// Kind is the taxonomy entry used when reporting the error.
	Kind ErrorKind `json:"kind"`

	// Message is the human-readable error message.
	Message string `json:"message"`

	// Code is an optional error code for programmatic handling.
	Code string `json:"code,omitempty"`

	// Resource is the resource identity that caused the error, if applicable.
	Resource string `json:"resource,omitempty"`

	// Operation is the operation being performed when the error occurred.
	Operation string `json:"operation,omitempty"`

	// Output is the captured output of a failed external command.
	Output []byte `json:"-"`

	// Err is the underlying error that caused this error.
	Err error `json:"-"`

	// Details contains additional context-specific information.
	Details map[string]interface{} `json:"details,omitempty"`
}

// Error implements the error interface. The text is sent verbatim as the
// Reason of a failed response, so it carries no classification prefix.
func (e *EngineError) Error() string {
	if e.Err != nil && e.Message != "" {
		return fmt.Sprintf("%s: %s", e.Message, e.Err.Error())
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return e.Message
}

// Unwrap returns the underlying error for error chain inspection.
func (e *EngineError) Unwrap() error {
	return e.Err
}

// Is implements error equality checking for errors.Is.
// A target with an empty Code matches any error of the same kind.
func (e *EngineError) Is(target error) bool {
	t, ok := target.(*EngineError)
	if !ok {
		return false
	}
	if t.Kind != e.Kind {
		return false
	}
	return t.Code == "" || t.Code == e.Code
}

// Sentinel values for errors.Is comparisons.
var (
	ErrValidation         = &EngineError{Kind: KindValidation}
	ErrNotFound           = &EngineError{Kind: KindNotFound}
	ErrAlreadyExists      = &EngineError{Kind: KindAlreadyExists}
	ErrConvergenceTimeout = &EngineError{Kind: KindConvergenceTimeout}
	ErrPolicyViolation    = &EngineError{Kind: KindPolicy}
	ErrCommand            = &EngineError{Kind: KindCommand}
	ErrTransport          = &EngineError{Kind: KindTransport}
)

// NewTransientError creates a new transient error.
func NewTransientError(message string, err error) *EngineError {
	return &EngineError{
		Class:   ErrorClassTransient,
		Kind:    KindInternal,
		Message: message,
		Err:     err,
	}
}

// NewThrottledError creates a new throttled error.
func NewThrottledError(message string, err error) *EngineError {
	return &EngineError{
		Class:   ErrorClassThrottled,
		Kind:    KindInternal,
		Message: message,
		Err:     err,
	}
}

// NewConflictError creates a new conflict error.
func NewConflictError(message string, err error) *EngineError {
	return &EngineError{
		Class:   ErrorClassConflict,
		Kind:    KindInternal,
		Message: message,
		Err:     err,
	}
}

// NewPermanentError creates a new permanent error.
func NewPermanentError(message string, err error) *EngineError {
	return &EngineError{
		Class:   ErrorClassPermanent,
		Kind:    KindInternal,
		Message: message,
		Err:     err,
	}
}

// NewValidationError reports a malformed or incomplete request.
func NewValidationError(message string, err error) *EngineError {
	return &EngineError{
		Class:   ErrorClassPermanent,
		Kind:    KindValidation,
		Message: message,
		Code:    ErrCodeValidation,
		Err:     err,
	}
}

// NewInvariantViolation reports that no resource identity could be resolved.
func NewInvariantViolation(message string) *EngineError {
	return &EngineError{
		Class:   ErrorClassPermanent,
		Kind:    KindInvariant,
		Message: message,
	}
}

// NewPolicyViolation reports a mutation the reconciler refuses to perform.
func NewPolicyViolation(message string) *EngineError {
	return &EngineError{
		Class:   ErrorClassPermanent,
		Kind:    KindPolicy,
		Message: message,
	}
}

// NewConvergenceTimeout reports an exhausted convergence attempt budget.
func NewConvergenceTimeout(resource string, target ResourceStatus, spec WaitSpec) *EngineError {
	return &EngineError{
		Class: ErrorClassPermanent,
		Kind:  KindConvergenceTimeout,
		Message: fmt.Sprintf("%s did not reach %s after %d attempts (%s)",
			resource, target, spec.MaxAttempts, spec.Timeout()),
		Code:     ErrCodeTimeout,
		Resource: resource,
	}
}

// NewResourceFailed reports a definitive failure state observed while converging.
func NewResourceFailed(resource string, status ResourceStatus) *EngineError {
	return &EngineError{
		Class:    ErrorClassPermanent,
		Kind:     KindResourceFailed,
		Message:  fmt.Sprintf("%s entered terminal state %s", resource, status),
		Resource: resource,
	}
}

// NewCommandError wraps the captured output of a failed deployment-tool command.
func NewCommandError(message string, output []byte, err error) *EngineError {
	return &EngineError{
		Class:   ErrorClassPermanent,
		Kind:    KindCommand,
		Message: message,
		Code:    ErrCodeCommandFailed,
		Output:  output,
		Err:     err,
	}
}

// NewTransportError reports a callback delivery failure.
func NewTransportError(message string, err error) *EngineError {
	return &EngineError{
		Class:   ErrorClassTransient,
		Kind:    KindTransport,
		Message: message,
		Err:     err,
	}
}

// NewUnsupportedOperation reports an unrecognized request type.
func NewUnsupportedOperation(requestType string) *EngineError {
	return &EngineError{
		Class:   ErrorClassPermanent,
		Kind:    KindUnsupported,
		Message: fmt.Sprintf("Invalid request type %s", requestType),
		Code:    ErrCodeValidation,
	}
}

// NewNotFoundError is returned by collaborators for missing resources.
func NewNotFoundError(resource string, err error) *EngineError {
	return &EngineError{
		Class:    ErrorClassPermanent,
		Kind:     KindNotFound,
		Message:  fmt.Sprintf("resource %s not found", resource),
		Code:     ErrCodeNotFound,
		Resource: resource,
		Err:      err,
	}
}

// NewAlreadyExistsError is returned by collaborators when a create collides.
func NewAlreadyExistsError(resource string, err error) *EngineError {
	return &EngineError{
		Class:    ErrorClassConflict,
		Kind:     KindAlreadyExists,
		Message:  fmt.Sprintf("resource %s already exists", resource),
		Code:     ErrCodeAlreadyExists,
		Resource: resource,
		Err:      err,
	}
}

// NewInternalError wraps a fault that has no more specific kind.
func NewInternalError(message string, err error) *EngineError {
	return &EngineError{
		Class:   ErrorClassPermanent,
		Kind:    KindInternal,
		Message: message,
		Code:    ErrCodeInternal,
		Err:     err,
	}
}

// WithResource adds resource context to an error.
func (e *EngineError) WithResource(resourceID string) *EngineError {
	e.Resource = resourceID
	return e
}

// WithOperation adds operation context to an error.
func (e *EngineError) WithOperation(operation string) *EngineError {
	e.Operation = operation
	return e
}

// WithCode adds an error code to an error.
func (e *EngineError) WithCode(code string) *EngineError {
	e.Code = code
	return e
}

// WithDetail adds a detail field to the error context.
func (e *EngineError) WithDetail(key string, value interface{}) *EngineError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// KindOf returns the taxonomy kind of err, or KindInternal for foreign errors.
func KindOf(err error) ErrorKind {
	var e *EngineError
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// IsTransient returns true if the error is classified as transient.
func IsTransient(err error) bool {
	var e *EngineError
	if errors.As(err, &e) {
		return e.Class == ErrorClassTransient
	}
	return false
}

// IsThrottled returns true if the error is classified as throttled.
func IsThrottled(err error) bool {
	var e *EngineError
	if errors.As(err, &e) {
		return e.Class == ErrorClassThrottled
	}
	return false
}

// IsConflict returns true if the error is classified as a conflict.
func IsConflict(err error) bool {
	var e *EngineError
	if errors.As(err, &e) {
		return e.Class == ErrorClassConflict
	}
	return false
}

// IsPermanent returns true if the error is classified as permanent.
func IsPermanent(err error) bool {
	var e *EngineError
	if errors.As(err, &e) {
		return e.Class == ErrorClassPermanent
	}
	return false
}

// IsRetryable returns true if the error can be retried by a polling loop.
func IsRetryable(err error) bool {
	return IsTransient(err) || IsThrottled(err)
}

// Common error codes.
const (
	ErrCodeValidation     = "VALIDATION_ERROR"
	ErrCodeNotFound       = "NOT_FOUND"
	ErrCodeAlreadyExists  = "ALREADY_EXISTS"
	ErrCodeTimeout        = "TIMEOUT"
	ErrCodeConflict       = "CONFLICT"
	ErrCodeInternal       = "INTERNAL_ERROR"
	ErrCodeCommandFailed  = "COMMAND_FAILED"
	ErrCodeProviderFailed = "PROVIDER_FAILED"
)
