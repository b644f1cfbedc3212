package types

import "fmt"

// ErrorCode represents a unified error code across the engine.
type ErrorCode string

// Definition error codes. These indicate authoring bugs in a workflow
// definition; the owning instance is suspended and never retried.
const (
	ErrNoApplicableTransition ErrorCode = "NO_APPLICABLE_TRANSITION"
	ErrUnknownOutcome         ErrorCode = "UNKNOWN_OUTCOME"
	ErrInvalidOperator        ErrorCode = "INVALID_OPERATOR"
	ErrInvalidDefinition      ErrorCode = "INVALID_DEFINITION"
)

// Resolution error codes. The step cannot be offered to anyone; the
// instance is suspended pending administrative intervention.
const (
	ErrNoActorsResolved ErrorCode = "NO_ACTORS_RESOLVED"
)

// Caller error codes. Surfaced to the caller; instance state unaffected.
const (
	ErrForbidden        ErrorCode = "FORBIDDEN"
	ErrInvalidTaskState ErrorCode = "INVALID_TASK_STATE"
	ErrTaskNotFound     ErrorCode = "TASK_NOT_FOUND"
	ErrInstanceNotFound ErrorCode = "INSTANCE_NOT_FOUND"
	ErrPositionNotFound ErrorCode = "POSITION_NOT_FOUND"
	ErrInstanceNotLive  ErrorCode = "INSTANCE_NOT_LIVE"
)

// Collaborator error codes. Transient failures from external
// collaborators; no partial engine state is persisted, so the caller may
// safely retry the same request.
const (
	ErrDefinitionNotFound ErrorCode = "DEFINITION_NOT_FOUND"
	ErrRepositoryFailure  ErrorCode = "REPOSITORY_FAILURE"
	ErrResolverFailure    ErrorCode = "RESOLVER_FAILURE"
	ErrArchiveFailure     ErrorCode = "ARCHIVE_FAILURE"
	ErrChainFailure       ErrorCode = "CHAIN_FAILURE"
)

// Error represents a structured error with code, message, and metadata.
type Error struct {
	Code       ErrorCode `json:"code"`
	Message    string    `json:"message"`
	InstanceID string    `json:"instance_id,omitempty"`
	StepID     string    `json:"step_id,omitempty"`
	Retryable  bool      `json:"retryable"`
	Cause      error     `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// NewError creates a new Error with the given code and message.
func NewError(code ErrorCode, message string) *Error {
	return &Error{Code: code, Message: message}
}

// NewErrorf creates a new Error with a formatted message.
func NewErrorf(code ErrorCode, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// WithCause adds a cause to the error.
func (e *Error) WithCause(cause error) *Error {
	e.Cause = cause
	return e
}

// WithInstance sets the owning instance id.
func (e *Error) WithInstance(instanceID string) *Error {
	e.InstanceID = instanceID
	return e
}

// WithStep sets the step id the error relates to.
func (e *Error) WithStep(stepID string) *Error {
	e.StepID = stepID
	return e
}

// WithRetryable marks the error as retryable.
func (e *Error) WithRetryable(retryable bool) *Error {
	e.Retryable = retryable
	return e
}

// IsRetryable checks if an error is retryable.
func IsRetryable(err error) bool {
	if e, ok := err.(*Error); ok {
		return e.Retryable
	}
	return false
}

// GetErrorCode extracts the error code from an error.
func GetErrorCode(err error) ErrorCode {
	if e, ok := err.(*Error); ok {
		return e.Code
	}
	return ""
}

// IsErrorCode checks whether err carries the given code.
func IsErrorCode(err error, code ErrorCode) bool {
	return GetErrorCode(err) == code
}

// IsSuspending reports whether the error suspends the owning instance
// rather than only being returned to the caller. Definition and
// resolution errors suspend; authorization and state errors do not.
func IsSuspending(err error) bool {
	switch GetErrorCode(err) {
	case ErrNoApplicableTransition, ErrUnknownOutcome, ErrNoActorsResolved, ErrChainFailure:
		return true
	}
	return false
}
