package inspectflow

import (
	"errors"
	"fmt"
)

// ErrorCode represents specific error conditions in the workflow engine
type ErrorCode int

const (
	// No error occurred
	ErrCodeNone ErrorCode = iota
	// Action is not legal from the current state for the calling role
	ErrCodeInvalidTransition
	// Caller's role lacks current edit/sign rights
	ErrCodePermissionDenied
	// Role already signed and re-signing is not permitted
	ErrCodeAlreadySigned
	// Submission is rejected and only resubmission is accepted
	ErrCodeAlreadyRejected
	// Optimistic concurrency retries were exhausted
	ErrCodeConcurrentModification
	// Submission id is unknown
	ErrCodeNotFound
	// Request is malformed (unknown role, missing signature or reason)
	ErrCodeInvalidInput
)

func (c ErrorCode) String() string {
	switch c {
	case ErrCodeNone:
		return "none"
	case ErrCodeInvalidTransition:
		return "invalid_transition"
	case ErrCodePermissionDenied:
		return "permission_denied"
	case ErrCodeAlreadySigned:
		return "already_signed"
	case ErrCodeAlreadyRejected:
		return "already_rejected"
	case ErrCodeConcurrentModification:
		return "concurrent_modification"
	case ErrCodeNotFound:
		return "not_found"
	case ErrCodeInvalidInput:
		return "invalid_input"
	default:
		return fmt.Sprintf("error_code(%d)", int(c))
	}
}

// Sentinel errors. Every *WorkflowError matches exactly one of these with errors.Is.
var (
	ErrInvalidTransition      = errors.New("invalid transition")
	ErrPermissionDenied       = errors.New("permission denied")
	ErrAlreadySigned          = errors.New("already signed")
	ErrAlreadyRejected        = errors.New("submission is rejected")
	ErrConcurrentModification = errors.New("concurrent modification")
	ErrNotFound               = errors.New("submission not found")
	ErrInvalidInput           = errors.New("invalid input")
)

// Store-level errors returned by Store implementations.
var (
	// ErrVersionConflict is returned by Store.Update when the stored version
	// no longer matches the expected one.
	ErrVersionConflict = errors.New("version conflict")
	// ErrAlreadyExists is returned by Store.Create for a duplicate id.
	ErrAlreadyExists = errors.New("submission already exists")
)

var sentinels = map[ErrorCode]error{
	ErrCodeInvalidTransition:      ErrInvalidTransition,
	ErrCodePermissionDenied:       ErrPermissionDenied,
	ErrCodeAlreadySigned:          ErrAlreadySigned,
	ErrCodeAlreadyRejected:        ErrAlreadyRejected,
	ErrCodeConcurrentModification: ErrConcurrentModification,
	ErrCodeNotFound:               ErrNotFound,
	ErrCodeInvalidInput:           ErrInvalidInput,
}

// WorkflowError is the typed error returned by every Engine operation
type WorkflowError struct {
	Code         ErrorCode
	Op           string
	SubmissionID string
	Role         Role
	Status       Status
	Message      string
	Err          error
}

func (e *WorkflowError) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Code, e.Message)
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.SubmissionID != "" {
		msg += fmt.Sprintf(" [submission=%s]", e.SubmissionID)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Is matches the sentinel error for the code.
func (e *WorkflowError) Is(target error) bool {
	sentinel, ok := sentinels[e.Code]
	return ok && sentinel == target
}

func (e *WorkflowError) Unwrap() error {
	return e.Err
}

// withOp returns a copy of the error annotated with the operation and submission.
func (e *WorkflowError) withOp(op, submissionID string) *WorkflowError {
	cp := *e
	if cp.Op == "" {
		cp.Op = op
	}
	if cp.SubmissionID == "" {
		cp.SubmissionID = submissionID
	}
	return &cp
}

// NewInvalidTransitionError creates an error for an action that is not legal
// from the given status for the given role
func NewInvalidTransitionError(status Status, role Role, action Action) *WorkflowError {
	return &WorkflowError{
		Code:    ErrCodeInvalidTransition,
		Role:    role,
		Status:  status,
		Message: fmt.Sprintf("%s cannot %s a submission in state %s", role.DisplayName(), action, status),
	}
}

// NewPermissionDeniedError creates an error for a role without current rights
func NewPermissionDeniedError(status Status, role Role, reason string) *WorkflowError {
	return &WorkflowError{
		Code:    ErrCodePermissionDenied,
		Role:    role,
		Status:  status,
		Message: reason,
	}
}

// NewAlreadySignedError creates an error for a repeated approval
func NewAlreadySignedError(status Status, role Role) *WorkflowError {
	return &WorkflowError{
		Code:    ErrCodeAlreadySigned,
		Role:    role,
		Status:  status,
		Message: fmt.Sprintf("%s has already signed", role.DisplayName()),
	}
}

// NewAlreadyRejectedError creates an error for a mutation against a rejected submission
func NewAlreadyRejectedError(role Role, action Action) *WorkflowError {
	return &WorkflowError{
		Code:    ErrCodeAlreadyRejected,
		Role:    role,
		Status:  StatusRejected,
		Message: fmt.Sprintf("cannot %s a rejected submission; it must be resubmitted first", action),
	}
}

// NewConcurrentModificationError creates an error for exhausted optimistic retries
func NewConcurrentModificationError(submissionID string, attempts int, err error) *WorkflowError {
	return &WorkflowError{
		Code:         ErrCodeConcurrentModification,
		SubmissionID: submissionID,
		Message:      fmt.Sprintf("gave up after %d attempts", attempts),
		Err:          err,
	}
}

// NewNotFoundError creates an error for an unknown submission
func NewNotFoundError(submissionID string) *WorkflowError {
	return &WorkflowError{
		Code:         ErrCodeNotFound,
		SubmissionID: submissionID,
		Message:      "no such submission",
	}
}

// NewInvalidInputError creates an error for a malformed request
func NewInvalidInputError(message string) *WorkflowError {
	return &WorkflowError{
		Code:    ErrCodeInvalidInput,
		Message: message,
	}
}

// IsInvalidTransition reports whether err is an InvalidTransition error
func IsInvalidTransition(err error) bool {
	return errors.Is(err, ErrInvalidTransition)
}

// IsPermissionDenied reports whether err is a PermissionDenied error
func IsPermissionDenied(err error) bool {
	return errors.Is(err, ErrPermissionDenied)
}

// IsAlreadySigned reports whether err is an AlreadySigned error
func IsAlreadySigned(err error) bool {
	return errors.Is(err, ErrAlreadySigned)
}

// IsAlreadyRejected reports whether err is an AlreadyRejected error
func IsAlreadyRejected(err error) bool {
	return errors.Is(err, ErrAlreadyRejected)
}

// IsConcurrentModification reports whether err is a ConcurrentModification error
func IsConcurrentModification(err error) bool {
	return errors.Is(err, ErrConcurrentModification)
}

// IsNotFound reports whether err is a NotFound error
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// GetErrorCode returns the error code for known error types
func GetErrorCode(err error) ErrorCode {
	var wfErr *WorkflowError
	if errors.As(err, &wfErr) {
		return wfErr.Code
	}
	for code, sentinel := range sentinels {
		if errors.Is(err, sentinel) {
			return code
		}
	}
	return ErrCodeNone
}

// ConfigurationError represents engine configuration issues
type ConfigurationError struct {
	Component string
	Issue     string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration error in %s: %s", e.Component, e.Issue)
}

// NewConfigurationError creates a new configuration error
func NewConfigurationError(component, issue string) *ConfigurationError {
	return &ConfigurationError{
		Component: component,
		Issue:     issue,
	}
}

// IsConfigurationError checks if an error is a ConfigurationError
func IsConfigurationError(err error) bool {
	var cfgErr *ConfigurationError
	return errors.As(err, &cfgErr)
}
