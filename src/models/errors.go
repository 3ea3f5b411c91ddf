package models

import (
	"errors"
	"fmt"
)

// Domain-level sentinel errors for business logic
// These errors should not contain HTTP-specific information

var (
	// ErrSessionNotFound indicates that no session matches the presented token
	ErrSessionNotFound = errors.New("session not found")

	// ErrEmptyResourceID indicates a task submission without a dialog ID
	ErrEmptyResourceID = errors.New("resource id is required")

	// ErrClientUnavailable indicates the provider client handle for a session
	// could not be restored (missing credentials or configuration)
	ErrClientUnavailable = errors.New("provider client unavailable")

	// ErrDraftNotFound indicates that no draft matches the requested ID
	ErrDraftNotFound = errors.New("draft not found")
)

// AuthenticationError indicates a malformed, unsigned or forged token.
// It is raised before any storage tier is touched.
type AuthenticationError struct {
	Detail string
	Err    error
}

func (e *AuthenticationError) Error() string {
	return "authentication error: " + e.Detail
}

func (e *AuthenticationError) Unwrap() error { return e.Err }

// NewAuthenticationError wraps a token verification failure.
func NewAuthenticationError(detail string, cause error) *AuthenticationError {
	return &AuthenticationError{Detail: detail, Err: cause}
}

// SessionError indicates a cryptographically valid token whose session is
// missing or expired. Callers receive a uniform message regardless of which
// storage tier produced the miss.
type SessionError struct {
	Detail string
	Err    error
}

func (e *SessionError) Error() string {
	return "session error: " + e.Detail
}

func (e *SessionError) Unwrap() error { return e.Err }

// NewSessionError reports an invalid or expired session.
func NewSessionError(detail string, cause error) *SessionError {
	return &SessionError{Detail: detail, Err: cause}
}

// DatabaseError indicates a storage-tier I/O failure that survived retries.
type DatabaseError struct {
	Op  string
	Err error
}

func (e *DatabaseError) Error() string {
	return fmt.Sprintf("database error during %s: %v", e.Op, e.Err)
}

func (e *DatabaseError) Unwrap() error { return e.Err }

// NewDatabaseError wraps a storage failure with the failing operation name.
func NewDatabaseError(op string, cause error) *DatabaseError {
	return &DatabaseError{Op: op, Err: cause}
}

// TaskProcessingError indicates a Processor failure for one dialog task.
type TaskProcessingError struct {
	ResourceID string
	Detail     string
	Err        error
}

func (e *TaskProcessingError) Error() string {
	return fmt.Sprintf("task processing failed for dialog %s: %s", e.ResourceID, e.Detail)
}

func (e *TaskProcessingError) Unwrap() error { return e.Err }

// NewTaskProcessingError wraps a Processor failure.
func NewTaskProcessingError(resourceID, detail string, cause error) *TaskProcessingError {
	return &TaskProcessingError{ResourceID: resourceID, Detail: detail, Err: cause}
}
