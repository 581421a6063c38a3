// Package errors provides custom error types for the photosync system.
// These errors enable programmatic error checking throughout the engine:
// retry policies key off IsTransient, conflict conversion keys off
// IsPermanent, and optimistic-write loops key off IsVersionConflict.
package errors

import (
	"errors"
	"fmt"
	"time"
)

// New returns an error that formats as the given text.
// It's an alias for the standard library errors.New for convenience.
var New = errors.New

// Is reports whether any error in err's tree matches target.
// It's an alias for the standard library errors.Is for convenience.
var Is = errors.Is

// As finds the first error in err's tree that matches target.
// It's an alias for the standard library errors.As for convenience.
var As = errors.As

// Common sentinel errors for the photosync system
var (
	// ErrNotFound indicates that a requested record was not found
	ErrNotFound = errors.New("not found")

	// ErrAlreadyExists indicates that a record already exists
	ErrAlreadyExists = errors.New("already exists")

	// ErrInvalidInput indicates that provided input was invalid
	ErrInvalidInput = errors.New("invalid input")

	// ErrVersionConflict indicates an optimistic write lost against a
	// concurrent modification of the same record
	ErrVersionConflict = errors.New("version conflict")

	// ErrRateLimited indicates that a service rate limit has been exceeded
	ErrRateLimited = errors.New("rate limited")

	// ErrServiceUnavailable indicates that a service is temporarily unavailable
	ErrServiceUnavailable = errors.New("service unavailable")

	// ErrAuthFailed indicates an authorization or policy failure at a service
	ErrAuthFailed = errors.New("authorization failed")

	// ErrCircuitOpen indicates the per-service circuit breaker is open
	ErrCircuitOpen = errors.New("circuit open")

	// ErrStoreUnreachable indicates the record store cannot be reached.
	// This is one of the two fatal run-level conditions.
	ErrStoreUnreachable = errors.New("record store unreachable")

	// ErrCanceled indicates that an operation was canceled
	ErrCanceled = errors.New("operation canceled")

	// ErrReadOnly indicates an attempt to modify a read-only store
	ErrReadOnly = errors.New("read only")
)

// NotFoundError represents an error when a record is not found
type NotFoundError struct {
	Resource string
	ID       string
}

// Error implements the error interface
func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s with ID %s not found", e.Resource, e.ID)
}

// Is implements errors.Is support
func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

// NewNotFoundError creates a new NotFoundError
func NewNotFoundError(resource, id string) *NotFoundError {
	return &NotFoundError{Resource: resource, ID: id}
}

// ValidationError represents a schema violation. Writes carrying an invalid
// record are rejected and the stored entity is left unchanged.
type ValidationError struct {
	Field   string
	Value   interface{}
	Message string
}

// Error implements the error interface
func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("validation failed for field %s: %s", e.Field, e.Message)
	}
	return fmt.Sprintf("validation failed: %s", e.Message)
}

// Is implements errors.Is support
func (e *ValidationError) Is(target error) bool {
	return target == ErrInvalidInput
}

// NewValidationError creates a new ValidationError
func NewValidationError(field string, value interface{}, message string) *ValidationError {
	return &ValidationError{Field: field, Value: value, Message: message}
}

// TransientServiceError represents a network or rate-limit failure from an
// external service. These are retried with backoff up to a maximum attempt
// count.
type TransientServiceError struct {
	Service    string
	Operation  string
	StatusCode int
	RetryAfter time.Duration
	Err        error
}

// Error implements the error interface
func (e *TransientServiceError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("transient error from %s during %s (status %d): %v", e.Service, e.Operation, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("transient error from %s during %s: %v", e.Service, e.Operation, e.Err)
}

// Unwrap implements errors.Unwrap
func (e *TransientServiceError) Unwrap() error {
	return e.Err
}

// Is implements errors.Is support
func (e *TransientServiceError) Is(target error) bool {
	if e.StatusCode == 429 {
		return target == ErrRateLimited || target == ErrServiceUnavailable
	}
	return target == ErrServiceUnavailable
}

// NewTransientServiceError creates a new TransientServiceError
func NewTransientServiceError(service, operation string, statusCode int, err error) *TransientServiceError {
	return &TransientServiceError{
		Service:    service,
		Operation:  operation,
		StatusCode: statusCode,
		Err:        err,
	}
}

// PermanentServiceError represents an authorization or policy failure from an
// external service. These are never silently retried; the replication
// executor converts them into manual conflicts instead.
type PermanentServiceError struct {
	Service   string
	Operation string
	Reason    string
	Err       error
}

// Error implements the error interface
func (e *PermanentServiceError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("permanent error from %s during %s: %s", e.Service, e.Operation, e.Reason)
	}
	return fmt.Sprintf("permanent error from %s during %s: %v", e.Service, e.Operation, e.Err)
}

// Unwrap implements errors.Unwrap
func (e *PermanentServiceError) Unwrap() error {
	return e.Err
}

// Is implements errors.Is support
func (e *PermanentServiceError) Is(target error) bool {
	return target == ErrAuthFailed
}

// NewPermanentServiceError creates a new PermanentServiceError
func NewPermanentServiceError(service, operation, reason string, err error) *PermanentServiceError {
	return &PermanentServiceError{
		Service:   service,
		Operation: operation,
		Reason:    reason,
		Err:       err,
	}
}

// StateTransitionError represents an invalid lifecycle edge. This is a
// programming or integration error, fatal to the operation but never to the
// process.
type StateTransitionError struct {
	PhotoID string
	From    string
	To      string
}

// Error implements the error interface
func (e *StateTransitionError) Error() string {
	return fmt.Sprintf("invalid state transition %s -> %s for photo %s", e.From, e.To, e.PhotoID)
}

// NewStateTransitionError creates a new StateTransitionError
func NewStateTransitionError(photoID, from, to string) *StateTransitionError {
	return &StateTransitionError{PhotoID: photoID, From: from, To: to}
}

// ConcurrentModificationError represents an optimistic version mismatch on a
// record write. Callers reload, re-merge, and retry.
type ConcurrentModificationError struct {
	PhotoID  string
	Expected string
	Actual   string
}

// Error implements the error interface
func (e *ConcurrentModificationError) Error() string {
	return fmt.Sprintf("concurrent modification of photo %s: expected version %s, found %s", e.PhotoID, e.Expected, e.Actual)
}

// Is implements errors.Is support
func (e *ConcurrentModificationError) Is(target error) bool {
	return target == ErrVersionConflict
}

// NewConcurrentModificationError creates a new ConcurrentModificationError
func NewConcurrentModificationError(photoID, expected, actual string) *ConcurrentModificationError {
	return &ConcurrentModificationError{PhotoID: photoID, Expected: expected, Actual: actual}
}

// DuplicateContentError indicates the same content hash was found under two
// distinct photo identities. Handled inside automatic resolution; merging two
// identities is never automatic.
type DuplicateContentError struct {
	ContentHash string
	PhotoIDs    []string
}

// Error implements the error interface
func (e *DuplicateContentError) Error() string {
	return fmt.Sprintf("content hash %s present on multiple photos: %v", e.ContentHash, e.PhotoIDs)
}

// NewDuplicateContentError creates a new DuplicateContentError
func NewDuplicateContentError(contentHash string, photoIDs []string) *DuplicateContentError {
	return &DuplicateContentError{ContentHash: contentHash, PhotoIDs: photoIDs}
}

// ConfigError represents a configuration error
type ConfigError struct {
	Component string
	Message   string
	Err       error
}

// Error implements the error interface
func (e *ConfigError) Error() string {
	if e.Component != "" {
		return fmt.Sprintf("configuration error in %s: %s", e.Component, e.Message)
	}
	return fmt.Sprintf("configuration error: %s", e.Message)
}

// Unwrap implements errors.Unwrap
func (e *ConfigError) Unwrap() error {
	return e.Err
}

// NewConfigError creates a new ConfigError
func NewConfigError(component, message string, err error) *ConfigError {
	return &ConfigError{Component: component, Message: message, Err: err}
}

// IOError represents an error during store I/O operations
type IOError struct {
	Operation string // "read", "write", "create", "delete", "open"
	Path      string
	Err       error
}

// Error implements the error interface
func (e *IOError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("IO error during %s of %s: %v", e.Operation, e.Path, e.Err)
	}
	return fmt.Sprintf("IO error during %s: %v", e.Operation, e.Err)
}

// Unwrap implements errors.Unwrap
func (e *IOError) Unwrap() error {
	return e.Err
}

// NewIOError creates a new IOError
func NewIOError(operation, path string, err error) *IOError {
	return &IOError{Operation: operation, Path: path, Err: err}
}

// Helper functions for error checking

// IsNotFound checks if an error is a not found error
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsValidation checks if an error is a schema validation error
func IsValidation(err error) bool {
	return errors.Is(err, ErrInvalidInput)
}

// IsVersionConflict checks if an error is an optimistic concurrency failure
func IsVersionConflict(err error) bool {
	return errors.Is(err, ErrVersionConflict)
}

// IsTransient checks if an error should be retried with backoff
func IsTransient(err error) bool {
	return errors.Is(err, ErrServiceUnavailable) || errors.Is(err, ErrRateLimited)
}

// IsPermanent checks if an error is a service policy or authorization failure
func IsPermanent(err error) bool {
	return errors.Is(err, ErrAuthFailed)
}

// IsRateLimited checks if an error is a rate limit error
func IsRateLimited(err error) bool {
	return errors.Is(err, ErrRateLimited)
}

// IsCircuitOpen checks if an error came from an open circuit breaker
func IsCircuitOpen(err error) bool {
	return errors.Is(err, ErrCircuitOpen)
}

// IsCanceled checks if an error is a cancellation error
func IsCanceled(err error) bool {
	return errors.Is(err, ErrCanceled)
}

// Helper wrapping functions for common patterns

// WrapValidation wraps an error as a ValidationError
func WrapValidation(field string, err error) error {
	if err == nil {
		return nil
	}
	return &ValidationError{Field: field, Message: err.Error()}
}

// WrapIO wraps an error as an IOError
func WrapIO(operation, path string, err error) error {
	if err == nil {
		return nil
	}
	return NewIOError(operation, path, err)
}
