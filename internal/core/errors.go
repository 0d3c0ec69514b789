package core

import (
	"errors"
	"fmt"
)

// ErrorCategory classifies errors for handling decisions.
type ErrorCategory string

const (
	ErrCatLock       ErrorCategory = "lock"       // Advisory lock contention or failure
	ErrCatIO         ErrorCategory = "io"         // Filesystem failure
	ErrCatNotFound   ErrorCategory = "not_found"  // Resource not found
	ErrCatState      ErrorCategory = "state"      // Invalid lifecycle transition
	ErrCatValidation ErrorCategory = "validation" // Invalid input
	ErrCatInternal   ErrorCategory = "internal"   // Unexpected internal error
)

// Predefined error codes
const (
	CodeLockUnavailable     = "LOCK_UNAVAILABLE"
	CodeLockIO              = "LOCK_IO"
	CodeRunDirCreate        = "RUN_DIR_CREATE"
	CodeRunDirLock          = "RUN_DIR_LOCK"
	CodeAlreadyInitialized  = "ALREADY_INITIALIZED"
	CodeTriageFailed        = "TRIAGE_FAILED"
	CodeRelocateCollision   = "RELOCATE_COLLISION"
	CodeArchiveEmptySources = "ARCHIVE_EMPTY_SOURCES"
	CodeArchiveFailed       = "ARCHIVE_FAILED"
	CodeRemoveFailed        = "REMOVE_FAILED"
	CodeRegistryReadFailed  = "REGISTRY_READ_FAILED"
	CodeTrashFailed         = "TRASH_FAILED"
	CodeReportWriteFailed   = "REPORT_WRITE_FAILED"
	CodePanicWriteFailed    = "PANIC_WRITE_FAILED"
	CodeConfigInvalid       = "CONFIG_INVALID"
)

// fatalCodes are the failures after which a process cannot safely use its
// run directory.
var fatalCodes = map[string]bool{
	CodeRunDirCreate: true,
	CodeRunDirLock:   true,
	CodeTriageFailed: true,
}

// DomainError represents a structured error from the domain layer.
type DomainError struct {
	Category ErrorCategory
	Code     string
	Message  string
	Op       string
	Path     string
	Cause    error
}

// Error implements the error interface.
func (e *DomainError) Error() string {
	msg := fmt.Sprintf("[%s] %s: %s", e.Category, e.Code, e.Message)
	if e.Path != "" {
		msg += fmt.Sprintf(" '%s'", e.Path)
	}
	if e.Cause != nil {
		msg += fmt.Sprintf(" (%v)", e.Cause)
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *DomainError) Unwrap() error {
	return e.Cause
}

// Is checks if this error matches a target.
func (e *DomainError) Is(target error) bool {
	t, ok := target.(*DomainError)
	if !ok {
		return false
	}
	return e.Category == t.Category && e.Code == t.Code
}

// WithCause wraps an underlying error.
func (e *DomainError) WithCause(cause error) *DomainError {
	e.Cause = cause
	return e
}

// WithPath records the offending path.
func (e *DomainError) WithPath(path string) *DomainError {
	e.Path = path
	return e
}

// WithOp records the operation that failed.
func (e *DomainError) WithOp(op string) *DomainError {
	e.Op = op
	return e
}

// ErrLockUnavailable reports that another holder owns the lock at path.
func ErrLockUnavailable(path string) *DomainError {
	return &DomainError{
		Category: ErrCatLock,
		Code:     CodeLockUnavailable,
		Message:  "lock is held by another process",
		Op:       "lock",
		Path:     path,
	}
}

// ErrIO creates a filesystem error for op on path.
func ErrIO(code, op, path string, cause error) *DomainError {
	return &DomainError{
		Category: ErrCatIO,
		Code:     code,
		Message:  "cannot " + op,
		Op:       op,
		Path:     path,
		Cause:    cause,
	}
}

// ErrState creates a state error.
func ErrState(code, message string) *DomainError {
	return &DomainError{
		Category: ErrCatState,
		Code:     code,
		Message:  message,
	}
}

// ErrValidation creates a validation error.
func ErrValidation(code, message string) *DomainError {
	return &DomainError{
		Category: ErrCatValidation,
		Code:     code,
		Message:  message,
	}
}

// GetCategory extracts the error category.
func GetCategory(err error) ErrorCategory {
	var domErr *DomainError
	if errors.As(err, &domErr) {
		return domErr.Category
	}
	return ErrCatInternal
}

// GetCode extracts the error code, or "" for foreign errors.
func GetCode(err error) string {
	var domErr *DomainError
	if errors.As(err, &domErr) {
		return domErr.Code
	}
	return ""
}

// IsCategory checks if an error belongs to a category.
func IsCategory(err error, cat ErrorCategory) bool {
	return GetCategory(err) == cat
}

// IsLockUnavailable reports whether err means a live peer holds the lock.
func IsLockUnavailable(err error) bool {
	return GetCode(err) == CodeLockUnavailable
}

// IsFatal reports whether err is a startup-fatal failure.
func IsFatal(err error) bool {
	return fatalCodes[GetCode(err)]
}
