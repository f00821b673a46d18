// Package domain defines the core domain models for restore points.
package domain

import (
	"errors"
	"fmt"
)

// DomainError represents a restore point error with a structured error code.
// Codes follow the format RP-<AREA>-<NNNN>.
type DomainError struct {
	Code    string // Error code (e.g., "RP-SNAP-4040")
	Message string // Human-readable message
	Details string // Optional additional details
	Cause   error  // Underlying error (if any)
}

// Error implements the error interface.
func (e *DomainError) Error() string {
	msg := fmt.Sprintf("[%s] %s", e.Code, e.Message)
	if e.Details != "" {
		msg += ": " + e.Details
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

// Unwrap returns the underlying error for errors.Unwrap() support.
func (e *DomainError) Unwrap() error {
	return e.Cause
}

// Is implements errors.Is() support for error comparison by code.
func (e *DomainError) Is(target error) bool {
	t, ok := target.(*DomainError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// NewDomainError creates a new DomainError with the given code and message.
func NewDomainError(code, message string) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
	}
}

// WithDetails returns a copy of the error with additional details.
func (e *DomainError) WithDetails(details string) *DomainError {
	return &DomainError{
		Code:    e.Code,
		Message: e.Message,
		Details: details,
		Cause:   e.Cause,
	}
}

// WithCause returns a copy of the error wrapping the given cause.
func (e *DomainError) WithCause(cause error) *DomainError {
	return &DomainError{
		Code:    e.Code,
		Message: e.Message,
		Details: e.Details,
		Cause:   cause,
	}
}

// Wrap wraps an error with this domain error as the cause.
// A nil cause returns nil so call sites can wrap unconditionally.
func (e *DomainError) Wrap(cause error) error {
	if cause == nil {
		return nil
	}
	return e.WithCause(cause)
}

// IsDomainError checks if an error is a DomainError with the given code.
// If code is empty, it only checks if the error is a DomainError.
func IsDomainError(err error, code string) bool {
	var de *DomainError
	if errors.As(err, &de) {
		if code == "" {
			return true
		}
		return de.Code == code
	}
	return false
}

// GetErrorCode extracts the error code from an error if it's a DomainError.
func GetErrorCode(err error) string {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Code
	}
	return ""
}

// ============================================================================
// Storage Errors (STOR)
// ============================================================================

var (
	// ErrUnsupported indicates the host lacks every storage capability the
	// subsystem can use. It is detected once and disables the feature.
	ErrUnsupported = NewDomainError("RP-STOR-5030", "restore points unsupported on this host")

	// ErrTransientIO indicates a single storage operation failed.
	// The subsystem stays usable and the next operation is independent.
	ErrTransientIO = NewDomainError("RP-STOR-5001", "storage operation failed")
)

// ============================================================================
// Manifest and Snapshot Errors (MNFT, SNAP)
// ============================================================================

var (
	// ErrCorruptedManifest indicates the stored manifest could not be parsed
	// or failed validation. Callers recover it to an empty manifest.
	ErrCorruptedManifest = NewDomainError("RP-MNFT-4220", "manifest corrupted")

	// ErrCorruptedSnapshot indicates a restore point listed in the manifest
	// has a missing or unreadable blob. Only that restore point is affected.
	ErrCorruptedSnapshot = NewDomainError("RP-SNAP-4221", "restore point corrupted")

	// ErrNotFound indicates the requested restore point is not in the manifest.
	ErrNotFound = NewDomainError("RP-SNAP-4040", "restore point not found")
)

// ============================================================================
// Migration Errors (MIGR)
// ============================================================================

var (
	// ErrMigration indicates the legacy store is absent or holds no document.
	ErrMigration = NewDomainError("RP-MIGR-4041", "legacy restore point unavailable")
)

// ============================================================================
// Argument Errors (ARG)
// ============================================================================

var (
	// ErrInvalidArgument indicates an invalid id, key or title.
	ErrInvalidArgument = NewDomainError("RP-ARG-1001", "invalid argument")
)
