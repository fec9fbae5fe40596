package engine

import (
	"errors"
	"fmt"
)

// Error is a failure detected by the orchestrator.
//
// Error includes structured fields so callers can tell an ownership
// violation from any other I/O failure without parsing messages.
type Error struct {
	// Code identifies the error category.
	Code ErrorCode

	// Message is a human-readable description.
	Message string

	// Token identifies the Changeset being drained, if any.
	Token string

	// Path is the file the failure concerns.
	Path string

	// Generator is the ref path of the generator involved, if any.
	Generator string

	// Err is the underlying cause.
	Err error
}

// ErrorCode categorizes orchestrator errors.
type ErrorCode string

const (
	// ErrCodeOwnershipViolation indicates a write targeted a file that
	// exists without an owned header.
	ErrCodeOwnershipViolation ErrorCode = "OWNERSHIP_VIOLATION"

	// ErrCodeNoAccessor indicates no header accessor handles the file type.
	ErrCodeNoAccessor ErrorCode = "NO_ACCESSOR"

	// ErrCodeWriteConflict indicates another open Changeset already wrote
	// the destination.
	ErrCodeWriteConflict ErrorCode = "WRITE_CONFLICT"

	// ErrCodeAPIReleased indicates a capability object was used after its
	// map or reduce call returned.
	ErrCodeAPIReleased ErrorCode = "API_RELEASED"

	// ErrCodeChangesetClosed indicates Add on a closed Changeset.
	ErrCodeChangesetClosed ErrorCode = "CHANGESET_CLOSED"

	// ErrCodeStepsExceeded indicates a Changeset hit its chain-length limit.
	ErrCodeStepsExceeded ErrorCode = "STEPS_EXCEEDED"

	// ErrCodeCycleDetected indicates the revisit guard skipped a map.
	ErrCodeCycleDetected ErrorCode = "CYCLE_DETECTED"

	// ErrCodeDirtyTree indicates check was run on a dirty working tree.
	ErrCodeDirtyTree ErrorCode = "DIRTY_TREE"

	// ErrCodeChangeSource indicates the change source failed.
	ErrCodeChangeSource ErrorCode = "CHANGE_SOURCE"

	// ErrCodeGeneratorLoad indicates a generator ref could not be resolved.
	ErrCodeGeneratorLoad ErrorCode = "GENERATOR_LOAD"
)

// Error implements the error interface.
func (e *Error) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Code, e.Message)
	if e.Path != "" {
		msg += fmt.Sprintf(" (path=%s)", e.Path)
	}
	if e.Generator != "" {
		msg += fmt.Sprintf(" (generator=%s)", e.Generator)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// HasCode reports whether err wraps an *Error with the given code.
func HasCode(err error, code ErrorCode) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Code == code
	}
	return false
}

// IsOwnershipError returns true if err is an ownership violation.
func IsOwnershipError(err error) bool {
	return HasCode(err, ErrCodeOwnershipViolation)
}

// IsNoAccessorError returns true if no header syntax handles the file type.
func IsNoAccessorError(err error) bool {
	return HasCode(err, ErrCodeNoAccessor)
}

// IsReleasedError returns true if err comes from a released capability object.
func IsReleasedError(err error) bool {
	return HasCode(err, ErrCodeAPIReleased)
}

// IsQuotaError returns true if the error is a chain-length error.
// Matches both Error with ErrCodeStepsExceeded and StepsExceededError.
func IsQuotaError(err error) bool {
	if HasCode(err, ErrCodeStepsExceeded) {
		return true
	}
	var se *StepsExceededError
	return errors.As(err, &se)
}

// IsDirtyTreeError returns true if check refused to run on a dirty tree.
func IsDirtyTreeError(err error) bool {
	return HasCode(err, ErrCodeDirtyTree)
}

func newOwnershipError(path, generator string) *Error {
	return &Error{
		Code:      ErrCodeOwnershipViolation,
		Message:   "refusing to overwrite a file macrome does not own",
		Path:      path,
		Generator: generator,
	}
}

func newReleasedError(method, generator string) *Error {
	return &Error{
		Code:      ErrCodeAPIReleased,
		Message:   fmt.Sprintf("%s called after the generator call returned", method),
		Generator: generator,
	}
}
