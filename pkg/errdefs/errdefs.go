// Package errdefs defines the stable error kinds surfaced by Cadre components.
//
// Every error returned across a component boundary wraps exactly one of the
// sentinel kinds below, so callers can branch with errors.Is regardless of
// the human-readable message. The CLI maps kinds onto exit codes.
package errdefs

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidArgument marks malformed enums, out-of-range sizes, and
	// missing required fields.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrNotFound marks lookups of unknown agent/team/document/handoff ids.
	ErrNotFound = errors.New("not found")

	// ErrPermissionDenied marks ACL or handoff-ownership violations.
	ErrPermissionDenied = errors.New("permission denied")

	// ErrPolicyDenied marks control-plane policy rejections.
	ErrPolicyDenied = errors.New("policy denied")

	// ErrResourceExhausted marks insufficient resources or pool capacity
	// after auto-scale.
	ErrResourceExhausted = errors.New("resource exhausted")

	// ErrPrecondition marks state-machine violations, e.g. accepting a
	// handoff that is not pending.
	ErrPrecondition = errors.New("precondition failed")

	// ErrTimeout marks expired waits on synchronization primitives and steps.
	ErrTimeout = errors.New("timeout")

	// ErrValidation marks a handoff validator returning non-passing.
	ErrValidation = errors.New("validation failed")

	// ErrFatal marks persistence I/O failures and unrecoverable invariant
	// violations.
	ErrFatal = errors.New("fatal")
)

func wrap(kind error, format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", kind, fmt.Sprintf(format, args...))
}

// InvalidArgument returns an ErrInvalidArgument with a formatted message
func InvalidArgument(format string, args ...interface{}) error {
	return wrap(ErrInvalidArgument, format, args...)
}

// NotFound returns an ErrNotFound with a formatted message
func NotFound(format string, args ...interface{}) error {
	return wrap(ErrNotFound, format, args...)
}

// PermissionDenied returns an ErrPermissionDenied with a formatted message
func PermissionDenied(format string, args ...interface{}) error {
	return wrap(ErrPermissionDenied, format, args...)
}

// PolicyDenied returns an ErrPolicyDenied with a formatted message
func PolicyDenied(format string, args ...interface{}) error {
	return wrap(ErrPolicyDenied, format, args...)
}

// ResourceExhausted returns an ErrResourceExhausted with a formatted message
func ResourceExhausted(format string, args ...interface{}) error {
	return wrap(ErrResourceExhausted, format, args...)
}

// Precondition returns an ErrPrecondition with a formatted message
func Precondition(format string, args ...interface{}) error {
	return wrap(ErrPrecondition, format, args...)
}

// Timeout returns an ErrTimeout with a formatted message
func Timeout(format string, args ...interface{}) error {
	return wrap(ErrTimeout, format, args...)
}

// Validation returns an ErrValidation with a formatted message
func Validation(format string, args ...interface{}) error {
	return wrap(ErrValidation, format, args...)
}

// Fatal returns an ErrFatal with a formatted message
func Fatal(format string, args ...interface{}) error {
	return wrap(ErrFatal, format, args...)
}

// Kind returns the sentinel kind wrapped by err, or nil when err carries none
func Kind(err error) error {
	for _, kind := range []error{
		ErrInvalidArgument, ErrNotFound, ErrPermissionDenied, ErrPolicyDenied,
		ErrResourceExhausted, ErrPrecondition, ErrTimeout, ErrValidation,
		ErrFatal,
	} {
		if errors.Is(err, kind) {
			return kind
		}
	}
	return nil
}
