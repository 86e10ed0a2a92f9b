// Package errors defines the error taxonomy shared by all ENI manager
// components. Errors carry a Kind so that callers (and the polling
// primitive) can dispatch on error class without depending on the
// provider library's own error hierarchy.
package errors

import (
	stderrors "errors"
	"fmt"
)

// Kind identifies a class of failure.
type Kind string

const (
	// KindConnectionFailed means the metadata endpoint stayed unreachable
	// after the retry budget was exhausted.
	KindConnectionFailed Kind = "CONNECTION_FAILED"
	// KindEnvironment means the instance's network identity could not be
	// established, or the instance is not running inside a VPC.
	KindEnvironment Kind = "ENVIRONMENT_ERROR"
	// KindUnknownInterface means an expected interface, attachment, or
	// address was not found.
	KindUnknownInterface Kind = "UNKNOWN_INTERFACE"
	// KindInvalidParameter means malformed or conflicting caller input,
	// an ambiguous resource filter, or a duplicate address.
	KindInvalidParameter Kind = "INVALID_PARAMETER"
	// KindPermission means local privilege is insufficient to mutate
	// network state.
	KindPermission Kind = "PERMISSION_DENIED"
	// KindAWSPermission means the provider rejected the call as
	// unauthorized.
	KindAWSPermission Kind = "AWS_PERMISSION_DENIED"
	// KindTimeout means a bounded wait elapsed before its condition held.
	KindTimeout Kind = "TIMEOUT"
	// KindServiceError is the generic provider service-error class,
	// tolerated while polling for post-mutation convergence.
	KindServiceError Kind = "AWS_SERVICE_ERROR"
	// KindUnknown is reported for errors that carry no Kind.
	KindUnknown Kind = "UNKNOWN"
)

// Error is an error with a Kind and optional structured context.
type Error struct {
	Kind    Kind
	Message string
	Context map[string]interface{}
	Wrapped error
}

// New creates a new Error.
func New(kind Kind, message string, context map[string]interface{}, wrapped error) *Error {
	return &Error{
		Kind:    kind,
		Message: message,
		Context: context,
		Wrapped: wrapped,
	}
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Wrapped != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Kind, e.Message, e.Wrapped)
	}
	return fmt.Sprintf("[%s] %s", e.Kind, e.Message)
}

// Unwrap returns the wrapped error.
func (e *Error) Unwrap() error {
	return e.Wrapped
}

// Is reports whether err or any error in its chain has the given kind.
func Is(err error, kind Kind) bool {
	if err == nil {
		return false
	}

	var appErr *Error
	if stderrors.As(err, &appErr) {
		if appErr.Kind == kind {
			return true
		}
		// The chain may hold a more specific kind below a generic wrapper.
		return Is(appErr.Wrapped, kind)
	}

	return false
}

// KindOf returns the kind of the outermost Error in the chain, or
// KindUnknown when the chain carries none.
func KindOf(err error) Kind {
	if err == nil {
		return KindUnknown
	}

	var appErr *Error
	if stderrors.As(err, &appErr) {
		return appErr.Kind
	}

	return KindUnknown
}
