// Package errors defines the failure taxonomy shared by the assistant core.
//
// Failures below the orchestrator are always converted to values before they
// reach the caller; these types carry enough structure to do that mapping in
// one place.
package errors

import (
	"errors"
	"fmt"
)

// Kind is the stable category reported to callers in ActionResult.ErrorKind.
type Kind string

const (
	KindAuthFailure    Kind = "AuthFailure"
	KindNoRefreshToken Kind = "NoRefreshToken"
	KindRefreshFailed  Kind = "RefreshFailed"
	KindClassification Kind = "ClassificationFailure"
	KindProvider       Kind = "DownstreamProviderError"
	KindUnknownAction  Kind = "UnknownAction"
	KindOrchestrator   Kind = "OrchestratorFault"
	KindTimeout        Kind = "Timeout"
	KindRateLimited    Kind = "RateLimited"
)

// Error attaches a Kind to an underlying cause.
type Error struct {
	Kind Kind
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return string(e.Kind)
	}
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// New wraps err with a Kind. A nil err produces an error carrying only the kind.
func New(kind Kind, err error) *Error {
	return &Error{Kind: kind, Err: err}
}

// Newf wraps a formatted message with a Kind.
func Newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Err: fmt.Errorf(format, args...)}
}

// KindOf extracts the Kind from err, classifying unknown errors by shape.
// Unrecognized errors default to the downstream-provider category.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var typed *Error
	if errors.As(err, &typed) {
		return typed.Kind
	}
	if IsTimeout(err) {
		return KindTimeout
	}
	if status := HTTPStatus(err); status == 429 {
		return KindRateLimited
	}
	return KindProvider
}

// Is reports whether err carries the given kind anywhere in its chain.
func Is(err error, kind Kind) bool {
	var typed *Error
	if errors.As(err, &typed) {
		return typed.Kind == kind
	}
	return false
}
