package mcp

import (
	"context"
	"errors"
	"fmt"
)

// ErrorKind classifies tool invocation failures.
type ErrorKind string

const (
	KindMissingCredential   ErrorKind = "missing_credential"
	KindUpstreamUnavailable ErrorKind = "upstream_unavailable"
	KindNotFound            ErrorKind = "not_found"
	KindInvalidArgument     ErrorKind = "invalid_argument"
	KindInternal            ErrorKind = "internal"
)

// ToolError is a normalized tool failure carrying its JSON-RPC code.
type ToolError struct {
	Kind    ErrorKind
	Code    int
	Message string
	Err     error
}

func (e *ToolError) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *ToolError) Unwrap() error { return e.Err }

// MissingCredential reports a required credential or setting that was not
// configured.
func MissingCredential(name string) *ToolError {
	return &ToolError{
		Kind:    KindMissingCredential,
		Code:    CodeMissingCredential,
		Message: fmt.Sprintf("missing credential: %s is not configured", name),
	}
}

// Upstream reports a failed or non-successful collaborator call.
func Upstream(err error, format string, args ...any) *ToolError {
	return &ToolError{
		Kind:    KindUpstreamUnavailable,
		Code:    CodeUpstreamError,
		Message: fmt.Sprintf(format, args...),
		Err:     err,
	}
}

// NotFound reports that a collaborator affirmatively has no such record.
func NotFound(format string, args ...any) *ToolError {
	return &ToolError{
		Kind:    KindNotFound,
		Code:    CodeNotFound,
		Message: fmt.Sprintf(format, args...),
	}
}

// InvalidArgument reports a semantically invalid argument.
func InvalidArgument(format string, args ...any) *ToolError {
	return &ToolError{
		Kind:    KindInvalidArgument,
		Code:    CodeInvalidParams,
		Message: fmt.Sprintf(format, args...),
	}
}

// IsKind reports whether err is a ToolError of the given kind.
func IsKind(err error, kind ErrorKind) bool {
	var te *ToolError
	return errors.As(err, &te) && te.Kind == kind
}

// normalize maps any failure escaping a tool into a ToolError.
func normalize(tool string, err error) *ToolError {
	var te *ToolError
	if errors.As(err, &te) {
		return te
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return Upstream(err, "tool %s timed out waiting for upstream", tool)
	}
	if errors.Is(err, context.Canceled) {
		return Upstream(err, "tool %s was cancelled", tool)
	}
	return &ToolError{
		Kind:    KindInternal,
		Code:    CodeToolFailure,
		Message: fmt.Sprintf("tool %s failed", tool),
		Err:     err,
	}
}
