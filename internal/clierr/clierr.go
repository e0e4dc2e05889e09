// Package clierr defines the typed errors returned by publish commands.
//
// Every failure carries a Kind so callers can branch on the cause instead of
// parsing text. The process exit code is 1 for every kind.
package clierr

import (
	"errors"
	"fmt"
)

// Kind classifies a failure.
type Kind string

const (
	// Usage covers bad arguments and invalid configuration.
	Usage Kind = "usage"
	// Validation covers failed preconditions checked before any mutation.
	Validation Kind = "validation"
	// Mutation covers failures while rewriting manifests, syncing files or
	// creating the local commit and tag.
	Mutation Kind = "mutation"
	// Network covers push and remote verification failures.
	Network Kind = "network"
	// Canceled covers a declined confirmation or an interrupted run.
	Canceled Kind = "canceled"
)

// Error is a classified CLI error.
type Error struct {
	Kind    Kind
	Message string
	Err     error
	Details map[string]any
}

// New creates an Error with a fixed message.
func New(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Message: msg}
}

// Newf creates an Error with a formatted message.
func Newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a kind and message to an underlying error.
func Wrap(kind Kind, err error, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Err: err}
}

// WithDetails attaches structured details and returns the same error.
func (e *Error) WithDetails(details map[string]any) *Error {
	e.Details = details
	return e
}

func (e *Error) Error() string {
	if e.Err == nil {
		return e.Message
	}
	if e.Message == "" {
		return e.Err.Error()
	}
	return e.Message + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// ExitCode returns the process exit status for the error.
func (e *Error) ExitCode() int {
	return 1
}

// KindOf returns the kind of the first *Error in err's chain, or "" when
// err carries no classification.
func KindOf(err error) Kind {
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Kind
	}
	return ""
}

// Is reports whether err is classified with kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}
