package errors

import (
	"errors"
)

// Sentinel errors for different categories
var (
	// ErrSchema - malformed client request (HTTP 400)
	ErrSchema = errors.New("schema error")

	// ErrInvalidInput - invalid input outside the request schema, e.g. bad tool arguments
	ErrInvalidInput = errors.New("invalid input")

	// ErrNotFound - resource not found
	ErrNotFound = errors.New("not found")

	// ErrConflict - resource busy, e.g. a session already running a request
	ErrConflict = errors.New("conflict")

	// ErrTransient - transient error, safe to retry or fall back
	ErrTransient = errors.New("transient error")

	// ErrUnexpectedUpstream - provider produced an unusable stream
	ErrUnexpectedUpstream = errors.New("unexpected upstream response")

	// ErrRunFailed - model generation or tool execution aborted an agent run
	ErrRunFailed = errors.New("run failed")

	// ErrToolInvocation - a single tool failed; reported back to the model
	ErrToolInvocation = errors.New("tool invocation failed")

	// ErrInternal - internal error
	ErrInternal = errors.New("internal error")
)
