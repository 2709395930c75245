package errors

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// OpenAI error envelope types.
const (
	TypeInvalidRequest = "invalid_request_error"
	TypeNotFound       = "not_found_error"
	TypeConflict       = "conflict_error"
	TypeInternal       = "internal_error"
)

// ErrorMapper classifies errors for transport and retry decisions.
type ErrorMapper interface {
	MapError(err error) error
	IsRetryable(err error) bool
	Category(err error) string
}

type DefaultErrorMapper struct{}

func NewDefaultErrorMapper() *DefaultErrorMapper {
	return &DefaultErrorMapper{}
}

// MapError maps provider and transport errors onto the taxonomy. Errors that
// already carry a category are returned unchanged.
func (m *DefaultErrorMapper) MapError(err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, context.Canceled) || m.Category(err) != "Unknown" {
		return err
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("request timeout: %w: %w", ErrTransient, err)
	}

	errStr := strings.ToLower(err.Error())

	switch {
	case strings.Contains(errStr, "not found"), strings.Contains(errStr, "does not exist"):
		return fmt.Errorf("resource not found: %w: %w", ErrNotFound, err)

	case strings.Contains(errStr, "rate limit"), strings.Contains(errStr, "quota"), strings.Contains(errStr, "too many requests"),
		strings.Contains(errStr, "overloaded"), strings.Contains(errStr, "unavailable"):
		return fmt.Errorf("rate limited: %w: %w", ErrTransient, err)

	case strings.Contains(errStr, "timeout"), strings.Contains(errStr, "deadline exceeded"):
		return fmt.Errorf("request timeout: %w: %w", ErrTransient, err)

	case strings.Contains(errStr, "network"), strings.Contains(errStr, "connection"), strings.Contains(errStr, "unreachable"):
		return fmt.Errorf("network error: %w: %w", ErrTransient, err)

	case strings.Contains(errStr, "invalid request"), strings.Contains(errStr, "bad request"):
		return fmt.Errorf("invalid request: %w: %w", ErrInvalidInput, err)

	default:
		return fmt.Errorf("internal error: %w: %w", ErrInternal, err)
	}
}

func (m *DefaultErrorMapper) IsRetryable(err error) bool {
	return IsRetryable(err)
}

// Category returns the sentinel name an error belongs to.
func (m *DefaultErrorMapper) Category(err error) string {
	if err == nil {
		return ""
	}

	switch {
	case errors.Is(err, ErrSchema):
		return "ErrSchema"
	case errors.Is(err, ErrUnexpectedUpstream):
		return "ErrUnexpectedUpstream"
	case errors.Is(err, ErrToolInvocation):
		return "ErrToolInvocation"
	case errors.Is(err, ErrInvalidInput):
		return "ErrInvalidInput"
	case errors.Is(err, ErrNotFound):
		return "ErrNotFound"
	case errors.Is(err, ErrConflict):
		return "ErrConflict"
	case errors.Is(err, ErrTransient):
		return "ErrTransient"
	case errors.Is(err, ErrRunFailed):
		return "ErrRunFailed"
	case errors.Is(err, ErrInternal):
		return "ErrInternal"
	default:
		return "Unknown"
	}
}

// HTTPStatus maps an error to the status code returned to API clients.
func HTTPStatus(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrRunFailed), errors.Is(err, ErrUnexpectedUpstream):
		return http.StatusInternalServerError
	case errors.Is(err, ErrSchema), errors.Is(err, ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrConflict):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// WireType maps an error to the OpenAI error envelope "type" field.
func WireType(err error) string {
	switch HTTPStatus(err) {
	case http.StatusBadRequest:
		return TypeInvalidRequest
	case http.StatusNotFound:
		return TypeNotFound
	case http.StatusConflict:
		return TypeConflict
	default:
		return TypeInternal
	}
}

// Wrap wraps an error with context
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}

	return fmt.Errorf("%s: %w", message, err)
}

// WrapWithCategory wraps an error with a category while keeping the cause reachable
func WrapWithCategory(err error, message string, category error) error {
	if err == nil {
		return nil
	}

	return fmt.Errorf("%s: %w: %w", message, category, err)
}

func IsCategory(err error, category error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, category)
}

// Schema reports a malformed client request
func Schema(message string) error {
	return fmt.Errorf("%s: %w", message, ErrSchema)
}

func NotFound(message string) error {
	return fmt.Errorf("%s: %w", message, ErrNotFound)
}

func InvalidInput(message string) error {
	return fmt.Errorf("%s: %w", message, ErrInvalidInput)
}

func Conflict(message string) error {
	return fmt.Errorf("%s: %w", message, ErrConflict)
}

func Transient(message string) error {
	return fmt.Errorf("%s: %w", message, ErrTransient)
}

func Internal(message string) error {
	return fmt.Errorf("%s: %w", message, ErrInternal)
}

func UnexpectedUpstream(message string) error {
	return fmt.Errorf("%s: %w", message, ErrUnexpectedUpstream)
}

// RunFailed marks cause as having aborted an agent run. Both ErrRunFailed and
// cause stay matchable with errors.Is.
func RunFailed(cause error) error {
	if cause == nil {
		return nil
	}
	if errors.Is(cause, ErrRunFailed) {
		return cause
	}
	return fmt.Errorf("%w: %w", ErrRunFailed, cause)
}

// ToolInvocation marks a single tool failure.
func ToolInvocation(tool string, cause error) error {
	return fmt.Errorf("tool %s: %w: %w", tool, ErrToolInvocation, cause)
}

// IsRetryable checks if an error is transient or conflict related
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	return errors.Is(err, ErrTransient) || errors.Is(err, ErrConflict)
}
