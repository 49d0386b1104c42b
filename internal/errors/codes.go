// Package errors defines planboard's typed errors and their HTTP mapping.
package errors

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// ErrorCode represents application-specific error codes.
type ErrorCode string

const (
	// General errors
	ErrorCodeUnknown        ErrorCode = "UNKNOWN"
	ErrorCodeInvalidRequest ErrorCode = "INVALID_REQUEST"
	ErrorCodeInternalError  ErrorCode = "INTERNAL_ERROR"
	ErrorCodeRateLimited    ErrorCode = "RATE_LIMITED"
	ErrorCodeNotFound       ErrorCode = "NOT_FOUND"

	// Dataset errors
	ErrorCodeNoConsolidatedFiles ErrorCode = "NO_CONSOLIDATED_FILES"
	ErrorCodeInvalidDataset      ErrorCode = "INVALID_DATASET"

	// Pipeline errors
	ErrorCodeScrapeFailed  ErrorCode = "SCRAPE_FAILED"
	ErrorCodeLLMRequest    ErrorCode = "LLM_REQUEST"
	ErrorCodeLLMParse      ErrorCode = "LLM_PARSE"
	ErrorCodePublishFailed ErrorCode = "PUBLISH_FAILED"
)

// PlanError represents a structured error with code and context.
type PlanError struct {
	Code    ErrorCode
	Message string
	Details map[string]interface{}
	Cause   error
}

// Error implements the error interface
func (e *PlanError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

// Unwrap returns the underlying error
func (e *PlanError) Unwrap() error {
	return e.Cause
}

// HTTPStatus maps the error code to an HTTP status.
func (e *PlanError) HTTPStatus() int {
	return StatusForCode(e.Code)
}

// WithDetail adds a detail to the error
func (e *PlanError) WithDetail(key string, value interface{}) *PlanError {
	e.Details[key] = value
	return e
}

// New creates a new PlanError.
func New(code ErrorCode, message string, cause error) *PlanError {
	return &PlanError{
		Code:    code,
		Message: message,
		Details: make(map[string]interface{}),
		Cause:   cause,
	}
}

// StatusForCode maps application codes to HTTP statuses.
func StatusForCode(code ErrorCode) int {
	switch code {
	case ErrorCodeInvalidRequest:
		return http.StatusBadRequest
	case ErrorCodeNotFound:
		return http.StatusNotFound
	case ErrorCodeRateLimited:
		return http.StatusTooManyRequests
	case ErrorCodeNoConsolidatedFiles:
		return http.StatusServiceUnavailable
	case ErrorCodeLLMRequest:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// CodeOf returns the code of the first PlanError in err's chain.
func CodeOf(err error) ErrorCode {
	if err == nil {
		return ErrorCodeUnknown
	}
	var pe *PlanError
	if errors.As(err, &pe) {
		return pe.Code
	}
	return ErrorCodeInternalError
}

// Is reports whether err carries the given code.
func Is(err error, code ErrorCode) bool {
	var pe *PlanError
	return errors.As(err, &pe) && pe.Code == code
}

// Convenience constructors for common errors

func InvalidRequest(message string) *PlanError {
	return New(ErrorCodeInvalidRequest, message, nil)
}

func NoConsolidatedFiles(dirs []string) *PlanError {
	return New(ErrorCodeNoConsolidatedFiles,
		fmt.Sprintf("No consolidated files found in %s", strings.Join(dirs, " or ")), nil).
		WithDetail("searched", dirs)
}

func InvalidDataset(path string, cause error) *PlanError {
	return New(ErrorCodeInvalidDataset, fmt.Sprintf("invalid consolidated file %s", path), cause).
		WithDetail("path", path)
}

func Internal(message string, cause error) *PlanError {
	return New(ErrorCodeInternalError, message, cause)
}

func ScrapeFailed(carrier, scenario string, cause error) *PlanError {
	return New(ErrorCodeScrapeFailed, fmt.Sprintf("scrape %s/%s failed", carrier, scenario), cause).
		WithDetail("carrier", carrier).
		WithDetail("scenario", scenario)
}

func LLMRequest(provider string, status int, cause error) *PlanError {
	return New(ErrorCodeLLMRequest, fmt.Sprintf("%s request failed with status %d", provider, status), cause).
		WithDetail("provider", provider).
		WithDetail("status", status)
}

func LLMParse(message string, cause error) *PlanError {
	return New(ErrorCodeLLMParse, message, cause)
}

func PublishFailed(step string, cause error) *PlanError {
	return New(ErrorCodePublishFailed, fmt.Sprintf("git %s failed", step), cause).
		WithDetail("step", step)
}
