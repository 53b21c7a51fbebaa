// Package domain holds the provider-neutral message, stream and directive model
// shared by every stage of the relay pipeline, plus the canonical error type.
package domain

import (
	"errors"
	"fmt"
	"net/http"
)

// APIType identifies an upstream wire protocol.
type APIType string

const (
	APITypeOpenAI APIType = "openai"
	APITypeGemini APIType = "gemini"
)

// ErrorType represents the category of an API error.
type ErrorType string

const (
	ErrorTypeInvalidRequest ErrorType = "invalid_request"
	ErrorTypeAuthentication ErrorType = "authentication"
	ErrorTypePermission     ErrorType = "permission"
	ErrorTypeNotFound       ErrorType = "not_found"
	ErrorTypeRateLimit      ErrorType = "rate_limit"
	ErrorTypeOverloaded     ErrorType = "overloaded"
	ErrorTypeServer         ErrorType = "server"
)

// ErrorCode provides additional specificity beyond the error type.
type ErrorCode string

const (
	ErrorCodeRateLimitExceeded ErrorCode = "rate_limit_exceeded"
	ErrorCodeInvalidAPIKey     ErrorCode = "invalid_api_key"
	ErrorCodeModelNotFound     ErrorCode = "model_not_found"
)

// ErrMissingCredential is returned when a provider is constructed without its API key.
var ErrMissingCredential = errors.New("missing credential")

// MissingCredential names the configuration key and environment variable that must be set.
func MissingCredential(provider, configKey, envVar string) error {
	return fmt.Errorf("%s: %w: set %s (or %s)", provider, ErrMissingCredential, configKey, envVar)
}

// APIError is a transport-level failure reported by an upstream provider.
// It is the only error class the relay treats as fatal for a turn.
type APIError struct {
	Type    ErrorType `json:"type"`
	Code    ErrorCode `json:"code,omitempty"`
	Message string    `json:"message"`

	// StatusCode is the upstream HTTP status.
	StatusCode int `json:"-"`

	// Body is the raw upstream response body.
	Body string `json:"-"`

	SourceAPI APIType `json:"-"`
}

// Error implements the error interface.
func (e *APIError) Error() string {
	prefix := string(e.Type)
	if e.SourceAPI != "" {
		prefix = string(e.SourceAPI) + " " + prefix
	}
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s (status %d): %s", prefix, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("%s: %s", prefix, e.Message)
}

// HTTPStatusCode returns the appropriate HTTP status code for this error.
func (e *APIError) HTTPStatusCode() int {
	switch e.Type {
	case ErrorTypeInvalidRequest:
		return http.StatusBadRequest
	case ErrorTypeAuthentication:
		return http.StatusUnauthorized
	case ErrorTypePermission:
		return http.StatusForbidden
	case ErrorTypeNotFound:
		return http.StatusNotFound
	case ErrorTypeRateLimit:
		return http.StatusTooManyRequests
	case ErrorTypeOverloaded:
		return http.StatusServiceUnavailable
	default:
		return http.StatusBadGateway
	}
}

// NewUpstreamError maps a non-success upstream response to an APIError.
// message is the provider's own error text when it could be parsed, else the body.
func NewUpstreamError(api APIType, status int, body []byte, message string) *APIError {
	if message == "" {
		message = string(body)
	}
	e := &APIError{
		Type:       errorTypeForStatus(status),
		Message:    message,
		StatusCode: status,
		Body:       string(body),
		SourceAPI:  api,
	}
	switch status {
	case http.StatusUnauthorized:
		e.Code = ErrorCodeInvalidAPIKey
	case http.StatusNotFound:
		e.Code = ErrorCodeModelNotFound
	case http.StatusTooManyRequests:
		e.Code = ErrorCodeRateLimitExceeded
	}
	return e
}

func errorTypeForStatus(status int) ErrorType {
	switch {
	case status == http.StatusBadRequest, status == http.StatusUnprocessableEntity:
		return ErrorTypeInvalidRequest
	case status == http.StatusUnauthorized:
		return ErrorTypeAuthentication
	case status == http.StatusForbidden:
		return ErrorTypePermission
	case status == http.StatusNotFound:
		return ErrorTypeNotFound
	case status == http.StatusTooManyRequests:
		return ErrorTypeRateLimit
	case status == http.StatusServiceUnavailable, status == 529:
		return ErrorTypeOverloaded
	default:
		return ErrorTypeServer
	}
}

// ErrInvalidRequest creates an invalid request error.
func ErrInvalidRequest(message string) *APIError {
	return &APIError{Type: ErrorTypeInvalidRequest, Message: message}
}

// ErrRateLimit creates a rate limit error.
func ErrRateLimit(message string) *APIError {
	return &APIError{Type: ErrorTypeRateLimit, Code: ErrorCodeRateLimitExceeded, Message: message}
}
