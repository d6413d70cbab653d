package vault

import (
	"encoding/json"
	"fmt"
	"strings"
)

// APIError is a non-2xx response from the secret store, preserving the
// status code and the structured error list so callers can classify the
// outcome (permission denied, already revoked, retryable) precisely.
type APIError struct {
	// StatusCode is the HTTP status of the response
	StatusCode int

	// Path is the API path that was called
	Path string

	// Errors holds the store's structured error messages, if the body
	// carried the standard {"errors": [...]} shape
	Errors []string

	// Body is the raw response body when it did not parse as the
	// standard error shape
	Body string
}

// Error implements the error interface.
func (e *APIError) Error() string {
	detail := e.Detail()
	if detail == "" {
		return fmt.Sprintf("%s: HTTP %d", e.Path, e.StatusCode)
	}
	return fmt.Sprintf("%s: HTTP %d: %s", e.Path, e.StatusCode, detail)
}

// Detail returns the store's error text: the joined structured errors when
// present, otherwise the raw body.
func (e *APIError) Detail() string {
	if len(e.Errors) > 0 {
		return strings.Join(e.Errors, "; ")
	}
	return strings.TrimSpace(e.Body)
}

// Contains reports whether any of the store's error messages contains the
// given substring.
func (e *APIError) Contains(substr string) bool {
	return strings.Contains(e.Detail(), substr)
}

// newAPIError builds an APIError from a response body, parsing the standard
// {"errors": [...]} envelope when possible.
func newAPIError(statusCode int, path string, body []byte) *APIError {
	apiErr := &APIError{StatusCode: statusCode, Path: path}

	var envelope struct {
		Errors []string `json:"errors"`
	}
	if err := json.Unmarshal(body, &envelope); err == nil && envelope.Errors != nil {
		apiErr.Errors = envelope.Errors
	} else {
		apiErr.Body = string(body)
	}

	return apiErr
}
