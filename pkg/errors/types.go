// Copyright 2025 The vaultbroker Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package errors

import (
	"errors"
	"fmt"
)

// Sentinel errors for conditions callers branch on with errors.Is.
var (
	// ErrAlreadyRevoked indicates the store no longer knows the token.
	// Treated as success by revocation, never surfaced as a failure.
	ErrAlreadyRevoked = errors.New("token already revoked")

	// ErrIssuanceFailed indicates a previous issuance attempt for the same
	// build and namespace failed. Callers must not retry within the build.
	ErrIssuanceFailed = errors.New("token issuance previously failed for this build")

	// ErrCredentialsUnavailable indicates the cloud credential chain could
	// not produce instance credentials for the identity-based login.
	ErrCredentialsUnavailable = errors.New("cloud credentials unavailable")
)

// AuthError represents a login that was rejected by the secret store or
// produced a malformed response. Not retryable.
type AuthError struct {
	// Method is the authentication method that failed (e.g. "approle", "aws-iam")
	Method string

	// StatusCode is the HTTP status returned by the store, if any
	StatusCode int

	// Message is the human-readable error description, already masked
	Message string

	// Suggestion provides actionable guidance for resolution
	Suggestion string

	// Cause is the underlying error
	Cause error
}

// Error implements the error interface.
func (e *AuthError) Error() string {
	msg := fmt.Sprintf("%s authentication failed", e.Method)
	if e.StatusCode > 0 {
		msg = fmt.Sprintf("%s [HTTP %d]", msg, e.StatusCode)
	}
	if e.Message != "" {
		msg = fmt.Sprintf("%s: %s", msg, e.Message)
	}
	return msg
}

// Unwrap returns the underlying cause for errors.Is/As support.
func (e *AuthError) Unwrap() error { return e.Cause }

// ErrorType implements ErrorClassifier.
func (e *AuthError) ErrorType() string { return "auth" }

// IsRetryable implements ErrorClassifier.
func (e *AuthError) IsRetryable() bool { return false }

// TransportError represents a network or HTTP-layer failure talking to the
// secret store. Retryable.
type TransportError struct {
	// Operation describes the call that failed (e.g. "write auth/approle/login")
	Operation string

	// Cause is the underlying error
	Cause error
}

// Error implements the error interface.
func (e *TransportError) Error() string {
	return fmt.Sprintf("%s: %v", e.Operation, e.Cause)
}

// Unwrap returns the underlying cause for errors.Is/As support.
func (e *TransportError) Unwrap() error { return e.Cause }

// ErrorType implements ErrorClassifier.
func (e *TransportError) ErrorType() string { return "transport" }

// IsRetryable implements ErrorClassifier.
func (e *TransportError) IsRetryable() bool { return true }

// PermissionError represents an operation the store denied even though the
// server's policy should grant it. Requires operator intervention; retrying
// cannot succeed.
type PermissionError struct {
	// Operation describes the denied call
	Operation string

	// Capability is the store-side grant the server is missing
	// (e.g. "update on auth/token/revoke-accessor")
	Capability string
}

// Error implements the error interface.
func (e *PermissionError) Error() string {
	if e.Capability != "" {
		return fmt.Sprintf("%s denied: missing capability %q", e.Operation, e.Capability)
	}
	return fmt.Sprintf("%s denied", e.Operation)
}

// ErrorType implements ErrorClassifier.
func (e *PermissionError) ErrorType() string { return "permission" }

// IsRetryable implements ErrorClassifier.
func (e *PermissionError) IsRetryable() bool { return false }

// ProtocolError represents a store response missing fields this client
// depends on. Usually means an incompatible store version.
type ProtocolError struct {
	// Path is the API path whose response was malformed
	Path string

	// Field is the missing or invalid field, if a single one can be named
	Field string

	// Message describes the mismatch
	Message string
}

// Error implements the error interface.
func (e *ProtocolError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("unexpected response from %s: missing %s", e.Path, e.Field)
	}
	return fmt.Sprintf("unexpected response from %s: %s", e.Path, e.Message)
}

// ErrorType implements ErrorClassifier.
func (e *ProtocolError) ErrorType() string { return "protocol" }

// IsRetryable implements ErrorClassifier.
func (e *ProtocolError) IsRetryable() bool { return false }
