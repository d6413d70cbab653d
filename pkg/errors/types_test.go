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
	stderrors "errors"
	"strings"
	"testing"
)

func TestAuthError_Error(t *testing.T) {
	err := &AuthError{
		Method:     "approle",
		StatusCode: 400,
		Message:    "role is incorrect or does not exist",
	}

	got := err.Error()
	if !strings.Contains(got, "approle authentication failed") {
		t.Errorf("Error() = %q, want method prefix", got)
	}
	if !strings.Contains(got, "[HTTP 400]") {
		t.Errorf("Error() = %q, want status code", got)
	}
	if err.IsRetryable() {
		t.Error("AuthError should not be retryable")
	}
	if err.ErrorType() != "auth" {
		t.Errorf("ErrorType() = %q, want %q", err.ErrorType(), "auth")
	}
}

func TestTransportError_Unwrap(t *testing.T) {
	cause := stderrors.New("connection refused")
	err := &TransportError{Operation: "write auth/approle/login", Cause: cause}

	if !stderrors.Is(err, cause) {
		t.Error("expected errors.Is to find the cause")
	}
	if !err.IsRetryable() {
		t.Error("TransportError should be retryable")
	}
}

func TestPermissionError_Error(t *testing.T) {
	err := &PermissionError{
		Operation:  "revoke accessor",
		Capability: "update on auth/token/revoke-accessor",
	}

	if !strings.Contains(err.Error(), "auth/token/revoke-accessor") {
		t.Errorf("Error() = %q, want capability path", err.Error())
	}
	if err.IsRetryable() {
		t.Error("PermissionError should not be retryable")
	}
}

func TestProtocolError_Error(t *testing.T) {
	err := &ProtocolError{Path: "auth/approle/login", Field: "auth.accessor"}

	if !strings.Contains(err.Error(), "missing auth.accessor") {
		t.Errorf("Error() = %q, want missing field", err.Error())
	}
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"transport", &TransportError{Operation: "read", Cause: stderrors.New("eof")}, true},
		{"auth", &AuthError{Method: "approle"}, false},
		{"permission", &PermissionError{Operation: "revoke"}, false},
		{"wrapped transport", Wrap(&TransportError{Operation: "read", Cause: stderrors.New("eof")}, "revoking"), true},
		{"plain", stderrors.New("boom"), false},
		{"nil", nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsRetryable(tt.err); got != tt.want {
				t.Errorf("IsRetryable() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestSentinels(t *testing.T) {
	wrapped := Wrap(ErrIssuanceFailed, "requesting token")
	if !stderrors.Is(wrapped, ErrIssuanceFailed) {
		t.Error("wrapped sentinel should match with errors.Is")
	}
}
