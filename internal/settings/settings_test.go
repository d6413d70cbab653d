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

package settings

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromMap_Defaults(t *testing.T) {
	s, err := FromMap(map[string]string{
		KeyURL:    "https://vault.example.com:8200",
		KeyRoleID: "build-role",
	})
	require.NoError(t, err)

	assert.Equal(t, AuthMethodAppRole, s.Method)
	assert.True(t, s.VerifyTLS)
	assert.Equal(t, "approle", s.Endpoint)
	assert.Empty(t, s.Namespace)
}

func TestFromMap_RoundTrip(t *testing.T) {
	in := map[string]string{
		KeyURL:       "https://vault.example.com:8200",
		KeyNamespace: "team-a",
		KeyVerifyTLS: "false",
		KeyMethod:    "approle",
		KeyEndpoint:  "approle-ci",
		KeyRoleID:    "build-role",
		KeySecretID:  "s3cret",
	}

	s, err := FromMap(in)
	require.NoError(t, err)

	out := s.ToMap()
	assert.Equal(t, in, out)

	// A second pass through must be stable.
	s2, err := FromMap(out)
	require.NoError(t, err)
	assert.Equal(t, s, s2)
}

func TestFromMap_Errors(t *testing.T) {
	tests := []struct {
		name   string
		params map[string]string
	}{
		{"missing url", map[string]string{KeyRoleID: "r"}},
		{"bad scheme", map[string]string{KeyURL: "ldap://x", KeyRoleID: "r"}},
		{"bad verify flag", map[string]string{KeyURL: "https://v", KeyRoleID: "r", KeyVerifyTLS: "maybe"}},
		{"unknown method", map[string]string{KeyURL: "https://v", KeyMethod: "kerberos"}},
		{"approle without role id", map[string]string{KeyURL: "https://v", KeyMethod: "approle"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := FromMap(tt.params)
			assert.Error(t, err)
		})
	}
}

func TestFromMap_AWSIAMNeedsNoRole(t *testing.T) {
	s, err := FromMap(map[string]string{
		KeyURL:    "https://vault.example.com:8200",
		KeyMethod: string(AuthMethodAWSIAM),
	})
	require.NoError(t, err)
	assert.Equal(t, AuthMethodAWSIAM, s.Method)
}

func TestNormalizeEndpoint(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"", "approle"},
		{"approle", "approle"},
		{"/approle/", "approle"},
		{"  /ci/approle/ ", "ci/approle"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, NormalizeEndpoint(tt.in), "input %q", tt.in)
	}
}

func TestLoginPath(t *testing.T) {
	s := Settings{Endpoint: "approle-ci"}
	assert.Equal(t, "auth/approle-ci/login", s.LoginPath())
}
