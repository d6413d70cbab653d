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

// Package settings defines the validated connection description consumed by
// every other component: where the secret store lives and how to log in.
package settings

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

// AuthMethod selects the login protocol.
type AuthMethod string

const (
	// AuthMethodAppRole logs in with a role ID plus secret ID pair.
	AuthMethodAppRole AuthMethod = "approle"
	// AuthMethodAWSIAM logs in with the host's AWS instance identity.
	AuthMethodAWSIAM AuthMethod = "aws-iam"
)

// Flat configuration map keys. The map shape round-trips losslessly through
// FromMap/ToMap so the host server can persist it untouched.
const (
	KeyURL       = "url"
	KeyNamespace = "namespace"
	KeyVerifyTLS = "verify-ssl"
	KeyMethod    = "auth-method"
	KeyRoleID    = "role-id"
	KeySecretID  = "secret-id"
	KeyEndpoint  = "endpoint"
)

// DefaultEndpoint is the conventional mount path of the role/secret auth
// backend.
const DefaultEndpoint = "approle"

// Settings is an immutable description of one secret-store connection.
type Settings struct {
	// URL is the store's base URL.
	URL string

	// Namespace is the store-side partition; empty means the root namespace.
	Namespace string

	// VerifyTLS controls server certificate verification.
	VerifyTLS bool

	// Method selects the login protocol.
	Method AuthMethod

	// Endpoint is the mount path of the role/secret auth backend,
	// normalized without surrounding slashes. Unused for AWS IAM.
	Endpoint string

	// RoleID identifies the role for role/secret login.
	RoleID string

	// SecretID is the secret credential for role/secret login.
	// Never include it in errors or logs unmasked.
	SecretID string
}

// FromMap constructs Settings from a flat string map, applying defaults for
// absent keys and validating the result.
func FromMap(params map[string]string) (Settings, error) {
	s := Settings{
		URL:       params[KeyURL],
		Namespace: params[KeyNamespace],
		VerifyTLS: true,
		Method:    AuthMethodAppRole,
		Endpoint:  NormalizeEndpoint(params[KeyEndpoint]),
		RoleID:    params[KeyRoleID],
		SecretID:  params[KeySecretID],
	}

	if v, ok := params[KeyVerifyTLS]; ok {
		verify, err := strconv.ParseBool(v)
		if err != nil {
			return Settings{}, fmt.Errorf("invalid %s value %q: %w", KeyVerifyTLS, v, err)
		}
		s.VerifyTLS = verify
	}

	if m, ok := params[KeyMethod]; ok && m != "" {
		s.Method = AuthMethod(m)
	}

	if err := s.Validate(); err != nil {
		return Settings{}, err
	}
	return s, nil
}

// ToMap serializes the settings back into the flat map shape.
func (s Settings) ToMap() map[string]string {
	return map[string]string{
		KeyURL:       s.URL,
		KeyNamespace: s.Namespace,
		KeyVerifyTLS: strconv.FormatBool(s.VerifyTLS),
		KeyMethod:    string(s.Method),
		KeyEndpoint:  s.Endpoint,
		KeyRoleID:    s.RoleID,
		KeySecretID:  s.SecretID,
	}
}

// Validate checks that the settings describe a usable connection.
func (s Settings) Validate() error {
	if s.URL == "" {
		return fmt.Errorf("%s is required", KeyURL)
	}
	u, err := url.Parse(s.URL)
	if err != nil {
		return fmt.Errorf("invalid %s %q: %w", KeyURL, s.URL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%s must be an http or https URL, got %q", KeyURL, s.URL)
	}

	switch s.Method {
	case AuthMethodAppRole:
		if s.RoleID == "" {
			return fmt.Errorf("%s is required for %s authentication", KeyRoleID, AuthMethodAppRole)
		}
	case AuthMethodAWSIAM:
		// Credentials are resolved from the instance environment.
	default:
		return fmt.Errorf("unknown %s %q", KeyMethod, s.Method)
	}

	return nil
}

// LoginPath returns the auth backend path the role/secret login posts to.
func (s Settings) LoginPath() string {
	return "auth/" + s.Endpoint + "/login"
}

// CacheKey identifies this connection inside a single build. Leases are
// cached per (build, namespace).
func (s Settings) CacheKey() string {
	return s.Namespace
}

// NormalizeEndpoint trims surrounding whitespace and slashes from an auth
// backend mount path, falling back to the conventional default.
func NormalizeEndpoint(endpoint string) string {
	normalized := strings.Trim(strings.TrimSpace(endpoint), "/")
	if normalized == "" {
		return DefaultEndpoint
	}
	return normalized
}
