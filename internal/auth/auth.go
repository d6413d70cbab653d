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

// Package auth implements the login protocols against the secret store.
// Each protocol turns ConnectionSettings into a session token plus the
// accessor that can later revoke it.
package auth

import (
	"context"
	"fmt"

	"github.com/forgeci/vaultbroker/internal/settings"
	brokererrors "github.com/forgeci/vaultbroker/pkg/errors"
	"github.com/forgeci/vaultbroker/pkg/vault"
)

// Protocol is one login strategy. Login calls through the given client,
// which may have response wrapping enabled; in that case the returned
// token is the one-time wrapping token and the accessor is the wrapped
// token's accessor.
type Protocol interface {
	// Method returns the auth method this protocol implements.
	Method() settings.AuthMethod

	// Login authenticates and returns the minted session token.
	Login(ctx context.Context, client *vault.Client, s settings.Settings) (vault.SessionToken, error)
}

// ForSettings selects the protocol for the configured auth method. The
// method set is closed; an unknown value is a configuration error caught
// by settings validation, so this only fails on skew between the two.
func ForSettings(s settings.Settings) (Protocol, error) {
	switch s.Method {
	case settings.AuthMethodAppRole:
		return AppRole{}, nil
	case settings.AuthMethodAWSIAM:
		return AWSIAM{}, nil
	default:
		return nil, fmt.Errorf("no login protocol for auth method %q", s.Method)
	}
}

// sessionFromResponse extracts the token and accessor from a login
// response, handling both the plain and the response-wrapped shape.
func sessionFromResponse(resp *vault.Response, path string) (vault.SessionToken, error) {
	if resp == nil {
		return vault.SessionToken{}, &brokererrors.ProtocolError{
			Path:    path,
			Message: "store returned an empty login response",
		}
	}

	if resp.WrapInfo != nil {
		if resp.WrapInfo.Token == "" {
			return vault.SessionToken{}, &brokererrors.ProtocolError{Path: path, Field: "wrap_info.token"}
		}
		return vault.SessionToken{
			Token:    resp.WrapInfo.Token,
			Accessor: resp.WrapInfo.WrappedAccessor,
		}, nil
	}

	if resp.Auth == nil {
		return vault.SessionToken{}, &brokererrors.ProtocolError{Path: path, Field: "auth"}
	}
	if resp.Auth.ClientToken == "" {
		return vault.SessionToken{}, &brokererrors.ProtocolError{Path: path, Field: "auth.client_token"}
	}
	if resp.Auth.Accessor == "" {
		return vault.SessionToken{}, &brokererrors.ProtocolError{Path: path, Field: "auth.accessor"}
	}
	return vault.SessionToken{Token: resp.Auth.ClientToken, Accessor: resp.Auth.Accessor}, nil
}
