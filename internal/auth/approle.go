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

package auth

import (
	"context"

	"github.com/forgeci/vaultbroker/internal/settings"
	brokererrors "github.com/forgeci/vaultbroker/pkg/errors"
	"github.com/forgeci/vaultbroker/pkg/secrets"
	"github.com/forgeci/vaultbroker/pkg/vault"
)

// AppRole logs in with a role ID plus secret ID pair against the
// configured auth backend mount.
type AppRole struct{}

// Method implements Protocol.
func (AppRole) Method() settings.AuthMethod { return settings.AuthMethodAppRole }

// Login implements Protocol.
func (AppRole) Login(ctx context.Context, client *vault.Client, s settings.Settings) (vault.SessionToken, error) {
	body := map[string]string{"role_id": s.RoleID}
	if s.SecretID != "" {
		body["secret_id"] = s.SecretID
	}

	path := s.LoginPath()
	resp, err := client.Write(ctx, path, body)
	if err != nil {
		return vault.SessionToken{}, appRoleLoginError(err, s)
	}

	return sessionFromResponse(resp, path)
}

// appRoleLoginError converts a failed login call into the surfaced error,
// translating known store rejections into actionable messages and masking
// the secret ID everywhere.
func appRoleLoginError(err error, s settings.Settings) error {
	masker := secrets.NewMaskerFor(s.SecretID)

	var apiErr *vault.APIError
	if !brokererrors.As(err, &apiErr) {
		return &brokererrors.TransportError{
			Operation: "write " + s.LoginPath(),
			Cause:     maskedError{masker.MaskError(err)},
		}
	}

	message, suggestion := translateLoginFailure(apiErr.Detail())
	return &brokererrors.AuthError{
		Method:     string(settings.AuthMethodAppRole),
		StatusCode: apiErr.StatusCode,
		Message:    masker.MaskString(message),
		Suggestion: suggestion,
	}
}

// maskedError carries an already-masked message while keeping the error
// chain intact for logging.
type maskedError struct {
	msg string
}

func (e maskedError) Error() string { return e.msg }
