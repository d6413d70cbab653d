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
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/config"

	"github.com/forgeci/vaultbroker/internal/settings"
	brokererrors "github.com/forgeci/vaultbroker/pkg/errors"
	"github.com/forgeci/vaultbroker/pkg/secrets"
	"github.com/forgeci/vaultbroker/pkg/vault"
)

const (
	awsLoginPath = "auth/aws/login"

	// stsEndpoint is the global STS endpoint whose GetCallerIdentity
	// signature the store verifies.
	stsEndpoint = "https://sts.amazonaws.com"

	stsRequestBody = "Action=GetCallerIdentity&Version=2011-06-15"

	defaultRegion = "us-east-1"
)

// AWSIAM logs in with the host's AWS instance identity: it signs an STS
// GetCallerIdentity request with the instance's short-lived credentials and
// hands the signed request parts to the store for verification. No stored
// secret is involved.
type AWSIAM struct {
	// Region overrides the region resolved from the credential chain.
	Region string

	// retrieve overrides credential resolution in tests.
	retrieve func(ctx context.Context) (aws.Credentials, string, error)
}

// Method implements Protocol.
func (AWSIAM) Method() settings.AuthMethod { return settings.AuthMethodAWSIAM }

// Login implements Protocol.
func (a AWSIAM) Login(ctx context.Context, client *vault.Client, s settings.Settings) (vault.SessionToken, error) {
	creds, region, err := a.credentials(ctx)
	if err != nil {
		return vault.SessionToken{}, brokererrors.Wrap(brokererrors.ErrCredentialsUnavailable, err.Error())
	}

	payload, err := signedIdentityPayload(ctx, creds, region)
	if err != nil {
		return vault.SessionToken{}, err
	}
	if s.RoleID != "" {
		payload["role"] = s.RoleID
	}

	resp, err := client.Write(ctx, awsLoginPath, payload)
	if err != nil {
		return vault.SessionToken{}, awsLoginError(err, creds)
	}
	if resp == nil {
		return vault.SessionToken{}, &brokererrors.ProtocolError{
			Path:    awsLoginPath,
			Message: "store returned an empty login response",
		}
	}

	// Wrapped issuance: the wrapping token and the wrapped token's
	// accessor are all the caller gets until unwrap time.
	if resp.WrapInfo != nil {
		if resp.WrapInfo.Token == "" {
			return vault.SessionToken{}, &brokererrors.ProtocolError{Path: awsLoginPath, Field: "wrap_info.token"}
		}
		return vault.SessionToken{
			Token:    resp.WrapInfo.Token,
			Accessor: resp.WrapInfo.WrappedAccessor,
		}, nil
	}

	if resp.Auth == nil || resp.Auth.ClientToken == "" {
		return vault.SessionToken{}, &brokererrors.ProtocolError{Path: awsLoginPath, Field: "auth.client_token"}
	}

	// This login variant does not deliver the accessor with the token;
	// look it up through the token itself.
	lookup, err := client.WithToken(resp.Auth.ClientToken).LookupSelf(ctx)
	if err != nil {
		return vault.SessionToken{}, awsLoginError(err, creds)
	}
	accessor := lookup.DataString("accessor")
	if accessor == "" {
		return vault.SessionToken{}, &brokererrors.ProtocolError{Path: "auth/token/lookup-self", Field: "data.accessor"}
	}

	return vault.SessionToken{Token: resp.Auth.ClientToken, Accessor: accessor}, nil
}

// credentials resolves instance credentials and the region, treating the
// cloud credential provider as a black box.
func (a AWSIAM) credentials(ctx context.Context) (aws.Credentials, string, error) {
	if a.retrieve != nil {
		return a.retrieve(ctx)
	}

	cfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		return aws.Credentials{}, "", err
	}

	creds, err := cfg.Credentials.Retrieve(ctx)
	if err != nil {
		return aws.Credentials{}, "", err
	}

	region := a.Region
	if region == "" {
		region = cfg.Region
	}
	if region == "" {
		region = defaultRegion
	}
	return creds, region, nil
}

// signedIdentityPayload builds the login request body: a SigV4-signed STS
// GetCallerIdentity request, base64-encoded the way the store's AWS auth
// backend expects it.
func signedIdentityPayload(ctx context.Context, creds aws.Credentials, region string) (map[string]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, stsEndpoint+"/", strings.NewReader(stsRequestBody))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded; charset=utf-8")

	sum := sha256.Sum256([]byte(stsRequestBody))
	if err := v4.NewSigner().SignHTTP(ctx, creds, req, hex.EncodeToString(sum[:]), "sts", region, time.Now()); err != nil {
		return nil, brokererrors.Wrap(err, "signing identity request")
	}

	headers, err := json.Marshal(req.Header)
	if err != nil {
		return nil, err
	}

	return map[string]string{
		"iam_http_request_method": http.MethodPost,
		"iam_request_url":         base64.StdEncoding.EncodeToString([]byte(req.URL.String())),
		"iam_request_body":        base64.StdEncoding.EncodeToString([]byte(stsRequestBody)),
		"iam_request_headers":     base64.StdEncoding.EncodeToString(headers),
	}, nil
}

// awsLoginError converts a failed AWS login call, masking the short-lived
// credential material in case the store echoed any of it back.
func awsLoginError(err error, creds aws.Credentials) error {
	masker := secrets.NewMaskerFor(creds.SecretAccessKey, creds.SessionToken)

	var apiErr *vault.APIError
	if !brokererrors.As(err, &apiErr) {
		return &brokererrors.TransportError{
			Operation: "write " + awsLoginPath,
			Cause:     maskedError{masker.MaskError(err)},
		}
	}

	return &brokererrors.AuthError{
		Method:     string(settings.AuthMethodAWSIAM),
		StatusCode: apiErr.StatusCode,
		Message:    masker.MaskString(apiErr.Detail()),
		Suggestion: "check the store's AWS auth backend binding for this instance role",
	}
}
