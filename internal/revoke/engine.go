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

// Package revoke drives the two-step revocation of issued leases: revoke
// the build's delegated token by accessor, then revoke the broker's own
// session, classifying store responses into done vs retry-later outcomes.
package revoke

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/forgeci/vaultbroker/internal/lease"
	"github.com/forgeci/vaultbroker/internal/log"
	"github.com/forgeci/vaultbroker/internal/settings"
	brokererrors "github.com/forgeci/vaultbroker/pkg/errors"
	"github.com/forgeci/vaultbroker/pkg/vault"
)

// selfRevokeBackoff holds the sleeps between consecutive self-revoke
// attempts. Four attempts total, no sleep after the last.
var selfRevokeBackoff = []time.Duration{
	1 * time.Second,
	3 * time.Second,
	6 * time.Second,
}

// DirectTokenSource mints fresh, unwrapped sessions. Revocation always
// logs in anew: the lease's own token belongs to the build and may already
// be consumed.
type DirectTokenSource interface {
	RequestDirectToken(ctx context.Context, s settings.Settings) (vault.SessionToken, error)
}

// Config configures an Engine.
type Config struct {
	// Tokens supplies fresh sessions for revocation calls. Required.
	Tokens DirectTokenSource

	// RequestTimeout bounds each store HTTP request. Zero uses the HTTP
	// client default.
	RequestTimeout time.Duration

	// Logger receives revocation logs. Default: slog.Default().
	Logger *slog.Logger

	// Sleep is the delay function between self-revoke attempts.
	// Default: time.Sleep. Overridable in tests.
	Sleep func(time.Duration)
}

// Engine revokes leases. Safe for concurrent use.
type Engine struct {
	tokens  DirectTokenSource
	timeout time.Duration
	logger  *slog.Logger
	sleep   func(time.Duration)
}

// New creates an Engine.
func New(cfg Config) *Engine {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Sleep == nil {
		cfg.Sleep = time.Sleep
	}
	return &Engine{
		tokens:  cfg.Tokens,
		timeout: cfg.RequestTimeout,
		logger:  log.WithComponent(cfg.Logger, "revocation"),
		sleep:   cfg.Sleep,
	}
}

// Revoke revokes one lease. The result is true when the lease is handled:
// either revoked, already gone, or in a state where retrying cannot help.
// False means a later retry might succeed. Failures never propagate as
// errors; the build is finished and there is nobody left to notify.
func (e *Engine) Revoke(ctx context.Context, l *lease.Lease) (handled bool) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("revocation panicked",
				log.BuildIDKey, l.BuildID,
				log.AccessorKey, l.Accessor,
				"panic", r,
			)
			handled = false
		}
	}()

	switch l.Settings.Method {
	case settings.AuthMethodAWSIAM:
		// Identity login issues no server-manageable delegated token;
		// there is nothing to revoke from this side.
		return true

	case settings.AuthMethodAppRole:
		return e.revokeDelegated(ctx, l)

	default:
		e.logger.Warn("lease with unknown auth method, nothing to revoke",
			log.BuildIDKey, l.BuildID,
			log.AuthMethodKey, string(l.Settings.Method),
		)
		return true
	}
}

// revokeDelegated performs the two-step revocation: a fresh login, then
// accessor-revoke, then self-revoke of the fresh session. The self-revoke
// is deferred so it runs no matter how the accessor step fails.
func (e *Engine) revokeDelegated(ctx context.Context, l *lease.Lease) bool {
	session, err := e.tokens.RequestDirectToken(ctx, l.Settings)
	if err != nil {
		e.logger.Warn("login for revocation failed",
			log.BuildIDKey, l.BuildID,
			log.AccessorKey, l.Accessor,
			log.Error(err),
		)
		return false
	}

	client, err := vault.New(vault.Config{
		Endpoint:  l.Settings.URL,
		Namespace: l.Settings.Namespace,
		VerifyTLS: l.Settings.VerifyTLS,
		Timeout:   e.timeout,
	})
	if err != nil {
		e.logger.Warn("store client for revocation failed", log.Error(err))
		return false
	}
	sessionClient := client.WithToken(session.Token)

	accessorOK := false
	selfOK := false
	func() {
		defer func() {
			selfOK = e.revokeSelf(ctx, sessionClient, l)
		}()
		accessorOK = e.revokeAccessor(ctx, sessionClient, l)
	}()

	return accessorOK && selfOK
}

// revokeAccessor revokes the build's delegated token by accessor and
// classifies the response. True means done or not worth retrying.
func (e *Engine) revokeAccessor(ctx context.Context, client *vault.Client, l *lease.Lease) bool {
	err := client.RevokeAccessor(ctx, l.Accessor)
	if err == nil {
		e.logger.Debug("delegated token revoked",
			log.BuildIDKey, l.BuildID,
			log.AccessorKey, l.Accessor,
		)
		return true
	}

	if brokererrors.Is(err, brokererrors.ErrAlreadyRevoked) {
		e.logger.Info("delegated token already gone",
			log.BuildIDKey, l.BuildID,
			log.AccessorKey, l.Accessor,
		)
		return true
	}

	var apiErr *vault.APIError
	if !brokererrors.As(err, &apiErr) {
		terr := &brokererrors.TransportError{
			Operation: "revoke accessor",
			Cause:     err,
		}
		e.logger.Warn("accessor revocation failed, will retry",
			log.BuildIDKey, l.BuildID,
			log.AccessorKey, l.Accessor,
			log.Error(terr),
		)
		return !brokererrors.IsRetryable(terr)
	}

	switch {
	case apiErr.StatusCode == http.StatusForbidden:
		perm := &brokererrors.PermissionError{
			Operation:  "revoke accessor",
			Capability: requiredGrant(l.Settings.Method),
		}
		// Retrying cannot succeed without operator intervention.
		e.logger.Warn("store denied accessor revocation",
			log.BuildIDKey, l.BuildID,
			log.AccessorKey, l.Accessor,
			log.AuthMethodKey, string(l.Settings.Method),
			log.Error(perm),
		)
		return !brokererrors.IsRetryable(perm)

	case apiErr.StatusCode == http.StatusBadRequest:
		e.logger.Warn("store rejected accessor revocation",
			log.BuildIDKey, l.BuildID,
			log.AccessorKey, l.Accessor,
			"detail", apiErr.Detail(),
		)
		return true

	default:
		e.logger.Warn("accessor revocation failed, will retry",
			log.BuildIDKey, l.BuildID,
			log.AccessorKey, l.Accessor,
			"status", apiErr.StatusCode,
		)
		return false
	}
}

// revokeSelf revokes the broker's own freshly minted session, with bounded
// retries. Four attempts with 1s/3s/6s sleeps in between.
func (e *Engine) revokeSelf(ctx context.Context, client *vault.Client, l *lease.Lease) bool {
	var lastErr error
	for attempt := 0; attempt <= len(selfRevokeBackoff); attempt++ {
		if attempt > 0 {
			e.sleep(selfRevokeBackoff[attempt-1])
		}

		if lastErr = client.RevokeSelf(ctx); lastErr == nil {
			return true
		}
	}

	detail := lastErr.Error()
	var apiErr *vault.APIError
	if brokererrors.As(lastErr, &apiErr) {
		detail = apiErr.Detail()
	}
	e.logger.Warn("revoking own session failed after retries",
		log.BuildIDKey, l.BuildID,
		"detail", detail,
	)
	return false
}

// requiredGrant names the store-side capability missing when accessor
// revocation is denied, per auth method.
func requiredGrant(method settings.AuthMethod) string {
	switch method {
	case settings.AuthMethodAWSIAM:
		return "update on auth/token/revoke-accessor in the AWS auth role's token policy"
	default:
		return "update on auth/token/revoke-accessor in the AppRole's token policy"
	}
}
