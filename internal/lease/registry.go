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

// Package lease owns the build -> namespace -> lease state and the
// at-most-one-issuance guarantee under concurrent callers.
package lease

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/forgeci/vaultbroker/internal/auth"
	"github.com/forgeci/vaultbroker/internal/log"
	"github.com/forgeci/vaultbroker/internal/metrics"
	"github.com/forgeci/vaultbroker/internal/settings"
	brokererrors "github.com/forgeci/vaultbroker/pkg/errors"
	"github.com/forgeci/vaultbroker/pkg/vault"
)

// DefaultWrapTTL bounds how long an unconsumed wrapping token stays
// exchangeable. Builds unwrap right after start, so this only needs to
// cover queue latency.
const DefaultWrapTTL = 5 * time.Minute

// Lease is the record of a wrapped token issued to one build in one
// namespace. Immutable after creation.
type Lease struct {
	// BuildID is the owning build.
	BuildID string

	// WrappedToken is the one-time wrapping token handed to the build.
	WrappedToken string

	// Accessor identifies the wrapped session token for revocation.
	Accessor string

	// Settings is the connection snapshot the lease was minted with.
	Settings settings.Settings
}

// issuance is one slot in the per-build namespace map: either a minted
// lease or the recorded failure that stops in-build retries.
type issuance struct {
	lease *Lease
	err   error
}

// Config configures a Registry.
type Config struct {
	// WrapTTL is the response-wrapping TTL for issued tokens.
	// Default: DefaultWrapTTL.
	WrapTTL time.Duration

	// RequestTimeout bounds each store HTTP request. Zero uses the HTTP
	// client default.
	RequestTimeout time.Duration

	// Logger receives issuance logs. Default: slog.Default().
	Logger *slog.Logger

	// Metrics receives instrumentation. Default: unregistered collectors.
	Metrics *metrics.Metrics
}

// Registry mints and caches wrapped tokens per (build, namespace). It is
// safe for concurrent use; issuance for different builds never contends.
type Registry struct {
	wrapTTL time.Duration
	timeout time.Duration
	logger  *slog.Logger
	metrics *metrics.Metrics

	locks *keyedMutex

	mu     sync.RWMutex
	builds map[string]map[string]*issuance
}

// NewRegistry creates an empty registry.
func NewRegistry(cfg Config) *Registry {
	if cfg.WrapTTL <= 0 {
		cfg.WrapTTL = DefaultWrapTTL
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Metrics == nil {
		cfg.Metrics = metrics.NewNop()
	}

	return &Registry{
		wrapTTL: cfg.WrapTTL,
		timeout: cfg.RequestTimeout,
		logger:  log.WithComponent(cfg.Logger, "lease-registry"),
		metrics: cfg.Metrics,
		locks:   newKeyedMutex(),
		builds:  make(map[string]map[string]*issuance),
	}
}

// RequestWrappedToken returns the wrapped token for (buildID, namespace),
// minting it on first request. Exactly one login reaches the store per pair
// regardless of concurrent callers; later callers observe the first result,
// including a recorded failure, without further network calls.
func (r *Registry) RequestWrappedToken(ctx context.Context, buildID string, s settings.Settings) (string, error) {
	key := s.CacheKey()

	if issue, ok := r.lookup(buildID, key); ok {
		return cachedResult(issue)
	}

	unlock := r.locks.Lock(buildID)
	defer unlock()

	// Double-check under the build's lock: another caller may have won.
	if issue, ok := r.lookup(buildID, key); ok {
		return cachedResult(issue)
	}

	token, err := r.login(ctx, s, true)
	if err != nil {
		r.store(buildID, key, &issuance{err: err})
		r.metrics.IssueFailures.WithLabelValues(string(s.Method)).Inc()
		r.logger.Warn("token issuance failed",
			log.BuildIDKey, buildID,
			log.NamespaceKey, key,
			log.AuthMethodKey, string(s.Method),
			log.Error(err),
		)
		// The first caller gets the real error; later callers in the
		// same build fail fast on the recorded result.
		return "", err
	}

	lease := &Lease{
		BuildID:      buildID,
		WrappedToken: token.Token,
		Accessor:     token.Accessor,
		Settings:     s,
	}
	r.store(buildID, key, &issuance{lease: lease})
	r.metrics.LeasesIssued.WithLabelValues(string(s.Method)).Inc()
	r.logger.Info("wrapped token issued",
		log.BuildIDKey, buildID,
		log.NamespaceKey, key,
		log.AccessorKey, lease.Accessor,
		log.AuthMethodKey, string(s.Method),
	)

	return lease.WrappedToken, nil
}

// RequestDirectToken logs in without response wrapping and returns the
// usable session token. Results are never cached; every call authenticates
// fresh. Used by server-side callers such as the revocation engine.
func (r *Registry) RequestDirectToken(ctx context.Context, s settings.Settings) (vault.SessionToken, error) {
	return r.login(ctx, s, false)
}

// TakeBuild atomically removes and returns every successfully issued lease
// for the build. Recorded failures are dropped. After TakeBuild returns, no
// other caller can observe the build's leases.
func (r *Registry) TakeBuild(buildID string) []*Lease {
	r.mu.Lock()
	byNamespace := r.builds[buildID]
	delete(r.builds, buildID)
	r.mu.Unlock()

	leases := make([]*Lease, 0, len(byNamespace))
	for _, issue := range byNamespace {
		if issue.lease != nil {
			leases = append(leases, issue.lease)
		}
	}
	return leases
}

// BuildCount returns the number of builds with live registry entries.
func (r *Registry) BuildCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.builds)
}

func (r *Registry) login(ctx context.Context, s settings.Settings, wrapped bool) (vault.SessionToken, error) {
	client, err := vault.New(vault.Config{
		Endpoint:  s.URL,
		Namespace: s.Namespace,
		VerifyTLS: s.VerifyTLS,
		Timeout:   r.timeout,
	})
	if err != nil {
		return vault.SessionToken{}, err
	}
	if wrapped {
		client = client.WithWrapTTL(r.wrapTTL)
	}

	protocol, err := auth.ForSettings(s)
	if err != nil {
		return vault.SessionToken{}, err
	}

	start := time.Now()
	token, err := protocol.Login(ctx, client, s)
	r.metrics.LoginDuration.Observe(time.Since(start).Seconds())
	return token, err
}

func (r *Registry) lookup(buildID, key string) (*issuance, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	issue, ok := r.builds[buildID][key]
	return issue, ok
}

func (r *Registry) store(buildID, key string, issue *issuance) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.builds[buildID] == nil {
		r.builds[buildID] = make(map[string]*issuance)
	}
	r.builds[buildID][key] = issue
}

// cachedResult maps a stored issuance onto the caller-visible result.
func cachedResult(issue *issuance) (string, error) {
	if issue.err != nil {
		return "", fmt.Errorf("%w: %v", brokererrors.ErrIssuanceFailed, issue.err)
	}
	return issue.lease.WrappedToken, nil
}
