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

// Package lifecycle connects build completion notifications to lease
// revocation: when a build finishes, its leases leave the registry
// unconditionally and each one is revoked best-effort.
package lifecycle

import (
	"context"
	"log/slog"
	"sync"

	"github.com/forgeci/vaultbroker/internal/lease"
	"github.com/forgeci/vaultbroker/internal/log"
	"github.com/forgeci/vaultbroker/internal/metrics"
)

// Revoker handles one lease. True means handled; false means the lease
// stays in the pending-removal set for diagnostics.
type Revoker interface {
	Revoke(ctx context.Context, l *lease.Lease) bool
}

// LeaseSource atomically surrenders a finished build's leases.
type LeaseSource interface {
	TakeBuild(buildID string) []*lease.Lease
}

// Config configures a Bridge.
type Config struct {
	// Leases is the registry to drain on build completion. Required.
	Leases LeaseSource

	// Revoker revokes drained leases. Required.
	Revoker Revoker

	// Logger receives lifecycle logs. Default: slog.Default().
	Logger *slog.Logger

	// Metrics receives instrumentation. Default: unregistered collectors.
	Metrics *metrics.Metrics
}

// Bridge drives revocation from build lifecycle events. Safe for
// concurrent notifications.
type Bridge struct {
	leases  LeaseSource
	revoker Revoker
	logger  *slog.Logger
	metrics *metrics.Metrics

	mu      sync.Mutex
	pending map[string]*lease.Lease
}

// New creates a Bridge.
func New(cfg Config) *Bridge {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Metrics == nil {
		cfg.Metrics = metrics.NewNop()
	}
	return &Bridge{
		leases:  cfg.Leases,
		revoker: cfg.Revoker,
		logger:  log.WithComponent(cfg.Logger, "lifecycle"),
		metrics: cfg.Metrics,
		pending: make(map[string]*lease.Lease),
	}
}

// OnBuildFinished handles one build completion. The build's leases are
// removed from the registry whether or not revocation succeeds; a build
// that never requested a token is a no-op. Leases whose revocation
// reports failure stay in the pending-removal set, surfaced only through
// logs and the gauge. There is no later automatic retry.
func (b *Bridge) OnBuildFinished(ctx context.Context, buildID string) {
	leases := b.leases.TakeBuild(buildID)
	if len(leases) == 0 {
		return
	}

	b.logger.Info("revoking leases for finished build",
		log.BuildIDKey, buildID,
		"lease_count", len(leases),
	)

	for _, l := range leases {
		b.addPending(l)

		if b.revoker.Revoke(ctx, l) {
			b.removePending(l)
			b.metrics.LeasesRevoked.Inc()
			continue
		}

		b.metrics.RevokeFailures.Inc()
		b.logger.Warn("lease left unrevoked",
			log.BuildIDKey, l.BuildID,
			log.NamespaceKey, l.Settings.Namespace,
			log.AccessorKey, l.Accessor,
		)
	}
}

// PendingRemoval returns a snapshot of leases whose revocation has not
// been confirmed. Diagnostics only.
func (b *Bridge) PendingRemoval() []*lease.Lease {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]*lease.Lease, 0, len(b.pending))
	for _, l := range b.pending {
		out = append(out, l)
	}
	return out
}

func (b *Bridge) addPending(l *lease.Lease) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.pending[pendingKey(l)] = l
	b.metrics.PendingRemoval.Set(float64(len(b.pending)))
}

func (b *Bridge) removePending(l *lease.Lease) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.pending, pendingKey(l))
	b.metrics.PendingRemoval.Set(float64(len(b.pending)))
}

func pendingKey(l *lease.Lease) string {
	return l.BuildID + "/" + l.Settings.Namespace
}
