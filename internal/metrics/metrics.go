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

// Package metrics defines the broker's Prometheus instrumentation.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the broker's collectors. Components receive a *Metrics and
// record into it; the daemon registers it and serves the scrape endpoint.
type Metrics struct {
	// LeasesIssued counts wrapped tokens successfully minted, by auth method.
	LeasesIssued *prometheus.CounterVec

	// IssueFailures counts failed issuance attempts, by auth method.
	IssueFailures *prometheus.CounterVec

	// LeasesRevoked counts leases revoked successfully.
	LeasesRevoked prometheus.Counter

	// RevokeFailures counts leases whose best-effort revocation failed.
	RevokeFailures prometheus.Counter

	// PendingRemoval tracks leases currently in the pending-removal set.
	PendingRemoval prometheus.Gauge

	// LoginDuration observes secret-store login latency in seconds.
	LoginDuration prometheus.Histogram
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		LeasesIssued: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "vaultbroker",
			Name:      "leases_issued_total",
			Help:      "Wrapped tokens issued to builds.",
		}, []string{"auth_method"}),
		IssueFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "vaultbroker",
			Name:      "lease_issue_failures_total",
			Help:      "Failed token issuance attempts.",
		}, []string{"auth_method"}),
		LeasesRevoked: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "vaultbroker",
			Name:      "leases_revoked_total",
			Help:      "Leases revoked after build completion.",
		}),
		RevokeFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "vaultbroker",
			Name:      "lease_revoke_failures_total",
			Help:      "Leases whose revocation did not succeed.",
		}),
		PendingRemoval: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "vaultbroker",
			Name:      "leases_pending_removal",
			Help:      "Leases taken from the registry but not yet confirmed revoked.",
		}),
		LoginDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "vaultbroker",
			Name:      "login_duration_seconds",
			Help:      "Secret-store login latency.",
			Buckets:   prometheus.DefBuckets,
		}),
	}

	reg.MustRegister(
		m.LeasesIssued,
		m.IssueFailures,
		m.LeasesRevoked,
		m.RevokeFailures,
		m.PendingRemoval,
		m.LoginDuration,
	)
	return m
}

// NewNop returns metrics backed by a private registry, for components and
// tests that do not export.
func NewNop() *Metrics {
	return New(prometheus.NewRegistry())
}
