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

package lifecycle

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forgeci/vaultbroker/internal/lease"
	"github.com/forgeci/vaultbroker/internal/settings"
)

type fakeLeaseSource struct {
	mu     sync.Mutex
	builds map[string][]*lease.Lease
	taken  []string
}

func (f *fakeLeaseSource) TakeBuild(buildID string) []*lease.Lease {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.taken = append(f.taken, buildID)
	leases := f.builds[buildID]
	delete(f.builds, buildID)
	return leases
}

type fakeRevoker struct {
	mu      sync.Mutex
	calls   []*lease.Lease
	failFor map[string]bool
}

func (f *fakeRevoker) Revoke(_ context.Context, l *lease.Lease) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, l)
	return !f.failFor[l.Settings.Namespace]
}

func testLease(buildID, namespace, accessor string) *lease.Lease {
	return &lease.Lease{
		BuildID:      buildID,
		WrappedToken: "hvs.wrapped-" + accessor,
		Accessor:     accessor,
		Settings:     settings.Settings{URL: "https://vault.example.com", Namespace: namespace},
	}
}

func TestBridgeRevokesAllLeasesOnBuildFinish(t *testing.T) {
	source := &fakeLeaseSource{builds: map[string][]*lease.Lease{
		"42": {
			testLease("42", "team-a", "acc-1"),
			testLease("42", "team-b", "acc-2"),
		},
	}}
	revoker := &fakeRevoker{}

	bridge := New(Config{Leases: source, Revoker: revoker})
	bridge.OnBuildFinished(context.Background(), "42")

	require.Len(t, revoker.calls, 2)
	assert.Empty(t, bridge.PendingRemoval())
	assert.Empty(t, source.builds, "build must leave the registry")
}

func TestBridgeUnknownBuildIsNoOp(t *testing.T) {
	source := &fakeLeaseSource{builds: map[string][]*lease.Lease{}}
	revoker := &fakeRevoker{}

	bridge := New(Config{Leases: source, Revoker: revoker})
	bridge.OnBuildFinished(context.Background(), "missing")

	assert.Empty(t, revoker.calls)
	assert.Empty(t, bridge.PendingRemoval())
}

func TestBridgeKeepsFailedRevocationsPending(t *testing.T) {
	source := &fakeLeaseSource{builds: map[string][]*lease.Lease{
		"7": {
			testLease("7", "team-a", "acc-1"),
			testLease("7", "team-b", "acc-2"),
		},
	}}
	revoker := &fakeRevoker{failFor: map[string]bool{"team-b": true}}

	bridge := New(Config{Leases: source, Revoker: revoker})
	bridge.OnBuildFinished(context.Background(), "7")

	pending := bridge.PendingRemoval()
	require.Len(t, pending, 1)
	assert.Equal(t, "team-b", pending[0].Settings.Namespace)

	// A repeat notification finds nothing left in the registry and does
	// not retry the pending lease.
	bridge.OnBuildFinished(context.Background(), "7")
	assert.Len(t, revoker.calls, 2)
	assert.Len(t, bridge.PendingRemoval(), 1)
}

func TestBridgeConcurrentNotifications(t *testing.T) {
	source := &fakeLeaseSource{builds: map[string][]*lease.Lease{}}
	var ids []string
	for i := 0; i < 20; i++ {
		id := string(rune('a' + i))
		ids = append(ids, id)
		source.builds[id] = []*lease.Lease{testLease(id, "ns", "acc-"+id)}
	}
	revoker := &fakeRevoker{}
	bridge := New(Config{Leases: source, Revoker: revoker})

	var wg sync.WaitGroup
	for _, id := range ids {
		wg.Add(1)
		go func(buildID string) {
			defer wg.Done()
			bridge.OnBuildFinished(context.Background(), buildID)
		}(id)
	}
	wg.Wait()

	assert.Len(t, revoker.calls, 20)
	assert.Empty(t, bridge.PendingRemoval())
}

func TestBusFansOutToSubscribers(t *testing.T) {
	bus := NewBus()

	var got []string
	bus.Subscribe(func(_ context.Context, buildID string) {
		got = append(got, "first:"+buildID)
	})
	bus.Subscribe(func(_ context.Context, buildID string) {
		got = append(got, "second:"+buildID)
	})

	bus.BuildFinished(context.Background(), "99")

	assert.Equal(t, []string{"first:99", "second:99"}, got)
}
