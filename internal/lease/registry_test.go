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

package lease

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/forgeci/vaultbroker/internal/settings"
	brokererrors "github.com/forgeci/vaultbroker/pkg/errors"
	"github.com/forgeci/vaultbroker/pkg/vault"
)

// fakeStore is an httptest-backed approle endpoint counting login calls.
type fakeStore struct {
	srv    *httptest.Server
	logins atomic.Int32
	fail   atomic.Bool
}

func newFakeStore(t *testing.T) *fakeStore {
	t.Helper()
	fs := &fakeStore{}
	fs.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v1/auth/approle/login":
			n := fs.logins.Add(1)
			if fs.fail.Load() {
				w.WriteHeader(http.StatusBadRequest)
				_, _ = w.Write([]byte(`{"errors":["failed to validate SecretID: expired"]}`))
				return
			}
			if r.Header.Get("X-Vault-Wrap-TTL") != "" {
				_ = json.NewEncoder(w).Encode(vault.Response{
					WrapInfo: &vault.WrapInfo{
						Token:           "wrap-" + itoa(n),
						WrappedAccessor: "acc-" + itoa(n),
					},
				})
				return
			}
			_ = json.NewEncoder(w).Encode(vault.Response{
				Auth: &vault.AuthBlock{ClientToken: "s.direct-" + itoa(n), Accessor: "acc-direct-" + itoa(n)},
			})
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(fs.srv.Close)
	return fs
}

func itoa(n int32) string {
	return strconv.Itoa(int(n))
}

func (fs *fakeStore) settings(namespace string) settings.Settings {
	return settings.Settings{
		URL:       fs.srv.URL,
		Namespace: namespace,
		VerifyTLS: true,
		Method:    settings.AuthMethodAppRole,
		Endpoint:  "approle",
		RoleID:    "build-role",
		SecretID:  "s3cret",
	}
}

func TestRequestWrappedToken_SingleIssuanceUnderConcurrency(t *testing.T) {
	fs := newFakeStore(t)
	reg := NewRegistry(Config{})

	const callers = 32
	tokens := make([]string, callers)
	errs := make([]error, callers)

	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			tokens[i], errs[i] = reg.RequestWrappedToken(context.Background(), "build-1", fs.settings("ns"))
		}(i)
	}
	wg.Wait()

	if got := fs.logins.Load(); got != 1 {
		t.Errorf("login calls = %d, want exactly 1", got)
	}
	for i := 0; i < callers; i++ {
		if errs[i] != nil {
			t.Fatalf("caller %d error: %v", i, errs[i])
		}
		if tokens[i] != tokens[0] {
			t.Errorf("caller %d token = %q, want %q", i, tokens[i], tokens[0])
		}
	}
}

func TestRequestWrappedToken_PerNamespace(t *testing.T) {
	fs := newFakeStore(t)
	reg := NewRegistry(Config{})

	tok1, err := reg.RequestWrappedToken(context.Background(), "build-1", fs.settings("ns-a"))
	if err != nil {
		t.Fatal(err)
	}
	tok2, err := reg.RequestWrappedToken(context.Background(), "build-1", fs.settings("ns-b"))
	if err != nil {
		t.Fatal(err)
	}

	if tok1 == tok2 {
		t.Error("different namespaces must get distinct leases")
	}
	if got := fs.logins.Load(); got != 2 {
		t.Errorf("login calls = %d, want 2", got)
	}
}

func TestRequestWrappedToken_FailureRecordedPerBuild(t *testing.T) {
	fs := newFakeStore(t)
	fs.fail.Store(true)
	reg := NewRegistry(Config{})

	// First caller gets the real authentication error.
	_, err := reg.RequestWrappedToken(context.Background(), "build-1", fs.settings("ns"))
	var authErr *brokererrors.AuthError
	if !brokererrors.As(err, &authErr) {
		t.Fatalf("first error = %T (%v), want *AuthError", err, err)
	}

	// Later callers short-circuit without hitting the store.
	fs.fail.Store(false)
	_, err = reg.RequestWrappedToken(context.Background(), "build-1", fs.settings("ns"))
	if !brokererrors.Is(err, brokererrors.ErrIssuanceFailed) {
		t.Errorf("second error = %v, want ErrIssuanceFailed", err)
	}
	if got := fs.logins.Load(); got != 1 {
		t.Errorf("login calls = %d, want 1 (no retry within build)", got)
	}

	// A different build is unaffected by the recorded failure.
	if _, err := reg.RequestWrappedToken(context.Background(), "build-2", fs.settings("ns")); err != nil {
		t.Errorf("other build failed: %v", err)
	}
}

func TestRequestDirectToken_NotCached(t *testing.T) {
	fs := newFakeStore(t)
	reg := NewRegistry(Config{})

	tok1, err := reg.RequestDirectToken(context.Background(), fs.settings("ns"))
	if err != nil {
		t.Fatal(err)
	}
	tok2, err := reg.RequestDirectToken(context.Background(), fs.settings("ns"))
	if err != nil {
		t.Fatal(err)
	}

	if got := fs.logins.Load(); got != 2 {
		t.Errorf("login calls = %d, want 2 (direct tokens are never cached)", got)
	}
	if tok1.Token == "" || tok1.Accessor == "" {
		t.Errorf("token = %+v", tok1)
	}
	if tok1.Token == tok2.Token {
		t.Error("direct logins must mint distinct sessions")
	}
}

func TestTakeBuild(t *testing.T) {
	fs := newFakeStore(t)
	reg := NewRegistry(Config{})

	if _, err := reg.RequestWrappedToken(context.Background(), "build-1", fs.settings("ns-a")); err != nil {
		t.Fatal(err)
	}
	if _, err := reg.RequestWrappedToken(context.Background(), "build-1", fs.settings("ns-b")); err != nil {
		t.Fatal(err)
	}

	// Record one failure in the same build; TakeBuild must skip it.
	fs.fail.Store(true)
	_, _ = reg.RequestWrappedToken(context.Background(), "build-1", fs.settings("ns-c"))

	leases := reg.TakeBuild("build-1")
	if len(leases) != 2 {
		t.Fatalf("leases = %d, want 2 (failure entries skipped)", len(leases))
	}
	for _, l := range leases {
		if l.BuildID != "build-1" || l.Accessor == "" {
			t.Errorf("lease = %+v", l)
		}
	}

	if reg.BuildCount() != 0 {
		t.Errorf("registry still holds %d builds", reg.BuildCount())
	}
	if again := reg.TakeBuild("build-1"); len(again) != 0 {
		t.Errorf("second TakeBuild returned %d leases", len(again))
	}
}

func TestTakeBuild_UnknownBuild(t *testing.T) {
	reg := NewRegistry(Config{})
	if leases := reg.TakeBuild("never-seen"); len(leases) != 0 {
		t.Errorf("leases = %v, want none", leases)
	}
}

func TestRequestWrappedToken_RequestTimeout(t *testing.T) {
	release := make(chan struct{})
	slow := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		<-release
	}))
	t.Cleanup(func() {
		close(release)
		slow.Close()
	})

	reg := NewRegistry(Config{RequestTimeout: 50 * time.Millisecond})
	s := settings.Settings{
		URL:       slow.URL,
		VerifyTLS: true,
		Method:    settings.AuthMethodAppRole,
		Endpoint:  "approle",
		RoleID:    "build-role",
		SecretID:  "s3cret",
	}

	_, err := reg.RequestWrappedToken(context.Background(), "77", s)
	if err == nil {
		t.Fatal("login against a stalled store must fail once the request timeout elapses")
	}
}
