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

package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/forgeci/vaultbroker/internal/log"
	"github.com/forgeci/vaultbroker/internal/settings"
	brokererrors "github.com/forgeci/vaultbroker/pkg/errors"
)

// leaseRequest asks for a wrapped token on behalf of a build.
type leaseRequest struct {
	BuildID    string            `json:"build_id"`
	Connection map[string]string `json:"connection"`
}

// leaseResponse returns the wrapped token. The build exchanges it for the
// real session token itself; the accessor stays server-side.
type leaseResponse struct {
	WrappedToken string `json:"wrapped_token"`
}

// tokenRequest asks for a direct, unwrapped session token.
type tokenRequest struct {
	Connection map[string]string `json:"connection"`
}

type tokenResponse struct {
	Token    string `json:"token"`
	Accessor string `json:"accessor"`
}

type pendingLease struct {
	BuildID   string `json:"build_id"`
	Namespace string `json:"namespace"`
	Accessor  string `json:"accessor"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (d *Daemon) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/leases", d.handleRequestLease)
	mux.HandleFunc("POST /v1/tokens", d.handleRequestToken)
	mux.HandleFunc("POST /v1/builds/{build}/finished", d.handleBuildFinished)
	mux.HandleFunc("GET /v1/pending", d.handlePending)
	mux.HandleFunc("GET /healthz", d.handleHealth)
	mux.Handle("GET /metrics", promhttp.HandlerFor(d.promReg, promhttp.HandlerOpts{}))
	return mux
}

func (d *Daemon) handleRequestLease(w http.ResponseWriter, r *http.Request) {
	var req leaseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}
	if req.BuildID == "" {
		writeError(w, http.StatusBadRequest, "build_id is required")
		return
	}

	s, err := settings.FromMap(req.Connection)
	if err == nil {
		err = s.Validate()
	}
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	token, err := d.registry.RequestWrappedToken(r.Context(), req.BuildID, s)
	if err != nil {
		writeError(w, issuanceStatus(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, leaseResponse{WrappedToken: token})
}

func (d *Daemon) handleRequestToken(w http.ResponseWriter, r *http.Request) {
	var req tokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}

	s, err := settings.FromMap(req.Connection)
	if err == nil {
		err = s.Validate()
	}
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	token, err := d.registry.RequestDirectToken(r.Context(), s)
	if err != nil {
		writeError(w, issuanceStatus(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, tokenResponse{Token: token.Token, Accessor: token.Accessor})
}

func (d *Daemon) handleBuildFinished(w http.ResponseWriter, r *http.Request) {
	buildID := r.PathValue("build")
	if buildID == "" {
		writeError(w, http.StatusBadRequest, "build id is required")
		return
	}

	d.logger.Debug("build finished notification", log.BuildIDKey, buildID)

	// Revocation must not die with the notifier's connection: the CI server
	// only reports the build's end and has no stake in the outcome. Run it
	// on the daemon's own lifetime and acknowledge immediately.
	d.revocations.Add(1)
	go func() {
		defer d.revocations.Done()
		d.bus.BuildFinished(context.Background(), buildID)
	}()
	w.WriteHeader(http.StatusAccepted)
}

func (d *Daemon) handlePending(w http.ResponseWriter, _ *http.Request) {
	leases := d.bridge.PendingRemoval()
	out := make([]pendingLease, 0, len(leases))
	for _, l := range leases {
		out = append(out, pendingLease{
			BuildID:   l.BuildID,
			Namespace: l.Settings.Namespace,
			Accessor:  l.Accessor,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"pending": out})
}

func (d *Daemon) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"version": d.opts.Version,
		"builds":  d.registry.BuildCount(),
	})
}

// issuanceStatus maps an issuance failure onto an HTTP status. Bad
// credentials and recorded in-build failures surface as 502 because the
// broker itself is healthy; the upstream store rejected us.
func issuanceStatus(err error) int {
	var authErr *brokererrors.AuthError
	if errors.As(err, &authErr) || errors.Is(err, brokererrors.ErrIssuanceFailed) {
		return http.StatusBadGateway
	}
	var transportErr *brokererrors.TransportError
	if errors.As(err, &transportErr) {
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}
