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

// Package daemon assembles the broker: lease registry, revocation engine,
// lifecycle bridge, and the HTTP API that CI agents and the build server
// call.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/forgeci/vaultbroker/internal/config"
	"github.com/forgeci/vaultbroker/internal/lease"
	"github.com/forgeci/vaultbroker/internal/lifecycle"
	"github.com/forgeci/vaultbroker/internal/log"
	"github.com/forgeci/vaultbroker/internal/metrics"
	"github.com/forgeci/vaultbroker/internal/revoke"
)

// Options carries build-time identification.
type Options struct {
	Version   string
	Commit    string
	BuildDate string
}

// Daemon is the assembled broker process.
type Daemon struct {
	cfg    *config.Config
	opts   Options
	logger *slog.Logger

	registry *lease.Registry
	engine   *revoke.Engine
	bridge   *lifecycle.Bridge
	bus      *lifecycle.Bus
	promReg  *prometheus.Registry

	// revocations tracks in-flight build-finished processing so shutdown
	// can wait for revocations already started.
	revocations sync.WaitGroup

	server *http.Server
}

// New wires the broker components together.
func New(cfg *config.Config, opts Options) (*Daemon, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger := slog.Default()

	promReg := prometheus.NewRegistry()
	promReg.MustRegister(collectors.NewGoCollector())
	promReg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(promReg)

	registry := lease.NewRegistry(lease.Config{
		WrapTTL:        cfg.Broker.WrapTTL,
		RequestTimeout: cfg.Broker.RequestTimeout,
		Logger:         logger,
		Metrics:        m,
	})
	engine := revoke.New(revoke.Config{
		Tokens:         registry,
		RequestTimeout: cfg.Broker.RequestTimeout,
		Logger:         logger,
	})
	bridge := lifecycle.New(lifecycle.Config{
		Leases:  registry,
		Revoker: engine,
		Logger:  logger,
		Metrics: m,
	})

	bus := lifecycle.NewBus()
	bus.Subscribe(bridge.OnBuildFinished)

	d := &Daemon{
		cfg:      cfg,
		opts:     opts,
		logger:   log.WithComponent(logger, "daemon"),
		registry: registry,
		engine:   engine,
		bridge:   bridge,
		bus:      bus,
		promReg:  promReg,
	}
	d.server = &http.Server{
		Addr:              cfg.Listen.Addr,
		Handler:           d.routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return d, nil
}

// Start runs the HTTP listener until the server is shut down or fails.
func (d *Daemon) Start(ctx context.Context) error {
	d.logger.Info("broker listening",
		"addr", d.cfg.Listen.Addr,
		"version", d.opts.Version,
	)

	errCh := make(chan error, 1)
	go func() {
		var err error
		if d.cfg.Listen.TLSCert != "" {
			err = d.server.ListenAndServeTLS(d.cfg.Listen.TLSCert, d.cfg.Listen.TLSKey)
		} else {
			err = d.server.ListenAndServe()
		}
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
		errCh <- err
	}()

	select {
	case <-ctx.Done():
		return nil
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("daemon: serve: %w", err)
		}
		return nil
	}
}

// Shutdown stops the listener gracefully, bounded by the configured
// shutdown timeout.
func (d *Daemon) Shutdown(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, d.cfg.Broker.ShutdownTimeout)
	defer cancel()

	err := d.server.Shutdown(ctx)

	done := make(chan struct{})
	go func() {
		d.revocations.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		d.logger.Warn("shutdown deadline reached with revocations still running")
	}

	if pending := d.bridge.PendingRemoval(); len(pending) > 0 {
		d.logger.Warn("shutting down with leases pending removal",
			"pending_count", len(pending),
		)
	}
	return err
}
