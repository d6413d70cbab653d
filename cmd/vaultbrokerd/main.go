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

package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/forgeci/vaultbroker/internal/config"
	"github.com/forgeci/vaultbroker/internal/daemon"
	"github.com/forgeci/vaultbroker/internal/log"
	"github.com/forgeci/vaultbroker/internal/tracing"
)

// Version information (injected via ldflags at build time)
var (
	version   = "dev"
	commit    = "unknown"
	buildDate = "unknown"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var (
		configPath string
		listenAddr string
		logLevel   string
	)

	cmd := &cobra.Command{
		Use:   "vaultbrokerd",
		Short: "Secret-store credential broker for CI builds",
		Long: `vaultbrokerd issues short-lived, response-wrapped secret-store tokens
to CI builds and revokes them when builds finish. Each build gets at most
one token per store namespace; builds exchange the wrapped token for the
real session token themselves, so the broker never holds usable
credentials longer than the wrapping TTL.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, buildDate),
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context(), configPath, listenAddr, logLevel)
		},
	}

	cmd.Flags().StringVar(&configPath, "config", "", "Path to config file")
	cmd.Flags().StringVar(&listenAddr, "listen", "", "Address to listen on")
	cmd.Flags().StringVar(&logLevel, "log-level", "", "Log level (debug, info, warn, error)")
	return cmd
}

func run(ctx context.Context, configPath, listenAddr, logLevel string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	// CLI flag overrides
	if listenAddr != "" {
		cfg.Listen.Addr = listenAddr
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}

	logCfg := log.FromEnv()
	if cfg.Log.Level != "" {
		logCfg.Level = cfg.Log.Level
	}
	if cfg.Log.Format != "" {
		logCfg.Format = log.Format(cfg.Log.Format)
	}
	logger := log.New(logCfg)
	slog.SetDefault(logger)

	traceShutdown, err := tracing.Setup(ctx, cfg.Tracing, "vaultbrokerd", version)
	if err != nil {
		return fmt.Errorf("setting up tracing: %w", err)
	}
	defer func() {
		if err := traceShutdown(context.Background()); err != nil {
			logger.Warn("trace exporter shutdown failed", log.Error(err))
		}
	}()

	d, err := daemon.New(cfg, daemon.Options{
		Version:   version,
		Commit:    commit,
		BuildDate: buildDate,
	})
	if err != nil {
		return fmt.Errorf("creating daemon: %w", err)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	errCh := make(chan error, 1)
	go func() {
		errCh <- d.Start(ctx)
	}()

	select {
	case sig := <-sigCh:
		logger.Info("shutting down", "signal", sig.String())
		cancel()
		if err := d.Shutdown(context.Background()); err != nil {
			logger.Error("shutdown error", log.Error(err))
		}
		return nil
	case err := <-errCh:
		return err
	}
}
