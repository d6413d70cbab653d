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

// Package config loads the broker daemon's configuration from a YAML
// file with environment variable overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/forgeci/vaultbroker/internal/tracing"
)

// ErrInvalidConfig is returned when configuration validation fails.
var ErrInvalidConfig = errors.New("config: invalid configuration")

// Config is the complete daemon configuration.
type Config struct {
	Listen  Listen         `yaml:"listen"`
	Log     Log            `yaml:"log"`
	Broker  Broker         `yaml:"broker"`
	Tracing tracing.Config `yaml:"tracing,omitempty"`
}

// Listen configures the daemon's HTTP listener.
type Listen struct {
	// Addr is the address to bind.
	// Environment: VAULTBROKER_LISTEN
	// Default: 127.0.0.1:8195
	Addr string `yaml:"addr,omitempty"`

	// TLSCert and TLSKey enable TLS when both are set.
	TLSCert string `yaml:"tls_cert,omitempty"`
	TLSKey  string `yaml:"tls_key,omitempty"`
}

// Log configures daemon logging.
type Log struct {
	// Level is debug, info, warn, or error.
	// Environment: VAULTBROKER_LOG_LEVEL
	Level string `yaml:"level,omitempty"`

	// Format is "json" or "text".
	// Environment: LOG_FORMAT
	Format string `yaml:"format,omitempty"`
}

// Broker configures lease issuance and revocation behavior.
type Broker struct {
	// WrapTTL bounds how long issued wrapping tokens stay exchangeable.
	// Default: 5m
	WrapTTL time.Duration `yaml:"wrap_ttl,omitempty"`

	// RequestTimeout bounds each secret-store HTTP request.
	// Default: 30s
	RequestTimeout time.Duration `yaml:"request_timeout,omitempty"`

	// ShutdownTimeout is the maximum wait for graceful shutdown.
	// Default: 10s
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout,omitempty"`
}

// Default returns a configuration with defaults applied.
func Default() *Config {
	return &Config{
		Listen: Listen{Addr: "127.0.0.1:8195"},
		Log:    Log{Level: "info", Format: "text"},
		Broker: Broker{
			WrapTTL:         5 * time.Minute,
			RequestTimeout:  30 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
	}
}

// Load reads configuration from path, falling back to defaults when path
// is empty or the file does not exist, then applies environment overrides.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("config: reading %s: %w", path, err)
			}
		} else if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("config: parsing %s: %w", path, err)
		}
	}

	applyEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("VAULTBROKER_LISTEN"); v != "" {
		cfg.Listen.Addr = v
	}
	if v := os.Getenv("VAULTBROKER_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		cfg.Log.Format = v
	}
}

// Validate checks the configuration for inconsistencies.
func (c *Config) Validate() error {
	if c.Listen.Addr == "" {
		return fmt.Errorf("%w: listen.addr must not be empty", ErrInvalidConfig)
	}
	if (c.Listen.TLSCert == "") != (c.Listen.TLSKey == "") {
		return fmt.Errorf("%w: listen.tls_cert and listen.tls_key must be set together", ErrInvalidConfig)
	}
	if c.Broker.WrapTTL <= 0 {
		return fmt.Errorf("%w: broker.wrap_ttl must be positive", ErrInvalidConfig)
	}
	if c.Broker.RequestTimeout <= 0 {
		return fmt.Errorf("%w: broker.request_timeout must be positive", ErrInvalidConfig)
	}
	return nil
}
