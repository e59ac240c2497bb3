// Copyright 2025 UMH Systems GmbH
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

package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/tiendc/go-deepcopy"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/united-manufacturing-hub/component-manager/pkg/env"
	"github.com/united-manufacturing-hub/component-manager/pkg/sentry"
)

const (
	DefaultConfigPath      = "/data/component-manager.yaml"
	DefaultManifestDir     = "/data/manifests"
	DefaultStorageDir      = "/data/storage"
	DefaultRootURL         = "file:///root.yaml"
	DefaultStopTimeout     = 5 * time.Second
	DefaultKillTimeout     = 1 * time.Second
	DefaultResolverTimeout = 10 * time.Second
	DefaultCacheTTL        = 30 * time.Second
	DefaultMetricsPort     = 8080
	DefaultAPIPort         = 8090
)

// Config is the service configuration of the component manager binary.
type Config struct {
	Root      RootConfig     `yaml:"root"`
	Resolvers ResolverConfig `yaml:"resolvers"`
	Timeouts  TimeoutConfig  `yaml:"timeouts"`
	Storage   StorageConfig  `yaml:"storage"`
	Server    ServerConfig   `yaml:"server"`
	Sentry    SentryConfig   `yaml:"sentry"`
}

type RootConfig struct {
	// URL of the root component declaration.
	URL string `yaml:"url"`
	// Start the root after the model is built.
	AutoStart *bool `yaml:"autoStart,omitempty"`
}

type ResolverConfig struct {
	// ManifestDir backs the file:// scheme.
	ManifestDir string `yaml:"manifestDir"`
	// Watch invalidates cached manifests when files in ManifestDir change.
	Watch bool `yaml:"watch"`
	// HTTPTimeout bounds a single http(s):// manifest fetch.
	HTTPTimeout time.Duration `yaml:"httpTimeout"`
	// CacheTTL is how long a resolved declaration is reused. Zero disables the cache.
	CacheTTL time.Duration `yaml:"cacheTTL"`
}

type TimeoutConfig struct {
	Stop time.Duration `yaml:"stop"`
	Kill time.Duration `yaml:"kill"`
}

type StorageConfig struct {
	Dir string `yaml:"dir"`
}

type ServerConfig struct {
	MetricsPort int `yaml:"metricsPort"`
	APIPort     int `yaml:"apiPort"`
}

type SentryConfig struct {
	DSN string `yaml:"dsn"`
}

// ShouldAutoStart reports whether the root is started on boot. Defaults to true.
func (r RootConfig) ShouldAutoStart() bool {
	return r.AutoStart == nil || *r.AutoStart
}

// Default returns a configuration with every field set to its default.
func Default() Config {
	var c Config
	c.applyDefaults()

	return c
}

func (c *Config) applyDefaults() {
	if c.Root.URL == "" {
		c.Root.URL = DefaultRootURL
	}

	if c.Resolvers.ManifestDir == "" {
		c.Resolvers.ManifestDir = DefaultManifestDir
	}

	if c.Resolvers.HTTPTimeout == 0 {
		c.Resolvers.HTTPTimeout = DefaultResolverTimeout
	}

	if c.Timeouts.Stop == 0 {
		c.Timeouts.Stop = DefaultStopTimeout
	}

	if c.Timeouts.Kill == 0 {
		c.Timeouts.Kill = DefaultKillTimeout
	}

	if c.Storage.Dir == "" {
		c.Storage.Dir = DefaultStorageDir
	}

	if c.Server.MetricsPort == 0 {
		c.Server.MetricsPort = DefaultMetricsPort
	}

	if c.Server.APIPort == 0 {
		c.Server.APIPort = DefaultAPIPort
	}
}

// Validate rejects configurations the service cannot run with.
func (c Config) Validate() error {
	if c.Timeouts.Stop < 0 || c.Timeouts.Kill < 0 {
		return fmt.Errorf("timeouts must not be negative (stop=%s, kill=%s)", c.Timeouts.Stop, c.Timeouts.Kill)
	}

	if c.Resolvers.CacheTTL < 0 {
		return fmt.Errorf("resolver cache TTL must not be negative: %s", c.Resolvers.CacheTTL)
	}

	if c.Server.MetricsPort == c.Server.APIPort {
		return fmt.Errorf("metrics port and API port must differ (both %d)", c.Server.APIPort)
	}

	return nil
}

// Clone creates a deep copy of Config
func (c Config) Clone() Config {
	var clone Config
	_ = deepcopy.Copy(&clone, &c)

	return clone
}

// Parse decodes a YAML document and applies defaults.
func Parse(data []byte) (Config, error) {
	var c Config
	if err := yaml.Unmarshal(data, &c); err != nil {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}

	c.applyDefaults()

	return c, nil
}

// Load reads the config file at path. A missing file yields the defaults.
//
// Order of precedence (highest to lowest):
// 1. Environment variables (ROOT_URL, MANIFEST_DIR, STORAGE_DIR, METRICS_PORT, API_PORT, STOP_TIMEOUT, SENTRY_DSN)
// 2. Config file values
// 3. Default values
func Load(path string, log *zap.SugaredLogger) (Config, error) {
	data, err := os.ReadFile(path)

	var c Config

	switch {
	case errors.Is(err, fs.ErrNotExist):
		log.Infof("No config file at %s, using defaults", path)

		c = Default()
	case err != nil:
		return Config{}, fmt.Errorf("failed to read config %s: %w", path, err)
	default:
		c, err = Parse(data)
		if err != nil {
			return Config{}, err
		}
	}

	c = applyEnvOverrides(c, log)

	if err := c.Validate(); err != nil {
		return Config{}, err
	}

	return c, nil
}

func applyEnvOverrides(c Config, log *zap.SugaredLogger) Config {
	out := c.Clone()

	var err error

	if out.Root.URL, err = env.GetAsString("ROOT_URL", false, out.Root.URL); err != nil {
		sentry.ReportIssuef(sentry.IssueTypeWarning, log, "Failed to get ROOT_URL: %w", err)
	}

	if out.Resolvers.ManifestDir, err = env.GetAsString("MANIFEST_DIR", false, out.Resolvers.ManifestDir); err != nil {
		sentry.ReportIssuef(sentry.IssueTypeWarning, log, "Failed to get MANIFEST_DIR: %w", err)
	}

	if out.Storage.Dir, err = env.GetAsString("STORAGE_DIR", false, out.Storage.Dir); err != nil {
		sentry.ReportIssuef(sentry.IssueTypeWarning, log, "Failed to get STORAGE_DIR: %w", err)
	}

	if out.Server.MetricsPort, err = env.GetAsInt("METRICS_PORT", false, out.Server.MetricsPort); err != nil {
		sentry.ReportIssuef(sentry.IssueTypeWarning, log, "Failed to get METRICS_PORT: %w", err)
	}

	if out.Server.APIPort, err = env.GetAsInt("API_PORT", false, out.Server.APIPort); err != nil {
		sentry.ReportIssuef(sentry.IssueTypeWarning, log, "Failed to get API_PORT: %w", err)
	}

	if out.Timeouts.Stop, err = env.GetAsDuration("STOP_TIMEOUT", false, out.Timeouts.Stop); err != nil {
		sentry.ReportIssuef(sentry.IssueTypeWarning, log, "Failed to get STOP_TIMEOUT: %w", err)
	}

	if out.Sentry.DSN, err = env.GetAsString("SENTRY_DSN", false, out.Sentry.DSN); err != nil {
		sentry.ReportIssuef(sentry.IssueTypeWarning, log, "Failed to get SENTRY_DSN: %w", err)
	}

	return out
}
