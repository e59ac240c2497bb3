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

package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/united-manufacturing-hub/component-manager/pkg/api"
	"github.com/united-manufacturing-hub/component-manager/pkg/component"
	"github.com/united-manufacturing-hub/component-manager/pkg/config"
	"github.com/united-manufacturing-hub/component-manager/pkg/env"
	"github.com/united-manufacturing-hub/component-manager/pkg/hooks"
	"github.com/united-manufacturing-hub/component-manager/pkg/logger"
	"github.com/united-manufacturing-hub/component-manager/pkg/metrics"
	"github.com/united-manufacturing-hub/component-manager/pkg/resolver"
	"github.com/united-manufacturing-hub/component-manager/pkg/routing"
	"github.com/united-manufacturing-hub/component-manager/pkg/runner"
	"github.com/united-manufacturing-hub/component-manager/pkg/sentry"
)

// Set with -ldflags "-X main.appVersion=..."
var appVersion = sentry.DefaultAppVersion

const (
	builtinRunner = "builtin"
	// Exit code asking the supervisor to restart the service.
	exitCodeReboot = 3
	// Budget for draining the HTTP servers after the tree is down.
	serverShutdownTimeout = 3 * time.Second
)

func main() {
	logger.Initialize()
	defer func() {
		_ = logger.Sync()
	}()

	log := logger.For(logger.ComponentCore)
	log.Infow("Starting component-manager", "version", appVersion)

	configPath, err := env.GetAsString("CONFIG_PATH", false, config.DefaultConfigPath)
	if err != nil {
		sentry.ReportIssuef(sentry.IssueTypeWarning, log, "Failed to get CONFIG_PATH: %w", err)
	}

	cfg, err := config.Load(configPath, logger.For(logger.ComponentConfig))
	if err != nil {
		log.Errorw("Failed to load config", "path", configPath, "error", err)
		os.Exit(1)
	}

	sentry.InitSentry(cfg.Sentry.DSN, appVersion, true)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rebootRequested := make(chan string, 1)

	model, err := buildModel(ctx, cfg, rebootRequested)
	if err != nil {
		sentry.ReportIssuef(sentry.IssueTypeFatal, log, "Failed to build component model: %w", err)
		os.Exit(1)
	}

	metricsServer := metrics.SetupMetricsEndpoint(fmt.Sprintf(":%d", cfg.Server.MetricsPort))

	gin.SetMode(gin.ReleaseMode)
	apiServer := api.NewServer(model, api.DefaultRequestTimeout, logger.For(logger.ComponentAPI)).
		ListenAndServe(fmt.Sprintf(":%d", cfg.Server.APIPort))

	if cfg.Root.ShouldAutoStart() {
		if err := model.Start(ctx); err != nil {
			sentry.ReportIssuef(sentry.IssueTypeError, log, "Failed to start root component: %w", err)
		}
	}

	exitCode := 0

	select {
	case <-ctx.Done():
		log.Infow("Received shutdown signal")
	case reason := <-rebootRequested:
		log.Warnw("Reboot requested, shutting down", "reason", reason)

		exitCode = exitCodeReboot
	}

	// The signal context is done at this point, so the tree gets its own.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownBudget(cfg))
	defer cancel()

	if err := model.Shutdown(shutdownCtx); err != nil {
		sentry.ReportIssuef(sentry.IssueTypeError, log, "Failed to shut down component tree: %w", err)

		exitCode = 1
	}

	shutdownServers(log, metricsServer, apiServer)

	log.Infow("component-manager stopped", "exit_code", exitCode)

	if exitCode != 0 {
		_ = logger.Sync()

		os.Exit(exitCode)
	}
}

func buildModel(ctx context.Context, cfg config.Config, rebootRequested chan<- string) (*component.Model, error) {
	resolverLog := logger.For(logger.ComponentResolver)

	directory := resolver.NewDirectory(cfg.Resolvers.ManifestDir, resolverLog)
	httpResolver := resolver.NewHTTP(&http.Client{Timeout: cfg.Resolvers.HTTPTimeout}, resolverLog)

	var (
		fileResolver resolver.Resolver = directory
		webResolver  resolver.Resolver = httpResolver
	)

	if cfg.Resolvers.CacheTTL > 0 {
		cachedFiles := resolver.NewCaching(directory, cfg.Resolvers.CacheTTL)
		fileResolver = cachedFiles
		webResolver = resolver.NewCaching(httpResolver, cfg.Resolvers.CacheTTL)

		if cfg.Resolvers.Watch {
			err := directory.Watch(ctx, func(rawURL string) {
				resolverLog.Debugw("manifest_changed", "url", rawURL)
				cachedFiles.Invalidate(rawURL)
			})
			if err != nil {
				sentry.ReportIssuef(sentry.IssueTypeWarning, resolverLog, "Failed to watch manifests: %w", err)
			}
		}
	}

	resolvers := resolver.NewRegistry()
	for scheme, res := range map[string]resolver.Resolver{
		resolver.SchemeFile: fileResolver,
		"http":              webResolver,
		"https":             webResolver,
	} {
		if err := resolvers.Register(scheme, res); err != nil {
			return nil, err
		}
	}

	builtin := runner.NewBuiltin(logger.For(logger.ComponentRunner))
	registerPrograms(builtin)

	runners := runner.NewRegistry()
	runners.Register(builtinRunner, builtin)

	dispatcher := hooks.NewDispatcher()
	dispatcher.Subscribe(hooks.NewLoggingHook(logger.For(logger.ComponentHooks)))

	return component.NewModel(component.ModelParams{
		RootURL:     cfg.Root.URL,
		Resolvers:   resolvers,
		Runners:     runners,
		Hooks:       dispatcher,
		Router:      routing.NewLocalStorage(cfg.Storage.Dir, logger.For(logger.ComponentStorage)),
		StopTimeout: cfg.Timeouts.Stop,
		KillTimeout: cfg.Timeouts.Kill,
		Rebooter: component.RebooterFunc(func(_ context.Context, reason string) error {
			select {
			case rebootRequested <- reason:
			default:
			}

			return nil
		}),
	})
}

// registerPrograms installs the in-process programs manifests can name via
// program.info.binary.
func registerPrograms(b *runner.Builtin) {
	// idle runs until asked to stop.
	b.Register("idle", func(ctx context.Context, proc *runner.Process) error {
		select {
		case <-proc.Stopping():
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	})

	// oneshot exits right away, for single-run collections.
	b.Register("oneshot", func(context.Context, *runner.Process) error {
		return nil
	})
}

// shutdownBudget leaves room for every stop to escalate to a kill.
func shutdownBudget(cfg config.Config) time.Duration {
	return 10 * (cfg.Timeouts.Stop + cfg.Timeouts.Kill)
}

func shutdownServers(log *zap.SugaredLogger, servers ...*http.Server) {
	ctx, cancel := context.WithTimeout(context.Background(), serverShutdownTimeout)
	defer cancel()

	for _, server := range servers {
		if err := server.Shutdown(ctx); err != nil {
			sentry.ReportIssuef(sentry.IssueTypeError, log, "Failed to shut down server %s: %w", server.Addr, err)
		}
	}
}
