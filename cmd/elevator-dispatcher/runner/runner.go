/*
Copyright 2025 The Kubernetes Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package runner

import (
	"context"
	cryptotls "crypto/tls"
	"fmt"
	"net/http"
	"time"

	"github.com/go-logr/logr"
	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"
	ctrl "sigs.k8s.io/controller-runtime"
	crmetrics "sigs.k8s.io/controller-runtime/pkg/metrics"

	"github.com/zetxqx/elevator-dispatch/internal/runnable"
	"github.com/zetxqx/elevator-dispatch/internal/tls"
	"github.com/zetxqx/elevator-dispatch/pkg/common"
	"github.com/zetxqx/elevator-dispatch/pkg/common/filewatch"
	"github.com/zetxqx/elevator-dispatch/pkg/common/observability/logging"
	"github.com/zetxqx/elevator-dispatch/pkg/elevator/config/loader"
	"github.com/zetxqx/elevator-dispatch/pkg/elevator/controller"
	"github.com/zetxqx/elevator-dispatch/pkg/elevator/dispatch"
	"github.com/zetxqx/elevator-dispatch/pkg/elevator/dispatch/framework"
	"github.com/zetxqx/elevator-dispatch/pkg/elevator/metrics"
	"github.com/zetxqx/elevator-dispatch/pkg/elevator/server"
	"github.com/zetxqx/elevator-dispatch/pkg/elevator/telemetry"
	"github.com/zetxqx/elevator-dispatch/version"
)

const readHeaderTimeout = 10 * time.Second

var setupLog = ctrl.Log.WithName("setup")

// Runner is used to run the elevator dispatcher with its plugins.
type Runner struct {
	strategy framework.Strategy
}

// NewRunner initializes a new Runner and returns its pointer.
func NewRunner() *Runner {
	return &Runner{}
}

// WithStrategy replaces the configured dispatch strategy; config-file and config-text are then ignored.
func (r *Runner) WithStrategy(s framework.Strategy) *Runner {
	r.strategy = s
	return r
}

func (r *Runner) Run(ctx context.Context) error {
	logging.InitSetupLogging()

	opts := NewOptions()
	opts.AddFlags(pflag.CommandLine)
	opts.BindEnv()
	pflag.Parse()
	if err := opts.Complete(); err != nil {
		return err
	}
	logging.InitLogging(&opts.ZapOptions)

	setupLog.Info("Elevator dispatcher build", "commit-sha", version.CommitSHA, "build-ref", version.Ref())

	if err := opts.Validate(); err != nil {
		setupLog.Error(err, "Failed to validate flags")
		return err
	}

	// Print all flag values
	flags := make(map[string]any)
	pflag.VisitAll(func(f *pflag.Flag) {
		flags[f.Name] = f.Value
	})
	setupLog.Info("Flags processed", "flags", flags)

	if opts.Tracing {
		if err := common.InitTracing(ctx, setupLog); err != nil {
			return err
		}
	}

	metrics.Register()
	dispatch.RegisterAllPlugins()

	strategy := r.strategy
	if strategy == nil {
		var err error
		if strategy, err = loadStrategy(ctx, setupLog, opts.ConfigFile, opts.ConfigText, opts.WatchConfig); err != nil {
			setupLog.Error(err, "Failed to load the dispatch configuration")
			return err
		}
	}

	cfg, err := controller.LoadConfigFromEnv(setupLog,
		controller.WithFleetSize(opts.FleetSize),
		controller.WithTickInterval(opts.TickInterval))
	if err != nil {
		setupLog.Error(err, "Invalid controller configuration")
		return err
	}
	ctl, err := controller.NewController(*cfg, ctrl.Log,
		controller.WithStrategy(strategy),
		controller.WithObservers(telemetry.NewLogObserver(ctrl.Log), telemetry.NewMetricsObserver()))
	if err != nil {
		setupLog.Error(err, "Failed to create the controller")
		return err
	}
	for _, snap := range ctl.Cars() {
		metrics.RecordCarFloor(int(snap.ID), snap.Floor)
		metrics.RecordCarMotion(int(snap.ID), int(snap.Motion))
	}

	tlsConfig, err := serverTLSConfig(ctx, opts.SecureServing, opts.CertPath)
	if err != nil {
		setupLog.Error(err, "Failed to set up secure serving")
		return err
	}
	srv := &http.Server{
		Handler: server.NewHandler(ctl, ctrl.Log, server.Options{
			Gatherer:    crmetrics.Registry,
			EnablePprof: opts.EnablePprof,
		}),
		ReadHeaderTimeout: readHeaderTimeout,
		TLSConfig:         tlsConfig,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return runnable.Background(ctl).Start(gctx) })
	g.Go(func() error { return runnable.HTTPServer("dispatch-api", srv, opts.HTTPPort).Start(gctx) })

	setupLog.Info("Elevator dispatcher starting", "cars", cfg.FleetSize, "port", opts.HTTPPort)
	if err := g.Wait(); err != nil {
		setupLog.Error(err, "Elevator dispatcher failed")
		return err
	}
	setupLog.Info("Elevator dispatcher stopped")
	return nil
}

// loadStrategy builds the dispatch strategy from a file or inline text. The default nearest-car strategy is used
// when neither is given. A file based strategy is reloaded on change if watch is set.
func loadStrategy(ctx context.Context, logger logr.Logger, file, text string, watch bool) (framework.Strategy, error) {
	switch {
	case file != "":
		profile, err := loader.LoadConfigFile(file, logger)
		if err != nil {
			return nil, err
		}
		if !watch {
			return profile, nil
		}
		reloadable := dispatch.NewReloadable(profile)
		if err := loader.WatchConfigFile(ctx, file, filewatch.DefaultDebounce, reloadable); err != nil {
			return nil, err
		}
		return reloadable, nil
	case text != "":
		profile, err := loader.LoadConfig([]byte(text), logger)
		if err != nil {
			return nil, err
		}
		return profile, nil
	}
	logger.Info("No dispatch configuration given, using the nearest-car strategy")
	return dispatch.NewNearestCarStrategy(), nil
}

// serverTLSConfig returns nil when secure serving is off. With a cert path the key pair there is served and
// reloaded on change; otherwise a self-signed certificate is generated.
func serverTLSConfig(ctx context.Context, secure bool, path string) (*cryptotls.Config, error) {
	if !secure {
		return nil, nil
	}
	if path != "" {
		init, err := common.LoadKeyPair(path)
		if err != nil {
			return nil, err
		}
		reloader, err := common.NewCertReloader(ctx, path, init)
		if err != nil {
			return nil, err
		}
		return reloader.TLSConfig(), nil
	}
	cert, err := tls.CreateSelfSignedTLSCertificate(setupLog, "localhost")
	if err != nil {
		return nil, fmt.Errorf("failed to create self signed certificate - %w", err)
	}
	return &cryptotls.Config{MinVersion: cryptotls.VersionTLS12, Certificates: []cryptotls.Certificate{cert}}, nil
}
