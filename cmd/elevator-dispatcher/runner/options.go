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
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/spf13/pflag"
	uberzap "go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"sigs.k8s.io/controller-runtime/pkg/log/zap"

	"github.com/zetxqx/elevator-dispatch/pkg/common/observability/logging"
)

const (
	DefaultHTTPPort      = 8080
	DefaultTickInterval  = time.Second
	DefaultEnablePprof   = true
	DefaultSecureServing = false
	DefaultWatchConfig   = true
	DefaultTracing       = false
	ZapLogLevelFlagName  = "zap-log-level"
)

// Options contains the command-line configuration of the elevator dispatcher.
type Options struct {
	//
	// Fleet.
	//
	FleetSize    int           // Number of cars in the fleet.
	TickInterval time.Duration // Time a car needs to travel one floor.
	//
	// Dispatch configuration.
	//
	ConfigFile  string // Path to the dispatch configuration file.
	ConfigText  string // Dispatch configuration as text, in lieu of a file.
	WatchConfig bool   // Reload ConfigFile when it changes.
	//
	// Serving.
	//
	HTTPPort      int    // Port serving the dispatch API, health checks and metrics.
	SecureServing bool   // Enables TLS on HTTPPort.
	CertPath      string // Directory holding tls.crt and tls.key.
	EnablePprof   bool   // Enables pprof handlers.
	//
	// Diagnostics.
	//
	LogVerbosity int         // Number for the log level verbosity.
	ZapOptions   zap.Options // Zap logging options.
	Tracing      bool        // Enables OpenTelemetry tracing.

	// internal
	fs *pflag.FlagSet // FlagSet used in AddFlags() and consulted in Complete()
}

// NewOptions returns a new Options struct initialized with the default values.
func NewOptions() *Options {
	return &Options{
		TickInterval:  DefaultTickInterval,
		WatchConfig:   DefaultWatchConfig,
		HTTPPort:      DefaultHTTPPort,
		SecureServing: DefaultSecureServing,
		EnablePprof:   DefaultEnablePprof,
		LogVerbosity:  logging.DEFAULT,
		ZapOptions:    zap.Options{Development: true},
		Tracing:       DefaultTracing,
	}
}

// AddFlags binds the Options fields to command-line flags on the given FlagSet.
func (opts *Options) AddFlags(fs *pflag.FlagSet) {
	if fs == nil {
		fs = pflag.CommandLine
	}
	opts.fs = fs

	fs.IntVar(&opts.FleetSize, "fleet-size", opts.FleetSize, "Number of cars in the fleet. Required.")
	fs.DurationVar(&opts.TickInterval, "tick-interval", opts.TickInterval, "Time a car needs to travel one floor.")
	fs.StringVar(&opts.ConfigFile, "config-file", opts.ConfigFile, "The path to the dispatch configuration file.")
	fs.StringVar(&opts.ConfigText, "config-text", opts.ConfigText,
		"The dispatch configuration specified as text, in lieu of a file.")
	fs.BoolVar(&opts.WatchConfig, "watch-config", opts.WatchConfig,
		"Reload the dispatch configuration file when it changes. Ignored without config-file.")
	fs.IntVar(&opts.HTTPPort, "http-port", opts.HTTPPort, "The port serving the dispatch API, health checks and metrics.")
	fs.BoolVar(&opts.SecureServing, "secure-serving", opts.SecureServing, "Enables secure serving.")
	fs.StringVar(&opts.CertPath, "cert-path", opts.CertPath,
		"The path to the certificate for secure serving. The certificate and private key files "+
			"are assumed to be named tls.crt and tls.key, respectively. If not set, and secureServing is enabled, "+
			"then a self-signed certificate is used.")
	fs.BoolVar(&opts.EnablePprof, "enable-pprof", opts.EnablePprof,
		"Enables pprof handlers. Defaults to true. Set to false to disable pprof handlers.")
	fs.IntVarP(&opts.LogVerbosity, "v", "v", opts.LogVerbosity, "Number for the log level verbosity.")
	fs.BoolVar(&opts.Tracing, "tracing", opts.Tracing,
		"Enables OpenTelemetry tracing, configured through the standard OTEL_* environment variables.")

	gofs := flag.NewFlagSet("zap", flag.ExitOnError)
	opts.ZapOptions.BindFlags(gofs) // zap binds to a standard Go FlagSet only.
	fs.AddGoFlagSet(gofs)
}

// BindEnv applies the environment variables that mirror flags. They are soft overrides: a flag given on the
// command line still wins because it is parsed afterwards.
func (opts *Options) BindEnv() {
	// map[ENV_VAR]flagName
	for env, flg := range map[string]string{
		"FLEET_SIZE":     "fleet-size",
		"HTTP_PORT":      "http-port",
		"CONFIG_FILE":    "config-file",
		"CERT_PATH":      "cert-path",
		"TICK_INTERVAL":  "tick-interval",
		"SECURE_SERVING": "secure-serving",
		"ENABLE_TRACING": "tracing",
	} {
		if v := os.Getenv(env); v != "" {
			// ignore error; Validate() catches values that still make no sense
			_ = opts.fs.Set(flg, v)
		}
	}
}

// Complete derives the zap log level from -v unless --zap-log-level was set explicitly.
func (opts *Options) Complete() error {
	zapLogLevelFlag := opts.fs.Lookup(ZapLogLevelFlagName)
	if zapLogLevelFlag != nil && !zapLogLevelFlag.Changed {
		lvl := -1 * (opts.LogVerbosity) // See https://pkg.go.dev/sigs.k8s.io/controller-runtime/pkg/log/zap#Options.Level
		opts.ZapOptions.Level = uberzap.NewAtomicLevelAt(zapcore.Level(int8(lvl)))
		zapLogLevelFlag.Changed = true
	}
	return nil
}

// Validate checks the Options for invalid or conflicting values.
func (opts *Options) Validate() error {
	if opts.FleetSize <= 0 {
		return fmt.Errorf("required %q flag must be positive, got %d", "fleet-size", opts.FleetSize)
	}
	if opts.TickInterval <= 0 {
		return fmt.Errorf("invalid value %v for flag %q: must be positive", opts.TickInterval, "tick-interval")
	}
	if opts.HTTPPort < 1 || opts.HTTPPort > 65535 {
		return fmt.Errorf("invalid value %d for flag %q: must be between 1 and 65535", opts.HTTPPort, "http-port")
	}
	if opts.ConfigFile != "" && opts.ConfigText != "" {
		return errors.New("both the config-file and config-text flags are set; only one may be used")
	}
	if opts.CertPath != "" && !opts.SecureServing {
		return errors.New("cert-path requires secure-serving")
	}
	if opts.LogVerbosity < 0 {
		return fmt.Errorf("invalid value %d for flag %q: must be >= 0", opts.LogVerbosity, "v")
	}
	return nil
}
