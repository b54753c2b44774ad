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

package common

import (
	"context"
	"fmt"
	"os"
	"strconv"

	"github.com/go-logr/logr"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.37.0"

	"github.com/zetxqx/elevator-dispatch/pkg/common/observability/logging"
	"github.com/zetxqx/elevator-dispatch/version"
)

const (
	defaultServiceName  = "elevator-dispatcher"
	defaultOTLPEndpoint = "http://localhost:4317"
	defaultSamplerRatio = 0.1
)

type errorHandler struct {
	logger logr.Logger
}

func (h *errorHandler) Handle(err error) {
	h.logger.V(logging.DEFAULT).Error(err, "trace error occurred")
}

// InitTracing installs a global tracer provider configured from the standard OTEL_* environment variables. The
// provider is flushed and shut down when ctx is done.
func InitTracing(ctx context.Context, logger logr.Logger) error {
	logger = logger.WithName("trace")
	loggerWrap := &errorHandler{logger: logger}

	serviceName, ok := os.LookupEnv("OTEL_SERVICE_NAME")
	if !ok {
		serviceName = defaultServiceName
	}
	if _, ok := os.LookupEnv("OTEL_EXPORTER_OTLP_ENDPOINT"); !ok {
		os.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", defaultOTLPEndpoint)
	}

	traceExporter, err := initTraceExporter(ctx, logger)
	if err != nil {
		loggerWrap.Handle(fmt.Errorf("%s: %v", "init trace exporter failed", err))
		return err
	}

	tracerProvider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(traceExporter),
		sdktrace.WithSampler(samplerFromEnv(loggerWrap)),
		sdktrace.WithResource(resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(serviceName),
			semconv.ServiceVersion(version.Ref()),
		)),
	)
	otel.SetTracerProvider(tracerProvider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(propagation.TraceContext{}, propagation.Baggage{}))
	otel.SetErrorHandler(loggerWrap)

	go func() {
		<-ctx.Done()
		if err := tracerProvider.Shutdown(context.Background()); err != nil {
			loggerWrap.Handle(fmt.Errorf("%s: %v", "failed to shutdown TraceProvider", err))
		}
		logger.V(logging.DEFAULT).Info("trace provider shutting down")
	}()

	return nil
}

// samplerFromEnv reads OTEL_TRACES_SAMPLER and OTEL_TRACES_SAMPLER_ARG. The Go SDK has no automatic sampler
// configuration, so the supported subset is handled here.
func samplerFromEnv(h *errorHandler) sdktrace.Sampler {
	samplerType, ok := os.LookupEnv("OTEL_TRACES_SAMPLER")
	if !ok {
		samplerType = "parentbased_traceidratio"
	}
	fraction := defaultSamplerRatio
	if arg, ok := os.LookupEnv("OTEL_TRACES_SAMPLER_ARG"); ok {
		if f, err := strconv.ParseFloat(arg, 64); err == nil {
			fraction = f
		}
	}

	switch samplerType {
	case "parentbased_traceidratio":
		return sdktrace.ParentBased(sdktrace.TraceIDRatioBased(fraction))
	case "always_on":
		return sdktrace.AlwaysSample()
	case "always_off":
		return sdktrace.NeverSample()
	}
	h.Handle(fmt.Errorf("unsupported sampler type: %s, fallback to parentbased_traceidratio with %v ratio", samplerType, defaultSamplerRatio))
	return sdktrace.ParentBased(sdktrace.TraceIDRatioBased(defaultSamplerRatio))
}

// initTraceExporter creates a SpanExporter. Supported exporter types:
// - console: export spans in console for development use case
// - otlp: export spans through gRPC to an opentelemetry collector
func initTraceExporter(ctx context.Context, logger logr.Logger) (sdktrace.SpanExporter, error) {
	exporterType, ok := os.LookupEnv("OTEL_TRACES_EXPORTER")
	if !ok {
		exporterType = "console"
	}
	logger.Info("init OTel trace exporter", "type", exporterType)

	switch exporterType {
	case "otlp":
		exp, err := otlptracegrpc.New(ctx, otlptracegrpc.WithInsecure())
		if err != nil {
			return nil, fmt.Errorf("failed to create otlp-grpc exporter: %w", err)
		}
		return exp, nil
	case "console":
		exp, err := stdouttrace.New(stdouttrace.WithPrettyPrint())
		if err != nil {
			return nil, fmt.Errorf("failed to create stdouttrace exporter: %w", err)
		}
		return exp, nil
	}
	return nil, fmt.Errorf("unsupported trace exporter %q", exporterType)
}
