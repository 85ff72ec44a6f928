package tracesvc

import (
	"context"
	"io"
	"os"

	"github.com/pkg/errors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/trezcool/curricula/core"
)

// NewProvider returns a tracer provider exporting spans to w as JSON, one span per line.
func NewProvider(conf *core.Config, w io.Writer) (*sdktrace.TracerProvider, error) {
	exp, err := stdouttrace.New(stdouttrace.WithWriter(w))
	if err != nil {
		return nil, errors.Wrap(err, "creating span exporter")
	}
	res := resource.NewSchemaless(
		attribute.String("service.name", conf.AppName),
		attribute.String("service.version", conf.Build),
		attribute.String("deployment.environment", conf.Env),
	)
	return sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exp),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(conf.Tracing.SampleRatio))),
	), nil
}

// Setup installs the global tracer provider when tracing is enabled.
// The returned func flushes pending spans and closes the output.
func Setup(conf *core.Config) (func(context.Context) error, error) {
	if !conf.Tracing.Enabled {
		return func(context.Context) error { return nil }, nil
	}

	w, closeOutput, err := openOutput(conf.Tracing.Output)
	if err != nil {
		return nil, err
	}
	tp, err := NewProvider(conf, w)
	if err != nil {
		_ = closeOutput()
		return nil, err
	}
	otel.SetTracerProvider(tp)

	return func(ctx context.Context) error {
		err := tp.Shutdown(ctx)
		if cerr := closeOutput(); err == nil {
			err = cerr
		}
		return errors.Wrap(err, "stopping tracing")
	}, nil
}

// openOutput accepts "stderr" (default), "stdout" or a file path, appended to.
func openOutput(name string) (io.Writer, func() error, error) {
	noop := func() error { return nil }
	switch name {
	case "", "stderr":
		return os.Stderr, noop, nil
	case "stdout":
		return os.Stdout, noop, nil
	}
	f, err := os.OpenFile(name, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, errors.Wrapf(err, "opening trace output %s", name)
	}
	return f, f.Close, nil
}
