// Package telemetry installs the OpenTelemetry SDK providers behind the
// package level tracers and otelslog loggers.
package telemetry

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutlog"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/log"
	"go.opentelemetry.io/otel/log/global"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/koscakluka/ema-voice/internal/config"
)

type Options struct {
	Config config.TelemetryConfig
	// Stdout replaces os.Stdout as the console writer.
	Stdout io.Writer
}

// ShutdownFunc flushes and stops every installed provider.
type ShutdownFunc func(context.Context) error

// Setup installs global logger and tracer providers. Records go to the
// console and a rotating log file; errors also go to a separate file.
func Setup(ctx context.Context, opts Options) (ShutdownFunc, error) {
	stdout := opts.Stdout
	if stdout == nil {
		stdout = os.Stdout
	}

	var closers []func(context.Context) error
	shutdown := func(ctx context.Context) error {
		var errs []error
		for i := len(closers) - 1; i >= 0; i-- {
			errs = append(errs, closers[i](ctx))
		}
		return errors.Join(errs...)
	}

	var processors []sdklog.LoggerProviderOption
	if opts.Config.Stdout {
		exporter, err := stdoutlog.New(stdoutlog.WithWriter(stdout))
		if err != nil {
			return nil, fmt.Errorf("failed to create console log exporter: %w", err)
		}
		processors = append(processors, sdklog.WithProcessor(sdklog.NewSimpleProcessor(exporter)))
	}
	if opts.Config.LogFile != "" {
		processor, writer, err := fileProcessor(opts.Config.LogFile, 10, 5)
		if err != nil {
			return nil, err
		}
		closers = append(closers, func(context.Context) error { return writer.Close() })
		processors = append(processors, sdklog.WithProcessor(processor))
	}
	if opts.Config.ErrorLogFile != "" {
		processor, writer, err := fileProcessor(opts.Config.ErrorLogFile, 5, 3)
		if err != nil {
			_ = shutdown(ctx)
			return nil, err
		}
		closers = append(closers, func(context.Context) error { return writer.Close() })
		processors = append(processors, sdklog.WithProcessor(&severityProcessor{Processor: processor, min: log.SeverityError}))
	}

	loggerProvider := sdklog.NewLoggerProvider(processors...)
	global.SetLoggerProvider(loggerProvider)
	closers = append(closers, loggerProvider.Shutdown)

	if opts.Config.Traces {
		exporter, err := stdouttrace.New(stdouttrace.WithWriter(stdout))
		if err != nil {
			_ = shutdown(ctx)
			return nil, fmt.Errorf("failed to create trace exporter: %w", err)
		}
		tracerProvider := sdktrace.NewTracerProvider(sdktrace.WithBatcher(exporter))
		otel.SetTracerProvider(tracerProvider)
		closers = append(closers, tracerProvider.Shutdown)
	}

	return shutdown, nil
}

// fileProcessor exports JSON records to a file rotated at maxSizeMB.
func fileProcessor(path string, maxSizeMB, maxBackups int) (sdklog.Processor, io.Closer, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, nil, fmt.Errorf("failed to create log directory: %w", err)
	}
	writer := &lumberjack.Logger{
		Filename:   path,
		MaxSize:    maxSizeMB,
		MaxBackups: maxBackups,
	}
	exporter, err := stdoutlog.New(stdoutlog.WithWriter(writer))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create file log exporter: %w", err)
	}
	return sdklog.NewBatchProcessor(exporter), writer, nil
}

// severityProcessor drops records below min.
type severityProcessor struct {
	sdklog.Processor
	min log.Severity
}

func (p *severityProcessor) OnEmit(ctx context.Context, record *sdklog.Record) error {
	if record.Severity() < p.min {
		return nil
	}
	return p.Processor.OnEmit(ctx, record)
}
