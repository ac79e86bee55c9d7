package synthesis

import (
	"go.opentelemetry.io/contrib/bridges/otelslog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const scopeName = "github.com/koscakluka/ema-voice/core/synthesis"

var (
	tracer = otel.Tracer(scopeName)
	meter  = otel.Meter(scopeName)
	logger = otelslog.NewLogger(scopeName)
)

var skippedCounter, _ = meter.Int64Counter("ema.synthesis.skipped_segments",
	metric.WithDescription("Segments left out of the response audio"),
	metric.WithUnit("{segment}"),
)
