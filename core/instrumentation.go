package orchestration

import (
	"go.opentelemetry.io/contrib/bridges/otelslog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const scopeName = "github.com/koscakluka/ema-voice/core"

var (
	tracer = otel.Tracer(scopeName)
	meter  = otel.Meter(scopeName)
	logger = otelslog.NewLogger(scopeName)
)

var (
	turnCounter, _ = meter.Int64Counter("ema.turns",
		metric.WithDescription("Completed pipeline runs by outcome"),
		metric.WithUnit("{turn}"),
	)
	stageDuration, _ = meter.Float64Histogram("ema.stage.duration",
		metric.WithDescription("Duration of pipeline stages"),
		metric.WithUnit("ms"),
	)
)
