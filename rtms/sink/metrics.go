package sink

import (
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	intotel "github.com/imtaco/rtms-ingest/internal/otel"
)

var (
	eventsPublished metric.Int64Counter
	eventsFailed    metric.Int64Counter

	tracer trace.Tracer = intotel.Tracer("rtms.sink")
)

func init() {
	f := intotel.NewFactory("rtms.sink", intotel.PrefixIngest)

	f.Int64Counter(&eventsPublished, "sink.published",
		metric.WithDescription("Events appended to the redis stream"))

	f.Int64Counter(&eventsFailed, "sink.failed",
		metric.WithDescription("Events that could not be appended after retries"))
}
