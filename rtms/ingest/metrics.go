package ingest

import (
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	intotel "github.com/imtaco/rtms-ingest/internal/otel"
)

var (
	streamsStarted metric.Int64Counter
	eventsDropped  metric.Int64Counter
)

func init() {
	f := intotel.NewFactory("rtms.ingest", intotel.PrefixIngest)

	f.Int64Counter(&streamsStarted, "streams.started",
		metric.WithDescription("Stream handlers created from start notifications"))

	f.Int64Counter(&eventsDropped, "events.dropped",
		metric.WithDescription("Events dropped because a subscriber queue was full"))
}

func kindAttr(k Kind) metric.AddOption {
	return metric.WithAttributes(attribute.String("kind", string(k)))
}
