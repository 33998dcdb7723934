package stream

import (
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	intotel "github.com/imtaco/rtms-ingest/internal/otel"
	"github.com/imtaco/rtms-ingest/rtms"
)

var (
	activeStreams   metric.Int64UpDownCounter
	reconnectsTotal metric.Int64Counter
	framesReceived  metric.Int64Counter
	framesDropped   metric.Int64Counter
	fillerFrames    metric.Int64Counter
)

func init() {
	f := intotel.NewFactory("rtms.stream", intotel.PrefixIngest)

	f.Int64UpDownCounter(&activeStreams, "streams.active",
		metric.WithDescription("Stream handlers currently running"))

	f.Int64Counter(&reconnectsTotal, "reconnects.total",
		metric.WithDescription("Reconnect attempts by channel"))

	f.Int64Counter(&framesReceived, "frames.received",
		metric.WithDescription("Frames published to subscribers"))

	f.Int64Counter(&framesDropped, "frames.stale",
		metric.WithDescription("Frames discarded because their channel was replaced or stopped"))

	f.Int64Counter(&fillerFrames, "frames.synthetic",
		metric.WithDescription("Silent frames inserted to cover reconnect gaps"))
}

func channelAttr(name string) metric.AddOption {
	return metric.WithAttributes(attribute.String("channel", name))
}

func mediaAttr(t rtms.MediaType) metric.AddOption {
	return metric.WithAttributes(attribute.String("media", t.String()))
}
