package channel

import (
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	intotel "github.com/imtaco/rtms-ingest/internal/otel"
)

var (
	handshakes        metric.Int64Counter
	frameDecodeErrors metric.Int64Counter
	handshakeLatency  metric.Float64Histogram

	tracer trace.Tracer = intotel.Tracer("rtms.channel")

	okAttr     = metric.WithAttributes(attribute.String("result", "ok"))
	failedAttr = metric.WithAttributes(attribute.String("result", "failed"))
)

func init() {
	f := intotel.NewFactory("rtms.channel", intotel.PrefixIngest)

	f.Int64Counter(&handshakes, "handshakes.total",
		metric.WithDescription("Handshakes attempted by signaling and media channels"))

	f.Int64Counter(&frameDecodeErrors, "messages.decode_failed",
		metric.WithDescription("Inbound messages dropped because they could not be decoded"))

	f.Float64Histogram(&handshakeLatency, "handshake.duration",
		metric.WithDescription("Time from dial to handshake response"),
		metric.WithUnit("s"))
}
