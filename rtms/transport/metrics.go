package transport

import (
	"go.opentelemetry.io/otel/metric"

	intotel "github.com/imtaco/rtms-ingest/internal/otel"
)

var (
	webhooksReceived metric.Int64Counter
	webhooksRejected metric.Int64Counter
	urlValidations   metric.Int64Counter
)

func init() {
	f := intotel.NewFactory("rtms.transport", intotel.PrefixIngest)

	f.Int64Counter(&webhooksReceived, "webhooks.received",
		metric.WithDescription("Platform notifications accepted"))

	f.Int64Counter(&webhooksRejected, "webhooks.rejected",
		metric.WithDescription("Platform notifications rejected by signature or validation"))

	f.Int64Counter(&urlValidations, "webhooks.url_validations",
		metric.WithDescription("Endpoint validation challenges answered"))
}
