package registry

import (
	"context"

	"go.opentelemetry.io/otel/metric"

	intotel "github.com/imtaco/rtms-ingest/internal/otel"
)

var (
	ctxBackground = context.Background()

	cacheEvictions metric.Int64Counter
)

func init() {
	f := intotel.NewFactory("rtms.registry", intotel.PrefixIngest)

	f.Int64Counter(&cacheEvictions, "metadata.evicted",
		metric.WithDescription("Archived stream metadata evicted from the cache"))
}
