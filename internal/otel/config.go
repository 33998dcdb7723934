package otel

import (
	"time"

	"github.com/spf13/viper"

	"github.com/imtaco/rtms-ingest/internal/config"
)

// Config selects which signals are exported and where. Both exporters share
// the collector endpoint.
type Config struct {
	ServiceName string        `mapstructure:"service_name"`
	Endpoint    string        `mapstructure:"endpoint"`
	Insecure    bool          `mapstructure:"insecure"`
	Timeout     time.Duration `mapstructure:"timeout"`

	TracingEnabled bool    `mapstructure:"tracing_enabled"`
	SamplingRate   float64 `mapstructure:"sampling_rate"`

	MetricsEnabled        bool          `mapstructure:"metrics_enabled"`
	MetricsExportInterval time.Duration `mapstructure:"metrics_export_interval"`
	RuntimeMetricsEnabled bool          `mapstructure:"go_metrics_enabled"`
}

func Setup(v *viper.Viper, prefix string) {
	config.SetDefaults(v, prefix, map[string]any{
		"service_name": "rtms-ingest",
		"endpoint":     "localhost:4317",
		"insecure":     true,
		"timeout":      "10s",

		"tracing_enabled": false,
		"sampling_rate":   0.1,

		"metrics_enabled":         false,
		"metrics_export_interval": "30s",
		"go_metrics_enabled":      false,
	})
}
