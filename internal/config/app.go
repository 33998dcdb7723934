package config

import (
	"time"

	"github.com/spf13/viper"
)

// App holds process-level settings shared by every entry point.
type App struct {
	// LogConfigFile points at a zap JSON config; empty uses the built-in logger.
	LogConfigFile   string        `mapstructure:"log_config_file"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

func Setup(v *viper.Viper, prefix string) {
	SetDefaults(v, prefix, map[string]any{
		"log_config_file":  "",
		"shutdown_timeout": "15s",
	})
}
