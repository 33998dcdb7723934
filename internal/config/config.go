package config

import (
	"os"
	"strings"

	"github.com/spf13/viper"
)

// EnvPrefix namespaces environment overrides: app.shutdown_timeout is read
// from RTMS_APP_SHUTDOWN_TIMEOUT.
const EnvPrefix = "RTMS"

// fileEnv names an optional YAML/JSON/TOML file merged under env overrides.
const fileEnv = EnvPrefix + "_CONFIG_FILE"

// SetDefaults registers defaults for the keys under prefix.
func SetDefaults(v *viper.Viper, prefix string, defaults map[string]any) {
	for key, val := range defaults {
		v.SetDefault(prefix+"."+key, val)
	}
}

func NewViper() *viper.Viper {
	v := viper.New()

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.SetEnvPrefix(EnvPrefix)
	v.AutomaticEnv()

	return v
}

// Load applies defaults through configure, merges the optional config file
// and unmarshals into c. Env values win over both.
func Load[T any](c *T, configure func(v *viper.Viper)) (*T, error) {
	v := NewViper()
	configure(v)

	if file := strings.TrimSpace(os.Getenv(fileEnv)); file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return nil, err
		}
	}
	return c, v.Unmarshal(c)
}
