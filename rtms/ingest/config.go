package ingest

import (
	"time"

	"github.com/spf13/viper"

	"github.com/imtaco/rtms-ingest/rtms/registry"
	"github.com/imtaco/rtms-ingest/rtms/stream"
)

const defaultSubscriberBuffer = 1024

type Config struct {
	ClientID             string        `mapstructure:"client_id"`
	ClientSecret         string        `mapstructure:"client_secret"`
	MediaTypes           []string      `mapstructure:"media_types"`
	ReconnectBackoff     time.Duration `mapstructure:"reconnect_backoff"`
	ReconnectMaxAttempts int           `mapstructure:"reconnect_max_attempts"`
	HandshakeTimeout     time.Duration `mapstructure:"handshake_timeout"`
	EnableGapFilling     bool          `mapstructure:"enable_gap_filling"`
	MetadataCacheSize    int           `mapstructure:"metadata_cache_size"`
	UseUnifiedSocket     bool          `mapstructure:"use_unified_socket"`
	MaxConcurrentStreams int           `mapstructure:"max_concurrent_streams"`
	SubscriberBuffer     int           `mapstructure:"subscriber_buffer"`
	PayloadEncryption    bool          `mapstructure:"payload_encryption"`
}

func Setup(v *viper.Viper, prefix string) {
	p := func(key string) string { return prefix + "." + key }

	v.SetDefault(p("client_id"), "")
	v.SetDefault(p("client_secret"), "")
	v.SetDefault(p("media_types"), []string{"all"})
	v.SetDefault(p("reconnect_backoff"), "3s")
	v.SetDefault(p("reconnect_max_attempts"), 0) // 0 means retry forever
	v.SetDefault(p("handshake_timeout"), "10s")
	v.SetDefault(p("enable_gap_filling"), false)
	v.SetDefault(p("metadata_cache_size"), registry.DefaultCacheSize)
	v.SetDefault(p("use_unified_socket"), false)
	v.SetDefault(p("max_concurrent_streams"), 0)
	v.SetDefault(p("subscriber_buffer"), defaultSubscriberBuffer)
	v.SetDefault(p("payload_encryption"), false)
}

// Defaults fills zero values, for configs built without viper.
func (c Config) Defaults() Config {
	if c.ReconnectBackoff <= 0 {
		c.ReconnectBackoff = stream.DefaultBackoff
	}
	if c.HandshakeTimeout <= 0 {
		c.HandshakeTimeout = stream.DefaultHandshakeTimeout
	}
	if c.MetadataCacheSize <= 0 {
		c.MetadataCacheSize = registry.DefaultCacheSize
	}
	if c.SubscriberBuffer <= 0 {
		c.SubscriberBuffer = defaultSubscriberBuffer
	}
	return c
}
