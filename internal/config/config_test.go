package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/suite"
)

type testConfig struct {
	App  App    `mapstructure:"app"`
	Name string `mapstructure:"name"`
}

func configure(v *viper.Viper) {
	Setup(v, "app")
	v.SetDefault("name", "default")
}

type ConfigTestSuite struct {
	suite.Suite
}

func TestConfigSuite(t *testing.T) {
	suite.Run(t, new(ConfigTestSuite))
}

func (s *ConfigTestSuite) TestDefaults() {
	cfg, err := Load(&testConfig{}, configure)
	s.Require().NoError(err)
	s.Equal("default", cfg.Name)
	s.Equal(15*time.Second, cfg.App.ShutdownTimeout)
	s.Empty(cfg.App.LogConfigFile)
}

func (s *ConfigTestSuite) TestEnvOverride() {
	s.T().Setenv("RTMS_NAME", "from-env")
	s.T().Setenv("RTMS_APP_SHUTDOWN_TIMEOUT", "3s")

	cfg, err := Load(&testConfig{}, configure)
	s.Require().NoError(err)
	s.Equal("from-env", cfg.Name)
	s.Equal(3*time.Second, cfg.App.ShutdownTimeout)
}

func (s *ConfigTestSuite) TestConfigFile() {
	file := filepath.Join(s.T().TempDir(), "ingest.yaml")
	s.Require().NoError(os.WriteFile(file, []byte("name: from-file\napp:\n  shutdown_timeout: 7s\n"), 0o600))
	s.T().Setenv("RTMS_CONFIG_FILE", file)
	s.T().Setenv("RTMS_NAME", "from-env")

	cfg, err := Load(&testConfig{}, configure)
	s.Require().NoError(err)
	s.Equal("from-env", cfg.Name)
	s.Equal(7*time.Second, cfg.App.ShutdownTimeout)
}

func (s *ConfigTestSuite) TestMissingConfigFile() {
	s.T().Setenv("RTMS_CONFIG_FILE", filepath.Join(s.T().TempDir(), "nope.yaml"))

	_, err := Load(&testConfig{}, configure)
	s.Error(err)
}
