package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	cfg.Transport.Mode = "http"
	cfg.Transport.HTTP.Security.APIKeys = []APIKeyEntry{{Name: "default", Key: "s3cr3t"}}
	return cfg
}

func TestConfigValidate_Defaults(t *testing.T) {
	cfg := &Config{}
	applyDefaults(cfg)
	require.NoError(t, cfg.Validate())
}

func TestConfigValidate_HTTPRequiresAPIKeyUnlessDevFlag(t *testing.T) {
	cfg := &Config{}
	applyDefaults(cfg)
	cfg.Transport.Mode = "http"

	err := cfg.Validate()
	assert.ErrorContains(t, err, "api key")

	cfg.Transport.HTTP.Security.DisableAuth = true
	assert.NoError(t, cfg.Validate())
}

func TestConfigValidate_RejectsBadPort(t *testing.T) {
	cfg := validConfig()
	cfg.Transport.HTTP.Port = 70000
	assert.Error(t, cfg.Validate())
}

func TestConfigValidate_RejectsInvertedPoolSizes(t *testing.T) {
	cfg := validConfig()
	cfg.Async.CorePoolSize = 10
	cfg.Async.MaxPoolSize = 2
	assert.ErrorContains(t, cfg.Validate(), "maxPoolSize")
}

func TestConfigValidate_RejectsNonPositiveRateLimit(t *testing.T) {
	cfg := validConfig()
	cfg.RateLimit.Capacity = 0
	assert.Error(t, cfg.Validate())
}

func TestConfigValidate_RejectsTraversalInStorePath(t *testing.T) {
	cfg := validConfig()
	cfg.Store.Path = "../../etc/passwd"
	assert.ErrorContains(t, cfg.Validate(), "store.path")
}

func TestConfigValidate_TelemetryRequiresServiceName(t *testing.T) {
	cfg := validConfig()
	cfg.Telemetry.Enabled = true
	cfg.Telemetry.ServiceName = ""
	assert.ErrorContains(t, cfg.Validate(), "service-name")
}
