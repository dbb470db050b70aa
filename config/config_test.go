package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gaborage/upfetch/fetch"
)

const testUpstreamYAML = `
app:
  name: alert-fetcher
  env: staging
fetch:
  timeout: 5s
  origin: https://ui.example.com
  headers:
    Accept: application/json
  retry:
    retries: 3
    min: 100ms
    max: 1s
  rate:
    limit: 20
    burst: 5
upstreams:
  - uri: https://am-0.example.com/api/v2/alerts
  - uri: https://am-1.example.com/api/v2/alerts
    mode: no-cors
    headers:
      Authorization: Bearer t
observability:
  enabled: true
  service:
    name: alert-fetcher
  trace:
    sample:
      rate: 0.25
`

func noEnv() []string { return nil }

func TestLoadDefaults(t *testing.T) {
	cfg, err := LoadFrom(Source{Environ: noEnv})
	require.NoError(t, err)

	assert.Equal(t, "upfetch", cfg.App.Name)
	assert.Equal(t, EnvDevelopment, cfg.App.Env)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.False(t, cfg.Log.Pretty)

	assert.Equal(t, 30*time.Second, cfg.Fetch.Timeout)
	assert.Equal(t, fetch.DefaultRetryConfig(), cfg.Fetch.RetryConfig())
	assert.Equal(t, fetch.DefaultOptions(), cfg.Fetch.Options())
	assert.InDelta(t, 0.0, cfg.Fetch.Rate.Limit, 0.0001)
	assert.Empty(t, cfg.Upstreams)
	assert.False(t, cfg.Observability.Enabled)
	assert.NotNil(t, cfg.Koanf())
}

func TestLoadBytes(t *testing.T) {
	cfg, err := LoadFrom(Source{Bytes: []byte(testUpstreamYAML), Environ: noEnv})
	require.NoError(t, err)

	assert.Equal(t, "alert-fetcher", cfg.App.Name)
	assert.Equal(t, EnvStaging, cfg.App.Env)
	assert.Equal(t, 5*time.Second, cfg.Fetch.Timeout)
	assert.Equal(t, "https://ui.example.com", cfg.Fetch.Origin)
	assert.Equal(t, fetch.RetryConfig{Retries: 3, MinTimeout: 100 * time.Millisecond, MaxTimeout: time.Second}, cfg.Fetch.RetryConfig())
	assert.InDelta(t, 20.0, cfg.Fetch.Rate.Limit, 0.0001)
	assert.Equal(t, 5, cfg.Fetch.Rate.Burst)

	opts := cfg.Fetch.Options()
	assert.Equal(t, "application/json", opts.Headers["Accept"])
	opts.Headers["Accept"] = "text/plain"
	assert.Equal(t, "application/json", cfg.Fetch.Headers["Accept"], "options carry a copy of the headers")

	upstreams := cfg.UpstreamList()
	require.Len(t, upstreams, 2)
	assert.Equal(t, "https://am-0.example.com/api/v2/alerts", upstreams[0].URI)
	assert.Equal(t, fetch.Options{}, upstreams[0].Options)
	assert.Equal(t, fetch.ModeNoCORS, upstreams[1].Options.Mode)
	assert.Equal(t, "Bearer t", upstreams[1].Options.Headers["Authorization"])

	assert.True(t, cfg.Observability.Enabled)
	assert.Equal(t, "alert-fetcher", cfg.Observability.Service.Name)
	require.NotNil(t, cfg.Observability.Trace.Sample.Rate)
	assert.InDelta(t, 0.25, *cfg.Observability.Trace.Sample.Rate, 0.0001)
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "upfetch.yaml")
	require.NoError(t, os.WriteFile(path, []byte("log:\n  level: debug\n  pretty: true\n"), 0o600))

	cfg, err := LoadFrom(Source{File: path, Environ: noEnv})
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Log.Level)
	assert.True(t, cfg.Log.Pretty)
}

func TestLoadMissingExplicitFile(t *testing.T) {
	_, err := LoadFrom(Source{File: filepath.Join(t.TempDir(), "absent.yaml"), Environ: noEnv})

	var cfgErr *ConfigError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, "load", cfgErr.Category)
}

func TestLoadMalformedBytes(t *testing.T) {
	_, err := LoadFrom(Source{Bytes: []byte("fetch: [unclosed"), Environ: noEnv})

	var cfgErr *ConfigError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, "raw config", cfgErr.Field)
}

func TestLoadEnvironmentOverrides(t *testing.T) {
	environ := func() []string {
		return []string{
			"UPFETCH_FETCH_RETRY_RETRIES=2",
			"UPFETCH_FETCH_RETRY_MIN=10ms",
			"UPFETCH_LOG_LEVEL=warn",
			"UPFETCH_FETCH_MODE=no-cors",
			"OTHER_LOG_LEVEL=debug",
		}
	}

	cfg, err := LoadFrom(Source{Bytes: []byte(testUpstreamYAML), Environ: environ})
	require.NoError(t, err)

	assert.Equal(t, 2, cfg.Fetch.Retry.Retries)
	assert.Equal(t, 10*time.Millisecond, cfg.Fetch.Retry.Min)
	assert.Equal(t, time.Second, cfg.Fetch.Retry.Max, "file value survives")
	assert.Equal(t, "warn", cfg.Log.Level)
	assert.Equal(t, fetch.ModeNoCORS, cfg.Fetch.Options().Mode)
}

func TestLoadUsesProcessEnvironment(t *testing.T) {
	t.Setenv("UPFETCH_APP_NAME", "from-env")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.App.Name)
}

func TestLoadValidationErrors(t *testing.T) {
	tests := []struct {
		name     string
		yaml     string
		category string
		field    string
	}{
		{"bad env", "app:\n  env: qa\n", "invalid", "app.env"},
		{"empty name", "app:\n  name: \"\"\n", "missing", "app.name"},
		{"bad log level", "log:\n  level: loud\n", "invalid", "log.level"},
		{"negative retries", "fetch:\n  retry:\n    retries: -1\n", "invalid", "fetch.retry.retries"},
		{"max below min", "fetch:\n  retry:\n    min: 3s\n    max: 1s\n", "invalid", "fetch.retry.max"},
		{"bad mode", "fetch:\n  mode: navigate\n", "invalid", "fetch.mode"},
		{"relative upstream", "upstreams:\n  - uri: /alerts\n", "invalid", "upstreams[0].uri"},
		{"missing upstream uri", "upstreams:\n  - mode: cors\n", "missing", "upstreams[0].uri"},
		{"observability without name", "observability:\n  enabled: true\n  service:\n    name: \"\"\n", "invalid", "observability"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadFrom(Source{Bytes: []byte(tt.yaml), Environ: noEnv})

			var cfgErr *ConfigError
			require.ErrorAs(t, err, &cfgErr)
			assert.Equal(t, tt.category, cfgErr.Category)
			assert.Equal(t, tt.field, cfgErr.Field)
		})
	}
}

func TestConfigErrorMessage(t *testing.T) {
	err := NewMissingFieldError("app.name")
	assert.Equal(t, "config_missing: app.name required set UPFETCH_APP_NAME env var or add app.name to the config file", err.Error())

	err = NewInvalidFieldError("fetch.mode", `invalid value "x"`, []string{"cors", "no-cors"})
	assert.Equal(t, `config_invalid: fetch.mode invalid value "x" must be one of: cors, no-cors`, err.Error())

	err = &ConfigError{Category: "load", Field: "a.yaml", Details: []string{"one", "two"}}
	assert.Equal(t, "config_load: a.yaml one; two", err.Error())
}

func TestEnvVarFor(t *testing.T) {
	assert.Equal(t, "UPFETCH_FETCH_RETRY_RETRIES", EnvVarFor("fetch.retry.retries"))
}
