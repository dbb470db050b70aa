package config

import (
	"maps"
	"time"

	"github.com/knadh/koanf/v2"

	"github.com/gaborage/upfetch/fetch"
	"github.com/gaborage/upfetch/observability"
)

// Config is the complete upfetch configuration. The koanf instance is kept
// so callers can read keys the struct does not model.
type Config struct {
	App           AppConfig            `json:"app" yaml:"app" mapstructure:"app"`
	Log           LogConfig            `json:"log" yaml:"log" mapstructure:"log"`
	Fetch         FetchConfig          `json:"fetch" yaml:"fetch" mapstructure:"fetch"`
	Upstreams     []UpstreamConfig     `json:"upstreams" yaml:"upstreams" mapstructure:"upstreams" validate:"dive"`
	Observability observability.Config `json:"observability" yaml:"observability" mapstructure:"observability" validate:"-"`

	k *koanf.Koanf `json:"-" yaml:"-" mapstructure:"-"`
}

// AppConfig holds general application settings.
type AppConfig struct {
	Name    string `json:"name" yaml:"name" mapstructure:"name" validate:"required"`
	Version string `json:"version" yaml:"version" mapstructure:"version" validate:"required"`
	Env     string `json:"env" yaml:"env" mapstructure:"env" validate:"required,oneof=development staging production"`
}

// LogConfig holds logger settings.
type LogConfig struct {
	Level  string `json:"level" yaml:"level" mapstructure:"level" validate:"required,oneof=trace debug info warn error fatal disabled"`
	Pretty bool   `json:"pretty" yaml:"pretty" mapstructure:"pretty"`
}

// FetchConfig holds the defaults every fetch client is built with.
type FetchConfig struct {
	Timeout     time.Duration     `json:"timeout" yaml:"timeout" mapstructure:"timeout" validate:"gte=0"`
	Credentials string            `json:"credentials" yaml:"credentials" mapstructure:"credentials" validate:"omitempty,oneof=omit same-origin include"`
	Mode        string            `json:"mode" yaml:"mode" mapstructure:"mode" validate:"omitempty,oneof=cors no-cors same-origin"`
	Redirect    string            `json:"redirect" yaml:"redirect" mapstructure:"redirect" validate:"omitempty,oneof=follow error manual"`
	Origin      string            `json:"origin" yaml:"origin" mapstructure:"origin" validate:"omitempty,url"`
	Headers     map[string]string `json:"headers" yaml:"headers" mapstructure:"headers"`
	Retry       RetryConfig       `json:"retry" yaml:"retry" mapstructure:"retry"`
	Rate        RateConfig        `json:"rate" yaml:"rate" mapstructure:"rate"`
	Coalesce    bool              `json:"coalesce" yaml:"coalesce" mapstructure:"coalesce"`
}

// RetryConfig mirrors fetch.RetryConfig with config-friendly keys.
type RetryConfig struct {
	Retries int           `json:"retries" yaml:"retries" mapstructure:"retries" validate:"gte=0"`
	Min     time.Duration `json:"min" yaml:"min" mapstructure:"min" validate:"gte=0"`
	Max     time.Duration `json:"max" yaml:"max" mapstructure:"max" validate:"gte=0,gtefield=Min"`
}

// RateConfig throttles outgoing requests. A zero Limit disables throttling.
type RateConfig struct {
	Limit float64 `json:"limit" yaml:"limit" mapstructure:"limit" validate:"gte=0"`
	Burst int     `json:"burst" yaml:"burst" mapstructure:"burst" validate:"gte=0"`
}

// UpstreamConfig is one candidate for fetch-any.
type UpstreamConfig struct {
	URI         string            `json:"uri" yaml:"uri" mapstructure:"uri" validate:"required,url"`
	Credentials string            `json:"credentials" yaml:"credentials" mapstructure:"credentials" validate:"omitempty,oneof=omit same-origin include"`
	Mode        string            `json:"mode" yaml:"mode" mapstructure:"mode" validate:"omitempty,oneof=cors no-cors same-origin"`
	Headers     map[string]string `json:"headers" yaml:"headers" mapstructure:"headers"`
}

// RetryConfig converts the retry section.
func (f *FetchConfig) RetryConfig() fetch.RetryConfig {
	return fetch.RetryConfig{
		Retries:    f.Retry.Retries,
		MinTimeout: f.Retry.Min,
		MaxTimeout: f.Retry.Max,
	}
}

// Options converts the request defaults. Empty fields stay empty so the
// client's built-in defaults apply.
func (f *FetchConfig) Options() fetch.Options {
	return fetch.Options{
		Credentials: fetch.Credentials(f.Credentials),
		Mode:        fetch.Mode(f.Mode),
		Redirect:    fetch.Redirect(f.Redirect),
		Headers:     maps.Clone(f.Headers),
	}
}

// Upstream converts the entry into a fetch-any candidate.
func (u UpstreamConfig) Upstream() fetch.Upstream {
	return fetch.Upstream{
		URI: u.URI,
		Options: fetch.Options{
			Credentials: fetch.Credentials(u.Credentials),
			Mode:        fetch.Mode(u.Mode),
			Headers:     maps.Clone(u.Headers),
		},
	}
}

// UpstreamList converts every configured upstream, preserving order.
func (c *Config) UpstreamList() []fetch.Upstream {
	out := make([]fetch.Upstream, 0, len(c.Upstreams))
	for _, u := range c.Upstreams {
		out = append(out, u.Upstream())
	}
	return out
}

// Koanf returns the underlying koanf instance, or nil for a Config not
// produced by Load.
func (c *Config) Koanf() *koanf.Koanf {
	return c.k
}
