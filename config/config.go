// Package config loads upfetch settings from defaults, an optional YAML file,
// raw YAML bytes and UPFETCH_* environment variables, in that order of
// increasing priority.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env/v2"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
)

const (
	// EnvPrefix marks environment variables read as configuration.
	// UPFETCH_FETCH_RETRY_RETRIES sets fetch.retry.retries.
	EnvPrefix = "UPFETCH_"

	// DefaultFile is read when no path is given and it exists.
	DefaultFile = "upfetch.yaml"
)

// Source selects the layers Load reads on top of the defaults.
type Source struct {
	// File is a YAML file path. An explicit path must exist; an empty path
	// falls back to DefaultFile when present.
	File string
	// Bytes is YAML applied after File, for embedded or test config.
	Bytes []byte
	// Environ overrides os.Environ for the environment layer.
	Environ func() []string
}

// Load reads configuration from path (may be empty) and the environment.
func Load(path string) (*Config, error) {
	return LoadFrom(Source{File: path})
}

// LoadFrom reads every layer of src, unmarshals and validates the result.
func LoadFrom(src Source) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(confmap.Provider(defaults(), "."), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if err := loadFile(k, src.File); err != nil {
		return nil, err
	}

	if len(src.Bytes) > 0 {
		if err := k.Load(rawbytes.Provider(src.Bytes), yaml.Parser()); err != nil {
			return nil, NewLoadError("raw config", err)
		}
	}

	environ := src.Environ
	if environ == nil {
		environ = os.Environ
	}
	if err := k.Load(env.Provider(".", env.Opt{
		Prefix:        EnvPrefix,
		TransformFunc: envKey,
		EnvironFunc:   environ,
	}), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	var cfg Config
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "mapstructure"}); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	cfg.k = k

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

func loadFile(k *koanf.Koanf, path string) error {
	explicit := path != ""
	if !explicit {
		path = DefaultFile
	}
	if _, err := os.Stat(path); err != nil {
		if !explicit && errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return NewLoadError(path, err)
	}
	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		return NewLoadError(path, err)
	}
	return nil
}

// envKey maps UPFETCH_FETCH_RETRY_RETRIES to fetch.retry.retries.
func envKey(k, v string) (string, any) {
	key := strings.ToLower(strings.TrimPrefix(k, EnvPrefix))
	return strings.ReplaceAll(key, "_", "."), v
}

func defaults() map[string]any {
	return map[string]any{
		"app.name":    "upfetch",
		"app.version": "v1.0.0",
		"app.env":     EnvDevelopment,

		"log.level":  "info",
		"log.pretty": false,

		"fetch.timeout":       "30s",
		"fetch.credentials":   "include",
		"fetch.mode":          "cors",
		"fetch.redirect":      "follow",
		"fetch.retry.retries": 9,
		"fetch.retry.min":     "2s",
		"fetch.retry.max":     "5s",
		"fetch.rate.limit":    0,
		"fetch.rate.burst":    1,
		"fetch.coalesce":      false,

		"observability.enabled":      false,
		"observability.service.name": "upfetch",
	}
}
