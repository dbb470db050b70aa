// Package commands implements the upfetch command line.
package commands

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/time/rate"

	"github.com/gaborage/upfetch/config"
	"github.com/gaborage/upfetch/fetch"
	"github.com/gaborage/upfetch/logger"
	"github.com/gaborage/upfetch/observability"
)

// ErrFetchFailed marks a run whose final snapshot holds an error.
var ErrFetchFailed = errors.New("fetch failed")

// GlobalOptions holds the persistent flags shared by every subcommand.
type GlobalOptions struct {
	ConfigFile string
	LogLevel   string
	Headers    []string
}

// NewRootCommand assembles the upfetch command tree.
func NewRootCommand(version string) *cobra.Command {
	opts := &GlobalOptions{}

	root := &cobra.Command{
		Use:   "upfetch",
		Short: "Fetch upstream resources with retries and fallbacks",
		Long: `upfetch issues GET and DELETE requests with bounded retries, queries
redundant upstreams in priority order and polls a resource on an interval.

Every command prints its final snapshot as JSON on stdout and exits non-zero
when that snapshot holds an error.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVarP(&opts.ConfigFile, "config", "c", "", "YAML config file (default ./"+config.DefaultFile+" when present)")
	root.PersistentFlags().StringVar(&opts.LogLevel, "log-level", "", "Log level override (trace|debug|info|warn|error)")
	root.PersistentFlags().StringArrayVarP(&opts.Headers, "header", "H", nil, `Request header as "Name: value", repeatable`)

	root.AddCommand(
		NewGetCommand(opts),
		NewDeleteCommand(opts),
		NewAnyCommand(opts),
		NewPollCommand(opts),
		NewVersionCommand(version),
	)
	return root
}

// session is everything one command run needs: configuration, a logger,
// the telemetry provider and a client built from all three.
type session struct {
	cfg      *config.Config
	log      logger.Logger
	provider observability.Provider
	client   *fetch.Client
	headers  map[string]string
}

func newSession(opts *GlobalOptions, stderr io.Writer) (*session, error) {
	headers, err := parseHeaders(opts.Headers)
	if err != nil {
		return nil, err
	}

	cfg, err := config.Load(opts.ConfigFile)
	if err != nil {
		return nil, err
	}

	level := cfg.Log.Level
	if opts.LogLevel != "" {
		level = opts.LogLevel
	}
	log := logger.NewWithOptions(logger.Options{
		Level:  level,
		Pretty: cfg.Log.Pretty,
		Output: stderr,
	})

	provider, err := observability.NewProvider(&cfg.Observability)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize observability: %w", err)
	}

	b := fetch.NewBuilder(log).
		WithTimeout(cfg.Fetch.Timeout).
		WithRetryConfig(cfg.Fetch.RetryConfig()).
		WithOrigin(cfg.Fetch.Origin).
		WithDefaultOptions(cfg.Fetch.Options()).
		WithCoalescing(cfg.Fetch.Coalesce).
		WithTracerProvider(provider.TracerProvider()).
		WithMeterProvider(provider.MeterProvider())
	if cfg.Fetch.Rate.Limit > 0 {
		b = b.WithRateLimit(rate.Limit(cfg.Fetch.Rate.Limit), cfg.Fetch.Rate.Burst)
	}

	client, err := b.Build()
	if err != nil {
		_ = observability.Shutdown(provider, 0)
		return nil, fmt.Errorf("failed to build fetch client: %w", err)
	}

	log.Debug().
		Str("app", cfg.App.Name).
		Str("env", cfg.App.Env).
		Int("retries", cfg.Fetch.Retry.Retries).
		Msg("session ready")

	return &session{
		cfg:      cfg,
		log:      log,
		provider: provider,
		client:   client,
		headers:  headers,
	}, nil
}

// requestOptions returns the per-request overrides given on the command line.
func (s *session) requestOptions() fetch.Options {
	return fetch.Options{Headers: s.headers}
}

func (s *session) close() {
	if err := observability.Shutdown(s.provider, 0); err != nil {
		s.log.Warn().Err(err).Msg("telemetry shutdown failed")
	}
}

// parseHeaders turns "Name: value" flags into a header map.
func parseHeaders(raw []string) (map[string]string, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	headers := make(map[string]string, len(raw))
	for _, h := range raw {
		name, value, ok := strings.Cut(h, ":")
		name = strings.TrimSpace(name)
		if !ok || name == "" {
			return nil, fmt.Errorf("invalid header %q: expected \"Name: value\"", h)
		}
		headers[name] = strings.TrimSpace(value)
	}
	return headers, nil
}
