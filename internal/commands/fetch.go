package commands

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/gaborage/upfetch/fetch"
)

// DefaultPollInterval is used when --interval is not given.
const DefaultPollInterval = 30 * time.Second

// PollOptions holds the flags of the poll command.
type PollOptions struct {
	Interval time.Duration
	Duration time.Duration
}

// NewGetCommand creates the get command
func NewGetCommand(global *GlobalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "get <url>",
		Short: "GET a resource with retries",
		Long: `Fetches a resource, retrying transport failures with exponential backoff.
HTTP error statuses are reported immediately without retrying.`,
		Example: `  upfetch get https://api.example.com/status
  upfetch get -H "Accept: application/json" https://api.example.com/alerts`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, global, func(ctx context.Context, s *session, out *printer) error {
				return runGet(ctx, s, out, args[0])
			})
		},
	}
}

// NewDeleteCommand creates the delete command
func NewDeleteCommand(global *GlobalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <url>",
		Short: "DELETE a resource with a single attempt",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, global, func(ctx context.Context, s *session, out *printer) error {
				return runDelete(ctx, s, out, args[0])
			})
		},
	}
}

// NewAnyCommand creates the any command
func NewAnyCommand(global *GlobalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "any [uri...]",
		Short: "GET the first upstream that answers successfully",
		Long: `Tries each upstream once, in the given order, and prints the first
successful answer. Without arguments the upstreams from the config file are used.`,
		Example: `  upfetch any https://am-0.example.com/api/v2/alerts https://am-1.example.com/api/v2/alerts
  upfetch any --config upfetch.yaml`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, global, func(ctx context.Context, s *session, out *printer) error {
				return runAny(ctx, s, out, args)
			})
		},
	}
}

// NewPollCommand creates the poll command
func NewPollCommand(global *GlobalOptions) *cobra.Command {
	opts := &PollOptions{}

	cmd := &cobra.Command{
		Use:   "poll <url>",
		Short: "GET a resource repeatedly on an interval",
		Long: `Fetches a resource immediately and then on every interval until interrupted,
printing each finished call. Ticks are skipped while a call is still running.`,
		Example: `  upfetch poll --interval 10s https://api.example.com/status
  upfetch poll --interval 1s --for 1m https://api.example.com/status`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, global, func(ctx context.Context, s *session, out *printer) error {
				return runPoll(ctx, s, out, args[0], opts)
			})
		},
	}

	cmd.Flags().DurationVarP(&opts.Interval, "interval", "i", DefaultPollInterval, "Time between polls")
	cmd.Flags().DurationVar(&opts.Duration, "for", 0, "Stop after this long (0 polls until interrupted)")

	return cmd
}

// withSession builds a session, runs fn under a signal-aware context and
// releases telemetry afterwards.
func withSession(cmd *cobra.Command, global *GlobalOptions, fn func(context.Context, *session, *printer) error) error {
	s, err := newSession(global, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer s.close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return fn(ctx, s, newPrinter(cmd.OutOrStdout()))
}

func runGet(ctx context.Context, s *session, out *printer, url string) error {
	g, err := fetch.NewGetter(s.client, url,
		fetch.WithAutorun(false),
		fetch.WithRequestOptions(s.requestOptions()),
	)
	if err != nil {
		return err
	}
	defer g.Close()

	g.Get()
	if err := g.Wait(ctx); err != nil {
		return fmt.Errorf("get %s interrupted: %w", url, err)
	}

	res := resultFromSnapshot(url, g.Snapshot())
	if err := out.print(res); err != nil {
		return err
	}
	return res.Err()
}

func runDelete(ctx context.Context, s *session, out *printer, url string) error {
	d, err := fetch.NewDeleter(s.client, url,
		fetch.WithDeleteAutorun(false),
		fetch.WithDeleteOptions(s.requestOptions()),
	)
	if err != nil {
		return err
	}
	defer d.Close()

	d.Delete()
	if err := d.Wait(ctx); err != nil {
		return fmt.Errorf("delete %s interrupted: %w", url, err)
	}

	res := resultFromDelete(url, d.Snapshot())
	if err := out.print(res); err != nil {
		return err
	}
	return res.Err()
}

func runAny(ctx context.Context, s *session, out *printer, uris []string) error {
	upstreams := s.cfg.UpstreamList()
	if len(uris) > 0 {
		upstreams = make([]fetch.Upstream, 0, len(uris))
		for _, uri := range uris {
			upstreams = append(upstreams, fetch.Upstream{URI: uri})
		}
	}
	if len(upstreams) == 0 {
		return errors.New("no upstreams: pass URIs or configure upstreams")
	}
	for i := range upstreams {
		upstreams[i].Options.Headers = withHeaders(upstreams[i].Options.Headers, s.headers)
	}

	a, err := fetch.NewAnyGetter(s.client, upstreams, fetch.WithAnyAutorun(false))
	if err != nil {
		return err
	}
	defer a.Close()

	a.Fetch()
	if err := a.Wait(ctx); err != nil {
		return fmt.Errorf("upstream scan interrupted: %w", err)
	}

	res := resultFromAny(a.Snapshot())
	if err := out.print(res); err != nil {
		return err
	}
	return res.Err()
}

func runPoll(ctx context.Context, s *session, out *printer, url string, opts *PollOptions) error {
	if opts.Duration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Duration)
		defer cancel()
	}

	g, err := fetch.NewGetter(s.client, url,
		fetch.WithAutorun(false),
		fetch.WithRequestOptions(s.requestOptions()),
		fetch.WithOnChange(func(snap fetch.Snapshot) {
			if !snap.Phase.Terminal() {
				return
			}
			if err := out.print(resultFromSnapshot(url, snap)); err != nil {
				s.log.Error().Err(err).Msg("failed to print poll result")
			}
		}),
	)
	if err != nil {
		return err
	}
	defer g.Close()

	if err := fetch.NewPoller(g, opts.Interval).Run(ctx); err != nil {
		return err
	}
	return resultFromSnapshot(url, g.Snapshot()).Err()
}

// withHeaders layers the command line headers over an upstream's own.
func withHeaders(own, extra map[string]string) map[string]string {
	if len(extra) == 0 {
		return own
	}
	out := maps.Clone(own)
	if out == nil {
		out = make(map[string]string, len(extra))
	}
	maps.Copy(out, extra)
	return out
}
