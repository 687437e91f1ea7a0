package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"calpost/internal/config"
	"calpost/internal/ics"
	"calpost/internal/job"
	appLog "calpost/internal/log"
	"calpost/internal/publish"
	"calpost/internal/schedule"
	"calpost/internal/web"
)

// ExitError is the process exit code for a failed run.
const ExitError = 1

const dateLayout = "2006-01-02"

// ErrInvalidDate is returned for a malformed date argument.
var ErrInvalidDate = errors.New("invalid date format")

const invalidDateUsage = "Invalid date format. Please provide a date in the format YYYY-MM-DD."

// UserMessage is the text printed for err when the command fails.
func UserMessage(err error) string {
	if errors.Is(err, ErrInvalidDate) {
		return invalidDateUsage
	}
	return err.Error()
}

type options struct {
	configPath string
	dryRun     bool
	daemon     bool
}

// NewRootCmd creates the root command. Dry-run output goes to the command's
// stdout.
func NewRootCmd() *cobra.Command {
	opts := &options{}

	cmd := &cobra.Command{
		Use:   "calpost [YYYY-MM-DD]",
		Short: "Post calendar events to Slack",
		Long: `Fetches ICS calendars, drops near-duplicate events across sources and
posts today's events to a Slack channel, plus a weekly summary on the
weekly day. With a date argument, only that day's events are posted.`,
		Args:          validateArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, opts, args)
		},
	}

	cmd.Flags().StringVar(&opts.configPath, "config", "", "Path to YAML config file (optional)")
	cmd.Flags().BoolVar(&opts.dryRun, "dry-run", false, "Print messages instead of posting them")
	cmd.Flags().BoolVar(&opts.daemon, "daemon", false, "Keep running and post on the refresh cron schedule")

	cmd.AddCommand(newInitConfigCmd())

	return cmd
}

func validateArgs(cmd *cobra.Command, args []string) error {
	if err := cobra.MaximumNArgs(1)(cmd, args); err != nil {
		return err
	}
	if len(args) == 1 {
		if _, err := time.Parse(dateLayout, args[0]); err != nil {
			return ErrInvalidDate
		}
	}
	return nil
}

func newInitConfigCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init-config PATH",
		Short: "Write a default config file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.DefaultConfig()
			if err := cfg.Save(args[0]); err != nil {
				return fmt.Errorf("writing config: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", args[0])
			return nil
		},
	}
}

func run(cmd *cobra.Command, opts *options, args []string) error {
	if opts.daemon && len(args) > 0 {
		return errors.New("a date argument cannot be combined with --daemon")
	}

	cfg, err := config.LoadWithEnv(opts.configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	appLog.SetLevel(appLog.ParseLevel(cfg.LogLevel))

	if err := cfg.Validate(!opts.dryRun); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	appLog.Info("effective config",
		"sources", len(cfg.Sources),
		"channel", cfg.Slack.Channel,
		"timezone", cfg.Timezone,
		"weekly_day", cfg.WeeklyDay,
		"dedup_threshold", cfg.Dedup.Threshold,
		"dedup_first_word", cfg.Dedup.RequireFirstWord,
		"dry_run", opts.dryRun,
		"daemon", opts.daemon,
	)

	pub, err := newPublisher(cfg, opts.dryRun, cmd.OutOrStdout())
	if err != nil {
		return err
	}

	runner, err := job.New(cfg, ics.NewFetcher(cfg.CacheDir), pub)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	switch {
	case len(args) == 1:
		day, err := runner.ParseDate(args[0])
		if err != nil {
			return ErrInvalidDate
		}
		return runner.RunForDate(ctx, day)
	case opts.daemon:
		return runDaemon(ctx, cfg, runner)
	default:
		return runner.RunDaily(ctx)
	}
}

func newPublisher(cfg *config.Config, dryRun bool, out io.Writer) (publish.Publisher, error) {
	if dryRun {
		return publish.NewDryRun(out), nil
	}
	return publish.NewSlack(cfg.Slack.Token, cfg.Slack.Channel, cfg.Slack.APIURL)
}

// runDaemon runs the scheduler and, when configured, the preview server
// until ctx is canceled.
func runDaemon(ctx context.Context, cfg *config.Config, runner *job.Runner) error {
	sched, err := schedule.NewScheduler(cfg.RefreshCron, runner.Location(), runner.RunDaily)
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return sched.Run(gctx)
	})
	if cfg.Listen != "" {
		srv := web.NewServer(cfg, runner)
		g.Go(func() error {
			return srv.Run(gctx)
		})
	}

	return g.Wait()
}
