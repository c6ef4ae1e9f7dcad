package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"relctl/internal/api"
	"relctl/internal/color"
	"relctl/internal/release"
)

func newReleaseCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "release",
		Short: "Run and inspect releases",
		Long: `Run and inspect releases.

Available commands:
  run      - Run a release from a spec file
  current  - Show the last known good release of a namespace
  history  - List every release of a namespace
  get      - Show a release by id
  abandon  - Mark a release left in flight by a dead process as failed

With --server the commands talk to a running 'relctl serve' instead of the
local cluster and record store.`,
	}
	cmd.AddCommand(newReleaseRunCmd())
	cmd.AddCommand(newReleaseCurrentCmd())
	cmd.AddCommand(newReleaseHistoryCmd())
	cmd.AddCommand(newReleaseGetCmd())
	cmd.AddCommand(newReleaseAbandonCmd())
	return cmd
}

func newReleaseRunCmd() *cobra.Command {
	var (
		file    string
		env     string
		images  []string
		timeout time.Duration
	)

	cmd := &cobra.Command{
		Use:   "run -f <spec.yaml>",
		Short: "Run a release",
		Long: `Run a release from a spec file ("-" reads stdin).

The release installs missing prerequisites, then applies every service in
dependency order, waiting for each to pass its health check. A failure rolls
the namespace back to its last known good release. Interrupting the command
(Ctrl+C) rolls back as well.

The command exits non-zero unless the release succeeded.`,
		Example: `  relctl release run -f shop.yaml
  relctl release run -f shop.yaml --env preview:pr-42 --image backend=registry.example.com/api:v4`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			spec, err := readSpec(cmd, file)
			if err != nil {
				return err
			}
			if err := applySpecOverrides(&spec, env, images); err != nil {
				return err
			}
			printer, err := newPrinter(cmd)
			if err != nil {
				return err
			}

			cfg := newAppConfig()
			errOut := cmd.ErrOrStderr()
			cfg.OnTransition = func(rec release.Record) {
				fmt.Fprintf(errOut, "%s %s %s\n", color.MutedStyle.Render(time.Now().Format("15:04:05")), rec.ID, color.State(rec.State))
			}
			releaser, closeFn, err := openReleaser(cfg)
			if err != nil {
				return err
			}
			defer closeFn()

			ctx, stop := signal.NotifyContext(commandContext(cmd), os.Interrupt, syscall.SIGTERM)
			defer stop()
			ctx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()

			rec, err := releaser.Run(ctx, spec)
			if err != nil {
				return explain(err)
			}
			if err := printer.Record(rec); err != nil {
				return err
			}
			if rec.Outcome != release.OutcomeSucceeded {
				return fmt.Errorf("release %s %s: %s", rec.ID, rec.Outcome, rec.Error)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "", "Release spec file, - for stdin")
	cmd.Flags().StringVar(&env, "env", "", "Override the environment: production, staging or preview:<id>")
	cmd.Flags().StringSliceVar(&images, "image", nil, "Override a service image, service=image:tag (repeatable)")
	cmd.Flags().DurationVar(&timeout, "timeout", api.DefaultRunTimeout, "Deadline for the whole release; exceeding it rolls back")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func newReleaseCurrentCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "current <namespace>",
		Short: "Show the last known good release of a namespace",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withReleaser(cmd, func(ctx context.Context, r api.Releaser) error {
				rec, err := r.Current(ctx, args[0])
				if err != nil {
					return fmt.Errorf("no current release in %s: %w", args[0], err)
				}
				return printRecord(cmd, rec)
			})
		},
	}
}

func newReleaseHistoryCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "history <namespace>",
		Short: "List every release of a namespace, newest first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			printer, err := newPrinter(cmd)
			if err != nil {
				return err
			}
			return withReleaser(cmd, func(ctx context.Context, r api.Releaser) error {
				records, err := r.History(ctx, args[0])
				if err != nil {
					return err
				}
				return printer.Records(records)
			})
		},
	}
}

func newReleaseGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <release-id>",
		Short: "Show a release by id",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withReleaser(cmd, func(ctx context.Context, r api.Releaser) error {
				rec, err := r.Get(ctx, args[0])
				if err != nil {
					return fmt.Errorf("release %s: %w", args[0], err)
				}
				return printRecord(cmd, rec)
			})
		},
	}
}

func newReleaseAbandonCmd() *cobra.Command {
	var reason string

	cmd := &cobra.Command{
		Use:   "abandon <namespace>",
		Short: "Mark the in-flight release of a namespace as failed",
		Long: `Mark the in-flight release of a namespace as failed.

Use this when the process running a release died and left the namespace
locked. The cluster is not touched: run a new release, or inspect the
namespace, to converge it.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withReleaser(cmd, func(ctx context.Context, r api.Releaser) error {
				rec, err := r.Abandon(ctx, args[0], reason)
				if err != nil {
					return err
				}
				return printRecord(cmd, rec)
			})
		},
	}
	cmd.Flags().StringVar(&reason, "reason", "", "Reason recorded on the abandoned release")
	return cmd
}

func withReleaser(cmd *cobra.Command, fn func(ctx context.Context, r api.Releaser) error) error {
	releaser, closeFn, err := openReleaser(newAppConfig())
	if err != nil {
		return err
	}
	defer closeFn()
	return fn(commandContext(cmd), releaser)
}

func printRecord(cmd *cobra.Command, rec *release.Record) error {
	printer, err := newPrinter(cmd)
	if err != nil {
		return err
	}
	return printer.Record(rec)
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
