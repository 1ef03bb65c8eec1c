package cli

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/parceltrack/internal/app"
	"github.com/roach88/parceltrack/internal/model"
	"github.com/roach88/parceltrack/internal/worker"
)

// NewTickCommand creates the tick command.
func NewTickCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "tick",
		Short: "Run one bounded pass over the active bulk jobs",
		Long: `Run one worker tick: advance every active bulk job until the call
budget or the time limit of the tick is spent.

Example:
  parceltrack tick
  parceltrack tick --format json`,
		Args: exactArgs(0),
		RunE: func(cmd *cobra.Command, args []string) error {
			return rootOpts.withService(cmd, func(ctx context.Context, svc *app.Service, out *OutputFormatter) error {
				report, err := svc.Tick(ctx)
				if err != nil {
					return err
				}
				return out.Success(report, func(w io.Writer) { printTick(w, report) })
			})
		},
	}
}

// StartResult is the output of the start command.
type StartResult struct {
	Job  model.Job         `json:"job"`
	Tick worker.TickReport `json:"tick"`
}

// NewStartCommand creates the start command.
func NewStartCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "start <table>",
		Short: "Start a bulk refresh of a table",
		Long: `Register a bulk job over a table, ensure the recurring tick trigger
exists and run the first tick immediately. Starting a table that already
has a job restarts it from the first row.

Example:
  parceltrack start Packages
  parceltrack start Pending`,
		Args: exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return rootOpts.withService(cmd, func(ctx context.Context, svc *app.Service, out *OutputFormatter) error {
				job, tick, err := svc.StartBulk(ctx, args[0])
				if err != nil {
					return err
				}
				return out.Success(StartResult{Job: job, Tick: tick}, func(w io.Writer) {
					fmt.Fprintf(w, "started %s: %d rows\n", job.Table, job.TotalRows)
					printTick(w, tick)
				})
			})
		},
	}
}

// NewStopCommand creates the stop command.
func NewStopCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "Stop every bulk refresh",
		Args:  exactArgs(0),
		RunE: func(cmd *cobra.Command, args []string) error {
			return rootOpts.withService(cmd, func(ctx context.Context, svc *app.Service, out *OutputFormatter) error {
				n, err := svc.StopBulk(ctx)
				if err != nil {
					return err
				}
				return out.Success(map[string]int64{"removed": n}, func(w io.Writer) {
					fmt.Fprintf(w, "stopped: %d jobs removed\n", n)
				})
			})
		},
	}
}

// NewJobsCommand creates the jobs command.
func NewJobsCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "jobs",
		Short: "List active bulk jobs",
		Args:  exactArgs(0),
		RunE: func(cmd *cobra.Command, args []string) error {
			return rootOpts.withService(cmd, func(ctx context.Context, svc *app.Service, out *OutputFormatter) error {
				list, err := svc.Jobs(ctx)
				if err != nil {
					return err
				}
				if list == nil {
					list = []model.Job{}
				}
				return out.Success(list, func(w io.Writer) { printJobs(w, list) })
			})
		},
	}
}

// RefreshOptions holds flags for the refresh command.
type RefreshOptions struct {
	*RootOptions
	Carriers []string
}

// NewRefreshCommand creates the refresh command.
func NewRefreshCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RefreshOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "refresh <table>",
		Short: "Poll every matching row of a table now",
		Long: `Poll every row of a table in one pass, ignoring retry backoff.
The global lock is not taken, so avoid running this on a table with an
active bulk job.

Example:
  parceltrack refresh Packages
  parceltrack refresh Pending --carrier posti --carrier gls`,
		Args: exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withService(cmd, func(ctx context.Context, svc *app.Service, out *OutputFormatter) error {
				rep, err := svc.RefreshNow(ctx, args[0], opts.Carriers...)
				if err != nil {
					return err
				}
				return out.Success(rep, func(w io.Writer) {
					fmt.Fprintf(w, "%s: polled %d rows with %d calls, %d rows kept\n",
						rep.Table, rep.Polled, rep.Calls, rep.Rows)
				})
			})
		},
	}

	cmd.Flags().StringArrayVar(&opts.Carriers, "carrier", nil, "only rows whose carrier contains this text (repeatable)")

	return cmd
}

func printTick(w io.Writer, r worker.TickReport) {
	fmt.Fprintf(w, "tick: %d calls in %s\n", r.Calls, r.Elapsed.Round(time.Millisecond))
	for _, j := range r.Jobs {
		fmt.Fprintf(w, "  %s: %s row=%d done=%d remaining=%d calls=%d\n",
			j.Table, j.Outcome, j.CursorRow, j.Done, j.Remaining, j.TotalCalls)
	}
	for _, n := range r.Notices {
		fmt.Fprintf(w, "notice: %s\n", n)
	}
}

func printJobs(w io.Writer, list []model.Job) {
	if len(list) == 0 {
		fmt.Fprintln(w, "no active jobs")
		return
	}
	for _, j := range list {
		fmt.Fprintf(w, "%s: row=%d done=%d remaining=%d calls=%d started=%s\n",
			j.Table, j.CursorRow, j.Done, j.Remaining, j.CallsMade, j.StartedAt.UTC().Format(time.RFC3339))
	}
}
