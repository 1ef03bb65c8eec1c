package cli

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/parceltrack/internal/app"
	"github.com/roach88/parceltrack/internal/config"
	"github.com/roach88/parceltrack/internal/model"
)

// ReadinessResult is the output of the readiness command.
type ReadinessResult struct {
	Ready bool `json:"ready"`
	config.Readiness
}

// NewReadinessCommand creates the readiness command.
func NewReadinessCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "readiness",
		Short: "List configuration keys that are not set",
		Args:  exactArgs(0),
		RunE: func(cmd *cobra.Command, args []string) error {
			return rootOpts.withService(cmd, func(ctx context.Context, svc *app.Service, out *OutputFormatter) error {
				rd, err := svc.Readiness(ctx)
				if err != nil {
					return err
				}
				return out.Success(ReadinessResult{Ready: rd.Ready(), Readiness: rd}, func(w io.Writer) {
					fmt.Fprintf(w, "ready: %t\n", rd.Ready())
					printKeys(w, "missing required", rd.MissingRequired)
					printKeys(w, "missing optional", rd.MissingOptional)
				})
			})
		},
	}
}

func printKeys(w io.Writer, title string, keys []string) {
	if len(keys) == 0 {
		return
	}
	fmt.Fprintf(w, "%s:\n", title)
	for _, k := range keys {
		fmt.Fprintf(w, "  %s\n", k)
	}
}

// NewSeedDefaultsCommand creates the seed-defaults command.
func NewSeedDefaultsCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "seed-defaults",
		Short: "Write default carrier URL templates that are not set",
		Args:  exactArgs(0),
		RunE: func(cmd *cobra.Command, args []string) error {
			return rootOpts.withService(cmd, func(ctx context.Context, svc *app.Service, out *OutputFormatter) error {
				written, err := svc.SeedDefaults(ctx)
				if err != nil {
					return err
				}
				if written == nil {
					written = []string{}
				}
				return out.Success(written, func(w io.Writer) {
					fmt.Fprintf(w, "seeded %d keys\n", len(written))
					for _, k := range written {
						fmt.Fprintf(w, "  %s\n", k)
					}
				})
			})
		},
	}
}

// NewCacheCommand creates the cache command group.
func NewCacheCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Manage the carrier result cache",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "clear",
		Short: "Make every cached carrier result miss",
		Long: `Rotate the cache buster so every cached carrier result misses.
Entries are not deleted; they age out by their own expiry.`,
		Args: exactArgs(0),
		RunE: func(cmd *cobra.Command, args []string) error {
			return rootOpts.withService(cmd, func(ctx context.Context, svc *app.Service, out *OutputFormatter) error {
				if err := svc.InvalidateCache(ctx); err != nil {
					return err
				}
				return out.Success(map[string]bool{"invalidated": true}, func(w io.Writer) {
					fmt.Fprintln(w, "cache invalidated")
				})
			})
		},
	})
	return cmd
}

// DiagnosticsOptions holds flags for the diagnostics command.
type DiagnosticsOptions struct {
	*RootOptions
	Limit int
}

// NewDiagnosticsCommand creates the diagnostics command.
func NewDiagnosticsCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &DiagnosticsOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "diagnostics",
		Short: "Show failed carrier calls, newest first",
		Args:  exactArgs(0),
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.Limit <= 0 {
				return NewExitError(ExitCommandError, "--limit must be positive")
			}
			return opts.withService(cmd, func(ctx context.Context, svc *app.Service, out *OutputFormatter) error {
				list, err := svc.Diagnostics(ctx, opts.Limit)
				if err != nil {
					return err
				}
				if list == nil {
					list = []model.DiagnosticEntry{}
				}
				return out.Success(list, func(w io.Writer) { printDiagnostics(w, list) })
			})
		},
	}

	cmd.Flags().IntVarP(&opts.Limit, "limit", "n", 50, "maximum entries to show")

	return cmd
}

func printDiagnostics(w io.Writer, list []model.DiagnosticEntry) {
	if len(list) == 0 {
		fmt.Fprintln(w, "no diagnostics")
		return
	}
	for _, e := range list {
		fmt.Fprintf(w, "%s %s %s http=%d code=%s", e.Time.UTC().Format(time.RFC3339), e.Carrier, e.Tag, e.HTTPCode, e.Code)
		if e.RetryAfter != nil {
			fmt.Fprintf(w, " retry_after=%ds", *e.RetryAfter)
		}
		fmt.Fprintln(w)
		if e.BodySnippet != "" {
			fmt.Fprintf(w, "  %s\n", e.BodySnippet)
		}
	}
}

// NewConfigCommand creates the config command group.
func NewConfigCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Read and write durable configuration keys",
		Long: `Read and write the durable configuration shared by every parceltrack
process: carrier credentials, URL templates, RATE_MINMS_<TAG> throttle
overrides and BULK_BACKOFF_MINUTES_BASE.

Example:
  parceltrack config set DHL_API_KEY abc123
  parceltrack config get DHL_API_KEY
  parceltrack config set RATE_MINMS_POSTI ""   # delete`,
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "get <key>",
		Short: "Print a configuration value",
		Args:  exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return rootOpts.withService(cmd, func(ctx context.Context, svc *app.Service, out *OutputFormatter) error {
				v, ok, err := svc.ConfigGet(ctx, args[0])
				if err != nil {
					return err
				}
				if !ok {
					return NewExitError(ExitFailure, fmt.Sprintf("%s is not set", args[0]))
				}
				return out.Success(map[string]string{"key": args[0], "value": v}, func(w io.Writer) {
					fmt.Fprintln(w, v)
				})
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "set <key> <value>",
		Short: "Write a configuration value (empty deletes)",
		Args:  exactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return rootOpts.withService(cmd, func(ctx context.Context, svc *app.Service, out *OutputFormatter) error {
				if err := svc.ConfigSet(ctx, args[0], args[1]); err != nil {
					return err
				}
				return out.Success(map[string]string{"key": args[0]}, func(w io.Writer) {
					if args[1] == "" {
						fmt.Fprintf(w, "%s deleted\n", args[0])
						return
					}
					fmt.Fprintf(w, "%s set\n", args[0])
				})
			})
		},
	})

	return cmd
}
