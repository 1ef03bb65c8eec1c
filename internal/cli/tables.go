package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/parceltrack/internal/app"
	"github.com/roach88/parceltrack/internal/importer"
	"github.com/roach88/parceltrack/internal/reconcile"
	"github.com/roach88/parceltrack/internal/sheet"
)

// ImportOptions holds flags for the import command.
type ImportOptions struct {
	*RootOptions
	Rebuild bool
}

// ImportResult is the output of the import command.
type ImportResult struct {
	File    string            `json:"file"`
	Rows    int               `json:"rows"`
	Rebuild *reconcile.Report `json:"rebuild,omitempty"`
}

// NewImportCommand creates the import command.
func NewImportCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ImportOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "import <file-or-dir>",
		Short: "Import a shipment report",
		Long: `Import a CSV or XLSX shipment report into the Import_Latest table.
Given a directory, the newest report in it is imported. With --rebuild the
report is also reconciled into Packages, archiving rows that vanished.

Example:
  parceltrack import reports/2024-06-03.csv
  parceltrack import reports/ --rebuild`,
		Args: exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := resolveReport(args[0])
			if err != nil {
				return WrapExitError(ExitCommandError, "no report to import", err)
			}
			return opts.withService(cmd, func(ctx context.Context, svc *app.Service, out *OutputFormatter) error {
				res := ImportResult{File: path}
				res.Rows, err = svc.ImportFile(ctx, path)
				if err != nil {
					return err
				}
				if opts.Rebuild {
					m, err := svc.Tables().ReadTable(ctx, sheet.TableImportLatest)
					if err != nil {
						return err
					}
					rep, err := svc.RebuildCanonicalTable(ctx, m)
					if err != nil {
						return err
					}
					res.Rebuild = &rep
				}
				return out.Success(res, func(w io.Writer) {
					fmt.Fprintf(w, "imported %d rows from %s\n", res.Rows, res.File)
					if r := res.Rebuild; r != nil {
						fmt.Fprintf(w, "%s: %d added, %d updated, %d archived, %d rows (key %q)\n",
							sheet.TablePackages, r.Added, r.Updated, r.Archived, r.Rows, r.KeyColumn)
					}
				})
			})
		},
	}

	cmd.Flags().BoolVar(&opts.Rebuild, "rebuild", false, "reconcile the report into Packages")

	return cmd
}

func resolveReport(arg string) (string, error) {
	info, err := os.Stat(arg)
	if err != nil {
		return "", err
	}
	if info.IsDir() {
		return importer.FindLatest(arg)
	}
	return arg, nil
}

// NewAdhocCommand creates the adhoc command.
func NewAdhocCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "adhoc <file>",
		Short: "Build Adhoc_Tracking from a report's carrier and code columns",
		Long: `Build the Adhoc_Tracking table from the carrier and tracking code
columns of a report. Refresh it afterwards with:
  parceltrack refresh Adhoc_Tracking`,
		Args: exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return rootOpts.withService(cmd, func(ctx context.Context, svc *app.Service, out *OutputFormatter) error {
				rows, err := svc.ImportAdhoc(ctx, args[0])
				if err != nil {
					return err
				}
				return out.Success(map[string]int{"rows": rows}, func(w io.Writer) {
					fmt.Fprintf(w, "%s: %d rows\n", sheet.TableAdhoc, rows)
				})
			})
		},
	}
}

// NewPendingCommand creates the pending command.
func NewPendingCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "pending",
		Short: "Rebuild the Pending table from Packages and Packages_Archive",
		Args:  exactArgs(0),
		RunE: func(cmd *cobra.Command, args []string) error {
			return rootOpts.withService(cmd, func(ctx context.Context, svc *app.Service, out *OutputFormatter) error {
				rep, err := svc.BuildPendingTable(ctx)
				if err != nil {
					return err
				}
				return out.Success(rep, func(w io.Writer) {
					fmt.Fprintf(w, "%s: %d rows (%d scanned, %d delivered, %d without key)\n",
						sheet.TablePending, rep.Rows, rep.Scanned, rep.Delivered, rep.NoKey)
				})
			})
		},
	}
}

// DailyOptions holds flags for the daily command.
type DailyOptions struct {
	*RootOptions
	Every  time.Duration
	Cancel bool
}

// NewDailyCommand creates the daily command.
func NewDailyCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &DailyOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "daily",
		Short: "Run the daily import, rebuild and refresh flow",
		Long: `Run the daily flow once: import the newest report from the import
directory, reconcile Packages, rebuild Pending, refresh Pending dropping
delivered rows and check the archive for duplicate keys. Every step is
logged to Run_All_Log; a failing step does not stop the others.

With --every the flow is registered as a recurring trigger run by serve
instead. --cancel removes that trigger.

Example:
  parceltrack daily
  parceltrack daily --every 24h`,
		Args: exactArgs(0),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withService(cmd, func(ctx context.Context, svc *app.Service, out *OutputFormatter) error {
				switch {
				case opts.Cancel:
					found, err := svc.CancelDailyFlow(ctx)
					if err != nil {
						return err
					}
					return out.Success(map[string]bool{"cancelled": found}, func(w io.Writer) {
						fmt.Fprintf(w, "daily trigger cancelled: %t\n", found)
					})
				case opts.Every > 0:
					if err := svc.ScheduleDailyFlow(ctx, opts.Every); err != nil {
						return err
					}
					return out.Success(map[string]string{"every": opts.Every.String()}, func(w io.Writer) {
						fmt.Fprintf(w, "daily flow scheduled every %s\n", opts.Every)
					})
				}

				rep, err := svc.RunDailyFlow(ctx)
				if err != nil {
					return err
				}
				if err := out.Success(rep, func(w io.Writer) { printDaily(w, rep) }); err != nil {
					return err
				}
				if rep.Failed() {
					return NewExitError(ExitFailure, "daily flow finished with failed steps")
				}
				return nil
			})
		},
	}

	cmd.Flags().DurationVar(&opts.Every, "every", 0, "schedule the flow to recur at this interval")
	cmd.Flags().BoolVar(&opts.Cancel, "cancel", false, "remove the recurring daily trigger")

	return cmd
}

func printDaily(w io.Writer, r app.DailyReport) {
	for _, st := range r.Steps {
		secs := strconv.FormatFloat(st.Duration.Seconds(), 'f', 2, 64)
		fmt.Fprintf(w, "%-4s %-22s %ss", st.Status, st.Name, secs)
		if st.Info != "" {
			fmt.Fprintf(w, "  %s", st.Info)
		}
		fmt.Fprintln(w)
		if st.Message != "" {
			fmt.Fprintf(w, "     %s\n", st.Message)
		}
	}
}

// ExportOptions holds flags for the export command.
type ExportOptions struct {
	*RootOptions
	Output string
}

// NewExportCommand creates the export command.
func NewExportCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ExportOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "export [table...]",
		Short: "Export tables to an xlsx workbook",
		Long: `Write tables, one sheet each, to an xlsx workbook. Without arguments
every table is exported.

Example:
  parceltrack export -o packages.xlsx Packages Packages_Archive`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withService(cmd, func(ctx context.Context, svc *app.Service, out *OutputFormatter) error {
				f, err := os.Create(opts.Output)
				if err != nil {
					return WrapExitError(ExitCommandError, "failed to create output", err)
				}
				n, err := svc.Export(ctx, args, f)
				if closeErr := f.Close(); err == nil {
					err = closeErr
				}
				if err != nil {
					return err
				}
				return out.Success(map[string]any{"file": opts.Output, "tables": n}, func(w io.Writer) {
					fmt.Fprintf(w, "exported %d tables to %s\n", n, opts.Output)
				})
			})
		},
	}

	cmd.Flags().StringVarP(&opts.Output, "output", "o", "parceltrack.xlsx", "output workbook path")

	return cmd
}
