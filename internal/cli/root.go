package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"slices"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/roach88/parceltrack/internal/app"
	"github.com/roach88/parceltrack/internal/config"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose bool
	Format  string // "json" | "text"
	Config  string // settings YAML file, optional
	EnvFile string // .env file, optional

	// ServiceOptions are passed to app.Open (for testing).
	ServiceOptions []app.Option
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the parceltrack CLI.
func NewRootCommand(svcOpts ...app.Option) *cobra.Command {
	cmd, _ := newRoot(svcOpts)
	return cmd
}

func newRoot(svcOpts []app.Option) (*cobra.Command, *RootOptions) {
	opts := &RootOptions{ServiceOptions: svcOpts}

	cmd := &cobra.Command{
		Use:   "parceltrack",
		Short: "parceltrack - shipment status refresh",
		Long: `Keep carrier tracking status current across shipment tables.

parceltrack imports shipment reports, reconciles them into the Packages
table, and polls carrier APIs in small time-boxed ticks that respect
per-carrier rate limits, retry backoff and a shared call budget.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !slices.Contains(ValidFormats, opts.Format) {
				return NewExitError(ExitCommandError,
					fmt.Sprintf("invalid format %q: must be one of %v", opts.Format, ValidFormats))
			}
			return nil
		},
	}

	cmd.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return WrapExitError(ExitCommandError, "invalid flags", err)
	})

	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringVarP(&opts.Config, "config", "c", "", "settings file (YAML)")
	cmd.PersistentFlags().StringVar(&opts.EnvFile, "env-file", ".env", "environment file loaded before PARCELTRACK_* overrides")

	cmd.AddCommand(NewTickCommand(opts))
	cmd.AddCommand(NewStartCommand(opts))
	cmd.AddCommand(NewStopCommand(opts))
	cmd.AddCommand(NewJobsCommand(opts))
	cmd.AddCommand(NewRefreshCommand(opts))
	cmd.AddCommand(NewImportCommand(opts))
	cmd.AddCommand(NewAdhocCommand(opts))
	cmd.AddCommand(NewPendingCommand(opts))
	cmd.AddCommand(NewDailyCommand(opts))
	cmd.AddCommand(NewExportCommand(opts))
	cmd.AddCommand(NewReadinessCommand(opts))
	cmd.AddCommand(NewSeedDefaultsCommand(opts))
	cmd.AddCommand(NewCacheCommand(opts))
	cmd.AddCommand(NewDiagnosticsCommand(opts))
	cmd.AddCommand(NewConfigCommand(opts))
	cmd.AddCommand(NewServeCommand(opts))

	return cmd, opts
}

// Execute runs the CLI with args and returns the process exit code.
// Errors are reported on stderr, or on stdout as a JSON envelope when
// --format json is in effect.
func Execute(args []string, stdout, stderr io.Writer, svcOpts ...app.Option) int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cmd, opts := newRoot(svcOpts)
	cmd.SetArgs(args)
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)

	err := cmd.ExecuteContext(ctx)
	if err == nil {
		return ExitSuccess
	}
	f := &OutputFormatter{Format: opts.Format, Writer: stdout, ErrWriter: stderr, Verbose: opts.Verbose}
	if f.Format != "json" {
		f.Format = "text"
	}
	_ = f.Error(ErrorCode(err), err.Error(), nil)
	return GetExitCode(err)
}

func (o *RootOptions) formatter(cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{
		Format:    o.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   o.Verbose,
	}
}

func (o *RootOptions) logger(cmd *cobra.Command) *slog.Logger {
	level := slog.LevelInfo
	if o.Verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))
}

func (o *RootOptions) settings() (config.Settings, error) {
	s, err := config.Load(o.Config, o.EnvFile)
	if err != nil {
		return s, WrapExitError(ExitCommandError, "failed to load settings", err)
	}
	return s, nil
}

// withService loads settings, opens the application service and runs fn.
// Errors returned by fn that carry no exit code are operation failures.
func (o *RootOptions) withService(cmd *cobra.Command, fn func(ctx context.Context, svc *app.Service, out *OutputFormatter) error) error {
	s, err := o.settings()
	if err != nil {
		return err
	}
	logger := o.logger(cmd)

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	svc, err := app.Open(ctx, s, append([]app.Option{app.WithLogger(logger)}, o.ServiceOptions...)...)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open parceltrack", err)
	}
	defer func() {
		if closeErr := svc.Close(); closeErr != nil {
			logger.Error("close.failed", "error", closeErr)
		}
	}()

	out := o.formatter(cmd)
	out.VerboseLog("db=%s tables=%s cache=%s lock=%s", s.DBPath, s.Tables.Backend, s.Cache.Backend, s.Lock.Backend)
	if err := fn(ctx, svc, out); err != nil {
		var exitErr *ExitError
		if errors.As(err, &exitErr) {
			return err
		}
		return WrapExitError(ExitFailure, cmd.Name()+" failed", err)
	}
	return nil
}

// exactArgs is cobra.ExactArgs with a command-error exit code.
func exactArgs(n int) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if err := cobra.ExactArgs(n)(cmd, args); err != nil {
			return WrapExitError(ExitCommandError, "invalid arguments", err)
		}
		return nil
	}
}
