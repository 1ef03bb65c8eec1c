package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/roach88/parceltrack/internal/api"
	"github.com/roach88/parceltrack/internal/app"
)

// shutdownTimeout bounds the graceful HTTP shutdown.
const shutdownTimeout = 10 * time.Second

// ServeOptions holds flags for the serve command.
type ServeOptions struct {
	*RootOptions
	Addr string
}

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ServeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the scheduler and the HTTP command surface",
		Long: `Run the recurring trigger scheduler and the HTTP API until interrupted.

Triggers registered by other processes (for example "parceltrack start")
are picked up on the next re-sync, every bulk tick interval.

Example:
  parceltrack serve
  parceltrack serve --addr 127.0.0.1:9090 --verbose`,
		Args: exactArgs(0),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withService(cmd, func(ctx context.Context, svc *app.Service, out *OutputFormatter) error {
				addr := opts.Addr
				if addr == "" {
					addr = svc.Settings().HTTP.Addr
				}
				return serve(ctx, svc, addr, opts.logger(cmd), nil)
			})
		},
	}

	cmd.Flags().StringVar(&opts.Addr, "addr", "", "listen address (default from settings)")

	return cmd
}

// serve blocks until ctx is done. When ready is non-nil it receives the
// bound address once the listener is open.
func serve(ctx context.Context, svc *app.Service, addr string, logger *slog.Logger, ready chan<- string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to listen", err)
	}
	srv := &http.Server{
		Handler:           api.NewRouter(svc, logger),
		ReadHeaderTimeout: 10 * time.Second,
	}
	logger.Info("serve.started", "addr", ln.Addr().String())
	if ready != nil {
		ready <- ln.Addr().String()
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return svc.Scheduler().Run(gctx, svc.Settings().Bulk.TickInterval)
	})
	g.Go(func() error {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		return err
	}
	logger.Info("serve.stopped")
	return nil
}
