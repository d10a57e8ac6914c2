package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/jeefy/pybot/internal/server"
)

const shutdownTimeout = 10 * time.Second

func (a *app) serveCmd() *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API",
		Long: `Start the HTTP API. The pattern corpus is reseeded on start; patterns added
through /train are kept.

Examples:
  pybot serve
  pybot serve --addr 127.0.0.1:8080 --db /var/lib/pybot/pybot.db`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if addr != "" {
				a.cfg.Addr = addr
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return a.serve(ctx)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default $PYBOT_ADDR or :5000)")
	return cmd
}

// serve runs the HTTP server until ctx is canceled, then shuts it down gracefully.
func (a *app) serve(ctx context.Context) error {
	res, err := a.seed(ctx)
	if err != nil {
		return err
	}

	srv := server.New(a.service(), a.store, a.logger)
	httpServer := &http.Server{
		Addr:              a.cfg.Addr,
		Handler:           srv.Router(),
		ReadTimeout:       a.cfg.ReadTimeout,
		ReadHeaderTimeout: a.cfg.ReadTimeout,
		WriteTimeout:      a.cfg.WriteTimeout,
		IdleTimeout:       2 * time.Minute,
	}

	a.logger.Info("starting pybot",
		"addr", a.cfg.Addr,
		"db", a.cfg.DBPath,
		"patterns", res.Upserted,
		"exec_timeout", a.cfg.ExecTimeout,
		"exec_max_output", humanize.IBytes(uint64(a.cfg.ExecMaxOutput)),
		"exec_max_memory", humanize.IBytes(uint64(a.cfg.ExecMaxMemory)),
		"exec_disabled", a.cfg.ExecDisabled)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		a.logger.Info("shutting down server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server forced to shutdown: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return err
	}
	a.logger.Info("server stopped")
	return nil
}
