package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aretw0/cadence"
	cadencehttp "github.com/aretw0/cadence/pkg/adapters/http"
	"github.com/aretw0/cadence/pkg/observability"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
)

const shutdownTimeout = 5 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Publish the orchestrator over HTTP",
	Long: `Starts the orchestrator and exposes runs, replays, history, settings and a
live event stream as a JSON API. Prometheus metrics are served on /metrics.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		reg := prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		metrics := observability.NewMetrics(reg)

		ctrl, closeAll, err := setup(ctx, cadence.WithLifecycleHooks(metrics.Hooks()))
		if err != nil {
			return err
		}
		defer closeAll()

		srv := &http.Server{
			Addr:    cfg.HTTP.Addr,
			Handler: cadencehttp.NewHandler(ctrl, cadencehttp.WithGatherer(reg), cadencehttp.WithServerLogger(logger)),
			// Runs and the event stream outlive any fixed write deadline.
			ReadHeaderTimeout: 10 * time.Second,
		}
		logger.Info("orchestrator listening", "address", srv.Addr, "scripts", cfg.ScriptsDir, "data", cfg.DataDir)
		return serveUntilDone(ctx, srv)
	},
}

func init() {
	serveCmd.Flags().String("addr", "", "Address to listen on (default :1180)")
	if err := v.BindPFlag("http.addr", serveCmd.Flags().Lookup("addr")); err != nil {
		panic(err)
	}
	rootCmd.AddCommand(serveCmd)
}

// serveUntilDone runs every server until ctx is done or one of them fails,
// then shuts them all down.
func serveUntilDone(ctx context.Context, servers ...*http.Server) error {
	serverErrors := make(chan error, len(servers))
	for _, srv := range servers {
		go func(srv *http.Server) {
			serverErrors <- srv.ListenAndServe()
		}(srv)
	}

	var failure error
	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			failure = fmt.Errorf("server error: %w", err)
		}
	case <-ctx.Done():
		logger.Info("shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	for _, srv := range servers {
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Warn("graceful shutdown did not complete", "address", srv.Addr, "err", err)
			srv.Close()
		}
	}
	return failure
}
