// Command tallyd runs the Tally invoice engine: the public invoice surface,
// payment webhooks, notification delivery and the recurring scheduler.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/xraph/tally/api"
	"github.com/xraph/tally/id"
	"github.com/xraph/tally/usage"
)

var version = "0.1.0"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "tallyd: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:           "tallyd",
		Short:         "Invoice lifecycle and recurring billing daemon",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to a YAML config file (default: ./tally.yaml)")

	load := func(cmd *cobra.Command) (*app, error) {
		cfg, err := loadConfig(configPath)
		if err != nil {
			return nil, err
		}
		return newApp(cmd.Context(), cfg, newLogger(cfg))
	}

	root.AddCommand(newServeCmd(load), newRecurCmd(load), newUsageCmd(load))
	return root
}

func newServeCmd(load func(*cobra.Command) (*app, error)) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve public invoice links and webhooks, and run the scheduler",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := load(cmd)
			if err != nil {
				return err
			}
			defer a.close()

			return a.serve(ctx)
		},
	}
}

func newRecurCmd(load func(*cobra.Command) (*app, error)) *cobra.Command {
	return &cobra.Command{
		Use:   "recur",
		Short: "Run one recurring invoice pass and print the report",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := load(cmd)
			if err != nil {
				return err
			}
			defer a.close()

			if err := a.engine.Start(cmd.Context()); err != nil {
				return err
			}
			report, err := a.scheduler.RunOnce(cmd.Context())
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(report)
		},
	}
}

func newUsageCmd(load func(*cobra.Command) (*app, error)) *cobra.Command {
	var period string

	cmd := &cobra.Command{
		Use:   "usage <business-id>",
		Short: "Print a business's invoice send count for a month",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			bizID, err := id.ParseBusinessID(args[0])
			if err != nil {
				return err
			}
			a, err := load(cmd)
			if err != nil {
				return err
			}
			defer a.close()

			if period == "" {
				period = usage.Period(a.engine.Now())
			}
			count, err := a.usage.GetUsage(cmd.Context(), bizID, period)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s sent=%d free_limit=%d\n",
				bizID, period, count, a.engine.UsageLimits().Free)
			return nil
		},
	}
	cmd.Flags().StringVar(&period, "period", "", "month as YYYY-MM (default: current month)")
	return cmd
}

func (a *app) serve(ctx context.Context) error {
	if err := a.engine.Start(ctx); err != nil {
		return err
	}
	if a.cfg.Scheduler.Enabled {
		if err := a.scheduler.Start(ctx); err != nil {
			return err
		}
		defer a.scheduler.Stop()
		a.logger.Info("recurring scheduler started", "next_run", a.scheduler.Next())
	}

	router := mux.NewRouter()
	router.Handle("/metrics", promhttp.HandlerFor(a.registry, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	router.HandleFunc("/healthz", a.health).Methods(http.MethodGet)

	public := router
	if a.cfg.Server.BasePath != "" {
		public = router.PathPrefix(a.cfg.Server.BasePath).Subrouter()
	}
	api.NewHandlers(a.engine, api.WithLogger(a.logger)).RegisterRoutes(public)

	srv := &http.Server{
		Addr:              a.cfg.Server.Addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("http server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	a.logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func (a *app) health(w http.ResponseWriter, r *http.Request) {
	status := http.StatusOK
	body := map[string]any{"status": "ok", "notifications": a.engine.Notifications().Stats()}
	if err := a.engine.Store().Ping(r.Context()); err != nil {
		status = http.StatusServiceUnavailable
		body["status"] = "store unavailable"
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
