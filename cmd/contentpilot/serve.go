package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/rahul/contentpilot/internal/observability"
	"github.com/rahul/contentpilot/internal/progress"
	"github.com/rahul/contentpilot/internal/store"
	"github.com/rahul/contentpilot/pkg/config"
)

const heartbeatInterval = 30 * time.Second

func serveCmd(root *rootOptions) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the onboarding progress server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := root.loadConfig(cmd)
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.Server.Addr = addr
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runServer(ctx, cfg, newLogger(cfg, root.debug))
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "Listen address, overrides server.addr")
	return cmd
}

func runServer(ctx context.Context, cfg *config.Config, logger *observability.Logger) error {
	catalog, err := loadCatalog(cfg)
	if err != nil {
		return err
	}
	interval, err := cfg.CleanupInterval()
	if err != nil {
		return err
	}
	if len(cfg.Server.Tokens) == 0 {
		log.Printf("\033[93m[ WARN ] no server.tokens configured, every request will be rejected\033[0m")
	}

	db, err := store.Open(cfg.Memory.Path)
	if err != nil {
		return fmt.Errorf("open %s: %w", cfg.Memory.Path, err)
	}
	defer db.Close()

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	// Caches written by local onboard runs share this database; the server
	// sweeps them and exports their counters.
	cs, err := newCaches(store.NewSQLiteKV(db), cacheOptions(cfg, reg)...)
	if err != nil {
		return err
	}
	for _, c := range cs.all() {
		go c.Run(ctx, interval)
	}

	progressStore := store.NewProgressStore(db, len(catalog), uuid.NewString)
	mux := http.NewServeMux()
	mux.Handle("/api/onboarding/", progress.NewHandler(progressStore, cfg.Server.Tokens))
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{EnableOpenMetrics: true}))
	// Three missed heartbeats mark the server unhealthy.
	mux.Handle("/health", observability.HealthHandler(3*heartbeatInterval))

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	observability.SetStatus(observability.PhaseServing, cfg.Server.Addr)
	observability.Heartbeat()
	go func() {
		ticker := time.NewTicker(heartbeatInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				observability.Heartbeat()
				logger.LogHeartbeat()
			}
		}
	}()

	errc := make(chan error, 1)
	go func() {
		log.Printf("\033[92m[ OK ] progress server listening on %s (%d steps)\033[0m", cfg.Server.Addr, len(catalog))
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("progress server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	log.Println("\033[95m[ EXIT ] progress server stopped\033[0m")
	return nil
}
