package main

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/evanofslack/ddns-sync/internal/config"
	"github.com/evanofslack/ddns-sync/internal/logger"
	"github.com/evanofslack/ddns-sync/internal/metrics"
	"github.com/evanofslack/ddns-sync/internal/provider"
	_ "github.com/evanofslack/ddns-sync/internal/provider/providers"
	"github.com/evanofslack/ddns-sync/internal/resolver"
	"github.com/evanofslack/ddns-sync/internal/scheduler"
	"github.com/evanofslack/ddns-sync/internal/state"
)

const configPath = "config.yaml"

func main() {
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, nil)))

	cfg, err := config.Load(configPath)
	if err != nil {
		slog.Error("Failed to load config", "error", err)
		os.Exit(1)
	}
	logger.Configure(cfg.Log.Level, cfg.Log.Env)

	// Initialize metrics
	metrics := metrics.New(true)

	store, err := state.New(cfg.StatePath, metrics)
	if err != nil {
		slog.Error("Failed to open state store", "error", err)
		os.Exit(1)
	}
	defer store.Close()

	sched, err := buildScheduler(cfg, store, metrics)
	if err != nil {
		slog.Error("Failed to build scheduler", "error", err)
		os.Exit(1)
	}

	// The status handler must see the scheduler built by the most
	// recent reload.
	var current atomic.Pointer[scheduler.Scheduler]
	current.Store(sched)

	// Set up HTTP server for metrics, status and health checks
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/status", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(current.Load().Snapshot()); err != nil {
			slog.Error("Failed to encode status", "error", err)
		}
	})

	server := &http.Server{
		Addr:    cfg.StatusAddr,
		Handler: mux,
	}

	// Start http server in background
	go func() {
		slog.Info("Starting status server", "address", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("Status server failed", "error", err)
		}
	}()

	slog.Info("Starting ddns-sync service", "records", len(cfg.Records))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sched.Start(ctx)
	go drainEvents(sched)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)

	for {
		sig := <-sigCh
		if sig != syscall.SIGHUP {
			slog.Info("Shutdown signal received", "signal", sig.String())
			break
		}

		// SIGHUP reloads config and rebuilds every record task. A
		// reload is also how suspended records come back to life.
		slog.Info("Reload signal received, reloading configuration")
		newCfg, err := config.Load(configPath)
		if err != nil {
			slog.Error("Reload failed, keeping current configuration", "error", err)
			continue
		}

		cancel()
		sched.Wait()

		newSched, err := buildScheduler(newCfg, store, metrics)
		if err != nil {
			slog.Error("Reload failed to build scheduler, exiting", "error", err)
			os.Exit(1)
		}

		logger.Configure(newCfg.Log.Level, newCfg.Log.Env)
		cfg = newCfg
		sched = newSched
		current.Store(sched)
		ctx, cancel = context.WithCancel(context.Background())
		sched.Start(ctx)
		go drainEvents(sched)
		slog.Info("Configuration reloaded", "records", len(cfg.Records))
	}

	cancel()

	shutdownCtx, cancelServer := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelServer()
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("Status server shutdown error", "error", err)
	}

	sched.Wait()
	slog.Info("Service shutdown complete")
}

func buildScheduler(cfg *config.Config, store state.Store, m *metrics.Metrics) (*scheduler.Scheduler, error) {
	exec := provider.NewExec(cfg.HTTPTimeout, m)

	providers := make(map[string]provider.Provider, len(cfg.Providers))
	for name, spec := range cfg.Providers {
		p, err := provider.New(name, spec, exec)
		if err != nil {
			return nil, err
		}
		providers[name] = p
	}

	res := resolver.New(cfg.Resolver, m)
	return scheduler.New(cfg, res, store, providers, m)
}

// drainEvents consumes the scheduler's event stream. The runners log
// every attempt themselves; this surface exists so external consumers
// can observe outcomes without scraping logs.
func drainEvents(sched *scheduler.Scheduler) {
	for ev := range sched.Events() {
		slog.Debug("Update event",
			"record", ev.Record,
			"outcome", ev.Outcome.Kind.String(),
			"reason", ev.Outcome.Reason)
	}
}
