// Command starscheduler is the headless CLI entry point for the Event
// Scheduler Engine and Connection Registry: flag parsing, signal-driven
// graceful shutdown, and the exit-cancel-presentations routine.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/starscheduler/starscheduler/internal/config"
	"github.com/starscheduler/starscheduler/internal/engine"
	"github.com/starscheduler/starscheduler/internal/logging"
	"github.com/starscheduler/starscheduler/internal/observability"
	"github.com/starscheduler/starscheduler/internal/registry"
	"github.com/starscheduler/starscheduler/internal/timetable"
)

const version = "0.1.0"

func main() {
	if err := run(os.Args[1:]); err != nil {
		slog.Error("starscheduler exited with error", "error", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	fs := flag.NewFlagSet("starscheduler", flag.ExitOnError)
	configPath := fs.String("config", "user/config.json", "path to config.json")
	timetablePath := fs.String("timetable", "user/timetable.xml", "path to timetable.xml")
	noGUI := fs.Bool("no-gui", false, "run headless and exit after connectivity check")
	testOutputs := fs.Bool("test-outputs", false, "enumerate configured outputs and exit")
	_ = fs.Bool("force-qt5-compat", false, "ignored (UI-only flag)")
	addr := fs.String("addr", "", "optional metrics listener address, e.g. :9090")
	_ = fs.Parse(args)

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	level, err := logging.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = slog.LevelInfo
	}
	logging.SetLevel(level)
	logging.Setup(logging.Options{ForceStdout: cfg.LogSTDOUT})

	slog.Info("starscheduler starting", "version", version, "outputs", len(cfg.Outputs))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	reg := registry.New(ctx, cfg.Outputs)
	logs := observability.NewLogBuffer()
	status := observability.NewStatus()

	store, err := timetable.Open(*timetablePath, nil)
	if err != nil {
		return fmt.Errorf("timetable: %w", err)
	}

	eng := engine.New(engine.Config{
		Store:      store,
		Registry:   reg,
		Status:     status,
		Logs:       logs,
		Clients:    cfg.Outputs,
		MaxThreads: cfg.MaxThreads,
	})

	if *testOutputs {
		waitForInitialConnect(ctx, 3*time.Second)
		results := eng.TestOutputs(ctx)
		for id, ok := range results {
			fmt.Printf("%s: %v\n", id, ok)
		}
		return nil
	}

	pollInterval := time.Duration(cfg.CacheUpdateIntervalSec) * time.Second
	if err := eng.Start(ctx, pollInterval); err != nil {
		return fmt.Errorf("engine: %w", err)
	}

	var metricsServer *http.Server
	if *addr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		metricsServer = &http.Server{Addr: *addr, Handler: mux}
		go func() {
			if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				slog.Error("metrics server error", "error", err)
			}
		}()
	}

	if *noGUI {
		waitForInitialConnect(ctx, 3*time.Second)
		slog.Info("connectivity check complete, exiting (--no-gui)")
		shutdown(eng, cfg, metricsServer)
		return nil
	}

	<-ctx.Done()
	slog.Info("shutdown signal received")
	shutdown(eng, cfg, metricsServer)
	return nil
}

func waitForInitialConnect(ctx context.Context, d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
	}
}

// shutdown runs the exit-cancel-presentations routine (when enabled),
// then stops the engine's scheduler and registry. Registered as a
// single ordered sequence, not a process-exit hook, since
// signal.NotifyContext already gives us a clean cancellation point.
func shutdown(eng *engine.Engine, cfg config.Config, metricsServer *http.Server) {
	if cfg.CancelPresentationsOnExit {
		eng.CancelAllPresentations(context.Background(), 10*time.Second)
	}
	eng.Shutdown()
	if metricsServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = metricsServer.Shutdown(ctx)
	}
}
