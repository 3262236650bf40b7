package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"layerlens/internal/capture"
	"layerlens/internal/config"
	"layerlens/internal/configwatch"
	"layerlens/internal/display"
	"layerlens/internal/engine"
	"layerlens/internal/stats"
	"layerlens/internal/workerutil"
	"layerlens/internal/wsserver"
)

// defaultConfigFn is swapped by tests that need the fallback config on a free
// port.
var defaultConfigFn = config.DefaultConfig

// startup loads the config, builds every component and starts the workers.
// A broken config file is not fatal: the daemon runs on defaults and says so.
// Only a failure to serve the overlay is.
func (a *App) startup(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	a.cancel = cancel
	a.startedAt = time.Now()

	cfg, err := config.EnsureFile(a.opts.configPath)
	if err != nil {
		slog.Warn("[WARN-CONFIG] failed to load config, running with defaults",
			"path", a.opts.configPath, "error", err)
		cfg = defaultConfigFn()
	}
	a.setConfigSnapshot(cfg)
	a.applyLogLevel(cfg)

	a.debouncer = display.New(display.Options{
		MinVisible: cfg.MinVisible(),
		Publish:    a.publishState,
	})
	a.hub = wsserver.NewHub(wsserver.HubOptions{
		Addr:      cfg.ListenAddr,
		Bootstrap: a.bootstrapMessages,
		Status:    func() any { return a.status() },
	})
	if err := a.applyLayout(&cfg.Layout); err != nil {
		// EnsureFile validated it, so this is the default layout failing.
		cancel()
		return fmt.Errorf("layerlens: load layout: %w", err)
	}
	if err := a.hub.Start(ctx); err != nil {
		cancel()
		return fmt.Errorf("layerlens: overlay server: %w", err)
	}
	a.openStats(cfg)
	a.startWorkers(ctx)
	slog.Info("[DEBUG-APP] daemon started",
		"version", version,
		"config", a.opts.configPath,
		"overlay", a.hub.URL(),
	)
	return nil
}

func (a *App) openStats(cfg config.Config) {
	if !cfg.Stats.Enabled {
		return
	}
	store, err := stats.Open(cfg.StatsPath())
	if err != nil {
		slog.Warn("[WARN-STATS] statistics disabled", "path", cfg.StatsPath(), "error", err)
		return
	}
	a.store = store
	a.recorder = stats.NewRecorder(store, stats.RecorderOptions{})
}

func (a *App) startWorkers(ctx context.Context) {
	a.supervise(ctx, "capture", a.runCapture, func(err error) bool {
		return errors.Is(err, capture.ErrUnsupported)
	})
	a.supervise(ctx, "engine", a.runEngine, func(err error) bool {
		return errors.Is(err, engine.ErrNotLoaded)
	})
	a.supervise(ctx, "log-forward", a.forwardLogs, nil)
	if a.recorder != nil {
		a.supervise(ctx, "stats", a.recorder.Run, nil)
	}

	watcher, err := configwatch.New(configwatch.Options{
		Path:     a.opts.configPath,
		OnChange: a.reloadConfig,
	})
	if err != nil {
		slog.Warn("[WARN-CONFIG] live reload disabled", "error", err)
		return
	}
	a.supervise(ctx, "config-watch", watcher.Run, nil)
}

func (a *App) supervise(ctx context.Context, name string, fn func(context.Context) error, permanent func(error) bool) {
	a.setWorkerState(name, "running")
	workerutil.Supervise(ctx, name, &a.bgWG, fn, workerutil.Options{
		Permanent:  permanent,
		IsShutdown: a.shuttingDown.Load,
		OnFailure: func(worker string, attempt int, err error) {
			a.setWorkerState(worker, fmt.Sprintf("restarting (attempt %d): %v", attempt, err))
		},
		OnFatal: func(worker string, err error) {
			a.setWorkerState(worker, "stopped: "+err.Error())
		},
	})
}

func (a *App) setWorkerState(name, state string) {
	a.workersMu.Lock()
	a.workers[name] = state
	a.workersMu.Unlock()
}

// shutdown stops the workers, then the overlay server, then closes the stats
// database after the recorder has flushed.
func (a *App) shutdown() {
	if !a.shuttingDown.CompareAndSwap(false, true) {
		return
	}
	if a.cancel != nil {
		a.cancel()
	}
	if !waitWithTimeout(a.bgWG.Wait, shutdownWaitTimeout) {
		slog.Warn("[WARN-APP] timed out waiting for background workers during shutdown")
	}
	if a.debouncer != nil {
		a.debouncer.Close()
	}
	if a.hub != nil {
		if err := a.hub.Stop(); err != nil {
			slog.Warn("[WARN-APP] overlay server stop failed", "error", err)
		}
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			slog.Warn("[WARN-STATS] close failed", "error", err)
		}
	}
	slog.Info("[DEBUG-APP] daemon stopped")
}

func waitWithTimeout(waitFn func(), timeout time.Duration) bool {
	// The waiting goroutine may outlive timeout when waitFn blocks forever;
	// this only runs on the way out of the process.
	done := make(chan struct{})
	go func() {
		waitFn()
		close(done)
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-done:
		return true
	case <-timer.C:
		return false
	}
}
