package main

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"layerlens/internal/capture"
	"layerlens/internal/config"
	"layerlens/internal/display"
	"layerlens/internal/engine"
	"layerlens/internal/layout"
	"layerlens/internal/stats"
	"layerlens/internal/wsserver"
)

// version is overridden at link time.
var version = "dev"

const (
	eventQueueSize      = 256
	shutdownWaitTimeout = 10 * time.Second
)

// appOptions are fixed for the life of the daemon.
type appOptions struct {
	configPath string
	// logLevel comes from --log-level and wins over the config file.
	logLevel string
	level    *slog.LevelVar
	logs     *logForwarder
	// newSource builds the capture backend. Tests replace it.
	newSource func(capture.Options) capture.Source
}

// App is the daemon: capture feeds the engine, the engine feeds the
// debouncer, the overlay hub and the stats recorder.
type App struct {
	opts appOptions

	// Lock ordering (outer -> inner), one-way only:
	//   engine.emitMu -> debouncer.mu -> hub.writeMu -> log ring
	// Bootstrap runs under hub.writeMu and reads only the atomics and the
	// log ring. Status never takes debouncer.mu either.
	cfgMu sync.RWMutex
	cfg   config.Config

	// reloadMu serializes config reloads.
	reloadMu sync.Mutex

	engine    *engine.Engine
	debouncer *display.Debouncer
	hub       *wsserver.Hub
	// store and recorder are nil when stats are disabled or failed to open.
	store    *stats.Store
	recorder *stats.Recorder

	events chan engine.KeyEvent
	// activeLayout is the document the engine currently runs, swapped under
	// engine.emitMu so Bootstrap never pairs an old layout with a new state.
	activeLayout atomic.Pointer[layout.Layout]
	lastState    atomic.Pointer[display.State]
	startedAt    time.Time

	workersMu sync.Mutex
	workers   map[string]string

	shuttingDown atomic.Bool
	cancel       context.CancelFunc
	bgWG         sync.WaitGroup
}

func newApp(opts appOptions) *App {
	if opts.level == nil {
		opts.level = new(slog.LevelVar)
	}
	if opts.logs == nil {
		opts.logs = newLogForwarder()
	}
	if opts.newSource == nil {
		opts.newSource = capture.New
	}
	return &App{
		opts:    opts,
		engine:  engine.New(),
		events:  make(chan engine.KeyEvent, eventQueueSize),
		workers: map[string]string{},
	}
}
