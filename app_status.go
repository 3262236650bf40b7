package main

import (
	"maps"
	"os"
	"time"

	"layerlens/internal/display"
	"layerlens/internal/engine"
)

// appStatus answers the overlay's "status" action.
type appStatus struct {
	Version      string            `json:"version"`
	PID          int               `json:"pid"`
	ConfigPath   string            `json:"config_path"`
	Uptime       string            `json:"uptime"`
	Engine       engine.Snapshot   `json:"engine"`
	Display      display.State     `json:"display"`
	Workers      map[string]string `json:"workers"`
	StatsSession string            `json:"stats_session,omitempty"`
	StatsDropped int64             `json:"stats_dropped"`
	LogsDropped  int64             `json:"logs_dropped"`
}

// status reads the display state from lastState rather than the debouncer,
// whose lock may be held by a sender blocked on the hub.
func (a *App) status() appStatus {
	s := appStatus{
		Version:     version,
		PID:         os.Getpid(),
		ConfigPath:  a.opts.configPath,
		Uptime:      time.Since(a.startedAt).Round(time.Second).String(),
		Engine:      a.engine.Snapshot(),
		LogsDropped: a.opts.logs.dropped.Load(),
	}
	if st := a.lastState.Load(); st != nil {
		s.Display = *st
	}
	a.workersMu.Lock()
	s.Workers = maps.Clone(a.workers)
	a.workersMu.Unlock()
	if a.recorder != nil {
		s.StatsSession = a.recorder.Session()
		s.StatsDropped = a.recorder.Dropped()
	}
	return s
}
