package main

import (
	"log/slog"
	"slices"

	"layerlens/internal/config"
	"layerlens/internal/engine"
	"layerlens/internal/layout"
	"layerlens/internal/wsserver"
)

// getConfigSnapshot returns a deep-copied config protected by cfgMu.
func (a *App) getConfigSnapshot() config.Config {
	a.cfgMu.RLock()
	defer a.cfgMu.RUnlock()
	return config.Clone(a.cfg)
}

// setConfigSnapshot stores a deep-copied config protected by cfgMu.
func (a *App) setConfigSnapshot(cfg config.Config) {
	a.cfgMu.Lock()
	a.cfg = config.Clone(cfg)
	a.cfgMu.Unlock()
}

// applyLayout rebuilds the engine from l. The overlay gets the new layout,
// a reset display state and the bootstrap updates, with no key update in
// between. On error nothing changes.
func (a *App) applyLayout(l *layout.Layout) error {
	doc := l.Clone()
	return a.engine.ReloadTo(doc, engine.SinkFunc(func(updates []engine.Update) {
		a.activeLayout.Store(doc)
		a.hub.Send(wsserver.LayoutMessage(doc))
		a.debouncer.Reset(doc.DefaultLayer)
		a.hub.Send(wsserver.UpdatesMessage(updates))
	}))
}

// applyLogLevel sets the process log level from cfg unless --log-level
// pinned it.
func (a *App) applyLogLevel(cfg config.Config) {
	if a.opts.logLevel != "" {
		return
	}
	a.opts.level.Set(cfg.SlogLevel())
}

// reloadConfig re-reads the config file. A file that fails to load or holds
// an invalid layout is rejected and the running state is kept.
func (a *App) reloadConfig() {
	a.reloadMu.Lock()
	defer a.reloadMu.Unlock()

	path := a.opts.configPath
	cfg, err := config.Load(path)
	if err != nil {
		slog.Warn("[WARN-CONFIG] reload rejected, keeping current config", "path", path, "error", err)
		return
	}
	if err := a.applyLayout(&cfg.Layout); err != nil {
		slog.Warn("[WARN-CONFIG] reload rejected, keeping current config", "path", path, "error", err)
		return
	}
	prev := a.getConfigSnapshot()
	a.debouncer.SetMinVisible(cfg.MinVisible())
	a.applyLogLevel(cfg)
	if fields := restartOnlyChanges(prev, cfg); len(fields) > 0 {
		slog.Warn("[WARN-CONFIG] some changes take effect after restart", "fields", fields)
	}
	a.setConfigSnapshot(cfg)
	slog.Info("[DEBUG-CONFIG] config reloaded", "path", path)
}

// restartOnlyChanges lists the fields that differ between prev and next but
// are only read at startup.
func restartOnlyChanges(prev, next config.Config) []string {
	var fields []string
	if prev.ListenAddr != next.ListenAddr {
		fields = append(fields, "listen_addr")
	}
	if !slices.Equal(prev.Devices, next.Devices) {
		fields = append(fields, "devices")
	}
	if prev.Stats.Enabled != next.Stats.Enabled || prev.StatsPath() != next.StatsPath() {
		fields = append(fields, "stats")
	}
	return fields
}
