package main

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"layerlens/internal/capture"
	"layerlens/internal/config"
	"layerlens/internal/engine"
	"layerlens/internal/keys"
	"layerlens/internal/stats"
	"layerlens/internal/testutil"
)

// NOTE: these tests swap the default slog logger. Do not use t.Parallel().

const baseTestConfig = `
listen_addr: 127.0.0.1:0
min_visible_ms: 0
log_level: debug
stats:
  enabled: false
`

const altLayoutConfig = baseTestConfig + `
layout:
  switches:
    x: {pos: {x: 0, y: 0}}
  default_layer: alt
  layer_order: [alt]
  layers:
    alt:
      bindings:
        x: {tap: {input: X}}
`

// chanSource replays whatever the test pushes until the daemon stops.
type chanSource chan engine.KeyEvent

func (c chanSource) Run(ctx context.Context, emit func(engine.KeyEvent)) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev := <-c:
			emit(ev)
		}
	}
}

func writeConfig(t *testing.T, path, doc string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o600))
}

func startTestApp(t *testing.T, doc string, src capture.Source) *App {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	writeConfig(t, path, doc)
	app := newApp(appOptions{
		configPath: path,
		newSource:  func(capture.Options) capture.Source { return src },
	})
	require.NoError(t, app.startup(context.Background()))
	t.Cleanup(app.shutdown)
	return app
}

func dialApp(t *testing.T, app *App) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(app.hub.URL(), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func readFrame(t *testing.T, conn *websocket.Conn) gjson.Result {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	_, raw, err := conn.ReadMessage()
	require.NoError(t, err)
	return gjson.ParseBytes(raw)
}

// readUntil skips frames until match accepts one.
func readUntil(t *testing.T, conn *websocket.Conn, what string, match func(gjson.Result) bool) gjson.Result {
	t.Helper()
	for range 50 {
		frame := readFrame(t, conn)
		if match(frame) {
			return frame
		}
	}
	t.Fatalf("no frame matching %s", what)
	return gjson.Result{}
}

func press(c keys.Code) engine.KeyEvent   { return engine.KeyEvent{Kind: engine.Press, Code: c} }
func release(c keys.Code) engine.KeyEvent { return engine.KeyEvent{Kind: engine.Release, Code: c} }

func TestAppBootstrapThenUpdates(t *testing.T) {
	src := make(chanSource)
	app := startTestApp(t, baseTestConfig, src)
	conn := dialApp(t, app)

	first := readFrame(t, conn)
	assert.Equal(t, "layout", first.Get("type").String())
	assert.Equal(t, "base", first.Get("layout.default_layer").String())
	second := readFrame(t, conn)
	assert.Equal(t, "state", second.Get("type").String())
	assert.Equal(t, `["base"]`, second.Get("state.layers").Raw)
	assert.Greater(t, second.Get("seq").Uint(), first.Get("seq").Uint())

	src <- press(keys.KeyQ)
	update := readUntil(t, conn, "switch update", func(f gjson.Result) bool {
		return f.Get("type").String() == "update"
	})
	assert.Equal(t, "switch_pressed", update.Get("updates.0.kind").String())
	assert.Equal(t, "q", update.Get("updates.0.id").String())
	assert.Equal(t, "tap", update.Get("updates.0.slot").String())

	state := readUntil(t, conn, "state with q", func(f gjson.Result) bool {
		return f.Get("type").String() == "state" && f.Get("state.switches.#").Int() == 1
	})
	assert.Equal(t, "q", state.Get("state.switches.0.id").String())

	src <- release(keys.KeyQ)
	readUntil(t, conn, "q released", func(f gjson.Result) bool {
		return f.Get("type").String() == "update" && f.Get("updates.0.kind").String() == "switch_released"
	})
}

func TestAppHoldActivatesLayer(t *testing.T) {
	src := make(chanSource)
	app := startTestApp(t, baseTestConfig, src)

	src <- press(keys.KeyLeftShift)
	testutil.WaitFor(t, 2*time.Second, "shift layer", func() bool {
		s := app.lastState.Load()
		return s != nil && len(s.Layers) == 2 && s.Layers[1] == "shift"
	})
	// On the shift layer q sends "!", which the host sees as Shift+1.
	src <- press(keys.Key1)
	testutil.WaitFor(t, 2*time.Second, "q on shift layer", func() bool {
		snap := app.engine.Snapshot()
		return len(snap.ActiveSwitches) == 2 && snap.ActiveSwitches[1].ID == "q"
	})

	// Physical Q under the shift layer is occluded.
	src <- press(keys.KeyQ)
	src <- release(keys.KeyQ)
	src <- release(keys.Key1)
	testutil.WaitFor(t, 2*time.Second, "q released", func() bool {
		return len(app.engine.Snapshot().ActiveSwitches) == 1
	})
	assert.Equal(t, "lshift", app.engine.Snapshot().ActiveSwitches[0].ID)
}

func TestAppStatusReply(t *testing.T) {
	app := startTestApp(t, baseTestConfig, make(chanSource))
	conn := dialApp(t, app)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"action":"status"}`)))
	reply := readUntil(t, conn, "status reply", func(f gjson.Result) bool {
		return f.Get("type").String() == "status"
	})
	assert.Equal(t, "base", reply.Get("status.engine.default_layer").String())
	assert.Equal(t, "running", reply.Get("status.workers.engine").String())
	assert.Equal(t, app.opts.configPath, reply.Get("status.config_path").String())
	assert.False(t, reply.Get("status.stats_session").Exists(), "stats are disabled")
}

func TestAppForwardsWarnings(t *testing.T) {
	app := startTestApp(t, baseTestConfig, make(chanSource))
	original := slog.Default()
	slog.SetDefault(newLogger(io.Discard, app.opts.level, app.opts.logs))
	t.Cleanup(func() { slog.SetDefault(original) })

	conn := dialApp(t, app)
	readUntil(t, conn, "bootstrap state", func(f gjson.Result) bool {
		return f.Get("type").String() == "state"
	})

	slog.Info("[DEBUG-TEST] not forwarded")
	slog.Warn("[WARN-TEST] forwarded", "switch", "q")
	frame := readUntil(t, conn, "log frame", func(f gjson.Result) bool {
		return f.Get("type").String() == "log"
	})
	assert.Equal(t, "[WARN-TEST] forwarded", frame.Get("log.message").String())
	assert.Equal(t, "q", frame.Get("log.attrs.switch").String())

	// A new overlay gets the recent warnings with its bootstrap.
	conn2 := dialApp(t, app)
	frame = readUntil(t, conn2, "replayed log", func(f gjson.Result) bool {
		return f.Get("type").String() == "log"
	})
	assert.Equal(t, "[WARN-TEST] forwarded", frame.Get("log.message").String())
}

func TestAppReloadAppliesNewLayout(t *testing.T) {
	app := startTestApp(t, baseTestConfig, make(chanSource))
	conn := dialApp(t, app)
	readUntil(t, conn, "bootstrap state", func(f gjson.Result) bool {
		return f.Get("type").String() == "state"
	})

	writeConfig(t, app.opts.configPath, strings.Replace(altLayoutConfig, "min_visible_ms: 0", "min_visible_ms: 250", 1))
	app.reloadConfig()

	assert.Equal(t, "alt", app.engine.Snapshot().DefaultLayer)
	assert.Equal(t, "alt", app.activeLayout.Load().DefaultLayer)
	assert.Equal(t, 250, app.getConfigSnapshot().MinVisibleMs)

	var kinds []string
	for range 3 {
		kinds = append(kinds, readFrame(t, conn).Get("type").String())
	}
	assert.Equal(t, []string{"layout", "state", "update"}, kinds)
}

func TestAppReloadRejectsInvalidConfig(t *testing.T) {
	app := startTestApp(t, baseTestConfig, make(chanSource))
	logs := testutil.CaptureLogBuffer(t, slog.LevelWarn)
	before := app.activeLayout.Load()

	writeConfig(t, app.opts.configPath, baseTestConfig+`
layout:
  switches:
    x: {pos: {x: 0, y: 0}}
  default_layer: missing
  layer_order: [alt]
  layers:
    alt: {bindings: {}}
`)
	app.reloadConfig()

	assert.Same(t, before, app.activeLayout.Load())
	assert.Equal(t, "base", app.engine.Snapshot().DefaultLayer)
	assert.Contains(t, logs.String(), "[WARN-CONFIG] reload rejected")
}

func TestAppLogLevelFollowsConfigUnlessPinned(t *testing.T) {
	app := startTestApp(t, baseTestConfig, make(chanSource))
	assert.Equal(t, slog.LevelDebug, app.opts.level.Level())

	pinned := newApp(appOptions{logLevel: "error"})
	pinned.opts.level.Set(slog.LevelError)
	pinned.applyLogLevel(config.DefaultConfig())
	assert.Equal(t, slog.LevelError, pinned.opts.level.Level())
}

func TestAppWatchesConfigFile(t *testing.T) {
	app := startTestApp(t, baseTestConfig, make(chanSource))
	writeConfig(t, app.opts.configPath, altLayoutConfig)
	testutil.WaitFor(t, 5*time.Second, "reload from watcher", func() bool {
		return app.engine.Snapshot().DefaultLayer == "alt"
	})
}

func TestAppRecordsPressStatistics(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "stats.db")
	doc := strings.Replace(baseTestConfig, "enabled: false", "enabled: true\n  path: "+dbPath, 1)
	src := make(chanSource)
	app := startTestApp(t, doc, src)
	require.NotNil(t, app.recorder)

	src <- press(keys.KeyQ)
	testutil.WaitFor(t, 2*time.Second, "q pressed", func() bool {
		return len(app.engine.Snapshot().ActiveSwitches) == 1
	})
	src <- release(keys.KeyQ)
	testutil.WaitFor(t, 2*time.Second, "q released", func() bool {
		return len(app.engine.Snapshot().ActiveSwitches) == 0
	})
	app.shutdown()

	store, err := stats.Open(dbPath)
	require.NoError(t, err)
	defer store.Close()
	top, err := store.Top(context.Background(), 5)
	require.NoError(t, err)
	require.Len(t, top, 1)
	assert.Equal(t, stats.SwitchCount{SwitchID: "q", Slot: "tap", Count: 1}, top[0])
}

func TestAppFallsBackToDefaultsOnBrokenConfig(t *testing.T) {
	defaultConfigFn = func() config.Config {
		cfg := config.DefaultConfig()
		cfg.ListenAddr = "127.0.0.1:0"
		return cfg
	}
	t.Cleanup(func() { defaultConfigFn = config.DefaultConfig })
	logs := testutil.CaptureLogBuffer(t, slog.LevelWarn)

	app := startTestApp(t, "listen_addr: [not, a, string]\n", make(chanSource))

	assert.Contains(t, logs.String(), "[WARN-CONFIG] failed to load config, running with defaults")
	assert.Equal(t, "base", app.engine.Snapshot().DefaultLayer)
	assert.Equal(t, config.DefaultConfig().MinVisibleMs, app.getConfigSnapshot().MinVisibleMs)
}

func TestRestartOnlyChanges(t *testing.T) {
	prev := config.DefaultConfig()
	next := config.Clone(prev)
	assert.Empty(t, restartOnlyChanges(prev, next))

	next.ListenAddr = "127.0.0.1:9000"
	next.Devices = []string{"kbd"}
	next.Stats.Enabled = false
	next.MinVisibleMs = 300
	assert.Equal(t, []string{"listen_addr", "devices", "stats"}, restartOnlyChanges(prev, next))
}

func TestWaitWithTimeout(t *testing.T) {
	assert.True(t, waitWithTimeout(func() {}, time.Second))

	block := make(chan struct{})
	defer close(block)
	assert.False(t, waitWithTimeout(func() { <-block }, 20*time.Millisecond))
}

func TestStatusIsJSON(t *testing.T) {
	app := startTestApp(t, baseTestConfig, make(chanSource))
	raw, err := json.Marshal(app.status())
	require.NoError(t, err)
	assert.Equal(t, "dev", gjson.GetBytes(raw, "version").String())
	assert.Equal(t, int64(0), gjson.GetBytes(raw, "logs_dropped").Int())
}
