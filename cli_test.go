package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"layerlens/internal/config"
	"layerlens/internal/display"
	"layerlens/internal/engine"
	"layerlens/internal/layout"
	"layerlens/internal/logforward"
	"layerlens/internal/stats"
	"layerlens/internal/testutil"
	"layerlens/internal/wsserver"
)

const importLayout = `
switches:
  a: {pos: {x: 0, y: 0}}
  b: {pos: {x: 1, y: 0}}
default_layer: main
layer_order: [main]
layers:
  main:
    bindings:
      a: {tap: {input: A}}
      b: {tap: {input: B}}
`

func executeCommand(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	original := slog.Default()
	t.Cleanup(func() { slog.SetDefault(original) })

	cmd := NewRootCommand()
	out := &bytes.Buffer{}
	cmd.SetOut(out)
	cmd.SetErr(io.Discard)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func tempConfig(t *testing.T, doc string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if doc != "" {
		require.NoError(t, os.WriteFile(path, []byte(doc), 0o600))
	}
	return path
}

func TestRootCommand(t *testing.T) {
	cmd := NewRootCommand()
	require.NotNil(t, cmd)
	assert.Equal(t, "layerlens", cmd.Use)
	assert.Contains(t, cmd.Long, "overlay")
}

func TestCommandPresence(t *testing.T) {
	cmd := NewRootCommand()
	for _, name := range []string{"run", "check", "import", "export", "stats", "watch", "version"} {
		t.Run(name, func(t *testing.T) {
			sub, _, err := cmd.Find([]string{name})
			require.NoError(t, err)
			require.NotNil(t, sub)
			assert.Equal(t, name, sub.Name())
		})
	}
}

func TestGlobalFlags(t *testing.T) {
	cmd := NewRootCommand()

	configFlag := cmd.PersistentFlags().Lookup("config")
	require.NotNil(t, configFlag)
	assert.Equal(t, "c", configFlag.Shorthand)

	formatFlag := cmd.PersistentFlags().Lookup("format")
	require.NotNil(t, formatFlag)
	assert.Equal(t, "text", formatFlag.DefValue)

	require.NotNil(t, cmd.PersistentFlags().Lookup("log-level"))
}

func TestInvalidGlobalFlags(t *testing.T) {
	_, err := executeCommand(t, "", "version", "--format", "xml")
	assert.ErrorContains(t, err, "invalid format")

	_, err = executeCommand(t, "", "version", "--log-level", "loud")
	assert.ErrorContains(t, err, "invalid log level")
}

func TestVersionCommand(t *testing.T) {
	out, err := executeCommand(t, "", "version")
	require.NoError(t, err)
	assert.Equal(t, "layerlens dev\n", out)
}

func TestCheckCommand(t *testing.T) {
	t.Run("sample layout", func(t *testing.T) {
		path := tempConfig(t, "min_visible_ms: 50\n")
		out, err := executeCommand(t, "", "check", path)
		require.NoError(t, err)
		assert.Contains(t, out, path+": ok (3 layers, 12 switches")
	})

	t.Run("json", func(t *testing.T) {
		path := tempConfig(t, "min_visible_ms: 50\n")
		out, err := executeCommand(t, "", "check", path, "--format", "json")
		require.NoError(t, err)
		assert.True(t, gjson.Get(out, "valid").Bool())
		assert.Equal(t, int64(3), gjson.Get(out, "layers").Int())
	})

	t.Run("invalid layout", func(t *testing.T) {
		path := tempConfig(t, "layout:\n  switches: {a: {}}\n  default_layer: x\n  layer_order: [y]\n")
		out, err := executeCommand(t, "", "check", path, "--format", "json")
		require.Error(t, err)
		assert.False(t, gjson.Get(out, "valid").Bool())
		assert.Contains(t, gjson.Get(out, "error").String(), "default_layer")
	})

	t.Run("missing explicit file", func(t *testing.T) {
		_, err := executeCommand(t, "", "check", filepath.Join(t.TempDir(), "nope.yaml"))
		assert.ErrorIs(t, err, os.ErrNotExist)
	})

	t.Run("configured file", func(t *testing.T) {
		path := tempConfig(t, "")
		out, err := executeCommand(t, "", "check", "--config", path)
		require.NoError(t, err)
		assert.Contains(t, out, ": ok (")
	})
}

func TestImportCommand(t *testing.T) {
	t.Run("saves layout and keeps settings", func(t *testing.T) {
		path := tempConfig(t, "min_visible_ms: 250\n")
		out, err := executeCommand(t, importLayout, "import", "--config", path)
		require.NoError(t, err)
		assert.Contains(t, out, "imported layout into "+path)

		cfg, err := config.Load(path)
		require.NoError(t, err)
		assert.Equal(t, 250, cfg.MinVisibleMs)
		assert.Equal(t, "main", cfg.Layout.DefaultLayer)
		assert.Len(t, cfg.Layout.Switches, 2)
	})

	t.Run("json document", func(t *testing.T) {
		path := tempConfig(t, "")
		doc := `{"switches":{"a":{"pos":{"x":0,"y":0}}},"default_layer":"main","layer_order":["main"],` +
			`"layers":{"main":{"bindings":{"a":{"tap":{"input":"A"}}}}}}`
		_, err := executeCommand(t, doc, "import", "--config", path)
		require.NoError(t, err)
		cfg, err := config.Load(path)
		require.NoError(t, err)
		assert.Equal(t, []string{"main"}, cfg.Layout.LayerOrder)
	})

	t.Run("dry run does not write", func(t *testing.T) {
		path := tempConfig(t, "")
		out, err := executeCommand(t, importLayout, "import", "--config", path, "--dry-run")
		require.NoError(t, err)
		assert.Contains(t, out, "not saved")
		_, statErr := os.Stat(path)
		assert.ErrorIs(t, statErr, os.ErrNotExist)
	})

	t.Run("rejects unknown fields", func(t *testing.T) {
		path := tempConfig(t, "")
		_, err := executeCommand(t, importLayout+"laers: {}\n", "import", "--config", path)
		assert.ErrorContains(t, err, "laers")
	})

	t.Run("rejects invalid layout", func(t *testing.T) {
		path := tempConfig(t, "min_visible_ms: 250\n")
		bad := strings.Replace(importLayout, "default_layer: main", "default_layer: other", 1)
		_, err := executeCommand(t, bad, "import", "--config", path)
		require.Error(t, err)
		raw, readErr := os.ReadFile(path)
		require.NoError(t, readErr)
		assert.Equal(t, "min_visible_ms: 250\n", string(raw), "config untouched")
	})

	t.Run("rejects empty input", func(t *testing.T) {
		_, err := executeCommand(t, "", "import", "--config", tempConfig(t, ""))
		assert.ErrorContains(t, err, "empty layout document")
	})
}

func TestExportCommand(t *testing.T) {
	path := tempConfig(t, "")
	_, err := executeCommand(t, importLayout, "import", "--config", path)
	require.NoError(t, err)

	out, err := executeCommand(t, "", "export", "--config", path)
	require.NoError(t, err)
	l, err := readLayout(strings.NewReader(out))
	require.NoError(t, err)
	assert.Equal(t, "main", l.DefaultLayer)

	out, err = executeCommand(t, "", "export", "--config", path, "--format", "json")
	require.NoError(t, err)
	assert.Equal(t, "A", gjson.Get(out, "layers.main.bindings.a.tap.input").String())
}

func TestStatsCommand(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "stats.db")
	path := tempConfig(t, "stats:\n  enabled: true\n  path: "+dbPath+"\n")

	out, err := executeCommand(t, "", "stats", "--config", path)
	require.NoError(t, err)
	assert.Contains(t, out, "no statistics recorded yet")

	store, err := stats.Open(dbPath)
	require.NoError(t, err)
	ctx := context.Background()
	now := time.Now()
	require.NoError(t, store.StartSession(ctx, "s1", now))
	require.NoError(t, store.Insert(ctx, "s1", []stats.Press{
		{SwitchID: "a", Slot: "tap", At: now},
		{SwitchID: "a", Slot: "tap", At: now},
		{SwitchID: "b", Slot: "hold", At: now},
	}))
	require.NoError(t, store.Close())

	out, err = executeCommand(t, "", "stats", "--config", path, "--top", "1")
	require.NoError(t, err)
	assert.Contains(t, out, "3 presses over 1 sessions")
	assert.Contains(t, out, "SWITCH")
	assert.NotContains(t, out, "hold")

	out, err = executeCommand(t, "", "stats", "--config", path, "--format", "json")
	require.NoError(t, err)
	assert.Equal(t, int64(3), gjson.Get(out, "summary.presses").Int())
	assert.Equal(t, "a", gjson.Get(out, "top.0.switch_id").String())
	assert.Equal(t, int64(2), gjson.Get(out, "top.0.count").Int())

	_, err = executeCommand(t, "", "stats", "--config", path, "--top", "0")
	assert.ErrorContains(t, err, "--top must be positive")
}

func TestWatchPrintsStream(t *testing.T) {
	app := startTestApp(t, baseTestConfig, make(chanSource))
	out := &testutil.LogBuffer{}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- runWatch(ctx, app.hub.Addr().String(), false, out) }()

	testutil.WaitFor(t, 3*time.Second, "bootstrap printed", func() bool {
		return strings.Contains(out.String(), "layers=[base] switches=[]")
	})
	assert.Contains(t, out.String(), "layout default=base")

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("watch did not stop on cancel")
	}
}

func TestWatchWithoutDaemon(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	err = runWatch(context.Background(), addr, false, io.Discard)
	assert.ErrorIs(t, err, errNotRunning)
}

func TestFormatWatchMessage(t *testing.T) {
	tests := []struct {
		name string
		msg  wsserver.Message
		want string
	}{
		{
			name: "updates",
			msg: wsserver.UpdatesMessage([]engine.Update{
				engine.LayerActivate{Layer: "nav"},
				engine.SwitchPressed{ID: "a", Slot: layout.Hold},
			}),
			want: "#0 update LayerActivate(nav) SwitchPressed(a, hold)",
		},
		{
			name: "state",
			msg: wsserver.StateMessage(display.State{
				Layers:   []string{"base", "nav"},
				Switches: []engine.ActiveSwitch{{ID: "a", Slot: layout.Tap}},
			}),
			want: "#0 state layers=[base nav] switches=[a(tap)]",
		},
		{
			name: "log",
			msg:  wsserver.LogMessage(logforward.Entry{Level: "WARN", Message: "[WARN-CONFIG] x"}),
			want: "#0 log WARN [WARN-CONFIG] x",
		},
		{
			name: "status",
			msg:  wsserver.Message{Type: wsserver.TypeStatus, Seq: 4, Status: json.RawMessage(`{"pid":1}`)},
			want: `#4 status {"pid":1}`,
		},
		{
			name: "empty layout",
			msg:  wsserver.Message{Type: wsserver.TypeLayout, Seq: 2},
			want: "#2 layout",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, formatWatchMessage(tt.msg))
		})
	}
}
