// Package config loads and saves the layerlens YAML document: the keyboard
// layout plus daemon settings.
package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"

	"go.yaml.in/yaml/v3"

	"layerlens/internal/layout"
)

const (
	maxConfigFileBytes int64 = 1 << 20 // 1MB
	// maxMinVisibleMs caps the debounce; longer values make the overlay lag.
	maxMinVisibleMs = 5000
	maxValidPort    = 65535

	appDirName = "layerlens"
)

// EnvConfigPath overrides DefaultPath when set.
const EnvConfigPath = "LAYERLENS_CONFIG"

//go:embed default_layout.yaml
var defaultLayoutYAML []byte

var userHomeDirFn = os.UserHomeDir

var validLogLevels = []string{"debug", "info", "warn", "error"}

// StatsConfig controls the press statistics database.
type StatsConfig struct {
	Enabled bool `yaml:"enabled" json:"enabled"`
	// Path of the SQLite file. Empty means DefaultStatsPath().
	Path string `yaml:"path,omitempty" json:"path,omitempty"`
}

// Config is the layerlens configuration document.
type Config struct {
	Layout layout.Layout `yaml:"layout" json:"layout"`
	// MinVisibleMs keeps released switches shown for at least this long.
	MinVisibleMs int `yaml:"min_visible_ms" json:"min_visible_ms"`
	// ListenAddr is the host:port of the overlay WebSocket. Port 0 lets the
	// OS pick one.
	ListenAddr string `yaml:"listen_addr" json:"listen_addr"`
	// Devices restricts capture to input devices whose name contains one of
	// these substrings.
	Devices  []string    `yaml:"devices,omitempty" json:"devices,omitempty"`
	Stats    StatsConfig `yaml:"stats" json:"stats"`
	LogLevel string      `yaml:"log_level" json:"log_level"`
}

// DefaultLayout returns the built-in sample layout.
func DefaultLayout() layout.Layout {
	var l layout.Layout
	if err := yaml.Unmarshal(defaultLayoutYAML, &l); err != nil {
		panic(fmt.Sprintf("config: embedded default layout: %v", err))
	}
	return l
}

// DefaultConfig returns default values with the sample layout.
func DefaultConfig() Config {
	return Config{
		Layout:       DefaultLayout(),
		MinVisibleMs: 100,
		ListenAddr:   "127.0.0.1:7331",
		Stats:        StatsConfig{Enabled: true},
		LogLevel:     "info",
	}
}

// DefaultPath returns $LAYERLENS_CONFIG, or config.yaml under the XDG config
// directory.
func DefaultPath() string {
	if override := strings.TrimSpace(os.Getenv(EnvConfigPath)); override != "" {
		return override
	}
	return filepath.Join(baseDir("XDG_CONFIG_HOME", ".config"), appDirName, "config.yaml")
}

// DefaultStatsPath returns stats.db under the XDG state directory.
func DefaultStatsPath() string {
	return filepath.Join(baseDir("XDG_STATE_HOME", filepath.Join(".local", "state")), appDirName, "stats.db")
}

func baseDir(env, homeRel string) string {
	if base := strings.TrimSpace(os.Getenv(env)); base != "" {
		return base
	}
	home, err := userHomeDirFn()
	if err != nil {
		// Keep the path resolvable even in restricted environments.
		slog.Warn("[WARN-CONFIG] using temp dir as config base fallback", "env", env, "error", err)
		return os.TempDir()
	}
	return filepath.Join(home, homeRel)
}

// Load reads path. A missing or empty file yields DefaultConfig. A file that
// fails to parse or validate returns the error and a zero Config so callers
// keep whatever they were using before.
func Load(path string) (Config, error) {
	if strings.TrimSpace(path) == "" {
		return Config{}, errors.New("config: load: path required")
	}
	raw, err := readLimitedFile(path, maxConfigFileBytes)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return DefaultConfig(), nil
		}
		return Config{}, fmt.Errorf("config: load %s: %w", path, err)
	}
	cfg, err := Parse(raw)
	if err != nil {
		return Config{}, fmt.Errorf("config: load %s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes a configuration document, fills defaults and validates it.
// A document without a layout gets the sample layout.
func Parse(raw []byte) (Config, error) {
	cfg := DefaultConfig()
	if len(strings.TrimSpace(string(raw))) == 0 {
		return cfg, nil
	}
	// Decode the layout into an empty value: merging into the sample layout's
	// maps would leak sample bindings into the user's layers.
	cfg.Layout = layout.Layout{}
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse: %w", err)
	}
	if isZeroLayout(cfg.Layout) {
		cfg.Layout = DefaultLayout()
	}
	if err := applyDefaultsAndValidate(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// EnsureFile loads path and writes the defaults there when it does not exist.
func EnsureFile(path string) (Config, error) {
	cfg, err := Load(path)
	if err != nil {
		return cfg, err
	}
	if _, statErr := os.Stat(path); errors.Is(statErr, os.ErrNotExist) {
		if _, err := Save(path, cfg); err != nil {
			return cfg, err
		}
		slog.Info("[DEBUG-CONFIG] wrote default config", "path", path)
	}
	return cfg, nil
}

// Save validates cfg and writes it to path atomically.
func Save(path string, cfg Config) (Config, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return cfg, errors.New("config: save: path required")
	}
	if err := applyDefaultsAndValidate(&cfg); err != nil {
		return cfg, fmt.Errorf("config: save: %w", err)
	}
	raw, err := yaml.Marshal(cfg)
	if err != nil {
		return cfg, fmt.Errorf("config: save: marshal: %w", err)
	}
	if err := atomicWrite(trimmed, raw); err != nil {
		return cfg, err
	}
	slog.Debug("[DEBUG-CONFIG] config saved", "path", trimmed)
	return cfg, nil
}

// Clone returns a deep copy of src.
func Clone(src Config) Config {
	dst := src
	if cloned := src.Layout.Clone(); cloned != nil {
		dst.Layout = *cloned
	}
	dst.Devices = slices.Clone(src.Devices)
	return dst
}

// MinVisible returns the debounce duration.
func (c Config) MinVisible() time.Duration {
	return time.Duration(c.MinVisibleMs) * time.Millisecond
}

// StatsPath returns the configured statistics database path.
func (c Config) StatsPath() string {
	if c.Stats.Path != "" {
		return c.Stats.Path
	}
	return DefaultStatsPath()
}

// SlogLevel maps LogLevel to a slog level.
func (c Config) SlogLevel() slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return slog.LevelInfo
	}
	return level
}

func applyDefaultsAndValidate(cfg *Config) error {
	defaults := DefaultConfig()

	if cfg.MinVisibleMs < 0 || cfg.MinVisibleMs > maxMinVisibleMs {
		slog.Warn("[WARN-CONFIG] min_visible_ms out of range, using default",
			"configured", cfg.MinVisibleMs, "max", maxMinVisibleMs, "default", defaults.MinVisibleMs)
		cfg.MinVisibleMs = defaults.MinVisibleMs
	}

	cfg.ListenAddr = strings.TrimSpace(cfg.ListenAddr)
	if cfg.ListenAddr == "" {
		cfg.ListenAddr = defaults.ListenAddr
	}
	if err := validateListenAddr(cfg.ListenAddr); err != nil {
		return err
	}

	cfg.LogLevel = strings.ToLower(strings.TrimSpace(cfg.LogLevel))
	if cfg.LogLevel == "" {
		cfg.LogLevel = defaults.LogLevel
	} else if !slices.Contains(validLogLevels, cfg.LogLevel) {
		slog.Warn("[WARN-CONFIG] unknown log_level, using default",
			"configured", cfg.LogLevel, "default", defaults.LogLevel)
		cfg.LogLevel = defaults.LogLevel
	}

	devices := cfg.Devices[:0:0]
	for _, d := range cfg.Devices {
		if d = strings.TrimSpace(d); d != "" && !slices.Contains(devices, d) {
			devices = append(devices, d)
		}
	}
	if len(devices) == 0 {
		devices = nil
	}
	cfg.Devices = devices
	cfg.Stats.Path = strings.TrimSpace(cfg.Stats.Path)

	if err := cfg.Layout.Validate(); err != nil {
		return fmt.Errorf("invalid layout: %w", err)
	}
	return nil
}

func validateListenAddr(addr string) error {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return fmt.Errorf("invalid listen_addr %q: %w", addr, err)
	}
	if host == "" {
		return fmt.Errorf("invalid listen_addr %q: host required", addr)
	}
	n, err := strconv.Atoi(port)
	if err != nil || n < 0 || n > maxValidPort {
		return fmt.Errorf("invalid listen_addr %q: port must be 0-%d", addr, maxValidPort)
	}
	return nil
}

func isZeroLayout(l layout.Layout) bool {
	return len(l.Switches) == 0 && len(l.Layers) == 0 && len(l.LayerOrder) == 0 &&
		len(l.Combos) == 0 && l.DefaultLayer == ""
}

func atomicWrite(path string, data []byte) (err error) {
	dir := filepath.Dir(path)
	if err = os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("config: save: mkdir: %w", err)
	}

	// Temp file + rename in the same directory keeps the rename on one
	// filesystem, so readers never see a partial file.
	tmpFile, err := os.CreateTemp(dir, ".config.yaml.tmp.*")
	if err != nil {
		return fmt.Errorf("config: save: create temp: %w", err)
	}
	tmpPath := tmpFile.Name()

	defer func() {
		if tmpFile != nil {
			if closeErr := tmpFile.Close(); closeErr != nil && !errors.Is(closeErr, os.ErrClosed) {
				slog.Warn("[WARN-CONFIG] failed to close temp file", "path", tmpPath, "error", closeErr)
			}
		}
		if err != nil {
			if removeErr := os.Remove(tmpPath); removeErr != nil && !errors.Is(removeErr, os.ErrNotExist) {
				slog.Warn("[WARN-CONFIG] failed to remove temp file", "path", tmpPath, "error", removeErr)
			}
		}
	}()

	if err = tmpFile.Chmod(0o600); err != nil {
		return fmt.Errorf("config: save: chmod temp: %w", err)
	}
	if _, err = tmpFile.Write(data); err != nil {
		return fmt.Errorf("config: save: write: %w", err)
	}
	if err = tmpFile.Sync(); err != nil {
		return fmt.Errorf("config: save: sync: %w", err)
	}
	err = tmpFile.Close()
	tmpFile = nil
	if err != nil {
		return fmt.Errorf("config: save: close: %w", err)
	}
	if err = os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("config: save: rename: %w", err)
	}
	return nil
}

func readLimitedFile(path string, maxBytes int64) ([]byte, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	raw, err := io.ReadAll(io.LimitReader(file, maxBytes+1))
	if err != nil {
		return nil, err
	}
	if int64(len(raw)) > maxBytes {
		return nil, fmt.Errorf("config file exceeds %d bytes", maxBytes)
	}
	return raw, nil
}
