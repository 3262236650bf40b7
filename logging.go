package main

import (
	"io"
	"log/slog"
	"os"
	"sync/atomic"

	"golang.org/x/term"

	"layerlens/internal/logforward"
)

const (
	logRingSize   = 200
	logQueueSize  = 64
	logForwardMin = slog.LevelWarn
)

// logForwarder keeps recent Warn+ records for overlay bootstrap and queues
// them for the log worker. It never blocks the logging goroutine.
type logForwarder struct {
	ring    *logforward.Ring
	ch      chan logforward.Entry
	dropped atomic.Int64
}

func newLogForwarder() *logForwarder {
	return &logForwarder{
		ring: logforward.NewRing(logRingSize),
		ch:   make(chan logforward.Entry, logQueueSize),
	}
}

func (f *logForwarder) forward(e logforward.Entry) {
	f.ring.Add(e)
	select {
	case f.ch <- e:
	default:
		// Logging here would recurse into forward.
		f.dropped.Add(1)
	}
}

// newLogger builds the process logger: text on a terminal, JSON otherwise,
// teed into fwd when it is not nil.
func newLogger(w io.Writer, level slog.Leveler, fwd *logForwarder) *slog.Logger {
	opts := &slog.HandlerOptions{Level: level}
	var base slog.Handler
	if isTerminal(w) {
		base = slog.NewTextHandler(w, opts)
	} else {
		base = slog.NewJSONHandler(w, opts)
	}
	if fwd == nil {
		return slog.New(base)
	}
	return slog.New(logforward.NewTeeHandler(base, logForwardMin, fwd.forward))
}

func isTerminal(v any) bool {
	f, ok := v.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

func parseLevel(name string) (slog.Level, error) {
	var level slog.Level
	err := level.UnmarshalText([]byte(name))
	return level, err
}
