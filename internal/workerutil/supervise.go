// Package workerutil runs long-lived daemon workers (capture, engine, overlay
// server) and restarts them after a panic or a transient failure.
package workerutil

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"
)

const (
	defaultInitialBackoff = 100 * time.Millisecond
	defaultMaxBackoff     = 5 * time.Second
	defaultMaxRetries     = 10
	// defaultStableAfter is how long a run must last before earlier failures
	// stop counting against MaxRetries.
	defaultStableAfter = 30 * time.Second
)

// PanicError wraps a recovered panic value.
type PanicError struct {
	Value any
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("panic: %v", e.Value)
}

// Options configures Supervise. Zero-value numeric fields use defaults.
type Options struct {
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	// MaxRetries bounds consecutive failed runs. 1 means run once.
	MaxRetries int
	// StableAfter resets the failure count and backoff once a run has lasted
	// this long, so a keyboard unplugged once a day never exhausts retries.
	StableAfter time.Duration

	// Permanent reports errors that must not be retried. May be nil.
	Permanent func(error) bool
	// OnFailure is called after each failed run, before the backoff wait.
	// attempt is 1-based. May be nil.
	OnFailure func(worker string, attempt int, err error)
	// OnFatal is called when the worker stops for good because of err.
	// May be nil.
	OnFatal func(worker string, err error)
	// IsShutdown stops restarts while the daemon is tearing down. May be nil.
	IsShutdown func() bool

	now func() time.Time
}

func (opts Options) withDefaults() Options {
	if opts.InitialBackoff <= 0 {
		opts.InitialBackoff = defaultInitialBackoff
	}
	if opts.MaxBackoff <= 0 {
		opts.MaxBackoff = defaultMaxBackoff
	}
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = defaultMaxRetries
	}
	if opts.StableAfter <= 0 {
		opts.StableAfter = defaultStableAfter
	}
	if opts.MaxBackoff < opts.InitialBackoff {
		slog.Warn("[WARN-WORKER] MaxBackoff < InitialBackoff, using InitialBackoff as MaxBackoff",
			"initialBackoff", opts.InitialBackoff,
			"maxBackoff", opts.MaxBackoff,
		)
		opts.MaxBackoff = opts.InitialBackoff
	}
	if opts.now == nil {
		opts.now = time.Now
	}
	return opts
}

// Supervise runs fn in a goroutine tracked by wg. fn is restarted with
// exponential backoff when it panics or returns an error that is neither
// permanent nor caused by ctx ending. A nil return stops the worker.
func Supervise(ctx context.Context, name string, wg *sync.WaitGroup, fn func(ctx context.Context) error, opts Options) {
	opts = opts.withDefaults()
	wg.Go(func() {
		supervise(ctx, name, fn, opts)
	})
}

func supervise(ctx context.Context, name string, fn func(ctx context.Context) error, opts Options) {
	delay := opts.InitialBackoff
	failures := 0
	for {
		started := opts.now()
		err := runOnce(ctx, fn)
		if err == nil || ctx.Err() != nil {
			return
		}

		var pe *PanicError
		if errors.As(err, &pe) {
			slog.Error("[ERROR-WORKER] worker recovered from panic",
				"worker", name,
				"panic", pe.Value,
				"stack", string(pe.Stack),
			)
		} else {
			slog.Warn("[WARN-WORKER] worker failed", "worker", name, "error", err)
		}

		if opts.Permanent != nil && opts.Permanent(err) {
			if opts.OnFatal != nil {
				opts.OnFatal(name, err)
			}
			return
		}
		if opts.IsShutdown != nil && opts.IsShutdown() {
			slog.Info("[DEBUG-WORKER] shutdown detected, not restarting", "worker", name)
			return
		}

		if opts.now().Sub(started) >= opts.StableAfter {
			failures = 0
			delay = opts.InitialBackoff
		}
		failures++
		if opts.OnFailure != nil {
			opts.OnFailure(name, failures, err)
		}
		if failures >= opts.MaxRetries {
			slog.Error("[ERROR-WORKER] worker exceeded max retries, giving up",
				"worker", name,
				"maxRetries", opts.MaxRetries,
			)
			if opts.OnFatal != nil {
				opts.OnFatal(name, err)
			}
			return
		}

		slog.Warn("[WARN-WORKER] restarting worker", "worker", name, "delay", delay, "attempt", failures)
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
		delay = nextBackoff(delay, opts.MaxBackoff)
	}
}

func runOnce(ctx context.Context, fn func(ctx context.Context) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &PanicError{Value: r, Stack: debug.Stack()}
		}
	}()
	return fn(ctx)
}

// nextBackoff doubles current, capped at maxBackoff and guarded against
// overflow.
func nextBackoff(current, maxBackoff time.Duration) time.Duration {
	if current <= 0 {
		return defaultInitialBackoff
	}
	if current >= maxBackoff {
		return maxBackoff
	}
	next := current * 2
	if next > maxBackoff || next < current {
		return maxBackoff
	}
	return next
}
