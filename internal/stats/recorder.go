package stats

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"layerlens/internal/engine"
)

const (
	defaultQueueSize     = 1024
	defaultFlushInterval = 2 * time.Second
	maxBatch             = 256
)

// Recorder queues presses from the engine stream and writes them in batches
// off the input path. When the queue is full presses are dropped, never
// blocking the engine.
type Recorder struct {
	store   *Store
	session string
	queue   chan Press
	flush   time.Duration
	now     func() time.Time
	dropped atomic.Int64
}

type RecorderOptions struct {
	QueueSize     int
	FlushInterval time.Duration
}

func NewRecorder(store *Store, opts RecorderOptions) *Recorder {
	if opts.QueueSize <= 0 {
		opts.QueueSize = defaultQueueSize
	}
	if opts.FlushInterval <= 0 {
		opts.FlushInterval = defaultFlushInterval
	}
	return &Recorder{
		store:   store,
		session: uuid.NewString(),
		queue:   make(chan Press, opts.QueueSize),
		flush:   opts.FlushInterval,
		now:     time.Now,
	}
}

// Session is the id of this daemon run.
func (r *Recorder) Session() string { return r.session }

// Dropped counts presses lost to a full queue.
func (r *Recorder) Dropped() int64 { return r.dropped.Load() }

// Observe queues every SwitchPressed in updates.
func (r *Recorder) Observe(updates []engine.Update) {
	for _, u := range updates {
		p, ok := u.(engine.SwitchPressed)
		if !ok {
			continue
		}
		select {
		case r.queue <- Press{SwitchID: p.ID, Slot: p.Slot.String(), At: r.now()}:
		default:
			if r.dropped.Add(1) == 1 {
				slog.Warn("[WARN-STATS] press queue full, dropping presses")
			}
		}
	}
}

// Run registers the session and writes queued presses until ctx is done,
// flushing what is left before returning.
func (r *Recorder) Run(ctx context.Context) error {
	if err := r.store.StartSession(ctx, r.session, r.now()); err != nil {
		return err
	}
	ticker := time.NewTicker(r.flush)
	defer ticker.Stop()

	batch := make([]Press, 0, maxBatch)
	write := func(ctx context.Context) {
		if len(batch) == 0 {
			return
		}
		if err := r.store.Insert(ctx, r.session, batch); err != nil {
			slog.Warn("[WARN-STATS] failed to write presses", "count", len(batch), "error", err)
		}
		batch = batch[:0]
	}

	for {
		select {
		case <-ctx.Done():
		drain:
			for {
				select {
				case p := <-r.queue:
					batch = append(batch, p)
				default:
					break drain
				}
			}
			write(context.WithoutCancel(ctx))
			return nil
		case p := <-r.queue:
			batch = append(batch, p)
			if len(batch) >= maxBatch {
				write(ctx)
			}
		case <-ticker.C:
			write(ctx)
		}
	}
}
