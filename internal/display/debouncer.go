// Package display turns the engine update stream into the state shown by the
// overlay, keeping very short taps visible for a minimum duration.
package display

import (
	"log/slog"
	"slices"
	"sync"
	"time"

	"layerlens/internal/engine"
	"layerlens/internal/layout"
)

// DefaultMinVisible is how long a tapped switch stays shown at least.
const DefaultMinVisible = 100 * time.Millisecond

// Clock abstracts time for the debouncer. AfterFunc returns a function that
// cancels the callback and reports whether it was still pending.
type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, fn func()) (stop func() bool)
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

func (systemClock) AfterFunc(d time.Duration, fn func()) func() bool {
	return time.AfterFunc(d, fn).Stop
}

// State is the coalesced display state.
type State struct {
	Layers   []string              `json:"layers"`
	Switches []engine.ActiveSwitch `json:"switches"`
}

type Options struct {
	MinVisible time.Duration
	Clock      Clock
	// Publish receives every new state. It is called with the debouncer
	// lock held and must not call back into the Debouncer.
	Publish func(State)
}

type press struct {
	slot layout.Slot
	at   time.Time
	gen  uint64
	// stop cancels the deferred release, nil when none is pending.
	stop func() bool
}

// Debouncer applies updates one at a time. Releases that come too soon after
// their press are deferred; a later press of the same switch supersedes the
// deferred release.
type Debouncer struct {
	mu           sync.Mutex
	minVisible   time.Duration
	clock        Clock
	publish      func(State)
	defaultLayer string
	layers       []string
	order        []string
	presses      map[string]*press
	gen          uint64
	closed       bool
}

func New(opts Options) *Debouncer {
	if opts.MinVisible < 0 {
		opts.MinVisible = 0
	}
	if opts.Clock == nil {
		opts.Clock = systemClock{}
	}
	if opts.Publish == nil {
		opts.Publish = func(State) {}
	}
	return &Debouncer{
		minVisible: opts.MinVisible,
		clock:      opts.Clock,
		publish:    opts.Publish,
		presses:    make(map[string]*press),
	}
}

// Apply processes one update.
func (d *Debouncer) Apply(u engine.Update) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return
	}

	switch u := u.(type) {
	case engine.LayerActivate:
		if slices.Contains(d.layers, u.Layer) {
			return
		}
		d.layers = append(d.layers, u.Layer)
	case engine.LayerDeactivate:
		if u.Layer == d.defaultLayer || !slices.Contains(d.layers, u.Layer) {
			return
		}
		d.layers = slices.DeleteFunc(d.layers, func(l string) bool { return l == u.Layer })
	case engine.SwitchPressed:
		d.gen++
		if p, ok := d.presses[u.ID]; ok {
			if p.stop != nil {
				p.stop()
			}
		} else {
			d.order = append(d.order, u.ID)
		}
		d.presses[u.ID] = &press{slot: u.Slot, at: d.clock.Now(), gen: d.gen}
	case engine.SwitchReleased:
		p, ok := d.presses[u.ID]
		if !ok || p.stop != nil {
			return
		}
		elapsed := d.clock.Now().Sub(p.at)
		if elapsed < d.minVisible {
			id, gen := u.ID, p.gen
			p.stop = d.clock.AfterFunc(d.minVisible-elapsed, func() { d.expire(id, gen) })
			return
		}
		d.remove(u.ID)
	default:
		slog.Warn("[WARN-DISPLAY] unknown update type", "update", u)
		return
	}
	d.publish(d.snapshotLocked())
}

// expire runs a deferred release. It does nothing when the switch was pressed
// again after the release was scheduled.
func (d *Debouncer) expire(id string, gen uint64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return
	}
	p, ok := d.presses[id]
	if !ok || p.gen != gen {
		slog.Debug("[DEBUG-DISPLAY] stale deferred release ignored", "switch", id)
		return
	}
	d.remove(id)
	d.publish(d.snapshotLocked())
}

func (d *Debouncer) remove(id string) {
	delete(d.presses, id)
	d.order = slices.DeleteFunc(d.order, func(v string) bool { return v == id })
}

// SetMinVisible changes the minimum for releases deferred from now on.
func (d *Debouncer) SetMinVisible(min time.Duration) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.minVisible = max(min, 0)
}

// Reset drops every switch and layer, cancels pending releases and shows only
// defaultLayer.
func (d *Debouncer) Reset(defaultLayer string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return
	}
	d.stopAllLocked()
	d.defaultLayer = defaultLayer
	d.layers = []string{defaultLayer}
	d.publish(d.snapshotLocked())
}

// State returns the current display state.
func (d *Debouncer) State() State {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.snapshotLocked()
}

// Close cancels every pending deferred release. Later updates are ignored.
func (d *Debouncer) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return
	}
	d.closed = true
	d.stopAllLocked()
}

func (d *Debouncer) stopAllLocked() {
	for _, p := range d.presses {
		if p.stop != nil {
			p.stop()
		}
	}
	clear(d.presses)
	d.order = nil
}

func (d *Debouncer) snapshotLocked() State {
	s := State{
		Layers:   slices.Clone(d.layers),
		Switches: make([]engine.ActiveSwitch, 0, len(d.order)),
	}
	for _, id := range d.order {
		s.Switches = append(s.Switches, engine.ActiveSwitch{ID: id, Slot: d.presses[id].slot})
	}
	return s
}
