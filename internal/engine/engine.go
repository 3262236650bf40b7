// Package engine resolves physical key transitions into switch and layer
// updates against the current binding table.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"slices"
	"sync"

	"layerlens/internal/bindings"
	"layerlens/internal/keys"
	"layerlens/internal/layout"
)

// ErrNotLoaded is returned by Run when no layout was ever loaded.
var ErrNotLoaded = errors.New("engine: no layout loaded")

// Engine owns the input state. HandleKey and Reload hold the write lock for
// the whole transition; Snapshot takes the read lock. Updates are returned to
// the caller and never delivered while the lock is held.
type Engine struct {
	mu    sync.RWMutex
	table *bindings.Table
	state inputState

	// emitMu orders sink delivery in Run against ReloadTo, so a sink never
	// sees updates resolved against a table that was already replaced.
	// Lock ordering: emitMu -> mu.
	emitMu sync.Mutex

	// beforeApply runs inside the lock before each transition. Tests use it
	// to inject faults.
	beforeApply func(KeyEvent)
}

func New() *Engine {
	return &Engine{}
}

// Reload replaces the binding table with one built from l and resets the
// input state. On error the previous table and state are kept.
// The returned updates activate the new default layer.
func (e *Engine) Reload(l *layout.Layout) ([]Update, error) {
	table, err := bindings.Build(l)
	if err != nil {
		return nil, fmt.Errorf("engine: reload: %w", err)
	}

	e.mu.Lock()
	e.table = table
	e.state = newInputState(table.DefaultLayer())
	e.mu.Unlock()

	stats := table.Stats()
	slog.Info("[DEBUG-ENGINE] layout loaded",
		"defaultLayer", table.DefaultLayer(),
		"layers", stats.Layers,
		"hotkeys", stats.HotKeys,
		"bindings", stats.Contexts,
		"unbound", stats.Unbound,
	)
	return []Update{LayerActivate{Layer: table.DefaultLayer()}}, nil
}

// ReloadTo is Reload followed by delivering the bootstrap updates to sink,
// with no Run delivery in between. Sink is not called on error.
func (e *Engine) ReloadTo(l *layout.Layout, sink Sink) error {
	e.emitMu.Lock()
	defer e.emitMu.Unlock()
	updates, err := e.Reload(l)
	if err != nil {
		return err
	}
	sink.Emit(updates)
	return nil
}

// HandleKey applies one physical transition and returns the resulting
// updates in resolution order. Repeats and releases of keys that were never
// seen pressed produce nothing.
//
// A panic while resolving drops the event and resets the input state to the
// default layer. The lock is always released.
func (e *Engine) HandleKey(ev KeyEvent) (updates []Update) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.table == nil {
		return nil
	}
	defer func() {
		if r := recover(); r != nil {
			slog.Error("[ERROR-ENGINE] key event dropped after panic",
				"event", ev.String(),
				"panic", r,
				"stack", string(debug.Stack()),
			)
			e.state = newInputState(e.table.DefaultLayer())
			updates = nil
		}
	}()
	if e.beforeApply != nil {
		e.beforeApply(ev)
	}
	return e.apply(ev)
}

func (e *Engine) apply(ev KeyEvent) []Update {
	s := &e.state
	switch ev.Kind {
	case Press:
		if !s.pressedKeys.Add(ev.Code) {
			return nil
		}
	case Release:
		if !s.pressedKeys.Remove(ev.Code) {
			return nil
		}
	default:
		return nil
	}

	var flipped []keys.HotKey
	for _, hk := range e.table.RelevantHotKeys(ev.Code) {
		_, was := s.pressedHotKeys[hk]
		if hk.IsPressed(s.pressedKeys) != was {
			flipped = append(flipped, hk)
		}
	}

	var out []Update
	for _, hk := range flipped {
		if _, was := s.pressedHotKeys[hk]; was {
			out = e.release(hk, out)
		} else {
			out = e.press(hk, out)
		}
	}
	return out
}

func (e *Engine) press(hk keys.HotKey, out []Update) []Update {
	s := &e.state
	var fired []*bindings.Context
	for _, ctx := range e.table.Bindings(hk) {
		if !e.canTrigger(ctx) {
			continue
		}
		fired = append(fired, ctx)
		if ctx.Target != "" {
			out = s.activateLayer(ctx.Target, out)
		}
		out = s.pressSwitch(ctx.ID, ctx.Slot, out)
	}
	s.pressedHotKeys[hk] = fired
	return out
}

// release undoes exactly what the matching press fired, whatever layers are
// active now.
func (e *Engine) release(hk keys.HotKey, out []Update) []Update {
	s := &e.state
	fired := s.pressedHotKeys[hk]
	delete(s.pressedHotKeys, hk)
	for _, ctx := range fired {
		if ctx.Target != "" {
			out = s.deactivateLayer(ctx.Target, out)
		}
		out = s.releaseSwitch(ctx.ID, ctx.Slot, out)
	}
	return out
}

// canTrigger walks active layers from highest to lowest priority. The first
// one binding the switch decides: it lets the binding through only if it is
// one of the binding's owners. Combos skip ownership and only honour their
// layer restriction.
func (e *Engine) canTrigger(ctx *bindings.Context) bool {
	s := &e.state
	if ctx.Combo {
		if len(ctx.Restrict) == 0 {
			return true
		}
		return slices.ContainsFunc(ctx.Restrict, s.layerActive)
	}
	order := e.table.LayerOrder()
	for i := len(order) - 1; i >= 0; i-- {
		layer := order[i]
		if !s.layerActive(layer) || !e.table.Owns(layer, ctx.ID) {
			continue
		}
		return ctx.OwnedBy(layer)
	}
	return false
}

// ActiveSwitch is a switch currently shown as held.
type ActiveSwitch struct {
	ID   string      `json:"id"`
	Slot layout.Slot `json:"slot"`
}

// Snapshot is a point-in-time copy of the input state.
type Snapshot struct {
	Loaded         bool           `json:"loaded"`
	DefaultLayer   string         `json:"default_layer"`
	PressedKeys    []string       `json:"pressed_keys"`
	PressedHotKeys []string       `json:"pressed_hotkeys"`
	ActiveLayers   []string       `json:"active_layers"`
	ActiveSwitches []ActiveSwitch `json:"active_switches"`
}

// Snapshot copies the current state under the read lock. Active layers are
// listed in priority order, lowest first.
func (e *Engine) Snapshot() Snapshot {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.table == nil {
		return Snapshot{}
	}
	s := &e.state
	snap := Snapshot{
		Loaded:         true,
		DefaultLayer:   s.defaultLayer,
		PressedKeys:    make([]string, 0, len(s.pressedKeys)),
		PressedHotKeys: make([]string, 0, len(s.pressedHotKeys)),
		ActiveSwitches: make([]ActiveSwitch, 0, len(s.switchOrder)),
	}
	for _, c := range s.pressedKeys.Sorted() {
		snap.PressedKeys = append(snap.PressedKeys, c.String())
	}
	for hk := range s.pressedHotKeys {
		snap.PressedHotKeys = append(snap.PressedHotKeys, hk.String())
	}
	slices.Sort(snap.PressedHotKeys)
	for _, layer := range e.table.LayerOrder() {
		if s.layerActive(layer) {
			snap.ActiveLayers = append(snap.ActiveLayers, layer)
		}
	}
	for _, id := range s.switchOrder {
		snap.ActiveSwitches = append(snap.ActiveSwitches, ActiveSwitch{ID: id, Slot: s.activeSwitches[id].slot()})
	}
	return snap
}

// Run feeds events into HandleKey until ctx is done or events is closed.
// Updates go to sink after each transition, outside the lock, so sink sees
// them in transition order.
func (e *Engine) Run(ctx context.Context, events <-chan KeyEvent, sink Sink) error {
	e.mu.RLock()
	loaded := e.table != nil
	e.mu.RUnlock()
	if !loaded {
		return ErrNotLoaded
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			e.deliver(ctx, ev, sink)
		}
	}
}

func (e *Engine) deliver(ctx context.Context, ev KeyEvent, sink Sink) {
	e.emitMu.Lock()
	defer e.emitMu.Unlock()
	updates := e.HandleKey(ev)
	if len(updates) == 0 {
		return
	}
	if slog.Default().Enabled(ctx, slog.LevelDebug) {
		slog.Debug("[DEBUG-ENGINE] transition", "event", ev.String(), "updates", fmt.Sprint(updates))
	}
	sink.Emit(updates)
}
