// Package bindings flattens a layout into the lookup tables used while
// resolving key transitions.
package bindings

import (
	"fmt"
	"slices"

	"layerlens/internal/keys"
	"layerlens/internal/layout"
)

// Context is one place a hotkey is bound.
type Context struct {
	// Layers that own the binding. Empty for combos.
	Layers []string
	// Restrict limits a combo to the listed layers. Empty means everywhere.
	Restrict []string
	ID       string
	Combo    bool
	Slot     layout.Slot
	// Target is the layer held active while the hotkey is pressed.
	Target string
}

// OwnedBy reports whether layer is one of the owning layers.
func (c *Context) OwnedBy(layer string) bool {
	return slices.Contains(c.Layers, layer)
}

type contextKey struct {
	id     string
	combo  bool
	slot   layout.Slot
	target string
}

// Table is immutable once built.
type Table struct {
	layerOrder   []string
	defaultLayer string
	owners       map[string]map[string]bool
	switches     map[string]bool
	unbound      int

	keyToHotKeys   map[keys.Code][]keys.HotKey
	hotKeyBindings map[keys.HotKey][]*Context
}

// Stats summarizes a table for logs.
type Stats struct {
	Layers   int
	HotKeys  int
	Contexts int
	Unbound  int
}

// Build validates l and derives a fresh table from it.
//
// Bindings are visited layer by layer in layer order, switches sorted by id,
// tap before hold, then combos in document order. Hotkeys keep that order
// inside every per-key and per-hotkey list.
func Build(l *layout.Layout) (*Table, error) {
	if err := l.Validate(); err != nil {
		return nil, fmt.Errorf("bindings: build: %w", err)
	}
	t := &Table{
		layerOrder:     slices.Clone(l.LayerOrder),
		defaultLayer:   l.DefaultLayer,
		owners:         make(map[string]map[string]bool, len(l.Layers)),
		switches:       make(map[string]bool, len(l.Switches)),
		keyToHotKeys:   make(map[keys.Code][]keys.HotKey),
		hotKeyBindings: make(map[keys.HotKey][]*Context),
	}
	for id := range l.Switches {
		t.switches[id] = true
	}

	index := make(map[keys.HotKey]map[contextKey]*Context)
	add := func(hk keys.HotKey, key contextKey, layer string, restrict []string) {
		byKey, ok := index[hk]
		if !ok {
			byKey = make(map[contextKey]*Context)
			index[hk] = byKey
			for _, code := range hk.RelevantKeys() {
				if !slices.Contains(t.keyToHotKeys[code], hk) {
					t.keyToHotKeys[code] = append(t.keyToHotKeys[code], hk)
				}
			}
		}
		ctx, ok := byKey[key]
		if !ok {
			ctx = &Context{
				ID:       key.id,
				Combo:    key.combo,
				Slot:     key.slot,
				Target:   key.target,
				Restrict: slices.Clone(restrict),
			}
			byKey[key] = ctx
			t.hotKeyBindings[hk] = append(t.hotKeyBindings[hk], ctx)
		}
		if layer != "" && !ctx.OwnedBy(layer) {
			ctx.Layers = append(ctx.Layers, layer)
		}
	}

	for _, name := range l.LayerOrder {
		layer, ok := l.Layers[name]
		if !ok {
			continue
		}
		owned := make(map[string]bool, len(layer.Bindings))
		t.owners[name] = owned
		for _, id := range sortedIDs(layer.Bindings) {
			bs := layer.Bindings[id]
			for _, slot := range layout.Slots {
				b := bs.Get(slot)
				if b == nil {
					continue
				}
				owned[id] = true
				key := contextKey{id: id, slot: slot, target: b.Layer}
				hotkeys := keys.Resolve(b.Input)
				if len(hotkeys) == 0 {
					t.unbound++
				}
				for _, hk := range hotkeys {
					add(hk, key, name, nil)
				}
			}
		}
	}

	for _, c := range l.Combos {
		key := contextKey{id: c.ID, combo: true, slot: layout.Tap, target: c.InputLayer}
		hotkeys := keys.Resolve(c.Input)
		if len(hotkeys) == 0 {
			t.unbound++
		}
		for _, hk := range hotkeys {
			add(hk, key, "", c.Layers)
		}
	}
	return t, nil
}

func sortedIDs(m map[string]layout.BoundSwitch) []string {
	out := make([]string, 0, len(m))
	for id := range m {
		out = append(out, id)
	}
	slices.Sort(out)
	return out
}

// RelevantHotKeys returns the hotkeys whose state can change when code does.
func (t *Table) RelevantHotKeys(code keys.Code) []keys.HotKey {
	return t.keyToHotKeys[code]
}

// Bindings returns the contexts bound to hk in resolution order.
func (t *Table) Bindings(hk keys.HotKey) []*Context {
	return t.hotKeyBindings[hk]
}

// Owns reports whether layer binds any slot of switch id.
func (t *Table) Owns(layer, id string) bool {
	return t.owners[layer][id]
}

// LayerOrder returns layers from lowest to highest priority.
func (t *Table) LayerOrder() []string {
	return t.layerOrder
}

func (t *Table) DefaultLayer() string {
	return t.defaultLayer
}

// HasSwitch reports whether id names a switch of the layout.
func (t *Table) HasSwitch(id string) bool {
	return t.switches[id]
}

func (t *Table) Stats() Stats {
	s := Stats{Layers: len(t.layerOrder), HotKeys: len(t.hotKeyBindings), Unbound: t.unbound}
	for _, ctxs := range t.hotKeyBindings {
		s.Contexts += len(ctxs)
	}
	return s
}
