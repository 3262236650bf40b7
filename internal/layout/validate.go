package layout

import (
	"errors"
	"fmt"
	"slices"
)

// ValidationError describes one problem found in a layout.
type ValidationError struct {
	Path   string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("layout: %s: %s", e.Path, e.Reason)
}

// Validate checks the layout invariants and returns every violation joined
// into one error.
func (l *Layout) Validate() error {
	if l == nil {
		return &ValidationError{Path: "layout", Reason: "missing"}
	}
	var errs []error
	fail := func(path, format string, args ...any) {
		errs = append(errs, &ValidationError{Path: path, Reason: fmt.Sprintf(format, args...)})
	}

	if len(l.LayerOrder) == 0 {
		fail("layer_order", "must list at least one layer")
	}
	seen := make(map[string]bool, len(l.LayerOrder))
	for i, name := range l.LayerOrder {
		path := fmt.Sprintf("layer_order[%d]", i)
		switch {
		case name == "":
			fail(path, "empty layer name")
		case seen[name]:
			fail(path, "duplicate layer %q", name)
		}
		seen[name] = true
	}
	if l.DefaultLayer == "" {
		fail("default_layer", "must be set")
	} else if !seen[l.DefaultLayer] {
		fail("default_layer", "layer %q is not in layer_order", l.DefaultLayer)
	}

	for _, id := range l.SwitchIDs() {
		if id == "" {
			fail("switches", "empty switch id")
		}
		switch side := l.Switches[id].Side; side {
		case SideNone, SideLeft, SideRight:
		default:
			fail("switches."+id+".side", "unknown side %q", side)
		}
	}

	for _, name := range sortedKeys(l.Layers) {
		if !seen[name] {
			fail("layers."+name, "layer is not in layer_order")
		}
		layer := l.Layers[name]
		for _, id := range sortedKeys(layer.Bindings) {
			path := "layers." + name + ".bindings." + id
			if _, ok := l.Switches[id]; !ok {
				fail(path, "unknown switch %q", id)
			}
			bs := layer.Bindings[id]
			for _, slot := range Slots {
				b := bs.Get(slot)
				if b == nil {
					continue
				}
				slotPath := path + "." + slot.String()
				if len(b.Input) == 0 {
					fail(slotPath+".input", "empty chord")
				}
				if b.Layer != "" && !seen[b.Layer] {
					fail(slotPath+".layer", "layer %q is not in layer_order", b.Layer)
				}
			}
		}
	}

	comboIDs := make(map[string]bool, len(l.Combos))
	for i, c := range l.Combos {
		path := fmt.Sprintf("combos[%d]", i)
		switch {
		case c.ID == "":
			fail(path+".id", "must be set")
		case comboIDs[c.ID]:
			fail(path+".id", "duplicate combo %q", c.ID)
		default:
			if _, clash := l.Switches[c.ID]; clash {
				fail(path+".id", "combo %q collides with a switch id", c.ID)
			}
		}
		comboIDs[c.ID] = true
		if len(c.Input) == 0 {
			fail(path+".input", "empty chord")
		}
		for j, name := range c.Layers {
			if !seen[name] {
				fail(fmt.Sprintf("%s.layers[%d]", path, j), "layer %q is not in layer_order", name)
			}
		}
		if c.InputLayer != "" && !seen[c.InputLayer] {
			fail(path+".input_layer", "layer %q is not in layer_order", c.InputLayer)
		}
		for j, link := range c.Links {
			if link.To.Switch == "" {
				continue
			}
			if _, ok := l.Switches[link.To.Switch]; !ok {
				fail(fmt.Sprintf("%s.links[%d]", path, j), "unknown switch %q", link.To.Switch)
			}
		}
	}

	return errors.Join(errs...)
}

func sortedKeys[V any](m map[string]V) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	slices.Sort(out)
	return out
}
