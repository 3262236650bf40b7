// Package layout describes a keyboard: its switches, combos and the layers
// that bind them to key chords.
package layout

import (
	"fmt"
	"maps"
	"slices"

	"layerlens/internal/keys"
)

// Slot is the role a binding plays on its switch.
type Slot uint8

const (
	Tap Slot = iota
	Hold
)

// Slots lists every slot in resolution order.
var Slots = [...]Slot{Tap, Hold}

func (s Slot) String() string {
	switch s {
	case Tap:
		return "tap"
	case Hold:
		return "hold"
	}
	return fmt.Sprintf("slot(%d)", uint8(s))
}

// ParseSlot parses "tap" or "hold".
func ParseSlot(s string) (Slot, error) {
	switch s {
	case "tap":
		return Tap, nil
	case "hold":
		return Hold, nil
	}
	return 0, fmt.Errorf("layout: unknown slot %q", s)
}

func (s Slot) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

func (s *Slot) UnmarshalText(text []byte) error {
	parsed, err := ParseSlot(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// Side marks which half of a split keyboard a switch sits on.
type Side string

const (
	SideNone  Side = ""
	SideLeft  Side = "left"
	SideRight Side = "right"
)

// Point is a position in key units.
type Point struct {
	X float64 `yaml:"x" json:"x"`
	Y float64 `yaml:"y" json:"y"`
}

// Switch is a physical switch drawn by the overlay.
type Switch struct {
	Pos  Point `yaml:"pos" json:"pos"`
	Side Side  `yaml:"side,omitempty" json:"side,omitempty"`
}

// IconSet names where an icon glyph comes from.
type IconSet string

const (
	IconBootstrap IconSet = "bootstrap"
	IconCustom    IconSet = "custom"
)

// Display is how a binding is labelled: plain text, or an icon from a set.
type Display struct {
	Text    string  `yaml:"text,omitempty" json:"text,omitempty"`
	Icon    string  `yaml:"icon,omitempty" json:"icon,omitempty"`
	IconSet IconSet `yaml:"icon_set,omitempty" json:"icon_set,omitempty"`
}

// Binding maps a chord to a switch slot, optionally holding a layer active
// while the chord is pressed.
type Binding struct {
	Input   keys.Chord `yaml:"input" json:"input"`
	Display *Display   `yaml:"display,omitempty" json:"display,omitempty"`
	Layer   string     `yaml:"layer,omitempty" json:"layer,omitempty"`
}

// BoundSwitch holds the bindings of one switch in one layer.
type BoundSwitch struct {
	Tap  *Binding `yaml:"tap,omitempty" json:"tap,omitempty"`
	Hold *Binding `yaml:"hold,omitempty" json:"hold,omitempty"`
}

// Get returns the binding for slot, or nil.
func (b BoundSwitch) Get(slot Slot) *Binding {
	if slot == Hold {
		return b.Hold
	}
	return b.Tap
}

// Layer binds switch ids to their slots.
type Layer struct {
	Bindings map[string]BoundSwitch `yaml:"bindings" json:"bindings"`
}

// Owns reports whether the layer binds any slot of switch id.
func (l Layer) Owns(id string) bool {
	b, ok := l.Bindings[id]
	return ok && (b.Tap != nil || b.Hold != nil)
}

// LinkPoint is one end of a line drawn from a combo label: a switch, a fixed
// point or a named anchor of the keyboard outline.
type LinkPoint struct {
	Switch string `yaml:"switch,omitempty" json:"switch,omitempty"`
	Point  *Point `yaml:"point,omitempty" json:"point,omitempty"`
	Anchor string `yaml:"anchor,omitempty" json:"anchor,omitempty"`
}

// Link is a line from the combo label to a point of the keyboard.
type Link struct {
	To LinkPoint `yaml:"to" json:"to"`
}

// Combo is a binding owned by no layer, optionally limited to some layers.
type Combo struct {
	ID         string     `yaml:"id" json:"id"`
	Layers     []string   `yaml:"layers,omitempty" json:"layers,omitempty"`
	Pos        Point      `yaml:"pos" json:"pos"`
	Label      *Display   `yaml:"label,omitempty" json:"label,omitempty"`
	Links      []Link     `yaml:"links,omitempty" json:"links,omitempty"`
	Input      keys.Chord `yaml:"input" json:"input"`
	InputLayer string     `yaml:"input_layer,omitempty" json:"input_layer,omitempty"`
}

// Layout is a complete keyboard description.
type Layout struct {
	Switches     map[string]Switch `yaml:"switches" json:"switches"`
	Combos       []Combo           `yaml:"combos,omitempty" json:"combos,omitempty"`
	DefaultLayer string            `yaml:"default_layer" json:"default_layer"`
	LayerOrder   []string          `yaml:"layer_order" json:"layer_order"`
	Layers       map[string]Layer  `yaml:"layers" json:"layers"`
}

// SwitchIDs returns the switch ids in sorted order.
func (l *Layout) SwitchIDs() []string {
	return slices.Sorted(maps.Keys(l.Switches))
}

// Clone returns a deep copy of l.
func (l *Layout) Clone() *Layout {
	if l == nil {
		return nil
	}
	out := &Layout{
		Switches:     maps.Clone(l.Switches),
		DefaultLayer: l.DefaultLayer,
		LayerOrder:   slices.Clone(l.LayerOrder),
	}
	if l.Combos != nil {
		out.Combos = make([]Combo, len(l.Combos))
		for i, c := range l.Combos {
			c.Layers = slices.Clone(c.Layers)
			c.Label = cloneDisplay(c.Label)
			c.Input = slices.Clone(c.Input)
			if c.Links != nil {
				links := make([]Link, len(c.Links))
				for j, link := range c.Links {
					if link.To.Point != nil {
						p := *link.To.Point
						link.To.Point = &p
					}
					links[j] = link
				}
				c.Links = links
			}
			out.Combos[i] = c
		}
	}
	if l.Layers != nil {
		out.Layers = make(map[string]Layer, len(l.Layers))
		for name, layer := range l.Layers {
			bindings := make(map[string]BoundSwitch, len(layer.Bindings))
			for id, bs := range layer.Bindings {
				bindings[id] = BoundSwitch{Tap: cloneBinding(bs.Tap), Hold: cloneBinding(bs.Hold)}
			}
			out.Layers[name] = Layer{Bindings: bindings}
		}
	}
	return out
}

func cloneBinding(b *Binding) *Binding {
	if b == nil {
		return nil
	}
	c := *b
	c.Input = slices.Clone(b.Input)
	c.Display = cloneDisplay(b.Display)
	return &c
}

func cloneDisplay(d *Display) *Display {
	if d == nil {
		return nil
	}
	c := *d
	return &c
}
