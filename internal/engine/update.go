package engine

import (
	"fmt"

	"layerlens/internal/keys"
	"layerlens/internal/layout"
)

// EventKind is the direction of a physical key transition.
type EventKind uint8

const (
	Press EventKind = iota + 1
	Release
)

func (k EventKind) String() string {
	switch k {
	case Press:
		return "press"
	case Release:
		return "release"
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// KeyEvent is one physical key transition reported by the OS.
type KeyEvent struct {
	Kind EventKind
	Code keys.Code
}

func (e KeyEvent) String() string {
	return e.Kind.String() + " " + e.Code.String()
}

// Update is an input-state change. The concrete types are LayerActivate,
// LayerDeactivate, SwitchPressed and SwitchReleased.
type Update interface {
	fmt.Stringer
	update()
}

type LayerActivate struct {
	Layer string
}

type LayerDeactivate struct {
	Layer string
}

type SwitchPressed struct {
	ID   string
	Slot layout.Slot
}

type SwitchReleased struct {
	ID string
}

func (LayerActivate) update()   {}
func (LayerDeactivate) update() {}
func (SwitchPressed) update()   {}
func (SwitchReleased) update()  {}

func (u LayerActivate) String() string   { return "LayerActivate(" + u.Layer + ")" }
func (u LayerDeactivate) String() string { return "LayerDeactivate(" + u.Layer + ")" }
func (u SwitchPressed) String() string   { return "SwitchPressed(" + u.ID + ", " + u.Slot.String() + ")" }
func (u SwitchReleased) String() string  { return "SwitchReleased(" + u.ID + ")" }

// Sink receives the updates of one transition, in order.
type Sink interface {
	Emit(updates []Update)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func([]Update)

func (f SinkFunc) Emit(updates []Update) { f(updates) }
