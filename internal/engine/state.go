package engine

import (
	"slices"

	"layerlens/internal/bindings"
	"layerlens/internal/keys"
	"layerlens/internal/layout"
)

// activeSwitch keeps one slot per holder in press order. The last one is
// the slot on display.
type activeSwitch struct {
	slots []layout.Slot
}

func (a *activeSwitch) slot() layout.Slot { return a.slots[len(a.slots)-1] }

// inputState is owned by Engine and only touched with Engine.mu held.
type inputState struct {
	defaultLayer string
	pressedKeys  keys.Set
	// pressedHotKeys maps each pressed hotkey to the contexts that fired
	// when it was pressed.
	pressedHotKeys map[keys.HotKey][]*bindings.Context
	// activeLayers counts holders per layer. The default layer is implied.
	activeLayers   map[string]int
	switchOrder    []string
	activeSwitches map[string]*activeSwitch
}

func newInputState(defaultLayer string) inputState {
	return inputState{
		defaultLayer:   defaultLayer,
		pressedKeys:    keys.NewSet(),
		pressedHotKeys: make(map[keys.HotKey][]*bindings.Context),
		activeLayers:   make(map[string]int),
		activeSwitches: make(map[string]*activeSwitch),
	}
}

func (s *inputState) layerActive(name string) bool {
	return name == s.defaultLayer || s.activeLayers[name] > 0
}

func (s *inputState) activateLayer(name string, out []Update) []Update {
	if name == s.defaultLayer {
		return out
	}
	s.activeLayers[name]++
	if s.activeLayers[name] == 1 {
		out = append(out, LayerActivate{Layer: name})
	}
	return out
}

func (s *inputState) deactivateLayer(name string, out []Update) []Update {
	if name == s.defaultLayer || s.activeLayers[name] == 0 {
		return out
	}
	s.activeLayers[name]--
	if s.activeLayers[name] == 0 {
		delete(s.activeLayers, name)
		out = append(out, LayerDeactivate{Layer: name})
	}
	return out
}

func (s *inputState) pressSwitch(id string, slot layout.Slot, out []Update) []Update {
	sw, ok := s.activeSwitches[id]
	if !ok {
		s.activeSwitches[id] = &activeSwitch{slots: []layout.Slot{slot}}
		s.switchOrder = append(s.switchOrder, id)
		return append(out, SwitchPressed{ID: id, Slot: slot})
	}
	shown := sw.slot()
	sw.slots = append(sw.slots, slot)
	if shown != slot {
		out = append(out, SwitchPressed{ID: id, Slot: slot})
	}
	return out
}

// releaseSwitch drops one holder of slot. While other holders remain the
// switch stays pressed, showing the most recent surviving slot.
func (s *inputState) releaseSwitch(id string, slot layout.Slot, out []Update) []Update {
	sw, ok := s.activeSwitches[id]
	if !ok {
		return out
	}
	shown := sw.slot()
	i := -1
	for j := len(sw.slots) - 1; j >= 0; j-- {
		if sw.slots[j] == slot {
			i = j
			break
		}
	}
	if i < 0 {
		return out
	}
	sw.slots = slices.Delete(sw.slots, i, i+1)
	if len(sw.slots) > 0 {
		if next := sw.slot(); next != shown {
			out = append(out, SwitchPressed{ID: id, Slot: next})
		}
		return out
	}
	delete(s.activeSwitches, id)
	s.switchOrder = slices.DeleteFunc(s.switchOrder, func(v string) bool { return v == id })
	return append(out, SwitchReleased{ID: id})
}
