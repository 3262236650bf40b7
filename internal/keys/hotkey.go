package keys

import "strings"

// HotKey is a physical key plus the modifier groups that must be held with it.
// It is comparable and used as a map key.
type HotKey struct {
	Code  Code
	Shift bool
	Ctrl  bool
	Alt   bool
	Meta  bool
}

func (h HotKey) wants(m modifier) bool {
	switch m {
	case modShift:
		return h.Shift
	case modCtrl:
		return h.Ctrl
	case modAlt:
		return h.Alt
	default:
		return h.Meta
	}
}

// insert folds c into h: modifier keys set their group flag, any other key
// becomes the primary code.
func (h *HotKey) insert(c Code) {
	m, ok := modifierOf(c)
	if !ok {
		h.Code = c
		return
	}
	switch m {
	case modShift:
		h.Shift = true
	case modCtrl:
		h.Ctrl = true
	case modAlt:
		h.Alt = true
	case modMeta:
		h.Meta = true
	}
}

// IsPressed reports whether held satisfies h. The primary code must be held
// and every modifier group must be held exactly when h wants it. A group is
// not checked when the primary code belongs to it.
func (h HotKey) IsPressed(held Set) bool {
	if h.Code == KeyReserved || !held.Has(h.Code) {
		return false
	}
	own, isMod := modifierOf(h.Code)
	for m := range modifierKeys {
		if isMod && modifier(m) == own {
			continue
		}
		if h.wants(modifier(m)) != held.hasModifier(modifier(m)) {
			return false
		}
	}
	return true
}

// RelevantKeys returns the keys whose transitions can change IsPressed for h:
// the primary code and both keys of every wanted modifier group.
func (h HotKey) RelevantKeys() []Code {
	out := []Code{h.Code}
	for m, pair := range modifierKeys {
		if h.wants(modifier(m)) {
			out = append(out, pair[0], pair[1])
		}
	}
	return out
}

func (h HotKey) String() string {
	var b strings.Builder
	for _, mod := range []struct {
		on   bool
		name string
	}{{h.Shift, "Shift"}, {h.Ctrl, "Ctrl"}, {h.Alt, "Alt"}, {h.Meta, "Meta"}} {
		if mod.on {
			b.WriteString(mod.name)
			b.WriteByte('+')
		}
	}
	b.WriteString(h.Code.String())
	return b.String()
}

// Keys returns the keys to hold to produce h: the left key of each wanted
// modifier group, then the primary code.
func (h HotKey) Keys() []Code {
	own, isMod := modifierOf(h.Code)
	var out []Code
	for m, pair := range modifierKeys {
		if h.wants(modifier(m)) && !(isMod && modifier(m) == own) {
			out = append(out, pair[0])
		}
	}
	return append(out, h.Code)
}
