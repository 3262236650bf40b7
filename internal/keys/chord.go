package keys

import (
	"errors"
	"fmt"
	"strings"
)

// Chord is an ordered list of aliases that must be held together.
type Chord []Alias

var errEmptyChord = errors.New("keys: empty chord")

// ParseChord parses "Ctrl+Shift+K". A '+' standing alone as a segment is the
// Plus alias, so "Ctrl++" is Ctrl with Plus.
func ParseChord(s string) (Chord, error) {
	parts, err := splitChord(strings.TrimSpace(s))
	if err != nil {
		return nil, fmt.Errorf("keys: parse chord %q: %w", s, err)
	}
	if len(parts) == 0 {
		return nil, errEmptyChord
	}
	chord := make(Chord, 0, len(parts))
	for _, part := range parts {
		a, err := ParseAlias(part)
		if err != nil {
			return nil, fmt.Errorf("keys: parse chord %q: %w", s, err)
		}
		chord = append(chord, a)
	}
	return chord, nil
}

func splitChord(s string) ([]string, error) {
	var parts []string
	for i := 0; i < len(s); {
		j := strings.IndexByte(s[i:], '+')
		switch {
		case j == 0:
			parts = append(parts, "+")
			i++
			if i < len(s) {
				if s[i] != '+' {
					return nil, fmt.Errorf("missing separator after '+' at %d", i)
				}
				i++
				if i == len(s) {
					return nil, errors.New("trailing separator")
				}
			}
		case j < 0:
			parts = append(parts, strings.TrimSpace(s[i:]))
			i = len(s)
		default:
			part := strings.TrimSpace(s[i : i+j])
			if part == "" {
				return nil, fmt.Errorf("empty key name at %d", i)
			}
			parts = append(parts, part)
			i += j + 1
			if i == len(s) {
				return nil, errors.New("trailing separator")
			}
		}
	}
	return parts, nil
}

func (c Chord) String() string {
	names := make([]string, len(c))
	for i, a := range c {
		names[i] = a.String()
	}
	return strings.Join(names, "+")
}

func (c Chord) MarshalText() ([]byte, error) {
	if len(c) == 0 {
		return nil, errEmptyChord
	}
	return []byte(c.String()), nil
}

func (c *Chord) UnmarshalText(text []byte) error {
	parsed, err := ParseChord(string(text))
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

// Resolve returns the hotkeys that realize c, in match order.
//
// A single alias yields its direct key, the Shift variant of that key when
// the alias is a letter, and the Shift variant of its dealiased key when the
// alias is a symbol typed through another key. Longer chords fold every alias
// into one hotkey. Aliases without a key on this platform yield nothing.
func Resolve(c Chord) []HotKey {
	switch len(c) {
	case 0:
		return nil
	case 1:
		return resolveSingle(c[0])
	}

	var hk HotKey
	var last Code
	for _, a := range c {
		if code, ok := a.Code(); ok {
			hk.insert(code)
			last = code
			continue
		}
		if code, ok := a.Dealias(); ok {
			hk.Shift = true
			hk.insert(code)
			last = code
			continue
		}
		return nil
	}
	if hk.Code == KeyReserved {
		// Modifier-only chord: the last modifier is the trigger and is
		// exempt from its own group check.
		hk = clearGroup(hk, last)
		hk.Code = last
	}
	return []HotKey{hk}
}

func resolveSingle(a Alias) []HotKey {
	var out []HotKey
	if code, ok := a.Code(); ok {
		out = append(out, HotKey{Code: code})
		if a.IsAlpha() {
			out = append(out, HotKey{Code: code, Shift: true})
		}
	}
	if code, ok := a.Dealias(); ok {
		out = append(out, HotKey{Code: code, Shift: true})
	}
	return out
}

func clearGroup(h HotKey, c Code) HotKey {
	m, ok := modifierOf(c)
	if !ok {
		return h
	}
	switch m {
	case modShift:
		h.Shift = false
	case modCtrl:
		h.Ctrl = false
	case modAlt:
		h.Alt = false
	case modMeta:
		h.Meta = false
	}
	return h
}
