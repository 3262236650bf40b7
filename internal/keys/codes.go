package keys

import (
	"slices"
	"strconv"
)

// Code is a physical key code as reported by the OS input layer.
// Values follow the linux input-event-codes numbering.
type Code uint16

// KeyReserved is never reported for a real key and marks "no primary code".
const KeyReserved Code = 0

const (
	KeyEsc        Code = 1
	Key1          Code = 2
	Key2          Code = 3
	Key3          Code = 4
	Key4          Code = 5
	Key5          Code = 6
	Key6          Code = 7
	Key7          Code = 8
	Key8          Code = 9
	Key9          Code = 10
	Key0          Code = 11
	KeyMinus      Code = 12
	KeyEqual      Code = 13
	KeyBackspace  Code = 14
	KeyTab        Code = 15
	KeyQ          Code = 16
	KeyW          Code = 17
	KeyE          Code = 18
	KeyR          Code = 19
	KeyT          Code = 20
	KeyY          Code = 21
	KeyU          Code = 22
	KeyI          Code = 23
	KeyO          Code = 24
	KeyP          Code = 25
	KeyLeftBrace  Code = 26
	KeyRightBrace Code = 27
	KeyEnter      Code = 28
	KeyLeftCtrl   Code = 29
	KeyA          Code = 30
	KeyS          Code = 31
	KeyD          Code = 32
	KeyF          Code = 33
	KeyG          Code = 34
	KeyH          Code = 35
	KeyJ          Code = 36
	KeyK          Code = 37
	KeyL          Code = 38
	KeySemicolon  Code = 39
	KeyApostrophe Code = 40
	KeyGrave      Code = 41
	KeyLeftShift  Code = 42
	KeyBackslash  Code = 43
	KeyZ          Code = 44
	KeyX          Code = 45
	KeyC          Code = 46
	KeyV          Code = 47
	KeyB          Code = 48
	KeyN          Code = 49
	KeyM          Code = 50
	KeyComma      Code = 51
	KeyDot        Code = 52
	KeySlash      Code = 53
	KeyRightShift Code = 54
	KeyLeftAlt    Code = 56
	KeySpace      Code = 57
	KeyCapsLock   Code = 58
	KeyF1         Code = 59
	KeyF2         Code = 60
	KeyF3         Code = 61
	KeyF4         Code = 62
	KeyF5         Code = 63
	KeyF6         Code = 64
	KeyF7         Code = 65
	KeyF8         Code = 66
	KeyF9         Code = 67
	KeyF10        Code = 68
	KeyScrollLock Code = 70
	KeyF11        Code = 87
	KeyF12        Code = 88
	KeyRightCtrl  Code = 97
	KeySysRq      Code = 99
	KeyRightAlt   Code = 100
	KeyHome       Code = 102
	KeyUp         Code = 103
	KeyPageUp     Code = 104
	KeyLeft       Code = 105
	KeyRight      Code = 106
	KeyEnd        Code = 107
	KeyDown       Code = 108
	KeyPageDown   Code = 109
	KeyInsert     Code = 110
	KeyDelete     Code = 111
	KeyMute       Code = 113
	KeyVolumeDown Code = 114
	KeyVolumeUp   Code = 115
	KeyPause      Code = 119
	KeyLeftMeta   Code = 125
	KeyRightMeta  Code = 126
	KeyNextSong   Code = 163
	KeyPlayPause  Code = 164
	KeyPrevSong   Code = 165
	KeyStopCD     Code = 166
	KeyF13        Code = 183
	KeyF24        Code = 194
	KeyFn         Code = 464
)

var codeNames = map[Code]string{
	KeyReserved: "KEY_RESERVED", KeyEsc: "KEY_ESC", KeyMinus: "KEY_MINUS", KeyEqual: "KEY_EQUAL",
	KeyBackspace: "KEY_BACKSPACE", KeyTab: "KEY_TAB", KeyLeftBrace: "KEY_LEFTBRACE",
	KeyRightBrace: "KEY_RIGHTBRACE", KeyEnter: "KEY_ENTER", KeyLeftCtrl: "KEY_LEFTCTRL",
	KeySemicolon: "KEY_SEMICOLON", KeyApostrophe: "KEY_APOSTROPHE", KeyGrave: "KEY_GRAVE",
	KeyLeftShift: "KEY_LEFTSHIFT", KeyBackslash: "KEY_BACKSLASH", KeyComma: "KEY_COMMA",
	KeyDot: "KEY_DOT", KeySlash: "KEY_SLASH", KeyRightShift: "KEY_RIGHTSHIFT",
	KeyLeftAlt: "KEY_LEFTALT", KeySpace: "KEY_SPACE", KeyCapsLock: "KEY_CAPSLOCK",
	KeyScrollLock: "KEY_SCROLLLOCK", KeyRightCtrl: "KEY_RIGHTCTRL", KeySysRq: "KEY_SYSRQ",
	KeyRightAlt: "KEY_RIGHTALT", KeyHome: "KEY_HOME", KeyUp: "KEY_UP", KeyPageUp: "KEY_PAGEUP",
	KeyLeft: "KEY_LEFT", KeyRight: "KEY_RIGHT", KeyEnd: "KEY_END", KeyDown: "KEY_DOWN",
	KeyPageDown: "KEY_PAGEDOWN", KeyInsert: "KEY_INSERT", KeyDelete: "KEY_DELETE",
	KeyMute: "KEY_MUTE", KeyVolumeDown: "KEY_VOLUMEDOWN", KeyVolumeUp: "KEY_VOLUMEUP",
	KeyPause: "KEY_PAUSE", KeyLeftMeta: "KEY_LEFTMETA", KeyRightMeta: "KEY_RIGHTMETA",
	KeyNextSong: "KEY_NEXTSONG", KeyPlayPause: "KEY_PLAYPAUSE", KeyPrevSong: "KEY_PREVIOUSSONG",
	KeyStopCD: "KEY_STOPCD", KeyFn: "KEY_FN",
}

var (
	letterCodes = [26]Code{
		KeyA, KeyB, KeyC, KeyD, KeyE, KeyF, KeyG, KeyH, KeyI, KeyJ, KeyK, KeyL, KeyM,
		KeyN, KeyO, KeyP, KeyQ, KeyR, KeyS, KeyT, KeyU, KeyV, KeyW, KeyX, KeyY, KeyZ,
	}
	digitCodes = [10]Code{Key0, Key1, Key2, Key3, Key4, Key5, Key6, Key7, Key8, Key9}
)

// FunctionKey returns the code of F1..F24, or KeyReserved when n is out of range.
func FunctionKey(n int) Code {
	switch {
	case n >= 1 && n <= 10:
		return KeyF1 + Code(n-1)
	case n == 11:
		return KeyF11
	case n == 12:
		return KeyF12
	case n >= 13 && n <= 24:
		return KeyF13 + Code(n-13)
	}
	return KeyReserved
}

func init() {
	for i, c := range letterCodes {
		codeNames[c] = "KEY_" + string(rune('A'+i))
	}
	for i, c := range digitCodes {
		codeNames[c] = "KEY_" + strconv.Itoa(i)
	}
	for n := 1; n <= 24; n++ {
		codeNames[FunctionKey(n)] = "KEY_F" + strconv.Itoa(n)
	}
}

// String returns the linux KEY_* name, or the numeric value for unnamed codes.
func (c Code) String() string {
	if name, ok := codeNames[c]; ok {
		return name
	}
	return "KEY_" + strconv.Itoa(int(c))
}

// modifier groups a left/right pair of modifier keys.
type modifier uint8

const (
	modShift modifier = iota
	modCtrl
	modAlt
	modMeta
)

var modifierKeys = [...][2]Code{
	modShift: {KeyLeftShift, KeyRightShift},
	modCtrl:  {KeyLeftCtrl, KeyRightCtrl},
	modAlt:   {KeyLeftAlt, KeyRightAlt},
	modMeta:  {KeyLeftMeta, KeyRightMeta},
}

func modifierOf(c Code) (modifier, bool) {
	for m, pair := range modifierKeys {
		if slices.Contains(pair[:], c) {
			return modifier(m), true
		}
	}
	return 0, false
}

// IsModifier reports whether c is one of the eight modifier keys.
func IsModifier(c Code) bool {
	_, ok := modifierOf(c)
	return ok
}

// Set is a set of currently held physical keys.
type Set map[Code]struct{}

// NewSet returns a set holding codes.
func NewSet(codes ...Code) Set {
	s := make(Set, len(codes))
	for _, c := range codes {
		s[c] = struct{}{}
	}
	return s
}

func (s Set) Has(c Code) bool {
	_, ok := s[c]
	return ok
}

// Add inserts c and reports whether the set changed.
func (s Set) Add(c Code) bool {
	if s.Has(c) {
		return false
	}
	s[c] = struct{}{}
	return true
}

// Remove deletes c and reports whether the set changed.
func (s Set) Remove(c Code) bool {
	if !s.Has(c) {
		return false
	}
	delete(s, c)
	return true
}

func (s Set) hasModifier(m modifier) bool {
	pair := modifierKeys[m]
	return s.Has(pair[0]) || s.Has(pair[1])
}

// Sorted returns the held codes in ascending order.
func (s Set) Sorted() []Code {
	out := make([]Code, 0, len(s))
	for c := range s {
		out = append(out, c)
	}
	slices.Sort(out)
	return out
}
