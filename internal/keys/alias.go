package keys

import (
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/text/cases"
)

// Alias is a keyboard-layout agnostic key identifier such as "KeyA",
// "Digit3" or "Exclamation". The zero value is not a valid alias.
type Alias string

const (
	AliasShiftLeft    Alias = "ShiftLeft"
	AliasShiftRight   Alias = "ShiftRight"
	AliasControlLeft  Alias = "ControlLeft"
	AliasControlRight Alias = "ControlRight"
	AliasAltLeft      Alias = "AltLeft"
	AliasAltRight     Alias = "AltRight"
	AliasMetaLeft     Alias = "MetaLeft"
	AliasMetaRight    Alias = "MetaRight"
	AliasPlus         Alias = "Plus"
)

type aliasEntry struct {
	alias Alias
	// code is the key that produces the alias directly, KeyReserved if none.
	code Code
	// shifted is the key that produces the alias together with Shift.
	shifted Code
	alpha   bool
	names   []string
}

var aliasEntries = []aliasEntry{
	{alias: "Backquote", code: KeyGrave, names: []string{"Grave", "`"}},
	{alias: "Backslash", code: KeyBackslash, names: []string{`\`}},
	{alias: "BracketLeft", code: KeyLeftBrace, names: []string{"["}},
	{alias: "BracketRight", code: KeyRightBrace, names: []string{"]"}},
	{alias: "Comma", code: KeyComma, names: []string{","}},
	{alias: "Equal", code: KeyEqual, names: []string{"="}},
	{alias: "Minus", code: KeyMinus, names: []string{"-"}},
	{alias: "Period", code: KeyDot, names: []string{".", "Dot"}},
	{alias: "Quote", code: KeyApostrophe, names: []string{"'", "Apostrophe"}},
	{alias: "Semicolon", code: KeySemicolon, names: []string{";"}},
	{alias: "Slash", code: KeySlash, names: []string{"/"}},

	{alias: AliasAltLeft, code: KeyLeftAlt, names: []string{"Alt", "LAlt"}},
	{alias: AliasAltRight, code: KeyRightAlt, names: []string{"RAlt", "AltGr"}},
	{alias: AliasControlLeft, code: KeyLeftCtrl, names: []string{"Ctrl", "Control", "LCtrl"}},
	{alias: AliasControlRight, code: KeyRightCtrl, names: []string{"RCtrl"}},
	{alias: AliasMetaLeft, code: KeyLeftMeta, names: []string{"Meta", "Super", "Win", "Cmd", "LMeta"}},
	{alias: AliasMetaRight, code: KeyRightMeta, names: []string{"RMeta"}},
	{alias: AliasShiftLeft, code: KeyLeftShift, names: []string{"Shift", "LShift"}},
	{alias: AliasShiftRight, code: KeyRightShift, names: []string{"RShift"}},

	{alias: "Backspace", code: KeyBackspace, names: []string{"BS"}},
	{alias: "CapsLock", code: KeyCapsLock, names: []string{"Caps"}},
	{alias: "Enter", code: KeyEnter, names: []string{"Return"}},
	{alias: "Space", code: KeySpace},
	{alias: "Tab", code: KeyTab},
	{alias: "Delete", code: KeyDelete, names: []string{"Del"}},
	{alias: "End", code: KeyEnd},
	{alias: "Home", code: KeyHome},
	{alias: "Insert", code: KeyInsert, names: []string{"Ins"}},
	{alias: "PageDown", code: KeyPageDown, names: []string{"PgDn"}},
	{alias: "PageUp", code: KeyPageUp, names: []string{"PgUp"}},
	{alias: "ArrowDown", code: KeyDown, names: []string{"Down"}},
	{alias: "ArrowLeft", code: KeyLeft, names: []string{"Left"}},
	{alias: "ArrowRight", code: KeyRight, names: []string{"Right"}},
	{alias: "ArrowUp", code: KeyUp, names: []string{"Up"}},
	{alias: "Escape", code: KeyEsc, names: []string{"Esc"}},
	{alias: "Fn", code: KeyFn},
	{alias: "PrintScreen", code: KeySysRq, names: []string{"PrtSc", "SysRq"}},
	{alias: "ScrollLock", code: KeyScrollLock},
	{alias: "Pause", code: KeyPause},
	{alias: "MediaPlayPause", code: KeyPlayPause},
	{alias: "MediaStop", code: KeyStopCD},
	{alias: "MediaTrackNext", code: KeyNextSong},
	{alias: "MediaTrackPrevious", code: KeyPrevSong},
	{alias: "AudioVolumeMute", code: KeyMute},
	{alias: "AudioVolumeDown", code: KeyVolumeDown},
	{alias: "AudioVolumeUp", code: KeyVolumeUp},

	// Symbols only reachable through Shift on a US layout.
	{alias: "Tilde", shifted: KeyGrave, names: []string{"~"}},
	{alias: "Exclamation", shifted: Key1, names: []string{"!"}},
	{alias: "At", shifted: Key2, names: []string{"@"}},
	{alias: "Hash", shifted: Key3, names: []string{"#"}},
	{alias: "Dollar", shifted: Key4, names: []string{"$"}},
	{alias: "Percent", shifted: Key5, names: []string{"%"}},
	{alias: "Caret", shifted: Key6, names: []string{"^"}},
	{alias: "Ampersand", shifted: Key7, names: []string{"&"}},
	{alias: "Star", shifted: Key8, names: []string{"*", "Asterisk"}},
	{alias: "ParenLeft", shifted: Key9, names: []string{"("}},
	{alias: "ParenRight", shifted: Key0, names: []string{")"}},
	{alias: "Underscore", shifted: KeyMinus, names: []string{"_"}},
	{alias: AliasPlus, shifted: KeyEqual, names: []string{"+"}},
	{alias: "BraceLeft", shifted: KeyLeftBrace, names: []string{"{"}},
	{alias: "BraceRight", shifted: KeyRightBrace, names: []string{"}"}},
	{alias: "Pipe", shifted: KeyBackslash, names: []string{"|"}},
	{alias: "Colon", shifted: KeySemicolon, names: []string{":"}},
	{alias: "QuoteDouble", shifted: KeyApostrophe, names: []string{`"`}},
	{alias: "LessThan", shifted: KeyComma, names: []string{"<"}},
	{alias: "GreaterThan", shifted: KeyDot, names: []string{">"}},
	{alias: "Question", shifted: KeySlash, names: []string{"?"}},
}

var (
	aliasByName  = map[string]Alias{}
	aliasByAlias = map[Alias]*aliasEntry{}
)

func init() {
	for i, c := range letterCodes {
		letter := string(rune('A' + i))
		aliasEntries = append(aliasEntries, aliasEntry{
			alias: Alias("Key" + letter), code: c, alpha: true, names: []string{letter},
		})
	}
	for i, c := range digitCodes {
		digit := strconv.Itoa(i)
		aliasEntries = append(aliasEntries, aliasEntry{
			alias: Alias("Digit" + digit), code: c, names: []string{digit},
		})
	}
	for n := 1; n <= 24; n++ {
		aliasEntries = append(aliasEntries, aliasEntry{
			alias: Alias("F" + strconv.Itoa(n)), code: FunctionKey(n),
		})
	}

	for i := range aliasEntries {
		e := &aliasEntries[i]
		if _, dup := aliasByAlias[e.alias]; dup {
			panic("keys: duplicate alias " + string(e.alias))
		}
		aliasByAlias[e.alias] = e
		register(string(e.alias), e.alias)
		for _, name := range e.names {
			register(name, e.alias)
		}
	}
}

func register(name string, a Alias) {
	key := foldName(name)
	if prev, dup := aliasByName[key]; dup && prev != a {
		panic(fmt.Sprintf("keys: name %q maps to both %s and %s", name, prev, a))
	}
	aliasByName[key] = a
}

func foldName(name string) string {
	return cases.Fold().String(strings.TrimSpace(name))
}

// ParseAlias resolves a case-insensitive alias name, short name or literal
// symbol to its canonical Alias.
func ParseAlias(name string) (Alias, error) {
	if a, ok := aliasByName[foldName(name)]; ok {
		return a, nil
	}
	return "", fmt.Errorf("keys: unknown key alias %q", name)
}

// MustAlias is ParseAlias for names known to be valid.
func MustAlias(name string) Alias {
	a, err := ParseAlias(name)
	if err != nil {
		panic(err)
	}
	return a
}

func (a Alias) String() string { return string(a) }

// Valid reports whether a is a known alias.
func (a Alias) Valid() bool {
	_, ok := aliasByAlias[a]
	return ok
}

// IsAlpha reports whether a is an ASCII letter.
func (a Alias) IsAlpha() bool {
	e, ok := aliasByAlias[a]
	return ok && e.alpha
}

// Code returns the key that produces a without modifiers.
func (a Alias) Code() (Code, bool) {
	e, ok := aliasByAlias[a]
	if !ok || e.code == KeyReserved {
		return KeyReserved, false
	}
	return e.code, true
}

// Dealias returns the key that produces a when combined with Shift.
func (a Alias) Dealias() (Code, bool) {
	e, ok := aliasByAlias[a]
	if !ok || e.shifted == KeyReserved {
		return KeyReserved, false
	}
	return e.shifted, true
}

// Aliases returns every known alias in table order.
func Aliases() []Alias {
	out := make([]Alias, 0, len(aliasEntries))
	for _, e := range aliasEntries {
		out = append(out, e.alias)
	}
	return out
}
