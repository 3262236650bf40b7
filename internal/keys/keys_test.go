package keys

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAlias(t *testing.T) {
	tests := []struct {
		in   string
		want Alias
	}{
		{"KeyA", "KeyA"},
		{"a", "KeyA"},
		{"keya", "KeyA"},
		{"1", "Digit1"},
		{"!", "Exclamation"},
		{"exclamation", "Exclamation"},
		{"Shift", AliasShiftLeft},
		{"ctrl", AliasControlLeft},
		{"ESC", "Escape"},
		{" f13 ", "F13"},
		{"+", AliasPlus},
		{"~", "Tilde"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseAlias(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := ParseAlias("Hyper")
	assert.Error(t, err)
}

func TestParseChord(t *testing.T) {
	tests := []struct {
		in      string
		want    Chord
		wantErr bool
	}{
		{in: "A", want: Chord{"KeyA"}},
		{in: "Ctrl+Shift+K", want: Chord{AliasControlLeft, AliasShiftLeft, "KeyK"}},
		{in: "Ctrl + C", want: Chord{AliasControlLeft, "KeyC"}},
		{in: "+", want: Chord{AliasPlus}},
		{in: "Ctrl++", want: Chord{AliasControlLeft, AliasPlus}},
		{in: "++Alt", want: Chord{AliasPlus, AliasAltLeft}},
		{in: "", wantErr: true},
		{in: "Ctrl+", wantErr: true},
		{in: "Ctrl++A", wantErr: true},
		{in: "Ctrl+Nope", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseChord(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestChordTextRoundTrip(t *testing.T) {
	var c Chord
	require.NoError(t, c.UnmarshalText([]byte("ctrl+!")))
	text, err := c.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "ControlLeft+Exclamation", string(text))
}

func TestResolveAlphaYieldsBareAndShifted(t *testing.T) {
	for _, a := range Aliases() {
		if !a.IsAlpha() {
			continue
		}
		code, ok := a.Code()
		require.True(t, ok, a)
		assert.Equal(t, []HotKey{{Code: code}, {Code: code, Shift: true}}, Resolve(Chord{a}), a)
	}
}

func TestResolveSymbolUsesDealiasedKey(t *testing.T) {
	got := Resolve(Chord{MustAlias("!")})
	assert.Equal(t, []HotKey{{Code: Key1, Shift: true}}, got)

	got = Resolve(Chord{MustAlias("~")})
	assert.Equal(t, []HotKey{{Code: KeyGrave, Shift: true}}, got)
}

func TestResolveDigitHasNoShiftVariant(t *testing.T) {
	assert.Equal(t, []HotKey{{Code: Key1}}, Resolve(Chord{MustAlias("1")}))
}

func TestResolveFoldsMultiAliasChord(t *testing.T) {
	tests := []struct {
		in   string
		want []HotKey
	}{
		{"Ctrl+Shift+K", []HotKey{{Code: KeyK, Shift: true, Ctrl: true}}},
		{"Meta+Alt+F4", []HotKey{{Code: KeyF1 + 3, Alt: true, Meta: true}}},
		{"Ctrl+!", []HotKey{{Code: Key1, Shift: true, Ctrl: true}}},
		{"Ctrl+Shift", []HotKey{{Code: KeyLeftShift, Ctrl: true}}},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			chord, err := ParseChord(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, Resolve(chord))
		})
	}
}

func TestResolveUnknownAliasIsUnbound(t *testing.T) {
	assert.Empty(t, Resolve(Chord{"NotAKey"}))
	assert.Empty(t, Resolve(Chord{AliasControlLeft, "NotAKey"}))
	assert.Empty(t, Resolve(nil))
}

func TestHotKeyIsPressed(t *testing.T) {
	shiftA := HotKey{Code: KeyA, Shift: true}
	bareA := HotKey{Code: KeyA}
	shiftKey := HotKey{Code: KeyLeftShift}

	tests := []struct {
		name string
		hk   HotKey
		held Set
		want bool
	}{
		{"shift variant with left shift", shiftA, NewSet(KeyA, KeyLeftShift), true},
		{"shift variant with right shift", shiftA, NewSet(KeyA, KeyRightShift), true},
		{"shift variant without shift", shiftA, NewSet(KeyA), false},
		{"shift variant with extra ctrl", shiftA, NewSet(KeyA, KeyLeftShift, KeyRightCtrl), false},
		{"shift variant without primary", shiftA, NewSet(KeyLeftShift), false},
		{"bare with shift held", bareA, NewSet(KeyA, KeyLeftShift), false},
		{"bare alone", bareA, NewSet(KeyA), true},
		{"bare with unrelated key", bareA, NewSet(KeyA, KeyZ), true},
		{"modifier exempt from its own group", shiftKey, NewSet(KeyLeftShift), true},
		{"modifier with both shifts", shiftKey, NewSet(KeyLeftShift, KeyRightShift), true},
		{"modifier with ctrl", shiftKey, NewSet(KeyLeftShift, KeyLeftCtrl), false},
		{"reserved never pressed", HotKey{}, NewSet(KeyReserved), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.hk.IsPressed(tt.held))
		})
	}
}

func TestIrrelevantKeyNeverFlipsHotKey(t *testing.T) {
	hotkeys := []HotKey{
		{Code: KeyA},
		{Code: KeyA, Shift: true},
		{Code: KeyK, Ctrl: true, Shift: true},
		{Code: KeyLeftAlt},
	}
	bases := []Set{
		NewSet(),
		NewSet(KeyA),
		NewSet(KeyA, KeyLeftShift),
		NewSet(KeyK, KeyLeftCtrl, KeyRightShift),
		NewSet(KeyLeftAlt),
	}
	for _, hk := range hotkeys {
		relevant := NewSet(hk.RelevantKeys()...)
		for _, base := range bases {
			before := hk.IsPressed(base)
			for _, toggle := range []Code{KeyZ, KeySpace, KeyF1, KeyEnter, Key9} {
				if relevant.Has(toggle) {
					continue
				}
				held := NewSet(base.Sorted()...)
				held.Add(toggle)
				assert.Equal(t, before, hk.IsPressed(held), "%s toggling %s", hk, toggle)
			}
		}
	}
}

func TestRelevantKeys(t *testing.T) {
	hk := HotKey{Code: KeyK, Ctrl: true, Meta: true}
	assert.Equal(t, []Code{KeyK, KeyLeftCtrl, KeyRightCtrl, KeyLeftMeta, KeyRightMeta}, hk.RelevantKeys())
	assert.Equal(t, []Code{KeyA}, HotKey{Code: KeyA}.RelevantKeys())
}

func TestHotKeyKeys(t *testing.T) {
	assert.Equal(t, []Code{KeyLeftShift, KeyLeftCtrl, KeyC}, HotKey{Code: KeyC, Shift: true, Ctrl: true}.Keys())
	assert.Equal(t, []Code{KeyA}, HotKey{Code: KeyA}.Keys())
	assert.Equal(t, []Code{KeyLeftShift}, HotKey{Code: KeyLeftShift, Shift: true}.Keys())
	assert.Equal(t, []Code{KeyLeftCtrl, KeyRightShift}, HotKey{Code: KeyRightShift, Ctrl: true}.Keys())
}

func TestHotKeyString(t *testing.T) {
	assert.Equal(t, "Shift+Ctrl+KEY_K", HotKey{Code: KeyK, Shift: true, Ctrl: true}.String())
	assert.Equal(t, "KEY_F13", HotKey{Code: FunctionKey(13)}.String())
	assert.Equal(t, "KEY_999", Code(999).String())
}

func TestSet(t *testing.T) {
	s := NewSet()
	assert.True(t, s.Add(KeyA))
	assert.False(t, s.Add(KeyA))
	assert.True(t, s.Has(KeyA))
	assert.True(t, s.Remove(KeyA))
	assert.False(t, s.Remove(KeyA))
	assert.Empty(t, s.Sorted())
}
