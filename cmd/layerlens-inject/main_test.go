package main

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"layerlens/internal/keys"
)

type fakeKeyboard struct {
	events []string
	failOn int
	closed bool
}

func (k *fakeKeyboard) KeyDown(key int) error {
	if key == k.failOn {
		return errors.New("device gone")
	}
	k.events = append(k.events, fmt.Sprintf("down %s", keys.Code(key)))
	return nil
}

func (k *fakeKeyboard) KeyUp(key int) error {
	k.events = append(k.events, fmt.Sprintf("up %s", keys.Code(key)))
	return nil
}

func (k *fakeKeyboard) Close() error {
	k.closed = true
	return nil
}

var fastOpts = injectOptions{}

func TestBuildPlan(t *testing.T) {
	plan, err := buildPlan([]string{"a", "Ctrl+C", "!"})
	require.NoError(t, err)
	assert.Equal(t, [][]keys.Code{
		{keys.KeyA},
		{keys.KeyLeftCtrl, keys.KeyC},
		{keys.KeyLeftShift, keys.Key1},
	}, plan)

	_, err = buildPlan([]string{"a", "NoSuchKey"})
	assert.ErrorContains(t, err, "NoSuchKey")
}

func TestTypePlanReleasesInReverse(t *testing.T) {
	kb := &fakeKeyboard{failOn: -1}
	plan := [][]keys.Code{{keys.KeyLeftCtrl, keys.KeyC}, {keys.KeyA}}
	require.NoError(t, typePlan(context.Background(), kb, plan, fastOpts))
	assert.Equal(t, []string{
		"down KEY_LEFTCTRL", "down KEY_C", "up KEY_C", "up KEY_LEFTCTRL",
		"down KEY_A", "up KEY_A",
	}, kb.events)
}

func TestTypeChordReleasesOnFailure(t *testing.T) {
	kb := &fakeKeyboard{failOn: int(keys.KeyC)}
	err := typeChord(context.Background(), kb, []keys.Code{keys.KeyLeftCtrl, keys.KeyC}, 0)
	require.ErrorContains(t, err, "device gone")
	assert.Equal(t, []string{"down KEY_LEFTCTRL", "up KEY_LEFTCTRL"}, kb.events)
}

func TestTypePlanStopsOnCancel(t *testing.T) {
	kb := &fakeKeyboard{failOn: -1}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := typePlan(ctx, kb, [][]keys.Code{{keys.KeyA}}, injectOptions{Settle: time.Hour})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, kb.events)
}

func TestRootCommandUsesKeyboard(t *testing.T) {
	kb := &fakeKeyboard{failOn: -1}
	openKeyboardFn = func() (keyboard, error) { return kb, nil }
	t.Cleanup(func() { openKeyboardFn = openKeyboard })

	cmd := newRootCommand()
	cmd.SetArgs([]string{"--settle", "0", "--hold", "0", "--gap", "0", "q"})
	require.NoError(t, cmd.Execute())
	assert.Equal(t, []string{"down KEY_Q", "up KEY_Q"}, kb.events)
	assert.True(t, kb.closed)

	cmd = newRootCommand()
	cmd.SetArgs([]string{"Bogus+Chord"})
	assert.Error(t, cmd.Execute())
}
