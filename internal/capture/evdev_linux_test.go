//go:build linux

package capture

import (
	"testing"

	evdev "github.com/gvalkov/golang-evdev"
)

func TestEvdevSourceWants(t *testing.T) {
	keyboard := &evdev.InputDevice{
		Name:             "AT Translated Set 2 keyboard",
		CapabilitiesFlat: map[int][]int{evdev.EV_KEY: {evdev.KEY_ESC, evdev.KEY_A}},
	}
	mouse := &evdev.InputDevice{
		Name:             "Logitech USB Optical Mouse",
		CapabilitiesFlat: map[int][]int{evdev.EV_KEY: {evdev.BTN_LEFT}},
	}

	tests := []struct {
		name    string
		devices []string
		dev     *evdev.InputDevice
		want    bool
	}{
		{name: "keyboard without filters", dev: keyboard, want: true},
		{name: "mouse without filters", dev: mouse, want: false},
		{name: "filter matches case-insensitively", devices: []string{" logitech "}, dev: mouse, want: true},
		{name: "filter excludes keyboard", devices: []string{"logitech"}, dev: keyboard, want: false},
		{name: "blank filters ignored", devices: []string{"", "  "}, dev: keyboard, want: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newPlatformSource(Options{Devices: tt.devices}).(*evdevSource)
			if got := s.wants(tt.dev); got != tt.want {
				t.Fatalf("wants(%q) = %v, want %v", tt.dev.Name, got, tt.want)
			}
		})
	}
}
