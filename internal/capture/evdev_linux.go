//go:build linux

package capture

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	evdev "github.com/gvalkov/golang-evdev"

	"layerlens/internal/engine"
	"layerlens/internal/keys"
)

const devicesGlob = "/dev/input/event*"

// evdev key event values.
const (
	valueRelease = 0
	valuePress   = 1
)

type evdevSource struct {
	filters []string
}

func newPlatformSource(opts Options) Source {
	filters := make([]string, 0, len(opts.Devices))
	for _, f := range opts.Devices {
		if f = strings.TrimSpace(f); f != "" {
			filters = append(filters, strings.ToLower(f))
		}
	}
	return &evdevSource{filters: filters}
}

func (s *evdevSource) Run(ctx context.Context, emit func(engine.KeyEvent)) error {
	devices, err := s.open()
	if err != nil {
		return err
	}

	var wg sync.WaitGroup
	for _, dev := range devices {
		slog.Info("[DEBUG-CAPTURE] reading device", "name", dev.Name, "path", dev.Fn)
		wg.Go(func() { readDevice(ctx, dev, emit) })
	}

	stop := context.AfterFunc(ctx, func() {
		for _, dev := range devices {
			if closeErr := dev.File.Close(); closeErr != nil {
				slog.Debug("[DEBUG-CAPTURE] device close failed", "path", dev.Fn, "error", closeErr)
			}
		}
	})
	defer stop()

	wg.Wait()
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return errors.New("capture: all input devices closed")
}

// open follows the usual evdev discovery: glob the event nodes and keep the
// ones that look like keyboards and match the configured names.
func (s *evdevSource) open() ([]*evdev.InputDevice, error) {
	paths, err := filepath.Glob(devicesGlob)
	if err != nil {
		return nil, fmt.Errorf("capture: list input devices: %w", err)
	}
	var (
		devices  []*evdev.InputDevice
		openErrs []error
	)
	for _, path := range paths {
		dev, err := evdev.Open(path)
		if err != nil {
			openErrs = append(openErrs, err)
			continue
		}
		if !s.wants(dev) {
			_ = dev.File.Close()
			continue
		}
		devices = append(devices, dev)
	}
	if len(devices) == 0 {
		if len(openErrs) > 0 {
			return nil, fmt.Errorf("capture: no usable keyboard (is the user in the input group?): %w", errors.Join(openErrs...))
		}
		return nil, errors.New("capture: no keyboard device found")
	}
	return devices, nil
}

func (s *evdevSource) wants(dev *evdev.InputDevice) bool {
	if len(s.filters) > 0 {
		name := strings.ToLower(dev.Name)
		return slices.ContainsFunc(s.filters, func(f string) bool { return strings.Contains(name, f) })
	}
	return slices.Contains(dev.CapabilitiesFlat[evdev.EV_KEY], evdev.KEY_A)
}

func readDevice(ctx context.Context, dev *evdev.InputDevice, emit func(engine.KeyEvent)) {
	for {
		ev, err := dev.ReadOne()
		if err != nil {
			if ctx.Err() == nil {
				slog.Warn("[WARN-CAPTURE] device read failed, dropping device", "name", dev.Name, "error", err)
			}
			return
		}
		if ev.Type != evdev.EV_KEY {
			continue
		}
		switch ev.Value {
		case valuePress:
			emit(engine.KeyEvent{Kind: engine.Press, Code: keys.Code(ev.Code)})
		case valueRelease:
			emit(engine.KeyEvent{Kind: engine.Release, Code: keys.Code(ev.Code)})
		}
	}
}
