// Command layerlens-inject types key chords through a virtual uinput
// keyboard, for exercising a running layerlens daemon without hardware.
//
//	layerlens-inject a ShiftLeft+b '!' Ctrl+C
//
// Each argument is a chord in layout syntax. It is pressed modifiers first,
// held, then released in reverse order.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"slices"
	"time"

	"github.com/spf13/cobra"

	"layerlens/internal/keys"
)

// keyboard is the subset of uinput.Keyboard the injector drives.
type keyboard interface {
	KeyDown(key int) error
	KeyUp(key int) error
	Close() error
}

type injectOptions struct {
	Settle time.Duration
	Hold   time.Duration
	Gap    time.Duration
}

// openKeyboardFn is swapped by tests.
var openKeyboardFn = openKeyboard

func main() {
	if err := newRootCommand().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "layerlens-inject:", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	opts := injectOptions{}

	cmd := &cobra.Command{
		Use:           "layerlens-inject chord...",
		Short:         "Type key chords through a virtual keyboard",
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			plan, err := buildPlan(args)
			if err != nil {
				return err
			}
			kb, err := openKeyboardFn()
			if err != nil {
				return fmt.Errorf("open virtual keyboard: %w", err)
			}
			defer func() {
				if closeErr := kb.Close(); closeErr != nil {
					slog.Warn("[WARN-INJECT] close virtual keyboard", "error", closeErr)
				}
			}()
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()
			return typePlan(ctx, kb, plan, opts)
		},
	}

	cmd.Flags().DurationVar(&opts.Settle, "settle", 300*time.Millisecond, "wait after creating the device so the OS picks it up")
	cmd.Flags().DurationVar(&opts.Hold, "hold", 30*time.Millisecond, "how long each chord stays pressed")
	cmd.Flags().DurationVar(&opts.Gap, "gap", 50*time.Millisecond, "pause between chords")
	return cmd
}

// buildPlan resolves every argument to the keys that produce it.
func buildPlan(args []string) ([][]keys.Code, error) {
	plan := make([][]keys.Code, 0, len(args))
	for _, arg := range args {
		chord, err := keys.ParseChord(arg)
		if err != nil {
			return nil, fmt.Errorf("chord %q: %w", arg, err)
		}
		hotkeys := keys.Resolve(chord)
		if len(hotkeys) == 0 {
			return nil, fmt.Errorf("chord %q has no key on this platform", arg)
		}
		plan = append(plan, hotkeys[0].Keys())
	}
	return plan, nil
}

// typePlan presses each chord in order. Keys already down are released even
// when ctx ends mid-chord, so nothing stays stuck.
func typePlan(ctx context.Context, kb keyboard, plan [][]keys.Code, opts injectOptions) error {
	if err := sleepCtx(ctx, opts.Settle); err != nil {
		return err
	}
	for i, codes := range plan {
		if i > 0 {
			if err := sleepCtx(ctx, opts.Gap); err != nil {
				return err
			}
		}
		if err := typeChord(ctx, kb, codes, opts.Hold); err != nil {
			return err
		}
	}
	return nil
}

func typeChord(ctx context.Context, kb keyboard, codes []keys.Code, hold time.Duration) (err error) {
	var down []keys.Code
	defer func() {
		for _, c := range slices.Backward(down) {
			if upErr := kb.KeyUp(int(c)); upErr != nil {
				err = errors.Join(err, fmt.Errorf("key up %s: %w", c, upErr))
			}
		}
	}()
	for _, c := range codes {
		if err := kb.KeyDown(int(c)); err != nil {
			return fmt.Errorf("key down %s: %w", c, err)
		}
		down = append(down, c)
	}
	return sleepCtx(ctx, hold)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
