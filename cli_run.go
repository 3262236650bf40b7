package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"layerlens/internal/singleinstance"
)

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the daemon in the foreground",
		Long: `Run the daemon in the foreground until SIGINT or SIGTERM.

The config file is created with a sample layout when it does not exist and
is reloaded whenever it changes on disk.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDaemon(cmd.Context(), rootOpts)
		},
	}
}

func runDaemon(parent context.Context, opts *RootOptions) error {
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	lock, err := singleinstance.TryLock(singleinstance.DefaultLockPath())
	if errors.Is(err, singleinstance.ErrAlreadyRunning) {
		return fmt.Errorf("run: %w", err)
	}
	if err != nil {
		slog.Warn("[WARN-APP] single-instance lock unavailable, continuing without it", "error", err)
	}
	if lock != nil {
		defer func() {
			if releaseErr := lock.Release(); releaseErr != nil {
				slog.Warn("[WARN-APP] lock release failed", "error", releaseErr)
			}
		}()
	}

	app := newApp(appOptions{
		configPath: opts.configPath(),
		logLevel:   opts.LogLevel,
		level:      opts.level,
		logs:       opts.logs,
	})
	if err := app.startup(ctx); err != nil {
		return err
	}
	<-ctx.Done()
	slog.Info("[DEBUG-APP] shutting down", "cause", context.Cause(ctx))
	app.shutdown()
	return nil
}
