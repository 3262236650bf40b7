package main

import (
	"fmt"
	"log/slog"
	"slices"

	"github.com/spf13/cobra"

	"layerlens/internal/config"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	ConfigPath string
	LogLevel   string
	Format     string // "text" | "json"

	level *slog.LevelVar
	logs  *logForwarder
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// configPath returns --config, or the default path when the flag is unset.
func (o *RootOptions) configPath() string {
	if o.ConfigPath != "" {
		return o.ConfigPath
	}
	return config.DefaultPath()
}

// NewRootCommand creates the layerlens command tree. Without a subcommand it
// runs the daemon.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{level: new(slog.LevelVar), logs: newLogForwarder()}

	cmd := &cobra.Command{
		Use:   "layerlens",
		Short: "Keyboard layer overlay daemon",
		Long: `layerlens mirrors a programmable keyboard's layers and combos on the host.

It reads key transitions from the input devices, resolves them against the
layout in the config file and streams which switches and layers are active to
an overlay connected over a local WebSocket.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !slices.Contains(ValidFormats, opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			if opts.LogLevel != "" {
				level, err := parseLevel(opts.LogLevel)
				if err != nil {
					return fmt.Errorf("invalid log level %q: %w", opts.LogLevel, err)
				}
				opts.level.Set(level)
			}
			slog.SetDefault(newLogger(cmd.ErrOrStderr(), opts.level, opts.logs))
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDaemon(cmd.Context(), opts)
		},
	}

	cmd.PersistentFlags().StringVarP(&opts.ConfigPath, "config", "c", "", "config file (default $XDG_CONFIG_HOME/layerlens/config.yaml)")
	cmd.PersistentFlags().StringVar(&opts.LogLevel, "log-level", "", "log level, overrides log_level in the config (debug|info|warn|error)")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")

	cmd.AddCommand(NewRunCommand(opts))
	cmd.AddCommand(NewCheckCommand(opts))
	cmd.AddCommand(NewImportCommand(opts))
	cmd.AddCommand(NewExportCommand(opts))
	cmd.AddCommand(NewStatsCommand(opts))
	cmd.AddCommand(NewWatchCommand(opts))
	cmd.AddCommand(NewVersionCommand())

	return cmd
}

// NewVersionCommand prints the build version.
func NewVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "layerlens %s\n", version)
		},
	}
}
