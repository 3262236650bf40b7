package main

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"
	"go.yaml.in/yaml/v3"

	"layerlens/internal/bindings"
	"layerlens/internal/config"
	"layerlens/internal/layout"
)

const maxImportBytes = 1 << 20

// NewImportCommand creates the import command.
func NewImportCommand(rootOpts *RootOptions) *cobra.Command {
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "import",
		Short: "Replace the layout with a document read from stdin",
		Long: `Read a layout document (YAML or JSON) from stdin, validate it and store it
as the layout of the config file. Other settings are kept. A running daemon
picks the change up through its file watcher.

Unknown fields are rejected so typos do not silently drop bindings.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			in := cmd.InOrStdin()
			if isTerminal(in) {
				return errors.New("import: expects a layout on stdin, e.g. layerlens import < layout.yaml")
			}
			l, err := readLayout(in)
			if err != nil {
				return fmt.Errorf("import: %w", err)
			}
			table, err := bindings.Build(l)
			if err != nil {
				return fmt.Errorf("import: %w", err)
			}
			st := table.Stats()
			out := cmd.OutOrStdout()
			if dryRun {
				fmt.Fprintf(out, "layout ok (%d layers, %d switches, %d bindings), not saved\n",
					st.Layers, len(l.Switches), st.Contexts)
				return nil
			}

			path := rootOpts.configPath()
			cfg, err := config.Load(path)
			if err != nil {
				slog.Warn("[WARN-CONFIG] current config unreadable, other settings reset to defaults",
					"path", path, "error", err)
				cfg = config.DefaultConfig()
			}
			cfg.Layout = *l
			if _, err := config.Save(path, cfg); err != nil {
				return fmt.Errorf("import: %w", err)
			}
			fmt.Fprintf(out, "imported layout into %s (%d layers, %d switches, %d bindings)\n",
				path, st.Layers, len(l.Switches), st.Contexts)
			return nil
		},
	}

	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "validate only, do not save")
	return cmd
}

func readLayout(r io.Reader) (*layout.Layout, error) {
	raw, err := io.ReadAll(io.LimitReader(r, maxImportBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read: %w", err)
	}
	if len(raw) > maxImportBytes {
		return nil, fmt.Errorf("layout exceeds %d bytes", maxImportBytes)
	}
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	var l layout.Layout
	if err := dec.Decode(&l); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errors.New("empty layout document")
		}
		return nil, fmt.Errorf("parse: %w", err)
	}
	return &l, nil
}

// NewExportCommand creates the export command.
func NewExportCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "export",
		Short: "Print the configured layout",
		Long: `Print the layout of the config file, as YAML or, with --format json, as
the JSON document the overlay receives.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(rootOpts.configPath())
			if err != nil {
				return fmt.Errorf("export: %w", err)
			}
			if rootOpts.Format == "json" {
				return writeJSON(cmd.OutOrStdout(), &cfg.Layout)
			}
			data, err := yaml.Marshal(&cfg.Layout)
			if err != nil {
				return fmt.Errorf("export: %w", err)
			}
			_, err = cmd.OutOrStdout().Write(data)
			return err
		},
	}
}
