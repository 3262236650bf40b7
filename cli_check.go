package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"layerlens/internal/bindings"
	"layerlens/internal/config"
)

// CheckResult is the json output of check.
type CheckResult struct {
	Path     string `json:"path"`
	Valid    bool   `json:"valid"`
	Error    string `json:"error,omitempty"`
	Layers   int    `json:"layers,omitempty"`
	Switches int    `json:"switches,omitempty"`
	HotKeys  int    `json:"hotkeys,omitempty"`
	Bindings int    `json:"bindings,omitempty"`
	Unbound  int    `json:"unbound,omitempty"`
}

// NewCheckCommand creates the check command.
func NewCheckCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "check [config-file]",
		Short: "Validate a config file without starting the daemon",
		Long: `Validate a config file and build its binding table.

Exits non-zero and prints every validation error when the file is rejected.
Without an argument the configured file is checked.`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			path := rootOpts.configPath()
			if len(args) == 1 {
				path = args[0]
				// Load treats a missing file as defaults; an explicit path
				// must exist.
				if _, err := os.Stat(path); err != nil {
					return fmt.Errorf("check: %w", err)
				}
			}
			result, err := runCheck(path)
			if rootOpts.Format == "json" {
				if writeErr := writeJSON(cmd.OutOrStdout(), result); writeErr != nil {
					return writeErr
				}
			} else if err == nil {
				fmt.Fprintf(cmd.OutOrStdout(), "%s: ok (%d layers, %d switches, %d hotkeys, %d bindings, %d unbound)\n",
					result.Path, result.Layers, result.Switches, result.HotKeys, result.Bindings, result.Unbound)
			}
			return err
		},
	}
}

func runCheck(path string) (CheckResult, error) {
	result := CheckResult{Path: path}
	fail := func(err error) (CheckResult, error) {
		result.Error = err.Error()
		return result, fmt.Errorf("check: %w", err)
	}
	cfg, err := config.Load(path)
	if err != nil {
		return fail(err)
	}
	table, err := bindings.Build(&cfg.Layout)
	if err != nil {
		return fail(err)
	}
	st := table.Stats()
	result.Valid = true
	result.Layers = st.Layers
	result.Switches = len(cfg.Layout.Switches)
	result.HotKeys = st.HotKeys
	result.Bindings = st.Contexts
	result.Unbound = st.Unbound
	return result, nil
}
