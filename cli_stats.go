package main

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"layerlens/internal/config"
	"layerlens/internal/stats"
)

// StatsReport is the json output of stats.
type StatsReport struct {
	Path    string              `json:"path"`
	Summary stats.Summary       `json:"summary"`
	Top     []stats.SwitchCount `json:"top"`
}

// NewStatsCommand creates the stats command.
func NewStatsCommand(rootOpts *RootOptions) *cobra.Command {
	var top int

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show the most pressed switches",
		Long: `Show per-switch press counts recorded by the daemon.

Counts are per switch and slot. Each daemon run is one session.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if top <= 0 {
				return fmt.Errorf("stats: --top must be positive, got %d", top)
			}
			cfg, err := config.Load(rootOpts.configPath())
			if err != nil {
				return fmt.Errorf("stats: %w", err)
			}
			path := cfg.StatsPath()
			out := cmd.OutOrStdout()
			if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
				fmt.Fprintf(out, "no statistics recorded yet (%s)\n", path)
				return nil
			}

			store, err := stats.Open(path)
			if err != nil {
				return err
			}
			defer store.Close()

			ctx := cmd.Context()
			report := StatsReport{Path: path}
			if report.Summary, err = store.Summary(ctx); err != nil {
				return err
			}
			if report.Top, err = store.Top(ctx, top); err != nil {
				return err
			}
			if rootOpts.Format == "json" {
				return writeJSON(out, report)
			}
			return writeStatsText(out, report)
		},
	}

	cmd.Flags().IntVarP(&top, "top", "n", 20, "number of switches to list")
	return cmd
}

func writeStatsText(w io.Writer, r StatsReport) error {
	fmt.Fprintf(w, "%d presses over %d sessions", r.Summary.Presses, r.Summary.Sessions)
	if !r.Summary.Since.IsZero() {
		fmt.Fprintf(w, " since %s", r.Summary.Since.Local().Format("2006-01-02 15:04"))
	}
	fmt.Fprintln(w)
	if len(r.Top) == 0 {
		return nil
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "SWITCH\tSLOT\tPRESSES")
	for _, c := range r.Top {
		fmt.Fprintf(tw, "%s\t%s\t%d\n", c.SwitchID, c.Slot, c.Count)
	}
	return tw.Flush()
}
