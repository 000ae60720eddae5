package commands

import (
	"fmt"
	"os"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/careworks-labs/nhstage/internal/state"
)

// NewStatusCommand creates the status command.
func NewStatusCommand() *cobra.Command {
	var limit int
	var showLoads bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show recent pipeline runs",
		Long: `Display recent run history from the state store: what ran, when,
how it ended, and per-dataset load counts.`,
		Example: `  # Last 20 runs
  nhstage status

  # Last 5 runs with per-dataset detail
  nhstage status --limit 5 --loads`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runStatus(cmd, limit, showLoads)
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Number of runs to show")
	cmd.Flags().BoolVar(&showLoads, "loads", false, "Show per-dataset load counts for each load run")
	return cmd
}

func runStatus(cmd *cobra.Command, limit int, showLoads bool) error {
	app := appFrom(cmd)

	if _, err := os.Stat(app.Cfg.StatePath); os.IsNotExist(err) {
		return fmt.Errorf("no run history at %s (run 'nhstage load' first)", app.Cfg.StatePath)
	}

	store := state.NewSQLiteStore()
	if err := store.Open(app.Cfg.StatePath); err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	runs, err := store.ListRuns(limit)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		_, _ = fmt.Fprintln(cmd.OutOrStdout(), "No runs recorded yet")
		return nil
	}

	w := cmd.OutOrStdout()
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"Run", "Kind", "Env", "Status", "Started", "Duration", "Error"})
	for _, run := range runs {
		t.AppendRow(table.Row{
			shortID(run.ID),
			run.Kind,
			run.Environment,
			run.Status,
			run.StartedAt.Local().Format("2006-01-02 15:04:05"),
			runDuration(run),
			truncate(run.Error, 40),
		})
	}
	t.Render()

	if !showLoads {
		return nil
	}
	for _, run := range runs {
		if run.Kind != state.RunKindLoad {
			continue
		}
		loads, err := store.ListDatasetLoads(run.ID)
		if err != nil {
			return err
		}
		if len(loads) == 0 {
			continue
		}
		_, _ = fmt.Fprintf(w, "\nRun %s datasets:\n", shortID(run.ID))
		lt := table.NewWriter()
		lt.SetOutputMirror(w)
		lt.SetStyle(table.StyleLight)
		lt.AppendHeader(table.Row{"Dataset", "Files", "Inserted", "Updated", "Skipped", "Rejected"})
		for _, dl := range loads {
			lt.AppendRow(table.Row{dl.Dataset, dl.Files, dl.Inserted, dl.Updated, dl.Skipped, dl.Rejected})
		}
		lt.Render()
	}
	return nil
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func runDuration(run *state.Run) string {
	if run.CompletedAt == nil {
		return "-"
	}
	return run.CompletedAt.Sub(run.StartedAt).Round(time.Millisecond).String()
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}
