package commands

import (
	"fmt"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/careworks-labs/nhstage/internal/loader"
)

// NewLoadCommand creates the load command.
func NewLoadCommand() *cobra.Command {
	var showRejects bool

	cmd := &cobra.Command{
		Use:   "load [dataset...]",
		Short: "Stage CSV files into the warehouse",
		Long: `Load source CSV files into their staging tables.

Each dataset's filename pattern is matched against the data directory;
matching files are parsed, cast to their declared column types, and
upserted by natural key. Invalid rows are rejected and counted without
failing the load; unreadable files fail the whole dataset.`,
		Example: `  # Load every dataset in the registry
  nhstage load

  # Load specific datasets
  nhstage load penalties staffing

  # Show sampled reject reasons
  nhstage load --show-rejects`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLoad(cmd, args, showRejects)
		},
	}

	cmd.Flags().BoolVar(&showRejects, "show-rejects", false, "Print sampled reject reasons per dataset")
	return cmd
}

func runLoad(cmd *cobra.Command, args []string, showRejects bool) error {
	app := appFrom(cmd)
	if err := app.Cfg.ValidateDataDir(); err != nil {
		return err
	}

	eng, err := createEngine(app)
	if err != nil {
		return err
	}
	defer func() { _ = eng.Close() }()

	results, err := eng.LoadAll(cmd.Context(), args)
	renderLoadResults(cmd, results, showRejects)
	if err != nil {
		return fmt.Errorf("load failed: %w", err)
	}
	return nil
}

func renderLoadResults(cmd *cobra.Command, results []*loader.Result, showRejects bool) {
	if len(results) == 0 {
		return
	}
	w := cmd.OutOrStdout()

	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"Dataset", "Files", "Inserted", "Updated", "Skipped", "Rejected"})
	for _, res := range results {
		t.AppendRow(table.Row{res.Dataset, res.Files, res.Inserted, res.Updated, res.Skipped, res.Rejected})
	}
	t.Render()

	if !showRejects {
		return
	}
	for _, res := range results {
		if len(res.Rejects) == 0 {
			continue
		}
		_, _ = fmt.Fprintf(w, "\nRejects for %s (showing %d of %d):\n", res.Dataset, len(res.Rejects), res.Rejected)
		for _, rej := range res.Rejects {
			_, _ = fmt.Fprintf(w, "  %v\n", &rej)
		}
	}
}
