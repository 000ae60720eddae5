package commands

import (
	"fmt"
	"path/filepath"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/careworks-labs/nhstage/internal/engine"
	"github.com/careworks-labs/nhstage/internal/metrics"
)

// NewMetricsCommand creates the metrics command.
func NewMetricsCommand() *cobra.Command {
	var preview int

	cmd := &cobra.Command{
		Use:   "metrics",
		Short: "Compute staffing metrics from staged data",
		Long: `Compute nurse staffing metrics grouped by state, facility, and
calendar quarter, store them in the staffing_metrics table, and export
metrics_summary.csv to the output directory.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			app := appFrom(cmd)

			eng, err := createEngine(app)
			if err != nil {
				return err
			}
			defer func() { _ = eng.Close() }()

			computed, err := eng.Metrics(cmd.Context())
			if err != nil {
				return fmt.Errorf("metrics failed: %w", err)
			}

			renderMetricsPreview(cmd, computed, preview)
			summary := filepath.Join(app.Cfg.OutputDir, engine.MetricsSummaryFile)
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Saved %d facility-quarter metrics -> %s\n", len(computed), summary)
			return nil
		},
	}

	cmd.Flags().IntVar(&preview, "preview", 10, "Number of metric rows to print (0 to disable)")
	return cmd
}

func renderMetricsPreview(cmd *cobra.Command, computed []metrics.StaffingMetric, limit int) {
	if limit <= 0 || len(computed) == 0 {
		return
	}
	if limit > len(computed) {
		limit = len(computed)
	}

	t := table.NewWriter()
	t.SetOutputMirror(cmd.OutOrStdout())
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"Provnum", "State", "Quarter", "Nurse/Patient", "Contract/Employed", "Total Hours"})
	for _, m := range computed[:limit] {
		t.AppendRow(table.Row{
			m.Provnum, m.State, m.Quarter,
			fmt.Sprintf("%.3f", m.NurseToPatientRatio),
			fmt.Sprintf("%.3f", m.ContractVsEmployed),
			fmt.Sprintf("%.1f", m.TotalNurseHours),
		})
	}
	t.Render()
}
