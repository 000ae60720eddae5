package commands

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

// NewRunCommand creates the run command.
func NewRunCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the full pipeline: load, build, metrics",
		Long: `Execute the whole pipeline in order: stage every dataset, build
the curated tables, then compute and export staffing metrics.`,
		Example: `  # Full pipeline with defaults
  nhstage run

  # Against a specific data directory
  nhstage run --data-dir ./Nursing_Homes_data`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			app := appFrom(cmd)
			if err := app.Cfg.ValidateDataDir(); err != nil {
				return err
			}

			eng, err := createEngine(app)
			if err != nil {
				return err
			}
			defer func() { _ = eng.Close() }()

			start := time.Now()
			results, computed, err := eng.RunAll(cmd.Context())
			renderLoadResults(cmd, results, false)
			if err != nil {
				return fmt.Errorf("run failed: %w", err)
			}

			_, _ = fmt.Fprintf(cmd.OutOrStdout(),
				"Pipeline completed in %s: %d datasets staged, %d facility-quarter metrics\n",
				time.Since(start).Round(time.Millisecond), len(results), len(computed))
			return nil
		},
	}
}
