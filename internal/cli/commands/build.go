package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

// NewBuildCommand creates the build command.
func NewBuildCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "build",
		Short: "Build curated tables from staged data",
		Long: `Build the curated penalty fact table and its rollup views.

Curation replaces fact_penalty and v_penalties_by_state from the
staging tables; re-running it on the same staged data produces the
same output.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			app := appFrom(cmd)

			eng, err := createEngine(app)
			if err != nil {
				return err
			}
			defer func() { _ = eng.Close() }()

			if err := eng.Curate(cmd.Context()); err != nil {
				return fmt.Errorf("build failed: %w", err)
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), "Curated fact_penalty and v_penalties_by_state")
			return nil
		},
	}
}
