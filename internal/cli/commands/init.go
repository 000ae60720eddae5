package commands

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
)

const defaultConfigYAML = `# nhstage configuration
data_dir: data
database: nh.duckdb
datasets_file: datasets.yml
state_path: .nhstage/state.db
output_dir: out
environment: dev

# Object storage for 'nhstage upload' (optional)
# upload:
#   endpoint: http://localhost:9000
#   access_key: minioadmin
#   secret_key: minioadmin
#   bucket: nh-artifacts
#   prefix: raw/nursing_homes/
`

const defaultDatasetsYAML = `# Dataset registry: one entry per CMS extract family.
# Column types: string, date, numeric, int. Natural key columns must be
# non-nullable. on_conflict: overwrite (default), ignore, or reject.
datasets:
  penalties:
    filename_pattern: "NH_Penalties_*.csv"
    staging_table: staging_penalties
    natural_key: [cms_certification_number_ccn, penalty_date, penalty_type]
    columns:
      cms_certification_number_ccn: {type: string}
      provider_name: {type: string, nullable: true}
      state: {type: string, nullable: true}
      penalty_date: {type: date}
      penalty_type: {type: string}
      fine_amount: {type: numeric, nullable: true}
      payment_denial_length_in_days: {type: int, nullable: true}

  staffing:
    filename_pattern: "PBJ_Daily_Nurse_Staffing_*.csv"
    staging_table: staging_staffing
    natural_key: [provnum, cy_qtr, workdate]
    columns:
      provnum: {type: string}
      state: {type: string, nullable: true}
      cy_qtr: {type: string}
      workdate: {type: date}
      mdscensus: {type: numeric, nullable: true}
      hrs_rn: {type: numeric, nullable: true}
      hrs_lpn: {type: numeric, nullable: true}
      hrs_cna: {type: numeric, nullable: true}
      hrs_rn_ctr: {type: numeric, nullable: true}
      hrs_lpn_ctr: {type: numeric, nullable: true}
      hrs_cna_ctr: {type: numeric, nullable: true}
      hrs_rn_emp: {type: numeric, nullable: true}
      hrs_lpn_emp: {type: numeric, nullable: true}
      hrs_cna_emp: {type: numeric, nullable: true}
`

// NewInitCommand creates the init command.
func NewInitCommand() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init [directory]",
		Short: "Initialize a new nhstage project",
		Long: `Initialize a new nhstage project with default configuration.

This creates:
  - nhstage.yaml configuration file
  - datasets.yml dataset registry with penalties and staffing datasets
  - data/ directory for source CSV files
  - out/ directory for exported artifacts`,
		Example: `  # Initialize in current directory
  nhstage init

  # Initialize in a new directory
  nhstage init my-project

  # Force overwrite existing config
  nhstage init --force`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := "."
			if len(args) > 0 {
				dir = args[0]
			}
			return runInit(cmd, dir, force)
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Overwrite existing configuration")
	return cmd
}

func runInit(cmd *cobra.Command, dir string, force bool) error {
	if dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	configPath := filepath.Join(dir, "nhstage.yaml")
	if _, err := os.Stat(configPath); err == nil && !force {
		return fmt.Errorf("nhstage.yaml already exists. Use --force to overwrite")
	}

	if err := os.WriteFile(configPath, []byte(defaultConfigYAML), 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", configPath, err)
	}
	datasetsPath := filepath.Join(dir, "datasets.yml")
	if err := os.WriteFile(datasetsPath, []byte(defaultDatasetsYAML), 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", datasetsPath, err)
	}
	for _, sub := range []string{"data", "out"} {
		if err := os.MkdirAll(filepath.Join(dir, sub), 0o750); err != nil {
			return fmt.Errorf("failed to create %s directory: %w", sub, err)
		}
	}

	w := cmd.OutOrStdout()
	_, _ = fmt.Fprintln(w, "Created nhstage.yaml")
	_, _ = fmt.Fprintln(w, "Created datasets.yml")
	_, _ = fmt.Fprintln(w, "Created data/ and out/ directories")
	_, _ = fmt.Fprintln(w)
	_, _ = fmt.Fprintln(w, "nhstage project initialized!")
	_, _ = fmt.Fprintln(w)
	_, _ = fmt.Fprintln(w, "Next steps:")
	_, _ = fmt.Fprintln(w, "  1. Drop CMS CSV extracts into data/")
	_, _ = fmt.Fprintln(w, "  2. Run 'nhstage load' to stage them")
	_, _ = fmt.Fprintln(w, "  3. Run 'nhstage build' and 'nhstage metrics'")
	_, _ = fmt.Fprintln(w, "  4. Explore with 'nhstage query' or 'nhstage dashboard'")
	return nil
}
