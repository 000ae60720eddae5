// Package curate builds downstream tables and views from staged data.
// Each step is a deterministic transformation over the staging tables,
// safe to re-run: curated objects are replaced wholesale on every build.
package curate

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/careworks-labs/nhstage/internal/adapter"
)

const factPenaltySQL = `CREATE OR REPLACE TABLE fact_penalty AS
SELECT
	cms_certification_number_ccn AS ccn,
	CAST(penalty_date AS DATE) AS penalty_date,
	penalty_type,
	COALESCE(fine_amount, 0) AS fine_amount,
	payment_denial_length_in_days AS denial_days,
	state,
	provider_name
FROM staging_penalties`

const penaltiesByStateSQL = `CREATE OR REPLACE VIEW v_penalties_by_state AS
SELECT
	state,
	COUNT(*) AS penalty_events,
	SUM(fine_amount) AS total_fines,
	SUM(CASE WHEN fine_amount > 0 THEN 1 END) AS fine_count,
	ROUND(AVG(fine_amount), 2) AS avg_fine
FROM fact_penalty
GROUP BY state`

// Builder executes the curation steps against a warehouse connection.
type Builder struct {
	db     adapter.Adapter
	logger *slog.Logger
}

// New creates a Builder using the given connection.
func New(db adapter.Adapter, logger *slog.Logger) *Builder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Builder{db: db, logger: logger}
}

// Build creates the curated penalty fact table and its state-level
// rollup view. It requires staging_penalties to be loaded first.
func (b *Builder) Build(ctx context.Context) error {
	tables, err := b.db.ListTables(ctx)
	if err != nil {
		return fmt.Errorf("failed to list tables: %w", err)
	}
	if !contains(tables, "staging_penalties") {
		return fmt.Errorf("staging_penalties does not exist: run load first")
	}

	if err := b.db.Exec(ctx, factPenaltySQL); err != nil {
		return fmt.Errorf("failed to build fact_penalty: %w", err)
	}
	b.logger.Info("built curated table", "table", "fact_penalty")

	if err := b.db.Exec(ctx, penaltiesByStateSQL); err != nil {
		return fmt.Errorf("failed to build v_penalties_by_state: %w", err)
	}
	b.logger.Info("built curated view", "view", "v_penalties_by_state")

	return nil
}

func contains(items []string, want string) bool {
	for _, item := range items {
		if item == want {
			return true
		}
	}
	return false
}
