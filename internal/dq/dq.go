// Package dq records data-quality observations about staged tables:
// per-column completeness and natural-key duplicate audits. Results live
// in the staging database next to the data they describe.
package dq

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/careworks-labs/nhstage/internal/adapter"
	"github.com/careworks-labs/nhstage/internal/registry"
)

// maxDuplicateSamples bounds how many offending key tuples are stored in
// an audit row's notes.
const maxDuplicateSamples = 5

// Recorder writes data-quality rows into the staging database.
type Recorder struct {
	db     adapter.Adapter
	logger *slog.Logger
}

// NewRecorder creates a Recorder. A nil logger discards output.
func NewRecorder(db adapter.Adapter, logger *slog.Logger) *Recorder {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Recorder{db: db, logger: logger}
}

// EnsureTables creates the data-quality tables if they do not exist.
func (r *Recorder) EnsureTables(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS dq_completeness (
			table_name VARCHAR,
			column_name VARCHAR,
			row_count BIGINT,
			non_null_count BIGINT,
			pct_not_null DOUBLE
		)`,
		`CREATE TABLE IF NOT EXISTS dq_audit (
			table_name VARCHAR,
			check_name VARCHAR,
			status VARCHAR,
			metric_value DOUBLE,
			threshold DOUBLE,
			sample_rows BIGINT,
			notes VARCHAR,
			created_at TIMESTAMP DEFAULT current_timestamp
		)`,
	}
	for _, stmt := range stmts {
		if err := r.db.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("failed to create data-quality tables: %w", err)
		}
	}
	return nil
}

// RecordCompleteness replaces the completeness rows for a table with fresh
// counts: total rows, non-null count, and percent non-null per column.
func (r *Recorder) RecordCompleteness(ctx context.Context, table string) error {
	meta, err := r.db.GetTableMetadata(ctx, table)
	if err != nil {
		return fmt.Errorf("failed to inspect %s: %w", table, err)
	}

	// One aggregate query yields the total plus a non-null count per
	// column; COUNT(col) skips NULLs.
	exprs := make([]string, 0, len(meta.Columns)+1)
	exprs = append(exprs, "COUNT(*)")
	for _, col := range meta.Columns {
		exprs = append(exprs, fmt.Sprintf("COUNT(%s)", col.Name))
	}
	query := fmt.Sprintf("SELECT %s FROM %s", strings.Join(exprs, ", "), table) //nolint:gosec // identifiers come from information_schema

	dests := make([]any, len(meta.Columns)+1)
	var total int64
	nonNull := make([]int64, len(meta.Columns))
	dests[0] = &total
	for i := range nonNull {
		dests[i+1] = &nonNull[i]
	}
	if err := r.db.QueryRow(ctx, query).Scan(dests...); err != nil {
		return fmt.Errorf("failed to count completeness for %s: %w", table, err)
	}

	if err := r.db.Exec(ctx, "DELETE FROM dq_completeness WHERE table_name = ?", table); err != nil {
		return fmt.Errorf("failed to clear completeness rows for %s: %w", table, err)
	}

	for i, col := range meta.Columns {
		pct := 0.0
		if total > 0 {
			pct = float64(nonNull[i]) / float64(total) * 100
		}
		if err := r.db.Exec(ctx,
			`INSERT INTO dq_completeness (table_name, column_name, row_count, non_null_count, pct_not_null)
			 VALUES (?, ?, ?, ?, ?)`,
			table, col.Name, total, nonNull[i], pct,
		); err != nil {
			return fmt.Errorf("failed to record completeness for %s.%s: %w", table, col.Name, err)
		}
	}

	r.logger.Debug("completeness recorded", "table", table, "rows", total, "columns", len(meta.Columns))
	return nil
}

// RecordDuplicateCheck audits the staging table for natural-key duplicates
// and appends the outcome to dq_audit. The primary key makes a warn status
// unreachable in normal operation; the audit row documents that the check
// ran.
func (r *Recorder) RecordDuplicateCheck(ctx context.Context, ds *registry.Dataset) error {
	keys := strings.Join(ds.NaturalKey, ", ")
	query := fmt.Sprintf( //nolint:gosec // identifiers validated by the registry
		"SELECT %s, COUNT(*) AS c FROM %s GROUP BY %s HAVING COUNT(*) > 1",
		keys, ds.StagingTable, keys,
	)

	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return fmt.Errorf("failed to run duplicate check on %s: %w", ds.StagingTable, err)
	}
	defer func() { _ = rows.Close() }()

	var samples [][]string
	dupCount := 0
	for rows.Next() {
		dupCount++
		if len(samples) >= maxDuplicateSamples {
			continue
		}
		vals := make([]any, len(ds.NaturalKey)+1)
		ptrs := make([]any, len(vals))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return fmt.Errorf("failed to scan duplicate row: %w", err)
		}
		tuple := make([]string, len(ds.NaturalKey))
		for i := range tuple {
			tuple[i] = fmt.Sprint(vals[i])
		}
		samples = append(samples, tuple)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("error iterating duplicate check: %w", err)
	}

	status := "ok"
	var notes any
	if dupCount > 0 {
		status = "warn"
		encoded, err := json.Marshal(samples)
		if err == nil {
			notes = string(encoded)
		}
	}

	checkName := "dup_" + strings.Join(ds.NaturalKey, "_")
	if err := r.db.Exec(ctx,
		`INSERT INTO dq_audit (table_name, check_name, status, metric_value, threshold, sample_rows, notes)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		ds.StagingTable, checkName, status, float64(dupCount), 0.0, int64(len(samples)), notes,
	); err != nil {
		return fmt.Errorf("failed to record duplicate audit for %s: %w", ds.StagingTable, err)
	}

	if dupCount > 0 {
		r.logger.Warn("natural-key duplicates found", "table", ds.StagingTable, "count", dupCount)
	}
	return nil
}
