// Package metrics computes staffing metrics from staged payroll data.
//
// Candidate staging tables are discovered through dq_completeness: any
// table whose completeness rows cover the full set of required staffing
// columns participates. Rows missing census, state, quarter, or nurse
// hours are dropped before aggregation.
package metrics

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"regexp"
	"sort"
	"strings"

	"github.com/careworks-labs/nhstage/internal/adapter"
)

// requiredColumns are the staging columns a table must expose to be
// included in the staffing computation. Names are post-normalization.
var requiredColumns = []string{
	"mdscensus",
	"state",
	"cy_qtr",
	"provnum",
	"hrs_rn",
	"hrs_lpn",
	"hrs_cna",
	"hrs_rn_ctr",
	"hrs_lpn_ctr",
	"hrs_cna_ctr",
	"hrs_rn_emp",
	"hrs_lpn_emp",
	"hrs_cna_emp",
}

// StaffingMetric is one facility-quarter aggregate.
type StaffingMetric struct {
	Provnum             string
	State               string
	Quarter             string
	NurseToPatientRatio float64
	ContractVsEmployed  float64
	TotalNurseHours     float64
}

var quarterRe = regexp.MustCompile(`(20\d{2}).*?(\d)`)

// NormalizeQuarter standardizes quarter labels like "2024Q1", "Q1 2024",
// or "2024-1" into "2024-Q1". Returns false when no year/quarter pair
// can be extracted.
func NormalizeQuarter(raw string) (string, bool) {
	m := quarterRe.FindStringSubmatch(raw)
	if m == nil {
		return "", false
	}
	return fmt.Sprintf("%s-Q%s", m[1], m[2]), true
}

// Calculator computes and persists staffing metrics.
type Calculator struct {
	db     adapter.Adapter
	logger *slog.Logger
}

// New creates a Calculator over the given connection.
func New(db adapter.Adapter, logger *slog.Logger) *Calculator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Calculator{db: db, logger: logger}
}

type groupKey struct {
	state   string
	provnum string
	quarter string
}

type accumulator struct {
	nurseHours    float64
	census        float64
	contractHours float64
	employedHours float64
}

// Compute aggregates nurse staffing hours by state, facility, and
// normalized calendar quarter across every eligible staging table.
func (c *Calculator) Compute(ctx context.Context) ([]StaffingMetric, error) {
	tables, err := c.eligibleTables(ctx)
	if err != nil {
		return nil, err
	}
	if len(tables) == 0 {
		return nil, fmt.Errorf("no staging tables with staffing columns found: run load first")
	}

	groups := make(map[groupKey]*accumulator)
	for _, table := range tables {
		if err := c.accumulateTable(ctx, table, groups); err != nil {
			return nil, err
		}
	}

	out := make([]StaffingMetric, 0, len(groups))
	for key, acc := range groups {
		out = append(out, StaffingMetric{
			Provnum:             key.provnum,
			State:               key.state,
			Quarter:             key.quarter,
			NurseToPatientRatio: acc.nurseHours / acc.census,
			ContractVsEmployed:  acc.contractHours / acc.employedHours,
			TotalNurseHours:     acc.nurseHours,
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].State != out[j].State {
			return out[i].State < out[j].State
		}
		if out[i].Provnum != out[j].Provnum {
			return out[i].Provnum < out[j].Provnum
		}
		return out[i].Quarter < out[j].Quarter
	})
	c.logger.Info("computed staffing metrics", "tables", len(tables), "groups", len(out))
	return out, nil
}

// eligibleTables returns staging tables whose dq_completeness rows cover
// every required staffing column.
func (c *Calculator) eligibleTables(ctx context.Context) ([]string, error) {
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(requiredColumns)), ",")
	query := fmt.Sprintf(
		`SELECT table_name FROM dq_completeness
		 WHERE column_name IN (%s)
		 GROUP BY table_name
		 HAVING COUNT(DISTINCT column_name) = %d
		 ORDER BY table_name`,
		placeholders, len(requiredColumns),
	)
	args := make([]any, len(requiredColumns))
	for i, col := range requiredColumns {
		args[i] = col
	}

	rows, err := c.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to discover staffing tables: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var tables []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("failed to scan table name: %w", err)
		}
		tables = append(tables, name)
	}
	return tables, rows.Err()
}

func (c *Calculator) accumulateTable(ctx context.Context, table string, groups map[groupKey]*accumulator) error {
	query := fmt.Sprintf(
		`SELECT provnum, state, cy_qtr, mdscensus,
		        hrs_rn, hrs_lpn, hrs_cna,
		        hrs_rn_ctr, hrs_lpn_ctr, hrs_cna_ctr,
		        hrs_rn_emp, hrs_lpn_emp, hrs_cna_emp
		 FROM %s`, table,
	)
	rows, err := c.db.Query(ctx, query)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", table, err)
	}
	defer func() { _ = rows.Close() }()

	dropped := 0
	for rows.Next() {
		var provnum, state, quarter sql.NullString
		var census, rn, lpn, cna sql.NullFloat64
		var rnCtr, lpnCtr, cnaCtr sql.NullFloat64
		var rnEmp, lpnEmp, cnaEmp sql.NullFloat64
		if err := rows.Scan(&provnum, &state, &quarter, &census,
			&rn, &lpn, &cna,
			&rnCtr, &lpnCtr, &cnaCtr,
			&rnEmp, &lpnEmp, &cnaEmp); err != nil {
			return fmt.Errorf("failed to scan staffing row from %s: %w", table, err)
		}

		normalized := ""
		if quarter.Valid {
			normalized, _ = NormalizeQuarter(quarter.String)
		}
		if !census.Valid || !state.Valid || normalized == "" ||
			!rn.Valid || !lpn.Valid || !cna.Valid {
			dropped++
			continue
		}

		key := groupKey{state: state.String, provnum: provnum.String, quarter: normalized}
		acc := groups[key]
		if acc == nil {
			acc = &accumulator{}
			groups[key] = acc
		}
		acc.nurseHours += rn.Float64 + lpn.Float64 + cna.Float64
		acc.census += census.Float64
		acc.contractHours += rnCtr.Float64 + lpnCtr.Float64 + cnaCtr.Float64
		acc.employedHours += rnEmp.Float64 + lpnEmp.Float64 + cnaEmp.Float64
	}
	if dropped > 0 {
		c.logger.Warn("dropped incomplete staffing rows", "table", table, "rows", dropped)
	}
	return rows.Err()
}

// Store replaces the staffing_metrics table with the given aggregates.
func (c *Calculator) Store(ctx context.Context, metrics []StaffingMetric) error {
	err := c.db.Exec(ctx, `CREATE OR REPLACE TABLE staffing_metrics (
	provnum VARCHAR,
	state VARCHAR,
	cy_qtr VARCHAR,
	nurse_to_patient_ratio DOUBLE,
	contract_vs_employed_ratio DOUBLE,
	total_nurse_hours DOUBLE,
	PRIMARY KEY (provnum, state, cy_qtr)
)`)
	if err != nil {
		return fmt.Errorf("failed to create staffing_metrics: %w", err)
	}

	for _, m := range metrics {
		err := c.db.Exec(ctx,
			`INSERT INTO staffing_metrics VALUES (?, ?, ?, ?, ?, ?)`,
			m.Provnum, m.State, m.Quarter,
			m.NurseToPatientRatio, m.ContractVsEmployed, m.TotalNurseHours)
		if err != nil {
			return fmt.Errorf("failed to insert staffing metric for %s/%s: %w", m.Provnum, m.Quarter, err)
		}
	}
	c.logger.Info("stored staffing metrics", "rows", len(metrics))
	return nil
}
