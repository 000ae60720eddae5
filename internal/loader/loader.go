// Package loader stages CSV extracts into the database. Files are matched
// against each dataset's filename pattern, parsed with a header row, cast
// to the declared column types, and upserted on the dataset's natural key.
package loader

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/careworks-labs/nhstage/internal/adapter"
	"github.com/careworks-labs/nhstage/internal/registry"
)

// maxRejectSamples bounds how many reject details are kept on the Result.
// Every reject is still logged and counted.
const maxRejectSamples = 20

// Result summarizes one dataset load.
type Result struct {
	Dataset  string
	Files    []string
	Inserted int
	Updated  int
	Skipped  int
	Rejected int
	Rejects  []RowValidationError
}

// Accepted returns the number of rows that reached the staging table.
func (r *Result) Accepted() int { return r.Inserted + r.Updated }

// Loader loads CSV files into staging tables.
type Loader struct {
	db     adapter.Adapter
	logger *slog.Logger
	now    func() time.Time
}

// New creates a Loader. A nil logger discards output.
func New(db adapter.Adapter, logger *slog.Logger) *Loader {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Loader{db: db, logger: logger, now: time.Now}
}

// Load stages every file in dir that matches the dataset's filename
// pattern, in lexicographic filename order. Row-level failures are counted
// and skipped; file-level failures abort the dataset load.
func (l *Loader) Load(ctx context.Context, ds *registry.Dataset, dir string) (*Result, error) {
	res := &Result{Dataset: ds.Name}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, &FileAccessError{Dataset: ds.Name, Path: dir, Err: err}
	}

	var files []string
	for _, entry := range entries {
		if entry.IsDir() || !ds.MatchesFile(entry.Name()) {
			continue
		}
		files = append(files, entry.Name())
	}
	sort.Strings(files)

	if len(files) == 0 {
		l.logger.Warn("no files matched dataset pattern", "dataset", ds.Name, "pattern", ds.FilenamePattern, "dir", dir)
		return res, nil
	}

	if err := l.ensureStagingTable(ctx, ds); err != nil {
		return nil, err
	}

	for _, name := range files {
		if err := l.loadFile(ctx, ds, filepath.Join(dir, name), res); err != nil {
			return nil, err
		}
		res.Files = append(res.Files, name)
	}

	l.logger.Info("dataset loaded",
		"dataset", ds.Name,
		"files", len(res.Files),
		"inserted", res.Inserted,
		"updated", res.Updated,
		"skipped", res.Skipped,
		"rejected", res.Rejected,
	)
	return res, nil
}

// sqlType maps a declared primitive to its DuckDB column type.
func sqlType(t registry.ColumnType) string {
	switch t {
	case registry.TypeDate:
		return "DATE"
	case registry.TypeNumeric:
		return "DOUBLE"
	case registry.TypeInt:
		return "BIGINT"
	default:
		return "VARCHAR"
	}
}

// ensureStagingTable creates the staging table if it does not exist.
// Declared columns come first in declaration order, followed by the
// source_file and ingested_at audit columns. Natural-key uniqueness is
// enforced by the primary key.
func (l *Loader) ensureStagingTable(ctx context.Context, ds *registry.Dataset) error {
	var b strings.Builder
	fmt.Fprintf(&b, "CREATE TABLE IF NOT EXISTS %s (\n", ds.StagingTable)
	for _, col := range ds.Columns {
		fmt.Fprintf(&b, "\t%s %s", col.Name, sqlType(col.Type))
		if !col.Nullable {
			b.WriteString(" NOT NULL")
		}
		b.WriteString(",\n")
	}
	b.WriteString("\tsource_file VARCHAR,\n")
	b.WriteString("\tingested_at TIMESTAMP,\n")
	fmt.Fprintf(&b, "\tPRIMARY KEY (%s)\n)", strings.Join(ds.NaturalKey, ", "))

	if err := l.db.Exec(ctx, b.String()); err != nil {
		return fmt.Errorf("failed to create staging table %s: %w", ds.StagingTable, err)
	}
	return nil
}

func (l *Loader) loadFile(ctx context.Context, ds *registry.Dataset, path string, res *Result) error {
	f, err := os.Open(path)
	if err != nil {
		return &FileAccessError{Dataset: ds.Name, Path: path, Err: err}
	}
	defer func() { _ = f.Close() }()

	base := filepath.Base(path)
	r := csv.NewReader(f)
	r.FieldsPerRecord = -1

	header, err := r.Read()
	if err != nil {
		if err == io.EOF {
			err = fmt.Errorf("file is empty")
		}
		return &FileAccessError{Dataset: ds.Name, Path: path, Err: err}
	}

	// Map each declared column to its position in the file. Headers are
	// normalized the same way declared names are authored, so the match
	// itself stays exact. A column absent from the file keeps index -1 and
	// reads as empty for every row.
	colIdx := make([]int, len(ds.Columns))
	headerIdx := make(map[string]int, len(header))
	for i, h := range header {
		norm := NormalizeName(h)
		if _, ok := headerIdx[norm]; !ok {
			headerIdx[norm] = i
		}
	}
	for i, col := range ds.Columns {
		idx, ok := headerIdx[col.Name]
		if !ok {
			idx = -1
		}
		colIdx[i] = idx
	}

	ingestedAt := l.now().UTC()

	for line := 2; ; line++ {
		record, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return &FileAccessError{Dataset: ds.Name, Path: path, Err: err}
		}

		if rowIsEmpty(record) {
			continue
		}

		values, reject := castRow(ds, record, colIdx, base, line)
		if reject != nil {
			res.Rejected++
			if len(res.Rejects) < maxRejectSamples {
				res.Rejects = append(res.Rejects, *reject)
			}
			l.logger.Warn("row rejected",
				"dataset", ds.Name,
				"file", base,
				"line", line,
				"column", reject.Column,
				"reason", reject.Reason,
			)
			continue
		}

		if err := l.upsertRow(ctx, ds, values, base, line, ingestedAt, res); err != nil {
			return err
		}
	}
	return nil
}

func rowIsEmpty(record []string) bool {
	for _, v := range record {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}

// castRow shapes one CSV record to the dataset's declared columns. The
// returned slice follows column declaration order.
func castRow(ds *registry.Dataset, record []string, colIdx []int, file string, line int) ([]any, *RowValidationError) {
	values := make([]any, len(ds.Columns))
	for i, col := range ds.Columns {
		raw := ""
		if idx := colIdx[i]; idx >= 0 && idx < len(record) {
			raw = record[idx]
		} else if !col.Nullable && colIdx[i] < 0 {
			return nil, &RowValidationError{File: file, Line: line, Column: col.Name, Reason: "column missing from file"}
		}

		v, err := Cast(raw, col)
		if err != nil {
			return nil, &RowValidationError{File: file, Line: line, Column: col.Name, Reason: err.Error()}
		}
		values[i] = v
	}
	return values, nil
}

// upsertRow applies the dataset's conflict policy for one typed row.
func (l *Loader) upsertRow(ctx context.Context, ds *registry.Dataset, values []any, file string, line int, ingestedAt time.Time, res *Result) error {
	keyArgs := make([]any, 0, len(ds.NaturalKey))
	keyPreds := make([]string, 0, len(ds.NaturalKey))
	for i, col := range ds.Columns {
		if ds.IsKeyColumn(col.Name) {
			keyArgs = append(keyArgs, values[i])
			keyPreds = append(keyPreds, col.Name+" = ?")
		}
	}

	var count int64
	existsSQL := fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE %s", ds.StagingTable, strings.Join(keyPreds, " AND ")) //nolint:gosec // identifiers validated by the registry
	if err := l.db.QueryRow(ctx, existsSQL, keyArgs...).Scan(&count); err != nil {
		return fmt.Errorf("failed to check natural key in %s: %w", ds.StagingTable, err)
	}

	if count == 0 {
		cols := make([]string, 0, len(ds.Columns)+2)
		args := make([]any, 0, len(ds.Columns)+2)
		for i, col := range ds.Columns {
			cols = append(cols, col.Name)
			args = append(args, values[i])
		}
		cols = append(cols, "source_file", "ingested_at")
		args = append(args, file, ingestedAt)

		insertSQL := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", //nolint:gosec // identifiers validated by the registry
			ds.StagingTable, strings.Join(cols, ", "), placeholders(len(cols)))
		if err := l.db.Exec(ctx, insertSQL, args...); err != nil {
			return fmt.Errorf("failed to insert into %s: %w", ds.StagingTable, err)
		}
		res.Inserted++
		return nil
	}

	switch ds.OnConflict {
	case registry.ConflictIgnore:
		res.Skipped++
		return nil

	case registry.ConflictReject:
		keyVals := make([]string, len(keyArgs))
		for i, v := range keyArgs {
			keyVals[i] = fmt.Sprint(v)
		}
		return &UpsertConflictError{Dataset: ds.Name, File: file, Line: line, Key: strings.Join(keyVals, ", ")}

	default: // overwrite
		sets := make([]string, 0, len(ds.Columns)+2)
		args := make([]any, 0, len(ds.Columns)+2+len(keyArgs))
		for i, col := range ds.Columns {
			if ds.IsKeyColumn(col.Name) {
				continue
			}
			sets = append(sets, col.Name+" = ?")
			args = append(args, values[i])
		}
		sets = append(sets, "source_file = ?", "ingested_at = ?")
		args = append(args, file, ingestedAt)
		args = append(args, keyArgs...)

		updateSQL := fmt.Sprintf("UPDATE %s SET %s WHERE %s", //nolint:gosec // identifiers validated by the registry
			ds.StagingTable, strings.Join(sets, ", "), strings.Join(keyPreds, " AND "))
		n, err := l.db.ExecRows(ctx, updateSQL, args...)
		if err != nil {
			return fmt.Errorf("failed to update %s: %w", ds.StagingTable, err)
		}
		res.Updated += int(n)
		return nil
	}
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}
