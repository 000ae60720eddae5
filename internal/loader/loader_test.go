package loader

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/careworks-labs/nhstage/internal/adapter"
	"github.com/careworks-labs/nhstage/internal/registry"
	"github.com/careworks-labs/nhstage/internal/testutil"
)

func penaltiesDataset(t *testing.T, policy registry.ConflictPolicy) *registry.Dataset {
	t.Helper()
	ds := &registry.Dataset{
		Name:            "penalties",
		FilenamePattern: "NH_Penalties_*.csv",
		StagingTable:    "staging_penalties",
		NaturalKey:      []string{"ccn", "penalty_date", "penalty_type"},
		Columns: []registry.Column{
			{Name: "ccn", Type: registry.TypeString},
			{Name: "penalty_date", Type: registry.TypeDate},
			{Name: "penalty_type", Type: registry.TypeString},
			{Name: "fine_amount", Type: registry.TypeNumeric, Nullable: true},
		},
		OnConflict: policy,
	}
	return ds
}

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
}

// newMockLoader returns a loader backed by sqlmock with a fixed clock.
func newMockLoader(t *testing.T) (*Loader, sqlmock.Sqlmock, time.Time) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	l := New(adapter.NewDuckDBAdapterWithDB(db), testutil.NewTestLogger(t))
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return now }
	return l, mock, now
}

const createPenaltiesDDL = "CREATE TABLE IF NOT EXISTS staging_penalties (\n" +
	"\tccn VARCHAR NOT NULL,\n" +
	"\tpenalty_date DATE NOT NULL,\n" +
	"\tpenalty_type VARCHAR NOT NULL,\n" +
	"\tfine_amount DOUBLE,\n" +
	"\tsource_file VARCHAR,\n" +
	"\tingested_at TIMESTAMP,\n" +
	"\tPRIMARY KEY (ccn, penalty_date, penalty_type)\n)"

const existsSQL = "SELECT COUNT(*) FROM staging_penalties WHERE ccn = ? AND penalty_date = ? AND penalty_type = ?"
const insertSQL = "INSERT INTO staging_penalties (ccn, penalty_date, penalty_type, fine_amount, source_file, ingested_at) VALUES (?, ?, ?, ?, ?, ?)"
const updateSQL = "UPDATE staging_penalties SET fine_amount = ?, source_file = ?, ingested_at = ? WHERE ccn = ? AND penalty_date = ? AND penalty_type = ?"

func countRows(n int) *sqlmock.Rows {
	return sqlmock.NewRows([]string{"count"}).AddRow(n)
}

// The scenario from the original penalties extract: three rows, one with an
// empty non-nullable key column, one colliding on the natural key. The
// staging table ends up with two rows and the collision keeps the later
// fine amount.
func TestLoad_PenaltiesScenario(t *testing.T) {
	l, mock, now := newMockLoader(t)
	ds := penaltiesDataset(t, registry.ConflictOverwrite)

	dir := t.TempDir()
	writeFile(t, dir, "NH_Penalties_2023.csv",
		"CCN,Penalty Date,Penalty Type,Fine Amount\n"+
			"015009,2023-01-05,Fine,\"$3,250.50\"\n"+
			",2023-02-01,Fine,1000\n"+
			"015009,2023-01-05,Fine,4000\n")
	// Non-matching file must be ignored entirely.
	writeFile(t, dir, "Penalties_2023.csv", "CCN\nxxx\n")

	date := time.Date(2023, 1, 5, 0, 0, 0, 0, time.UTC)
	mock.ExpectExec(createPenaltiesDDL).WillReturnResult(sqlmock.NewResult(0, 0))

	// row 1: new key, inserted
	mock.ExpectQuery(existsSQL).WithArgs("015009", date, "Fine").WillReturnRows(countRows(0))
	mock.ExpectExec(insertSQL).
		WithArgs("015009", date, "Fine", 3250.5, "NH_Penalties_2023.csv", now).
		WillReturnResult(sqlmock.NewResult(0, 1))

	// row 2 is rejected before any SQL (empty non-nullable ccn)

	// row 3: collision, overwritten
	mock.ExpectQuery(existsSQL).WithArgs("015009", date, "Fine").WillReturnRows(countRows(1))
	mock.ExpectExec(updateSQL).
		WithArgs(4000.0, "NH_Penalties_2023.csv", now, "015009", date, "Fine").
		WillReturnResult(sqlmock.NewResult(0, 1))

	res, err := l.Load(context.Background(), ds, dir)
	require.NoError(t, err)

	assert.Equal(t, 1, res.Inserted)
	assert.Equal(t, 1, res.Updated)
	assert.Equal(t, 1, res.Rejected)
	assert.Equal(t, 2, res.Accepted())
	assert.Equal(t, []string{"NH_Penalties_2023.csv"}, res.Files)

	require.Len(t, res.Rejects, 1)
	assert.Equal(t, "ccn", res.Rejects[0].Column)
	assert.Equal(t, 3, res.Rejects[0].Line)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestLoad_FilesInLexicographicOrder(t *testing.T) {
	l, mock, _ := newMockLoader(t)
	ds := penaltiesDataset(t, registry.ConflictOverwrite)

	dir := t.TempDir()
	header := "CCN,Penalty Date,Penalty Type,Fine Amount\n"
	writeFile(t, dir, "NH_Penalties_B.csv", header+"2,2023-01-02,Fine,2\n")
	writeFile(t, dir, "NH_Penalties_A.csv", header+"1,2023-01-01,Fine,1\n")

	mock.ExpectExec(createPenaltiesDDL).WillReturnResult(sqlmock.NewResult(0, 0))
	for range 2 {
		mock.ExpectQuery(existsSQL).WithArgs(sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg()).WillReturnRows(countRows(0))
		mock.ExpectExec(insertSQL).
			WithArgs(sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(0, 1))
	}

	res, err := l.Load(context.Background(), ds, dir)
	require.NoError(t, err)
	assert.Equal(t, []string{"NH_Penalties_A.csv", "NH_Penalties_B.csv"}, res.Files)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestLoad_IgnorePolicySkipsCollision(t *testing.T) {
	l, mock, now := newMockLoader(t)
	ds := penaltiesDataset(t, registry.ConflictIgnore)

	dir := t.TempDir()
	writeFile(t, dir, "NH_Penalties_2023.csv",
		"CCN,Penalty Date,Penalty Type,Fine Amount\n"+
			"015009,2023-01-05,Fine,100\n"+
			"015009,2023-01-05,Fine,200\n")

	date := time.Date(2023, 1, 5, 0, 0, 0, 0, time.UTC)
	mock.ExpectExec(createPenaltiesDDL).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(existsSQL).WithArgs("015009", date, "Fine").WillReturnRows(countRows(0))
	mock.ExpectExec(insertSQL).
		WithArgs("015009", date, "Fine", 100.0, "NH_Penalties_2023.csv", now).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(existsSQL).WithArgs("015009", date, "Fine").WillReturnRows(countRows(1))
	// No update: earlier row wins under ignore.

	res, err := l.Load(context.Background(), ds, dir)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Inserted)
	assert.Equal(t, 0, res.Updated)
	assert.Equal(t, 1, res.Skipped)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestLoad_RejectPolicyAbortsOnCollision(t *testing.T) {
	l, mock, now := newMockLoader(t)
	ds := penaltiesDataset(t, registry.ConflictReject)

	dir := t.TempDir()
	writeFile(t, dir, "NH_Penalties_2023.csv",
		"CCN,Penalty Date,Penalty Type,Fine Amount\n"+
			"015009,2023-01-05,Fine,100\n"+
			"015009,2023-01-05,Fine,200\n")

	date := time.Date(2023, 1, 5, 0, 0, 0, 0, time.UTC)
	mock.ExpectExec(createPenaltiesDDL).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(existsSQL).WithArgs("015009", date, "Fine").WillReturnRows(countRows(0))
	mock.ExpectExec(insertSQL).
		WithArgs("015009", date, "Fine", 100.0, "NH_Penalties_2023.csv", now).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(existsSQL).WithArgs("015009", date, "Fine").WillReturnRows(countRows(1))

	_, err := l.Load(context.Background(), ds, dir)
	require.Error(t, err)

	var conflict *UpsertConflictError
	require.True(t, errors.As(err, &conflict), "expected UpsertConflictError, got %T", err)
	assert.Equal(t, 3, conflict.Line)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestLoad_MissingDirectoryIsFatal(t *testing.T) {
	l, _, _ := newMockLoader(t)
	ds := penaltiesDataset(t, registry.ConflictOverwrite)

	_, err := l.Load(context.Background(), ds, filepath.Join(t.TempDir(), "nope"))
	require.Error(t, err)

	var fileErr *FileAccessError
	require.True(t, errors.As(err, &fileErr))
}

func TestLoad_NoMatchingFiles(t *testing.T) {
	l, mock, _ := newMockLoader(t)
	ds := penaltiesDataset(t, registry.ConflictOverwrite)

	dir := t.TempDir()
	writeFile(t, dir, "Unrelated.csv", "a,b\n1,2\n")

	res, err := l.Load(context.Background(), ds, dir)
	require.NoError(t, err)
	assert.Zero(t, res.Accepted())
	assert.Empty(t, res.Files)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestLoad_MissingNonNullableColumnRejectsRows(t *testing.T) {
	l, mock, _ := newMockLoader(t)
	ds := penaltiesDataset(t, registry.ConflictOverwrite)

	dir := t.TempDir()
	// File lacks the Penalty Type column entirely.
	writeFile(t, dir, "NH_Penalties_2023.csv",
		"CCN,Penalty Date,Fine Amount\n"+
			"015009,2023-01-05,100\n")

	mock.ExpectExec(createPenaltiesDDL).WillReturnResult(sqlmock.NewResult(0, 0))

	res, err := l.Load(context.Background(), ds, dir)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Rejected)
	assert.Zero(t, res.Accepted())
	require.Len(t, res.Rejects, 1)
	assert.Equal(t, "penalty_type", res.Rejects[0].Column)
	assert.Contains(t, res.Rejects[0].Reason, "missing")
	require.NoError(t, mock.ExpectationsWereMet())
}

// End-to-end against a real embedded database: loading the same file twice
// must not grow the staging table, and the collision row keeps the later
// non-key values.
func TestLoad_IdempotentUpsert(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping embedded database test in short mode")
	}

	ctx := context.Background()
	db := adapter.NewDuckDBAdapter()
	require.NoError(t, db.Connect(ctx, adapter.Config{Path: ":memory:"}))
	t.Cleanup(func() { _ = db.Close() })

	l := New(db, testutil.NewTestLogger(t))
	ds := penaltiesDataset(t, registry.ConflictOverwrite)

	dir := t.TempDir()
	writeFile(t, dir, "NH_Penalties_2023.csv",
		"CCN,Penalty Date,Penalty Type,Fine Amount\n"+
			"015009,2023-01-05,Fine,3250.50\n"+
			"015010,2023-02-01,Fine,\n"+
			"015009,2023-01-05,Fine,4000\n")

	first, err := l.Load(ctx, ds, dir)
	require.NoError(t, err)
	assert.Equal(t, 2, first.Inserted)
	assert.Equal(t, 1, first.Updated)
	assert.Zero(t, first.Rejected)

	second, err := l.Load(ctx, ds, dir)
	require.NoError(t, err)
	assert.Zero(t, second.Inserted)

	var count int64
	require.NoError(t, db.QueryRow(ctx, "SELECT COUNT(*) FROM staging_penalties").Scan(&count))
	assert.Equal(t, int64(2), count, "reloading must not grow the staging table")

	var fine float64
	require.NoError(t, db.QueryRow(ctx,
		"SELECT fine_amount FROM staging_penalties WHERE ccn = ?", "015009").Scan(&fine))
	assert.Equal(t, 4000.0, fine, "collision must keep the later row's values")

	var fineNull bool
	require.NoError(t, db.QueryRow(ctx,
		"SELECT fine_amount IS NULL FROM staging_penalties WHERE ccn = ?", "015010").Scan(&fineNull))
	assert.True(t, fineNull, "empty nullable value must stage as NULL")
}
