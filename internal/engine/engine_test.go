package engine

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/careworks-labs/nhstage/internal/state"
	"github.com/careworks-labs/nhstage/internal/testutil"
)

const testDatasets = `datasets:
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

const penaltiesCSV = `CMS Certification Number (CCN),Provider Name,State,Penalty Date,Penalty Type,Fine Amount,Payment Denial Length in Days
015009,BURNS NURSING HOME,AL,2023-01-15,Fine,"$3,500",
015010,COOSA VALLEY,AL,2023-02-01,Fine,,
025001,DENALI CENTER,AK,2023-03-10,Payment Denial,0,14
`

const staffingCSV = `PROVNUM,STATE,CY_Qtr,WorkDate,MDScensus,Hrs_RN,Hrs_LPN,Hrs_CNA,Hrs_RN_ctr,Hrs_LPN_ctr,Hrs_CNA_ctr,Hrs_RN_emp,Hrs_LPN_emp,Hrs_CNA_emp
015009,AL,2024Q1,2024-01-01,100,40,30,80,5,0,10,35,30,70
015009,AL,2024Q1,2024-01-02,100,40,30,80,5,0,10,35,30,70
025001,AK,2024Q2,2024-04-01,50,20,10,30,0,0,0,20,10,30
`

func newTestEngine(t *testing.T) (*Engine, string) {
	t.Helper()
	dir := t.TempDir()

	datasetsFile := filepath.Join(dir, "datasets.yml")
	require.NoError(t, os.WriteFile(datasetsFile, []byte(testDatasets), 0o644))

	dataDir := filepath.Join(dir, "data")
	require.NoError(t, os.MkdirAll(dataDir, 0o755))
	require.NoError(t, os.WriteFile(
		filepath.Join(dataDir, "NH_Penalties_2023.csv"), []byte(penaltiesCSV), 0o644))
	require.NoError(t, os.WriteFile(
		filepath.Join(dataDir, "PBJ_Daily_Nurse_Staffing_2024.csv"), []byte(staffingCSV), 0o644))

	e, err := New(Config{
		DatasetsFile: datasetsFile,
		DataDir:      dataDir,
		DatabasePath: filepath.Join(dir, "nh.duckdb"),
		StatePath:    filepath.Join(dir, "state.db"),
		OutputDir:    filepath.Join(dir, "out"),
		Environment:  "test",
		Logger:       testutil.NewTestLogger(t),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = e.Close() })
	return e, dir
}

func TestRunAll(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping duckdb-backed test in short mode")
	}
	e, dir := newTestEngine(t)
	ctx := context.Background()

	results, computed, err := e.RunAll(ctx)
	require.NoError(t, err)
	require.Len(t, results, 2)

	byName := map[string]int{}
	for i, res := range results {
		byName[res.Dataset] = i
	}
	pen := results[byName["penalties"]]
	assert.Equal(t, 3, pen.Inserted)
	assert.Equal(t, 0, pen.Rejected)
	staff := results[byName["staffing"]]
	assert.Equal(t, 3, staff.Inserted)

	require.Len(t, computed, 2)
	assert.Equal(t, "2024-Q1", computed[1].Quarter)

	summary := filepath.Join(dir, "out", MetricsSummaryFile)
	_, err = os.Stat(summary)
	assert.NoError(t, err)

	runs, err := e.StateStore().ListRuns(10)
	require.NoError(t, err)
	require.Len(t, runs, 3)
	for _, run := range runs {
		assert.Equal(t, state.RunStatusCompleted, run.Status)
	}

	loads, err := e.StateStore().ListDatasetLoads(runs[2].ID)
	require.NoError(t, err)
	if assert.Len(t, loads, 2) {
		assert.Equal(t, "penalties", loads[0].Dataset)
		assert.Equal(t, 1, loads[0].Files)
		assert.Equal(t, 3, loads[0].Inserted)
	}
}

func TestLoadAllIsIdempotent(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping duckdb-backed test in short mode")
	}
	e, _ := newTestEngine(t)
	ctx := context.Background()

	_, err := e.LoadAll(ctx, []string{"penalties"})
	require.NoError(t, err)

	results, err := e.LoadAll(ctx, []string{"penalties"})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, 0, results[0].Inserted)
	assert.Equal(t, 3, results[0].Updated)
}

func TestLoadAllUnknownDataset(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping duckdb-backed test in short mode")
	}
	e, _ := newTestEngine(t)

	_, err := e.LoadAll(context.Background(), []string{"ownership"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ownership")
}

func TestCurateBeforeLoadFails(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping duckdb-backed test in short mode")
	}
	e, _ := newTestEngine(t)

	err := e.Curate(context.Background())
	require.Error(t, err)

	runs, err := e.StateStore().ListRuns(10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, state.RunStatusFailed, runs[0].Status)
}

func TestNewMissingDatasetsFile(t *testing.T) {
	_, err := New(Config{
		DatasetsFile: filepath.Join(t.TempDir(), "nope.yml"),
		StatePath:    ":memory:",
	})
	require.Error(t, err)
}
