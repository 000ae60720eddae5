package registry

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validDoc = `
datasets:
  penalties:
    filename_pattern: "NH_Penalties_*.csv"
    staging_table: staging_penalties
    natural_key: [cms_certification_number_ccn, penalty_date, penalty_type]
    columns:
      cms_certification_number_ccn: {type: string}
      penalty_date: {type: date}
      penalty_type: {type: string}
      fine_amount: {type: numeric, nullable: true}
      payment_denial_length_in_days: {type: int, nullable: true}
      state: {type: string, nullable: true}
      provider_name: {type: string, nullable: true}
  staffing:
    filename_pattern: "PBJ_Daily_Nurse_Staffing_*.csv"
    staging_table: staging_staffing
    on_conflict: ignore
    natural_key: [provnum, cy_qtr]
    columns:
      provnum: {type: string}
      state: {type: string, nullable: true}
      cy_qtr: {type: string}
      mdscensus: {type: numeric, nullable: true}
      hrs_rn: {type: numeric, nullable: true}
`

func TestParse_ValidDocument(t *testing.T) {
	reg, err := Parse([]byte(validDoc))
	require.NoError(t, err)
	require.Equal(t, 2, reg.Len())
	assert.Equal(t, []string{"penalties", "staffing"}, reg.Names())

	ds, err := reg.Get("penalties")
	require.NoError(t, err)
	assert.Equal(t, "staging_penalties", ds.StagingTable)
	assert.Equal(t, ConflictOverwrite, ds.OnConflict)
	require.Len(t, ds.Columns, 7)

	// Declaration order must survive YAML decoding.
	assert.Equal(t, "cms_certification_number_ccn", ds.Columns[0].Name)
	assert.Equal(t, "penalty_date", ds.Columns[1].Name)
	assert.Equal(t, "provider_name", ds.Columns[6].Name)

	fine, ok := ds.Column("fine_amount")
	require.True(t, ok)
	assert.Equal(t, TypeNumeric, fine.Type)
	assert.True(t, fine.Nullable)

	assert.True(t, ds.IsKeyColumn("penalty_date"))
	assert.False(t, ds.IsKeyColumn("fine_amount"))

	staffing, err := reg.Get("staffing")
	require.NoError(t, err)
	assert.Equal(t, ConflictIgnore, staffing.OnConflict)
}

func TestParse_Invalid(t *testing.T) {
	tests := []struct {
		name   string
		doc    string
		detail string
	}{
		{
			name:   "unknown column type",
			detail: "unrecognized type",
			doc: `
datasets:
  d:
    filename_pattern: "x_*.csv"
    staging_table: staging_d
    natural_key: [id]
    columns:
      id: {type: uuid}
`,
		},
		{
			name:   "natural key not declared",
			detail: "is not declared",
			doc: `
datasets:
  d:
    filename_pattern: "x_*.csv"
    staging_table: staging_d
    natural_key: [missing]
    columns:
      id: {type: string}
`,
		},
		{
			name:   "nullable natural key",
			detail: "must not be nullable",
			doc: `
datasets:
  d:
    filename_pattern: "x_*.csv"
    staging_table: staging_d
    natural_key: [id]
    columns:
      id: {type: string, nullable: true}
`,
		},
		{
			name:   "empty pattern",
			detail: "filename_pattern is empty",
			doc: `
datasets:
  d:
    staging_table: staging_d
    natural_key: [id]
    columns:
      id: {type: string}
`,
		},
		{
			name:   "malformed pattern",
			detail: "malformed filename_pattern",
			doc: `
datasets:
  d:
    filename_pattern: "x_[*.csv"
    staging_table: staging_d
    natural_key: [id]
    columns:
      id: {type: string}
`,
		},
		{
			name:   "bad staging table identifier",
			detail: "not a valid identifier",
			doc: `
datasets:
  d:
    filename_pattern: "x_*.csv"
    staging_table: "staging d"
    natural_key: [id]
    columns:
      id: {type: string}
`,
		},
		{
			name:   "missing natural key",
			detail: "natural_key is empty",
			doc: `
datasets:
  d:
    filename_pattern: "x_*.csv"
    staging_table: staging_d
    columns:
      id: {type: string}
`,
		},
		{
			name:   "unknown conflict policy",
			detail: "on_conflict",
			doc: `
datasets:
  d:
    filename_pattern: "x_*.csv"
    staging_table: staging_d
    on_conflict: merge
    natural_key: [id]
    columns:
      id: {type: string}
`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.doc))
			require.Error(t, err)

			var cfgErr *ConfigError
			require.True(t, errors.As(err, &cfgErr), "expected ConfigError, got %T", err)
			assert.Contains(t, cfgErr.Error(), tt.detail)
		})
	}
}

func TestDataset_MatchesFile(t *testing.T) {
	ds := &Dataset{FilenamePattern: "NH_Penalties_*.csv"}

	tests := []struct {
		path string
		want bool
	}{
		{"NH_Penalties_2023.csv", true},
		{"NH_Penalties_Jan2024.csv", true},
		{"Penalties_2023.csv", false},
		{"NH_Penalties_2023.csv.bak", false},
		{"data/NH_Penalties_2023.csv", true}, // base name only
		{"NH_Providers_2023.csv", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ds.MatchesFile(tt.path), "path %s", tt.path)
	}
}

func TestRegistry_GetUnknown(t *testing.T) {
	reg, err := Parse([]byte(validDoc))
	require.NoError(t, err)

	_, err = reg.Get("ownership")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown dataset")
}
